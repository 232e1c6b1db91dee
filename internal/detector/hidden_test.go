package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/orderbook"
	"orderflow-engine/internal/preprocess"
	"orderflow-engine/internal/zone"
)

func testHiddenConfig() HiddenOrderConfig {
	return HiddenOrderConfig{
		PriceTolerance:  1,
		MaxDepthAge:     time.Second,
		MinHiddenVolume: d("5"),
		MinTradeSize:    d("1"),
	}
}

func newTestHiddenPreprocessor() *preprocess.Preprocessor {
	grid := market.NewGrid(decimal.RequireFromString("0.01"))
	book := orderbook.New(orderbook.Config{Grid: grid, MaxLevels: 1000, PruneEvery: 100})
	zon := zone.New(zone.Config{
		Grid: grid, Resolutions: []zone.Resolution{5, 10, 20},
		TimeWindow: time.Minute, HalfWidthTicks: 50,
	})
	return preprocess.New(preprocess.Config{Grid: grid, DepthHalfWidth: 10, ZoneHalfWidthTicks: 50}, book, zon)
}

// TestHiddenOrderDetectorUsesPreConsumptionVisibleDepth drives the real
// preprocessor (which consumes the traded level before snapshotting depth)
// to confirm the detector reports the visible depth as it stood before the
// trade, not the already-drawn-down post-trade snapshot: visible ask 15,
// a market buy of 50, so 15 visible / 35 hidden / 0.7 hidden fraction.
func TestHiddenOrderDetectorUsesPreConsumptionVisibleDepth(t *testing.T) {
	p := newTestHiddenPreprocessor()
	now := time.Now()
	p.OnDepth([]orderbook.DepthUpdate{{Price: 10000, Ask: d("15")}}, now)

	ev, err := p.OnTrade(market.Trade{Price: 10000, Quantity: d("50"), BuyerIsMaker: false, EventTime: now.Add(time.Second)})
	if err != nil {
		t.Fatalf("OnTrade: %v", err)
	}

	hd := NewHiddenOrderDetector(testHiddenConfig())
	out := hd.Handle(ev)

	if len(out.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out.Candidates))
	}
	meta := out.Candidates[0].Metadata
	if got := meta["visibleVolume"]; got != "15" {
		t.Errorf("visibleVolume = %v, want 15", got)
	}
	if got := meta["hiddenVolume"]; got != "35" {
		t.Errorf("hiddenVolume = %v, want 35", got)
	}
	if got := meta["hiddenPercentage"]; got != 0.7 {
		t.Errorf("hiddenPercentage = %v, want 0.7", got)
	}
}

func TestHiddenOrderDetectorFlagsExecutionBeyondVisibleDepth(t *testing.T) {
	hd := NewHiddenOrderDetector(testHiddenConfig())

	ev := preprocess.EnrichedTradeEvent{
		Trade:            market.Trade{Price: 100, Quantity: d("50"), BuyerIsMaker: false, EventTime: time.Now()},
		PassiveAskVolume: d("10"),
		DepthSnapshot:    []orderbook.PassiveLevel{{Price: 100, Ask: d("0")}},
	}
	out := hd.Handle(ev)
	if len(out.Candidates) != 1 {
		t.Fatalf("expected 1 candidate when trade exceeds visible ask depth, got %d", len(out.Candidates))
	}
	if out.Candidates[0].Type != "hidden_liquidity" {
		t.Errorf("Type = %q, want hidden_liquidity", out.Candidates[0].Type)
	}
}

func TestHiddenOrderDetectorSkipsWhenExecutionFitsVisibleDepth(t *testing.T) {
	hd := NewHiddenOrderDetector(testHiddenConfig())

	ev := preprocess.EnrichedTradeEvent{
		Trade:            market.Trade{Price: 100, Quantity: d("5"), BuyerIsMaker: false, EventTime: time.Now()},
		PassiveAskVolume: d("10"),
		DepthSnapshot:    []orderbook.PassiveLevel{{Price: 100, Ask: d("0")}},
	}
	out := hd.Handle(ev)
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate when visible depth covers the trade, got %d", len(out.Candidates))
	}
}

func TestHiddenOrderDetectorSkipsSmallTrades(t *testing.T) {
	hd := NewHiddenOrderDetector(testHiddenConfig())

	ev := preprocess.EnrichedTradeEvent{
		Trade: market.Trade{Price: 100, Quantity: d("0.5"), BuyerIsMaker: false, EventTime: time.Now()},
	}
	out := hd.Handle(ev)
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate below minTradeSize, got %d", len(out.Candidates))
	}
}

func TestHiddenOrderConfigValidateRejectsNegativeTolerance(t *testing.T) {
	cfg := testHiddenConfig()
	cfg.PriceTolerance = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative priceTolerance")
	}
}
