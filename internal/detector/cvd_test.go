package detector

import (
	"testing"
	"time"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
)

func testCVDConfig() CVDConfig {
	return CVDConfig{
		WindowSeconds:         5,
		MinTradesPerSec:       0.5,
		MinVolPerSec:          d("5"),
		SlopeThreshold:        0.01,
		CVDImbalanceThreshold: 0.1,
	}
}

func cvdTrade(sec int64, price market.Ticks) preprocess.EnrichedTradeEvent {
	return preprocess.EnrichedTradeEvent{
		Trade: market.Trade{
			Price: price, Quantity: d("10"), BuyerIsMaker: false, // aggressive buy
			EventTime: time.Unix(sec, 0),
		},
	}
}

func TestCVDDetectorFlagsBullishDivergence(t *testing.T) {
	cd := NewDeltaCVDDetector(testCVDConfig())

	// CVD rises (all aggressive buys) while price falls each second — a
	// bullish divergence (spec.md §4.8).
	cd.Handle(cvdTrade(0, 100))
	cd.Handle(cvdTrade(1, 90))
	out := cd.Handle(cvdTrade(2, 80))

	if len(out.Candidates) != 1 {
		t.Fatalf("expected 1 divergence candidate, got %d", len(out.Candidates))
	}
	c := out.Candidates[0]
	if c.Type != "cvd_divergence" {
		t.Errorf("Type = %q, want cvd_divergence", c.Type)
	}
	if c.Side != market.SideBuy {
		t.Errorf("rising CVD with falling price should signal buy side, got %s", c.Side)
	}
}

func TestCVDDetectorSilentWithoutDivergence(t *testing.T) {
	cd := NewDeltaCVDDetector(testCVDConfig())

	// Price and CVD move together (both rising) — no divergence.
	cd.Handle(cvdTrade(0, 100))
	cd.Handle(cvdTrade(1, 110))
	out := cd.Handle(cvdTrade(2, 120))

	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate when price and CVD move together, got %d", len(out.Candidates))
	}
}

func TestCVDDetectorNeedsAtLeastTwoBuckets(t *testing.T) {
	cd := NewDeltaCVDDetector(testCVDConfig())
	out := cd.Handle(cvdTrade(0, 100))
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate from a single bucket, got %d", len(out.Candidates))
	}
}

func TestCVDConfigValidateRejectsTooSmallWindow(t *testing.T) {
	cfg := testCVDConfig()
	cfg.WindowSeconds = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for windowSeconds <= 1")
	}
}
