package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/config"
	"orderflow-engine/internal/coordinator"
	"orderflow-engine/internal/detector"
	"orderflow-engine/internal/ingest"
	"orderflow-engine/internal/market"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg := config.LoadFromEnv()
	return New(cfg, ingest.NewReplaySource(nil))
}

func ticksOf(t *testing.T, a *App, price string) market.Ticks {
	t.Helper()
	ticks, err := a.grid.ToTicks(decimal.RequireFromString(price))
	if err != nil {
		t.Fatalf("ToTicks(%s): %v", price, err)
	}
	return ticks
}

func TestNewWiresEightDetectors(t *testing.T) {
	a := testApp(t)
	if len(a.detectors) != 8 {
		t.Fatalf("len(detectors) = %d, want 8", len(a.detectors))
	}
}

func TestNewConfiguresCoordinator(t *testing.T) {
	a := testApp(t)
	if a.coordinator == nil {
		t.Fatal("expected a coordinator to be wired")
	}
}

func TestTradeViewRendersPriceBackOntoDecimalString(t *testing.T) {
	a := testApp(t)
	tv := a.tradeView(market.Trade{
		TradeID: 1, Price: ticksOf(t, a, "100.00"), Quantity: decimal.RequireFromString("2.5"),
		BuyerIsMaker: false, EventTime: time.Unix(1000, 0),
	})
	if tv.Price != "100" {
		t.Errorf("Price = %q, want 100", tv.Price)
	}
	if tv.Side != string(market.SideBuy) {
		t.Errorf("Side = %q, want buy", tv.Side)
	}
}

func TestZoneUpdateViewRendersPriceCenter(t *testing.T) {
	a := testApp(t)
	zv := a.zoneUpdateView(detector.ZoneUpdate{
		DetectorID: "accumulation", UpdateType: detector.ZoneCreated,
		ZoneType: "accumulation", PriceCenter: ticksOf(t, a, "50.00"), Significance: 0.8,
	})
	if zv.PriceCenter != "50" {
		t.Errorf("PriceCenter = %q, want 50", zv.PriceCenter)
	}
}

func TestSignalViewOmitsNilTakeProfitAndStopLoss(t *testing.T) {
	a := testApp(t)
	sv := a.signalView(coordinator.Signal{
		ID: "s1", Type: "absorption", Side: market.SideBuy,
		Price: ticksOf(t, a, "100.00"), Confidence: 0.9, State: coordinator.StateConfirmed,
	})
	if sv.TakeProfit != nil || sv.StopLoss != nil {
		t.Error("expected nil TakeProfit/StopLoss when the signal carries none")
	}
}

func TestSignalViewRendersTakeProfitWhenSet(t *testing.T) {
	a := testApp(t)
	tp := ticksOf(t, a, "110.00")
	sv := a.signalView(coordinator.Signal{
		ID: "s1", Type: "absorption", Side: market.SideBuy,
		Price: ticksOf(t, a, "100.00"), TakeProfit: &tp, Confidence: 0.9, State: coordinator.StateConfirmed,
	})
	if sv.TakeProfit == nil || *sv.TakeProfit != "110" {
		t.Errorf("TakeProfit = %v, want 110", sv.TakeProfit)
	}
}
