package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
	"orderflow-engine/internal/zone"
)

func testZoneBuildConfig() ZoneBuildConfig {
	return ZoneBuildConfig{
		MinCandidateDuration: 0,
		MinZoneVolume:        d("10"),
		MinTradeCount:        2,
		MaxPriceDeviation:    0.01,
		DirectionalThreshold: 0.6,
		CrossTimeframeBoost:  0.1,
	}
}

// makeZoneTrade builds an enriched trade whose nearest 5-tick zone is
// centered at zoneCenter, with the trade itself executing at tradePrice.
// Every call shares the same bucket id so the detector's per-bucket
// candidate accumulates across calls.
func makeZoneTrade(zoneCenter, tradePrice market.Ticks, qty string, buy bool, at time.Time) preprocess.EnrichedTradeEvent {
	z5 := zone.Snapshot{BucketID: 1, PriceLevel: zoneCenter}
	return preprocess.EnrichedTradeEvent{
		Trade: market.Trade{
			Price: tradePrice, Quantity: d(qty), BuyerIsMaker: !buy, EventTime: at,
		},
		ZoneData: zone.StandardZoneData{Zones5Tick: []zone.Snapshot{z5}},
	}
}

func TestAccumulationDetectorConfirmsOnSustainedBuyBias(t *testing.T) {
	ad := NewAccumulationDetector(testZoneBuildConfig(), market.NewGrid(decimal.RequireFromString("0.01")))
	start := time.Now()

	ad.Handle(makeZoneTrade(100, 100, "6", true, start))
	out := ad.Handle(makeZoneTrade(100, 100, "6", true, start.Add(time.Second)))

	if len(out.ZoneUpdates) != 1 {
		t.Fatalf("expected 1 zone update on confirmation, got %d", len(out.ZoneUpdates))
	}
	zu := out.ZoneUpdates[0]
	if zu.UpdateType != ZoneCreated || zu.ZoneType != "accumulation" {
		t.Errorf("got UpdateType=%v ZoneType=%v, want Created/accumulation", zu.UpdateType, zu.ZoneType)
	}
}

func TestAccumulationDetectorSkipsMixedBias(t *testing.T) {
	ad := NewAccumulationDetector(testZoneBuildConfig(), market.NewGrid(decimal.RequireFromString("0.01")))
	start := time.Now()

	ad.Handle(makeZoneTrade(100, 100, "6", true, start))
	out := ad.Handle(makeZoneTrade(100, 100, "6", false, start.Add(time.Second)))

	if len(out.ZoneUpdates) != 0 {
		t.Fatalf("expected no zone update when buy ratio drops below threshold, got %d", len(out.ZoneUpdates))
	}
}

func TestAccumulationDetectorDoesNotConfirmAfterLargePriceDeviation(t *testing.T) {
	ad := NewAccumulationDetector(testZoneBuildConfig(), market.NewGrid(decimal.RequireFromString("0.01")))
	start := time.Now()

	ad.Handle(makeZoneTrade(10000, 10000, "6", true, start))
	out := ad.Handle(makeZoneTrade(10000, 20000, "6", true, start.Add(time.Second)))

	for _, zu := range out.ZoneUpdates {
		if zu.UpdateType == ZoneInvalidated {
			return
		}
	}
	if len(out.ZoneUpdates) != 0 {
		t.Fatalf("expected no confirmation after a wide price jump, got %d updates", len(out.ZoneUpdates))
	}
}

func TestDistributionDetectorConfirmsOnSustainedSellBias(t *testing.T) {
	dd := NewDistributionDetector(testZoneBuildConfig(), market.NewGrid(decimal.RequireFromString("0.01")))
	start := time.Now()

	dd.Handle(makeZoneTrade(100, 100, "6", false, start))
	out := dd.Handle(makeZoneTrade(100, 100, "6", false, start.Add(time.Second)))

	if len(out.ZoneUpdates) != 1 {
		t.Fatalf("expected 1 zone update on confirmation, got %d", len(out.ZoneUpdates))
	}
	if out.ZoneUpdates[0].ZoneType != "distribution" {
		t.Errorf("ZoneType = %q, want distribution", out.ZoneUpdates[0].ZoneType)
	}
}

func TestZoneBuildConfigValidateRejectsNonPositiveMinZoneVolume(t *testing.T) {
	cfg := testZoneBuildConfig()
	cfg.MinZoneVolume = d("0")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive minZoneVolume")
	}
}
