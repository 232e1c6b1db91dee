package zone

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
)

func qty(s string) market.Quantity {
	d, _ := decimal.NewFromString(s)
	return d
}

func newTestAggregator() *Aggregator {
	return New(Config{
		Grid:           market.NewGrid(decimal.RequireFromString("0.01")),
		Resolutions:    []Resolution{5, 10, 20},
		TimeWindow:     time.Minute,
		HalfWidthTicks: 50,
	})
}

func TestOnTradeAccumulatesAllResolutions(t *testing.T) {
	a := newTestAggregator()
	now := time.Now()
	a.OnTrade(102, qty("3"), market.SideBuy, now)

	for _, res := range []Resolution{5, 10, 20} {
		zones := a.ZonesNear(102, 50, now)[res]
		if len(zones) != 1 {
			t.Fatalf("resolution %d: expected 1 zone, got %d", res, len(zones))
		}
		if !zones[0].AggressiveBuyVolume.Equal(qty("3")) {
			t.Errorf("resolution %d: AggressiveBuyVolume = %s, want 3", res, zones[0].AggressiveBuyVolume)
		}
		if zones[0].TradeCount != 1 {
			t.Errorf("resolution %d: TradeCount = %d, want 1", res, zones[0].TradeCount)
		}
	}
}

func TestBucketIDGroupsAdjacentPrices(t *testing.T) {
	a := newTestAggregator()
	now := time.Now()
	a.OnTrade(100, qty("1"), market.SideBuy, now)
	a.OnTrade(104, qty("1"), market.SideBuy, now)

	zones := a.ZonesNear(100, 50, now)[5]
	if len(zones) != 1 {
		t.Fatalf("prices 100 and 104 should land in the same 5-tick bucket, got %d buckets", len(zones))
	}
	if zones[0].TradeCount != 2 {
		t.Errorf("TradeCount = %d, want 2", zones[0].TradeCount)
	}
}

func TestOnTradeBuySellAreKeptSeparate(t *testing.T) {
	a := newTestAggregator()
	now := time.Now()
	a.OnTrade(100, qty("2"), market.SideBuy, now)
	a.OnTrade(100, qty("5"), market.SideSell, now)

	zones := a.ZonesNear(100, 50, now)[5]
	if !zones[0].AggressiveBuyVolume.Equal(qty("2")) {
		t.Errorf("AggressiveBuyVolume = %s, want 2", zones[0].AggressiveBuyVolume)
	}
	if !zones[0].AggressiveSellVol.Equal(qty("5")) {
		t.Errorf("AggressiveSellVol = %s, want 5", zones[0].AggressiveSellVol)
	}
	if !zones[0].AggressiveVolume().Equal(qty("7")) {
		t.Errorf("AggressiveVolume() = %s, want 7", zones[0].AggressiveVolume())
	}
}

func TestOnDepthTracksPassiveVolumeAsPointInTime(t *testing.T) {
	a := newTestAggregator()
	now := time.Now()
	a.OnDepth(100, qty("10"), qty("0"), now)
	a.OnDepth(100, qty("-4"), qty("0"), now)

	zones := a.ZonesNear(100, 50, now)[5]
	if !zones[0].PassiveBidVolume.Equal(qty("6")) {
		t.Errorf("PassiveBidVolume = %s, want 6", zones[0].PassiveBidVolume)
	}
}

func TestOnDepthNeverGoesNegative(t *testing.T) {
	a := newTestAggregator()
	now := time.Now()
	a.OnDepth(100, qty("-5"), qty("0"), now)

	zones := a.ZonesNear(100, 50, now)[5]
	if zones[0].PassiveBidVolume.Sign() != 0 {
		t.Errorf("PassiveBidVolume should clamp at 0, got %s", zones[0].PassiveBidVolume)
	}
}

func TestEvictDropsExpiredTrades(t *testing.T) {
	a := newTestAggregator()
	base := time.Now()
	a.OnTrade(100, qty("5"), market.SideBuy, base)

	later := base.Add(2 * time.Minute)
	zones := a.ZonesNear(100, 50, later)[5]
	if len(zones) != 0 {
		t.Fatalf("expected bucket to age out of the time window, got %d zones", len(zones))
	}
}

func TestZonesNearRespectsHalfWidth(t *testing.T) {
	a := newTestAggregator()
	now := time.Now()
	a.OnTrade(100, qty("1"), market.SideBuy, now)
	a.OnTrade(500, qty("1"), market.SideBuy, now)

	zones := a.ZonesNear(100, 10, now)[5]
	if len(zones) != 1 {
		t.Fatalf("expected only the near zone within half-width, got %d", len(zones))
	}
}

func TestBuildStandardZoneDataBundlesThreeResolutions(t *testing.T) {
	a := newTestAggregator()
	now := time.Now()
	a.OnTrade(100, qty("1"), market.SideBuy, now)

	bundle := a.BuildStandardZoneData(100, now)
	if len(bundle.Zones5Tick) != 1 || len(bundle.Zones10Tick) != 1 || len(bundle.Zones20Tick) != 1 {
		t.Fatalf("expected one zone per resolution, got 5=%d 10=%d 20=%d",
			len(bundle.Zones5Tick), len(bundle.Zones10Tick), len(bundle.Zones20Tick))
	}
}
