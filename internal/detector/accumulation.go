package detector

import (
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
	"orderflow-engine/internal/zone"
)

// ZoneBuildConfig holds every threshold named in spec.md §4.7, shared by the
// accumulation and distribution detectors (they are symmetric).
type ZoneBuildConfig struct {
	MinCandidateDuration  time.Duration
	MinZoneVolume         market.Quantity
	MinTradeCount         int
	MaxPriceDeviation     float64 // proportional, e.g. 0.002 = 0.2%
	DirectionalThreshold  float64 // accumulationRatioThreshold / distribution counterpart
	CrossTimeframeBoost   float64
}

func (c ZoneBuildConfig) Validate() error {
	if err := requirePositive("minCandidateDuration", float64(c.MinCandidateDuration)); err != nil {
		return err
	}
	if err := requirePositive("minZoneVolume", mustFloat(c.MinZoneVolume)); err != nil {
		return err
	}
	if c.MinTradeCount <= 0 {
		return requirePositive("minTradeCount", 0)
	}
	if err := requirePositive("maxPriceDeviation", c.MaxPriceDeviation); err != nil {
		return err
	}
	if err := requireRange01("directionalThreshold", c.DirectionalThreshold); err != nil {
		return err
	}
	return requireRange01("crossTimeframeBoost", c.CrossTimeframeBoost)
}

type candidateZone struct {
	createdAt  time.Time
	center     market.Ticks
	volume     market.Quantity
	tradeCount int
	dirVolume  market.Quantity // buy volume for accumulation, sell volume for distribution
	confirmed  bool
	strength   market.Quantity // volume observed at last strengthening emission
	invalid    bool
}

// directionalZoneDetector is the shared accumulation/distribution engine.
// zoneType is "accumulation" or "distribution"; matchesDirection reports
// whether a trade's aggressive side counts toward this detector's bias.
type directionalZoneDetector struct {
	id                string
	zoneType          string
	cfg               ZoneBuildConfig
	grid              market.Grid
	matchesDirection  func(market.Side) bool
	expectedDirection Direction

	candidates map[int64]*candidateZone
}

func newDirectionalZoneDetector(id, zoneType string, cfg ZoneBuildConfig, grid market.Grid, matches func(market.Side) bool, dir Direction) *directionalZoneDetector {
	return &directionalZoneDetector{
		id:                id,
		zoneType:          zoneType,
		cfg:               cfg,
		grid:              grid,
		matchesDirection:  matches,
		expectedDirection: dir,
		candidates:        make(map[int64]*candidateZone),
	}
}

func (d *directionalZoneDetector) ID() string { return d.id }

func (d *directionalZoneDetector) Handle(ev preprocess.EnrichedTradeEvent) Emissions {
	var out Emissions

	z5 := nearestZone(ev.ZoneData.Zones5Tick, ev.Trade.Price)
	if z5 == nil {
		return out
	}

	c, ok := d.candidates[z5.BucketID]
	if !ok {
		c = &candidateZone{createdAt: ev.Trade.EventTime, center: z5.PriceLevel}
		d.candidates[z5.BucketID] = c
	}
	if c.invalid {
		return out
	}

	deviation := priceDeviation(d.grid, c.center, ev.Trade.Price)
	if deviation >= d.cfg.MaxPriceDeviation*2 {
		c.invalid = true
		if c.confirmed {
			out.addZoneUpdate(ZoneUpdate{
				DetectorID:  d.id,
				UpdateType:  ZoneInvalidated,
				ZoneType:    d.zoneType,
				PriceCenter: c.center,
				Time:        ev.Trade.EventTime,
			})
		}
		delete(d.candidates, z5.BucketID)
		return out
	}
	if deviation > d.cfg.MaxPriceDeviation {
		return out
	}

	c.volume = c.volume.Add(ev.Trade.Quantity)
	c.tradeCount++
	if d.matchesDirection(ev.Trade.AggressiveSide()) {
		c.dirVolume = c.dirVolume.Add(ev.Trade.Quantity)
	}

	if c.volume.Sign() == 0 {
		return out
	}
	dirRatio, _ := c.dirVolume.Div(c.volume).Float64()

	meetsGate := ev.Trade.EventTime.Sub(c.createdAt) >= d.cfg.MinCandidateDuration &&
		c.volume.GreaterThanOrEqual(d.cfg.MinZoneVolume) &&
		c.tradeCount >= d.cfg.MinTradeCount &&
		dirRatio >= d.cfg.DirectionalThreshold

	if !meetsGate {
		return out
	}

	aligned := d.crossTimeframeAligned(ev)
	significance := dirRatio
	if aligned {
		significance = clamp01(significance + d.cfg.CrossTimeframeBoost)
	}

	switch {
	case !c.confirmed:
		c.confirmed = true
		c.strength = c.volume
		out.addZoneUpdate(ZoneUpdate{
			DetectorID:   d.id,
			UpdateType:   ZoneCreated,
			ZoneType:     d.zoneType,
			PriceCenter:  c.center,
			Significance: significance,
			Time:         ev.Trade.EventTime,
		})
	case c.volume.GreaterThan(c.strength.Mul(decimal.NewFromFloat(1.25))):
		c.strength = c.volume
		out.addZoneUpdate(ZoneUpdate{
			DetectorID:   d.id,
			UpdateType:   ZoneStrengthened,
			ZoneType:     d.zoneType,
			PriceCenter:  c.center,
			Significance: significance,
			Time:         ev.Trade.EventTime,
		})
	}

	if aligned && significance >= d.cfg.DirectionalThreshold {
		out.addZoneSignal(ZoneSignal{
			DetectorID:        d.id,
			SignalType:        d.zoneType,
			PriceCenter:       c.center,
			ActionType:        "zone_promotion",
			Confidence:        significance,
			Urgency:           urgencyFor(significance),
			ExpectedDirection: d.expectedDirection,
			Time:              ev.Trade.EventTime,
		})
	}

	return out
}

// crossTimeframeAligned checks whether the 10-tick and 20-tick zones nearest
// this trade show the same directional bias (spec.md §4.7).
func (d *directionalZoneDetector) crossTimeframeAligned(ev preprocess.EnrichedTradeEvent) bool {
	aligned := 0
	total := 0
	for _, snaps := range [][]zone.Snapshot{ev.ZoneData.Zones10Tick, ev.ZoneData.Zones20Tick} {
		s := nearestZone(snaps, ev.Trade.Price)
		if s == nil {
			continue
		}
		total++
		agg := s.AggressiveVolume()
		if agg.Sign() == 0 {
			continue
		}
		var ratio float64
		if d.zoneType == "accumulation" {
			ratio, _ = s.AggressiveBuyVolume.Div(agg).Float64()
		} else {
			ratio, _ = s.AggressiveSellVol.Div(agg).Float64()
		}
		if ratio >= d.cfg.DirectionalThreshold {
			aligned++
		}
	}
	return total > 0 && aligned == total
}

func urgencyFor(confidence float64) Urgency {
	switch {
	case confidence >= 0.85:
		return UrgencyHigh
	case confidence >= 0.65:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

func priceDeviation(grid market.Grid, center, price market.Ticks) float64 {
	centerPrice := grid.FromTicks(center)
	if centerPrice.Sign() == 0 {
		return 0
	}
	diff := grid.FromTicks(price).Sub(centerPrice).Abs()
	ratio, _ := diff.Div(centerPrice).Float64()
	return ratio
}

// NewAccumulationDetector wires the shared engine for accumulation bias:
// aggressive buys dominate, predicting an upward break.
func NewAccumulationDetector(cfg ZoneBuildConfig, grid market.Grid) Handler {
	return newDirectionalZoneDetector("accumulation", "accumulation", cfg, grid,
		func(s market.Side) bool { return s == market.SideBuy }, DirectionUp)
}
