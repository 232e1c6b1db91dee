package detector

import (
	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
	"orderflow-engine/internal/zone"
)

// AbsorptionConfig holds every threshold named in spec.md §4.5. No detector
// call site compares against a literal; every constant lives here.
type AbsorptionConfig struct {
	MinAggVolume                  market.Quantity
	MaxAbsorptionRatio            float64
	MinPassiveMultiplier          float64
	ExpectedMovementScalingFactor float64
	PriceEfficiencyThreshold      float64
	ConfluenceMinZones            int
	ConfluenceMaxDistance         market.Ticks
	ConfluenceConfidenceBoost     float64
	MinAbsorptionScore            float64
	FinalConfidenceRequired       float64
}

// Validate rejects out-of-range thresholds at startup (spec.md §7 item 4).
func (c AbsorptionConfig) Validate() error {
	if err := requirePositive("minAggVolume", mustFloat(c.MinAggVolume)); err != nil {
		return err
	}
	if err := requireRange01("maxAbsorptionRatio", c.MaxAbsorptionRatio); err != nil {
		return err
	}
	if err := requirePositive("minPassiveMultiplier", c.MinPassiveMultiplier); err != nil {
		return err
	}
	if err := requirePositive("expectedMovementScalingFactor", c.ExpectedMovementScalingFactor); err != nil {
		return err
	}
	if err := requirePositive("priceEfficiencyThreshold", c.PriceEfficiencyThreshold); err != nil {
		return err
	}
	if c.ConfluenceMinZones < 0 {
		return requirePositive("confluenceMinZones", -1)
	}
	if err := requireRange01("confluenceConfidenceBoost", c.ConfluenceConfidenceBoost); err != nil {
		return err
	}
	if err := requireRange01("minAbsorptionScore", c.MinAbsorptionScore); err != nil {
		return err
	}
	return requireRange01("finalConfidenceRequired", c.FinalConfidenceRequired)
}

// AbsorptionDetector implements spec.md §4.5.
type AbsorptionDetector struct {
	cfg   AbsorptionConfig
	grid  market.Grid
	first market.Ticks
	seen  bool
}

// NewAbsorptionDetector constructs the handler; wrap with NewBase for use.
func NewAbsorptionDetector(cfg AbsorptionConfig, grid market.Grid) *AbsorptionDetector {
	return &AbsorptionDetector{cfg: cfg, grid: grid}
}

func (d *AbsorptionDetector) ID() string { return "absorption" }

func (d *AbsorptionDetector) Handle(ev preprocess.EnrichedTradeEvent) Emissions {
	var out Emissions

	z5 := nearestZone(ev.ZoneData.Zones5Tick, ev.Trade.Price)
	if z5 == nil {
		return out
	}

	aggVol := z5.AggressiveVolume()
	if aggVol.LessThan(d.cfg.MinAggVolume) {
		return out
	}

	passiveVol := z5.PassiveVolume()
	total := aggVol.Add(passiveVol)
	if total.Sign() == 0 {
		return out
	}
	absorptionRatio, _ := aggVol.Div(total).Float64()
	if absorptionRatio > d.cfg.MaxAbsorptionRatio {
		return out
	}

	if aggVol.Sign() == 0 {
		return out
	}
	passiveMultiplier, _ := passiveVol.Div(aggVol).Float64()
	if passiveMultiplier < d.cfg.MinPassiveMultiplier {
		return out
	}

	if !d.seen {
		d.first = ev.Trade.Price
		d.seen = true
	}
	priceRange := ev.Trade.Price - d.first
	if priceRange < 0 {
		priceRange = -priceRange
	}
	aggFloat, _ := aggVol.Float64()
	tickFloat, _ := d.grid.TickSize().Float64()
	expectedMovement := aggFloat * d.cfg.ExpectedMovementScalingFactor * tickFloat
	if expectedMovement == 0 {
		return out
	}
	priceEfficiency := float64(priceRange) / expectedMovement
	if priceEfficiency > d.cfg.PriceEfficiencyThreshold {
		return out
	}

	confluenceZones := 0
	for _, res := range [][]zone.Snapshot{ev.ZoneData.Zones10Tick, ev.ZoneData.Zones20Tick} {
		for _, s := range res {
			if tickDistance(s.PriceLevel, ev.Trade.Price) <= d.cfg.ConfluenceMaxDistance {
				confluenceZones++
			}
		}
	}

	score := (1 - absorptionRatio) * (passiveMultiplier / (passiveMultiplier + 1)) * (1 - priceEfficiency)
	if confluenceZones >= d.cfg.ConfluenceMinZones {
		score += d.cfg.ConfluenceConfidenceBoost
	}
	if score < d.cfg.MinAbsorptionScore {
		return out
	}

	// Bid-side absorption (aggressive sells absorbed by resting bids) implies
	// an upward reversal; ask-side absorption implies a downward one.
	side := market.SideBuy
	if ev.Trade.AggressiveSide() == market.SideBuy {
		side = market.SideSell
	}

	confidence := clamp01(d.cfg.FinalConfidenceRequired * score)

	out.addCandidate(SignalCandidate{
		Type:       "absorption",
		Side:       side,
		Price:      ev.Trade.Price,
		Time:       ev.Trade.EventTime,
		Confidence: confidence,
		Metadata: map[string]any{
			"absorptionRatio":   absorptionRatio,
			"passiveMultiplier": passiveMultiplier,
			"priceEfficiency":   priceEfficiency,
			"confluenceZones":   confluenceZones,
		},
	})
	return out
}

func nearestZone(snaps []zone.Snapshot, price market.Ticks) *zone.Snapshot {
	var best *zone.Snapshot
	var bestDist market.Ticks = 1 << 62
	for i := range snaps {
		d := tickDistance(snaps[i].PriceLevel, price)
		if best == nil || d < bestDist {
			best, bestDist = &snaps[i], d
		}
	}
	return best
}

func tickDistance(a, b market.Ticks) market.Ticks {
	if a > b {
		return a - b
	}
	return b - a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mustFloat(q market.Quantity) float64 {
	f, _ := q.Float64()
	return f
}
