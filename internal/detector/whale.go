package detector

import (
	"orderflow-engine/internal/baseline"
	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
)

// WhaleDetectorConfig holds the thresholds for the supplemented single-trade
// statistical-anomaly detector (SPEC_FULL.md §4.12), grounded on the
// teacher's detectWhale z-score gate.
type WhaleDetectorConfig struct {
	ZScoreThreshold       float64
	VolumeSpikeMultiplier float64
	MinNotional           market.Quantity
}

func (c WhaleDetectorConfig) Validate() error {
	if err := requirePositive("zScoreThreshold", c.ZScoreThreshold); err != nil {
		return err
	}
	if err := requirePositive("volumeSpikeMultiplier", c.VolumeSpikeMultiplier); err != nil {
		return err
	}
	return requirePositive("minNotional", mustFloat(c.MinNotional))
}

// WhaleDetector flags individual trades far outside the rolling per-symbol
// volume distribution (SPEC_FULL.md §4.12).
type WhaleDetector struct {
	cfg      WhaleDetectorConfig
	tickSize float64
	calc     *baseline.Calculator
}

// NewWhaleDetector wires a whale detector over a shared baseline calculator
// (SPEC_FULL.md §4.13 — the same calculator feeds the stats egress channel).
func NewWhaleDetector(cfg WhaleDetectorConfig, tickSize float64, calc *baseline.Calculator) *WhaleDetector {
	return &WhaleDetector{cfg: cfg, tickSize: tickSize, calc: calc}
}

func (d *WhaleDetector) ID() string { return "whale_alert" }

func (d *WhaleDetector) Handle(ev preprocess.EnrichedTradeEvent) Emissions {
	var out Emissions

	qtyF, _ := ev.Trade.Quantity.Float64()
	notional := qtyF * float64(ev.Trade.Price) * d.tickSize

	snap := d.calc.Snapshot()
	d.calc.Observe(ev.Trade.Quantity, ev.Trade.Price, d.tickSize)

	if notional < mustFloat(d.cfg.MinNotional) {
		return out
	}
	if snap.Count < 2 || snap.StdDevVolume == 0 || snap.MeanVolume == 0 {
		return out
	}

	zScore := (qtyF - snap.MeanVolume) / snap.StdDevVolume
	volVsAvg := qtyF / snap.MeanVolume

	isAnomaly := zScore >= d.cfg.ZScoreThreshold || volVsAvg >= d.cfg.VolumeSpikeMultiplier
	if !isAnomaly {
		return out
	}

	side := market.SideBuy
	if ev.Trade.AggressiveSide() == market.SideSell {
		side = market.SideSell
	}

	confidence := clamp01(zScore / (d.cfg.ZScoreThreshold * 2))

	out.addCandidate(SignalCandidate{
		Type:       "whale_alert",
		Side:       side,
		Price:      ev.Trade.Price,
		Time:       ev.Trade.EventTime,
		Confidence: confidence,
		Metadata: map[string]any{
			"zScore":       zScore,
			"volVsAvg":     volVsAvg,
			"notional":     notional,
			"meanVolume":   snap.MeanVolume,
			"stdDevVolume": snap.StdDevVolume,
		},
	})
	return out
}
