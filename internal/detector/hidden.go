package detector

import (
	"time"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
)

// HiddenOrderConfig holds every threshold named in spec.md §4.10.
type HiddenOrderConfig struct {
	PriceTolerance  market.Ticks
	MaxDepthAge     time.Duration
	MinHiddenVolume market.Quantity
	MinTradeSize    market.Quantity
}

func (c HiddenOrderConfig) Validate() error {
	if c.PriceTolerance < 0 {
		return requirePositive("priceTolerance", -1)
	}
	if err := requirePositive("maxDepthAge", float64(c.MaxDepthAge)); err != nil {
		return err
	}
	if err := requirePositive("minHiddenVolume", mustFloat(c.MinHiddenVolume)); err != nil {
		return err
	}
	return requirePositive("minTradeSize", mustFloat(c.MinTradeSize))
}

// HiddenOrderDetector implements spec.md §4.10.
type HiddenOrderDetector struct {
	cfg HiddenOrderConfig
}

func NewHiddenOrderDetector(cfg HiddenOrderConfig) *HiddenOrderDetector {
	return &HiddenOrderDetector{cfg: cfg}
}

func (d *HiddenOrderDetector) ID() string { return "hidden_liquidity" }

func (d *HiddenOrderDetector) Handle(ev preprocess.EnrichedTradeEvent) Emissions {
	var out Emissions

	if ev.Trade.Quantity.LessThan(d.cfg.MinTradeSize) {
		return out
	}

	// depthSnapshot is built synchronously with the trade; MaxDepthAge only
	// matters once snapshots can be sourced asynchronously (reconnect replay).
	_ = d.cfg.MaxDepthAge

	// DepthSnapshot is taken after ApplyTrade already consumed the traded
	// level, so it cannot tell us what was visible before the trade. The
	// preprocessor preserves that pre-consumption quantity separately as
	// PassiveBidVolume/PassiveAskVolume; start from that and only fall back
	// to DepthSnapshot for neighboring levels within PriceTolerance, which
	// this trade did not touch.
	takenSide := ev.Trade.AggressiveSide()
	var visible market.Quantity
	if takenSide == market.SideSell {
		visible = ev.PassiveBidVolume
	} else {
		visible = ev.PassiveAskVolume
	}
	for _, lvl := range ev.DepthSnapshot {
		if lvl.Price == ev.Trade.Price {
			continue
		}
		if tickDistance(lvl.Price, ev.Trade.Price) > d.cfg.PriceTolerance {
			continue
		}
		if takenSide == market.SideSell {
			visible = visible.Add(lvl.Bid)
		} else {
			visible = visible.Add(lvl.Ask)
		}
	}

	executed := ev.Trade.Quantity
	if executed.LessThanOrEqual(visible) {
		return out
	}
	hidden := executed.Sub(visible)
	if hidden.LessThan(d.cfg.MinHiddenVolume) {
		return out
	}

	hiddenPct, _ := hidden.Div(executed).Float64()
	executedF, _ := executed.Float64()
	hiddenF, _ := hidden.Float64()
	confidence := clamp01(hiddenPct*0.6 + clamp01(hiddenF/executedF)*0.4)

	side := market.SideBuy
	if takenSide == market.SideSell {
		side = market.SideSell
	}

	out.addCandidate(SignalCandidate{
		Type:       "hidden_liquidity",
		Side:       side,
		Price:      ev.Trade.Price,
		Time:       ev.Trade.EventTime,
		Confidence: confidence,
		Metadata: map[string]any{
			"executedVolume":   executed.String(),
			"visibleVolume":    visible.String(),
			"hiddenVolume":     hidden.String(),
			"hiddenPercentage": hiddenPct,
		},
	})
	return out
}
