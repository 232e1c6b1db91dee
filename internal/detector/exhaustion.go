package detector

import (
	"time"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
)

// ExhaustionConfig holds every threshold named in spec.md §4.6.
type ExhaustionConfig struct {
	MinAggVolume                   market.Quantity
	MinTradeCount                  int
	WindowDuration                 time.Duration
	ExhaustionThreshold            float64
	EnableDepletionAnalysis        bool
	DepletionVolumeThreshold       market.Quantity
	DepletionRatioThreshold        float64
	RatioBalanceCenterPoint        float64
	MinEnhancedConfidenceThreshold float64
}

func (c ExhaustionConfig) Validate() error {
	if err := requirePositive("minAggVolume", mustFloat(c.MinAggVolume)); err != nil {
		return err
	}
	if c.MinTradeCount <= 0 {
		return requirePositive("minTradeCount", 0)
	}
	if err := requirePositive("windowDuration", float64(c.WindowDuration)); err != nil {
		return err
	}
	if err := requireRange01("exhaustionThreshold", c.ExhaustionThreshold); err != nil {
		return err
	}
	if err := requireRange01("depletionRatioThreshold", c.DepletionRatioThreshold); err != nil {
		return err
	}
	if err := requireRange01("ratioBalanceCenterPoint", c.RatioBalanceCenterPoint); err != nil {
		return err
	}
	return requireRange01("minEnhancedConfidenceThreshold", c.MinEnhancedConfidenceThreshold)
}

type exhaustionWindow struct {
	start             time.Time
	tradeCount        int
	aggVolume         market.Quantity
	initialPassiveBid market.Quantity
	initialPassiveAsk market.Quantity
}

// ExhaustionDetector implements spec.md §4.6. State is keyed by the nearest
// 5-tick zone bucket id so each price neighborhood tracks its own window.
type ExhaustionDetector struct {
	cfg     ExhaustionConfig
	windows map[int64]*exhaustionWindow
}

func NewExhaustionDetector(cfg ExhaustionConfig) *ExhaustionDetector {
	return &ExhaustionDetector{cfg: cfg, windows: make(map[int64]*exhaustionWindow)}
}

func (d *ExhaustionDetector) ID() string { return "exhaustion" }

func (d *ExhaustionDetector) Handle(ev preprocess.EnrichedTradeEvent) Emissions {
	var out Emissions

	z := nearestZone(ev.ZoneData.Zones5Tick, ev.Trade.Price)
	if z == nil {
		return out
	}

	w, ok := d.windows[z.BucketID]
	if !ok || ev.Trade.EventTime.Sub(w.start) > d.cfg.WindowDuration {
		w = &exhaustionWindow{
			start:             ev.Trade.EventTime,
			initialPassiveBid: z.PassiveBidVolume,
			initialPassiveAsk: z.PassiveAskVolume,
		}
		d.windows[z.BucketID] = w
	}
	w.tradeCount++
	w.aggVolume = w.aggVolume.Add(ev.Trade.Quantity)

	if w.aggVolume.LessThan(d.cfg.MinAggVolume) || w.tradeCount < d.cfg.MinTradeCount {
		return out
	}

	aggressiveSide := ev.Trade.AggressiveSide()

	var initial, remaining market.Quantity
	if aggressiveSide == market.SideSell {
		// Aggressive sells consume bid liquidity.
		initial, remaining = w.initialPassiveBid, z.PassiveBidVolume
	} else {
		initial, remaining = w.initialPassiveAsk, z.PassiveAskVolume
	}
	if initial.Sign() == 0 {
		return out
	}

	remainingRatio, _ := remaining.Div(initial).Float64()
	exhaustionRatio := 1 - remainingRatio
	if exhaustionRatio < d.cfg.ExhaustionThreshold {
		return out
	}

	if d.cfg.EnableDepletionAnalysis {
		if w.aggVolume.LessThan(d.cfg.DepletionVolumeThreshold) {
			return out
		}
		consumed := initial.Sub(remaining)
		perTickDepletion, _ := consumed.Div(initial).Float64()
		if perTickDepletion < d.cfg.DepletionRatioThreshold {
			return out
		}
	}

	total := z.PassiveBidVolume.Add(z.PassiveAskVolume)
	var balance float64
	if total.Sign() > 0 {
		balance, _ = z.PassiveBidVolume.Div(total).Float64()
	}
	imbalance := balance - d.cfg.RatioBalanceCenterPoint
	if imbalance < 0 {
		imbalance = -imbalance
	}

	score := exhaustionRatio*0.7 + imbalance*0.3
	if score < d.cfg.MinEnhancedConfidenceThreshold {
		return out
	}

	// Ask exhaustion (aggressive buys depleting asks) predicts an upside
	// break; bid exhaustion predicts a downside break.
	side := market.SideSell
	if aggressiveSide == market.SideBuy {
		side = market.SideBuy
	}

	out.addCandidate(SignalCandidate{
		Type:       "exhaustion",
		Side:       side,
		Price:      ev.Trade.Price,
		Time:       ev.Trade.EventTime,
		Confidence: clamp01(score),
		Metadata: map[string]any{
			"exhaustionRatio": exhaustionRatio,
			"ratioBalance":    balance,
		},
	})
	return out
}
