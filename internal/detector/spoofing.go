package detector

import (
	"time"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/orderbook"
	"orderflow-engine/internal/preprocess"
)

// SpoofingConfig holds every threshold named in spec.md §4.9.
type SpoofingConfig struct {
	WallTicks                   market.Ticks
	MinWallSize                 market.Quantity
	RapidCancellationWindow     time.Duration
	MaxCancellationRatio        float64
	ExecutedFractionThreshold   float64 // "small fraction of wall size" gate
	LayeringDetectionLevels     int
	AlgorithmicPatternThreshold float64
}

func (c SpoofingConfig) Validate() error {
	if c.WallTicks <= 0 {
		return requirePositive("wallTicks", float64(c.WallTicks))
	}
	if err := requirePositive("minWallSize", mustFloat(c.MinWallSize)); err != nil {
		return err
	}
	if err := requirePositive("rapidCancellationWindow", float64(c.RapidCancellationWindow)); err != nil {
		return err
	}
	if err := requireRange01("maxCancellationRatio", c.MaxCancellationRatio); err != nil {
		return err
	}
	if err := requireRange01("executedFractionThreshold", c.ExecutedFractionThreshold); err != nil {
		return err
	}
	if c.LayeringDetectionLevels <= 0 {
		return requirePositive("layeringDetectionLevels", 0)
	}
	return requireRange01("algorithmicPatternThreshold", c.AlgorithmicPatternThreshold)
}

type bandSide struct {
	band int64
	side market.Side
}

type wallObservation struct {
	peakQty       market.Quantity
	peakTime      time.Time
	lastQty       market.Quantity
	lastConsumed  market.Quantity
	executedSince market.Quantity
	resolved      bool
	resolveCount  int
	lastResolved  time.Time
}

// SpoofingDetector implements spec.md §4.9: per-band (of width wallTicks)
// tracking of passive additions and subsequent cancellations.
type SpoofingDetector struct {
	cfg   SpoofingConfig
	grid  market.Grid
	walls map[bandSide]*wallObservation
}

func NewSpoofingDetector(cfg SpoofingConfig, grid market.Grid) *SpoofingDetector {
	return &SpoofingDetector{cfg: cfg, grid: grid, walls: make(map[bandSide]*wallObservation)}
}

func (d *SpoofingDetector) ID() string { return "spoofing" }

// bandID computes the integer-tick band assignment required by spec.md §4.9
// ("bandId must be computed via integer ticks").
func (d *SpoofingDetector) bandID(price market.Ticks) int64 {
	return int64(price) / int64(d.cfg.WallTicks)
}

func (d *SpoofingDetector) Handle(ev preprocess.EnrichedTradeEvent) Emissions {
	var out Emissions

	sideBands := map[bandSide]market.Quantity{}
	for _, lvl := range ev.DepthSnapshot {
		if lvl.Bid.Sign() > 0 {
			key := bandSide{band: d.bandID(lvl.Price), side: market.SideBuy}
			sideBands[key] = sideBands[key].Add(lvl.Bid)
		}
		if lvl.Ask.Sign() > 0 {
			key := bandSide{band: d.bandID(lvl.Price), side: market.SideSell}
			sideBands[key] = sideBands[key].Add(lvl.Ask)
		}
		d.trackConsumption(lvl)
	}

	var resolvedBands []int64
	layerCounts := map[market.Side]int{}
	for key, qty := range sideBands {
		w, ok := d.walls[key]
		if !ok {
			if qty.LessThan(d.cfg.MinWallSize) {
				continue
			}
			d.walls[key] = &wallObservation{peakQty: qty, peakTime: ev.Trade.EventTime, lastQty: qty}
			continue
		}
		if qty.GreaterThan(w.peakQty) {
			w.peakQty = qty
			w.peakTime = ev.Trade.EventTime
			w.resolved = false
		}
		w.lastQty = qty

		if w.resolved || w.peakQty.LessThan(d.cfg.MinWallSize) {
			continue
		}
		if ev.Trade.EventTime.Sub(w.peakTime) > d.cfg.RapidCancellationWindow {
			continue
		}
		cancelled := w.peakQty.Sub(qty)
		if cancelled.Sign() <= 0 {
			continue
		}
		cancellationRatio, _ := cancelled.Div(w.peakQty).Float64()
		if cancellationRatio < d.cfg.MaxCancellationRatio {
			continue
		}
		executedFraction := 0.0
		if w.peakQty.Sign() > 0 {
			executedFraction, _ = w.executedSince.Div(w.peakQty).Float64()
		}
		if executedFraction > d.cfg.ExecutedFractionThreshold {
			continue
		}

		w.resolved = true
		layerCounts[key.side]++
		resolvedBands = append(resolvedBands, key.band)
		if !w.lastResolved.IsZero() && ev.Trade.EventTime.Sub(w.lastResolved) < d.cfg.RapidCancellationWindow*4 {
			w.resolveCount++
		} else {
			w.resolveCount = 1
		}
		w.lastResolved = ev.Trade.EventTime

		spoofType := "fake_wall"
		if w.executedSince.Sign() == 0 {
			spoofType = "ghost_liquidity"
		}
		if layerCounts[key.side] >= d.cfg.LayeringDetectionLevels && adjacentBands(resolvedBands) {
			spoofType = "layering"
		}
		if repeatSimilarity(w.resolveCount) >= d.cfg.AlgorithmicPatternThreshold {
			spoofType = "algorithmic"
		}

		bandCenter := market.Ticks(key.band*int64(d.cfg.WallTicks)) + d.cfg.WallTicks/2
		out.addCandidate(SignalCandidate{
			DetectorID: d.ID(),
			Type:       "spoofing",
			Side:       oppositeSide(key.side),
			Price:      bandCenter,
			Time:       ev.Trade.EventTime,
			Confidence: clamp01(cancellationRatio),
			Metadata: map[string]any{
				"spoofType":         spoofType,
				"cancellationRatio": cancellationRatio,
				"executedFraction":  executedFraction,
				"wallSize":          w.peakQty.String(),
			},
		})
	}

	return out
}

// adjacentBands reports whether the resolved bands in this invocation form
// a contiguous run of at least two, the layering signature (spec.md §4.9).
func adjacentBands(bands []int64) bool {
	if len(bands) < 2 {
		return false
	}
	seen := make(map[int64]bool, len(bands))
	for _, b := range bands {
		seen[b] = true
	}
	for _, b := range bands {
		if seen[b-1] || seen[b+1] {
			return true
		}
	}
	return false
}

func (d *SpoofingDetector) trackConsumption(lvl orderbook.PassiveLevel) {
	for _, sd := range []struct {
		side     market.Side
		consumed market.Quantity
	}{
		{market.SideBuy, lvl.ConsumedBid},
		{market.SideSell, lvl.ConsumedAsk},
	} {
		key := bandSide{band: d.bandID(lvl.Price), side: sd.side}
		w, ok := d.walls[key]
		if !ok {
			continue
		}
		delta := sd.consumed.Sub(w.lastConsumed)
		if delta.Sign() > 0 {
			w.executedSince = w.executedSince.Add(delta)
		}
		w.lastConsumed = sd.consumed
	}
}

// repeatSimilarity approximates pattern-repetition confidence from how many
// times, in close succession, the same band has appeared-then-cancelled.
func repeatSimilarity(resolveCount int) float64 {
	return clamp01(float64(resolveCount-1) / 3)
}

func oppositeSide(s market.Side) market.Side {
	if s == market.SideBuy {
		return market.SideSell
	}
	return market.SideBuy
}
