package detector

import (
	"orderflow-engine/internal/market"
)

// NewDistributionDetector wires the shared engine for distribution bias:
// aggressive sells dominate, predicting a downward break (spec.md §4.7,
// symmetric counterpart of accumulation).
func NewDistributionDetector(cfg ZoneBuildConfig, grid market.Grid) Handler {
	return newDirectionalZoneDetector("distribution", "distribution", cfg, grid,
		func(s market.Side) bool { return s == market.SideSell }, DirectionDown)
}
