package detector

import (
	"testing"
	"time"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/orderbook"
	"orderflow-engine/internal/preprocess"
)

func testSpoofingConfig() SpoofingConfig {
	return SpoofingConfig{
		WallTicks:                   10,
		MinWallSize:                 d("50"),
		RapidCancellationWindow:     time.Second,
		MaxCancellationRatio:        0.5,
		ExecutedFractionThreshold:   0.2,
		LayeringDetectionLevels:     2,
		AlgorithmicPatternThreshold: 2, // unreachable in a single test run
	}
}

func TestSpoofingDetectorFlagsRapidWallCancellation(t *testing.T) {
	sd := NewSpoofingDetector(testSpoofingConfig(), market.NewGrid(d("0.01")))
	start := time.Now()

	// First invocation: a 100-unit bid wall appears at price 100 (band 10).
	sd.Handle(preprocess.EnrichedTradeEvent{
		Trade:         market.Trade{EventTime: start},
		DepthSnapshot: []orderbook.PassiveLevel{{Price: 100, Bid: d("100")}},
	})

	// Second invocation, shortly after: the wall has shrunk to 10 units
	// without being executed against — a cancellation, not a fill.
	out := sd.Handle(preprocess.EnrichedTradeEvent{
		Trade:         market.Trade{EventTime: start.Add(100 * time.Millisecond)},
		DepthSnapshot: []orderbook.PassiveLevel{{Price: 100, Bid: d("10")}},
	})

	if len(out.Candidates) != 1 {
		t.Fatalf("expected 1 spoofing candidate, got %d", len(out.Candidates))
	}
	c := out.Candidates[0]
	if c.Type != "spoofing" {
		t.Errorf("Type = %q, want spoofing", c.Type)
	}
	if c.Side != market.SideSell {
		t.Errorf("a cancelled bid wall should signal sell side, got %s", c.Side)
	}
}

func TestSpoofingDetectorIgnoresWallsBelowMinSize(t *testing.T) {
	sd := NewSpoofingDetector(testSpoofingConfig(), market.NewGrid(d("0.01")))
	start := time.Now()

	sd.Handle(preprocess.EnrichedTradeEvent{
		Trade:         market.Trade{EventTime: start},
		DepthSnapshot: []orderbook.PassiveLevel{{Price: 100, Bid: d("5")}},
	})
	out := sd.Handle(preprocess.EnrichedTradeEvent{
		Trade:         market.Trade{EventTime: start.Add(100 * time.Millisecond)},
		DepthSnapshot: []orderbook.PassiveLevel{{Price: 100, Bid: d("0")}},
	})
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate for a sub-threshold wall, got %d", len(out.Candidates))
	}
}

func TestSpoofingDetectorIgnoresCancellationOutsideWindow(t *testing.T) {
	sd := NewSpoofingDetector(testSpoofingConfig(), market.NewGrid(d("0.01")))
	start := time.Now()

	sd.Handle(preprocess.EnrichedTradeEvent{
		Trade:         market.Trade{EventTime: start},
		DepthSnapshot: []orderbook.PassiveLevel{{Price: 100, Bid: d("100")}},
	})
	out := sd.Handle(preprocess.EnrichedTradeEvent{
		Trade:         market.Trade{EventTime: start.Add(10 * time.Second)},
		DepthSnapshot: []orderbook.PassiveLevel{{Price: 100, Bid: d("10")}},
	})
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate once the rapid-cancellation window has passed, got %d", len(out.Candidates))
	}
}

func TestSpoofingConfigValidateRejectsZeroWallTicks(t *testing.T) {
	cfg := testSpoofingConfig()
	cfg.WallTicks = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero wallTicks")
	}
}
