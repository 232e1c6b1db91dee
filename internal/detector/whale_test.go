package detector

import (
	"testing"
	"time"

	"orderflow-engine/internal/baseline"
	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
)

func testWhaleConfig() WhaleDetectorConfig {
	return WhaleDetectorConfig{
		ZScoreThreshold:       2,
		VolumeSpikeMultiplier: 5,
		MinNotional:           d("1"),
	}
}

func whaleTrade(qty string, buy bool) preprocess.EnrichedTradeEvent {
	return preprocess.EnrichedTradeEvent{
		Trade: market.Trade{
			Price: 100, Quantity: d(qty), BuyerIsMaker: !buy, EventTime: time.Now(),
		},
	}
}

func TestWhaleDetectorFlagsOutlierTrade(t *testing.T) {
	wd := NewWhaleDetector(testWhaleConfig(), 1.0, baseline.New(50))

	// Feed an ordinary baseline with a little natural spread around 10.
	ordinary := []string{"8", "10", "12", "9", "11", "10"}
	for i := 0; i < 20; i++ {
		wd.Handle(whaleTrade(ordinary[i%len(ordinary)], true))
	}
	out := wd.Handle(whaleTrade("1000", true))

	if len(out.Candidates) != 1 {
		t.Fatalf("expected 1 whale candidate for an order-of-magnitude outlier, got %d", len(out.Candidates))
	}
	if out.Candidates[0].Type != "whale_alert" {
		t.Errorf("Type = %q, want whale_alert", out.Candidates[0].Type)
	}
}

func TestWhaleDetectorSkipsBelowMinNotional(t *testing.T) {
	cfg := testWhaleConfig()
	cfg.MinNotional = d("1000000")
	wd := NewWhaleDetector(cfg, 1.0, baseline.New(50))

	ordinary := []string{"8", "10", "12", "9", "11", "10"}
	for i := 0; i < 20; i++ {
		wd.Handle(whaleTrade(ordinary[i%len(ordinary)], true))
	}
	out := wd.Handle(whaleTrade("1000", true))
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate below minNotional, got %d", len(out.Candidates))
	}
}

func TestWhaleDetectorSkipsWithInsufficientHistory(t *testing.T) {
	wd := NewWhaleDetector(testWhaleConfig(), 1.0, baseline.New(50))
	out := wd.Handle(whaleTrade("1000", true))
	if len(out.Candidates) != 0 {
		t.Fatalf("expected no candidate before the baseline has enough observations, got %d", len(out.Candidates))
	}
}

func TestWhaleDetectorConfigValidateRejectsNonPositiveThreshold(t *testing.T) {
	cfg := testWhaleConfig()
	cfg.ZScoreThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive zScoreThreshold")
	}
}
