package config

import (
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/coordinator"
)

func TestValidateRejectsNonPositiveTickSize(t *testing.T) {
	c := &Config{Symbol: "BTCUSDT", TickSize: decimal.Zero}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero tick size")
	}
}

func TestValidateRejectsEmptySymbol(t *testing.T) {
	c := &Config{TickSize: decimal.NewFromFloat(0.01)}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestValidatePropagatesSubConfigErrors(t *testing.T) {
	c := &Config{
		Symbol:      "BTCUSDT",
		TickSize:    decimal.NewFromFloat(0.01),
		Coordinator: coordinator.Config{DedupTolerance: -1},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error to propagate from an invalid sub-config")
	}
}
