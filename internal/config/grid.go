package config

import (
	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
)

func newGridFromTickSize(tickSize decimal.Decimal) market.Grid {
	return market.NewGrid(tickSize)
}

func getEnvTicks(key string, defaultValue int64) market.Ticks {
	return market.Ticks(getEnvInt64(key, defaultValue))
}
