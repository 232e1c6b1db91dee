package ingest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/orderbook"
	"orderflow-engine/internal/perrors"
)

// ToMarketTrade decodes a wire Trade's decimal strings onto the tick grid,
// rejecting NaN/negative quantities and off-grid prices (spec.md §4.1
// "Failure model", §7 taxonomy item 1).
func ToMarketTrade(grid market.Grid, t Trade) (market.Trade, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return market.Trade{}, fmt.Errorf("ingest: trade price %q: %w: %w", t.Price, perrors.ErrMalformed, err)
	}
	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return market.Trade{}, fmt.Errorf("ingest: trade quantity %q: %w: %w", t.Quantity, perrors.ErrMalformed, err)
	}
	if qty.Sign() < 0 {
		return market.Trade{}, fmt.Errorf("ingest: trade quantity %s negative: %w", qty, perrors.ErrMalformed)
	}
	if !grid.IsAligned(price) {
		return market.Trade{}, fmt.Errorf("ingest: trade price %s off tick grid: %w", price, perrors.ErrMalformed)
	}
	ticks, err := grid.ToTicks(price)
	if err != nil {
		return market.Trade{}, fmt.Errorf("ingest: trade price %s: %w: %w", price, perrors.ErrMalformed, err)
	}

	return market.Trade{
		TradeID:      t.TradeID,
		EventTime:    time.UnixMilli(t.EventTimeMs),
		Price:        ticks,
		Quantity:     qty,
		BuyerIsMaker: t.BuyerIsMaker,
	}, nil
}

// ToDepthUpdates decodes a wire DepthUpdate's bid/ask entries onto the book's
// DepthUpdate shape, skipping and counting malformed entries rather than
// failing the whole batch.
func ToDepthUpdates(grid market.Grid, bids, asks []PriceLevel) (updates []orderbook.DepthUpdate, rejected int) {
	byPrice := make(map[market.Ticks]*orderbook.DepthUpdate)

	add := func(levels []PriceLevel, isBid bool) {
		for _, lvl := range levels {
			price, err := decimal.NewFromString(lvl.Price)
			if err != nil {
				rejected++
				continue
			}
			qty, err := decimal.NewFromString(lvl.Quantity)
			if err != nil || qty.Sign() < 0 {
				rejected++
				continue
			}
			if !grid.IsAligned(price) {
				rejected++
				continue
			}
			ticks, err := grid.ToTicks(price)
			if err != nil {
				rejected++
				continue
			}
			u, ok := byPrice[ticks]
			if !ok {
				u = &orderbook.DepthUpdate{Price: ticks}
				byPrice[ticks] = u
			}
			if isBid {
				u.Bid = qty
			} else {
				u.Ask = qty
			}
		}
	}

	add(bids, true)
	add(asks, false)

	updates = make([]orderbook.DepthUpdate, 0, len(byPrice))
	for _, u := range byPrice {
		updates = append(updates, *u)
	}
	return updates, rejected
}
