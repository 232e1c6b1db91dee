package market

import "time"

// Side is the directional bias of a signal or a passive book side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is the raw trade event as delivered by the exchange adapter
// (buyerIsMaker = true means the taker was a seller, i.e. an aggressive
// sell against resting bids).
type Trade struct {
	TradeID      int64
	EventTime    time.Time
	Price        Ticks
	Quantity     Quantity
	BuyerIsMaker bool
}

// AggressiveSide reports which side of the book this trade's aggressive
// flow hit: a buyer-is-maker trade is an aggressive sell (it consumed bid
// liquidity); otherwise it is an aggressive buy (it consumed ask liquidity).
func (t Trade) AggressiveSide() Side {
	if t.BuyerIsMaker {
		return SideSell
	}
	return SideBuy
}
