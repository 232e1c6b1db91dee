// Package preprocess implements the OrderFlowPreprocessor (spec.md §4.2):
// the single point where raw trades and depth updates become detector
// inputs, attaching passive/aggressive context and a multi-resolution zone
// snapshot to every trade.
package preprocess

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/orderbook"
	"orderflow-engine/internal/zone"
)

// EnrichedTradeEvent is the sole input detectors operate on (spec.md §3).
// It is ephemeral: built per trade, passed through detectors, never
// retained by the preprocessor itself.
type EnrichedTradeEvent struct {
	Trade                market.Trade
	PassiveBidVolume     market.Quantity
	PassiveAskVolume     market.Quantity
	ZonePassiveBidVolume market.Quantity
	ZonePassiveAskVolume market.Quantity
	BestBid              market.Ticks
	BestAsk              market.Ticks
	HasBestBid           bool
	HasBestAsk           bool
	Spread               market.Ticks
	MidPrice             market.Ticks
	DepthSnapshot        []orderbook.PassiveLevel
	ZoneData             zone.StandardZoneData
}

// Config bounds the depth snapshot window attached to every enriched trade.
type Config struct {
	Grid               market.Grid
	DepthHalfWidth     market.Ticks
	ZoneHalfWidthTicks market.Ticks
}

// Preprocessor owns no state beyond wiring the book and zone aggregator
// together; the book and aggregator are the sole owners of their data
// (spec.md §3 Ownership).
type Preprocessor struct {
	cfg  Config
	book *orderbook.Book
	zon  *zone.Aggregator

	lastEmittedTime time.Time
}

// New constructs a preprocessor over an existing book and zone aggregator.
func New(cfg Config, book *orderbook.Book, zon *zone.Aggregator) *Preprocessor {
	return &Preprocessor{cfg: cfg, book: book, zon: zon}
}

// ErrOutOfOrder is returned when a trade's eventTime precedes the last
// emitted event's eventTime, violating the strict-ordering invariant
// (spec.md §5, testable property 3).
var ErrOutOfOrder = fmt.Errorf("preprocess: trade event time precedes previously emitted event")

// OnTrade applies trade to the book, folds it into the zone aggregator, and
// returns the resulting EnrichedTradeEvent (spec.md §4.2 steps 1-5).
func (p *Preprocessor) OnTrade(t market.Trade) (EnrichedTradeEvent, error) {
	if !p.lastEmittedTime.IsZero() && t.EventTime.Before(p.lastEmittedTime) {
		return EnrichedTradeEvent{}, ErrOutOfOrder
	}

	passiveBefore := p.book.ApplyTrade(t.Price, t.Quantity, t.BuyerIsMaker, t.EventTime)

	var passiveBid, passiveAsk market.Quantity
	if t.BuyerIsMaker {
		passiveBid = passiveBefore
	} else {
		passiveAsk = passiveBefore
	}

	p.zon.OnTrade(t.Price, t.Quantity, t.AggressiveSide(), t.EventTime)

	zoneData := p.zon.BuildStandardZoneData(t.Price, t.EventTime)
	zBid, zAsk := zonePassiveAround(zoneData, t.Price)

	bestBid, hasBid := p.book.BestBid()
	bestAsk, hasAsk := p.book.BestAsk()

	var spread, mid market.Ticks
	if hasBid && hasAsk {
		spread = bestAsk - bestBid
		mid = (bestAsk + bestBid) / 2
	}

	ev := EnrichedTradeEvent{
		Trade:                t,
		PassiveBidVolume:     passiveBid,
		PassiveAskVolume:     passiveAsk,
		ZonePassiveBidVolume: zBid,
		ZonePassiveAskVolume: zAsk,
		BestBid:              bestBid,
		BestAsk:              bestAsk,
		HasBestBid:           hasBid,
		HasBestAsk:           hasAsk,
		Spread:               spread,
		MidPrice:             mid,
		DepthSnapshot:        p.book.SnapshotNear(t.Price, p.cfg.DepthHalfWidth),
		ZoneData:             zoneData,
	}

	p.lastEmittedTime = t.EventTime
	return ev, nil
}

// OnDepth applies a batch of depth updates to the book and the zone
// aggregator's passive side (spec.md §4.2 "For each depth update").
func (p *Preprocessor) OnDepth(updates []orderbook.DepthUpdate, eventTime time.Time) {
	before := make([]orderbook.PassiveLevel, len(updates))
	for i, u := range updates {
		before[i] = p.book.LevelAt(u.Price)
	}

	p.book.ApplyDepth(updates, eventTime)

	for i, u := range updates {
		bidDelta := u.Bid.Sub(before[i].Bid)
		askDelta := u.Ask.Sub(before[i].Ask)
		p.zon.OnDepth(u.Price, bidDelta, askDelta, eventTime)
	}
}

// zonePassiveAround picks the nearest 5-tick zone's passive sides as the
// representative zone-level passive context for a trade at price (spec.md
// §3 zonePassiveBidVolume/zonePassiveAskVolume).
func zonePassiveAround(z zone.StandardZoneData, price market.Ticks) (bid, ask market.Quantity) {
	best := zone.Snapshot{}
	found := false
	bestDist := market.Ticks(1 << 62)
	for _, s := range z.Zones5Tick {
		d := s.PriceLevel - price
		if d < 0 {
			d = -d
		}
		if !found || d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	if !found {
		return decimal.Zero, decimal.Zero
	}
	return best.PassiveBidVolume, best.PassiveAskVolume
}
