// Package orderbook maintains the tick-accurate per-price passive liquidity
// state machine described in spec.md §4.1. A Book owns its PassiveLevel
// storage exclusively; consumers only ever see copies via Snapshot or the
// scalar accessors.
package orderbook

import (
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"

	"orderflow-engine/internal/market"
)

// PassiveLevel is a single tick-aligned resting-order level. At most one of
// Bid/Ask is non-zero at any instant (bid/ask disjointness, spec.md §4.1).
type PassiveLevel struct {
	Price       market.Ticks
	Bid         market.Quantity
	Ask         market.Quantity
	AddedBid    market.Quantity
	ConsumedBid market.Quantity
	AddedAsk    market.Quantity
	ConsumedAsk market.Quantity
	LastUpdate  time.Time
}

func (l PassiveLevel) isEmpty() bool {
	return l.Bid.Sign() == 0 && l.Ask.Sign() == 0
}

// Config bounds the book's retention and eviction behavior (spec.md §4.1,
// §6 Configuration surface: maxLevels, pruneIntervalMs, maxAge,
// maxDistanceFromMid).
type Config struct {
	Grid               market.Grid
	MaxAge             time.Duration
	MaxDistanceFromMid market.Ticks
	MaxLevels          int
	PruneEvery         int // inline compaction runs every Nth applyDepth call
}

// Stats counts rejected/accepted updates for observability, per the
// malformed-input error taxonomy (spec.md §7.1).
type Stats struct {
	RejectedUpdates  int64
	EvictedLevels    int64
	SyntheticConsume int64
}

// Book is the single owner of PassiveLevel state for one symbol. All methods
// are safe for concurrent use, but the pipeline's single-processing-thread
// model means the mutex is only ever contended by read-only snapshot callers
// (dashboard export, test assertions).
type Book struct {
	cfg Config

	mu        sync.RWMutex
	levels    *btree.BTreeG[*PassiveLevel]
	byPrice   map[market.Ticks]*PassiveLevel
	bestBidT  market.Ticks
	bestAskT  market.Ticks
	hasBid    bool
	hasAsk    bool
	applyCall int64
	stats     Stats
}

// New constructs an empty book for the given configuration.
func New(cfg Config) *Book {
	return &Book{
		cfg: cfg,
		levels: btree.NewBTreeG(func(a, b *PassiveLevel) bool {
			return a.Price < b.Price
		}),
		byPrice: make(map[market.Ticks]*PassiveLevel),
	}
}

// DepthUpdate is a single (price, bid, ask) absolute-quantity update, per
// spec.md §3 DepthDelta — a quantity of 0 removes that side.
type DepthUpdate struct {
	Price market.Ticks
	Bid   market.Quantity
	Ask   market.Quantity
}

// ApplyDepth applies a batch of depth updates at eventTime, enforcing
// bid/ask disjointness atomically per price (spec.md §4.1).
func (b *Book) ApplyDepth(updates []DepthUpdate, eventTime time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, u := range updates {
		if u.Bid.Sign() < 0 || u.Ask.Sign() < 0 {
			b.stats.RejectedUpdates++
			continue
		}
		b.applyOneLocked(u, eventTime)
	}

	b.applyCall++
	if b.cfg.PruneEvery > 0 && b.applyCall%int64(b.cfg.PruneEvery) == 0 {
		b.compactLocked(eventTime)
	}
}

func (b *Book) applyOneLocked(u DepthUpdate, eventTime time.Time) {
	lvl, ok := b.byPrice[u.Price]
	if !ok {
		lvl = &PassiveLevel{Price: u.Price}
		b.byPrice[u.Price] = lvl
		b.levels.Set(lvl)
	}

	prevBid, prevAsk := lvl.Bid, lvl.Ask

	// Bid/ask disjointness: setting one side positive clears the other,
	// as a single atomic step (spec.md §4.1).
	switch {
	case u.Bid.Sign() > 0 && u.Ask.Sign() > 0:
		// Malformed: an update cannot simultaneously claim both sides are
		// resting at the same price. Prefer the bid, per the exchange's
		// "last write authoritative" semantics, and reject the ask half.
		lvl.Bid = u.Bid
		lvl.Ask = market.ZeroQty
	case u.Bid.Sign() > 0:
		lvl.Bid = u.Bid
		lvl.Ask = market.ZeroQty
	case u.Ask.Sign() > 0:
		lvl.Ask = u.Ask
		lvl.Bid = market.ZeroQty
	default:
		lvl.Bid = market.ZeroQty
		lvl.Ask = market.ZeroQty
	}

	if lvl.Bid.GreaterThan(prevBid) {
		lvl.AddedBid = lvl.AddedBid.Add(lvl.Bid.Sub(prevBid))
	} else if lvl.Bid.LessThan(prevBid) {
		lvl.ConsumedBid = lvl.ConsumedBid.Add(prevBid.Sub(lvl.Bid))
	}
	if lvl.Ask.GreaterThan(prevAsk) {
		lvl.AddedAsk = lvl.AddedAsk.Add(lvl.Ask.Sub(prevAsk))
	} else if lvl.Ask.LessThan(prevAsk) {
		lvl.ConsumedAsk = lvl.ConsumedAsk.Add(prevAsk.Sub(lvl.Ask))
	}

	lvl.LastUpdate = eventTime
	b.refreshBestLocked()
}

// ApplyTrade consumes the opposite passive side at the trade's price. If no
// matching level exists, records a synthetic consumption against a zero
// level — this feeds the hidden-order detector (spec.md §4.1, §4.10).
// Returns the passive quantity observed at the trade price immediately
// before this consumption, for the preprocessor to snapshot.
func (b *Book) ApplyTrade(price market.Ticks, qty market.Quantity, buyerIsMaker bool, eventTime time.Time) (passiveBefore market.Quantity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lvl, ok := b.byPrice[price]
	if !ok {
		lvl = &PassiveLevel{Price: price}
		b.byPrice[price] = lvl
		b.levels.Set(lvl)
		b.stats.SyntheticConsume++
	}

	// buyerIsMaker => aggressive sell => consumes bid liquidity.
	if buyerIsMaker {
		passiveBefore = lvl.Bid
		consumed := qty
		if consumed.GreaterThan(lvl.Bid) {
			consumed = lvl.Bid
			if ok && qty.GreaterThan(lvl.Bid) {
				b.stats.SyntheticConsume++
			}
		}
		lvl.ConsumedBid = lvl.ConsumedBid.Add(consumed)
		lvl.Bid = lvl.Bid.Sub(consumed)
	} else {
		passiveBefore = lvl.Ask
		consumed := qty
		if consumed.GreaterThan(lvl.Ask) {
			consumed = lvl.Ask
			if ok && qty.GreaterThan(lvl.Ask) {
				b.stats.SyntheticConsume++
			}
		}
		lvl.ConsumedAsk = lvl.ConsumedAsk.Add(consumed)
		lvl.Ask = lvl.Ask.Sub(consumed)
	}

	lvl.LastUpdate = eventTime
	b.refreshBestLocked()
	return passiveBefore
}

func (b *Book) refreshBestLocked() {
	b.hasBid, b.hasAsk = false, false
	b.levels.Reverse(func(lvl *PassiveLevel) bool {
		if lvl.Bid.Sign() > 0 {
			b.bestBidT = lvl.Price
			b.hasBid = true
			return false
		}
		return true
	})
	b.levels.Scan(func(lvl *PassiveLevel) bool {
		if lvl.Ask.Sign() > 0 {
			b.bestAskT = lvl.Price
			b.hasAsk = true
			return false
		}
		return true
	})
}

// BestBid returns the highest tick with resting bid quantity.
func (b *Book) BestBid() (market.Ticks, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBidT, b.hasBid
}

// BestAsk returns the lowest tick with resting ask quantity.
func (b *Book) BestAsk() (market.Ticks, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestAskT, b.hasAsk
}

// Spread returns BestAsk-BestBid in ticks, or an error if either side is
// empty.
func (b *Book) Spread() (market.Ticks, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasBid || !b.hasAsk {
		return 0, fmt.Errorf("orderbook: spread undefined, missing side")
	}
	return b.bestAskT - b.bestBidT, nil
}

// MidPrice returns the average of BestBid and BestAsk in ticks (integer
// division truncates; callers needing the half-tick remainder should use
// BestBid/BestAsk directly).
func (b *Book) MidPrice() (market.Ticks, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasBid || !b.hasAsk {
		return 0, fmt.Errorf("orderbook: mid price undefined, missing side")
	}
	return (b.bestBidT + b.bestAskT) / 2, nil
}

// LevelAt returns a copy of the level at price, or the zero value if absent.
func (b *Book) LevelAt(price market.Ticks) PassiveLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if lvl, ok := b.byPrice[price]; ok {
		return *lvl
	}
	return PassiveLevel{Price: price}
}

// SnapshotNear returns an immutable, ordered view of levels within
// ±halfWidthTicks of price (spec.md §4.1).
func (b *Book) SnapshotNear(price market.Ticks, halfWidthTicks market.Ticks) []PassiveLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lo, hi := price-halfWidthTicks, price+halfWidthTicks
	out := make([]PassiveLevel, 0, 2*int(halfWidthTicks)+1)
	b.levels.Ascend(&PassiveLevel{Price: lo}, func(lvl *PassiveLevel) bool {
		if lvl.Price > hi {
			return false
		}
		out = append(out, *lvl)
		return true
	})
	return out
}

// Stats returns a copy of the current rejection/eviction counters.
func (b *Book) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// compactLocked evicts levels that are zero on both sides and stale past
// MaxAge, plus levels farther than MaxDistanceFromMid from the current mid.
// Runs under the write lock, called inline every PruneEvery updates rather
// than from a background goroutine, per spec.md §4.1.
func (b *Book) compactLocked(now time.Time) {
	var mid market.Ticks
	haveMid := b.hasBid && b.hasAsk
	if haveMid {
		mid = (b.bestBidT + b.bestAskT) / 2
	}

	var toRemove []market.Ticks
	b.levels.Scan(func(lvl *PassiveLevel) bool {
		stale := b.cfg.MaxAge > 0 && now.Sub(lvl.LastUpdate) > b.cfg.MaxAge
		tooFar := haveMid && b.cfg.MaxDistanceFromMid > 0 &&
			(lvl.Price-mid > b.cfg.MaxDistanceFromMid || mid-lvl.Price > b.cfg.MaxDistanceFromMid)
		if (lvl.isEmpty() && stale) || tooFar {
			toRemove = append(toRemove, lvl.Price)
		}
		return true
	})

	for _, p := range toRemove {
		if lvl, ok := b.byPrice[p]; ok {
			b.levels.Delete(lvl)
			delete(b.byPrice, p)
			b.stats.EvictedLevels++
		}
	}
}
