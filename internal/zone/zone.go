// Package zone implements the multi-resolution "standardized zone" rolling
// aggregator described in spec.md §4.3: for each configured tick resolution,
// a bucket-id -> rolling ZoneSnapshot map with time-window eviction.
package zone

import (
	"container/list"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/market"
)

// Resolution is a zone width in ticks (5, 10, or 20 per spec.md §2).
type Resolution int

// Snapshot is the aggregated state of one price bucket at one resolution
// (spec.md §3 ZoneSnapshot).
type Snapshot struct {
	Resolution          Resolution
	BucketID            int64
	PriceLevel          market.Ticks
	TickSize            decimal.Decimal
	MinBoundary         market.Ticks
	MaxBoundary         market.Ticks
	AggressiveBuyVolume market.Quantity
	AggressiveSellVol   market.Quantity
	PassiveBidVolume    market.Quantity
	PassiveAskVolume    market.Quantity
	TradeCount          int
	Timespan            time.Duration
	VolumeWeightedPrice decimal.Decimal
	LastUpdate          time.Time
}

// AggressiveVolume is the sum invariant required by spec.md §4.3.
func (s Snapshot) AggressiveVolume() market.Quantity {
	return s.AggressiveBuyVolume.Add(s.AggressiveSellVol)
}

// PassiveVolume is the sum invariant required by spec.md §4.3.
func (s Snapshot) PassiveVolume() market.Quantity {
	return s.PassiveBidVolume.Add(s.PassiveAskVolume)
}

type tradeRecord struct {
	at        time.Time
	side      market.Side
	qty       market.Quantity
	price     market.Ticks
}

type bucket struct {
	id         int64
	center     market.Ticks
	events     *list.List // of *tradeRecord, oldest-first, for O(1) amortized eviction
	buyVol     market.Quantity
	sellVol    market.Quantity
	passiveBid market.Quantity
	passiveAsk market.Quantity
	vwapNum    decimal.Decimal
	vwapDen    market.Quantity
	lastUpdate time.Time
}

// Config parameterizes the aggregator (spec.md §6 Configuration surface:
// zoneTimeWindowMs, zoneResolutions, halfWidthTicks).
type Config struct {
	Grid           market.Grid
	Resolutions    []Resolution
	TimeWindow     time.Duration
	HalfWidthTicks market.Ticks
}

// Aggregator owns the per-resolution bucket maps. It mutates only from the
// single processing thread (spec.md §5); no internal locking is performed.
type Aggregator struct {
	cfg     Config
	buckets map[Resolution]map[int64]*bucket
}

// New constructs an aggregator for the given resolutions.
func New(cfg Config) *Aggregator {
	a := &Aggregator{
		cfg:     cfg,
		buckets: make(map[Resolution]map[int64]*bucket, len(cfg.Resolutions)),
	}
	for _, r := range cfg.Resolutions {
		a.buckets[r] = make(map[int64]*bucket)
	}
	return a
}

func bucketID(price market.Ticks, res Resolution) int64 {
	p := int64(price)
	r := int64(res)
	// Floor division toward negative infinity so adjacent negative ticks
	// bucket consistently (prices are non-negative in practice, but this
	// keeps the arithmetic correct regardless).
	q := p / r
	if p%r != 0 && (p < 0) != (r < 0) {
		q--
	}
	return q
}

func (a *Aggregator) bucketFor(res Resolution, price market.Ticks, now time.Time) *bucket {
	id := bucketID(price, res)
	m := a.buckets[res]
	b, ok := m[id]
	if !ok {
		b = &bucket{
			id:      id,
			center:  market.Ticks(id*int64(res)) + market.Ticks(res)/2,
			events:  list.New(),
			vwapNum: decimal.Zero,
		}
		m[id] = b
	}
	b.evict(now, a.cfg.TimeWindow)
	return b
}

func (b *bucket) evict(now time.Time, window time.Duration) {
	if window <= 0 {
		return
	}
	cutoff := now.Add(-window)
	for e := b.events.Front(); e != nil; {
		rec := e.Value.(*tradeRecord)
		if rec.at.After(cutoff) {
			break
		}
		next := e.Next()
		switch rec.side {
		case market.SideBuy:
			b.buyVol = b.buyVol.Sub(rec.qty)
		case market.SideSell:
			b.sellVol = b.sellVol.Sub(rec.qty)
		}
		b.vwapNum = b.vwapNum.Sub(decimal.NewFromInt(int64(rec.price)).Mul(rec.qty))
		b.vwapDen = b.vwapDen.Sub(rec.qty)
		b.events.Remove(e)
		e = next
	}
}

// OnTrade folds a trade's aggressive volume into every resolution's bucket
// covering its price.
func (a *Aggregator) OnTrade(price market.Ticks, qty market.Quantity, side market.Side, at time.Time) {
	for _, res := range a.cfg.Resolutions {
		b := a.bucketFor(res, price, at)
		rec := &tradeRecord{at: at, side: side, qty: qty, price: price}
		b.events.PushBack(rec)
		switch side {
		case market.SideBuy:
			b.buyVol = b.buyVol.Add(qty)
		case market.SideSell:
			b.sellVol = b.sellVol.Add(qty)
		}
		b.vwapNum = b.vwapNum.Add(decimal.NewFromInt(int64(price)).Mul(qty))
		b.vwapDen = b.vwapDen.Add(qty)
		b.lastUpdate = at
	}
}

// OnDepth adds the caller's signed change in resting bid/ask quantity at the
// price (new minus previous) to every bucket touched by the price, clamping
// at zero, so passive volume tracks a point-in-time sum over book levels,
// not a rolling event log (spec.md §4.3).
func (a *Aggregator) OnDepth(price market.Ticks, bidDelta, askDelta market.Quantity, at time.Time) {
	for _, res := range a.cfg.Resolutions {
		b := a.bucketFor(res, price, at)
		b.passiveBid = b.passiveBid.Add(bidDelta)
		b.passiveAsk = b.passiveAsk.Add(askDelta)
		if b.passiveBid.Sign() < 0 {
			b.passiveBid = market.ZeroQty
		}
		if b.passiveAsk.Sign() < 0 {
			b.passiveAsk = market.ZeroQty
		}
		b.lastUpdate = at
	}
}

func (a *Aggregator) snapshot(res Resolution, b *bucket) Snapshot {
	tickSize := a.cfg.Grid.TickSize()
	vwap := decimal.Zero
	if b.vwapDen.Sign() > 0 {
		vwap = b.vwapNum.Div(b.vwapDen).Mul(tickSize)
	}

	var timespan time.Duration
	if front, back := b.events.Front(), b.events.Back(); front != nil && back != nil {
		timespan = back.Value.(*tradeRecord).at.Sub(front.Value.(*tradeRecord).at)
	}

	min := market.Ticks(b.id * int64(res))
	max := min + market.Ticks(res)

	return Snapshot{
		Resolution:          res,
		BucketID:            b.id,
		PriceLevel:          b.center,
		TickSize:            tickSize,
		MinBoundary:         min,
		MaxBoundary:         max,
		AggressiveBuyVolume: b.buyVol,
		AggressiveSellVol:   b.sellVol,
		PassiveBidVolume:    b.passiveBid,
		PassiveAskVolume:    b.passiveAsk,
		TradeCount:          b.events.Len(),
		Timespan:            timespan,
		VolumeWeightedPrice: vwap,
		LastUpdate:          b.lastUpdate,
	}
}

// ZonesNear returns, for each configured resolution, the snapshots whose
// center lies within halfWidthTicks of price (spec.md §4.3). Zones whose
// last update has aged out of the time window are not returned.
func (a *Aggregator) ZonesNear(price market.Ticks, halfWidthTicks market.Ticks, now time.Time) map[Resolution][]Snapshot {
	out := make(map[Resolution][]Snapshot, len(a.cfg.Resolutions))
	for _, res := range a.cfg.Resolutions {
		var zones []Snapshot
		for _, b := range a.buckets[res] {
			if abs(b.center-price) > halfWidthTicks {
				continue
			}
			b.evict(now, a.cfg.TimeWindow)
			if a.cfg.TimeWindow > 0 && now.Sub(b.lastUpdate) > a.cfg.TimeWindow {
				continue
			}
			zones = append(zones, a.snapshot(res, b))
		}
		out[res] = zones
	}
	return out
}

// StandardZoneData is the three-resolution snapshot bundle attached to every
// EnrichedTradeEvent (spec.md §3).
type StandardZoneData struct {
	Zones5Tick  []Snapshot
	Zones10Tick []Snapshot
	Zones20Tick []Snapshot
}

// BuildStandardZoneData assembles the canonical 5/10/20-tick bundle around
// price, using the aggregator's configured HalfWidthTicks.
func (a *Aggregator) BuildStandardZoneData(price market.Ticks, now time.Time) StandardZoneData {
	near := a.ZonesNear(price, a.cfg.HalfWidthTicks, now)
	return StandardZoneData{
		Zones5Tick:  near[5],
		Zones10Tick: near[10],
		Zones20Tick: near[20],
	}
}

func abs(t market.Ticks) market.Ticks {
	if t < 0 {
		return -t
	}
	return t
}
