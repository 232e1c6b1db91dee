// Package detector implements the shared detector framework (spec.md §4.4)
// and the seven pattern detectors built on top of it: absorption,
// exhaustion, accumulation, distribution, delta-CVD divergence, spoofing,
// and hidden-order detection, plus the supplemented whale-alert detector
// (SPEC_FULL.md §4.12).
package detector

import (
	"fmt"
	"log"
	"sync"
	"time"

	"orderflow-engine/internal/market"
	"orderflow-engine/internal/preprocess"
)

// SignalCandidate is emitted on the signalCandidate channel (spec.md §3, §4.4).
type SignalCandidate struct {
	DetectorID string
	Type       string
	Side       market.Side
	Price      market.Ticks
	Time       time.Time
	Confidence float64
	TakeProfit *market.Ticks
	StopLoss   *market.Ticks
	Metadata   map[string]any
}

// ZoneUpdateType enumerates the zone lifecycle transitions (spec.md §4.7, §6).
type ZoneUpdateType string

const (
	ZoneCreated      ZoneUpdateType = "zone_created"
	ZoneUpdated      ZoneUpdateType = "zone_updated"
	ZoneStrengthened ZoneUpdateType = "zone_strengthened"
	ZoneWeakened     ZoneUpdateType = "zone_weakened"
	ZoneCompleted    ZoneUpdateType = "zone_completed"
	ZoneInvalidated  ZoneUpdateType = "zone_invalidated"
)

// ZoneUpdate is emitted on the zoneUpdate channel.
type ZoneUpdate struct {
	DetectorID   string
	UpdateType   ZoneUpdateType
	ZoneType     string // "accumulation" | "distribution"
	PriceCenter  market.Ticks
	Significance float64
	Time         time.Time
}

// Urgency and Direction enumerate zoneSignal fields (spec.md §6).
type Urgency string
type Direction string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"

	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// ZoneSignal is emitted on the zoneSignal channel: an actionable zone event.
type ZoneSignal struct {
	DetectorID        string
	SignalType        string
	PriceCenter       market.Ticks
	ActionType        string
	Confidence        float64
	Urgency           Urgency
	ExpectedDirection Direction
	Time              time.Time
}

// Emissions is the batch of events a single detector invocation may produce.
type Emissions struct {
	Candidates  []SignalCandidate
	ZoneUpdates []ZoneUpdate
	ZoneSignals []ZoneSignal
}

func (e *Emissions) addCandidate(c SignalCandidate) { e.Candidates = append(e.Candidates, c) }
func (e *Emissions) addZoneUpdate(z ZoneUpdate)     { e.ZoneUpdates = append(e.ZoneUpdates, z) }
func (e *Emissions) addZoneSignal(z ZoneSignal)     { e.ZoneSignals = append(e.ZoneSignals, z) }

// Handler is the pure, synchronous transformation every detector
// implements: an EnrichedTradeEvent in, zero or more emissions out. No
// detector performs its own cooldown, error containment, or metrics — the
// Base wraps that (spec.md §9 Design Notes: "mixin-free base abstraction").
type Handler interface {
	ID() string
	Handle(ev preprocess.EnrichedTradeEvent) Emissions
}

// Metrics counts per-detector outcomes for observability.
type Metrics struct {
	mu             sync.Mutex
	Invocations    int64
	Emitted        int64
	Suppressed     int64
	Errors         int64
	ConsecutiveErr int64
}

func (m *Metrics) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{Invocations: m.Invocations, Emitted: m.Emitted, Suppressed: m.Suppressed, Errors: m.Errors, ConsecutiveErr: m.ConsecutiveErr}
}

// maxConsecutiveFailures is the threshold past which a detector is marked
// degraded and stops emitting, per spec.md §7 taxonomy item 5.
const maxConsecutiveFailures = 5

// Base wraps a Handler with per-(detectorID, side) cooldowns, an exception
// boundary, and metrics (spec.md §4.4).
type Base struct {
	handler  Handler
	cooldown time.Duration

	mu       sync.Mutex
	lastEmit map[market.Side]time.Time
	degraded bool
	metrics  Metrics
}

// NewBase wraps handler with the given per-side emission cooldown.
func NewBase(handler Handler, cooldown time.Duration) *Base {
	return &Base{
		handler:  handler,
		cooldown: cooldown,
		lastEmit: make(map[market.Side]time.Time),
	}
}

// ID passes through to the wrapped handler.
func (b *Base) ID() string { return b.handler.ID() }

// Degraded reports whether this detector has been disabled after repeated
// failures (spec.md §7 taxonomy item 5).
func (b *Base) Degraded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.degraded
}

// Reset clears the degraded flag and consecutive-failure counter, allowing
// an operator to bring a detector back online explicitly.
func (b *Base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.degraded = false
	b.metrics.mu.Lock()
	b.metrics.ConsecutiveErr = 0
	b.metrics.mu.Unlock()
}

// Metrics returns a point-in-time copy of this detector's counters.
func (b *Base) Metrics() Metrics { return b.metrics.snapshot() }

// Handle invokes the wrapped detector inside an error boundary, applies the
// per-(detectorID, side) cooldown to candidate emissions, and never lets a
// panic propagate out of the pipeline (spec.md §4.4, §7).
func (b *Base) Handle(ev preprocess.EnrichedTradeEvent) (out Emissions) {
	b.mu.Lock()
	if b.degraded {
		b.mu.Unlock()
		return Emissions{}
	}
	b.mu.Unlock()

	out = b.safeInvoke(ev)

	b.mu.Lock()
	defer b.mu.Unlock()

	var kept []SignalCandidate
	for _, c := range out.Candidates {
		if c.DetectorID == "" {
			c.DetectorID = b.handler.ID()
		}
		last, ok := b.lastEmit[c.Side]
		if ok && c.Time.Sub(last) < b.cooldown {
			b.metrics.mu.Lock()
			b.metrics.Suppressed++
			b.metrics.mu.Unlock()
			continue
		}
		b.lastEmit[c.Side] = c.Time
		kept = append(kept, c)
	}
	out.Candidates = kept

	b.metrics.mu.Lock()
	b.metrics.Invocations++
	b.metrics.Emitted += int64(len(kept))
	b.metrics.mu.Unlock()

	return out
}

func (b *Base) safeInvoke(ev preprocess.EnrichedTradeEvent) (out Emissions) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("detector %s: recovered panic: %v", b.handler.ID(), r)
			b.recordFailure()
			out = Emissions{}
		}
	}()
	out = b.handler.Handle(ev)
	b.recordSuccess()
	return out
}

// recordSuccess zeroes the consecutive-failure counter so a detector is only
// degraded by N *consecutive* failures, not N failures spread across a
// longer run with successes in between (spec.md §7 taxonomy item 5).
func (b *Base) recordSuccess() {
	b.metrics.mu.Lock()
	b.metrics.ConsecutiveErr = 0
	b.metrics.mu.Unlock()
}

func (b *Base) recordFailure() {
	b.metrics.mu.Lock()
	b.metrics.Errors++
	b.metrics.ConsecutiveErr++
	consecutive := b.metrics.ConsecutiveErr
	b.metrics.mu.Unlock()

	if consecutive >= maxConsecutiveFailures {
		b.mu.Lock()
		b.degraded = true
		b.mu.Unlock()
		log.Printf("detector %s: degraded after %d consecutive failures", b.handler.ID(), consecutive)
	}
}

// ValidatedConfig is implemented by every per-detector configuration type so
// startup can refuse to run with out-of-range thresholds (spec.md §7
// taxonomy item 4).
type ValidatedConfig interface {
	Validate() error
}

// requirePositive is a small helper used by every detector Config.Validate
// to avoid repeating the same error-wrapping boilerplate.
func requirePositive(name string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("detector config: %s must be positive, got %v", name, v)
	}
	return nil
}

func requireRange01(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("detector config: %s must be in [0,1], got %v", name, v)
	}
	return nil
}
