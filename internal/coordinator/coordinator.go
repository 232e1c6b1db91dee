// Package coordinator implements the SignalCoordinator (spec.md §4.11): it
// deduplicates near-duplicate detector candidates, optionally confirms them
// against subsequent price action, enforces a global per-side cooldown, and
// forwards finalized signals to the egress boundary.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"orderflow-engine/internal/detector"
	"orderflow-engine/internal/market"
	"orderflow-engine/internal/perrors"
)

// State is the coordinated-signal lifecycle (spec.md §4.11).
type State string

const (
	StatePending     State = "pending"
	StateConfirmed   State = "confirmed"
	StateInvalidated State = "invalidated"
	StateExpired     State = "expired"
)

// Signal is the finalized, externally-visible signal (spec.md §3).
type Signal struct {
	ID         string
	Type       string
	Side       market.Side
	Price      market.Ticks
	Time       time.Time
	Confidence float64
	TakeProfit *market.Ticks
	StopLoss   *market.Ticks
	Metadata   map[string]any
	State      State
}

// Config parameterizes deduplication, confirmation, and cooldown (spec.md
// §6 "Coordinator: dedupTolerance, confirmationWindow, confirmThreshold,
// globalCooldownMs").
type Config struct {
	DedupTolerance     float64
	ConfirmationWindow time.Duration
	ConfirmThreshold   float64
	GlobalCooldown     time.Duration
	ReferencePrice     func() (market.Ticks, bool)
	ConfirmedDetectors map[string]bool // detector types whose candidates require confirmation
}

func (c Config) Validate() error {
	if c.DedupTolerance < 0 {
		return fmt.Errorf("coordinator config: dedupTolerance must be non-negative: %w", perrors.ErrConfig)
	}
	if c.ConfirmationWindow < 0 {
		return fmt.Errorf("coordinator config: confirmationWindow must be non-negative: %w", perrors.ErrConfig)
	}
	if c.ConfirmThreshold < 0 {
		return fmt.Errorf("coordinator config: confirmThreshold must be non-negative: %w", perrors.ErrConfig)
	}
	if c.GlobalCooldown < 0 {
		return fmt.Errorf("coordinator config: globalCooldown must be non-negative: %w", perrors.ErrConfig)
	}
	return nil
}

type pendingSignal struct {
	sig       Signal
	startedAt time.Time
	grid      market.Grid
}

// Coordinator is the SignalCoordinator. Its state is guarded by mu: the
// pipeline's processing loop calls Submit while the app's tick loop calls
// Tick from a separate goroutine.
type Coordinator struct {
	cfg  Config
	grid market.Grid

	mu       sync.Mutex
	pending  []*pendingSignal
	lastEmit map[market.Side]time.Time
	nextID   int64
	onFinal  func(Signal)
}

// New constructs a coordinator that invokes onFinal for every terminal
// signal (confirmed, invalidated, or — for unconfirmed types — immediately
// upon acceptance).
func New(cfg Config, grid market.Grid, onFinal func(Signal)) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		grid:     grid,
		lastEmit: make(map[market.Side]time.Time),
		onFinal:  onFinal,
	}
}

// Submit accepts a detector's signal candidate, deduplicating against
// recently-pending signals of the same side and folding the
// highest-confidence candidate forward (spec.md §4.11 Deduplication).
func (co *Coordinator) Submit(c detector.SignalCandidate) {
	co.mu.Lock()
	defer co.mu.Unlock()

	if last, ok := co.lastEmit[c.Side]; ok && c.Time.Sub(last) < co.cfg.GlobalCooldown {
		return
	}

	refPrice, haveRef := co.refPriceTicks()
	if haveRef && co.cfg.DedupTolerance > 0 {
		tolTicks := market.Ticks(co.cfg.DedupTolerance * float64(refPrice))
		for _, p := range co.pending {
			if p.sig.Side != c.Side {
				continue
			}
			if tickDistance(p.sig.Price, c.Price) >= tolTicks {
				continue
			}
			if c.Confidence > p.sig.Confidence {
				p.sig = toSignal(c, co.nextIDLocked())
			}
			return
		}
	}

	sig := toSignal(c, co.nextIDLocked())

	if !co.cfg.ConfirmedDetectors[c.Type] || co.cfg.ConfirmationWindow <= 0 {
		sig.State = StateConfirmed
		co.lastEmit[c.Side] = c.Time
		co.finalizeLocked(sig)
		return
	}

	sig.State = StatePending
	co.pending = append(co.pending, &pendingSignal{sig: sig, startedAt: c.Time, grid: co.grid})
}

// Tick advances pending confirmations against the current market price,
// expiring or confirming/invalidating signals whose confirmation window has
// elapsed or whose price target was met (spec.md §4.11 Confirmation).
func (co *Coordinator) Tick(now time.Time, currentPrice market.Ticks) {
	co.mu.Lock()
	defer co.mu.Unlock()

	kept := co.pending[:0]
	for _, p := range co.pending {
		elapsed := now.Sub(p.startedAt)
		moved := float64(currentPrice-p.sig.Price) / float64(p.sig.Price)
		if p.sig.Side == market.SideSell {
			moved = -moved
		}

		switch {
		case moved >= co.cfg.ConfirmThreshold:
			p.sig.State = StateConfirmed
			co.lastEmit[p.sig.Side] = now
			co.finalizeLocked(p.sig)
		case elapsed >= co.cfg.ConfirmationWindow:
			p.sig.State = StateInvalidated
			co.finalizeLocked(p.sig)
		default:
			kept = append(kept, p)
		}
	}
	co.pending = kept
}

func (co *Coordinator) finalizeLocked(sig Signal) {
	if co.onFinal != nil {
		co.onFinal(sig)
	}
}

func (co *Coordinator) nextIDLocked() string {
	co.nextID++
	return fmt.Sprintf("sig-%d", co.nextID)
}

func (co *Coordinator) refPriceTicks() (market.Ticks, bool) {
	if co.cfg.ReferencePrice == nil {
		return 0, false
	}
	return co.cfg.ReferencePrice()
}

func toSignal(c detector.SignalCandidate, id string) Signal {
	return Signal{
		ID:         id,
		Type:       c.Type,
		Side:       c.Side,
		Price:      c.Price,
		Time:       c.Time,
		Confidence: c.Confidence,
		TakeProfit: c.TakeProfit,
		StopLoss:   c.StopLoss,
		Metadata:   c.Metadata,
	}
}

func tickDistance(a, b market.Ticks) market.Ticks {
	if a > b {
		return a - b
	}
	return b - a
}

