package coordinator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/detector"
	"orderflow-engine/internal/market"
)

func testGrid() market.Grid {
	return market.NewGrid(decimal.RequireFromString("0.01"))
}

func candidate(typ string, side market.Side, price market.Ticks, at time.Time, confidence float64) detector.SignalCandidate {
	return detector.SignalCandidate{
		Type: typ, Side: side, Price: price, Time: at, Confidence: confidence,
	}
}

func TestSubmitUnconfirmedTypeFinalizesImmediately(t *testing.T) {
	var got []Signal
	co := New(Config{}, testGrid(), func(s Signal) { got = append(got, s) })

	co.Submit(candidate("spoofing", market.SideBuy, 100, time.Now(), 0.8))

	if len(got) != 1 {
		t.Fatalf("expected 1 finalized signal, got %d", len(got))
	}
	if got[0].State != StateConfirmed {
		t.Errorf("unconfirmed-type signal should finalize as confirmed, got %s", got[0].State)
	}
}

func TestSubmitConfirmedTypeStaysPendingUntilTick(t *testing.T) {
	var got []Signal
	co := New(Config{
		ConfirmationWindow: time.Minute,
		ConfirmThreshold:   0.01,
		ConfirmedDetectors: map[string]bool{"accumulation": true},
	}, testGrid(), func(s Signal) { got = append(got, s) })

	now := time.Now()
	co.Submit(candidate("accumulation", market.SideBuy, 10000, now, 0.8))

	if len(got) != 0 {
		t.Fatalf("expected no finalized signal before Tick, got %d", len(got))
	}
}

func TestTickConfirmsWhenPriceMovesInSignalDirection(t *testing.T) {
	var got []Signal
	co := New(Config{
		ConfirmationWindow: time.Minute,
		ConfirmThreshold:   0.01,
		ConfirmedDetectors: map[string]bool{"accumulation": true},
	}, testGrid(), func(s Signal) { got = append(got, s) })

	now := time.Now()
	co.Submit(candidate("accumulation", market.SideBuy, 10000, now, 0.8))
	co.Tick(now.Add(time.Second), 10200) // +2% move in the buy direction

	if len(got) != 1 || got[0].State != StateConfirmed {
		t.Fatalf("expected signal confirmed after favorable price move, got %+v", got)
	}
}

func TestTickInvalidatesAfterWindowWithoutMove(t *testing.T) {
	var got []Signal
	co := New(Config{
		ConfirmationWindow: time.Minute,
		ConfirmThreshold:   0.5, // unreachable threshold
		ConfirmedDetectors: map[string]bool{"accumulation": true},
	}, testGrid(), func(s Signal) { got = append(got, s) })

	now := time.Now()
	co.Submit(candidate("accumulation", market.SideBuy, 10000, now, 0.8))
	co.Tick(now.Add(2*time.Minute), 10000)

	if len(got) != 1 || got[0].State != StateInvalidated {
		t.Fatalf("expected signal invalidated after window elapses, got %+v", got)
	}
}

func TestSubmitDeduplicatesWithinTolerance(t *testing.T) {
	var got []Signal
	co := New(Config{
		DedupTolerance:     0.01,
		ConfirmationWindow: time.Minute,
		ConfirmThreshold:   0.01,
		ConfirmedDetectors: map[string]bool{"accumulation": true},
		ReferencePrice:     func() (market.Ticks, bool) { return 10000, true },
	}, testGrid(), func(s Signal) { got = append(got, s) })

	now := time.Now()
	co.Submit(candidate("accumulation", market.SideBuy, 10000, now, 0.5))
	co.Tick(now, 10000) // price has not moved, so the signal stays pending

	// Second candidate close in price and higher confidence should fold into
	// the first pending entry rather than create a second one.
	co.Submit(candidate("accumulation", market.SideBuy, 10005, now.Add(time.Millisecond), 0.9))

	co.mu.Lock()
	pendingCount := len(co.pending)
	co.mu.Unlock()
	if pendingCount != 1 {
		t.Fatalf("expected deduplication to keep a single pending signal, got %d", pendingCount)
	}
}

func TestSubmitRespectsGlobalCooldown(t *testing.T) {
	var got []Signal
	co := New(Config{GlobalCooldown: time.Minute}, testGrid(), func(s Signal) { got = append(got, s) })

	now := time.Now()
	co.Submit(candidate("spoofing", market.SideBuy, 100, now, 0.8))
	co.Submit(candidate("spoofing", market.SideBuy, 101, now.Add(time.Second), 0.9))

	if len(got) != 1 {
		t.Fatalf("expected second candidate to be suppressed by global cooldown, got %d signals", len(got))
	}
}

func TestConfigValidateRejectsNegativeFields(t *testing.T) {
	cfg := Config{DedupTolerance: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative dedupTolerance")
	}
}
