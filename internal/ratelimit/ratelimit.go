// Package ratelimit implements a continuously-refilling token bucket,
// grounded on 0xtitan6-polymarket-mm's internal/exchange/ratelimit.go,
// generalized from per-endpoint categories to per-client API throttling
// (spec.md external-collaborator "rate limiting" interface).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token-bucket rate limiter with continuous (sub-second)
// refill, so callers never see 1-second bursts followed by a stall.
type Bucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewBucket creates a limiter with the given burst capacity and refill
// rate in tokens per second.
func NewBucket(capacity, ratePerSecond float64) *Bucket {
	return &Bucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastTime = now
}

// Allow attempts to take one token without blocking; it reports whether
// a token was available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is cancelled.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refillLocked(time.Now())
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Limiter keys a Bucket per client identity (remote address or API key),
// lazily creating one on first use with the configured capacity/rate.
// Entries older than idleTTL are swept by Sweep, which callers should run
// on a periodic ticker so long-lived servers don't accumulate one bucket
// per ever-churning client IP.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*trackedBucket
	capacity float64
	rate     float64
	idleTTL  time.Duration
}

type trackedBucket struct {
	bucket   *Bucket
	lastUsed time.Time
}

// NewLimiter builds a per-client limiter; burst and perSecond mirror
// spec.md's RATE_LIMIT_BURST / RATE_LIMIT_PER_SECOND config values.
func NewLimiter(burst, perSecond int, idleTTL time.Duration) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*trackedBucket),
		capacity: float64(burst),
		rate:     float64(perSecond),
		idleTTL:  idleTTL,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	tb, ok := l.buckets[key]
	if !ok {
		tb = &trackedBucket{bucket: NewBucket(l.capacity, l.rate)}
		l.buckets[key] = tb
	}
	tb.lastUsed = time.Now()
	l.mu.Unlock()

	return tb.bucket.Allow()
}

// Sweep removes buckets untouched for longer than idleTTL. Intended to be
// called from a background ticker.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, tb := range l.buckets {
		if now.Sub(tb.lastUsed) > l.idleTTL {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
