// Package baseline implements the statistical baseline calculator
// (SPEC_FULL.md §4.13): rolling mean/stddev of trade size per symbol,
// refreshed as trades arrive and exposed to the whale detector and the
// stats egress channel.
package baseline

import (
	"math"
	"sync"

	"orderflow-engine/internal/market"
)

// Snapshot is a point-in-time read of the rolling statistics.
type Snapshot struct {
	Count        int64
	MeanVolume   float64
	StdDevVolume float64
	MeanNotional float64
}

// Calculator maintains a numerically-stable running mean/variance (Welford's
// method) of trade volume and notional value for one symbol, bounded to the
// last WindowSize observations via a ring buffer so old regimes age out.
type Calculator struct {
	mu sync.Mutex

	windowSize int
	volumes    []float64
	notionals  []float64
	next       int
	filled     int

	meanVolume  float64
	m2Volume    float64
	sumNotional float64
}

// New constructs a calculator retaining the last windowSize trades.
func New(windowSize int) *Calculator {
	if windowSize <= 0 {
		windowSize = 500
	}
	return &Calculator{
		windowSize: windowSize,
		volumes:    make([]float64, windowSize),
		notionals:  make([]float64, windowSize),
	}
}

// Observe folds one trade's volume and notional value into the window.
func (c *Calculator) Observe(qty market.Quantity, price market.Ticks, tickSize float64) {
	qtyF, _ := qty.Float64()
	notional := qtyF * float64(price) * tickSize

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filled == c.windowSize {
		old := c.volumes[c.next]
		c.sumNotional -= c.notionals[c.next]
		c.removeLocked(old)
	}
	c.filled++

	c.volumes[c.next] = qtyF
	c.notionals[c.next] = notional
	c.sumNotional += notional
	c.addLocked(qtyF)

	c.next = (c.next + 1) % c.windowSize
}

// addLocked and removeLocked maintain Welford's running mean/M2 under
// insertion and eviction so Snapshot never rescans the window.
func (c *Calculator) addLocked(x float64) {
	n := float64(c.filled)
	delta := x - c.meanVolume
	c.meanVolume += delta / n
	delta2 := x - c.meanVolume
	c.m2Volume += delta * delta2
}

func (c *Calculator) removeLocked(x float64) {
	n := float64(c.filled)
	if n <= 1 {
		c.meanVolume, c.m2Volume = 0, 0
		c.filled = 0
		return
	}
	deltaOld := x - c.meanVolume
	newMean := c.meanVolume - deltaOld/(n-1)
	c.m2Volume -= deltaOld * (x - newMean)
	c.meanVolume = newMean
	c.filled--
}

// Snapshot returns the current mean/stddev/count.
func (c *Calculator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stddev float64
	if c.filled > 1 {
		stddev = math.Sqrt(c.m2Volume / float64(c.filled-1))
	}
	var meanNotional float64
	if c.filled > 0 {
		meanNotional = c.sumNotional / float64(c.filled)
	}
	return Snapshot{
		Count:        int64(c.filled),
		MeanVolume:   c.meanVolume,
		StdDevVolume: stddev,
		MeanNotional: meanNotional,
	}
}

// ZScore reports how many standard deviations qty is above the rolling mean.
// Returns 0 if fewer than two observations have been made.
func (c *Calculator) ZScore(qty market.Quantity) float64 {
	snap := c.Snapshot()
	if snap.Count < 2 || snap.StdDevVolume == 0 {
		return 0
	}
	qtyF, _ := qty.Float64()
	return (qtyF - snap.MeanVolume) / snap.StdDevVolume
}
