package baseline

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func qty(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestObserveTracksMeanAndCount(t *testing.T) {
	c := New(10)
	c.Observe(qty("1"), 100, 1)
	c.Observe(qty("2"), 100, 1)
	c.Observe(qty("3"), 100, 1)

	snap := c.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("Count = %d, want 3", snap.Count)
	}
	if math.Abs(snap.MeanVolume-2) > 1e-9 {
		t.Errorf("MeanVolume = %f, want 2", snap.MeanVolume)
	}
}

func TestStdDevIsZeroForFewerThanTwoObservations(t *testing.T) {
	c := New(10)
	c.Observe(qty("5"), 100, 1)
	snap := c.Snapshot()
	if snap.StdDevVolume != 0 {
		t.Errorf("StdDevVolume with 1 observation = %f, want 0", snap.StdDevVolume)
	}
}

func TestWindowEvictsOldestObservation(t *testing.T) {
	c := New(3)
	c.Observe(qty("1"), 100, 1)
	c.Observe(qty("1"), 100, 1)
	c.Observe(qty("1"), 100, 1)
	// Window is full at mean=1; a run of large values should push the mean
	// well above 1 once the original 1s are evicted.
	c.Observe(qty("100"), 100, 1)
	c.Observe(qty("100"), 100, 1)
	c.Observe(qty("100"), 100, 1)

	snap := c.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("Count = %d, want 3 (window size)", snap.Count)
	}
	if math.Abs(snap.MeanVolume-100) > 1e-6 {
		t.Errorf("MeanVolume after full eviction = %f, want 100", snap.MeanVolume)
	}
}

func TestZScoreRequiresTwoObservations(t *testing.T) {
	c := New(10)
	c.Observe(qty("5"), 100, 1)
	if z := c.ZScore(qty("50")); z != 0 {
		t.Errorf("ZScore with <2 observations = %f, want 0", z)
	}
}

func TestZScorePositiveForAboveMeanObservation(t *testing.T) {
	c := New(10)
	for _, v := range []string{"1", "1", "1", "1", "10"} {
		c.Observe(qty(v), 100, 1)
	}
	if z := c.ZScore(qty("10")); z <= 0 {
		t.Errorf("ZScore for an above-mean value = %f, want > 0", z)
	}
}
