// Package market defines the fixed-tick price and quantity primitives shared
// across the orderflow pipeline. Every comparison, bucket id, or band
// assignment in the rest of the module is derived from the integer tick
// index produced here — decimal arithmetic is confined to ingress parsing
// and egress formatting.
package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Ticks is an integer-tick price index. Two prices are equal, ordered, or
// bucketed strictly by comparing Ticks values; decimal.Decimal is never
// compared directly for these decisions.
type Ticks int64

// Grid converts between decimal prices and their tick-aligned integer index
// for a fixed tickSize. A Grid is immutable and safe for concurrent use.
type Grid struct {
	tickSize decimal.Decimal
}

// NewGrid builds a Grid for the given tick size (e.g. 0.01). tickSize must be
// strictly positive; callers validate this at configuration load time.
func NewGrid(tickSize decimal.Decimal) Grid {
	return Grid{tickSize: tickSize}
}

// TickSize returns the grid's tick size.
func (g Grid) TickSize() decimal.Decimal { return g.tickSize }

// ToTicks quantizes a decimal price onto the grid, rounding to the nearest
// tick. It returns an error if price is negative, NaN-like (shopspring
// decimals cannot represent NaN, but an unparsable string upstream can
// surface as a zero value — callers must validate at the parse boundary),
// or the grid's tick size is non-positive.
func (g Grid) ToTicks(price decimal.Decimal) (Ticks, error) {
	if g.tickSize.Sign() <= 0 {
		return 0, fmt.Errorf("market: tick size must be positive, got %s", g.tickSize)
	}
	if price.Sign() < 0 {
		return 0, fmt.Errorf("market: price must be non-negative, got %s", price)
	}
	q := price.Div(g.tickSize).Round(0)
	return Ticks(q.IntPart()), nil
}

// FromTicks converts a tick index back to a decimal price on this grid. This
// is the only place float/decimal conversion happens on the way out.
func (g Grid) FromTicks(t Ticks) decimal.Decimal {
	return g.tickSize.Mul(decimal.NewFromInt(int64(t)))
}

// IsAligned reports whether price lands exactly on a tick boundary, used to
// reject non-tick-aligned updates per the malformed-input taxonomy.
func (g Grid) IsAligned(price decimal.Decimal) bool {
	if g.tickSize.Sign() <= 0 {
		return false
	}
	q := price.Div(g.tickSize)
	return q.Equal(q.Round(0))
}

// Quantity is a non-negative decimal volume. Validation (non-negative,
// finite) happens at ingress; once constructed a Quantity is assumed valid.
type Quantity = decimal.Decimal

// ZeroQty is the canonical zero quantity.
var ZeroQty = decimal.Zero
