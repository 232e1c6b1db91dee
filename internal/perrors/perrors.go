// Package perrors defines the shared error taxonomy (spec.md §7): malformed
// input, invariant violations and configuration errors are reported by
// wrapping one of these three sentinels with fmt.Errorf("...: %w", ...),
// following the teacher's database.Connect wrapping convention. Errors
// outside those categories (e.g. preprocess.ErrOutOfOrder, the cache
// package's errors) wrap none of them.
package perrors

import "errors"

var (
	// ErrMalformed marks unparseable input, NaN/negative numerics, or prices
	// off the tick grid (spec.md §7 taxonomy item 1).
	ErrMalformed = errors.New("malformed input")

	// ErrInvariant marks an internal invariant violation — bid/ask both
	// positive at one price, negative derived volume, aggregator totals
	// disagreeing (spec.md §7 taxonomy item 3).
	ErrInvariant = errors.New("invariant violation")

	// ErrConfig marks an out-of-range configuration value detected at
	// startup or on a runtime config change (spec.md §7 taxonomy item 4).
	ErrConfig = errors.New("configuration error")
)
