// Package ingest defines the exchange-adapter boundary (spec.md §6): the
// concrete wire shapes a real WebSocket client would decode into, and the
// Source interface the pipeline consumes. The exchange connection itself is
// an external collaborator per spec.md §1 — this package only defines the
// contract and a reference in-process replay adapter for tests and demos.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"orderflow-engine/internal/perrors"
)

// Trade is the raw ingress trade shape (spec.md §6).
type Trade struct {
	TradeID      int64  `json:"tradeId"`
	EventTimeMs  int64  `json:"eventTime"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	BuyerIsMaker bool   `json:"buyerIsMaker"`
}

// PriceLevel is one [price, quantity] entry in a DepthUpdate or
// DepthSnapshot, decimal-string-encoded per spec.md §6.
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// DepthUpdate is an incremental book delta (spec.md §6); quantity "0"
// removes that level.
type DepthUpdate struct {
	EventTimeMs int64        `json:"eventTime"`
	Bids        []PriceLevel `json:"bids"`
	Asks        []PriceLevel `json:"asks"`
}

// DepthSnapshot is the bootstrap message delivered on connect/reconnect
// (spec.md §6).
type DepthSnapshot struct {
	EventTimeMs int64        `json:"eventTime"`
	Bids        []PriceLevel `json:"bids"`
	Asks        []PriceLevel `json:"asks"`
}

// Event is the tagged union a Source emits; exactly one field is non-nil.
type Event struct {
	Trade    *Trade
	Depth    *DepthUpdate
	Snapshot *DepthSnapshot
}

// Source is the exchange-adapter boundary. A real implementation owns a
// live WebSocket connection (gorilla/websocket, per the teacher's
// websocket.Client) and decodes the venue's wire protocol into Events; the
// pipeline never depends on transport details.
type Source interface {
	// Run streams events into out until ctx is cancelled or the source
	// exhausts input. It must close out before returning.
	Run(ctx context.Context, out chan<- Event) error
}

// replayLine is the newline-delimited-JSON record shape the replay adapter
// reads: exactly one of the three payload fields is populated.
type replayLine struct {
	Trade    *Trade         `json:"trade,omitempty"`
	Depth    *DepthUpdate   `json:"depth,omitempty"`
	Snapshot *DepthSnapshot `json:"snapshot,omitempty"`
}

// ReplaySource decodes newline-delimited JSON records into Events, for
// offline replay and integration tests without a live exchange connection
// (SPEC_FULL.md §1).
type ReplaySource struct {
	r io.Reader
}

// NewReplaySource wraps r, which must yield one JSON object per line.
func NewReplaySource(r io.Reader) *ReplaySource {
	return &ReplaySource{r: r}
}

func (s *ReplaySource) Run(ctx context.Context, out chan<- Event) error {
	defer close(out)

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec replayLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("ingest: decode replay line: %w: %w", perrors.ErrMalformed, err)
		}

		ev := Event{Trade: rec.Trade, Depth: rec.Depth, Snapshot: rec.Snapshot}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ingest: scan replay source: %w", err)
	}
	return nil
}
