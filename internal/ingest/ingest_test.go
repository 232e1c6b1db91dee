package ingest

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestReplaySourceDecodesEachLine(t *testing.T) {
	body := strings.Join([]string{
		`{"trade":{"tradeId":1,"eventTime":1000,"price":"100.00","quantity":"1"}}`,
		`{"depth":{"eventTime":1001,"bids":[{"price":"99.00","quantity":"5"}]}}`,
	}, "\n")

	src := NewReplaySource(strings.NewReader(body))
	out := make(chan Event, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Run(ctx, out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var events []Event
	for ev := range out {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Trade == nil || events[0].Trade.TradeID != 1 {
		t.Errorf("expected first event to be the decoded trade, got %+v", events[0])
	}
	if events[1].Depth == nil || len(events[1].Depth.Bids) != 1 {
		t.Errorf("expected second event to be the decoded depth update, got %+v", events[1])
	}
}

func TestReplaySourceRejectsMalformedLine(t *testing.T) {
	src := NewReplaySource(strings.NewReader("not json"))
	out := make(chan Event, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Run(ctx, out); err == nil {
		t.Fatal("expected an error for a malformed replay line")
	}
}

func TestReplaySourceStopsOnContextCancellation(t *testing.T) {
	body := strings.Repeat(`{"trade":{"tradeId":1,"eventTime":1,"price":"1.00","quantity":"1"}}`+"\n", 100)
	src := NewReplaySource(strings.NewReader(body))
	out := make(chan Event) // unbuffered, so Run blocks on send until cancelled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := src.Run(ctx, out); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
