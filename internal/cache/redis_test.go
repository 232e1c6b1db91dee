package cache

import (
	"context"
	"testing"
	"time"
)

// A nil *Client represents "caching disabled" after a failed Redis
// connection; every method must degrade gracefully rather than panic.

func TestNilClientSetReturnsError(t *testing.T) {
	var c *Client
	if err := c.Set(context.Background(), "k", "v", time.Second); err == nil {
		t.Fatal("expected an error from a nil cache client")
	}
}

func TestNilClientGetReturnsError(t *testing.T) {
	var c *Client
	var dest string
	if err := c.Get(context.Background(), "k", &dest); err == nil {
		t.Fatal("expected an error from a nil cache client")
	}
}

func TestNilClientIncrByReturnsError(t *testing.T) {
	var c *Client
	if _, err := c.IncrBy(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatal("expected an error from a nil cache client")
	}
}

func TestNilClientPublishReturnsError(t *testing.T) {
	var c *Client
	if err := c.Publish(context.Background(), "ch", "msg"); err == nil {
		t.Fatal("expected an error from a nil cache client")
	}
}

func TestNilClientCloseIsANoop(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Fatalf("Close on a nil client should be a no-op, got %v", err)
	}
}
