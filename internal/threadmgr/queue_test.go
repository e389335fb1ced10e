package threadmgr

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-core/agentcore/internal/turn"
)

func TestEventQueuePushThenPopRoundTrips(t *testing.T) {
	done := make(chan struct{})
	q := newEventQueue(2, done)

	ctx := context.Background()
	if err := q.push(ctx, turn.Event{Kind: turn.EventTurnStarted, TurnID: "t1"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	e, err := q.pop(ctx)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if e.TurnID != "t1" {
		t.Fatalf("expected the pushed event back, got %+v", e)
	}
}

func TestEventQueuePushBlocksWhenFull(t *testing.T) {
	done := make(chan struct{})
	q := newEventQueue(1, done)
	ctx := context.Background()

	if err := q.push(ctx, turn.Event{TurnID: "first"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	pushed := make(chan error, 1)
	go func() { pushed <- q.push(ctx, turn.Event{TurnID: "second"}) }()

	select {
	case <-pushed:
		t.Fatal("expected the second push to block while the queue is full")
	case <-time.After(30 * time.Millisecond):
	}

	if _, err := q.pop(ctx); err != nil {
		t.Fatalf("pop: %v", err)
	}

	select {
	case err := <-pushed:
		if err != nil {
			t.Fatalf("expected the blocked push to succeed once drained, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the blocked push to unblock")
	}
}

func TestEventQueueUnblocksOnThreadDone(t *testing.T) {
	done := make(chan struct{})
	q := newEventQueue(4, done)
	ctx := context.Background()

	if err := q.push(ctx, turn.Event{TurnID: "buffered"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	close(done)

	if e, err := q.pop(ctx); err != nil || e.TurnID != "buffered" {
		t.Fatalf("expected the already-buffered event first, got %+v, %v", e, err)
	}
	if _, err := q.pop(ctx); err != ErrThreadClosed {
		t.Fatalf("expected ErrThreadClosed once the queue is drained and done has fired, got %v", err)
	}
}
