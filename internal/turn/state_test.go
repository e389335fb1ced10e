package turn

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

func TestAcquireWithNoPriorTurnSucceedsImmediately(t *testing.T) {
	s := NewThreadTurnState(types.NewThreadID())
	tok, release, err := s.Acquire(context.Background(), "turn-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()
	if tok.Cancelled() {
		t.Fatal("expected a fresh token to not be cancelled")
	}
	if s.ActiveTurnID() != "turn-1" {
		t.Fatalf("expected turn-1 to be active, got %q", s.ActiveTurnID())
	}
}

func TestAcquireReplacesPriorTurnAfterItReleases(t *testing.T) {
	s := NewThreadTurnState(types.NewThreadID())
	tok1, release1, err := s.Acquire(context.Background(), "turn-1")
	if err != nil {
		t.Fatalf("Acquire turn-1: %v", err)
	}

	replaced := make(chan struct{})
	go func() {
		tok2, release2, err := s.Acquire(context.Background(), "turn-2")
		if err != nil {
			t.Errorf("Acquire turn-2: %v", err)
			close(replaced)
			return
		}
		defer release2()
		if tok2.Cancelled() {
			t.Error("expected turn-2's token to start uncancelled")
		}
		close(replaced)
	}()

	select {
	case <-replaced:
		t.Fatal("turn-2 acquired before turn-1 released")
	case <-time.After(20 * time.Millisecond):
	}

	if !tok1.Cancelled() || tok1.Reason() != CancelReplaced {
		t.Fatalf("expected turn-1 to be tripped with CancelReplaced, got cancelled=%v reason=%v", tok1.Cancelled(), tok1.Reason())
	}

	release1()

	select {
	case <-replaced:
	case <-time.After(time.Second):
		t.Fatal("turn-2 never acquired after turn-1 released")
	}
}

func TestInterruptTripsActiveTurn(t *testing.T) {
	s := NewThreadTurnState(types.NewThreadID())
	tok, release, err := s.Acquire(context.Background(), "turn-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	if !s.Interrupt() {
		t.Fatal("expected Interrupt to report an active turn")
	}
	if tok.Reason() != CancelInterrupted {
		t.Fatalf("expected CancelInterrupted, got %v", tok.Reason())
	}
}

func TestInterruptWithNoActiveTurnReportsFalse(t *testing.T) {
	s := NewThreadTurnState(types.NewThreadID())
	if s.Interrupt() {
		t.Fatal("expected Interrupt to report false with nothing active")
	}
}
