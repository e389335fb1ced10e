// Package threadmgr owns the map of live threads (C7): start_thread,
// resume_thread, remove_and_close_all_threads, submit_with_id, and
// next_event. Each thread owns exactly one rollout writer and one bounded
// notification queue; the turn runtime (internal/turn) is shared across all
// threads and keys its own per-thread turn lock by ThreadID.
package threadmgr

import (
	"context"

	"github.com/nexus-core/agentcore/internal/turn"
)

// DefaultEventQueueSize bounds a thread's notification queue when the
// caller does not configure one explicitly.
const DefaultEventQueueSize = 256

// eventQueue is a bounded, blocking FIFO of turn.Event values. Grounded on
// the teacher's BackpressureSink (internal/agent/event_sink.go), but
// simplified to a single lane: the spec calls for producers to block once a
// thread's consumer falls behind, not for events to be dropped, so there is
// no low-priority lane to shed load into.
type eventQueue struct {
	ch   chan turn.Event
	done <-chan struct{}
}

// newEventQueue builds a queue bounded at size slots; done is the owning
// thread's lifetime signal, closed once the thread is removed so that a
// blocked push or pop unblocks instead of leaking its goroutine.
func newEventQueue(size int, done <-chan struct{}) *eventQueue {
	if size <= 0 {
		size = DefaultEventQueueSize
	}
	return &eventQueue{ch: make(chan turn.Event, size), done: done}
}

// push blocks until the event is queued, the thread is removed, or ctx ends.
func (q *eventQueue) push(ctx context.Context, e turn.Event) error {
	select {
	case q.ch <- e:
		return nil
	case <-q.done:
		return ErrThreadClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pop blocks until an event is available, the thread is removed, or ctx ends.
// An already-queued event is always drained before a closed done/ctx is
// honored, so a thread removed mid-turn still yields every event it
// managed to buffer before termination.
func (q *eventQueue) pop(ctx context.Context) (turn.Event, error) {
	select {
	case e := <-q.ch:
		return e, nil
	default:
	}
	select {
	case e := <-q.ch:
		return e, nil
	case <-q.done:
		return turn.Event{}, ErrThreadClosed
	case <-ctx.Done():
		return turn.Event{}, ctx.Err()
	}
}
