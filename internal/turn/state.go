package turn

import (
	"context"
	"sync"

	"github.com/nexus-core/agentcore/pkg/types"
)

// ThreadTurnState tracks the single active turn (if any) for one thread,
// enforcing the replacement rule: a new turn may not start on a thread
// until the previous turn has observed cancellation and released the
// rollout lock. Grounded on the teacher's per-session run context in
// AgenticLoop.Run, generalized from "one run per session" to an explicit
// acquire/replace/release state machine since this runtime must support a
// caller submitting a replacement turn before the old one has unwound.
type ThreadTurnState struct {
	mu       sync.Mutex
	threadID types.ThreadID
	active   *activeTurn
}

type activeTurn struct {
	turnID string
	cancel *CancellationToken
	done   chan struct{}
}

// NewThreadTurnState creates turn-lock tracking for one thread.
func NewThreadTurnState(threadID types.ThreadID) *ThreadTurnState {
	return &ThreadTurnState{threadID: threadID}
}

// Acquire starts turnID as the thread's active turn. If another turn is
// already active, it is tripped with CancelReplaced and Acquire blocks
// until that turn calls Release (or ctx is cancelled first). The returned
// token is this turn's cancellation handle; release must be called
// exactly once when the turn ends, regardless of outcome.
func (s *ThreadTurnState) Acquire(ctx context.Context, turnID string) (token *CancellationToken, release func(), err error) {
	s.mu.Lock()
	prior := s.active
	s.mu.Unlock()

	if prior != nil {
		prior.cancel.Trip(CancelReplaced)
		select {
		case <-prior.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	tok := NewCancellationToken(ctx)
	done := make(chan struct{})
	at := &activeTurn{turnID: turnID, cancel: tok, done: done}

	s.mu.Lock()
	s.active = at
	s.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			if s.active == at {
				s.active = nil
			}
			s.mu.Unlock()
		})
	}
	return tok, release, nil
}

// Interrupt trips the thread's active turn (if any) with CancelInterrupted
// and reports whether a turn was actually running.
func (s *ThreadTurnState) Interrupt() bool {
	s.mu.Lock()
	at := s.active
	s.mu.Unlock()
	if at == nil {
		return false
	}
	at.cancel.Trip(CancelInterrupted)
	return true
}

// ActiveTurnID returns the id of the currently running turn, or "" if none.
func (s *ThreadTurnState) ActiveTurnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.turnID
}
