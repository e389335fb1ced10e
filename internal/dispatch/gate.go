package dispatch

import (
	"context"
	"sync"
)

// Gate is the session-wide tool_call_gate readiness latch. Mutating
// invocations serialize behind it so that a sandbox prompt or an MCP
// approval prompt for one call never races a second mutating call's own
// prompt; non-mutating calls never touch it and run fully concurrently.
//
// Modeled on the per-session mutex in the teacher's Runtime.lockSession,
// generalized from "one lock per session" to "one lock per session,
// acquired only by mutating calls".
type Gate struct {
	mu sync.Mutex
}

// NewGate creates a ready-to-acquire gate.
func NewGate() *Gate {
	return &Gate{}
}

// Await blocks until the gate is free or ctx is done, returning a release
// func on success. Callers that are not mutating should not call Await at
// all.
func (g *Gate) Await(ctx context.Context) (func(), error) {
	acquired := make(chan struct{})
	go func() {
		g.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return g.mu.Unlock, nil
	case <-ctx.Done():
		// The goroutine above may still acquire the lock later; release it
		// immediately so the gate doesn't leak held-forever.
		go func() {
			<-acquired
			g.mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}
