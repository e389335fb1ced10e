package review

import (
	"context"
	"sync"

	"github.com/nexus-core/agentcore/pkg/types"
)

// ChildStatus is one spawned child agent's lifecycle state, matching the
// closed union a wait response reports per agent.
type ChildStatus string

const (
	ChildPendingInit ChildStatus = "pending_init"
	ChildRunning     ChildStatus = "running"
	ChildCompleted   ChildStatus = "completed"
	ChildErrored     ChildStatus = "errored"
	ChildShutdown    ChildStatus = "shutdown"
	ChildNotFound    ChildStatus = "not_found"
)

// Snapshot is one child agent's status as reported by Wait.
type Snapshot struct {
	Status  ChildStatus
	Message string // set when Status == ChildCompleted
	Reason  string // set when Status == ChildErrored
}

func (s Snapshot) terminal() bool {
	switch s.Status {
	case ChildCompleted, ChildErrored, ChildShutdown, ChildNotFound:
		return true
	}
	return false
}

// childState tracks one spawned child agent's thread and lifecycle status.
// Grounded on the teacher's SubagentRunRecord/SubagentOutcome
// (internal/multiagent/subagent_registry.go), narrowed to the status enum
// the collaboration primitives expose and a done channel in place of the
// teacher's disk-persisted registry (children are process-lifetime only
// here, same as the threads they wrap).
type childState struct {
	threadID types.ThreadID

	mu   sync.Mutex
	snap Snapshot
	done chan struct{}
}

func newChildState(threadID types.ThreadID) *childState {
	return &childState{threadID: threadID, snap: Snapshot{Status: ChildPendingInit}, done: make(chan struct{})}
}

// set records snap as the child's current status, closing done the first
// time a terminal status is reached. Later calls after a terminal status
// (there shouldn't be any, but a racing watcher goroutine is possible) are
// silently ignored rather than panicking on a second close.
func (c *childState) set(snap Snapshot) {
	c.mu.Lock()
	already := c.snap.terminal()
	if !already {
		c.snap = snap
	}
	closing := !already && snap.terminal()
	c.mu.Unlock()
	if closing {
		close(c.done)
	}
}

func (c *childState) current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// waitTerminal blocks until this child reaches a terminal status or ctx
// ends, returning whatever snapshot is current at that point (non-terminal
// if ctx ended first).
func (c *childState) waitTerminal(ctx context.Context) Snapshot {
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return c.current()
}
