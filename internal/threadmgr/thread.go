package threadmgr

import (
	"context"
	"sync"

	"github.com/nexus-core/agentcore/internal/rollout"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// Thread is one live, in-process thread: its rollout writer, its persisted
// TurnContext defaults, the response items carried forward into the next
// turn's prompt, and the bounded queue of notifications next_event drains.
// A Thread owns no turn-lock of its own: internal/turn.Runtime keeps one
// ThreadTurnState per ThreadID and enforces the "new turn replaces the
// prior one" rule there.
type Thread struct {
	ID     types.ThreadID
	Writer *rollout.Writer

	mu        sync.Mutex
	defaults  types.TurnContext
	persisted []types.ResponseItem

	queue  *eventQueue
	cancel context.CancelFunc
	done   <-chan struct{}
}

func newThread(id types.ThreadID, defaults types.TurnContext, w *rollout.Writer, persisted []types.ResponseItem, queueSize int) *Thread {
	ctx, cancel := context.WithCancel(context.Background())
	return &Thread{
		ID:        id,
		Writer:    w,
		defaults:  defaults,
		persisted: persisted,
		queue:     newEventQueue(queueSize, ctx.Done()),
		cancel:    cancel,
		done:      ctx.Done(),
	}
}

// Defaults returns the thread's current persisted TurnContext defaults.
func (t *Thread) Defaults() types.TurnContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.defaults
}

func (t *Thread) setDefaults(tc types.TurnContext) {
	t.mu.Lock()
	t.defaults = tc
	t.mu.Unlock()
}

// snapshotPersisted returns a copy of the response items carried forward
// into the next turn's prompt, safe to hand to turn.BuildPrompt without
// holding the thread's lock.
func (t *Thread) snapshotPersisted() []types.ResponseItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.ResponseItem, len(t.persisted))
	copy(out, t.persisted)
	return out
}

// refreshPersisted re-derives the persisted response-item list from the
// thread's own rollout file: the rollout is the single source of truth for
// what a resumed or continued turn sees, so re-reading it after a turn
// completes is simpler and less error-prone than mirroring the runtime's
// bookkeeping of what it just appended.
func (t *Thread) refreshPersisted() error {
	items, err := rollout.ReadAll(t.Writer.Path())
	if err != nil {
		return err
	}
	responses := responseItemsFrom(items)
	t.mu.Lock()
	t.persisted = responses
	t.mu.Unlock()
	return nil
}

func responseItemsFrom(items []types.RolloutItem) []types.ResponseItem {
	out := make([]types.ResponseItem, 0, len(items))
	for _, item := range items {
		if item.Kind == types.RolloutItemResponse && item.Response != nil {
			out = append(out, *item.Response)
		}
	}
	return out
}

// NextEvent blocks until the thread's next notification is available, the
// thread is removed (ErrThreadClosed), or ctx ends.
func (t *Thread) NextEvent(ctx context.Context) (turn.Event, error) {
	return t.queue.pop(ctx)
}

// Publish enqueues e on the thread's own notification queue, the same one
// NextEvent drains. Exported for orchestration layers built on top of a
// Manager (review sub-turns) that need to interleave synthetic marker
// events with a turn's native events before a caller ever observes them.
func (t *Thread) Publish(ctx context.Context, e turn.Event) error {
	return t.queue.push(ctx, e)
}

// RefreshPersisted re-derives the thread's persisted response items from its
// rollout file. SubmitWithID's internal pump does this automatically once a
// turn's events are drained; callers driving a turn directly via
// Manager.RunTurn must call it themselves once they've finished draining.
func (t *Thread) RefreshPersisted() error {
	return t.refreshPersisted()
}

// close tears down the thread: in-flight queue operations observe t.done
// and unblock, and the rollout writer is flushed and closed. Callers must
// have already removed the thread from the manager's live map.
func (t *Thread) close() error {
	t.cancel()
	return t.Writer.Close()
}
