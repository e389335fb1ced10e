package threadmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-core/agentcore/internal/rollout"
	"github.com/nexus-core/agentcore/internal/statedb"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// Manager owns every thread live in this process (C7): it serves
// start_thread, resume_thread, remove_and_close_all_threads, and routes
// submit_with_id/next_event to the right Thread. The turn runtime itself
// only ever sees one thread at a time; Manager is what makes "a set of
// concurrently live threads" a coherent concept.
//
// Grounded on the teacher's Runtime.sessionLocks map
// (internal/agent/runtime.go) for the live-map-plus-mutex shape, and
// internal/gateway/runtime.go for the start/resume split at the session
// boundary.
type Manager struct {
	runtime     *turn.Runtime
	store       *statedb.Store
	sessionsDir string

	mu      sync.RWMutex
	threads map[types.ThreadID]*Thread

	queueSize int
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithQueueSize overrides the per-thread notification queue's buffer size.
func WithQueueSize(n int) ManagerOption {
	return func(m *Manager) { m.queueSize = n }
}

// NewManager wires a turn.Runtime, the state index, and the sessions
// directory (where rollout files live, i.e. $CODEX_HOME) into a thread
// Manager.
func NewManager(runtime *turn.Runtime, store *statedb.Store, sessionsDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		runtime:     runtime,
		store:       store,
		sessionsDir: sessionsDir,
		threads:     make(map[types.ThreadID]*Thread),
		queueSize:   DefaultEventQueueSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartThreadInput configures a freshly created thread.
type StartThreadInput struct {
	Defaults types.TurnContext
	Source   types.ThreadSource
}

// StartThread allocates a new ThreadID, opens its rollout file, durably
// records the opening SessionMeta and the thread's initial TurnContext
// defaults, and registers it in the live map.
func (m *Manager) StartThread(ctx context.Context, in StartThreadInput) (*Thread, error) {
	id := types.NewThreadID()
	now := time.Now().UTC()
	path := rollout.PathFor(m.sessionsDir, now, rollout.FileName(id, now, uuid.New()))

	w, err := rollout.Create(path)
	if err != nil {
		return nil, fmt.Errorf("threadmgr: start %s: create rollout: %w", id, err)
	}

	source := in.Source
	if source == "" {
		source = types.ThreadSourceInteractive
	}
	sessionMeta := types.RolloutItem{
		Kind:      types.RolloutItemSessionMeta,
		Timestamp: now,
		SessionMeta: &types.SessionMetaPayload{
			ThreadID: id, CreatedAt: now, Cwd: in.Defaults.Cwd, Source: source,
		},
	}
	turnCtxItem := types.RolloutItem{
		Kind: types.RolloutItemTurnContext, Timestamp: now, TurnContext: &in.Defaults,
	}
	items := []types.RolloutItem{sessionMeta, turnCtxItem}
	if err := w.AppendBatch(items); err != nil {
		w.Close()
		return nil, fmt.Errorf("threadmgr: start %s: write opening items: %w", id, err)
	}

	if m.store != nil {
		if err := m.store.ApplyRolloutItems(ctx, id, path, items, nil); err != nil {
			w.Close()
			return nil, fmt.Errorf("threadmgr: start %s: index thread: %w", id, err)
		}
	}

	th := newThread(id, in.Defaults, w, nil, m.queueSize)
	m.mu.Lock()
	m.threads[id] = th
	m.mu.Unlock()
	return th, nil
}

// ResumeThread reopens an already-known thread: if it is already live in
// this process it is returned as-is; otherwise its rollout file is
// replayed to reconstruct persisted response items and the thread's
// persisted TurnContext defaults, the file is reopened for append, and the
// thread is registered in the live map. overrides apply to the next turn
// only and are never written back as persisted defaults.
func (m *Manager) ResumeThread(ctx context.Context, id types.ThreadID, overrides turn.Overrides) (*Thread, error) {
	if th, err := m.lookup(id); err == nil {
		return th, nil
	}

	path, err := m.rolloutPathFor(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := rollout.ReadAll(path)
	if err != nil {
		return nil, fmt.Errorf("threadmgr: resume %s: read rollout: %w", id, err)
	}

	persistedDefaults := defaultsFromRollout(items)
	tc := turn.BuildTurnContext(persistedDefaults, overrides, persistedDefaults.SubID)

	w, err := rollout.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("threadmgr: resume %s: open rollout: %w", id, err)
	}

	th := newThread(id, tc, w, responseItemsFrom(items), m.queueSize)
	m.mu.Lock()
	m.threads[id] = th
	m.mu.Unlock()
	return th, nil
}

func (m *Manager) rolloutPathFor(ctx context.Context, id types.ThreadID) (string, error) {
	if m.store == nil {
		return "", fmt.Errorf("threadmgr: resume %s: no state index configured", id)
	}
	meta, err := m.store.GetThread(ctx, id)
	if err != nil {
		return "", fmt.Errorf("threadmgr: resume %s: %w", id, err)
	}
	if meta == nil {
		return "", ErrUnknownThread
	}
	return meta.RolloutPath, nil
}

// defaultsFromRollout derives the TurnContext a resumed thread should carry
// forward: the most recently persisted TurnContext item wins outright,
// falling back to just the cwd recorded in the opening SessionMeta when no
// TurnContext item was ever written.
func defaultsFromRollout(items []types.RolloutItem) types.TurnContext {
	var tc types.TurnContext
	for _, item := range items {
		switch item.Kind {
		case types.RolloutItemSessionMeta:
			if item.SessionMeta != nil {
				tc.Cwd = item.SessionMeta.Cwd
			}
		case types.RolloutItemTurnContext:
			if item.TurnContext != nil {
				tc = *item.TurnContext
			}
		}
	}
	return tc
}

// RemoveAndCloseAllThreads interrupts every live thread's active turn (if
// any), closes its rollout writer, and clears the live map. Used on process
// shutdown; it is not an error to call this with no threads live.
func (m *Manager) RemoveAndCloseAllThreads(ctx context.Context) error {
	m.mu.Lock()
	threads := make([]*Thread, 0, len(m.threads))
	for id, th := range m.threads {
		threads = append(threads, th)
		delete(m.threads, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, th := range threads {
		m.runtime.Interrupt(th.ID)
		if err := th.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) lookup(id types.ThreadID) (*Thread, error) {
	m.mu.RLock()
	th, ok := m.threads[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownThread
	}
	return th, nil
}

// Thread returns the live Thread registered under id, or ErrUnknownThread.
// Exported for orchestration layers built on top of a Manager (review
// sub-turns) that need direct access to a thread's defaults or queue.
func (m *Manager) Thread(id types.ThreadID) (*Thread, error) {
	return m.lookup(id)
}

// SubmitWithID enqueues op against thread id. UserInput/UserTurn start a
// turn (replacing any turn already active on this thread, per C6);
// Interrupt trips the active turn's cancellation token; OverrideTurnContext
// durably rewrites the thread's persisted defaults without starting a turn.
func (m *Manager) SubmitWithID(ctx context.Context, id types.ThreadID, op Op) error {
	th, err := m.lookup(id)
	if err != nil {
		return err
	}

	switch op.Kind {
	case OpInterrupt:
		m.runtime.Interrupt(id)
		return nil
	case OpOverrideTurnContext:
		return m.overrideTurnContext(ctx, th, op.NewDefaults)
	case OpUserInput, OpUserTurn:
		return m.startTurn(ctx, th, op)
	default:
		return fmt.Errorf("threadmgr: unknown op kind %q", op.Kind)
	}
}

func (m *Manager) overrideTurnContext(ctx context.Context, th *Thread, overrides turn.Overrides) error {
	cur := th.Defaults()
	next := turn.BuildTurnContext(cur, overrides, cur.SubID)

	item := types.RolloutItem{Kind: types.RolloutItemTurnContext, Timestamp: time.Now().UTC(), TurnContext: &next}
	if err := th.Writer.Append(item); err != nil {
		return fmt.Errorf("threadmgr: override turn context for %s: %w", th.ID, err)
	}
	if m.store != nil {
		if err := m.store.ApplyRolloutItems(ctx, th.ID, th.Writer.Path(), []types.RolloutItem{item}, nil); err != nil {
			return fmt.Errorf("threadmgr: override turn context for %s: index: %w", th.ID, err)
		}
	}
	th.setDefaults(next)
	return nil
}

func (m *Manager) startTurn(ctx context.Context, th *Thread, op Op) error {
	events, err := m.beginTurn(ctx, th, op)
	if err != nil {
		return err
	}
	go m.pump(th, events)
	return nil
}

// beginTurn constructs a TurnInput from th's current defaults and op and
// hands it to the shared turn.Runtime, returning its raw event channel.
func (m *Manager) beginTurn(ctx context.Context, th *Thread, op Op) (<-chan turn.Event, error) {
	turnID := op.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	ti := turn.TurnInput{
		TurnID:       turnID,
		ThreadID:     th.ID,
		Defaults:     th.Defaults(),
		Overrides:    op.Overrides,
		Writer:       th.Writer,
		Persisted:    th.snapshotPersisted(),
		Input:        op.Input,
		Tools:        op.Tools,
		OutputSchema: op.OutputSchema,
		PromptExtras: op.PromptExtras,
	}

	events, err := m.runtime.RunTurn(ctx, ti)
	if err != nil {
		return nil, fmt.Errorf("threadmgr: start turn on %s: %w", th.ID, err)
	}
	return events, nil
}

// RunTurn starts op on thread id exactly like SubmitWithID's
// user_input/user_turn handling, but returns the turn's raw event channel
// to the caller instead of draining it into the thread's own notification
// queue. Ordinary callers use SubmitWithID/NextEvent; orchestration layers
// that need to observe or transform a turn's events before they reach
// NextEvent (C8 review markers) use RunTurn directly and must call
// Thread.Publish for every event they want surfaced, then Thread.RefreshPersisted
// once the channel closes.
func (m *Manager) RunTurn(ctx context.Context, id types.ThreadID, op Op) (*Thread, <-chan turn.Event, error) {
	th, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	events, err := m.beginTurn(ctx, th, op)
	if err != nil {
		return nil, nil, err
	}
	return th, events, nil
}

// pump drains one turn's event channel into the thread's bounded
// notification queue, then refreshes the thread's persisted response items
// from the rollout file the turn just appended to.
func (m *Manager) pump(th *Thread, events <-chan turn.Event) {
	for e := range events {
		if err := th.queue.push(context.Background(), e); err != nil {
			// Thread was removed mid-turn; stop draining rather than block
			// forever on a reader that will never come back.
			continue
		}
	}
	_ = th.refreshPersisted()
}

// NextEvent blocks until id's next notification is available, the thread
// is removed, or ctx ends.
func (m *Manager) NextEvent(ctx context.Context, id types.ThreadID) (turn.Event, error) {
	th, err := m.lookup(id)
	if err != nil {
		return turn.Event{}, err
	}
	return th.NextEvent(ctx)
}
