package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nexus-core/agentcore/internal/threadmgr"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// Delivery selects where a review sub-turn runs: on the calling thread
// (Inline) or on a freshly spawned sibling thread (Detached).
type Delivery string

const (
	DeliveryInline   Delivery = "inline"
	DeliveryDetached Delivery = "detached"
)

// Manager runs review sub-turns and generic child-agent collaboration on
// top of a threadmgr.Manager (C7). It never touches the rollout or
// statedb directly; everything it does is expressed as ordinary threads
// and turns, kept separate by ThreadSourceReview/ThreadSourceSubAgent.
type Manager struct {
	threads *threadmgr.Manager

	mu       sync.Mutex
	children map[string]*childState
}

// NewManager wires a review Manager on top of an already-constructed
// threadmgr.Manager.
func NewManager(threads *threadmgr.Manager) *Manager {
	return &Manager{threads: threads, children: make(map[string]*childState)}
}

// StartInput configures a review/start request.
type StartInput struct {
	ThreadID types.ThreadID
	Delivery Delivery
	Target   Target
}

// StartResult mirrors the review/start response: the id of the turn that
// was started and the thread it runs on (equal to the origin thread for
// Inline delivery, a freshly spawned sibling for Detached).
type StartResult struct {
	TurnID         string
	ReviewThreadID types.ThreadID
}

// Start validates target, resolves the thread the review runs on, emits
// the EnteredReviewMode marker, and starts the review sub-turn. It returns
// as soon as the turn has started (status InProgress); the ExitedReviewMode
// marker carrying the formatted verdict is published asynchronously once
// the sub-turn's model response completes.
func (m *Manager) Start(ctx context.Context, in StartInput) (StartResult, error) {
	if err := in.Target.Validate(); err != nil {
		return StartResult{}, err
	}

	origin, err := m.threads.Thread(in.ThreadID)
	if err != nil {
		return StartResult{}, err
	}

	delivery := in.Delivery
	if delivery == "" {
		delivery = DeliveryInline
	}

	target := origin
	if delivery == DeliveryDetached {
		sibling, err := m.threads.StartThread(ctx, threadmgr.StartThreadInput{
			Defaults: origin.Defaults(),
			Source:   types.ThreadSourceReview,
		})
		if err != nil {
			return StartResult{}, fmt.Errorf("review: start detached thread: %w", err)
		}
		target = sibling
	}

	turnID := uuid.NewString()
	description := in.Target.Describe()

	if err := target.Publish(ctx, enteredReviewModeEvent(turnID, description)); err != nil {
		return StartResult{}, fmt.Errorf("review: publish entered-review marker: %w", err)
	}

	op := threadmgr.Op{
		Kind:         threadmgr.OpUserTurn,
		TurnID:       turnID,
		Input:        []types.ResponseItem{types.NewMessageItem("user", types.ContentBlock{Text: reviewUserMessage(in.Target)})},
		PromptExtras: turn.PromptOptions{Instructions: reviewInstructions()},
	}

	th, events, err := m.threads.RunTurn(ctx, target.ID, op)
	if err != nil {
		return StartResult{}, fmt.Errorf("review: start turn: %w", err)
	}

	go m.finishReview(th, turnID, events)

	return StartResult{TurnID: turnID, ReviewThreadID: target.ID}, nil
}

// finishReview drains a review sub-turn's events onto its thread's
// notification queue, then publishes the ExitedReviewMode marker carrying
// the formatted verdict once the underlying turn has completed.
func (m *Manager) finishReview(th *threadmgr.Thread, turnID string, events <-chan turn.Event) {
	var lastAgentMessage string
	for e := range events {
		_ = th.Publish(context.Background(), e)
		if e.Kind == turn.EventTurnComplete {
			lastAgentMessage = e.LastAgentMessage
		}
	}
	_ = th.RefreshPersisted()

	body := FormatBody(ParseOutput(lastAgentMessage))
	_ = th.Publish(context.Background(), exitedReviewModeEvent(turnID, body))
}

// SpawnConfig configures a freshly spawned child agent's thread and the
// tool surface available to it.
type SpawnConfig struct {
	Defaults     types.TurnContext
	Tools        []turn.ToolSpec
	OutputSchema []byte
	PromptExtras turn.PromptOptions
}

// SpawnAgent creates a new thread for a child agent and, if input is
// non-empty, starts its first turn immediately. It returns the spawned
// agent's id (the underlying thread id), tracked from then on by
// SendInput/Wait/Close.
func (m *Manager) SpawnAgent(ctx context.Context, cfg SpawnConfig, input []types.ResponseItem, source types.ThreadSource) (string, error) {
	if source == "" {
		source = types.ThreadSourceSubAgent
	}
	th, err := m.threads.StartThread(ctx, threadmgr.StartThreadInput{Defaults: cfg.Defaults, Source: source})
	if err != nil {
		return "", fmt.Errorf("review: spawn agent: %w", err)
	}

	agentID := string(th.ID)
	state := newChildState(th.ID)
	m.mu.Lock()
	m.children[agentID] = state
	m.mu.Unlock()

	if len(input) > 0 {
		if err := m.runChildTurn(ctx, state, th.ID, input, cfg); err != nil {
			return agentID, err
		}
	}
	return agentID, nil
}

// SendInput starts a fresh turn on an already-spawned child agent's
// thread, carrying forward whatever the thread has persisted so far.
func (m *Manager) SendInput(ctx context.Context, agentID string, input []types.ResponseItem) error {
	state, ok := m.child(agentID)
	if !ok {
		return ErrChildNotFound(agentID)
	}
	return m.runChildTurn(ctx, state, state.threadID, input, SpawnConfig{})
}

func (m *Manager) runChildTurn(ctx context.Context, state *childState, threadID types.ThreadID, input []types.ResponseItem, cfg SpawnConfig) error {
	op := threadmgr.Op{
		Kind:         threadmgr.OpUserInput,
		Input:        input,
		Tools:        cfg.Tools,
		OutputSchema: cfg.OutputSchema,
		PromptExtras: cfg.PromptExtras,
	}
	th, events, err := m.threads.RunTurn(ctx, threadID, op)
	if err != nil {
		state.set(Snapshot{Status: ChildErrored, Reason: err.Error()})
		return fmt.Errorf("review: start child turn: %w", err)
	}
	state.set(Snapshot{Status: ChildRunning})
	go m.watchChild(th, state, events)
	return nil
}

// watchChild drains a child agent's turn events onto its thread's queue
// and records the terminal status Wait reports once the turn ends.
func (m *Manager) watchChild(th *threadmgr.Thread, state *childState, events <-chan turn.Event) {
	var lastAgentMessage string
	var abortErr error
	for e := range events {
		_ = th.Publish(context.Background(), e)
		switch e.Kind {
		case turn.EventTurnComplete:
			lastAgentMessage = e.LastAgentMessage
		case turn.EventTurnAborted:
			abortErr = e.Err
		}
	}
	_ = th.RefreshPersisted()

	if abortErr != nil {
		state.set(Snapshot{Status: ChildErrored, Reason: abortErr.Error()})
		return
	}
	state.set(Snapshot{Status: ChildCompleted, Message: lastAgentMessage})
}

// Wait blocks until every named agent reaches a terminal status or ctx
// ends, returning a snapshot per agent observed at that point. An unknown
// agent id reports ChildNotFound rather than failing the whole call; the
// caller drives timeouts/cancellation through ctx.
func (m *Manager) Wait(ctx context.Context, agentIDs []string) map[string]Snapshot {
	out := make(map[string]Snapshot, len(agentIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range agentIDs {
		state, ok := m.child(id)
		if !ok {
			out[id] = Snapshot{Status: ChildNotFound}
			continue
		}
		wg.Add(1)
		go func(id string, state *childState) {
			defer wg.Done()
			snap := state.waitTerminal(ctx)
			mu.Lock()
			out[id] = snap
			mu.Unlock()
		}(id, state)
	}
	wg.Wait()
	return out
}

// Close interrupts a child agent's active turn, if any, reports Shutdown
// to any pending or future Wait call, and drops it from the registry.
func (m *Manager) Close(agentID string) error {
	state, ok := m.child(agentID)
	if !ok {
		return ErrChildNotFound(agentID)
	}
	m.threads.SubmitWithID(context.Background(), state.threadID, threadmgr.Op{Kind: threadmgr.OpInterrupt})
	state.set(Snapshot{Status: ChildShutdown})

	m.mu.Lock()
	delete(m.children, agentID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) child(agentID string) (*childState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.children[agentID]
	return s, ok
}
