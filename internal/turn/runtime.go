package turn

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nexus-core/agentcore/internal/codec"
	"github.com/nexus-core/agentcore/internal/dispatch"
	"github.com/nexus-core/agentcore/internal/rollout"
	"github.com/nexus-core/agentcore/internal/sandbox"
	"github.com/nexus-core/agentcore/internal/statedb"
	"github.com/nexus-core/agentcore/pkg/types"
)

// ModelClient opens the SSE stream for a turn's Prompt. The returned
// io.ReadCloser is handed straight to codec.NewDecoder; callers own
// closing it, which Runtime does once the stream is fully drained or the
// turn is cancelled.
type ModelClient interface {
	Stream(ctx context.Context, tc types.TurnContext, p Prompt) (io.ReadCloser, error)
}

// Runtime drives turns across threads, one active turn per thread at a
// time (C6). Grounded on the teacher's AgenticLoop.Run: a goroutine per
// turn drives a phase state machine and publishes events on a channel,
// except here interruption and replacement are explicit rather than
// solely deadline-based.
type Runtime struct {
	model    ModelClient
	store    *statedb.Store
	dispatch *dispatch.Dispatcher

	mu     sync.Mutex
	states map[types.ThreadID]*ThreadTurnState

	idleTimeout      time.Duration
	eventBuf         int
	sandboxAvailable func(types.SandboxType) bool
}

// RuntimeOption configures a Runtime at construction time.
type RuntimeOption func(*Runtime)

// WithIdleTimeout overrides the SSE decoder's idle timeout.
func WithIdleTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) { r.idleTimeout = d }
}

// WithEventBuffer overrides the event channel's buffer size.
func WithEventBuffer(n int) RuntimeOption {
	return func(r *Runtime) { r.eventBuf = n }
}

// WithSandboxAvailability overrides how Runtime probes whether the
// platform's native sandbox helper is actually usable before selecting it
// for a tool call. Without one, every platform sandbox is assumed present.
func WithSandboxAvailability(available func(types.SandboxType) bool) RuntimeOption {
	return func(r *Runtime) { r.sandboxAvailable = available }
}

// NewRuntime wires a ModelClient, the rollout/state store, and the tool
// dispatcher into a turn Runtime.
func NewRuntime(model ModelClient, store *statedb.Store, d *dispatch.Dispatcher, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		model:            model,
		store:            store,
		dispatch:         d,
		states:           make(map[types.ThreadID]*ThreadTurnState),
		idleTimeout:      codec.DefaultIdleTimeout,
		eventBuf:         64,
		sandboxAvailable: func(types.SandboxType) bool { return true },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) stateFor(threadID types.ThreadID) *ThreadTurnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[threadID]
	if !ok {
		s = NewThreadTurnState(threadID)
		r.states[threadID] = s
	}
	return s
}

// Interrupt trips the active turn on threadID, if any.
func (r *Runtime) Interrupt(threadID types.ThreadID) bool {
	return r.stateFor(threadID).Interrupt()
}

// TurnInput is everything RunTurn needs beyond the thread's persisted
// defaults: the turn id, the context overrides for this call, the
// writer appending to the thread's rollout file, the persisted history to
// carry forward, the new user input, and the tool specs in scope.
type TurnInput struct {
	TurnID       string
	ThreadID     types.ThreadID
	Defaults     types.TurnContext
	Overrides    Overrides
	Writer       *rollout.Writer
	Persisted    []types.ResponseItem
	Input        []types.ResponseItem
	Tools        []ToolSpec
	OutputSchema []byte
	PromptExtras PromptOptions
}

// RunTurn starts a turn on ti.ThreadID, replacing any turn already active
// on that thread. It returns a channel of Events that closes once the
// turn reaches TurnComplete or TurnAborted; callers must drain it.
func (r *Runtime) RunTurn(ctx context.Context, ti TurnInput) (<-chan Event, error) {
	state := r.stateFor(ti.ThreadID)
	token, release, err := state.Acquire(ctx, ti.TurnID)
	if err != nil {
		return nil, fmt.Errorf("turn: acquire thread lock: %w", err)
	}

	tc := BuildTurnContext(ti.Defaults, ti.Overrides, ti.TurnID)
	extras := ti.PromptExtras
	extras.Tools = ti.Tools
	extras.OutputSchema = ti.OutputSchema
	prompt := BuildPrompt(tc, ti.Persisted, ti.Input, extras)

	out := make(chan Event, r.eventBuf)
	go func() {
		defer release()
		defer close(out)
		r.drive(token, tc, ti, prompt, out)
	}()

	return out, nil
}

func (r *Runtime) emit(out chan<- Event, e Event, w *rollout.Writer) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	out <- e
	if w != nil {
		_ = w.Append(types.RolloutItem{
			Kind:      types.RolloutItemEvent,
			Timestamp: e.At,
			Event:     eventMsgPayload(e),
		})
	}
}

func eventMsgPayload(e Event) *types.EventMsgPayload {
	p := e.toRolloutEvent()
	return &p
}

// pendingCall tracks one in-flight FunctionCall from OutputItemDone
// through to its matching FunctionCallOutput.
type pendingCall struct {
	callID   types.CallID
	toolName string
	args     string
}

func (r *Runtime) drive(token *CancellationToken, tc types.TurnContext, ti TurnInput, prompt Prompt, out chan Event) {
	ctx := token.Context()
	r.emit(out, Event{Kind: EventTurnStarted, TurnID: ti.TurnID}, ti.Writer)

	stream, err := r.model.Stream(ctx, tc, prompt)
	if err != nil {
		r.abort(out, ti, token, AbortError, err)
		return
	}
	defer stream.Close()

	dec := codec.NewDecoder(stream, r.idleTimeout)

	var responseItems []types.ResponseItem
	var lastAgentMessage string
	var tokensUsed int64
	parallel := tc.ModelInfo.SupportsParallelCalls
	var pendingCalls []pendingCall
	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	var fatal error

	// runCall trips token rather than aborting the turn directly: it may run
	// concurrently with the decode loop below, which owns emitting the
	// single TurnAborted/TurnComplete event once it observes the trip.
	runCall := func(pc pendingCall) {
		defer wg.Done()
		r.emit(out, Event{Kind: EventToolCallBegin, TurnID: ti.TurnID, CallID: pc.callID, ToolName: pc.toolName}, ti.Writer)

		sandboxType := sandbox.SelectSandbox(tc.SandboxPolicy, types.PreferenceAuto, tc.SandboxPolicy.HasFullNetworkAccess(), r.sandboxAvailable)
		inv := dispatch.Invocation{
			ToolName:      pc.toolName,
			CallID:        pc.callID,
			Kind:          dispatch.ToolKindFunction,
			Payload:       []byte(pc.args),
			Sandbox:       sandboxType,
			SandboxPolicy: tc.SandboxPolicy.Kind,
		}
		callCtx := dispatch.WithSandboxPolicy(ctx, tc.SandboxPolicy, tc.WindowsSandboxLevel)
		outputItem, dispatchErr := r.dispatch.Dispatch(callCtx, inv)

		resultsMu.Lock()
		if dispatchErr != nil {
			if _, ok := dispatchErr.(*dispatch.FatalError); ok {
				if fatal == nil {
					fatal = dispatchErr
				}
				resultsMu.Unlock()
				token.Trip(CancelInterrupted)
				r.emit(out, Event{Kind: EventToolCallEnd, TurnID: ti.TurnID, CallID: pc.callID, ToolName: pc.toolName}, ti.Writer)
				return
			}
		} else {
			responseItems = append(responseItems, outputItem)
		}
		resultsMu.Unlock()

		r.emit(out, Event{Kind: EventToolCallEnd, TurnID: ti.TurnID, CallID: pc.callID, ToolName: pc.toolName}, ti.Writer)
	}

loop:
	for {
		select {
		case <-token.Done():
			r.abortTripped(out, ti, token, &resultsMu, &fatal)
			return
		default:
		}

		ev, err := dec.Next()
		if err != nil {
			if token.Cancelled() {
				r.abortTripped(out, ti, token, &resultsMu, &fatal)
				return
			}
			if se, ok := err.(*codec.StreamError); ok && se.Kind == codec.ErrKindContextWindowExceeded {
				r.abort(out, ti, token, AbortError, se)
				return
			}
			if err == io.EOF {
				break loop
			}
			r.abort(out, ti, token, AbortError, err)
			return
		}

		switch ev.Kind {
		case codec.EventOutputItemAdded:
			r.emit(out, Event{Kind: EventOutputItemAdded, TurnID: ti.TurnID, Item: ev.Item}, ti.Writer)

		case codec.EventOutputTextDelta:
			r.emit(out, Event{Kind: EventOutputTextDelta, TurnID: ti.TurnID, TextDelta: ev.TextDelta}, ti.Writer)

		case codec.EventReasoningDelta:
			r.emit(out, Event{Kind: EventReasoningDelta, TurnID: ti.TurnID, ReasoningDelta: ev.ReasoningDelta, ContentIndex: ev.ContentIndex}, ti.Writer)

		case codec.EventOutputItemDone:
			if ev.Item == nil {
				continue
			}
			if ev.Item.Kind == types.ResponseItemFunctionCall {
				pc := pendingCall{callID: ev.Item.Call.CallID, toolName: ev.Item.Call.Name, args: ev.Item.Call.Arguments}
				resultsMu.Lock()
				responseItems = append(responseItems, *ev.Item)
				pendingCalls = append(pendingCalls, pc)
				resultsMu.Unlock()
				wg.Add(1)
				if parallel {
					go runCall(pc)
				} else {
					runCall(pc)
				}
			} else {
				resultsMu.Lock()
				responseItems = append(responseItems, *ev.Item)
				if ev.Item.Kind == types.ResponseItemMessage && ev.Item.Message != nil {
					lastAgentMessage = lastText(ev.Item.Message)
				}
				resultsMu.Unlock()
			}
			r.emit(out, Event{Kind: EventItemCompleted, TurnID: ti.TurnID, Item: ev.Item}, ti.Writer)

		case codec.EventCompleted:
			if ev.TokenUsage != nil {
				tokensUsed = int64(ev.TokenUsage.TotalTokens)
			}
			break loop
		}
	}

	wg.Wait()

	select {
	case <-token.Done():
		r.abortTripped(out, ti, token, &resultsMu, &fatal)
		return
	default:
	}

	_ = pendingCalls // retained for future parallel-call bookkeeping (ordering, timeouts)

	now := time.Now().UTC()
	rolloutItems := make([]types.RolloutItem, 0, len(responseItems))
	for _, item := range responseItems {
		rolloutItems = append(rolloutItems, types.RolloutItem{Kind: types.RolloutItemResponse, Timestamp: now, Response: cloneResponseItem(item)})
	}

	if err := ti.Writer.AppendBatch(rolloutItems); err != nil {
		r.abort(out, ti, token, AbortError, err)
		return
	}

	if r.store != nil {
		_ = r.store.ApplyRolloutItems(context.Background(), ti.ThreadID, ti.Writer.Path(), rolloutItems, nil)
		if tokensUsed > 0 {
			_ = r.store.AddTokensUsed(context.Background(), ti.ThreadID, tokensUsed)
		}
	}

	r.emit(out, Event{Kind: EventTurnComplete, TurnID: ti.TurnID, LastAgentMessage: lastAgentMessage}, ti.Writer)
}

func cloneResponseItem(item types.ResponseItem) *types.ResponseItem {
	i := item
	return &i
}

func lastText(m *types.MessageItem) string {
	var text string
	for _, block := range m.Content {
		if block.Text != "" {
			text = block.Text
		}
	}
	return text
}

func (r *Runtime) abort(out chan<- Event, ti TurnInput, token *CancellationToken, reason AbortReason, err error) {
	if reason == AbortInterrupted {
		if tokenReason := token.Reason(); tokenReason == CancelReplaced {
			reason = AbortReplaced
		}
	}
	r.emit(out, Event{Kind: EventTurnAborted, TurnID: ti.TurnID, AbortReason: reason, Err: err}, ti.Writer)
}

// abortTripped reports a cancellation the runtime observed via
// token.Done(), distinguishing a tool's FatalError (recorded in fatal)
// from a genuine interrupt or replacement.
func (r *Runtime) abortTripped(out chan<- Event, ti TurnInput, token *CancellationToken, mu *sync.Mutex, fatal *error) {
	mu.Lock()
	err := *fatal
	mu.Unlock()
	if err != nil {
		r.abort(out, ti, token, AbortError, err)
		return
	}
	r.abort(out, ti, token, AbortInterrupted, nil)
}
