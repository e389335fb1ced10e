package turn

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nexus-core/agentcore/internal/dispatch"
	"github.com/nexus-core/agentcore/internal/rollout"
	"github.com/nexus-core/agentcore/internal/statedb"
	"github.com/nexus-core/agentcore/pkg/types"
)

type fakeModelClient struct {
	body string
}

func (f fakeModelClient) Stream(ctx context.Context, tc types.TurnContext, p Prompt) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func sseBody(frames ...string) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("data: ")
		b.WriteString(f)
		b.WriteString("\n\n")
	}
	return b.String()
}

type echoHandler struct{}

func (echoHandler) Kind() dispatch.ToolKind            { return dispatch.ToolKindFunction }
func (echoHandler) IsMutating(dispatch.Invocation) bool { return false }
func (echoHandler) Execute(ctx context.Context, inv dispatch.Invocation) (dispatch.ToolOutput, error) {
	return dispatch.ToolOutput{Content: "echo:" + string(inv.Payload), Success: true}, nil
}

func newTestRuntime(t *testing.T, body string) (*Runtime, *rollout.Writer, *statedb.Store) {
	t.Helper()
	registry := dispatch.NewRegistry()
	registry.Register("echo", echoHandler{})
	d := dispatch.NewDispatcher(registry)

	store, err := statedb.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("statedb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	path := filepath.Join(t.TempDir(), "rollout.jsonl")
	w, err := rollout.Create(path)
	if err != nil {
		t.Fatalf("rollout.Create: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	r := NewRuntime(fakeModelClient{body: body}, store, d)
	return r, w, store
}

func drainEvents(ch <-chan Event) []Event {
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestRunTurnCompletesWithPlainTextResponse(t *testing.T) {
	body := sseBody(
		`{"id":"r1","choices":[{"delta":{"content":"hello"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`,
	)
	r, w, store := newTestRuntime(t, body)
	id := types.NewThreadID()

	out, err := r.RunTurn(context.Background(), TurnInput{
		TurnID:   "turn-1",
		ThreadID: id,
		Defaults: types.TurnContext{Cwd: "/repo"},
		Writer:   w,
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	events := drainEvents(out)
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	if events[0].Kind != EventTurnStarted {
		t.Fatalf("expected the first event to be TurnStarted, got %v", events[0].Kind)
	}
	last := events[len(events)-1]
	if last.Kind != EventTurnComplete {
		t.Fatalf("expected the turn to complete, got %v (%v)", last.Kind, last.Err)
	}
	if last.LastAgentMessage != "hello" {
		t.Fatalf("expected the last agent message to be captured, got %q", last.LastAgentMessage)
	}

	meta, err := store.ListThreads(context.Background(), statedb.ListOptions{})
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(meta.Threads) != 1 || meta.Threads[0].TokensUsed != 12 {
		t.Fatalf("expected tokens_used to be recorded, got %+v", meta.Threads)
	}
}

func TestRunTurnDispatchesFunctionCalls(t *testing.T) {
	body := sseBody(
		`{"id":"r1","choices":[{"delta":{"tool_calls":[{"id":"call_a","function":{"name":"echo","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)
	r, w, _ := newTestRuntime(t, body)
	id := types.NewThreadID()

	out, err := r.RunTurn(context.Background(), TurnInput{
		TurnID:   "turn-1",
		ThreadID: id,
		Defaults: types.TurnContext{Cwd: "/repo"},
		Writer:   w,
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	var sawBegin, sawEnd, sawComplete bool
	for e := range out {
		switch e.Kind {
		case EventToolCallBegin:
			sawBegin = true
			if e.CallID != "call_a" {
				t.Fatalf("unexpected call id %q", e.CallID)
			}
		case EventToolCallEnd:
			sawEnd = true
		case EventTurnComplete:
			sawComplete = true
		}
	}
	if !sawBegin || !sawEnd || !sawComplete {
		t.Fatalf("expected begin, end, and complete events, got begin=%v end=%v complete=%v", sawBegin, sawEnd, sawComplete)
	}

	items, err := rollout.ReadAll(w.Path())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var sawOutput bool
	for _, item := range items {
		if item.Kind == types.RolloutItemResponse && item.Response != nil && item.Response.Kind == types.ResponseItemFunctionCallOutput {
			sawOutput = true
		}
	}
	if !sawOutput {
		t.Fatal("expected a persisted FunctionCallOutput response item")
	}
}

// blockingReader never produces data or EOF until closed, standing in for
// an open model stream that a replacement must preempt rather than wait
// out.
type blockingReader struct {
	closed chan struct{}
}

func newBlockingReader() *blockingReader { return &blockingReader{closed: make(chan struct{})} }

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.EOF
}

func (b *blockingReader) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

type blockingModelClient struct{ r *blockingReader }

func (c blockingModelClient) Stream(ctx context.Context, tc types.TurnContext, p Prompt) (io.ReadCloser, error) {
	return c.r, nil
}

func TestRunTurnReplacementAbortsPriorTurn(t *testing.T) {
	registry := dispatch.NewRegistry()
	d := dispatch.NewDispatcher(registry)
	store, err := statedb.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("statedb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	blocker := newBlockingReader()
	t.Cleanup(func() { blocker.Close() })
	r := NewRuntime(blockingModelClient{r: blocker}, store, d, WithIdleTimeout(30*time.Millisecond))

	path1 := filepath.Join(t.TempDir(), "rollout1.jsonl")
	w1, err := rollout.Create(path1)
	if err != nil {
		t.Fatalf("rollout.Create: %v", err)
	}
	defer w1.Close()

	id := types.NewThreadID()

	first, err := r.RunTurn(context.Background(), TurnInput{
		TurnID:   "turn-1",
		ThreadID: id,
		Defaults: types.TurnContext{Cwd: "/repo"},
		Writer:   w1,
	})
	if err != nil {
		t.Fatalf("RunTurn first: %v", err)
	}

	path2 := filepath.Join(t.TempDir(), "rollout2.jsonl")
	w2, err := rollout.Create(path2)
	if err != nil {
		t.Fatalf("rollout.Create: %v", err)
	}
	defer w2.Close()

	second, err := r.RunTurn(context.Background(), TurnInput{
		TurnID:   "turn-2",
		ThreadID: id,
		Defaults: types.TurnContext{Cwd: "/repo"},
		Writer:   w2,
	})
	if err != nil {
		t.Fatalf("RunTurn second: %v", err)
	}

	var firstAborted bool
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-first:
			if !ok {
				first = nil
				break
			}
			if e.Kind == EventTurnAborted && e.AbortReason == AbortReplaced {
				firstAborted = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for the first turn to abort")
		}
		if first == nil {
			break
		}
	}
	if !firstAborted {
		t.Fatal("expected the first turn to abort with AbortReplaced")
	}

	for range second {
	}
}
