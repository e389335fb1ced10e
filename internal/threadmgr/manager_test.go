package threadmgr

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nexus-core/agentcore/internal/dispatch"
	"github.com/nexus-core/agentcore/internal/statedb"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

type fakeModelClient struct{ body string }

func (f fakeModelClient) Stream(ctx context.Context, tc types.TurnContext, p turn.Prompt) (io.ReadCloser, error) {
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

func newTestManager(t *testing.T, body string) (*Manager, *statedb.Store) {
	t.Helper()
	registry := dispatch.NewRegistry()
	d := dispatch.NewDispatcher(registry)

	store, err := statedb.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("statedb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	r := turn.NewRuntime(fakeModelClient{body: body}, store, d)
	return NewManager(r, store, t.TempDir()), store
}

func drainUntilComplete(t *testing.T, m *Manager, id types.ThreadID) turn.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for turn to complete")
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		e, err := m.NextEvent(ctx, id)
		cancel()
		if err != nil {
			t.Fatalf("NextEvent: %v", err)
		}
		if e.Kind == turn.EventTurnComplete || e.Kind == turn.EventTurnAborted {
			return e
		}
	}
}

func TestStartThreadThenSubmitCompletesATurn(t *testing.T) {
	body := sseBody(
		`{"id":"r1","choices":[{"delta":{"content":"hi there"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	)
	m, _ := newTestManager(t, body)

	th, err := m.StartThread(context.Background(), StartThreadInput{
		Defaults: types.TurnContext{Cwd: "/repo", ModelInfo: types.ModelInfo{Provider: "openai", Model: "gpt-5"}},
	})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}

	input := []types.ResponseItem{types.NewMessageItem("user", types.ContentBlock{Text: "hello"})}
	if err := m.SubmitWithID(context.Background(), th.ID, Op{Kind: OpUserInput, Input: input}); err != nil {
		t.Fatalf("SubmitWithID: %v", err)
	}

	last := drainUntilComplete(t, m, th.ID)
	if last.Kind != turn.EventTurnComplete {
		t.Fatalf("expected the turn to complete, got %v (%v)", last.Kind, last.Err)
	}
	if last.LastAgentMessage != "hi there" {
		t.Fatalf("expected the agent's reply to be captured, got %q", last.LastAgentMessage)
	}
}

func TestResumeThreadReplaysRolloutIntoPersisted(t *testing.T) {
	body := sseBody(
		`{"id":"r1","choices":[{"delta":{"content":"second turn reply"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	)
	m, _ := newTestManager(t, body)

	th, err := m.StartThread(context.Background(), StartThreadInput{
		Defaults: types.TurnContext{Cwd: "/repo", ModelInfo: types.ModelInfo{Provider: "openai", Model: "gpt-5"}},
	})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}

	input := []types.ResponseItem{types.NewMessageItem("user", types.ContentBlock{Text: "first"})}
	if err := m.SubmitWithID(context.Background(), th.ID, Op{Kind: OpUserInput, Input: input}); err != nil {
		t.Fatalf("SubmitWithID: %v", err)
	}
	if last := drainUntilComplete(t, m, th.ID); last.Kind != turn.EventTurnComplete {
		t.Fatalf("expected first turn to complete, got %v", last.Kind)
	}

	// Simulate a fresh process: close the thread's file handle and drop it
	// from the live map, then resume it by id.
	if err := th.Writer.Close(); err != nil {
		t.Fatalf("Writer.Close: %v", err)
	}
	m.mu.Lock()
	delete(m.threads, th.ID)
	m.mu.Unlock()

	resumed, err := m.ResumeThread(context.Background(), th.ID, turn.Overrides{})
	if err != nil {
		t.Fatalf("ResumeThread: %v", err)
	}
	if resumed.Defaults().ModelInfo.Model != "gpt-5" {
		t.Fatalf("expected resumed thread to inherit persisted model, got %+v", resumed.Defaults())
	}
	persisted := resumed.snapshotPersisted()
	if len(persisted) == 0 {
		t.Fatal("expected resumed thread to carry forward response items from the rollout")
	}

	input2 := []types.ResponseItem{types.NewMessageItem("user", types.ContentBlock{Text: "second"})}
	if err := m.SubmitWithID(context.Background(), th.ID, Op{Kind: OpUserInput, Input: input2}); err != nil {
		t.Fatalf("SubmitWithID (resumed): %v", err)
	}
	last := drainUntilComplete(t, m, th.ID)
	if last.LastAgentMessage != "second turn reply" {
		t.Fatalf("expected the resumed thread's turn to complete normally, got %+v", last)
	}
}

func TestOverrideTurnContextPersistsAcrossResume(t *testing.T) {
	m, _ := newTestManager(t, sseBody(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`))

	th, err := m.StartThread(context.Background(), StartThreadInput{
		Defaults: types.TurnContext{Cwd: "/repo", ModelInfo: types.ModelInfo{Provider: "openai", Model: "gpt-5"}},
	})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}

	err = m.SubmitWithID(context.Background(), th.ID, Op{
		Kind:        OpOverrideTurnContext,
		NewDefaults: turn.Overrides{Model: "gpt-5-mini"},
	})
	if err != nil {
		t.Fatalf("SubmitWithID (override): %v", err)
	}
	if th.Defaults().ModelInfo.Model != "gpt-5-mini" {
		t.Fatalf("expected in-memory defaults to reflect the override, got %+v", th.Defaults())
	}

	if err := th.Writer.Close(); err != nil {
		t.Fatalf("Writer.Close: %v", err)
	}
	m.mu.Lock()
	delete(m.threads, th.ID)
	m.mu.Unlock()

	resumed, err := m.ResumeThread(context.Background(), th.ID, turn.Overrides{})
	if err != nil {
		t.Fatalf("ResumeThread: %v", err)
	}
	if resumed.Defaults().ModelInfo.Model != "gpt-5-mini" {
		t.Fatalf("expected the override to survive a resume, got %+v", resumed.Defaults())
	}
}

func TestInterruptReturnsErrorForUnknownThread(t *testing.T) {
	m, _ := newTestManager(t, "")
	err := m.SubmitWithID(context.Background(), types.NewThreadID(), Op{Kind: OpInterrupt})
	if err != ErrUnknownThread {
		t.Fatalf("expected ErrUnknownThread, got %v", err)
	}
}

func TestRemoveAndCloseAllThreadsClearsLiveMap(t *testing.T) {
	m, _ := newTestManager(t, sseBody(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`))
	th, err := m.StartThread(context.Background(), StartThreadInput{Defaults: types.TurnContext{Cwd: "/repo"}})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}

	if err := m.RemoveAndCloseAllThreads(context.Background()); err != nil {
		t.Fatalf("RemoveAndCloseAllThreads: %v", err)
	}

	if _, err := m.lookup(th.ID); err != ErrUnknownThread {
		t.Fatalf("expected the thread to be removed from the live map, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := m.NextEvent(ctx, th.ID); err != ErrUnknownThread {
		t.Fatalf("expected NextEvent on a removed thread to report ErrUnknownThread, got %v", err)
	}
}

func TestResumeIsIdempotentForAlreadyLiveThread(t *testing.T) {
	m, _ := newTestManager(t, "")
	th, err := m.StartThread(context.Background(), StartThreadInput{Defaults: types.TurnContext{Cwd: "/repo"}})
	if err != nil {
		t.Fatalf("StartThread: %v", err)
	}

	resumed, err := m.ResumeThread(context.Background(), th.ID, turn.Overrides{})
	if err != nil {
		t.Fatalf("ResumeThread: %v", err)
	}
	if resumed != th {
		t.Fatal("expected ResumeThread on an already-live thread to return the same Thread")
	}
}
