package dispatch

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/nexus-core/agentcore/pkg/types"
)

func TestDispatchSuccessConvertsToFunctionCallOutput(t *testing.T) {
	r := NewRegistry()
	r.Register("read_file", &stubHandler{kind: ToolKindFunction, output: ToolOutput{Content: "file contents", Success: true}})
	d := NewDispatcher(r, WithMeter(noop.NewMeterProvider().Meter("test")))

	item, err := d.Dispatch(context.Background(), Invocation{ToolName: "read_file", CallID: types.CallID("c1"), Kind: ToolKindFunction})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Kind != types.ResponseItemFunctionCallOutput || item.CallOutput.Payload.Content != "file contents" {
		t.Fatalf("unexpected response item: %+v", item)
	}
	if !item.CallOutput.Payload.Success {
		t.Fatal("expected success=true")
	}
}

func TestDispatchMcpSuccessConvertsToMcpToolCallOutput(t *testing.T) {
	r := NewRegistry()
	r.Register("search", &stubHandler{kind: ToolKindMcp, output: ToolOutput{McpResult: []byte(`{"hits":3}`)}})
	d := NewDispatcher(r)

	item, err := d.Dispatch(context.Background(), Invocation{
		ToolName: "search",
		CallID:   types.CallID("c2"),
		Kind:     ToolKindMcp,
		Mcp:      McpIdentity{Server: "srv", ConnectorID: "conn"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Kind != types.ResponseItemMcpToolCallOutput {
		t.Fatalf("expected McpToolCallOutput, got %v", item.Kind)
	}
	if string(item.McpOutput.Result) != `{"hits":3}` {
		t.Fatalf("unexpected mcp result: %s", item.McpOutput.Result)
	}
}

func TestDispatchRequiresApprovalDeniesWithoutCache(t *testing.T) {
	r := NewRegistry()
	r.Register("delete_repo", &stubHandler{kind: ToolKindMcp, output: ToolOutput{McpResult: []byte("null")}})
	d := NewDispatcher(r)

	item, err := d.Dispatch(context.Background(), Invocation{
		ToolName:    "delete_repo",
		CallID:      types.CallID("c3"),
		Kind:        ToolKindMcp,
		Mcp:         McpIdentity{Server: "srv", ConnectorID: "conn"},
		Annotations: Annotations{DestructiveHint: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Kind != types.ResponseItemMcpToolCallOutput {
		t.Fatalf("expected an mcp output even for a denial, got %v", item.Kind)
	}
}

func TestDispatchApprovalCacheAllowsAfterApprove(t *testing.T) {
	r := NewRegistry()
	h := &stubHandler{kind: ToolKindMcp, output: ToolOutput{McpResult: []byte("null")}}
	r.Register("delete_repo", h)
	cache := NewApprovalCache(func(inv Invocation) ApprovalDecision { return ApproveSession })
	d := NewDispatcher(r, WithApprovalCache(cache))

	inv := Invocation{
		ToolName:    "delete_repo",
		CallID:      types.CallID("c4"),
		Kind:        ToolKindMcp,
		Mcp:         McpIdentity{Server: "srv", ConnectorID: "conn"},
		Annotations: Annotations{DestructiveHint: true},
	}
	if _, err := d.Dispatch(context.Background(), inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.executed != 1 {
		t.Fatalf("expected the handler to run once approval is granted, ran %d times", h.executed)
	}
}

func TestDispatchHookFailedAbortReturnsFatal(t *testing.T) {
	r := NewRegistry()
	r.Register("write", &stubHandler{kind: ToolKindFunction, output: ToolOutput{Content: "ok", Success: true}})
	d := NewDispatcher(r, WithAfterToolUse(func(AfterToolUseContext) HookResult {
		return HookResult{Outcome: HookFailedAbort, Err: errors.New("policy violation")}
	}))

	_, err := d.Dispatch(context.Background(), Invocation{ToolName: "write", CallID: types.CallID("c5"), Kind: ToolKindFunction})
	if _, ok := err.(*FatalError); !ok {
		t.Fatalf("expected FatalError from a FailedAbort hook outcome, got %v", err)
	}
}

func TestDispatchHookFailedContinueStillReturnsOutput(t *testing.T) {
	r := NewRegistry()
	r.Register("write", &stubHandler{kind: ToolKindFunction, output: ToolOutput{Content: "ok", Success: true}})
	d := NewDispatcher(r, WithAfterToolUse(func(AfterToolUseContext) HookResult {
		return HookResult{Outcome: HookFailedContinue, Err: errors.New("non-fatal")}
	}))

	item, err := d.Dispatch(context.Background(), Invocation{ToolName: "write", CallID: types.CallID("c6"), Kind: ToolKindFunction})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.CallOutput.Payload.Content != "ok" {
		t.Fatalf("expected the handler's output to still be returned, got %+v", item)
	}
}

func TestDispatchExecutionErrorConvertsToFailedOutputNotFatal(t *testing.T) {
	r := NewRegistry()
	r.Register("flaky", &stubHandler{kind: ToolKindFunction, err: errors.New("boom")})
	d := NewDispatcher(r)

	item, err := d.Dispatch(context.Background(), Invocation{ToolName: "flaky", CallID: types.CallID("c7"), Kind: ToolKindFunction})
	if err != nil {
		t.Fatalf("expected a handler error to become a failed output, not a Dispatch error: %v", err)
	}
	if item.CallOutput.Payload.Success {
		t.Fatal("expected success=false on handler error")
	}
	if item.CallOutput.Payload.Content != "boom" {
		t.Fatalf("expected the error message as content, got %q", item.CallOutput.Payload.Content)
	}
}

func TestDispatchMutatingCallAcquiresGate(t *testing.T) {
	r := NewRegistry()
	r.Register("apply_patch", &stubHandler{kind: ToolKindFunction, mutating: true, output: ToolOutput{Content: "patched", Success: true}})
	d := NewDispatcher(r)

	item, err := d.Dispatch(context.Background(), Invocation{ToolName: "apply_patch", CallID: types.CallID("c8"), Kind: ToolKindFunction})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.CallOutput.Payload.Content != "patched" {
		t.Fatalf("unexpected output: %+v", item)
	}
}
