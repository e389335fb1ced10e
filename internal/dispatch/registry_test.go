package dispatch

import (
	"context"
	"testing"

	"github.com/nexus-core/agentcore/pkg/types"
)

type stubHandler struct {
	kind      ToolKind
	mutating  bool
	output    ToolOutput
	err       error
	executed  int
}

func (h *stubHandler) Kind() ToolKind { return h.kind }
func (h *stubHandler) IsMutating(Invocation) bool { return h.mutating }
func (h *stubHandler) Execute(ctx context.Context, inv Invocation) (ToolOutput, error) {
	h.executed++
	return h.output, h.err
}

func TestRegistryGetMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected no handler for an unregistered tool")
	}
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	h := &stubHandler{kind: ToolKindFunction}
	r.Register("echo", h)

	got, ok := r.Get("echo")
	if !ok || got != h {
		t.Fatal("expected to find the registered handler")
	}

	r.Unregister("echo")
	if _, ok := r.Get("echo"); ok {
		t.Fatal("expected the handler to be gone after Unregister")
	}
}

func TestDispatchUnsupportedCallReturnsFunctionCallOutputFalse(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	item, err := d.Dispatch(context.Background(), Invocation{ToolName: "ghost", CallID: types.CallID("c1"), Kind: ToolKindFunction})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Kind != types.ResponseItemFunctionCallOutput {
		t.Fatalf("expected a FunctionCallOutput item, got %v", item.Kind)
	}
	if item.CallOutput.Payload.Success {
		t.Fatal("expected success=false for an unsupported call")
	}
}

func TestDispatchPayloadKindMismatchIsFatal(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", &stubHandler{kind: ToolKindMcp})
	d := NewDispatcher(r)

	_, err := d.Dispatch(context.Background(), Invocation{ToolName: "echo", CallID: types.CallID("c1"), Kind: ToolKindFunction})
	if _, ok := err.(*FatalError); !ok {
		t.Fatalf("expected a FatalError on kind mismatch, got %v", err)
	}
}
