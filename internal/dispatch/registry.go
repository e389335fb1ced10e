// Package dispatch implements the tool dispatch layer: registry lookup,
// payload-kind verification, the mutating-call gate, MCP approval prompts,
// OTel-instrumented execution, and the AfterToolUse hook.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nexus-core/agentcore/pkg/types"
)

// ToolKind discriminates how a tool's payload is shaped and therefore how
// its invocation is validated before the handler ever runs.
type ToolKind string

const (
	ToolKindFunction  ToolKind = "function"
	ToolKindCustom    ToolKind = "custom"
	ToolKindLocalShell ToolKind = "local_shell"
	ToolKindMcp       ToolKind = "mcp"
)

// Annotations carry the MCP tool hints consulted by the approval step.
// Functions and local-shell tools leave these at their zero values; only
// MCP tools populate them from server-advertised metadata.
type Annotations struct {
	ReadOnlyHint   bool
	DestructiveHint bool
	OpenWorldHint  bool
}

// McpIdentity names the MCP server and connector a tool call targets, used
// as part of the approval cache key.
type McpIdentity struct {
	Server      string
	ConnectorID string
}

// ToolOutput is what a Handler returns. Exactly one of Content or McpResult
// is meaningful, selected by the invocation's ToolKind.
type ToolOutput struct {
	Content    string
	Success    bool
	McpResult  json.RawMessage
}

// Invocation is a single tool call dispatched against the registry.
type Invocation struct {
	ToolName    string
	CallID      types.CallID
	Kind        ToolKind
	Payload     json.RawMessage
	Mcp         McpIdentity
	Annotations Annotations
	Sandbox     types.SandboxType
	SandboxPolicy types.SandboxPolicyKind
}

// Handler executes one tool invocation.
type Handler interface {
	Kind() ToolKind
	// IsMutating reports whether this invocation can change state outside
	// the model's own context, gating it behind the tool_call_gate.
	IsMutating(inv Invocation) bool
	Execute(ctx context.Context, inv Invocation) (ToolOutput, error)
}

// Registry maps tool names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Unregister removes name's handler, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Get looks up name's handler.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// ErrUnsupportedCall is the RespondToModel error synthesized when a tool
// name has no registered handler (dispatch step 1).
type ErrUnsupportedCall struct {
	ToolName string
}

func (e *ErrUnsupportedCall) Error() string {
	return fmt.Sprintf("unsupported call: %s", e.ToolName)
}

// FatalError aborts the enclosing turn. It is returned for payload-kind
// mismatches (step 2) and for a FailedAbort AfterToolUse outcome (step 6).
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return e.Reason }
