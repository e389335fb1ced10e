package dispatch

import "sync"

// ApprovalDecision is the outcome of an MCP approval prompt.
type ApprovalDecision string

const (
	ApproveOnce    ApprovalDecision = "approve_once"
	ApproveSession ApprovalDecision = "approve_session"
	ApprovalDeny   ApprovalDecision = "deny"
	ApprovalCancel ApprovalDecision = "cancel"
)

// Prompter presents the four-option approval prompt to the user and
// returns their decision. The real CLI/UI implementation asks a human;
// tests supply a canned responder.
type Prompter func(inv Invocation) ApprovalDecision

type approvalKey struct {
	server      string
	connectorID string
	toolName    string
}

// ApprovalCache remembers ApproveSession decisions per (server,
// connector_id, tool_name) so a privileged MCP tool is only prompted once
// per session rather than on every call.
type ApprovalCache struct {
	mu       sync.Mutex
	approved map[approvalKey]struct{}
	prompt   Prompter
}

// NewApprovalCache wires a prompt callback into a fresh, empty cache.
func NewApprovalCache(prompt Prompter) *ApprovalCache {
	return &ApprovalCache{
		approved: make(map[approvalKey]struct{}),
		prompt:   prompt,
	}
}

func keyFor(inv Invocation) approvalKey {
	return approvalKey{server: inv.Mcp.Server, connectorID: inv.Mcp.ConnectorID, toolName: inv.ToolName}
}

// RequiresApproval reports whether inv's MCP annotations call for a
// confirmation prompt before execution: any tool that can mutate state or
// reach outside the sandboxed workspace (destructive or open-world) needs
// one, unless it is purely read-only.
func RequiresApproval(inv Invocation) bool {
	if inv.Kind != ToolKindMcp {
		return false
	}
	if inv.Annotations.ReadOnlyHint {
		return false
	}
	return inv.Annotations.DestructiveHint || inv.Annotations.OpenWorldHint
}

// Resolve returns true if inv may proceed. It consults the per-session
// cache first; on a miss it prompts, records ApproveSession decisions, and
// returns false (without prompting again) for Deny/Cancel.
func (c *ApprovalCache) Resolve(inv Invocation) (bool, ApprovalDecision) {
	key := keyFor(inv)

	c.mu.Lock()
	if _, ok := c.approved[key]; ok {
		c.mu.Unlock()
		return true, ApproveSession
	}
	c.mu.Unlock()

	decision := c.prompt(inv)
	switch decision {
	case ApproveSession:
		c.mu.Lock()
		c.approved[key] = struct{}{}
		c.mu.Unlock()
		return true, decision
	case ApproveOnce:
		return true, decision
	default:
		return false, decision
	}
}
