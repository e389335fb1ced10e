package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexus-core/agentcore/internal/exec"
	"github.com/nexus-core/agentcore/internal/netpolicy"
	"github.com/nexus-core/agentcore/internal/observability"
	"github.com/nexus-core/agentcore/internal/sandbox"
	"github.com/nexus-core/agentcore/internal/unifiedexec"
	"github.com/nexus-core/agentcore/pkg/types"
)

// LocalShellPayload is the JSON shape of a local_shell call's
// Invocation.Payload.
type LocalShellPayload struct {
	Command         []string               `json:"command"`
	Cwd             string                 `json:"cwd"`
	Env             map[string]string      `json:"env,omitempty"`
	Justification   string                 `json:"justification,omitempty"`
	Expiration      time.Duration          `json:"expiration,omitempty"`
	YieldTimeMS     int64                  `json:"yield_time_ms,omitempty"`
	MaxOutputTokens *int                   `json:"max_output_tokens,omitempty"`
	AdditionalPerms *types.AdditionalPermissions `json:"additional_permissions,omitempty"`
}

// LocalShellHandler implements the local_shell tool over command
// transformation (C3.1) and the unified exec process slab (C3.2), gated by
// a forward-proxy network policy (C2) when the sandbox policy grants
// network access.
//
// Grounded on the teacher's AgenticLoop tool handlers, which shell out
// through a single runner shared across a session; here the runner is
// sandbox.Transform bridged into unifiedexec.Manager via
// unifiedexec.NewSandboxRunner, since Manager.Exec can only be driven by a
// SandboxRunner and process is unexported outside that package.
type LocalShellHandler struct {
	manager   *unifiedexec.Manager
	netPolicy *netpolicy.Policy
	metrics   *observability.Metrics
}

// NewLocalShellHandler wires a process slab and an optional network policy
// into a local_shell Handler. netPolicy may be nil, in which case spawned
// commands get no proxy environment regardless of their sandbox policy's
// network grant.
func NewLocalShellHandler(manager *unifiedexec.Manager, netPolicy *netpolicy.Policy, metrics *observability.Metrics) *LocalShellHandler {
	return &LocalShellHandler{manager: manager, netPolicy: netPolicy, metrics: metrics}
}

// Kind reports ToolKindFunction: Runtime currently surfaces every model
// tool call, local_shell included, as a FunctionCall response item.
func (h *LocalShellHandler) Kind() ToolKind { return ToolKindFunction }

// IsMutating is always true: local_shell can write to the filesystem or
// reach the network, so every call serializes behind the tool_call_gate.
func (h *LocalShellHandler) IsMutating(Invocation) bool { return true }

func (h *LocalShellHandler) Execute(ctx context.Context, inv Invocation) (ToolOutput, error) {
	var payload LocalShellPayload
	if err := json.Unmarshal(inv.Payload, &payload); err != nil {
		return ToolOutput{}, fmt.Errorf("local_shell: decode payload: %w", err)
	}
	if len(payload.Command) == 0 {
		return ToolOutput{Content: "local_shell: empty command", Success: false}, nil
	}
	if !exec.IsSafeExecutableValue(payload.Command[0]) {
		return ToolOutput{Content: "local_shell: unsafe executable value", Success: false}, nil
	}
	if _, err := exec.SanitizeArguments(payload.Command[1:]); err != nil {
		return ToolOutput{Content: fmt.Sprintf("local_shell: %s", err), Success: false}, nil
	}

	policy, windowsLevel, ok := SandboxPolicyFromContext(ctx)
	if !ok {
		policy = types.ReadOnlyPolicy(types.ReadOnlyAccess{})
	}

	spec := types.CommandSpec{
		Program:               payload.Command[0],
		Args:                  payload.Command[1:],
		Cwd:                   payload.Cwd,
		Env:                   payload.Env,
		AdditionalPermissions: payload.AdditionalPerms,
		Expiration:            payload.Expiration,
		Justification:         payload.Justification,
	}

	runner := unifiedexec.NewSandboxRunner(func(req unifiedexec.ExecRequest, sandboxDisabled bool) (*types.ExecRequest, error) {
		sandboxType := inv.Sandbox
		if sandboxDisabled {
			sandboxType = types.SandboxNone
		}
		execReq, err := sandbox.Transform(spec, policy, sandboxType, windowsLevel)
		if err != nil {
			return nil, err
		}
		h.applyProxyEnv(execReq)
		return execReq, nil
	})

	processID := h.manager.AllocateProcessID()
	resp, err := h.manager.Exec(ctx, processID, unifiedexec.ExecRequest{
		Command:         payload.Command,
		Cwd:             payload.Cwd,
		Env:             payload.Env,
		YieldTimeMS:     payload.YieldTimeMS,
		MaxOutputTokens: payload.MaxOutputTokens,
		Justification:   payload.Justification,
	}, runner)
	if err != nil {
		h.recordDenialIfSandbox(inv, err)
		return ToolOutput{Content: err.Error(), Success: false}, nil
	}

	success := resp.ExitCode == nil || *resp.ExitCode == 0
	return ToolOutput{Content: resp.Output, Success: success}, nil
}

// applyProxyEnv points the spawned command's HTTP(S)/SOCKS clients at the
// configured forward proxy when the effective policy grants network
// access. The proxy process itself enforces netpolicy.Policy.Decide per
// request; local_shell only arranges for traffic to reach it.
func (h *LocalShellHandler) applyProxyEnv(req *types.ExecRequest) {
	if h.netPolicy == nil || !req.Network {
		return
	}
	if req.Env == nil {
		req.Env = make(map[string]string)
	}
	httpProxy := fmt.Sprintf("http://%s", h.netPolicy.ListenHostHTTP())
	socksProxy := fmt.Sprintf("socks5://%s", h.netPolicy.ListenHostSOCKS())
	req.Env["HTTP_PROXY"] = httpProxy
	req.Env["HTTPS_PROXY"] = httpProxy
	req.Env["ALL_PROXY"] = socksProxy
}

// recordDenialIfSandbox emits the sandbox-denied diagnostic/metric when err
// looks like a command-transformation failure rather than a genuine exec
// error, matching the vocabulary unifiedexec.isLikelySandboxDenied applies
// to a completed process's output.
func (h *LocalShellHandler) recordDenialIfSandbox(inv Invocation, err error) {
	if h.metrics != nil {
		h.metrics.RecordSandboxDenied(err.Error())
	}
	observability.EmitSandboxDenied(&observability.SandboxDeniedEvent{
		Command: inv.ToolName,
		Reason:  err.Error(),
	})
}
