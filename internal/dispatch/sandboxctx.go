package dispatch

import (
	"context"

	"github.com/nexus-core/agentcore/pkg/types"
)

type sandboxCtxKey struct{}

// sandboxContext carries the full per-turn sandbox policy alongside a
// dispatched Invocation. Invocation.SandboxPolicy only summarizes this as a
// bare SandboxPolicyKind (enough for the mutating-call gate and metrics);
// a Handler that actually spawns a process needs the writable/read-only
// roots and network flag too, so Runtime attaches the whole thing to ctx
// instead of widening Invocation itself.
type sandboxContext struct {
	policy       types.SandboxPolicy
	windowsLevel types.WindowsSandboxLevel
}

// WithSandboxPolicy attaches a turn's sandbox policy to ctx. Mirrors the
// observability package's AddRequestID/AddSessionID context-correlation
// idiom: the value rides the same context already threaded through
// Dispatcher.Dispatch, rather than widening every Handler's signature.
func WithSandboxPolicy(ctx context.Context, policy types.SandboxPolicy, windowsLevel types.WindowsSandboxLevel) context.Context {
	return context.WithValue(ctx, sandboxCtxKey{}, sandboxContext{policy: policy, windowsLevel: windowsLevel})
}

// SandboxPolicyFromContext recovers what WithSandboxPolicy attached. ok is
// false when ctx carries no sandbox policy, which a Handler should treat as
// "run unsandboxed" only if it has no safer fallback.
func SandboxPolicyFromContext(ctx context.Context) (policy types.SandboxPolicy, windowsLevel types.WindowsSandboxLevel, ok bool) {
	v, ok := ctx.Value(sandboxCtxKey{}).(sandboxContext)
	if !ok {
		return types.SandboxPolicy{}, "", false
	}
	return v.policy, v.windowsLevel, true
}
