package unifiedexec

import (
	"context"

	"github.com/nexus-core/agentcore/pkg/types"
)

// TransformFunc rewrites one unified-exec call into a ready-to-spawn
// ExecRequest, or forces SandboxType::None when sandboxDisabled is true. It
// is normally sandbox.Transform closed over the call's CommandSpec,
// SandboxPolicy and WindowsSandboxLevel.
type TransformFunc func(req ExecRequest, sandboxDisabled bool) (*types.ExecRequest, error)

// NewSandboxRunner adapts a TransformFunc into a SandboxRunner. process and
// startProcess are unexported, so this is the only way a package outside
// unifiedexec (dispatch's local_shell Handler) can hand Manager.Exec a real
// sandboxed executor instead of reimplementing process bookkeeping itself.
func NewSandboxRunner(transform TransformFunc) SandboxRunner {
	return func(ctx context.Context, req ExecRequest, sandboxDisabled bool) (*process, error) {
		execReq, err := transform(req, sandboxDisabled)
		if err != nil {
			return nil, err
		}
		return startProcess(ctx, 0, execReq.Command, execReq.Cwd, execReq.Env)
	}
}
