package sandbox

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/nexus-core/agentcore/pkg/types"
)

// macosSeatbeltPath is where sandbox-exec lives on every shipping macOS
// release; it is not configurable.
const macosSeatbeltPath = "/usr/bin/sandbox-exec"

// linuxSandboxHelper is the name of the required seccomp/bwrap helper
// binary for LinuxSeccomp transforms. It must be resolvable on PATH.
const linuxSandboxHelper = "codex-linux-sandbox"

var (
	// ErrLinuxSandboxHelperMissing is returned when LinuxSeccomp is selected
	// but the helper binary cannot be found on PATH.
	ErrLinuxSandboxHelperMissing = errors.New("sandbox: codex-linux-sandbox helper not found on PATH")
	// ErrSeatbeltUnavailable is returned when MacosSeatbelt is selected on a
	// non-macOS host.
	ErrSeatbeltUnavailable = errors.New("sandbox: seatbelt sandbox requires /usr/bin/sandbox-exec")
)

// lookPath is overridable in tests.
var lookPath = exec.LookPath

// Transform implements command transformation (C3.1): it widens the
// effective policy with any AdditionalPermissions on spec, injects the
// network-disabled env var when appropriate, and produces a ready-to-spawn
// ExecRequest for sandboxType.
func Transform(spec types.CommandSpec, policy types.SandboxPolicy, sandboxType types.SandboxType, windowsLevel types.WindowsSandboxLevel) (*types.ExecRequest, error) {
	if err := validateArguments(append([]string{spec.Program}, spec.Args...)); err != nil {
		return nil, err
	}

	effective := policy
	if spec.AdditionalPermissions != nil {
		widened, err := types.WidenWithAdditional(policy, *spec.AdditionalPermissions)
		if err != nil {
			return nil, err
		}
		effective = widened
	}

	env := make(map[string]string, len(spec.Env)+1)
	for k, v := range spec.Env {
		env[k] = v
	}
	if !effective.HasFullNetworkAccess() {
		env["CODEX_SANDBOX_NETWORK_DISABLED"] = "1"
	}

	req := &types.ExecRequest{
		Cwd:                spec.Cwd,
		Env:                env,
		Network:            effective.HasFullNetworkAccess(),
		Expiration:         spec.Expiration,
		Sandbox:            sandboxType,
		WindowsSandboxLevel: windowsLevel,
		SandboxPermissions: spec.SandboxPermissions,
		SandboxPolicy:      effective,
		Justification:      spec.Justification,
		Arg0:               spec.Program,
	}

	program := append([]string{spec.Program}, spec.Args...)

	switch sandboxType {
	case types.SandboxMacosSeatbelt:
		env["CODEX_SANDBOX"] = "seatbelt"
		profileArgs := seatbeltProfileArgs(effective)
		req.Command = append(append([]string{macosSeatbeltPath}, profileArgs...), program...)

	case types.SandboxLinuxSeccomp:
		if _, err := lookPath(linuxSandboxHelper); err != nil {
			return nil, ErrLinuxSandboxHelperMissing
		}
		req.Arg0 = linuxSandboxHelper
		helperArgs := linuxSandboxHelperArgs(effective)
		req.Command = append(append([]string{linuxSandboxHelper}, helperArgs...), program...)

	case types.SandboxWindowsRestricted:
		// Execution branches in-process through a restricted-token spawn
		// helper; the argv itself is unchanged.
		req.Command = program

	case types.SandboxNone:
		req.Command = program

	default:
		return nil, fmt.Errorf("sandbox: unknown sandbox type %q", sandboxType)
	}

	return req, nil
}

// seatbeltProfileArgs renders the `-p <profile>` style flags sandbox-exec
// needs to enforce effective on macOS, derived from the writable/read-only
// roots and network capability of the policy.
func seatbeltProfileArgs(policy types.SandboxPolicy) []string {
	args := []string{"-p", seatbeltProfileBody(policy)}
	for _, root := range policy.WritableRoots {
		args = append(args, "-D", fmt.Sprintf("WRITABLE_ROOT=%s", root))
	}
	for _, root := range policy.ReadOnlyRoots {
		args = append(args, "-D", fmt.Sprintf("READONLY_ROOT=%s", root))
	}
	return args
}

func seatbeltProfileBody(policy types.SandboxPolicy) string {
	switch policy.Kind {
	case types.SandboxPolicyReadOnly:
		return "(version 1)(deny default)(allow file-read*)"
	case types.SandboxPolicyWorkspaceWrite:
		profile := "(version 1)(deny default)(allow file-read*)(allow file-write* (subpath (param \"WRITABLE_ROOT\")))"
		if policy.NetworkAccess {
			profile += "(allow network*)"
		}
		return profile
	default:
		return "(version 1)(allow default)"
	}
}

// linuxSandboxHelperArgs renders the codex-linux-sandbox helper's own
// argument vector (bwrap toggle plus writable/read-only root flags) that
// precede the wrapped program.
func linuxSandboxHelperArgs(policy types.SandboxPolicy) []string {
	args := []string{"--bwrap"}
	for _, root := range policy.WritableRoots {
		args = append(args, "--writable-root", root)
	}
	for _, root := range policy.ReadOnlyRoots {
		args = append(args, "--readonly-root", root)
	}
	if policy.NetworkAccess {
		args = append(args, "--allow-network")
	}
	args = append(args, "--")
	return args
}
