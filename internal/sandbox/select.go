// Package sandbox implements the command transformation subsystem (C3.1):
// selecting a SandboxType for a call and rewriting a CommandSpec into the
// concrete argv/env a spawn call actually executes.
package sandbox

import (
	"runtime"

	"github.com/nexus-core/agentcore/pkg/types"
)

// platformSandbox returns the sandbox type native to the current platform,
// or SandboxNone if this platform has no sandboxing helper.
func platformSandbox() types.SandboxType {
	switch runtime.GOOS {
	case "darwin":
		return types.SandboxMacosSeatbelt
	case "linux":
		return types.SandboxLinuxSeccomp
	case "windows":
		return types.SandboxWindowsRestricted
	default:
		return types.SandboxNone
	}
}

// SelectSandbox implements the initial sandbox selection rule: given the
// effective policy, the caller's preference, and whether the call has a
// managed-network requirement, decide which SandboxType to transform the
// command for. available reports whether the platform sandbox helper is
// actually usable (e.g. the codex-linux-sandbox binary is on PATH).
func SelectSandbox(policy types.SandboxPolicy, pref types.SandboxPreference, hasManagedNetwork bool, available func(types.SandboxType) bool) types.SandboxType {
	switch pref {
	case types.PreferenceForbid:
		return types.SandboxNone

	case types.PreferenceRequire:
		return platformOrNone(available)

	default: // Auto
		if (policy.Kind == types.SandboxPolicyDangerFullAccess || policy.Kind == types.SandboxPolicyExternal) && !hasManagedNetwork {
			return types.SandboxNone
		}
		return platformOrNone(available)
	}
}

func platformOrNone(available func(types.SandboxType) bool) types.SandboxType {
	t := platformSandbox()
	if t == types.SandboxNone {
		return types.SandboxNone
	}
	if available != nil && !available(t) {
		return types.SandboxNone
	}
	return t
}
