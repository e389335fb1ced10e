package types

import "time"

// SandboxType is the concrete OS-level mechanism chosen to enforce a
// SandboxPolicy.
type SandboxType string

const (
	SandboxNone             SandboxType = "none"
	SandboxMacosSeatbelt    SandboxType = "macos_seatbelt"
	SandboxLinuxSeccomp     SandboxType = "linux_seccomp"
	SandboxWindowsRestricted SandboxType = "windows_restricted_token"
)

// SandboxPreference controls whether the sandbox selector is allowed to
// fall back to SandboxNone.
type SandboxPreference string

const (
	PreferenceAuto    SandboxPreference = "auto"
	PreferenceRequire SandboxPreference = "require"
	PreferenceForbid  SandboxPreference = "forbid"
)

// ExecRequest is the concrete, ready-to-spawn command produced by command
// transformation (C3.1). Command[0] names the executable actually
// launched, which may be a sandbox wrapper rather than the original
// program.
type ExecRequest struct {
	Command             []string
	Cwd                 string
	Env                 map[string]string
	Network             bool
	Expiration          time.Duration
	Sandbox             SandboxType
	WindowsSandboxLevel WindowsSandboxLevel
	SandboxPermissions  []string
	SandboxPolicy       SandboxPolicy
	Justification       string
	Arg0                string
}

// CommandSpec is the input to command transformation: the logical program
// and arguments the caller wants to run, before any sandbox wrapping.
type CommandSpec struct {
	Program               string
	Args                  []string
	Cwd                   string
	Env                   map[string]string
	SandboxPermissions    []string
	AdditionalPermissions *AdditionalPermissions
	Expiration            time.Duration
	Justification         string
}
