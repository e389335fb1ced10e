package sandbox

import (
	"errors"
	"testing"

	"github.com/nexus-core/agentcore/pkg/types"
)

func TestTransformNoneLeavesCommandUnchanged(t *testing.T) {
	spec := types.CommandSpec{Program: "echo", Args: []string{"hi"}}
	policy := types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})

	req, err := Transform(spec, policy, types.SandboxNone, types.WindowsSandboxNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Command) != 2 || req.Command[0] != "echo" || req.Command[1] != "hi" {
		t.Fatalf("expected passthrough command, got %v", req.Command)
	}
	if req.Env["CODEX_SANDBOX_NETWORK_DISABLED"] != "1" {
		t.Fatal("expected network-disabled env var under a ReadOnly policy")
	}
}

func TestTransformFullAccessOmitsNetworkDisabledVar(t *testing.T) {
	spec := types.CommandSpec{Program: "curl"}
	policy := types.DangerFullAccessPolicy()

	req, err := Transform(spec, policy, types.SandboxNone, types.WindowsSandboxNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, present := req.Env["CODEX_SANDBOX_NETWORK_DISABLED"]; present {
		t.Fatal("expected no network-disabled var under DangerFullAccess")
	}
}

func TestTransformWidensReadOnlyWithAdditionalWrites(t *testing.T) {
	spec := types.CommandSpec{
		Program: "make",
		AdditionalPermissions: &types.AdditionalPermissions{
			WritableRoots: []string{"/tmp/build"},
		},
	}
	policy := types.ReadOnlyPolicy(types.ReadOnlyAccess{Roots: []string{"/srv"}})

	req, err := Transform(spec, policy, types.SandboxNone, types.WindowsSandboxNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.SandboxPolicy.Kind != types.SandboxPolicyWorkspaceWrite {
		t.Fatalf("expected widening to WorkspaceWrite, got %s", req.SandboxPolicy.Kind)
	}
}

func TestTransformRejectsEmptyAdditionalPath(t *testing.T) {
	spec := types.CommandSpec{
		Program: "make",
		AdditionalPermissions: &types.AdditionalPermissions{
			WritableRoots: []string{""},
		},
	}
	policy := types.ReadOnlyPolicy(types.ReadOnlyAccess{})

	_, err := Transform(spec, policy, types.SandboxNone, types.WindowsSandboxNone)
	if err == nil {
		t.Fatal("expected an error for an empty additional permission path")
	}
}

func TestTransformMacosSeatbeltPrependsSandboxExec(t *testing.T) {
	spec := types.CommandSpec{Program: "npm", Args: []string{"install"}}
	policy := types.WorkspaceWritePolicy([]string{"/work"}, nil, false)

	req, err := Transform(spec, policy, types.SandboxMacosSeatbelt, types.WindowsSandboxNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Command[0] != macosSeatbeltPath {
		t.Fatalf("expected command to start with %s, got %v", macosSeatbeltPath, req.Command)
	}
	if req.Env["CODEX_SANDBOX"] != "seatbelt" {
		t.Fatal("expected CODEX_SANDBOX=seatbelt to be injected")
	}
	last := req.Command[len(req.Command)-2:]
	if last[0] != "npm" || last[1] != "install" {
		t.Fatalf("expected original program/args to trail the profile args, got %v", req.Command)
	}
}

func TestTransformLinuxSeccompFailsWhenHelperMissing(t *testing.T) {
	orig := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	defer func() { lookPath = orig }()

	spec := types.CommandSpec{Program: "pytest"}
	policy := types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})

	_, err := Transform(spec, policy, types.SandboxLinuxSeccomp, types.WindowsSandboxNone)
	if !errors.Is(err, ErrLinuxSandboxHelperMissing) {
		t.Fatalf("expected ErrLinuxSandboxHelperMissing, got %v", err)
	}
}

func TestTransformLinuxSeccompRenamesArg0(t *testing.T) {
	orig := lookPath
	lookPath = func(string) (string, error) { return "/usr/bin/codex-linux-sandbox", nil }
	defer func() { lookPath = orig }()

	spec := types.CommandSpec{Program: "pytest"}
	policy := types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})

	req, err := Transform(spec, policy, types.SandboxLinuxSeccomp, types.WindowsSandboxNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Arg0 != linuxSandboxHelper {
		t.Fatalf("expected arg0 renamed to %s, got %s", linuxSandboxHelper, req.Arg0)
	}
	if req.Command[0] != linuxSandboxHelper {
		t.Fatalf("expected helper to be prepended, got %v", req.Command)
	}
}

func TestTransformRejectsShellMetacharactersInArgs(t *testing.T) {
	spec := types.CommandSpec{Program: "sh", Args: []string{"-c", "echo hi; rm -rf /"}}
	policy := types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})

	_, err := Transform(spec, policy, types.SandboxNone, types.WindowsSandboxNone)
	if !errors.Is(err, ErrArgumentShellMeta) {
		t.Fatalf("expected ErrArgumentShellMeta, got %v", err)
	}
}

func TestSelectSandboxForbidAlwaysNone(t *testing.T) {
	policy := types.DangerFullAccessPolicy()
	got := SelectSandbox(policy, types.PreferenceForbid, true, func(types.SandboxType) bool { return true })
	if got != types.SandboxNone {
		t.Fatalf("expected SandboxNone, got %s", got)
	}
}

func TestSelectSandboxAutoSkipsSandboxForFullAccessWithoutManagedNetwork(t *testing.T) {
	policy := types.DangerFullAccessPolicy()
	got := SelectSandbox(policy, types.PreferenceAuto, false, func(types.SandboxType) bool { return true })
	if got != types.SandboxNone {
		t.Fatalf("expected SandboxNone for unmanaged DangerFullAccess, got %s", got)
	}
}

func TestSelectSandboxAutoUsesPlatformSandboxForWorkspaceWrite(t *testing.T) {
	policy := types.WorkspaceWritePolicy([]string{"/work"}, nil, false)
	got := SelectSandbox(policy, types.PreferenceAuto, false, func(types.SandboxType) bool { return true })
	if got == types.SandboxNone && platformSandbox() != types.SandboxNone {
		t.Fatalf("expected a platform sandbox for WorkspaceWrite, got none")
	}
}

func TestSelectSandboxRequireFallsBackWhenUnavailable(t *testing.T) {
	policy := types.WorkspaceWritePolicy([]string{"/work"}, nil, false)
	got := SelectSandbox(policy, types.PreferenceRequire, false, func(types.SandboxType) bool { return false })
	if got != types.SandboxNone {
		t.Fatalf("expected fallback to SandboxNone when unavailable, got %s", got)
	}
}
