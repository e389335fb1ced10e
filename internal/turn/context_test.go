package turn

import (
	"testing"

	"github.com/nexus-core/agentcore/pkg/types"
)

func TestBuildTurnContextInheritsDefaultsWhenNoOverrides(t *testing.T) {
	defaults := types.TurnContext{
		Cwd:            "/repo",
		ApprovalPolicy: types.ApprovalOnRequest,
		ModelInfo:      types.ModelInfo{Provider: "openai", Model: "gpt-5"},
		Features:       map[string]bool{"web_search": true},
	}

	tc := BuildTurnContext(defaults, Overrides{}, "sub-1")
	if tc.Cwd != "/repo" || tc.ApprovalPolicy != types.ApprovalOnRequest {
		t.Fatalf("expected defaults to carry through unchanged, got %+v", tc)
	}
	if tc.ModelInfo.Model != "gpt-5" {
		t.Fatalf("expected default model, got %q", tc.ModelInfo.Model)
	}
	if !tc.FeatureEnabled("web_search") {
		t.Fatal("expected default feature flag to survive")
	}
	if tc.SubID != "sub-1" {
		t.Fatalf("expected SubID to be set to the turn id, got %q", tc.SubID)
	}
}

func TestBuildTurnContextAppliesOverridesSelectively(t *testing.T) {
	defaults := types.TurnContext{
		Cwd:            "/repo",
		ApprovalPolicy: types.ApprovalOnRequest,
		ModelInfo:      types.ModelInfo{Provider: "openai", Model: "gpt-5"},
		Features:       map[string]bool{"web_search": true},
	}
	overrides := Overrides{
		Model:    "gpt-5-mini",
		Features: map[string]bool{"compaction": true},
	}

	tc := BuildTurnContext(defaults, overrides, "sub-2")
	if tc.Cwd != "/repo" {
		t.Fatalf("expected cwd to remain the default since it wasn't overridden, got %q", tc.Cwd)
	}
	if tc.ModelInfo.Model != "gpt-5-mini" {
		t.Fatalf("expected overridden model, got %q", tc.ModelInfo.Model)
	}
	if tc.ModelInfo.Provider != "openai" {
		t.Fatalf("expected provider to remain the default, got %q", tc.ModelInfo.Provider)
	}
	if !tc.FeatureEnabled("web_search") || !tc.FeatureEnabled("compaction") {
		t.Fatalf("expected feature overrides to merge with defaults, got %+v", tc.Features)
	}
}

func TestBuildTurnContextSandboxPolicyOverride(t *testing.T) {
	defaults := types.TurnContext{SandboxPolicy: types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})}
	override := types.WorkspaceWritePolicy(nil, nil, false)

	tc := BuildTurnContext(defaults, Overrides{SandboxPolicy: &override}, "sub-3")
	if tc.SandboxPolicy.Kind != override.Kind {
		t.Fatalf("expected the overridden sandbox policy, got %+v", tc.SandboxPolicy)
	}
}
