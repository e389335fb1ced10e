package turn

import (
	"strings"
	"testing"

	"github.com/nexus-core/agentcore/pkg/types"
)

func TestBuildPromptDropsReasoningItemsFromHistory(t *testing.T) {
	tc := types.TurnContext{Cwd: "/repo", SandboxPolicy: types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})}
	persisted := []types.ResponseItem{
		types.NewMessageItem("user", types.ContentBlock{Text: "hello"}),
		types.NewReasoningItem([]string{"thinking"}, nil, false),
		types.NewMessageItem("assistant", types.ContentBlock{Text: "hi"}),
	}

	p := BuildPrompt(tc, persisted, nil, PromptOptions{})
	if len(p.History) != 2 {
		t.Fatalf("expected reasoning items to be dropped, got %d history items", len(p.History))
	}
	for _, item := range p.History {
		if item.Kind == types.ResponseItemReasoning {
			t.Fatal("reasoning item leaked into prompt history")
		}
	}
}

func TestBuildPromptFallsBackToBaseInstructions(t *testing.T) {
	tc := types.TurnContext{SandboxPolicy: types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})}
	p := BuildPrompt(tc, nil, nil, PromptOptions{})
	if p.Instructions != BaseInstructions {
		t.Fatalf("expected base instructions fallback, got %q", p.Instructions)
	}

	p = BuildPrompt(tc, nil, nil, PromptOptions{Instructions: "custom"})
	if p.Instructions != "custom" {
		t.Fatalf("expected custom instructions to override the fallback, got %q", p.Instructions)
	}
}

func TestRenderEnvironmentTagIncludesAgentsMD(t *testing.T) {
	tc := types.TurnContext{Cwd: "/repo", SandboxPolicy: types.ReadOnlyPolicy(types.ReadOnlyAccess{FullAccess: true})}
	tag := renderEnvironmentTag(tc, "use tabs not spaces")
	if !strings.Contains(tag, "use tabs not spaces") || !strings.Contains(tag, "/repo") {
		t.Fatalf("expected the environment tag to carry cwd and AGENTS.md content, got %q", tag)
	}
}
