package turn

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexus-core/agentcore/pkg/types"
)

// ToolSpec is the model-visible description of one callable tool: name,
// description, and JSON Schema parameters, plus whether the model may
// issue several calls to it within one turn without waiting on the
// previous one to finish. Grounded on the teacher's agent.Tool interface
// (internal/skills/tools.go's skillTool: Name/Description/Schema), folded
// into a plain struct since the prompt only needs the advertised shape,
// not an executable handle.
type ToolSpec struct {
	Name                  string
	Description           string
	Schema                json.RawMessage
	SupportsParallelCalls bool
}

// Prompt is everything the model client needs to open a turn's stream:
// the system/base instructions, a rendered layout block describing the
// execution environment, the response items carried forward from prior
// turns, the new user input, the tool specs currently in scope, and an
// optional structured-output schema.
type Prompt struct {
	Instructions   string
	EnvironmentTag string
	History        []types.ResponseItem
	Input          []types.ResponseItem
	Tools          []ToolSpec
	OutputSchema   json.RawMessage
}

// BaseInstructions is the fallback system prompt used when a thread
// carries none of its own, mirroring the teacher's AgenticRuntime default
// (SetSystemPrompt / WithSystemPrompt).
const BaseInstructions = "You are a careful, autonomous coding agent. Use the tools available to you to accomplish the user's request."

// PromptOptions carries the pieces of BuildPrompt's inputs that are not
// already implied by the thread's persisted history.
type PromptOptions struct {
	Instructions string
	AgentsMD     string
	Tools        []ToolSpec
	OutputSchema json.RawMessage
}

// shouldPersistForMemories reports whether a response item belongs in the
// prompt's carried-forward history. Reasoning items are model-internal
// scratch space the API re-derives per turn and are dropped; everything
// else (messages, function calls and their outputs) is carried forward so
// the model sees the full conversation and tool-result history.
func shouldPersistForMemories(item types.ResponseItem) bool {
	return item.Kind != types.ResponseItemReasoning
}

// BuildPrompt constructs the Prompt for a turn from the thread's
// persisted response items, the turn context's environment posture, and
// the newly submitted user input.
func BuildPrompt(tc types.TurnContext, persisted []types.ResponseItem, input []types.ResponseItem, opts PromptOptions) Prompt {
	instructions := opts.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = BaseInstructions
	}

	history := make([]types.ResponseItem, 0, len(persisted))
	for _, item := range persisted {
		if shouldPersistForMemories(item) {
			history = append(history, item)
		}
	}

	return Prompt{
		Instructions:   instructions,
		EnvironmentTag: renderEnvironmentTag(tc, opts.AgentsMD),
		History:        history,
		Input:          input,
		Tools:          opts.Tools,
		OutputSchema:   opts.OutputSchema,
	}
}

// renderEnvironmentTag renders the model-visible environment layout block:
// cwd, approval posture, and sandbox posture, plus an AGENTS.md excerpt
// when the thread's working directory carries one.
func renderEnvironmentTag(tc types.TurnContext, agentsMD string) string {
	var b strings.Builder
	b.WriteString("<environment>\n")
	fmt.Fprintf(&b, "cwd: %s\n", tc.Cwd)
	fmt.Fprintf(&b, "approval_policy: %s\n", tc.ApprovalPolicy)
	fmt.Fprintf(&b, "sandbox_policy: %s\n", tc.SandboxPolicy.Kind)
	if tc.SandboxPolicy.HasFullNetworkAccess() {
		b.WriteString("network_access: enabled\n")
	} else {
		b.WriteString("network_access: restricted\n")
	}
	b.WriteString("</environment>")
	if strings.TrimSpace(agentsMD) != "" {
		b.WriteString("\n<agents_md>\n")
		b.WriteString(agentsMD)
		b.WriteString("\n</agents_md>")
	}
	return b.String()
}
