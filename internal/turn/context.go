package turn

import (
	"github.com/nexus-core/agentcore/pkg/types"
)

// Overrides carries the per-call fields a client may supply to steer a
// single turn away from the thread's persisted defaults (e.g. a one-off
// model switch or a tightened sandbox for this turn only). Zero values
// mean "inherit the thread default."
type Overrides struct {
	Cwd                 string
	ApprovalPolicy      types.ApprovalMode
	SandboxPolicy       *types.SandboxPolicy
	WindowsSandboxLevel types.WindowsSandboxLevel
	Model               string
	Provider            string
	ReasoningEffort     types.ReasoningEffort
	ReasoningSummary    types.ReasoningSummary
	Personality         string
	Features            map[string]bool
}

// BuildTurnContext resolves overrides against the thread's persisted
// defaults, producing the TurnContext a single turn runs under. defaults
// normally comes from the thread's most recent TurnContext rollout item
// (folded via internal/rollout.FoldMetadata's sibling, the full-fidelity
// reconstruction the thread manager keeps in memory); subID identifies
// this turn for rollout correlation.
func BuildTurnContext(defaults types.TurnContext, overrides Overrides, subID string) types.TurnContext {
	tc := defaults
	tc.SubID = subID

	if overrides.Cwd != "" {
		tc.Cwd = overrides.Cwd
	}
	if overrides.ApprovalPolicy != "" {
		tc.ApprovalPolicy = overrides.ApprovalPolicy
	}
	if overrides.SandboxPolicy != nil {
		tc.SandboxPolicy = *overrides.SandboxPolicy
	}
	if overrides.WindowsSandboxLevel != "" {
		tc.WindowsSandboxLevel = overrides.WindowsSandboxLevel
	}
	if overrides.Model != "" {
		tc.ModelInfo.Model = overrides.Model
	}
	if overrides.Provider != "" {
		tc.ModelInfo.Provider = overrides.Provider
	}
	if overrides.ReasoningEffort != "" {
		tc.ReasoningEffort = overrides.ReasoningEffort
	}
	if overrides.ReasoningSummary != "" {
		tc.ReasoningSummary = overrides.ReasoningSummary
	}
	if overrides.Personality != "" {
		tc.Personality = overrides.Personality
	}
	if len(overrides.Features) > 0 {
		merged := make(map[string]bool, len(defaults.Features)+len(overrides.Features))
		for k, v := range defaults.Features {
			merged[k] = v
		}
		for k, v := range overrides.Features {
			merged[k] = v
		}
		tc.Features = merged
	}

	return tc
}
