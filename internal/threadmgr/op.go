package threadmgr

import (
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// OpKind discriminates the Op tagged union submit_with_id accepts.
type OpKind string

const (
	// OpUserInput starts a turn with new input, inheriting the thread's
	// persisted TurnContext defaults unverbatim.
	OpUserInput OpKind = "user_input"

	// OpUserTurn starts a turn with new input and per-call Overrides.
	OpUserTurn OpKind = "user_turn"

	// OpInterrupt trips the thread's active turn, if any.
	OpInterrupt OpKind = "interrupt"

	// OpOverrideTurnContext rewrites the thread's persisted TurnContext
	// defaults without starting a turn. Affects every subsequent turn on
	// this thread until overridden again.
	OpOverrideTurnContext OpKind = "override_turn_context"
)

// Op is one operation submitted against a thread via SubmitWithID.
type Op struct {
	Kind OpKind

	// OpUserInput / OpUserTurn
	//
	// TurnID, if set, is used verbatim as the started turn's id instead of
	// a freshly generated one. Orchestration layers that need to correlate
	// their own notifications with the turn's native events (C8 review
	// markers) set this; ordinary callers leave it empty.
	TurnID       string
	Input        []types.ResponseItem
	Overrides    turn.Overrides
	Tools        []turn.ToolSpec
	OutputSchema []byte
	PromptExtras turn.PromptOptions

	// OpOverrideTurnContext
	NewDefaults turn.Overrides
}
