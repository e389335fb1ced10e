// Package turn is the core of the core: it drives a single turn from
// submitted user input through the model stream, tool dispatch, and
// rollout persistence. Grounded on the teacher's AgenticLoop
// (internal/agent/loop.go): a goroutine drives a phase state machine and
// publishes a channel of events, with context-based cancellation standing
// in for the teacher's per-run context.WithTimeout.
package turn

import (
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

// EventKind discriminates the turn-runtime notification stream (EventMsg
// in the rollout/wire vocabulary).
type EventKind string

const (
	EventTurnStarted     EventKind = "turn_started"
	EventOutputItemAdded EventKind = "item_started"
	EventOutputTextDelta EventKind = "output_text_delta"
	EventReasoningDelta  EventKind = "reasoning_content_delta"
	EventToolCallBegin   EventKind = "tool_call_begin"
	EventToolCallEnd     EventKind = "tool_call_end"
	EventItemCompleted   EventKind = "item_completed"
	EventTurnComplete    EventKind = "turn_complete"
	EventTurnAborted     EventKind = "turn_aborted"
)

// AbortReason names why a turn ended via TurnAborted rather than
// TurnComplete.
type AbortReason string

const (
	AbortInterrupted AbortReason = "interrupted"
	AbortReplaced    AbortReason = "replaced"
	AbortError       AbortReason = "error"
)

// Event is the turn runtime's uniform notification, one value per
// emission point named in the event-loop ordering guarantees. Exactly one
// of the kind-specific fields is populated, selected by Kind.
type Event struct {
	Kind   EventKind
	TurnID string
	At     time.Time

	// OutputItemAdded / ItemCompleted
	Item *types.ResponseItem

	// OutputTextDelta
	TextDelta string

	// ReasoningContentDelta
	ReasoningDelta string
	ContentIndex   int

	// ToolCallBegin / ToolCallEnd
	CallID   types.CallID
	ToolName string

	// TurnComplete
	LastAgentMessage string

	// TurnAborted
	AbortReason AbortReason
	Err         error
}

// toRolloutEvent converts an Event into the generic EventMsgPayload shape
// persisted to the rollout log, so TurnStarted/TurnComplete/TurnAborted are
// durable and replayable the same way every other notification is.
func (e Event) toRolloutEvent() types.EventMsgPayload {
	payload := map[string]any{}
	switch e.Kind {
	case EventToolCallBegin, EventToolCallEnd:
		payload["call_id"] = string(e.CallID)
		payload["tool_name"] = e.ToolName
	case EventTurnComplete:
		payload["last_agent_message"] = e.LastAgentMessage
	case EventTurnAborted:
		payload["reason"] = string(e.AbortReason)
		if e.Err != nil {
			payload["error"] = e.Err.Error()
		}
	}
	payload["turn_id"] = e.TurnID
	return types.EventMsgPayload{Type: string(e.Kind), Payload: payload}
}
