package types

import "time"

// RolloutItemKind discriminates the RolloutItem variant.
type RolloutItemKind string

const (
	RolloutItemSessionMeta RolloutItemKind = "session_meta"
	RolloutItemResponse    RolloutItemKind = "response_item"
	RolloutItemTurnContext RolloutItemKind = "turn_context"
	RolloutItemCompacted   RolloutItemKind = "compacted"
	RolloutItemEvent       RolloutItemKind = "event_msg"
)

// SessionMetaPayload opens a rollout file and records the thread it belongs
// to.
type SessionMetaPayload struct {
	ThreadID  ThreadID  `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	Cwd       string    `json:"cwd"`
	Source    ThreadSource `json:"source"`
}

// CompactedPayload replaces a run of prior ResponseItems with a single
// summarizing item, produced by compaction.
type CompactedPayload struct {
	Summary       string `json:"summary"`
	ReplacedCount int    `json:"replaced_count"`
}

// EventMsgPayload carries a notification-shaped event into the rollout for
// audit/replay purposes (e.g. TurnStarted, TurnComplete).
type EventMsgPayload struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RolloutItem is one entry of the append-only per-thread event log. Items
// are appended in causal order and are never mutated in place.
type RolloutItem struct {
	Kind      RolloutItemKind    `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`

	SessionMeta  *SessionMetaPayload `json:"session_meta,omitempty"`
	Response     *ResponseItem       `json:"response_item,omitempty"`
	TurnContext  *TurnContext        `json:"turn_context,omitempty"`
	Compacted    *CompactedPayload   `json:"compacted,omitempty"`
	Event        *EventMsgPayload    `json:"event_msg,omitempty"`
}
