package review

import (
	"encoding/json"
	"time"

	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// markerKind tags a marker ResponseItem's Raw content block so a reader can
// distinguish an EnteredReviewMode/ExitedReviewMode marker from an ordinary
// system message without a dedicated ResponseItem variant of its own.
type markerKind string

const (
	markerEntered markerKind = "entered_review_mode"
	markerExited  markerKind = "exited_review_mode"
)

type markerPayload struct {
	Kind   markerKind `json:"kind"`
	ID     string     `json:"id"`
	Review string     `json:"review"`
}

func marker(kind markerKind, id, review string) types.ResponseItem {
	raw, _ := json.Marshal(markerPayload{Kind: kind, ID: id, Review: review})
	return types.NewMessageItem("system", types.ContentBlock{Raw: raw})
}

// enteredReviewModeEvent builds the item_started notification a thread
// emits the moment a review sub-turn begins, carrying the target's
// human-readable description (e.g. "commit 1234567: Tidy UI colors").
func enteredReviewModeEvent(turnID, review string) turn.Event {
	item := marker(markerEntered, turnID, review)
	return turn.Event{Kind: turn.EventOutputItemAdded, TurnID: turnID, At: time.Now().UTC(), Item: &item}
}

// exitedReviewModeEvent builds the item_completed notification a thread
// emits once the review sub-turn has produced its verdict, carrying the
// formatted review body.
func exitedReviewModeEvent(turnID, review string) turn.Event {
	item := marker(markerExited, turnID, review)
	return turn.Event{Kind: turn.EventItemCompleted, TurnID: turnID, At: time.Now().UTC(), Item: &item}
}
