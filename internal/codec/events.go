// Package codec decodes a vendor server-sent-event stream into the uniform
// ResponseEvent sequence consumed by the turn runtime (C1 in the design).
package codec

import "github.com/nexus-core/agentcore/pkg/types"

// TokenUsage reports token accounting for a completed response, when the
// upstream included it.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// EventKind discriminates the ResponseEvent variant.
type EventKind string

const (
	EventOutputItemAdded    EventKind = "output_item_added"
	EventOutputItemDone     EventKind = "output_item_done"
	EventOutputTextDelta    EventKind = "output_text_delta"
	EventReasoningDelta     EventKind = "reasoning_content_delta"
	EventCompleted          EventKind = "completed"
)

// ResponseEvent is the uniform event the codec emits, one value per SSE
// frame (or synthesized at stream boundaries). Exactly one of the
// kind-specific fields is populated.
type ResponseEvent struct {
	Kind EventKind

	// OutputItemAdded / OutputItemDone
	Item *types.ResponseItem

	// OutputTextDelta
	TextDelta string

	// ReasoningContentDelta
	ReasoningDelta string
	ContentIndex   int

	// Completed
	ResponseID string
	TokenUsage *TokenUsage
}

// StreamErrorKind discriminates the two documented stream error kinds.
type StreamErrorKind string

const (
	ErrKindStream               StreamErrorKind = "stream"
	ErrKindContextWindowExceeded StreamErrorKind = "context_window_exceeded"
)

// StreamError is returned from Decoder.Next when the stream itself fails
// (decode failure, idle timeout, or a context-window overflow signaled by
// the model).
type StreamError struct {
	Kind    StreamErrorKind
	Message string
}

func (e *StreamError) Error() string { return e.Message }

func newStreamError(msg string) error {
	return &StreamError{Kind: ErrKindStream, Message: msg}
}

func newContextWindowExceeded() error {
	return &StreamError{Kind: ErrKindContextWindowExceeded, Message: "context window exceeded"}
}
