// Package observability provides diagnostic event types and emission.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DiagnosticTurnState represents the state of a turn.
type DiagnosticTurnState string

const (
	TurnStateIdle       DiagnosticTurnState = "idle"
	TurnStateProcessing DiagnosticTurnState = "processing"
	TurnStateWaiting    DiagnosticTurnState = "waiting"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	EventTypeModelUsage          DiagnosticEventType = "model.usage"
	EventTypeDispatchReceived    DiagnosticEventType = "dispatch.received"
	EventTypeDispatchProcessed   DiagnosticEventType = "dispatch.processed"
	EventTypeDispatchError       DiagnosticEventType = "dispatch.error"
	EventTypeTurnQueued          DiagnosticEventType = "turn.queued"
	EventTypeTurnProcessed       DiagnosticEventType = "turn.processed"
	EventTypeTurnState           DiagnosticEventType = "turn.state"
	EventTypeTurnStuck           DiagnosticEventType = "turn.stuck"
	EventTypeSandboxDenied       DiagnosticEventType = "sandbox.denied"
	EventTypeNetPolicyDenied     DiagnosticEventType = "netpolicy.denied"
	EventTypeRunAttempt          DiagnosticEventType = "run.attempt"
	EventTypeDiagnosticHeartbeat DiagnosticEventType = "diagnostic.heartbeat"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// ModelUsageEvent tracks token usage for a model request.
type ModelUsageEvent struct {
	DiagnosticEvent
	ThreadID   string          `json:"thread_id,omitempty"`
	TurnID     string          `json:"turn_id,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
	Usage      UsageDetails    `json:"usage"`
	Context    *ContextDetails `json:"context,omitempty"`
	CostUSD    float64         `json:"cost_usd,omitempty"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// UsageDetails contains token usage breakdown.
type UsageDetails struct {
	Input        int64 `json:"input,omitempty"`
	Output       int64 `json:"output,omitempty"`
	CacheRead    int64 `json:"cache_read,omitempty"`
	CacheWrite   int64 `json:"cache_write,omitempty"`
	PromptTokens int64 `json:"prompt_tokens,omitempty"`
	Total        int64 `json:"total,omitempty"`
}

// ContextDetails contains context window information.
type ContextDetails struct {
	Limit int64 `json:"limit,omitempty"`
	Used  int64 `json:"used,omitempty"`
}

// DispatchReceivedEvent tracks an incoming tool-call dispatch.
type DispatchReceivedEvent struct {
	DiagnosticEvent
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id,omitempty"`
}

// DispatchProcessedEvent tracks a completed tool-call dispatch.
type DispatchProcessedEvent struct {
	DiagnosticEvent
	ToolName   string `json:"tool_name"`
	CallID     string `json:"call_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// DispatchErrorEvent tracks a failed tool-call dispatch.
type DispatchErrorEvent struct {
	DiagnosticEvent
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id,omitempty"`
	Error    string `json:"error"`
}

// TurnQueuedEvent tracks a turn entering a thread's run queue.
type TurnQueuedEvent struct {
	DiagnosticEvent
	ThreadID   string `json:"thread_id,omitempty"`
	TurnID     string `json:"turn_id,omitempty"`
	Source     string `json:"source"`
	QueueDepth int    `json:"queue_depth,omitempty"`
}

// TurnProcessedEvent tracks a completed turn.
type TurnProcessedEvent struct {
	DiagnosticEvent
	ThreadID   string `json:"thread_id,omitempty"`
	TurnID     string `json:"turn_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Outcome    string `json:"outcome"` // "completed", "aborted", "error"
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TurnStateEvent tracks turn state changes.
type TurnStateEvent struct {
	DiagnosticEvent
	ThreadID   string               `json:"thread_id,omitempty"`
	TurnID     string               `json:"turn_id,omitempty"`
	PrevState  DiagnosticTurnState  `json:"prev_state,omitempty"`
	State      DiagnosticTurnState  `json:"state"`
	Reason     string               `json:"reason,omitempty"`
	QueueDepth int                  `json:"queue_depth,omitempty"`
}

// TurnStuckEvent tracks turns exceeding an expected run time.
type TurnStuckEvent struct {
	DiagnosticEvent
	ThreadID   string              `json:"thread_id,omitempty"`
	TurnID     string              `json:"turn_id,omitempty"`
	State      DiagnosticTurnState `json:"state"`
	AgeMs      int64               `json:"age_ms"`
	QueueDepth int                 `json:"queue_depth,omitempty"`
}

// SandboxDeniedEvent tracks a sandbox policy rejecting an exec call.
type SandboxDeniedEvent struct {
	DiagnosticEvent
	ThreadID string `json:"thread_id,omitempty"`
	TurnID   string `json:"turn_id,omitempty"`
	Command  string `json:"command,omitempty"`
	Reason   string `json:"reason"`
}

// NetPolicyDeniedEvent tracks a network policy rejecting an outbound connection.
type NetPolicyDeniedEvent struct {
	DiagnosticEvent
	ThreadID string `json:"thread_id,omitempty"`
	TurnID   string `json:"turn_id,omitempty"`
	Host     string `json:"host"`
	Reason   string `json:"reason"`
}

// RunAttemptEvent tracks run attempts.
type RunAttemptEvent struct {
	DiagnosticEvent
	ThreadID string `json:"thread_id,omitempty"`
	TurnID   string `json:"turn_id,omitempty"`
	RunID    string `json:"run_id"`
	Attempt  int    `json:"attempt"`
}

// DiagnosticHeartbeatEvent tracks diagnostic heartbeats.
type DiagnosticHeartbeatEvent struct {
	DiagnosticEvent
	Dispatches DispatchStats `json:"dispatches"`
	Active     int           `json:"active"`
	Waiting    int           `json:"waiting"`
	Queued     int           `json:"queued"`
}

// DispatchStats contains dispatch statistics.
type DispatchStats struct {
	Received  int64 `json:"received"`
	Processed int64 `json:"processed"`
	Errors    int64 `json:"errors"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

// Implement DiagnosticEventPayload for all event types
func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener for diagnostic events.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.listeners = append(globalEmitter.listeners, listener)

	// Return unsubscribe function
	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		for i, l := range globalEmitter.listeners {
			// Compare function pointers (this is a simplification)
			if &l == &listener {
				globalEmitter.listeners = append(globalEmitter.listeners[:i], globalEmitter.listeners[i+1:]...)
				break
			}
		}
	}
}

// nextSeq returns the next sequence number.
func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

// emit sends an event to all listeners.
func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					_ = recovered
				}
			}() // Ignore listener panics
			listener(event)
		}()
	}
}

// EmitModelUsage emits a model usage event.
func EmitModelUsage(e *ModelUsageEvent) {
	e.Type = EventTypeModelUsage
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDispatchReceived emits a dispatch received event.
func EmitDispatchReceived(e *DispatchReceivedEvent) {
	e.Type = EventTypeDispatchReceived
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDispatchProcessed emits a dispatch processed event.
func EmitDispatchProcessed(e *DispatchProcessedEvent) {
	e.Type = EventTypeDispatchProcessed
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDispatchError emits a dispatch error event.
func EmitDispatchError(e *DispatchErrorEvent) {
	e.Type = EventTypeDispatchError
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnQueued emits a turn queued event.
func EmitTurnQueued(e *TurnQueuedEvent) {
	e.Type = EventTypeTurnQueued
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnProcessed emits a turn processed event.
func EmitTurnProcessed(e *TurnProcessedEvent) {
	e.Type = EventTypeTurnProcessed
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnState emits a turn state event.
func EmitTurnState(e *TurnStateEvent) {
	e.Type = EventTypeTurnState
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTurnStuck emits a turn stuck event.
func EmitTurnStuck(e *TurnStuckEvent) {
	e.Type = EventTypeTurnStuck
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitSandboxDenied emits a sandbox denial event.
func EmitSandboxDenied(e *SandboxDeniedEvent) {
	e.Type = EventTypeSandboxDenied
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitNetPolicyDenied emits a network policy denial event.
func EmitNetPolicyDenied(e *NetPolicyDeniedEvent) {
	e.Type = EventTypeNetPolicyDenied
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitRunAttempt emits a run attempt event.
func EmitRunAttempt(e *RunAttemptEvent) {
	e.Type = EventTypeRunAttempt
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDiagnosticHeartbeat emits a diagnostic heartbeat event.
func EmitDiagnosticHeartbeat(e *DiagnosticHeartbeatEvent) {
	e.Type = EventTypeDiagnosticHeartbeat
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}
