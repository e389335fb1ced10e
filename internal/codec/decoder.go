package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

// DefaultIdleTimeout is used when a Decoder is constructed with a
// non-positive idle timeout.
const DefaultIdleTimeout = 60 * time.Second

type toolCallAccumulator struct {
	callID    types.CallID
	name      string
	arguments string
}

type frameOrErr struct {
	f   frame
	err error
}

// Decoder converts a byte stream of server-sent events into a lazy,
// finite sequence of ResponseEvent values (C1). It is single-producer:
// callers must fully drain Next before discarding the Decoder.
type Decoder struct {
	idleTimeout time.Duration
	frames      chan frameOrErr

	queue []ResponseEvent
	done  bool

	messageStarted bool
	messageText    string

	reasoningParts []string
	reasoningFlushed bool

	toolCalls      map[string]*toolCallAccumulator
	toolCallOrder  []string

	sawFinish bool
}

// NewDecoder starts reading r in the background and returns a Decoder ready
// for Next to be called. idleTimeout <= 0 uses DefaultIdleTimeout.
func NewDecoder(r io.Reader, idleTimeout time.Duration) *Decoder {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	d := &Decoder{
		idleTimeout: idleTimeout,
		frames:      make(chan frameOrErr, 16),
		toolCalls:   make(map[string]*toolCallAccumulator),
	}
	go d.pump(r)
	return d
}

func (d *Decoder) pump(r io.Reader) {
	scanner := newFrameScanner(r)
	for {
		f, err := scanner.next()
		d.frames <- frameOrErr{f: f, err: err}
		if err != nil {
			return
		}
	}
}

// Next returns the next ResponseEvent, or an error. Once an error is
// returned (including a *StreamError), the stream is terminated and
// subsequent calls return the same error.
func (d *Decoder) Next() (ResponseEvent, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.done {
			return ResponseEvent{}, io.EOF
		}

		select {
		case msg := <-d.frames:
			if msg.err != nil {
				if msg.err == io.EOF {
					d.finishStream()
					continue
				}
				d.done = true
				return ResponseEvent{}, newStreamError(fmt.Sprintf("sse decode failed: %v", msg.err))
			}
			if err := d.handleFrame(msg.f); err != nil {
				d.done = true
				return ResponseEvent{}, err
			}
		case <-time.After(d.idleTimeout):
			d.done = true
			return ResponseEvent{}, newStreamError("idle timeout waiting for SSE")
		}
	}
}

func (d *Decoder) handleFrame(f frame) error {
	if f.data == "" {
		return nil
	}
	if f.data == "[DONE]" {
		d.finishStream()
		return nil
	}

	var chunk wireChunk
	if err := json.Unmarshal([]byte(f.data), &chunk); err != nil {
		// Non-JSON payloads are skipped per the codec contract.
		return nil
	}

	for _, choice := range chunk.Choices {
		d.applyDelta(choice.Delta)
		if choice.FinishReason == nil {
			continue
		}
		d.sawFinish = true
		switch *choice.FinishReason {
		case "stop":
			d.flushReasoning()
			d.flushMessage()
			d.emitCompleted("", nil)
			d.done = true
			return nil
		case "length":
			d.done = true
			return newContextWindowExceeded()
		case "tool_calls":
			d.flushReasoning()
			d.flushToolCalls()
			d.emitCompleted(chunk.ID, chunk.Usage)
			d.done = true
			return nil
		default:
			// Unknown finish reasons are treated like end-of-stream.
			d.flushReasoning()
			d.flushMessage()
			d.emitCompleted(chunk.ID, chunk.Usage)
			d.done = true
			return nil
		}
	}
	return nil
}

func (d *Decoder) applyDelta(delta wireDelta) {
	if text, ok := extractReasoningText(delta.Reasoning); ok {
		idx := len(d.reasoningParts)
		d.reasoningParts = append(d.reasoningParts, text)
		d.queue = append(d.queue, ResponseEvent{
			Kind:           EventReasoningDelta,
			ReasoningDelta: text,
			ContentIndex:   idx,
		})
	}

	if text, ok := extractContentText(delta.Content); ok {
		if !d.messageStarted {
			d.messageStarted = true
			item := types.NewMessageItem("assistant")
			d.queue = append(d.queue, ResponseEvent{Kind: EventOutputItemAdded, Item: &item})
		}
		d.messageText += text
		d.queue = append(d.queue, ResponseEvent{Kind: EventOutputTextDelta, TextDelta: text})
	}

	for i, tc := range delta.ToolCalls {
		key := tc.ID
		if key == "" {
			key = fmt.Sprintf("tool-call-%d", i)
		}
		entry, ok := d.toolCalls[key]
		if !ok {
			entry = &toolCallAccumulator{callID: types.CallID(key)}
			d.toolCalls[key] = entry
			d.toolCallOrder = append(d.toolCallOrder, key)
		}
		if tc.Function.Name != nil && *tc.Function.Name != "" {
			entry.name = *tc.Function.Name
		}
		entry.arguments += tc.Function.Arguments
	}
}

// finishStream handles end-of-stream with no terminal finish_reason: flush
// reasoning, then the assistant message, then emit exactly one Completed.
func (d *Decoder) finishStream() {
	if d.done {
		return
	}
	if !d.sawFinish {
		d.flushReasoning()
		d.flushMessage()
		d.emitCompleted("", nil)
	}
	d.done = true
}

func (d *Decoder) flushReasoning() {
	if d.reasoningFlushed || len(d.reasoningParts) == 0 {
		return
	}
	d.reasoningFlushed = true
	item := types.NewReasoningItem(nil, d.reasoningParts, false)
	d.queue = append(d.queue, ResponseEvent{Kind: EventOutputItemDone, Item: &item})
}

func (d *Decoder) flushMessage() {
	if !d.messageStarted {
		return
	}
	d.messageStarted = false
	item := types.NewMessageItem("assistant", types.ContentBlock{Text: d.messageText})
	d.queue = append(d.queue, ResponseEvent{Kind: EventOutputItemDone, Item: &item})
}

// flushToolCalls emits OutputItemDone(FunctionCall) for every accumulated
// tool call in the order it was first observed. It never flushes the
// partial assistant message: per the "tool_calls" finish reason semantics,
// the turn runtime only cares about the calls.
func (d *Decoder) flushToolCalls() {
	for _, key := range d.toolCallOrder {
		entry := d.toolCalls[key]
		item := types.NewFunctionCallItem(entry.callID, entry.name, entry.arguments)
		d.queue = append(d.queue, ResponseEvent{Kind: EventOutputItemDone, Item: &item})
	}
}

func (d *Decoder) emitCompleted(responseID string, usage *wireUsage) {
	var tu *TokenUsage
	if usage != nil {
		tu = &TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		}
	}
	d.queue = append(d.queue, ResponseEvent{Kind: EventCompleted, ResponseID: responseID, TokenUsage: tu})
}
