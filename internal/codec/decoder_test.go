package codec

import (
	"io"
	"strings"
	"testing"
	"time"
)

func drain(t *testing.T, d *Decoder) ([]ResponseEvent, error) {
	t.Helper()
	var events []ResponseEvent
	for {
		ev, err := d.Next()
		if err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, err
		}
		events = append(events, ev)
	}
}

func sseBody(frames ...string) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("data: ")
		b.WriteString(f)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestToolCallCoalescingAcrossFrames(t *testing.T) {
	body := sseBody(
		`{"id":"r1","choices":[{"delta":{"tool_calls":[{"id":"call_a","function":{"name":"do_a"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"id":"call_a","function":{"arguments":"{ \"foo\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"id":"call_a","function":{"arguments":"1}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)
	d := NewDecoder(strings.NewReader(body), time.Second)
	events, err := drain(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var calls []*ResponseEvent
	var completed int
	for i := range events {
		if events[i].Kind == EventOutputItemDone && events[i].Item.Kind == "function_call" {
			calls = append(calls, &events[i])
		}
		if events[i].Kind == EventCompleted {
			completed++
		}
	}
	if len(calls) != 1 {
		t.Fatalf("expected exactly one FunctionCall OutputItemDone, got %d", len(calls))
	}
	call := calls[0].Item.Call
	if call.CallID != "call_a" || call.Name != "do_a" || call.Arguments != `{ "foo":1}` {
		t.Fatalf("unexpected call: %+v", call)
	}
	if completed != 1 {
		t.Fatalf("expected exactly one Completed event, got %d", completed)
	}
}

func TestArgumentSplittingDoesNotAffectResult(t *testing.T) {
	bodyA := sseBody(
		`{"choices":[{"delta":{"tool_calls":[{"id":"x","function":{"name":"f","arguments":"{\"a\":1"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"id":"x","function":{"arguments":"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)
	bodyB := sseBody(
		`{"choices":[{"delta":{"tool_calls":[{"id":"x","function":{"name":"f","arguments":"{"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"id":"x","function":{"arguments":"\"a\":1}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)

	evA, err := drain(t, NewDecoder(strings.NewReader(bodyA), time.Second))
	if err != nil {
		t.Fatal(err)
	}
	evB, err := drain(t, NewDecoder(strings.NewReader(bodyB), time.Second))
	if err != nil {
		t.Fatal(err)
	}

	argsOf := func(events []ResponseEvent) string {
		for _, e := range events {
			if e.Kind == EventOutputItemDone && e.Item.Kind == "function_call" {
				return e.Item.Call.Arguments
			}
		}
		return ""
	}
	if argsOf(evA) != argsOf(evB) {
		t.Fatalf("argument strings diverged: %q vs %q", argsOf(evA), argsOf(evB))
	}
}

func TestStopWithPendingToolCallsDropsThem(t *testing.T) {
	body := sseBody(
		`{"choices":[{"delta":{"tool_calls":[{"id":"call_a","function":{"name":"do_a","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	)
	d := NewDecoder(strings.NewReader(body), time.Second)
	events, err := drain(t, d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, e := range events {
		if e.Kind == EventOutputItemDone && e.Item.Kind == "function_call" {
			t.Fatalf("expected no FunctionCall items, got %+v", e.Item.Call)
		}
	}
	if len(events) == 0 || events[len(events)-1].Kind != EventCompleted {
		t.Fatalf("expected stream to end with Completed, got %+v", events)
	}
}

func TestLastNonNullToolCallNameWins(t *testing.T) {
	body := sseBody(
		`{"choices":[{"delta":{"tool_calls":[{"id":"x","function":{"name":"first","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"id":"x","function":{"name":"second","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)
	events, err := drain(t, NewDecoder(strings.NewReader(body), time.Second))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range events {
		if e.Kind == EventOutputItemDone && e.Item.Kind == "function_call" {
			if e.Item.Call.Name != "second" {
				t.Fatalf("expected last name to win, got %q", e.Item.Call.Name)
			}
			return
		}
	}
	t.Fatal("no function call event emitted")
}

func TestReasoningContentIndexIsPreAppendLength(t *testing.T) {
	body := sseBody(
		`{"choices":[{"delta":{"reasoning":"first"}}]}`,
		`{"choices":[{"delta":{"reasoning":"second"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	)
	events, err := drain(t, NewDecoder(strings.NewReader(body), time.Second))
	if err != nil {
		t.Fatal(err)
	}
	var indices []int
	for _, e := range events {
		if e.Kind == EventReasoningDelta {
			indices = append(indices, e.ContentIndex)
		}
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 1 {
		t.Fatalf("unexpected reasoning indices: %v", indices)
	}
}

func TestIdleTimeoutEmitsStreamError(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	d := NewDecoder(pr, 20*time.Millisecond)
	_, err := d.Next()
	if err == nil {
		t.Fatal("expected idle timeout error")
	}
	se, ok := err.(*StreamError)
	if !ok || se.Kind != ErrKindStream {
		t.Fatalf("expected Stream error kind, got %#v", err)
	}
}

func TestLengthFinishReasonIsContextWindowExceeded(t *testing.T) {
	body := sseBody(`{"choices":[{"delta":{"content":"partial"},"finish_reason":"length"}]}`)
	d := NewDecoder(strings.NewReader(body), time.Second)

	// drain the OutputItemAdded/Delta pair first
	for i := 0; i < 2; i++ {
		if _, err := d.Next(); err != nil {
			t.Fatalf("unexpected error before finish: %v", err)
		}
	}
	_, err := d.Next()
	se, ok := err.(*StreamError)
	if !ok || se.Kind != ErrKindContextWindowExceeded {
		t.Fatalf("expected ContextWindowExceeded, got %#v", err)
	}
}

func TestOutputItemAddedPrecedesFirstDelta(t *testing.T) {
	body := sseBody(
		`{"choices":[{"delta":{"content":"hi"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	)
	events, err := drain(t, NewDecoder(strings.NewReader(body), time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) < 2 || events[0].Kind != EventOutputItemAdded || events[1].Kind != EventOutputTextDelta {
		t.Fatalf("expected OutputItemAdded before first delta, got %+v", events)
	}
}
