package rollout

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

func TestCreateThenAppendThenReadAllRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout-test.jsonl")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	threadID := types.NewThreadID()
	meta := types.RolloutItem{
		Kind:      types.RolloutItemSessionMeta,
		Timestamp: time.Now().UTC(),
		SessionMeta: &types.SessionMetaPayload{
			ThreadID:  threadID,
			CreatedAt: time.Now().UTC(),
			Cwd:       "/work",
			Source:    types.ThreadSourceInteractive,
		},
	}
	msg := types.RolloutItem{
		Kind:      types.RolloutItemResponse,
		Timestamp: time.Now().UTC(),
		Response: func() *types.ResponseItem {
			item := types.NewMessageItem("user", types.ContentBlock{Text: "hello"})
			return &item
		}(),
	}

	if err := w.Append(meta); err != nil {
		t.Fatalf("Append meta: %v", err)
	}
	if err := w.Append(msg); err != nil {
		t.Fatalf("Append msg: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	items, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Kind != types.RolloutItemSessionMeta || items[0].SessionMeta.ThreadID != threadID {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].Kind != types.RolloutItemResponse || items[1].Response.Message.Content[0].Text != "hello" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}

func TestCreateRefusesExistingPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout-dup.jsonl")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Close()

	if _, err := Create(path); err == nil {
		t.Fatal("expected Create to fail on an existing path")
	}
}

func TestOpenAppendContinuesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout-resume.jsonl")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first := types.RolloutItem{Kind: types.RolloutItemEvent, Timestamp: time.Now().UTC(), Event: &types.EventMsgPayload{Type: "turn_started"}}
	if err := w.Append(first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	w2, err := OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	second := types.RolloutItem{Kind: types.RolloutItemEvent, Timestamp: time.Now().UTC(), Event: &types.EventMsgPayload{Type: "turn_complete"}}
	if err := w2.Append(second); err != nil {
		t.Fatalf("Append resumed: %v", err)
	}
	w2.Close()

	items, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after resume, got %d", len(items))
	}
	if items[1].Event.Type != "turn_complete" {
		t.Fatalf("unexpected second event: %+v", items[1])
	}
}

func TestReadAllSkipsTruncatedTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout-trunc.jsonl")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	good := types.RolloutItem{Kind: types.RolloutItemEvent, Timestamp: time.Now().UTC(), Event: &types.EventMsgPayload{Type: "ok"}}
	if err := w.Append(good); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Simulate a partial write by appending raw malformed JSON directly.
	w.mu.Lock()
	w.w.WriteString(`{"kind":"event_msg","event_msg":{"typ`)
	w.w.Flush()
	w.file.Sync()
	w.mu.Unlock()

	items, readErr := ReadAll(path)
	if readErr != nil {
		t.Fatalf("ReadAll: %v", readErr)
	}
	if len(items) != 1 {
		t.Fatalf("expected the truncated line to be skipped, got %d items", len(items))
	}
}
