// Package rollout implements the append-only per-thread event log: a single
// JSONL file per thread, one line per RolloutItem, appended in causal order
// and never mutated in place. Writers serialize appends per thread; readers
// reconstruct state with a sequential scan.
package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-core/agentcore/pkg/types"
)

// FileName builds the on-disk rollout file name for a thread, matching the
// layout sessions/<YYYY>/<MM>/rollout-<YYYY-MM-DDTHH-MM-SS>-<uuid>.jsonl.
func FileName(threadID types.ThreadID, createdAt time.Time, id uuid.UUID) string {
	ts := createdAt.UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("rollout-%s-%s.jsonl", ts, id.String())
}

// PathFor returns the full relative path under codexHome for a rollout file
// created at createdAt.
func PathFor(codexHome string, createdAt time.Time, name string) string {
	y := createdAt.UTC().Format("2006")
	m := createdAt.UTC().Format("01")
	return filepath.Join(codexHome, "sessions", y, m, name)
}

// Writer appends RolloutItems to a single thread's log file. A Writer is
// bound to exactly one thread and one underlying file; callers must not
// share one across threads.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
	path string
}

// Create opens a fresh rollout file at path, creating parent directories as
// needed. It fails if the file already exists, since rollout files are
// identified by a timestamp+uuid and are never reused.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: create %s: %w", path, err)
	}
	return &Writer{file: f, w: bufio.NewWriter(f), path: path}, nil
}

// OpenAppend reopens an existing rollout file for further appends, used
// when resuming a thread.
func OpenAppend(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	return &Writer{file: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the file path this writer appends to.
func (w *Writer) Path() string { return w.path }

// Append serializes item as one JSON line and flushes + fsyncs it before
// returning, so a crash immediately after Append never loses the item.
// Appends are serialized per writer: concurrent callers block on w.mu.
func (w *Writer) Append(item types.RolloutItem) error {
	line, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("rollout: marshal item: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("rollout: write: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("rollout: write newline: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("rollout: flush: %w", err)
	}
	return w.file.Sync()
}

// AppendBatch appends multiple items under a single lock acquisition and a
// single fsync, used when persisting everything produced by one turn.
func (w *Writer) AppendBatch(items []types.RolloutItem) error {
	if len(items) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("rollout: marshal item: %w", err)
		}
		if _, err := w.w.Write(line); err != nil {
			return fmt.Errorf("rollout: write: %w", err)
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("rollout: write newline: %w", err)
		}
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("rollout: flush: %w", err)
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("rollout: flush on close: %w", err)
	}
	return w.file.Close()
}
