package rollout

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the codex_home sessions tree for new or modified rollout
// files, debouncing bursts of writes into a single notification so callers
// rebuild their index at most once per quiet period.
type Watcher struct {
	root     string
	logger   *slog.Logger
	debounce time.Duration

	fsw      *fsnotify.Watcher
	watchMu  sync.Mutex
	watchSet map[string]struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWatcher creates a Watcher rooted at the codex_home sessions directory.
// The directory must already exist; callers typically call this once at
// startup after ensuring sessions/ has been created.
func NewWatcher(root string, logger *slog.Logger, debounce time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{root: root, logger: logger, debounce: debounce, fsw: fsw, watchSet: map[string]struct{}{}}, nil
}

// Start begins watching root and its year/month subdirectories, invoking
// onChange (debounced) whenever a .jsonl file under root is created,
// written, or renamed. Start returns once the initial directory tree has
// been subscribed; new year/month directories created later are picked up
// as they appear.
func (w *Watcher) Start(ctx context.Context, onChange func(path string)) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(watchCtx, onChange)
	return nil
}

// Close stops the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			w.addWatch(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(dir string) {
	w.watchMu.Lock()
	defer w.watchMu.Unlock()
	if _, ok := w.watchSet[dir]; ok {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("rollout watch add failed", "dir", dir, "error", err)
		return
	}
	w.watchSet[dir] = struct{}{}
}

func (w *Watcher) loop(ctx context.Context, onChange func(path string)) {
	defer w.wg.Done()

	var mu sync.Mutex
	pending := map[string]struct{}{}
	var timer *time.Timer
	flush := func() {
		mu.Lock()
		paths := pending
		pending = map[string]struct{}{}
		mu.Unlock()
		for path := range paths {
			onChange(path)
		}
	}
	schedule := func(path string) {
		mu.Lock()
		pending[path] = struct{}{}
		mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, flush)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addWatch(event.Name)
					continue
				}
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rollout watch error", "error", err)
		}
	}
}
