package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last write before a reload.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a catalog file when it changes on disk. The containing
// directory is watched rather than the file, so editors that replace the
// file by rename are still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path. A zero debounce uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger.With("component", "catalog"),
	}
}

// Watch blocks until ctx is cancelled, calling onChange with the freshly
// loaded catalog after each burst of writes. Files that fail to parse are
// logged and skipped; the previous catalog stays in effect.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Catalog) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	w.logger.Info("catalog watcher started", "path", w.path, "debounce_ms", w.debounce.Milliseconds())

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("catalog watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("catalog event", "op", ev.Op.String())
			w.trigger(func() { w.reload(onChange) })

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("catalog watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(onChange func(*Catalog) error) {
	c, err := Load(w.path)
	if err != nil {
		w.logger.Error("catalog reload failed", "error", err)
		return
	}
	if err := onChange(c); err != nil {
		w.logger.Error("catalog apply failed", "error", err)
		return
	}
	w.logger.Info("catalog reloaded", "factions", len(c.Factions), "relations", len(c.Relations))
}

func (w *Watcher) trigger(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, fn)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
