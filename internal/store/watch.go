package store

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the task file for out-of-band edits and reloads the
// store. Events are debounced (300ms) to avoid rapid reloads; the parent
// directory is watched because atomic renames replace the file inode.
type Watcher struct {
	store    *TaskStore
	watcher  *fsnotify.Watcher
	debounce time.Duration
	handlers []func()
	stopChan chan struct{}
	mu       sync.Mutex
}

// NewWatcher creates a watcher for the store's task file.
func NewWatcher(s *TaskStore) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:    s,
		watcher:  w,
		debounce: 300 * time.Millisecond,
	}, nil
}

// OnReload registers a handler called after each successful reload.
func (w *Watcher) OnReload(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.store.Path())); err != nil {
		return err
	}
	w.stopChan = make(chan struct{})
	go w.watchLoop()

	slog.Info("task file watcher started", "path", w.store.Path())
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	if w.stopChan != nil {
		close(w.stopChan)
	}
	w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer
	base := filepath.Base(w.store.Path())

	for {
		select {
		case <-w.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("task file watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if err := w.store.Reload(); err != nil {
		slog.Warn("task file reload failed", "error", err)
		return
	}
	slog.Info("task file reloaded", "path", w.store.Path())

	w.mu.Lock()
	handlers := append([]func(){}, w.handlers...)
	w.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}
