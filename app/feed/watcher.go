package feed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watcher reports changes to feed definition files. Bursts of events for the same
// file collapse into one callback.
type Watcher struct {
	dir      string
	onChange func(feedName string)
	onRemove func(feedName string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewWatcher(dir string, onChange, onRemove func(feedName string)) *Watcher {
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		onRemove: onRemove,
		timers:   make(map[string]*time.Timer),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	slog.Info("Watching feed definitions", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	feedName, ok := FeedNameFromPath(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// editors that save by rename leave the file in place
		if _, err := os.Stat(event.Name); err == nil {
			w.schedule(feedName, w.onChange)
			return
		}
		w.schedule(feedName, w.onRemove)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(feedName, w.onChange)
	}
}

func (w *Watcher) schedule(feedName string, fn func(string)) {
	if fn == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[feedName]; ok {
		t.Stop()
	}
	w.timers[feedName] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.timers, feedName)
		w.mu.Unlock()
		fn(feedName)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
}
