package flags

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/parlancehq/parlance/pkg/logging"
)

const (
	defaultDebounce     = 500 * time.Millisecond
	defaultPollInterval = 30 * time.Second
)

// Watcher keeps a Store in sync with its file. It watches the file's
// directory through fsnotify (editors replace files rather than write in
// place, so watching the file itself misses renames) and polls mtime/size
// as a fallback for filesystems where notification is unreliable.
type Watcher struct {
	store        *Store
	logger       *logging.Logger
	debounce     time.Duration
	pollInterval time.Duration
}

// NewWatcher builds a watcher for store. Zero durations get defaults.
func NewWatcher(store *Store, debounce, pollInterval time.Duration, logger *logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Watcher{
		store:        store,
		logger:       logger,
		debounce:     debounce,
		pollInterval: pollInterval,
	}
}

// Watch blocks until ctx is done, reloading the store when its file
// changes. When the fsnotify watcher cannot be created the loop degrades to
// polling alone.
func (w *Watcher) Watch(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logf("watch_degraded", "fsnotify unavailable, polling only", map[string]any{"error": err.Error()})
	} else {
		defer fsw.Close()
		dir := filepath.Dir(w.store.path)
		if err := fsw.Add(dir); err != nil {
			w.logf("watch_degraded", "cannot watch flag directory, polling only", map[string]any{
				"dir":   dir,
				"error": err.Error(),
			})
		} else {
			events = fsw.Events
			watchErrs = fsw.Errors
		}
	}

	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()

	// The debounce timer starts stopped; the first relevant event arms it.
	debounce := time.NewTimer(w.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	target := filepath.Clean(w.store.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(w.debounce)

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			w.logf("watch_error", "flag watcher error", map[string]any{"error": err.Error()})

		case <-debounce.C:
			w.reload()

		case <-poll.C:
			if w.store.changedOnDisk() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	if err := w.store.Load(); err != nil {
		w.logf("reload_failed", "flag reload failed, keeping previous snapshot", map[string]any{
			"error": err.Error(),
		})
	}
}

func (w *Watcher) logf(eventType, message string, details map[string]any) {
	if w.logger == nil {
		return
	}
	w.logger.Warn(logging.CategoryFlags, eventType, message, details)
}
