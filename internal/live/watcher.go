package live

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher debounces filesystem writes under a repository's working tree
// into a single "consider syncing" trigger, grounded on the teacher's
// cmd/bd/daemon_watcher.go debounced fsnotify loop — generalized here from
// one JSONL path to a repository directory. Only that directory itself is
// watched; changes inside its subdirectories are not seen.
type Watcher struct {
	fsw     *fsnotify.Watcher
	debounce time.Duration
	log     zerolog.Logger
}

// NewWatcher creates an fsnotify watcher rooted at dir. Callers that can't
// use fsnotify (e.g. restrictive sandboxes) should treat a non-nil error
// as "live scheduler still works via its timer; eager triggers are best
// effort".
func NewWatcher(dir string, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw, debounce: debounce, log: log}, nil
}

// Run watches for write, create, remove and rename events and calls
// onChange at most once per
// debounce window, until ctx is canceled.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, onChange)
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
