package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/theirongolddev/burnmeter/internal/source"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher coalesces writes under the Claude data directory into change
// signals. fsnotify is not recursive, so every project directory is watched
// individually and new ones are added as they appear.
type Watcher struct {
	fs       *fsnotify.Watcher
	log      *zap.Logger
	debounce time.Duration
	changes  chan struct{}

	mu      sync.Mutex
	pending bool
}

// NewWatcher watches claudeDir (stats cache, history) and the projects tree
// below it.
func NewWatcher(claudeDir string, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{
		fs:       fsw,
		log:      log,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
	}

	if err := fsw.Add(claudeDir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	projects := source.ProjectsDir(claudeDir)
	w.add(projects)
	entries, _ := os.ReadDir(projects)
	for _, e := range entries {
		if e.IsDir() {
			w.add(filepath.Join(projects, e.Name()))
		}
	}
	return w, nil
}

func (w *Watcher) add(path string) {
	if err := w.fs.Add(path); err != nil {
		w.log.Debug("watch failed", zap.String("path", path), zap.Error(err))
	}
}

// Changes delivers at most one pending signal per debounce interval.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run processes filesystem events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.fs.Close() }()

	tick := time.NewTicker(w.debounce)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Debug("watcher error", zap.Error(err))
		case <-tick.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.add(ev.Name)
		}
	}
	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = false
	w.mu.Unlock()
	if !pending {
		return
	}
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
