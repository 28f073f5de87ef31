package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// DefaultDebounce is the quiet period before a burst of changes to one file
// is delivered.
const DefaultDebounce = 50 * time.Millisecond

// Watcher is a worker that reports changes to rule files under a directory
// as core.RuleEvent values. Events for one path are debounced.
type Watcher struct {
	*worker.BaseWorker
	dir          string
	pattern      string
	events       chan<- core.RuleEvent
	logger       *slog.Logger
	errorHandler func(error)
	delay        time.Duration

	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
	active    atomic.Bool
	delivered atomic.Int64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithWatchErrorHandler receives fsnotify errors. They are logged either way.
func WithWatchErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.errorHandler = fn
	}
}

// WithDebounce sets the per-file quiet period.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.delay = d
	}
}

// NewWatcher creates a watcher for files under dir whose slash-separated
// relative path matches the doublestar pattern.
func NewWatcher(dir, pattern string, events chan<- core.RuleEvent, opts ...WatcherOption) (*Watcher, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid rule pattern %q", pattern)
	}
	w := &Watcher{
		BaseWorker: worker.NewBaseWorker("rule-watcher"),
		dir:        dir,
		pattern:    pattern,
		events:     events,
		logger:     slog.Default(),
		delay:      DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It returns once the watches are installed.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.recursiveAdd(watcher, w.dir); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(w.delay)
	w.active.Store(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

// Stop cancels the watch loop and waits for it to exit.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

// State reports the worker state.
func (w *Watcher) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"dir":               w.dir,
			"pattern":           w.pattern,
			"delivered":         fmt.Sprint(w.delivered.Load()),
		}
	})
}

// Active reports whether the watch loop is running.
func (w *Watcher) Active() bool {
	return w.active.Load()
}

// recursiveAdd installs a watch on root and every non-hidden directory below it.
func (w *Watcher) recursiveAdd(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			w.logger.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// matches reports whether path is a rule file for this watcher.
func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if isHidden(part) || strings.HasPrefix(part, TempFilePrefix) {
			return false
		}
	}
	ok, err := doublestar.Match(w.pattern, rel)
	return err == nil && ok
}

func mapEventKind(event fsnotify.Event) core.RuleEventKind {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return core.RuleRemove
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return core.RuleLoad
	default:
		return ""
	}
}

// processFilesystemEvent filters, maps and debounces one fsnotify event.
func (w *Watcher) processFilesystemEvent(ctx context.Context, event fsnotify.Event) bool {
	w.logger.Debug("event received", "name", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.handleNewDir(ctx, event.Name)
			return true
		}
	}

	if !w.matches(event.Name) {
		return false
	}
	kind := mapEventKind(event)
	if kind == "" {
		return false
	}

	w.sendEvent(ctx, core.RuleEvent{
		Kind:      kind,
		Path:      event.Name,
		Timestamp: time.Now().Unix(),
	})
	return true
}

// handleNewDir watches a directory created after Start and reports the rule
// files it already holds, since their create events were never observed.
func (w *Watcher) handleNewDir(ctx context.Context, dir string) {
	if isHidden(filepath.Base(dir)) {
		return
	}
	if err := w.recursiveAdd(w.watcher, dir); err != nil {
		w.handleWatcherError(err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.matches(path) {
			w.sendEvent(ctx, core.RuleEvent{Kind: core.RuleLoad, Path: path, Timestamp: time.Now().Unix()})
		}
		return nil
	})
}

// sendEvent enqueues an event via the debouncer, protecting against channel closure during shutdown.
func (w *Watcher) sendEvent(ctx context.Context, event core.RuleEvent) {
	w.debouncer.add(event, func(e core.RuleEvent) {
		defer func() {
			// The consumer may have closed the channel while stopping.
			_ = recover()
		}()
		select {
		case w.events <- e:
			w.delivered.Add(1)
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) handleWatcherError(err error) {
	w.logger.Error("fsnotify error", "error", err)
	if w.errorHandler != nil {
		w.errorHandler(err)
	}
}

// run is the main event loop for the watcher worker.
func (w *Watcher) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)

			// Stack traces only at debug level.
			if w.logger.Enabled(ctx, slog.LevelDebug) {
				w.logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.logger.Error("watcher panic", "error", err)
			}
		}
	}()
	defer w.active.Store(false)
	defer w.watcher.Close()

	err = w.mainEventLoop(ctx)

	// Wait for in-flight deliveries before the caller may close the events channel.
	w.debouncer.stopAndWait(5 * time.Second)

	return err
}

func (w *Watcher) mainEventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher events channel closed")
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher errors channel closed")
			}
			w.handleWatcherError(wErr)
		}
	}
}
