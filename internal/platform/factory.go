package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/lifecycle"

	"github.com/rasher/reddit-modbot/pkg/action"
	"github.com/rasher/reddit-modbot/pkg/adapters/fs"
	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
	"github.com/rasher/reddit-modbot/pkg/match"
	"github.com/rasher/reddit-modbot/pkg/rules"
	"github.com/rasher/reddit-modbot/pkg/seen"
)

// Bot wires the rule store, seen tracker, dispatcher and engine around one
// rules directory.
type Bot struct {
	Dir     string
	Pattern string

	Store      *rules.Store
	Tracker    *seen.Tracker
	Dispatcher *action.Dispatcher
	Engine     *match.Engine
	// SeenLog is set when the bot owns a file-backed seen log.
	SeenLog *fs.SeenLog

	opts   *options
	logger *slog.Logger

	mu       sync.Mutex
	watcher  *fs.Watcher
	cancel   context.CancelFunc
	consumer chan struct{}
}

// New builds a bot for the rules under rulesDir and loads them.
//
//	bot, err := platform.New(ctx, "./rules", platform.WithSeenLog("seen.list"))
func New(ctx context.Context, rulesDir string, opts ...Option) (*Bot, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := filepath.Abs(rulesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules dir: %w", err)
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("rules dir: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("rules dir %s is not a directory", dir)
	}

	reg := o.registry
	if reg == nil {
		reg = field.DefaultIn(o.location)
	}
	metrics := match.NewMetrics(o.metrics)

	storeOpts := []rules.StoreOption{
		rules.WithLogger(logger.With("component", "rules")),
		rules.WithMatchTimeout(o.matchTimeout),
	}
	if metrics != nil {
		storeOpts = append(storeOpts, rules.WithObserver(metrics))
	}

	b := &Bot{
		Dir:     dir,
		Pattern: o.pattern,
		Store:   rules.NewStore(reg, storeOpts...),
		opts:    o,
		logger:  logger,
	}

	storage := o.seenStorage
	if storage == nil {
		b.SeenLog, err = fs.OpenSeenLog(o.seenLog, fs.WithSeenLogger(logger.With("component", "seen")))
		if err != nil {
			return nil, err
		}
		storage = b.SeenLog
	}
	b.Tracker, err = seen.NewTracker(ctx, storage, seen.WithLogger(logger.With("component", "seen")))
	if err != nil {
		b.closeSeenLog()
		return nil, err
	}

	exec := o.executor
	if exec == nil {
		exec = action.NewDryRun(logger.With("component", "dryrun"))
	}
	dispatchOpts := []action.Option{action.WithLogger(logger.With("component", "action"))}
	if o.bell != nil {
		dispatchOpts = append(dispatchOpts, action.WithBell(o.bell))
	}
	b.Dispatcher = action.NewDispatcher(exec, dispatchOpts...)

	b.Engine = match.NewEngine(b.Store, b.Tracker, b.Dispatcher,
		match.WithRegistry(reg),
		match.WithDecorator(o.decorator),
		match.WithLogger(logger.With("component", "match")),
		match.WithMetrics(metrics),
	)

	if err := b.Reload(); err != nil {
		b.closeSeenLog()
		return nil, err
	}
	return b, nil
}

// Reload rescans the rules directory: every matching file is (re)loaded and
// rules whose file is gone are removed. Files that fail to parse are logged
// and keep their previous rule. It is safe to call while watching.
func (b *Bot) Reload() error {
	err := b.Store.Reconcile(func() ([]string, error) {
		return fs.ScanRules(b.Dir, b.Pattern)
	})
	if err != nil {
		return err
	}
	b.logger.Info("rules loaded", "dir", b.Dir, "snapshot", rules.String(b.Store.Snapshot()))
	return nil
}

// Start watches the rules directory and applies changes until Stop or ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		return errors.New("bot already started")
	}

	events := make(chan core.RuleEvent, b.opts.eventBuffer)
	watchOpts := []fs.WatcherOption{
		fs.WithWatchLogger(b.logger.With("component", "watcher")),
		fs.WithDebounce(b.opts.debounce),
	}
	if b.opts.watcherErrorHandler != nil {
		watchOpts = append(watchOpts, fs.WithWatchErrorHandler(b.opts.watcherErrorHandler))
	}
	w, err := fs.NewWatcher(b.Dir, b.Pattern, events, watchOpts...)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := w.Start(runCtx); err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	lifecycle.Go(runCtx, func(ctx context.Context) error {
		defer close(done)
		return b.Store.Consume(ctx, events)
	}, lifecycle.WithErrorHandler(func(err error) {
		b.logger.Error("rule consumer failed", "error", err)
	}))

	b.watcher = w
	b.cancel = cancel
	b.consumer = done

	// Changes made between New and the watch being installed were not observed.
	return b.Reload()
}

// Stop halts watching. Evaluate keeps working against the last snapshot.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	w, cancel, done := b.watcher, b.cancel, b.consumer
	b.watcher, b.cancel, b.consumer = nil, nil, nil
	b.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Stop(ctx)
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Watching reports whether the rule watcher is running.
func (b *Bot) Watching() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watcher != nil && b.watcher.Active()
}

// Evaluate runs item through the current rules in context c.
func (b *Bot) Evaluate(ctx context.Context, item *core.Item, c core.Context) (core.Outcome, error) {
	return b.Engine.Evaluate(ctx, item, c)
}

// Snapshot returns the current rule set.
func (b *Bot) Snapshot() *core.Snapshot {
	return b.Store.Snapshot()
}

// Close stops watching and releases the seen log.
func (b *Bot) Close(ctx context.Context) error {
	err := b.Stop(ctx)
	return errors.Join(err, b.closeSeenLog())
}

func (b *Bot) closeSeenLog() error {
	if b.SeenLog == nil {
		return nil
	}
	return b.SeenLog.Close()
}
