package modbot

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rasher/reddit-modbot/internal/platform"
	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
)

// Version of the library and the modbot command.
const Version = "0.4.0"

// --- Types ---

// Bot is a running rule engine bound to one rules directory.
type Bot = platform.Bot

// Item is a unit of content evaluated against the rules.
type Item = core.Item

// Author is the account behind an Item.
type Author = core.Author

// Context names the evaluation stream an item came from.
type Context = core.Context

// Outcome is the result of evaluating one item.
type Outcome = core.Outcome

// Executor performs moderation actions.
type Executor = core.Executor

// Decorator resolves author karma and account age.
type Decorator = core.Decorator

// SeenStorage is the durable backend of the seen tracker.
type SeenStorage = core.SeenStorage

const (
	ContextStream = core.ContextStream
	ContextQueue  = core.ContextQueue
)

// --- Configuration ---

// Option defines a functional option for configuring a Bot.
type Option = platform.Option

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithPattern sets the glob selecting rule files. Defaults to "*.rule".
func WithPattern(pattern string) Option {
	return platform.WithPattern(pattern)
}

// WithSeenStorage injects the durable backend of the seen tracker.
func WithSeenStorage(s SeenStorage) Option {
	return platform.WithSeenStorage(s)
}

// WithSeenLog sets the path of the seen log file.
func WithSeenLog(path string) Option {
	return platform.WithSeenLog(path)
}

// WithExecutor sets the action executor. Without one, actions are only logged.
func WithExecutor(e Executor) Option {
	return platform.WithExecutor(e)
}

// WithDecorator sets the step resolving author attributes.
func WithDecorator(d Decorator) Option {
	return platform.WithDecorator(d)
}

// WithRegistry replaces the field vocabulary.
func WithRegistry(reg *field.Registry) Option {
	return platform.WithRegistry(reg)
}

// WithLocation sets the time zone of the dayhour field.
func WithLocation(loc *time.Location) Option {
	return platform.WithLocation(loc)
}

// WithMetrics registers Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return platform.WithMetrics(reg)
}

// WithDebounce sets the quiet period before a rule file change is applied.
func WithDebounce(d time.Duration) Option {
	return platform.WithDebounce(d)
}

// WithMatchTimeout bounds the evaluation of a single field pattern.
func WithMatchTimeout(d time.Duration) Option {
	return platform.WithMatchTimeout(d)
}

// WithWatcherErrorHandler registers a callback for rule watcher errors.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// WithBell sets where the beep and bell directives write.
func WithBell(w io.Writer) Option {
	return platform.WithBell(w)
}

// WithEventBuffer sets the capacity of the rule change channel.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// --- Factory ---

// New loads the rules under rulesDir and returns a bot ready to evaluate items.
// Call Start to follow rule file changes.
func New(ctx context.Context, rulesDir string, opts ...Option) (*Bot, error) {
	return platform.New(ctx, rulesDir, opts...)
}
