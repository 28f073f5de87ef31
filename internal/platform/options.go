package platform

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rasher/reddit-modbot/pkg/adapters/fs"
	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
	"github.com/rasher/reddit-modbot/pkg/rules"
)

// options holds the internal configuration for a Bot.
type options struct {
	logger              *slog.Logger
	pattern             string
	seenStorage         core.SeenStorage
	seenLog             string
	executor            core.Executor
	decorator           core.Decorator
	registry            *field.Registry
	location            *time.Location
	metrics             prometheus.Registerer
	debounce            time.Duration
	matchTimeout        time.Duration
	watcherErrorHandler func(error)
	bell                io.Writer
	eventBuffer         int
}

// Option defines a functional option for configuring a Bot.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		pattern:      fs.DefaultRulePattern,
		seenLog:      fs.DefaultSeenLog,
		debounce:     fs.DefaultDebounce,
		matchTimeout: rules.DefaultMatchTimeout,
		eventBuffer:  100,
	}
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPattern sets the doublestar glob selecting rule files, relative to the
// rules directory. Defaults to "*.rule".
func WithPattern(pattern string) Option {
	return func(o *options) {
		o.pattern = pattern
	}
}

// WithSeenStorage injects the durable backend of the seen tracker.
// It takes precedence over WithSeenLog.
func WithSeenStorage(s core.SeenStorage) Option {
	return func(o *options) {
		o.seenStorage = s
	}
}

// WithSeenLog sets the path of the seen log file. Defaults to "seen.list".
func WithSeenLog(path string) Option {
	return func(o *options) {
		o.seenLog = path
	}
}

// WithExecutor sets the action executor. Without one, actions are only logged.
func WithExecutor(e core.Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// WithDecorator sets the step resolving author karma and account age.
func WithDecorator(d core.Decorator) Option {
	return func(o *options) {
		o.decorator = d
	}
}

// WithRegistry replaces the field vocabulary. WithLocation is ignored when set.
func WithRegistry(reg *field.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLocation sets the time zone of the dayhour field. Defaults to local time.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// WithMetrics registers Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metrics = reg
	}
}

// WithDebounce sets the quiet period before a rule file change is applied.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithMatchTimeout bounds the evaluation of a single field pattern.
func WithMatchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.matchTimeout = d
	}
}

// WithWatcherErrorHandler registers a callback for errors occurring in the
// rule watcher, which are otherwise only logged.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.watcherErrorHandler = fn
	}
}

// WithBell sets where the beep and bell directives write.
func WithBell(w io.Writer) Option {
	return func(o *options) {
		o.bell = w
	}
}

// WithEventBuffer sets the capacity of the rule change channel.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}
