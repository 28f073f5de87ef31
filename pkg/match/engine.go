package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
	"github.com/rasher/reddit-modbot/pkg/seen"
)

const (
	resultSkipped   = "skipped"
	resultMatched   = "matched"
	resultUnmatched = "unmatched"
)

// SnapshotSource provides the current rule set.
type SnapshotSource interface {
	Snapshot() *core.Snapshot
}

// SeenTracker is the dedup set consulted and updated by the engine.
type SeenTracker interface {
	HasSeen(id string, c core.Context) bool
	MarkSeen(ctx context.Context, id string, c core.Context) error
}

// Dispatcher performs the actions of a matched rule.
type Dispatcher interface {
	Apply(ctx context.Context, item *core.Item, rule *core.Rule, matches core.Captures) error
}

// Engine evaluates items against the current rule snapshot.
type Engine struct {
	rules      SnapshotSource
	seen       SeenTracker
	dispatcher Dispatcher
	registry   *field.Registry
	decorator  core.Decorator
	logger     *slog.Logger
	metrics    *Metrics

	evaluations atomic.Uint64
	matches     atomic.Uint64
	skipped     atomic.Uint64
	lastMu      sync.Mutex
	lastMatch   string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the registry conditions are resolved against. It must be
// the registry the rules were compiled with.
func WithRegistry(reg *field.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithDecorator sets the step resolving author attributes.
func WithDecorator(d core.Decorator) Option {
	return func(e *Engine) {
		e.decorator = d
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine.
func NewEngine(rules SnapshotSource, tracker SeenTracker, dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		rules:      rules,
		seen:       tracker,
		dispatcher: dispatcher,
		registry:   field.Default(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs item through the rules for context c. The first matching
// rule's actions are performed, then the item is marked seen in c whether or
// not anything matched. Items already seen in c are skipped.
//
// A ctx already done refuses the item; cancellation after that does not
// interrupt the evaluation, so actions are never performed without the seen
// mark being attempted.
//
// Action failures are logged, not returned. The only error returned is a
// failure to validate the call or to persist the seen mark; the latter
// wraps core.ErrSeenPersist and should stop the caller.
func (e *Engine) Evaluate(ctx context.Context, item *core.Item, c core.Context) (core.Outcome, error) {
	if item == nil {
		return core.Outcome{}, errors.New("nil item")
	}
	if !c.Valid() {
		return core.Outcome{}, fmt.Errorf("unknown context %q", c)
	}
	if err := seen.ValidateID(item.ID); err != nil {
		return core.Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.Outcome{}, err
	}
	// Once started, an evaluation runs to its seen mark.
	ctx = context.WithoutCancel(ctx)

	if e.seen.HasSeen(item.ID, c) {
		e.skipped.Add(1)
		e.metrics.evaluated(c, resultSkipped, 0)
		return core.Outcome{Skipped: true}, nil
	}

	start := time.Now()
	e.evaluations.Add(1)
	log := e.logger.With("eval", uuid.NewString(), "item", item.ID, "context", string(c))

	decorated := false
	decorate := func() {
		if decorated || e.decorator == nil {
			return
		}
		decorated = true
		if err := e.decorator.Decorate(ctx, item); err != nil {
			log.Warn("decoration failed", "error", err)
		}
	}
	m := matcher{registry: e.registry, logger: log, beforeChase: decorate}

	snap := e.rules.Snapshot()
	var outcome core.Outcome
	for _, rule := range snap.Rules {
		captures, ok := m.match(item, rule)
		if !ok {
			continue
		}
		outcome = core.Outcome{Matched: true, Rule: rule, Captures: captures}
		break
	}

	result := resultUnmatched
	if outcome.Matched {
		result = resultMatched
		rule := outcome.Rule
		log.Info("rule matched", "rule", rule.Source, "snapshot", snap.Version)
		e.matches.Add(1)
		e.metrics.matched(rule.Source)
		e.recordMatch(rule.Source)

		decorate()
		if err := e.dispatcher.Apply(ctx, item, rule, outcome.Captures); err != nil {
			log.Error("actions failed", "rule", rule.Source, "error", err)
			e.metrics.dispatchFailed(rule.Source)
		}
	} else {
		log.Debug("no rule matched", "rules", snap.Len())
	}

	if err := e.seen.MarkSeen(ctx, item.ID, c); err != nil {
		log.Error("seen mark not persisted", "error", err)
		e.metrics.seenFailed()
		if !errors.Is(err, core.ErrSeenPersist) {
			err = fmt.Errorf("%w: %v", core.ErrSeenPersist, err)
		}
		return outcome, err
	}
	e.metrics.evaluated(c, result, time.Since(start))
	return outcome, nil
}

func (e *Engine) recordMatch(source string) {
	e.lastMu.Lock()
	e.lastMatch = source
	e.lastMu.Unlock()
}

// EngineState exposes internal state for observability.
type EngineState struct {
	SnapshotVersion uint64 `json:"snapshot_version"`
	Rules           int    `json:"rules"`
	Evaluations     uint64 `json:"evaluations"`
	Matches         uint64 `json:"matches"`
	Skipped         uint64 `json:"skipped"`
	LastMatch       string `json:"last_match,omitempty"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	snap := e.rules.Snapshot()
	e.lastMu.Lock()
	last := e.lastMatch
	e.lastMu.Unlock()
	return EngineState{
		SnapshotVersion: snap.Version,
		Rules:           snap.Len(),
		Evaluations:     e.evaluations.Load(),
		Matches:         e.matches.Load(),
		Skipped:         e.skipped.Load(),
		LastMatch:       last,
	}
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "match-engine"
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)
