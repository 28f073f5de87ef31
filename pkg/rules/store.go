package rules

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"

	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/field"
)

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = 250 * time.Millisecond

// Observer is notified about store changes. Implementations must be cheap.
type Observer interface {
	RulesPublished(snap *core.Snapshot)
	ParseFailed(source string)
}

// Store holds the parsed rules keyed by source and publishes immutable
// snapshots of them. Writers are serialized from reading the source to
// publishing; Snapshot never blocks on them.
type Store struct {
	registry     *field.Registry
	logger       *slog.Logger
	observer     Observer
	matchTimeout time.Duration

	// writeMu is held across read, parse and install of a change.
	writeMu sync.Mutex

	mu      sync.Mutex
	rules   map[string]*core.Rule
	failing map[string]string
	version uint64

	current atomic.Pointer[core.Snapshot]
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithObserver registers an observer for published snapshots and parse failures.
func WithObserver(o Observer) StoreOption {
	return func(s *Store) {
		s.observer = o
	}
}

// WithMatchTimeout bounds each compiled pattern evaluation. Zero disables the bound.
func WithMatchTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.matchTimeout = d
	}
}

// NewStore creates an empty store resolving field names against reg.
func NewStore(reg *field.Registry, opts ...StoreOption) *Store {
	if reg == nil {
		reg = field.Default()
	}
	s := &Store{
		registry:     reg,
		logger:       slog.Default(),
		matchTimeout: DefaultMatchTimeout,
		rules:        make(map[string]*core.Rule),
		failing:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&core.Snapshot{})
	return s
}

// Canonical returns the identity used for a rule file path.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// Snapshot returns the current rule set. The result must not be modified.
func (s *Store) Snapshot() *core.Snapshot {
	return s.current.Load()
}

// Load reads and installs the rule file at path.
// On failure the previously loaded rule for path, if any, stays installed.
func (s *Store) Load(path string) (*core.Rule, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.load(path)
}

func (s *Store) load(path string) (*core.Rule, error) {
	source := Canonical(path)
	data, err := os.ReadFile(path)
	if err != nil {
		s.recordFailure(source, err)
		return nil, fmt.Errorf("failed to read rule %s: %w", source, err)
	}
	return s.loadSource(source, bytes.NewReader(data))
}

// LoadSource parses r as the rule identified by source and installs it.
// A new snapshot is published only if the rule changed.
func (s *Store) LoadSource(source string, r io.Reader) (*core.Rule, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.loadSource(source, r)
}

func (s *Store) loadSource(source string, r io.Reader) (*core.Rule, error) {
	rule, err := Parse(source, r)
	if err == nil {
		err = Compile(rule, s.registry, s.matchTimeout)
	}
	if err != nil {
		s.recordFailure(source, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failing, source)
	if prev, ok := s.rules[source]; ok && prev.Equal(rule) {
		s.logger.Debug("rule unchanged", "rule", source)
		return prev, nil
	}
	s.rules[source] = rule
	s.publishLocked()

	s.logger.Info("rule loaded", "rule", source, "conditions", len(rule.Conditions))
	return rule, nil
}

// Remove uninstalls the rule loaded from path. It reports whether a rule was removed.
func (s *Store) Remove(path string) bool {
	return s.RemoveSource(Canonical(path))
}

// RemoveSource uninstalls the rule identified by source.
func (s *Store) RemoveSource(source string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.removeSource(source)
}

func (s *Store) removeSource(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failing, source)
	if _, ok := s.rules[source]; !ok {
		return false
	}
	delete(s.rules, source)
	s.publishLocked()

	s.logger.Info("rule removed", "rule", source)
	return true
}

// Reconcile makes the store match the rule files returned by list: every
// listed path is (re)loaded and rules whose path is not listed are removed.
// list runs under the writer lock, so changes applied concurrently are
// ordered entirely before or after the whole pass. Load failures are logged
// and keep the previous rule.
func (s *Store) Reconcile(list func() ([]string, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	paths, err := list()
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(paths))
	for _, path := range paths {
		present[Canonical(path)] = true
		_, _ = s.load(path)
	}
	for _, source := range s.Snapshot().Sources() {
		if !present[source] {
			s.removeSource(source)
		}
	}
	return nil
}

// Apply handles one change notification.
func (s *Store) Apply(ev core.RuleEvent) error {
	switch ev.Kind {
	case core.RuleLoad:
		_, err := s.Load(ev.Path)
		return err
	case core.RuleRemove:
		s.Remove(ev.Path)
		return nil
	default:
		return fmt.Errorf("unknown rule event kind %q", ev.Kind)
	}
}

// Consume applies events until ctx is done or events is closed.
// Failed loads are logged; the previous rule stays installed.
func (s *Store) Consume(ctx context.Context, events <-chan core.RuleEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.Apply(ev); err != nil {
				s.logger.Warn("rule not applied", "event", ev.String(), "error", err)
			}
		}
	}
}

func (s *Store) publishLocked() {
	sources := make([]string, 0, len(s.rules))
	for source := range s.rules {
		sources = append(sources, source)
	}
	slices.Sort(sources)

	ordered := make([]*core.Rule, 0, len(sources))
	for _, source := range sources {
		ordered = append(ordered, s.rules[source])
	}

	s.version++
	snap := &core.Snapshot{Version: s.version, Rules: ordered}
	s.current.Store(snap)

	if s.observer != nil {
		s.observer.RulesPublished(snap)
	}
}

func (s *Store) recordFailure(source string, err error) {
	s.mu.Lock()
	s.failing[source] = err.Error()
	s.mu.Unlock()

	s.logger.Warn("rule rejected", "rule", source, "error", err)
	if s.observer != nil {
		s.observer.ParseFailed(source)
	}
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Version uint64            `json:"version"`
	Rules   []string          `json:"rules"`
	Failing map[string]string `json:"failing,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	snap := s.Snapshot()

	s.mu.Lock()
	failing := make(map[string]string, len(s.failing))
	for k, v := range s.failing {
		failing[k] = v
	}
	s.mu.Unlock()

	return StoreState{
		Version: snap.Version,
		Rules:   snap.Sources(),
		Failing: failing,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "rule-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

// String renders a one-line summary of the snapshot, mostly for logs.
func String(snap *core.Snapshot) string {
	names := make([]string, 0, snap.Len())
	for _, source := range snap.Sources() {
		names = append(names, filepath.Base(source))
	}
	return fmt.Sprintf("v%d [%s]", snap.Version, strings.Join(names, ", "))
}
