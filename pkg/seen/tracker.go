// Package seen remembers which items have already been evaluated, per
// processing context, across restarts.
package seen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// ErrInvalidID is returned for item IDs that cannot be persisted.
var ErrInvalidID = errors.New("invalid item id")

// Tracker is a persistent set of (item, context) pairs.
// HasSeen never blocks on a concurrent MarkSeen.
type Tracker struct {
	storage core.SeenStorage
	logger  *slog.Logger
	now     func() time.Time

	writeMu sync.Mutex
	sets    map[core.Context]*sync.Map
	count   atomic.Int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger for the tracker.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock overrides the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker backed by storage and rehydrates it from the
// records storage already holds.
func NewTracker(ctx context.Context, storage core.SeenStorage, opts ...Option) (*Tracker, error) {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	t := &Tracker{
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
		sets:    make(map[core.Context]*sync.Map, len(core.Contexts())),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, c := range core.Contexts() {
		t.sets[c] = &sync.Map{}
	}

	records, err := storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load seen records: %w", err)
	}
	for _, rec := range records {
		set, ok := t.sets[rec.Context]
		if !ok {
			t.logger.Warn("seen record with unknown context skipped", "item", rec.ItemID, "context", rec.Context)
			continue
		}
		if _, loaded := set.LoadOrStore(rec.ItemID, rec.Timestamp); !loaded {
			t.count.Add(1)
		}
	}
	t.logger.Debug("seen tracker loaded", "records", len(records), "entries", t.count.Load())
	return t, nil
}

// HasSeen reports whether id was marked seen in context c.
func (t *Tracker) HasSeen(id string, c core.Context) bool {
	set, ok := t.sets[c]
	if !ok {
		return false
	}
	_, seen := set.Load(id)
	return seen
}

// MarkSeen durably records id as seen in context c. It is idempotent.
// The in-memory set is only updated after storage accepted the record, so a
// failed write leaves the item unseen.
func (t *Tracker) MarkSeen(ctx context.Context, id string, c core.Context) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	set, ok := t.sets[c]
	if !ok {
		return fmt.Errorf("unknown context %q", c)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, seen := set.Load(id); seen {
		return nil
	}
	rec := core.SeenRecord{ItemID: id, Context: c, Timestamp: t.now().Unix()}
	if err := t.storage.Append(ctx, rec); err != nil {
		return fmt.Errorf("%w: %s in %s: %v", core.ErrSeenPersist, id, c, err)
	}
	set.Store(id, rec.Timestamp)
	t.count.Add(1)
	return nil
}

// Len returns the number of (item, context) pairs held.
func (t *Tracker) Len() int {
	return int(t.count.Load())
}

// Records returns every held pair, grouped by context.
func (t *Tracker) Records() []core.SeenRecord {
	var out []core.SeenRecord
	for _, c := range core.Contexts() {
		t.sets[c].Range(func(k, v any) bool {
			out = append(out, core.SeenRecord{ItemID: k.(string), Context: c, Timestamp: v.(int64)})
			return true
		})
	}
	return out
}

// ValidateID rejects IDs that would corrupt a line-oriented log.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, ",\r\n") {
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidID, id)
	}
	return nil
}

// TrackerState exposes internal state for observability.
type TrackerState struct {
	Entries   int            `json:"entries"`
	ByContext map[string]int `json:"by_context"`
}

// State implements introspection.Introspectable.
func (t *Tracker) State() any {
	by := make(map[string]int, len(t.sets))
	for c, set := range t.sets {
		n := 0
		set.Range(func(_, _ any) bool {
			n++
			return true
		})
		by[string(c)] = n
	}
	return TrackerState{Entries: t.Len(), ByContext: by}
}

// ComponentType implements introspection.Component.
func (t *Tracker) ComponentType() string {
	return "seen-tracker"
}

var _ introspection.Introspectable = (*Tracker)(nil)
var _ introspection.Component = (*Tracker)(nil)
