// Package postgres stores seen marks in a PostgreSQL table, for deployments
// where several bot instances share one moderation history.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "modbot_seen"

// SeenStorage implements core.SeenStorage on a PostgreSQL table keyed by
// (item_id, context).
type SeenStorage struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
	qb     sq.StatementBuilderType
}

// Option configures a SeenStorage.
type Option func(*SeenStorage)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(s *SeenStorage) {
		s.table = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SeenStorage) {
		s.logger = logger
	}
}

// Open connects to the database at dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return db, nil
}

// NewSeenStorage wraps an open database handle.
func NewSeenStorage(db *sql.DB, opts ...Option) *SeenStorage {
	s := &SeenStorage{
		db:     db,
		table:  DefaultTable,
		logger: slog.Default(),
		qb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the table if it does not exist.
func (s *SeenStorage) Init(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	item_id TEXT NOT NULL,
	context TEXT NOT NULL,
	seen_at BIGINT NOT NULL,
	PRIMARY KEY (item_id, context)
)`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create seen table: %w", err)
	}
	return nil
}

// Load implements core.SeenStorage.
func (s *SeenStorage) Load(ctx context.Context) ([]core.SeenRecord, error) {
	query, args, err := s.qb.
		Select("item_id", "context", "seen_at").
		From(pq.QuoteIdentifier(s.table)).
		OrderBy("seen_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load seen records: %w", err)
	}
	defer rows.Close()

	var out []core.SeenRecord
	for rows.Next() {
		var rec core.SeenRecord
		var c string
		if err := rows.Scan(&rec.ItemID, &c, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan seen record: %w", err)
		}
		rec.Context = core.Context(c)
		if !rec.Context.Valid() {
			s.logger.Warn("seen row with unknown context skipped", "item", rec.ItemID, "context", c)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load seen records: %w", err)
	}
	return out, nil
}

// Append implements core.SeenStorage. Re-marking an existing pair is a no-op.
func (s *SeenStorage) Append(ctx context.Context, rec core.SeenRecord) error {
	query, args, err := s.qb.
		Insert(pq.QuoteIdentifier(s.table)).
		Columns("item_id", "context", "seen_at").
		Values(rec.ItemID, string(rec.Context), rec.Timestamp).
		Suffix("ON CONFLICT (item_id, context) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert seen record: %w", err)
	}
	return nil
}

var _ core.SeenStorage = (*SeenStorage)(nil)
