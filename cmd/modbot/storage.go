package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/rasher/reddit-modbot/internal/config"
	"github.com/rasher/reddit-modbot/pkg/adapters/fs"
	"github.com/rasher/reddit-modbot/pkg/adapters/postgres"
	"github.com/rasher/reddit-modbot/pkg/core"
)

// seenBackend is the configured seen storage and the handle to release it.
type seenBackend struct {
	storage core.SeenStorage
	log     *fs.SeenLog
	db      *sql.DB
}

// openSeen opens the Postgres table when a DSN is configured, the seen log otherwise.
func openSeen(ctx context.Context, c config.Config, logger *slog.Logger) (*seenBackend, error) {
	if c.Seen.DSN != "" {
		db, err := postgres.Open(ctx, c.Seen.DSN)
		if err != nil {
			return nil, err
		}
		s := postgres.NewSeenStorage(db, postgres.WithTable(c.Seen.Table), postgres.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &seenBackend{storage: s, db: db}, nil
	}

	l, err := fs.OpenSeenLog(c.Seen.Log, fs.WithSeenLogger(logger))
	if err != nil {
		return nil, err
	}
	return &seenBackend{storage: l, log: l}, nil
}

func (b *seenBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return b.log.Close()
}
