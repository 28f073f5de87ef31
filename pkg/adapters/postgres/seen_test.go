package postgres_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasher/reddit-modbot/pkg/adapters/postgres"
	"github.com/rasher/reddit-modbot/pkg/core"
	"github.com/rasher/reddit-modbot/pkg/seen"
)

func newMock(t *testing.T) (*postgres.SeenStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return postgres.NewSeenStorage(db, postgres.WithLogger(slog.New(slog.DiscardHandler))), mock
}

func TestSeenStorage_Init(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "modbot_seen"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Init(context.Background()))
}

func TestSeenStorage_Load(t *testing.T) {
	s, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"item_id", "context", "seen_at"}).
		AddRow("t3_a", "stream", int64(10)).
		AddRow("t3_b", "bogus", int64(11)).
		AddRow("t1_c", "queue", int64(12))
	mock.ExpectQuery(`SELECT item_id, context, seen_at FROM "modbot_seen" ORDER BY seen_at`).WillReturnRows(rows)

	records, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.SeenRecord{
		{ItemID: "t3_a", Context: core.ContextStream, Timestamp: 10},
		{ItemID: "t1_c", Context: core.ContextQueue, Timestamp: 12},
	}, records)
}

func TestSeenStorage_Append(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO "modbot_seen" \(item_id,context,seen_at\) VALUES \(\$1,\$2,\$3\) ON CONFLICT \(item_id, context\) DO NOTHING`).
		WithArgs("t3_a", "queue", int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Append(context.Background(), core.SeenRecord{ItemID: "t3_a", Context: core.ContextQueue, Timestamp: 99}))
}

func TestSeenStorage_CustomTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := postgres.NewSeenStorage(db, postgres.WithTable("bot seen"))
	mock.ExpectExec(`INSERT INTO "bot seen"`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Append(context.Background(), core.SeenRecord{ItemID: "t3_a", Context: core.ContextStream}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeenStorage_BacksTracker(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT .* FROM "modbot_seen"`).
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "context", "seen_at"}).AddRow("t3_a", "stream", int64(1)))
	mock.ExpectExec(`INSERT INTO "modbot_seen"`).
		WillReturnError(errors.New("connection reset"))

	ctx := context.Background()
	tr, err := seen.NewTracker(ctx, s)
	require.NoError(t, err)
	assert.True(t, tr.HasSeen("t3_a", core.ContextStream))

	err = tr.MarkSeen(ctx, "t3_b", core.ContextStream)
	assert.ErrorIs(t, err, core.ErrSeenPersist)
	assert.False(t, tr.HasSeen("t3_b", core.ContextStream))
}
