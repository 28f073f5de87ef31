package fs

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasher/reddit-modbot/pkg/core"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func openTestLog(t *testing.T, path string) *SeenLog {
	t.Helper()
	l, err := OpenSeenLog(path, WithSeenLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSeenLog_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultSeenLog)
	l := openTestLog(t, path)

	require.NoError(t, l.Append(ctx, core.SeenRecord{ItemID: "t3_a", Context: core.ContextStream, Timestamp: 10}))
	require.NoError(t, l.Append(ctx, core.SeenRecord{ItemID: "t1_b", Context: core.ContextQueue, Timestamp: 11}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "t3_a,stream,10\nt1_b,queue,11\n", string(data))

	records, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.SeenRecord{
		{ItemID: "t3_a", Context: core.ContextStream, Timestamp: 10},
		{ItemID: "t1_b", Context: core.ContextQueue, Timestamp: 11},
	}, records)
}

func TestSeenLog_LegacyAndMalformedLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultSeenLog)
	content := "t3_old,1350000000\n" +
		"garbage\n" +
		"t3_x,nowhere,5\n" +
		"t3_y,stream,notanumber\n" +
		"\n" +
		"t3_new,queue,1700000000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	l := openTestLog(t, path)
	records, err := l.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, []core.SeenRecord{
		{ItemID: "t3_old", Context: core.ContextStream, Timestamp: 1350000000},
		{ItemID: "t3_old", Context: core.ContextQueue, Timestamp: 1350000000},
		{ItemID: "t3_new", Context: core.ContextQueue, Timestamp: 1700000000},
	}, records)

	state := l.State().(SeenLogState)
	assert.Equal(t, 3, state.Skipped)
}

func TestSeenLog_TornLineIsTerminatedOnOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultSeenLog)
	require.NoError(t, os.WriteFile(path, []byte("t3_a,stream,1\nt3_b,str"), 0644))

	l := openTestLog(t, path)
	require.NoError(t, l.Append(ctx, core.SeenRecord{ItemID: "t3_c", Context: core.ContextStream, Timestamp: 3}))

	records, err := l.Load(ctx)
	require.NoError(t, err)
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ItemID)
	}
	assert.Equal(t, []string{"t3_a", "t3_c"}, ids)
}

func TestSeenLog_LoadMissingFile(t *testing.T) {
	l := &SeenLog{Path: filepath.Join(t.TempDir(), "nope.list"), logger: quietLogger()}
	records, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSeenLog_Compact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultSeenLog)
	content := "t3_a,100\n" +
		"t3_a,stream,101\n" +
		"t3_b,queue,102\n" +
		"t3_b,queue,103\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	l := openTestLog(t, path)
	n, err := l.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "t3_a,stream,100\nt3_a,queue,100\nt3_b,queue,102\n", string(data))

	// Appends after compaction land in the new file.
	require.NoError(t, l.Append(ctx, core.SeenRecord{ItemID: "t3_c", Context: core.ContextStream, Timestamp: 104}))
	records, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestSeenLog_AppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultSeenLog)
	l, err := OpenSeenLog(path, WithSeenLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.Error(t, l.Append(context.Background(), core.SeenRecord{ItemID: "t3_a", Context: core.ContextStream}))
}

func TestSeenLog_AppendIgnoresCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultSeenLog)
	l, err := OpenSeenLog(path, WithSeenLogger(quietLogger()))
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Append(ctx, core.SeenRecord{ItemID: "t3_a", Context: core.ContextQueue, Timestamp: 7}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "t3_a,queue,7\n", string(data))
}
