package fs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// DefaultSeenLog is the file name used when no seen log path is configured.
const DefaultSeenLog = "seen.list"

// SeenLog is an append-only, line-oriented core.SeenStorage. Each line is
//
//	<item id>,<context>,<unix seconds>
//
// Lines of the older two-field form "<item id>,<unix seconds>" are accepted
// on load and count as seen in every context.
type SeenLog struct {
	Path   string
	logger *slog.Logger

	mu       sync.Mutex
	file     *os.File
	appended int
	skipped  int
}

// SeenLogOption configures a SeenLog.
type SeenLogOption func(*SeenLog)

// WithSeenLogger sets the logger for the seen log.
func WithSeenLogger(logger *slog.Logger) SeenLogOption {
	return func(l *SeenLog) {
		l.logger = logger
	}
}

// OpenSeenLog opens (creating if needed) the seen log at path for appending.
// A torn final line left by a crash is terminated so new records start clean.
func OpenSeenLog(path string, opts ...SeenLogOption) (*SeenLog, error) {
	l := &SeenLog{
		Path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SeenLog) open() error {
	f, err := os.OpenFile(l.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open seen log %s: %w", l.Path, err)
	}
	if err := terminateTornLine(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to repair seen log %s: %w", l.Path, err)
	}
	l.file = f
	return nil
}

func terminateTornLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// Load implements core.SeenStorage. Malformed lines are logged and skipped.
func (l *SeenLog) Load(ctx context.Context) ([]core.SeenRecord, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read seen log %s: %w", l.Path, err)
	}
	defer f.Close()

	records, skipped, err := parseSeenLog(ctx, f, l.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to read seen log %s: %w", l.Path, err)
	}

	l.mu.Lock()
	l.skipped = skipped
	l.mu.Unlock()
	return records, nil
}

func parseSeenLog(ctx context.Context, r io.Reader, logger *slog.Logger) ([]core.SeenRecord, int, error) {
	var records []core.SeenRecord
	skipped := 0
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%4096 == 0 && ctx.Err() != nil {
			return nil, skipped, ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		recs, err := parseSeenLine(line)
		if err != nil {
			skipped++
			logger.Warn("seen log line skipped", "line", lineNo, "error", err)
			continue
		}
		records = append(records, recs...)
	}
	return records, skipped, scanner.Err()
}

func parseSeenLine(line string) ([]core.SeenRecord, error) {
	parts := strings.Split(line, ",")
	switch len(parts) {
	case 2:
		ts, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || parts[0] == "" {
			return nil, fmt.Errorf("malformed record %q", line)
		}
		out := make([]core.SeenRecord, 0, len(core.Contexts()))
		for _, c := range core.Contexts() {
			out = append(out, core.SeenRecord{ItemID: parts[0], Context: c, Timestamp: ts})
		}
		return out, nil
	case 3:
		ts, err := strconv.ParseInt(parts[2], 10, 64)
		c := core.Context(parts[1])
		if err != nil || parts[0] == "" || !c.Valid() {
			return nil, fmt.Errorf("malformed record %q", line)
		}
		return []core.SeenRecord{{ItemID: parts[0], Context: c, Timestamp: ts}}, nil
	default:
		return nil, fmt.Errorf("malformed record %q", line)
	}
}

func formatSeenLine(rec core.SeenRecord) string {
	return rec.ItemID + "," + string(rec.Context) + "," + strconv.FormatInt(rec.Timestamp, 10) + "\n"
}

// Append implements core.SeenStorage. The record is synced to disk before
// Append returns.
func (l *SeenLog) Append(_ context.Context, rec core.SeenRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("seen log %s is closed", l.Path)
	}
	if _, err := l.file.WriteString(formatSeenLine(rec)); err != nil {
		return fmt.Errorf("failed to append to seen log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync seen log: %w", err)
	}
	l.appended++
	return nil
}

// Compact rewrites the log keeping one line per (item, context) pair, with
// legacy lines expanded to the current form. It returns the number of lines
// written.
func (l *SeenLog) Compact(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seen log %s: %w", l.Path, err)
	}
	records, _, err := parseSeenLog(ctx, f, l.logger)
	f.Close()
	if err != nil {
		return 0, err
	}

	type key struct {
		id string
		c  core.Context
	}
	kept := make([]core.SeenRecord, 0, len(records))
	index := make(map[key]struct{}, len(records))
	for _, rec := range records {
		k := key{rec.ItemID, rec.Context}
		if _, dup := index[k]; dup {
			continue
		}
		index[k] = struct{}{}
		kept = append(kept, rec)
	}

	err = replaceFileAtomic(l.Path, 0644, func(w io.Writer) error {
		for _, rec := range kept {
			if _, err := io.WriteString(w, formatSeenLine(rec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// The old descriptor points at the replaced inode.
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
		if err := l.open(); err != nil {
			return len(kept), err
		}
	}
	l.logger.Info("seen log compacted", "path", l.Path, "before", len(records), "after", len(kept))
	return len(kept), nil
}

// Close releases the log file.
func (l *SeenLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
