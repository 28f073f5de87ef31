package seen

import (
	"context"
	"slices"
	"sync"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// MemoryStorage is a volatile SeenStorage, used for dry runs and tests.
type MemoryStorage struct {
	mu      sync.Mutex
	records []core.SeenRecord
	// FailAppend, when set, is returned by every Append.
	FailAppend error
}

// NewMemoryStorage returns a storage pre-filled with records.
func NewMemoryStorage(records ...core.SeenRecord) *MemoryStorage {
	return &MemoryStorage{records: slices.Clone(records)}
}

func (m *MemoryStorage) Load(ctx context.Context) ([]core.SeenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records), nil
}

func (m *MemoryStorage) Append(ctx context.Context, rec core.SeenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return m.FailAppend
	}
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything appended so far.
func (m *MemoryStorage) Records() []core.SeenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records)
}
