package memory

import (
	"context"
	"sync"
	"time"

	"github.com/llmgate/llmgate/domain/usage"
	"github.com/llmgate/llmgate/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
type UsageStore struct {
	mu      sync.RWMutex
	records []usage.Record
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{}
}

// InsertBatch appends usage records.
func (s *UsageStore) InsertBatch(ctx context.Context, records []usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// CreditsUsedSince sums credits consumed by a user since the given time.
func (s *UsageStore) CreditsUsedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, r := range s.records {
		if r.UserID == userID && !r.Timestamp.Before(since) {
			total += r.Credits
		}
	}
	return total, nil
}

// Summary returns aggregated usage for a period.
func (s *UsageStore) Summary(ctx context.Context, userID string, start, end time.Time) (usage.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []usage.Record
	for _, r := range s.records {
		if r.UserID == userID && !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			matching = append(matching, r)
		}
	}
	return usage.Aggregate(matching, userID, start, end), nil
}

// Recent returns the most recent records for a user.
func (s *UsageStore) Recent(ctx context.Context, userID string, limit int) ([]usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []usage.Record
	for i := len(s.records) - 1; i >= 0 && len(matching) < limit; i-- {
		if s.records[i].UserID == userID {
			matching = append(matching, s.records[i])
		}
	}
	return matching, nil
}

// All returns a copy of all records (for testing).
func (s *UsageStore) All() []usage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]usage.Record{}, s.records...)
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
