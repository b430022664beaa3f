package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
)

const backendMemory = "memory"

// MemoryStore keeps the log in process memory. It follows the CSV
// semantics, including first-match updates on duplicate timestamps, and
// is meant for tests and throwaway runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.InterventionRecord
	created bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, rec model.InterventionRecord) (err error) {
	defer observe(backendMemory, "append", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.created = true
	return nil
}

// UpdateOutcome implements Store.
func (s *MemoryStore) UpdateOutcome(ctx context.Context, timestamp, outcome string) (err error) {
	defer observe(backendMemory, "update_outcome", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return ErrStoreNotFound
	}
	for i := range s.records {
		if s.records[i].Timestamp == timestamp {
			s.records[i].Outcome = outcome
			return nil
		}
	}
	return ErrRecordNotFound
}

// All implements Store. The returned slice is a copy.
func (s *MemoryStore) All(ctx context.Context) (_ []model.InterventionRecord, err error) {
	defer observe(backendMemory, "read_all", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.InterventionRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
