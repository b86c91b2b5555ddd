package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure DocumentStatusStore implements the interface.
var _ driven.DocumentStatusStore = (*DocumentStatusStore)(nil)

// DocumentStatusStore is an in-memory implementation of driven.DocumentStatusStore.
type DocumentStatusStore struct {
	mu      sync.RWMutex
	records map[domain.DocumentKey]domain.DocumentRecord
}

// NewDocumentStatusStore creates a new in-memory status store.
func NewDocumentStatusStore() *DocumentStatusStore {
	return &DocumentStatusStore{
		records: make(map[domain.DocumentKey]domain.DocumentRecord),
	}
}

// GetRecord retrieves a record by key.
func (s *DocumentStatusStore) GetRecord(_ context.Context, key domain.DocumentKey) (*domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// SaveRecord stores or replaces a record.
func (s *DocumentStatusStore) SaveRecord(_ context.Context, record domain.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.DocumentKey] = record
	return nil
}

// DeleteRecord removes a record.
func (s *DocumentStatusStore) DeleteRecord(_ context.Context, key domain.DocumentKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// ListRecords returns the user's records ordered by key.
func (s *DocumentStatusStore) ListRecords(_ context.Context, userKey string) ([]domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DocumentRecord
	for key, rec := range s.records {
		if key.UserKey() == userKey {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentKey < out[j].DocumentKey })
	return out, nil
}

// Close releases resources (no-op for memory store).
func (s *DocumentStatusStore) Close() error {
	return nil
}
