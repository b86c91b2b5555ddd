package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure BlobStore implements the interface.
var _ driven.BlobStore = (*BlobStore)(nil)

type blob struct {
	data []byte
	info driven.BlobInfo
}

// BlobStore is an in-memory implementation of driven.BlobStore.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[domain.DocumentKey]blob
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[domain.DocumentKey]blob)}
}

// Head returns object metadata.
func (s *BlobStore) Head(_ context.Context, key domain.DocumentKey) (*driven.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	info := b.info
	return &info, nil
}

// Get returns the object bytes.
func (s *BlobStore) Get(_ context.Context, key domain.DocumentKey) ([]byte, *driven.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	info := b.info
	return append([]byte(nil), b.data...), &info, nil
}

// Put writes an object.
func (s *BlobStore) Put(_ context.Context, key domain.DocumentKey, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = blob{
		data: append([]byte(nil), data...),
		info: driven.BlobInfo{
			Key:         key,
			Size:        int64(len(data)),
			ContentType: contentType,
			ModTime:     time.Now(),
		},
	}
	return nil
}

// Delete removes an object.
func (s *BlobStore) Delete(_ context.Context, key domain.DocumentKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
