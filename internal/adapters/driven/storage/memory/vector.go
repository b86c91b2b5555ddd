package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/doraemo/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

type userIndex struct {
	info        domain.IndexInfo
	chunks      map[string]domain.Chunk
	generations map[domain.DocumentKey]int64
}

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Queries are exact: every chunk in the user's namespace is scored.
type VectorIndex struct {
	mu      sync.RWMutex
	indexes map[string]*userIndex
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{indexes: make(map[string]*userIndex)}
}

// Exists reports whether the user's index has been created.
func (v *VectorIndex) Exists(_ context.Context, userKey string) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.indexes[userKey]
	return ok, nil
}

// Create initialises a user's index.
func (v *VectorIndex) Create(_ context.Context, info domain.IndexInfo) error {
	if info.UserKey == "" || info.Dimensions <= 0 {
		return fmt.Errorf("%w: index needs a user key and positive dimensions", domain.ErrInvalidInput)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if existing, ok := v.indexes[info.UserKey]; ok {
		if existing.info.Model != info.Model || existing.info.Dimensions != info.Dimensions {
			return fmt.Errorf("%w: index built with %s/%d, got %s/%d", domain.ErrEmbeddingModelMismatch,
				existing.info.Model, existing.info.Dimensions, info.Model, info.Dimensions)
		}
		return nil
	}
	v.indexes[info.UserKey] = &userIndex{
		info:        info,
		chunks:      make(map[string]domain.Chunk),
		generations: make(map[domain.DocumentKey]int64),
	}
	return nil
}

// Info returns the index description.
func (v *VectorIndex) Info(_ context.Context, userKey string) (*domain.IndexInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	idx, ok := v.indexes[userKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	info := idx.info
	return &info, nil
}

// Upsert inserts chunks or updates them by ID.
func (v *VectorIndex) Upsert(_ context.Context, userKey string, chunks []domain.Chunk) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx, ok := v.indexes[userKey]
	if !ok {
		return fmt.Errorf("upsert into %s: %w", userKey, domain.ErrNotFound)
	}
	if err := vecmath.CheckDimensions(chunks, idx.info.Dimensions); err != nil {
		return err
	}
	for _, c := range chunks {
		idx.chunks[c.ID] = cloneChunk(c)
	}
	return nil
}

// ReplaceDocument swaps a document's chunks for a new generation.
func (v *VectorIndex) ReplaceDocument(
	_ context.Context, userKey string, documentKey domain.DocumentKey, generation int64, chunks []domain.Chunk,
) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx, ok := v.indexes[userKey]
	if !ok {
		return fmt.Errorf("replace in %s: %w", userKey, domain.ErrNotFound)
	}
	if current, seen := idx.generations[documentKey]; seen && current > generation {
		return domain.ErrStaleGeneration
	}
	if err := vecmath.CheckDimensions(chunks, idx.info.Dimensions); err != nil {
		return err
	}
	for id, c := range idx.chunks {
		if c.SourceDocumentKey == documentKey {
			delete(idx.chunks, id)
		}
	}
	for _, c := range chunks {
		c.SourceDocumentKey = documentKey
		c.Generation = generation
		idx.chunks[c.ID] = cloneChunk(c)
	}
	idx.generations[documentKey] = generation
	return nil
}

// DeleteDocument removes every chunk of a document.
func (v *VectorIndex) DeleteDocument(_ context.Context, userKey string, documentKey domain.DocumentKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	idx, ok := v.indexes[userKey]
	if !ok {
		return nil
	}
	for id, c := range idx.chunks {
		if c.SourceDocumentKey == documentKey {
			delete(idx.chunks, id)
		}
	}
	delete(idx.generations, documentKey)
	return nil
}

// Query returns at most topK results in ascending distance order.
func (v *VectorIndex) Query(_ context.Context, userKey string, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	idx, ok := v.indexes[userKey]
	if !ok || len(idx.chunks) == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(vector) != idx.info.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index expects %d",
			domain.ErrDimensionMismatch, len(vector), idx.info.Dimensions)
	}
	results := make([]domain.SearchResult, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		results = append(results, domain.SearchResult{
			ChunkID:     c.ID,
			Distance:    vecmath.CosineDistance(vector, c.Embedding),
			Text:        c.Text,
			Metadata:    c.Metadata,
			DocumentKey: c.SourceDocumentKey,
		})
	}
	return vecmath.Rank(results, topK), nil
}

// Close releases resources (no-op for memory store).
func (v *VectorIndex) Close() error {
	return nil
}

// Chunks returns a document's stored chunks. Used by tests.
func (v *VectorIndex) Chunks(userKey string, documentKey domain.DocumentKey) []domain.Chunk {
	v.mu.RLock()
	defer v.mu.RUnlock()
	idx, ok := v.indexes[userKey]
	if !ok {
		return nil
	}
	var out []domain.Chunk
	for _, c := range idx.chunks {
		if c.SourceDocumentKey == documentKey {
			out = append(out, cloneChunk(c))
		}
	}
	return out
}

func cloneChunk(c domain.Chunk) domain.Chunk {
	c.Embedding = append([]float32(nil), c.Embedding...)
	return c
}
