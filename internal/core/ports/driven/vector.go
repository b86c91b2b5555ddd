package driven

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// VectorIndex stores embedded chunks in per-user namespaces and answers
// nearest-neighbour queries by cosine distance.
type VectorIndex interface {
	// Exists reports whether the user's index has been created.
	Exists(ctx context.Context, userKey string) (bool, error)

	// Create initialises a user's index with its embedding model and dimension.
	// Creating an index that already exists with the same model is a no-op;
	// a different model or dimension returns domain.ErrEmbeddingModelMismatch.
	Create(ctx context.Context, info domain.IndexInfo) error

	// Info returns the index description, or domain.ErrNotFound.
	Info(ctx context.Context, userKey string) (*domain.IndexInfo, error)

	// Upsert inserts chunks or updates them by ID.
	Upsert(ctx context.Context, userKey string, chunks []domain.Chunk) error

	// ReplaceDocument atomically swaps a document's chunks for a new generation.
	// If the index holds a newer generation for the document it returns
	// domain.ErrStaleGeneration and writes nothing.
	ReplaceDocument(ctx context.Context, userKey string, documentKey domain.DocumentKey, generation int64, chunks []domain.Chunk) error

	// DeleteDocument removes every chunk of a document.
	DeleteDocument(ctx context.Context, userKey string, documentKey domain.DocumentKey) error

	// Query returns at most topK results in ascending distance order.
	// A missing or empty index yields no results and no error.
	Query(ctx context.Context, userKey string, vector []float32, topK int) ([]domain.SearchResult, error)

	// Close releases resources.
	Close() error
}
