package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

func newIndex(t *testing.T, users ...string) *VectorIndex {
	t.Helper()
	idx := NewVectorIndex()
	for _, u := range users {
		require.NoError(t, idx.Create(context.Background(), domain.IndexInfo{UserKey: u, Model: "test-embed", Dimensions: 2}))
	}
	return idx
}

func TestVectorIndex_CreateAndExists(t *testing.T) {
	ctx := context.Background()
	idx := NewVectorIndex()

	ok, err := idx.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idx.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "m", Dimensions: 3}))
	ok, err = idx.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, idx.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "m", Dimensions: 3}))
	assert.ErrorIs(t, idx.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "other", Dimensions: 3}), domain.ErrEmbeddingModelMismatch)
	assert.ErrorIs(t, idx.Create(ctx, domain.IndexInfo{UserKey: "bob"}), domain.ErrInvalidInput)

	info, err := idx.Info(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Dimensions)
}

func TestVectorIndex_QueryOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, "alice")

	require.NoError(t, idx.Upsert(ctx, "alice", []domain.Chunk{
		{ID: "near", SourceDocumentKey: "alice/a", Text: "near", Embedding: []float32{1, 0.1}},
		{ID: "far", SourceDocumentKey: "alice/a", Text: "far", Embedding: []float32{-1, 0}},
		{ID: "mid", SourceDocumentKey: "alice/a", Text: "mid", Embedding: []float32{0, 1}},
	}))

	results, err := idx.Query(ctx, "alice", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].ChunkID)
	assert.Equal(t, "mid", results[1].ChunkID)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestVectorIndex_QueryMissingOrEmpty(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, "alice")

	results, err := idx.Query(ctx, "nobody", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Query(ctx, "alice", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndex_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, "alice", "bob")

	require.NoError(t, idx.Upsert(ctx, "bob", []domain.Chunk{{ID: "b1", Embedding: []float32{1, 0}}}))

	results, err := idx.Query(ctx, "alice", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, "alice")

	err := idx.Upsert(ctx, "alice", []domain.Chunk{{ID: "x", Embedding: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	require.NoError(t, idx.Upsert(ctx, "alice", []domain.Chunk{{ID: "y", Embedding: []float32{1, 2}}}))
	_, err = idx.Query(ctx, "alice", []float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestVectorIndex_ReplaceDocumentGenerations(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, "alice")
	key := domain.DocumentKey("alice/doc.txt")

	gen1 := []domain.Chunk{
		{ID: "g1-0", Text: "old 0", Embedding: []float32{1, 0}},
		{ID: "g1-1", Text: "old 1", Embedding: []float32{0, 1}},
	}
	require.NoError(t, idx.ReplaceDocument(ctx, "alice", key, 100, gen1))

	gen2 := []domain.Chunk{{ID: "g2-0", Text: "new 0", Embedding: []float32{1, 1}}}
	require.NoError(t, idx.ReplaceDocument(ctx, "alice", key, 200, gen2))

	chunks := idx.Chunks("alice", key)
	require.Len(t, chunks, 1)
	assert.Equal(t, "g2-0", chunks[0].ID)
	assert.Equal(t, int64(200), chunks[0].Generation)

	// An older attempt finishing late must not clobber the newer generation.
	err := idx.ReplaceDocument(ctx, "alice", key, 150, gen1)
	assert.ErrorIs(t, err, domain.ErrStaleGeneration)
	assert.Len(t, idx.Chunks("alice", key), 1)

	require.NoError(t, idx.DeleteDocument(ctx, "alice", key))
	assert.Empty(t, idx.Chunks("alice", key))
}
