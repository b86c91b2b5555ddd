package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/doraemo/internal/core/domain"
)

type ingestionFixture struct {
	blobs    *memory.BlobStore
	index    *memory.VectorIndex
	embedder *mockEmbedder
	tracker  *DocumentStatusTracker
	pipeline *IngestionPipeline
	clock    time.Time
}

func newIngestionFixture(t *testing.T) *ingestionFixture {
	t.Helper()
	f := &ingestionFixture{
		blobs:    memory.NewBlobStore(),
		index:    memory.NewVectorIndex(),
		embedder: newMockEmbedder(),
		tracker:  NewDocumentStatusTracker(memory.NewDocumentStatusStore()),
		clock:    time.Unix(1700000000, 0),
	}
	f.pipeline = NewIngestionPipeline(f.blobs, mockExtractors{}, paragraphChunker{}, f.embedder, f.index, f.tracker, Timeouts{})
	f.pipeline.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *ingestionFixture) put(t *testing.T, key, text string) {
	t.Helper()
	require.NoError(t, f.blobs.Put(context.Background(), domain.DocumentKey(key), []byte(text), ""))
}

func (f *ingestionFixture) status(t *testing.T, key string) domain.DocumentStatus {
	t.Helper()
	s, err := f.tracker.GetStatus(context.Background(), domain.DocumentKey(key))
	require.NoError(t, err)
	return s
}

func TestIngestionPipeline_IndexesDocument(t *testing.T) {
	f := newIngestionFixture(t)
	f.put(t, "alice/notes.txt", "first paragraph\n\nsecond paragraph\n\n   \n\nthird paragraph")

	res, err := f.pipeline.Ingest(context.Background(), "alice/notes.txt")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, domain.StatusProcessed, res.Record.Status)

	chunks := f.index.Chunks("alice", "alice/notes.txt")
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Len(t, c.Embedding, 3)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "notes.txt", c.Metadata.Filename)
	}

	info, err := f.index.Info(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "mock-embed", info.Model)
	assert.Equal(t, 3, info.Dimensions)
}

func TestIngestionPipeline_ReingestKeepsOneGeneration(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	f.put(t, "alice/notes.txt", "one\n\ntwo\n\nthree")
	_, err := f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.NoError(t, err)

	f.put(t, "alice/notes.txt", "only one now")
	_, err = f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.NoError(t, err)

	chunks := f.index.Chunks("alice", "alice/notes.txt")
	require.Len(t, chunks, 1)
	assert.Equal(t, "only one now", chunks[0].Text)

	// Same content again: still exactly one generation.
	_, err = f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.NoError(t, err)
	assert.Len(t, f.index.Chunks("alice", "alice/notes.txt"), 1)
}

func TestIngestionPipeline_VanishedBlobIsSkipped(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tracker.SetStatus(ctx, "alice/gone.txt", domain.StatusPending))

	res, err := f.pipeline.Ingest(ctx, "alice/gone.txt")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, domain.StatusPending, f.status(t, "alice/gone.txt"))

	res, err = f.pipeline.Ingest(ctx, "alice/never.txt")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, domain.StatusUnknown, f.status(t, "alice/never.txt"))
}

func TestIngestionPipeline_BlobVanishesBeforeDownload(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	f.put(t, "alice/gone.txt", "text")
	require.NoError(t, f.tracker.SetStatus(ctx, "alice/gone.txt", domain.StatusPending))
	pipeline := NewIngestionPipeline(vanishingBlobStore{f.blobs}, mockExtractors{}, paragraphChunker{},
		f.embedder, f.index, f.tracker, Timeouts{})

	res, err := pipeline.Ingest(ctx, "alice/gone.txt")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, domain.StatusPending, f.status(t, "alice/gone.txt"))
	assert.Empty(t, f.index.Chunks("alice", "alice/gone.txt"))
}

func TestIngestionPipeline_ExtractionFailureIsTransient(t *testing.T) {
	f := newIngestionFixture(t)
	f.pipeline.extractors = failingExtractors{err: errors.New("i/o timeout reading stream")}
	f.put(t, "alice/a.txt", "text")

	_, err := f.pipeline.Ingest(context.Background(), "alice/a.txt")
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err))
	assert.ErrorContains(t, err, "extract alice/a.txt: i/o timeout reading stream")
	assert.Equal(t, domain.StatusError, f.status(t, "alice/a.txt"))
}

func TestIngestionPipeline_ExtractorValidationIsTerminal(t *testing.T) {
	f := newIngestionFixture(t)
	f.pipeline.extractors = failingExtractors{
		err: domain.NewValidationError(domain.ErrInvalidInput, "corrupt document"),
	}
	f.put(t, "alice/a.txt", "text")

	_, err := f.pipeline.Ingest(context.Background(), "alice/a.txt")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.StatusError, f.status(t, "alice/a.txt"))
}

func TestIngestionPipeline_Remove(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	f.put(t, "alice/notes.txt", "one\n\ntwo")
	f.put(t, "alice/keep.txt", "kept")
	_, err := f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.NoError(t, err)
	_, err = f.pipeline.Ingest(ctx, "alice/keep.txt")
	require.NoError(t, err)

	require.NoError(t, f.pipeline.Remove(ctx, "alice/notes.txt"))

	assert.Empty(t, f.index.Chunks("alice", "alice/notes.txt"))
	assert.Len(t, f.index.Chunks("alice", "alice/keep.txt"), 1)
	_, err = f.blobs.Head(ctx, "alice/notes.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StatusUnknown, f.status(t, "alice/notes.txt"))
	assert.Equal(t, domain.StatusProcessed, f.status(t, "alice/keep.txt"))

	// A queued event for the removed document is now a benign skip.
	res, err := f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	assert.NoError(t, f.pipeline.Remove(ctx, "alice/notes.txt"))
	assert.ErrorIs(t, f.pipeline.Remove(ctx, "orphan.txt"), domain.ErrInvalidDocumentKey)
}

func TestIngestionPipeline_WhitespaceDocumentFails(t *testing.T) {
	f := newIngestionFixture(t)
	f.put(t, "alice/blank.txt", "   \n\n\t\n\n  ")

	_, err := f.pipeline.Ingest(context.Background(), "alice/blank.txt")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
	assert.Equal(t, domain.StatusError, f.status(t, "alice/blank.txt"))
	assert.Empty(t, f.index.Chunks("alice", "alice/blank.txt"))
}

func TestIngestionPipeline_UnsupportedType(t *testing.T) {
	f := newIngestionFixture(t)
	f.put(t, "alice/archive.zip", "PK...")

	_, err := f.pipeline.Ingest(context.Background(), "alice/archive.zip")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.StatusError, f.status(t, "alice/archive.zip"))
}

func TestIngestionPipeline_EmbeddingFailureWritesNothing(t *testing.T) {
	f := newIngestionFixture(t)
	f.pipeline.SetEmbedBatchSize(1)
	f.embedder.failBatch = 2
	f.put(t, "alice/notes.txt", "one\n\ntwo\n\nthree")

	_, err := f.pipeline.Ingest(context.Background(), "alice/notes.txt")
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err))
	assert.Equal(t, domain.StatusError, f.status(t, "alice/notes.txt"))
	assert.Empty(t, f.index.Chunks("alice", "alice/notes.txt"))
}

func TestIngestionPipeline_FailureKeepsPreviousChunks(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	f.put(t, "alice/notes.txt", "stable text")
	_, err := f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.NoError(t, err)

	f.embedder.err = errors.New("rate limited")
	f.put(t, "alice/notes.txt", "new text")
	_, err = f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.Error(t, err)

	chunks := f.index.Chunks("alice", "alice/notes.txt")
	require.Len(t, chunks, 1)
	assert.Equal(t, "stable text", chunks[0].Text)
}

func TestIngestionPipeline_ModelMismatch(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.index.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "older-model", Dimensions: 3}))
	f.put(t, "alice/notes.txt", "text")

	_, err := f.pipeline.Ingest(ctx, "alice/notes.txt")
	assert.ErrorIs(t, err, domain.ErrEmbeddingModelMismatch)
	assert.Equal(t, domain.StatusError, f.status(t, "alice/notes.txt"))
}

func TestIngestionPipeline_StaleGenerationIsSuperseded(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.index.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "mock-embed", Dimensions: 3}))
	newer := f.clock.Add(time.Hour).UnixNano()
	require.NoError(t, f.index.ReplaceDocument(ctx, "alice", "alice/notes.txt", newer, []domain.Chunk{
		{ID: "newer", Text: "newer text", Embedding: []float32{1, 1, 1}},
	}))
	f.put(t, "alice/notes.txt", "older text")

	require.NoError(t, f.tracker.SetStatus(ctx, "alice/notes.txt", domain.StatusProcessed))

	res, err := f.pipeline.Ingest(ctx, "alice/notes.txt")
	require.NoError(t, err)
	assert.True(t, res.Superseded)
	assert.Equal(t, domain.StatusProcessed, f.status(t, "alice/notes.txt"))

	chunks := f.index.Chunks("alice", "alice/notes.txt")
	require.Len(t, chunks, 1)
	assert.Equal(t, "newer", chunks[0].ID)
}

func TestIngestionPipeline_InvalidKey(t *testing.T) {
	f := newIngestionFixture(t)

	_, err := f.pipeline.Ingest(context.Background(), "no-user-segment.txt")
	assert.ErrorIs(t, err, domain.ErrInvalidDocumentKey)
	assert.True(t, domain.IsValidation(err))
}

func TestIngestionPipeline_RequiresEmbedder(t *testing.T) {
	f := newIngestionFixture(t)
	pipeline := NewIngestionPipeline(f.blobs, mockExtractors{}, paragraphChunker{}, nil, f.index, f.tracker, Timeouts{})

	_, err := pipeline.Ingest(context.Background(), "alice/notes.txt")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestChunkID_Deterministic(t *testing.T) {
	a := chunkID("alice/x.txt", 42, 0)
	assert.Equal(t, a, chunkID("alice/x.txt", 42, 0))
	assert.NotEqual(t, a, chunkID("alice/x.txt", 43, 0))
	assert.NotEqual(t, a, chunkID("alice/x.txt", 42, 1))
}
