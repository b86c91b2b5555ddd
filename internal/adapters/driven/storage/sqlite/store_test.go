package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/services"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func intPtr(i int) *int { return &i }

// ==================== Store Creation Tests ====================

func TestNewStore_MigrationsRecorded(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Contains(t, store.Path(), dbFile)

	var version int
	require.NoError(t, store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)
	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations.
	again, err := NewStore(dir)
	require.NoError(t, err)
	defer again.Close()
	var count int
	require.NoError(t, again.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

// ==================== Conversation Store Tests ====================

func TestConversationStore_InsertAndConflict(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t).ConversationStore()

	maxSeq, err := s.MaxSequence(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxSeq)

	turn := domain.ConversationTurn{UserKey: "alice", SequenceNumber: 1, PromptText: "hi", ResponseText: "hello", ThreadID: "t1", OwnerID: "u1"}
	require.NoError(t, s.InsertTurn(ctx, turn))

	dup := turn
	dup.PromptText = "overwrite?"
	assert.ErrorIs(t, s.InsertTurn(ctx, dup), domain.ErrSequenceConflict)

	latest, err := s.Latest(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "hi", latest[0].PromptText)
	assert.False(t, latest[0].CreatedAt.IsZero())

	maxSeq, err = s.MaxSequence(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), maxSeq)
}

func TestConversationStore_InsertInvalid(t *testing.T) {
	s := setupTestStore(t).ConversationStore()
	err := s.InsertTurn(context.Background(), domain.ConversationTurn{UserKey: "alice"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConversationStore_Ordering(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t).ConversationStore()

	for seq := int64(1); seq <= 5; seq++ {
		thread := "a"
		if seq%2 == 0 {
			thread = "b"
		}
		require.NoError(t, s.InsertTurn(ctx, domain.ConversationTurn{
			UserKey: "alice", SequenceNumber: seq, PromptText: fmt.Sprintf("p%d", seq), ThreadID: thread,
		}))
	}
	require.NoError(t, s.InsertTurn(ctx, domain.ConversationTurn{UserKey: "bob", SequenceNumber: 1, ThreadID: "a"}))

	latest, err := s.Latest(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []int64{5, 4, 3}, seqs(latest))

	none, err := s.Latest(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	thread, err := s.Thread(ctx, "alice", "a", -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5}, seqs(thread))
}

func TestConversationStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	log := services.NewConversationLog(setupTestStore(t).ConversationStore(), nil)

	const writers, perWriter = 4, 5
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := log.Append(ctx, services.AppendRequest{
					UserKey: "alice", OwnerID: "u", Prompt: fmt.Sprintf("w%d-%d", w, i), Response: "ok",
				})
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrAppendContention)
			failures++
		}
	}

	turns, err := log.Latest(ctx, "alice", 100)
	require.NoError(t, err)
	assert.Len(t, turns, writers*perWriter-failures)

	// Sequence numbers are unique and gap-free.
	got := seqs(turns)
	for i, seq := range got {
		assert.Equal(t, int64(len(got)-i), seq)
	}
}

func seqs(turns []domain.ConversationTurn) []int64 {
	out := make([]int64, len(turns))
	for i, t := range turns {
		out[i] = t.SequenceNumber
	}
	return out
}

// ==================== Document Status Store Tests ====================

func TestDocumentStatusStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t).DocumentStatusStore()

	_, err := s.GetRecord(ctx, "alice/a.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/b.txt", Status: domain.StatusPending, UpdatedAt: now}))
	require.NoError(t, s.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/a.txt", Status: domain.StatusProcessing}))
	require.NoError(t, s.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "bob/c.txt", Status: domain.StatusError}))
	require.NoError(t, s.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/b.txt", Status: domain.StatusProcessed, UpdatedAt: now.Add(time.Minute)}))

	rec, err := s.GetRecord(ctx, "alice/b.txt")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, rec.Status)
	assert.True(t, rec.UpdatedAt.Equal(now.Add(time.Minute)))

	list, err := s.ListRecords(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.DocumentKey("alice/a.txt"), list[0].DocumentKey)
	assert.Equal(t, domain.DocumentKey("alice/b.txt"), list[1].DocumentKey)

	empty, err := s.ListRecords(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDocumentStatusStore_DeleteRecord(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t).DocumentStatusStore()

	require.NoError(t, s.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/a.txt", Status: domain.StatusProcessed}))
	require.NoError(t, s.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/b.txt", Status: domain.StatusPending}))

	require.NoError(t, s.DeleteRecord(ctx, "alice/a.txt"))
	_, err := s.GetRecord(ctx, "alice/a.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Missing records delete cleanly.
	require.NoError(t, s.DeleteRecord(ctx, "alice/a.txt"))

	list, err := s.ListRecords(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.DocumentKey("alice/b.txt"), list[0].DocumentKey)
}

// ==================== Vector Index Tests ====================

func newVectorIndex(t *testing.T) *vectorIndex {
	t.Helper()
	idx := setupTestStore(t).VectorIndex().(*vectorIndex)
	require.NoError(t, idx.Create(context.Background(), domain.IndexInfo{UserKey: "alice", Model: "test-embed", Dimensions: 2}))
	return idx
}

func TestVectorIndex_CreateAndInfo(t *testing.T) {
	ctx := context.Background()
	idx := setupTestStore(t).VectorIndex()

	ok, err := idx.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = idx.Info(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, idx.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "m", Dimensions: 3}))
	require.NoError(t, idx.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "m", Dimensions: 3}))
	assert.ErrorIs(t, idx.Create(ctx, domain.IndexInfo{UserKey: "alice", Model: "m", Dimensions: 4}), domain.ErrEmbeddingModelMismatch)
	assert.ErrorIs(t, idx.Create(ctx, domain.IndexInfo{UserKey: "bob"}), domain.ErrInvalidInput)

	ok, err = idx.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := idx.Info(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "m", info.Model)
	assert.Equal(t, 3, info.Dimensions)
}

func TestVectorIndex_ReplaceAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t)

	chunks := []domain.Chunk{
		{ID: "c1", ChunkIndex: 0, Text: "east", Embedding: []float32{1, 0}, Metadata: domain.ChunkMetadata{Filename: "a.pdf", Page: intPtr(1)}},
		{ID: "c2", ChunkIndex: 1, Text: "north", Embedding: []float32{0, 1}, Metadata: domain.ChunkMetadata{Filename: "a.pdf", Page: intPtr(2), Extra: map[string]any{"title": "A"}}},
	}
	require.NoError(t, idx.ReplaceDocument(ctx, "alice", "alice/a.pdf", 10, chunks))

	results, err := idx.Query(ctx, "alice", []float32{1, 0.1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "east", results[0].Text)
	assert.Equal(t, domain.DocumentKey("alice/a.pdf"), results[0].DocumentKey)
	require.NotNil(t, results[0].Metadata.Page)
	assert.Equal(t, 1, *results[0].Metadata.Page)
	assert.Less(t, results[0].Distance, results[1].Distance)
	assert.Equal(t, "A", results[1].Metadata.Extra["title"])

	top1, err := idx.Query(ctx, "alice", []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, top1, 1)
	assert.Equal(t, "c2", top1[0].ChunkID)
}

func TestVectorIndex_ReplaceSwapsGeneration(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t)

	require.NoError(t, idx.ReplaceDocument(ctx, "alice", "alice/a.txt", 1, []domain.Chunk{
		{ID: "old-0", Text: "old", Embedding: []float32{1, 0}},
		{ID: "old-1", Text: "old", Embedding: []float32{1, 1}},
	}))
	require.NoError(t, idx.ReplaceDocument(ctx, "alice", "alice/a.txt", 2, []domain.Chunk{
		{ID: "new-0", Text: "new", Embedding: []float32{0, 1}},
	}))

	results, err := idx.Query(ctx, "alice", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new-0", results[0].ChunkID)

	// An older generation arriving late is rejected and changes nothing.
	err = idx.ReplaceDocument(ctx, "alice", "alice/a.txt", 1, []domain.Chunk{{ID: "late", Text: "late", Embedding: []float32{1, 0}}})
	assert.ErrorIs(t, err, domain.ErrStaleGeneration)

	results, err = idx.Query(ctx, "alice", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new-0", results[0].ChunkID)
}

func TestVectorIndex_DimensionChecks(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t)

	err := idx.ReplaceDocument(ctx, "alice", "alice/a.txt", 1, []domain.Chunk{{ID: "x", Embedding: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	err = idx.Upsert(ctx, "alice", []domain.Chunk{{ID: "x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, idx.Upsert(ctx, "alice", []domain.Chunk{{ID: "x", SourceDocumentKey: "alice/x", Embedding: []float32{1, 0}}}))
	_, err = idx.Query(ctx, "alice", []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	err = idx.Upsert(ctx, "bob", []domain.Chunk{{ID: "y", Embedding: []float32{1, 0}}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVectorIndex_EmptyAndMissing(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t)

	results, err := idx.Query(ctx, "alice", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	results, err = idx.Query(ctx, "nobody", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Query(ctx, "alice", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndex_DeleteDocumentAndIsolation(t *testing.T) {
	ctx := context.Background()
	idx := newVectorIndex(t)
	require.NoError(t, idx.Create(ctx, domain.IndexInfo{UserKey: "bob", Model: "test-embed", Dimensions: 2}))

	require.NoError(t, idx.ReplaceDocument(ctx, "alice", "alice/a.txt", 1, []domain.Chunk{{ID: "a", Text: "a", Embedding: []float32{1, 0}}}))
	require.NoError(t, idx.ReplaceDocument(ctx, "bob", "bob/b.txt", 1, []domain.Chunk{{ID: "b", Text: "b", Embedding: []float32{1, 0}}}))

	results, err := idx.Query(ctx, "alice", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)

	require.NoError(t, idx.DeleteDocument(ctx, "alice", "alice/a.txt"))
	results, err = idx.Query(ctx, "alice", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// After delete, any generation may be indexed again.
	require.NoError(t, idx.ReplaceDocument(ctx, "alice", "alice/a.txt", 0, []domain.Chunk{{ID: "a", Text: "a", Embedding: []float32{1, 0}}}))

	results, err = idx.Query(ctx, "bob", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
