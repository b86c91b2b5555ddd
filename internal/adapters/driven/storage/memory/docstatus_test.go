package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

func TestDocumentStatusStore_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStatusStore()

	_, err := store.GetRecord(ctx, "alice/a.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	now := time.Now()
	require.NoError(t, store.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/b.txt", Status: domain.StatusPending, UpdatedAt: now}))
	require.NoError(t, store.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/a.txt", Status: domain.StatusProcessed, UpdatedAt: now}))
	require.NoError(t, store.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "bob/c.txt", Status: domain.StatusError, UpdatedAt: now}))

	rec, err := store.GetRecord(ctx, "alice/a.txt")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, rec.Status)

	list, err := store.ListRecords(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.DocumentKey("alice/a.txt"), list[0].DocumentKey)
	assert.Equal(t, domain.DocumentKey("alice/b.txt"), list[1].DocumentKey)
}

func TestDocumentStatusStore_DeleteRecord(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStatusStore()
	require.NoError(t, store.SaveRecord(ctx, domain.DocumentRecord{DocumentKey: "alice/a.txt", Status: domain.StatusProcessed}))

	require.NoError(t, store.DeleteRecord(ctx, "alice/a.txt"))
	require.NoError(t, store.DeleteRecord(ctx, "alice/a.txt"))

	_, err := store.GetRecord(ctx, "alice/a.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
