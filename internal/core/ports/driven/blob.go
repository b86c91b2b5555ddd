package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Key         domain.DocumentKey
	Size        int64
	ContentType string
	ModTime     time.Time
}

// BlobStore holds uploaded document bytes.
type BlobStore interface {
	// Head returns object metadata, or domain.ErrNotFound.
	Head(ctx context.Context, key domain.DocumentKey) (*BlobInfo, error)

	// Get returns the object bytes, or domain.ErrNotFound.
	Get(ctx context.Context, key domain.DocumentKey) ([]byte, *BlobInfo, error)

	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, key domain.DocumentKey, data []byte, contentType string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key domain.DocumentKey) error
}

// BlobWatcher emits change notifications for stored objects.
type BlobWatcher interface {
	// Watch delivers one event per written object until ctx is done.
	Watch(ctx context.Context, handle func(domain.DocumentEvent)) error
}
