package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
)

// Ensure UploadService implements the interface.
var _ driving.UploadService = (*UploadService)(nil)

// UploadService stores documents and announces them for ingestion.
type UploadService struct {
	blobs  driven.BlobStore
	queue  driven.Queue
	status *DocumentStatusTracker
}

// NewUploadService creates an upload service.
func NewUploadService(blobs driven.BlobStore, queue driven.Queue, status *DocumentStatusTracker) *UploadService {
	return &UploadService{blobs: blobs, queue: queue, status: status}
}

// Upload writes the document, marks it pending and enqueues an event.
func (u *UploadService) Upload(ctx context.Context, key domain.DocumentKey, data []byte, contentType string) error {
	key, _, err := domain.ParseDocumentKey(string(key))
	if err != nil {
		return err
	}
	if err := u.blobs.Put(ctx, key, data, contentType); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return u.Announce(ctx, key)
}

// Announce marks an already stored document pending and enqueues an event.
func (u *UploadService) Announce(ctx context.Context, key domain.DocumentKey) error {
	u.status.report(ctx, key, domain.StatusPending)
	body, err := EncodeDocumentEvent(key)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", key, err)
	}
	if _, err := u.queue.Enqueue(ctx, body); err != nil {
		return fmt.Errorf("enqueue %s: %w", key, err)
	}
	return nil
}
