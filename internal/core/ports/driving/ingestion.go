package driving

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// IngestionService turns a stored document into indexed chunks.
type IngestionService interface {
	// Ingest processes one document end to end.
	// A document that no longer exists is skipped without error.
	Ingest(ctx context.Context, documentKey domain.DocumentKey) (*domain.IngestResult, error)

	// Remove deletes the document from storage, the vector index and status tracking.
	// Removing an unknown document is not an error.
	Remove(ctx context.Context, documentKey domain.DocumentKey) error
}

// DocumentService reports document ingestion state.
type DocumentService interface {
	// GetStatus returns the status, or domain.StatusUnknown for unseen keys.
	GetStatus(ctx context.Context, key domain.DocumentKey) (domain.DocumentStatus, error)

	// List returns the user's document records.
	List(ctx context.Context, userKey string) ([]domain.DocumentRecord, error)
}

// SearchService runs raw similarity search over a user's documents.
type SearchService interface {
	// Search embeds query and returns the topK nearest chunks.
	Search(ctx context.Context, userKey, query string, topK int) ([]domain.SearchResult, error)
}

// UploadService accepts documents for ingestion.
type UploadService interface {
	// Upload stores the document, marks it pending and enqueues an event.
	Upload(ctx context.Context, key domain.DocumentKey, data []byte, contentType string) error

	// Announce enqueues an event for a document already in storage.
	Announce(ctx context.Context, key domain.DocumentKey) error
}

// WorkerService drains the document event queue.
type WorkerService interface {
	// Run processes batches until ctx is cancelled.
	Run(ctx context.Context) error

	// RunOnce processes a single batch and returns the number of messages received.
	RunOnce(ctx context.Context) (int, domain.EventBatchResult, error)

	// DeadLetters returns up to limit messages that exhausted their deliveries.
	DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}
