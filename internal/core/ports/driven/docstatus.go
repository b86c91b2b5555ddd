package driven

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// DocumentStatusStore persists document ingestion records.
type DocumentStatusStore interface {
	// GetRecord returns the record for key, or domain.ErrNotFound.
	GetRecord(ctx context.Context, key domain.DocumentKey) (*domain.DocumentRecord, error)

	// SaveRecord inserts or replaces a record.
	SaveRecord(ctx context.Context, record domain.DocumentRecord) error

	// DeleteRecord removes the record for key. A missing record is not an error.
	DeleteRecord(ctx context.Context, key domain.DocumentKey) error

	// ListRecords returns the user's records ordered by key.
	ListRecords(ctx context.Context, userKey string) ([]domain.DocumentRecord, error)

	// Close releases resources.
	Close() error
}
