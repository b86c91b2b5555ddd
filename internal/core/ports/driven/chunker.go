package driven

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// Chunker splits extracted documents into chunks.
// Chunks never span pages and carry their page number.
type Chunker interface {
	// Name returns the chunker name for logging.
	Name() string

	// Chunk returns the document's chunks without IDs or embeddings.
	Chunk(ctx context.Context, key domain.DocumentKey, doc *domain.ExtractedDocument) ([]domain.Chunk, error)
}
