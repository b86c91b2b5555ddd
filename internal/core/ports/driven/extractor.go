package driven

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// Extractor turns document bytes of specific types into page text.
type Extractor interface {
	// SupportedMIMETypes returns the MIME types this extractor handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific extractors should return 50-89.
	// Fallback extractors should return 1-9.
	Priority() int

	// Extract returns the document text in page order.
	Extract(ctx context.Context, input ExtractInput) (*domain.ExtractedDocument, error)
}

// ExtractInput is the raw material handed to an extractor.
type ExtractInput struct {
	Key      domain.DocumentKey
	MIMEType string
	Data     []byte
}

// ExtractorRegistry selects the appropriate extractor for a document.
type ExtractorRegistry interface {
	// Register adds an extractor to the registry.
	Register(extractor Extractor)

	// DetectType resolves the MIME type from the declared content type,
	// then the key's extension, then the content itself.
	DetectType(key domain.DocumentKey, contentType string, data []byte) string

	// Extract runs the best extractor for the input's MIME type.
	// No matching extractor returns domain.ErrUnsupportedType.
	Extract(ctx context.Context, input ExtractInput) (*domain.ExtractedDocument, error)

	// SupportedMIMETypes returns all MIME types that can be extracted.
	SupportedMIMETypes() []string
}
