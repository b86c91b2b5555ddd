// Package plaintext extracts text from plain text and source files.
package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor handles plain text documents.
type Extractor struct{}

// New creates a new plaintext extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/x-go",
		"text/x-python",
		"text/javascript",
		"text/x-typescript",
		"application/json",
		"application/xml",
		"text/xml",
		"application/yaml",
		"application/toml",
	}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 5 // Fallback
}

// Extract returns the content as a single page.
func (e *Extractor) Extract(_ context.Context, in driven.ExtractInput) (*domain.ExtractedDocument, error) {
	if in.Data == nil {
		return nil, domain.ErrInvalidInput
	}
	if !utf8.Valid(in.Data) {
		return nil, domain.NewValidationError(domain.ErrInvalidInput, "%s is not valid UTF-8 text", in.Key)
	}

	text := strings.ReplaceAll(string(in.Data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	return &domain.ExtractedDocument{
		Title:    extractors.TitleFromKey(in.Key),
		MIMEType: in.MIMEType,
		Pages:    extractors.SinglePage(strings.TrimSpace(text)),
	}, nil
}
