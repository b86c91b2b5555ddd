// Package pdf extracts page text from PDF documents using pdfcpu.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/extractors"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// ErrEncrypted is returned for password-protected documents.
var ErrEncrypted = errors.New("pdf is encrypted")

// maxTitleLength bounds the first line considered as a title.
const maxTitleLength = 200

// PageReader returns the raw content stream of every page, in page order.
type PageReader interface {
	ReadPages(ctx context.Context, data []byte) ([][]byte, error)
}

// Extractor handles PDF documents. Text is recovered from the page
// content streams, so scanned (image-only) pages come back empty.
type Extractor struct {
	pages PageReader
}

// New creates a PDF extractor backed by pdfcpu.
func New() *Extractor {
	return NewWithReader(pdfcpuReader{})
}

// NewWithReader creates a PDF extractor with a custom page reader.
func NewWithReader(reader PageReader) *Extractor {
	return &Extractor{pages: reader}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract returns one page of text per PDF page.
func (e *Extractor) Extract(ctx context.Context, in driven.ExtractInput) (*domain.ExtractedDocument, error) {
	if in.Data == nil {
		return nil, domain.ErrInvalidInput
	}

	streams, err := e.pages.ReadPages(ctx, in.Data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrEncrypted) {
			return nil, domain.NewValidationError(domain.ErrUnsupportedType, "%s: %v", in.Key, err)
		}
		return nil, domain.NewValidationError(domain.ErrInvalidInput, "read pdf %s: %v", in.Key, err)
	}

	pages := make([]domain.Page, 0, len(streams))
	for i, stream := range streams {
		text, err := ExtractText(stream)
		if err != nil {
			logger.Warn("pdf %s page %d: %v", in.Key, i+1, err)
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: text})
	}

	title := ""
	for _, p := range pages {
		if title = extractTitle(p.Text); title != "" {
			break
		}
	}
	if title == "" {
		title = extractors.TitleFromKey(in.Key)
	}

	return &domain.ExtractedDocument{
		Title:     title,
		MIMEType:  in.MIMEType,
		Pages:     pages,
		Paginated: true,
	}, nil
}

// extractTitle returns the first non-empty line if it is short enough.
func extractTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxTitleLength {
			return ""
		}
		return line
	}
	return ""
}

// pdfcpuReader reads page content streams with pdfcpu.
type pdfcpuReader struct{}

func (pdfcpuReader) ReadPages(ctx context.Context, data []byte) ([][]byte, error) {
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read context: %w", err)
	}
	if pdfCtx.Encrypt != nil {
		return nil, ErrEncrypted
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	streams := make([][]byte, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNr, err)
		}
		if r == nil {
			streams = append(streams, nil)
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNr, err)
		}
		streams = append(streams, content)
	}
	return streams, nil
}
