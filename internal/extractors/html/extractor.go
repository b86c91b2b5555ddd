// Package html extracts readable text from HTML documents.
package html

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/extractors"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// noise holds elements that never carry document prose.
const noise = "script, style, noscript, svg, iframe, template, nav, footer"

var multiNewlines = regexp.MustCompile(`\n{3,}`)

// Extractor handles HTML documents. Body content is rendered as
// Markdown so headings, lists and tables survive as plain text.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50 // Generic MIME extractor, higher than plaintext
}

// Extract converts an HTML document into a single page of text.
func (e *Extractor) Extract(_ context.Context, in driven.ExtractInput) (*domain.ExtractedDocument, error) {
	if in.Data == nil {
		return nil, domain.ErrInvalidInput
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(in.Data)))
	if err != nil {
		return nil, domain.NewValidationError(domain.ErrInvalidInput, "parse html %s: %v", in.Key, err)
	}

	title := extractTitle(doc)
	if title == "" {
		title = extractors.TitleFromKey(in.Key)
	}

	doc.Find(noise).Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	markup, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("render html %s: %w", in.Key, err)
	}

	text, err := md.NewConverter("", true, nil).ConvertString(markup)
	if err != nil {
		return nil, domain.NewValidationError(domain.ErrInvalidInput, "convert html %s: %v", in.Key, err)
	}
	text = multiNewlines.ReplaceAllString(strings.TrimSpace(text), "\n\n")

	return &domain.ExtractedDocument{
		Title:    title,
		MIMEType: in.MIMEType,
		Pages:    extractors.SinglePage(text),
	}, nil
}

// extractTitle tries the <title> tag, then Open Graph, then the first h1.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
