package extractors

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// extensionTypes maps file extensions to MIME types for keys uploaded
// without a usable content type.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".json":     "application/json",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".toml":     "application/toml",
	".xml":      "application/xml",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".xhtml":    "application/xhtml+xml",
	".pdf":      "application/pdf",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".js":       "text/javascript",
	".ts":       "text/x-typescript",
}

// genericTypes are declared content types that say nothing about the format.
var genericTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"binary/octet-stream":      true,
}

// Registry selects the highest-priority extractor for a MIME type.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string][]driven.Extractor
}

// NewRegistry creates a registry holding the given extractors.
func NewRegistry(extractors ...driven.Extractor) *Registry {
	r := &Registry{extractors: make(map[string][]driven.Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds an extractor for each of its MIME types.
func (r *Registry) Register(extractor driven.Extractor) {
	if extractor == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range extractor.SupportedMIMETypes() {
		mt = normaliseType(mt)
		list := append(r.extractors[mt], extractor)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.extractors[mt] = list
	}
}

// DetectType resolves the MIME type of a document. A specific declared
// content type wins, then the key's extension, then content sniffing.
func (r *Registry) DetectType(key domain.DocumentKey, contentType string, data []byte) string {
	if mt := normaliseType(contentType); !genericTypes[mt] {
		return mt
	}
	ext := strings.ToLower(path.Ext(key.Filename()))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if mt := normaliseType(mime.TypeByExtension(ext)); ext != "" && mt != "" {
		return mt
	}
	if len(data) == 0 {
		return "text/plain"
	}
	return normaliseType(http.DetectContentType(data))
}

// Extract runs the best extractor registered for the input's MIME type.
func (r *Registry) Extract(ctx context.Context, input driven.ExtractInput) (*domain.ExtractedDocument, error) {
	mt := normaliseType(input.MIMEType)

	r.mu.RLock()
	list := r.extractors[mt]
	r.mu.RUnlock()

	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, mt)
	}
	input.MIMEType = mt
	doc, err := list[0].Extract(ctx, input)
	if err != nil {
		return nil, err
	}
	if doc.MIMEType == "" {
		doc.MIMEType = mt
	}
	return doc, nil
}

// SupportedMIMETypes returns every MIME type with at least one extractor.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.extractors))
	for mt := range r.extractors {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

// normaliseType lowercases a content type and drops its parameters.
func normaliseType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// TitleFromKey derives a readable title from the document's filename.
func TitleFromKey(key domain.DocumentKey) string {
	name := key.Filename()
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// SinglePage wraps non-paginated text as page 1.
func SinglePage(text string) []domain.Page {
	return []domain.Page{{Number: 1, Text: text}}
}
