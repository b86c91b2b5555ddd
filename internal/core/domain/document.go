package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DocumentKey identifies an uploaded document within blob storage.
// The first path segment names the owning user: "<userKey>/<path>".
type DocumentKey string

// ParseDocumentKey validates raw and returns the key with its user segment.
func ParseDocumentKey(raw string) (DocumentKey, string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(raw), "/")
	userKey, rest, ok := strings.Cut(key, "/")
	if !ok || userKey == "" || strings.Trim(rest, "/") == "" {
		return "", "", NewValidationError(ErrInvalidDocumentKey, "%q", raw)
	}
	return DocumentKey(key), userKey, nil
}

// UserKey returns the owning user's segment, or "" for a malformed key.
func (k DocumentKey) UserKey() string {
	userKey, _, ok := strings.Cut(string(k), "/")
	if !ok {
		return ""
	}
	return userKey
}

// Filename returns the last path element of the key.
func (k DocumentKey) Filename() string {
	return path.Base(string(k))
}

// String implements fmt.Stringer.
func (k DocumentKey) String() string {
	return string(k)
}

// DocumentStatus is the ingestion state of a document.
type DocumentStatus string

// Document statuses.
const (
	// StatusUnknown is reported for keys never seen by the tracker.
	StatusUnknown DocumentStatus = "unknown"

	// StatusPending means the upload was accepted but not yet processed.
	StatusPending DocumentStatus = "pending"

	// StatusProcessing means an ingestion attempt is running.
	StatusProcessing DocumentStatus = "processing"

	// StatusProcessed means the document's chunks are searchable.
	StatusProcessed DocumentStatus = "processed"

	// StatusError means the last ingestion attempt failed.
	StatusError DocumentStatus = "error"
)

// IsValid reports whether s is a known status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusUnknown, StatusPending, StatusProcessing, StatusProcessed, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether s ends an ingestion attempt.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusError
}

// CanTransitionTo reports whether moving from s to next keeps status monotonic.
// Terminal states only re-enter the lifecycle through a fresh attempt.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusUnknown:
		return next == StatusPending || next == StatusProcessing
	case StatusPending:
		return next == StatusPending || next == StatusProcessing
	case StatusProcessing:
		// A redelivered attempt may restart processing.
		return next == StatusProcessing || next == StatusProcessed || next == StatusError
	case StatusProcessed, StatusError:
		return next == StatusPending || next == StatusProcessing
	}
	return false
}

// ParseDocumentStatus converts a stored string into a DocumentStatus.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	status := DocumentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("%w: status %q", ErrInvalidInput, s)
	}
	return status, nil
}

// DocumentRecord tracks the ingestion progress of one document.
type DocumentRecord struct {
	// DocumentKey is the blob key of the document.
	DocumentKey DocumentKey

	// Status is the last reported ingestion state.
	Status DocumentStatus

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Page is the extracted text of one page.
// Non-paginated formats produce a single page numbered 1.
type Page struct {
	Number int
	Text   string
}

// ExtractedDocument is the output of text extraction.
type ExtractedDocument struct {
	// Title is a human-readable name for the document.
	Title string

	// MIMEType is the detected content type.
	MIMEType string

	// Pages holds the text in page order.
	Pages []Page

	// Paginated is set for formats with real page boundaries (PDF).
	Paginated bool
}

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	// Filename is the source document's base name.
	Filename string

	// Page is the 1-based page number, nil for non-paginated sources.
	Page *int

	// Extra contains arbitrary key-value pairs.
	Extra map[string]any
}

// Chunk represents a searchable unit within a document.
// A chunk is only indexed together with its embedding.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// SourceDocumentKey links to the originating document.
	SourceDocumentKey DocumentKey

	// ChunkIndex is the 0-based position within the document.
	ChunkIndex int

	// Text is the chunk content.
	Text string

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata locates the chunk in its source.
	Metadata ChunkMetadata

	// Generation identifies the ingestion attempt that produced the chunk.
	Generation int64
}

// IndexInfo records how a user's vector index was built.
type IndexInfo struct {
	UserKey    string
	Model      string
	Dimensions int
	CreatedAt  time.Time
}
