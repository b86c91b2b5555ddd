package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates a document format no extractor handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrEmptyContent indicates a document produced no non-blank chunks.
	ErrEmptyContent = errors.New("empty content")

	// ErrInvalidDocumentKey indicates a document key without a user segment.
	ErrInvalidDocumentKey = errors.New("invalid document key")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Retrieval is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// Conversation Errors.

	// ErrSequenceConflict indicates another writer already holds the sequence number.
	// Stores return it instead of overwriting an existing turn.
	ErrSequenceConflict = errors.New("sequence number conflict")

	// ErrAppendContention indicates an append lost every conflict retry.
	ErrAppendContention = errors.New("append contention: retries exhausted")

	// Ingestion Errors.

	// ErrInvalidTransition indicates a document status change that would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStaleGeneration indicates a newer ingestion already replaced the document's chunks.
	ErrStaleGeneration = errors.New("stale chunk generation")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingModelMismatch indicates an index built with a different embedding model.
	// Distances between vectors of different models are meaningless.
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")

	// Queue Errors.

	// ErrNoMessage indicates the queue has no visible message.
	ErrNoMessage = errors.New("no message available")
)

// ValidationError marks a terminal business error.
// Validation errors are reported via status and never retried.
type ValidationError struct {
	Err error
	Msg string
}

// NewValidationError wraps err as a terminal validation failure.
func NewValidationError(err error, format string, args ...any) *ValidationError {
	return &ValidationError{Err: err, Msg: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Msg)
}

// Unwrap returns the underlying sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
