package domain

import "time"

// EventTypeDocumentUploaded announces a new or replaced document.
const EventTypeDocumentUploaded = "DOCUMENT_UPLOADED"

// DocumentEvent is a change notification for a stored document.
type DocumentEvent struct {
	EventType    string `json:"eventType"`
	DocumentPath string `json:"documentPath"`
}

// IngestResult summarises one ingestion call.
type IngestResult struct {
	Record DocumentRecord

	// Skipped is set when the blob no longer exists.
	Skipped bool

	// Superseded is set when a newer attempt already owns the document's chunks.
	Superseded bool

	// Chunks is the number of chunks written.
	Chunks int
}

// EventBatchResult reports the outcome of a batch of queue messages.
type EventBatchResult struct {
	Processed int
	Skipped   int

	// Failures maps message IDs to the error that should trigger redelivery.
	Failures map[string]error
}

// DeadLetter is a queue message that exhausted its deliveries.
type DeadLetter struct {
	MessageID    string
	ReceiveCount int
	EnqueuedAt   time.Time
	// DocumentKeys are the documents the message announced, when decodable.
	DocumentKeys []DocumentKey
	Body         string
}
