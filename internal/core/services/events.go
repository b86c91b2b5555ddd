package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure EventProcessor implements the interface.
var _ driving.EventHandler = (*EventProcessor)(nil)

// s3Notification is the object storage notification envelope.
type s3Notification struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// EventProcessor decodes document events from queue messages and runs ingestion.
type EventProcessor struct {
	ingestion driving.IngestionService
	log       *logger.Logger
}

// NewEventProcessor creates an event processor.
func NewEventProcessor(ingestion driving.IngestionService) *EventProcessor {
	return &EventProcessor{ingestion: ingestion, log: logger.Component("events")}
}

// HandleBatch ingests every document named in the batch.
// Unknown event types and malformed payloads are skipped. Validation
// failures are terminal and count as processed. Other failures are
// reported per message so only those messages are redelivered.
func (p *EventProcessor) HandleBatch(ctx context.Context, messages []driven.QueueMessage) domain.EventBatchResult {
	result := domain.EventBatchResult{Failures: make(map[string]error)}
	for _, msg := range messages {
		log := p.log.With("message", msg.ID)
		keys, err := DecodeDocumentEvents(msg.Body)
		if err != nil {
			log.Warn("skipping malformed message: %v", err)
			result.Skipped++
			continue
		}
		if len(keys) == 0 {
			log.Debug("no document events in message")
			result.Skipped++
			continue
		}

		var errs []error
		for _, key := range keys {
			res, err := p.ingestion.Ingest(ctx, key)
			switch {
			case err == nil && res != nil && res.Skipped:
				result.Skipped++
			case err == nil:
				result.Processed++
			case domain.IsValidation(err):
				log.Warn("rejected %s: %v", key, err)
				result.Processed++
			default:
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
		if len(errs) > 0 {
			result.Failures[msg.ID] = errors.Join(errs...)
		}
	}
	return result
}

// DecodeDocumentEvents returns the document keys announced by a message body.
// Both the native event and the object storage notification envelope are accepted.
func DecodeDocumentEvents(body []byte) ([]domain.DocumentKey, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	if _, ok := probe["Records"]; ok {
		var n s3Notification
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		keys := make([]domain.DocumentKey, 0, len(n.Records))
		for _, r := range n.Records {
			if r.EventName != "" && !strings.HasPrefix(r.EventName, "ObjectCreated") {
				continue
			}
			raw, err := url.QueryUnescape(r.S3.Object.Key)
			if err != nil {
				return nil, fmt.Errorf("decode object key %q: %w", r.S3.Object.Key, err)
			}
			key, _, err := domain.ParseDocumentKey(raw)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return keys, nil
	}

	var ev domain.DocumentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.EventType != domain.EventTypeDocumentUploaded {
		return nil, nil
	}
	key, _, err := domain.ParseDocumentKey(ev.DocumentPath)
	if err != nil {
		return nil, err
	}
	return []domain.DocumentKey{key}, nil
}

// EncodeDocumentEvent renders an uploaded-document event for the queue.
func EncodeDocumentEvent(key domain.DocumentKey) ([]byte, error) {
	return json.Marshal(domain.DocumentEvent{
		EventType:    domain.EventTypeDocumentUploaded,
		DocumentPath: string(key),
	})
}
