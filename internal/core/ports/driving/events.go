package driving

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// EventHandler processes a batch of queue messages carrying document events.
type EventHandler interface {
	// HandleBatch ingests every uploaded-document event in the batch.
	// Failures are reported per message ID so only those are redelivered.
	HandleBatch(ctx context.Context, messages []driven.QueueMessage) domain.EventBatchResult
}
