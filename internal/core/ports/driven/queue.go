package driven

import (
	"context"
	"time"
)

// QueueMessage is one delivery of an enqueued payload.
type QueueMessage struct {
	ID           string
	Body         []byte
	ReceiveCount int
	EnqueuedAt   time.Time
}

// Queue is an at-least-once message queue.
// A received message stays invisible for the visibility timeout and is
// redelivered unless acknowledged. Messages received more than the
// configured maximum are moved to a dead-letter list.
type Queue interface {
	// Enqueue stores a payload and returns its message ID.
	Enqueue(ctx context.Context, body []byte) (string, error)

	// Receive returns up to max visible messages, oldest first.
	Receive(ctx context.Context, max int) ([]QueueMessage, error)

	// Ack deletes a received message.
	Ack(ctx context.Context, id string) error

	// DeadLetters returns up to limit dead-lettered messages.
	DeadLetters(ctx context.Context, limit int) ([]QueueMessage, error)

	// Close releases resources.
	Close() error
}
