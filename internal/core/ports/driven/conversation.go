package driven

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// ConversationStore persists conversation turns partitioned by user.
type ConversationStore interface {
	// MaxSequence returns the highest sequence number for the user, or 0.
	MaxSequence(ctx context.Context, userKey string) (int64, error)

	// InsertTurn writes a turn only if (UserKey, SequenceNumber) is free.
	// An occupied key returns domain.ErrSequenceConflict and leaves the
	// existing turn untouched.
	InsertTurn(ctx context.Context, turn domain.ConversationTurn) error

	// Latest returns up to limit turns, newest first.
	Latest(ctx context.Context, userKey string, limit int) ([]domain.ConversationTurn, error)

	// Thread returns up to limit turns of one thread, oldest first.
	Thread(ctx context.Context, userKey, threadID string, limit int) ([]domain.ConversationTurn, error)

	// Close releases resources.
	Close() error
}

// AppendLocker provides mutual exclusion per user around an append.
type AppendLocker interface {
	// Lock blocks until the user's lock is held or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context, userKey string) (unlock func() error, err error)
}
