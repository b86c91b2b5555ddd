package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure ConversationLog implements the interface.
var _ driving.HistoryService = (*ConversationLog)(nil)

// MaxAppendAttempts bounds the conflict retries of a single append.
const MaxAppendAttempts = 5

// AppendRequest is one exchange to persist.
type AppendRequest struct {
	UserKey  string
	OwnerID  string
	Prompt   string
	Response string

	// ThreadID continues an existing thread when set.
	ThreadID string

	// NewThread starts a fresh thread, ignoring ThreadID.
	NewThread bool
}

// ConversationLog appends and reads per-user conversation turns.
//
// Appends read the current maximum sequence number and insert max+1 with a
// conditional write. A concurrent writer that took the same number causes a
// conflict, and the append re-reads and retries. An optional AppendLocker
// serialises writers for the same user so conflicts become rare.
type ConversationLog struct {
	store   driven.ConversationStore
	locker  driven.AppendLocker
	now     func() time.Time
	newUUID func() string
	log     *logger.Logger
}

// NewConversationLog creates a conversation log.
// The locker is optional (can be nil).
func NewConversationLog(store driven.ConversationStore, locker driven.AppendLocker) *ConversationLog {
	return &ConversationLog{
		store:   store,
		locker:  locker,
		now:     time.Now,
		newUUID: uuid.NewString,
		log:     logger.Component("conversation"),
	}
}

// Append persists one turn with the next sequence number for the user.
//
//nolint:gocognit // read-modify-write loop with lock and retry
func (l *ConversationLog) Append(ctx context.Context, req AppendRequest) (*domain.ConversationTurn, error) {
	if strings.TrimSpace(req.UserKey) == "" {
		return nil, domain.NewValidationError(domain.ErrInvalidInput, "user key is required")
	}

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, req.UserKey)
		if err != nil {
			return nil, fmt.Errorf("lock conversation %s: %w", req.UserKey, err)
		}
		defer func() {
			if err := unlock(); err != nil {
				l.log.Warn("release append lock for %s: %v", req.UserKey, err)
			}
		}()
	}

	threadID, err := l.resolveThread(ctx, req)
	if err != nil {
		return nil, err
	}

	now := l.now()
	turn := domain.ConversationTurn{
		UserKey:      req.UserKey,
		PromptText:   domain.NormalizeWhitespace(req.Prompt),
		ResponseText: domain.NormalizeWhitespace(req.Response),
		ThreadID:     threadID,
		OwnerID:      req.OwnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for attempt := 1; attempt <= MaxAppendAttempts; attempt++ {
		maxSeq, err := l.store.MaxSequence(ctx, req.UserKey)
		if err != nil {
			return nil, fmt.Errorf("read max sequence: %w", err)
		}
		turn.SequenceNumber = maxSeq + 1

		err = l.store.InsertTurn(ctx, turn)
		if err == nil {
			l.log.Debug("appended turn %d for %s (thread %s)", turn.SequenceNumber, req.UserKey, threadID)
			return &turn, nil
		}
		if !errors.Is(err, domain.ErrSequenceConflict) {
			return nil, fmt.Errorf("insert turn %d: %w", turn.SequenceNumber, err)
		}
		l.log.Debug("sequence %d for %s taken, retrying (attempt %d)", turn.SequenceNumber, req.UserKey, attempt)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("append for %s: %w", req.UserKey, domain.ErrAppendContention)
}

// resolveThread picks the thread a new turn belongs to.
func (l *ConversationLog) resolveThread(ctx context.Context, req AppendRequest) (string, error) {
	if req.NewThread {
		return l.newUUID(), nil
	}
	if req.ThreadID != "" {
		return req.ThreadID, nil
	}
	latest, err := l.store.Latest(ctx, req.UserKey, 1)
	if err != nil {
		return "", fmt.Errorf("read latest turn: %w", err)
	}
	if len(latest) == 0 || latest[0].ThreadID == "" {
		return l.newUUID(), nil
	}
	return latest[0].ThreadID, nil
}

// Latest returns up to limit turns, newest first.
func (l *ConversationLog) Latest(ctx context.Context, userKey string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		return []domain.ConversationTurn{}, nil
	}
	turns, err := l.store.Latest(ctx, userKey, limit)
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", userKey, err)
	}
	return turns, nil
}

// Thread returns up to limit turns of one thread, oldest first.
func (l *ConversationLog) Thread(ctx context.Context, userKey, threadID string, limit int) ([]domain.ConversationTurn, error) {
	if threadID == "" {
		return nil, domain.NewValidationError(domain.ErrInvalidInput, "thread id is required")
	}
	turns, err := l.store.Thread(ctx, userKey, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("read thread %s: %w", threadID, err)
	}
	return turns, nil
}
