package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// conversationStore implements driven.ConversationStore.
type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

// MaxSequence returns the highest sequence number for the user, or 0.
func (s *conversationStore) MaxSequence(ctx context.Context, userKey string) (int64, error) {
	var maxSeq int64
	row := s.store.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM turns WHERE user_key = ?", userKey)
	if err := row.Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("querying max sequence: %w", err)
	}
	return maxSeq, nil
}

// InsertTurn writes a turn unless (user_key, seq) is already taken.
func (s *conversationStore) InsertTurn(ctx context.Context, turn domain.ConversationTurn) error {
	if turn.UserKey == "" || turn.SequenceNumber < 1 {
		return fmt.Errorf("%w: turn needs a user key and a positive sequence number", domain.ErrInvalidInput)
	}
	now := time.Now().UTC()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	if turn.UpdatedAt.IsZero() {
		turn.UpdatedAt = turn.CreatedAt
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO turns (user_key, seq, prompt, response, thread_id, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_key, seq) DO NOTHING
	`, turn.UserKey, turn.SequenceNumber, turn.PromptText, turn.ResponseText,
		turn.ThreadID, turn.OwnerID, turn.CreatedAt.UTC(), turn.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	if n == 0 {
		return domain.ErrSequenceConflict
	}
	return nil
}

// Latest returns up to limit turns, newest first.
func (s *conversationStore) Latest(ctx context.Context, userKey string, limit int) ([]domain.ConversationTurn, error) {
	return s.query(ctx, `
		SELECT user_key, seq, prompt, response, thread_id, owner_id, created_at, updated_at
		FROM turns WHERE user_key = ?
		ORDER BY seq DESC LIMIT ?
	`, userKey, sqlLimit(limit))
}

// Thread returns up to limit turns of one thread, oldest first.
func (s *conversationStore) Thread(ctx context.Context, userKey, threadID string, limit int) ([]domain.ConversationTurn, error) {
	return s.query(ctx, `
		SELECT user_key, seq, prompt, response, thread_id, owner_id, created_at, updated_at
		FROM turns WHERE user_key = ? AND thread_id = ?
		ORDER BY seq ASC LIMIT ?
	`, userKey, threadID, sqlLimit(limit))
}

// Close is a no-op; the owning Store closes the database.
func (s *conversationStore) Close() error {
	return nil
}

func (s *conversationStore) query(ctx context.Context, q string, args ...any) ([]domain.ConversationTurn, error) {
	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	turns := []domain.ConversationTurn{}
	for rows.Next() {
		var turn domain.ConversationTurn
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&turn.UserKey, &turn.SequenceNumber, &turn.PromptText, &turn.ResponseText,
			&turn.ThreadID, &turn.OwnerID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if createdAt.Valid {
			turn.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			turn.UpdatedAt = updatedAt.Time
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

// sqlLimit maps a negative limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit < 0 {
		return -1
	}
	return limit
}
