package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure ConversationStore implements the interface.
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is an in-memory implementation of driven.ConversationStore.
type ConversationStore struct {
	mu    sync.RWMutex
	turns map[string]map[int64]domain.ConversationTurn
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		turns: make(map[string]map[int64]domain.ConversationTurn),
	}
}

// MaxSequence returns the highest sequence number for the user, or 0.
func (s *ConversationStore) MaxSequence(_ context.Context, userKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var maxSeq int64
	for seq := range s.turns[userKey] {
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq, nil
}

// InsertTurn stores a turn unless its sequence number is taken.
func (s *ConversationStore) InsertTurn(_ context.Context, turn domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	partition, ok := s.turns[turn.UserKey]
	if !ok {
		partition = make(map[int64]domain.ConversationTurn)
		s.turns[turn.UserKey] = partition
	}
	if _, exists := partition[turn.SequenceNumber]; exists {
		return domain.ErrSequenceConflict
	}
	partition[turn.SequenceNumber] = turn
	return nil
}

// Latest returns up to limit turns, newest first.
func (s *ConversationStore) Latest(_ context.Context, userKey string, limit int) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sorted(userKey, func(domain.ConversationTurn) bool { return true })
	reverse(turns)
	return head(turns, limit), nil
}

// Thread returns up to limit turns of one thread, oldest first.
func (s *ConversationStore) Thread(_ context.Context, userKey, threadID string, limit int) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sorted(userKey, func(t domain.ConversationTurn) bool { return t.ThreadID == threadID })
	return head(turns, limit), nil
}

// Close releases resources (no-op for memory store).
func (s *ConversationStore) Close() error {
	return nil
}

// sorted returns matching turns in ascending sequence order.
func (s *ConversationStore) sorted(userKey string, keep func(domain.ConversationTurn) bool) []domain.ConversationTurn {
	turns := make([]domain.ConversationTurn, 0, len(s.turns[userKey]))
	for _, t := range s.turns[userKey] {
		if keep(t) {
			turns = append(turns, t)
		}
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].SequenceNumber < turns[j].SequenceNumber })
	return turns
}

func reverse(turns []domain.ConversationTurn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}

func head(turns []domain.ConversationTurn, limit int) []domain.ConversationTurn {
	if limit >= 0 && len(turns) > limit {
		return turns[:limit]
	}
	return turns
}
