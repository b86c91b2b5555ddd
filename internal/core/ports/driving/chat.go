package driving

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// ChatService answers prompts grounded in history and the user's documents.
type ChatService interface {
	// Chat assembles context, calls the model and persists the turn.
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

// HistoryService reads a user's conversation log.
type HistoryService interface {
	// Latest returns up to limit turns, newest first.
	Latest(ctx context.Context, userKey string, limit int) ([]domain.ConversationTurn, error)

	// Thread returns up to limit turns of one thread, oldest first.
	Thread(ctx context.Context, userKey, threadID string, limit int) ([]domain.ConversationTurn, error)
}
