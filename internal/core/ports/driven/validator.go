package driven

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// AIConfigValidator checks provider settings by contacting the provider.
type AIConfigValidator interface {
	// ValidateEmbedding builds the embedding service and pings it.
	ValidateEmbedding(ctx context.Context, settings *domain.EmbeddingSettings) error

	// ValidateLLM builds the completion service and pings it.
	ValidateLLM(ctx context.Context, settings *domain.LLMSettings) error
}
