// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// LLMService completes a conversation.
//
// Implementations include:
//   - Anthropic (Claude, via the official SDK)
//   - OpenAI-compatible chat completion endpoints (OpenAI, Ollama, LM Studio)
type LLMService interface {
	// Complete returns the model's reply to messages under the system instruction.
	// Messages alternate user/assistant and end with a user message.
	Complete(ctx context.Context, messages []domain.Message, system string, params domain.GenerationParams) (string, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
