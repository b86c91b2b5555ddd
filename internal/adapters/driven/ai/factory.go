// Package ai builds embedding and completion services from settings.
package ai

import (
	"context"
	"fmt"
	"time"

	geminiembed "github.com/custodia-labs/doraemo/internal/adapters/driven/embedding/gemini"
	ollamaembed "github.com/custodia-labs/doraemo/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/doraemo/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/embedding/ratelimit"
	anthropicllm "github.com/custodia-labs/doraemo/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/doraemo/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/doraemo/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateEmbeddingService builds the configured embedding service behind the
// process-wide rate limiter. It returns nil, nil when embeddings are disabled.
func CreateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || settings.Provider == domain.AIProviderNone {
		return nil, nil
	}
	if !settings.Provider.SupportsEmbeddings() {
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrEmbeddingUnavailable, settings.Provider)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: %s needs an API key", domain.ErrEmbeddingUnavailable, settings.Provider)
	}

	var (
		svc driven.EmbeddingService
		err error
	)
	switch settings.Provider {
	case domain.AIProviderOllama:
		svc = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})
	case domain.AIProviderOpenAI:
		svc, err = openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
		})
	case domain.AIProviderGemini:
		svc, err = geminiembed.NewEmbeddingService(ctx, geminiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: settings.Dimensions,
			TaskType:   "RETRIEVAL_DOCUMENT",
		})
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", domain.ErrEmbeddingUnavailable, settings.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	return ratelimit.Wrap(svc, ratelimit.Config{
		RequestsPerSecond: settings.RatePerSecond,
		Burst:             settings.Burst,
	}), nil
}

// CreateLLMService builds the configured completion service.
// It returns nil, nil when completions are disabled.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || settings.Provider == domain.AIProviderNone {
		return nil, nil
	}
	if !settings.Provider.SupportsCompletion() {
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", domain.ErrLLMUnavailable, settings.Provider)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: %s needs an API key", domain.ErrLLMUnavailable, settings.Provider)
	}

	var (
		svc driven.LLMService
		err error
	)
	switch settings.Provider {
	case domain.AIProviderOllama:
		svc = ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})
	case domain.AIProviderOpenAI:
		svc, err = openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})
	case domain.AIProviderAnthropic:
		svc, err = anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", domain.ErrLLMUnavailable, settings.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	return svc, nil
}

// ValidateEmbeddingConfig builds the embedding service and pings it.
func ValidateEmbeddingConfig(ctx context.Context, settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(ctx, settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: service unreachable: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// ValidateLLMConfig builds the completion service and pings it.
func ValidateLLMConfig(ctx context.Context, settings *domain.LLMSettings) error {
	svc, err := CreateLLMService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: service unreachable: %w", domain.ErrLLMUnavailable, err)
	}
	return nil
}
