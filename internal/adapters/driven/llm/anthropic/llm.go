// Package anthropic completes conversations with Claude through the official SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

var _ driven.LLMService = (*LLMService)(nil)

// Default configuration values.
const (
	DefaultModel      = "claude-sonnet-4-5"
	DefaultTimeout    = 120 * time.Second
	DefaultMaxRetries = 2
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("anthropic: API key is required")

	// ErrEmptyCompletion is returned when the reply holds no text.
	ErrEmptyCompletion = errors.New("anthropic: empty completion")
)

// Config holds configuration for the Anthropic LLM service.
type Config struct {
	APIKey string

	// BaseURL overrides https://api.anthropic.com.
	BaseURL string

	Model      string
	Timeout    time.Duration
	MaxRetries int

	HTTPClient *http.Client
}

// LLMService calls the Messages API.
type LLMService struct {
	client anthropic.Client
	model  string
}

// NewLLMService creates an Anthropic LLM service.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &LLMService{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Complete sends messages with the system instruction and returns the reply text.
func (s *LLMService) Complete(
	ctx context.Context,
	messages []domain.Message,
	system string,
	params domain.GenerationParams,
) (string, error) {
	if len(messages) == 0 {
		return "", domain.NewValidationError(domain.ErrInvalidInput, "no messages to complete")
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(max(params.MaxTokens, 1)),
		Messages:  toMessageParams(messages),
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if params.Temperature > 0 {
		req.Temperature = anthropic.Float(params.Temperature)
	}
	if params.TopP > 0 {
		req.TopP = anthropic.Float(params.TopP)
	}
	if len(params.StopSequences) > 0 {
		req.StopSequences = params.StopSequences
	}

	resp, err := s.client.Messages.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("anthropic: messages: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return out.String(), nil
}

func toMessageParams(messages []domain.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping fetches the model description, which checks the key without inference.
func (s *LLMService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model, anthropic.ModelGetParams{}); err != nil {
		return fmt.Errorf("anthropic: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}
