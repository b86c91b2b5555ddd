// Package gemini embeds text with the Gemini API through google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "gemini-embedding-001"
	DefaultDimensions = 768

	// MaxBatchSize is the most inputs sent per batchEmbedContents call.
	MaxBatchSize = 100
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("gemini: API key is required")

// Config holds configuration for the Gemini embedding service.
type Config struct {
	APIKey string
	Model  string

	// Dimensions is the requested output dimensionality.
	Dimensions int

	// TaskType hints the embedding use, e.g. RETRIEVAL_DOCUMENT.
	TaskType string

	// BaseURL overrides the API endpoint.
	BaseURL string

	HTTPClient *http.Client
}

// EmbeddingService generates embeddings with genai's EmbedContent.
type EmbeddingService struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
}

// NewEmbeddingService creates a Gemini embedding service.
func NewEmbeddingService(ctx context.Context, cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		taskType:   cfg.TaskType,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in groups of MaxBatchSize.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	dims := int32(s.dimensions) //nolint:gosec // configured size, far below int32 range
	embedCfg := &genai.EmbedContentConfig{OutputDimensionality: &dims, TaskType: s.taskType}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		result, err := s.client.Models.EmbedContent(ctx, s.model, contents, embedCfg)
		if err != nil {
			return nil, fmt.Errorf("gemini: embed content: %w", err)
		}
		if result == nil || len(result.Embeddings) != len(contents) {
			return nil, fmt.Errorf("gemini: expected %d embeddings", len(contents))
		}
		for i, e := range result.Embeddings {
			if e == nil || len(e.Values) != s.dimensions {
				return nil, fmt.Errorf("gemini: embedding %d has wrong dimension", start+i)
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Dimensions returns the requested output dimensionality.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping fetches the model description.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model, nil); err != nil {
		return fmt.Errorf("gemini: ping failed: %w", err)
	}
	return nil
}

// Close releases resources. The genai client holds no connections of its own.
func (s *EmbeddingService) Close() error {
	return nil
}
