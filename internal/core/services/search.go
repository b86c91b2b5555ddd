package services

import (
	"context"
	"strings"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService exposes raw similarity search over a user's documents.
type SearchService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	timeouts Timeouts
}

// NewSearchService creates a search service.
func NewSearchService(embedder driven.EmbeddingService, index driven.VectorIndex, timeouts Timeouts) *SearchService {
	return &SearchService{embedder: embedder, index: index, timeouts: timeouts.withDefaults()}
}

// Search returns the topK chunks nearest to query.
func (s *SearchService) Search(ctx context.Context, userKey, query string, topK int) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	results, err := search(ctx, s.embedder, s.index, s.timeouts, userKey, query, topK)
	if err != nil {
		logger.Warn("Search failed: %v", err)
		return nil, err
	}
	logger.Debug("Final results: %d", len(results))
	return results, nil
}
