package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// contextPreamble introduces retrieved excerpts in the final user message.
const contextPreamble = "The following excerpts come from documents the user uploaded. " +
	"Use them when they are relevant to the question and cite them by number."

// AssembleRequest describes the context to build for one prompt.
type AssembleRequest struct {
	UserKey      string
	Prompt       string
	HistoryLimit int
	TopK         int
}

// Assembly is the model input built for one prompt.
type Assembly struct {
	// Messages alternate user/assistant, oldest first, ending with the prompt.
	Messages []domain.Message

	// SearchResults are the chunks placed in the context block.
	SearchResults []domain.SearchResult

	// Retrieval records which retrieval path ran.
	Retrieval domain.RetrievalStatus

	// RetrievalErr holds the cause when retrieval failed or timed out.
	RetrievalErr error
}

// ContextAssembler merges conversation history and retrieved chunks into
// a single bounded message list.
type ContextAssembler struct {
	history  *ConversationLog
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	timeouts Timeouts
	log      *logger.Logger
}

// NewContextAssembler creates a context assembler.
// The embedder and index are optional; without both, retrieval is disabled.
func NewContextAssembler(
	history *ConversationLog,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	timeouts Timeouts,
) *ContextAssembler {
	return &ContextAssembler{
		history:  history,
		embedder: embedder,
		index:    index,
		timeouts: timeouts.withDefaults(),
		log:      logger.Component("assembler"),
	}
}

// Assemble builds the messages for req.
// History read failures are returned. Retrieval failures are not: the
// assembly falls back to history only and records why in Retrieval.
func (a *ContextAssembler) Assemble(ctx context.Context, req AssembleRequest) (*Assembly, error) {
	logger.Section("Context Assembly")

	turns, err := a.history.Latest(ctx, req.UserKey, req.HistoryLimit)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, 2*len(turns)+1)
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages,
			domain.Message{Role: domain.RoleUser, Content: turns[i].PromptText},
			domain.Message{Role: domain.RoleAssistant, Content: turns[i].ResponseText},
		)
	}
	logger.Debug("History: %d turns", len(turns))

	results, status, retrievalErr := a.retrieve(ctx, req)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if status.Degraded() {
		a.log.With("user", req.UserKey).Warn("retrieval %s, continuing with history only: %v", status, retrievalErr)
	}
	logger.Debug("Retrieval: %s (%d results)", status, len(results))

	messages = append(messages, domain.Message{
		Role:    domain.RoleUser,
		Content: contextBlock(results) + req.Prompt + "\n",
	})

	return &Assembly{
		Messages:      messages,
		SearchResults: results,
		Retrieval:     status,
		RetrievalErr:  retrievalErr,
	}, nil
}

// retrieve embeds the prompt and queries the user's index within the retrieval timeout.
func (a *ContextAssembler) retrieve(ctx context.Context, req AssembleRequest) ([]domain.SearchResult, domain.RetrievalStatus, error) {
	if a.embedder == nil || a.index == nil || req.TopK <= 0 {
		return nil, domain.RetrievalDisabled, nil
	}

	rctx, cancel := context.WithTimeout(ctx, a.timeouts.Retrieval)
	defer cancel()

	results, err := search(rctx, a.embedder, a.index, a.timeouts, req.UserKey, req.Prompt, req.TopK)
	switch {
	case err == nil && len(results) == 0:
		return nil, domain.RetrievalEmpty, nil
	case err == nil:
		return results, domain.RetrievalOK, nil
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return nil, domain.RetrievalTimeout, err
	default:
		return nil, domain.RetrievalFailed, err
	}
}

// search embeds text and returns the user's nearest chunks.
func search(
	ctx context.Context, embedder driven.EmbeddingService, index driven.VectorIndex,
	timeouts Timeouts, userKey, text string, topK int,
) ([]domain.SearchResult, error) {
	vector, err := bounded(ctx, timeouts.Embed, func(ctx context.Context) ([]float32, error) {
		return embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	results, err := bounded(ctx, timeouts.Query, func(ctx context.Context) ([]domain.SearchResult, error) {
		return index.Query(ctx, userKey, vector, topK)
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return results, nil
}

// contextBlock renders retrieved chunks, or "" when there are none.
func contextBlock(results []domain.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextPreamble)
	b.WriteString("\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s", i+1, sourceLabel(r))
		if r.Metadata.Page != nil {
			fmt.Fprintf(&b, " (page %d)", *r.Metadata.Page)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(r.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func sourceLabel(r domain.SearchResult) string {
	if r.Metadata.Filename != "" {
		return r.Metadata.Filename
	}
	if r.DocumentKey != "" {
		return r.DocumentKey.Filename()
	}
	return "document"
}
