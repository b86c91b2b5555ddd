package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure ConversationOrchestrator implements the interface.
var _ driving.ChatService = (*ConversationOrchestrator)(nil)

// DefaultSystemPrompt is the fixed instruction sent with every completion.
const DefaultSystemPrompt = "You are a warm, attentive companion. Speak naturally, as a close friend would, " +
	"and take a genuine interest in the person you are talking with. Remember what they have told you " +
	"earlier in the conversation and refer back to it when it matters. When excerpts from their documents " +
	"are provided, ground your answer in them and say so when they do not cover the question."

// DefaultHistoryLimit is the number of prior turns included in each prompt.
const DefaultHistoryLimit = 10

// DefaultTopK is the number of chunks retrieved per prompt.
const DefaultTopK = 4

// ChatOptions configures the orchestrator.
type ChatOptions struct {
	SystemPrompt string
	HistoryLimit int
	TopK         int
	Params       domain.GenerationParams
}

// DefaultChatOptions returns the standard chat configuration.
func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		SystemPrompt: DefaultSystemPrompt,
		HistoryLimit: DefaultHistoryLimit,
		TopK:         DefaultTopK,
		Params:       domain.DefaultGenerationParams(),
	}
}

// ConversationOrchestrator runs one chat request: assemble context, call the
// model, persist the turn.
type ConversationOrchestrator struct {
	assembler *ContextAssembler
	history   *ConversationLog
	llm       driven.LLMService
	opts      ChatOptions
	timeouts  Timeouts
}

// NewConversationOrchestrator creates a chat orchestrator.
func NewConversationOrchestrator(
	assembler *ContextAssembler,
	conversationLog *ConversationLog,
	llm driven.LLMService,
	opts ChatOptions,
	timeouts Timeouts,
) *ConversationOrchestrator {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Params.MaxTokens <= 0 {
		opts.Params = domain.DefaultGenerationParams()
	}
	return &ConversationOrchestrator{
		assembler: assembler,
		history:   conversationLog,
		llm:       llm,
		opts:      opts,
		timeouts:  timeouts.withDefaults(),
	}
}

// Chat answers a prompt and records the exchange.
func (o *ConversationOrchestrator) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.NewValidationError(domain.ErrInvalidInput, "no prompt provided")
	}
	if o.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	identity := req.Identity.WithDefaults()
	logger.Section("Chat")
	logger.Debug("User: %s, thread: %q, new thread: %t", identity.Name, req.ThreadID, req.NewThread)

	assembly, err := o.assembler.Assemble(ctx, AssembleRequest{
		UserKey:      identity.Name,
		Prompt:       req.Prompt,
		HistoryLimit: o.opts.HistoryLimit,
		TopK:         o.opts.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	reply, err := bounded(ctx, o.timeouts.Completion, func(ctx context.Context) (string, error) {
		return o.llm.Complete(ctx, assembly.Messages, o.opts.SystemPrompt, o.opts.Params)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("model completion timed out after %s: %w", o.timeouts.Completion, err)
		}
		return nil, fmt.Errorf("model completion: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, errors.New("model completion: empty response")
	}

	turn, err := o.history.Append(ctx, AppendRequest{
		UserKey:   identity.Name,
		OwnerID:   identity.SubjectID,
		Prompt:    req.Prompt,
		Response:  reply,
		ThreadID:  req.ThreadID,
		NewThread: req.NewThread,
	})
	if err != nil {
		return nil, fmt.Errorf("record turn: %w", err)
	}

	return &domain.ChatResponse{
		Response:      reply,
		SearchResults: assembly.SearchResults,
		Turn:          *turn,
		Retrieval:     assembly.Retrieval,
	}, nil
}
