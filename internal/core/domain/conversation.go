package domain

import (
	"strings"
	"time"
)

// Default identity values used when a chat request omits them.
const (
	DefaultIdentityName      = "anon"
	DefaultIdentitySubjectID = "anonId"
)

// Identity names the caller of a chat request.
type Identity struct {
	// Name keys the user's conversation partition and vector index.
	Name string

	// SubjectID is recorded as the owner of persisted turns.
	SubjectID string
}

// WithDefaults fills missing fields with the anonymous identity.
func (i Identity) WithDefaults() Identity {
	if strings.TrimSpace(i.Name) == "" {
		i.Name = DefaultIdentityName
	}
	if strings.TrimSpace(i.SubjectID) == "" {
		i.SubjectID = DefaultIdentitySubjectID
	}
	return i
}

// ConversationTurn is one persisted prompt/response exchange.
// Turns are immutable once written.
type ConversationTurn struct {
	// UserKey is the conversation partition.
	UserKey string

	// SequenceNumber orders turns per user, starting at 1.
	SequenceNumber int64

	// PromptText is the whitespace-normalised user prompt.
	PromptText string

	// ResponseText is the whitespace-normalised model reply.
	ResponseText string

	// ThreadID groups turns into a conversation thread.
	ThreadID string

	// OwnerID is the subject that produced the turn.
	OwnerID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role is the author of a chat message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a model conversation.
type Message struct {
	Role    Role
	Content string
}

// GenerationParams controls a model completion.
type GenerationParams struct {
	MaxTokens     int
	StopSequences []string
	Temperature   float64
	TopP          float64
}

// DefaultGenerationParams returns the completion defaults.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		MaxTokens:     1000,
		StopSequences: []string{"human:", "assistant:", "user:"},
		Temperature:   1.0,
		TopP:          0.8,
	}
}

// ChatRequest is an inbound chat call.
type ChatRequest struct {
	Identity Identity
	Prompt   string

	// ThreadID continues an existing thread when set.
	ThreadID string

	// NewThread starts a fresh thread, ignoring ThreadID.
	NewThread bool
}

// ChatResponse is the result of a chat call.
type ChatResponse struct {
	// Response is the model reply as returned by the model.
	Response string

	// SearchResults are the chunks used as context, if any.
	SearchResults []SearchResult

	// Turn is the persisted conversation turn.
	Turn ConversationTurn

	// Retrieval records which retrieval path ran.
	Retrieval RetrievalStatus
}

// NormalizeWhitespace collapses every run of whitespace to a single space
// and trims both ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
