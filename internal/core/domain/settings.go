package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or completions.
type AIProvider string

// Available AI providers.
const (
	// AIProviderNone disables the service.
	AIProviderNone AIProvider = ""

	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI API or a compatible server.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is the Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// SupportsEmbeddings reports whether the provider offers an embedding API.
func (p AIProvider) SupportsEmbeddings() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI || p == AIProviderGemini
}

// SupportsCompletion reports whether the provider offers a chat API.
func (p AIProvider) SupportsCompletion() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI || p == AIProviderAnthropic
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderNone:
		return "Disabled"
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider AIProvider
	Model    string
	BaseURL  string
	APIKey   string

	// Dimensions overrides the model's vector size where the provider allows it.
	Dimensions int

	// RatePerSecond and Burst bound requests to the provider. Zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || !e.Provider.SupportsEmbeddings() {
		return false
	}
	return !e.Provider.RequiresAPIKey() || e.APIKey != ""
}

// LLMSettings holds completion provider configuration.
type LLMSettings struct {
	Provider AIProvider
	Model    string
	BaseURL  string
	APIKey   string

	Params GenerationParams

	// SystemPrompt overrides the prompt file when set.
	SystemPrompt string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || !l.Provider.SupportsCompletion() {
		return false
	}
	return !l.Provider.RequiresAPIKey() || l.APIKey != ""
}

// StorageSettings locates persistent state.
type StorageSettings struct {
	// DataDir holds the SQLite database.
	DataDir string

	// BlobRoot holds uploaded documents.
	BlobRoot string

	// QueueDir holds the Badger queue.
	QueueDir string
}

// QueueSettings controls redelivery.
type QueueSettings struct {
	VisibilityTimeout time.Duration
	MaxReceive        int
	BatchSize         int
	PollInterval      time.Duration
}

// LockSettings configures the distributed append lock.
// An empty RedisURL uses the in-process lock.
type LockSettings struct {
	RedisURL string
	TTL      time.Duration
}

// ChatSettings bounds the context sent with each prompt.
type ChatSettings struct {
	HistoryLimit int
	TopK         int
}

// ChunkerSettings sizes ingested chunks, in characters.
type ChunkerSettings struct {
	ChunkSize int
	Overlap   int
}

// TimeoutSettings bounds external calls.
type TimeoutSettings struct {
	Embed      time.Duration
	Completion time.Duration
	Blob       time.Duration
	Query      time.Duration
	Retrieval  time.Duration
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string
	Format string
}

// AppSettings is the full application configuration.
type AppSettings struct {
	Storage   StorageSettings
	Queue     QueueSettings
	Lock      LockSettings
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Chat      ChatSettings
	Chunker   ChunkerSettings
	Timeouts  TimeoutSettings
	Log       LogSettings
}

// DefaultAppSettings returns the settings used when nothing is configured.
// Storage paths are left empty; adapters resolve them under ~/.doraemo.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Queue: QueueSettings{
			VisibilityTimeout: 5 * time.Minute,
			MaxReceive:        5,
			BatchSize:         10,
			PollInterval:      time.Second,
		},
		Lock: LockSettings{TTL: 10 * time.Second},
		Embedding: EmbeddingSettings{
			RatePerSecond: 5,
			Burst:         10,
		},
		LLM: LLMSettings{
			Provider: AIProviderAnthropic,
			Params:   DefaultGenerationParams(),
		},
		Chat:    ChatSettings{HistoryLimit: 10, TopK: 4},
		Chunker: ChunkerSettings{ChunkSize: 1000, Overlap: 200},
		Timeouts: TimeoutSettings{
			Embed:      30 * time.Second,
			Completion: 120 * time.Second,
			Blob:       30 * time.Second,
			Query:      10 * time.Second,
			Retrieval:  15 * time.Second,
		},
		Log: LogSettings{Level: "info", Format: "console"},
	}
}

// Validate reports settings that cannot work together.
func (s AppSettings) Validate() error {
	if s.Embedding.Provider != AIProviderNone && !s.Embedding.Provider.SupportsEmbeddings() {
		return NewValidationError(ErrInvalidInput, "embedding provider %q does not offer embeddings", s.Embedding.Provider)
	}
	if s.LLM.Provider != AIProviderNone && !s.LLM.Provider.SupportsCompletion() {
		return NewValidationError(ErrInvalidInput, "llm provider %q does not offer completions", s.LLM.Provider)
	}
	if s.Chunker.ChunkSize <= 0 {
		return NewValidationError(ErrInvalidInput, "chunker.chunk_size must be positive")
	}
	if s.Chunker.Overlap < 0 || s.Chunker.Overlap >= s.Chunker.ChunkSize {
		return NewValidationError(ErrInvalidInput, "chunker.overlap must be in [0, %d)", s.Chunker.ChunkSize)
	}
	if s.Queue.MaxReceive < 1 {
		return NewValidationError(ErrInvalidInput, "queue.max_receive must be at least 1")
	}
	if s.Chat.HistoryLimit < 0 || s.Chat.TopK < 0 {
		return NewValidationError(ErrInvalidInput, "chat limits must not be negative")
	}
	return nil
}

// String summarises a provider choice for status output.
func (e EmbeddingSettings) String() string {
	if e.Provider == AIProviderNone {
		return "disabled"
	}
	return fmt.Sprintf("%s/%s", e.Provider, e.Model)
}

// String summarises a provider choice for status output.
func (l LLMSettings) String() string {
	if l.Provider == AIProviderNone {
		return "disabled"
	}
	return fmt.Sprintf("%s/%s", l.Provider, l.Model)
}
