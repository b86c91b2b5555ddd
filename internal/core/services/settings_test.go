package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/doraemo/internal/core/domain"
)

type stubValidator struct {
	embedErr error
	llmErr   error
	embedded []domain.EmbeddingSettings
	llms     []domain.LLMSettings
}

func (v *stubValidator) ValidateEmbedding(_ context.Context, s *domain.EmbeddingSettings) error {
	v.embedded = append(v.embedded, *s)
	return v.embedErr
}

func (v *stubValidator) ValidateLLM(_ context.Context, s *domain.LLMSettings) error {
	v.llms = append(v.llms, *s)
	return v.llmErr
}

func env(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestSettingsService_Defaults(t *testing.T) {
	svc := NewSettingsService(memory.NewConfigStore(nil), nil).WithEnv(env(nil))

	st, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAppSettings(), *st)
}

func TestSettingsService_ReadsConfig(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		"queue.visibility_timeout": "90s",
		"queue.max_receive":        int64(3),
		"lock.ttl":                 int64(4),
		"embedding.provider":       "ollama",
		"embedding.model":          "nomic-embed-text",
		"llm.provider":             "openai",
		"llm.max_tokens":           int64(256),
		"llm.temperature":          0.2,
		"llm.stop_sequences":       []any{"user:"},
		"chat.top_k":               int64(0),
		"chunker.chunk_size":       int64(500),
		"chunker.overlap":          int64(50),
		"timeouts.retrieval":       "2s",
		"log.level":                "debug",
	})
	svc := NewSettingsService(store, nil).WithEnv(env(map[string]string{EnvOpenAIAPIKey: "sk"}))

	st, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, st.Queue.VisibilityTimeout)
	assert.Equal(t, 3, st.Queue.MaxReceive)
	assert.Equal(t, 4*time.Second, st.Lock.TTL)
	assert.Equal(t, domain.AIProviderOllama, st.Embedding.Provider)
	assert.Empty(t, st.Embedding.APIKey)
	assert.Equal(t, domain.AIProviderOpenAI, st.LLM.Provider)
	assert.Equal(t, "sk", st.LLM.APIKey)
	assert.Equal(t, 256, st.LLM.Params.MaxTokens)
	assert.InDelta(t, 0.2, st.LLM.Params.Temperature, 1e-9)
	assert.InDelta(t, 0.8, st.LLM.Params.TopP, 1e-9)
	assert.Equal(t, []string{"user:"}, st.LLM.Params.StopSequences)
	assert.Equal(t, 0, st.Chat.TopK)
	assert.Equal(t, 10, st.Chat.HistoryLimit)
	assert.Equal(t, 500, st.Chunker.ChunkSize)
	assert.Equal(t, 2*time.Second, st.Timeouts.Retrieval)
	assert.Equal(t, "debug", st.Log.Level)
}

func TestSettingsService_EnvOverrides(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{
		"embedding.provider": "gemini",
		"llm.api_key":        "from-file",
		"lock.redis_url":     "redis://file:6379",
	})
	svc := NewSettingsService(store, nil).WithEnv(env(map[string]string{
		EnvGeminiAPIKey:    "g",
		EnvAnthropicAPIKey: "ignored",
		EnvRedisURL:        "redis://env:6379",
	}))

	st, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "g", st.Embedding.APIKey)
	assert.Equal(t, "from-file", st.LLM.APIKey)
	assert.Equal(t, "redis://env:6379", st.Lock.RedisURL)
}

func TestSettingsService_DisabledProvider(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{"llm.provider": "none"})
	st, err := NewSettingsService(store, nil).WithEnv(env(nil)).Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderNone, st.LLM.Provider)
	assert.Equal(t, "disabled", st.LLM.String())
}

func TestSettingsService_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "bad duration", values: map[string]any{"timeouts.embed": "soon"}},
		{name: "anthropic embeddings", values: map[string]any{"embedding.provider": "anthropic"}},
		{name: "gemini completion", values: map[string]any{"llm.provider": "gemini"}},
		{name: "unknown provider", values: map[string]any{"llm.provider": "bogus"}},
		{name: "overlap too large", values: map[string]any{"chunker.overlap": int64(1000)}},
		{name: "max receive zero", values: map[string]any{"queue.max_receive": int64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSettingsService(memory.NewConfigStore(tt.values), nil).WithEnv(env(nil))
			_, err := svc.Get()
			assert.Error(t, err)
		})
	}
}

func TestSettingsService_Set(t *testing.T) {
	store := memory.NewConfigStore(nil)
	svc := NewSettingsService(store, nil).WithEnv(env(nil))

	require.NoError(t, svc.Set("chat.top_k", "7"))
	require.NoError(t, svc.Set("llm.top_p", "0.5"))
	require.NoError(t, svc.Set("lock.ttl", "30s"))
	require.NoError(t, svc.Set("llm.stop_sequences", "a:, b: ,"))
	require.NoError(t, svc.Set("llm.model", "gpt-x"))

	st, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, 7, st.Chat.TopK)
	assert.InDelta(t, 0.5, st.LLM.Params.TopP, 1e-9)
	assert.Equal(t, 30*time.Second, st.Lock.TTL)
	assert.Equal(t, []string{"a:", "b:"}, st.LLM.Params.StopSequences)
	assert.Equal(t, "gpt-x", st.LLM.Model)
}

func TestSettingsService_SetRejects(t *testing.T) {
	svc := NewSettingsService(memory.NewConfigStore(nil), nil)

	for _, tc := range [][2]string{
		{"nope.key", "x"},
		{"chat.top_k", "many"},
		{"llm.temperature", "hot"},
		{"timeouts.embed", "10"},
	} {
		err := svc.Set(tc[0], tc[1])
		assert.True(t, domain.IsValidation(err), tc[0])
	}
}

func TestSettingsService_Validate(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{"embedding.provider": "ollama"})
	v := &stubValidator{llmErr: errors.New("unreachable")}
	svc := NewSettingsService(store, v).WithEnv(env(map[string]string{EnvAnthropicAPIKey: "k"}))

	err := svc.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
	require.Len(t, v.embedded, 1)
	require.Len(t, v.llms, 1)
	assert.Equal(t, "k", v.llms[0].APIKey)
}

func TestSettingsService_ValidateSkipsDisabled(t *testing.T) {
	store := memory.NewConfigStore(map[string]any{"llm.provider": ""})
	v := &stubValidator{}
	svc := NewSettingsService(store, v).WithEnv(env(nil))

	require.NoError(t, svc.Validate(context.Background()))
	assert.Empty(t, v.embedded)
	assert.Empty(t, v.llms)
}

func TestSettingKeys_Sorted(t *testing.T) {
	keys := SettingKeys()
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "embedding.rate_per_second")
}
