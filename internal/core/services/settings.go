package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Environment overrides.
//
//nolint:gosec // G101: variable names, not credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvRedisURL        = "DORAEMO_REDIS_URL"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindDuration
	kindStrings
)

// settingKeys lists every key the config file may hold.
//
//nolint:gosec // G101: config key names, not credentials.
var settingKeys = map[string]valueKind{
	"storage.data_dir":          kindString,
	"blob.root":                 kindString,
	"queue.dir":                 kindString,
	"queue.visibility_timeout":  kindDuration,
	"queue.max_receive":         kindInt,
	"queue.batch_size":          kindInt,
	"queue.poll_interval":       kindDuration,
	"lock.redis_url":            kindString,
	"lock.ttl":                  kindDuration,
	"embedding.provider":        kindString,
	"embedding.model":           kindString,
	"embedding.base_url":        kindString,
	"embedding.api_key":         kindString,
	"embedding.dimensions":      kindInt,
	"embedding.rate_per_second": kindFloat,
	"embedding.burst":           kindInt,
	"llm.provider":              kindString,
	"llm.model":                 kindString,
	"llm.base_url":              kindString,
	"llm.api_key":               kindString,
	"llm.max_tokens":            kindInt,
	"llm.temperature":           kindFloat,
	"llm.top_p":                 kindFloat,
	"llm.stop_sequences":        kindStrings,
	"llm.system_prompt":         kindString,
	"chat.history_limit":        kindInt,
	"chat.top_k":                kindInt,
	"chunker.chunk_size":        kindInt,
	"chunker.overlap":           kindInt,
	"timeouts.embed":            kindDuration,
	"timeouts.completion":       kindDuration,
	"timeouts.blob":             kindDuration,
	"timeouts.query":            kindDuration,
	"timeouts.retrieval":        kindDuration,
	"log.level":                 kindString,
	"log.format":                kindString,
}

// SettingKeys returns every recognised key in sorted order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService builds typed settings from the config store.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// NewSettingsService creates a settings service reading the process environment.
// The validator may be nil, which disables Validate's provider checks.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// WithEnv replaces the environment lookup.
func (s *SettingsService) WithEnv(getenv func(string) string) *SettingsService {
	s.getenv = getenv
	return s
}

// Get returns defaults overlaid with the config file and environment.
// Malformed durations are reported; other mistyped values fall back to defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	st := domain.DefaultAppSettings()
	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		d, err := s.getDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	// 1. Storage and queue
	st.Storage.DataDir = s.configStore.GetString("storage.data_dir")
	st.Storage.BlobRoot = s.configStore.GetString("blob.root")
	st.Storage.QueueDir = s.configStore.GetString("queue.dir")
	st.Queue.VisibilityTimeout = dur("queue.visibility_timeout", st.Queue.VisibilityTimeout)
	st.Queue.MaxReceive = s.getInt("queue.max_receive", st.Queue.MaxReceive)
	st.Queue.BatchSize = s.getInt("queue.batch_size", st.Queue.BatchSize)
	st.Queue.PollInterval = dur("queue.poll_interval", st.Queue.PollInterval)
	st.Lock.RedisURL = s.configStore.GetString("lock.redis_url")
	st.Lock.TTL = dur("lock.ttl", st.Lock.TTL)

	// 2. Providers
	st.Embedding.Provider = s.getProvider("embedding.provider", st.Embedding.Provider)
	st.Embedding.Model = s.configStore.GetString("embedding.model")
	st.Embedding.BaseURL = s.configStore.GetString("embedding.base_url")
	st.Embedding.APIKey = s.configStore.GetString("embedding.api_key")
	st.Embedding.Dimensions = s.getInt("embedding.dimensions", 0)
	st.Embedding.RatePerSecond = s.getFloat("embedding.rate_per_second", st.Embedding.RatePerSecond)
	st.Embedding.Burst = s.getInt("embedding.burst", st.Embedding.Burst)

	st.LLM.Provider = s.getProvider("llm.provider", st.LLM.Provider)
	st.LLM.Model = s.configStore.GetString("llm.model")
	st.LLM.BaseURL = s.configStore.GetString("llm.base_url")
	st.LLM.APIKey = s.configStore.GetString("llm.api_key")
	st.LLM.SystemPrompt = s.configStore.GetString("llm.system_prompt")
	st.LLM.Params.MaxTokens = s.getInt("llm.max_tokens", st.LLM.Params.MaxTokens)
	st.LLM.Params.Temperature = s.getFloat("llm.temperature", st.LLM.Params.Temperature)
	st.LLM.Params.TopP = s.getFloat("llm.top_p", st.LLM.Params.TopP)
	if _, ok := s.configStore.Get("llm.stop_sequences"); ok {
		st.LLM.Params.StopSequences = s.configStore.GetStringSlice("llm.stop_sequences")
	}

	// 3. Chat, chunking and timeouts
	st.Chat.HistoryLimit = s.getInt("chat.history_limit", st.Chat.HistoryLimit)
	st.Chat.TopK = s.getInt("chat.top_k", st.Chat.TopK)
	st.Chunker.ChunkSize = s.getInt("chunker.chunk_size", st.Chunker.ChunkSize)
	st.Chunker.Overlap = s.getInt("chunker.overlap", st.Chunker.Overlap)
	st.Timeouts.Embed = dur("timeouts.embed", st.Timeouts.Embed)
	st.Timeouts.Completion = dur("timeouts.completion", st.Timeouts.Completion)
	st.Timeouts.Blob = dur("timeouts.blob", st.Timeouts.Blob)
	st.Timeouts.Query = dur("timeouts.query", st.Timeouts.Query)
	st.Timeouts.Retrieval = dur("timeouts.retrieval", st.Timeouts.Retrieval)
	if v := s.configStore.GetString("log.level"); v != "" {
		st.Log.Level = v
	}
	if v := s.configStore.GetString("log.format"); v != "" {
		st.Log.Format = v
	}

	// 4. Environment
	s.applyEnv(&st)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// applyEnv fills API keys the config file leaves empty and lets the Redis
// URL be set per deployment.
func (s *SettingsService) applyEnv(st *domain.AppSettings) {
	keyFor := func(p domain.AIProvider) string {
		switch p {
		case domain.AIProviderAnthropic:
			return s.getenv(EnvAnthropicAPIKey)
		case domain.AIProviderOpenAI:
			return s.getenv(EnvOpenAIAPIKey)
		case domain.AIProviderGemini:
			return s.getenv(EnvGeminiAPIKey)
		default:
			return ""
		}
	}
	if st.Embedding.APIKey == "" {
		st.Embedding.APIKey = keyFor(st.Embedding.Provider)
	}
	if st.LLM.APIKey == "" {
		st.LLM.APIKey = keyFor(st.LLM.Provider)
	}
	if url := s.getenv(EnvRedisURL); url != "" {
		st.Lock.RedisURL = url
	}
}

// Set parses value according to key's type, stores it and saves the file.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKeys[key]
	if !ok {
		return domain.NewValidationError(domain.ErrInvalidInput, "unknown setting %q", key)
	}

	var parsed any
	switch kind {
	case kindString:
		parsed = value
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return domain.NewValidationError(domain.ErrInvalidInput, "%s: %q is not an integer", key, value)
		}
		parsed = int64(n)
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return domain.NewValidationError(domain.ErrInvalidInput, "%s: %q is not a number", key, value)
		}
		parsed = f
	case kindDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return domain.NewValidationError(domain.ErrInvalidInput, "%s: %q is not a duration", key, value)
		}
		parsed = value
	case kindStrings:
		parts := strings.Split(value, ",")
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		parsed = items
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := s.configStore.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// Validate pings each configured provider.
func (s *SettingsService) Validate(ctx context.Context) error {
	st, err := s.Get()
	if err != nil {
		return err
	}
	if s.aiValidator == nil {
		return nil
	}

	var errs []error
	if st.Embedding.Provider != domain.AIProviderNone {
		if err := s.aiValidator.ValidateEmbedding(ctx, &st.Embedding); err != nil {
			errs = append(errs, fmt.Errorf("embedding %s: %w", st.Embedding, err))
		}
	}
	if st.LLM.Provider != domain.AIProviderNone {
		if err := s.aiValidator.ValidateLLM(ctx, &st.LLM); err != nil {
			errs = append(errs, fmt.Errorf("llm %s: %w", st.LLM, err))
		}
	}
	return errors.Join(errs...)
}

// Keys lists the settable keys, sorted.
func (s *SettingsService) Keys() []string {
	return SettingKeys()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, ok := s.configStore.Get(key); !ok {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, ok := s.configStore.Get(key); !ok {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

// getDuration accepts a Go duration string or a whole number of seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal, nil
	}
	if str, isStr := raw.(string); isStr {
		d, err := time.ParseDuration(str)
		if err != nil {
			return defaultVal, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}
	if secs := s.configStore.GetInt(key); secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	return defaultVal, fmt.Errorf("%s: expected a duration", key)
}

// getProvider keeps the default when the key is absent. "none" or an empty
// string disables the service.
func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	raw, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	val, _ := raw.(string)
	val = strings.ToLower(strings.TrimSpace(val))
	if val == "" || val == "none" {
		return domain.AIProviderNone
	}
	return domain.AIProvider(val)
}
