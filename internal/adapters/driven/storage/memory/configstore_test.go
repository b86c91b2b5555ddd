package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigStore_Seeded(t *testing.T) {
	seed := map[string]any{"llm.model": "claude"}
	store := NewConfigStore(seed)

	seed["llm.model"] = "mutated"
	assert.Equal(t, "claude", store.GetString("llm.model"))
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"chat.top_k":          int64(7),
		"chat.history_limit":  "12",
		"llm.temperature":     0.5,
		"llm.max_tokens":      float64(800),
		"embedding.enabled":   true,
		"llm.stop_sequences":  []any{"human:", 3, "user:"},
		"chunker.chunk_size":  "not a number",
		"embedding.dimension": int64(1536),
	})

	assert.Equal(t, 7, store.GetInt("chat.top_k"))
	assert.Equal(t, 12, store.GetInt("chat.history_limit"))
	assert.Equal(t, 800, store.GetInt("llm.max_tokens"))
	assert.Equal(t, 0, store.GetInt("chunker.chunk_size"))
	assert.InDelta(t, 0.5, store.GetFloat("llm.temperature"), 1e-9)
	assert.InDelta(t, 1536, store.GetFloat("embedding.dimension"), 1e-9)
	assert.True(t, store.GetBool("embedding.enabled"))
	assert.Equal(t, []string{"human:", "user:"}, store.GetStringSlice("llm.stop_sequences"))
}

func TestConfigStore_MissingKeys(t *testing.T) {
	store := NewConfigStore(nil)

	_, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, store.GetString("missing"))
	assert.Zero(t, store.GetInt("missing"))
	assert.Zero(t, store.GetFloat("missing"))
	assert.False(t, store.GetBool("missing"))
	assert.Nil(t, store.GetStringSlice("missing"))
	assert.Equal(t, ":memory:", store.Path())
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
}

func TestConfigStore_ConcurrentSet(t *testing.T) {
	store := NewConfigStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, store.Set("chat.top_k", n))
			_ = store.GetInt("chat.top_k")
		}(i)
	}
	wg.Wait()

	_, ok := store.Get("chat.top_k")
	assert.True(t, ok)
}
