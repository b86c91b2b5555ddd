package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIdentity_WithDefaults tests anonymous identity defaults
func TestIdentity_WithDefaults(t *testing.T) {
	assert.Equal(t, Identity{Name: "anon", SubjectID: "anonId"}, Identity{}.WithDefaults())
	assert.Equal(t, Identity{Name: "alice", SubjectID: "anonId"}, Identity{Name: "alice", SubjectID: " "}.WithDefaults())
	assert.Equal(t, Identity{Name: "alice", SubjectID: "u-1"}, Identity{Name: "alice", SubjectID: "u-1"}.WithDefaults())
}

// TestNormalizeWhitespace tests whitespace collapsing
func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   \n\t ", ""},
		{"hello", "hello"},
		{"  hello   world \n", "hello world"},
		{"line one\n\nline two\ttabbed", "line one line two tabbed"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeWhitespace(tt.in))
	}
}

// TestDefaultGenerationParams tests completion defaults
func TestDefaultGenerationParams(t *testing.T) {
	p := DefaultGenerationParams()

	assert.Equal(t, 1000, p.MaxTokens)
	assert.Equal(t, []string{"human:", "assistant:", "user:"}, p.StopSequences)
	assert.InDelta(t, 1.0, p.Temperature, 1e-9)
	assert.InDelta(t, 0.8, p.TopP, 1e-9)
}

// TestRetrievalStatus_Degraded tests degraded retrieval detection
func TestRetrievalStatus_Degraded(t *testing.T) {
	assert.True(t, RetrievalFailed.Degraded())
	assert.True(t, RetrievalTimeout.Degraded())
	assert.False(t, RetrievalOK.Degraded())
	assert.False(t, RetrievalEmpty.Degraded())
	assert.False(t, RetrievalDisabled.Degraded())
}
