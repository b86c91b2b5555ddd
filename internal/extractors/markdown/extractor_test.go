package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

func TestExtract_TitleFromHeading(t *testing.T) {
	doc, err := New().Extract(context.Background(), driven.ExtractInput{
		Key:      "alice/readme.md",
		MIMEType: "text/markdown",
		Data:     []byte("# Garden Notes\n\nWater the **roses** daily.\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Garden Notes", doc.Title)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "Garden Notes\n\nWater the roses daily.", doc.Pages[0].Text)
}

func TestExtract_TitleFromFilename(t *testing.T) {
	doc, err := New().Extract(context.Background(), driven.ExtractInput{
		Key:  "alice/docs/release_notes.md",
		Data: []byte("Just text."),
	})
	require.NoError(t, err)
	assert.Equal(t, "release notes", doc.Title)
}

func TestExtract_NilData(t *testing.T) {
	_, err := New().Extract(context.Background(), driven.ExtractInput{Key: "alice/a.md"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"link", "See [the docs](http://x.io) now", "See the docs now"},
		{"image alt kept", "![a cat](cat.png)", "a cat"},
		{"inline code", "Run `make test` first", "Run make test first"},
		{"emphasis", "a *b* and __c__", "a b and c"},
		{"snake case untouched", "call load_config here", "call load_config here"},
		{"list markers", "- one\n- two", "one\ntwo"},
		{"numbered list", "1. one\n2) two", "one\ntwo"},
		{"blockquote", "> quoted", "quoted"},
		{"code fence", "```go\nx := 1\n```", "x := 1"},
		{"front matter", "---\ntitle: x\n---\nBody", "Body"},
		{"horizontal rule", "a\n\n---\n\nb", "a\n\nb"},
		{"html tags", "a <br/> b", "a  b"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, stripMarkdown(tc.input))
		})
	}
}
