// Package chunker provides a recursive, overlapping text chunker.
package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// DefaultSeparators are tried in order; "" splits between characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Processor splits page text into chunks of at most chunkSize characters,
// preferring paragraph, then line, then word boundaries.
// Consecutive chunks share up to overlap characters.
type Processor struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithSeparators replaces the separator hierarchy.
func WithSeparators(seps ...string) Option {
	return func(p *Processor) {
		if len(seps) > 0 {
			p.separators = seps
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Chunk splits each page separately so no chunk spans a page boundary.
func (p *Processor) Chunk(ctx context.Context, key domain.DocumentKey, doc *domain.ExtractedDocument) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, nil
	}

	var chunks []domain.Chunk
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var pageNum *int
		if doc.Paginated {
			n := page.Number
			pageNum = &n
		}
		for _, text := range p.Split(page.Text) {
			chunks = append(chunks, domain.Chunk{
				SourceDocumentKey: key,
				ChunkIndex:        len(chunks),
				Text:              text,
				Metadata: domain.ChunkMetadata{
					Filename: key.Filename(),
					Page:     pageNum,
				},
			})
		}
	}
	return chunks, nil
}

// Split returns the non-blank chunks of text.
func (p *Processor) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	for _, c := range p.split(text, p.separators) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (p *Processor) split(text string, separators []string) []string {
	// Pick the first separator present in the text.
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text)
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, small []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if runeLen(piece) <= p.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, p.merge(small, sep)...)
			small = nil
		}
		if len(rest) > 0 {
			out = append(out, p.split(piece, rest)...)
		} else {
			out = append(out, piece)
		}
	}
	if len(small) > 0 {
		out = append(out, p.merge(small, sep)...)
	}
	return out
}

// merge packs pieces into windows of at most chunkSize characters, carrying
// up to overlap characters of trailing pieces into the next window.
func (p *Processor) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var out, window []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)
		joined := 0
		if len(window) > 0 {
			joined = sepLen
		}
		if total+n+joined > p.chunkSize && len(window) > 0 {
			out = append(out, strings.Join(window, sep))
			for len(window) > 0 && (total > p.overlap || total+n+sepLen > p.chunkSize) {
				total -= runeLen(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, piece)
		total += n
	}
	if len(window) > 0 {
		out = append(out, strings.Join(window, sep))
	}
	return out
}

// splitRunes cuts text into single characters; merge rebuilds the windows.
func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
