package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// --- Mock implementations shared by the service tests ---

// mockEmbedder implements driven.EmbeddingService with deterministic vectors.
type mockEmbedder struct {
	mu        sync.Mutex
	model     string
	vectors   map[string][]float32
	err       error
	failBatch int
	delay     time.Duration
	calls     int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{model: "mock-embed", vectors: make(map[string][]float32)}
}

func (m *mockEmbedder) vector(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{float32(sum%97) + 1, float32(sum%89) + 1, float32(sum%83) + 1}
}

func (m *mockEmbedder) wait(ctx context.Context) error {
	if m.delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.delay):
		return nil
	}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.failBatch > 0 && m.calls >= m.failBatch {
		return nil, errors.New("embedding backend unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return 3 }
func (m *mockEmbedder) ModelName() string { return m.model }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error { return nil }

// mockLLM implements driven.LLMService and records its last call.
type mockLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	delay    time.Duration
	messages []domain.Message
	system   string
	params   domain.GenerationParams
	calls    int
}

func (m *mockLLM) Complete(ctx context.Context, messages []domain.Message, system string, params domain.GenerationParams) (string, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.messages = append([]domain.Message(nil), messages...)
	m.system = system
	m.params = params
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockLLM) ModelName() string { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error { return nil }

// mockExtractors implements driven.ExtractorRegistry for text documents.
type mockExtractors struct{}

func (mockExtractors) Register(driven.Extractor) {}

func (mockExtractors) DetectType(key domain.DocumentKey, contentType string, _ []byte) string {
	if contentType != "" {
		return contentType
	}
	if strings.HasSuffix(string(key), ".txt") {
		return "text/plain"
	}
	return "application/octet-stream"
}

func (mockExtractors) Extract(_ context.Context, in driven.ExtractInput) (*domain.ExtractedDocument, error) {
	if in.MIMEType != "text/plain" {
		return nil, domain.ErrUnsupportedType
	}
	return &domain.ExtractedDocument{
		Title:    in.Key.Filename(),
		MIMEType: in.MIMEType,
		Pages:    []domain.Page{{Number: 1, Text: string(in.Data)}},
	}, nil
}

func (mockExtractors) SupportedMIMETypes() []string { return []string{"text/plain"} }

// paragraphChunker implements driven.Chunker by splitting on blank lines.
type paragraphChunker struct{}

func (paragraphChunker) Name() string { return "paragraph" }

func (paragraphChunker) Chunk(_ context.Context, key domain.DocumentKey, doc *domain.ExtractedDocument) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, page := range doc.Pages {
		for _, para := range strings.Split(page.Text, "\n\n") {
			chunks = append(chunks, domain.Chunk{
				Text:     para,
				Metadata: domain.ChunkMetadata{Filename: key.Filename()},
			})
		}
	}
	return chunks, nil
}

// failingConversationStore wraps a store and fails or conflicts on demand.
type failingConversationStore struct {
	driven.ConversationStore
	conflicts int
	latestErr error
	inserts   int
}

func (s *failingConversationStore) InsertTurn(ctx context.Context, turn domain.ConversationTurn) error {
	s.inserts++
	if s.conflicts < 0 || s.inserts <= s.conflicts {
		return domain.ErrSequenceConflict
	}
	return s.ConversationStore.InsertTurn(ctx, turn)
}

func (s *failingConversationStore) Latest(ctx context.Context, userKey string, limit int) ([]domain.ConversationTurn, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return s.ConversationStore.Latest(ctx, userKey, limit)
}

// failingStatusStore fails every write.
type failingStatusStore struct {
	driven.DocumentStatusStore
}

func (failingStatusStore) SaveRecord(context.Context, domain.DocumentRecord) error {
	return errors.New("status table unavailable")
}

func (failingStatusStore) DeleteRecord(context.Context, domain.DocumentKey) error {
	return errors.New("status table unavailable")
}

// failingExtractors accepts every type and fails extraction with err.
type failingExtractors struct {
	mockExtractors
	err error
}

func (f failingExtractors) Extract(context.Context, driven.ExtractInput) (*domain.ExtractedDocument, error) {
	return nil, f.err
}

// vanishingBlobStore reports blobs as present but loses them before download.
type vanishingBlobStore struct {
	driven.BlobStore
}

func (vanishingBlobStore) Get(context.Context, domain.DocumentKey) ([]byte, *driven.BlobInfo, error) {
	return nil, nil, domain.ErrNotFound
}
