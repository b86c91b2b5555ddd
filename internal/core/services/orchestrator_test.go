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

type chatFixture struct {
	store        *memory.ConversationStore
	llm          *mockLLM
	embedder     *mockEmbedder
	index        *memory.VectorIndex
	orchestrator *ConversationOrchestrator
}

func newChatFixture(t *testing.T, timeouts Timeouts) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:    memory.NewConversationStore(),
		llm:      &mockLLM{reply: "Hi Alice!"},
		embedder: newMockEmbedder(),
		index:    memory.NewVectorIndex(),
	}
	log := NewConversationLog(f.store, nil)
	assembler := NewContextAssembler(log, f.embedder, f.index, timeouts)
	f.orchestrator = NewConversationOrchestrator(assembler, log, f.llm, DefaultChatOptions(), timeouts)
	return f
}

func TestConversationOrchestrator_Chat(t *testing.T) {
	f := newChatFixture(t, Timeouts{})
	ctx := context.Background()

	resp, err := f.orchestrator.Chat(ctx, domain.ChatRequest{
		Identity: domain.Identity{Name: "alice", SubjectID: "sub-1"},
		Prompt:   "  hello   there ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Alice!", resp.Response)
	assert.Equal(t, int64(1), resp.Turn.SequenceNumber)
	assert.Equal(t, "hello there", resp.Turn.PromptText)
	assert.Equal(t, "sub-1", resp.Turn.OwnerID)
	assert.Equal(t, domain.RetrievalEmpty, resp.Retrieval)

	assert.Equal(t, DefaultSystemPrompt, f.llm.system)
	assert.Equal(t, domain.DefaultGenerationParams(), f.llm.params)
	require.Len(t, f.llm.messages, 1)
	assert.Equal(t, "  hello   there \n", f.llm.messages[0].Content)

	_, err = f.orchestrator.Chat(ctx, domain.ChatRequest{Identity: domain.Identity{Name: "alice"}, Prompt: "again"})
	require.NoError(t, err)
	assert.Len(t, f.llm.messages, 3)
}

func TestConversationOrchestrator_DefaultIdentity(t *testing.T) {
	f := newChatFixture(t, Timeouts{})

	resp, err := f.orchestrator.Chat(context.Background(), domain.ChatRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "anon", resp.Turn.UserKey)
	assert.Equal(t, "anonId", resp.Turn.OwnerID)
}

func TestConversationOrchestrator_EmptyPrompt(t *testing.T) {
	f := newChatFixture(t, Timeouts{})

	_, err := f.orchestrator.Chat(context.Background(), domain.ChatRequest{Prompt: "  \n"})
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, f.llm.calls)
}

func TestConversationOrchestrator_ModelFailureRecordsNothing(t *testing.T) {
	f := newChatFixture(t, Timeouts{})
	f.llm.err = errors.New("overloaded")

	_, err := f.orchestrator.Chat(context.Background(), domain.ChatRequest{Identity: domain.Identity{Name: "alice"}, Prompt: "hi"})
	assert.ErrorContains(t, err, "overloaded")

	turns, err := f.store.Latest(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConversationOrchestrator_CompletionTimeout(t *testing.T) {
	f := newChatFixture(t, Timeouts{Completion: 20 * time.Millisecond})
	f.llm.delay = time.Second

	_, err := f.orchestrator.Chat(context.Background(), domain.ChatRequest{Identity: domain.Identity{Name: "alice"}, Prompt: "hi"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	turns, err := f.store.Latest(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConversationOrchestrator_EmptyReply(t *testing.T) {
	f := newChatFixture(t, Timeouts{})
	f.llm.reply = "   "

	_, err := f.orchestrator.Chat(context.Background(), domain.ChatRequest{Prompt: "hi"})
	assert.ErrorContains(t, err, "empty response")
}

func TestConversationOrchestrator_NoModel(t *testing.T) {
	log := NewConversationLog(memory.NewConversationStore(), nil)
	o := NewConversationOrchestrator(NewContextAssembler(log, nil, nil, Timeouts{}), log, nil, ChatOptions{}, Timeouts{})

	_, err := o.Chat(context.Background(), domain.ChatRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

// TestEndToEnd_UploadIngestChat walks a document from upload to a grounded answer.
func TestEndToEnd_UploadIngestChat(t *testing.T) {
	ctx := context.Background()
	blobs := memory.NewBlobStore()
	queue := memory.NewQueue(time.Minute, 3)
	index := memory.NewVectorIndex()
	embedder := newMockEmbedder()
	tracker := NewDocumentStatusTracker(memory.NewDocumentStatusStore())
	pipeline := NewIngestionPipeline(blobs, mockExtractors{}, paragraphChunker{}, embedder, index, tracker, Timeouts{})
	upload := NewUploadService(blobs, queue, tracker)
	worker := NewWorker(queue, NewEventProcessor(pipeline), 10, time.Millisecond)

	embedder.vectors["The wifi password is hunter2."] = []float32{1, 0, 0}
	embedder.vectors["Parking is behind the building."] = []float32{0, 1, 0}
	embedder.vectors["what is the wifi password?"] = []float32{0.9, 0.1, 0}

	require.NoError(t, upload.Upload(ctx, "alice/office.txt",
		[]byte("The wifi password is hunter2.\n\nParking is behind the building."), "text/plain"))
	status, err := tracker.GetStatus(ctx, "alice/office.txt")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status)

	n, result, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, result.Processed)

	status, err = tracker.GetStatus(ctx, "alice/office.txt")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, status)

	llm := &mockLLM{reply: "It's hunter2."}
	log := NewConversationLog(memory.NewConversationStore(), nil)
	orchestrator := NewConversationOrchestrator(NewContextAssembler(log, embedder, index, Timeouts{}), log, llm, ChatOptions{TopK: 1}, Timeouts{})

	resp, err := orchestrator.Chat(ctx, domain.ChatRequest{
		Identity: domain.Identity{Name: "alice", SubjectID: "a-1"},
		Prompt:   "what is the wifi password?",
	})
	require.NoError(t, err)
	assert.Equal(t, "It's hunter2.", resp.Response)
	assert.Equal(t, domain.RetrievalOK, resp.Retrieval)
	require.Len(t, resp.SearchResults, 1)
	assert.Equal(t, "The wifi password is hunter2.", resp.SearchResults[0].Text)
	assert.Contains(t, llm.messages[len(llm.messages)-1].Content, "[1] office.txt\nThe wifi password is hunter2.")

	other, err := orchestrator.Chat(ctx, domain.ChatRequest{Identity: domain.Identity{Name: "bob"}, Prompt: "what is the wifi password?"})
	require.NoError(t, err)
	assert.Empty(t, other.SearchResults, "bob never sees alice's documents")
}
