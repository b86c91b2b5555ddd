package cli

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

type mockChatService struct {
	requests []domain.ChatRequest
	err      error
	results  []domain.SearchResult
	turns    int64
}

func (m *mockChatService) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	m.turns++
	thread := req.ThreadID
	if thread == "" || req.NewThread {
		thread = fmt.Sprintf("thread-%d", m.turns)
	}
	retrieval := domain.RetrievalEmpty
	if len(m.results) > 0 {
		retrieval = domain.RetrievalOK
	}
	return &domain.ChatResponse{
		Response:      "echo: " + req.Prompt,
		SearchResults: m.results,
		Turn:          domain.ConversationTurn{SequenceNumber: m.turns, ThreadID: thread},
		Retrieval:     retrieval,
	}, nil
}

type mockHistoryService struct {
	turns  []domain.ConversationTurn
	thread string
	user   string
}

func (m *mockHistoryService) Latest(_ context.Context, userKey string, limit int) ([]domain.ConversationTurn, error) {
	m.user = userKey
	if limit < len(m.turns) {
		return m.turns[:limit], nil
	}
	return m.turns, nil
}

func (m *mockHistoryService) Thread(_ context.Context, userKey, threadID string, _ int) ([]domain.ConversationTurn, error) {
	m.user, m.thread = userKey, threadID
	return m.turns, nil
}

type mockIngestionService struct {
	results map[domain.DocumentKey]*domain.IngestResult
	errs    map[domain.DocumentKey]error
	seen    []domain.DocumentKey
	removed []domain.DocumentKey
}

func (m *mockIngestionService) Ingest(_ context.Context, key domain.DocumentKey) (*domain.IngestResult, error) {
	m.seen = append(m.seen, key)
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	if res := m.results[key]; res != nil {
		return res, nil
	}
	return &domain.IngestResult{Chunks: 3}, nil
}

func (m *mockIngestionService) Remove(_ context.Context, key domain.DocumentKey) error {
	if err := m.errs[key]; err != nil {
		return err
	}
	m.removed = append(m.removed, key)
	return nil
}

type mockDocumentService struct {
	records map[domain.DocumentKey]domain.DocumentRecord
}

func (m *mockDocumentService) GetStatus(_ context.Context, key domain.DocumentKey) (domain.DocumentStatus, error) {
	if r, ok := m.records[key]; ok {
		return r.Status, nil
	}
	return domain.StatusUnknown, nil
}

func (m *mockDocumentService) List(_ context.Context, userKey string) ([]domain.DocumentRecord, error) {
	var out []domain.DocumentRecord
	for _, r := range m.records {
		if r.DocumentKey.UserKey() == userKey {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentKey < out[j].DocumentKey })
	return out, nil
}

type mockSearchService struct {
	results []domain.SearchResult
	err     error
	user    string
	topK    int
}

func (m *mockSearchService) Search(_ context.Context, userKey, _ string, topK int) ([]domain.SearchResult, error) {
	m.user, m.topK = userKey, topK
	return m.results, m.err
}

type upload struct {
	key         domain.DocumentKey
	data        string
	contentType string
}

type mockUploadService struct {
	uploads []upload
}

func (m *mockUploadService) Upload(_ context.Context, key domain.DocumentKey, data []byte, contentType string) error {
	m.uploads = append(m.uploads, upload{key: key, data: string(data), contentType: contentType})
	return nil
}

func (m *mockUploadService) Announce(_ context.Context, key domain.DocumentKey) error {
	m.uploads = append(m.uploads, upload{key: key})
	return nil
}

type mockWorkerService struct {
	received int
	result   domain.EventBatchResult
	letters  []domain.DeadLetter
	runs     int
}

func (m *mockWorkerService) Run(_ context.Context) error {
	m.runs++
	return nil
}

func (m *mockWorkerService) RunOnce(_ context.Context) (int, domain.EventBatchResult, error) {
	return m.received, m.result, nil
}

func (m *mockWorkerService) DeadLetters(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit < len(m.letters) {
		return m.letters[:limit], nil
	}
	return m.letters, nil
}

type mockSettingsService struct {
	settings domain.AppSettings
	set      map[string]string
	validErr error
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if key == "nope" {
		return domain.NewValidationError(domain.ErrInvalidInput, "unknown setting %q", key)
	}
	if m.set == nil {
		m.set = make(map[string]string)
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Validate(context.Context) error {
	return m.validErr
}

func (m *mockSettingsService) Keys() []string {
	return []string{"chat.top_k", "llm.api_key", "llm.provider"}
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	chat      *mockChatService
	history   *mockHistoryService
	ingestion *mockIngestionService
	documents *mockDocumentService
	search    *mockSearchService
	upload    *mockUploadService
	worker    *mockWorkerService
	settings  *mockSettingsService
}

// setupTestServices installs mocks for every port and returns a cleanup
// that restores nil services and default flag values.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()
	updated := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ts := &testServices{
		chat: &mockChatService{},
		history: &mockHistoryService{turns: []domain.ConversationTurn{
			{UserKey: "alice", SequenceNumber: 2, PromptText: "and Spain?", ResponseText: "Madrid.", ThreadID: "t-1", CreatedAt: updated},
			{UserKey: "alice", SequenceNumber: 1, PromptText: "capital of France?", ResponseText: "Paris.", ThreadID: "t-1", CreatedAt: updated},
		}},
		ingestion: &mockIngestionService{},
		documents: &mockDocumentService{records: map[domain.DocumentKey]domain.DocumentRecord{
			"alice/report.pdf": {DocumentKey: "alice/report.pdf", Status: domain.StatusProcessed, UpdatedAt: updated},
			"alice/notes.md":   {DocumentKey: "alice/notes.md", Status: domain.StatusError, UpdatedAt: updated},
			"bob/todo.txt":     {DocumentKey: "bob/todo.txt", Status: domain.StatusPending},
		}},
		search:   &mockSearchService{},
		upload:   &mockUploadService{},
		worker:   &mockWorkerService{},
		settings: &mockSettingsService{settings: domain.DefaultAppSettings()},
	}
	Configure(&Services{
		Chat:      ts.chat,
		History:   ts.history,
		Ingestion: ts.ingestion,
		Documents: ts.documents,
		Search:    ts.search,
		Upload:    ts.upload,
		Worker:    ts.worker,
	})
	SetSettingsService(ts.settings)

	t.Cleanup(func() {
		Configure(nil)
		SetSettingsService(nil)
		resetFlags()
	})
	return ts
}

// resetFlags restores flag variables that persist between Execute calls.
func resetFlags() {
	verbose, userName = false, ""
	chatJSON, chatThread, chatNewThread, chatSubject = false, "", false, ""
	historyLimit, historyThread, historyJSON = 10, "", false
	uploadAs, uploadContentType = "", ""
	ingestAll = false
	statusJSON = false
	searchTopK, searchJSON = 4, false
	workerOnce, deadLetterLimit, deadLetterJSON = false, 20, false
	rootCmd.SetArgs(nil)
	rootCmd.SetIn(nil)
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer resetFlags()

	err := rootCmd.Execute()
	return buf.String(), err
}
