package mcp

import (
	"context"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// mockChatService is a mock implementation of driving.ChatService.
type mockChatService struct {
	response *domain.ChatResponse
	err      error
	requests []domain.ChatRequest
}

func (m *mockChatService) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.requests = append(m.requests, req)
	return m.response, m.err
}

// mockHistoryService is a mock implementation of driving.HistoryService.
type mockHistoryService struct {
	turns []domain.ConversationTurn
	err   error
	users []string
}

func (m *mockHistoryService) Latest(_ context.Context, userKey string, _ int) ([]domain.ConversationTurn, error) {
	m.users = append(m.users, userKey)
	return m.turns, m.err
}

func (m *mockHistoryService) Thread(_ context.Context, userKey, _ string, _ int) ([]domain.ConversationTurn, error) {
	m.users = append(m.users, userKey)
	return m.turns, m.err
}

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error
	user    string
	topK    int
}

func (m *mockSearchService) Search(_ context.Context, userKey, _ string, topK int) ([]domain.SearchResult, error) {
	m.user = userKey
	m.topK = topK
	return m.results, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	status  domain.DocumentStatus
	records []domain.DocumentRecord
	err     error
	user    string
}

func (m *mockDocumentService) GetStatus(_ context.Context, _ domain.DocumentKey) (domain.DocumentStatus, error) {
	return m.status, m.err
}

func (m *mockDocumentService) List(_ context.Context, userKey string) ([]domain.DocumentRecord, error) {
	m.user = userKey
	return m.records, m.err
}
