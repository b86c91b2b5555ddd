package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

// defaultTopK is used by search_documents when no top_k is given.
const defaultTopK = 4

var (
	errSearchUnavailable    = errors.New("document search is not configured")
	errDocumentsUnavailable = errors.New("document status is not configured")
)

// ChatInput is the input schema for the chat tool.
type ChatInput struct {
	Prompt    string `json:"prompt" jsonschema:"the message to send to the assistant"`
	User      string `json:"user,omitempty" jsonschema:"user whose history and documents are used (default anon)"`
	SubjectID string `json:"subject_id,omitempty" jsonschema:"identifier recorded as the owner of the turn"`
	ThreadID  string `json:"thread_id,omitempty" jsonschema:"continue this conversation thread"`
	NewThread bool   `json:"new_thread,omitempty" jsonschema:"start a new conversation thread"`
}

// ChatOutput is the output schema for the chat tool.
type ChatOutput struct {
	Response       string         `json:"response"`
	ThreadID       string         `json:"thread_id"`
	SequenceNumber int64          `json:"sequence_number"`
	Retrieval      string         `json:"retrieval"`
	Sources        []SourceOutput `json:"sources,omitempty"`
}

// SearchInput is the input schema for the search_documents tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"text to find similar passages for"`
	User  string `json:"user,omitempty" jsonschema:"user whose documents are searched (default anon)"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of passages to return (default 4)"`
}

// SearchOutput is the output schema for the search_documents tool.
type SearchOutput struct {
	Results []SourceOutput `json:"results"`
	Count   int            `json:"count"`
}

// SourceOutput is one retrieved passage.
type SourceOutput struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentKey string  `json:"document_key"`
	Filename    string  `json:"filename,omitempty"`
	Page        *int    `json:"page,omitempty"`
	Distance    float64 `json:"distance"`
	Text        string  `json:"text"`
}

// StatusInput is the input schema for the document_status tool.
type StatusInput struct {
	DocumentKey string `json:"document_key,omitempty" jsonschema:"document to check, as user/path"`
	User        string `json:"user,omitempty" jsonschema:"list every document of this user instead"`
}

// StatusOutput is the output schema for the document_status tool.
type StatusOutput struct {
	Documents []DocumentStatusOutput `json:"documents"`
}

// DocumentStatusOutput is the ingestion state of one document.
type DocumentStatusOutput struct {
	DocumentKey string `json:"document_key"`
	Status      string `json:"status"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat",
		Description: "Ask the assistant a question grounded in conversation history and uploaded documents",
	}, s.handleChat)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Find passages in a user's uploaded documents similar to a query",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_status",
		Description: "Report the ingestion status of one document or of all documents of a user",
	}, s.handleStatus)
}

// handleChat handles the chat tool invocation.
func (s *Server) handleChat(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ChatInput,
) (*mcp.CallToolResult, ChatOutput, error) {
	resp, err := s.ports.Chat.Chat(ctx, domain.ChatRequest{
		Identity:  domain.Identity{Name: input.User, SubjectID: input.SubjectID},
		Prompt:    input.Prompt,
		ThreadID:  input.ThreadID,
		NewThread: input.NewThread,
	})
	if err != nil {
		return nil, ChatOutput{}, err
	}

	return nil, ChatOutput{
		Response:       resp.Response,
		ThreadID:       resp.Turn.ThreadID,
		SequenceNumber: resp.Turn.SequenceNumber,
		Retrieval:      string(resp.Retrieval),
		Sources:        sources(resp.SearchResults),
	}, nil
}

// handleSearch handles the search_documents tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	if s.ports.Search == nil {
		return nil, SearchOutput{}, errSearchUnavailable
	}
	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	results, err := s.ports.Search.Search(ctx, userOrDefault(input.User), input.Query, topK)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := sources(results)
	if out == nil {
		out = []SourceOutput{}
	}
	return nil, SearchOutput{Results: out, Count: len(out)}, nil
}

// handleStatus handles the document_status tool invocation.
func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	if s.ports.Documents == nil {
		return nil, StatusOutput{}, errDocumentsUnavailable
	}

	if strings.TrimSpace(input.DocumentKey) != "" {
		key, _, err := domain.ParseDocumentKey(input.DocumentKey)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		status, err := s.ports.Documents.GetStatus(ctx, key)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		return nil, StatusOutput{Documents: []DocumentStatusOutput{{
			DocumentKey: string(key),
			Status:      string(status),
		}}}, nil
	}

	records, err := s.ports.Documents.List(ctx, userOrDefault(input.User))
	if err != nil {
		return nil, StatusOutput{}, err
	}
	out := StatusOutput{Documents: make([]DocumentStatusOutput, len(records))}
	for i, r := range records {
		out.Documents[i] = documentStatus(r)
	}
	return nil, out, nil
}

func sources(results []domain.SearchResult) []SourceOutput {
	if len(results) == 0 {
		return nil
	}
	out := make([]SourceOutput, len(results))
	for i, r := range results {
		out[i] = SourceOutput{
			ChunkID:     r.ChunkID,
			DocumentKey: string(r.DocumentKey),
			Filename:    r.Metadata.Filename,
			Page:        r.Metadata.Page,
			Distance:    r.Distance,
			Text:        r.Text,
		}
	}
	return out
}

func documentStatus(r domain.DocumentRecord) DocumentStatusOutput {
	out := DocumentStatusOutput{
		DocumentKey: string(r.DocumentKey),
		Status:      string(r.Status),
	}
	if !r.UpdatedAt.IsZero() {
		out.UpdatedAt = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func userOrDefault(user string) string {
	return domain.Identity{Name: user}.WithDefaults().Name
}
