package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for doraemo resources.
	uriScheme = "doraemo://"

	// historyResourceLimit caps the turns returned by the history resource.
	historyResourceLimit = 50
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Template for a user's tracked documents.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "users/{user}/documents",
		Name:        "user-documents",
		Description: "Uploaded documents of a user and their ingestion status",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for a user's recent conversation.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "users/{user}/history",
		Name:        "user-history",
		Description: "Most recent conversation turns of a user, newest first",
		MIMEType:    "application/json",
	}, s.handleHistoryResource)
}

// handleDocumentsResource returns the document records of a user.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Documents == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract user from URI: doraemo://users/{user}/documents
	user := extractUser(req.Params.URI, "/documents")
	if user == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	records, err := s.ports.Documents.List(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	infos := make([]DocumentStatusOutput, len(records))
	for i, r := range records {
		infos[i] = documentStatus(r)
	}
	return jsonResource(req.Params.URI, infos)
}

// handleHistoryResource returns the latest turns of a user.
func (s *Server) handleHistoryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.History == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	user := extractUser(req.Params.URI, "/history")
	if user == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	turns, err := s.ports.History.Latest(ctx, user, historyResourceLimit)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	type turnInfo struct {
		SequenceNumber int64  `json:"sequence_number"`
		ThreadID       string `json:"thread_id"`
		Prompt         string `json:"prompt"`
		Response       string `json:"response"`
		CreatedAt      string `json:"created_at"`
	}

	infos := make([]turnInfo, len(turns))
	for i, t := range turns {
		infos[i] = turnInfo{
			SequenceNumber: t.SequenceNumber,
			ThreadID:       t.ThreadID,
			Prompt:         t.PromptText,
			Response:       t.ResponseText,
			CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return jsonResource(req.Params.URI, infos)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractUser extracts the user from a URI like doraemo://users/{user}/documents.
func extractUser(uri, suffix string) string {
	const prefix = uriScheme + "users/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	user := strings.TrimSuffix(uri, suffix)
	if strings.Contains(user, "/") {
		return ""
	}
	return user
}
