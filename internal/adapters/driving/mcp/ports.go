package mcp

import (
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Chat answers prompts.
	Chat driving.ChatService

	// History reads conversation turns.
	History driving.HistoryService

	// Search runs raw similarity search.
	Search driving.SearchService

	// Documents reports ingestion status.
	Documents driving.DocumentService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Chat == nil {
		return ErrMissingChatService
	}
	// History, Search and Documents are optional; their tools report
	// unavailability when missing.
	return nil
}
