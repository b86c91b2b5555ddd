// Package mcp provides an MCP (Model Context Protocol) server adapter for doraemo.
// It lets MCP clients chat with the assistant, search a user's uploaded
// documents and check ingestion progress.
package mcp

import "errors"

// ErrMissingChatService is returned when the chat service is not provided.
var ErrMissingChatService = errors.New("mcp: chat service is required")
