// Package domain defines the core business entities for Doraemo.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ConversationTurn: One persisted (prompt, response) exchange
//   - DocumentRecord: Ingestion progress of an uploaded document
//   - Chunk: An embedded, searchable segment of a document
//   - SearchResult: A nearest-neighbour hit from a user's vector index
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
