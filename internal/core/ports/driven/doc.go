// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - BlobStore: Uploaded document bytes
//   - ExtractorRegistry: Selects a text extractor per document type
//   - Chunker: Splits extracted text into overlapping chunks
//   - ConversationStore: Conversation turn persistence
//   - DocumentStatusStore: Ingestion status persistence
//   - LLMService: Completes the assembled conversation
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, retrieval is disabled
//     and ingestion refuses to run.
//   - VectorIndex: Per-user chunk storage and similarity search.
//   - AppendLocker: Serialises appends per user. Without it, appends rely on
//     conditional inserts and retry alone.
//   - Queue: Delivers document events to the worker.
//   - BlobWatcher: Emits events for documents written to the blob store.
//   - AIConfigValidator: Pings configured providers from the config command.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, extractor, or postprocessor package
package driven
