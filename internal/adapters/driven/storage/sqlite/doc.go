// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - ConversationStore: conversation turns keyed by (user, sequence number)
//   - DocumentStatusStore: ingestion status per document key
//   - VectorIndex: per-user embedded chunks with exact cosine search
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.doraemo/data/doraemo.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Conditional writes (turn inserts, generation swaps) are
// single statements or transactions, so concurrent processes sharing the file
// observe the same conflicts.
package sqlite
