package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/doraemo/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// vectorIndex implements driven.VectorIndex. Queries are exact: every
// chunk in the user's namespace is loaded and scored.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Exists reports whether the user's index has been created.
func (v *vectorIndex) Exists(ctx context.Context, userKey string) (bool, error) {
	var n int
	row := v.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vector_indexes WHERE user_key = ?", userKey)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("checking index: %w", err)
	}
	return n > 0, nil
}

// Create initialises a user's index.
func (v *vectorIndex) Create(ctx context.Context, info domain.IndexInfo) error {
	if info.UserKey == "" || info.Dimensions <= 0 {
		return fmt.Errorf("%w: index needs a user key and positive dimensions", domain.ErrInvalidInput)
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}

	_, err := v.store.db.ExecContext(ctx, `
		INSERT INTO vector_indexes (user_key, model, dimensions, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_key) DO NOTHING
	`, info.UserKey, info.Model, info.Dimensions, info.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	existing, err := v.Info(ctx, info.UserKey)
	if err != nil {
		return err
	}
	if existing.Model != info.Model || existing.Dimensions != info.Dimensions {
		return fmt.Errorf("%w: index built with %s/%d, got %s/%d", domain.ErrEmbeddingModelMismatch,
			existing.Model, existing.Dimensions, info.Model, info.Dimensions)
	}
	return nil
}

// Info returns the index description.
func (v *vectorIndex) Info(ctx context.Context, userKey string) (*domain.IndexInfo, error) {
	row := v.store.db.QueryRowContext(ctx, `
		SELECT user_key, model, dimensions, created_at FROM vector_indexes WHERE user_key = ?
	`, userKey)

	var info domain.IndexInfo
	var createdAt sql.NullTime
	if err := row.Scan(&info.UserKey, &info.Model, &info.Dimensions, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning index: %w", err)
	}
	if createdAt.Valid {
		info.CreatedAt = createdAt.Time
	}
	return &info, nil
}

// Upsert inserts chunks or updates them by ID.
func (v *vectorIndex) Upsert(ctx context.Context, userKey string, chunks []domain.Chunk) error {
	info, err := v.Info(ctx, userKey)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", userKey, err)
	}
	if err := vecmath.CheckDimensions(chunks, info.Dimensions); err != nil {
		return err
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertChunks(ctx, tx, userKey, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// ReplaceDocument swaps a document's chunks for a new generation in one
// transaction. The generation row is claimed first so the write lock is
// taken before anything is read.
func (v *vectorIndex) ReplaceDocument(
	ctx context.Context, userKey string, documentKey domain.DocumentKey, generation int64, chunks []domain.Chunk,
) error {
	info, err := v.Info(ctx, userKey)
	if err != nil {
		return fmt.Errorf("replace in %s: %w", userKey, err)
	}
	if err := vecmath.CheckDimensions(chunks, info.Dimensions); err != nil {
		return err
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// 1. CLAIM GENERATION
	res, err := tx.ExecContext(ctx, `
		INSERT INTO document_generations (user_key, document_key, generation)
		VALUES (?, ?, ?)
		ON CONFLICT(user_key, document_key) DO UPDATE SET generation = excluded.generation
		WHERE excluded.generation >= document_generations.generation
	`, userKey, string(documentKey), generation)
	if err != nil {
		return fmt.Errorf("claiming generation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("claiming generation: %w", err)
	} else if n == 0 {
		return domain.ErrStaleGeneration
	}

	// 2. DROP PREVIOUS CHUNKS
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE user_key = ? AND document_key = ?",
		userKey, string(documentKey)); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	// 3. INSERT NEW CHUNKS
	stamped := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.SourceDocumentKey = documentKey
		c.Generation = generation
		stamped[i] = c
	}
	if err := insertChunks(ctx, tx, userKey, stamped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replacement: %w", err)
	}
	return nil
}

// DeleteDocument removes every chunk of a document.
func (v *vectorIndex) DeleteDocument(ctx context.Context, userKey string, documentKey domain.DocumentKey) error {
	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE user_key = ? AND document_key = ?",
		userKey, string(documentKey)); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM document_generations WHERE user_key = ? AND document_key = ?",
		userKey, string(documentKey)); err != nil {
		return fmt.Errorf("deleting generation: %w", err)
	}
	return tx.Commit()
}

// Query returns at most topK results in ascending distance order.
func (v *vectorIndex) Query(ctx context.Context, userKey string, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	info, err := v.Info(ctx, userKey)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT id, document_key, content, embedding, filename, page, extra
		FROM chunks WHERE user_key = ?
	`, userKey)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			r         domain.SearchResult
			docKey    string
			embedding []byte
			page      sql.NullInt64
			extra     sql.NullString
		)
		if err := rows.Scan(&r.ChunkID, &docKey, &r.Text, &embedding, &r.Metadata.Filename, &page, &extra); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		r.DocumentKey = domain.DocumentKey(docKey)
		if page.Valid {
			p := int(page.Int64)
			r.Metadata.Page = &p
		}
		if extra.Valid && extra.String != "" && extra.String != jsonNull {
			if err := json.Unmarshal([]byte(extra.String), &r.Metadata.Extra); err != nil {
				return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
			}
		}
		r.Distance = vecmath.CosineDistance(vector, vecmath.Decode(embedding))
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	if len(results) == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(vector) != info.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index expects %d",
			domain.ErrDimensionMismatch, len(vector), info.Dimensions)
	}
	return vecmath.Rank(results, topK), nil
}

// Close is a no-op; the owning Store closes the database.
func (v *vectorIndex) Close() error {
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, userKey string, chunks []domain.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (user_key, id, document_key, chunk_index, content, embedding, filename, page, extra, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_key, id) DO UPDATE SET
			document_key = excluded.document_key,
			chunk_index = excluded.chunk_index,
			content = excluded.content,
			embedding = excluded.embedding,
			filename = excluded.filename,
			page = excluded.page,
			extra = excluded.extra,
			generation = excluded.generation
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var page sql.NullInt64
		if c.Metadata.Page != nil {
			page = sql.NullInt64{Int64: int64(*c.Metadata.Page), Valid: true}
		}
		var extra sql.NullString
		if len(c.Metadata.Extra) > 0 {
			b, err := json.Marshal(c.Metadata.Extra)
			if err != nil {
				return fmt.Errorf("marshalling chunk metadata: %w", err)
			}
			extra = nullString(string(b))
		}
		if _, err := stmt.ExecContext(ctx, userKey, c.ID, string(c.SourceDocumentKey), c.ChunkIndex, c.Text,
			vecmath.Encode(c.Embedding), c.Metadata.Filename, page, extra, c.Generation); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}
	return nil
}
