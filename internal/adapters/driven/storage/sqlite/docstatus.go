package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
)

// documentStatusStore implements driven.DocumentStatusStore.
type documentStatusStore struct {
	store *Store
}

var _ driven.DocumentStatusStore = (*documentStatusStore)(nil)

// GetRecord returns the record for key, or domain.ErrNotFound.
func (s *documentStatusStore) GetRecord(ctx context.Context, key domain.DocumentKey) (*domain.DocumentRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_key, status, updated_at FROM document_status WHERE document_key = ?
	`, string(key))

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SaveRecord inserts or replaces a record.
func (s *documentStatusStore) SaveRecord(ctx context.Context, record domain.DocumentRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO document_status (document_key, user_key, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_key) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, string(record.DocumentKey), record.DocumentKey.UserKey(), string(record.Status), record.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving document status: %w", err)
	}
	return nil
}

// DeleteRecord removes the record for key.
func (s *documentStatusStore) DeleteRecord(ctx context.Context, key domain.DocumentKey) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM document_status WHERE document_key = ?", string(key)); err != nil {
		return fmt.Errorf("deleting document status: %w", err)
	}
	return nil
}

// ListRecords returns the user's records ordered by key.
func (s *documentStatusStore) ListRecords(ctx context.Context, userKey string) ([]domain.DocumentRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_key, status, updated_at FROM document_status
		WHERE user_key = ? ORDER BY document_key
	`, userKey)
	if err != nil {
		return nil, fmt.Errorf("querying document status: %w", err)
	}
	defer rows.Close()

	records := []domain.DocumentRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document status: %w", err)
	}
	return records, nil
}

// Close is a no-op; the owning Store closes the database.
func (s *documentStatusStore) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.DocumentRecord, error) {
	var key, status string
	var updatedAt sql.NullTime
	if err := row.Scan(&key, &status, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document status: %w", err)
	}
	parsed, err := domain.ParseDocumentStatus(status)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", key, err)
	}
	record := &domain.DocumentRecord{DocumentKey: domain.DocumentKey(key), Status: parsed}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	return record, nil
}
