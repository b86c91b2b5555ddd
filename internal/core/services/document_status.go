package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure DocumentStatusTracker implements the interface.
var _ driving.DocumentService = (*DocumentStatusTracker)(nil)

// DocumentStatusTracker records ingestion progress per document.
// Status only moves forward within an attempt; see DocumentStatus.CanTransitionTo.
type DocumentStatusTracker struct {
	store driven.DocumentStatusStore
	now   func() time.Time
	log   *logger.Logger
}

// NewDocumentStatusTracker creates a status tracker.
func NewDocumentStatusTracker(store driven.DocumentStatusStore) *DocumentStatusTracker {
	return &DocumentStatusTracker{
		store: store,
		now:   time.Now,
		log:   logger.Component("status"),
	}
}

// SetStatus moves a document to status.
// Backward moves return domain.ErrInvalidTransition.
func (t *DocumentStatusTracker) SetStatus(ctx context.Context, key domain.DocumentKey, status domain.DocumentStatus) error {
	if status == domain.StatusUnknown || !status.IsValid() {
		return fmt.Errorf("%w: cannot set status %q", domain.ErrInvalidInput, status)
	}
	current, err := t.GetStatus(ctx, key)
	if err != nil {
		return err
	}
	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s for %s", domain.ErrInvalidTransition, current, status, key)
	}
	record := domain.DocumentRecord{DocumentKey: key, Status: status, UpdatedAt: t.now()}
	if err := t.store.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("save status for %s: %w", key, err)
	}
	t.log.Debug("%s: %s -> %s", key, current, status)
	return nil
}

// GetStatus returns the status, or domain.StatusUnknown for unseen keys.
func (t *DocumentStatusTracker) GetStatus(ctx context.Context, key domain.DocumentKey) (domain.DocumentStatus, error) {
	rec, err := t.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return domain.StatusUnknown, nil
	}
	return rec.Status, nil
}

// Get returns the record for key, or nil if the key was never seen.
func (t *DocumentStatusTracker) Get(ctx context.Context, key domain.DocumentKey) (*domain.DocumentRecord, error) {
	rec, err := t.store.GetRecord(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status for %s: %w", key, err)
	}
	return rec, nil
}

// List returns the user's document records.
func (t *DocumentStatusTracker) List(ctx context.Context, userKey string) ([]domain.DocumentRecord, error) {
	records, err := t.store.ListRecords(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", userKey, err)
	}
	return records, nil
}

// Forget drops the record for key; its status reads as unknown afterwards.
func (t *DocumentStatusTracker) Forget(ctx context.Context, key domain.DocumentKey) error {
	if err := t.store.DeleteRecord(ctx, key); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

// report sets a status and swallows failures.
// Status writes must never mask the outcome of the work they describe.
func (t *DocumentStatusTracker) report(ctx context.Context, key domain.DocumentKey, status domain.DocumentStatus) {
	if err := t.SetStatus(ctx, key, status); err != nil {
		t.log.With("document", string(key)).Warn("status update to %s failed: %v", status, err)
	}
}
