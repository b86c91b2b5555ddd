package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure Worker implements the interface.
var _ driving.WorkerService = (*Worker)(nil)

// Worker defaults.
const (
	DefaultWorkerBatchSize    = 10
	DefaultWorkerPollInterval = 2 * time.Second
)

// Worker consumes document events from a queue.
// Each batch is processed to completion; messages are acknowledged unless
// their handling failed, in which case the queue redelivers them after the
// visibility timeout.
type Worker struct {
	queue        driven.Queue
	handler      driving.EventHandler
	batchSize    int
	pollInterval time.Duration
	watcher      driven.BlobWatcher
	announcer    driving.UploadService
	log          *logger.Logger
}

// NewWorker creates a queue worker.
func NewWorker(queue driven.Queue, handler driving.EventHandler, batchSize int, pollInterval time.Duration) *Worker {
	if batchSize <= 0 {
		batchSize = DefaultWorkerBatchSize
	}
	if pollInterval <= 0 {
		pollInterval = DefaultWorkerPollInterval
	}
	return &Worker{
		queue:        queue,
		handler:      handler,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		log:          logger.Component("worker"),
	}
}

// WithWatcher makes Run also announce documents written directly to blob
// storage, so files dropped under the blob root are ingested without an upload.
func (w *Worker) WithWatcher(watcher driven.BlobWatcher, announcer driving.UploadService) *Worker {
	w.watcher = watcher
	w.announcer = announcer
	return w
}

// RunOnce receives and handles one batch.
// It returns the number of messages received.
func (w *Worker) RunOnce(ctx context.Context) (int, domain.EventBatchResult, error) {
	msgs, err := w.queue.Receive(ctx, w.batchSize)
	if err != nil {
		return 0, domain.EventBatchResult{}, err
	}
	if len(msgs) == 0 {
		return 0, domain.EventBatchResult{}, nil
	}

	result := w.handler.HandleBatch(ctx, msgs)
	for _, msg := range msgs {
		if failure, failed := result.Failures[msg.ID]; failed {
			w.log.With("message", msg.ID).Warn("leaving for redelivery (receive %d): %v", msg.ReceiveCount, failure)
			continue
		}
		if err := w.queue.Ack(ctx, msg.ID); err != nil {
			w.log.With("message", msg.ID).Warn("ack failed: %v", err)
		}
	}
	w.log.Info("batch done: %d processed, %d skipped, %d failed",
		result.Processed, result.Skipped, len(result.Failures))
	return len(msgs), result, nil
}

// Run polls the queue until ctx is cancelled.
// It returns only after the blob watcher, if any, has stopped.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started (batch %d, poll %s)", w.batchSize, w.pollInterval)
	var wg sync.WaitGroup
	defer wg.Wait()
	if w.watcher != nil && w.announcer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.watch(ctx)
		}()
	}
	for {
		if ctx.Err() != nil {
			w.log.Info("worker stopped")
			return nil
		}
		n, _, err := w.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error("receive failed: %v", err)
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

// watch announces every settled write reported by the watcher.
func (w *Worker) watch(ctx context.Context) {
	err := w.watcher.Watch(ctx, func(ev domain.DocumentEvent) {
		if ev.EventType != domain.EventTypeDocumentUploaded {
			return
		}
		key, _, err := domain.ParseDocumentKey(ev.DocumentPath)
		if err != nil {
			w.log.Warn("ignoring watched path %q: %v", ev.DocumentPath, err)
			return
		}
		if err := w.announcer.Announce(ctx, key); err != nil {
			w.log.With("document", string(key)).Error("announce failed: %v", err)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Error("watcher stopped: %v", err)
	}
}

// DeadLetters returns up to limit dead-lettered messages with the document
// keys they announced.
func (w *Worker) DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	msgs, err := w.queue.DeadLetters(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	letters := make([]domain.DeadLetter, len(msgs))
	for i, msg := range msgs {
		letters[i] = domain.DeadLetter{
			MessageID:    msg.ID,
			ReceiveCount: msg.ReceiveCount,
			EnqueuedAt:   msg.EnqueuedAt,
			Body:         string(msg.Body),
		}
		if keys, err := DecodeDocumentEvents(msg.Body); err == nil {
			letters[i].DocumentKeys = keys
		}
	}
	return letters, nil
}
