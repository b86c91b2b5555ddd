package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/doraemo/internal/adapters/driven/ai"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/blob/filesystem"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/config/file"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/lock/local"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/lock/redis"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/queue/badger"
	"github.com/custodia-labs/doraemo/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/doraemo/internal/adapters/driving/cli"
	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/services"
	"github.com/custodia-labs/doraemo/internal/extractors"
	"github.com/custodia-labs/doraemo/internal/extractors/html"
	"github.com/custodia-labs/doraemo/internal/extractors/markdown"
	"github.com/custodia-labs/doraemo/internal/extractors/pdf"
	"github.com/custodia-labs/doraemo/internal/extractors/plaintext"
	"github.com/custodia-labs/doraemo/internal/logger"
	"github.com/custodia-labs/doraemo/internal/postprocessors/chunker"
)

// Directory names under the doraemo home used when settings leave them empty.
const (
	blobDirName   = "blobs"
	queueDirName  = "queue"
	promptDirName = "prompts"
)

// app owns every client opened for one command and closes them in reverse order.
type app struct {
	services *cli.Services
	closers  []func() error
}

// newApp builds the driven adapters and core services from settings.
//
//nolint:funlen // linear wiring
func newApp(ctx context.Context, settings *domain.AppSettings, homeDir string, needs cli.Needs) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		return nil, errors.Join(err, a.Close())
	}

	// 1. PERSISTENT STORES
	store, err := sqlite.NewStore(settings.Storage.DataDir)
	if err != nil {
		return fail(fmt.Errorf("opening database: %w", err))
	}
	a.onClose(store.Close)

	blobs, err := filesystem.New(orHome(settings.Storage.BlobRoot, homeDir, blobDirName))
	if err != nil {
		return fail(fmt.Errorf("opening blob store: %w", err))
	}

	locker, err := a.newLocker(ctx, settings.Lock)
	if err != nil {
		return fail(err)
	}

	// 2. PROVIDERS
	// A missing provider disables the features that need it rather than
	// every command.
	embedder, err := ai.CreateEmbeddingService(ctx, &settings.Embedding)
	if err != nil {
		logger.Warn("Embeddings disabled: %v", err)
	}
	if embedder != nil {
		a.onClose(embedder.Close)
	}

	llm, err := ai.CreateLLMService(&settings.LLM)
	if err != nil {
		logger.Warn("Completions disabled: %v", err)
	}
	if llm != nil {
		a.onClose(llm.Close)
	}

	// 3. CORE SERVICES
	timeouts := services.Timeouts{
		Embed:      settings.Timeouts.Embed,
		Completion: settings.Timeouts.Completion,
		Blob:       settings.Timeouts.Blob,
		Query:      settings.Timeouts.Query,
		Retrieval:  settings.Timeouts.Retrieval,
	}
	index := store.VectorIndex()
	tracker := services.NewDocumentStatusTracker(store.DocumentStatusStore())
	conversationLog := services.NewConversationLog(store.ConversationStore(), locker)
	assembler := services.NewContextAssembler(conversationLog, embedder, index, timeouts)

	systemPrompt, err := loadSystemPrompt(settings.LLM, homeDir)
	if err != nil {
		return fail(err)
	}
	orchestrator := services.NewConversationOrchestrator(assembler, conversationLog, llm, services.ChatOptions{
		SystemPrompt: systemPrompt,
		HistoryLimit: settings.Chat.HistoryLimit,
		TopK:         settings.Chat.TopK,
		Params:       settings.LLM.Params,
	}, timeouts)

	registry := extractors.NewRegistry(plaintext.New(), markdown.New(), html.New(), pdf.New())
	chunks := chunker.New(
		chunker.WithChunkSize(settings.Chunker.ChunkSize),
		chunker.WithOverlap(settings.Chunker.Overlap),
	)
	ingestion := services.NewIngestionPipeline(blobs, registry, chunks, embedder, index, tracker, timeouts)

	a.services = &cli.Services{
		Chat:      orchestrator,
		History:   conversationLog,
		Ingestion: ingestion,
		Documents: tracker,
		Search:    services.NewSearchService(embedder, index, timeouts),
	}

	// 4. QUEUE
	if !needs.Queue {
		return a, nil
	}
	queue, err := badger.New(badger.Options{
		Dir:               orHome(settings.Storage.QueueDir, homeDir, queueDirName),
		VisibilityTimeout: settings.Queue.VisibilityTimeout,
		MaxReceive:        settings.Queue.MaxReceive,
	})
	if err != nil {
		return fail(fmt.Errorf("opening queue (is another worker running?): %w", err))
	}
	a.onClose(queue.Close)

	upload := services.NewUploadService(blobs, queue, tracker)
	worker := services.NewWorker(queue, services.NewEventProcessor(ingestion),
		settings.Queue.BatchSize, settings.Queue.PollInterval).
		WithWatcher(filesystem.NewWatcher(blobs, 0), upload)

	a.services.Upload = upload
	a.services.Worker = worker
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newLocker returns the Redis lock when configured, the in-process lock otherwise.
func (a *app) newLocker(ctx context.Context, settings domain.LockSettings) (driven.AppendLocker, error) {
	if settings.RedisURL == "" {
		return local.New(), nil
	}
	locker, err := redis.New(ctx, redis.Options{URL: settings.RedisURL, TTL: settings.TTL})
	if err != nil {
		return nil, fmt.Errorf("connecting append lock: %w", err)
	}
	a.onClose(locker.Close)
	return locker, nil
}

// loadSystemPrompt prefers the configured prompt, then the prompt file.
func loadSystemPrompt(settings domain.LLMSettings, homeDir string) (string, error) {
	if settings.SystemPrompt != "" {
		return settings.SystemPrompt, nil
	}
	prompts, err := file.NewPromptStore(filepath.Join(homeDir, promptDirName), map[string]string{
		file.PromptSystem: services.DefaultSystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("opening prompts: %w", err)
	}
	return prompts.Load(file.PromptSystem)
}

func orHome(path, homeDir, name string) string {
	if path != "" {
		return path
	}
	return filepath.Join(homeDir, name)
}
