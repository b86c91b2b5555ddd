package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driven"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// Ensure IngestionPipeline implements the interface.
var _ driving.IngestionService = (*IngestionPipeline)(nil)

// DefaultEmbedBatchSize is the number of chunks sent per EmbedBatch call.
const DefaultEmbedBatchSize = 64

// IngestionPipeline turns a stored document into embedded, indexed chunks.
type IngestionPipeline struct {
	blobs      driven.BlobStore
	extractors driven.ExtractorRegistry
	chunker    driven.Chunker
	embedder   driven.EmbeddingService
	index      driven.VectorIndex
	status     *DocumentStatusTracker
	timeouts   Timeouts
	batchSize  int
	now        func() time.Time
	log        *logger.Logger
}

// NewIngestionPipeline creates an ingestion pipeline.
func NewIngestionPipeline(
	blobs driven.BlobStore,
	extractors driven.ExtractorRegistry,
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	status *DocumentStatusTracker,
	timeouts Timeouts,
) *IngestionPipeline {
	return &IngestionPipeline{
		blobs:      blobs,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		status:     status,
		timeouts:   timeouts.withDefaults(),
		batchSize:  DefaultEmbedBatchSize,
		now:        time.Now,
		log:        logger.Component("ingestion"),
	}
}

// SetEmbedBatchSize overrides the number of chunks per embedding call.
func (p *IngestionPipeline) SetEmbedBatchSize(n int) {
	if n > 0 {
		p.batchSize = n
	}
}

// Ingest processes one document end to end.
//
// A vanished blob is a benign skip: nil error, no status change. Validation
// failures set status error and return a domain.ValidationError. Any other
// failure after the existence check sets status error and is returned so the
// caller can retry.
func (p *IngestionPipeline) Ingest(ctx context.Context, documentKey domain.DocumentKey) (*domain.IngestResult, error) {
	key, userKey, err := domain.ParseDocumentKey(string(documentKey))
	if err != nil {
		return nil, err
	}
	log := p.log.With("document", string(key))
	logger.Section("Ingest " + string(key))

	if p.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if p.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	// 1. CHECK EXISTENCE AND READ
	// Status is untouched until the bytes are read.
	blob, err := p.read(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("blob no longer exists, skipping")
		return p.skipped(ctx, key), nil
	}
	if err != nil {
		return nil, err
	}

	generation := p.now().UnixNano()
	p.status.report(ctx, key, domain.StatusProcessing)

	result, err := p.process(ctx, key, userKey, generation, blob)
	switch {
	case err != nil:
		p.status.report(ctx, key, domain.StatusError)
		log.Warn("ingestion failed: %v", err)
		return p.finish(ctx, key, &domain.IngestResult{}), err
	case result.Superseded:
		// The newer run has already committed its chunks.
		p.status.report(ctx, key, domain.StatusProcessed)
		log.Info("generation %d superseded by a newer attempt", generation)
	default:
		p.status.report(ctx, key, domain.StatusProcessed)
		log.Info("indexed %d chunks (generation %d)", result.Chunks, generation)
	}
	return p.finish(ctx, key, result), nil
}

// Remove deletes a document's blob, its chunks and its status record.
// The blob goes first so a queued event for the document is skipped.
func (p *IngestionPipeline) Remove(ctx context.Context, documentKey domain.DocumentKey) error {
	key, userKey, err := domain.ParseDocumentKey(string(documentKey))
	if err != nil {
		return err
	}
	if p.index == nil {
		return domain.ErrVectorIndexUnavailable
	}

	_, err = bounded(ctx, p.timeouts.Blob, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.blobs.Delete(ctx, key)
	})
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	_, err = bounded(ctx, p.timeouts.Query, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.index.DeleteDocument(ctx, userKey, key)
	})
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", key, err)
	}
	if err := p.status.Forget(ctx, key); err != nil {
		return err
	}

	p.log.With("document", string(key)).Info("removed document")
	return nil
}

// storedBlob is a document's bytes and metadata as read from the blob store.
type storedBlob struct {
	data []byte
	info *driven.BlobInfo
}

// read checks the blob exists and downloads it. Both calls are bounded by the
// blob timeout; a missing blob is reported as domain.ErrNotFound.
func (p *IngestionPipeline) read(ctx context.Context, key domain.DocumentKey) (*storedBlob, error) {
	_, err := bounded(ctx, p.timeouts.Blob, func(ctx context.Context) (*driven.BlobInfo, error) {
		return p.blobs.Head(ctx, key)
	})
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", key, err)
	}
	blob, err := bounded(ctx, p.timeouts.Blob, func(ctx context.Context) (*storedBlob, error) {
		data, info, err := p.blobs.Get(ctx, key)
		return &storedBlob{data: data, info: info}, err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return blob, nil
}

//nolint:gocyclo // sequential pipeline steps
func (p *IngestionPipeline) process(
	ctx context.Context, key domain.DocumentKey, userKey string, generation int64, blob *storedBlob,
) (*domain.IngestResult, error) {
	// 2. DETECT TYPE
	contentType := ""
	if blob.info != nil {
		contentType = blob.info.ContentType
	}
	mimeType := p.extractors.DetectType(key, contentType, blob.data)
	logger.Debug("Detected type %s for %s", mimeType, key)

	// 3. EXTRACT
	doc, err := p.extractors.Extract(ctx, driven.ExtractInput{Key: key, MIMEType: mimeType, Data: blob.data})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, domain.ErrUnsupportedType) {
			return nil, domain.NewValidationError(domain.ErrUnsupportedType, "%s (%s)", key, mimeType)
		}
		if domain.IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("extract %s: %w", key, err)
	}

	// 4. CHUNK
	raw, err := p.chunker.Chunk(ctx, key, doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", key, err)
	}
	chunks := make([]domain.Chunk, 0, len(raw))
	for _, c := range raw {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		c.ChunkIndex = len(chunks)
		c.SourceDocumentKey = key
		c.Generation = generation
		c.ID = chunkID(key, generation, c.ChunkIndex)
		chunks = append(chunks, c)
	}

	// 5. REJECT EMPTY DOCUMENTS
	if len(chunks) == 0 {
		return nil, domain.NewValidationError(domain.ErrEmptyContent, "%s has no text", key)
	}
	logger.Debug("Chunked %s into %d chunks", key, len(chunks))

	// 6. EMBED EVERY CHUNK BEFORE WRITING ANYTHING
	if err := p.embed(ctx, chunks); err != nil {
		return nil, err
	}

	// 7. ENSURE THE USER'S INDEX
	if err := p.ensureIndex(ctx, userKey, len(chunks[0].Embedding)); err != nil {
		return nil, err
	}

	// 8. REPLACE THE DOCUMENT'S CHUNKS ATOMICALLY
	_, err = bounded(ctx, p.timeouts.Query, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.index.ReplaceDocument(ctx, userKey, key, generation, chunks)
	})
	if errors.Is(err, domain.ErrStaleGeneration) {
		return &domain.IngestResult{Superseded: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replace chunks for %s: %w", key, err)
	}
	return &domain.IngestResult{Chunks: len(chunks)}, nil
}

// embed fills every chunk's embedding in batches.
func (p *IngestionPipeline) embed(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := bounded(ctx, p.timeouts.Embed, func(ctx context.Context) ([][]float32, error) {
			return p.embedder.EmbedBatch(ctx, texts)
		})
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end-1, len(vectors), len(texts))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return fmt.Errorf("embed chunk %d: empty vector", start+i)
			}
			chunks[start+i].Embedding = v
		}
	}
	return nil
}

// ensureIndex creates the user's index on first use and checks the model otherwise.
func (p *IngestionPipeline) ensureIndex(ctx context.Context, userKey string, dims int) error {
	exists, err := p.index.Exists(ctx, userKey)
	if err != nil {
		return fmt.Errorf("check index for %s: %w", userKey, err)
	}
	model := p.embedder.ModelName()
	if !exists {
		info := domain.IndexInfo{UserKey: userKey, Model: model, Dimensions: dims, CreatedAt: p.now()}
		if err := p.index.Create(ctx, info); err != nil {
			return fmt.Errorf("create index for %s: %w", userKey, err)
		}
		p.log.Info("created vector index for %s (%s, %d dims)", userKey, model, dims)
		return nil
	}
	info, err := p.index.Info(ctx, userKey)
	if err != nil {
		return fmt.Errorf("read index for %s: %w", userKey, err)
	}
	if info.Model != model || info.Dimensions != dims {
		return fmt.Errorf("%w: index for %s uses %s/%d, embedder is %s/%d",
			domain.ErrEmbeddingModelMismatch, userKey, info.Model, info.Dimensions, model, dims)
	}
	return nil
}

func (p *IngestionPipeline) skipped(ctx context.Context, key domain.DocumentKey) *domain.IngestResult {
	return p.finish(ctx, key, &domain.IngestResult{Skipped: true})
}

// finish attaches the document's current record to result.
func (p *IngestionPipeline) finish(ctx context.Context, key domain.DocumentKey, result *domain.IngestResult) *domain.IngestResult {
	result.Record = domain.DocumentRecord{DocumentKey: key, Status: domain.StatusUnknown}
	rec, err := p.status.Get(ctx, key)
	if err != nil {
		p.log.Warn("read status for %s: %v", key, err)
		return result
	}
	if rec != nil {
		result.Record = *rec
	}
	return result
}

// chunkID derives a stable ID from the document, attempt and position.
func chunkID(key domain.DocumentKey, generation int64, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d#%d", key, generation, index))).String()
}
