package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/medialib/scenesearch/internal/chunker"
	"github.com/medialib/scenesearch/internal/langdetect"
	"github.com/medialib/scenesearch/internal/parser"
	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/internal/vector"
	"github.com/medialib/scenesearch/pkg/types"
)

// DefaultBatchSize is how many chunk texts go to the embedder at once.
const DefaultBatchSize = 100

// Embedder is the slice of the embedding engine the indexer needs.
// A batch that cannot be embedded yields zero vectors, not an error.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// indexMonitor matches perf.Monitor for the calls the indexer makes.
type indexMonitor interface {
	RecordOperation(name string, duration time.Duration)
	RecordIndexed(chunks int, duration time.Duration)
}

type noopMonitor struct{}

func (noopMonitor) RecordOperation(string, time.Duration) {}
func (noopMonitor) RecordIndexed(int, time.Duration)      {}

// Stats summarizes one indexing operation.
type Stats struct {
	ChunksIndexed   int
	VectorsInserted int
	Duration        time.Duration
}

// Indexer drives the ingestion pipeline: parse, chunk, store, embed,
// vector insert. Embedding runs on a worker pool; chunk inserts are
// transactional so a crash never leaves a partially indexed source.
type Indexer struct {
	store     storage.Store
	vectors   *vector.Store
	embedder  Embedder
	parsers   *parser.Registry
	chunks    *chunker.Chunker
	detector  *langdetect.Detector
	monitor   indexMonitor
	pool      *ants.Pool
	logger    *slog.Logger
	batchSize int
	locks     *mediaLocks
	cancelled atomic.Bool
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger != nil {
			ix.logger = logger
		}
		return nil
	}
}

// WithMonitor wires a performance monitor.
func WithMonitor(m indexMonitor) Option {
	return func(ix *Indexer) error {
		if m != nil {
			ix.monitor = m
		}
		return nil
	}
}

// WithChunkerConfig overrides the chunking configuration.
func WithChunkerConfig(cfg chunker.Config) Option {
	return func(ix *Indexer) error {
		ix.chunks = chunker.New(cfg)
		return nil
	}
}

// WithBatchSize overrides the embedding batch size.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) error {
		if n > 0 {
			ix.batchSize = n
		}
		return nil
	}
}

// WithPoolSize resizes the embedding worker pool.
func WithPoolSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			size = 1
		}
		if ix.pool != nil {
			ix.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		ix.pool = pool
		return nil
	}
}

// New creates an indexer over the given stores and embedder.
func New(store storage.Store, vectors *vector.Store, emb Embedder, opts ...Option) (*Indexer, error) {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		store:     store,
		vectors:   vectors,
		embedder:  emb,
		parsers:   parser.NewRegistry(),
		chunks:    chunker.New(chunker.DefaultConfig()),
		detector:  langdetect.New(),
		monitor:   noopMonitor{},
		pool:      pool,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		locks:     newMediaLocks(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			ix.Release()
			return nil, err
		}
	}
	return ix, nil
}

// Release frees the worker pool. The indexer must not be used after.
func (ix *Indexer) Release() {
	if ix.pool != nil {
		ix.pool.Release()
	}
}

// Cancel requests cooperative cancellation. In-flight operations stop
// at the next batch boundary with ErrCancelled.
func (ix *Indexer) Cancel() {
	ix.cancelled.Store(true)
}

// ResetCancellation clears a previous Cancel so new operations run.
func (ix *Indexer) ResetCancellation() {
	ix.cancelled.Store(false)
}

// IndexFile parses one content file and indexes its chunks for the
// media item. The source type is derived from the file extension.
func (ix *Indexer) IndexFile(ctx context.Context, path string, mediaID int64, mediaType types.MediaType) (*Stats, error) {
	if !ix.locks.tryAcquire(mediaID, mediaType) {
		return nil, fmt.Errorf("media %d/%s is already being indexed", mediaID, mediaType)
	}
	defer ix.locks.release(mediaID, mediaType)
	return ix.indexFileLocked(ctx, path, mediaID, mediaType)
}

func (ix *Indexer) indexFileLocked(ctx context.Context, path string, mediaID int64, mediaType types.MediaType) (*Stats, error) {
	sourceType := sourceForPath(path)

	entries, err := ix.parsers.Parse(path)
	if err != nil {
		ix.markStatus(ctx, mediaID, mediaType, sourceType, types.IndexFailed)
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ix.indexEntries(ctx, mediaID, mediaType, sourceType, entries)
}

// IndexSegments indexes transcription segments delivered by a
// provider, recording which provider produced them.
func (ix *Indexer) IndexSegments(ctx context.Context, mediaID int64, mediaType types.MediaType, providerID string, entries []types.ParsedEntry) (*Stats, error) {
	if !ix.locks.tryAcquire(mediaID, mediaType) {
		return nil, fmt.Errorf("media %d/%s is already being indexed", mediaID, mediaType)
	}
	defer ix.locks.release(mediaID, mediaType)

	if providerID != "" {
		if state, err := ix.loadOrCreateState(ctx, mediaID, mediaType); err == nil {
			state.Provider = providerID
			if err := ix.store.UpdateIndexState(ctx, state); err != nil {
				ix.logger.Warn("provider state update failed", "error", err)
			}
		}
	}
	return ix.indexEntries(ctx, mediaID, mediaType, types.SourceTranscription, entries)
}

// indexEntries runs chunking, storage, and embedding for parsed
// entries of one source.
func (ix *Indexer) indexEntries(ctx context.Context, mediaID int64, mediaType types.MediaType, sourceType types.SourceType, entries []types.ParsedEntry) (*Stats, error) {
	start := time.Now()
	ix.markStatus(ctx, mediaID, mediaType, sourceType, types.IndexInProgress)

	chunks := ix.chunks.Process(entries, mediaID, mediaType, sourceType)
	for _, chunk := range chunks {
		chunk.Language = ix.detector.Detect(chunk.Text)
	}

	if len(chunks) == 0 {
		ix.markStatus(ctx, mediaID, mediaType, sourceType, types.IndexCompleted)
		return &Stats{Duration: time.Since(start)}, nil
	}

	insertStart := time.Now()
	ids, err := ix.store.InsertChunks(ctx, chunks)
	ix.monitor.RecordOperation("index.insert", time.Since(insertStart))
	if err != nil {
		ix.markStatus(ctx, mediaID, mediaType, sourceType, types.IndexFailed)
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	inserted, err := ix.embedChunks(ctx, ids, chunks)
	if err != nil {
		ix.markStatus(ctx, mediaID, mediaType, sourceType, types.IndexFailed)
		return nil, err
	}

	ix.markStatus(ctx, mediaID, mediaType, sourceType, types.IndexCompleted)
	stats := &Stats{
		ChunksIndexed:   len(chunks),
		VectorsInserted: inserted,
		Duration:        time.Since(start),
	}
	ix.monitor.RecordIndexed(stats.ChunksIndexed, stats.Duration)
	ix.logger.Info("indexed source",
		"media_id", mediaID, "media_type", mediaType, "source", sourceType,
		"chunks", stats.ChunksIndexed, "vectors", stats.VectorsInserted,
		"duration", stats.Duration)
	return stats, nil
}

// embedChunks embeds stored chunks in batches on the worker pool and
// inserts the resulting vectors. Zero vectors (embedding unavailable
// for that text) are skipped; those chunks stay keyword-searchable.
func (ix *Indexer) embedChunks(ctx context.Context, ids []int64, chunks []*types.SemanticChunk) (int, error) {
	var wg sync.WaitGroup
	var inserted atomic.Int64

	for offset := 0; offset < len(chunks); offset += ix.batchSize {
		if ix.cancelled.Load() {
			wg.Wait()
			return int(inserted.Load()), types.ErrCancelled
		}
		end := offset + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batchIDs := ids[offset:end]
		texts := make([]string, end-offset)
		for i, chunk := range chunks[offset:end] {
			texts[i] = chunk.Text
		}

		wg.Add(1)
		if err := ix.pool.Submit(func() {
			defer wg.Done()
			inserted.Add(int64(ix.embedBatch(ctx, batchIDs, texts)))
		}); err != nil {
			wg.Done()
			wg.Wait()
			return int(inserted.Load()), fmt.Errorf("submit embed batch: %w", err)
		}
	}
	wg.Wait()
	return int(inserted.Load()), nil
}

func (ix *Indexer) embedBatch(ctx context.Context, ids []int64, texts []string) int {
	embedStart := time.Now()
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	ix.monitor.RecordOperation("index.embed", time.Since(embedStart))
	if err != nil {
		ix.logger.Warn("embedding batch failed", "size", len(texts), "error", err)
		return 0
	}

	inserted := 0
	for i, vec := range vectors {
		if i >= len(ids) || isZero(vec) {
			continue
		}
		if err := ix.vectors.InsertVector(ctx, ids[i], vec); err != nil {
			ix.logger.Warn("vector insert failed", "chunk_id", ids[i], "error", err)
			continue
		}
		inserted++
	}
	return inserted
}

// ReindexMedia deletes a media item's chunks and vectors, then indexes
// the given files concurrently. Vector rows are removed by cascade
// when their chunks go.
func (ix *Indexer) ReindexMedia(ctx context.Context, mediaID int64, mediaType types.MediaType, paths []string) (*Stats, error) {
	if !ix.locks.tryAcquire(mediaID, mediaType) {
		return nil, fmt.Errorf("media %d/%s is already being indexed", mediaID, mediaType)
	}
	defer ix.locks.release(mediaID, mediaType)

	start := time.Now()
	if _, err := ix.store.DeleteChunksForMedia(ctx, mediaID, mediaType); err != nil {
		return nil, fmt.Errorf("clear media chunks: %w", err)
	}

	var mu sync.Mutex
	total := &Stats{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			stats, err := ix.indexFileLocked(gctx, path, mediaID, mediaType)
			if err != nil {
				return err
			}
			mu.Lock()
			total.ChunksIndexed += stats.ChunksIndexed
			total.VectorsInserted += stats.VectorsInserted
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	total.Duration = time.Since(start)
	return total, nil
}

// ProcessPending drains the pending-index work queue, resolving each
// media item's content files through the given callback. Returns how
// many media items were processed.
func (ix *Indexer) ProcessPending(ctx context.Context, limit int, resolve func(mediaID int64, mediaType types.MediaType) ([]string, error)) (int, error) {
	states, err := ix.store.GetPendingIndexStates(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load pending states: %w", err)
	}

	processed := 0
	for _, state := range states {
		if ix.cancelled.Load() {
			return processed, types.ErrCancelled
		}
		paths, err := resolve(state.MediaID, state.MediaType)
		if err != nil {
			ix.logger.Warn("path resolution failed",
				"media_id", state.MediaID, "media_type", state.MediaType, "error", err)
			continue
		}
		for _, path := range paths {
			if state.StatusFor(sourceForPath(path)) != types.IndexPending {
				continue
			}
			if _, err := ix.IndexFile(ctx, path, state.MediaID, state.MediaType); err != nil {
				ix.logger.Warn("pending index failed", "path", path, "error", err)
			}
		}
		processed++
	}
	return processed, nil
}

// MarkPending queues a media item for indexing of the given source.
func (ix *Indexer) MarkPending(ctx context.Context, mediaID int64, mediaType types.MediaType, sourceType types.SourceType, priority int) error {
	state, err := ix.loadOrCreateState(ctx, mediaID, mediaType)
	if err != nil {
		return err
	}
	state.SetStatusFor(sourceType, types.IndexPending)
	if priority > state.Priority {
		state.Priority = priority
	}
	return ix.store.UpdateIndexState(ctx, state)
}

func (ix *Indexer) markStatus(ctx context.Context, mediaID int64, mediaType types.MediaType, sourceType types.SourceType, status types.IndexStatus) {
	state, err := ix.loadOrCreateState(ctx, mediaID, mediaType)
	if err != nil {
		ix.logger.Warn("index state load failed", "media_id", mediaID, "error", err)
		return
	}
	state.SetStatusFor(sourceType, status)
	if status == types.IndexCompleted {
		state.Progress = 1
	}
	if err := ix.store.UpdateIndexState(ctx, state); err != nil {
		ix.logger.Warn("index state update failed", "media_id", mediaID, "error", err)
	}
}

func (ix *Indexer) loadOrCreateState(ctx context.Context, mediaID int64, mediaType types.MediaType) (*types.IndexState, error) {
	state, err := ix.store.GetIndexState(ctx, mediaID, mediaType)
	if err == nil {
		return state, nil
	}
	if err != storage.ErrNotFound {
		return nil, err
	}
	return &types.IndexState{
		MediaID:   mediaID,
		MediaType: mediaType,
	}, nil
}

// sourceForPath maps a content file to its source type by extension.
func sourceForPath(path string) types.SourceType {
	if strings.EqualFold(filepath.Ext(path), ".nfo") {
		return types.SourceMetadata
	}
	return types.SourceSubtitle
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
