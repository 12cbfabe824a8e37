// Package timeline retrieves temporal context around positions in a
// media item: surrounding dialogue windows, neighboring chunks, and
// heuristic scene boundaries.
package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/pkg/types"
)

// SceneGapMs is the silence length treated as a candidate scene break.
const SceneGapMs = 5000

// DefaultWindowMs is the context window used when the caller passes 0.
const DefaultWindowMs = 30000

// ContextChunk is a chunk with its relevance to the window center.
type ContextChunk struct {
	Chunk *types.SemanticChunk

	// Relevance decays linearly from 1 at the window center to 0 at
	// the window edge.
	Relevance float64
}

// ContextWindow is the retrieved context around one position. Chunks
// are always sorted by start time ascending.
type ContextWindow struct {
	MediaID   int64
	MediaType types.MediaType

	// Window bounds in milliseconds, StartMs clamped to 0.
	StartMs int64
	EndMs   int64

	Chunks []ContextChunk
}

// CenterMs returns the midpoint of the window.
func (w *ContextWindow) CenterMs() int64 {
	return (w.StartMs + w.EndMs) / 2
}

// Provider answers temporal queries against the chunk store.
type Provider struct {
	store  storage.Store
	logger *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a timeline provider over the chunk store.
func New(store storage.Store, opts ...Option) *Provider {
	p := &Provider{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetContextAt retrieves chunks intersecting the window centered on
// timestampMs, with per-chunk relevance decaying linearly from the
// center.
func (p *Provider) GetContextAt(ctx context.Context, mediaID int64, mediaType types.MediaType, timestampMs, windowMs int64) (*ContextWindow, error) {
	if windowMs <= 0 {
		windowMs = DefaultWindowMs
	}
	startMs := timestampMs - windowMs/2
	if startMs < 0 {
		startMs = 0
	}
	return p.fetchWindow(ctx, mediaID, mediaType, startMs, timestampMs+windowMs/2)
}

// ExpandBefore grows the window earlier by amountMs and re-fetches the
// whole expanded range.
func (p *Provider) ExpandBefore(ctx context.Context, w *ContextWindow, amountMs int64) (*ContextWindow, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: nil context window", types.ErrInvalidInput)
	}
	startMs := w.StartMs - amountMs
	if startMs < 0 {
		startMs = 0
	}
	return p.fetchWindow(ctx, w.MediaID, w.MediaType, startMs, w.EndMs)
}

// ExpandAfter grows the window later by amountMs and re-fetches the
// whole expanded range.
func (p *Provider) ExpandAfter(ctx context.Context, w *ContextWindow, amountMs int64) (*ContextWindow, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: nil context window", types.ErrInvalidInput)
	}
	return p.fetchWindow(ctx, w.MediaID, w.MediaType, w.StartMs, w.EndMs+amountMs)
}

func (p *Provider) fetchWindow(ctx context.Context, mediaID int64, mediaType types.MediaType, startMs, endMs int64) (*ContextWindow, error) {
	center := (startMs + endMs) / 2
	span := endMs - startMs

	chunks, err := p.store.GetContext(ctx, mediaID, mediaType, center, span)
	if err != nil {
		return nil, fmt.Errorf("context query: %w", err)
	}

	window := &ContextWindow{
		MediaID:   mediaID,
		MediaType: mediaType,
		StartMs:   startMs,
		EndMs:     endMs,
		Chunks:    make([]ContextChunk, 0, len(chunks)),
	}
	halfSpan := float64(span) / 2
	for _, chunk := range chunks {
		window.Chunks = append(window.Chunks, ContextChunk{
			Chunk:     chunk,
			Relevance: relevanceAt(chunk, center, halfSpan),
		})
	}
	sort.SliceStable(window.Chunks, func(i, j int) bool {
		return window.Chunks[i].Chunk.StartMs < window.Chunks[j].Chunk.StartMs
	})
	return window, nil
}

// relevanceAt decays linearly with the distance of the chunk midpoint
// from the window center, clamped to [0,1].
func relevanceAt(chunk *types.SemanticChunk, centerMs int64, halfSpanMs float64) float64 {
	if halfSpanMs <= 0 {
		return 1
	}
	mid := float64(chunk.StartMs+chunk.EndMs) / 2
	distance := mid - float64(centerMs)
	if distance < 0 {
		distance = -distance
	}
	rel := 1 - distance/halfSpanMs
	if rel < 0 {
		return 0
	}
	if rel > 1 {
		return 1
	}
	return rel
}

// GetSceneBoundaries flags gaps longer than SceneGapMs between
// consecutive timed chunks. Each boundary is the start time of the
// chunk after the gap.
func (p *Provider) GetSceneBoundaries(ctx context.Context, mediaID int64, mediaType types.MediaType) ([]int64, error) {
	chunks, err := p.timedChunks(ctx, mediaID, mediaType)
	if err != nil {
		return nil, err
	}

	var boundaries []int64
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartMs-chunks[i-1].EndMs > SceneGapMs {
			boundaries = append(boundaries, chunks[i].StartMs)
		}
	}
	return boundaries, nil
}

// GetNextChunk returns the first chunk starting after the interval
// containing timestampMs, or nil when none exists.
func (p *Provider) GetNextChunk(ctx context.Context, mediaID int64, mediaType types.MediaType, timestampMs int64) (*types.SemanticChunk, error) {
	chunks, err := p.timedChunks(ctx, mediaID, mediaType)
	if err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		if chunk.StartMs > timestampMs && !contains(chunk, timestampMs) {
			return chunk, nil
		}
	}
	return nil, nil
}

// GetPreviousChunk returns the last chunk starting before the interval
// containing timestampMs, or nil when none exists.
func (p *Provider) GetPreviousChunk(ctx context.Context, mediaID int64, mediaType types.MediaType, timestampMs int64) (*types.SemanticChunk, error) {
	chunks, err := p.timedChunks(ctx, mediaID, mediaType)
	if err != nil {
		return nil, err
	}
	var prev *types.SemanticChunk
	for _, chunk := range chunks {
		if chunk.StartMs >= timestampMs || contains(chunk, timestampMs) {
			break
		}
		prev = chunk
	}
	return prev, nil
}

// timedChunks loads a media item's chunks sorted by start, dropping
// untimed metadata chunks.
func (p *Provider) timedChunks(ctx context.Context, mediaID int64, mediaType types.MediaType) ([]*types.SemanticChunk, error) {
	chunks, err := p.store.GetChunksForMedia(ctx, mediaID, mediaType)
	if err != nil {
		return nil, fmt.Errorf("load media chunks: %w", err)
	}
	timed := make([]*types.SemanticChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Timed() {
			timed = append(timed, chunk)
		}
	}
	return timed, nil
}

func contains(chunk *types.SemanticChunk, timestampMs int64) bool {
	return timestampMs >= chunk.StartMs && timestampMs <= chunk.EndMs
}
