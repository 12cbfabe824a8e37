// Package enrich joins search results with external media metadata for
// display. The metadata source is an interface so the subsystem never
// depends on a specific library backend.
package enrich

import (
	"context"
	"log/slog"

	"github.com/medialib/scenesearch/pkg/types"
)

// MediaMetadata is the display metadata for one media item.
type MediaMetadata struct {
	Title      string
	Plot       string
	Year       int
	Rating     float64
	ArtworkURL string
}

// MetadataSource resolves metadata for a media item. Implementations
// typically wrap the hosting application's media library.
type MetadataSource interface {
	GetMetadata(ctx context.Context, mediaID int64, mediaType types.MediaType) (*MediaMetadata, error)
}

// Enricher joins results with metadata. A missing or failing lookup
// leaves the result unenriched rather than dropping it.
type Enricher struct {
	source MetadataSource
	logger *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an enricher over the given metadata source. A nil source
// yields passthrough enrichment.
func New(source MetadataSource, opts ...Option) *Enricher {
	e := &Enricher{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type mediaKey struct {
	id int64
	mt types.MediaType
}

// Enrich joins each result with its media item's metadata. Metadata is
// fetched once per media item per call.
func (e *Enricher) Enrich(ctx context.Context, results []types.SearchResult) []types.EnrichedResult {
	enriched := make([]types.EnrichedResult, len(results))
	cache := make(map[mediaKey]*MediaMetadata)

	for i, result := range results {
		enriched[i] = types.EnrichedResult{SearchResult: result}
		if e.source == nil || result.Chunk == nil {
			continue
		}

		key := mediaKey{id: result.Chunk.MediaID, mt: result.Chunk.MediaType}
		meta, seen := cache[key]
		if !seen {
			var err error
			meta, err = e.source.GetMetadata(ctx, key.id, key.mt)
			if err != nil {
				e.logger.Debug("metadata lookup failed",
					"media_id", key.id, "media_type", key.mt, "error", err)
				meta = nil
			}
			cache[key] = meta
		}
		if meta == nil {
			continue
		}

		enriched[i].Title = meta.Title
		enriched[i].Plot = meta.Plot
		enriched[i].Year = meta.Year
		enriched[i].Rating = meta.Rating
		enriched[i].ArtworkURL = meta.ArtworkURL
	}
	return enriched
}

// EnrichOne joins a single result.
func (e *Enricher) EnrichOne(ctx context.Context, result types.SearchResult) types.EnrichedResult {
	enriched := e.Enrich(ctx, []types.SearchResult{result})
	return enriched[0]
}
