package storage

import (
	"context"
	"time"

	"github.com/medialib/scenesearch/pkg/types"
)

// Store defines the interface for persisting and querying semantic chunks,
// index state, and the auxiliary search structures.
type Store interface {
	// Chunk operations
	InsertChunk(ctx context.Context, chunk *types.SemanticChunk) (int64, error)
	InsertChunks(ctx context.Context, chunks []*types.SemanticChunk) ([]int64, error)
	GetChunk(ctx context.Context, chunkID int64) (*types.SemanticChunk, error)
	GetChunksForMedia(ctx context.Context, mediaID int64, mediaType types.MediaType) ([]*types.SemanticChunk, error)
	DeleteChunksForMedia(ctx context.Context, mediaID int64, mediaType types.MediaType) (int, error)

	// Full-text search
	SearchChunks(ctx context.Context, query string, opts *SearchOptions) ([]KeywordResult, error)
	Snippet(ctx context.Context, query string, chunkID int64, maxTokens int) (string, error)

	// Temporal context
	GetContext(ctx context.Context, mediaID int64, mediaType types.MediaType, timestampMs, windowMs int64) ([]*types.SemanticChunk, error)

	// Index state
	UpdateIndexState(ctx context.Context, state *types.IndexState) error
	GetIndexState(ctx context.Context, mediaID int64, mediaType types.MediaType) (*types.IndexState, error)
	GetPendingIndexStates(ctx context.Context, limit int) ([]*types.IndexState, error)

	// Transcription provider registry
	UpdateProvider(ctx context.Context, provider *Provider) error
	GetProvider(ctx context.Context, providerID string) (*Provider, error)
	UpdateProviderUsage(ctx context.Context, providerID string, transcribedMs int64, cost float64) error

	// Query expansion
	UpsertSynonym(ctx context.Context, syn *types.Synonym) error
	GetSynonyms(ctx context.Context, word, language string) ([]types.Synonym, error)

	// Suggestions
	RecordSuggestion(ctx context.Context, query string) error
	GetSuggestions(ctx context.Context, prefix string, limit int) ([]types.SearchSuggestion, error)

	// Filter presets
	SavePreset(ctx context.Context, preset *types.FilterPreset) error
	GetPreset(ctx context.Context, name string) (*types.FilterPreset, error)
	ListPresets(ctx context.Context) ([]*types.FilterPreset, error)
	DeletePreset(ctx context.Context, name string) error

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction. A rolled-back transaction leaves no
// partial chunk or state visible to subsequent reads.
type Tx interface {
	Commit() error
	Rollback() error
	Store
}

// SearchOptions narrows a full-text search.
type SearchOptions struct {
	MediaType     types.MediaType // Empty matches all
	MediaID       int64           // 0 matches all
	SourceTypes   []types.SourceType
	MinConfidence float64
	Limit         int
}

// KeywordResult is one ranked hit from the full-text index. Score is the
// BM25-derived relevance normalized to (0,1], decreasing down the list.
type KeywordResult struct {
	ChunkID int64
	Score   float64
}

// Provider is a transcription provider registry row with usage accounting.
type Provider struct {
	ID            string
	Name          string
	Configured    bool
	RequestCount  int64
	TranscribedMs int64
	CostEstimate  float64
	LastUsed      time.Time
}
