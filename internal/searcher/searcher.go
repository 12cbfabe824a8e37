package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/medialib/scenesearch/internal/embedder"
	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/internal/vector"
	"github.com/medialib/scenesearch/pkg/types"
)

// Mode selects the ranking strategy for a query.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"   // Keyword + vector fused with RRF
	ModeKeyword  Mode = "keyword"  // BM25 full-text only
	ModeSemantic Mode = "semantic" // Vector similarity only
)

// Defaults for Options fields left at their zero value.
const (
	DefaultKeywordWeight = 0.4
	DefaultVectorWeight  = 0.6
	DefaultKeywordTopK   = 100
	DefaultVectorTopK    = 100
	DefaultMaxResults    = 20
	DefaultRRFConstant   = 60.0
	DefaultCacheTTL      = 5 * time.Minute
	maxResultsCap        = 100
)

// Options controls one search. The zero value plus a query is a valid
// hybrid search with default weights and limits.
type Options struct {
	Mode Mode

	// RRF fusion parameters.
	KeywordWeight float64
	VectorWeight  float64
	RRFConstant   float64

	// Candidate pool sizes for the two sub-searches.
	KeywordTopK int
	VectorTopK  int

	MaxResults int

	// Filters applied by the sub-searches.
	MediaType     types.MediaType
	MediaID       int64
	MinConfidence float64

	// Source-type inclusion, enforced on the final result set. All
	// false is treated as all true.
	IncludeSubtitles     bool
	IncludeTranscription bool
	IncludeMetadata      bool

	// Media-metadata filters. Accepted but not applied until an
	// external metadata source is wired; Response.FiltersNotApplied
	// names the ones that were requested.
	Genres             []string
	MinYear            int
	MaxYear            int
	MPAARating         string
	MinDurationMinutes int
	MaxDurationMinutes int

	UseCache bool
	CacheTTL time.Duration
}

// DefaultOptions returns hybrid-mode options with all defaults set
// explicitly and all source types included.
func DefaultOptions() Options {
	return Options{
		Mode:                 ModeHybrid,
		KeywordWeight:        DefaultKeywordWeight,
		VectorWeight:         DefaultVectorWeight,
		RRFConstant:          DefaultRRFConstant,
		KeywordTopK:          DefaultKeywordTopK,
		VectorTopK:           DefaultVectorTopK,
		MaxResults:           DefaultMaxResults,
		IncludeSubtitles:     true,
		IncludeTranscription: true,
		IncludeMetadata:      true,
	}
}

// Response carries ranked results plus per-query diagnostics.
type Response struct {
	Results []types.SearchResult

	Mode     Mode
	Duration time.Duration
	CacheHit bool

	// Sub-search contribution counts before fusion.
	KeywordHits int
	VectorHits  int

	// DegradedToKeyword is set when a hybrid query fell back to
	// keyword-only because the query could not be embedded.
	DegradedToKeyword bool

	// FiltersNotApplied names requested metadata filters that the
	// engine accepted but could not enforce.
	FiltersNotApplied []string
}

// Embedder is the slice of the embedding engine the searcher needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryRecorder receives executed queries for suggestion bookkeeping.
type QueryRecorder interface {
	RecordQuery(ctx context.Context, query string)
}

// Engine runs keyword, semantic, and hybrid searches over the chunk
// store and vector index. Safe for concurrent use.
type Engine struct {
	store    storage.Store
	vectors  *vector.Store
	embedder Embedder
	monitor  perfMonitor
	recorder QueryRecorder
	cache    *queryCache
	logger   *slog.Logger
}

// perfMonitor matches perf.Monitor without importing it here; the
// searcher only records searches and operations.
type perfMonitor interface {
	RecordOperation(name string, duration time.Duration)
	RecordSearch(mode string, duration time.Duration, hits int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMonitor wires a performance monitor.
func WithMonitor(m perfMonitor) Option {
	return func(e *Engine) {
		if m != nil {
			e.monitor = m
		}
	}
}

// WithQueryRecorder wires suggestion recording for executed queries.
func WithQueryRecorder(r QueryRecorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithCacheSize overrides the query cache capacity.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cache = newQueryCache(n)
		}
	}
}

type noopPerf struct{}

func (noopPerf) RecordOperation(string, time.Duration)   {}
func (noopPerf) RecordSearch(string, time.Duration, int) {}

// New creates a search engine over the given stores.
func New(store storage.Store, vectors *vector.Store, emb Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		vectors:  vectors,
		embedder: emb,
		monitor:  noopPerf{},
		cache:    newQueryCache(defaultCacheCapacity),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs one query. Sub-search failures degrade to empty
// contributor lists; only an invalid request is an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()

	if query == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrInvalidInput)
	}
	normalizeOptions(&opts)

	if opts.UseCache {
		if cached, ok := e.cache.get(query, &opts); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var resp *Response
	switch opts.Mode {
	case ModeKeyword:
		resp = e.keywordSearch(ctx, query, &opts)
	case ModeSemantic:
		resp = e.semanticSearch(ctx, query, &opts)
	case ModeHybrid:
		resp = e.hybridSearch(ctx, query, &opts)
	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", types.ErrInvalidInput, opts.Mode)
	}

	resp.Mode = opts.Mode
	resp.FiltersNotApplied = unappliedFilters(&opts)
	resp.Duration = time.Since(start)

	e.monitor.RecordSearch(string(opts.Mode), resp.Duration, len(resp.Results))
	if e.recorder != nil {
		e.recorder.RecordQuery(ctx, query)
	}
	if opts.UseCache && len(resp.Results) > 0 {
		e.cache.put(query, &opts, resp)
	}
	return resp, nil
}

// keywordSearch delegates to the full-text index. A storage failure
// yields an empty result set, not an error.
func (e *Engine) keywordSearch(ctx context.Context, query string, opts *Options) *Response {
	hits := e.runKeyword(ctx, query, opts)

	ranked := make([]fusedResult, len(hits))
	for i, h := range hits {
		ranked[i] = fusedResult{chunkID: h.ChunkID, keywordScore: h.Score, combined: h.Score}
	}
	return &Response{
		Results:     e.buildResults(ctx, query, ranked, opts),
		KeywordHits: len(hits),
	}
}

// semanticSearch embeds the query and runs vector search alone. An
// unusable embedding yields an empty result, never a keyword fallback.
func (e *Engine) semanticSearch(ctx context.Context, query string, opts *Options) *Response {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil || embedder.IsZeroVector(queryVec) {
		if err != nil {
			e.logger.Warn("query embedding failed", "error", err)
		}
		return &Response{}
	}

	hits := e.runVector(ctx, queryVec, opts)

	ranked := make([]fusedResult, 0, len(hits))
	for _, h := range hits {
		sim := h.Similarity()
		if sim < opts.MinConfidence {
			continue
		}
		ranked = append(ranked, fusedResult{chunkID: h.ChunkID, vectorScore: sim, combined: sim})
	}
	return &Response{
		Results:    e.buildResults(ctx, query, ranked, opts),
		VectorHits: len(hits),
	}
}

// subResult carries one sub-search's output across its goroutine.
type subResult struct {
	keyword []storage.KeywordResult
	vec     []vector.Result
}

// hybridSearch fuses keyword and vector rankings with weighted RRF.
// If the query cannot be embedded it falls back to keyword-only.
func (e *Engine) hybridSearch(ctx context.Context, query string, opts *Options) *Response {
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil || embedder.IsZeroVector(queryVec) {
		if err != nil {
			e.logger.Warn("query embedding failed, using keyword fallback", "error", err)
		}
		resp := e.keywordSearch(ctx, query, opts)
		resp.DegradedToKeyword = true
		return resp
	}

	keywordChan := make(chan subResult, 1)
	vectorChan := make(chan subResult, 1)
	go func() {
		keywordChan <- subResult{keyword: e.runKeyword(ctx, query, opts)}
	}()
	go func() {
		vectorChan <- subResult{vec: e.runVector(ctx, queryVec, opts)}
	}()

	var keywordHits []storage.KeywordResult
	var vectorHits []vector.Result
	for i := 0; i < 2; i++ {
		select {
		case r := <-keywordChan:
			keywordHits = r.keyword
		case r := <-vectorChan:
			vectorHits = r.vec
		case <-ctx.Done():
			return &Response{}
		}
	}

	ranked := fuseRRF(keywordHits, vectorHits, opts)
	return &Response{
		Results:     e.buildResults(ctx, query, ranked, opts),
		KeywordHits: len(keywordHits),
		VectorHits:  len(vectorHits),
	}
}

// runKeyword executes the full-text sub-search, degrading to empty on
// failure.
func (e *Engine) runKeyword(ctx context.Context, query string, opts *Options) []storage.KeywordResult {
	timer := time.Now()
	hits, err := e.store.SearchChunks(ctx, query, &storage.SearchOptions{
		MediaType:     opts.MediaType,
		MediaID:       opts.MediaID,
		MinConfidence: opts.MinConfidence,
		Limit:         opts.KeywordTopK,
	})
	e.monitor.RecordOperation("search.keyword", time.Since(timer))
	if err != nil {
		e.logger.Warn("keyword search failed", "error", err)
		return nil
	}
	return hits
}

// runVector executes the vector sub-search, degrading to empty on
// failure. When a media filter is set the search is restricted to that
// media item's chunks.
func (e *Engine) runVector(ctx context.Context, queryVec []float32, opts *Options) []vector.Result {
	timer := time.Now()
	var hits []vector.Result
	var err error
	if opts.MediaID != 0 && opts.MediaType != "" {
		var candidates []int64
		candidates, err = e.candidateIDs(ctx, opts.MediaID, opts.MediaType)
		if err == nil {
			hits, err = e.vectors.SearchSimilarFiltered(ctx, queryVec, opts.VectorTopK, candidates)
		}
	} else {
		hits, err = e.vectors.SearchSimilar(ctx, queryVec, opts.VectorTopK)
	}
	e.monitor.RecordOperation("search.vector", time.Since(timer))
	if err != nil {
		e.logger.Warn("vector search failed", "error", err)
		return nil
	}
	return hits
}

func (e *Engine) candidateIDs(ctx context.Context, mediaID int64, mediaType types.MediaType) ([]int64, error) {
	chunks, err := e.store.GetChunksForMedia(ctx, mediaID, mediaType)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids, nil
}

// fusedResult is a candidate chunk with its per-signal and combined
// scores.
type fusedResult struct {
	chunkID      int64
	keywordScore float64
	vectorScore  float64
	combined     float64
}

// fuseRRF combines the two ranked lists with weighted Reciprocal Rank
// Fusion. A chunk absent from a list contributes zero for that signal.
func fuseRRF(keywordHits []storage.KeywordResult, vectorHits []vector.Result, opts *Options) []fusedResult {
	k := opts.RRFConstant
	byID := make(map[int64]*fusedResult, len(keywordHits)+len(vectorHits))

	for rank, h := range keywordHits {
		byID[h.ChunkID] = &fusedResult{
			chunkID:      h.ChunkID,
			keywordScore: h.Score,
			combined:     opts.KeywordWeight / (k + float64(rank) + 1),
		}
	}
	for rank, h := range vectorHits {
		contribution := opts.VectorWeight / (k + float64(rank) + 1)
		if fr, ok := byID[h.ChunkID]; ok {
			fr.vectorScore = h.Similarity()
			fr.combined += contribution
		} else {
			byID[h.ChunkID] = &fusedResult{
				chunkID:     h.ChunkID,
				vectorScore: h.Similarity(),
				combined:    contribution,
			}
		}
	}

	fused := make([]fusedResult, 0, len(byID))
	for _, fr := range byID {
		fused = append(fused, *fr)
	}
	// Ties break on chunk ID so ranking is deterministic.
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].combined != fused[j].combined {
			return fused[i].combined > fused[j].combined
		}
		return fused[i].chunkID < fused[j].chunkID
	})
	return fused
}

// buildResults loads chunks for the top candidates, enforces the
// source-type filter, and attaches snippets and timestamps. Chunks
// that fail to load are skipped.
func (e *Engine) buildResults(ctx context.Context, query string, ranked []fusedResult, opts *Options) []types.SearchResult {
	limit := opts.MaxResults
	if limit > len(ranked) {
		limit = len(ranked)
	}

	results := make([]types.SearchResult, 0, limit)
	for _, fr := range ranked[:limit] {
		chunk, err := e.store.GetChunk(ctx, fr.chunkID)
		if err != nil {
			e.logger.Debug("result chunk load failed", "chunk_id", fr.chunkID, "error", err)
			continue
		}
		if !sourceIncluded(chunk.SourceType, opts) {
			continue
		}

		snippet, err := e.store.Snippet(ctx, query, fr.chunkID, 24)
		if err != nil {
			snippet = chunk.Text
		}
		results = append(results, types.SearchResult{
			ChunkID:       fr.chunkID,
			Chunk:         chunk,
			KeywordScore:  fr.keywordScore,
			VectorScore:   fr.vectorScore,
			CombinedScore: fr.combined,
			Snippet:       snippet,
			Timestamp:     types.FormatTimestamp(chunk.StartMs),
		})
	}
	return results
}

// FindSimilar returns a "more like this" ranking seeded by the stored
// embedding for the given chunk. A chunk without a stored vector
// yields an empty result.
func (e *Engine) FindSimilar(ctx context.Context, chunkID int64, topK int) ([]types.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultMaxResults
	}
	seed, err := e.vectors.GetVector(ctx, chunkID)
	if err != nil {
		return nil, fmt.Errorf("load seed vector: %w", err)
	}
	if seed == nil {
		return nil, nil
	}

	// Fetch one extra so dropping the seed chunk still fills topK.
	hits, err := e.vectors.SearchSimilar(ctx, seed, topK+1)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	opts := DefaultOptions()
	opts.MaxResults = topK
	ranked := make([]fusedResult, 0, len(hits))
	for _, h := range hits {
		if h.ChunkID == chunkID {
			continue
		}
		sim := h.Similarity()
		ranked = append(ranked, fusedResult{chunkID: h.ChunkID, vectorScore: sim, combined: sim})
	}
	return e.buildResults(ctx, "", ranked, &opts), nil
}

// GetResultContext retrieves the temporal window around a result.
func (e *Engine) GetResultContext(ctx context.Context, result *types.SearchResult, windowMs int64) ([]*types.SemanticChunk, error) {
	if result == nil || result.Chunk == nil {
		return nil, fmt.Errorf("%w: result has no chunk", types.ErrInvalidInput)
	}
	chunk := result.Chunk
	center := (chunk.StartMs + chunk.EndMs) / 2
	return e.store.GetContext(ctx, chunk.MediaID, chunk.MediaType, center, windowMs)
}

// InvalidateCache drops all cached responses. Called after re-indexing
// so stale rankings are never served.
func (e *Engine) InvalidateCache() {
	e.cache.purge()
}

func sourceIncluded(st types.SourceType, opts *Options) bool {
	switch st {
	case types.SourceSubtitle:
		return opts.IncludeSubtitles
	case types.SourceTranscription:
		return opts.IncludeTranscription
	case types.SourceMetadata:
		return opts.IncludeMetadata
	default:
		return true
	}
}

func unappliedFilters(opts *Options) []string {
	var names []string
	if len(opts.Genres) > 0 {
		names = append(names, "genres")
	}
	if opts.MinYear > 0 {
		names = append(names, "minYear")
	}
	if opts.MaxYear > 0 {
		names = append(names, "maxYear")
	}
	if opts.MPAARating != "" {
		names = append(names, "mpaaRating")
	}
	if opts.MinDurationMinutes > 0 {
		names = append(names, "minDurationMinutes")
	}
	if opts.MaxDurationMinutes > 0 {
		names = append(names, "maxDurationMinutes")
	}
	return names
}

func normalizeOptions(opts *Options) {
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.KeywordWeight <= 0 {
		opts.KeywordWeight = DefaultKeywordWeight
	}
	if opts.VectorWeight <= 0 {
		opts.VectorWeight = DefaultVectorWeight
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = DefaultRRFConstant
	}
	if opts.KeywordTopK <= 0 {
		opts.KeywordTopK = DefaultKeywordTopK
	}
	if opts.VectorTopK <= 0 {
		opts.VectorTopK = DefaultVectorTopK
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.MaxResults > maxResultsCap {
		opts.MaxResults = maxResultsCap
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	// All-false source inclusion means the caller did not opt in to
	// filtering; include everything.
	if !opts.IncludeSubtitles && !opts.IncludeTranscription && !opts.IncludeMetadata {
		opts.IncludeSubtitles = true
		opts.IncludeTranscription = true
		opts.IncludeMetadata = true
	}
}
