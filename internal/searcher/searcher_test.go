package searcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/internal/vector"
	"github.com/medialib/scenesearch/pkg/types"
)

// mockEmbedder returns a fixed vector or error for every query.
type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

type fixture struct {
	engine  *Engine
	db      *storage.SemanticDB
	vectors *vector.Store
	emb     *mockEmbedder
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	vecs := vector.NewStore(db.DB(), 4)
	require.NoError(t, vecs.CreateTable(context.Background()))

	emb := &mockEmbedder{vec: []float32{1, 0, 0, 0}}
	return &fixture{
		engine:  New(db, vecs, emb),
		db:      db,
		vectors: vecs,
		emb:     emb,
	}
}

// seedChunk inserts a chunk and optionally its embedding.
func (f *fixture) seedChunk(t *testing.T, text string, startMs int64, st types.SourceType, embedding []float32) int64 {
	t.Helper()
	ctx := context.Background()
	chunk := types.NewChunk(1, types.MediaMovie, st, text)
	chunk.StartMs = startMs
	chunk.EndMs = startMs + 2000
	id, err := f.db.InsertChunk(ctx, chunk)
	require.NoError(t, err)
	if embedding != nil {
		require.NoError(t, f.vectors.InsertVector(ctx, id, embedding))
	}
	return id
}

func TestSearchEmptyQuery(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.Search(context.Background(), "", DefaultOptions())
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestSearchUnknownMode(t *testing.T) {
	f := setupEngine(t)

	opts := DefaultOptions()
	opts.Mode = "regex"
	_, err := f.engine.Search(context.Background(), "anything", opts)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestKeywordSearch(t *testing.T) {
	f := setupEngine(t)
	id := f.seedChunk(t, "the dragon attacks the castle at dawn", 1000, types.SourceSubtitle, nil)
	f.seedChunk(t, "a quiet dinner conversation", 5000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, id, resp.Results[0].ChunkID)
	assert.Greater(t, resp.Results[0].KeywordScore, 0.0)
	assert.Zero(t, resp.Results[0].VectorScore)
	assert.Equal(t, "0:00:01", resp.Results[0].Timestamp)
	assert.Contains(t, resp.Results[0].Snippet, "dragon")
}

func TestKeywordSearchNoMatches(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "a quiet dinner conversation", 1000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	resp, err := f.engine.Search(context.Background(), "spaceship", opts)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSemanticSearchOrdersBySimilarity(t *testing.T) {
	f := setupEngine(t)
	near := f.seedChunk(t, "dragon fight", 1000, types.SourceSubtitle, []float32{1, 0, 0, 0})
	far := f.seedChunk(t, "dinner scene", 5000, types.SourceSubtitle, []float32{0, 1, 0, 0})

	opts := DefaultOptions()
	opts.Mode = ModeSemantic
	resp, err := f.engine.Search(context.Background(), "dragon battle", opts)
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, near, resp.Results[0].ChunkID)
	assert.Equal(t, far, resp.Results[1].ChunkID)
	assert.Greater(t, resp.Results[0].VectorScore, resp.Results[1].VectorScore)
}

func TestSemanticSearchMinConfidence(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon fight", 1000, types.SourceSubtitle, []float32{1, 0, 0, 0})
	f.seedChunk(t, "dinner scene", 5000, types.SourceSubtitle, []float32{-1, 0, 0, 0})

	opts := DefaultOptions()
	opts.Mode = ModeSemantic
	opts.MinConfidence = 0.9
	resp, err := f.engine.Search(context.Background(), "dragon battle", opts)
	require.NoError(t, err)

	// Only the identical vector (similarity 1.0) survives the cutoff.
	require.Len(t, resp.Results, 1)
}

func TestSemanticSearchEmbedFailureReturnsEmpty(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon fight", 1000, types.SourceSubtitle, []float32{1, 0, 0, 0})
	f.emb.err = errors.New("model load failed")

	opts := DefaultOptions()
	opts.Mode = ModeSemantic
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.DegradedToKeyword)
}

func TestSemanticSearchZeroVectorReturnsEmpty(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon fight", 1000, types.SourceSubtitle, []float32{1, 0, 0, 0})
	f.emb.vec = []float32{0, 0, 0, 0}

	opts := DefaultOptions()
	opts.Mode = ModeSemantic
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestHybridFallsBackToKeywordOnEmbedFailure(t *testing.T) {
	f := setupEngine(t)
	id := f.seedChunk(t, "the dragon attacks", 1000, types.SourceSubtitle, nil)
	f.emb.err = errors.New("model unavailable")

	resp, err := f.engine.Search(context.Background(), "dragon", DefaultOptions())
	require.NoError(t, err)

	assert.True(t, resp.DegradedToKeyword)
	assert.Equal(t, ModeHybrid, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, id, resp.Results[0].ChunkID)
}

func TestHybridFusesBothSignals(t *testing.T) {
	f := setupEngine(t)
	// Present in both rankings.
	both := f.seedChunk(t, "the dragon attacks the castle", 1000, types.SourceSubtitle, []float32{1, 0, 0, 0})
	// Keyword hit only.
	kwOnly := f.seedChunk(t, "dragon mentioned in passing", 5000, types.SourceSubtitle, nil)

	resp, err := f.engine.Search(context.Background(), "dragon", DefaultOptions())
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, both, resp.Results[0].ChunkID)
	assert.Equal(t, kwOnly, resp.Results[1].ChunkID)
	assert.Greater(t, resp.Results[0].CombinedScore, resp.Results[1].CombinedScore)
	assert.Equal(t, 2, resp.KeywordHits)
	assert.Equal(t, 1, resp.VectorHits)
}

func TestFuseRRFWeightedScores(t *testing.T) {
	// Chunk 100 first in keyword, third in vector; chunk 200 keyword
	// rank 5 only. 0.4/61 + 0.6/63 must beat 0.4/66.
	keyword := []storage.KeywordResult{
		{ChunkID: 100, Score: 0.9},
		{ChunkID: 2, Score: 0.8},
		{ChunkID: 3, Score: 0.7},
		{ChunkID: 4, Score: 0.6},
		{ChunkID: 5, Score: 0.5},
		{ChunkID: 200, Score: 0.4},
	}
	vectors := []vector.Result{
		{ChunkID: 7, Distance: 0.1},
		{ChunkID: 8, Distance: 0.2},
		{ChunkID: 100, Distance: 0.3},
	}
	opts := DefaultOptions()
	normalizeOptions(&opts)

	fused := fuseRRF(keyword, vectors, &opts)

	scores := make(map[int64]float64, len(fused))
	for _, fr := range fused {
		scores[fr.chunkID] = fr.combined
	}
	assert.InDelta(t, 0.4/61+0.6/63, scores[100], 1e-9)
	assert.InDelta(t, 0.4/66, scores[200], 1e-9)
	assert.Greater(t, scores[100], scores[200])
	assert.Equal(t, int64(100), fused[0].chunkID)
}

func TestFuseRRFAbsentListContributesZero(t *testing.T) {
	keyword := []storage.KeywordResult{{ChunkID: 1, Score: 0.9}}
	opts := DefaultOptions()
	normalizeOptions(&opts)

	fused := fuseRRF(keyword, nil, &opts)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.4/61, fused[0].combined, 1e-9)
	assert.Zero(t, fused[0].vectorScore)
}

func TestSourceTypeFilter(t *testing.T) {
	f := setupEngine(t)
	sub := f.seedChunk(t, "dragon dialogue line", 1000, types.SourceSubtitle, nil)
	f.seedChunk(t, "dragon plot summary", 0, types.SourceMetadata, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.IncludeMetadata = false
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, sub, resp.Results[0].ChunkID)
}

func TestAllFalseSourceFiltersIncludeEverything(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon dialogue line", 1000, types.SourceSubtitle, nil)
	f.seedChunk(t, "dragon plot summary", 0, types.SourceMetadata, nil)

	opts := Options{Mode: ModeKeyword}
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestMediaFilters(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	movie := types.NewChunk(1, types.MediaMovie, types.SourceSubtitle, "dragon in the movie")
	movie.StartMs, movie.EndMs = 1000, 2000
	movieID, err := f.db.InsertChunk(ctx, movie)
	require.NoError(t, err)

	episode := types.NewChunk(2, types.MediaEpisode, types.SourceSubtitle, "dragon in the episode")
	episode.StartMs, episode.EndMs = 1000, 2000
	_, err = f.db.InsertChunk(ctx, episode)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.MediaType = types.MediaMovie
	resp, err := f.engine.Search(ctx, "dragon", opts)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, movieID, resp.Results[0].ChunkID)
}

func TestUnappliedFiltersReported(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon dialogue", 1000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.Genres = []string{"fantasy"}
	opts.MinYear = 2000
	opts.MPAARating = "PG-13"
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"genres", "minYear", "mpaaRating"}, resp.FiltersNotApplied)
	// Filters are accepted but never drop results.
	assert.Len(t, resp.Results, 1)
}

func TestMaxResultsTruncation(t *testing.T) {
	f := setupEngine(t)
	for i := 0; i < 5; i++ {
		f.seedChunk(t, "dragon sighting number one", int64(1000*(i+1)), types.SourceSubtitle, nil)
	}

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.MaxResults = 3
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
}

func TestQueryCacheHit(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon dialogue", 1000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.UseCache = true

	first, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)
}

func TestQueryCacheRespectsOptions(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon dialogue", 1000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.UseCache = true

	_, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)

	// Different max results means a different cache key.
	opts.MaxResults = 5
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestQueryCacheTTLExpiry(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon dialogue", 1000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.UseCache = true
	opts.CacheTTL = 20 * time.Millisecond

	_, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestInvalidateCache(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon dialogue", 1000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.UseCache = true

	_, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)

	f.engine.InvalidateCache()

	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestCachedResultsAreIsolated(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "dragon dialogue", 1000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	opts.UseCache = true

	first, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	first.Results[0].Snippet = "mutated"
	first.Results[0].Chunk.Text = "mutated"

	second, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.Results[0].Snippet)
	assert.NotEqual(t, "mutated", second.Results[0].Chunk.Text)
}

func TestFindSimilar(t *testing.T) {
	f := setupEngine(t)
	seed := f.seedChunk(t, "dragon attacks castle", 1000, types.SourceSubtitle, []float32{1, 0, 0, 0})
	close1 := f.seedChunk(t, "dragon breathes fire", 4000, types.SourceSubtitle, []float32{0.9, 0.1, 0, 0})
	f.seedChunk(t, "quiet dinner scene", 8000, types.SourceSubtitle, []float32{0, 0, 1, 0})

	results, err := f.engine.FindSimilar(context.Background(), seed, 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, close1, results[0].ChunkID)
	// The seed chunk never appears in its own results.
	for _, r := range results {
		assert.NotEqual(t, seed, r.ChunkID)
	}
}

func TestFindSimilarNoStoredVector(t *testing.T) {
	f := setupEngine(t)
	id := f.seedChunk(t, "dragon attacks castle", 1000, types.SourceSubtitle, nil)

	results, err := f.engine.FindSimilar(context.Background(), id, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGetResultContext(t *testing.T) {
	f := setupEngine(t)
	f.seedChunk(t, "before the fight", 1000, types.SourceSubtitle, nil)
	mid := f.seedChunk(t, "the dragon attacks", 4000, types.SourceSubtitle, nil)
	f.seedChunk(t, "after the fight", 7000, types.SourceSubtitle, nil)

	opts := DefaultOptions()
	opts.Mode = ModeKeyword
	resp, err := f.engine.Search(context.Background(), "dragon", opts)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	window, err := f.engine.GetResultContext(context.Background(), &resp.Results[0], 10000)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, mid, window[1].ID)
}

func TestGetResultContextNilResult(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.GetResultContext(context.Background(), nil, 5000)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := Options{}
	normalizeOptions(&opts)

	assert.Equal(t, ModeHybrid, opts.Mode)
	assert.Equal(t, DefaultKeywordWeight, opts.KeywordWeight)
	assert.Equal(t, DefaultVectorWeight, opts.VectorWeight)
	assert.Equal(t, DefaultRRFConstant, opts.RRFConstant)
	assert.Equal(t, DefaultKeywordTopK, opts.KeywordTopK)
	assert.Equal(t, DefaultVectorTopK, opts.VectorTopK)
	assert.Equal(t, DefaultMaxResults, opts.MaxResults)
	assert.True(t, opts.IncludeSubtitles)
	assert.True(t, opts.IncludeTranscription)
	assert.True(t, opts.IncludeMetadata)
}
