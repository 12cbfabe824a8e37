package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/medialib/scenesearch/internal/reranker"
	"github.com/medialib/scenesearch/internal/searcher"
	"github.com/medialib/scenesearch/internal/timeline"
	"github.com/medialib/scenesearch/pkg/types"
)

// SearchTestSuite exercises the query side against indexed fixtures.
type SearchTestSuite struct {
	baseSuite
}

func TestSearchSuite(t *testing.T) {
	suite.Run(t, new(SearchTestSuite))
}

func (s *SearchTestSuite) SetupTest() {
	s.baseSuite.SetupTest()
	_, err := s.indexer.IndexFile(s.ctx, s.fixture("episode.srt"), 1, types.MediaEpisode)
	s.Require().NoError(err)
}

func (s *SearchTestSuite) TestHybridCombinesSignals() {
	resp, err := s.searcher.Search(s.ctx, "car chase", searcher.Options{Mode: searcher.ModeHybrid})
	s.Require().NoError(err)

	s.Equal(searcher.ModeHybrid, resp.Mode)
	s.Require().NotEmpty(resp.Results)
	s.Positive(resp.KeywordHits)
	s.Positive(resp.VectorHits)
	s.False(resp.DegradedToKeyword)

	first := resp.Results[0]
	s.Positive(first.CombinedScore)
	s.Contains(first.Chunk.Text, "chase")
}

func (s *SearchTestSuite) TestSemanticRanksSharedVocabulary() {
	resp, err := s.searcher.Search(s.ctx, "police chase tonight", searcher.Options{Mode: searcher.ModeSemantic})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	for _, r := range resp.Results {
		s.Positive(r.VectorScore)
		s.Zero(r.KeywordScore)
	}
}

func (s *SearchTestSuite) TestHybridDegradesToKeywordOnEmbedFailure() {
	broken := searcher.New(s.db, s.vectors, failingEmbedder{})

	resp, err := broken.Search(s.ctx, "rooftop", searcher.Options{Mode: searcher.ModeHybrid})
	s.Require().NoError(err)
	s.True(resp.DegradedToKeyword)
	s.NotEmpty(resp.Results)

	resp, err = broken.Search(s.ctx, "rooftop", searcher.Options{Mode: searcher.ModeSemantic})
	s.Require().NoError(err)
	s.False(resp.DegradedToKeyword)
	s.Empty(resp.Results)
}

func (s *SearchTestSuite) TestCacheSurvivesUntilInvalidated() {
	opts := searcher.DefaultOptions()
	opts.Mode = searcher.ModeKeyword

	first, err := s.searcher.Search(s.ctx, "bridge", opts)
	s.Require().NoError(err)
	s.False(first.CacheHit)

	second, err := s.searcher.Search(s.ctx, "bridge", opts)
	s.Require().NoError(err)
	s.True(second.CacheHit)

	s.searcher.InvalidateCache()
	third, err := s.searcher.Search(s.ctx, "bridge", opts)
	s.Require().NoError(err)
	s.False(third.CacheHit)
}

func (s *SearchTestSuite) TestRerankerPromotesLexicalOverlap() {
	resp, err := s.searcher.Search(s.ctx, "wedding", searcher.Options{Mode: searcher.ModeKeyword})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	ce := reranker.New(reranker.NewLocalBackend())
	s.Require().NoError(ce.Initialize(s.ctx, reranker.DefaultConfig("", "")))
	defer func() { ce.Close() }()

	candidates := make([]reranker.Candidate, len(resp.Results))
	for i, r := range resp.Results {
		candidates[i] = reranker.Candidate{
			ID:            r.ChunkID,
			Passage:       r.Chunk.Text,
			OriginalScore: r.CombinedScore,
		}
	}

	ranked, err := ce.ReRank(s.ctx, "wedding photographs", candidates)
	s.Require().NoError(err)
	s.Require().Len(ranked, len(candidates))
	for i := 1; i < len(ranked); i++ {
		s.GreaterOrEqual(ranked[i-1].FinalScore, ranked[i].FinalScore)
	}
}

func (s *SearchTestSuite) TestResultContextWindow() {
	resp, err := s.searcher.Search(s.ctx, "driver escapes", searcher.Options{Mode: searcher.ModeKeyword})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	chunks, err := s.searcher.GetResultContext(s.ctx, &resp.Results[0], 20000)
	s.Require().NoError(err)
	s.Require().NotEmpty(chunks)
	// Neighbors within the window surround the hit.
	s.GreaterOrEqual(len(chunks), 2)
}

func (s *SearchTestSuite) TestTimelineSceneBoundaries() {
	provider := timeline.New(s.db)

	boundaries, err := provider.GetSceneBoundaries(s.ctx, 1, types.MediaEpisode)
	s.Require().NoError(err)
	// 21s of silence between the chase and the station scene.
	s.Require().Len(boundaries, 1)
	s.Equal(int64(40000), boundaries[0])
}

func (s *SearchTestSuite) TestFindSimilarExcludesSeed() {
	resp, err := s.searcher.Search(s.ctx, "rooftop", searcher.Options{Mode: searcher.ModeKeyword})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	seed := resp.Results[0].ChunkID
	similar, err := s.searcher.FindSimilar(s.ctx, seed, 3)
	s.Require().NoError(err)
	for _, r := range similar {
		s.NotEqual(seed, r.ChunkID)
	}
}

// failingEmbedder simulates an unavailable embedding model.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}
