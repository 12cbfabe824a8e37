package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/medialib/scenesearch/internal/searcher"
	"github.com/medialib/scenesearch/internal/transcribe"
	"github.com/medialib/scenesearch/pkg/types"
)

// IndexingTestSuite drives files through the full ingestion pipeline
// and verifies they become searchable.
type IndexingTestSuite struct {
	baseSuite
}

func TestIndexingSuite(t *testing.T) {
	suite.Run(t, new(IndexingTestSuite))
}

func (s *IndexingTestSuite) TestSubtitleFileBecomesSearchable() {
	stats, err := s.indexer.IndexFile(s.ctx, s.fixture("episode.srt"), 1, types.MediaEpisode)
	s.Require().NoError(err)
	s.Equal(5, stats.ChunksIndexed)
	s.Equal(5, stats.VectorsInserted)

	resp, err := s.searcher.Search(s.ctx, "rooftop", searcher.Options{Mode: searcher.ModeKeyword})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	first := resp.Results[0]
	s.NotNil(first.Chunk)
	s.Equal(types.SourceSubtitle, first.Chunk.SourceType)
	s.NotEmpty(first.Timestamp)
	s.Contains(first.Snippet, "rooftop")
}

func (s *IndexingTestSuite) TestIndexStateCompleted() {
	_, err := s.indexer.IndexFile(s.ctx, s.fixture("episode.srt"), 1, types.MediaEpisode)
	s.Require().NoError(err)

	state, err := s.db.GetIndexState(s.ctx, 1, types.MediaEpisode)
	s.Require().NoError(err)
	s.Equal(types.IndexCompleted, state.SubtitleStatus)
	s.Equal(5, state.ChunkCount)
}

func (s *IndexingTestSuite) TestMetadataFileIsUntimed() {
	_, err := s.indexer.IndexFile(s.ctx, s.fixture("episode.nfo"), 2, types.MediaEpisode)
	s.Require().NoError(err)

	resp, err := s.searcher.Search(s.ctx, "detective wedding", searcher.Options{
		Mode:            searcher.ModeKeyword,
		IncludeMetadata: true,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	for _, r := range resp.Results {
		s.Equal(types.SourceMetadata, r.Chunk.SourceType)
		s.Empty(r.Timestamp)
	}
}

func (s *IndexingTestSuite) TestSourceTypeFilterSeparatesFiles() {
	_, err := s.indexer.IndexFile(s.ctx, s.fixture("episode.srt"), 1, types.MediaEpisode)
	s.Require().NoError(err)
	_, err = s.indexer.IndexFile(s.ctx, s.fixture("episode.nfo"), 1, types.MediaEpisode)
	s.Require().NoError(err)

	resp, err := s.searcher.Search(s.ctx, "rooftop", searcher.Options{
		Mode:             searcher.ModeKeyword,
		IncludeSubtitles: true,
	})
	s.Require().NoError(err)
	for _, r := range resp.Results {
		s.Equal(types.SourceSubtitle, r.Chunk.SourceType)
	}
}

func (s *IndexingTestSuite) TestReindexReplacesChunks() {
	path := s.fixture("episode.srt")
	_, err := s.indexer.IndexFile(s.ctx, path, 1, types.MediaEpisode)
	s.Require().NoError(err)

	stats, err := s.indexer.ReindexMedia(s.ctx, 1, types.MediaEpisode, []string{path})
	s.Require().NoError(err)
	s.Equal(5, stats.ChunksIndexed)

	chunks, err := s.db.GetChunksForMedia(s.ctx, 1, types.MediaEpisode)
	s.Require().NoError(err)
	s.Len(chunks, 5)
}

func (s *IndexingTestSuite) TestTranscriptionIngest() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"segments": []map[string]any{
			{"start_ms": 1000, "end_ms": 4000, "text": "the stolen car crosses the bridge", "confidence": 0.85},
			{"start_ms": 4500, "end_ms": 8000, "text": "police cruisers follow through narrow streets", "confidence": 0.8},
		}})
	}))
	defer srv.Close()

	manager := transcribe.NewManager(s.db)
	provider := transcribe.NewHTTPProvider(transcribe.HTTPConfig{
		ID:            "whisper-http",
		Name:          "Whisper HTTP",
		Endpoint:      srv.URL,
		APIKey:        "test-key",
		CostPerMinute: 0.006,
	})
	s.Require().NoError(manager.Register(s.ctx, provider))

	mediaPath := filepath.Join(s.T().TempDir(), "episode.wav")
	s.Require().NoError(os.WriteFile(mediaPath, make([]byte, 256), 0o644))

	var entries []types.ParsedEntry
	_, err := manager.Transcribe(s.ctx, "whisper-http", mediaPath, 8000,
		func(e types.ParsedEntry) { entries = append(entries, e) }, nil, nil)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	stats, err := s.indexer.IndexSegments(s.ctx, 3, types.MediaEpisode, "whisper-http", entries)
	s.Require().NoError(err)
	s.Equal(2, stats.ChunksIndexed)

	resp, err := s.searcher.Search(s.ctx, "bridge", searcher.Options{
		Mode:                 searcher.ModeKeyword,
		IncludeTranscription: true,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)
	s.Equal(types.SourceTranscription, resp.Results[0].Chunk.SourceType)

	usage, err := s.db.GetProvider(s.ctx, "whisper-http")
	s.Require().NoError(err)
	s.Equal(int64(1), usage.RequestCount)
	s.Equal(int64(8000), usage.TranscribedMs)
}

func (s *IndexingTestSuite) TestCancelStopsEmbedding() {
	s.indexer.Cancel()
	defer s.indexer.ResetCancellation()

	_, err := s.indexer.IndexFile(s.ctx, s.fixture("episode.srt"), 1, types.MediaEpisode)
	s.Require().ErrorIs(err, types.ErrCancelled)
}
