package integration

import (
	"context"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/suite"

	"github.com/medialib/scenesearch/internal/chunker"
	"github.com/medialib/scenesearch/internal/embedder"
	"github.com/medialib/scenesearch/internal/indexer"
	"github.com/medialib/scenesearch/internal/searcher"
	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/internal/vector"
)

// baseSuite wires a full in-memory pipeline: storage, vector store,
// the deterministic local embedding backend, indexer and searcher.
type baseSuite struct {
	suite.Suite
	ctx         context.Context
	fixturesDir string

	db       *storage.SemanticDB
	vectors  *vector.Store
	embedder *embedder.Engine
	indexer  *indexer.Indexer
	searcher *searcher.Engine
}

func (s *baseSuite) SetupSuite() {
	s.ctx = context.Background()

	wd, err := os.Getwd()
	s.Require().NoError(err)
	s.fixturesDir = filepath.Join(filepath.Dir(wd), "testdata", "fixtures")

	_, err = os.Stat(s.fixturesDir)
	s.Require().NoError(err, "fixtures directory should exist")
}

func (s *baseSuite) SetupTest() {
	db, err := storage.Open(":memory:")
	s.Require().NoError(err)
	s.db = db

	s.vectors = vector.NewStore(db.DB(), embedder.LocalDimension)
	s.Require().NoError(s.vectors.CreateTable(s.ctx))

	eng := embedder.NewEngine(embedder.NewLocalBackend())
	cfg := embedder.DefaultConfig("", s.fixture("vocab.txt"))
	cfg.LazyLoad = true
	s.Require().NoError(eng.Initialize(s.ctx, cfg))
	s.embedder = eng

	ix, err := indexer.New(db, s.vectors, eng,
		indexer.WithChunkerConfig(chunker.Config{
			MaxChunkWords: 50,
			MinChunkWords: 3,
			OverlapWords:  0,
		}),
	)
	s.Require().NoError(err)
	s.indexer = ix

	s.searcher = searcher.New(db, s.vectors, eng)
}

func (s *baseSuite) TearDownTest() {
	if s.indexer != nil {
		s.indexer.Release()
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *baseSuite) fixture(name string) string {
	return filepath.Join(s.fixturesDir, name)
}
