package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "scenesearch.db", cfg.Database.Path)
	assert.Equal(t, 50, cfg.Chunker.MaxChunkWords)
	assert.Equal(t, 10, cfg.Chunker.MinChunkWords)
	assert.True(t, cfg.Chunker.MergeShortEntries)
	assert.InDelta(t, 0.4, cfg.Searcher.KeywordWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.Searcher.VectorWeight, 1e-9)
	assert.Equal(t, 20, cfg.Searcher.MaxResults)
	assert.Equal(t, 5*time.Minute, cfg.Searcher.CacheTTL)
	assert.Equal(t, 384, cfg.Embedder.Dimension)
	assert.True(t, cfg.Embedder.LazyLoad)
	assert.Equal(t, 300*time.Second, cfg.Embedder.IdleTimeout)
	assert.False(t, cfg.Reranker.Enabled)
	assert.Equal(t, int64(512<<20), cfg.Memory.BudgetBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
database:
  path: /data/media.db
chunker:
  max_chunk_words: 80
searcher:
  keyword_weight: 0.5
  vector_weight: 0.5
  cache_ttl: 90s
embedder:
  model_path: /models/minilm.onnx
  lazy_load: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/media.db", cfg.Database.Path)
	assert.Equal(t, 80, cfg.Chunker.MaxChunkWords)
	// Unset keys fall back to defaults.
	assert.Equal(t, 10, cfg.Chunker.MinChunkWords)
	assert.InDelta(t, 0.5, cfg.Searcher.KeywordWeight, 1e-9)
	assert.Equal(t, 90*time.Second, cfg.Searcher.CacheTTL)
	assert.Equal(t, "/models/minilm.onnx", cfg.Embedder.ModelPath)
	assert.False(t, cfg.Embedder.LazyLoad)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SCENESEARCH_DATABASE_PATH", "/override/env.db")
	t.Setenv("SCENESEARCH_SEARCHER_MAX_RESULTS", "50")
	t.Setenv("SCENESEARCH_RERANKER_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/override/env.db", cfg.Database.Path)
	assert.Equal(t, 50, cfg.Searcher.MaxResults)
	assert.True(t, cfg.Reranker.Enabled)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: /from/file.db\n"), 0o644))
	t.Setenv("SCENESEARCH_DATABASE_PATH", "/from/env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Database.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("searcher: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsInvertedChunkBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "chunker:\n  min_chunk_words: 100\n  max_chunk_words: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_chunk_words")
}

func TestValidateRejectsNegativeWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("searcher:\n  keyword_weight: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
