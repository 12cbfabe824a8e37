// Package config loads the subsystem configuration from an optional
// YAML file with SCENESEARCH_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Chunker  ChunkerConfig  `mapstructure:"chunker"`
	Searcher SearcherConfig `mapstructure:"searcher"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Reranker RerankerConfig `mapstructure:"reranker"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig locates the semantic database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ChunkerConfig mirrors chunker.Config.
type ChunkerConfig struct {
	MaxChunkWords     int   `mapstructure:"max_chunk_words"`
	MinChunkWords     int   `mapstructure:"min_chunk_words"`
	OverlapWords      int   `mapstructure:"overlap_words"`
	MergeShortEntries bool  `mapstructure:"merge_short_entries"`
	MaxMergeGapMs     int64 `mapstructure:"max_merge_gap_ms"`
}

// SearcherConfig holds hybrid search tuning.
type SearcherConfig struct {
	KeywordWeight float64       `mapstructure:"keyword_weight"`
	VectorWeight  float64       `mapstructure:"vector_weight"`
	KeywordTopK   int           `mapstructure:"keyword_top_k"`
	VectorTopK    int           `mapstructure:"vector_top_k"`
	MaxResults    int           `mapstructure:"max_results"`
	CacheSize     int           `mapstructure:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// EmbedderConfig holds model settings for the embedding engine.
type EmbedderConfig struct {
	ModelPath   string        `mapstructure:"model_path"`
	VocabPath   string        `mapstructure:"vocab_path"`
	Dimension   int           `mapstructure:"dimension"`
	LazyLoad    bool          `mapstructure:"lazy_load"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
}

// RerankerConfig holds cross-encoder settings.
type RerankerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ModelPath   string        `mapstructure:"model_path"`
	TopN        int           `mapstructure:"top_n"`
	ScoreWeight float64       `mapstructure:"score_weight"`
	LazyLoad    bool          `mapstructure:"lazy_load"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// MemoryConfig bounds model memory usage.
type MemoryConfig struct {
	BudgetBytes int64 `mapstructure:"budget_bytes"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads path (optional, "" skips the file), applies SCENESEARCH_*
// environment overrides, then defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := v.ReadConfig(strings.NewReader(string(content))); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("SCENESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads the config and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Chunker.MinChunkWords > c.Chunker.MaxChunkWords {
		return fmt.Errorf("chunker: min_chunk_words %d exceeds max_chunk_words %d",
			c.Chunker.MinChunkWords, c.Chunker.MaxChunkWords)
	}
	if c.Searcher.KeywordWeight < 0 || c.Searcher.VectorWeight < 0 {
		return fmt.Errorf("searcher: weights must be non-negative")
	}
	return nil
}

// bindEnvKeys registers every known key so AutomaticEnv sees overrides
// even when the key is absent from the config file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"database.path",
		"chunker.max_chunk_words", "chunker.min_chunk_words",
		"chunker.overlap_words", "chunker.merge_short_entries", "chunker.max_merge_gap_ms",
		"searcher.keyword_weight", "searcher.vector_weight",
		"searcher.keyword_top_k", "searcher.vector_top_k",
		"searcher.max_results", "searcher.cache_size", "searcher.cache_ttl",
		"embedder.model_path", "embedder.vocab_path", "embedder.dimension",
		"embedder.lazy_load", "embedder.idle_timeout",
		"embedder.endpoint", "embedder.api_key",
		"reranker.enabled", "reranker.model_path", "reranker.top_n",
		"reranker.score_weight", "reranker.lazy_load", "reranker.idle_timeout",
		"memory.budget_bytes",
		"logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "scenesearch.db")

	v.SetDefault("chunker.max_chunk_words", 50)
	v.SetDefault("chunker.min_chunk_words", 10)
	v.SetDefault("chunker.overlap_words", 5)
	v.SetDefault("chunker.merge_short_entries", true)
	v.SetDefault("chunker.max_merge_gap_ms", 2000)

	v.SetDefault("searcher.keyword_weight", 0.4)
	v.SetDefault("searcher.vector_weight", 0.6)
	v.SetDefault("searcher.keyword_top_k", 100)
	v.SetDefault("searcher.vector_top_k", 100)
	v.SetDefault("searcher.max_results", 20)
	v.SetDefault("searcher.cache_size", 1000)
	v.SetDefault("searcher.cache_ttl", "5m")

	v.SetDefault("embedder.dimension", 384)
	v.SetDefault("embedder.lazy_load", true)
	v.SetDefault("embedder.idle_timeout", "300s")

	v.SetDefault("reranker.enabled", false)
	v.SetDefault("reranker.top_n", 20)
	v.SetDefault("reranker.score_weight", 1.0)
	v.SetDefault("reranker.lazy_load", true)
	v.SetDefault("reranker.idle_timeout", "300s")

	v.SetDefault("memory.budget_bytes", int64(512<<20))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
