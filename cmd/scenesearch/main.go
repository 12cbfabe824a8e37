package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/medialib/scenesearch/internal/chunker"
	"github.com/medialib/scenesearch/internal/config"
	"github.com/medialib/scenesearch/internal/embedder"
	"github.com/medialib/scenesearch/internal/indexer"
	"github.com/medialib/scenesearch/internal/memmon"
	"github.com/medialib/scenesearch/internal/perf"
	"github.com/medialib/scenesearch/internal/reranker"
	"github.com/medialib/scenesearch/internal/searcher"
	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/internal/vector"
	"github.com/medialib/scenesearch/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "scenesearch",
		Usage:   "Semantic search over media library subtitles and metadata",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index subtitle or metadata files for a media item",
				ArgsUsage: "FILE [FILE...]",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "media-id",
						Usage:    "Library identifier of the media item",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "media-type",
						Usage: "Media type (movie, episode, musicvideo)",
						Value: string(types.MediaMovie),
					},
					&cli.BoolFlag{
						Name:  "reindex",
						Usage: "Delete existing chunks for the media item first",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search indexed media content",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Search mode (hybrid, keyword, semantic)",
						Value: string(searcher.ModeHybrid),
					},
					&cli.StringFlag{
						Name:  "media-type",
						Usage: "Restrict to a media type",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
					},
					&cli.BoolFlag{
						Name:  "rerank",
						Usage: "Re-rank results with the cross-encoder",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show pending index work and provider usage",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum pending entries to list",
						Value: 20,
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Show build information",
				Action: versionCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func versionCommand(_ *cli.Context) error {
	fmt.Printf("scenesearch\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Build Mode: %s\n", storage.BuildMode)
	fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
	fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
	return nil
}

// env holds the wired subsystem for one CLI invocation.
type env struct {
	cfg      *config.Config
	db       *storage.SemanticDB
	vectors  *vector.Store
	embedder *embedder.Engine
	memory   *memmon.Manager
	monitor  *perf.CollectingMonitor
}

func setupEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}

	vectors := vector.NewStore(db.DB(), cfg.Embedder.Dimension)
	if err := vectors.CreateTable(c.Context); err != nil {
		db.Close()
		return nil, fmt.Errorf("create vector table: %w", err)
	}

	var backend embedder.Backend
	if cfg.Embedder.Endpoint != "" {
		backend = embedder.NewRemoteBackend(cfg.Embedder.Endpoint, cfg.Embedder.APIKey,
			cfg.Embedder.ModelPath, cfg.Embedder.Dimension)
	} else {
		backend = embedder.NewLocalBackend()
	}
	eng := embedder.NewEngine(backend)
	embCfg := embedder.Config{
		ModelPath:   cfg.Embedder.ModelPath,
		VocabPath:   cfg.Embedder.VocabPath,
		LazyLoad:    cfg.Embedder.LazyLoad,
		IdleTimeout: cfg.Embedder.IdleTimeout,
	}
	if err := eng.Initialize(c.Context, embCfg); err != nil {
		// Keyword search and indexing still work without embeddings.
		slog.Warn("embedding engine unavailable, semantic search degraded", "error", err)
	}

	memory := memmon.New(cfg.Memory.BudgetBytes)
	memory.Register("embedder", func(memmon.PressureLevel) int64 {
		eng.UnloadModel()
		return 0
	})

	return &env{
		cfg:      cfg,
		db:       db,
		vectors:  vectors,
		embedder: eng,
		memory:   memory,
		monitor:  perf.NewMonitor(),
	}, nil
}

func (e *env) close() {
	e.embedder.Close()
	e.db.Close()
}

func indexCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file argument is required")
	}
	mediaType, err := parseMediaType(c.String("media-type"))
	if err != nil {
		return err
	}

	e, err := setupEnv(c)
	if err != nil {
		return err
	}
	defer e.close()

	ix, err := indexer.New(e.db, e.vectors, e.embedder,
		indexer.WithMonitor(e.monitor),
		indexer.WithChunkerConfig(chunkerConfig(e.cfg)),
	)
	if err != nil {
		return fmt.Errorf("create indexer: %w", err)
	}
	defer ix.Release()

	mediaID := c.Int64("media-id")
	start := time.Now()

	if c.Bool("reindex") {
		stats, err := ix.ReindexMedia(c.Context, mediaID, mediaType, c.Args().Slice())
		if err != nil {
			return fmt.Errorf("reindex media %d: %w", mediaID, err)
		}
		fmt.Fprintf(os.Stderr, "Reindexed %d chunks (%d vectors) in %s\n",
			stats.ChunksIndexed, stats.VectorsInserted, time.Since(start).Round(time.Millisecond))
		return nil
	}

	var chunks, vectors int
	for _, path := range c.Args().Slice() {
		stats, err := ix.IndexFile(c.Context, path, mediaID, mediaType)
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		chunks += stats.ChunksIndexed
		vectors += stats.VectorsInserted
	}
	fmt.Fprintf(os.Stderr, "Indexed %d chunks (%d vectors) from %d files in %s\n",
		chunks, vectors, c.NArg(), time.Since(start).Round(time.Millisecond))
	return nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one query argument is required")
	}
	query := c.Args().First()

	e, err := setupEnv(c)
	if err != nil {
		return err
	}
	defer e.close()

	eng := searcher.New(e.db, e.vectors, e.embedder, searcher.WithMonitor(e.monitor))

	opts := searcher.DefaultOptions()
	opts.Mode = searcher.Mode(c.String("mode"))
	if mt := c.String("media-type"); mt != "" {
		mediaType, err := parseMediaType(mt)
		if err != nil {
			return err
		}
		opts.MediaType = mediaType
	}
	if limit := c.Int("limit"); limit > 0 {
		opts.MaxResults = limit
	}
	opts.CacheTTL = e.cfg.Searcher.CacheTTL

	resp, err := eng.Search(c.Context, query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	results := resp.Results
	if c.Bool("rerank") || e.cfg.Reranker.Enabled {
		results, err = rerankResults(c.Context, e.cfg, e.memory, query, results)
		if err != nil {
			return err
		}
	}

	if resp.DegradedToKeyword {
		fmt.Fprintln(os.Stderr, "Note: embedding unavailable, results are keyword-only")
	}
	printResults(query, resp, results)
	return nil
}

// rerankResults runs the cross-encoder over the result set and returns
// the results in re-ranked order.
func rerankResults(ctx context.Context, cfg *config.Config, memory *memmon.Manager, query string, results []types.SearchResult) ([]types.SearchResult, error) {
	ce := reranker.New(reranker.NewLocalBackend(), reranker.WithTopN(cfg.Reranker.TopN))
	rrCfg := reranker.Config{
		ModelPath:   cfg.Reranker.ModelPath,
		LazyLoad:    cfg.Reranker.LazyLoad,
		IdleTimeout: cfg.Reranker.IdleTimeout,
	}
	if err := ce.Initialize(ctx, rrCfg); err != nil {
		return nil, fmt.Errorf("initialize cross-encoder: %w", err)
	}
	defer ce.Close()

	memory.Register("reranker", func(memmon.PressureLevel) int64 {
		ce.UnloadModel()
		return 0
	})
	defer memory.Unregister("reranker")

	candidates := make([]reranker.Candidate, len(results))
	byID := make(map[int64]types.SearchResult, len(results))
	for i, r := range results {
		passage := r.Snippet
		if r.Chunk != nil {
			passage = r.Chunk.Text
		}
		candidates[i] = reranker.Candidate{
			ID:            r.ChunkID,
			Passage:       passage,
			OriginalScore: r.CombinedScore,
		}
		byID[r.ChunkID] = r
	}

	ranked, err := ce.ReRankWithWeight(ctx, query, candidates, cfg.Reranker.ScoreWeight)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	out := make([]types.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		res := byID[r.ID]
		res.CombinedScore = r.FinalScore
		out = append(out, res)
	}
	return out, nil
}

func printResults(query string, resp *searcher.Response, results []types.SearchResult) {
	fmt.Printf("%d results for %q (%s, %s)\n", len(results), query, resp.Mode,
		resp.Duration.Round(time.Millisecond))
	for i, r := range results {
		pos := r.Timestamp
		if pos == "" {
			pos = "-"
		}
		media := "-"
		if r.Chunk != nil {
			media = fmt.Sprintf("%s/%d", r.Chunk.MediaType, r.Chunk.MediaID)
		}
		fmt.Printf("%2d. [%.4f] %-14s %-9s %s\n", i+1, r.CombinedScore, media, pos, r.Snippet)
	}
}

func statusCommand(c *cli.Context) error {
	e, err := setupEnv(c)
	if err != nil {
		return err
	}
	defer e.close()

	pending, err := e.db.GetPendingIndexStates(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("load pending index states: %w", err)
	}

	fmt.Printf("Database: %s\n", e.cfg.Database.Path)
	fmt.Printf("Pending index entries: %d\n", len(pending))
	for _, st := range pending {
		fmt.Printf("  %s/%d subtitles=%s transcription=%s metadata=%s chunks=%d priority=%d\n",
			st.MediaType, st.MediaID,
			st.SubtitleStatus, st.TranscriptionStatus, st.MetadataStatus,
			st.ChunkCount, st.Priority)
	}
	return nil
}

func chunkerConfig(cfg *config.Config) chunker.Config {
	return chunker.Config{
		MaxChunkWords:     cfg.Chunker.MaxChunkWords,
		MinChunkWords:     cfg.Chunker.MinChunkWords,
		OverlapWords:      cfg.Chunker.OverlapWords,
		MergeShortEntries: cfg.Chunker.MergeShortEntries,
		MaxMergeGapMs:     cfg.Chunker.MaxMergeGapMs,
	}
}

func parseMediaType(s string) (types.MediaType, error) {
	switch types.MediaType(strings.ToLower(s)) {
	case types.MediaMovie:
		return types.MediaMovie, nil
	case types.MediaEpisode:
		return types.MediaEpisode, nil
	case types.MediaMusicVideo:
		return types.MediaMusicVideo, nil
	default:
		return "", fmt.Errorf("unknown media type %q", s)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// stderr keeps stdout clean for command output.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
