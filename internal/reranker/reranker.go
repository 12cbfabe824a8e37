// Package reranker applies cross-encoder scoring to re-order the top
// candidates of an initial ranking. Scoring failure always degrades to
// the original ordering, never to an error.
package reranker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/medialib/scenesearch/pkg/types"
)

const (
	// DefaultTopN caps how many candidates are ever cross-encoded.
	DefaultTopN = 20

	// DefaultScoreWeight replaces the original score entirely.
	DefaultScoreWeight = 1.0

	// DefaultIdleTimeout unloads the model after this much inactivity.
	DefaultIdleTimeout = 300 * time.Second

	// neutralScore is returned for pairs whose inference failed.
	neutralScore = 0.5
)

// idleCheckInterval is how often the idle watcher wakes. Package var
// so tests can shorten it.
var idleCheckInterval = 10 * time.Second

// Backend produces relevance logits for query/passage pairs.
type Backend interface {
	Configure(cfg Config) error
	Load(ctx context.Context) error
	Unload() error
	// ScorePairs returns one raw logit per pair.
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)
	Name() string
}

// Config holds model settings for a scoring backend.
type Config struct {
	ModelPath   string
	VocabPath   string
	LazyLoad    bool
	IdleTimeout time.Duration
}

// DefaultConfig returns a lazy-loading config with defaults.
func DefaultConfig(modelPath, vocabPath string) Config {
	return Config{
		ModelPath:   modelPath,
		VocabPath:   vocabPath,
		LazyLoad:    true,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// Candidate is one entry of the initial ranking handed to ReRank.
type Candidate struct {
	ID            int64
	Passage       string
	OriginalScore float64
}

// CrossEncoder scores query/passage pairs with a lazily loaded model.
// Safe for concurrent use.
type CrossEncoder struct {
	mu          sync.Mutex
	backend     Backend
	initialized bool
	loaded      bool
	lazyLoad    bool
	idleTimeout time.Duration
	lastUsed    time.Time
	stopIdle    chan struct{}
	topN        int
	logger      *slog.Logger
}

// Option configures a CrossEncoder.
type Option func(*CrossEncoder)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ce *CrossEncoder) {
		if logger != nil {
			ce.logger = logger
		}
	}
}

// WithTopN overrides how many candidates get cross-encoded.
func WithTopN(n int) Option {
	return func(ce *CrossEncoder) {
		if n > 0 {
			ce.topN = n
		}
	}
}

// New creates a cross-encoder over the given scoring backend.
func New(backend Backend, opts ...Option) *CrossEncoder {
	ce := &CrossEncoder{
		backend:     backend,
		idleTimeout: DefaultIdleTimeout,
		topN:        DefaultTopN,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(ce)
	}
	return ce
}

// Initialize configures the backend. With LazyLoad the model loads on
// first scoring call; otherwise it loads now.
func (ce *CrossEncoder) Initialize(ctx context.Context, cfg Config) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	if err := ce.backend.Configure(cfg); err != nil {
		return fmt.Errorf("configure reranker backend: %w", err)
	}
	ce.lazyLoad = cfg.LazyLoad
	if cfg.IdleTimeout > 0 {
		ce.idleTimeout = cfg.IdleTimeout
	}
	ce.initialized = true

	if !cfg.LazyLoad {
		return ce.loadLocked(ctx)
	}
	return nil
}

// LoadModel loads the scoring model immediately.
func (ce *CrossEncoder) LoadModel(ctx context.Context) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if !ce.initialized {
		return types.ErrNotInitialized
	}
	return ce.loadLocked(ctx)
}

func (ce *CrossEncoder) loadLocked(ctx context.Context) error {
	if ce.loaded {
		return nil
	}
	if err := ce.backend.Load(ctx); err != nil {
		return fmt.Errorf("load reranker model: %w", err)
	}
	ce.loaded = true
	ce.lastUsed = time.Now()
	ce.startIdleWatcherLocked()
	ce.logger.Info("reranker model loaded", "backend", ce.backend.Name())
	return nil
}

// UnloadModel releases the model. Idempotent; also the memory-pressure
// cleanup hook.
func (ce *CrossEncoder) UnloadModel() {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.unloadLocked()
}

func (ce *CrossEncoder) unloadLocked() {
	if !ce.loaded {
		return
	}
	if err := ce.backend.Unload(); err != nil {
		ce.logger.Warn("reranker unload failed", "error", err)
	}
	ce.loaded = false
	if ce.stopIdle != nil {
		close(ce.stopIdle)
		ce.stopIdle = nil
	}
	ce.logger.Info("reranker model unloaded")
}

// Loaded reports whether the model is resident.
func (ce *CrossEncoder) Loaded() bool {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.loaded
}

func (ce *CrossEncoder) startIdleWatcherLocked() {
	if ce.stopIdle != nil {
		return
	}
	stop := make(chan struct{})
	ce.stopIdle = stop
	timeout := ce.idleTimeout

	go func() {
		ticker := time.NewTicker(idleCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ce.mu.Lock()
				if ce.loaded && time.Since(ce.lastUsed) >= timeout {
					ce.unloadLocked()
					ce.mu.Unlock()
					return
				}
				ce.mu.Unlock()
			}
		}
	}()
}

// ensureLoaded lazily loads the model for a scoring call.
func (ce *CrossEncoder) ensureLoaded(ctx context.Context) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if !ce.initialized {
		return types.ErrNotInitialized
	}
	if ce.loaded {
		ce.lastUsed = time.Now()
		return nil
	}
	if !ce.lazyLoad {
		return types.ErrModelUnavailable
	}
	return ce.loadLocked(ctx)
}

// Score returns a sigmoid-normalized relevance for one pair, or the
// neutral score when inference fails.
func (ce *CrossEncoder) Score(ctx context.Context, query, passage string) (float64, error) {
	scores, err := ce.ScoreBatch(ctx, query, []string{passage})
	if err != nil {
		return neutralScore, err
	}
	return scores[0], nil
}

// ScoreBatch scores all passages against the query. Inference failure
// yields neutral scores for the whole batch with a nil error; a model
// that cannot load at all returns an error.
func (ce *CrossEncoder) ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}
	if err := ce.ensureLoaded(ctx); err != nil {
		// An absent model is reported so ReRank can pass through on
		// original scores instead of flattening everything to 0.5.
		return nil, err
	}

	logits, err := ce.backend.ScorePairs(ctx, query, passages)
	if err != nil || len(logits) != len(passages) {
		if err != nil {
			ce.logger.Warn("cross-encoder inference failed", "error", err)
		}
		return neutralScores(len(passages)), nil
	}

	scores := make([]float64, len(logits))
	for i, logit := range logits {
		scores[i] = sigmoid(logit)
	}
	return scores, nil
}

// ReRank re-orders candidates with the default score weight.
func (ce *CrossEncoder) ReRank(ctx context.Context, query string, candidates []Candidate) ([]types.CrossEncoderResult, error) {
	return ce.ReRankWithWeight(ctx, query, candidates, DefaultScoreWeight)
}

// ReRankWithWeight blends cross-encoder and original scores:
//
//	finalScore = (1-weight)*originalScore + weight*crossEncoderScore
//
// Only the top-N candidates are cross-encoded; any beyond that keep
// their original score and trail the re-ranked head in input order.
// When the model cannot load, all candidates pass through ordered by
// original score.
func (ce *CrossEncoder) ReRankWithWeight(ctx context.Context, query string, candidates []Candidate, weight float64) ([]types.CrossEncoderResult, error) {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}

	head := candidates
	var tail []Candidate
	if len(candidates) > ce.topN {
		head = candidates[:ce.topN]
		tail = candidates[ce.topN:]
	}

	passages := make([]string, len(head))
	for i, c := range head {
		passages[i] = c.Passage
	}

	scores, err := ce.ScoreBatch(ctx, query, passages)
	if err != nil {
		// Model unavailable: passthrough on original scores.
		scores = nil
	}

	results := make([]types.CrossEncoderResult, 0, len(candidates))
	for i, c := range head {
		r := types.CrossEncoderResult{
			ID:            c.ID,
			OriginalScore: c.OriginalScore,
		}
		if scores != nil {
			r.CrossEncoderScore = scores[i]
			r.FinalScore = (1-weight)*c.OriginalScore + weight*scores[i]
		} else {
			r.FinalScore = c.OriginalScore
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	for _, c := range tail {
		results = append(results, types.CrossEncoderResult{
			ID:            c.ID,
			OriginalScore: c.OriginalScore,
			FinalScore:    c.OriginalScore,
		})
	}
	return results, nil
}

// Close unloads the model and stops the idle watcher.
func (ce *CrossEncoder) Close() {
	ce.UnloadModel()
}

func neutralScores(n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = neutralScore
	}
	return scores
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
