package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medialib/scenesearch/pkg/types"
)

// Common errors
var (
	ErrEmptyText    = errors.New("text cannot be empty")
	ErrBackendFailed = errors.New("embedding backend failed")
	ErrLoadFailed   = errors.New("model load failed")
)

// ModelState tracks the inference model lifecycle.
type ModelState int32

const (
	StateUnloaded ModelState = iota
	StateLoading
	StateLoaded
	StateUnloading
)

func (s ModelState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

const (
	// DefaultIdleTimeout is how long the model stays loaded with no
	// embed activity before being unloaded
	DefaultIdleTimeout = 300 * time.Second

	// DefaultCacheSize is the embedding cache capacity
	DefaultCacheSize = 10000
)

// idleCheckInterval is the background ticker period. Variable so tests
// can shorten it.
var idleCheckInterval = 10 * time.Second

// Config configures the embedding engine.
type Config struct {
	ModelPath   string
	VocabPath   string
	LazyLoad    bool
	IdleTimeout time.Duration
	CacheSize   int
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig(modelPath, vocabPath string) Config {
	return Config{
		ModelPath:   modelPath,
		VocabPath:   vocabPath,
		LazyLoad:    true,
		IdleTimeout: DefaultIdleTimeout,
		CacheSize:   DefaultCacheSize,
	}
}

// Engine turns text into fixed-size dense vectors through a pluggable
// backend, loading the model lazily and unloading it after idle periods.
type Engine struct {
	mu          sync.Mutex
	backend     Backend
	state       ModelState
	initialized bool
	lazyLoad    bool
	idleTimeout time.Duration
	lastUsed    time.Time
	stopIdle    chan struct{}

	cache  *Cache
	logger *slog.Logger
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

// WithCache sets the embedding cache. Pass nil to disable caching.
func WithCache(cache *Cache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// NewEngine creates an engine around the given backend. The engine is
// unusable until Initialize is called.
func NewEngine(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		state:   StateUnloaded,
		cache:   NewCache(DefaultCacheSize),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize prepares the engine. With LazyLoad the model is loaded on
// first use; otherwise it is loaded now.
func (e *Engine) Initialize(ctx context.Context, cfg Config) error {
	e.mu.Lock()
	e.lazyLoad = cfg.LazyLoad
	e.idleTimeout = cfg.IdleTimeout
	if e.idleTimeout <= 0 {
		e.idleTimeout = DefaultIdleTimeout
	}
	if cfg.CacheSize > 0 && e.cache == nil {
		e.cache = NewCache(cfg.CacheSize)
	}
	e.initialized = true
	e.mu.Unlock()

	if err := e.backend.Configure(cfg); err != nil {
		e.mu.Lock()
		e.initialized = false
		e.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	if !cfg.LazyLoad {
		return e.LoadModel(ctx)
	}
	return nil
}

// Dimension returns the backend's embedding width.
func (e *Engine) Dimension() int {
	return e.backend.Dimension()
}

// State returns the current model lifecycle state.
func (e *Engine) State() ModelState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LoadModel loads the inference model now. Safe to call when already
// loaded.
func (e *Engine) LoadModel(ctx context.Context) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return types.ErrNotInitialized
	}
	if e.state == StateLoaded {
		e.lastUsed = time.Now()
		e.mu.Unlock()
		return nil
	}
	if e.state == StateLoading || e.state == StateUnloading {
		e.mu.Unlock()
		return fmt.Errorf("%w: model is %s", ErrLoadFailed, e.state)
	}
	e.state = StateLoading
	e.mu.Unlock()

	err := e.backend.Load(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateUnloaded
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	e.state = StateLoaded
	e.lastUsed = time.Now()
	e.startIdleWatcherLocked()
	e.logger.Debug("embedding model loaded", "backend", e.backend.Name())
	return nil
}

// UnloadModel releases the inference model. Safe to call when already
// unloaded.
func (e *Engine) UnloadModel() {
	e.mu.Lock()
	if e.state != StateLoaded {
		e.mu.Unlock()
		return
	}
	e.state = StateUnloading
	e.stopIdleWatcherLocked()
	e.mu.Unlock()

	err := e.backend.Unload()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateUnloaded
	if err != nil {
		e.logger.Warn("embedding model unload failed", "error", err)
		return
	}
	e.logger.Debug("embedding model unloaded", "backend", e.backend.Name())
}

// startIdleWatcherLocked launches the idle unload ticker. Caller holds mu.
func (e *Engine) startIdleWatcherLocked() {
	if e.stopIdle != nil {
		return
	}
	stop := make(chan struct{})
	e.stopIdle = stop

	go func() {
		ticker := time.NewTicker(idleCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.mu.Lock()
				idle := e.state == StateLoaded && time.Since(e.lastUsed) >= e.idleTimeout
				e.mu.Unlock()
				if idle {
					e.logger.Debug("unloading idle embedding model")
					e.UnloadModel()
					return
				}
			}
		}
	}()
}

// stopIdleWatcherLocked stops the ticker. Caller holds mu.
func (e *Engine) stopIdleWatcherLocked() {
	if e.stopIdle != nil {
		close(e.stopIdle)
		e.stopIdle = nil
	}
}

// ensureLoaded loads the model on demand under lazy loading.
func (e *Engine) ensureLoaded(ctx context.Context) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return types.ErrNotInitialized
	}
	loaded := e.state == StateLoaded
	lazy := e.lazyLoad
	e.mu.Unlock()

	if loaded {
		return nil
	}
	if !lazy {
		return fmt.Errorf("%w: model not loaded", types.ErrModelUnavailable)
	}
	return e.LoadModel(ctx)
}

// Embed generates an embedding for a single text.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidInput, ErrEmptyText)
	}

	hash := ComputeHash(text)
	if e.cache != nil {
		if vec, ok := e.cache.Get(hash); ok {
			return vec, nil
		}
	}

	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	e.touch()

	vectors, err := e.backend.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendFailed, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrBackendFailed)
	}

	if e.cache != nil {
		e.cache.Set(hash, vectors[0])
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts. A failure for one
// text does not abort the batch: its slot holds a zero vector, which
// callers treat as "embedding unavailable". The returned slice always
// has one entry per input text.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	e.touch()

	results := make([][]float32, len(texts))
	pending := make([]string, 0, len(texts))
	pendingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		if text == "" {
			results[i] = make([]float32, e.backend.Dimension())
			continue
		}
		if e.cache != nil {
			if vec, ok := e.cache.Get(ComputeHash(text)); ok {
				results[i] = vec
				continue
			}
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) > 0 {
		vectors, err := e.backend.EmbedBatch(ctx, pending)
		if err != nil {
			// Whole-batch backend failure: zero vectors, not an abort
			e.logger.Warn("batch embedding failed", "error", err, "texts", len(pending))
			for _, i := range pendingIdx {
				results[i] = make([]float32, e.backend.Dimension())
			}
			return results, nil
		}
		for j, i := range pendingIdx {
			if j < len(vectors) && len(vectors[j]) > 0 {
				results[i] = vectors[j]
				if e.cache != nil {
					e.cache.Set(ComputeHash(pending[j]), vectors[j])
				}
			} else {
				results[i] = make([]float32, e.backend.Dimension())
			}
		}
	}

	return results, nil
}

// touch records embed activity for the idle timer.
func (e *Engine) touch() {
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
}

// Close unloads the model and stops background activity.
func (e *Engine) Close() error {
	e.UnloadModel()
	e.mu.Lock()
	e.stopIdleWatcherLocked()
	e.mu.Unlock()
	return e.backend.Unload()
}

// Similarity computes cosine similarity between two vectors. Returns 0
// if either vector has zero norm or lengths differ.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZeroVector reports whether every component is zero, the sentinel
// for "embedding unavailable".
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of an embedding from cache
// Returns a copy to prevent caller mutations from affecting cached values
func (c *Cache) Get(hash string) ([]float32, bool) {
	vec, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	vectorCopy := make([]float32, len(vec))
	copy(vectorCopy, vec)
	return vectorCopy, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, vec []float32) {
	c.cache.Add(hash, vec)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
