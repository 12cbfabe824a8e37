package embedder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medialib/scenesearch/pkg/types"
)

// mockBackend counts lifecycle calls and returns canned vectors.
type mockBackend struct {
	loadCalls   atomic.Int64
	unloadCalls atomic.Int64
	embedCalls  atomic.Int64
	loadErr     error
	embedErr    error
	dimension   int
}

func newMockBackend() *mockBackend {
	return &mockBackend{dimension: 4}
}

func (m *mockBackend) Configure(cfg Config) error { return nil }

func (m *mockBackend) Load(ctx context.Context) error {
	m.loadCalls.Add(1)
	return m.loadErr
}

func (m *mockBackend) Unload() error {
	m.unloadCalls.Add(1)
	return nil
}

func (m *mockBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.embedCalls.Add(1)
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, m.dimension)
		v[0] = float32(len(text))
		v[1] = 1
		vectors[i] = v
	}
	return vectors, nil
}

func (m *mockBackend) Dimension() int { return m.dimension }
func (m *mockBackend) Name() string   { return "mock" }

func newTestEngine(t *testing.T, backend Backend) *Engine {
	engine := NewEngine(backend)
	require.NoError(t, engine.Initialize(context.Background(), Config{
		LazyLoad:    true,
		IdleTimeout: time.Hour,
	}))
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestEmbedBeforeInitialize(t *testing.T) {
	engine := NewEngine(newMockBackend())
	_, err := engine.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, types.ErrNotInitialized)

	_, err = engine.EmbedBatch(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestLazyLoadOnFirstUse(t *testing.T) {
	backend := newMockBackend()
	engine := newTestEngine(t, backend)

	assert.Equal(t, StateUnloaded, engine.State())

	vec, err := engine.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, StateLoaded, engine.State())
	assert.Equal(t, int64(1), backend.loadCalls.Load())

	// Second embed reuses the loaded model
	_, err = engine.Embed(context.Background(), "world")
	require.NoError(t, err)
	assert.Equal(t, int64(1), backend.loadCalls.Load())
}

func TestManualLoadUnload(t *testing.T) {
	backend := newMockBackend()
	engine := newTestEngine(t, backend)

	require.NoError(t, engine.LoadModel(context.Background()))
	assert.Equal(t, StateLoaded, engine.State())

	// Load while loaded is a no-op
	require.NoError(t, engine.LoadModel(context.Background()))
	assert.Equal(t, int64(1), backend.loadCalls.Load())

	engine.UnloadModel()
	assert.Equal(t, StateUnloaded, engine.State())

	// Unload while unloaded is a no-op
	engine.UnloadModel()
}

func TestLoadFailure(t *testing.T) {
	backend := newMockBackend()
	backend.loadErr = errors.New("no model file")
	engine := newTestEngine(t, backend)

	err := engine.LoadModel(context.Background())
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.Equal(t, StateUnloaded, engine.State())
}

func TestEmbedEmptyText(t *testing.T) {
	engine := newTestEngine(t, newMockBackend())
	_, err := engine.Embed(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestEmbedCaching(t *testing.T) {
	backend := newMockBackend()
	engine := newTestEngine(t, backend)

	v1, err := engine.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	v2, err := engine.Embed(context.Background(), "cached text")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), backend.embedCalls.Load())

	// The cache returns copies: mutating one result must not leak
	v1[0] = -999
	v3, err := engine.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	assert.NotEqual(t, float32(-999), v3[0])
}

func TestEmbedBatchFailureYieldsZeroVectors(t *testing.T) {
	backend := newMockBackend()
	backend.embedErr = errors.New("inference exploded")
	engine := newTestEngine(t, backend)

	vectors, err := engine.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.True(t, IsZeroVector(vectors[0]))
	assert.True(t, IsZeroVector(vectors[1]))
}

func TestEmbedBatchEmptyTextGetsZeroVector(t *testing.T) {
	engine := newTestEngine(t, newMockBackend())

	vectors, err := engine.EmbedBatch(context.Background(), []string{"real", ""})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.False(t, IsZeroVector(vectors[0]))
	assert.True(t, IsZeroVector(vectors[1]))
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	engine := newTestEngine(t, newMockBackend())
	vectors, err := engine.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestIdleUnload(t *testing.T) {
	old := idleCheckInterval
	idleCheckInterval = 20 * time.Millisecond
	defer func() { idleCheckInterval = old }()

	backend := newMockBackend()
	engine := NewEngine(backend)
	require.NoError(t, engine.Initialize(context.Background(), Config{
		LazyLoad:    true,
		IdleTimeout: 50 * time.Millisecond,
	}))
	defer func() { _ = engine.Close() }()

	_, err := engine.Embed(context.Background(), "warm up")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, engine.State())

	assert.Eventually(t, func() bool {
		return engine.State() == StateUnloaded
	}, 2*time.Second, 10*time.Millisecond)

	// Next embed reloads transparently
	_, err = engine.Embed(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, int64(2), backend.loadCalls.Load())
}

func TestSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, Similarity(a, a), 1e-6)
	assert.InDelta(t, 0.0, Similarity(a, b), 1e-6)

	// Symmetric
	c := []float32{0.5, 0.3, 0.1}
	assert.Equal(t, Similarity(a, c), Similarity(c, a))

	// Zero norm and length mismatch yield 0
	assert.Equal(t, 0.0, Similarity([]float32{0, 0, 0}, a))
	assert.Equal(t, 0.0, Similarity([]float32{1, 2}, a))
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	assert.InDelta(t, 1.0, Similarity(v, v), 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestCacheBasics(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", []float32{1})
	cache.Set("b", []float32{2})
	assert.Equal(t, 2, cache.Size())

	// LRU eviction on capacity overflow
	cache.Set("c", []float32{3})
	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func writeVocab(t *testing.T) string {
	t.Helper()
	vocab := "[PAD]\n[UNK]\n[CLS]\n[SEP]\nthe\ncar\nchase\nnight\nrooftop\nwedding\n"
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(vocab), 0o644))
	return path
}

func TestLocalBackend(t *testing.T) {
	backend := NewLocalBackend()
	require.NoError(t, backend.Configure(Config{VocabPath: writeVocab(t)}))
	require.NoError(t, backend.Load(context.Background()))
	defer func() { _ = backend.Unload() }()

	ctx := context.Background()
	vectors, err := backend.EmbedBatch(ctx, []string{"the car chase", "the car chase", "the wedding"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for _, v := range vectors {
		assert.Len(t, v, LocalDimension)
		assert.InDelta(t, 1.0, Similarity(v, v), 1e-6)
	}

	// Deterministic: same text, same vector
	assert.Equal(t, vectors[0], vectors[1])

	// Texts sharing tokens are closer than unrelated text
	same := Similarity(vectors[0], vectors[1])
	related := Similarity(vectors[0], vectors[2])
	assert.Greater(t, same, related)
}

func TestLocalBackendUnknownTokensOnly(t *testing.T) {
	backend := NewLocalBackend()
	require.NoError(t, backend.Configure(Config{VocabPath: writeVocab(t)}))
	require.NoError(t, backend.Load(context.Background()))
	defer func() { _ = backend.Unload() }()

	vectors, err := backend.EmbedBatch(context.Background(), []string{"zzz qqq"})
	require.NoError(t, err)
	// Unknown words map to [UNK], still a usable non-zero vector
	assert.False(t, IsZeroVector(vectors[0]))
}

func TestLocalBackendConfigureMissingVocab(t *testing.T) {
	backend := NewLocalBackend()
	assert.Error(t, backend.Configure(Config{VocabPath: "/nonexistent/vocab.txt"}))
	assert.Error(t, backend.Configure(Config{}))
}

func TestLocalBackendEmbedUnloaded(t *testing.T) {
	backend := NewLocalBackend()
	require.NoError(t, backend.Configure(Config{VocabPath: writeVocab(t)}))
	_, err := backend.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
}

func TestEngineWithLocalBackend(t *testing.T) {
	engine := NewEngine(NewLocalBackend())
	require.NoError(t, engine.Initialize(context.Background(), Config{
		VocabPath:   writeVocab(t),
		LazyLoad:    true,
		IdleTimeout: time.Hour,
	}))
	defer func() { _ = engine.Close() }()

	vec, err := engine.Embed(context.Background(), "rooftop chase at night")
	require.NoError(t, err)
	assert.Len(t, vec, LocalDimension)
	assert.False(t, IsZeroVector(vec))
}

func TestInitializeEagerLoad(t *testing.T) {
	backend := newMockBackend()
	engine := NewEngine(backend)
	require.NoError(t, engine.Initialize(context.Background(), Config{
		LazyLoad:    false,
		IdleTimeout: time.Hour,
	}))
	defer func() { _ = engine.Close() }()

	assert.Equal(t, StateLoaded, engine.State())
	assert.Equal(t, int64(1), backend.loadCalls.Load())
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, IsZeroVector(nil))
	assert.True(t, IsZeroVector([]float32{0, 0, 0}))
	assert.False(t, IsZeroVector([]float32{0, 0.001, 0}))
}
