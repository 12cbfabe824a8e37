package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/medialib/scenesearch/internal/tokenizer"
)

const (
	// LocalDimension is the embedding width of the built-in backend
	LocalDimension = 384

	// MaxBatchSize caps texts per backend call
	MaxBatchSize = 100

	// Retry configuration for remote backends
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Backend is the inference layer beneath the Engine. Implementations
// must make Unload safe to call repeatedly.
type Backend interface {
	// Configure validates backend settings before any load.
	Configure(cfg Config) error

	// Load acquires the model resources.
	Load(ctx context.Context) error

	// Unload releases the model resources.
	Unload() error

	// EmbedBatch embeds up to MaxBatchSize texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int
	Name() string
}

// LocalBackend produces deterministic embeddings from WordPiece token
// IDs. It stands in for a native inference runtime: same text always
// yields the same vector, shared tokens pull vectors closer together,
// so ranking behavior is stable and testable without model files.
type LocalBackend struct {
	mu        sync.Mutex
	tok       *tokenizer.WordPiece
	vocabPath string
	loaded    bool
}

// NewLocalBackend creates an unloaded local backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (l *LocalBackend) Configure(cfg Config) error {
	if cfg.VocabPath == "" {
		return fmt.Errorf("vocab path is required")
	}
	if _, err := os.Stat(cfg.VocabPath); err != nil {
		return fmt.Errorf("vocab file: %w", err)
	}
	l.mu.Lock()
	l.vocabPath = cfg.VocabPath
	l.mu.Unlock()
	return nil
}

func (l *LocalBackend) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return nil
	}
	tok := tokenizer.New()
	if !tok.Load(l.vocabPath) {
		return fmt.Errorf("failed to load vocabulary from %s", l.vocabPath)
	}
	l.tok = tok
	l.loaded = true
	return nil
}

func (l *LocalBackend) Unload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tok = nil
	l.loaded = false
	return nil
}

func (l *LocalBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	l.mu.Lock()
	tok := l.tok
	l.mu.Unlock()
	if tok == nil {
		return nil, fmt.Errorf("backend not loaded")
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(texts), MaxBatchSize)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.embedOne(tok, text)
	}
	return vectors, nil
}

// embedOne sums a deterministic pseudo-random basis vector per token ID
// and normalizes. Texts sharing tokens share vector components.
func (l *LocalBackend) embedOne(tok *tokenizer.WordPiece, text string) []float32 {
	ids := tok.EncodeWithoutSpecialTokens(text)
	vector := make([]float32, LocalDimension)
	if len(ids) == 0 {
		return vector
	}

	var seed [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(seed[:], uint64(id))
		digest := sha256.Sum256(seed[:])
		for j := 0; j < LocalDimension; j++ {
			b := digest[j%sha256.Size]
			// map byte to [-1, 1), rotated by position so dimensions differ
			vector[j] += float32(int(b)+j%7-131) / 128.0
		}
	}
	return NormalizeVector(vector)
}

func (l *LocalBackend) Dimension() int {
	return LocalDimension
}

func (l *LocalBackend) Name() string {
	return "local"
}

// RemoteBackend calls an OpenAI-compatible embeddings HTTP endpoint.
type RemoteBackend struct {
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewRemoteBackend creates a backend for the given embeddings endpoint.
func NewRemoteBackend(endpoint, apiKey, model string, dimension int) *RemoteBackend {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &RemoteBackend{
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (r *RemoteBackend) Configure(cfg Config) error {
	if r.endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

// Load is a no-op: the remote service owns the model lifecycle.
func (r *RemoteBackend) Load(ctx context.Context) error {
	return nil
}

func (r *RemoteBackend) Unload() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

func (r *RemoteBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(texts), MaxBatchSize)
	}

	config := DefaultRetryConfig()
	vectors, err := retryWithBackoff(ctx, config, func() ([][]float32, error) {
		return r.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("after %d retries: %w", MaxRetries, err)
	}
	return vectors, nil
}

func (r *RemoteBackend) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": r.model,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (r *RemoteBackend) Dimension() int {
	return r.dimension
}

func (r *RemoteBackend) Name() string {
	return "remote"
}
