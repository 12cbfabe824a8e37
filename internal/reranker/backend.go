package reranker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/medialib/scenesearch/pkg/types"
)

// LocalBackend scores pairs by lexical overlap between query and
// passage. It stands in where no native cross-encoder runtime is
// available; relative ordering is meaningful, absolute values are not.
type LocalBackend struct {
	mu     sync.Mutex
	cfg    Config
	loaded bool
}

// NewLocalBackend returns an unconfigured local scoring backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Name() string { return "local-lexical" }

// Configure validates the vocab path when one is given. The local
// scorer itself needs no model files.
func (b *LocalBackend) Configure(cfg Config) error {
	if cfg.VocabPath != "" {
		if _, err := os.Stat(cfg.VocabPath); err != nil {
			return fmt.Errorf("vocab path: %w", err)
		}
	}
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	return nil
}

func (b *LocalBackend) Load(_ context.Context) error {
	b.mu.Lock()
	b.loaded = true
	b.mu.Unlock()
	return nil
}

func (b *LocalBackend) Unload() error {
	b.mu.Lock()
	b.loaded = false
	b.mu.Unlock()
	return nil
}

// ScorePairs maps Jaccard word overlap onto a logit in roughly [-4,4]
// so overlap 0 sigmoids near 0.02, full overlap near 0.98, and half
// overlap lands at 0.5.
func (b *LocalBackend) ScorePairs(_ context.Context, query string, passages []string) ([]float64, error) {
	b.mu.Lock()
	loaded := b.loaded
	b.mu.Unlock()
	if !loaded {
		return nil, types.ErrModelUnavailable
	}

	queryWords := wordSet(query)
	logits := make([]float64, len(passages))
	for i, passage := range passages {
		logits[i] = (jaccard(queryWords, wordSet(passage)) - 0.5) * 8
	}
	return logits, nil
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(w, ".,!?;:\"'")] = true
	}
	delete(set, "")
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
