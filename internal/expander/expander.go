// Package expander produces query variants from a persistent synonym store
// and records executed queries for autocomplete suggestions.
package expander

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/medialib/scenesearch/pkg/types"
)

const (
	// DefaultMaxVariants bounds the number of expanded queries returned
	// in addition to the original.
	DefaultMaxVariants = 3

	// minSynonymWeight filters out weakly associated synonyms.
	minSynonymWeight = 0.3
)

// SynonymStore is the subset of the storage layer the expander needs.
type SynonymStore interface {
	UpsertSynonym(ctx context.Context, syn *types.Synonym) error
	GetSynonyms(ctx context.Context, word, language string) ([]types.Synonym, error)
	RecordSuggestion(ctx context.Context, query string) error
	GetSuggestions(ctx context.Context, prefix string, limit int) ([]types.SearchSuggestion, error)
}

// Expander expands queries with stored synonyms. Expansion is best
// effort: a failed synonym lookup yields the original query alone.
type Expander struct {
	store       SynonymStore
	maxVariants int
	logger      *slog.Logger
}

// Option configures an Expander.
type Option func(*Expander)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Expander) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxVariants bounds how many variant queries Expand returns.
func WithMaxVariants(n int) Option {
	return func(e *Expander) {
		if n > 0 {
			e.maxVariants = n
		}
	}
}

// New creates an expander backed by the given synonym store.
func New(store SynonymStore, opts ...Option) *Expander {
	e := &Expander{
		store:       store,
		maxVariants: DefaultMaxVariants,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the original query plus variant queries where single
// words are substituted by stored synonyms. Variants are generated one
// substitution at a time so each variant stays close to the original.
func (e *Expander) Expand(ctx context.Context, query, language string) types.ExpansionResult {
	result := types.ExpansionResult{Original: query}

	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return result
	}
	if language == "" {
		language = "en"
	}

	seen := map[string]bool{strings.Join(words, " "): true}
	for i, word := range words {
		if len(result.Variants) >= e.maxVariants {
			break
		}
		syns, err := e.store.GetSynonyms(ctx, word, language)
		if err != nil {
			e.logger.Debug("synonym lookup failed", "word", word, "error", err)
			continue
		}
		for _, syn := range syns {
			if len(result.Variants) >= e.maxVariants {
				break
			}
			if syn.Weight < minSynonymWeight {
				continue
			}
			variant := substitute(words, i, syn.Synonym)
			if seen[variant] {
				continue
			}
			seen[variant] = true
			result.Variants = append(result.Variants, variant)
		}
	}
	return result
}

// substitute replaces words[i] with repl and joins the result.
func substitute(words []string, i int, repl string) string {
	out := make([]string, len(words))
	copy(out, words)
	out[i] = strings.ToLower(repl)
	return strings.Join(out, " ")
}

// AddSynonym stores a bidirectional synonym pair. Both directions are
// written so either word expands to the other.
func (e *Expander) AddSynonym(ctx context.Context, word, synonym, language string, weight float64) error {
	if strings.TrimSpace(word) == "" || strings.TrimSpace(synonym) == "" {
		return fmt.Errorf("%w: synonym words must be non-empty", types.ErrInvalidInput)
	}
	if weight <= 0 || weight > 1 {
		weight = 1.0
	}
	if language == "" {
		language = "en"
	}
	forward := &types.Synonym{Word: word, Synonym: synonym, Weight: weight, Language: language}
	if err := e.store.UpsertSynonym(ctx, forward); err != nil {
		return fmt.Errorf("store synonym: %w", err)
	}
	backward := &types.Synonym{Word: synonym, Synonym: word, Weight: weight, Language: language}
	if err := e.store.UpsertSynonym(ctx, backward); err != nil {
		return fmt.Errorf("store reverse synonym: %w", err)
	}
	return nil
}

// RecordQuery logs an executed query for autocomplete. Failures are
// logged and swallowed, suggestion bookkeeping never fails a search.
func (e *Expander) RecordQuery(ctx context.Context, query string) {
	if strings.TrimSpace(query) == "" {
		return
	}
	if err := e.store.RecordSuggestion(ctx, query); err != nil {
		e.logger.Debug("record suggestion failed", "error", err)
	}
}

// Suggest returns stored queries matching the prefix, most used first.
func (e *Expander) Suggest(ctx context.Context, prefix string, limit int) ([]types.SearchSuggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.store.GetSuggestions(ctx, prefix, limit)
}
