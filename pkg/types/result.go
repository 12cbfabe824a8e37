package types

import (
	"fmt"
	"time"
)

// SearchResult is a ranked hit from the hybrid search engine. Purely
// derived, never persisted.
type SearchResult struct {
	ChunkID int64
	Chunk   *SemanticChunk

	// Individual signal scores. Zero when the chunk was absent from
	// that signal's ranked list.
	KeywordScore float64
	VectorScore  float64

	// CombinedScore is the RRF fusion score used for final ordering.
	CombinedScore float64

	Snippet   string
	Timestamp string // Formatted H:MM:SS position, empty for untimed chunks
}

// EnrichedResult is a SearchResult joined with external media metadata.
type EnrichedResult struct {
	SearchResult

	Title      string
	Plot       string
	Year       int
	Rating     float64
	ArtworkURL string
}

// CrossEncoderResult is the per-pair output of the re-ranking stage.
type CrossEncoderResult struct {
	ID                int64
	CrossEncoderScore float64
	OriginalScore     float64
	FinalScore        float64
}

// Synonym is one expansion term for a word, with a relevance weight.
type Synonym struct {
	Word     string
	Synonym  string
	Weight   float64
	Language string
}

// ExpansionResult holds the query variants produced by the expander.
type ExpansionResult struct {
	Original string
	Variants []string
}

// SearchSuggestion is a logged query used for autocomplete.
type SearchSuggestion struct {
	Query    string
	UseCount int
	LastUsed time.Time
}

// FilterPreset is a named, saved filter combination.
type FilterPreset struct {
	Name      string
	MediaType MediaType
	Genres    []string
	MinYear   int
	MaxYear   int
	CreatedAt time.Time
}

// FormatTimestamp renders a millisecond offset as H:MM:SS.
func FormatTimestamp(ms int64) string {
	if ms <= 0 {
		return ""
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
