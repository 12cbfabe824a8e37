package chunker

import (
	"regexp"
	"strings"

	"github.com/medialib/scenesearch/pkg/types"
)

const (
	// DefaultMaxChunkWords is the target maximum word count per chunk
	DefaultMaxChunkWords = 50

	// DefaultMinChunkWords is the minimum word count for an emitted chunk
	DefaultMinChunkWords = 10

	// DefaultOverlapWords is how many trailing words carry into the next
	// chunk when splitting a long entry
	DefaultOverlapWords = 5

	// DefaultMaxMergeGapMs is the largest silence between entries that
	// still allows merging them
	DefaultMaxMergeGapMs = 2000
)

// Config controls how parsed entries are grouped into chunks.
type Config struct {
	MaxChunkWords     int
	MinChunkWords     int
	OverlapWords      int
	MergeShortEntries bool
	MaxMergeGapMs     int64
}

// DefaultConfig returns the standard chunking configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkWords:     DefaultMaxChunkWords,
		MinChunkWords:     DefaultMinChunkWords,
		OverlapWords:      DefaultOverlapWords,
		MergeShortEntries: true,
		MaxMergeGapMs:     DefaultMaxMergeGapMs,
	}
}

// normalize clamps config values into their valid ranges.
func (c Config) normalize() Config {
	if c.MaxChunkWords < 1 {
		c.MaxChunkWords = 1
	}
	if c.MinChunkWords < 0 {
		c.MinChunkWords = 0
	}
	if c.OverlapWords < 0 {
		c.OverlapWords = 0
	}
	if c.MaxMergeGapMs < 0 {
		c.MaxMergeGapMs = 0
	}
	return c
}

// Chunker groups parsed entries into search-sized semantic chunks.
type Chunker struct {
	cfg Config
}

// New creates a Chunker with the given configuration.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.normalize()}
}

// NewDefault creates a Chunker with the default configuration.
func NewDefault() *Chunker {
	return New(DefaultConfig())
}

// Process converts parsed entries into chunks for one media item.
// Short consecutive entries within the merge gap are accumulated, long
// entries are split by sentence with word overlap. Merged accumulations
// that never reach MinChunkWords are dropped.
func (c *Chunker) Process(entries []types.ParsedEntry, mediaID int64, mediaType types.MediaType, sourceType types.SourceType) []*types.SemanticChunk {
	chunks := make([]*types.SemanticChunk, 0, len(entries))
	if len(entries) == 0 {
		return chunks
	}

	if !c.cfg.MergeShortEntries {
		for i := range entries {
			chunks = append(chunks, c.processSingle(&entries[i], mediaID, mediaType, sourceType)...)
		}
		return chunks
	}

	var acc accumulator
	for i := range entries {
		entry := &entries[i]
		words := entry.WordCount()
		if words == 0 {
			continue
		}

		// Oversized entries are split on their own, never merged
		if words > c.cfg.MaxChunkWords {
			chunks = append(chunks, c.flush(&acc, mediaID, mediaType, sourceType)...)
			chunks = append(chunks, c.splitEntry(entry, mediaID, mediaType, sourceType)...)
			continue
		}

		if !acc.empty() && (acc.words+words > c.cfg.MaxChunkWords || !acc.withinGap(entry, c.cfg.MaxMergeGapMs)) {
			chunks = append(chunks, c.flush(&acc, mediaID, mediaType, sourceType)...)
		}
		acc.add(entry, words)
	}
	chunks = append(chunks, c.flush(&acc, mediaID, mediaType, sourceType)...)

	return chunks
}

// ProcessText chunks free-form untimed text, for metadata and plot
// descriptions. Resulting chunks have zero start and end times.
func (c *Chunker) ProcessText(text string, mediaID int64, mediaType types.MediaType, sourceType types.SourceType) []*types.SemanticChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return []*types.SemanticChunk{}
	}
	entry := types.ParsedEntry{Text: text, Confidence: 1.0}
	return c.processSingle(&entry, mediaID, mediaType, sourceType)
}

// processSingle handles one entry in non-merging mode: drop short,
// emit within bounds, split long.
func (c *Chunker) processSingle(entry *types.ParsedEntry, mediaID int64, mediaType types.MediaType, sourceType types.SourceType) []*types.SemanticChunk {
	words := entry.WordCount()
	if words == 0 || words < c.cfg.MinChunkWords {
		return nil
	}
	if words > c.cfg.MaxChunkWords {
		return c.splitEntry(entry, mediaID, mediaType, sourceType)
	}
	return []*types.SemanticChunk{c.makeChunk(entry.Text, entry.StartMs, entry.EndMs, entry.Confidence, mediaID, mediaType, sourceType)}
}

// accumulator collects consecutive short entries pending a flush.
type accumulator struct {
	parts      []string
	words      int
	startMs    int64
	endMs      int64
	confidence float64
	count      int
}

func (a *accumulator) empty() bool {
	return a.count == 0
}

// withinGap reports whether entry starts close enough after the
// accumulated span to be merged. Untimed entries always merge.
func (a *accumulator) withinGap(entry *types.ParsedEntry, maxGapMs int64) bool {
	if !entry.Timed() || a.endMs == 0 {
		return true
	}
	return entry.StartMs-a.endMs <= maxGapMs
}

func (a *accumulator) add(entry *types.ParsedEntry, words int) {
	if a.empty() {
		a.startMs = entry.StartMs
	}
	if entry.EndMs > a.endMs {
		a.endMs = entry.EndMs
	}
	a.parts = append(a.parts, entry.Text)
	a.words += words
	a.confidence += entry.Confidence
	a.count++
}

func (a *accumulator) reset() {
	*a = accumulator{}
}

// flush emits the accumulated entries as a single chunk if they meet
// the minimum word count, and resets the accumulator either way.
func (c *Chunker) flush(acc *accumulator, mediaID int64, mediaType types.MediaType, sourceType types.SourceType) []*types.SemanticChunk {
	defer acc.reset()
	if acc.empty() || acc.words < c.cfg.MinChunkWords {
		return nil
	}
	text := strings.Join(acc.parts, " ")
	confidence := acc.confidence / float64(acc.count)
	return []*types.SemanticChunk{c.makeChunk(text, acc.startMs, acc.endMs, confidence, mediaID, mediaType, sourceType)}
}

// sentencePattern splits on terminal punctuation followed by whitespace.
var sentencePattern = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// splitSentences breaks text into sentences, keeping the terminal
// punctuation with its sentence. Text without terminal punctuation is
// one sentence.
func splitSentences(text string) []string {
	locs := sentencePattern.FindAllStringIndex(text, -1)
	sentences := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		s := strings.TrimSpace(text[prev:loc[1]])
		if s != "" {
			sentences = append(sentences, s)
		}
		prev = loc[1]
	}
	if rest := strings.TrimSpace(text[prev:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// splitEntry breaks a long entry into chunks on sentence boundaries,
// carrying OverlapWords trailing words into each following chunk.
// Timing is extrapolated proportionally to word progress through the
// entry, so the first chunk starts at the entry start and the last
// chunk ends at the entry end.
func (c *Chunker) splitEntry(entry *types.ParsedEntry, mediaID int64, mediaType types.MediaType, sourceType types.SourceType) []*types.SemanticChunk {
	totalWords := entry.WordCount()
	sentences := splitSentences(entry.Text)
	chunks := make([]*types.SemanticChunk, 0, totalWords/c.cfg.MaxChunkWords+1)

	span := entry.EndMs - entry.StartMs
	timed := entry.Timed()

	var current []string
	freshWords := 0 // words in current beyond the carried overlap
	consumed := 0   // words of the original consumed so far
	chunkStart := entry.StartMs

	emit := func(final bool) {
		if freshWords == 0 {
			return
		}
		text := strings.Join(current, " ")
		startMs, endMs := int64(0), int64(0)
		if timed {
			startMs = chunkStart
			if final {
				endMs = entry.EndMs
			} else {
				endMs = entry.StartMs + int64(float64(span)*float64(consumed)/float64(totalWords))
			}
		}
		chunks = append(chunks, c.makeChunk(text, startMs, endMs, entry.Confidence, mediaID, mediaType, sourceType))
		chunkStart = endMs
		current = c.carryOverlap(current)
		freshWords = 0
	}

	for _, sentence := range sentences {
		sentenceWords := strings.Fields(sentence)

		// A single sentence longer than the budget is split by raw words
		for len(sentenceWords) > c.cfg.MaxChunkWords {
			room := c.cfg.MaxChunkWords - len(current)
			if room < 1 {
				room = 1
			}
			if room > len(sentenceWords) {
				room = len(sentenceWords)
			}
			current = append(current, sentenceWords[:room]...)
			freshWords += room
			consumed += room
			sentenceWords = sentenceWords[room:]
			emit(false)
		}
		if len(sentenceWords) == 0 {
			continue
		}

		if freshWords > 0 && len(current)+len(sentenceWords) > c.cfg.MaxChunkWords {
			emit(false)
		}
		current = append(current, sentenceWords...)
		freshWords += len(sentenceWords)
		consumed += len(sentenceWords)
	}
	emit(true)

	return chunks
}

// carryOverlap returns the trailing OverlapWords words of the emitted
// chunk as the seed of the next one.
func (c *Chunker) carryOverlap(emitted []string) []string {
	if c.cfg.OverlapWords == 0 || len(emitted) == 0 {
		return nil
	}
	n := c.cfg.OverlapWords
	if n > len(emitted) {
		n = len(emitted)
	}
	return append([]string(nil), emitted[len(emitted)-n:]...)
}

func (c *Chunker) makeChunk(text string, startMs, endMs int64, confidence float64, mediaID int64, mediaType types.MediaType, sourceType types.SourceType) *types.SemanticChunk {
	chunk := types.NewChunk(mediaID, mediaType, sourceType, text)
	chunk.StartMs = startMs
	chunk.EndMs = endMs
	chunk.Confidence = confidence
	return chunk
}
