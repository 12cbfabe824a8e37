package types

import (
	"errors"
	"strings"
	"time"
)

// MediaType identifies the kind of library item a chunk belongs to.
type MediaType string

const (
	MediaMovie      MediaType = "movie"
	MediaEpisode    MediaType = "episode"
	MediaMusicVideo MediaType = "musicvideo"
)

// SourceType identifies where indexed text came from.
type SourceType string

const (
	SourceSubtitle      SourceType = "subtitle"
	SourceTranscription SourceType = "transcription"
	SourceMetadata      SourceType = "metadata"
)

// IndexStatus tracks per-source indexing progress for a media item.
type IndexStatus string

const (
	IndexPending    IndexStatus = "pending"
	IndexInProgress IndexStatus = "in_progress"
	IndexCompleted  IndexStatus = "completed"
	IndexFailed     IndexStatus = "failed"
)

// ParsedEntry is a transient unit of parsed content: one subtitle cue,
// one transcription segment, or one metadata field. Entries have no
// persistent identity; the chunker consumes them immediately.
type ParsedEntry struct {
	StartMs    int64
	EndMs      int64
	Text       string
	Speaker    string  // Optional, from ASS dialogue or diarized transcripts
	Confidence float64 // [0,1]; 1.0 for subtitles and metadata
}

// WordCount returns the number of whitespace-separated words in the entry.
func (e *ParsedEntry) WordCount() int {
	return len(strings.Fields(e.Text))
}

// Timed reports whether the entry carries timing information.
func (e *ParsedEntry) Timed() bool {
	return e.StartMs > 0 || e.EndMs > 0
}

// SemanticChunk is the atomic indexed unit: a span of text tied to a media
// item and, for timed sources, a time range.
type SemanticChunk struct {
	// Identification. ID is -1 until the chunk is persisted.
	ID        int64
	MediaID   int64
	MediaType MediaType

	// Provenance
	SourceType SourceType
	SourcePath string

	// Timing in milliseconds. Both zero for untimed metadata chunks.
	StartMs int64
	EndMs   int64

	// Content
	Text       string
	Language   string
	Confidence float64

	CreatedAt time.Time
}

// NewChunk returns an unpersisted chunk with the identity fields set.
func NewChunk(mediaID int64, mediaType MediaType, sourceType SourceType, text string) *SemanticChunk {
	return &SemanticChunk{
		ID:         -1,
		MediaID:    mediaID,
		MediaType:  mediaType,
		SourceType: sourceType,
		Text:       text,
		Confidence: 1.0,
	}
}

// WordCount returns the number of whitespace-separated words in the chunk text.
func (c *SemanticChunk) WordCount() int {
	return len(strings.Fields(c.Text))
}

// Timed reports whether the chunk carries a real time range.
func (c *SemanticChunk) Timed() bool {
	return c.StartMs > 0 || c.EndMs > 0
}

// MidpointMs returns the center of the chunk's time range.
func (c *SemanticChunk) MidpointMs() int64 {
	return (c.StartMs + c.EndMs) / 2
}

// Validate checks the chunk invariants before persistence.
func (c *SemanticChunk) Validate() error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if c.MediaID <= 0 {
		return errors.New("media ID is required")
	}
	if c.StartMs > 0 && c.EndMs > 0 && c.StartMs > c.EndMs {
		return errors.New("chunk start must not be after end")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return errors.New("confidence must be between 0 and 1")
	}
	switch c.MediaType {
	case MediaMovie, MediaEpisode, MediaMusicVideo:
	default:
		return errors.New("invalid media type")
	}
	switch c.SourceType {
	case SourceSubtitle, SourceTranscription, SourceMetadata:
	default:
		return errors.New("invalid source type")
	}
	return nil
}

// IndexState is the per-(mediaID, mediaType) bookkeeping row tracking
// independent indexing status for each source type.
type IndexState struct {
	MediaID   int64
	MediaType MediaType

	SubtitleStatus      IndexStatus
	TranscriptionStatus IndexStatus
	MetadataStatus      IndexStatus

	// Transcription progress
	Provider string
	Progress float64 // [0,1]

	Priority   int
	ChunkCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusFor returns the indexing status for the given source type.
func (s *IndexState) StatusFor(source SourceType) IndexStatus {
	switch source {
	case SourceSubtitle:
		return s.SubtitleStatus
	case SourceTranscription:
		return s.TranscriptionStatus
	case SourceMetadata:
		return s.MetadataStatus
	}
	return ""
}

// SetStatusFor updates the indexing status for the given source type.
func (s *IndexState) SetStatusFor(source SourceType, status IndexStatus) {
	switch source {
	case SourceSubtitle:
		s.SubtitleStatus = status
	case SourceTranscription:
		s.TranscriptionStatus = status
	case SourceMetadata:
		s.MetadataStatus = status
	}
}
