// Package types provides shared type definitions for the scenesearch
// media-search subsystem.
//
// This package defines the domain types used across components: parsed
// content entries, semantic chunks, index state, and search results.
//
// # Core Types
//
// ParsedEntry is a transient parsed unit (a subtitle cue, a transcription
// segment, a metadata field) produced by content parsers:
//
//	entry := types.ParsedEntry{
//	    StartMs:    1000,
//	    EndMs:      2500,
//	    Text:       "We're going to need a bigger boat.",
//	    Confidence: 1.0,
//	}
//
// SemanticChunk is the atomic indexed unit. It belongs to exactly one
// (MediaID, MediaType) pair and has ID -1 until persisted:
//
//	chunk := types.NewChunk(42, types.MediaMovie, types.SourceSubtitle, mergedCueText)
//	chunk.StartMs, chunk.EndMs = 1000, 5000
//
// IndexState tracks per-source indexing status (subtitle, transcription,
// metadata) independently for each media item; its ChunkCount is kept
// transactionally consistent with chunk inserts and deletes.
//
// # Search Results
//
// SearchResult carries the per-signal and fused scores for a hit:
//
//	result.KeywordScore  // BM25-derived, 0 if absent from keyword list
//	result.VectorScore   // cosine similarity, 0 if absent from vector list
//	result.CombinedScore // Reciprocal Rank Fusion score, final ordering
//
// EnrichedResult adds joined library metadata (title, plot, year, rating,
// artwork) for display.
//
// # Error Taxonomy
//
// The sentinel errors in this package define the failure channels used
// subsystem-wide. Model unavailability (ErrModelUnavailable) is always
// handled by degradation, never by failing a query.
package types
