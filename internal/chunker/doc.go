// Package chunker turns parsed subtitle and metadata entries into
// search-sized semantic chunks.
//
// Consecutive short entries within a configurable time gap are merged
// until a word budget is reached; oversized entries are split on
// sentence boundaries with a configurable word overlap between the
// resulting chunks; timing for split chunks is extrapolated
// proportionally to word progress through the original entry.
package chunker
