// Package searcher implements hybrid scene search combining vector
// similarity and keyword matching over indexed media chunks.
//
// The engine provides three search modes:
//   - Hybrid: keyword + vector fused with weighted Reciprocal Rank
//     Fusion (default)
//   - Keyword: BM25 full-text search only
//   - Semantic: pure vector similarity
//
// # Basic Usage
//
//	eng := searcher.New(store, vectors, embedder)
//
//	resp, err := eng.Search(ctx, "car chase at night", searcher.DefaultOptions())
//	for _, r := range resp.Results {
//	    fmt.Printf("[%s] %s (%.4f)\n", r.Timestamp, r.Snippet, r.CombinedScore)
//	}
//
// # Fusion
//
// Hybrid mode runs the keyword and vector sub-searches concurrently
// and fuses their rankings:
//
//	score(chunk) = keywordWeight/(k + rank_kw + 1) + vectorWeight/(k + rank_vec + 1)
//
// with k = 60 and 0-based ranks; a chunk absent from one list simply
// contributes nothing for that signal.
//
// # Degradation
//
// A failing sub-search contributes an empty list rather than failing
// the query. When the query cannot be embedded, hybrid mode falls back
// to keyword-only (Response.DegradedToKeyword is set) while semantic
// mode returns an empty result, since the caller asked for vector
// ranking explicitly.
//
// # Caching
//
// With Options.UseCache, responses are held in an LRU cache with a
// per-entry TTL. Call InvalidateCache after re-indexing.
package searcher
