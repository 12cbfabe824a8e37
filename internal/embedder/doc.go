// Package embedder generates dense vector embeddings for semantic
// search.
//
// The Engine wraps a pluggable Backend behind a model lifecycle state
// machine (unloaded, loading, loaded, unloading). With lazy loading the
// model is acquired on first use and released automatically after a
// configurable idle period, checked by a background ticker. Manual
// LoadModel/UnloadModel remain available for callers that want
// deterministic memory behavior.
//
// Two backends ship with the package:
//
//   - LocalBackend: deterministic token-derived vectors over a WordPiece
//     vocabulary. No model files, no network; stable ranking behavior
//     suitable for tests and for installs without an inference runtime.
//   - RemoteBackend: an OpenAI-compatible embeddings HTTP endpoint with
//     exponential backoff retry.
//
// Failure semantics: Embed and EmbedBatch on an engine that was never
// initialized return types.ErrNotInitialized. Within a batch, a failed
// text yields an all-zero vector rather than aborting the batch;
// callers detect this with IsZeroVector and degrade to keyword-only
// ranking.
//
// # Usage
//
//	engine := embedder.NewEngine(embedder.NewLocalBackend())
//	err := engine.Initialize(ctx, embedder.DefaultConfig("", vocabPath))
//	vec, err := engine.Embed(ctx, "rooftop chase at night")
package embedder
