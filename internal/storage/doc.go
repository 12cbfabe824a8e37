// Package storage provides SQLite-based persistence for the semantic
// media index.
//
// The storage layer manages:
//   - Semantic chunks extracted from subtitles, transcriptions, and metadata
//   - FTS5 full-text search over chunk text with BM25 ranking
//   - Per-media indexing state (per-source status, progress, priority)
//   - Transcription provider registry and usage counters
//   - Query expansion synonyms, search suggestions, and filter presets
//
// # Database Schema
//
// Tables:
//   - chunks: Timed text chunks keyed by (media_id, media_type)
//   - chunks_fts: FTS5 external-content index kept in sync by triggers
//   - index_states: Indexing lifecycle per media item
//   - providers: Transcription providers and usage statistics
//   - vectors: Embedding blobs, owned by the vector searcher
//   - synonyms, search_suggestions, filter_presets: Query support
//
// # Basic Usage
//
//	db, err := storage.Open("~/.scenesearch/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	ids, err := db.InsertChunks(ctx, chunks)
//
//	results, err := db.SearchChunks(ctx, "rooftop chase", &storage.SearchOptions{
//	    MediaType: types.MediaMovie,
//	    Limit:     20,
//	})
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	ids, _ := tx.InsertChunks(ctx, chunks)
//	_ = tx.UpdateIndexState(ctx, state)
//	tx.Commit()
//
// # Build Modes
//
// Two SQLite drivers are supported via build tags. The default pure Go
// build uses modernc.org/sqlite; building with -tags "sqlite_vec,fts5"
// selects github.com/mattn/go-sqlite3 with the sqlite-vec extension.
package storage
