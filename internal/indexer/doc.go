// Package indexer coordinates the ingestion pipeline for media content
// sources: subtitle files, NFO metadata, and transcription segments.
//
// The pipeline runs parse, chunk, store, embed, vector insert:
//
//	ix, _ := indexer.New(store, vectors, engine)
//	defer ix.Release()
//
//	stats, err := ix.IndexFile(ctx, "/media/movie.srt", mediaID, types.MediaMovie)
//	fmt.Printf("indexed %d chunks in %v\n", stats.ChunksIndexed, stats.Duration)
//
// Chunk inserts for one source happen in a single transaction, so a
// crash mid-ingest never leaves a partially indexed source visible.
// Embedding runs afterwards in batches on a worker pool; a batch that
// cannot be embedded leaves its chunks keyword-searchable and moves
// on.
//
// Per-source index state (pending, in progress, completed, failed) is
// tracked per media item. MarkPending and ProcessPending form a simple
// priority work queue for background indexing. Cancel requests
// cooperative cancellation, honored between embedding batches.
package indexer
