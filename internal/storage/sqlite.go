package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medialib/scenesearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SemanticDB implements the Store interface using SQLite with FTS5.
type SemanticDB struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Open creates a SemanticDB at dbPath, applying any pending migrations.
func Open(dbPath string) (*SemanticDB, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SemanticDB{db: db}, nil
}

// Close closes the database connection
func (s *SemanticDB) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so the vector searcher can share the
// same persistent store.
func (s *SemanticDB) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the most recently applied schema version.
func (s *SemanticDB) SchemaVersion(ctx context.Context) (string, error) {
	version, err := readSchemaVersion(ctx, s.db)
	if err != nil {
		return "", err
	}
	return version.String(), nil
}

// BeginTx starts a new transaction
func (s *SemanticDB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &semanticTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// semanticTx wraps a SQL transaction
type semanticTx struct {
	tx      *sql.Tx
	storage *SemanticDB
}

func (t *semanticTx) Commit() error {
	return t.tx.Commit()
}

func (t *semanticTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *semanticTx) querier() querier {
	return t.tx
}

func (s *SemanticDB) querier() querier {
	return s.db
}

// Chunk operations

// insertChunkWithQuerier inserts a chunk and bumps the owning index state's
// chunk count inside the same querier scope.
func (s *SemanticDB) insertChunkWithQuerier(ctx context.Context, q querier, chunk *types.SemanticChunk) (int64, error) {
	if err := chunk.Validate(); err != nil {
		return -1, fmt.Errorf("invalid chunk: %w", err)
	}

	query := `
		INSERT INTO chunks (media_id, media_type, source_type, source_path, start_ms, end_ms, text, language, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		chunk.MediaID, chunk.MediaType, chunk.SourceType, chunk.SourcePath,
		chunk.StartMs, chunk.EndMs, chunk.Text, chunk.Language, chunk.Confidence, now)
	if err != nil {
		return -1, fmt.Errorf("failed to insert chunk: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return -1, err
	}
	chunk.ID = id
	chunk.CreatedAt = now

	if err := s.bumpChunkCount(ctx, q, chunk.MediaID, chunk.MediaType, 1); err != nil {
		return -1, err
	}

	return id, nil
}

// bumpChunkCount keeps index_states.chunk_count consistent with chunk rows.
func (s *SemanticDB) bumpChunkCount(ctx context.Context, q querier, mediaID int64, mediaType types.MediaType, delta int) error {
	query := `
		INSERT INTO index_states (media_id, media_type, chunk_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(media_id, media_type) DO UPDATE SET
			chunk_count = MAX(0, chunk_count + excluded.chunk_count),
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query, mediaID, mediaType, delta, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update chunk count: %w", err)
	}
	return nil
}

// InsertChunk persists a single chunk and returns its assigned id.
func (s *SemanticDB) InsertChunk(ctx context.Context, chunk *types.SemanticChunk) (int64, error) {
	return s.insertChunkWithQuerier(ctx, s.querier(), chunk)
}

// InsertChunks persists a batch atomically. A failure mid-batch rolls back
// every chunk and the index-state count update.
func (s *SemanticDB) InsertChunks(ctx context.Context, chunks []*types.SemanticChunk) ([]int64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch insert: %w", err)
	}

	ids := make([]int64, 0, len(chunks))
	for _, chunk := range chunks {
		id, err := s.insertChunkWithQuerier(ctx, tx, chunk)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch insert: %w", err)
	}
	return ids, nil
}

const chunkColumns = `id, media_id, media_type, source_type, source_path, start_ms, end_ms, text, language, confidence, created_at`

// scanChunk scans a chunk row from any row-shaped source.
func scanChunk(scan func(dest ...interface{}) error) (*types.SemanticChunk, error) {
	var chunk types.SemanticChunk
	var sourcePath, language sql.NullString
	err := scan(
		&chunk.ID, &chunk.MediaID, &chunk.MediaType, &chunk.SourceType, &sourcePath,
		&chunk.StartMs, &chunk.EndMs, &chunk.Text, &language, &chunk.Confidence, &chunk.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	chunk.SourcePath = sourcePath.String
	chunk.Language = language.String
	return &chunk, nil
}

func (s *SemanticDB) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*types.SemanticChunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id = ?`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, chunkID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *SemanticDB) GetChunk(ctx context.Context, chunkID int64) (*types.SemanticChunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SemanticDB) getChunksForMediaWithQuerier(ctx context.Context, q querier, mediaID int64, mediaType types.MediaType) ([]*types.SemanticChunk, error) {
	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE media_id = ? AND media_type = ?
		ORDER BY start_ms, id
	`
	rows, err := q.QueryContext(ctx, query, mediaID, mediaType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.SemanticChunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SemanticDB) GetChunksForMedia(ctx context.Context, mediaID int64, mediaType types.MediaType) ([]*types.SemanticChunk, error) {
	return s.getChunksForMediaWithQuerier(ctx, s.querier(), mediaID, mediaType)
}

// deleteChunksForMediaWithQuerier removes all chunks for a media item and
// zeroes the index-state count. Vectors go with them via FK cascade.
// Idempotent: deleting an already-empty item succeeds with count 0.
func (s *SemanticDB) deleteChunksForMediaWithQuerier(ctx context.Context, q querier, mediaID int64, mediaType types.MediaType) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE media_id = ? AND media_type = ?`, mediaID, mediaType)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	_, err = q.ExecContext(ctx,
		`UPDATE index_states SET chunk_count = 0, updated_at = ? WHERE media_id = ? AND media_type = ?`,
		time.Now(), mediaID, mediaType)
	if err != nil {
		return 0, fmt.Errorf("failed to reset chunk count: %w", err)
	}

	return int(deleted), nil
}

func (s *SemanticDB) DeleteChunksForMedia(ctx context.Context, mediaID int64, mediaType types.MediaType) (int, error) {
	return s.deleteChunksForMediaWithQuerier(ctx, s.querier(), mediaID, mediaType)
}

// Temporal context

// getContextWithQuerier returns chunks whose time range intersects the
// window centered on timestampMs, clamped to >= 0, sorted by start time.
func (s *SemanticDB) getContextWithQuerier(ctx context.Context, q querier, mediaID int64, mediaType types.MediaType, timestampMs, windowMs int64) ([]*types.SemanticChunk, error) {
	lo := timestampMs - windowMs/2
	if lo < 0 {
		lo = 0
	}
	hi := timestampMs + windowMs/2

	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE media_id = ? AND media_type = ?
		  AND (start_ms > 0 OR end_ms > 0)
		  AND end_ms >= ? AND start_ms <= ?
		ORDER BY start_ms, id
	`
	rows, err := q.QueryContext(ctx, query, mediaID, mediaType, lo, hi)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*types.SemanticChunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SemanticDB) GetContext(ctx context.Context, mediaID int64, mediaType types.MediaType, timestampMs, windowMs int64) ([]*types.SemanticChunk, error) {
	return s.getContextWithQuerier(ctx, s.querier(), mediaID, mediaType, timestampMs, windowMs)
}

// Index state operations

func (s *SemanticDB) updateIndexStateWithQuerier(ctx context.Context, q querier, state *types.IndexState) error {
	query := `
		INSERT INTO index_states (
			media_id, media_type, subtitle_status, transcription_status, metadata_status,
			provider, progress, priority, chunk_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(media_id, media_type) DO UPDATE SET
			subtitle_status = excluded.subtitle_status,
			transcription_status = excluded.transcription_status,
			metadata_status = excluded.metadata_status,
			provider = excluded.provider,
			progress = excluded.progress,
			priority = excluded.priority,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		state.MediaID, state.MediaType,
		defaultStatus(state.SubtitleStatus), defaultStatus(state.TranscriptionStatus), defaultStatus(state.MetadataStatus),
		state.Provider, state.Progress, state.Priority, state.ChunkCount, now, now)
	if err != nil {
		return fmt.Errorf("failed to update index state: %w", err)
	}
	state.UpdatedAt = now
	return nil
}

func defaultStatus(status types.IndexStatus) types.IndexStatus {
	if status == "" {
		return types.IndexPending
	}
	return status
}

func (s *SemanticDB) UpdateIndexState(ctx context.Context, state *types.IndexState) error {
	return s.updateIndexStateWithQuerier(ctx, s.querier(), state)
}

const stateColumns = `media_id, media_type, subtitle_status, transcription_status, metadata_status, provider, progress, priority, chunk_count, created_at, updated_at`

func scanIndexState(scan func(dest ...interface{}) error) (*types.IndexState, error) {
	var state types.IndexState
	var provider sql.NullString
	err := scan(
		&state.MediaID, &state.MediaType,
		&state.SubtitleStatus, &state.TranscriptionStatus, &state.MetadataStatus,
		&provider, &state.Progress, &state.Priority, &state.ChunkCount,
		&state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	state.Provider = provider.String
	return &state, nil
}

func (s *SemanticDB) getIndexStateWithQuerier(ctx context.Context, q querier, mediaID int64, mediaType types.MediaType) (*types.IndexState, error) {
	query := `SELECT ` + stateColumns + ` FROM index_states WHERE media_id = ? AND media_type = ?`
	state, err := scanIndexState(q.QueryRowContext(ctx, query, mediaID, mediaType).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *SemanticDB) GetIndexState(ctx context.Context, mediaID int64, mediaType types.MediaType) (*types.IndexState, error) {
	return s.getIndexStateWithQuerier(ctx, s.querier(), mediaID, mediaType)
}

// getPendingIndexStatesWithQuerier returns states with any source still
// pending, highest priority first.
func (s *SemanticDB) getPendingIndexStatesWithQuerier(ctx context.Context, q querier, limit int) ([]*types.IndexState, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + stateColumns + `
		FROM index_states
		WHERE subtitle_status = 'pending' OR transcription_status = 'pending' OR metadata_status = 'pending'
		ORDER BY priority DESC, updated_at
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	states := make([]*types.IndexState, 0)
	for rows.Next() {
		state, err := scanIndexState(rows.Scan)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (s *SemanticDB) GetPendingIndexStates(ctx context.Context, limit int) ([]*types.IndexState, error) {
	return s.getPendingIndexStatesWithQuerier(ctx, s.querier(), limit)
}

// Provider registry operations

func (s *SemanticDB) updateProviderWithQuerier(ctx context.Context, q querier, provider *Provider) error {
	query := `
		INSERT INTO providers (id, name, configured, request_count, transcribed_ms, cost_estimate, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			configured = excluded.configured
	`
	var lastUsed interface{}
	if !provider.LastUsed.IsZero() {
		lastUsed = provider.LastUsed
	}
	_, err := q.ExecContext(ctx, query,
		provider.ID, provider.Name, provider.Configured,
		provider.RequestCount, provider.TranscribedMs, provider.CostEstimate, lastUsed)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	return nil
}

func (s *SemanticDB) UpdateProvider(ctx context.Context, provider *Provider) error {
	return s.updateProviderWithQuerier(ctx, s.querier(), provider)
}

func (s *SemanticDB) getProviderWithQuerier(ctx context.Context, q querier, providerID string) (*Provider, error) {
	query := `
		SELECT id, name, configured, request_count, transcribed_ms, cost_estimate, last_used
		FROM providers
		WHERE id = ?
	`
	var provider Provider
	var lastUsed sql.NullTime
	err := q.QueryRowContext(ctx, query, providerID).Scan(
		&provider.ID, &provider.Name, &provider.Configured,
		&provider.RequestCount, &provider.TranscribedMs, &provider.CostEstimate, &lastUsed,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		provider.LastUsed = lastUsed.Time
	}
	return &provider, nil
}

func (s *SemanticDB) GetProvider(ctx context.Context, providerID string) (*Provider, error) {
	return s.getProviderWithQuerier(ctx, s.querier(), providerID)
}

func (s *SemanticDB) updateProviderUsageWithQuerier(ctx context.Context, q querier, providerID string, transcribedMs int64, cost float64) error {
	query := `
		UPDATE providers SET
			request_count = request_count + 1,
			transcribed_ms = transcribed_ms + ?,
			cost_estimate = cost_estimate + ?,
			last_used = ?
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query, transcribedMs, cost, time.Now(), providerID)
	if err != nil {
		return fmt.Errorf("failed to update provider usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SemanticDB) UpdateProviderUsage(ctx context.Context, providerID string, transcribedMs int64, cost float64) error {
	return s.updateProviderUsageWithQuerier(ctx, s.querier(), providerID, transcribedMs, cost)
}

// Synonym operations

func (s *SemanticDB) upsertSynonymWithQuerier(ctx context.Context, q querier, syn *types.Synonym) error {
	language := syn.Language
	if language == "" {
		language = "en"
	}
	query := `
		INSERT INTO synonyms (word, synonym, weight, language)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(word, synonym, language) DO UPDATE SET
			weight = excluded.weight
	`
	_, err := q.ExecContext(ctx, query, strings.ToLower(syn.Word), strings.ToLower(syn.Synonym), syn.Weight, language)
	if err != nil {
		return fmt.Errorf("failed to upsert synonym: %w", err)
	}
	return nil
}

func (s *SemanticDB) UpsertSynonym(ctx context.Context, syn *types.Synonym) error {
	return s.upsertSynonymWithQuerier(ctx, s.querier(), syn)
}

func (s *SemanticDB) getSynonymsWithQuerier(ctx context.Context, q querier, word, language string) ([]types.Synonym, error) {
	if language == "" {
		language = "en"
	}
	query := `
		SELECT word, synonym, weight, language
		FROM synonyms
		WHERE word = ? AND language = ?
		ORDER BY weight DESC, synonym
	`
	rows, err := q.QueryContext(ctx, query, strings.ToLower(word), language)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	synonyms := make([]types.Synonym, 0)
	for rows.Next() {
		var syn types.Synonym
		if err := rows.Scan(&syn.Word, &syn.Synonym, &syn.Weight, &syn.Language); err != nil {
			return nil, err
		}
		synonyms = append(synonyms, syn)
	}
	return synonyms, rows.Err()
}

func (s *SemanticDB) GetSynonyms(ctx context.Context, word, language string) ([]types.Synonym, error) {
	return s.getSynonymsWithQuerier(ctx, s.querier(), word, language)
}

// Suggestion operations

func (s *SemanticDB) recordSuggestionWithQuerier(ctx context.Context, q querier, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	sqlQuery := `
		INSERT INTO search_suggestions (query, use_count, last_used)
		VALUES (?, 1, ?)
		ON CONFLICT(query) DO UPDATE SET
			use_count = use_count + 1,
			last_used = excluded.last_used
	`
	_, err := q.ExecContext(ctx, sqlQuery, query, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record suggestion: %w", err)
	}
	return nil
}

func (s *SemanticDB) RecordSuggestion(ctx context.Context, query string) error {
	return s.recordSuggestionWithQuerier(ctx, s.querier(), query)
}

func (s *SemanticDB) getSuggestionsWithQuerier(ctx context.Context, q querier, prefix string, limit int) ([]types.SearchSuggestion, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT query, use_count, last_used
		FROM search_suggestions
		WHERE query LIKE ? ESCAPE '\'
		ORDER BY use_count DESC, last_used DESC
		LIMIT ?
	`
	pattern := escapeLike(prefix) + "%"
	rows, err := q.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	suggestions := make([]types.SearchSuggestion, 0)
	for rows.Next() {
		var suggestion types.SearchSuggestion
		if err := rows.Scan(&suggestion.Query, &suggestion.UseCount, &suggestion.LastUsed); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions, rows.Err()
}

func (s *SemanticDB) GetSuggestions(ctx context.Context, prefix string, limit int) ([]types.SearchSuggestion, error) {
	return s.getSuggestionsWithQuerier(ctx, s.querier(), prefix, limit)
}

// escapeLike escapes LIKE pattern metacharacters in user input.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// Filter preset operations

func (s *SemanticDB) savePresetWithQuerier(ctx context.Context, q querier, preset *types.FilterPreset) error {
	if preset.Name == "" {
		return errors.New("preset name is required")
	}
	query := `
		INSERT INTO filter_presets (name, media_type, genres, min_year, max_year, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			media_type = excluded.media_type,
			genres = excluded.genres,
			min_year = excluded.min_year,
			max_year = excluded.max_year
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		preset.Name, preset.MediaType, strings.Join(preset.Genres, ","),
		preset.MinYear, preset.MaxYear, now)
	if err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	preset.CreatedAt = now
	return nil
}

func (s *SemanticDB) SavePreset(ctx context.Context, preset *types.FilterPreset) error {
	return s.savePresetWithQuerier(ctx, s.querier(), preset)
}

func scanPreset(scan func(dest ...interface{}) error) (*types.FilterPreset, error) {
	var preset types.FilterPreset
	var mediaType, genres sql.NullString
	err := scan(&preset.Name, &mediaType, &genres, &preset.MinYear, &preset.MaxYear, &preset.CreatedAt)
	if err != nil {
		return nil, err
	}
	preset.MediaType = types.MediaType(mediaType.String)
	if genres.String != "" {
		preset.Genres = strings.Split(genres.String, ",")
	}
	return &preset, nil
}

func (s *SemanticDB) getPresetWithQuerier(ctx context.Context, q querier, name string) (*types.FilterPreset, error) {
	query := `SELECT name, media_type, genres, min_year, max_year, created_at FROM filter_presets WHERE name = ?`
	preset, err := scanPreset(q.QueryRowContext(ctx, query, name).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return preset, nil
}

func (s *SemanticDB) GetPreset(ctx context.Context, name string) (*types.FilterPreset, error) {
	return s.getPresetWithQuerier(ctx, s.querier(), name)
}

func (s *SemanticDB) listPresetsWithQuerier(ctx context.Context, q querier) ([]*types.FilterPreset, error) {
	query := `SELECT name, media_type, genres, min_year, max_year, created_at FROM filter_presets ORDER BY name`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	presets := make([]*types.FilterPreset, 0)
	for rows.Next() {
		preset, err := scanPreset(rows.Scan)
		if err != nil {
			return nil, err
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

func (s *SemanticDB) ListPresets(ctx context.Context) ([]*types.FilterPreset, error) {
	return s.listPresetsWithQuerier(ctx, s.querier())
}

func (s *SemanticDB) deletePresetWithQuerier(ctx context.Context, q querier, name string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM filter_presets WHERE name = ?`, name)
	return err
}

func (s *SemanticDB) DeletePreset(ctx context.Context, name string) error {
	return s.deletePresetWithQuerier(ctx, s.querier(), name)
}

// Search operations delegate to the FTS implementation in fts.go

func (s *SemanticDB) SearchChunks(ctx context.Context, query string, opts *SearchOptions) ([]KeywordResult, error) {
	return searchChunks(ctx, s.querier(), query, opts)
}

func (s *SemanticDB) Snippet(ctx context.Context, query string, chunkID int64, maxTokens int) (string, error) {
	return chunkSnippet(ctx, s.querier(), query, chunkID, maxTokens)
}

// Transaction implementations delegate to the internal querier helpers.

func (t *semanticTx) InsertChunk(ctx context.Context, chunk *types.SemanticChunk) (int64, error) {
	return t.storage.insertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *semanticTx) InsertChunks(ctx context.Context, chunks []*types.SemanticChunk) ([]int64, error) {
	ids := make([]int64, 0, len(chunks))
	for _, chunk := range chunks {
		id, err := t.storage.insertChunkWithQuerier(ctx, t.querier(), chunk)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *semanticTx) GetChunk(ctx context.Context, chunkID int64) (*types.SemanticChunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *semanticTx) GetChunksForMedia(ctx context.Context, mediaID int64, mediaType types.MediaType) ([]*types.SemanticChunk, error) {
	return t.storage.getChunksForMediaWithQuerier(ctx, t.querier(), mediaID, mediaType)
}

func (t *semanticTx) DeleteChunksForMedia(ctx context.Context, mediaID int64, mediaType types.MediaType) (int, error) {
	return t.storage.deleteChunksForMediaWithQuerier(ctx, t.querier(), mediaID, mediaType)
}

func (t *semanticTx) SearchChunks(ctx context.Context, query string, opts *SearchOptions) ([]KeywordResult, error) {
	return searchChunks(ctx, t.querier(), query, opts)
}

func (t *semanticTx) Snippet(ctx context.Context, query string, chunkID int64, maxTokens int) (string, error) {
	return chunkSnippet(ctx, t.querier(), query, chunkID, maxTokens)
}

func (t *semanticTx) GetContext(ctx context.Context, mediaID int64, mediaType types.MediaType, timestampMs, windowMs int64) ([]*types.SemanticChunk, error) {
	return t.storage.getContextWithQuerier(ctx, t.querier(), mediaID, mediaType, timestampMs, windowMs)
}

func (t *semanticTx) UpdateIndexState(ctx context.Context, state *types.IndexState) error {
	return t.storage.updateIndexStateWithQuerier(ctx, t.querier(), state)
}

func (t *semanticTx) GetIndexState(ctx context.Context, mediaID int64, mediaType types.MediaType) (*types.IndexState, error) {
	return t.storage.getIndexStateWithQuerier(ctx, t.querier(), mediaID, mediaType)
}

func (t *semanticTx) GetPendingIndexStates(ctx context.Context, limit int) ([]*types.IndexState, error) {
	return t.storage.getPendingIndexStatesWithQuerier(ctx, t.querier(), limit)
}

func (t *semanticTx) UpdateProvider(ctx context.Context, provider *Provider) error {
	return t.storage.updateProviderWithQuerier(ctx, t.querier(), provider)
}

func (t *semanticTx) GetProvider(ctx context.Context, providerID string) (*Provider, error) {
	return t.storage.getProviderWithQuerier(ctx, t.querier(), providerID)
}

func (t *semanticTx) UpdateProviderUsage(ctx context.Context, providerID string, transcribedMs int64, cost float64) error {
	return t.storage.updateProviderUsageWithQuerier(ctx, t.querier(), providerID, transcribedMs, cost)
}

func (t *semanticTx) UpsertSynonym(ctx context.Context, syn *types.Synonym) error {
	return t.storage.upsertSynonymWithQuerier(ctx, t.querier(), syn)
}

func (t *semanticTx) GetSynonyms(ctx context.Context, word, language string) ([]types.Synonym, error) {
	return t.storage.getSynonymsWithQuerier(ctx, t.querier(), word, language)
}

func (t *semanticTx) RecordSuggestion(ctx context.Context, query string) error {
	return t.storage.recordSuggestionWithQuerier(ctx, t.querier(), query)
}

func (t *semanticTx) GetSuggestions(ctx context.Context, prefix string, limit int) ([]types.SearchSuggestion, error) {
	return t.storage.getSuggestionsWithQuerier(ctx, t.querier(), prefix, limit)
}

func (t *semanticTx) SavePreset(ctx context.Context, preset *types.FilterPreset) error {
	return t.storage.savePresetWithQuerier(ctx, t.querier(), preset)
}

func (t *semanticTx) GetPreset(ctx context.Context, name string) (*types.FilterPreset, error) {
	return t.storage.getPresetWithQuerier(ctx, t.querier(), name)
}

func (t *semanticTx) ListPresets(ctx context.Context) ([]*types.FilterPreset, error) {
	return t.storage.listPresetsWithQuerier(ctx, t.querier())
}

func (t *semanticTx) DeletePreset(ctx context.Context, name string) error {
	return t.storage.deletePresetWithQuerier(ctx, t.querier(), name)
}

func (t *semanticTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *semanticTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
