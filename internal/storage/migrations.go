package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"

	// MinSchemaVersion is the oldest schema this build can upgrade from.
	// Opening a store below this version fails rather than risking a
	// lossy migration.
	MinSchemaVersion = "1.0.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV110Up,
		Down:    migrationV110Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Semantic chunks: the atomic indexed unit
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    media_id INTEGER NOT NULL,
    media_type TEXT NOT NULL,
    source_type TEXT NOT NULL,
    source_path TEXT,
    start_ms INTEGER NOT NULL DEFAULT 0,
    end_ms INTEGER NOT NULL DEFAULT 0,
    text TEXT NOT NULL,
    language TEXT,
    confidence REAL NOT NULL DEFAULT 1.0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chunks_media ON chunks(media_id, media_type);
CREATE INDEX IF NOT EXISTS idx_chunks_media_time ON chunks(media_id, media_type, start_ms);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_type);

-- Full-text search on chunk text
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    text,
    content='chunks',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
    INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;

-- Per-media indexing state, one row per (media_id, media_type)
CREATE TABLE IF NOT EXISTS index_states (
    media_id INTEGER NOT NULL,
    media_type TEXT NOT NULL,
    subtitle_status TEXT NOT NULL DEFAULT 'pending',
    transcription_status TEXT NOT NULL DEFAULT 'pending',
    metadata_status TEXT NOT NULL DEFAULT 'pending',
    provider TEXT,
    progress REAL NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (media_id, media_type)
);

CREATE INDEX IF NOT EXISTS idx_states_pending ON index_states(priority DESC, updated_at);

-- Transcription provider registry with usage accounting
CREATE TABLE IF NOT EXISTS providers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    configured BOOLEAN NOT NULL DEFAULT 0,
    request_count INTEGER NOT NULL DEFAULT 0,
    transcribed_ms INTEGER NOT NULL DEFAULT 0,
    cost_estimate REAL NOT NULL DEFAULT 0,
    last_used TIMESTAMP
);

-- Embedding vectors, one per chunk, owned by the vector searcher
CREATE TABLE IF NOT EXISTS vectors (
    chunk_id INTEGER PRIMARY KEY,
    embedding BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TRIGGER IF EXISTS chunks_au;
DROP TRIGGER IF EXISTS chunks_ad;
DROP TRIGGER IF EXISTS chunks_ai;

DROP TABLE IF EXISTS vectors;
DROP TABLE IF EXISTS providers;
DROP TABLE IF EXISTS index_states;
DROP TABLE IF EXISTS chunks_fts;
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS schema_version;
`

const migrationV110Up = `
-- Query expansion synonyms
CREATE TABLE IF NOT EXISTS synonyms (
    word TEXT NOT NULL,
    synonym TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    language TEXT NOT NULL DEFAULT 'en',
    PRIMARY KEY (word, synonym, language)
);

CREATE INDEX IF NOT EXISTS idx_synonyms_word ON synonyms(word, language);

-- Logged queries for autocomplete
CREATE TABLE IF NOT EXISTS search_suggestions (
    query TEXT PRIMARY KEY,
    use_count INTEGER NOT NULL DEFAULT 1,
    last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Saved filter combinations
CREATE TABLE IF NOT EXISTS filter_presets (
    name TEXT PRIMARY KEY,
    media_type TEXT,
    genres TEXT,
    min_year INTEGER NOT NULL DEFAULT 0,
    max_year INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationV110Down = `
DROP TABLE IF EXISTS filter_presets;
DROP TABLE IF EXISTS search_suggestions;
DROP TABLE IF EXISTS synonyms;
`

// ApplyMigrations upgrades the schema in place to CurrentSchemaVersion.
// Databases newer than this build, or older than MinSchemaVersion (once any
// migration has been applied), are refused.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	minVersion := semver.MustParse(MinSchemaVersion)
	zero := semver.MustParse("0.0.0")
	if currentVersion.GreaterThan(zero) && currentVersion.LessThan(minVersion) {
		return fmt.Errorf("schema version %s is below minimum supported %s", currentVersion, MinSchemaVersion)
	}
	if currentVersion.GreaterThan(semver.MustParse(CurrentSchemaVersion)) {
		return fmt.Errorf("schema version %s is newer than this build supports (%s)", currentVersion, CurrentSchemaVersion)
	}

	// Run migrations in order
	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		_, err = db.ExecContext(ctx, migration.Up)
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version)
		if err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}

// readSchemaVersion returns the most recently applied version, or 0.0.0 for
// a fresh database.
func readSchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var versionStr string
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&versionStr)
	if err == sql.ErrNoRows || versionStr == "" {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}

	version, err := semver.NewVersion(versionStr)
	if err != nil {
		return nil, fmt.Errorf("invalid current schema version %s: %w", versionStr, err)
	}
	return version, nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	var currentVersion string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == currentVersion {
			migration = &AllMigrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %s not found", currentVersion)
	}

	_, err = db.ExecContext(ctx, migration.Down)
	if err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", currentVersion, err)
	}

	_, err = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", currentVersion)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", currentVersion, err)
	}

	return nil
}
