// Package vector stores chunk embeddings and runs similarity search over
// them. It shares the SQLite handle with the storage package but owns the
// vectors table.
package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Result is a single similarity hit. Distance is cosine distance in
// [0, 2], lower being more similar.
type Result struct {
	ChunkID  int64
	Distance float64
}

// Similarity converts the cosine distance to a [0, 1] similarity score.
func (r Result) Similarity() float64 {
	return 1.0 - r.Distance/2.0
}

// Store persists embeddings as little-endian float32 blobs.
type Store struct {
	db        *sql.DB
	dimension int
}

// NewStore wraps an existing database handle. dimension is the expected
// embedding width; vectors of other widths are rejected on insert.
func NewStore(db *sql.DB, dimension int) *Store {
	return &Store{db: db, dimension: dimension}
}

// Dimension returns the embedding width this store expects.
func (s *Store) Dimension() int {
	return s.dimension
}

// CreateTable ensures the vectors table exists. Safe to call on a handle
// where migrations already created it.
func (s *Store) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS vectors (
			chunk_id INTEGER PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vectors table: %w", err)
	}
	return nil
}

// InsertVector stores or replaces the embedding for a chunk.
func (s *Store) InsertVector(ctx context.Context, chunkID int64, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for chunk %d", chunkID)
	}
	if s.dimension > 0 && len(embedding) != s.dimension {
		return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(embedding), s.dimension)
	}

	query := `
		INSERT INTO vectors (chunk_id, embedding, dimension, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query, chunkID, serializeVector(embedding), len(embedding), time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert vector: %w", err)
	}
	return nil
}

// GetVector returns the stored embedding for a chunk, or nil when no
// vector exists for it.
func (s *Store) GetVector(ctx context.Context, chunkID int64) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM vectors WHERE chunk_id = ?`, chunkID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return deserializeVector(blob), nil
}

// DeleteVector removes the embedding for a chunk. Missing vectors are not
// an error.
func (s *Store) DeleteVector(ctx context.Context, chunkID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE chunk_id = ?`, chunkID)
	return err
}

// SearchSimilar returns the limit nearest chunks to the query embedding,
// ordered by ascending cosine distance.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, limit int) ([]Result, error) {
	return s.search(ctx, query, limit, nil)
}

// SearchSimilarFiltered restricts the search to the given candidate chunk
// IDs. An empty candidate set yields an empty result, not a full scan.
func (s *Store) SearchSimilarFiltered(ctx context.Context, query []float32, limit int, candidates []int64) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}
	return s.search(ctx, query, limit, candidates)
}

func (s *Store) search(ctx context.Context, query []float32, limit int, candidates []int64) ([]Result, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		limit = 10
	}

	var sb strings.Builder
	sb.WriteString(`SELECT chunk_id, embedding FROM vectors`)
	args := make([]interface{}, 0, len(candidates))
	if candidates != nil {
		placeholders := make([]string, len(candidates))
		for i, id := range candidates {
			placeholders[i] = "?"
			args = append(args, id)
		}
		sb.WriteString(` WHERE chunk_id IN (` + strings.Join(placeholders, ", ") + `)`)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]Result, 0, 256)
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}

		embedding := deserializeVector(blob)
		if len(embedding) != len(query) {
			continue // dimension mismatch, skip
		}

		results = append(results, Result{
			ChunkID:  chunkID,
			Distance: cosineDistance(query, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetVectorCount returns the number of stored embeddings.
func (s *Store) GetVectorCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&count)
	return count, err
}

// ClearAllVectors drops every stored embedding. Used when the embedding
// model changes and the index must be rebuilt.
func (s *Store) ClearAllVectors(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vectors`)
	return err
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineDistance computes 1 - cosine similarity, yielding a value in
// [0, 2]. Zero vectors are treated as maximally distant from everything.
func cosineDistance(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	return 1.0 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineDistance is an exported helper for testing
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(a, b)
}
