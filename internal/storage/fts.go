package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
)

// sanitizeFTSQuery escapes FTS5 special syntax so arbitrary user input
// becomes a plain term query. Each whitespace-separated token is quoted,
// with embedded double quotes doubled per SQL rules.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.ReplaceAll(field, `"`, `""`)
		quoted = append(quoted, `"`+field+`"`)
	}
	return strings.Join(quoted, " ")
}

// normalizeBM25 maps the raw FTS5 bm25() score onto (0, 1], higher being
// more relevant. FTS5 reports better matches as more negative values.
func normalizeBM25(score float64) float64 {
	return 1.0 / (1.0 + math.Abs(score)/50.0)
}

// searchChunks runs a BM25-ranked full-text match over the chunk index.
func searchChunks(ctx context.Context, q querier, query string, opts *SearchOptions) ([]KeywordResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return []KeywordResult{}, nil
	}
	if opts == nil {
		opts = &SearchOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT c.id, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
	`)
	args := []interface{}{sanitized}

	if opts.MediaType != "" {
		sb.WriteString(" AND c.media_type = ?")
		args = append(args, opts.MediaType)
	}
	if opts.MediaID > 0 {
		sb.WriteString(" AND c.media_id = ?")
		args = append(args, opts.MediaID)
	}
	if len(opts.SourceTypes) > 0 {
		placeholders := make([]string, len(opts.SourceTypes))
		for i, st := range opts.SourceTypes {
			placeholders[i] = "?"
			args = append(args, st)
		}
		sb.WriteString(" AND c.source_type IN (" + strings.Join(placeholders, ", ") + ")")
	}
	if opts.MinConfidence > 0 {
		sb.WriteString(" AND c.confidence >= ?")
		args = append(args, opts.MinConfidence)
	}

	sb.WriteString(" ORDER BY score LIMIT ?")
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]KeywordResult, 0, limit)
	for rows.Next() {
		var result KeywordResult
		var raw float64
		if err := rows.Scan(&result.ChunkID, &raw); err != nil {
			return nil, err
		}
		result.Score = normalizeBM25(raw)
		results = append(results, result)
	}
	return results, rows.Err()
}

// chunkSnippet builds a highlighted excerpt for a single chunk using the
// FTS5 snippet() auxiliary function. Falls back to a text prefix when the
// query doesn't match the chunk.
func chunkSnippet(ctx context.Context, q querier, query string, chunkID int64, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 32
	}
	if maxTokens > 64 {
		// FTS5 caps snippet token windows at 64
		maxTokens = 64
	}

	sanitized := sanitizeFTSQuery(query)
	if sanitized != "" {
		sqlQuery := `
			SELECT snippet(chunks_fts, 0, '[', ']', '...', ?)
			FROM chunks_fts
			WHERE chunks_fts MATCH ? AND rowid = ?
		`
		var snippet string
		err := q.QueryRowContext(ctx, sqlQuery, maxTokens, sanitized, chunkID).Scan(&snippet)
		if err == nil {
			return snippet, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("snippet failed: %w", err)
		}
	}

	var text string
	err := q.QueryRowContext(ctx, `SELECT text FROM chunks WHERE id = ?`, chunkID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return truncateWords(text, maxTokens), nil
}

// truncateWords cuts text to at most n words, appending an ellipsis.
func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "..."
}
