package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/viterin/vek/vek32"
	"go.uber.org/zap"

	"github.com/jweetan/newsvet/internal/model"
)

// Query returns up to k indexed chunks ranked by cosine similarity to
// the query text, restricted to entries matching the filter. Ties are
// broken by more-recent date. An empty or filter-exhausted index returns
// an empty slice immediately, never an error.
func (ix *Index) Query(ctx context.Context, text string, filter model.RetrievalFilter, k int) ([]model.RetrievedChunk, error) {
	if k <= 0 {
		return []model.RetrievedChunk{}, nil
	}

	rows, err := ix.loadCandidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// Nothing matches the filter; no need to touch the embedder
		return []model.RetrievedChunk{}, nil
	}

	queryVec, err := ix.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryNorm := norm(queryVec)
	if queryNorm == 0 {
		return []model.RetrievedChunk{}, nil
	}

	scored := make([]model.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) != len(queryVec) {
			ix.log.Warn("skipping chunk with mismatched embedding dimensions",
				zap.String("content_hash", row.ContentHash),
				zap.Int("got", len(row.Embedding)),
				zap.Int("want", len(queryVec)))
			continue
		}
		chunkNorm := norm(row.Embedding)
		if chunkNorm == 0 {
			continue
		}
		sim := float64(vek32.Dot(queryVec, row.Embedding)) / (queryNorm * chunkNorm)
		scored = append(scored, model.RetrievedChunk{IndexedChunk: row, Similarity: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		if !scored[i].Metadata.Date.Equal(scored[j].Metadata.Date) {
			return scored[i].Metadata.Date.After(scored[j].Metadata.Date)
		}
		return scored[i].ContentHash < scored[j].ContentHash
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// loadCandidates fetches filter-matching rows. Metadata filters are
// pushed into SQL so the similarity pass only sees eligible entries.
func (ix *Index) loadCandidates(ctx context.Context, filter model.RetrievalFilter) ([]model.IndexedChunk, error) {
	var (
		where []string
		args  []any
	)
	if filter.DateFrom != nil {
		where = append(where, "date >= ?")
		args = append(args, filter.DateFrom.UTC().Format(time.RFC3339))
	}
	if filter.DateTo != nil {
		where = append(where, "date <= ?")
		args = append(args, filter.DateTo.UTC().Format(time.RFC3339))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.EntityID != "" {
		// entity_ids is a JSON array of quoted ids
		where = append(where, "entity_ids LIKE ?")
		args = append(args, `%"`+filter.EntityID+`"%`)
	}

	query := "SELECT content_hash, content, embedding, date, category, entity_ids, source_url, title, summary, indexed_at FROM chunks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.IndexedChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			ix.log.Warn("skipping unreadable index row", zap.Error(err))
			continue
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func scanChunk(rows *sql.Rows) (model.IndexedChunk, error) {
	var (
		chunk                        model.IndexedChunk
		embJSON, entJSON             string
		dateStr, indexedStr, catStr  string
		sourceURL, title, summary    string
	)
	if err := rows.Scan(&chunk.ContentHash, &chunk.Content, &embJSON, &dateStr, &catStr,
		&entJSON, &sourceURL, &title, &summary, &indexedStr); err != nil {
		return chunk, fmt.Errorf("scan chunk: %w", err)
	}

	if err := json.Unmarshal([]byte(embJSON), &chunk.Embedding); err != nil {
		return chunk, fmt.Errorf("decode embedding for %s: %w", chunk.ContentHash, err)
	}
	var entityIDs []string
	if err := json.Unmarshal([]byte(entJSON), &entityIDs); err != nil {
		return chunk, fmt.Errorf("decode entity ids for %s: %w", chunk.ContentHash, err)
	}

	date, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return chunk, fmt.Errorf("parse date for %s: %w", chunk.ContentHash, err)
	}
	if indexedAt, err := time.Parse(time.RFC3339, indexedStr); err == nil {
		chunk.IndexedAt = indexedAt
	}

	chunk.Metadata = model.ChunkMetadata{
		Date:      date,
		Category:  catStr,
		EntityIDs: entityIDs,
		SourceURL: sourceURL,
		Title:     title,
		Summary:   summary,
	}
	return chunk, nil
}

func norm(vec []float32) float64 {
	return math.Sqrt(float64(vek32.Dot(vec, vec)))
}
