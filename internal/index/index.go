// Package index persists accepted chunks as a semantic index: one row
// per content hash with an embedding vector and metadata. The same
// database also carries the append-only decision audit log.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/jweetan/newsvet/internal/cache"
	"github.com/jweetan/newsvet/internal/llm"
	"github.com/jweetan/newsvet/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	content_hash TEXT PRIMARY KEY,
	content      TEXT NOT NULL,
	embedding    TEXT NOT NULL,
	date         TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	entity_ids   TEXT NOT NULL DEFAULT '[]',
	source_url   TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL DEFAULT '',
	indexed_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_date ON chunks(date);

CREATE TABLE IF NOT EXISTS decisions (
	id         TEXT PRIMARY KEY,
	chunk_id   TEXT NOT NULL,
	candidate  TEXT NOT NULL,
	entry_id   TEXT,
	confidence REAL NOT NULL,
	verdict    TEXT NOT NULL,
	decided_at TEXT NOT NULL,
	record     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_chunk ON decisions(chunk_id);
`

// writeStripes serializes writes per content-hash key to keep duplicate
// detection race-free while distinct keys proceed concurrently
const writeStripes = 64

// Index is the semantic index. Safe for concurrent use.
type Index struct {
	db       *sql.DB
	embedder llm.Embedder
	cache    cache.Cache // optional embedding cache
	log      *zap.Logger
	stripes  [writeStripes]sync.Mutex
	now      func() time.Time
}

// Open opens (creating if needed) the index database at path
func Open(path string, embedder llm.Embedder, embCache cache.Cache, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure index db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}

	return &Index{
		db:       db,
		embedder: embedder,
		cache:    embCache,
		log:      log,
		now:      time.Now,
	}, nil
}

// Close closes the underlying database
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Audit returns the decision audit log backed by the same database
func (ix *Index) Audit() *AuditLog {
	return &AuditLog{db: ix.db}
}

// Count returns the number of retrievable entries
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Write embeds a chunk and upserts it by content hash. Writing the same
// content twice never creates a second retrievable row: the existing
// row's metadata is merged in place (entity sets unioned, fields
// refreshed).
func (ix *Index) Write(ctx context.Context, chunk model.Chunk, meta model.ChunkMetadata) (*model.IndexedChunk, error) {
	hash := chunk.Hash()

	stripe := &ix.stripes[stripeFor(hash)]
	stripe.Lock()
	defer stripe.Unlock()

	var existingEntities string
	err := ix.db.QueryRowContext(ctx,
		"SELECT entity_ids FROM chunks WHERE content_hash = ?", hash).Scan(&existingEntities)
	switch {
	case err == sql.ErrNoRows:
		// First write for this content
	case err != nil:
		return nil, fmt.Errorf("lookup chunk %s: %w", hash, err)
	default:
		var prior []string
		if err := json.Unmarshal([]byte(existingEntities), &prior); err == nil {
			meta.EntityIDs = unionSorted(prior, meta.EntityIDs)
		}
		ix.log.Debug("duplicate index write merged", zap.String("content_hash", hash))
	}

	embedding, err := ix.embed(ctx, chunk.Content)
	if err != nil {
		return nil, fmt.Errorf("embed chunk %s: %w", hash, err)
	}

	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	entJSON, err := json.Marshal(normalizeIDs(meta.EntityIDs))
	if err != nil {
		return nil, fmt.Errorf("encode entity ids: %w", err)
	}

	indexedAt := ix.now().UTC()
	_, err = ix.db.ExecContext(ctx, `
		INSERT INTO chunks (content_hash, content, embedding, date, category, entity_ids, source_url, title, summary, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			date       = excluded.date,
			category   = excluded.category,
			entity_ids = excluded.entity_ids,
			source_url = excluded.source_url,
			title      = excluded.title,
			summary    = excluded.summary,
			indexed_at = excluded.indexed_at`,
		hash, chunk.Content, string(embJSON),
		meta.Date.UTC().Format(time.RFC3339), meta.Category, string(entJSON),
		meta.SourceURL, meta.Title, meta.Summary,
		indexedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert chunk %s: %w", hash, err)
	}

	return &model.IndexedChunk{
		ContentHash: hash,
		Content:     chunk.Content,
		Embedding:   embedding,
		Metadata:    meta,
		IndexedAt:   indexedAt,
	}, nil
}

// embed returns the embedding for text, consulting the cache first
func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.EmbeddingKey(ix.embedder.Name(), text)

	if ix.cache != nil {
		if raw, ok := ix.cache.Get(key); ok {
			var vec []float32
			if err := json.Unmarshal(raw, &vec); err == nil && len(vec) > 0 {
				return vec, nil
			}
		}
	}

	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if ix.cache != nil {
		if raw, err := json.Marshal(vec); err == nil {
			_ = ix.cache.Set(key, raw, 0)
		}
	}
	return vec, nil
}

func stripeFor(hash string) int {
	if hash == "" {
		return 0
	}
	return int(hash[0]) % writeStripes
}

// unionSorted merges two id sets into a sorted, deduplicated slice
func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		seen[id] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return unionSorted(ids, nil)
}
