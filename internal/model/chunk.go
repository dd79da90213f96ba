package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Chunk is a unit of scraped text submitted to the verification loop
type Chunk struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url,omitempty"`
	Date      time.Time `json:"date"`
	Category  string    `json:"category,omitempty"`
}

// Hash returns the content hash used as the chunk's stable index key
func (c Chunk) Hash() string {
	sum := sha256.Sum256([]byte(c.Content))
	return hex.EncodeToString(sum[:])
}

// ChunkMetadata is the metadata stored alongside an indexed chunk
type ChunkMetadata struct {
	Date      time.Time `json:"date"`
	Category  string    `json:"category,omitempty"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
}

// IndexedChunk is a chunk as stored in the semantic index. Only chunks
// backed by an ACCEPTED decision (or containing no mentions) reach this
// form; there is no path from raw scraped text to the index.
type IndexedChunk struct {
	ContentHash string        `json:"content_hash"`
	Content     string        `json:"content"`
	Embedding   []float32     `json:"-"`
	Metadata    ChunkMetadata `json:"metadata"`
	IndexedAt   time.Time     `json:"indexed_at"`
}

// RetrievedChunk pairs an indexed chunk with its similarity to a query.
// Scores are exposed so callers can apply their own relevance cutoff.
type RetrievedChunk struct {
	IndexedChunk
	Similarity float64 `json:"similarity"`
}

// RetrievalFilter restricts a retrieval query by metadata
type RetrievalFilter struct {
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Category string     `json:"category,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
}
