package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jweetan/newsvet/internal/model"
)

// AuditLog is the append-only VerificationDecision stream. Decisions are
// disjoint records, so concurrent appends need no coordination beyond
// the database's own serialization.
type AuditLog struct {
	db *sql.DB
}

// Append persists one decision. Records are immutable once written.
func (l *AuditLog) Append(ctx context.Context, decision model.VerificationDecision) error {
	record, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", decision.ID, err)
	}

	var entryID any
	if decision.Matched != nil {
		entryID = decision.Matched.ID
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO decisions (id, chunk_id, candidate, entry_id, confidence, verdict, decided_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		decision.ID, decision.Mention.ChunkID, decision.Mention.Candidate,
		entryID, decision.Confidence, string(decision.Verdict),
		decision.Timestamp.UTC().Format(time.RFC3339Nano), string(record))
	if err != nil {
		return fmt.Errorf("append decision %s: %w", decision.ID, err)
	}
	return nil
}

// ForChunk returns every decision recorded for a chunk, oldest first
func (l *AuditLog) ForChunk(ctx context.Context, chunkID string) ([]model.VerificationDecision, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT record FROM decisions WHERE chunk_id = ? ORDER BY decided_at, id", chunkID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.VerificationDecision
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var d model.VerificationDecision
		if err := json.Unmarshal([]byte(record), &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByVerdict returns decision counts grouped by verdict
func (l *AuditLog) CountByVerdict(ctx context.Context) (map[model.Verdict]int, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT verdict, COUNT(*) FROM decisions GROUP BY verdict")
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.Verdict]int)
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[model.Verdict(verdict)] = n
	}
	return out, rows.Err()
}
