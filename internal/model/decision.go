package model

import "time"

// Verdict is the outcome of matching a mention against the registry
type Verdict string

const (
	VerdictAccepted  Verdict = "ACCEPTED"  // High-confidence match, safe to index
	VerdictDiscarded Verdict = "DISCARDED" // No plausible match
	VerdictAmbiguous Verdict = "AMBIGUOUS" // Mid-band or tied match; conservatively discarded
)

// Mention is a span of scraped text believed to reference an entity.
// Mentions are transient: only the resulting decision is persisted.
type Mention struct {
	RawSpan   string `json:"raw_span"`            // Text as it appeared in the chunk
	Candidate string `json:"candidate"`           // Inferred entity name
	Ticker    string `json:"ticker,omitempty"`    // Inferred ticker, if the model produced one
	ChunkID   string `json:"chunk_id"`            // Source chunk reference
}

// ToolCall records one invocation of the verification tool, raw response
// included, so every decision can be audited after the fact.
type ToolCall struct {
	Tool        string    `json:"tool"`
	Input       string    `json:"input"`
	RawResponse string    `json:"raw_response"`
	At          time.Time `json:"at"`
}

// VerificationDecision is the immutable, append-only audit record for one
// mention. A decision with verdict ACCEPTED always carries a matched entry.
type VerificationDecision struct {
	ID         string         `json:"id"`
	Mention    Mention        `json:"mention"`
	Matched    *RegistryEntry `json:"matched,omitempty"`
	Confidence float64        `json:"confidence"`
	Verdict    Verdict        `json:"verdict"`
	Timestamp  time.Time      `json:"timestamp"`
	Trace      []ToolCall     `json:"trace,omitempty"`
}

// ChunkState tracks a chunk through the verification state machine
type ChunkState string

const (
	ChunkStateStart      ChunkState = "START"
	ChunkStateExtracting ChunkState = "EXTRACTING"
	ChunkStateMatching   ChunkState = "MATCHING"
	ChunkStateDone       ChunkState = "DONE"
	ChunkStateFailed     ChunkState = "FAILED"
)

// ChunkOutcome is the terminal result of verifying one chunk
type ChunkOutcome struct {
	Chunk     Chunk                  `json:"chunk"`
	State     ChunkState             `json:"state"`
	Decisions []VerificationDecision `json:"decisions"`
	Accepted  bool                   `json:"accepted"` // Every mention accepted (or none extracted)
	Error     string                 `json:"error,omitempty"` // Populated for FAILED chunks
	Attempts  int                    `json:"attempts"`
}

// AcceptedEntityIDs returns the identifiers of all entities accepted in
// this chunk, in decision order.
func (o ChunkOutcome) AcceptedEntityIDs() []string {
	var ids []string
	for _, d := range o.Decisions {
		if d.Verdict == VerdictAccepted && d.Matched != nil {
			ids = append(ids, d.Matched.ID)
		}
	}
	return ids
}
