package model

import "time"

// Role identifies the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation session. Assistant messages
// record which retrieved chunks were offered as grounding. Offered, not
// necessarily used; that distinction is not observable.
type Message struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Text         string    `json:"text"`
	GroundingIDs []string  `json:"grounding_ids,omitempty"` // Content hashes of offered chunks
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an isolated, ordered conversation history. Message order is
// append-only and monotonic; sessions share no mutable state.
type Session struct {
	ID         string    `json:"id"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// ChatReply is the result of one chat turn
type ChatReply struct {
	Message           Message          `json:"message"`
	Grounding         []RetrievedChunk `json:"grounding,omitempty"`
	GroundingDegraded bool             `json:"grounding_degraded"` // Retrieval failed; reply is ungrounded
}
