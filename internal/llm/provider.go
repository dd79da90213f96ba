package llm

import (
	"context"
	"errors"

	"github.com/jweetan/newsvet/internal/model"
)

// ErrMalformedOutput means the reasoning engine replied but the reply
// could not be parsed into the expected structure. Callers treat it like
// a timeout: retried with backoff, then reported per chunk.
var ErrMalformedOutput = errors.New("malformed reasoning output")

// Provider defines the interface for reasoning-engine providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// ExtractMentions asks the model to identify candidate entity
	// mentions in a chunk. An empty slice is a valid answer.
	ExtractMentions(ctx context.Context, chunk model.Chunk) ([]model.Mention, error)

	// Respond generates a free-form reply for a prompted conversation
	Respond(ctx context.Context, req RespondRequest) (*RespondResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Embedder generates vector embeddings for index and query text.
// Separate from Provider because not every reasoning provider exposes an
// embeddings API.
type Embedder interface {
	// Name returns the embedder name
	Name() string

	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimensionality, 0 if unknown
	// until the first call
	Dimensions() int
}

// RespondRequest contains the input for a conversational completion
type RespondRequest struct {
	// System is the system prompt framing the reply
	System string

	// Messages is the bounded conversation window, oldest first
	Messages []model.Message

	// Model overrides the configured model when non-empty
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// RespondResponse contains the model's reply
type RespondResponse struct {
	// Text is the generated reply
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}
