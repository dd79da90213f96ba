// Package verify runs the agentic extraction/verification loop: one
// reasoning-engine call per chunk to extract candidate mentions, one
// match-engine call per mention, one auditable decision per mention.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jweetan/newsvet/internal/llm"
	"github.com/jweetan/newsvet/internal/match"
	"github.com/jweetan/newsvet/internal/model"
)

// toolName is the audit label for the verification tool call
const toolName = "check_registry_listing"

// sleepFunc is the sleep function used between retries (injectable for tests)
var sleepFunc = time.Sleep

// Matcher is the verification tool contract: a candidate name in, a
// structured {matched, entry_id, confidence} verdict out.
type Matcher interface {
	Match(candidate, localeHint string) match.Result
}

// AuditSink receives every decision as it is made. Appends must be safe
// for concurrent writers; each decision is a disjoint record.
type AuditSink interface {
	Append(ctx context.Context, decision model.VerificationDecision) error
}

// Agent verifies chunks. Safe for concurrent use across chunks; the
// extraction and matching calls within one chunk are sequential.
type Agent struct {
	provider   llm.Provider
	matcher    Matcher
	audit      AuditSink
	log        *zap.Logger
	maxRetries int
	now        func() time.Time
}

// Option configures an Agent
type Option func(*Agent)

// WithAuditSink attaches a persistent decision sink
func WithAuditSink(sink AuditSink) Option {
	return func(a *Agent) { a.audit = sink }
}

// WithMaxRetries bounds reasoning-engine retries per chunk
func WithMaxRetries(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

// New creates a verification agent
func New(provider llm.Provider, matcher Matcher, log *zap.Logger, opts ...Option) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Agent{
		provider:   provider,
		matcher:    matcher,
		log:        log,
		maxRetries: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// VerifyChunk drives one chunk through the state machine:
// START -> EXTRACTING -> (per mention) MATCHING -> DECIDED -> DONE.
// Reasoning failures are retried with backoff; exhausting retries yields
// a FAILED outcome that is reported, never indexed.
func (a *Agent) VerifyChunk(ctx context.Context, chunk model.Chunk) model.ChunkOutcome {
	outcome := model.ChunkOutcome{Chunk: chunk, State: model.ChunkStateStart}

	outcome.State = model.ChunkStateExtracting
	mentions, attempts, err := a.extractWithRetry(ctx, chunk)
	outcome.Attempts = attempts
	if err != nil {
		outcome.State = model.ChunkStateFailed
		outcome.Error = err.Error()
		a.log.Warn("chunk verification failed",
			zap.String("chunk_id", chunk.ID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return outcome
	}

	allAccepted := true
	for _, mention := range mentions {
		outcome.State = model.ChunkStateMatching
		decision := a.decide(ctx, mention)
		outcome.Decisions = append(outcome.Decisions, decision)
		if decision.Verdict != model.VerdictAccepted {
			allAccepted = false
		}

		a.log.Info("mention decided",
			zap.String("chunk_id", chunk.ID),
			zap.String("candidate", mention.Candidate),
			zap.String("verdict", string(decision.Verdict)),
			zap.Float64("confidence", decision.Confidence))
	}

	outcome.State = model.ChunkStateDone
	// A chunk with no mentions is fully accepted; one with any rejected
	// mention is excluded wholesale to keep mixed provenance out of the
	// index.
	outcome.Accepted = allAccepted
	return outcome
}

// extractWithRetry retries transient reasoning failures with exponential
// backoff. Context cancellation aborts immediately.
func (a *Agent) extractWithRetry(ctx context.Context, chunk model.Chunk) ([]model.Mention, int, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}

		mentions, err := a.provider.ExtractMentions(ctx, chunk)
		if err == nil {
			return mentions, attempt + 1, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return nil, attempt + 1, err
		}
		a.log.Debug("extraction attempt failed",
			zap.String("chunk_id", chunk.ID),
			zap.Int("attempt", attempt+1),
			zap.Bool("malformed", errors.Is(err, llm.ErrMalformedOutput)),
			zap.Error(err))

		if attempt < a.maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			sleepFunc(backoff)
		}
	}
	return nil, a.maxRetries, lastErr
}

// decide runs the matching tool for one mention and records the decision.
// The extracted name is tried first; a ticker, when present, is the
// fallback. Every tool call lands in the trace regardless of outcome.
func (a *Agent) decide(ctx context.Context, mention model.Mention) model.VerificationDecision {
	var trace []model.ToolCall

	call := func(input string) match.Result {
		res := a.matcher.Match(input, "")
		trace = append(trace, model.ToolCall{
			Tool:        toolName,
			Input:       input,
			RawResponse: res.ToolJSON(),
			At:          a.now().UTC(),
		})
		return res
	}

	best := call(mention.Candidate)
	if mention.Ticker != "" && best.Verdict != model.VerdictAccepted {
		if byTicker := call(mention.Ticker); better(byTicker, best) {
			best = byTicker
		}
	}

	decision := model.VerificationDecision{
		ID:         uuid.NewString(),
		Mention:    mention,
		Matched:    best.Entry,
		Confidence: best.Confidence,
		Verdict:    best.Verdict,
		Timestamp:  a.now().UTC(),
		Trace:      trace,
	}

	if a.audit != nil {
		if err := a.audit.Append(ctx, decision); err != nil {
			a.log.Error("audit append failed",
				zap.String("decision_id", decision.ID),
				zap.Error(err))
		}
	}
	return decision
}

// better prefers accepted over non-accepted, then higher confidence
func better(a, b match.Result) bool {
	if (a.Verdict == model.VerdictAccepted) != (b.Verdict == model.VerdictAccepted) {
		return a.Verdict == model.VerdictAccepted
	}
	return a.Confidence > b.Confidence
}
