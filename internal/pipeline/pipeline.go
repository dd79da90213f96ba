// Package pipeline orchestrates a batch run: ingest scraped records,
// verify each chunk against the registry, summarize and index what was
// accepted, and report everything else.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jweetan/newsvet/internal/cache"
	"github.com/jweetan/newsvet/internal/chat"
	"github.com/jweetan/newsvet/internal/index"
	"github.com/jweetan/newsvet/internal/ingest"
	"github.com/jweetan/newsvet/internal/llm"
	"github.com/jweetan/newsvet/internal/match"
	"github.com/jweetan/newsvet/internal/model"
	"github.com/jweetan/newsvet/internal/registry"
	"github.com/jweetan/newsvet/internal/verify"
	"github.com/jweetan/newsvet/internal/worker"
)

// Verifier runs the per-chunk extraction and verification loop
type Verifier interface {
	VerifyChunk(ctx context.Context, chunk model.Chunk) model.ChunkOutcome
}

// Indexer persists fully accepted chunks to the semantic index
type Indexer interface {
	Write(ctx context.Context, chunk model.Chunk, meta model.ChunkMetadata) (*model.IndexedChunk, error)
}

// Pipeline wires the verification-and-retrieval components together
type Pipeline struct {
	registry *registry.Store
	agent    Verifier
	provider llm.Provider
	index    *index.Index
	writer   Indexer
	reader   *ingest.Reader
	limiter  *worker.Limiter
	config   *model.Config
	log      *zap.Logger
}

// New builds a pipeline from configuration. A registry that cannot be
// loaded is fatal here: no verification can proceed without ground truth.
func New(cfg *model.Config, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	log.Info("registry loaded",
		zap.String("path", cfg.Registry.Path),
		zap.Int("entries", store.Len()))

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init reasoning provider: %w", err)
	}

	embedder, err := llm.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	var embCache cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Dir != "" {
			embCache = cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL)
		} else {
			embCache = cache.NewMemoryCache(cfg.Cache.TTL)
		}
	}

	idx, err := index.Open(cfg.Index.Path, embedder, embCache, log)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	engine := match.NewEngine(store, cfg.Match)
	agent := verify.New(provider, engine, log,
		verify.WithAuditSink(idx.Audit()),
		verify.WithMaxRetries(cfg.Concurrency.MaxRetries))

	p := newPipeline(cfg, log, provider, agent, idx,
		ingest.NewReader(cfg.Ingest),
		worker.NewLimiter(cfg.Concurrency.RequestsPerSecond, cfg.Concurrency.Burst))
	p.registry = store
	p.index = idx
	return p, nil
}

// newPipeline assembles a pipeline from pre-built components. Split out
// of New so the batch loop can be driven against fakes.
func newPipeline(cfg *model.Config, log *zap.Logger, provider llm.Provider,
	agent Verifier, writer Indexer, reader *ingest.Reader, limiter *worker.Limiter) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		agent:    agent,
		provider: provider,
		writer:   writer,
		reader:   reader,
		limiter:  limiter,
		config:   cfg,
		log:      log,
	}
}

// Close releases the pipeline's resources
func (p *Pipeline) Close() error {
	return p.index.Close()
}

// Index exposes the semantic index for retrieval and chat
func (p *Pipeline) Index() *index.Index {
	return p.index
}

// NewChatManager builds a chat session manager over this pipeline's index
func (p *Pipeline) NewChatManager() *chat.Manager {
	return chat.NewManager(p.provider, p.index, p.config.Chat, p.log)
}

// RunResult is the complete result of one batch run
type RunResult struct {
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Skipped    int                   `json:"skipped"` // Records too thin to verify
	Outcomes   []model.ChunkOutcome  `json:"outcomes"`
	Indexed    []model.IndexedChunk  `json:"indexed"`
	IndexErrs  map[string]string     `json:"index_errors,omitempty"` // chunk id -> error
}

// verifyJob is one chunk's unit of work for the pool
type verifyJob struct {
	chunk   model.Chunk
	agent   Verifier
	limiter *worker.Limiter
	name    string // provider name for rate limiting
}

// verifyResult wraps a chunk outcome as a pool result
type verifyResult struct {
	outcome model.ChunkOutcome
	err     error
}

// GetError returns the error from the verification result
func (r *verifyResult) GetError() error {
	return r.err
}

// Execute runs the verification for one chunk
func (j *verifyJob) Execute(ctx context.Context) worker.Result {
	if err := j.limiter.Wait(ctx, j.name); err != nil {
		return &verifyResult{
			outcome: model.ChunkOutcome{
				Chunk: j.chunk,
				State: model.ChunkStateFailed,
				Error: err.Error(),
			},
			err: err,
		}
	}
	outcome := j.agent.VerifyChunk(ctx, j.chunk)
	return &verifyResult{outcome: outcome}
}

// Run processes one batch of scraped records end to end. Per-chunk
// failures are isolated; only ingest or registry problems abort the run.
func (p *Pipeline) Run(ctx context.Context, inputPath string) (*RunResult, error) {
	result := &RunResult{
		StartedAt: time.Now().UTC(),
		IndexErrs: make(map[string]string),
	}

	chunks, skipped, err := p.reader.LoadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	result.Skipped = skipped
	p.log.Info("batch loaded",
		zap.Int("chunks", len(chunks)),
		zap.Int("skipped", skipped))

	// Fan out verification across chunks; the pool bounds concurrent
	// reasoning calls and the limiter bounds their rate
	pool := worker.NewPool(ctx, p.config.Concurrency.VerifyWorkers)
	pool.Start()
	for _, chunk := range chunks {
		pool.Submit(&verifyJob{
			chunk:   chunk,
			agent:   p.agent,
			limiter: p.limiter,
			name:    p.provider.Name(),
		})
	}
	for _, res := range pool.Wait() {
		vr := res.(*verifyResult)
		result.Outcomes = append(result.Outcomes, vr.outcome)
	}

	// Deterministic report order regardless of completion order
	sort.Slice(result.Outcomes, func(i, j int) bool {
		return result.Outcomes[i].Chunk.ID < result.Outcomes[j].Chunk.ID
	})

	for _, outcome := range result.Outcomes {
		if outcome.State != model.ChunkStateDone || !outcome.Accepted {
			continue
		}
		indexed, err := p.indexAccepted(ctx, outcome)
		if err != nil {
			// Indexing failures are per-chunk, like verification ones
			result.IndexErrs[outcome.Chunk.ID] = err.Error()
			p.log.Warn("indexing failed",
				zap.String("chunk_id", outcome.Chunk.ID),
				zap.Error(err))
			continue
		}
		result.Indexed = append(result.Indexed, *indexed)
	}

	result.FinishedAt = time.Now().UTC()
	return result, nil
}

// indexAccepted summarizes and writes one fully accepted chunk. A failed
// summary degrades to no summary; it never blocks indexing.
func (p *Pipeline) indexAccepted(ctx context.Context, outcome model.ChunkOutcome) (*model.IndexedChunk, error) {
	entityIDs := outcome.AcceptedEntityIDs()
	summary := p.summarize(ctx, outcome)

	meta := model.ChunkMetadata{
		Date:      outcome.Chunk.Date,
		Category:  outcome.Chunk.Category,
		EntityIDs: entityIDs,
		SourceURL: outcome.Chunk.SourceURL,
		Title:     outcome.Chunk.Title,
		Summary:   summary,
	}
	return p.writer.Write(ctx, outcome.Chunk, meta)
}

func (p *Pipeline) summarize(ctx context.Context, outcome model.ChunkOutcome) string {
	var names []string
	for _, d := range outcome.Decisions {
		if d.Verdict == model.VerdictAccepted && d.Matched != nil {
			names = append(names, d.Matched.Name)
		}
	}

	if err := p.limiter.Wait(ctx, p.provider.Name()); err != nil {
		return ""
	}
	resp, err := p.provider.Respond(ctx, llm.RespondRequest{
		Messages: []model.Message{{
			Role: model.RoleUser,
			Text: llm.BuildSummaryPrompt(outcome.Chunk, names),
		}},
	})
	if err != nil {
		p.log.Warn("summary generation failed",
			zap.String("chunk_id", outcome.Chunk.ID),
			zap.Error(err))
		return ""
	}
	return resp.Text
}
