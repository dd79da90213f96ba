// Package chat maintains per-session conversation state and serves
// grounded replies over the semantic index. Each session is an
// independent serial queue: concurrent requests for one session are
// processed one at a time; different sessions run fully parallel.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jweetan/newsvet/internal/llm"
	"github.com/jweetan/newsvet/internal/model"
)

// Retriever is the retrieval contract the manager needs. Implemented by
// index.Index; kept as an interface so tests can supply fixed results.
type Retriever interface {
	Query(ctx context.Context, text string, filter model.RetrievalFilter, k int) ([]model.RetrievedChunk, error)
}

// Manager owns all conversation sessions
type Manager struct {
	provider  llm.Provider
	retriever Retriever
	cfg       model.ChatConfig
	log       *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// sessionState guards one session's message log. The lock is the
// session's serial queue.
type sessionState struct {
	mu      sync.Mutex
	session model.Session
}

// NewManager creates a chat session manager
func NewManager(provider llm.Provider, retriever Retriever, cfg model.ChatConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WindowTurns <= 0 {
		cfg.WindowTurns = 8
	}
	if cfg.RetrievalTop <= 0 {
		cfg.RetrievalTop = 5
	}
	return &Manager{
		provider:  provider,
		retriever: retriever,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		sessions:  make(map[string]*sessionState),
	}
}

// getOrCreate returns the session's state, creating it on first use
func (m *Manager) getOrCreate(sessionID string) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		now := m.now().UTC()
		state = &sessionState{session: model.Session{
			ID:         sessionID,
			CreatedAt:  now,
			LastActive: now,
		}}
		m.sessions[sessionID] = state
		m.log.Info("session created", zap.String("session_id", sessionID))
	}
	return state
}

// Respond appends the user's message, assembles a bounded context window
// plus retrieval grounding, asks the reasoning engine for a reply, and
// commits the exchange to the session history. Retrieval failure never
// fails the turn: the reply degrades to ungrounded with the flag set.
func (m *Manager) Respond(ctx context.Context, sessionID, userText string) (*model.ChatReply, error) {
	state := m.getOrCreate(sessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	userMsg := model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleUser,
		Text:      userText,
		CreatedAt: m.now().UTC(),
	}
	state.session.Messages = append(state.session.Messages, userMsg)

	grounding, degraded := m.retrieve(ctx, userText)

	window := contextWindow(state.session.Messages, m.cfg.WindowTurns)
	resp, err := m.provider.Respond(ctx, llm.RespondRequest{
		System:   llm.BuildChatSystemPrompt(grounding),
		Messages: window,
	})
	if err != nil {
		// History is append-only: the user message stays even though
		// the turn failed
		return nil, fmt.Errorf("chat respond: %w", err)
	}

	groundingIDs := make([]string, 0, len(grounding))
	for _, g := range grounding {
		groundingIDs = append(groundingIDs, g.ContentHash)
	}

	assistantMsg := model.Message{
		ID:           uuid.NewString(),
		Role:         model.RoleAssistant,
		Text:         resp.Text,
		GroundingIDs: groundingIDs,
		CreatedAt:    m.now().UTC(),
	}
	state.session.Messages = append(state.session.Messages, assistantMsg)
	state.session.LastActive = assistantMsg.CreatedAt

	return &model.ChatReply{
		Message:           assistantMsg,
		Grounding:         grounding,
		GroundingDegraded: degraded,
	}, nil
}

// retrieve fetches grounding for a query. Failures degrade to no
// grounding rather than failing the chat turn; the degradation is
// surfaced to the caller, not silently omitted.
func (m *Manager) retrieve(ctx context.Context, query string) ([]model.RetrievedChunk, bool) {
	grounding, err := m.retriever.Query(ctx, query, model.RetrievalFilter{}, m.cfg.RetrievalTop)
	if err != nil {
		m.log.Warn("retrieval failed; replying ungrounded", zap.Error(err))
		return nil, true
	}
	return grounding, false
}

// contextWindow returns the last `turns` conversation turns (a turn is a
// user/assistant pair). Older messages stay in history but are excluded
// from the prompt.
func contextWindow(messages []model.Message, turns int) []model.Message {
	limit := turns * 2
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

// History returns a copy of a session's messages in append order.
// The second return is false for an unknown session.
func (m *Manager) History(sessionID string) ([]model.Message, bool) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	out := make([]model.Message, len(state.session.Messages))
	copy(out, state.session.Messages)
	return out, true
}

// Clear truncates a session's history to empty while preserving the
// identifier. Clearing an unknown session is a no-op.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.session.Messages = nil
	state.session.LastActive = m.now().UTC()
	m.log.Info("session cleared", zap.String("session_id", sessionID))
}
