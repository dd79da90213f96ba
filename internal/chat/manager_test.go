package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jweetan/newsvet/internal/llm"
	"github.com/jweetan/newsvet/internal/model"
)

// scriptedProvider replies with a fixed text and records the requests it saw
type scriptedProvider struct {
	mu       sync.Mutex
	requests []llm.RespondRequest
	reply    string
	err      error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) ExtractMentions(ctx context.Context, chunk model.Chunk) ([]model.Mention, error) {
	return nil, nil
}

func (p *scriptedProvider) Respond(ctx context.Context, req llm.RespondRequest) (*llm.RespondResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	reply := p.reply
	if reply == "" {
		reply = fmt.Sprintf("reply %d", len(p.requests))
	}
	return &llm.RespondResponse{Text: reply}, nil
}

func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) lastRequest() llm.RespondRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

// fixedRetriever returns a fixed grounding set or an error
type fixedRetriever struct {
	chunks []model.RetrievedChunk
	err    error
}

func (r fixedRetriever) Query(ctx context.Context, text string, filter model.RetrievalFilter, k int) ([]model.RetrievedChunk, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(r.chunks) > k {
		return r.chunks[:k], nil
	}
	return r.chunks, nil
}

func groundedChunk(hash string) model.RetrievedChunk {
	return model.RetrievedChunk{
		IndexedChunk: model.IndexedChunk{
			ContentHash: hash,
			Content:     "Sunway launches a new township.",
			Metadata:    model.ChunkMetadata{Title: "Township launch"},
		},
		Similarity: 0.9,
	}
}

func TestManager_Respond_AppendsBothMessages(t *testing.T) {
	provider := &scriptedProvider{}
	mgr := NewManager(provider, fixedRetriever{}, model.ChatConfig{}, nil)

	ctx := context.Background()
	if _, err := mgr.Respond(ctx, "s1", "first question"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if _, err := mgr.Respond(ctx, "s1", "second question"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	history, ok := mgr.History("s1")
	if !ok {
		t.Fatal("Session should exist after Respond")
	}
	if len(history) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(history))
	}
	wantRoles := []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant}
	for i, msg := range history {
		if msg.Role != wantRoles[i] {
			t.Errorf("Message %d role = %s, want %s", i, msg.Role, wantRoles[i])
		}
	}
	if history[0].Text != "first question" || history[2].Text != "second question" {
		t.Errorf("User messages out of order: %q, %q", history[0].Text, history[2].Text)
	}
}

func TestManager_Respond_CreatesSessionImplicitly(t *testing.T) {
	mgr := NewManager(&scriptedProvider{}, fixedRetriever{}, model.ChatConfig{}, nil)

	if _, ok := mgr.History("fresh"); ok {
		t.Fatal("Session should not exist before first Respond")
	}
	if _, err := mgr.Respond(context.Background(), "fresh", "hello"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if _, ok := mgr.History("fresh"); !ok {
		t.Error("Session should exist after first Respond")
	}
}

func TestManager_Respond_GroundingRecordedOnReply(t *testing.T) {
	provider := &scriptedProvider{}
	retriever := fixedRetriever{chunks: []model.RetrievedChunk{groundedChunk("hash-1"), groundedChunk("hash-2")}}
	mgr := NewManager(provider, retriever, model.ChatConfig{RetrievalTop: 2}, nil)

	reply, err := mgr.Respond(context.Background(), "s1", "what is new with Sunway?")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if reply.GroundingDegraded {
		t.Error("Grounded reply must not be flagged degraded")
	}
	if len(reply.Grounding) != 2 {
		t.Fatalf("Expected 2 grounding chunks, got %d", len(reply.Grounding))
	}
	if len(reply.Message.GroundingIDs) != 2 || reply.Message.GroundingIDs[0] != "hash-1" {
		t.Errorf("Assistant message should record grounding ids, got %v", reply.Message.GroundingIDs)
	}

	// Grounding reaches the provider through the system prompt
	if req := provider.lastRequest(); req.System == "" {
		t.Error("Respond should pass a system prompt")
	}
}

func TestManager_Respond_RetrievalFailureDegrades(t *testing.T) {
	provider := &scriptedProvider{reply: "ungrounded answer"}
	retriever := fixedRetriever{err: errors.New("index offline")}
	mgr := NewManager(provider, retriever, model.ChatConfig{}, nil)

	reply, err := mgr.Respond(context.Background(), "s1", "anything indexed?")
	if err != nil {
		t.Fatalf("Retrieval failure must not fail the turn: %v", err)
	}
	if !reply.GroundingDegraded {
		t.Error("Degraded flag must be set when retrieval fails")
	}
	if len(reply.Grounding) != 0 {
		t.Errorf("Degraded reply should carry no grounding, got %d chunks", len(reply.Grounding))
	}
	if reply.Message.Text != "ungrounded answer" {
		t.Errorf("Unexpected reply text: %q", reply.Message.Text)
	}
}

func TestManager_Respond_ProviderErrorKeepsUserMessage(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model overloaded")}
	mgr := NewManager(provider, fixedRetriever{}, model.ChatConfig{}, nil)

	_, err := mgr.Respond(context.Background(), "s1", "doomed question")
	if err == nil {
		t.Fatal("Expected provider error to propagate")
	}

	history, ok := mgr.History("s1")
	if !ok {
		t.Fatal("Session should exist even after a failed turn")
	}
	if len(history) != 1 || history[0].Role != model.RoleUser {
		t.Fatalf("History should hold only the user message, got %+v", history)
	}
}

func TestManager_Respond_WindowBoundsPrompt(t *testing.T) {
	provider := &scriptedProvider{}
	mgr := NewManager(provider, fixedRetriever{}, model.ChatConfig{WindowTurns: 2}, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := mgr.Respond(ctx, "s1", fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("Respond failed: %v", err)
		}
	}

	// Full history keeps everything
	history, _ := mgr.History("s1")
	if len(history) != 10 {
		t.Fatalf("Expected 10 messages in history, got %d", len(history))
	}

	// The prompt window is capped at 2 turns (4 messages)
	req := provider.lastRequest()
	if len(req.Messages) != 4 {
		t.Errorf("Expected 4 messages in the prompt window, got %d", len(req.Messages))
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Text != "question 4" {
		t.Errorf("Window should end with the newest message, got %q", last.Text)
	}
}

func TestManager_Clear(t *testing.T) {
	mgr := NewManager(&scriptedProvider{}, fixedRetriever{}, model.ChatConfig{}, nil)
	ctx := context.Background()

	if _, err := mgr.Respond(ctx, "s1", "hello"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	mgr.Clear("s1")

	history, ok := mgr.History("s1")
	if !ok {
		t.Fatal("Cleared session should still exist")
	}
	if len(history) != 0 {
		t.Errorf("Expected empty history after Clear, got %d messages", len(history))
	}

	// Clearing an unknown session is a no-op
	mgr.Clear("never-seen")
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	mgr := NewManager(&scriptedProvider{}, fixedRetriever{}, model.ChatConfig{}, nil)
	ctx := context.Background()

	if _, err := mgr.Respond(ctx, "a", "question for a"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if _, err := mgr.Respond(ctx, "b", "question for b"); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	historyA, _ := mgr.History("a")
	historyB, _ := mgr.History("b")
	if len(historyA) != 2 || len(historyB) != 2 {
		t.Fatalf("Expected 2 messages per session, got %d and %d", len(historyA), len(historyB))
	}
	if historyA[0].Text == historyB[0].Text {
		t.Error("Sessions leaked messages into each other")
	}
}

func TestManager_ConcurrentSessions(t *testing.T) {
	mgr := NewManager(&scriptedProvider{}, fixedRetriever{}, model.ChatConfig{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		sessionID := fmt.Sprintf("s%d", s)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := mgr.Respond(ctx, sessionID, "ping"); err != nil {
					t.Errorf("Respond failed: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	for s := 0; s < 4; s++ {
		history, ok := mgr.History(fmt.Sprintf("s%d", s))
		if !ok {
			t.Fatalf("Session s%d missing", s)
		}
		if len(history) != 10 {
			t.Errorf("Session s%d has %d messages, want 10", s, len(history))
		}
		// Serial queue per session: strict user/assistant alternation
		for i, msg := range history {
			want := model.RoleUser
			if i%2 == 1 {
				want = model.RoleAssistant
			}
			if msg.Role != want {
				t.Errorf("Session s%d message %d role = %s, want %s", s, i, msg.Role, want)
			}
		}
	}
}
