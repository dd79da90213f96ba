package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jweetan/newsvet/internal/model"
)

func anthropicExtractionResponse(text string) anthropicResponse {
	var resp anthropicResponse
	resp.Model = "claude-3-5-haiku-20241022"
	resp.Content = []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{{Type: "text", Text: text}}
	resp.Usage.InputTokens = 10
	resp.Usage.OutputTokens = 5
	return resp
}

func TestAnthropicProvider_ExtractMentions_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Missing or wrong x-api-key header: %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("Missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.System == "" {
			t.Error("Extraction request should carry a system prompt")
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		resp := anthropicExtractionResponse(`{"mentions":[{"span":"Maybank","name":"Malayan Banking Berhad"}]}`)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	mentions, err := provider.ExtractMentions(context.Background(), model.Chunk{ID: "c1", Content: "Maybank news."})
	if err != nil {
		t.Fatalf("ExtractMentions failed: %v", err)
	}
	if len(mentions) != 1 || mentions[0].Candidate != "Malayan Banking Berhad" {
		t.Errorf("Unexpected mentions: %+v", mentions)
	}
}

func TestAnthropicProvider_ExtractMentions_MalformedReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(anthropicExtractionResponse("no companies here, sorry"))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(model.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.ExtractMentions(context.Background(), model.Chunk{ID: "c1"}); err == nil {
		t.Fatal("Expected malformed-output error")
	}
}

func TestAnthropicProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid api key"}}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(model.LLMConfig{APIKey: "bad-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.ExtractMentions(context.Background(), model.Chunk{ID: "c1"}); err == nil {
		t.Fatal("Expected API error")
	}
}

func TestNewAnthropicProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(model.LLMConfig{}); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestNewProvider_Factory(t *testing.T) {
	tests := []struct {
		name     string
		config   model.LLMConfig
		wantName string
		wantErr  bool
	}{
		{"openai", model.LLMConfig{Provider: "openai", APIKey: "k"}, "openai", false},
		{"anthropic", model.LLMConfig{Provider: "anthropic", APIKey: "k"}, "anthropic", false},
		{"claude alias", model.LLMConfig{Provider: "claude", APIKey: "k"}, "anthropic", false},
		{"ollama", model.LLMConfig{Provider: "ollama", Model: "llama3.1"}, "ollama", false},
		{"unknown", model.LLMConfig{Provider: "bedrock"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider failed: %v", err)
			}
			if provider.Name() != tt.wantName {
				t.Errorf("Provider name = %q, want %q", provider.Name(), tt.wantName)
			}
		})
	}
}

func TestNewEmbedder_Factory(t *testing.T) {
	if _, err := NewEmbedder(model.EmbeddingConfig{Provider: "anthropic"}); err == nil {
		t.Error("Anthropic has no embeddings API and must be rejected")
	}
	embedder, err := NewEmbedder(model.EmbeddingConfig{Provider: "openai", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewEmbedder failed: %v", err)
	}
	if embedder.Name() != "openai" {
		t.Errorf("Embedder name = %q", embedder.Name())
	}
}
