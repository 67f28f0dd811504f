package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

func TestOpenAIClient(t *testing.T) {
	var got chatRequest
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Flagged for geo mismatch. "}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient("sk-test", server.URL+"/v1/", server.Client())
	text, err := client.Generate(context.Background(), domain.GenerationRequest{
		Model:       "gpt-4o-mini",
		System:      "system role",
		Prompt:      "user payload",
		MaxTokens:   150,
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if text != "Flagged for geo mismatch." {
		t.Errorf("unexpected text %q", text)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("unexpected auth header %q", auth)
	}
	if got.Model != "gpt-4o-mini" || got.MaxTokens != 150 || got.Temperature != 0.3 {
		t.Errorf("unexpected request body %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "user payload" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, "openai http 401: Incorrect API key provided"},
		{"plain error", http.StatusBadGateway, `upstream down`, "openai http 502: upstream down"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "missing choices"},
		{"malformed", http.StatusOK, `{not json`, "unmarshal response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewOpenAIClient("sk-test", server.URL, server.Client())
			_, err := client.Generate(context.Background(), domain.GenerationRequest{Model: "m", Prompt: "p"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOpenAIClientMissingModel(t *testing.T) {
	client := NewOpenAIClient("sk-test", "", nil)
	if _, err := client.Generate(context.Background(), domain.GenerationRequest{Prompt: "p"}); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestOpenAIClientContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewOpenAIClient("sk-test", server.URL, server.Client())
	_, err := client.Generate(ctx, domain.GenerationRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      domain.NarrativeConfig
		wantType string
		wantErr  bool
	}{
		{"openai with key", domain.NarrativeConfig{Provider: ProviderOpenAI, APIKey: "sk"}, "openai", false},
		{"openai without key", domain.NarrativeConfig{Provider: ProviderOpenAI}, "unavailable", false},
		{"empty provider", domain.NarrativeConfig{}, "unavailable", false},
		{"gemini without key", domain.NarrativeConfig{Provider: ProviderGemini}, "unavailable", false},
		{"explicit unavailable", domain.NarrativeConfig{Provider: ProviderUnavailable, APIKey: "sk"}, "unavailable", false},
		{"unknown", domain.NarrativeConfig{Provider: "claude-local"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			switch tt.wantType {
			case "openai":
				if _, ok := gen.(*OpenAIClient); !ok {
					t.Errorf("expected *OpenAIClient, got %T", gen)
				}
			case "unavailable":
				if _, ok := gen.(Unavailable); !ok {
					t.Errorf("expected Unavailable, got %T", gen)
				}
			}
		})
	}
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{Reason: "missing OpenAI API key"}.Generate(context.Background(), domain.GenerationRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing OpenAI API key") {
		t.Errorf("expected reason in error, got %v", err)
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), ""); err == nil {
		t.Error("expected error for empty key")
	}
}
