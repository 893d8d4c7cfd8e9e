package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lockstep/internal/config"
)

// =============================================================================
// FACTORY
// =============================================================================

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(config.LLMConfig{Provider: "anthropic"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	c, err := New(config.LLMConfig{Provider: "anthropic", APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*AnthropicClient); !ok {
		t.Errorf("anthropic provider produced %T", c)
	}

	c, err = New(config.LLMConfig{Provider: "openai", APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*OpenAIClient); !ok {
		t.Errorf("openai provider produced %T", c)
	}

	if _, err := New(config.LLMConfig{Provider: "carrier-pigeon", APIKey: "k"}); err == nil {
		t.Error("unknown provider accepted")
	}
}

// =============================================================================
// HTTP CLIENTS
// =============================================================================

func TestAnthropicCompleteWithSystem(t *testing.T) {
	t.Parallel()

	var gotSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotSystem = req.System

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{{Type: "text", Text: "  hello there  "}},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	got, err := c.CompleteWithSystem(context.Background(), "be terse", "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "hello there" {
		t.Errorf("response = %q", got)
	}
	if gotSystem != "be terse" {
		t.Errorf("system prompt = %q", gotSystem)
	}
}

func TestAnthropicSurfacesAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("API error swallowed")
	}
}

func TestOpenAICompleteWithSystem(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []struct {
				Message openAIMessage `json:"message"`
			}{{Message: openAIMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	got, err := c.CompleteWithSystem(context.Background(), "be terse", "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "ok" {
		t.Errorf("response = %q", got)
	}
}

// =============================================================================
// MOCK
// =============================================================================

func TestMockScriptedResponses(t *testing.T) {
	t.Parallel()
	m := &Mock{Responses: []string{"first", "second"}}

	ctx := context.Background()
	if got, _ := m.Complete(ctx, "a"); got != "first" {
		t.Errorf("call 1 = %q", got)
	}
	if got, _ := m.Complete(ctx, "b"); got != "second" {
		t.Errorf("call 2 = %q", got)
	}
	// Last response repeats.
	if got, _ := m.Complete(ctx, "c"); got != "second" {
		t.Errorf("call 3 = %q", got)
	}
	if m.Calls() != 3 {
		t.Errorf("calls = %d", m.Calls())
	}
}
