package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/valtric/dealbrain/internal/domain"
)

func newTestCompleter(t *testing.T, baseURL string) *Completer {
	t.Helper()
	return NewCompleter(&CompleterConfig{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Tier:        domain.TierFast,
		Model:       "fast-model",
		Temperature: 0.1,
		Logger:      zap.NewNop(),
	})
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"model":   "fast-model",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	}
}

func TestCompleter_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "fast-model" {
			t.Errorf("unexpected model: %s", req.Model)
		}
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format, got %q", req.ResponseFormat.Type)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(`{"conclusion":"x"}`))
	}))
	defer server.Close()

	raw, err := newTestCompleter(t, server.URL).Complete(context.Background(), "some prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != `{"conclusion":"x"}` {
		t.Fatalf("unexpected content: %q", raw)
	}
}

func TestCompleter_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer server.Close()

	_, err := newTestCompleter(t, server.URL).Complete(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCompleter_TimeoutMapsToProviderTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestCompleter(t, server.URL).Complete(ctx, "prompt")
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected ErrProviderTimeout, got %v", err)
	}
}

func TestCompleter_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","model":"fast-model","choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestCompleter(t, server.URL).Complete(context.Background(), "prompt")
	if !errors.Is(err, domain.ErrInferenceProviderError) {
		t.Fatalf("expected ErrInferenceProviderError, got %v", err)
	}
}

func TestTiers_Tier(t *testing.T) {
	fast := &Completer{model: "fast-model"}
	deep := &Completer{model: "deep-model"}
	tiers := Tiers{Fast: fast, Deep: deep}

	if got := tiers.Tier(domain.TierFast).(*Completer); got.model != "fast-model" {
		t.Fatalf("unexpected fast completer: %s", got.model)
	}
	if got := tiers.Tier(domain.TierDeep).(*Completer); got.model != "deep-model" {
		t.Fatalf("unexpected deep completer: %s", got.model)
	}
}
