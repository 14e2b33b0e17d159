package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sibyl-ai/sibyl/pkg/config"
	"github.com/sibyl-ai/sibyl/pkg/models"
)

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "gen-1",
			"model":   "test-model",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": "A stitch in time."}}},
		})
	}))
	defer srv.Close()

	c := NewClient(config.OpenRouterConfig{APIKey: "sk-test", Model: "test-model", BaseURL: srv.URL})

	saying, err := c.Generate(context.Background(), "be wise", "share a saying")
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "share a saying" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
	if saying.Content != "A stitch in time." {
		t.Errorf("content = %q", saying.Content)
	}
	if saying.Source != models.SourceGenerated {
		t.Errorf("source = %q, want llm", saying.Source)
	}
	if saying.Prompt != "share a saying" {
		t.Errorf("prompt = %q", saying.Prompt)
	}
	if saying.ID == "" {
		t.Error("saying should get an id")
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "gen-2", "choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(config.OpenRouterConfig{BaseURL: srv.URL})
	saying, err := c.Generate(context.Background(), "s", "u")
	if err != nil {
		t.Fatal(err)
	}
	if saying.Content != "No response from LLM" {
		t.Errorf("content = %q", saying.Content)
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.OpenRouterConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("upstream message should pass through, got %v", err)
	}
}
