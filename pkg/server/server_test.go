package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sibyl-ai/sibyl/pkg/arbiter"
	"github.com/sibyl-ai/sibyl/pkg/models"
	"github.com/sibyl-ai/sibyl/pkg/preset"
	"github.com/sibyl-ai/sibyl/pkg/ratelimit"
	"github.com/sibyl-ai/sibyl/pkg/store"
)

type stubGen struct{}

func (stubGen) Generate(_ context.Context, _, userPrompt string) (models.Saying, error) {
	return models.Saying{
		ID:        uuid.NewString(),
		Content:   "Still waters run deep.",
		Prompt:    userPrompt,
		CreatedAt: time.Now().UTC(),
		Source:    models.SourceGenerated,
	}, nil
}

func newTestServer(t *testing.T, max uint32) *Server {
	t.Helper()

	catalog, err := preset.NewCatalog([]models.Preset{{
		ID:           "oracle",
		Name:         "Oracle",
		Description:  "Wise sayings",
		SystemPrompt: "You are a wise oracle.",
		UserPrompts:  []string{"Share a prophecy."},
	}})
	if err != nil {
		t.Fatal(err)
	}

	limiter := ratelimit.New(max, time.Hour)
	a := arbiter.New(limiter, preset.NewSelector(catalog, nil), catalog, store.NewMemory(), stubGen{}, nil)
	return New("127.0.0.1:0", a, catalog)
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func TestCreateSaying(t *testing.T) {
	s := newTestServer(t, 5)

	w, body := doJSON(t, s, http.MethodPost, "/sayings?user_id=alice", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body)
	}
	if body["source"] != "llm" {
		t.Errorf("source = %v, want llm", body["source"])
	}
	if body["content"] != "Still waters run deep." {
		t.Errorf("content = %v", body["content"])
	}
}

func TestCreateSayingUnknownPreset(t *testing.T) {
	s := newTestServer(t, 5)

	w, _ := doJSON(t, s, http.MethodPost, "/sayings?user_id=alice", `{"preset_id":"pirate"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCooldownServesCachedWithOKStatus(t *testing.T) {
	s := newTestServer(t, 1)

	w, _ := doJSON(t, s, http.MethodPost, "/sayings?user_id=alice", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("first request status = %d", w.Code)
	}

	w, body := doJSON(t, s, http.MethodPost, "/sayings?user_id=alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cooldown status = %d, want 200: %s", w.Code, w.Body)
	}
	if body["source"] != "cache" {
		t.Errorf("cooldown source = %v, want cache", body["source"])
	}
}

func TestRateLimitedWithEmptyCache(t *testing.T) {
	s := newTestServer(t, 1)

	// Exhaust the quota with a failing generation so nothing is stored.
	catalog, _ := preset.NewCatalog([]models.Preset{{
		ID: "oracle", Name: "Oracle", SystemPrompt: "s", UserPrompts: []string{"p"},
	}})
	limiter := ratelimit.New(1, time.Hour)
	limiter.Check("alice")
	a := arbiter.New(limiter, preset.NewSelector(catalog, nil), catalog, store.NewMemory(), stubGen{}, nil)
	s = New("127.0.0.1:0", a, catalog)

	w, _ := doJSON(t, s, http.MethodPost, "/sayings?user_id=alice", "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestUserStatus(t *testing.T) {
	s := newTestServer(t, 5)

	w, body := doJSON(t, s, http.MethodGet, "/users/alice/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["can_query"] != true {
		t.Error("fresh user should be able to query")
	}
	if body["remaining_requests"] != float64(5) {
		t.Errorf("remaining = %v, want 5", body["remaining_requests"])
	}
}

func TestHistoryAndLatest(t *testing.T) {
	s := newTestServer(t, 5)

	doJSON(t, s, http.MethodPost, "/sayings?user_id=alice", "")
	doJSON(t, s, http.MethodPost, "/sayings?user_id=alice", "")

	r := httptest.NewRequest(http.MethodGet, "/sayings?user_id=alice&limit=1", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("history len = %d, want 1", len(list))
	}

	w2, _ := doJSON(t, s, http.MethodGet, "/sayings/latest?user_id=alice", "")
	if w2.Code != http.StatusOK {
		t.Errorf("latest status = %d", w2.Code)
	}

	w3, _ := doJSON(t, s, http.MethodGet, "/sayings/latest?user_id=nobody", "")
	if w3.Code != http.StatusNotFound {
		t.Errorf("latest for unknown user = %d, want 404", w3.Code)
	}
}

func TestPresetEndpoints(t *testing.T) {
	s := newTestServer(t, 5)

	r := httptest.NewRequest(http.MethodGet, "/presets", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0]["id"] != "oracle" {
		t.Errorf("presets = %v", list)
	}
	if _, ok := list[0]["system_prompt"]; ok {
		t.Error("preset responses must not leak the system prompt")
	}

	w2, body := doJSON(t, s, http.MethodGet, "/presets/oracle", "")
	if w2.Code != http.StatusOK || body["name"] != "Oracle" {
		t.Errorf("preset lookup: %d %v", w2.Code, body)
	}

	w3, _ := doJSON(t, s, http.MethodGet, "/presets/pirate", "")
	if w3.Code != http.StatusNotFound {
		t.Errorf("unknown preset = %d, want 404", w3.Code)
	}
}

func TestLanguageEndpoints(t *testing.T) {
	s := newTestServer(t, 5)

	r := httptest.NewRequest(http.MethodGet, "/languages", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) == 0 {
		t.Fatal("expected languages")
	}

	_, body := doJSON(t, s, http.MethodGet, "/languages/ja", "")
	if body["name"] != "Japanese" {
		t.Errorf("language = %v", body)
	}

	// Unknown ids resolve to the default language.
	_, body = doJSON(t, s, http.MethodGet, "/languages/tlh", "")
	if body["id"] != "en" {
		t.Errorf("unknown language resolved to %v, want en", body["id"])
	}
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t, 5)

	r := httptest.NewRequest(http.MethodOptions, "/sayings", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected permissive CORS headers")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}
