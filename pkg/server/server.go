// Package server exposes the saying service over HTTP. It is thin glue:
// request shaping, error-to-status mapping and nothing else.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/sibyl-ai/sibyl/pkg/arbiter"
	"github.com/sibyl-ai/sibyl/pkg/langs"
	"github.com/sibyl-ai/sibyl/pkg/models"
	"github.com/sibyl-ai/sibyl/pkg/preset"
	"github.com/sibyl-ai/sibyl/pkg/store"
)

const (
	defaultUserID       = "default_user"
	defaultHistoryLimit = 10
)

// Server routes HTTP requests to the arbiter and the read-only catalogs.
type Server struct {
	arbiter *arbiter.Arbiter
	catalog *preset.Catalog
	router  chi.Router
	addr    string
}

// New creates a Server listening on addr.
func New(addr string, a *arbiter.Arbiter, catalog *preset.Catalog) *Server {
	s := &Server{
		arbiter: a,
		catalog: catalog,
		addr:    addr,
	}

	r := chi.NewRouter()
	r.Use(cors)

	r.Route("/sayings", func(r chi.Router) {
		r.Post("/", s.handleCreateSaying)
		r.Get("/", s.handleGetSayings)
		r.Get("/latest", s.handleGetLatestSaying)
	})
	r.Get("/users/{userID}/status", s.handleUserStatus)
	r.Get("/presets", s.handleGetPresets)
	r.Get("/presets/{presetID}", s.handleGetPreset)
	r.Get("/languages", s.handleGetLanguages)
	r.Get("/languages/{languageID}", s.handleGetLanguage)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts down gracefully when ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", s.addr).Info("sibyl listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sayingResponse is the wire shape of one saying.
type sayingResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
}

func toSayingResponse(s models.Saying) sayingResponse {
	return sayingResponse{
		ID:        s.ID,
		Content:   s.Content,
		CreatedAt: s.CreatedAt,
		Source:    string(s.Source),
	}
}

// presetResponse exposes preset display metadata without the prompts.
type presetResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	ButtonText      string   `json:"button_text"`
	LoadingText     string   `json:"loading_text"`
	InstructionText string   `json:"instruction_text"`
}

func toPresetResponse(p models.Preset) presetResponse {
	return presetResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Tags:            p.Tags,
		ButtonText:      p.ButtonText,
		LoadingText:     p.LoadingText,
		InstructionText: p.InstructionText,
	}
}

type statusResponse struct {
	UserID         string          `json:"user_id"`
	CanQuery       bool            `json:"can_query"`
	Remaining      uint32          `json:"remaining_requests"`
	ResetAt        *time.Time      `json:"reset_at"`
	LastSaying     *sayingResponse `json:"last_saying"`
	SelectedPreset *presetResponse `json:"selected_preset"`
}

type createSayingRequest struct {
	Prompt     string `json:"prompt"`
	PresetID   string `json:"preset_id"`
	LanguageID string `json:"language_id"`
}

func (s *Server) handleCreateSaying(w http.ResponseWriter, r *http.Request) {
	var body createSayingRequest
	if r.Body != nil {
		// An empty or absent body means the default selection flow.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	languageID := r.URL.Query().Get("language_id")
	if languageID == "" {
		languageID = body.LanguageID
	}

	req := arbiter.Request{
		UserID:     userID(r),
		Prompt:     body.Prompt,
		PresetID:   body.PresetID,
		LanguageID: languageID,
	}

	saying, isNew, err := s.arbiter.Admit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, toSayingResponse(saying))
}

func (s *Server) handleGetSayings(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	sayings, err := s.arbiter.History(r.Context(), userID(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]sayingResponse, 0, len(sayings))
	for _, saying := range sayings {
		out = append(out, toSayingResponse(saying))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLatestSaying(w http.ResponseWriter, r *http.Request) {
	saying, err := s.arbiter.LastSaying(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSayingResponse(saying))
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.arbiter.Status(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statusResponse{
		UserID:    st.UserID,
		CanQuery:  st.CanQuery,
		Remaining: st.Remaining,
		ResetAt:   st.ResetAt,
	}
	if st.LastSaying != nil {
		v := toSayingResponse(*st.LastSaying)
		resp.LastSaying = &v
	}
	if st.SelectedPreset != nil {
		v := toPresetResponse(*st.SelectedPreset)
		resp.SelectedPreset = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPresets(w http.ResponseWriter, r *http.Request) {
	presets := s.catalog.All()
	out := make([]presetResponse, 0, len(presets))
	for _, p := range presets {
		out = append(out, toPresetResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "presetID")
	p, ok := s.catalog.ByID(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no preset with ID: " + id})
		return
	}
	writeJSON(w, http.StatusOK, toPresetResponse(p))
}

func (s *Server) handleGetLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, langs.All())
}

func (s *Server) handleGetLanguage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, langs.ByID(chi.URLParam(r, "languageID")))
}

func userID(r *http.Request) string {
	if v := r.URL.Query().Get("user_id"); v != "" {
		return v
	}
	return defaultUserID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, arbiter.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, arbiter.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, arbiter.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, arbiter.ErrUpstream), errors.Is(err, store.ErrStorage):
		status = http.StatusInternalServerError
	}

	logrus.WithError(err).WithField("status", status).Error("request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
