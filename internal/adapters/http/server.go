// Package http exposes the workflow service over a thin JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/epivigil/epivigil/internal/logging"
	"github.com/epivigil/epivigil/internal/workflows"
	"github.com/epivigil/epivigil/pkg/domain"
)

// Engine is the slice of the workflow service the HTTP surface needs.
type Engine interface {
	Report(ctx context.Context, req workflows.ReportRequest) (*workflows.ReportResult, error)
	Chat(ctx context.Context, req workflows.ChatRequest) (*workflows.ChatResult, error)
	History(ctx context.Context, threadID string) ([]domain.Snapshot, error)
	Threads(ctx context.Context) ([]string, error)
}

// Server handles the JSON API.
type Server struct {
	engine Engine
	logger *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the routed HTTP handler. A nil gatherer disables the
// metrics endpoint.
func NewHandler(engine Engine, gatherer prometheus.Gatherer, opts ...Option) http.Handler {
	s := &Server{engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/report", s.report)
		r.Post("/chat", s.chat)
		r.Get("/threads", s.threads)
		r.Get("/threads/{threadID}", s.history)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	var req workflows.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.engine.Report(r.Context(), req)
	if err != nil {
		s.logger.Error("report request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req workflows.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.engine.Chat(r.Context(), req)
	if err != nil {
		s.logger.Error("chat request failed", "thread", req.ThreadID, "err", err)
		writeError(w, http.StatusInternalServerError, "chat turn failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) threads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.engine.Threads(r.Context())
	if err != nil {
		s.logger.Error("thread listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}
	if threads == nil {
		threads = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	history, err := s.engine.History(r.Context(), threadID)
	if errors.Is(err, domain.ErrThreadNotFound) {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		s.logger.Error("history lookup failed", "thread", threadID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"snapshots": history,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
