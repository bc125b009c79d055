// Package server exposes the fixer over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chris-regnier/wikifix/internal/fixer"
	"github.com/chris-regnier/wikifix/internal/metrics"
	"github.com/chris-regnier/wikifix/internal/settings"
)

// MaxBodyBytes bounds request bodies; the largest wiki pages are about 2 MB.
const MaxBodyBytes = 8 << 20

type Server struct {
	fixer     *fixer.Fixer
	settings  *settings.Settings
	collector *metrics.Collector
	timeout   time.Duration
}

type Option func(*Server)

// WithSettings lets the handler listing report priorities.
func WithSettings(st *settings.Settings) Option {
	return func(s *Server) { s.settings = st }
}

// WithMetrics serves the collector's statistics at /v1/metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithRequestTimeout bounds the handling time of one request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func New(f *fixer.Fixer, opts ...Option) *Server {
	s := &Server{fixer: f, timeout: time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/fix", s.handleFix)
		r.Post("/typos", s.handleTypos)
		r.Get("/handlers", s.handleHandlers)
		r.Get("/handlers/{id}", s.handleHandler)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

// FixRequest is the body of /v1/fix and /v1/typos.
type FixRequest struct {
	Title     string `json:"title"`
	Namespace int    `json:"namespace"`
	Text      string `json:"text"`
	Handlers  []int  `json:"handlers,omitempty"`
	Typos     bool   `json:"typos,omitempty"`
}

func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	s.fix(w, r, fixer.Request{
		Title:     req.Title,
		Namespace: req.Namespace,
		Text:      req.Text,
		Handlers:  req.Handlers,
		Checkwiki: true,
		Typos:     req.Typos,
	})
}

func (s *Server) handleTypos(w http.ResponseWriter, r *http.Request) {
	if !s.fixer.Typos() {
		writeError(w, http.StatusNotImplemented, "typo rules are not configured")
		return
	}
	req, ok := decode(w, r)
	if !ok {
		return
	}
	s.fix(w, r, fixer.Request{Title: req.Title, Namespace: req.Namespace, Text: req.Text, Typos: true})
}

func (s *Server) fix(w http.ResponseWriter, r *http.Request, req fixer.Request) {
	run, err := s.fixer.Fix(r.Context(), req)
	switch {
	case errors.Is(err, fixer.ErrSkipped):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		slog.Error("fix failed", "page", req.Title, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

func decode(w http.ResponseWriter, r *http.Request) (*FixRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var req FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusNotFound, "metrics are disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.collector.GetStats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
