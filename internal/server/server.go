// Package server implements the HTTP server that exposes the askdoc
// question-answering pipeline as a small REST API.
// The server is started by the `askdoc serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdoc/askdoc/internal/logging"
	"github.com/askdoc/askdoc/internal/pipeline"
)

// New constructs a Server from the provided answerer and config.
func New(ans answerer, cfg *Config) (*Server, error) {
	if ans == nil {
		return nil, fmt.Errorf("server: answerer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full model generation round-trip.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		answerer: ans,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: ASKDOC_API_KEY not set, API authentication is disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleAsk))))
	mux.Handle("GET /api/history", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleHistory)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("askdoc server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask requests: answer one question about the
// configured document.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.askRequestsTotal.WithLabelValues(outcomeBadRequest).Inc()
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.metrics.askRequestsTotal.WithLabelValues(outcomeBadRequest).Inc()
		writeJSONError(w, http.StatusBadRequest, "question is required")
		return
	}

	ans, err := s.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		log := logging.FromContext(r.Context())
		log.Error("ask failed", slog.Any("error", err))

		outcome := outcomeError
		status := http.StatusInternalServerError
		var qe *pipeline.QueryError
		if errors.As(err, &qe) {
			outcome = outcomeQueryError
		}
		var se *pipeline.StartupError
		if errors.As(err, &se) {
			// The pipeline never initialized; the service cannot answer anything.
			status = http.StatusServiceUnavailable
		}
		s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		writeJSONError(w, status, err.Error())
		return
	}

	resp := askResponse{
		Answer:  ans.Text,
		Sources: make([]askSource, 0, len(ans.Sources)),
	}
	for _, d := range ans.Sources {
		resp.Sources = append(resp.Sources, askSource{
			Text:   d.Content,
			Source: d.Source,
			Page:   d.Page,
			Score:  d.Score,
		})
	}

	s.metrics.askRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcomeOK).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.FromContext(r.Context()).Error("ask encode error", slog.Any("error", err))
	}
}

// handleHistory handles GET /api/history: the most recent answered questions,
// newest-first. The optional ?limit= parameter defaults to 20, capped at 100.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeJSONError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("history read failed", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "could not read history")
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			Question:    e.Question,
			Answer:      e.Answer,
			SourceCount: e.SourceCount,
			LatencyMS:   e.Latency.Milliseconds(),
			CreatedAt:   e.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		logging.FromContext(r.Context()).Error("history encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeJSONError writes a JSON error body with the given status code.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
