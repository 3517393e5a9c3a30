package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/askdoc/askdoc/internal/history"
	"github.com/askdoc/askdoc/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must cover a full model generation round-trip.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// History serves GET /api/history when non-nil.
	History history.Store
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a fresh registry is created, which keeps unit tests hermetic.
	Registry *prometheus.Registry
}

// answerer is the interface handleAsk calls to answer a question.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

// Server is the HTTP server that exposes the question-answering pipeline.
type Server struct {
	// answerer answers questions; the pipeline in production, a fake in tests.
	answerer answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// askSource is one retrieved chunk returned alongside the answer.
type askSource struct {
	// Text is the chunk content the answer was grounded in.
	Text string `json:"text"`
	// Source is the originating document path.
	Source string `json:"source"`
	// Page is the 1-based page number for PDF sources; 0 for plain text.
	Page int `json:"page,omitempty"`
	// Score is the cosine similarity between the question and this chunk.
	Score float32 `json:"score"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources lists the chunks the answer was grounded in, best-ranked first.
	Sources []askSource `json:"sources"`
}

// errorResponse is the JSON body for error replies on /api/* routes.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
}

// historyEntry is one answered question in the GET /api/history response.
type historyEntry struct {
	// Question is the question as asked.
	Question string `json:"question"`
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// SourceCount is the number of chunks the answer was grounded in.
	SourceCount int `json:"source_count"`
	// LatencyMS is the end-to-end answer latency in milliseconds.
	LatencyMS int64 `json:"latency_ms"`
	// CreatedAt is when the question was answered (RFC 3339).
	CreatedAt time.Time `json:"created_at"`
}
