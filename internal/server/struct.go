package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/insight-scout/internal/scout"
	"github.com/54b3r/insight-scout/internal/session"
	"github.com/54b3r/insight-scout/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a whole process action.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// /api/process and /api/ask (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// SessionTTL evicts sessions idle for longer. Defaults to 30m if zero.
	SessionTTL time.Duration
	// History is the optional Q&A store served by GET /api/history. Turns of
	// evicted sessions are deleted from it.
	History store.HistoryStore
	// HistoryDepth is the number of turns returned by GET /api/history.
	// Defaults to 20 if zero.
	HistoryDepth int
	// SecureCookies marks the session cookie Secure. Enable behind TLS.
	SecureCookies bool
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// actions is the interface the process and ask handlers call.
// *scout.Assistant satisfies it; tests inject a fake.
type actions interface {
	// Process indexes urls into st.
	Process(ctx context.Context, st *session.State, urls []string) scout.Outcome
	// Ask answers question from st's index.
	Ask(ctx context.Context, st *session.State, question string) scout.Outcome
	// MaxURLs is the number of URL fields the page shows.
	MaxURLs() int
}

// Server is the HTTP server that exposes the Insight Scout actions.
type Server struct {
	// assistant runs process and ask actions.
	assistant actions
	// sessions maps session cookies to index slots.
	sessions *session.Manager
	// history is the optional Q&A store.
	history store.HistoryStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped mux, exposed for tests.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the HTTP metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// stopSessions stops the session eviction goroutine on shutdown.
	stopSessions func()
}

// processRequest is the JSON body for POST /api/process.
type processRequest struct {
	// URLs are the pages to index. Empty entries are ignored.
	URLs []string `json:"urls"`
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Enabled is false when no history store is configured.
	Enabled bool `json:"enabled"`
	// Turns are the session's recent turns, oldest first.
	Turns []store.Turn `json:"turns"`
}
