// Package server implements the HTTP server that exposes Insight Scout via a
// JSON API and serves the web UI. Each browser gets its own session, keyed by
// an HttpOnly cookie. The server is started by the `scout serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/scout"
	"github.com/54b3r/insight-scout/internal/session"
	"github.com/54b3r/insight-scout/internal/store"
)

const (
	// sessionCookie names the cookie carrying the session ID.
	sessionCookie = "scout_session"

	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 64 << 10

	// forgetTimeout bounds deleting an evicted session's history.
	forgetTimeout = 5 * time.Second
)

// New constructs a Server around the given actions and config.
func New(assistant actions, cfg *Config) (*Server, error) {
	if assistant == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
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
		cfg.WriteTimeout = 5 * time.Minute
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
	if cfg.HistoryDepth == 0 {
		cfg.HistoryDepth = 20
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	sessions, stopSessions := session.NewManager(cfg.SessionTTL, cfg.Logger)
	s := &Server{
		assistant:    assistant,
		sessions:     sessions,
		history:      cfg.History,
		cfg:          cfg,
		log:          cfg.Logger,
		pingers:      cfg.Pingers,
		stopSessions: stopSessions,
	}
	if s.history != nil {
		sessions.OnEvict(s.forgetHistory)
	}
	s.metrics = newServerMetrics(cfg.MetricsRegistry, sessions.Len)

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("POST /api/process", rl.middleware(http.HandlerFunc(s.handleProcess)))
	mux.Handle("POST /api/ask", rl.middleware(http.HandlerFunc(s.handleAsk)))
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.handler = requestLogger(cfg.Logger, s.metrics.instrument(mux))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown and releases every
// session's index.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	defer s.close()

	go func() {
		s.log.Info("scout server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// close stops background goroutines and drops all sessions.
func (s *Server) close() {
	s.stopRL()
	s.stopSessions()
	s.sessions.Close()
}

// handleProcess handles POST /api/process.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOutcome(w, r, badRequest(err))
		return
	}
	st := s.session(w, r)
	ctx := logging.With(r.Context(), slog.String("session", st.ID()))
	writeOutcome(w, r, s.assistant.Process(ctx, st, req.URLs))
}

// handleAsk handles POST /api/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeOutcome(w, r, badRequest(err))
		return
	}
	st := s.session(w, r)
	ctx := logging.With(r.Context(), slog.String("session", st.ID()))
	writeOutcome(w, r, s.assistant.Ask(ctx, st, req.Question))
}

// handleSession handles GET /api/session. It never creates a session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	info := session.Info{}
	if st, ok := s.lookup(r); ok {
		info = st.Info()
	}
	writeJSON(w, r, http.StatusOK, info)
}

// handleHistory handles GET /api/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	resp := historyResponse{Enabled: s.history != nil, Turns: []store.Turn{}}
	if st, ok := s.lookup(r); ok && s.history != nil {
		turns, err := s.history.Recent(r.Context(), st.ID(), s.cfg.HistoryDepth)
		if err != nil {
			logging.FromContext(r.Context()).Error("history: failed to load turns", slog.Any("error", err))
			writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
			return
		}
		if turns != nil {
			resp.Turns = turns
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// session returns the caller's State, issuing a new session cookie when the
// request carries none or an expired one.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.State {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	sid, st, created := s.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st
}

// lookup returns the caller's State without creating one.
func (s *Server) lookup(r *http.Request) (*session.State, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return s.sessions.Get(c.Value)
}

// forgetHistory deletes an evicted session's turns.
func (s *Server) forgetHistory(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), forgetTimeout)
	defer cancel()
	if err := s.history.Forget(ctx, id); err != nil {
		s.log.Warn("history: failed to forget evicted session",
			slog.String("session", id),
			slog.Any("error", err),
		)
	}
}

// statusFor maps an Outcome to its HTTP status code.
func statusFor(o scout.Outcome) int {
	switch {
	case o.OK():
		return http.StatusOK
	case o.Kind == scout.KindInputMissing:
		return http.StatusBadRequest
	case o.Kind == scout.KindNotReady:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func badRequest(err error) scout.Outcome {
	return scout.Outcome{
		Level:   scout.LevelError,
		Kind:    scout.KindInputMissing,
		Message: "invalid request body: " + err.Error(),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeOutcome(w http.ResponseWriter, r *http.Request, o scout.Outcome) {
	writeJSON(w, r, statusFor(o), o)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("encode response", slog.Any("error", err))
	}
}
