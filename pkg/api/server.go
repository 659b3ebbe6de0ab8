// Package api exposes the command engine over HTTP: buffered and streaming
// command execution, the status endpoint, and the lifecycle event feeds.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/auth"
	"github.com/parlancehq/parlance/pkg/bus"
	"github.com/parlancehq/parlance/pkg/logging"
)

const defaultBind = "127.0.0.1:8787"

// Engine is the slice of the command processor the API serves.
type Engine interface {
	// Process resolves and executes one command, relaying progress to sink.
	Process(ctx context.Context, command string, user auth.User, sink action.Sink) *action.Result

	// Candidates lists the actions currently resolvable for the user.
	Candidates(user auth.User) []action.Action

	// Configured reports whether the AI fallback stage is available.
	Configured() bool
}

// Config configures the API server.
type Config struct {
	// Bind is the listen address (default 127.0.0.1:8787).
	Bind string

	// AuthToken enables static bearer-token auth when set.
	AuthToken string

	// JWTSecret enables JWT bearer auth when set.
	JWTSecret string

	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string

	// PublicMetrics exposes /metrics to unauthenticated callers.
	PublicMetrics bool

	// Provider names the configured parse model, reported by /command/status.
	Provider string

	// Engine executes commands. Required.
	Engine Engine

	// Bus feeds /command/events and /command/ws (optional).
	Bus bus.Bus

	// Logger receives request and stream events (optional).
	Logger *logging.Logger
}

// Server is the engine's HTTP front end.
type Server struct {
	engine        Engine
	eventBus      bus.Bus
	tokens        *auth.TokenManager
	logger        *logging.Logger
	authToken     string
	corsOrigins   []string
	publicMetrics bool
	provider      string

	httpServer *http.Server
	metrics    http.Handler
}

// NewServer builds the server and its router.
func NewServer(cfg Config) *Server {
	if cfg.Bind == "" {
		cfg.Bind = defaultBind
	}

	s := &Server{
		engine:        cfg.Engine,
		eventBus:      cfg.Bus,
		logger:        cfg.Logger,
		authToken:     cfg.AuthToken,
		corsOrigins:   cfg.CORSOrigins,
		publicMetrics: cfg.PublicMetrics,
		provider:      cfg.Provider,
		metrics:       promhttp.Handler(),
	}
	if cfg.JWTSecret != "" {
		s.tokens = auth.NewTokenManager(cfg.JWTSecret)
	}

	router := chi.NewRouter()
	router.Use(s.corsMiddleware)
	router.Use(s.traceMiddleware)
	router.Use(s.logMiddleware)
	router.Use(s.authMiddleware)

	router.Post("/command/process", s.handleProcess)
	router.Post("/command/process-stream", s.handleProcessStream)
	router.Get("/command/status", s.handleStatus)
	router.Get("/command/events", s.handleEvents)
	router.Get("/command/ws", s.handleWebSocket)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/readyz", s.handleReadyz)
	router.Get("/metrics", s.handleMetrics)

	// H2C lets reverse proxies speak cleartext HTTP/2 to us; SSE and
	// websocket upgrades pass through either protocol version.
	h2s := &http2.Server{}
	s.httpServer = &http.Server{
		Addr:              cfg.Bind,
		Handler:           h2c.NewHandler(router, h2s),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	return s
}

// Start serves until Shutdown or a listener error. The event streams hold
// connections open indefinitely, so the server sets no write timeout.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, honoring ctx as the grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wired handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "engine not initialized",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.publicMetrics && auth.UserFromContext(r.Context()).Anonymous() {
		writeError(w, http.StatusForbidden, "metrics require authentication")
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) logf(level logging.Level, eventType, message string, details map[string]any) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Log(logging.Event{
		Level:     level,
		Category:  logging.CategoryHTTP,
		EventType: eventType,
		Message:   message,
		Details:   details,
	})
}

// Helpers
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
