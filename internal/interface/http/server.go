// Package http implements the REST API of the Lumen Adaptive Hub: event
// ingestion, adaptive path and traversability reads, decision resolution,
// curriculum insights and health checks.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/command"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/application/query"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/domain/orchestration"
	"github.com/lumen-hub/lumen-adaptive-hub/internal/interface/http/handlers"
)

// Config controls the listener and the middleware stack.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration // per-request deadline, 0 disables
	MaxHeaderBytes int
	MaxBodyBytes   int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute caps requests per client IP. Zero disables limiting.
	RateLimitPerMinute int

	// APIKeyHashes holds bcrypt hashes of accepted keys. An empty list turns
	// authentication off, which is the local-development default.
	APIKeyHeader string
	APIKeyHashes []string
}

// DefaultConfig returns the settings both binaries start from.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		RequestTimeout:     30 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       256 << 10,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 300,
		APIKeyHeader:       "X-API-Key",
	}
}

// Address returns the host:port the server binds to.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dependencies wires the application layer into the HTTP surface. Any nil
// handler turns its routes into 501 responses rather than panics, so a
// partially configured server still starts.
type Dependencies struct {
	RecordEventHandler     *command.RecordEventHandler
	ResolveDecisionHandler *command.ResolveDecisionHandler
	CloseSessionHandler    *command.CloseSessionHandler

	GetProfileHandler            *query.GetProfileHandler
	GetAdaptivePathHandler       *query.GetAdaptivePathHandler
	GetTraversabilityHandler     *query.GetTraversabilityHandler
	GetCurriculumInsightsHandler *query.GetCurriculumInsightsHandler
	GetDecisionHistoryHandler    *query.GetDecisionHistoryHandler

	// Celebrations serves the active celebration signals of a learner.
	Celebrations orchestration.CelebrationStore

	Logger        *slog.Logger
	HealthChecker handlers.HealthChecker
}

// Server owns the listener, the router and the middleware state.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *slog.Logger

	limiter *ipLimiter
	auth    *handlers.APIKeyAuth

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer assembles the router, middleware stack and http.Server.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
		auth:   handlers.NewAPIKeyAuth(config.APIKeyHeader, config.APIKeyHashes),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = newIPLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.middleware()(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

func (s *Server) registerRoutes() {
	// Probes stay outside auth so orchestrators can reach them.
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /", s.handleRoot)

	// Write side: behavior ingestion and decision resolution.
	s.router.Handle("POST /api/v1/events", s.authed(s.handleRecordEvent))
	s.router.Handle("POST /api/v1/sessions/{id}/decisions/{decisionID}/accept", s.authed(s.handleAcceptDecision))
	s.router.Handle("POST /api/v1/sessions/{id}/decisions/{decisionID}/dismiss", s.authed(s.handleDismissDecision))
	s.router.Handle("DELETE /api/v1/sessions/{id}", s.authed(s.handleCloseSession))

	// Read side: learner-facing projections.
	s.router.Handle("GET /api/v1/learners/{id}/courses/{courseID}/profile", s.authed(s.handleGetProfile))
	s.router.Handle("GET /api/v1/learners/{id}/courses/{courseID}/path", s.authed(s.handleGetAdaptivePath))
	s.router.Handle("GET /api/v1/learners/{id}/courses/{courseID}/traversability", s.authed(s.handleGetTraversability))
	s.router.Handle("GET /api/v1/learners/{id}/decisions", s.authed(s.handleGetDecisionHistory))
	s.router.Handle("GET /api/v1/learners/{id}/celebrations", s.authed(s.handleGetCelebrations))

	// Read side: course-author projections.
	s.router.Handle("GET /api/v1/courses/{id}/insights", s.authed(s.handleGetCurriculumInsights))
}

// authed applies API key checking when keys are configured.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	if !s.auth.Enabled() {
		return h
	}
	return s.auth.Middleware(h)
}

// middleware assembles the stack outermost-first: limiting and CORS run
// before anything allocates, recovery sits just inside them so it also
// covers the inner middleware, and the body limit runs last before routing.
func (s *Server) middleware() handlers.MiddlewareFunc {
	stack := make([]handlers.MiddlewareFunc, 0, 8)
	if s.limiter != nil {
		stack = append(stack, s.rateLimit)
	}
	if s.config.EnableCORS {
		stack = append(stack, s.cors)
	}
	stack = append(stack,
		handlers.SecurityHeadersMiddleware,
		s.recovery,
		s.logging,
		s.requestID,
	)
	if s.config.RequestTimeout > 0 {
		stack = append(stack, handlers.TimeoutMiddleware(s.config.RequestTimeout))
	}
	stack = append(stack, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	return handlers.Chain(stack...)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", clientIP(r),
			"request_id", requestID(r.Context()),
		)
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic recovered",
					"error", v,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"request_id", requestID(r.Context()),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "address", s.config.Address())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine; the channel closes when serving ends.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start has been called without a matching Shutdown.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns time since Start, zero when stopped.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the configured bind address.
func (s *Server) Address() string {
	return s.config.Address()
}

// JSONResponse is the envelope every endpoint answers with.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries a machine-readable code plus a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, status int, body JSONResponse) {
	body.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respond(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: requestID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, JSONResponse{
		Error: &APIError{Code: code, Message: message},
	})
}

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// clientIP resolves the caller address, trusting proxy headers when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

func getQueryParam(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func getQueryParamInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ipLimiter implements fixed-window counting per client IP. Windows reset
// lazily on the next request; idle entries age out on a background sweep.
type ipLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	span    time.Duration
}

type window struct {
	start time.Time
	count int
}

func newIPLimiter(limit int, span time.Duration) *ipLimiter {
	l := &ipLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		span:    span,
	}
	go l.sweep()
	return l
}

func (l *ipLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	win := l.windows[key]
	if win == nil || now.Sub(win.start) >= l.span {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	if win.count >= l.limit {
		return false
	}
	win.count++
	return true
}

func (l *ipLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * l.span)
		l.mu.Lock()
		for key, win := range l.windows {
			if win.start.Before(cutoff) {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}
