package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/net/ratelimit"
	"github.com/sawpanic/quantfund/internal/ops"
	"github.com/sawpanic/quantfund/internal/registry"
	"github.com/sawpanic/quantfund/internal/report/perf"
	"github.com/sawpanic/quantfund/internal/stream"
	"github.com/sawpanic/quantfund/internal/telemetry/latency"
)

// Engine is the part of the engine the API serves
type Engine interface {
	Current() *domain.Snapshot
	Subscribe(ctx context.Context) *stream.Subscription
	List() []domain.StrategyView
	Get(id string) (domain.StrategyView, bool)
	Register(id, name string, opts ...registry.RegisterOption) (domain.StrategyView, error)
	SetStatus(id string, status domain.Status) error
	Deregister(id string)
	Ingest(obs perf.Observation) error
	Stats() ops.Summary
	Latency() []latency.Summary
	Running() bool
	Subscribers() int
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Server serves the query, admin and stream endpoints
type Server struct {
	router   *mux.Router
	server   *http.Server
	engine   Engine
	limiter  *ratelimit.Limiter
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	config   ServerConfig
	version  string
	started  time.Time

	streams     context.Context
	stopStreams context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"` // websocket keepalive
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	port := 8080
	if portStr := os.Getenv("QUANTFUND_HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	return ServerConfig{
		Enabled:         true,
		Host:            "127.0.0.1", // Local-only by default
		Port:            port,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		PingInterval:    30 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// Validate checks the server settings
func (c ServerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("http port out of range: %d", c.Port)
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"request_timeout":  c.RequestTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
		"ping_interval":    c.PingInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("http %s must be positive, got %s", name, d)
		}
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("http max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Option customizes a Server
type Option func(*Server)

// WithLimiter throttles each client address
func WithLimiter(l *ratelimit.Limiter) Option { return func(s *Server) { s.limiter = l } }

// WithGatherer serves g on /metrics
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithVersion sets the version reported by /health
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// NewServer creates a new HTTP server instance
func NewServer(config ServerConfig, engine Engine, opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		engine:   engine,
		gatherer: prometheus.DefaultGatherer,
		config:   config,
		version:  "dev",
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     localOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Middleware for all routes
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	// Long-lived and non-JSON routes first
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/stream", s.handleStream).Methods("GET")

	// API routes (JSON only)
	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	api.HandleFunc("/strategies", s.handleListStrategies).Methods("GET")
	api.HandleFunc("/strategies", s.handleRegister).Methods("POST")
	api.HandleFunc("/strategies/{id}", s.handleGetStrategy).Methods("GET")
	api.HandleFunc("/strategies/{id}", s.handleDeregister).Methods("DELETE")
	api.HandleFunc("/strategies/{id}/status", s.handleSetStatus).Methods("PUT")
	api.HandleFunc("/strategies/{id}/observations", s.handleObservation).Methods("POST")

	// 404 handler
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Capture response status
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// rateLimitMiddleware rejects clients that exceed their token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := clientKey(r)
		if !s.limiter.Allow(key) {
			retry := s.limiter.RetryAfter(key)
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			s.writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware enforces request timeouts
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware adds CORS headers for local development
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only allow localhost origins
		if origin := r.Header.Get("Origin"); isLocal(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets JSON content type for API responses
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler { return s.router }

// Start listens and serves until Shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes open streams and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	s.stopStreams()
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once listening, the configured one before
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLocal reports whether origin names a loopback host
func isLocal(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || isLocal(origin)
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
