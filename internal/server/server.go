// Package server provides the HTTP server for formcoach.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ayusman/formcoach/internal/coach"
	"github.com/ayusman/formcoach/internal/exercise"
	"github.com/ayusman/formcoach/internal/overlay"
	"github.com/ayusman/formcoach/internal/server/api"
	"github.com/ayusman/formcoach/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Coach     *coach.Coach
	Store     *store.Store
	Registry  exercise.Registry
	// Frames is the annotated camera feed served at /api/stream.
	Frames *overlay.Broadcaster
	// Live receives coaching updates for WebSocket clients. When nil and a
	// Coach is set, one is created.
	Live *LiveHandler
	// Gatherer exposes Prometheus metrics at /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server represents the HTTP server for the formcoach application.
type Server struct {
	config Config
	router *mux.Router
	logger *zap.Logger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Registry == nil && config.Coach != nil {
		config.Registry = config.Coach.Registry()
	}

	s := &Server{
		config: config,
		router: mux.NewRouter(),
		logger: config.Logger,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	api.NewExerciseHandler(s.config.Registry).Register(s.router)

	if s.config.Coach != nil {
		api.NewSessionHandler(s.config.Coach, s.config.Store, s.logger).Register(s.router)

		if s.config.Live == nil {
			s.config.Live = NewLiveHandler(s.config.Coach, s.logger)
		}
		s.router.Handle("/api/live", s.config.Live).Methods(http.MethodGet)
	}

	if s.config.Frames != nil {
		s.router.Handle("/api/stream", NewStreamHandler(s.config.Frames)).Methods(http.MethodGet)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Live returns the WebSocket handler, or nil when no Coach is configured.
func (s *Server) Live() *LiveHandler {
	return s.config.Live
}

// logRequests does not wrap the ResponseWriter so that streaming and
// WebSocket handlers keep their Flusher and Hijacker.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
		"stream": s.config.Frames != nil,
	}
	if s.config.Coach != nil {
		if sess, ok := s.config.Coach.Active(); ok {
			response["exercise"] = sess.Exercise()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// HTTPServer wraps the router in an http.Server with the given timeouts.
// WriteTimeout does not apply to /api/stream and /api/live, whose handlers
// clear their own deadlines.
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout, idleTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
