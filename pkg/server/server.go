// Package server exposes the routing engine over HTTP.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/gateway"
	"github.com/zen-systems/flowroute/pkg/orchestrator"
)

// QueryRouter runs one routed request.
type QueryRouter interface {
	RouteQuery(ctx context.Context, q orchestrator.Query) (*orchestrator.Response, error)
}

// Server serves the query API.
type Server struct {
	router    QueryRouter
	backends  *gateway.Registry
	caps      *capability.Registry
	jwtSecret []byte
	maxUpload int64
	origins   []string
	metrics   http.Handler
	logf      func(format string, args ...any)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(fn func(format string, args ...any)) Option {
	return func(s *Server) {
		if fn != nil {
			s.logf = fn
		}
	}
}

// WithJWTSecret enables HS256 bearer-token identity. Without a secret every
// caller is anonymous.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.jwtSecret = []byte(secret)
		}
	}
}

// WithMaxUploadBytes bounds the request body size for uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithAllowedOrigins restricts CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a server.
func New(router QueryRouter, backends *gateway.Registry, caps *capability.Registry, opts ...Option) *Server {
	s := &Server{
		router:    router,
		backends:  backends,
		caps:      caps,
		maxUpload: 10 * 1024 * 1024,
		origins:   []string{"*"},
		logf:      log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with routing, CORS and request IDs.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.identity)
	api.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	api.HandleFunc("/backends", s.handleBackends).Methods(http.MethodGet)
	api.HandleFunc("/tools", s.handleTools).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return c.Handler(r)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logf("[server] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logf("[server] shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
