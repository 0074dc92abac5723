// Package server assembles the HTTP stack: chi router, request-scoped
// middleware, and lifecycle management for the listener.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	Router *chi.Mux
	logger *slog.Logger
	http   *http.Server
}

// New builds the router with the standard middleware chain. Handlers are
// mounted onto Router by the caller before Start. requestTimeout bounds
// every request's context; the synchronous build endpoint relies on it
// for its deadline.
func New(port int, requestTimeout time.Duration, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(requestTimeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "code-iq")
	})

	return &Server{
		Router: r,
		logger: logger,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		},
	}
}

// Start blocks serving until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
