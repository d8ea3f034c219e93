// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/taskcache/internal/auth"
	"github.com/vyrodovalexey/taskcache/internal/config"
	"github.com/vyrodovalexey/taskcache/internal/handler"
	"github.com/vyrodovalexey/taskcache/internal/imagestore"
	"github.com/vyrodovalexey/taskcache/internal/middleware"
)

// Deps are the collaborators the server presents.
type Deps struct {
	Tasks handler.Tasks
	// Events streams task events on /ws. A hub is created when nil.
	Events *handler.EventHub
	// Authenticator protects the API. Nil disables authentication.
	Authenticator auth.Authenticator
	// Images enables task image uploads when set.
	Images imagestore.Store
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     *config.Config
	logger     *zap.Logger
	events     *handler.EventHub
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		logger: logger,
		events: deps.Events,
	}
	if s.events == nil {
		s.events = handler.NewEventHub(logger)
	}

	s.setupMiddleware(deps.Authenticator)
	s.setupRoutes(deps)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware(authenticator auth.Authenticator) {
	chain := []middleware.Middleware{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
	}

	if s.config.MetricsEnabled {
		chain = append(chain, middleware.Metrics())
	}

	chain = append(chain, middleware.Logging(s.logger))

	if authenticator != nil {
		chain = append(chain, middleware.Auth(authenticator, s.logger))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Chain(chain...)))

	// CORS wraps the router itself: mux skips route middleware when no
	// route matches the method, which is always the case for preflights.
	allowedOrigins := []string{"*"}
	allowedMethods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowedHeaders := []string{
		"Content-Type",
		"Authorization",
		auth.APIKeyHeader,
		middleware.RequestIDHeader,
	}

	s.handler = middleware.CORS(allowedOrigins, allowedMethods, allowedHeaders)(s.router)
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(deps Deps) {
	opts := []handler.RESTOption{handler.WithSourceKind(s.config.Kind())}
	if deps.Images != nil {
		opts = append(opts, handler.WithImageStore(deps.Images))
	}
	handler.NewRESTHandler(deps.Tasks, s.logger, opts...).RegisterRoutes(s.router)

	s.events.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.String("source", s.config.SourceKind),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown closes event streams and then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.events.CloseAllConnections()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Handler returns the full HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}
