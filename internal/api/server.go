// Package api exposes the waitlist over HTTP: the public signup funnel,
// confirmation links, stats, the admin console and health probes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/waitlist-engine/internal/auth"
	"github.com/ignite/waitlist-engine/internal/config"
	"github.com/ignite/waitlist-engine/internal/metrics"
	"github.com/ignite/waitlist-engine/internal/service/waitlist"
)

// Deps are the collaborators the API serves. Auth and Metrics may be nil.
type Deps struct {
	Waitlist *waitlist.Service
	Auth     *auth.AuthManager
	Health   *HealthChecker
	Metrics  *metrics.Metrics
}

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server. devMode leaves the admin routes
// open when no AuthManager is configured.
func NewServer(cfg config.ServerConfig, deps Deps, devMode bool) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(cfg, deps, devMode),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
