// Package api exposes a Syncer over HTTP. Preference cookies are the carrier;
// the caller's identity comes from an optional bearer token.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pressograph/prefsync"
	"github.com/pressograph/prefsync/cookie"
	"github.com/pressograph/prefsync/notify"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	syncer     *prefsync.Syncer
	logger     prefsync.Logger
	hub        *notify.Hub
	cookies    cookie.Config
	auth       *Authenticator
	limiter    *RateLimiter
	trustProxy bool
	router     *chi.Mux
	httpServer *http.Server

	// closing is closed when Stop begins so long-lived streams can end.
	closing     chan struct{}
	closingOnce sync.Once
}

// Config holds configuration for the API server.
type Config struct {
	ListenAddress string
	Syncer        *prefsync.Syncer
	Logger        prefsync.Logger
	// Hub, if set, backs the change stream endpoint. It should also be
	// registered as the Syncer's notifier.
	Hub *notify.Hub
	// Cookies configures the carrier written on every response.
	Cookies cookie.Config
	// Auth, if set, resolves bearer tokens to user IDs. Without it every
	// request is anonymous.
	Auth *Authenticator
	// WriteLimiter, if set, throttles PUT and DELETE per caller.
	WriteLimiter *RateLimiter
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers, since the
	// address keys the write limit for anonymous callers.
	TrustProxy bool
}

// NewServer creates and configures a new API server instance.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = prefsync.NewDefaultLogger()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}

	s := &Server{
		syncer:     cfg.Syncer,
		logger:     cfg.Logger,
		hub:        cfg.Hub,
		cookies:    cfg.Cookies,
		auth:       cfg.Auth,
		limiter:    cfg.WriteLimiter,
		trustProxy: cfg.TrustProxy,
		router:     chi.NewRouter(),
		closing:    make(chan struct{}),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.signalClosing)

	return s, nil
}

// Handler returns the routed handler, for tests and for embedding the API
// in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server is
// shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("could not start server: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("API server starting", "address", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) signalClosing() {
	s.closingOnce.Do(func() { close(s.closing) })
}

// Stop gracefully shuts down the HTTP server. Open change streams are
// ended so they do not hold the shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("API server stopping")
	s.signalClosing()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("API server stopped gracefully")
	return nil
}
