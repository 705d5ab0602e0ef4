package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	if s.trustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})

		r.Route("/kinds", func(r chi.Router) {
			r.Get("/", s.handleListKinds)     // GET /api/v1/kinds
			r.Get("/{kind}", s.handleGetKind) // GET /api/v1/kinds/{kind}
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Use(IdentityMiddleware(s.auth, s.logger))

			r.Get("/", s.handleSnapshot)     // GET /api/v1/preferences
			r.Get("/events", s.handleEvents) // GET /api/v1/preferences/events
			r.Get("/{kind}", s.handleGetPreference)

			r.Group(func(r chi.Router) {
				r.Use(RateLimitMiddleware(s.limiter))
				r.Put("/{kind}", s.handleSetPreference)
				r.Delete("/{kind}", s.handleClearPreference)
			})
		})
	})
}
