package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListKinds returns every registered preference kind.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, r, http.StatusOK, s.syncer.Kinds())
}

// handleGetKind returns one preference kind.
func (s *Server) handleGetKind(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "kind")
	k, ok := s.syncer.Kind(name)
	if !ok {
		s.respondWithError(w, r, http.StatusNotFound, "Preference kind not found", nil)
		return
	}
	s.respondWithJSON(w, r, http.StatusOK, k)
}
