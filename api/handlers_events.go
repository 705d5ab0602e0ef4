package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const keepAliveInterval = 25 * time.Second

// handleEvents streams the caller's preference changes as server-sent
// events so other open tabs and devices can update without polling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.respondWithError(w, r, http.StatusNotImplemented, "Change stream is not enabled", nil)
		return
	}
	userID := UserIDFromContext(r.Context())
	if userID == "" {
		s.respondWithError(w, r, http.StatusUnauthorized, "Change stream requires a signed-in user", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	changes, cancel := s.hub.Subscribe(userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case change, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(change)
			if err != nil {
				s.logger.Error("Failed to marshal change event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: preference\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
