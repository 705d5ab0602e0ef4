package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pressograph/prefsync"
	"github.com/pressograph/prefsync/cookie"
)

const maxBodyBytes = 4 << 10

// PreferenceResponse is the body returned by the single-preference endpoints.
type PreferenceResponse struct {
	Kind    string `json:"kind"`
	Value   string `json:"value"`
	Success *bool  `json:"success,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// SetPreferenceRequest is the body accepted by PUT /preferences/{kind}.
type SetPreferenceRequest struct {
	Value string `json:"value"`
}

func (s *Server) carrier(w http.ResponseWriter, r *http.Request) *cookie.Jar {
	return cookie.New(w, r, s.cookies)
}

// handleSnapshot returns the effective value of every kind.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	values := s.syncer.Snapshot(r.Context(), s.carrier(w, r), userID)
	s.respondWithJSON(w, r, http.StatusOK, map[string]any{
		"user_id":     userID,
		"preferences": values,
	})
}

// handleGetPreference returns the effective value of one kind.
func (s *Server) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	v, err := s.syncer.Get(r.Context(), s.carrier(w, r), kind, UserIDFromContext(r.Context()))
	if err != nil {
		s.handleSyncError(w, r, err)
		return
	}
	s.respondWithJSON(w, r, http.StatusOK, PreferenceResponse{Kind: kind, Value: v})
}

// handleSetPreference stores a new value. A partial tier failure still
// answers 200 with success=false: the cookie already carries the value.
func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	k, ok := s.syncer.Kind(kind)
	if !ok {
		s.handleSyncError(w, r, fmt.Errorf("%w: %q", prefsync.ErrUnknownKind, kind))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req SetPreferenceRequest
	if err := decoder.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondWithError(w, r, http.StatusRequestEntityTooLarge, "Request body too large", err)
			return
		}
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	res, err := s.syncer.Set(r.Context(), s.carrier(w, r), kind, req.Value, UserIDFromContext(r.Context()))
	if err != nil {
		s.handleSyncError(w, r, err)
		return
	}

	canonical, _ := k.Valid(req.Value)
	resp := PreferenceResponse{Kind: kind, Value: canonical, Success: &res.Success}
	if !res.Success {
		resp.Warning = "saved for this session; sync to other devices is delayed"
		s.logger.Warn("preference saved with degraded tiers", "kind", kind, "error", res.Err)
	}
	s.respondWithJSON(w, r, http.StatusOK, resp)
}

// handleClearPreference removes the value from every tier and returns the default.
func (s *Server) handleClearPreference(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if err := s.syncer.Clear(r.Context(), s.carrier(w, r), kind, UserIDFromContext(r.Context())); err != nil {
		s.handleSyncError(w, r, err)
		return
	}
	k, _ := s.syncer.Kind(kind)
	success := true
	s.respondWithJSON(w, r, http.StatusOK, PreferenceResponse{Kind: kind, Value: k.Default, Success: &success})
}

func (s *Server) handleSyncError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, prefsync.ErrUnknownKind):
		s.respondWithError(w, r, http.StatusNotFound, "Preference kind not found", err)
	case errors.Is(err, prefsync.ErrInvalidValue), errors.Is(err, prefsync.ErrInvalidInput), errors.Is(err, prefsync.ErrInvalidKind):
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid preference value", err)
	case errors.Is(err, prefsync.ErrCarrierUnavailable):
		s.respondWithError(w, r, http.StatusServiceUnavailable, "Preference could not be saved", err)
	default:
		s.respondWithError(w, r, http.StatusInternalServerError, "Failed to process preference", err)
	}
}
