package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type handoffPutRequest struct {
	State string `json:"state"`
	Token string `json:"token"`
}

// HandoffPut stores a one-time auth token under an opaque state value. The
// token expires after the configured TTL and can be consumed exactly once.
func (a *App) HandoffPut(w http.ResponseWriter, r *http.Request) {
	var req handoffPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "invalid JSON payload"})
		return
	}
	var missing []string
	if req.State == "" {
		missing = append(missing, "state")
	}
	if req.Token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "missing required fields", MissingFields: missing})
		return
	}

	err := a.Handoff.Put(r.Context(), req.State, req.Token, a.HandoffTTL)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]bool{"stored": true})
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "state already in use")
	default:
		a.Logger.Error().Err(err).Msg("handoff: failed to store token")
		a.error(w, http.StatusInternalServerError, "failed to store token")
	}
}

// HandoffConsume returns the token for a state value and invalidates it.
func (a *App) HandoffConsume(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	if state == "" {
		a.error(w, http.StatusBadRequest, "state required")
		return
	}
	token, err := a.Handoff.Consume(r.Context(), state)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]string{"token": token})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not found")
	default:
		a.Logger.Error().Err(err).Msg("handoff: failed to consume token")
		a.error(w, http.StatusInternalServerError, "failed to consume token")
	}
}
