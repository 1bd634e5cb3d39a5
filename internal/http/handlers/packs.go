package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

const defaultPackIterations = 20

type purchasePackRequest struct {
	UserID     string `json:"user_id"`
	Iterations int    `json:"iterations,omitempty"`
}

type purchasePackResponse struct {
	PackID              string `json:"pack_id"`
	ValidForMonth       string `json:"valid_for_month"`
	IterationsRemaining int    `json:"iterations_remaining"`
}

// PacksPurchase creates a prepaid pack valid for the current calendar month.
func (a *App) PacksPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchasePackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "invalid JSON payload"})
		return
	}
	if req.UserID == "" {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "missing required fields", MissingFields: []string{"user_id"}})
		return
	}
	if req.Iterations < 0 {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "iterations must be positive"})
		return
	}
	iterations := req.Iterations
	if iterations == 0 {
		iterations = defaultPackIterations
	}

	if _, err := a.Quota.GetSubscription(r.Context(), req.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "subscription not found")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("packs: failed to load subscription")
		a.error(w, http.StatusInternalServerError, "failed to purchase pack")
		return
	}

	month := domain.MonthKey(time.Now())
	pack := &domain.IterationPack{
		ID:                  uuid.NewString(),
		UserID:              req.UserID,
		ValidForMonth:       month,
		Iterations:          iterations,
		IterationsRemaining: iterations,
		Status:              domain.PackStatusActive,
	}
	if err := a.Quota.InsertPack(r.Context(), pack); err != nil {
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("packs: failed to insert pack")
		a.error(w, http.StatusInternalServerError, "failed to purchase pack")
		return
	}
	if _, err := a.Quota.GetOrCreateUsage(r.Context(), req.UserID, month); err == nil {
		if err := a.Quota.AddPurchasedIterations(r.Context(), req.UserID, month, iterations); err != nil {
			// Advisory counter only; the pack itself is already durable.
			a.Logger.Warn().Err(err).Str("user_id", req.UserID).Msg("packs: failed to bump purchase counter")
		}
	}

	a.json(w, http.StatusOK, purchasePackResponse{
		PackID:              pack.ID,
		ValidForMonth:       pack.ValidForMonth,
		IterationsRemaining: pack.IterationsRemaining,
	})
}
