package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type recordIterationRequest struct {
	UserID string `json:"user_id"`
}

type recordIterationResponse struct {
	Success             bool   `json:"success"`
	IterationsUsed      int    `json:"iterations_used"`
	IterationsRemaining int    `json:"iterations_remaining"`
	PlanType            string `json:"plan_type"`
	LimitExceeded       bool   `json:"limit_exceeded"`
}

// RecordIteration decrements the user's allowance by one iteration. Quota
// exhaustion is an expected outcome, not a fault: it maps to 403 with a
// distinct flag.
func (a *App) RecordIteration(w http.ResponseWriter, r *http.Request) {
	var req recordIterationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "invalid JSON payload"})
		return
	}
	if req.UserID == "" {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "missing required fields", MissingFields: []string{"user_id"}})
		return
	}

	receipt, err := a.Ledger.RecordIteration(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusNotFound, map[string]any{"success": false, "error": "subscription not found"})
			return
		}
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("usage: record iteration failed")
		a.json(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to record iteration"})
		return
	}

	resp := recordIterationResponse{
		Success:             receipt.Accepted,
		IterationsUsed:      receipt.IterationsUsed,
		IterationsRemaining: receipt.IterationsRemaining,
		PlanType:            string(receipt.PlanType),
		LimitExceeded:       receipt.LimitExceeded,
	}
	if !receipt.Accepted {
		a.json(w, http.StatusForbidden, resp)
		return
	}
	a.json(w, http.StatusOK, resp)
}

type usageSummaryResponse struct {
	UserID              string        `json:"user_id"`
	Month               string        `json:"month"`
	PlanType            string        `json:"plan_type"`
	Limit               int           `json:"limit"`
	IterationsUsed      int           `json:"iterations_used"`
	IterationsRemaining int           `json:"iterations_remaining"`
	Packs               []packSummary `json:"packs"`
}

type packSummary struct {
	ID                  string `json:"id"`
	IterationsRemaining int    `json:"iterations_remaining"`
	PurchasedAt         string `json:"purchased_at"`
}

// UsageSummary reports the current month's allowance position for a user.
func (a *App) UsageSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		a.error(w, http.StatusBadRequest, "user_id required")
		return
	}

	sub, err := a.Quota.GetSubscription(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "subscription not found")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("usage: failed to load subscription")
		a.error(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	month := domain.MonthKey(time.Now())
	usage, err := a.Quota.GetOrCreateUsage(r.Context(), userID, month)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("usage: failed to load usage record")
		a.error(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	packs, err := a.Quota.ActivePacks(r.Context(), userID, month)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("usage: failed to load packs")
		a.error(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	limit := sub.PlanType.MonthlyLimit()
	packTotal := 0
	summaries := make([]packSummary, 0, len(packs))
	for _, p := range packs {
		packTotal += p.IterationsRemaining
		summaries = append(summaries, packSummary{
			ID:                  p.ID,
			IterationsRemaining: p.IterationsRemaining,
			PurchasedAt:         p.PurchasedAt.UTC().Format(time.RFC3339),
		})
	}

	a.json(w, http.StatusOK, usageSummaryResponse{
		UserID:              userID,
		Month:               month,
		PlanType:            string(sub.PlanType),
		Limit:               limit,
		IterationsUsed:      usage.IterationsUsed,
		IterationsRemaining: limit - usage.IterationsUsed + packTotal,
		Packs:               summaries,
	})
}
