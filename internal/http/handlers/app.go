package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"server/internal/domain"
	"server/internal/handoff"
	"server/internal/infra"
	"server/internal/quota"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Jobs       domain.JobRepository
	Quota      domain.QuotaRepository
	Ledger     *quota.Ledger
	Handoff    *handoff.Store
	HandoffTTL time.Duration
	Logger     infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}
