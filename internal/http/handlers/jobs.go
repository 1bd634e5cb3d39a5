package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
)

type createJobRequest struct {
	Mode  domain.JobMode  `json:"mode"`
	Input json.RawMessage `json:"input"`
	Model string          `json:"model,omitempty"`
}

type createJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type validationResponse struct {
	Error         string   `json:"error"`
	MissingFields []string `json:"missingFields,omitempty"`
}

// JobsCreate admits a new generation job. Admission never deduplicates: two
// identical requests yield two distinct jobs.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "invalid JSON payload"})
		return
	}

	var missing []string
	if req.Mode == "" {
		missing = append(missing, "mode")
	}
	if len(req.Input) == 0 {
		missing = append(missing, "input")
	}
	if len(missing) > 0 {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "missing required fields", MissingFields: missing})
		return
	}
	if !domain.ValidMode(req.Mode) {
		a.json(w, http.StatusBadRequest, validationResponse{Error: "unsupported mode"})
		return
	}
	if err := domain.ValidateJobInput(req.Mode, req.Input); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			a.json(w, http.StatusBadRequest, validationResponse{Error: verr.Error(), MissingFields: verr.MissingFields})
			return
		}
		a.json(w, http.StatusBadRequest, validationResponse{Error: err.Error()})
		return
	}

	job := &domain.Job{
		ID:    uuid.NewString(),
		Mode:  req.Mode,
		Input: req.Input,
		Model: req.Model,
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("jobs: failed to create job")
		a.error(w, http.StatusInternalServerError, "failed to queue job")
		return
	}
	a.json(w, http.StatusOK, createJobResponse{JobID: job.ID, Status: string(domain.JobStatusQueued)})
}

type jobStatusResponse struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// JobStatus reports a job's current lifecycle state. Output is present only
// once the job is done; the error message only when it failed.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "job_id required")
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: failed to load job")
		a.error(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	resp := jobStatusResponse{Status: string(job.Status)}
	if job.Status == domain.JobStatusDone {
		resp.Output = job.Output
	}
	if job.Status == domain.JobStatusError {
		resp.Error = job.ErrorMessage
	}
	a.json(w, http.StatusOK, resp)
}

// JobCancel cancels a queued-but-unclaimed job. A job already claimed runs to
// completion or failure; cancelling it returns a conflict.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "job_id required")
		return
	}
	err := a.Jobs.CancelQueued(r.Context(), jobID)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]string{"status": string(domain.JobStatusCancelled)})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "job is no longer queued")
	default:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: failed to cancel job")
		a.error(w, http.StatusInternalServerError, "failed to cancel job")
	}
}
