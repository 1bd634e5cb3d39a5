package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server/internal/domain"
)

// memJobRepo is a minimal in-memory JobRepository for handler tests.
type memJobRepo struct {
	jobs map[string]*domain.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*domain.Job{}}
}

func (m *memJobRepo) Create(_ context.Context, job *domain.Job) error {
	job.Status = domain.JobStatusQueued
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobRepo) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (m *memJobRepo) ClaimNext(_ context.Context) (*domain.Job, error) { return nil, nil }

func (m *memJobRepo) Complete(_ context.Context, jobID string, output json.RawMessage) error {
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusDone
	job.Output = output
	return nil
}

func (m *memJobRepo) Fail(_ context.Context, jobID string, errMsg string) error {
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusError
	job.ErrorMessage = errMsg
	return nil
}

func (m *memJobRepo) CancelQueued(_ context.Context, jobID string) error {
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusQueued {
		return domain.ErrInvalidState
	}
	job.Status = domain.JobStatusCancelled
	return nil
}

func (m *memJobRepo) RequeueStale(_ context.Context, _ time.Time) (int, error) { return 0, nil }

var _ domain.JobRepository = (*memJobRepo)(nil)

func newJobsApp(repo domain.JobRepository) *App {
	return &App{Jobs: repo, Logger: zerolog.Nop()}
}

func doRequest(t *testing.T, handler http.HandlerFunc, method, target, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestJobsCreateQueued(t *testing.T) {
	repo := newMemJobRepo()
	app := newJobsApp(repo)

	body := `{"mode":"generate","input":{"prompt":"landing page","design_system":{"colors":[]}}}`
	rec := doRequest(t, app.JobsCreate, http.MethodPost, "/jobs", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "queued", resp.Status)

	job, err := repo.GetByID(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
}

func TestJobsCreateNoDeduplication(t *testing.T) {
	repo := newMemJobRepo()
	app := newJobsApp(repo)
	body := `{"mode":"generate","input":{"prompt":"same","design_system":{}}}`

	rec1 := doRequest(t, app.JobsCreate, http.MethodPost, "/jobs", body, nil)
	rec2 := doRequest(t, app.JobsCreate, http.MethodPost, "/jobs", body, nil)
	require.Equal(t, http.StatusOK, rec1.Code)
	require.Equal(t, http.StatusOK, rec2.Code)

	var r1, r2 createJobResponse
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &r1))
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &r2))
	assert.NotEqual(t, r1.JobID, r2.JobID)
}

func TestJobsCreateMissingFields(t *testing.T) {
	app := newJobsApp(newMemJobRepo())

	cases := []struct {
		name    string
		body    string
		missing []string
	}{
		{"no mode or input", `{}`, []string{"mode", "input"}},
		{"iterate without image", `{"mode":"iterate","input":{"prompt":"x","design_system":{},"current_design":{}}}`, []string{"image"}},
		{"generate without design system", `{"mode":"generate","input":{"prompt":"x"}}`, []string{"design_system"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, app.JobsCreate, http.MethodPost, "/jobs", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp validationResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.missing, resp.MissingFields)
		})
	}
}

func TestJobsCreateUnsupportedMode(t *testing.T) {
	app := newJobsApp(newMemJobRepo())
	rec := doRequest(t, app.JobsCreate, http.MethodPost, "/jobs", `{"mode":"transmogrify","input":{"prompt":"x"}}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported mode")
}

func TestJobStatusLifecycleFields(t *testing.T) {
	repo := newMemJobRepo()
	app := newJobsApp(repo)

	job := &domain.Job{ID: "j1", Mode: domain.JobModeGenerate, Input: json.RawMessage(`{}`)}
	require.NoError(t, repo.Create(context.Background(), job))

	rec := doRequest(t, app.JobStatus, http.MethodGet, "/jobs/j1", "", map[string]string{"job_id": "j1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp jobStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Nil(t, resp.Output)
	assert.Empty(t, resp.Error)

	require.NoError(t, repo.Complete(context.Background(), "j1", json.RawMessage(`{"root":{"elements":[]}}`)))
	rec = doRequest(t, app.JobStatus, http.MethodGet, "/jobs/j1", "", map[string]string{"job_id": "j1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "done", resp.Status)
	assert.JSONEq(t, `{"root":{"elements":[]}}`, string(resp.Output))
}

func TestJobStatusNotFound(t *testing.T) {
	app := newJobsApp(newMemJobRepo())
	rec := doRequest(t, app.JobStatus, http.MethodGet, "/jobs/ghost", "", map[string]string{"job_id": "ghost"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestJobCancel(t *testing.T) {
	repo := newMemJobRepo()
	app := newJobsApp(repo)
	job := &domain.Job{ID: "j1", Mode: domain.JobModeGenerate, Input: json.RawMessage(`{}`)}
	require.NoError(t, repo.Create(context.Background(), job))

	rec := doRequest(t, app.JobCancel, http.MethodPost, "/jobs/j1/cancel", "", map[string]string{"job_id": "j1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Already cancelled: no longer queued.
	rec = doRequest(t, app.JobCancel, http.MethodPost, "/jobs/j1/cancel", "", map[string]string{"job_id": "j1"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, app.JobCancel, http.MethodPost, "/jobs/ghost/cancel", "", map[string]string{"job_id": "ghost"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
