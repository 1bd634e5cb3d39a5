package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository over PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record with status queued.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, mode, input, status, model)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query, job.ID, job.Mode, job.Input, domain.JobStatusQueued, job.Model)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.Status = domain.JobStatusQueued
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, mode, input, status, output, COALESCE(error_message, ''), COALESCE(model, ''), created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Mode,
		&job.Input,
		&job.Status,
		&job.Output,
		&job.ErrorMessage,
		&job.Model,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ClaimNext moves the oldest queued job to processing and returns it.
// FOR UPDATE SKIP LOCKED guarantees at most one worker observes a given job
// as claimable even with concurrent consumers.
func (r *JobRepositoryPG) ClaimNext(ctx context.Context) (*domain.Job, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM jobs
    WHERE status = 'queued'
    ORDER BY created_at ASC, id ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE jobs
    SET status = 'processing', updated_at = now()
    WHERE id IN (SELECT id FROM next_job)
    RETURNING id, mode, input, status, COALESCE(model, ''), created_at, updated_at
)
SELECT * FROM claimed;
`
	row := r.pool.QueryRow(ctx, query)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Mode,
		&job.Input,
		&job.Status,
		&job.Model,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	// Ensure input bytes are not aliased to the driver's buffer.
	job.Input = append(json.RawMessage(nil), job.Input...)
	return &job, nil
}

// Complete transitions processing -> done and stores the output.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, output json.RawMessage) error {
	query := `
UPDATE jobs
SET status = 'done', output = $2, updated_at = now()
WHERE id = $1 AND status = 'processing'
RETURNING id;
`
	return r.conditionalUpdate(ctx, jobID, query, output)
}

// Fail transitions processing -> error and stores the message.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID string, errMsg string) error {
	query := `
UPDATE jobs
SET status = 'error', error_message = $2, updated_at = now()
WHERE id = $1 AND status = 'processing'
RETURNING id;
`
	return r.conditionalUpdate(ctx, jobID, query, errMsg)
}

// CancelQueued transitions queued -> cancelled. Jobs already claimed run to
// completion regardless.
func (r *JobRepositoryPG) CancelQueued(ctx context.Context, jobID string) error {
	query := `
UPDATE jobs
SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status = 'queued'
RETURNING id;
`
	return r.conditionalUpdate(ctx, jobID, query)
}

// RequeueStale recovers jobs left in processing past the cutoff, e.g. after a
// worker crash or a persistence failure mid-flight.
func (r *JobRepositoryPG) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
UPDATE jobs
SET status = 'queued', updated_at = now()
WHERE status = 'processing' AND updated_at < $1;
`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// conditionalUpdate runs a status-guarded update and maps a zero-row result to
// ErrNotFound or ErrInvalidState depending on whether the job exists.
func (r *JobRepositoryPG) conditionalUpdate(ctx context.Context, jobID, query string, args ...any) error {
	queryArgs := append([]any{jobID}, args...)
	var id string
	err := r.pool.QueryRow(ctx, query, queryArgs...).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var status domain.JobStatus
	err = r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s is %s: %w", jobID, status, domain.ErrInvalidState)
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
