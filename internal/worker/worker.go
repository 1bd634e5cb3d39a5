// Package worker implements the single sequential consumer of the job queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
	"server/internal/providers/genai"
)

// maxAttempts bounds the local retry of one generation call.
const maxAttempts = 2

// Generator is the external generation collaborator. The worker treats it as
// an opaque function from job input to structured output or error.
type Generator interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (json.RawMessage, error)
}

// Config tunes the loop's suspension points.
type Config struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	RetryBase    time.Duration
	StaleAfter   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	return c
}

// Worker claims queued jobs one at a time, runs the generation call with a
// bounded retry and writes the outcome back. Errors never crash the loop;
// they are recorded on the job and followed by a back-off.
type Worker struct {
	jobs   domain.JobRepository
	gen    Generator
	logger infra.Logger
	cfg    Config

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

// New constructs a Worker.
func New(jobs domain.JobRepository, gen Generator, logger infra.Logger, cfg Config) *Worker {
	return &Worker{
		jobs:   jobs,
		gen:    gen,
		logger: logger,
		cfg:    cfg.withDefaults(),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Dur("stale_after", w.cfg.StaleAfter).
		Msg("worker: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w.recoverStale(ctx)

		job, err := w.jobs.ClaimNext(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: failed to claim job")
			w.sleep(ctx, w.cfg.ErrorBackoff)
			continue
		}
		if job == nil {
			w.sleep(ctx, w.cfg.PollInterval)
			continue
		}

		w.process(ctx, job)
	}
}

// recoverStale requeues jobs stuck in processing past the staleness
// threshold, e.g. after a crash between claim and completion.
func (w *Worker) recoverStale(ctx context.Context) {
	cutoff := w.now().Add(-w.cfg.StaleAfter)
	n, err := w.jobs.RequeueStale(ctx, cutoff)
	if err != nil {
		w.logger.Error().Err(err).Msg("worker: stale job sweep failed")
		return
	}
	if n > 0 {
		metrics.JobsRequeued.Add(float64(n))
		w.logger.Warn().Int("count", n).Msg("worker: requeued stale processing jobs")
	}
}

func (w *Worker) process(ctx context.Context, job *domain.Job) {
	w.logger.Info().Str("job_id", job.ID).Str("mode", string(job.Mode)).Msg("worker: picked job")
	started := w.now()

	output, err := w.generate(ctx, job)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: job failed")
		metrics.JobsFailed.WithLabelValues(string(job.Mode), failureReason(err)).Inc()
		if failErr := w.jobs.Fail(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error().Err(failErr).Str("job_id", job.ID).Msg("worker: record failure failed")
		}
		w.sleep(ctx, w.cfg.ErrorBackoff)
		return
	}

	if err := w.jobs.Complete(ctx, job.ID, output); err != nil {
		// The job stays in processing; the stale sweep reconciles it.
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: record completion failed")
		w.sleep(ctx, w.cfg.ErrorBackoff)
		return
	}
	metrics.JobsCompleted.WithLabelValues(string(job.Mode)).Inc()
	metrics.JobDuration.WithLabelValues(string(job.Mode)).Observe(w.now().Sub(started).Seconds())
	w.logger.Info().Str("job_id", job.ID).Msg("worker: job done")
}

// generate runs the provider call with the bounded retry policy: permanent
// rejections fail immediately, transient failures back off exponentially and
// invalid output is re-issued once with the validation failure appended.
func (w *Worker) generate(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	if !domain.ValidMode(job.Mode) {
		return nil, fmt.Errorf("unsupported job mode %q", job.Mode)
	}

	req := genai.GenerateRequest{
		Mode:      job.Mode,
		Input:     job.Input,
		Model:     job.Model,
		RequestID: job.ID,
	}

	delay := w.cfg.RetryBase
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := w.gen.Generate(ctx, req)
		if err != nil {
			var perr *genai.ProviderError
			if errors.As(err, &perr) && !perr.Transient() {
				return nil, fmt.Errorf("provider rejected request: %w", err)
			}
			lastErr = fmt.Errorf("generation call: %w", err)
			if attempt < maxAttempts {
				w.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt).Msg("worker: transient provider failure, retrying")
				w.sleep(ctx, delay)
				delay *= 2
			}
			continue
		}

		if verr := ValidateDesignOutput(job.Mode, output); verr != nil {
			lastErr = fmt.Errorf("parse provider output: %w", verr)
			req.Feedback = verr.Error()
			if attempt < maxAttempts {
				w.logger.Warn().Err(verr).Str("job_id", job.ID).Int("attempt", attempt).Msg("worker: invalid provider output, retrying with feedback")
			}
			continue
		}
		return output, nil
	}
	return nil, lastErr
}

func failureReason(err error) string {
	var perr *genai.ProviderError
	switch {
	case errors.As(err, &perr) && perr.Transient():
		return "provider_transient"
	case errors.As(err, &perr):
		return "provider_permanent"
	case errors.As(err, new(*OutputValidationError)):
		return "parse"
	default:
		return "other"
	}
}
