package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by the worker",
		},
		[]string{"mode"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by the worker",
		},
		[]string{"mode", "reason"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"mode"},
	)

	JobsRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_jobs_requeued_total",
			Help: "Total number of stale processing jobs requeued",
		},
	)

	IterationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_iterations_recorded_total",
			Help: "Total number of accepted iteration recordings by allowance source",
		},
		[]string{"source"},
	)

	IterationsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_iterations_rejected_total",
			Help: "Total number of iteration recordings rejected for exhausted quota",
		},
	)
)
