package domain

import (
	"context"
	"encoding/json"
	"time"
)

// JobRepository defines persistence for job entities. Mutations carry a
// precondition on the current status so concurrent workers cannot
// double-claim or rewrite a finished job.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// ClaimNext atomically moves the oldest queued job to processing and
	// returns it. It returns (nil, nil) when no job is queued.
	ClaimNext(ctx context.Context) (*Job, error)
	// Complete transitions processing -> done and sets the output. It
	// returns ErrNotFound for an unknown id and ErrInvalidState when the
	// job is not currently processing.
	Complete(ctx context.Context, jobID string, output json.RawMessage) error
	// Fail transitions processing -> error and records the message.
	Fail(ctx context.Context, jobID string, errMsg string) error
	// CancelQueued transitions queued -> cancelled. Jobs in any other
	// state return ErrInvalidState.
	CancelQueued(ctx context.Context, jobID string) error
	// RequeueStale flips jobs stuck in processing since before cutoff back
	// to queued and reports how many were recovered.
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)
}

// QuotaRepository defines persistence for the quota ledger. Increment and
// consume operations are atomic conditional updates so two concurrent
// recordings for the same user never double-spend.
type QuotaRepository interface {
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	UpsertSubscription(ctx context.Context, userID string, plan PlanType) error
	GetOrCreateUsage(ctx context.Context, userID, month string) (*UsageRecord, error)
	// IncrementUsageIfBelow bumps iterations_used by one only while it is
	// below limit. It returns the resulting count and whether the
	// increment was applied.
	IncrementUsageIfBelow(ctx context.Context, userID, month string, limit int) (int, bool, error)
	ActivePacks(ctx context.Context, userID, month string) ([]IterationPack, error)
	// ConsumeOldestPack takes one unit from the oldest active pack for the
	// month, marking it consumed when it hits zero. ErrNotFound means no
	// active pack had units left.
	ConsumeOldestPack(ctx context.Context, userID, month string) (*IterationPack, error)
	InsertPack(ctx context.Context, pack *IterationPack) error
	AddPurchasedIterations(ctx context.Context, userID, month string, n int) error
}
