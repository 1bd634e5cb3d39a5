// Package quota implements the two-tier iteration allowance: a renewing
// monthly plan quota backed by a FIFO-ordered pool of prepaid packs.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
)

// Receipt reports the outcome of recording one iteration.
type Receipt struct {
	Accepted            bool
	LimitExceeded       bool
	IterationsUsed      int
	IterationsRemaining int
	PlanType            domain.PlanType
}

// Ledger gates and accounts for iterations consumed against the current
// calendar month. It holds no state of its own; every mutation is an atomic
// conditional update in the repository.
type Ledger struct {
	repo   domain.QuotaRepository
	logger infra.Logger
	now    func() time.Time
}

// NewLedger constructs a Ledger over the given repository.
func NewLedger(repo domain.QuotaRepository, logger infra.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger, now: time.Now}
}

// RecordIteration consumes one iteration for the user, preferring the plan
// allowance and falling back to the oldest active pack. Packs are drained
// oldest-first: they expire with the month, so older ones go first.
func (l *Ledger) RecordIteration(ctx context.Context, userID string) (*Receipt, error) {
	sub, err := l.repo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := sub.PlanType.MonthlyLimit()
	if limit <= 0 {
		return nil, fmt.Errorf("plan %q: %w", sub.PlanType, domain.ErrUnsupportedPlan)
	}

	month := domain.MonthKey(l.now())
	usage, err := l.repo.GetOrCreateUsage(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	packs, err := l.repo.ActivePacks(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	packTotal := 0
	for _, p := range packs {
		packTotal += p.IterationsRemaining
	}

	if usage.IterationsUsed < limit {
		used, ok, err := l.repo.IncrementUsageIfBelow(ctx, userID, month, limit)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.IterationsRecorded.WithLabelValues("plan").Inc()
			return &Receipt{
				Accepted:            true,
				IterationsUsed:      used,
				IterationsRemaining: limit - used + packTotal,
				PlanType:            sub.PlanType,
			}, nil
		}
		// A concurrent recording exhausted the plan allowance between the
		// read and the guarded increment; fall through to the pack tier.
		usage.IterationsUsed = used
	}

	if packTotal > 0 {
		pack, err := l.repo.ConsumeOldestPack(ctx, userID, month)
		if err == nil {
			l.logger.Debug().
				Str("user_id", userID).
				Str("pack_id", pack.ID).
				Int("remaining", pack.IterationsRemaining).
				Msg("ledger: consumed pack iteration")
			metrics.IterationsRecorded.WithLabelValues("pack").Inc()
			return &Receipt{
				Accepted:            true,
				IterationsUsed:      usage.IterationsUsed,
				IterationsRemaining: packTotal - 1,
				PlanType:            sub.PlanType,
			}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// Packs drained concurrently; rejected below.
	}

	metrics.IterationsRejected.Inc()
	return &Receipt{
		Accepted:       false,
		LimitExceeded:  true,
		IterationsUsed: usage.IterationsUsed,
		PlanType:       sub.PlanType,
	}, nil
}
