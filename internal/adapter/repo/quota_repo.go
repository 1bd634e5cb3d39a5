package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// QuotaRepositoryPG implements domain.QuotaRepository over PostgreSQL.
type QuotaRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository creates a new quota repository backed by PostgreSQL.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepositoryPG {
	return &QuotaRepositoryPG{pool: pool}
}

// GetSubscription loads the plan selection for a user.
func (r *QuotaRepositoryPG) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
SELECT user_id, plan_type, created_at
FROM subscriptions
WHERE user_id = $1;
`
	var sub domain.Subscription
	err := r.pool.QueryRow(ctx, query, userID).Scan(&sub.UserID, &sub.PlanType, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// UpsertSubscription sets or replaces the plan for a user.
func (r *QuotaRepositoryPG) UpsertSubscription(ctx context.Context, userID string, plan domain.PlanType) error {
	query := `
INSERT INTO subscriptions (user_id, plan_type)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET plan_type = EXCLUDED.plan_type;
`
	if _, err := r.pool.Exec(ctx, query, userID, plan); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetOrCreateUsage fetches the month's usage record, creating a zeroed one on
// first use.
func (r *QuotaRepositoryPG) GetOrCreateUsage(ctx context.Context, userID, month string) (*domain.UsageRecord, error) {
	insert := `
INSERT INTO usage_records (user_id, month)
VALUES ($1, $2)
ON CONFLICT (user_id, month) DO NOTHING;
`
	if _, err := r.pool.Exec(ctx, insert, userID, month); err != nil {
		return nil, fmt.Errorf("create usage record: %w", err)
	}
	query := `
SELECT user_id, month, iterations_used, extra_iterations_purchased
FROM usage_records
WHERE user_id = $1 AND month = $2;
`
	var rec domain.UsageRecord
	err := r.pool.QueryRow(ctx, query, userID, month).Scan(
		&rec.UserID,
		&rec.Month,
		&rec.IterationsUsed,
		&rec.ExtraIterationsPurchased,
	)
	if err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	return &rec, nil
}

// IncrementUsageIfBelow bumps iterations_used only while below limit. The
// guard lives in the statement itself so two concurrent recordings for the
// same user cannot both read a stale counter and double-increment.
func (r *QuotaRepositoryPG) IncrementUsageIfBelow(ctx context.Context, userID, month string, limit int) (int, bool, error) {
	update := `
UPDATE usage_records
SET iterations_used = iterations_used + 1
WHERE user_id = $1 AND month = $2 AND iterations_used < $3
RETURNING iterations_used;
`
	var used int
	err := r.pool.QueryRow(ctx, update, userID, month, limit).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("increment usage: %w", err)
	}
	current := `
SELECT iterations_used FROM usage_records WHERE user_id = $1 AND month = $2;
`
	if err := r.pool.QueryRow(ctx, current, userID, month).Scan(&used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, domain.ErrNotFound
		}
		return 0, false, fmt.Errorf("read usage: %w", err)
	}
	return used, false, nil
}

// ActivePacks lists the user's active packs for the month, oldest first.
func (r *QuotaRepositoryPG) ActivePacks(ctx context.Context, userID, month string) ([]domain.IterationPack, error) {
	query := `
SELECT id, user_id, valid_for_month, iterations, iterations_remaining, status, purchased_at, consumed_at
FROM iteration_packs
WHERE user_id = $1 AND valid_for_month = $2 AND status = 'active'
ORDER BY purchased_at ASC, id ASC;
`
	rows, err := r.pool.Query(ctx, query, userID, month)
	if err != nil {
		return nil, fmt.Errorf("list active packs: %w", err)
	}
	defer rows.Close()

	var packs []domain.IterationPack
	for rows.Next() {
		var p domain.IterationPack
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.ValidForMonth,
			&p.Iterations,
			&p.IterationsRemaining,
			&p.Status,
			&p.PurchasedAt,
			&p.ConsumedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pack: %w", err)
		}
		packs = append(packs, p)
	}
	return packs, rows.Err()
}

// ConsumeOldestPack decrements the oldest active pack for the month in a
// single statement, flipping it to consumed when it reaches zero. ErrNotFound
// means no pack had units left.
func (r *QuotaRepositoryPG) ConsumeOldestPack(ctx context.Context, userID, month string) (*domain.IterationPack, error) {
	query := `
WITH oldest AS (
    SELECT id
    FROM iteration_packs
    WHERE user_id = $1 AND valid_for_month = $2 AND status = 'active' AND iterations_remaining > 0
    ORDER BY purchased_at ASC, id ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
updated AS (
    UPDATE iteration_packs
    SET iterations_remaining = iterations_remaining - 1,
        status = CASE WHEN iterations_remaining - 1 = 0 THEN 'consumed' ELSE 'active' END,
        consumed_at = CASE WHEN iterations_remaining - 1 = 0 THEN now() ELSE consumed_at END
    WHERE id IN (SELECT id FROM oldest)
    RETURNING id, user_id, valid_for_month, iterations, iterations_remaining, status, purchased_at, consumed_at
)
SELECT * FROM updated;
`
	row := r.pool.QueryRow(ctx, query, userID, month)
	var p domain.IterationPack
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ValidForMonth,
		&p.Iterations,
		&p.IterationsRemaining,
		&p.Status,
		&p.PurchasedAt,
		&p.ConsumedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume pack: %w", err)
	}
	return &p, nil
}

// InsertPack records a newly purchased pack.
func (r *QuotaRepositoryPG) InsertPack(ctx context.Context, pack *domain.IterationPack) error {
	query := `
INSERT INTO iteration_packs (id, user_id, valid_for_month, iterations, iterations_remaining, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING purchased_at;
`
	row := r.pool.QueryRow(ctx, query,
		pack.ID,
		pack.UserID,
		pack.ValidForMonth,
		pack.Iterations,
		pack.IterationsRemaining,
		pack.Status,
	)
	if err := row.Scan(&pack.PurchasedAt); err != nil {
		return fmt.Errorf("insert pack: %w", err)
	}
	return nil
}

// AddPurchasedIterations bumps the advisory purchase counter on the month's
// usage record.
func (r *QuotaRepositoryPG) AddPurchasedIterations(ctx context.Context, userID, month string, n int) error {
	query := `
UPDATE usage_records
SET extra_iterations_purchased = extra_iterations_purchased + $3
WHERE user_id = $1 AND month = $2;
`
	if _, err := r.pool.Exec(ctx, query, userID, month, n); err != nil {
		return fmt.Errorf("add purchased iterations: %w", err)
	}
	return nil
}

var _ domain.QuotaRepository = (*QuotaRepositoryPG)(nil)
