package domain

import "time"

// PlanType identifies a subscription tier.
type PlanType string

const (
	PlanFree PlanType = "free"
	PlanPro  PlanType = "pro"
)

// MonthlyLimit returns the plan's iteration allowance per calendar month.
// Unknown plans map to 0 so callers reject them explicitly.
func (p PlanType) MonthlyLimit() int {
	switch p {
	case PlanFree:
		return 10
	case PlanPro:
		return 40
	default:
		return 0
	}
}

// Subscription is the per-user plan selection. The core only reads it;
// ownership and mutation live in the billing surface.
type Subscription struct {
	UserID    string
	PlanType  PlanType
	CreatedAt time.Time
}

// UsageRecord counts plan allowance consumed by one user in one calendar
// month. IterationsUsed never exceeds the plan limit and is monotonically
// non-decreasing within the month.
type UsageRecord struct {
	UserID                   string
	Month                    string
	IterationsUsed           int
	ExtraIterationsPurchased int
}

// PackStatus enumerates iteration pack states.
type PackStatus string

const (
	PackStatusActive   PackStatus = "active"
	PackStatusConsumed PackStatus = "consumed"
)

// IterationPack is a prepaid overflow allowance scoped to one calendar month.
// Packs drain oldest-purchased-first; a pack becomes consumed exactly when
// IterationsRemaining reaches 0 and is immutable afterwards.
type IterationPack struct {
	ID                  string
	UserID              string
	ValidForMonth       string
	Iterations          int
	IterationsRemaining int
	Status              PackStatus
	PurchasedAt         time.Time
	ConsumedAt          *time.Time
}

// MonthKey formats t as the year-month key used by usage records and packs.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
