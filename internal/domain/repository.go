package domain

import "context"

// UsageStore is a durable per-user daily usage counter.
type UsageStore interface {
	CurrentUsage(ctx context.Context, userID string) (int, error)
	RecordUsage(ctx context.Context, userID string, delta int) (int, error)
}

// PlanStore reads the stored plan for a user.
type PlanStore interface {
	PlanForUser(ctx context.Context, userID string) (string, error)
}

// PlanWriter assigns plans from admin tooling.
type PlanWriter interface {
	SetPlan(ctx context.Context, userID, plan string) error
}
