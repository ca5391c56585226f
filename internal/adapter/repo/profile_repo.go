package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mediatools/internal/domain"
	"mediatools/internal/infra"
	"mediatools/internal/sqlinline"
)

// ProfileRepositoryPG reads plans and the lightweight per-profile download
// counter from the profiles table.
type ProfileRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewProfileRepository creates a new ProfileRepositoryPG.
func NewProfileRepository(sql infra.SQLExecutor) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{sql: sql}
}

// PlanForUser returns the stored plan or domain.ErrNotFound.
func (r *ProfileRepositoryPG) PlanForUser(ctx context.Context, userID string) (string, error) {
	var plan string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectProfilePlan, userID).Scan(&plan); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("select plan: %w", err)
	}
	return plan, nil
}

// SetPlan creates or updates the profile's plan.
func (r *ProfileRepositoryPG) SetPlan(ctx context.Context, userID, plan string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QUpsertProfilePlan, userID, plan); err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

// CurrentUsage returns today's counter. A counter from a previous day reads
// as zero.
func (r *ProfileRepositoryPG) CurrentUsage(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectProfileDownloads, userID).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select profile downloads: %w", err)
	}
	return n, nil
}

// RecordUsage bumps the counter, rolling it over on a new day.
func (r *ProfileRepositoryPG) RecordUsage(ctx context.Context, userID string, delta int) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QIncrementProfileDownloads, userID, delta).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment profile downloads: %w", err)
	}
	return n, nil
}

var (
	_ domain.UsageStore = (*ProfileRepositoryPG)(nil)
	_ domain.PlanStore  = (*ProfileRepositoryPG)(nil)
	_ domain.PlanWriter = (*ProfileRepositoryPG)(nil)
)
