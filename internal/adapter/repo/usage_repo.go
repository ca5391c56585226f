package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mediatools/internal/domain"
	"mediatools/internal/infra"
	"mediatools/internal/sqlinline"
)

// UsageRepositoryPG keeps one row per user and day in usage_daily.
type UsageRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUsageRepository creates a new UsageRepositoryPG.
func NewUsageRepository(sql infra.SQLExecutor) *UsageRepositoryPG {
	return &UsageRepositoryPG{sql: sql}
}

// CurrentUsage returns today's completed jobs for the user.
func (r *UsageRepositoryPG) CurrentUsage(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectUsageDaily, userID).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select usage: %w", err)
	}
	return n, nil
}

// RecordUsage adds delta to today's row and returns the new total.
func (r *UsageRepositoryPG) RecordUsage(ctx context.Context, userID string, delta int) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QIncrementUsageDaily, userID, delta).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return n, nil
}

// UsageDay is one row of usage history.
type UsageDay struct {
	Day       time.Time `json:"day"`
	Downloads int       `json:"downloads"`
}

// History returns the most recent days of usage, newest first.
func (r *UsageRepositoryPG) History(ctx context.Context, userID string, days int) ([]UsageDay, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectUsageHistory, userID, days)
	if err != nil {
		return nil, fmt.Errorf("select usage history: %w", err)
	}
	defer rows.Close()
	var out []UsageDay
	for rows.Next() {
		var d UsageDay
		if err := rows.Scan(&d.Day, &d.Downloads); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ domain.UsageStore = (*UsageRepositoryPG)(nil)
