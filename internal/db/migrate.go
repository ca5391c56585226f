// Package db owns the relational schema behind the durable plan and usage
// stores.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// Statements create the schema. Each one is idempotent so Migrate can run
// on every deploy.
var Statements = []string{
	`create table if not exists profiles (
    id              text primary key,
    plan            text not null default 'free',
    downloads_today integer not null default 0,
    downloads_day   date not null default current_date,
    created_at      timestamptz not null default now(),
    updated_at      timestamptz not null default now()
)`,
	`create table if not exists usage_daily (
    user_id    text not null,
    day        date not null,
    downloads  integer not null default 0,
    updated_at timestamptz not null default now(),
    primary key (user_id, day)
)`,
	`create index if not exists usage_daily_day_idx on usage_daily (day)`,
}

// Migrate applies Statements in one transaction using the lib/pq driver.
func Migrate(ctx context.Context, dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("database url is required")
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	return apply(ctx, conn, Statements)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func apply(ctx context.Context, conn txBeginner, stmts []string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
