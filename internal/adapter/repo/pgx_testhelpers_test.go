package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

type historyRows struct {
	testRowsBase
	days []UsageDay
	idx  int
}

func (r *historyRows) Close() {}

func (r *historyRows) Err() error { return nil }

func (r *historyRows) Next() bool {
	r.idx++
	return r.idx <= len(r.days)
}

func (r *historyRows) Scan(dest ...any) error {
	d := r.days[r.idx-1]
	*dest[0].(*time.Time) = d.Day
	*dest[1].(*int) = d.Downloads
	return nil
}

type call struct {
	query string
	args  []any
}

// fakeSQL answers by the marker on the first line of each query.
type fakeSQL struct {
	rows    map[string]func(args []any) simpleRow
	list    pgx.Rows
	execErr error
	calls   []call
}

func (f *fakeSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{query: query, args: args})
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{query: query, args: args})
	if fn, ok := f.rows[marker(query)]; ok {
		return fn(args)
	}
	return simpleRow{}
}

func (f *fakeSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{query: query, args: args})
	return f.list, nil
}

func marker(query string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(query), "\n")
	return first
}

func intRow(n int) func([]any) simpleRow {
	return func([]any) simpleRow {
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*int) = n
			return nil
		}}
	}
}

func errRow(err error) func([]any) simpleRow {
	return func([]any) simpleRow {
		return simpleRow{scan: func(...any) error { return err }}
	}
}
