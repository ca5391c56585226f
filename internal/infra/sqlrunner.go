package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is what the repositories need from the database.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrMissingMarker is returned for queries without a leading "--sql <uuid>" line.
var ErrMissingMarker = errors.New("sql marker missing or invalid")

// DefaultSlowQuery is the threshold above which statements are logged at warn.
const DefaultSlowQuery = 250 * time.Millisecond

var markerLine = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\s*$`)

// SQLRunner sends marker-tagged statements to postgres with the marker line
// stripped, and logs timing per marker instead of the statement text.
type SQLRunner struct {
	db            SQLExecutor
	logger        zerolog.Logger
	SlowThreshold time.Duration
}

// NewSQLRunner wraps pool.
func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return newSQLRunner(pool, logger)
}

func newSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{
		db:            db,
		logger:        logger.With().Str("component", "sql").Logger(),
		SlowThreshold: DefaultSlowQuery,
	}
}

// statement is one in-flight call, keyed by its marker.
type statement struct {
	runner *SQLRunner
	marker string
	op     string
	start  time.Time
}

func (r *SQLRunner) prepare(op, query string) (*statement, string, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		r.logger.Error().Err(err).Str("op", op).Msg("rejected unmarked statement")
		return nil, "", err
	}
	return &statement{runner: r, marker: marker, op: op, start: time.Now()}, body, nil
}

// finish logs the outcome once. rows is -1 when the count is unknown.
func (s *statement) finish(err error, rows int64) {
	elapsed := time.Since(s.start)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		ev = s.runner.logger.Error().Err(err)
	case s.runner.SlowThreshold > 0 && elapsed >= s.runner.SlowThreshold:
		ev = s.runner.logger.Warn().Bool("slow", true)
	default:
		ev = s.runner.logger.Debug()
	}
	ev = ev.Str("sql", s.marker).Str("op", s.op).Dur("duration", elapsed)
	if rows >= 0 {
		ev = ev.Int64("rows", rows)
	}
	ev.Msg("statement")
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	st, body, err := r.prepare("exec", query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := r.db.Exec(ctx, body, args...)
	st.finish(err, tag.RowsAffected())
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	st, body, err := r.prepare("query_row", query)
	if err != nil {
		return failedRow{err: err}
	}
	return &timedRow{Row: r.db.QueryRow(ctx, body, args...), st: st}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	st, body, err := r.prepare("query", query)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		st.finish(err, -1)
		return nil, err
	}
	return &timedRows{Rows: rows, st: st}, nil
}

// timedRow reports when the caller scans, which is when pgx runs the query.
type timedRow struct {
	pgx.Row
	st *statement
}

func (t *timedRow) Scan(dest ...any) error {
	err := t.Row.Scan(dest...)
	var n int64 = 1
	if err != nil {
		n = 0
	}
	t.st.finish(err, n)
	return err
}

// timedRows reports on Close with the number of rows read.
type timedRows struct {
	pgx.Rows
	st     *statement
	read   int64
	closed bool
}

func (t *timedRows) Next() bool {
	ok := t.Rows.Next()
	if ok {
		t.read++
	}
	return ok
}

func (t *timedRows) Close() {
	t.Rows.Close()
	if t.closed {
		return
	}
	t.closed = true
	t.st.finish(t.Rows.Err(), t.read)
}

type failedRow struct{ err error }

func (f failedRow) Scan(...any) error { return f.err }

// extractMarker splits the marker uuid from the statement body. Blank lines
// before the marker are allowed.
func extractMarker(query string) (marker, body string, err error) {
	first, rest, _ := strings.Cut(strings.TrimLeft(query, " \t\r\n"), "\n")
	m := markerLine.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return "", "", ErrMissingMarker
	}
	body = strings.TrimSpace(rest)
	if body == "" {
		return "", "", errors.New("sql statement body is empty")
	}
	return m[1], body, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
