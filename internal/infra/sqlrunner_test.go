package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const testMarker = "472bea1d-7cf0-4c1b-8f68-ffdf161c7fc6"

type fakeDB struct {
	queries []string
	delay   time.Duration
	execErr error
	rows    int
}

func (f *fakeDB) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, query)
	time.Sleep(f.delay)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("UPDATE 3"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	f.queries = append(f.queries, query)
	return fakeRow{}
}

func (f *fakeDB) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, query)
	return &fakeRows{left: f.rows}, nil
}

type fakeRow struct{}

func (fakeRow) Scan(...any) error { return pgx.ErrNoRows }

type fakeRows struct {
	pgx.Rows
	left int
}

func (f *fakeRows) Next() bool {
	if f.left == 0 {
		return false
	}
	f.left--
	return true
}

func (f *fakeRows) Close()     {}
func (f *fakeRows) Err() error { return nil }

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestExtractMarker(t *testing.T) {
	query := "\n  --sql " + testMarker + "\nselect 1;\n"
	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker: %v", err)
	}
	if marker != testMarker || body != "select 1;" {
		t.Fatalf("marker=%q body=%q", marker, body)
	}

	for _, bad := range []string{"", "select 1;", "--sql not-a-uuid\nselect 1;", "--sql " + testMarker} {
		if _, _, err := extractMarker(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if _, _, err := extractMarker("select 1;"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("err = %v, want ErrMissingMarker", err)
	}
}

func TestSQLRunnerStripsMarkerAndLogsRows(t *testing.T) {
	var buf bytes.Buffer
	db := &fakeDB{rows: 2}
	r := newSQLRunner(db, zerolog.New(&buf).Level(zerolog.DebugLevel))

	tag, err := r.Exec(context.Background(), "--sql "+testMarker+"\nupdate t set x = 1")
	if err != nil || tag.RowsAffected() != 3 {
		t.Fatalf("Exec tag=%v err=%v", tag, err)
	}
	rows, err := r.Query(context.Background(), "--sql "+testMarker+"\nselect x from t")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for rows.Next() {
	}
	rows.Close()
	rows.Close()

	if db.queries[0] != "update t set x = 1" || db.queries[1] != "select x from t" {
		t.Fatalf("queries = %q", db.queries)
	}
	lines := decodeLogLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("log lines = %v", lines)
	}
	if lines[0]["op"] != "exec" || lines[0]["rows"] != float64(3) || lines[0]["sql"] != testMarker {
		t.Fatalf("exec log = %v", lines[0])
	}
	if lines[1]["op"] != "query" || lines[1]["rows"] != float64(2) {
		t.Fatalf("query log = %v", lines[1])
	}
	if _, ok := lines[0]["duration"]; !ok {
		t.Fatalf("missing duration: %v", lines[0])
	}
}

func TestSQLRunnerRejectsUnmarkedQuery(t *testing.T) {
	db := &fakeDB{}
	r := newSQLRunner(db, zerolog.Nop())
	if _, err := r.Exec(context.Background(), "delete from t"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Exec err = %v", err)
	}
	var x int
	if err := r.QueryRow(context.Background(), "select 1").Scan(&x); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("QueryRow err = %v", err)
	}
	if len(db.queries) != 0 {
		t.Fatalf("unmarked statement reached the database: %q", db.queries)
	}
}

func TestSQLRunnerLevels(t *testing.T) {
	tests := []struct {
		name  string
		db    *fakeDB
		slow  time.Duration
		level string
	}{
		{name: "fast", db: &fakeDB{}, slow: time.Hour, level: "debug"},
		{name: "slow", db: &fakeDB{delay: 5 * time.Millisecond}, slow: time.Millisecond, level: "warn"},
		{name: "failed", db: &fakeDB{execErr: errors.New("boom")}, slow: time.Hour, level: "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := newSQLRunner(tc.db, zerolog.New(&buf).Level(zerolog.DebugLevel))
			r.SlowThreshold = tc.slow
			r.Exec(context.Background(), "--sql "+testMarker+"\nselect 1")
			lines := decodeLogLines(t, &buf)
			if len(lines) != 1 || lines[0]["level"] != tc.level {
				t.Fatalf("log = %v, want level %s", lines, tc.level)
			}
		})
	}
}

func TestSQLRunnerNoRowsIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	r := newSQLRunner(&fakeDB{}, zerolog.New(&buf).Level(zerolog.DebugLevel))
	var x int
	if err := r.QueryRow(context.Background(), "--sql "+testMarker+"\nselect 1").Scan(&x); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("Scan err = %v", err)
	}
	lines := decodeLogLines(t, &buf)
	if len(lines) != 1 || lines[0]["level"] != "debug" || lines[0]["rows"] != float64(0) {
		t.Fatalf("log = %v", lines)
	}
}
