package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/coordtest/internal/clock"
	"github.com/roach88/coordtest/internal/repr"
)

// createTestStore opens a store in a temp dir backed by c.
func createTestStore(t *testing.T, c *clock.Logical) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage.db")
	s, err := Open(path, c.NowFunc())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func queryInt(t *testing.T, s *Store, ec EvalContext, query string) sql.NullInt64 {
	t.Helper()
	var v sql.NullInt64
	err := s.Peek(context.Background(), ec, query, func(rows *sql.Rows) error {
		if !rows.Next() {
			t.Fatalf("%s: no rows", query)
		}
		return rows.Scan(&v)
	})
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return v
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")

	s, err := Open(path, clock.New().NowFunc())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t, clock.New())

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestTx_CommitIsVisible(t *testing.T) {
	s := createTestStore(t, clock.New())
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx, "CREATE TABLE t (a INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO t VALUES (1), (2)"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got := queryInt(t, s, EvalContext{}, "SELECT COUNT(*) FROM t")
	if got.Int64 != 2 {
		t.Errorf("count = %d, want 2", got.Int64)
	}

	if n := queryInt(t, s, EvalContext{}, "SELECT COUNT(*) FROM sqlite_master WHERE name = 't'"); n.Int64 != 1 {
		t.Errorf("table t count = %d, want 1", n.Int64)
	}
}

func TestTx_RollbackDiscardsAndReleases(t *testing.T) {
	s := createTestStore(t, clock.New())
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx, "CREATE TABLE t (a INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	// Second rollback is a no-op and must not double-unlock.
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	if n := queryInt(t, s, EvalContext{}, "SELECT COUNT(*) FROM sqlite_master WHERE name = 't'"); n.Int64 != 0 {
		t.Error("table survived rollback")
	}
}

func TestFunctions_MzNow(t *testing.T) {
	c := clock.New()
	s := createTestStore(t, c)

	if got := queryInt(t, s, EvalContext{Time: 7}, "SELECT mz_now()"); got.Int64 != 7 {
		t.Errorf("mz_now() in peek = %d, want 7", got.Int64)
	}

	// Outside a peek, mz_now() follows the logical clock.
	c.Advance(3)
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx, "CREATE TABLE t AS SELECT mz_now() AS ts"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if got := queryInt(t, s, EvalContext{Time: 100}, "SELECT ts FROM t"); got.Int64 != 3 {
		t.Errorf("mz_now() in write = %d, want 3", got.Int64)
	}
}

func TestFunctions_MzUpper(t *testing.T) {
	s := createTestStore(t, clock.New())
	ec := EvalContext{Uppers: map[string]repr.Timestamp{"materialize.public.t": 5}}

	if got := queryInt(t, s, ec, "SELECT mz_upper('materialize.public.t')"); !got.Valid || got.Int64 != 5 {
		t.Errorf("mz_upper(t) = %v, want 5", got)
	}
	if got := queryInt(t, s, ec, "SELECT mz_upper('materialize.public.missing')"); got.Valid {
		t.Errorf("mz_upper(missing) = %v, want NULL", got)
	}
}

func TestFunctions_ReadFile(t *testing.T) {
	s := createTestStore(t, clock.New())
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("1\n2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var got string
	err := s.Peek(context.Background(), EvalContext{}, "SELECT read_file('"+path+"')", func(rows *sql.Rows) error {
		rows.Next()
		return rows.Scan(&got)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "1\n2\n" {
		t.Errorf("read_file = %q", got)
	}

	err = s.Peek(context.Background(), EvalContext{}, "SELECT read_file('/does/not/exist')", func(rows *sql.Rows) error {
		for rows.Next() {
		}
		return nil
	})
	if err == nil {
		t.Error("expected error reading a missing file")
	}
}
