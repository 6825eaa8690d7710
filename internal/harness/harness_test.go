package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/datadriven"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/coordtest/internal/feedback"
	"github.com/roach88/coordtest/internal/repr"
	"github.com/roach88/coordtest/internal/testutil"
)

// Goroutines started by package initializers are not ours to check.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

// newTestHarness returns a harness whose wall clock never moves, so wait-sql
// can only succeed or fail on its own merits.
func newTestHarness(t *testing.T, opts ...Option) *CoordTest {
	t.Helper()
	base := []Option{
		WithWallClock(quartz.NewMock(t)),
		WithIDs(testutil.NewSequentialIDs()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithVerbose(false),
	}
	ct, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ct.Close())
	})
	return ct
}

// directive builds one directive the way datadriven hands it over.
func directive(t *testing.T, header, body string) *datadriven.TestData {
	t.Helper()
	cmd, args, err := datadriven.ParseLine(header)
	require.NoError(t, err)
	return &datadriven.TestData{
		Pos:     t.Name() + ":1",
		Cmd:     cmd,
		CmdArgs: args,
		Input:   strings.TrimSpace(body),
	}
}

// exec runs one directive given as "header" and body.
func exec(t *testing.T, ct *CoordTest, header, body string) (string, error) {
	t.Helper()
	return ct.Execute(context.Background(), directive(t, header, body))
}

func mustExec(t *testing.T, ct *CoordTest, header, body string) string {
	t.Helper()
	out, err := exec(t, ct, header, body)
	require.NoError(t, err)
	return out
}

func TestSQL_CreateInsertSelect(t *testing.T) {
	ct := newTestHarness(t)

	assert.Equal(t, "CreatedTable\n", mustExec(t, ct, "sql", "CREATE TABLE t (a int)"))
	assert.Equal(t, "Inserted(2)\n", mustExec(t, ct, "sql", "INSERT INTO t VALUES (1), (2)"))
	assert.Equal(t, "Rows(2)\n  1\n  2\n", mustExec(t, ct, "sql", "SELECT a FROM t ORDER BY a"))
}

func TestSQL_BatchSeesItsOwnWrites(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")

	out := mustExec(t, ct, "sql", "INSERT INTO t VALUES (3);\nSELECT count(*) FROM t")
	assert.Equal(t, "Inserted(1)\nRows(1)\n  1\n", out)
}

func TestSQL_EmptyBatchRendersNothing(t *testing.T) {
	ct := newTestHarness(t)
	assert.Equal(t, "", mustExec(t, ct, "sql", ""))
}

func TestSQL_ParseErrorIsFatal(t *testing.T) {
	ct := newTestHarness(t)

	_, err := exec(t, ct, "sql", "SELEKT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.True(t, IsFatal(err))

	var fe *FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "sql", fe.Directive)
	assert.Equal(t, t.Name()+":1", fe.Pos)
}

func TestSQL_ExecutionErrorCommitsNothing(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")

	_, err := exec(t, ct, "sql", "INSERT INTO t VALUES (1);\nINSERT INTO missing VALUES (1)")
	require.Error(t, err)

	assert.Equal(t, "Rows(1)\n  0\n", mustExec(t, ct, "sql", "SELECT count(*) FROM t"))
}

func TestSQL_PeekErrorIsRendered(t *testing.T) {
	ct := newTestHarness(t)

	out := mustExec(t, ct, "sql", "SELECT * FROM missing")
	assert.Contains(t, out, "Error: ")
	assert.Contains(t, out, "no such table")
}

func TestSQL_BooleanColumnsRenderAsBooleans(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int, b bool, c boolean);\nINSERT INTO t VALUES (1, true, false)")
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT count(*) = 1 AS ok FROM t;\nCREATE VIEW w AS SELECT * FROM v")

	tests := []struct {
		query string
		want  string
	}{
		{"SELECT ok FROM v", "Rows(1)\n  true\n"},
		{"SELECT * FROM w", "Rows(1)\n  true\n"},
		{"SELECT v.ok AS fine FROM v", "Rows(1)\n  true\n"},
		{"SELECT a, b, c FROM t", "Rows(1)\n  1 true false\n"},
		{"SELECT * FROM t", "Rows(1)\n  1 true false\n"},
		{"SELECT CASE WHEN a = 1 THEN true ELSE false END FROM t", "Rows(1)\n  true\n"},
		{"SELECT coalesce(NULL, a > 5, true) FROM t", "Rows(1)\n  false\n"},
		{"SELECT a + 1 FROM t", "Rows(1)\n  2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, mustExec(t, ct, "sql", tt.query))
		})
	}
}

func TestSQL_TransactionControl(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")

	out := mustExec(t, ct, "sql", "BEGIN;\nINSERT INTO t VALUES (1);\nCOMMIT;\nBEGIN;\nINSERT INTO t VALUES (2);\nROLLBACK")
	assert.Equal(t, "StartedTransaction\nInserted(1)\nCommitted\nStartedTransaction\nInserted(1)\nRolledBack\n", out)
	assert.Equal(t, "Rows(1)\n  1\n", mustExec(t, ct, "sql", "SELECT a FROM t"))
}

func TestFiles_CreateThenRead(t *testing.T) {
	ct := newTestHarness(t)

	assert.Equal(t, "", mustExec(t, ct, "create-file name=a.txt", "1\n2\n"))
	out := mustExec(t, ct, "sql", "SELECT read_file('<TEMP>/a.txt')")
	assert.Equal(t, "Rows(1)\n  \"1\\n2\\n\"\n", out)

	mustExec(t, ct, "append-file name=a.txt", "3\n")
	out = mustExec(t, ct, "sql", "SELECT read_file('<TEMP>/a.txt')")
	assert.Equal(t, "Rows(1)\n  \"1\\n2\\n3\\n\"\n", out)

	// An empty body truncates.
	mustExec(t, ct, "create-file name=a.txt", "")
	out = mustExec(t, ct, "sql", "SELECT read_file('<TEMP>/a.txt')")
	assert.Equal(t, "Rows(1)\n  \"\"\n", out)
}

func TestFiles_Errors(t *testing.T) {
	ct := newTestHarness(t)

	_, err := exec(t, ct, "append-file name=missing.txt", "x")
	assert.Error(t, err)

	_, err = exec(t, ct, "create-file", "x")
	assert.ErrorIs(t, err, ErrProtocolViolation)

	_, err = exec(t, ct, "create-file name=../escape.txt", "x")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestIncTimestamp(t *testing.T) {
	ct := newTestHarness(t)

	mustExec(t, ct, "inc-timestamp", "5")
	assert.Equal(t, repr.Timestamp(5), ct.Now())
	assert.Equal(t, "Rows(1)\n  5\n", mustExec(t, ct, "sql", "SELECT mz_now()"))

	_, err := exec(t, ct, "inc-timestamp", "five")
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, repr.Timestamp(5), ct.Now())
}

func TestUpdateUpper_Monotonic(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT 1")
	id := repr.ObjectID("u1")

	assert.Equal(t, "", mustExec(t, ct, "update-upper", "materialize.public.v 5"))
	assert.Equal(t, repr.Timestamp(5), ct.TrackedUpper(id))

	_, err := exec(t, ct, "update-upper", "materialize.public.v 3")
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, repr.Timestamp(5), ct.TrackedUpper(id))

	// Equal is allowed.
	mustExec(t, ct, "update-upper", "materialize.public.v 5")
	mustExec(t, ct, "update-upper", "materialize.public.v 9")
	assert.Equal(t, repr.Timestamp(9), ct.TrackedUpper(id))
}

func TestUpdateUpper_RejectsOneOrLess(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT 1")

	for _, ts := range []string{"0", "1"} {
		_, err := exec(t, ct, "update-upper", "materialize.public.v "+ts)
		assert.ErrorIs(t, err, ErrProtocolViolation, ts)
	}
	assert.Equal(t, repr.Timestamp(0), ct.TrackedUpper("u1"))
}

func TestUpdateUpper_ReachesCoordinator(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT 1")
	assert.Equal(t, "Rows(1)\n  0\n", mustExec(t, ct, "sql", "SELECT mz_upper('materialize.public.v')"))

	mustExec(t, ct, "update-upper", "materialize.public.v 5")
	assert.Equal(t, "Rows(1)\n  5\n", mustExec(t, ct, "sql", "SELECT mz_upper('materialize.public.v')"))

	// Injected progress bypasses the pending queue.
	assert.Empty(t, ct.Pending())
}

func TestUpdateUpper_RetractsDeliveredTableUpper(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")
	require.Eventually(t, func() bool { return len(ct.Pending()) > 0 }, 5*time.Second, time.Millisecond)

	// Deliver the worker's upper of 1 for the new table.
	mustExec(t, ct, "wait-sql", "SELECT mz_upper('materialize.public.t') = 1")
	assert.Equal(t, repr.Timestamp(0), ct.Now())

	mustExec(t, ct, "update-upper", "materialize.public.t 5")
	assert.Equal(t, repr.Timestamp(5), ct.TrackedUpper("u1"))
	assert.Equal(t, "Rows(1)\n  5\n", mustExec(t, ct, "sql", "SELECT mz_upper('materialize.public.t')"))

	_, err := exec(t, ct, "update-upper", "materialize.public.t 4")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestUpdateUpper_RepeatedUpperIsNoop(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT 1")

	mustExec(t, ct, "update-upper", "materialize.public.v 5\nmaterialize.public.v 5")
	mustExec(t, ct, "update-upper", "materialize.public.v 5")
	assert.Equal(t, "Rows(1)\n  5\n", mustExec(t, ct, "sql", "SELECT mz_upper('materialize.public.v')"))
}

func TestUpdateUpper_BadLines(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT 1")

	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing timestamp", "materialize.public.v", ErrProtocolViolation},
		{"extra field", "materialize.public.v 5 6", ErrProtocolViolation},
		{"not a number", "materialize.public.v x", ErrProtocolViolation},
		{"two components", "public.v 5", ErrProtocolViolation},
		{"four components", "a.materialize.public.v 5", ErrProtocolViolation},
		{"unknown item", "materialize.public.nope 5", ErrNotFound},
		{"unknown schema", "materialize.private.v 5", ErrNotFound},
		{"unknown database", "db.public.v 5", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec(t, ct, "update-upper", tt.body)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCatalog_ResolveDiagnostics(t *testing.T) {
	c, err := ParseCatalog(`{"materialize":{"schemas":{"public":{"items":{"t":"u1","v":"u2"}}}}}`)
	require.NoError(t, err)

	id, err := c.Resolve("materialize.public.v")
	require.NoError(t, err)
	assert.Equal(t, repr.ObjectID("u2"), id)

	_, err = c.Resolve("materialize.public.x")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "x not found, have: [t, v]")

	_, err = c.Resolve("other.public.t")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "have: [materialize]")

	_, err = c.Resolve("materialize.public")
	assert.ErrorIs(t, err, ErrProtocolViolation)

	_, err = ParseCatalog("not json")
	assert.Error(t, err)
}

func TestCatalog_ResolveIgnoresCase(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE T (a int);\nCREATE VIEW V AS SELECT 1")

	c, err := ct.Catalog(context.Background())
	require.NoError(t, err)

	for path, want := range map[string]repr.ObjectID{
		"materialize.public.T": "u1",
		"materialize.public.t": "u1",
		"MATERIALIZE.PUBLIC.V": "u2",
		"Materialize.Public.v": "u2",
	} {
		id, err := c.Resolve(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, id, path)
	}

	mustExec(t, ct, "update-upper", "MATERIALIZE.PUBLIC.V 3")
	assert.Equal(t, repr.Timestamp(3), ct.TrackedUpper("u2"))
}

func TestPrintCatalog(t *testing.T) {
	ct := newTestHarness(t)

	empty := "materialize:\n  schemas:\n    public:\n      items: {}\n"
	assert.Equal(t, empty, mustExec(t, ct, "print-catalog", ""))

	mustExec(t, ct, "sql", "CREATE TABLE t (a int);\nCREATE VIEW v AS SELECT 1")
	want := "materialize:\n  schemas:\n    public:\n      items:\n        t: u1\n        v: u2\n"
	assert.Equal(t, want, mustExec(t, ct, "print-catalog", ""))
}

func TestWaitSQL_TrueSucceedsWithoutRetry(t *testing.T) {
	ct := newTestHarness(t)

	assert.Equal(t, "", mustExec(t, ct, "wait-sql", "SELECT true"))
	assert.Equal(t, repr.Timestamp(0), ct.Now())
}

func TestWaitSQL_EmptyResultSucceeds(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")

	mustExec(t, ct, "wait-sql", "SELECT a = 1 FROM t")
	assert.Equal(t, repr.Timestamp(0), ct.Now())
}

func TestWaitSQL_AdvancesClockPerFailedAttempt(t *testing.T) {
	ct := newTestHarness(t)

	mustExec(t, ct, "wait-sql", "SELECT mz_now() >= 1")
	assert.Equal(t, repr.Timestamp(1), ct.Now())

	mustExec(t, ct, "wait-sql", "SELECT mz_now() >= 4")
	assert.Equal(t, repr.Timestamp(4), ct.Now())
}

func TestWaitSQL_ObservesInjectedUpper(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT 1")
	mustExec(t, ct, "update-upper", "materialize.public.v 5")

	mustExec(t, ct, "wait-sql", "SELECT mz_now() >= 1 AND mz_upper('materialize.public.v') >= 5")
	assert.Equal(t, repr.Timestamp(1), ct.Now())
}

func TestWaitSQL_ExcludedUppersStayPending(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")

	// The worker announces the new table's upper asynchronously.
	require.Eventually(t, func() bool { return len(ct.Pending()) > 0 }, 5*time.Second, time.Millisecond)

	mustExec(t, ct, "wait-sql exclude-uppers=(materialize.public.t)", "SELECT true")
	pending := ct.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, feedback.KindFrontierUppers, pending[0].Kind)
	assert.Equal(t, repr.ObjectID("u1"), pending[0].Uppers[0].ID)

	// Held back from the coordinator, so the upper is still the initial one.
	assert.Equal(t, "Rows(1)\n  0\n", mustExec(t, ct, "sql", "SELECT mz_upper('materialize.public.t')"))

	// Without the exclusion the held entry is released.
	mustExec(t, ct, "wait-sql", "SELECT mz_upper('materialize.public.t') >= 1")
	assert.Equal(t, repr.Timestamp(0), ct.Now())
	assert.Empty(t, ct.Pending())
}

func TestWaitSQL_BooleanViewColumn(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int);\nINSERT INTO t VALUES (1), (2)")
	mustExec(t, ct, "sql", "CREATE VIEW v AS SELECT count(*) = 2 AS ok FROM t")

	mustExec(t, ct, "wait-sql", "SELECT ok FROM v")
	assert.Equal(t, repr.Timestamp(0), ct.Now())
}

func TestWaitSQL_ReleasesUpperHeldByEarlierExclusion(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")
	require.Eventually(t, func() bool { return len(ct.Pending()) > 0 }, 5*time.Second, time.Millisecond)

	// An earlier wait-sql leaves the table's upper held.
	mustExec(t, ct, "wait-sql exclude-uppers=(materialize.public.t)", "SELECT true")
	require.Len(t, ct.Pending(), 1)
	assert.Equal(t, "Rows(1)\n  0\n", mustExec(t, ct, "sql", "SELECT mz_upper('materialize.public.t')"))

	// The first attempt releases the upper but fails on mz_now; one advance
	// satisfies both conjuncts.
	mustExec(t, ct, "wait-sql", "SELECT mz_upper('materialize.public.t') = 1 AND mz_now() >= 1")
	assert.Equal(t, repr.Timestamp(1), ct.Now())
	assert.Empty(t, ct.Pending())
	assert.Equal(t, "Rows(1)\n  1\n", mustExec(t, ct, "sql", "SELECT mz_upper('materialize.public.t')"))
}

func TestWaitSQL_TimeoutCarriesLastReason(t *testing.T) {
	ct := newTestHarness(t, WithWallClock(quartz.NewReal()), WithWaitTimeout(20*time.Millisecond))

	_, err := exec(t, ct, "wait-sql", "SELECT false")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "datum false != true")
	assert.Greater(t, uint64(ct.Now()), uint64(0))
}

func TestWaitSQL_ExecutionErrorsAreRetried(t *testing.T) {
	ct := newTestHarness(t, WithWallClock(quartz.NewReal()), WithWaitTimeout(20*time.Millisecond))

	_, err := exec(t, ct, "wait-sql", "SELECT a FROM missing")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "no such table")
}

func TestWaitSQL_NonRowOutcomeIsFatal(t *testing.T) {
	ct := newTestHarness(t)

	_, err := exec(t, ct, "wait-sql", "CREATE TABLE t (a int)")
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestWaitSQL_UnknownExcludedPathIsFatal(t *testing.T) {
	ct := newTestHarness(t)

	_, err := exec(t, ct, "wait-sql exclude-uppers=(materialize.public.nope)", "SELECT true")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAsync_AwaitReturnsOutcomesOnce(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "sql", "CREATE TABLE t (a int)")

	assert.Equal(t, "", mustExec(t, ct, "async-sql session=s", "INSERT INTO t VALUES (7);\nSELECT a FROM t"))
	assert.Equal(t, "Inserted(1)\nRows(1)\n  7\n", mustExec(t, ct, "await-sql session=s", ""))

	_, err := exec(t, ct, "await-sql session=s", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAsync_DuplicateSessionName(t *testing.T) {
	ct := newTestHarness(t)

	mustExec(t, ct, "async-sql session=s", "SELECT 1")
	_, err := exec(t, ct, "async-sql session=s", "SELECT 2")
	assert.ErrorIs(t, err, ErrNotFound)

	// The first session is untouched.
	assert.Equal(t, "Rows(1)\n  1\n", mustExec(t, ct, "await-sql session=s", ""))
}

func TestAsync_CancelResolvesAsCanceled(t *testing.T) {
	ct := newTestHarness(t)

	mustExec(t, ct, "async-sql session=a", "SELECT 1")
	mustExec(t, ct, "async-sql session=b", "SELECT 2")
	assert.Equal(t, "", mustExec(t, ct, "async-cancel session=b", ""))

	assert.Equal(t, "Rows(1)\n  1\n", mustExec(t, ct, "await-sql session=a", ""))
	assert.Equal(t, "Canceled\n", mustExec(t, ct, "await-sql session=b", ""))
}

func TestAsync_CancelUnknownSession(t *testing.T) {
	ct := newTestHarness(t)

	_, err := exec(t, ct, "async-cancel session=missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAsync_ArgumentChecks(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "async-sql session=s", "SELECT 1")

	tests := []struct {
		name   string
		header string
		body   string
	}{
		{"async-sql without session", "async-sql", "SELECT 1"},
		{"await-sql without session", "await-sql", ""},
		{"async-cancel with body", "async-cancel session=s", "SELECT 1"},
		{"await-sql with body", "await-sql session=s", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec(t, ct, tt.header, tt.body)
			assert.ErrorIs(t, err, ErrProtocolViolation)
		})
	}
}

func TestAsync_PlaceholderIsReplacedWhenStarted(t *testing.T) {
	ct := newTestHarness(t)
	mustExec(t, ct, "create-file name=f.txt", "x")

	mustExec(t, ct, "async-sql session=s", "SELECT read_file('<TEMP>/f.txt')")
	assert.Equal(t, "Rows(1)\n  \"x\\n\"\n", mustExec(t, ct, "await-sql session=s", ""))
}

func TestExecute_UnrecognizedDirective(t *testing.T) {
	ct := newTestHarness(t)

	_, err := exec(t, ct, "explode", "")
	assert.ErrorIs(t, err, ErrUnrecognizedDirective)
	assert.True(t, IsFatal(err))
}

func TestDirectives_AllRegistered(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"sql", "wait-sql", "async-sql", "async-cancel", "await-sql",
		"update-upper", "inc-timestamp", "create-file", "append-file", "print-catalog",
	}, Directives())
}

func TestClose_IsIdempotent(t *testing.T) {
	ct, err := New(context.Background(), WithIDs(testutil.NewSequentialIDs()))
	require.NoError(t, err)

	_, err = exec(t, ct, "async-sql session=left-open", "SELECT 1")
	require.NoError(t, err)

	dir := ct.TempDir()
	require.NoError(t, ct.Close())
	require.NoError(t, ct.Close())
	assert.NoDirExists(t, dir)
}
