package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/coordtest/internal/clock"
	"github.com/roach88/coordtest/internal/repr"
)

// EvalContext is what the built-in SQL functions see while a peek runs.
type EvalContext struct {
	// Time is the peek timestamp returned by mz_now().
	Time repr.Timestamp
	// Uppers maps "database.schema.item" paths to the object's upper at the
	// time the peek was issued.
	Uppers map[string]repr.Timestamp
}

// Store is the SQLite database holding table contents.
//
// Access is serialized: a write transaction or a peek holds the store
// exclusively until it finishes. The coordinator never waits on the engine
// while it holds a transaction, so serializing cannot deadlock.
type Store struct {
	db  *sql.DB
	now clock.NowFunc

	mu   sync.Mutex // held by an open Tx or a running Peek
	emu  sync.Mutex
	eval *EvalContext
}

// connector opens connections through a private driver instance so that each
// Store gets its own function bindings without a global sql.Register.
type connector struct {
	driver *sqlite3.SQLiteDriver
	dsn    string
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// now backs mz_now() outside of peeks.
func Open(path string, now clock.NowFunc) (*Store, error) {
	s := &Store{now: now}

	drv := &sqlite3.SQLiteDriver{ConnectHook: s.onConnect}
	db := sql.OpenDB(&connector{driver: drv, dsn: path})

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s.db = db
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) onConnect(conn *sqlite3.SQLiteConn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if err := conn.RegisterFunc("mz_now", s.mzNow, false); err != nil {
		return fmt.Errorf("register mz_now: %w", err)
	}
	if err := conn.RegisterFunc("mz_upper", s.mzUpper, false); err != nil {
		return fmt.Errorf("register mz_upper: %w", err)
	}
	if err := conn.RegisterFunc("read_file", readFile, false); err != nil {
		return fmt.Errorf("register read_file: %w", err)
	}
	return nil
}

func (s *Store) currentEval() *EvalContext {
	s.emu.Lock()
	defer s.emu.Unlock()
	return s.eval
}

func (s *Store) setEval(ec *EvalContext) {
	s.emu.Lock()
	s.eval = ec
	s.emu.Unlock()
}

// Tx is an exclusive write transaction.
type Tx struct {
	tx      *sql.Tx
	release func()
}

// Begin opens a write transaction. The store stays locked until Commit or
// Rollback.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	s.mu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	var once sync.Once
	return &Tx{tx: tx, release: func() { once.Do(s.mu.Unlock) }}, nil
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// Commit commits and releases the store.
func (t *Tx) Commit() error {
	defer t.release()
	return t.tx.Commit()
}

// Rollback aborts and releases the store. Rolling back twice is harmless.
func (t *Tx) Rollback() error {
	defer t.release()
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

// Peek runs a read query with ec bound for the built-in functions and hands
// the rows to scan. Rows are closed when scan returns.
func (s *Store) Peek(ctx context.Context, ec EvalContext, query string, scan func(*sql.Rows) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setEval(&ec)
	defer s.setEval(nil)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	if err := scan(rows); err != nil {
		return err
	}
	return rows.Err()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
