// Package sqlite is the store of record: a pure-Go, cgo-free SQLite
// implementation of the store.Store contract. A single pooled
// connection, schema-in-a-string init, scan-row helpers, and
// exponential-backoff retry of transient errors via
// github.com/cenkalti/backoff/v4.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
)

// Store is the SQLite-backed implementation of store.Store. A single
// pooled connection (MaxOpenConns(1)) gives SQLite single-writer
// semantics for free and makes "transaction and store share a
// connection" read-your-writes guarantees hold without extra
// bookkeeping.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *slog.Logger
}

// Open creates or attaches to a SQLite database at path and ensures
// the schema exists. log is an explicit collaborator per
// internal/logging's "never a package global" convention.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w\nSQL: %s", err, stmt)
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying *sql.DB for advanced callers (migrations,
// diagnostics).
func (s *Store) DB() *sql.DB { return s.db }

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*storeTx)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every
// entity method live on a shared helper regardless of whether it runs
// against the pooled connection or an open transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// storeTx implements store.Tx against an open *sql.Tx, reusing every
// entity method on *Store by swapping in the tx as the querier.
type storeTx struct {
	q   querier
	log *slog.Logger
}

// RunInTransaction executes fn within a database transaction that
// commits entirely or is rolled back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.withRetry(ctx, func() error {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errorkit.Wrap("store.RunInTransaction", errorkit.KindUnavailable, err)
		}
		t := &storeTx{q: sqlTx, log: s.log}
		defer func() {
			if r := recover(); r != nil {
				_ = sqlTx.Rollback()
				panic(r)
			}
		}()
		if err := fn(t); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return classifyError("store.RunInTransaction", err)
		}
		return nil
	})
}

// retryMaxElapsed bounds how long withRetry keeps retrying transient
// StoreUnavailable/Conflict errors.
const retryMaxElapsed = 5 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// withRetry retries op while it fails with a retryable errorkit.Kind,
// stopping immediately on anything else (backoff.Permanent).
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	bo := newRetryBackoff()
	attempts := 0
	return backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if errorkit.Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

// classifyError maps a raw SQLite/sql error to an errorkit.Kind.
// "database is locked"/busy indicates transient contention
// (Unavailable); constraint violations are surfaced as Conflict so
// callers can treat them as retryable; sql.ErrNoRows becomes NotFound.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return errorkit.Wrap(op, errorkit.KindNotFound, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"):
		return errorkit.Wrap(op, errorkit.KindUnavailable, err)
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "constraint failed"):
		return errorkit.Wrap(op, errorkit.KindConflict, err)
	default:
		return errorkit.Wrap(op, errorkit.KindStateError, err)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
