package progress

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Progress records are
// short-lived, so a mismatch is resolved by deleting the database.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLite is a Tracker persisted in a SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens or creates the progress database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure progress directory: %w", err)
	}
	// busy_timeout goes in the DSN so every pooled connection waits on locks.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLite{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) initSchema(ctx context.Context) error {
	var tableExists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLite) createSchema(ctx context.Context) error {
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		// Another process may have created the schema between the check and
		// the transaction.
		if strings.Contains(err.Error(), "already exists") {
			return s.initSchema(ctx)
		}
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLite) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLite) timestamp() int64 {
	return s.now().UnixMilli()
}

func (s *SQLite) Begin(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `
		INSERT INTO render_progress (session_id, state, percent, reason, updated_at)
		VALUES (?, ?, 0, '', ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			percent = 0,
			reason = '',
			updated_at = excluded.updated_at
		WHERE render_progress.state NOT IN (?, ?)`,
		id, string(StateRendering), s.timestamp(), string(StateRendering), string(StateDone))
	if err != nil {
		return false, fmt.Errorf("claim render: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim render rows: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLite) Report(ctx context.Context, id string, percent float64) error {
	value := clampPercent(percent)
	if _, err := s.execWithRetry(ctx, `
		UPDATE render_progress SET percent = ?, updated_at = ?
		WHERE session_id = ? AND state = ? AND percent < ?`,
		value, s.timestamp(), id, string(StateRendering), value); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}
	return nil
}

func (s *SQLite) Complete(ctx context.Context, id string) error {
	return s.setTerminal(ctx, id, StateDone, 100, "")
}

func (s *SQLite) Fail(ctx context.Context, id string, reason string) error {
	return s.setTerminal(ctx, id, StateFailed, -1, reason)
}

// setTerminal upserts a final state. A negative percent keeps the stored one.
func (s *SQLite) setTerminal(ctx context.Context, id string, state State, percent int, reason string) error {
	if _, err := s.execWithRetry(ctx, `
		INSERT INTO render_progress (session_id, state, percent, reason, updated_at)
		VALUES (?, ?, MAX(?, 0), ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			percent = CASE WHEN ? < 0 THEN render_progress.percent ELSE excluded.percent END,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		id, string(state), percent, reason, s.timestamp(), percent); err != nil {
		return fmt.Errorf("mark %s: %w", state, err)
	}
	return nil
}

func (s *SQLite) Query(ctx context.Context, id string) (Snapshot, error) {
	ctx = ensureContext(ctx)
	var (
		state     string
		snap      Snapshot
		updatedAt int64
	)
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT state, percent, reason, updated_at FROM render_progress WHERE session_id = ?", id,
		).Scan(&state, &snap.Percent, &snap.Reason, &updatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{State: StateOpen}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query progress: %w", err)
	}
	snap.State = State(state)
	snap.UpdatedAt = time.UnixMilli(updatedAt)
	return snap, nil
}

func (s *SQLite) Forget(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx, "DELETE FROM render_progress WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("forget progress: %w", err)
	}
	return nil
}

func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM render_progress WHERE updated_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune progress rows: %w", err)
	}
	return int(affected), nil
}

// ResetStuck fails renders left running by a daemon that stopped mid-encode.
func (s *SQLite) ResetStuck(ctx context.Context) (int, error) {
	res, err := s.execWithRetry(ctx, `
		UPDATE render_progress SET state = ?, reason = ?, updated_at = ?
		WHERE state = ?`,
		string(StateFailed), InterruptedReason, s.timestamp(), string(StateRendering))
	if err != nil {
		return 0, fmt.Errorf("reset stuck renders: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset stuck renders rows: %w", err)
	}
	return int(affected), nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Tracker = (*SQLite)(nil)
