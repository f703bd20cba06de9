package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements UsageStore using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed usage store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS usage_counters (
		counter_key TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_counters_expires ON usage_counters(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Increment adds one to key in a single upsert statement. An expired row is
// restarted at 1 with a fresh expiry.
func (s *SQLiteStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	query := `
	INSERT INTO usage_counters (counter_key, count, expires_at)
	VALUES (?, 1, ?)
	ON CONFLICT(counter_key) DO UPDATE SET
		count = CASE WHEN usage_counters.expires_at <= ? THEN 1 ELSE usage_counters.count + 1 END,
		expires_at = CASE WHEN usage_counters.expires_at <= ? THEN excluded.expires_at ELSE usage_counters.expires_at END
	RETURNING count`

	now := s.now()
	nowMs := now.UnixMilli()
	expiresAt := now.Add(ttl).UnixMilli()

	var count int64
	err := withBusyRetry(ctx, "increment", func() error {
		return s.db.QueryRowContext(ctx, query, key, expiresAt, nowMs, nowMs).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("increment usage counter: %w", err)
	}
	return count, nil
}

// Peek returns the live value of key.
func (s *SQLiteStore) Peek(ctx context.Context, key string) (int64, error) {
	query := `SELECT count FROM usage_counters WHERE counter_key = ? AND expires_at > ?`

	var count int64
	err := s.db.QueryRowContext(ctx, query, key, s.now().UnixMilli()).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("peek usage counter: %w", err)
	}
	return count, nil
}

// CleanupExpired removes expired counters.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int64, error) {
	var removed int64
	err := withBusyRetry(ctx, "cleanup", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM usage_counters WHERE expires_at <= ?`, s.now().UnixMilli())
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup usage counters: %w", err)
	}
	return removed, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withBusyRetry retries op with exponential backoff (50ms, 100ms) while
// SQLite reports lock contention.
func withBusyRetry(ctx context.Context, opName string, op func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil || !isSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", opName, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// isSQLiteConflictError reports SQLITE_BUSY and "database is locked" errors.
func isSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
