// Package sqlite journals worker attempts into a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/velmie/worklog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	// ErrPathRequired is returned by Open for an empty path.
	ErrPathRequired = errors.New("worklog sqlite: storage path is required")
	// ErrNotConfigured is returned when a nil or closed store is used.
	ErrNotConfigured = errors.New("worklog sqlite: storage is not configured")
	// ErrLimitInvalid is returned when a list limit is not positive.
	ErrLimitInvalid = errors.New("worklog sqlite: limit must be greater than zero")
)

// Store persists worker attempts.
type Store struct {
	db *sql.DB
}

var _ worklog.AttemptRecorder = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("worklog sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("worklog sqlite: ping: %w", err)
	}
	if err := applyMigrations(ctx, db, migrationFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("worklog sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordAttempt implements worklog.AttemptRecorder.
func (s *Store) RecordAttempt(ctx context.Context, attempt worklog.Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(attempt.Log) == "" {
		return fmt.Errorf("worklog sqlite: log name is required")
	}
	if attempt.Outcome == "" {
		return fmt.Errorf("worklog sqlite: outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO worklog_attempts (
	log_name,
	tx_id,
	record_offset,
	attempt,
	outcome,
	last_error,
	duration_us,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		attempt.Log,
		int64(attempt.TxID),
		attempt.Offset,
		attempt.Attempt,
		string(attempt.Outcome),
		attempt.Error,
		attempt.Duration.Microseconds(),
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("worklog sqlite: record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempts.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]worklog.Attempt, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		return nil, ErrLimitInvalid
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
	log_name,
	tx_id,
	record_offset,
	attempt,
	outcome,
	last_error,
	duration_us,
	created_at
FROM worklog_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("worklog sqlite: list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]worklog.Attempt, 0, limit)
	for rows.Next() {
		var (
			a          worklog.Attempt
			txID       int64
			outcome    string
			durationUS int64
			createdAt  int64
		)
		if err := rows.Scan(&a.Log, &txID, &a.Offset, &a.Attempt, &outcome, &a.Error, &durationUS, &createdAt); err != nil {
			return nil, fmt.Errorf("worklog sqlite: scan attempt: %w", err)
		}
		a.TxID = worklog.TxID(txID)
		a.Outcome = worklog.Outcome(outcome)
		a.Duration = time.Duration(durationUS) * time.Microsecond
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("worklog sqlite: iterate attempts: %w", err)
	}
	return attempts, nil
}

// CountByOutcome returns attempt counts per outcome for one log, or all logs when log is empty.
func (s *Store) CountByOutcome(ctx context.Context, log string) (map[worklog.Outcome]int, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	query := "SELECT outcome, COUNT(*) FROM worklog_attempts"
	var args []any
	if log != "" {
		query += " WHERE log_name = ?"
		args = append(args, log)
	}
	query += " GROUP BY outcome"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("worklog sqlite: count attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[worklog.Outcome]int)
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("worklog sqlite: scan count: %w", err)
		}
		counts[worklog.Outcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("worklog sqlite: iterate counts: %w", err)
	}
	return counts, nil
}
