package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/velmie/worklog"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "worklog:cleanup:"
)

// CleanupOptions defines which dead-letter rows to delete.
//
// Resolved rows age from resolved_at. Open rows are entries nobody has
// replayed yet, so they are only deleted when IncludeOpen is set and age
// from failed_at, optionally against their own OpenBefore cutoff.
type CleanupOptions struct {
	// Before removes resolved rows resolved at or before this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per status (0 uses the default).
	Limit int
	// IncludeOpen also removes unresolved rows.
	IncludeOpen bool
	// OpenBefore is the failed_at cutoff for open rows. Zero uses Before.
	OpenBefore time.Time
	// Log restricts cleanup to dead letters of one work log. Empty means all logs.
	Log string
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Resolved int64
	Open     int64
}

// CleanupMaintainerConfig controls periodic cleanup.
type CleanupMaintainerConfig struct {
	// Table is the dead-letter table name. Use schema.table for non-default schema.
	Table string
	// Retention removes rows older than now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// IncludeOpen removes unresolved rows in addition to resolved rows.
	IncludeOpen bool
	// OpenRetention is the retention of unresolved rows. Zero uses Retention.
	OpenRetention time.Duration
	// Log restricts cleanup to one work log.
	Log string
	// LockName is the advisory lock name. Defaults to worklog:cleanup:<table>.
	LockName string
	Clock    worklog.Clock
	Logger   worklog.Logger
}

// CleanupMaintainer runs periodic cleanup of a dead-letter table.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupMaintainerConfig
}

// cleanupPass is one bounded DELETE over rows of a single status.
type cleanupPass struct {
	status   Status
	tsColumn string
	before   time.Time
}

// cleanupPasses returns the passes Cleanup runs for opts, resolved first.
func cleanupPasses(opts CleanupOptions) []cleanupPass {
	passes := []cleanupPass{{status: StatusResolved, tsColumn: "resolved_at", before: opts.Before}}
	if opts.IncludeOpen {
		before := opts.OpenBefore
		if before.IsZero() {
			before = opts.Before
		}
		passes = append(passes, cleanupPass{status: StatusOpen, tsColumn: "failed_at", before: before})
	}
	return passes
}

// Cleanup removes resolved dead letters (and optionally open ones) older than
// their cutoffs. Each status is deleted with its own limit, so a backlog of
// resolved rows never starves removal of stale open rows.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	var result CleanupResult
	for _, pass := range cleanupPasses(opts) {
		query, args := s.cleanupQuery(pass, opts.Log, limit)
		n, err := s.execCleanup(ctx, query, args)
		if err != nil {
			return result, err
		}
		if pass.status == StatusOpen {
			result.Open = n
		} else {
			result.Resolved = n
		}
	}
	return result, nil
}

// NewCleanupMaintainer creates a new cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.OpenRetention < 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.OpenRetention == 0 {
		cfg.OpenRetention = cfg.Retention
	}
	if cfg.Clock == nil {
		cfg.Clock = worklog.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = worklog.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithTable(cfg.Table), WithClock(cfg.Clock), WithLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}
	cfg.Table = store.table
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run periodically deletes old rows until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("worklog dead-letter cleanup failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("worklog dead-letter cleanup failed", "err", err)
			}
		}
	}
}

// Ensure executes a single cleanup pass if the advisory lock is free.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("worklog mysql: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return CleanupResult{}, err
	}
	if !locked {
		m.cfg.Logger.Debug("worklog dead-letter cleanup lock held by another session", "lock", m.cfg.LockName)

		return CleanupResult{}, nil
	}
	defer m.releaseLock(ctx, conn)

	now := m.cfg.Clock.Now()
	result, err := m.store.Cleanup(ctx, CleanupOptions{
		Before:      now.Add(-m.cfg.Retention),
		Limit:       m.cfg.Limit,
		IncludeOpen: m.cfg.IncludeOpen,
		OpenBefore:  now.Add(-m.cfg.OpenRetention),
		Log:         m.cfg.Log,
	})
	if err != nil {
		return CleanupResult{}, err
	}
	m.cfg.Logger.Info("worklog dead-letter cleanup done", "table", m.cfg.Table, "log", m.cfg.Log, "resolved", result.Resolved, "open", result.Open)

	return result, nil
}

func (s *Store) cleanupQuery(pass cleanupPass, log string, limit int) (string, []any) {
	// #nosec G201 -- table and column names are internal and sanitized.
	query := fmt.Sprintf("DELETE FROM %s WHERE status = ? AND %s IS NOT NULL AND %s <= ?", s.table, pass.tsColumn, pass.tsColumn)
	args := []any{pass.status, pass.before.UTC()}
	if log != "" {
		query += " AND log_name = ?"
		args = append(args, log)
	}
	query += " ORDER BY id LIMIT ?"
	return query, append(args, limit)
}

func (s *Store) execCleanup(ctx context.Context, query string, args []any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("worklog mysql: cleanup delete failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("worklog mysql: cleanup rows failed: %w", err)
	}

	return affected, nil
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.cfg.LockName).Scan(&got); err != nil {
		return false, fmt.Errorf("worklog mysql: acquire cleanup lock failed: %w", err)
	}

	return got.Valid && got.Int64 != 0, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", m.cfg.LockName).Scan(&released); err != nil {
		m.cfg.Logger.Warn("worklog dead-letter cleanup release lock failed", "err", err)
	}
}
