package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/velmie/worklog"
)

const (
	maxErrorLen       = 1024
	resolveFixedArgs  = 3
	placeholderGrowth = 2
)

// Status is the operator workflow state of a dead-letter row.
type Status int

const (
	// StatusOpen marks a dead letter nobody has handled yet.
	StatusOpen Status = 0
	// StatusResolved marks a dead letter that was requeued or dismissed.
	StatusResolved Status = 1
)

// Executor allows inserting within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Record is one dead-letter row.
type Record struct {
	ID         int64
	Log        string
	TxID       worklog.TxID
	Offset     int64
	Payload    []byte
	Attempts   int
	LastError  string
	Status     Status
	FailedAt   time.Time
	ResolvedAt time.Time
}

// Store mirrors dead letters into a MySQL table.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var _ worklog.DeadLetterSink = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := checkTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Table returns the sanitized table name.
func (s *Store) Table() string {
	return s.table
}

// Insert writes a dead letter using the provided executor and returns the row id.
func (s *Store) Insert(ctx context.Context, exec Executor, letter worklog.DeadLetter) (int64, error) {
	if exec == nil {
		return 0, ErrExecutorRequired
	}
	if letter.Log == "" {
		return 0, ErrLogNameRequired
	}
	if len(letter.Payload) > maxPayloadLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(letter.Payload))
	}

	payload := letter.Payload
	if payload == nil {
		payload = []byte{}
	}
	failedAt := letter.FailedAt
	if failedAt.IsZero() {
		failedAt = s.cfg.Clock.Now()
	}

	lastError := any(nil)
	if letter.LastError != "" {
		lastError = truncateError(letter.LastError)
	}

	res, err := exec.ExecContext(
		ctx,
		s.queries.insert,
		letter.Log,
		uint32(letter.TxID),
		letter.Offset,
		payload,
		letter.Attempts,
		lastError,
		failedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("worklog mysql: insert failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("worklog mysql: insert id failed: %w", err)
	}

	return id, nil
}

// WriteDeadLetter implements worklog.DeadLetterSink.
func (s *Store) WriteDeadLetter(ctx context.Context, letter worklog.DeadLetter) error {
	id, err := s.Insert(ctx, s.db, letter)
	if err != nil {
		return err
	}
	s.cfg.Logger.Debug("worklog mysql dead letter mirrored", "id", id, "log", letter.Log, "tx_id", letter.TxID, "offset", letter.Offset)

	return nil
}

// ListOpen returns up to limit open dead letters, oldest first.
// A non-empty log restricts the result to one work log.
func (s *Store) ListOpen(ctx context.Context, log string, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, ErrListLimitInvalid
	}

	var (
		rows *sql.Rows
		err  error
	)
	if log == "" {
		rows, err = s.db.QueryContext(ctx, s.queries.selectOpen, StatusOpen, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.queries.selectLog, StatusOpen, log, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("worklog mysql: select failed: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec        Record
			txID       uint32
			lastError  sql.NullString
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Log, &txID, &rec.Offset, &rec.Payload, &rec.Attempts, &lastError, &rec.Status, &rec.FailedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("worklog mysql: scan failed: %w", err)
		}
		rec.TxID = worklog.TxID(txID)
		rec.LastError = lastError.String
		if resolvedAt.Valid {
			rec.ResolvedAt = resolvedAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("worklog mysql: rows failed: %w", err)
	}

	return records, nil
}

// Resolve marks the given open rows resolved and returns how many changed.
func (s *Store) Resolve(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := buildResolveQuery(s.table, len(ids))
	args := make([]any, 0, len(ids)+resolveFixedArgs)
	args = append(args, StatusResolved, s.cfg.Clock.Now().UTC(), StatusOpen)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("worklog mysql: resolve update failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("worklog mysql: resolve rows failed: %w", err)
	}

	return affected, nil
}

// OpenCount returns the number of open dead letters.
func (s *Store) OpenCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countOpen, StatusOpen).Scan(&count); err != nil {
		return 0, fmt.Errorf("worklog mysql: open count failed: %w", err)
	}

	return count, nil
}

func buildResolveQuery(table string, count int) string {
	return fmt.Sprintf(
		"UPDATE %s SET status = ?, resolved_at = ? WHERE status = ? AND id IN (%s)",
		table,
		makePlaceholders(count),
	)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderGrowth)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}

func truncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
