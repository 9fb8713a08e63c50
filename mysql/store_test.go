package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/velmie/worklog"
)

type fakeResult struct {
	id int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (fakeResult) RowsAffected() (int64, error)   { return 1, nil }

type fakeExecutor struct {
	query string
	args  []any
	err   error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	return fakeResult{id: 42}, f.err
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func testStore(opts ...Option) *Store {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	return &Store{cfg: cfg, queries: newQueries(cfg.Table), table: cfg.Table}
}

func TestStoreInsert(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := testStore(WithClock(fixedClock{now: now}))
	exec := &fakeExecutor{}

	id, err := store.Insert(context.Background(), exec, worklog.DeadLetter{
		Log:       "orders",
		TxID:      7,
		Offset:    26,
		Payload:   []byte{1, 2, 3},
		Attempts:  10,
		LastError: "boom",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
	if !strings.HasPrefix(exec.query, "INSERT INTO worklog_dead_letters") {
		t.Fatalf("unexpected query %q", exec.query)
	}
	if len(exec.args) != 7 {
		t.Fatalf("expected 7 args, got %d", len(exec.args))
	}
	if exec.args[1] != uint32(7) || exec.args[2] != int64(26) {
		t.Fatalf("unexpected tx/offset args %v", exec.args)
	}
	if exec.args[6] != now {
		t.Fatalf("expected clock time for missing failed_at, got %v", exec.args[6])
	}
}

func TestStoreInsertValidation(t *testing.T) {
	store := testStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, nil, worklog.DeadLetter{Log: "orders"}); !errors.Is(err, ErrExecutorRequired) {
		t.Fatalf("expected ErrExecutorRequired, got %v", err)
	}
	if _, err := store.Insert(ctx, &fakeExecutor{}, worklog.DeadLetter{}); !errors.Is(err, ErrLogNameRequired) {
		t.Fatalf("expected ErrLogNameRequired, got %v", err)
	}
	big := worklog.DeadLetter{Log: "orders", Payload: make([]byte, maxPayloadLen+1)}
	if _, err := store.Insert(ctx, &fakeExecutor{}, big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestStoreInsertWrapsExecError(t *testing.T) {
	store := testStore()
	cause := errors.New("connection reset")
	_, err := store.Insert(context.Background(), &fakeExecutor{err: cause}, worklog.DeadLetter{Log: "orders"})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil); !errors.Is(err, ErrDBRequired) {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithTable("bad-name")); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}

func TestBuildResolveQuery(t *testing.T) {
	got := buildResolveQuery("dead", 3)
	want := "UPDATE dead SET status = ?, resolved_at = ? WHERE status = ? AND id IN (?,?,?)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMakePlaceholders(t *testing.T) {
	if got := makePlaceholders(1); got != "?" {
		t.Fatalf("unexpected placeholders: %s", got)
	}
	if got := makePlaceholders(3); got != "?,?,?" {
		t.Fatalf("unexpected placeholders: %s", got)
	}
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("é", maxErrorLen+10)
	msg := truncateError(long)
	if len([]rune(msg)) != maxErrorLen {
		t.Fatalf("expected truncated length %d, got %d", maxErrorLen, len([]rune(msg)))
	}
}
