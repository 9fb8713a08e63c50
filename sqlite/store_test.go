package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/worklog"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "attempts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListAttempts(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 23, 30, 0, 0, time.UTC)

	require.NoError(t, store.RecordAttempt(ctx, worklog.Attempt{
		Log:       "orders",
		TxID:      4,
		Offset:    13,
		Attempt:   1,
		Outcome:   worklog.OutcomeRetry,
		Error:     "temporary error",
		Duration:  1500 * time.Microsecond,
		CreatedAt: now,
	}))
	require.NoError(t, store.RecordAttempt(ctx, worklog.Attempt{
		Log:       "orders",
		TxID:      4,
		Offset:    13,
		Attempt:   2,
		Outcome:   worklog.OutcomeSucceeded,
		CreatedAt: now.Add(time.Minute),
	}))

	attempts, err := store.ListAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, worklog.OutcomeSucceeded, attempts[0].Outcome)
	require.Equal(t, worklog.OutcomeRetry, attempts[1].Outcome)
	require.Equal(t, "temporary error", attempts[1].Error)
	require.Equal(t, worklog.TxID(4), attempts[1].TxID)
	require.Equal(t, int64(13), attempts[1].Offset)
	require.Equal(t, 1500*time.Microsecond, attempts[1].Duration)
	require.True(t, attempts[1].CreatedAt.Equal(now))
}

func TestCountByOutcome(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for _, a := range []worklog.Attempt{
		{Log: "orders", Outcome: worklog.OutcomeRetry},
		{Log: "orders", Outcome: worklog.OutcomeRetry},
		{Log: "orders", Outcome: worklog.OutcomeDead},
		{Log: "billing", Outcome: worklog.OutcomeSucceeded},
	} {
		require.NoError(t, store.RecordAttempt(ctx, a))
	}

	orders, err := store.CountByOutcome(ctx, "orders")
	require.NoError(t, err)
	require.Equal(t, map[worklog.Outcome]int{worklog.OutcomeRetry: 2, worklog.OutcomeDead: 1}, orders)

	all, err := store.CountByOutcome(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, all[worklog.OutcomeSucceeded])
}

func TestRecordAttemptValidation(t *testing.T) {
	store := openTempStore(t)
	require.Error(t, store.RecordAttempt(context.Background(), worklog.Attempt{}))
	require.Error(t, store.RecordAttempt(context.Background(), worklog.Attempt{Log: "orders"}))

	_, err := store.ListAttempts(context.Background(), 0)
	require.ErrorIs(t, err, ErrLimitInvalid)
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attempts.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.RecordAttempt(ctx, worklog.Attempt{Log: "orders", Outcome: worklog.OutcomeDead}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	var applied int
	require.NoError(t, second.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	require.Equal(t, 2, applied)

	attempts, err := second.ListAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestUpSection(t *testing.T) {
	require.Equal(t, "\nCREATE x;\n", upSection("-- +migrate Up\nCREATE x;\n-- +migrate Down\nDROP x;"))
	require.Equal(t, "CREATE y;", upSection("CREATE y;"))
}
