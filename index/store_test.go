package index

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/velmie/worklog"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCodecRoundTrip(t *testing.T) {
	c := Hook{}.NewCodec()
	in := Update{NodeID: 1<<40 + 3, Property: 7, Value: 99, Op: OpSet}
	buf := make([]byte, Hook{}.EntrySize())
	require.NoError(t, c.Encode(buf, in))

	var out Update
	require.NoError(t, c.Decode(buf, &out))
	require.Equal(t, in, out)

	buf[20] = 9
	require.ErrorIs(t, c.Decode(buf, &out), ErrUnknownOp)
	require.ErrorIs(t, c.Encode(make([]byte, 3), in), worklog.ErrPayloadSize)
}

func TestApplySetMovesIndexEntry(t *testing.T) {
	store := openTempStore(t)

	require.NoError(t, store.Apply(Update{NodeID: 1, Property: 5, Value: 10, Op: OpSet}))
	require.NoError(t, store.Apply(Update{NodeID: 2, Property: 5, Value: 10, Op: OpSet}))

	nodes, err := store.Lookup(5, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, nodes)

	require.NoError(t, store.Apply(Update{NodeID: 1, Property: 5, Value: 11, Op: OpSet}))
	nodes, err = store.Lookup(5, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, nodes)

	value, ok, err := store.Value(1, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(11), value)
}

func TestApplyIsIdempotent(t *testing.T) {
	store := openTempStore(t)
	set := Update{NodeID: 3, Property: 1, Value: 4, Op: OpSet}
	del := Update{NodeID: 3, Property: 1, Op: OpDelete}

	for i := 0; i < 2; i++ {
		require.NoError(t, store.Apply(set))
	}
	nodes, err := store.Lookup(1, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, nodes)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.Apply(del))
	}
	nodes, err = store.Lookup(1, 4)
	require.NoError(t, err)
	require.Empty(t, nodes)
	_, ok, err := store.Value(3, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplyConcurrentSetsKeepOneIndexEntry(t *testing.T) {
	store := openTempStore(t)
	const writers = 8

	for round := 0; round < 50; round++ {
		start := make(chan struct{})
		errs := make(chan error, writers)
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(v uint64) {
				defer wg.Done()
				<-start
				errs <- store.Apply(Update{NodeID: 42, Property: 1, Value: v, Op: OpSet})
			}(uint64(round*writers + w))
		}
		close(start)
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		entries := 0
		for v := uint64(0); v < uint64((round+1)*writers); v++ {
			nodes, err := store.Lookup(1, v)
			require.NoError(t, err)
			entries += len(nodes)
		}
		require.Equal(t, 1, entries, "round %d", round)
	}
}

func TestLookupFindsHighNodeIDs(t *testing.T) {
	store := openTempStore(t)
	const node = uint64(0xFF00000000000001)
	require.NoError(t, store.Apply(Update{NodeID: node, Property: 1, Value: 5, Op: OpSet}))
	require.NoError(t, store.Apply(Update{NodeID: 3, Property: 1, Value: 6, Op: OpSet}))

	nodes, err := store.Lookup(1, 5)
	require.NoError(t, err)
	require.Equal(t, []uint64{node}, nodes)
}

func TestPrefixSuccessor(t *testing.T) {
	require.Equal(t, []byte{1, 3}, prefixSuccessor([]byte{1, 2}))
	require.Equal(t, []byte{2}, prefixSuccessor([]byte{1, 0xFF}))
	require.Nil(t, prefixSuccessor([]byte{0xFF, 0xFF}))
}

func TestApplyRejectsUnknownOpPermanently(t *testing.T) {
	store := openTempStore(t)
	err := store.Apply(Update{NodeID: 1, Property: 1, Op: 0})
	require.ErrorIs(t, err, ErrUnknownOp)
	var permanent *backoff.PermanentError
	require.True(t, errors.As(err, &permanent))
}

func TestWorkerDrainsUpdatesIntoIndex(t *testing.T) {
	dir := t.TempDir()
	store := openTempStore(t)
	log := worklog.NewWorkLog[Update](filepath.Join(dir, "index.log"), Hook{})
	w := worklog.NewWorker[Update](log, store, worklog.WithPollInterval(5*time.Millisecond))

	require.NoError(t, w.PrepareStartUp())
	require.NoError(t, w.StartUp(context.Background()))
	require.NoError(t, w.Submit(1,
		Update{NodeID: 1, Property: 2, Value: 3, Op: OpSet},
		Update{NodeID: 1, Property: 2, Value: 4, Op: OpSet},
	))
	require.NoError(t, w.Submit(2, Update{NodeID: 9, Property: 2, Value: 4, Op: OpSet}))

	require.Eventually(t, func() bool {
		return log.Stats().Drained() && w.IsIdle()
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, w.ShutDown(context.Background()))

	nodes, err := store.Lookup(2, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 9}, nodes)
	nodes, err = store.Lookup(2, 3)
	require.NoError(t, err)
	require.Empty(t, nodes)
}
