package index

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/velmie/worklog"
)

const (
	nodePrefix  = 'n'
	indexPrefix = 'i'
)

// Store is a property index backed by Pebble.
type Store struct {
	db     *pebble.DB
	logger worklog.Logger

	// mu serializes the read-modify-write in Apply
	mu sync.Mutex
}

var _ worklog.Executor[Update] = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger worklog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens or creates the index in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("worklog index: open %s: %w", dir, err)
	}
	s := &Store{db: db, logger: worklog.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Execute applies one update. It implements worklog.Executor.
func (s *Store) Execute(ctx context.Context, task worklog.Task[Update]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Apply(task.Item)
}

// Apply writes u in one synced batch.
func (s *Store) Apply(u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fwd := nodeKey(u.NodeID, u.Property)
	current, found, err := s.get(fwd)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	switch u.Op {
	case OpSet:
		if found && current == u.Value {
			return nil
		}
		if found {
			if err := batch.Delete(indexKey(u.Property, current, u.NodeID), nil); err != nil {
				return fmt.Errorf("worklog index: delete stale entry: %w", err)
			}
		}
		if err := batch.Set(fwd, encodeValue(u.Value), nil); err != nil {
			return fmt.Errorf("worklog index: set node key: %w", err)
		}
		if err := batch.Set(indexKey(u.Property, u.Value, u.NodeID), nil, nil); err != nil {
			return fmt.Errorf("worklog index: set index key: %w", err)
		}
	case OpDelete:
		if !found {
			return nil
		}
		if err := batch.Delete(fwd, nil); err != nil {
			return fmt.Errorf("worklog index: delete node key: %w", err)
		}
		if err := batch.Delete(indexKey(u.Property, current, u.NodeID), nil); err != nil {
			return fmt.Errorf("worklog index: delete index key: %w", err)
		}
	default:
		return worklog.Permanent(fmt.Errorf("%w: %d", ErrUnknownOp, u.Op))
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("worklog index: commit: %w", err)
	}
	s.logger.Debug("worklog index applied update", "node_id", u.NodeID, "property", u.Property, "value", u.Value, "op", u.Op)
	return nil
}

// Value returns the current value of a node property.
func (s *Store) Value(nodeID uint64, property uint32) (uint64, bool, error) {
	return s.get(nodeKey(nodeID, property))
}

// Lookup returns the ids of nodes whose property equals value, in ascending order.
func (s *Store) Lookup(property uint32, value uint64) ([]uint64, error) {
	prefix := indexKey(property, value, 0)[:1+4+8]
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixSuccessor(prefix)})
	if err != nil {
		return nil, fmt.Errorf("worklog index: create iterator: %w", err)
	}
	defer iter.Close()

	var nodes []uint64
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) != len(prefix)+8 {
			continue
		}
		nodes = append(nodes, binary.BigEndian.Uint64(key[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("worklog index: iterate: %w", err)
	}
	return nodes, nil
}

func (s *Store) get(key []byte) (uint64, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("worklog index: get: %w", err)
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false, fmt.Errorf("worklog index: corrupt value of length %d", len(val))
	}
	return binary.BigEndian.Uint64(val), true, nil
}

// prefixSuccessor returns the smallest key greater than every key starting
// with prefix, or nil when no such key exists.
func prefixSuccessor(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func nodeKey(nodeID uint64, property uint32) []byte {
	key := make([]byte, 1+8+4)
	key[0] = nodePrefix
	binary.BigEndian.PutUint64(key[1:], nodeID)
	binary.BigEndian.PutUint32(key[9:], property)
	return key
}

func indexKey(property uint32, value, nodeID uint64) []byte {
	key := make([]byte, 1+4+8+8)
	key[0] = indexPrefix
	binary.BigEndian.PutUint32(key[1:], property)
	binary.BigEndian.PutUint64(key[5:], value)
	binary.BigEndian.PutUint64(key[13:], nodeID)
	return key
}

func encodeValue(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
