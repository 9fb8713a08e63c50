package worklog

import "sync"

// FailLog is a dead-letter WorkLog whose file is created on the first Append.
// Its records are never read by a worker, so Close always keeps the file.
type FailLog[T any] struct {
	log *WorkLog[T]

	mu     sync.Mutex
	opened bool
}

// NewFailLog binds a fail log to path.
func NewFailLog[T any](path string, hook Hook[T], opts ...LogOption) *FailLog[T] {
	opts = append([]LogOption{WithLogName(path)}, opts...)
	opts = append(opts, WithDisposal(DisposalNone))
	return &FailLog[T]{log: NewWorkLog(path, hook, opts...)}
}

// Path returns the file path.
func (f *FailLog[T]) Path() string { return f.log.Path() }

// Opened reports whether the file was created during this run.
func (f *FailLog[T]) Opened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Append durably writes one dead-lettered item, opening the file if needed.
func (f *FailLog[T]) Append(txID TxID, item T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		if err := f.log.Start(); err != nil {
			return err
		}
		f.opened = true
	}
	return f.log.Add(txID, item)
}

// Close closes the file if it was opened.
func (f *FailLog[T]) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened {
		return nil
	}
	f.opened = false
	return f.log.Close()
}
