package worklog

import "context"

// Task is one execution attempt of a log entry.
type Task[T any] struct {
	Item    T
	TxID    TxID
	Offset  int64
	Attempt int
}

// Executor performs the deferred side effect of an item.
// It may be invoked more than once for the same entry, both across
// retries and across crash replays, and must tolerate that.
type Executor[T any] interface {
	Execute(ctx context.Context, task Task[T]) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc[T any] func(ctx context.Context, task Task[T]) error

// Execute implements Executor.
func (fn ExecutorFunc[T]) Execute(ctx context.Context, task Task[T]) error {
	return fn(ctx, task)
}
