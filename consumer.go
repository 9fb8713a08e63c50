package worklog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorLen = 1024

// consumer executes the entries of one transaction in order.
type consumer[T any] struct {
	w       *Worker[T]
	txID    TxID
	codec   Codec[T]
	backoff backoff.BackOff

	mu     sync.Mutex
	queue  []*Entry[T]
	closed bool
}

func newConsumer[T any](w *Worker[T], first *Entry[T]) *consumer[T] {
	return &consumer[T]{
		w:       w,
		txID:    first.TxID(),
		codec:   w.log.Hook().NewCodec(),
		backoff: w.cfg.Backoff(),
		queue:   []*Entry[T]{first},
	}
}

// offer appends entry unless the consumer already decided to exit.
func (c *consumer[T]) offer(entry *Entry[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.queue = append(c.queue, entry)
	return true
}

// take pops the next entry; an empty queue closes the consumer.
func (c *consumer[T]) take() (*Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		c.closed = true
		return nil, false
	}
	entry := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return entry, true
}

func (c *consumer[T]) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *consumer[T]) run() {
	w := c.w
	defer func() {
		w.active.Add(-1)
		w.finished <- c
		w.consumers.Done()
	}()

	for {
		if w.halted.Load() {
			c.close()
			return
		}
		entry, ok := c.take()
		if !ok {
			return
		}
		if err := c.process(entry); err != nil {
			w.fatal(err)
			c.close()
			return
		}
	}
}

// process runs the entry until it succeeds, is dead-lettered, or the worker
// halts. Only log faults are returned.
func (c *consumer[T]) process(entry *Entry[T]) error {
	w := c.w
	c.backoff.Reset()

	var lastErr error
	attempt := 1
	for ; ; attempt++ {
		started := time.Now()
		err := c.execute(entry, attempt)
		elapsed := time.Since(started)

		if err == nil {
			if err := w.log.WriteCompleted(entry); err != nil {
				return err
			}
			w.cfg.Metrics.AddProcessed(1)
			c.record(entry, attempt, OutcomeSucceeded, nil, elapsed)
			return nil
		}

		lastErr = err
		w.cfg.Metrics.AddErrors(1)
		failure := Failure{TxID: entry.TxID(), Offset: entry.Offset(), Attempt: attempt, Err: err}
		if w.cfg.ErrorHandler != nil {
			w.cfg.ErrorHandler(w.baseCtx, failure)
		}
		if attempt >= w.cfg.MaxAttempts || w.cfg.FailureClassifier(w.baseCtx, failure) == FailureDead {
			c.record(entry, attempt, OutcomeDead, err, elapsed)
			break
		}

		delay := c.backoff.NextBackOff()
		if delay == backoff.Stop {
			c.record(entry, attempt, OutcomeDead, err, elapsed)
			break
		}
		c.record(entry, attempt, OutcomeRetry, err, elapsed)
		w.cfg.Metrics.AddRetries(1)
		w.cfg.Logger.Debug("worklog attempt failed; retrying", "log", w.log.Name(), "tx_id", entry.TxID(),
			"offset", entry.Offset(), "attempt", attempt, "delay", delay, "err", err)
		if !c.sleep(delay) {
			// halted: the entry stays INCOMPLETE and replays on restart
			return nil
		}
	}

	return c.deadLetter(entry, attempt, lastErr)
}

func (c *consumer[T]) execute(entry *Entry[T], attempt int) (err error) {
	w := c.w
	ctx := w.baseCtx
	if w.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.HandlerTimeout)
		defer cancel()
	}

	ctx, span := w.cfg.Tracer.Start(ctx, "worklog.execute",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("worklog.log", w.log.Name()),
			attribute.Int64("worklog.tx_id", int64(entry.TxID())),
			attribute.Int64("worklog.offset", entry.Offset()),
			attribute.Int("worklog.attempt", attempt),
		))
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrExecutorPanic, r)
			w.cfg.Logger.Error("worklog executor panic", "log", w.log.Name(), "tx_id", entry.TxID(), "offset", entry.Offset(), "panic", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, truncateError(err.Error()))
		}
		span.End()
		w.cfg.Metrics.ObserveExecuteDuration(time.Since(started))
	}()

	return w.exec.Execute(ctx, Task[T]{
		Item:    entry.Item(),
		TxID:    entry.TxID(),
		Offset:  entry.Offset(),
		Attempt: attempt,
	})
}

func (c *consumer[T]) sleep(delay time.Duration) bool {
	if delay <= 0 {
		return !c.w.halted.Load()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-c.w.stop:
		return false
	case <-timer.C:
		return true
	}
}

// deadLetter moves the entry to the fail log and then completes it in the
// primary log. A failed fail-log append leaves the entry INCOMPLETE.
func (c *consumer[T]) deadLetter(entry *Entry[T], attempts int, cause error) error {
	w := c.w
	if err := w.failLog.Append(entry.TxID(), entry.Item()); err != nil {
		return fmt.Errorf("worklog: dead-letter offset %d: %w", entry.Offset(), err)
	}
	w.cfg.Metrics.AddDead(1)
	w.cfg.Logger.Warn("worklog entry dead-lettered", "log", w.log.Name(), "tx_id", entry.TxID(),
		"offset", entry.Offset(), "attempts", attempts, "fail_log", w.failLog.Path(), "err", cause)

	if w.cfg.DeadLetterSink != nil {
		letter := DeadLetter{
			Log:       w.log.Name(),
			TxID:      entry.TxID(),
			Offset:    entry.Offset(),
			Payload:   c.payload(entry),
			Attempts:  attempts,
			LastError: truncateError(errorString(cause)),
			FailedAt:  w.cfg.Clock.Now(),
		}
		if err := w.cfg.DeadLetterSink.WriteDeadLetter(w.baseCtx, letter); err != nil {
			w.cfg.Logger.Warn("worklog dead-letter sink failed", "log", w.log.Name(), "offset", entry.Offset(), "err", err)
		}
	}

	return w.log.WriteCompleted(entry)
}

func (c *consumer[T]) payload(entry *Entry[T]) []byte {
	buf := make([]byte, c.w.log.Hook().EntrySize())
	if err := c.codec.Encode(buf, entry.Item()); err != nil {
		c.w.cfg.Logger.Warn("worklog dead-letter payload encode failed", "offset", entry.Offset(), "err", err)
		return nil
	}
	return buf
}

func (c *consumer[T]) record(entry *Entry[T], attempt int, outcome Outcome, err error, elapsed time.Duration) {
	w := c.w
	if w.cfg.AttemptRecorder == nil {
		return
	}
	row := Attempt{
		Log:       w.log.Name(),
		TxID:      entry.TxID(),
		Offset:    entry.Offset(),
		Attempt:   attempt,
		Outcome:   outcome,
		Error:     truncateError(errorString(err)),
		Duration:  elapsed,
		CreatedAt: w.cfg.Clock.Now(),
	}
	if err := w.cfg.AttemptRecorder.RecordAttempt(w.baseCtx, row); err != nil {
		w.cfg.Logger.Warn("worklog attempt recorder failed", "log", w.log.Name(), "offset", entry.Offset(), "err", err)
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncateError(message string) string {
	if len(message) <= maxErrorLen {
		return message
	}
	return message[:maxErrorLen]
}
