package worklog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Worker.
type State int32

const (
	// StateCreated is a new worker whose log has not been started.
	StateCreated State = iota
	// StatePrepared has a started log and accepts Submit, but schedules nothing.
	StatePrepared
	// StateRunning schedules entries onto consumers.
	StateRunning
	// StateDraining has stopped scheduling and waits for in-flight consumers.
	StateDraining
	// StateStopped has closed its logs.
	StateStopped
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Worker drains a WorkLog through a bounded pool of per-transaction consumers.
// Entries of one transaction are executed in log order by a single consumer;
// entries of different transactions run concurrently.
type Worker[T any] struct {
	log     *WorkLog[T]
	failLog *FailLog[T]
	exec    Executor[T]
	cfg     WorkerConfig

	state  atomic.Int32
	halted atomic.Bool
	active atomic.Int32

	wake      chan struct{}
	finished  chan *consumer[T]
	stop      chan struct{}
	stopOnce  sync.Once
	loopDone  chan struct{}
	consumers sync.WaitGroup

	baseCtx context.Context

	errMu sync.Mutex
	err   error
}

// NewWorker creates a worker for log that runs exec for every entry.
func NewWorker[T any](log *WorkLog[T], exec Executor[T], opts ...WorkerOption) *Worker[T] {
	if log == nil {
		panic("worklog: nil WorkLog")
	}
	if exec == nil {
		panic("worklog: nil Executor")
	}

	var cfg WorkerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if cfg.FailLogPath == "" {
		cfg.FailLogPath = log.Path() + failLogSuffix
	}

	return &Worker[T]{
		log:     log,
		failLog: NewFailLog(cfg.FailLogPath, log.Hook(), WithLogName(log.Name()+failLogSuffix), WithLogLogger(cfg.Logger)),
		exec:    exec,
		cfg:     cfg,
		wake:    make(chan struct{}, 1),
		// every registered consumer sends exactly one message, so this never blocks
		finished: make(chan *consumer[T], cfg.MaxConsumers),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
		baseCtx:  context.Background(),
	}
}

// State returns the current lifecycle state.
func (w *Worker[T]) State() State {
	return State(w.state.Load())
}

// FailLog returns the worker's dead-letter log.
func (w *Worker[T]) FailLog() *FailLog[T] {
	return w.failLog
}

// PrepareStartUp starts the work log, repairing it if needed.
func (w *Worker[T]) PrepareStartUp() error {
	if !w.state.CompareAndSwap(int32(StateCreated), int32(StatePrepared)) {
		return fmt.Errorf("%w: prepare from %s", ErrInvalidState, w.State())
	}
	if err := w.log.Start(); err != nil {
		w.state.Store(int32(StateCreated))
		return err
	}
	if w.log.Recovered() {
		w.cfg.Logger.Warn("worklog worker recovered log after crash", "log", w.log.Name())
	}
	return nil
}

// StartUp launches the scheduler. Values of ctx are passed to the executor;
// its cancellation is not.
func (w *Worker[T]) StartUp(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StatePrepared), int32(StateRunning)) {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, w.State())
	}
	w.baseCtx = context.WithoutCancel(ctx)
	w.cfg.Logger.Info("worklog worker started", "log", w.log.Name(), "max_consumers", w.cfg.MaxConsumers)
	go w.loop()
	return nil
}

// Submit durably appends items for txID and wakes the scheduler.
func (w *Worker[T]) Submit(txID TxID, items ...T) error {
	switch st := w.State(); st {
	case StatePrepared, StateRunning:
	default:
		return fmt.Errorf("%w: submit in %s", ErrInvalidState, st)
	}
	if err := w.log.Add(txID, items...); err != nil {
		return err
	}
	w.signal()
	return nil
}

// HostShutdown halts scheduling immediately without waiting for consumers.
// Unfinished entries stay INCOMPLETE in the log and replay on the next start.
func (w *Worker[T]) HostShutdown() {
	w.cfg.Logger.Info("worklog worker halted by host", "log", w.log.Name())
	w.halt()
}

// IsIdle reports whether no consumer is active.
func (w *Worker[T]) IsIdle() bool {
	return w.active.Load() == 0
}

// Err returns the fatal error that halted the worker, if any.
func (w *Worker[T]) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Done is closed when the scheduler loop exits.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.loopDone
}

// Wait blocks until the scheduler loop of a started worker exits and returns
// the fatal error, if any.
func (w *Worker[T]) Wait() error {
	<-w.loopDone
	return w.Err()
}

// ShutDown halts the scheduler, waits for in-flight consumers up to the
// shutdown timeout or ctx, then closes the work log and the fail log.
func (w *Worker[T]) ShutDown(ctx context.Context) error {
	switch st := w.State(); st {
	case StateCreated:
		w.state.Store(int32(StateStopped))
		return nil
	case StatePrepared:
		w.state.Store(int32(StateStopped))
		w.halt()
		return errors.Join(w.log.Close(), w.failLog.Close())
	case StateRunning:
		if !w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
			return fmt.Errorf("%w: shut down from %s", ErrInvalidState, w.State())
		}
	default:
		return fmt.Errorf("%w: shut down from %s", ErrInvalidState, st)
	}

	w.halt()
	<-w.loopDone

	done := make(chan struct{})
	go func() {
		w.consumers.Wait()
		close(done)
	}()
	timer := time.NewTimer(w.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		w.cfg.Logger.Warn("worklog worker shutdown timed out; abandoning consumers", "log", w.log.Name(), "active", w.active.Load())
	case <-ctx.Done():
		w.cfg.Logger.Warn("worklog worker shutdown canceled; abandoning consumers", "log", w.log.Name(), "active", w.active.Load(), "err", ctx.Err())
	}

	closeErr := errors.Join(w.log.Close(), w.failLog.Close())
	w.state.Store(int32(StateStopped))
	w.cfg.Logger.Info("worklog worker stopped", "log", w.log.Name())
	return errors.Join(w.Err(), closeErr)
}

// Run prepares and starts the worker, waits until ctx is done or a fatal
// error halts it, then shuts down.
func (w *Worker[T]) Run(ctx context.Context) error {
	if err := w.PrepareStartUp(); err != nil {
		return err
	}
	if err := w.StartUp(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-w.loopDone:
	}
	return w.ShutDown(context.WithoutCancel(ctx))
}

func (w *Worker[T]) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker[T]) halt() {
	w.halted.Store(true)
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Worker[T]) fatal(err error) {
	if w.halted.Load() && errors.Is(err, ErrNotStarted) {
		// log closed under an abandoned consumer during shutdown
		return
	}
	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
	w.cfg.Logger.Error("worklog worker fatal error", "log", w.log.Name(), "err", err)
	w.halt()
}

// loop is the only goroutine that touches the consumer registry and the
// holdback slot.
func (w *Worker[T]) loop() {
	defer close(w.loopDone)

	registry := make(map[TxID]*consumer[T], w.cfg.MaxConsumers)
	var holdback *Entry[T]

	for {
		w.drainFinished(registry)
		if w.halted.Load() {
			return
		}

		changed, err := w.balance(registry, &holdback)
		if err != nil {
			w.fatal(err)
			return
		}
		w.cfg.Metrics.SetActiveConsumers(len(registry))
		w.cfg.Metrics.SetOutstanding(w.log.Stats().Outstanding)
		if changed {
			continue
		}

		timer := time.NewTimer(w.cfg.PollInterval)
		select {
		case <-w.stop:
		case <-w.wake:
		case c := <-w.finished:
			w.deregister(registry, c)
		case <-timer.C:
		}
		timer.Stop()
	}
}

// balance assigns entries to consumers while there is spare capacity.
func (w *Worker[T]) balance(registry map[TxID]*consumer[T], holdback **Entry[T]) (bool, error) {
	changed := false
	for len(registry) < w.cfg.MaxConsumers && !w.halted.Load() {
		entry := *holdback
		if entry != nil {
			*holdback = nil
		} else {
			next, err := w.log.Next()
			if errors.Is(err, ErrNoEntries) {
				return changed, nil
			}
			if err != nil {
				return changed, err
			}
			entry = next
		}

		if c, ok := registry[entry.TxID()]; ok {
			if c.offer(entry) {
				changed = true
				continue
			}
			// the consumer drained and is exiting; wait for it to deregister
			*holdback = entry
			return changed, nil
		}

		c := newConsumer(w, entry)
		registry[entry.TxID()] = c
		w.active.Add(1)
		w.consumers.Add(1)
		go c.run()
		changed = true
	}
	return changed, nil
}

func (w *Worker[T]) drainFinished(registry map[TxID]*consumer[T]) {
	for {
		select {
		case c := <-w.finished:
			w.deregister(registry, c)
		default:
			return
		}
	}
}

func (w *Worker[T]) deregister(registry map[TxID]*consumer[T], c *consumer[T]) {
	if registry[c.txID] == c {
		delete(registry, c.txID)
	}
}
