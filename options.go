package worklog

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultMaxAttempts is the number of executor attempts before an entry is dead-lettered.
	DefaultMaxAttempts = 10

	defaultMaxConsumers    = 4
	defaultPollInterval    = 2 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultBackoffInitial  = 100 * time.Millisecond
	defaultBackoffMax      = 5 * time.Second

	failLogSuffix = ".failed"
	tracerName    = "github.com/velmie/worklog"
)

// LogConfig defines how a WorkLog names, logs and disposes of its file.
type LogConfig struct {
	Name     string
	Disposal Disposal
	Cleanup  *ExitCleanup
	Clock    Clock
	Logger   Logger
}

func (c LogConfig) withDefaults(path string) LogConfig {
	if c.Name == "" {
		c.Name = path
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	return c
}

// LogOption configures WorkLog behavior.
type LogOption func(*LogConfig)

// WithLogName sets the name used in logs, journals and dead letters.
// The default is the file path.
func WithLogName(name string) LogOption {
	return func(c *LogConfig) {
		c.Name = name
	}
}

// WithDisposal sets what Close does with a fully drained file. The default is DisposalDelete.
func WithDisposal(disposal Disposal) LogOption {
	return func(c *LogConfig) {
		c.Disposal = disposal
	}
}

// WithExitCleanup registers files that could not be deleted at Close for removal at exit.
func WithExitCleanup(cleanup *ExitCleanup) LogOption {
	return func(c *LogConfig) {
		c.Cleanup = cleanup
	}
}

// WithLogClock sets the clock used for archive suffixes.
func WithLogClock(clock Clock) LogOption {
	return func(c *LogConfig) {
		c.Clock = clock
	}
}

// WithLogLogger sets the log logger.
func WithLogLogger(logger Logger) LogOption {
	return func(c *LogConfig) {
		c.Logger = logger
	}
}

// WorkerConfig defines how a Worker schedules, retries and reports.
type WorkerConfig struct {
	MaxConsumers      int
	MaxAttempts       int
	PollInterval      time.Duration
	ShutdownTimeout   time.Duration
	HandlerTimeout    time.Duration
	Backoff           func() backoff.BackOff
	FailLogPath       string
	Clock             Clock
	Logger            Logger
	Metrics           Metrics
	Tracer            trace.Tracer
	ErrorHandler      FailureHandler
	FailureClassifier FailureClassifier
	AttemptRecorder   AttemptRecorder
	DeadLetterSink    DeadLetterSink
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.MaxConsumers <= 0 {
		c.MaxConsumers = defaultMaxConsumers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Backoff == nil {
		c.Backoff = defaultBackoff
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = defaultFailureClassifier
	}
	return c
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultBackoffInitial
	b.MaxInterval = defaultBackoffMax
	return b
}

// WorkerOption configures Worker behavior.
type WorkerOption func(*WorkerConfig)

// WithMaxConsumers bounds the number of concurrently active transactions.
func WithMaxConsumers(count int) WorkerOption {
	return func(c *WorkerConfig) {
		c.MaxConsumers = count
	}
}

// WithMaxAttempts sets the number of attempts before an entry is dead-lettered.
func WithMaxAttempts(attempts int) WorkerOption {
	return func(c *WorkerConfig) {
		c.MaxAttempts = attempts
	}
}

// WithPollInterval sets the scheduler wait when nothing changed.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.PollInterval = interval
	}
}

// WithShutdownTimeout bounds how long ShutDown waits for in-flight consumers.
func WithShutdownTimeout(timeout time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.ShutdownTimeout = timeout
	}
}

// WithHandlerTimeout sets a per-attempt executor timeout.
func WithHandlerTimeout(timeout time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.HandlerTimeout = timeout
	}
}

// WithBackoff sets the factory for per-consumer retry backoff policies.
func WithBackoff(factory func() backoff.BackOff) WorkerOption {
	return func(c *WorkerConfig) {
		c.Backoff = factory
	}
}

// WithConstantBackoff sleeps a fixed interval between attempts.
func WithConstantBackoff(interval time.Duration) WorkerOption {
	return func(c *WorkerConfig) {
		c.Backoff = func() backoff.BackOff {
			return backoff.NewConstantBackOff(interval)
		}
	}
}

// WithFailLogPath sets the fail log location. The default is the primary path plus ".failed".
func WithFailLogPath(path string) WorkerOption {
	return func(c *WorkerConfig) {
		c.FailLogPath = path
	}
}

// WithClock sets the worker clock.
func WithClock(clock Clock) WorkerOption {
	return func(c *WorkerConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger Logger) WorkerOption {
	return func(c *WorkerConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the worker metrics recorder.
func WithMetrics(metrics Metrics) WorkerOption {
	return func(c *WorkerConfig) {
		c.Metrics = metrics
	}
}

// WithTracer sets the tracer used for executor spans.
func WithTracer(tracer trace.Tracer) WorkerOption {
	return func(c *WorkerConfig) {
		c.Tracer = tracer
	}
}

// WithErrorHandler registers a callback for failed attempts.
func WithErrorHandler(handler FailureHandler) WorkerOption {
	return func(c *WorkerConfig) {
		c.ErrorHandler = handler
	}
}

// WithFailureClassifier sets the retry/dead-letter classifier.
func WithFailureClassifier(classifier FailureClassifier) WorkerOption {
	return func(c *WorkerConfig) {
		c.FailureClassifier = classifier
	}
}

// WithAttemptRecorder journals every executor attempt.
func WithAttemptRecorder(recorder AttemptRecorder) WorkerOption {
	return func(c *WorkerConfig) {
		c.AttemptRecorder = recorder
	}
}

// WithDeadLetterSink mirrors dead-lettered entries.
func WithDeadLetterSink(sink DeadLetterSink) WorkerOption {
	return func(c *WorkerConfig) {
		c.DeadLetterSink = sink
	}
}
