package mysql

import "github.com/velmie/worklog"

const defaultTable = "worklog_dead_letters"

// Config defines MySQL store behavior.
type Config struct {
	Table  string
	Clock  worklog.Clock
	Logger worklog.Logger
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Clock == nil {
		c.Clock = worklog.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = worklog.NopLogger{}
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the dead-letter table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithClock sets the time source used for resolved_at.
func WithClock(clock worklog.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the store logger.
func WithLogger(logger worklog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
