// Package config loads worklogd settings from WORKLOG_* environment
// variables, then lets command-line flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/velmie/worklog"
)

// Executor modes.
const (
	ExecutorIndex = "index"
	ExecutorKafka = "kafka"
)

// Config is the daemon configuration.
type Config struct {
	LogPath         string        `env:"WORKLOG_LOG_PATH"`
	LogName         string        `env:"WORKLOG_LOG_NAME"`
	Disposal        string        `env:"WORKLOG_DISPOSAL"          envDefault:"delete"`
	FailLogPath     string        `env:"WORKLOG_FAIL_LOG_PATH"`
	MaxConsumers    int           `env:"WORKLOG_MAX_CONSUMERS"     envDefault:"4"`
	MaxAttempts     int           `env:"WORKLOG_MAX_ATTEMPTS"      envDefault:"10"`
	PollInterval    time.Duration `env:"WORKLOG_POLL_INTERVAL"     envDefault:"2s"`
	ShutdownTimeout time.Duration `env:"WORKLOG_SHUTDOWN_TIMEOUT"  envDefault:"30s"`
	HandlerTimeout  time.Duration `env:"WORKLOG_HANDLER_TIMEOUT"`

	Executor     string   `env:"WORKLOG_EXECUTOR"      envDefault:"index"`
	IndexDir     string   `env:"WORKLOG_INDEX_DIR"`
	KafkaBrokers []string `env:"WORKLOG_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"WORKLOG_KAFKA_TOPIC"`

	AttemptsDB string `env:"WORKLOG_ATTEMPTS_DB"`
	MySQLDSN   string `env:"WORKLOG_MYSQL_DSN"`
	MySQLTable string `env:"WORKLOG_MYSQL_TABLE" envDefault:"worklog_dead_letters"`

	HTTPAddr     string `env:"WORKLOG_HTTP_ADDR"     envDefault:":8080"`
	GRPCAddr     string `env:"WORKLOG_GRPC_ADDR"     envDefault:":9090"`
	OTelEndpoint string `env:"WORKLOG_OTEL_ENDPOINT"`
	LogLevel     string `env:"WORKLOG_LOG_LEVEL"     envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the environment and then applies flags from args.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.bind(fs)
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.LogPath, "log", c.LogPath, "Work log file path")
	fs.StringVar(&c.LogName, "name", c.LogName, "Work log name used in logs and metrics (defaults to the path)")
	fs.StringVar(&c.Disposal, "disposal", c.Disposal, "What to do with a drained log on shutdown: delete, archive or none")
	fs.StringVar(&c.FailLogPath, "fail-log", c.FailLogPath, "Fail log path (defaults to <log>.failed)")
	fs.IntVar(&c.MaxConsumers, "max-consumers", c.MaxConsumers, "Maximum concurrent consumers")
	fs.IntVar(&c.MaxAttempts, "max-attempts", c.MaxAttempts, "Attempts before an entry is dead-lettered")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Scheduler poll interval")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Graceful drain timeout")
	fs.DurationVar(&c.HandlerTimeout, "handler-timeout", c.HandlerTimeout, "Per-attempt executor timeout (0 disables)")
	fs.StringVar(&c.Executor, "executor", c.Executor, "Executor: index or kafka")
	fs.StringVar(&c.IndexDir, "index-dir", c.IndexDir, "Pebble index directory")
	fs.Func("kafka-brokers", "Comma separated Kafka brokers", func(v string) error {
		c.KafkaBrokers = splitList(v)
		return nil
	})
	fs.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "Kafka topic")
	fs.StringVar(&c.AttemptsDB, "attempts-db", c.AttemptsDB, "SQLite attempt journal path (optional)")
	fs.StringVar(&c.MySQLDSN, "mysql-dsn", c.MySQLDSN, "MySQL DSN for the dead-letter mirror (optional)")
	fs.StringVar(&c.MySQLTable, "mysql-table", c.MySQLTable, "Dead-letter table name")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP listen address for submissions and /metrics")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&c.OTelEndpoint, "otel-endpoint", c.OTelEndpoint, "OTLP/HTTP traces endpoint (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error")
}

// Validate checks required settings and value ranges.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LogPath) == "" {
		errs = append(errs, errors.New("log path is required"))
	}
	if _, err := worklog.ParseDisposal(c.Disposal); err != nil {
		errs = append(errs, err)
	}
	if c.MaxConsumers <= 0 {
		errs = append(errs, fmt.Errorf("max consumers must be positive, got %d", c.MaxConsumers))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	switch c.Executor {
	case ExecutorIndex:
		if c.IndexDir == "" {
			errs = append(errs, errors.New("index dir is required for the index executor"))
		}
	case ExecutorKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka brokers and topic are required for the kafka executor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown executor %q", c.Executor))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
