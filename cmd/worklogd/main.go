// Command worklogd drains a durable work log into a Pebble index or a Kafka
// topic. Transactions are submitted over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/velmie/worklog/internal/config"
	"github.com/velmie/worklog/internal/daemon"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, cfg, logger); err != nil {
		logger.Error("worklogd stopped with error", "err", err)
		os.Exit(1)
	}
}
