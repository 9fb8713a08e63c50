// Package daemon runs worklogd: a work log drained into a Pebble index or a
// Kafka topic, with submissions and metrics over HTTP and gRPC health checks.
package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/velmie/worklog"
	"github.com/velmie/worklog/index"
	"github.com/velmie/worklog/internal/config"
	"github.com/velmie/worklog/kafka"
	"github.com/velmie/worklog/mysql"
	"github.com/velmie/worklog/prommetrics"
	"github.com/velmie/worklog/sqlite"
	"github.com/velmie/worklog/telemetry"
)

// ServiceName identifies the daemon in traces and health checks.
const ServiceName = "worklogd"

const (
	telemetryShutdownTimeout = 5 * time.Second
	httpShutdownTimeout      = 5 * time.Second
)

// Run serves until ctx is canceled or the worker halts on a fatal error.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) (err error) {
	shutdownTelemetry, err := telemetry.Setup(ctx, ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if serr := shutdownTelemetry(sctx); serr != nil {
			logger.Warn("worklogd telemetry shutdown", "err", serr)
		}
	}()

	cleanup := &worklog.ExitCleanup{}
	defer func() {
		if cerr := cleanup.Run(); cerr != nil {
			logger.Error("worklogd exit cleanup", "err", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				logger.Warn("worklogd close resource", "err", cerr)
			}
		}
	}()

	exec, closeExec, err := openExecutor(cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeExec)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	disposal, err := worklog.ParseDisposal(cfg.Disposal)
	if err != nil {
		return err
	}
	logOpts := []worklog.LogOption{
		worklog.WithDisposal(disposal),
		worklog.WithExitCleanup(cleanup),
		worklog.WithLogLogger(logger),
	}
	if cfg.LogName != "" {
		logOpts = append(logOpts, worklog.WithLogName(cfg.LogName))
	}
	wl := worklog.NewWorkLog[index.Update](cfg.LogPath, index.Hook{}, logOpts...)

	metrics, err := prommetrics.New(registry, wl.Name())
	if err != nil {
		return err
	}

	workerOpts := []worklog.WorkerOption{
		worklog.WithMaxConsumers(cfg.MaxConsumers),
		worklog.WithMaxAttempts(cfg.MaxAttempts),
		worklog.WithPollInterval(cfg.PollInterval),
		worklog.WithShutdownTimeout(cfg.ShutdownTimeout),
		worklog.WithHandlerTimeout(cfg.HandlerTimeout),
		worklog.WithLogger(logger),
		worklog.WithMetrics(metrics),
		worklog.WithTracer(otel.Tracer(ServiceName)),
	}
	if cfg.FailLogPath != "" {
		workerOpts = append(workerOpts, worklog.WithFailLogPath(cfg.FailLogPath))
	}

	if cfg.AttemptsDB != "" {
		attempts, err := sqlite.Open(ctx, cfg.AttemptsDB)
		if err != nil {
			return err
		}
		closers = append(closers, attempts.Close)
		workerOpts = append(workerOpts, worklog.WithAttemptRecorder(attempts))
	}

	if cfg.MySQLDSN != "" {
		sink, closeSink, err := openDeadLetterMirror(ctx, cfg, logger)
		if err != nil {
			return err
		}
		closers = append(closers, closeSink)
		workerOpts = append(workerOpts, worklog.WithDeadLetterSink(sink))
	}

	worker := worklog.NewWorker[index.Update](wl, exec, workerOpts...)
	if err := worker.PrepareStartUp(); err != nil {
		return err
	}
	if err := worker.StartUp(ctx); err != nil {
		return errors.Join(err, worker.ShutDown(context.Background()))
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newHandler(worker, wl, registry, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	var lis net.Listener
	if cfg.GRPCAddr != "" {
		lis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return errors.Join(fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err), worker.ShutDown(context.Background()))
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("worklogd http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	if lis != nil {
		group.Go(func() error {
			logger.Info("worklogd grpc health listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve grpc: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		select {
		case <-gctx.Done():
		case <-worker.Done():
			if werr := worker.Err(); werr != nil {
				logger.Error("worklogd worker halted", "err", werr)
			}
		}

		healthServer.Shutdown()
		// Stop accepting submissions before the log closes.
		sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		herr := httpServer.Shutdown(sctx)
		grpcServer.GracefulStop()

		werr := worker.ShutDown(context.Background())
		return errors.Join(herr, werr)
	})

	return group.Wait()
}

func openExecutor(cfg config.Config, logger *slog.Logger) (worklog.Executor[index.Update], func() error, error) {
	switch cfg.Executor {
	case config.ExecutorKafka:
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		pub, err := kafka.NewPublisher[index.Update](writer, index.Hook{})
		if err != nil {
			_ = writer.Close()
			return nil, nil, err
		}
		logger.Info("worklogd publishing to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return pub, writer.Close, nil
	default:
		store, err := index.Open(cfg.IndexDir, index.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("worklogd applying updates to index", "dir", cfg.IndexDir)
		return store, store.Close, nil
	}
}

func openDeadLetterMirror(ctx context.Context, cfg config.Config, logger *slog.Logger) (*mysql.Store, func() error, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}
	store, err := mysql.NewStore(db, mysql.WithTable(cfg.MySQLTable), mysql.WithLogger(logger))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db.Close, nil
}
