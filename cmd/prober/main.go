package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/adapter"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/config"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/evaluator"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/eventbus"
	grpcserver "github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/grpc"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/health"
	httpserver "github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/http"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/metrics"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/orchestrator"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/probe"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/recorder"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/regions"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/scheduler"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/store"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/system"
	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/vault"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	logger.Info("StartupMonkey Prober starting...",
		zap.String("env_file", cfg.EnvFile),
		zap.String("credential_store", cfg.CredentialStore),
		zap.String("metrics_store", cfg.MetricsStore),
		zap.String("region", cfg.Region),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Prober stopped with error", zap.Error(err))
	}

	logger.Info("Prober stopped successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credStore, err := openCredentialStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer credStore.Close()

	sink, err := openMetricsSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	cipher, err := vault.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to build credential cipher: %w", err)
	}
	hasher, err := vault.NewHasher(cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to build credential hasher: %w", err)
	}
	v := vault.New(credStore, cipher, hasher, adapter.NewSSLPolicy(cfg.SSLLocalAliases), logger)

	if cfg.SeedFile != "" {
		specs, err := config.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		registered, err := v.RegisterSeed(ctx, specs)
		if err != nil {
			return fmt.Errorf("failed to register seed endpoints: %w", err)
		}
		logger.Info("Seed endpoints registered",
			zap.String("file", cfg.SeedFile),
			zap.Int("registered", registered),
			zap.Int("listed", len(specs)),
		)
	}

	m := metrics.NewMetrics()

	var (
		publisher *eventbus.Publisher
		notifier  recorder.Notifier
	)
	if cfg.NatsURL != "" {
		publisher, err = eventbus.NewPublisher(cfg.NatsURL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer publisher.Close()
		notifier = publisher
	} else {
		logger.Info("NATS_URL not set, event publishing disabled")
	}

	rec := recorder.New(sink, notifier, m, cfg.RecorderQueueSize, logger)
	rec.Start(ctx)

	dialer := adapter.NewPostgresDialer(cfg.ProbeTimeout)
	executor := probe.NewExecutor(dialer, system.Sample, logger)
	eval := evaluator.NewEvaluator(dialer, cfg.TopQueriesLimit, logger)

	orch := orchestrator.New(v, executor, eval, rec, regions.Default, m, orchestrator.Config{
		ProbeTimeout:    cfg.ProbeTimeout,
		BatchTimeout:    cfg.BatchTimeout,
		LatencyRounds:   cfg.LatencyRounds,
		LoadConcurrency: cfg.LoadConcurrency,
		LoadDuration:    cfg.LoadDuration,
		Origin:          cfg.Region,
	}, logger)

	checks := []health.Check{
		{Name: "credential_store", Ping: credStore.Ping},
		{Name: "metrics_sink", Ping: sink.Ping},
	}

	var subscriber *eventbus.Subscriber
	if publisher != nil {
		checks = append(checks, health.Check{Name: "nats", Ping: func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})

		subscriber, err = eventbus.NewSubscriber(cfg.NatsURL, orch, publisher, logger)
		if err != nil {
			return fmt.Errorf("failed to connect NATS subscriber: %w", err)
		}
		if err := subscriber.Start(ctx); err != nil {
			subscriber.Close()
			return fmt.Errorf("failed to subscribe to run requests: %w", err)
		}
	}

	checker := health.NewChecker(checks...)

	healthServer := health.NewServer(cfg.HealthPort, "prober", checker, logger)
	healthServer.Start()

	grpcServer, err := grpcserver.NewServer(cfg.GRPCPort, checker, grpcserver.DefaultRefreshInterval, logger)
	if err != nil {
		return err
	}

	errChan := make(chan error, 3)
	go func() {
		if err := grpcServer.Run(ctx); err != nil {
			errChan <- err
		}
	}()

	api := httpserver.NewServer(cfg.HTTPPort, v, orch, rec, m.Handler(), logger)
	go func() {
		if err := api.Start(); err != nil {
			errChan <- err
		}
	}()

	schedulerDone := make(chan struct{})
	if cfg.ScheduleInterval > 0 {
		kinds, err := scheduler.ParseKinds(cfg.ScheduleKinds)
		if err != nil {
			return err
		}

		var reports scheduler.ReportPublisher
		if publisher != nil {
			reports = publisher
		}
		sched := scheduler.New(orch, reports, kinds, cfg.ScheduleInterval, logger)

		go func() {
			defer close(schedulerDone)
			if err := sched.Run(ctx); err != nil {
				errChan <- err
			}
		}()
	} else {
		close(schedulerDone)
		logger.Info("SCHEDULE_INTERVAL not set, batches run on request only")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received...", zap.String("signal", sig.String()))
	case runErr = <-errChan:
		logger.Error("Server error", zap.Error(runErr))
	}

	// Stop producing work first, then drain everything that records.
	cancel()
	<-schedulerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown operator API", zap.Error(err))
	}
	if subscriber != nil {
		subscriber.Close()
	}

	orch.Wait()

	if err := rec.Close(shutdownCtx); err != nil {
		logger.Error("Failed to drain recorder", zap.Error(err))
	}

	grpcServer.Stop()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown health server", zap.Error(err))
	}

	return runErr
}

func openCredentialStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.CredentialStore, error) {
	switch cfg.CredentialStore {
	case config.StorePostgres:
		return store.NewPostgresCredentialStore(ctx, cfg.StoreDatabaseURL, logger)
	default:
		logger.Warn("Using in-memory credential store, endpoints are lost on restart")
		return store.NewMemoryCredentialStore(), nil
	}
}

func openMetricsSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.MetricsSink, error) {
	switch cfg.MetricsStore {
	case config.StorePostgres:
		return store.NewPostgresMetricsSink(ctx, cfg.StoreDatabaseURL, cfg.MetricsRetention, logger)
	case config.StoreRedis:
		return store.NewRedisMetricsSink(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MetricsRetention, logger)
	default:
		return store.NewMemoryMetricsSink(cfg.MetricsRetention), nil
	}
}

func initLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
