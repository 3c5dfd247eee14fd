package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/centsible/smsbudget/internal/budget/repository/postgres"
	"github.com/centsible/smsbudget/internal/messaging"
	"github.com/centsible/smsbudget/internal/platform/cache"
	"github.com/centsible/smsbudget/internal/platform/config"
	"github.com/centsible/smsbudget/internal/platform/database"
	"github.com/centsible/smsbudget/internal/platform/logger"
	"github.com/centsible/smsbudget/internal/platform/messagebroker"
	"github.com/centsible/smsbudget/internal/platform/metrics"
	"github.com/centsible/smsbudget/internal/scheduler/app"
)

const (
	serviceName     = "scheduler_service"
	shutdownTimeout = 10 * time.Second
	analyticsGrace  = 10 * time.Minute
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Starting service...")
	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"daily_job_time", cfg.DailyJobTime,
		"daily_job_timezone", cfg.DailyJobTimezone,
		"fallback_interval", cfg.FallbackJobInterval,
		"metrics_port", cfg.SchedulerMetricsPort,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Database connection pool initialized")

	nc, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	appLogger.Info("NATS connection initialized")

	redisClient, err := cache.NewRedisClient(mainCtx, cfg.RedisAddr)
	if err != nil {
		appLogger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	appLogger.Info("Redis connection initialized")

	recorder := metrics.NewPrometheus(serviceName)
	recorder.Start(mainCtx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = recorder.Shutdown(shutdownCtx)
	}()

	userRepo := postgres.NewPgUserRepository(dbPool, appLogger)
	goalRepo := postgres.NewPgGoalRepository(dbPool, appLogger, cfg.GoalMonthStartDay)
	analyticsRepo := postgres.NewPgAnalyticsRepository(dbPool, appLogger)
	jobRunRepo := postgres.NewPgJobRunRepository(dbPool, appLogger)
	outboundRepo := postgres.NewPgOutboundRepository(dbPool, appLogger)

	messenger := buildMessenger(cfg, userRepo, outboundRepo, appLogger, recorder)

	dailyJob := app.NewDailyJob(userRepo, goalRepo, analyticsRepo, messenger, appLogger, recorder)
	fallbackJob := app.NewFallbackJob(analyticsRepo, app.NewBrokerRecomputeRequester(nc),
		analyticsGrace, appLogger, recorder)
	locker := app.NewRedisLocker(redisClient)

	runner, err := app.NewRunner(dailyJob, fallbackJob, jobRunRepo, locker, appLogger, recorder, app.RunnerConfig{
		DailyTime:        cfg.DailyJobTime,
		Timezone:         cfg.DailyJobTimezone,
		FallbackInterval: cfg.FallbackJobInterval,
	})
	if err != nil {
		appLogger.Error("Failed to build scheduler runner", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SchedulerMetricsPort),
		Handler: metricsMux(recorder),
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("Starting scheduler loop")
		err := runner.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	appLogger.Info("Service components initialized. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		appLogger.Info("Received termination signal", "signal", sig.String())
	case groupErr = <-watchGroup(g):
		appLogger.Error("A critical component failed, initiating shutdown", "error", groupErr)
	}

	appLogger.Info("Attempting graceful shutdown...")
	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Error during graceful shutdown of components", "error", err)
	}
	appLogger.Info("Service shutdown complete.")
}

// buildMessenger assembles the outbound stack from configuration.
func buildMessenger(cfg *config.Config, users messaging.UserBookkeeper, deliveries messaging.DeliveryLog, appLogger *slog.Logger, recorder metrics.Recorder) messaging.Messenger {
	var backend messaging.Backend
	switch cfg.MessagingBackend {
	case "sns":
		backend = messaging.NewSNSBackend(appLogger, cfg.SNSAPIBaseURL, cfg.SNSAPIKey, nil)
	default:
		backend = messaging.NewCarrierBackend(appLogger, cfg.CarrierAPIBaseURL,
			cfg.CarrierAccountSID, cfg.CarrierAuthToken, cfg.OriginationNumber, cfg.SenderPoolID, nil)
	}

	var policy messaging.DestinationPolicy
	if cfg.SandboxMode {
		policy = messaging.PolicyFromName(cfg.DestinationPolicy, cfg.SimulatorNumber, cfg.OriginationNumber, appLogger)
	} else {
		policy = messaging.NewIdentityPolicy()
	}

	bulkDelay := time.Duration(cfg.BulkSendDelayMS) * time.Millisecond
	if cfg.SandboxMode {
		bulkDelay = time.Duration(cfg.BulkSendDelaySandboxMS) * time.Millisecond
	}

	return messaging.NewService(backend, policy, users, deliveries, appLogger, recorder, messaging.ServiceConfig{
		MaxAttempts: cfg.SendRetryMaxAttempts,
		RetryDelay:  500 * time.Millisecond,
		BulkDelay:   bulkDelay,
	})
}

// watchGroup monitors an errgroup for early exit.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}

func metricsMux(recorder *metrics.PrometheusRecorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
