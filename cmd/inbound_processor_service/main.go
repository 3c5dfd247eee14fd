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
	"github.com/centsible/smsbudget/internal/orchestrator/app"
	"github.com/centsible/smsbudget/internal/platform/cache"
	"github.com/centsible/smsbudget/internal/platform/config"
	"github.com/centsible/smsbudget/internal/platform/database"
	"github.com/centsible/smsbudget/internal/platform/logger"
	"github.com/centsible/smsbudget/internal/platform/messagebroker"
	"github.com/centsible/smsbudget/internal/platform/metrics"
)

const (
	serviceName     = "inbound_processor_service"
	shutdownTimeout = 10 * time.Second
	dedupeTTL       = 48 * time.Hour
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
		"nats_url", cfg.NATSURL,
		"postgres_dsn_present", cfg.PostgresDSN != "",
		"messaging_backend", cfg.MessagingBackend,
		"metrics_port", cfg.InboundProcessorMetricsPort,
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
	inboxRepo := postgres.NewPgInboxRepository(dbPool, appLogger)
	analyticsRepo := postgres.NewPgAnalyticsRepository(dbPool, appLogger)
	outboundRepo := postgres.NewPgOutboundRepository(dbPool, appLogger)

	messenger := buildMessenger(cfg, userRepo, outboundRepo, appLogger, recorder)
	dedupe := app.NewRedisDeduper(redisClient, dedupeTTL)
	processor := app.NewProcessor(userRepo, goalRepo, inboxRepo, analyticsRepo,
		messenger, dedupe, appLogger, recorder, cfg.GoalMonthStartDay)
	consumer := app.NewConsumer(nc, processor, appLogger)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.InboundProcessorMetricsPort),
		Handler: metricsMux(recorder),
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return consumer.Run(groupCtx)
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

// buildMessenger assembles the outbound stack the way configuration asks:
// one provider backend, a destination policy, and the retry/pacing service.
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
