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

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/centsible/smsbudget/internal/platform/config"
	"github.com/centsible/smsbudget/internal/platform/logger"
	"github.com/centsible/smsbudget/internal/platform/messagebroker"
	"github.com/centsible/smsbudget/internal/platform/metrics"
	webhookhttp "github.com/centsible/smsbudget/internal/webhook/transport/http"
	"github.com/centsible/smsbudget/internal/webhook/verify"
)

const (
	serviceName     = "webhook_service"
	shutdownTimeout = 10 * time.Second
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
		"port", cfg.WebhookServicePort,
		"metrics_port", cfg.WebhookMetricsPort,
	)

	nc, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	appLogger.Info("NATS connection initialized")

	recorder := metrics.NewPrometheus(serviceName)
	recorder.Start(mainCtx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = recorder.Shutdown(shutdownCtx)
	}()

	devBypass := cfg.SignatureDevBypass && !cfg.IsProduction()
	if devBypass {
		appLogger.Warn("Signature verification bypass is ENABLED")
	}

	snsVerifier := verify.NewSNSVerifier(appLogger, cfg.SNSCertHostSuffix, devBypass, nil)
	twilioVerifier := verify.NewTwilioVerifier(appLogger, cfg.TwilioAuthToken, cfg.WebhookPublicBaseURL, devBypass)

	validate := validator.New()
	snsHandler := webhookhttp.NewSNSHandler(snsVerifier, nc, appLogger, validate, recorder)
	twilioHandler := webhookhttp.NewTwilioHandler(twilioVerifier, nc, appLogger, recorder)
	router := webhookhttp.NewRouter(snsHandler, twilioHandler)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebhookServicePort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebhookMetricsPort),
		Handler: metricsMux(recorder),
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("Webhook HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
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
		_ = metricsServer.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
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
