package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"livehooks/internal/application/factories/infrastructure"
	"livehooks/internal/config"
	"livehooks/internal/delivery"
	"livehooks/internal/infrastructure/postgres"
	"livehooks/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	deliveryRepo := postgres.NewDeliveryRepository(pgPool)
	subRepo := postgres.NewSubscriptionRepository(pgPool)

	deliverySvc := delivery.NewService(subRepo, deliveryRepo, delivery.Config{
		Timeout:    cfg.Webhook.Timeout,
		MaxRetries: cfg.Webhook.RetryAttempts,
	}, logger)

	// Metrics server for the worker
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("worker metrics listening", "port", cfg.HTTP.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.HTTP.MetricsPort, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	poller := worker.NewRetryPoller(deliveryRepo, deliverySvc, cfg.Webhook.RetryAttempts, cfg.Webhook.RetryDelay, logger)
	if err := poller.Run(ctx); err != nil {
		logger.Error("retry poller stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("worker exiting")
}
