package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livehooks/internal/api"
	"livehooks/internal/application/factories/infrastructure"
	"livehooks/internal/config"
	"livehooks/internal/delivery"
	"livehooks/internal/stream"
	"livehooks/internal/usecase"
	"livehooks/internal/webhook"

	"livehooks/internal/infrastructure/postgres"
)

func main() {
	// Initialize structured JSON logger
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

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	// Repositories
	eventRepo := postgres.NewEventRepository(pgPool)
	deliveryRepo := postgres.NewDeliveryRepository(pgPool)
	subRepo := postgres.NewSubscriptionRepository(pgPool)
	entityRepo := postgres.NewEntityRepository(pgPool)

	// Live observer hub
	hub := stream.NewHub(logger)

	// Outbound delivery pipeline
	deliverySvc := delivery.NewService(subRepo, deliveryRepo, delivery.Config{
		Timeout:    cfg.Webhook.Timeout,
		MaxRetries: cfg.Webhook.RetryAttempts,
	}, logger)
	dispatcher := delivery.NewDispatcher(deliverySvc, cfg.Delivery.Workers, cfg.Delivery.QueueSize, cfg.Webhook.Timeout, logger)

	// Optional analytics feed
	var feed webhook.StreamPublisher
	if producer := infraFactory.KafkaProducer(); producer != nil {
		feed = producer
		logger.Info("event feed enabled", "topic", producer.GetTopic())
	}

	router := webhook.NewRouter(entityRepo, hub, feed, logger)
	processor := webhook.NewProcessor(eventRepo, router, dispatcher, cfg.Webhook.Secret, logger)

	if cfg.Webhook.Secret == "" {
		logger.Warn("webhook signature verification DISABLED: no secret configured")
	}

	getEventUC := usecase.NewGetEvent(redisClient, eventRepo)

	handlers := api.NewHandlers(processor, eventRepo, getEventUC, deliveryRepo, subRepo, deliverySvc, hub, logger)
	apiHandler := api.NewRouter(handlers)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: apiHandler,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Drain queued outbound deliveries before releasing the pools.
	dispatcher.Close()

	logger.Info("server exiting")
}
