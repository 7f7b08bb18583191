package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/pkg/bigquery"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/dedupe"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const serviceName = "analytics-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "analytics worker failed", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"instance":     instance.GetID(),
		"subscription": cfg.PubSub.AnalyticsSubscription,
		"table":        cfg.BigQuery.SettlementEventsTable,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, pubsub.Resources{
		Subscriptions: []string{cfg.PubSub.AnalyticsSubscription},
	}, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer psClient.Close()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer bqClient.Close()

	subscriber := psClient.Subscriber(cfg.PubSub.AnalyticsSubscription)
	if subscriber == nil {
		return errors.New("STOREFRONT_PUBSUB_ANALYTICS_SUBSCRIPTION is blank")
	}
	tracker, err := dedupe.NewTracker(redisClient, cfg.Outbox.ConsumerIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("dedupe tracker: %w", err)
	}
	writer, err := analytics.NewWriter(bqClient, analytics.WriterConfig{
		Table:     cfg.BigQuery.SettlementEventsTable,
		BatchSize: cfg.BigQuery.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("bigquery writer: %w", err)
	}
	worker, err := analytics.NewWorker(analytics.WorkerParams{
		Subscription: subscriber,
		Writer:       writer,
		Tracker:      tracker,
		Logger:       logg,
	})
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	logg.Info(ctx, "analytics worker receiving")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "analytics worker shut down")
	return nil
}
