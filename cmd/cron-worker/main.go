package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joaquinvilla/merkado-backend/internal/commission"
	"github.com/joaquinvilla/merkado-backend/internal/cron"
	"github.com/joaquinvilla/merkado-backend/internal/payouts"
	"github.com/joaquinvilla/merkado-backend/internal/settlements"
	"github.com/joaquinvilla/merkado-backend/pkg/config"
	"github.com/joaquinvilla/merkado-backend/pkg/db"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/metrics"
	"github.com/joaquinvilla/merkado-backend/pkg/migrate"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox"
	"github.com/joaquinvilla/merkado-backend/pkg/redis"
	"github.com/joaquinvilla/merkado-backend/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	payoutMetrics := metrics.NewPayoutMetrics(prometheus.DefaultRegisterer)
	payoutsService, err := payouts.NewService(
		dbClient,
		payouts.NewRepository(dbClient.DB()),
		squareClient,
		outboxService,
		payoutMetrics,
		cfg.Payouts,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	settlementsService, err := settlements.NewService(
		dbClient,
		settlements.NewRepository(dbClient.DB()),
		commission.NewRepository(dbClient.DB()),
		redisClient,
		payoutsService,
		outboxService,
		cfg.Settlements,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlements service", err)
		os.Exit(1)
	}

	generationJob, err := cron.NewSettlementGenerationJob(cron.SettlementGenerationJobParams{
		Logger:      logg,
		Settlements: settlementsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement generation job", err)
		os.Exit(1)
	}
	dispatchJob, err := cron.NewPayoutDispatchJob(cron.PayoutDispatchJobParams{
		Logger:  logg,
		Payouts: payoutsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout dispatch job", err)
		os.Exit(1)
	}
	retryJob, err := cron.NewPayoutRetryJob(cron.PayoutRetryJobParams{
		Logger:  logg,
		Payouts: payoutsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout retry job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(generationJob, dispatchJob, retryJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey("cron-worker", env)
}
