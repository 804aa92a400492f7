package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joaquinvilla/merkado-backend/api/routes"
	"github.com/joaquinvilla/merkado-backend/internal/commission"
	"github.com/joaquinvilla/merkado-backend/internal/invoices"
	"github.com/joaquinvilla/merkado-backend/internal/payouts"
	"github.com/joaquinvilla/merkado-backend/internal/rules"
	"github.com/joaquinvilla/merkado-backend/internal/settlements"
	"github.com/joaquinvilla/merkado-backend/pkg/config"
	"github.com/joaquinvilla/merkado-backend/pkg/db"
	"github.com/joaquinvilla/merkado-backend/pkg/instance"
	"github.com/joaquinvilla/merkado-backend/pkg/logger"
	"github.com/joaquinvilla/merkado-backend/pkg/metrics"
	"github.com/joaquinvilla/merkado-backend/pkg/migrate"
	"github.com/joaquinvilla/merkado-backend/pkg/outbox"
	"github.com/joaquinvilla/merkado-backend/pkg/pubsub"
	"github.com/joaquinvilla/merkado-backend/pkg/redis"
	"github.com/joaquinvilla/merkado-backend/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	rulesService, err := rules.NewService(rules.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create rules service", err)
		os.Exit(1)
	}

	commissionService, err := commission.NewService(
		dbClient,
		commission.NewRepository(dbClient.DB()),
		rulesService,
		outboxService,
		cfg.Commission,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

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

	invoicesService, err := invoices.NewService(
		dbClient,
		invoices.NewRepository(dbClient.DB()),
		settlements.NewRepository(dbClient.DB()),
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create invoices service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			pubsubClient,
			squareClient,
			rulesService,
			commissionService,
			settlementsService,
			payoutsService,
			invoicesService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
