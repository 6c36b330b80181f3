package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mgalindo/storefront-backend/api/routes"
	"github.com/mgalindo/storefront-backend/internal/cart"
	"github.com/mgalindo/storefront-backend/internal/catalog"
	checkoutsvc "github.com/mgalindo/storefront-backend/internal/checkout"
	"github.com/mgalindo/storefront-backend/internal/orders"
	"github.com/mgalindo/storefront-backend/pkg/config"
	"github.com/mgalindo/storefront-backend/pkg/db"
	"github.com/mgalindo/storefront-backend/pkg/logger"
	"github.com/mgalindo/storefront-backend/pkg/metrics"
	"github.com/mgalindo/storefront-backend/pkg/migrate"
	"github.com/mgalindo/storefront-backend/pkg/redis"
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

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())

	catalogService, err := catalog.NewService(catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(dbClient, cartRepo, catalogRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	pricer, err := checkoutsvc.NewPricer(cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to parse pricing config", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(dbClient, cartRepo, catalogRepo, orderRepo, pricer, checkoutMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orderRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			redisClient,
			registry,
			catalogService,
			cartService,
			checkoutService,
			orderService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
