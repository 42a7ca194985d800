package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atelierworks/atelier-backend/api/controllers"
	webhookcontrollers "github.com/atelierworks/atelier-backend/api/controllers/webhooks"
	"github.com/atelierworks/atelier-backend/api/routes"
	"github.com/atelierworks/atelier-backend/internal/cart"
	"github.com/atelierworks/atelier-backend/internal/catalog"
	"github.com/atelierworks/atelier-backend/internal/checkout"
	"github.com/atelierworks/atelier-backend/internal/entitlements"
	"github.com/atelierworks/atelier-backend/internal/notifications"
	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/internal/payments"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db"
	"github.com/atelierworks/atelier-backend/pkg/gateway"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/metrics"
	"github.com/atelierworks/atelier-backend/pkg/migrate"
	"github.com/atelierworks/atelier-backend/pkg/redis"
	"github.com/atelierworks/atelier-backend/pkg/storage/gcs"
)

const shutdownGrace = 15 * time.Second

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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	gatewayClient, err := gateway.NewClient(cfg.Gateway)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(registry)

	gormDB := dbClient.DB()
	catalogRepo := catalog.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)
	addressLoader := checkout.NewAddressLoader(gormDB)
	auditLog := entitlements.NewAuditLog(gormDB)

	notifier, err := notifications.New(cfg.Notify, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build notifier", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, catalogRepo, dbClient, cfg.Gateway.Currency)
	if err != nil {
		logg.Error(context.Background(), "failed to build cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		ordersRepo, cartRepo, cartService, addressLoader, dbClient, orderMetrics, cfg.Gateway.Currency)
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to build orders service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(
		paymentsRepo, ordersRepo, gatewayClient, dbClient, cfg.Gateway, orderMetrics, notifier, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build payments service", err)
		os.Exit(1)
	}

	entitlementsService, err := entitlements.NewService(
		ordersRepo, catalogRepo, gcsClient, auditLog, cfg.Downloads, orderMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build entitlements service", err)
		os.Exit(1)
	}

	webhookGuard, err := webhookcontrollers.NewReplayGuard(redisClient, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook replay guard", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"storage":  gcsClient,
		},
		Registry:     registry,
		Cart:         cartService,
		Checkout:     checkoutService,
		Orders:       ordersService,
		Payments:     paymentsService,
		Entitlements: entitlementsService,
		WebhookGuard: webhookGuard,
	})

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
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}
