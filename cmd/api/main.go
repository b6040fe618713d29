package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ovasilenko/chatmarket-backend/api/routes"
	basketsvc "github.com/ovasilenko/chatmarket-backend/internal/basket"
	"github.com/ovasilenko/chatmarket-backend/internal/buyers"
	"github.com/ovasilenko/chatmarket-backend/internal/catalog"
	"github.com/ovasilenko/chatmarket-backend/internal/discount"
	"github.com/ovasilenko/chatmarket-backend/internal/inventory"
	"github.com/ovasilenko/chatmarket-backend/internal/payments"
	"github.com/ovasilenko/chatmarket-backend/internal/purchases"
	"github.com/ovasilenko/chatmarket-backend/internal/settlement"
	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	"github.com/ovasilenko/chatmarket-backend/pkg/db"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/metrics"
	"github.com/ovasilenko/chatmarket-backend/pkg/migrate"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox"
	"github.com/ovasilenko/chatmarket-backend/pkg/redis"
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

	promRegistry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(promRegistry)

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	basketRepo := basketsvc.NewRepository(dbClient.DB())
	buyerRepo := buyers.NewRepository(dbClient.DB())
	discountRepo := discount.NewRepository(dbClient.DB())
	pendingRepo := payments.NewPendingRepository(dbClient.DB())
	purchaseRepo := purchases.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	basketService, err := basketsvc.NewService(basketsvc.Params{
		DB:        dbClient,
		Baskets:   basketRepo,
		Inventory: inventoryRepo,
		Buyers:    buyerRepo,
		Discounts: discountRepo,
		Outbox:    outboxService,
		Logger:    logg,
		TTL:       cfg.Basket.ReservationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create basket service", err)
		os.Exit(1)
	}

	finalizer, err := purchases.NewFinalizer(purchases.FinalizerParams{
		Inventory: inventoryRepo,
		Baskets:   basketRepo,
		Discounts: discountRepo,
		Records:   purchaseRepo,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase finalizer", err)
		os.Exit(1)
	}

	broker, err := payments.NewBroker(payments.BrokerParams{
		DB:        dbClient,
		Processor: payments.NewClient(cfg.Payments),
		Pending:   pendingRepo,
		Baskets:   basketRepo,
		Buyers:    buyerRepo,
		Discounts: discountRepo,
		Inventory: inventoryRepo,
		Finalizer: finalizer,
		Outbox:    outboxService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment broker", err)
		os.Exit(1)
	}

	reconciler, err := settlement.NewReconciler(settlement.ReconcilerParams{
		DB:        dbClient,
		Pending:   pendingRepo,
		Buyers:    buyerRepo,
		Baskets:   basketRepo,
		Inventory: inventoryRepo,
		Finalizer: finalizer,
		Outbox:    outboxService,
		Logger:    logg,
		FeeFactor: cfg.Payments.FeeFactor(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement reconciler", err)
		os.Exit(1)
	}

	catalogCache := catalog.NewCache(catalog.NewRepository(dbClient.DB()), redisClient, logg)

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
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DBPinger:       dbClient,
			Redis:          redisClient,
			Catalog:        catalogCache,
			Baskets:        basketService,
			Broker:         broker,
			Reconciler:     reconciler,
			Buyers:         buyerRepo,
			Purchases:      purchaseRepo,
			WebhookMetrics: webhookMetrics,
			PromRegistry:   promRegistry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
