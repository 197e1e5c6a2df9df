package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/velora-spa/booking-platform/internal/altegio"
	"github.com/velora-spa/booking-platform/internal/api/router"
	"github.com/velora-spa/booking-platform/internal/availability"
	"github.com/velora-spa/booking-platform/internal/bookings"
	"github.com/velora-spa/booking-platform/internal/catalog"
	appconfig "github.com/velora-spa/booking-platform/internal/config"
	"github.com/velora-spa/booking-platform/internal/customers"
	"github.com/velora-spa/booking-platform/internal/events"
	"github.com/velora-spa/booking-platform/internal/http/handlers"
	"github.com/velora-spa/booking-platform/internal/observability/metrics"
	"github.com/velora-spa/booking-platform/internal/reconcile"
	"github.com/velora-spa/booking-platform/internal/schedule"
	"github.com/velora-spa/booking-platform/internal/staff"
	syncworker "github.com/velora-spa/booking-platform/internal/worker/sync"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

func main() {
	// Best effort: local development keeps settings in a .env file.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer pool.Close()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid TIMEZONE", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	metricsHandler, syncMetrics := setupMetrics()

	// Repositories
	customerRepo := customers.NewRepository(pool)
	bookingRepo := bookings.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	staffRepo := staff.NewRepository(pool)
	processedStore := events.NewProcessedStore(pool)

	// Altegio integration (optional)
	var altegioClient *altegio.Client
	var discovery *altegio.Discovery
	if cfg.AltegioEnabled {
		altegioClient, err = altegio.NewClient(altegio.Config{
			BaseURL:      cfg.AltegioBaseURL,
			CompanyID:    int64(cfg.AltegioCompanyID),
			PartnerToken: cfg.AltegioPartnerToken,
			UserToken:    cfg.AltegioUserToken,
			HTTPClient:   &http.Client{Timeout: cfg.AltegioHTTPTimeout},
			Logger:       logger,
		})
		if err != nil {
			logger.Error("altegio client misconfigured", "error", err)
			os.Exit(1)
		}
		discovery = altegio.NewDiscovery(altegioClient, altegio.DiscoveryConfig{
			WindowDays:   cfg.DiscoveryWindowDays,
			ServiceLimit: cfg.DiscoveryServiceLimit,
			Logger:       logger,
		})
	}

	reconciler := reconcile.New(reconcile.Config{
		DB:             pool,
		LoyaltyEnabled: cfg.LoyaltyEnabled,
		Logger:         logger,
	})

	// Availability routing with optional Redis slot cache
	availabilityCfg := availability.Config{
		Services:        catalogRepo,
		Schedules:       staffRepo,
		ExternalEnabled: cfg.AltegioEnabled,
		Generator:       schedule.NewSlotGenerator(cfg.SlotGranularityMins, logger),
		Logger:          logger,
	}
	if altegioClient != nil {
		availabilityCfg.External = altegioClient
	}
	if rdb := newRedisClient(cfg); rdb != nil {
		availabilityCfg.Cache = availability.NewCache(rdb, cfg.AvailabilityCacheTTL)
		defer func() { _ = rdb.Close() }()
	}
	availabilityRouter := availability.NewRouter(availabilityCfg)

	// Background sync worker
	var syncer *syncworker.Syncer
	if altegioClient != nil {
		syncer, err = syncworker.New(syncworker.Config{
			Client:     altegioClient,
			Reconciler: reconciler,
			Interval:   cfg.SyncInterval,
			WindowDays: cfg.SyncWindowDays,
			Location:   location,
			Metrics:    syncMetrics,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("sync worker misconfigured", "error", err)
			os.Exit(1)
		}
		go syncer.Start(ctx)
	}

	// Handlers
	bookingCfg := handlers.BookingConfig{
		Availability: availabilityRouter,
		Services:     catalogRepo,
		Customers:    customerRepo,
		Bookings:     bookingRepo,
		Location:     location,
		Logger:       logger,
		Metrics:      syncMetrics,
	}
	if altegioClient != nil {
		bookingCfg.External = altegioClient
	}
	bookingHandler := handlers.NewBookingHandler(bookingCfg)

	webhookHandler := handlers.NewAltegioWebhookHandler(handlers.AltegioWebhookConfig{
		Reconciler: reconciler,
		Processed:  processedStore,
		Location:   location,
		Logger:     logger,
		Metrics:    syncMetrics,
	})

	adminCfg := handlers.AdminConfig{
		Logger:  logger,
		Metrics: syncMetrics,
		Staff:   staffRepo,
	}
	if syncer != nil {
		adminCfg.Syncer = syncer
	}
	if discovery != nil {
		adminCfg.Discovery = discovery
	}
	adminHandler := handlers.NewAdminHandler(adminCfg)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		HealthHandler:      handlers.NewHealthHandler(pool),
		BookingHandler:     bookingHandler,
		WebhookHandler:     webhookHandler,
		AdminHandler:       adminHandler,
		MetricsHandler:     metricsHandler,
		AdminToken:         cfg.AdminToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateBurst:   cfg.WebhookRateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// connectPostgresPool returns nil when no URL is configured.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	return pool
}

func newRedisClient(cfg *appconfig.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

func setupMetrics() (http.Handler, *metrics.SyncMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), syncMetrics
}
