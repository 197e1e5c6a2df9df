package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/velora-spa/booking-platform/internal/altegio"
	"github.com/velora-spa/booking-platform/internal/config"
	"github.com/velora-spa/booking-platform/internal/observability/metrics"
	"github.com/velora-spa/booking-platform/internal/reconcile"
	syncworker "github.com/velora-spa/booking-platform/internal/worker/sync"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

// Standalone reconciliation worker, for deployments that keep the poll
// loop out of the API process.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || !cfg.AltegioEnabled {
		logger.Error("sync worker requires DATABASE_URL and ALTEGIO_ENABLED")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	client, err := altegio.NewClient(altegio.Config{
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

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid TIMEZONE", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	reconciler := reconcile.New(reconcile.Config{
		DB:             pool,
		LoyaltyEnabled: cfg.LoyaltyEnabled,
		Logger:         logger,
	})

	syncer, err := syncworker.New(syncworker.Config{
		Client:     client,
		Reconciler: reconciler,
		Interval:   cfg.SyncInterval,
		WindowDays: cfg.SyncWindowDays,
		Location:   location,
		Metrics:    metrics.NewSyncMetrics(nil),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("sync worker misconfigured", "error", err)
		os.Exit(1)
	}

	go syncer.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("sync worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
