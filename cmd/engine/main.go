package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/api"
	"github.com/trailpost/affiliate-engine/internal/clicks"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/ledger"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/monitoring"
	"github.com/trailpost/affiliate-engine/internal/notifications"
	"github.com/trailpost/affiliate-engine/internal/rates"
	"github.com/trailpost/affiliate-engine/internal/recommend"
	"github.com/trailpost/affiliate-engine/internal/relevance"
	"github.com/trailpost/affiliate-engine/internal/reporting"
	"github.com/trailpost/affiliate-engine/internal/scheduler"
	"github.com/trailpost/affiliate-engine/internal/sources"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting affiliate engine")

	ctx := context.Background()

	store, err := storage.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	// Rate table, reloaded in place when the file changes
	fallback := rates.Rate{Kind: models.RatePercentage, Amount: cfg.DefaultCommissionRate}
	table, err := rates.Load(cfg.RateTablePath, fallback)
	if err != nil {
		logrus.Fatalf("Failed to load rate table: %v", err)
	}
	rateHolder := rates.NewHolder(table)
	if _, statErr := os.Stat(cfg.RateTablePath); statErr == nil {
		stopWatch, err := rates.Watch(cfg.RateTablePath, fallback, rateHolder)
		if err != nil {
			logrus.Warnf("Rate table hot reload disabled: %v", err)
		} else {
			defer stopWatch()
		}
	}

	archive := newArchive(ctx, cfg)
	notificationService := notifications.NewService(cfg)

	var notifier notifications.NotificationInterface
	if cfg.NotificationsEnabled() {
		notifier = notificationService
	} else {
		logrus.Warn("No notification channel configured, alerts are only persisted")
	}

	vendorSources := sources.WrapAll(sources.NewSources(cfg), sources.DefaultBreakerSettings())
	monitoringService := monitoring.NewService(monitoring.SettingsFromConfig(cfg), store, notifier, vendorSources)

	clickService := clicks.NewService(store)
	var alertSender ledger.AlertSender
	if notifier != nil {
		alertSender = notifier
	}
	ledgerService := ledger.NewService(store, rateHolder, alertSender, ledger.SettingsFromConfig(cfg))
	reportService := reporting.NewService(store)
	digest := reporting.NewDigest(reportService, archive, notifier, cfg.ReportArchiveRetention)

	catalog, err := relevance.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logrus.Fatalf("Failed to load recommendation catalog: %v", err)
	}
	recommendService := recommend.NewService(store, relevance.NewDefaultScorer(), catalog, newCache(ctx, cfg), cfg.RecommendationCacheTTL)

	schedulerService := scheduler.NewService(cfg, monitoringService, digest)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	handler := api.NewHandler(api.Dependencies{
		Clicks:          clickService,
		Ledger:          ledgerService,
		Reports:         reportService,
		Recommendations: recommendService,
		Inventory:       store,
		Sync:            monitoringService,
		Pinger:          store,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	// In-flight sync cycles finish their current batch before exit
	if err := schedulerService.Stop(shutdownCtx); err != nil {
		logrus.Errorf("Scheduler did not stop cleanly: %v", err)
	}
	if err := monitoringService.Wait(shutdownCtx); err != nil {
		logrus.Errorf("Manual inventory sync still running at exit: %v", err)
	}

	logrus.Info("Server exited")
}

// newArchive returns the Azure report archive, or an in-memory one when no
// storage account is configured
func newArchive(ctx context.Context, cfg *config.Config) storage.ArchiveStore {
	if cfg.StorageAccount == "" {
		logrus.Warn("AZURE_STORAGE_ACCOUNT not set, revenue reports are kept in memory only")
		return storage.NewMemoryArchive()
	}
	archive, err := storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
	if err != nil {
		logrus.Fatalf("Failed to initialize report archive: %v", err)
	}
	return archive
}

// newCache returns the Redis recommendation cache, or an in-process one when
// Redis is not configured or unreachable
func newCache(ctx context.Context, cfg *config.Config) recommend.Cache {
	if cfg.RedisURL == "" {
		return recommend.NewMemoryCache()
	}
	client, err := recommend.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logrus.Warnf("Redis unavailable, using in-process recommendation cache: %v", err)
		return recommend.NewMemoryCache()
	}
	return recommend.NewRedisCache(client)
}
