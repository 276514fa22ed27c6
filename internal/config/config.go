package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// VendorAPI holds the partner API credentials of one vendor
type VendorAPI struct {
	BaseURL           string
	APIKey            string
	PartnerID         string
	RequestsPerSecond float64
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Persistence
	DatabaseURL string
	RedisURL    string

	// Azure Storage configuration
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Commission configuration
	RateTablePath         string
	DefaultCommissionRate decimal.Decimal
	HighValueThreshold    decimal.Decimal

	// Inventory sync configuration
	FullSyncInterval    time.Duration
	PriceCheckInterval  time.Duration
	SyncConcurrency     int
	VendorFetchTimeout  time.Duration
	PriceAlertThreshold decimal.Decimal

	// Recommendations
	CatalogPath            string
	RecommendationCacheTTL time.Duration

	// Reporting
	ReportDigestSchedule   string
	ReportArchiveRetention int

	// Vendor partner APIs, keyed by vendor
	VendorAPIs map[models.Vendor]VendorAPI
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "affiliate-reports"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		RateTablePath:         getEnv("RATE_TABLE_PATH", "config/rates.yaml"),
		DefaultCommissionRate: getDecimalEnv("DEFAULT_COMMISSION_RATE", decimal.RequireFromString("0.03")),
		HighValueThreshold:    getDecimalEnv("HIGH_VALUE_THRESHOLD", decimal.NewFromInt(100)),

		FullSyncInterval:    getDurationEnv("FULL_SYNC_INTERVAL", 30*time.Minute),
		PriceCheckInterval:  getDurationEnv("PRICE_CHECK_INTERVAL", 15*time.Minute),
		SyncConcurrency:     getIntEnv("SYNC_CONCURRENCY", 5),
		VendorFetchTimeout:  getDurationEnv("VENDOR_FETCH_TIMEOUT", 8*time.Second),
		PriceAlertThreshold: getDecimalEnv("PRICE_ALERT_THRESHOLD", decimal.NewFromInt(10)),

		CatalogPath:            getEnv("CATALOG_PATH", "config/catalog.yaml"),
		RecommendationCacheTTL: getDurationEnv("RECOMMENDATION_CACHE_TTL", time.Hour),

		ReportDigestSchedule:   getEnv("REPORT_DIGEST_SCHEDULE", "0 0 7 * * *"),
		ReportArchiveRetention: getIntEnv("REPORT_ARCHIVE_RETENTION", 90),

		VendorAPIs: make(map[models.Vendor]VendorAPI),
	}

	for _, vendor := range models.Vendors {
		prefix := strings.ToUpper(string(vendor))
		cfg.VendorAPIs[vendor] = VendorAPI{
			BaseURL:           strings.TrimRight(getEnv(prefix+"_API_URL", ""), "/"),
			APIKey:            getEnv(prefix+"_API_KEY", ""),
			PartnerID:         getEnv(prefix+"_PARTNER_ID", ""),
			RequestsPerSecond: getFloatEnv(prefix+"_RPS", 5),
		}
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DefaultCommissionRate.IsNegative() {
		return fmt.Errorf("DEFAULT_COMMISSION_RATE must not be negative")
	}

	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1")
	}

	if c.FullSyncInterval <= 0 || c.PriceCheckInterval <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}

	if c.VendorFetchTimeout <= 0 {
		return fmt.Errorf("VENDOR_FETCH_TIMEOUT must be positive")
	}

	if !c.PriceAlertThreshold.IsPositive() {
		return fmt.Errorf("PRICE_ALERT_THRESHOLD must be positive")
	}

	if !c.HighValueThreshold.IsPositive() {
		return fmt.Errorf("HIGH_VALUE_THRESHOLD must be positive")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.ReportDigestSchedule); err != nil {
		return fmt.Errorf("REPORT_DIGEST_SCHEDULE is not a valid cron expression: %w", err)
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// NotificationsEnabled reports whether any alert channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
