package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailpost/affiliate-engine/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/affiliate")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.FullSyncInterval)
	assert.Equal(t, 15*time.Minute, cfg.PriceCheckInterval)
	assert.Equal(t, 5, cfg.SyncConcurrency)
	assert.Equal(t, 8*time.Second, cfg.VendorFetchTimeout)
	assert.Equal(t, time.Hour, cfg.RecommendationCacheTTL)
	assert.True(t, cfg.DefaultCommissionRate.Equal(decimal.RequireFromString("0.03")))
	assert.True(t, cfg.HighValueThreshold.Equal(decimal.NewFromInt(100)))
	assert.Len(t, cfg.VendorAPIs, len(models.Vendors))
	assert.False(t, cfg.NotificationsEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/affiliate")
	t.Setenv("SYNC_CONCURRENCY", "3")
	t.Setenv("HIGH_VALUE_THRESHOLD", "250.50")
	t.Setenv("VENDOR_FETCH_TIMEOUT", "5s")
	t.Setenv("REI_API_URL", "https://api.rei.test/")
	t.Setenv("REI_API_KEY", "secret")
	t.Setenv("TEAMS_WEBHOOK_URL", "https://teams.test/hook")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.SyncConcurrency)
	assert.True(t, cfg.HighValueThreshold.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(t, 5*time.Second, cfg.VendorFetchTimeout)
	assert.Equal(t, "https://api.rei.test", cfg.VendorAPIs[models.VendorREI].BaseURL)
	assert.Equal(t, "secret", cfg.VendorAPIs[models.VendorREI].APIKey)
	assert.True(t, cfg.NotificationsEnabled())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "Missing database URL",
			env:  map[string]string{},
		},
		{
			name: "Zero concurrency",
			env:  map[string]string{"DATABASE_URL": "postgres://x", "SYNC_CONCURRENCY": "0"},
		},
		{
			name: "Negative default rate",
			env:  map[string]string{"DATABASE_URL": "postgres://x", "DEFAULT_COMMISSION_RATE": "-0.1"},
		},
		{
			name: "Zero price alert threshold",
			env:  map[string]string{"DATABASE_URL": "postgres://x", "PRICE_ALERT_THRESHOLD": "0"},
		},
		{
			name: "Negative high value threshold",
			env:  map[string]string{"DATABASE_URL": "postgres://x", "HIGH_VALUE_THRESHOLD": "-5"},
		},
		{
			name: "Bad digest schedule",
			env:  map[string]string{"DATABASE_URL": "postgres://x", "REPORT_DIGEST_SCHEDULE": "every day"},
		},
		{
			name: "Email without SMTP",
			env:  map[string]string{"DATABASE_URL": "postgres://x", "NOTIFICATION_EMAIL": "ops@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
