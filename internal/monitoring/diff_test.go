package monitoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/trailpost/affiliate-engine/internal/models"
)

func snapshotAt(price string, availability models.Availability) *models.InventorySnapshot {
	return &models.InventorySnapshot{
		Vendor:            models.VendorREI,
		ExternalProductID: "p1",
		Price:             decimal.RequireFromString(price),
		Availability:      availability,
	}
}

func TestDiscountPercentage(t *testing.T) {
	pct, ok := DiscountPercentage(decimal.NewFromInt(100), decimal.NewFromInt(85))
	assert.True(t, ok)
	assert.True(t, pct.Equal(decimal.NewFromInt(15)))

	pct, ok = DiscountPercentage(decimal.NewFromInt(80), decimal.NewFromInt(100))
	assert.True(t, ok)
	assert.True(t, pct.Equal(decimal.NewFromInt(-25)))

	_, ok = DiscountPercentage(decimal.Zero, decimal.NewFromInt(10))
	assert.False(t, ok)
}

func TestDiff_UnchangedPriceNeverAlerts(t *testing.T) {
	prev := snapshotAt("100", models.InStock)
	curr := snapshotAt("100", models.InStock)

	for _, threshold := range []string{"10", "0"} {
		alerts := Diff(prev, curr, decimal.RequireFromString(threshold), time.Now())
		assert.Empty(t, alerts, "threshold %s", threshold)
	}
}

func TestDiff(t *testing.T) {
	threshold := decimal.NewFromInt(10)
	now := time.Now().UTC()

	tests := []struct {
		name     string
		prev     *models.InventorySnapshot
		curr     *models.InventorySnapshot
		expected []models.PriceAlertType
	}{
		{
			name:     "First observation",
			prev:     nil,
			curr:     snapshotAt("85", models.LowStock),
			expected: nil,
		},
		{
			name:     "Drop and low stock together",
			prev:     snapshotAt("100", models.InStock),
			curr:     snapshotAt("80", models.LowStock),
			expected: []models.PriceAlertType{models.AlertPriceDrop, models.AlertLowStock},
		},
		{
			name:     "Out of stock regardless of price",
			prev:     snapshotAt("100", models.InStock),
			curr:     snapshotAt("100", models.OutOfStock),
			expected: []models.PriceAlertType{models.AlertOutOfStock},
		},
		{
			name:     "Unknown old price",
			prev:     snapshotAt("0", models.InStock),
			curr:     snapshotAt("100", models.InStock),
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := Diff(tt.prev, tt.curr, threshold, now)
			var types []models.PriceAlertType
			for _, a := range alerts {
				types = append(types, a.AlertType)
				assert.Equal(t, now, a.CreatedAt)
				assert.NotEmpty(t, a.ID)
			}
			assert.Equal(t, tt.expected, types)
		})
	}
}
