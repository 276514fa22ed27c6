package monitoring

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/trailpost/affiliate-engine/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DiscountPercentage returns (old - new) / old * 100. ok is false when the
// old price is unknown or zero.
func DiscountPercentage(oldPrice, newPrice decimal.Decimal) (pct decimal.Decimal, ok bool) {
	if !oldPrice.IsPositive() {
		return decimal.Zero, false
	}
	return oldPrice.Sub(newPrice).Div(oldPrice).Mul(hundred), true
}

// Diff compares a product's previous snapshot with the one just fetched and
// returns the alerts the change qualifies for. A product seen for the first
// time produces no alerts.
func Diff(prev, curr *models.InventorySnapshot, threshold decimal.Decimal, at time.Time) []models.PriceAlert {
	if prev == nil || curr == nil {
		return nil
	}

	pct, known := DiscountPercentage(prev.Price, curr.Price)
	newAlert := func(kind models.PriceAlertType) models.PriceAlert {
		return models.PriceAlert{
			ID:                 uuid.NewString(),
			ProductID:          curr.ExternalProductID,
			Vendor:             curr.Vendor,
			ProductName:        curr.Name,
			OldPrice:           prev.Price,
			NewPrice:           curr.Price,
			DiscountPercentage: pct.Round(2),
			AlertType:          kind,
			CreatedAt:          at,
		}
	}

	var alerts []models.PriceAlert

	if known && !pct.IsZero() && pct.Abs().GreaterThanOrEqual(threshold) {
		if pct.IsPositive() {
			alerts = append(alerts, newAlert(models.AlertPriceDrop))
		} else {
			alerts = append(alerts, newAlert(models.AlertPriceIncrease))
		}
	}

	if curr.Availability != prev.Availability {
		switch curr.Availability {
		case models.LowStock:
			alerts = append(alerts, newAlert(models.AlertLowStock))
		case models.OutOfStock:
			alerts = append(alerts, newAlert(models.AlertOutOfStock))
		case models.InStock:
			if prev.Availability == models.OutOfStock || prev.Availability == models.Discontinued {
				alerts = append(alerts, newAlert(models.AlertBackInStock))
			}
		}
	}

	return alerts
}

// notifiable reports whether an alert type is pushed to the operations
// channel. Price increases are only logged.
func notifiable(kind models.PriceAlertType) bool {
	return kind != models.AlertPriceIncrease
}
