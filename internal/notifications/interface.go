package notifications

import "github.com/trailpost/affiliate-engine/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendReport(report *models.RevenueReport) error
	SendAlert(alert *models.Alert) error
}
