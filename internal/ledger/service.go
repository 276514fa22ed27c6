package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/metrics"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/rates"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// ReasonDuplicateClickConversion is the rejection reason recorded when a
// one-conversion-per-click vendor reports a second conversion on a click
const ReasonDuplicateClickConversion = "duplicate_click_conversion"

// Store is the persistence the ledger needs
type Store interface {
	storage.ClickRepository
	storage.CommissionRepository
	storage.AlertRepository
}

// AlertSender delivers urgent alerts to the operations channel
type AlertSender interface {
	SendAlert(alert *models.Alert) error
}

// Conversion is a vendor-reported purchase
type Conversion struct {
	ClickID     string
	Vendor      string
	ProductID   string
	OrderID     string
	OrderValue  decimal.Decimal
	Attribution models.Attribution
}

// Settings tunes the ledger
type Settings struct {
	HighValueThreshold  decimal.Decimal
	ClickUpdateAttempts int
	ClickUpdateBackoff  time.Duration
}

// SettingsFromConfig derives ledger settings from the process configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		HighValueThreshold:  cfg.HighValueThreshold,
		ClickUpdateAttempts: 3,
		ClickUpdateBackoff:  200 * time.Millisecond,
	}
}

// Service records conversions as commissions and guards their lifecycle
type Service struct {
	store    Store
	rates    *rates.Holder
	notifier AlertSender
	settings Settings
	now      func() time.Time
}

// NewService creates a new commission ledger. notifier may be nil, in which
// case alerts are only persisted.
func NewService(store Store, rateTable *rates.Holder, notifier AlertSender, settings Settings) *Service {
	if settings.ClickUpdateAttempts < 1 {
		settings.ClickUpdateAttempts = 1
	}
	return &Service{
		store:    store,
		rates:    rateTable,
		notifier: notifier,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c Conversion) validate() error {
	if strings.TrimSpace(c.ClickID) == "" {
		return models.NewValidationError("clickId", "is required")
	}
	if strings.TrimSpace(c.Vendor) == "" {
		return models.NewValidationError("vendor", "is required")
	}
	if strings.TrimSpace(c.OrderID) == "" {
		return models.NewValidationError("orderId", "is required")
	}
	if !c.OrderValue.IsPositive() {
		return models.NewValidationError("orderValue", "must be greater than zero")
	}
	return nil
}

// RecordConversion writes the commission for a conversion and marks the
// originating click converted. Conversions are never dropped: an unknown
// vendor gets the fallback rate and a missing click leaves the commission
// orphaned. A repeated (vendor, order) returns the existing record.
func (s *Service) RecordConversion(ctx context.Context, conv Conversion) (*models.CommissionRecord, error) {
	if err := conv.validate(); err != nil {
		return nil, err
	}

	vendor := models.Vendor(strings.ToLower(strings.TrimSpace(conv.Vendor)))
	logger := logrus.WithFields(logrus.Fields{
		"vendor":   vendor,
		"order_id": conv.OrderID,
		"click_id": conv.ClickID,
	})

	if existing, err := s.store.FindByOrder(ctx, vendor, conv.OrderID); err == nil {
		metrics.ConversionsRecorded.WithLabelValues(string(vendor), "duplicate_order").Inc()
		logger.Info("Ignoring repeated conversion notification")
		return existing, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	s.fillAttribution(ctx, logger, &conv)

	rate, known := s.rates.Resolve(vendor)
	if !known {
		logger.Warnf("%v: applying default commission rate", models.ErrUnknownVendor)
	}

	record := &models.CommissionRecord{
		ID:                uuid.NewString(),
		ClickID:           conv.ClickID,
		Vendor:            vendor,
		ExternalProductID: conv.ProductID,
		ExternalOrderID:   conv.OrderID,
		OrderValue:        conv.OrderValue,
		RateKind:          rate.Kind,
		CommissionRate:    rate.Amount,
		CommissionEarned:  rate.Commission(conv.OrderValue),
		Status:            models.CommissionPending,
		ConversionDate:    s.now(),
		Attribution:       conv.Attribution,
	}

	if rate.OnePerClick {
		count, err := s.store.CountByClick(ctx, conv.ClickID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			rejectedAt := record.ConversionDate
			record.Status = models.CommissionRejected
			record.RejectedDate = &rejectedAt
			record.RejectionReason = ReasonDuplicateClickConversion
		}
	}

	if err := s.store.CreateCommission(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateOrder) {
			// a concurrent notification for the same order won the insert
			return s.store.FindByOrder(ctx, vendor, conv.OrderID)
		}
		logger.Errorf("Failed to write commission: %v", err)
		return nil, err
	}

	logger = logger.WithField("commission_id", record.ID)

	if record.Status == models.CommissionRejected {
		metrics.ConversionsRecorded.WithLabelValues(string(vendor), "duplicate_click").Inc()
		logger.Warn("Recorded conversion as rejected: click already has a commission")
		return record, nil
	}

	outcome := s.markClickConverted(ctx, logger, record)
	metrics.ConversionsRecorded.WithLabelValues(string(vendor), outcome).Inc()
	metrics.CommissionEarned.WithLabelValues(string(vendor)).Add(record.CommissionEarned.InexactFloat64())

	if record.CommissionEarned.GreaterThan(s.settings.HighValueThreshold) {
		s.raiseHighValueAlert(ctx, logger, record)
	}

	logger.WithField("commission", record.CommissionEarned.StringFixed(2)).Info("Recorded conversion")
	return record, nil
}

// fillAttribution copies the click's content and campaign context onto a
// conversion that arrived without it. A missing or unreadable click leaves
// the conversion as reported.
func (s *Service) fillAttribution(ctx context.Context, logger *logrus.Entry, conv *Conversion) {
	attr := &conv.Attribution
	if attr.ContentRef != "" && attr.Campaign != (models.CampaignContext{}) {
		return
	}

	click, err := s.store.GetClick(ctx, conv.ClickID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logger.Warnf("Could not read click for attribution: %v", err)
		}
		return
	}

	if attr.ContentRef == "" {
		attr.ContentRef = click.ContentRef
	}
	if attr.Campaign == (models.CampaignContext{}) {
		attr.Campaign = click.Campaign
	}
}

// markClickConverted runs after the commission is durable. Failures are
// retried and then logged; they never undo the commission.
func (s *Service) markClickConverted(ctx context.Context, logger *logrus.Entry, record *models.CommissionRecord) string {
	var err error
	for attempt := 1; attempt <= s.settings.ClickUpdateAttempts; attempt++ {
		err = s.store.MarkConverted(ctx, record.ClickID, record.OrderValue, record.CommissionEarned)
		switch {
		case err == nil:
			return "attributed"
		case errors.Is(err, models.ErrNotFound):
			logger.Warn("Conversion click not found, commission recorded as orphaned attribution")
			return "orphaned"
		case errors.Is(err, storage.ErrAlreadyConverted):
			logger.Info("Click already converted, keeping its first conversion values")
			return "attributed"
		}

		if attempt < s.settings.ClickUpdateAttempts {
			select {
			case <-ctx.Done():
				attempt = s.settings.ClickUpdateAttempts
			case <-time.After(time.Duration(attempt) * s.settings.ClickUpdateBackoff):
			}
		}
	}

	logger.Errorf("Failed to mark click converted after %d attempts: %v", s.settings.ClickUpdateAttempts, err)
	return "click_update_failed"
}

func (s *Service) raiseHighValueAlert(ctx context.Context, logger *logrus.Entry, record *models.CommissionRecord) {
	alert := &models.Alert{
		ID:           uuid.NewString(),
		Type:         models.AlertHighValueCommission,
		Title:        fmt.Sprintf("High-value %s commission", record.Vendor),
		Message:      fmt.Sprintf("Order %s earned %s on an order of %s", record.ExternalOrderID, record.CommissionEarned.StringFixed(2), record.OrderValue.StringFixed(2)),
		Vendor:       record.Vendor,
		CommissionID: record.ID,
		Amount:       record.CommissionEarned,
		CreatedAt:    s.now(),
	}

	if err := s.store.AppendAlert(ctx, alert); err != nil {
		logger.Errorf("Failed to persist high-value alert: %v", err)
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendAlert(alert); err != nil {
		logger.Errorf("Failed to send high-value alert: %v", err)
	}
}

// Approve moves a pending commission to approved
func (s *Service) Approve(ctx context.Context, id string) (*models.CommissionRecord, error) {
	return s.transition(ctx, id, models.CommissionPending, models.CommissionApproved, func(r *models.CommissionRecord) {
		at := s.now()
		r.Status = models.CommissionApproved
		r.ApprovedDate = &at
	})
}

// Reject moves a pending commission to the terminal rejected state
func (s *Service) Reject(ctx context.Context, id, reason string) (*models.CommissionRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("reason", "is required")
	}
	return s.transition(ctx, id, models.CommissionPending, models.CommissionRejected, func(r *models.CommissionRecord) {
		at := s.now()
		r.Status = models.CommissionRejected
		r.RejectedDate = &at
		r.RejectionReason = reason
	})
}

// MarkPaid moves an approved commission to paid. A nil paymentDate means now.
func (s *Service) MarkPaid(ctx context.Context, id string, paymentDate *time.Time) (*models.CommissionRecord, error) {
	paidAt := s.now()
	if paymentDate != nil {
		paidAt = paymentDate.UTC()
	}
	return s.transition(ctx, id, models.CommissionApproved, models.CommissionPaid, func(r *models.CommissionRecord) {
		r.Status = models.CommissionPaid
		r.PaymentDate = &paidAt
	})
}

func (s *Service) transition(ctx context.Context, id string, from, to models.CommissionStatus, fn func(*models.CommissionRecord)) (*models.CommissionRecord, error) {
	record, err := s.store.TransitionCommission(ctx, id, from, fn)
	if err != nil {
		result := "error"
		if errors.Is(err, models.ErrInvalidStateTransition) {
			result = "refused"
		}
		metrics.CommissionTransitions.WithLabelValues(string(to), result).Inc()
		logrus.WithFields(logrus.Fields{
			"commission_id": id,
			"to":            to,
		}).Warnf("Commission transition failed: %v", err)
		return nil, err
	}

	metrics.CommissionTransitions.WithLabelValues(string(to), "ok").Inc()
	logrus.WithFields(logrus.Fields{
		"commission_id": id,
		"from":          from,
		"to":            to,
	}).Info("Commission transitioned")
	return record, nil
}

// ListPending returns pending commissions, optionally for one vendor
func (s *Service) ListPending(ctx context.Context, vendor models.Vendor) ([]models.CommissionRecord, error) {
	return s.store.ListCommissions(ctx, models.CommissionFilter{
		Status: models.CommissionPending,
		Vendor: vendor,
	})
}

// Get returns one commission record
func (s *Service) Get(ctx context.Context, id string) (*models.CommissionRecord, error) {
	return s.store.GetCommission(ctx, id)
}
