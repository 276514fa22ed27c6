package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore implements every relational repository on top of gorm
type GormStore struct {
	db *gorm.DB
}

// Ensure GormStore implements Repository
var _ Repository = (*GormStore)(nil)

// OpenPostgres connects to Postgres and migrates the affiliate tables
func OpenPostgres(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, models.StorageError("connect", err)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open gorm connection and migrates the schema
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&models.Click{},
		&models.CommissionRecord{},
		&models.InventorySnapshot{},
		&models.PriceAlert{},
		&models.Alert{},
		&models.Content{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logrus.Debug("Affiliate schema migrated")
	return &GormStore{db: db}, nil
}

// Ping verifies the database is reachable
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return models.StorageError("ping", err)
	}
	return models.StorageError("ping", sqlDB.PingContext(ctx))
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateOrder)
	}
	return models.StorageError(op, err)
}

func (s *GormStore) CreateClick(ctx context.Context, click *models.Click) error {
	return wrapErr("create click", s.db.WithContext(ctx).Create(click).Error)
}

func (s *GormStore) GetClick(ctx context.Context, id string) (*models.Click, error) {
	var click models.Click
	if err := s.db.WithContext(ctx).First(&click, "id = ?", id).Error; err != nil {
		return nil, wrapErr("get click", err)
	}
	return &click, nil
}

func (s *GormStore) MarkConverted(ctx context.Context, id string, value, commission decimal.Decimal) error {
	result := s.db.WithContext(ctx).
		Model(&models.Click{}).
		Where("id = ? AND converted = ?", id, false).
		Updates(map[string]interface{}{
			"converted":         true,
			"conversion_value":  value,
			"commission_earned": commission,
		})
	if result.Error != nil {
		return wrapErr("mark click converted", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Click{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return wrapErr("mark click converted", err)
	}
	if count == 0 {
		return fmt.Errorf("mark click converted: %w", models.ErrNotFound)
	}
	return ErrAlreadyConverted
}

func (s *GormStore) ListClicksSince(ctx context.Context, since time.Time) ([]models.Click, error) {
	var clicks []models.Click
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at").
		Find(&clicks).Error
	return clicks, wrapErr("list clicks", err)
}

func (s *GormStore) CreateCommission(ctx context.Context, record *models.CommissionRecord) error {
	return wrapErr("create commission", s.db.WithContext(ctx).Create(record).Error)
}

func (s *GormStore) GetCommission(ctx context.Context, id string) (*models.CommissionRecord, error) {
	var record models.CommissionRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, wrapErr("get commission", err)
	}
	return &record, nil
}

func (s *GormStore) FindByOrder(ctx context.Context, vendor models.Vendor, orderID string) (*models.CommissionRecord, error) {
	var record models.CommissionRecord
	err := s.db.WithContext(ctx).
		Where("vendor = ? AND external_order_id = ?", vendor, orderID).
		First(&record).Error
	if err != nil {
		return nil, wrapErr("find commission by order", err)
	}
	return &record, nil
}

func (s *GormStore) CountByClick(ctx context.Context, clickID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.CommissionRecord{}).
		Where("click_id = ? AND status <> ?", clickID, models.CommissionRejected).
		Count(&count).Error
	return count, wrapErr("count commissions by click", err)
}

func (s *GormStore) TransitionCommission(ctx context.Context, id string, from models.CommissionStatus, fn func(*models.CommissionRecord)) (*models.CommissionRecord, error) {
	var updated models.CommissionRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&updated, "id = ?", id).Error; err != nil {
			return err
		}
		if updated.Status != from {
			return models.ErrInvalidStateTransition
		}

		fn(&updated)

		result := tx.Model(&models.CommissionRecord{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]interface{}{
				"status":           updated.Status,
				"approved_date":    updated.ApprovedDate,
				"rejected_date":    updated.RejectedDate,
				"rejection_reason": updated.RejectionReason,
				"payment_date":     updated.PaymentDate,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// lost a race with another transition
			return models.ErrInvalidStateTransition
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidStateTransition) {
			return nil, fmt.Errorf("commission %s: %w", id, err)
		}
		return nil, wrapErr("transition commission", err)
	}
	return &updated, nil
}

func (s *GormStore) ListCommissions(ctx context.Context, filter models.CommissionFilter) ([]models.CommissionRecord, error) {
	query := s.db.WithContext(ctx).Model(&models.CommissionRecord{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Vendor != "" {
		query = query.Where("vendor = ?", filter.Vendor)
	}
	if !filter.Since.IsZero() {
		query = query.Where("conversion_date >= ?", filter.Since)
	}

	var records []models.CommissionRecord
	err := query.Order("conversion_date").Find(&records).Error
	return records, wrapErr("list commissions", err)
}

func (s *GormStore) GetSnapshot(ctx context.Context, vendor models.Vendor, productID string) (*models.InventorySnapshot, error) {
	var snapshot models.InventorySnapshot
	err := s.db.WithContext(ctx).First(&snapshot, "id = ?", models.SnapshotID(vendor, productID)).Error
	if err != nil {
		return nil, wrapErr("get snapshot", err)
	}
	return &snapshot, nil
}

func (s *GormStore) SaveSnapshot(ctx context.Context, snapshot *models.InventorySnapshot) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(snapshot).Error
	return wrapErr("save snapshot", err)
}

func (s *GormStore) ListSnapshots(ctx context.Context, filter models.InventoryFilter) ([]models.InventorySnapshot, error) {
	query := s.db.WithContext(ctx).Model(&models.InventorySnapshot{})
	if filter.Vendor != "" {
		query = query.Where("vendor = ?", filter.Vendor)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var snapshots []models.InventorySnapshot
	err := query.Order("id").Find(&snapshots).Error
	return snapshots, wrapErr("list snapshots", err)
}

func (s *GormStore) AppendPriceAlert(ctx context.Context, alert *models.PriceAlert) error {
	return wrapErr("append price alert", s.db.WithContext(ctx).Create(alert).Error)
}

func (s *GormStore) ListPriceAlerts(ctx context.Context, limit int) ([]models.PriceAlert, error) {
	var alerts []models.PriceAlert
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, wrapErr("list price alerts", err)
}

func (s *GormStore) AppendAlert(ctx context.Context, alert *models.Alert) error {
	return wrapErr("append alert", s.db.WithContext(ctx).Create(alert).Error)
}

func (s *GormStore) GetContent(ctx context.Context, ref string) (*models.Content, error) {
	var content models.Content
	if err := s.db.WithContext(ctx).First(&content, "ref = ?", ref).Error; err != nil {
		return nil, wrapErr("get content", err)
	}
	return &content, nil
}
