package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trailpost/affiliate-engine/internal/models"
)

var (
	// ErrAlreadyConverted is returned when a click's conversion fields are already set
	ErrAlreadyConverted = errors.New("click already converted")

	// ErrDuplicateOrder is returned when a commission for the same vendor order exists
	ErrDuplicateOrder = errors.New("duplicate vendor order")
)

// ClickRepository persists attributed clicks
type ClickRepository interface {
	CreateClick(ctx context.Context, click *models.Click) error
	GetClick(ctx context.Context, id string) (*models.Click, error)
	// MarkConverted sets the conversion fields of an unconverted click.
	// It returns models.ErrNotFound for a missing click and
	// ErrAlreadyConverted when the fields were set before.
	MarkConverted(ctx context.Context, id string, value, commission decimal.Decimal) error
	ListClicksSince(ctx context.Context, since time.Time) ([]models.Click, error)
}

// CommissionRepository persists commission records and guards their lifecycle
type CommissionRepository interface {
	CreateCommission(ctx context.Context, record *models.CommissionRecord) error
	GetCommission(ctx context.Context, id string) (*models.CommissionRecord, error)
	FindByOrder(ctx context.Context, vendor models.Vendor, orderID string) (*models.CommissionRecord, error)
	// CountByClick counts the click's commissions that were not rejected
	CountByClick(ctx context.Context, clickID string) (int64, error)
	// TransitionCommission applies fn to the record only if its status is
	// still from. It returns models.ErrInvalidStateTransition otherwise.
	TransitionCommission(ctx context.Context, id string, from models.CommissionStatus, fn func(*models.CommissionRecord)) (*models.CommissionRecord, error)
	ListCommissions(ctx context.Context, filter models.CommissionFilter) ([]models.CommissionRecord, error)
}

// InventoryRepository persists the latest snapshot of each vendor product
type InventoryRepository interface {
	GetSnapshot(ctx context.Context, vendor models.Vendor, productID string) (*models.InventorySnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *models.InventorySnapshot) error
	ListSnapshots(ctx context.Context, filter models.InventoryFilter) ([]models.InventorySnapshot, error)
}

// AlertRepository is the append-only alert log
type AlertRepository interface {
	AppendPriceAlert(ctx context.Context, alert *models.PriceAlert) error
	ListPriceAlerts(ctx context.Context, limit int) ([]models.PriceAlert, error)
	AppendAlert(ctx context.Context, alert *models.Alert) error
}

// ContentProvider reads destination and kit pages from the content catalog
type ContentProvider interface {
	GetContent(ctx context.Context, ref string) (*models.Content, error)
}

// Repository bundles every relational repository
type Repository interface {
	ClickRepository
	CommissionRepository
	InventoryRepository
	AlertRepository
	ContentProvider
}

// ArchiveStore defines the contract for blob archive operations
type ArchiveStore interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}
