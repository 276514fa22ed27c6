package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceAlertType classifies a detected inventory change
type PriceAlertType string

const (
	AlertPriceDrop     PriceAlertType = "price_drop"
	AlertPriceIncrease PriceAlertType = "price_increase"
	AlertBackInStock   PriceAlertType = "back_in_stock"
	AlertLowStock      PriceAlertType = "low_stock"
	AlertOutOfStock    PriceAlertType = "out_of_stock"
)

// PriceAlert is an append-only record of a qualifying inventory change
type PriceAlert struct {
	ID                 string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ProductID          string          `json:"product_id" gorm:"type:varchar(255);not null;index"`
	Vendor             Vendor          `json:"vendor" gorm:"type:varchar(32);not null"`
	ProductName        string          `json:"product_name" gorm:"type:varchar(512)"`
	OldPrice           decimal.Decimal `json:"old_price" gorm:"type:decimal(20,4)"`
	NewPrice           decimal.Decimal `json:"new_price" gorm:"type:decimal(20,4)"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" gorm:"type:decimal(10,4)"`
	AlertType          PriceAlertType  `json:"alert_type" gorm:"type:varchar(32);not null"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null;index"`
}

// TableName pins the gorm table name
func (PriceAlert) TableName() string {
	return "price_alerts"
}

// AlertType classifies notifications sent to the operations channel
type AlertType string

const (
	AlertHighValueCommission AlertType = "high_value_commission"
	AlertInventory           AlertType = "inventory"
)

// Alert is an urgent notification, persisted in the alert stream
type Alert struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Type         AlertType       `json:"type" gorm:"type:varchar(32);not null;index"`
	Title        string          `json:"title" gorm:"type:varchar(255)"`
	Message      string          `json:"message" gorm:"type:text"`
	Vendor       Vendor          `json:"vendor,omitempty" gorm:"type:varchar(32)"`
	CommissionID string          `json:"commission_id,omitempty" gorm:"type:varchar(64)"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(20,4)"`
	PriceAlert   *PriceAlert     `json:"price_alert,omitempty" gorm:"-"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
}

// TableName pins the gorm table name
func (Alert) TableName() string {
	return "affiliate_alerts"
}
