package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionStatus is the lifecycle state of a commission record
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionApproved CommissionStatus = "approved"
	CommissionRejected CommissionStatus = "rejected"
	CommissionPaid     CommissionStatus = "paid"
)

// CanTransitionTo reports whether moving from s to next is allowed.
// pending -> approved|rejected, approved -> paid; everything else is refused.
func (s CommissionStatus) CanTransitionTo(next CommissionStatus) bool {
	switch s {
	case CommissionPending:
		return next == CommissionApproved || next == CommissionRejected
	case CommissionApproved:
		return next == CommissionPaid
	default:
		return false
	}
}

// Attribution is the optional context a vendor passes back with a conversion
type Attribution struct {
	Campaign   CampaignContext `json:"campaign" gorm:"embedded;embeddedPrefix:utm_"`
	ContentRef string          `json:"content_ref,omitempty" gorm:"type:varchar(255);index"`
	UserID     string          `json:"user_id,omitempty" gorm:"type:varchar(128)"`
}

// CommissionRecord is the revenue-bearing record written for each conversion.
// CommissionEarned is fixed at creation and never recomputed.
type CommissionRecord struct {
	ID                string           `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ClickID           string           `json:"click_id" gorm:"type:varchar(64);not null;index"`
	Vendor            Vendor           `json:"vendor" gorm:"type:varchar(32);not null;index;uniqueIndex:idx_commission_vendor_order"`
	ExternalProductID string           `json:"external_product_id" gorm:"type:varchar(255)"`
	ExternalOrderID   string           `json:"external_order_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_commission_vendor_order"`
	OrderValue        decimal.Decimal  `json:"order_value" gorm:"type:decimal(20,4);not null"`
	RateKind          RateKind         `json:"rate_kind" gorm:"type:varchar(16);not null"`
	CommissionRate    decimal.Decimal  `json:"commission_rate" gorm:"type:decimal(20,6);not null"`
	CommissionEarned  decimal.Decimal  `json:"commission_earned" gorm:"type:decimal(20,4);not null"`
	Status            CommissionStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	ConversionDate    time.Time        `json:"conversion_date" gorm:"not null;index"`
	ApprovedDate      *time.Time       `json:"approved_date,omitempty"`
	RejectedDate      *time.Time       `json:"rejected_date,omitempty"`
	RejectionReason   string           `json:"rejection_reason,omitempty" gorm:"type:varchar(255)"`
	PaymentDate       *time.Time       `json:"payment_date,omitempty"`
	Attribution       Attribution      `json:"attribution" gorm:"embedded"`
}

// TableName pins the gorm table name
func (CommissionRecord) TableName() string {
	return "affiliate_commissions"
}

// CommissionFilter narrows ListCommissions. Zero values mean "any".
type CommissionFilter struct {
	Status CommissionStatus
	Vendor Vendor
	Since  time.Time
}

// RateKind tags how a vendor's commission is computed
type RateKind string

const (
	RatePercentage RateKind = "percentage"
	RateFlat       RateKind = "flat"
)
