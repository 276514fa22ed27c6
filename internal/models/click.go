package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientContext is the requester information captured with a click
type ClientContext struct {
	UserAgent string `json:"user_agent" gorm:"type:varchar(1024)"`
	IP        string `json:"ip" gorm:"type:varchar(64)"`
	Referrer  string `json:"referrer" gorm:"type:varchar(1024)"`
}

// CampaignContext carries UTM parameters; all fields are optional
type CampaignContext struct {
	Source   string `json:"utm_source,omitempty" gorm:"type:varchar(255)"`
	Medium   string `json:"utm_medium,omitempty" gorm:"type:varchar(255)"`
	Campaign string `json:"utm_campaign,omitempty" gorm:"type:varchar(255)"`
}

// Click is a recorded activation of an outbound affiliate link. Only the
// conversion fields change after creation, and only once.
type Click struct {
	ID               string              `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ContentRef       string              `json:"content_ref,omitempty" gorm:"type:varchar(255);index"`
	Vendor           Vendor              `json:"vendor" gorm:"type:varchar(32);not null;index"`
	TargetURL        string              `json:"target_url" gorm:"type:text;not null"`
	Client           ClientContext       `json:"client" gorm:"embedded;embeddedPrefix:client_"`
	Campaign         CampaignContext     `json:"campaign" gorm:"embedded;embeddedPrefix:utm_"`
	SessionID        string              `json:"session_id,omitempty" gorm:"type:varchar(128);index"`
	CreatedAt        time.Time           `json:"created_at" gorm:"not null;index"`
	Converted        bool                `json:"converted" gorm:"not null;default:false"`
	ConversionValue  decimal.NullDecimal `json:"conversion_value" gorm:"type:decimal(20,4)"`
	CommissionEarned decimal.NullDecimal `json:"commission_earned" gorm:"type:decimal(20,4)"`
}

// TableName pins the gorm table name
func (Click) TableName() string {
	return "affiliate_clicks"
}
