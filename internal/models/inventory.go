package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Availability is a product's stock state as reported by its vendor
type Availability string

const (
	InStock      Availability = "in_stock"
	LowStock     Availability = "low_stock"
	OutOfStock   Availability = "out_of_stock"
	Discontinued Availability = "discontinued"
)

// Purchasable reports whether a product in this state can be recommended
func (a Availability) Purchasable() bool {
	return a == InStock
}

// ProductQuote is what a vendor source returns for one product
type ProductQuote struct {
	Vendor        Vendor
	ProductID     string
	Name          string
	Price         decimal.Decimal
	OriginalPrice decimal.NullDecimal
	Availability  Availability
	StockQuantity *int
	AffiliateLink string
	Category      string
}

// InventorySnapshot is the last polled state of one vendor product.
// There is one row per (vendor, product), overwritten every poll.
type InventorySnapshot struct {
	ID                string              `json:"id" gorm:"primaryKey;type:varchar(320)"`
	Vendor            Vendor              `json:"vendor" gorm:"type:varchar(32);not null;index"`
	ExternalProductID string              `json:"external_product_id" gorm:"type:varchar(255);not null"`
	Name              string              `json:"name" gorm:"type:varchar(512)"`
	Price             decimal.Decimal     `json:"price" gorm:"type:decimal(20,4);not null"`
	OriginalPrice     decimal.NullDecimal `json:"original_price" gorm:"type:decimal(20,4)"`
	Availability      Availability        `json:"availability" gorm:"type:varchar(16);not null;index"`
	StockQuantity     *int                `json:"stock_quantity,omitempty"`
	AffiliateLink     string              `json:"affiliate_link" gorm:"type:text"`
	Category          string              `json:"category" gorm:"type:varchar(64);index"`
	LastUpdated       time.Time           `json:"last_updated" gorm:"not null"`
}

// TableName pins the gorm table name
func (InventorySnapshot) TableName() string {
	return "inventory_snapshots"
}

// SnapshotID builds the primary key shared by a vendor product's snapshot row
func SnapshotID(vendor Vendor, productID string) string {
	return string(vendor) + ":" + productID
}

// SnapshotFromQuote converts a fetched quote into the row to persist
func SnapshotFromQuote(q *ProductQuote, at time.Time) *InventorySnapshot {
	return &InventorySnapshot{
		ID:                SnapshotID(q.Vendor, q.ProductID),
		Vendor:            q.Vendor,
		ExternalProductID: q.ProductID,
		Name:              q.Name,
		Price:             q.Price,
		OriginalPrice:     q.OriginalPrice,
		Availability:      q.Availability,
		StockQuantity:     q.StockQuantity,
		AffiliateLink:     q.AffiliateLink,
		Category:          q.Category,
		LastUpdated:       at,
	}
}

// InventoryFilter narrows ListSnapshots. Zero values mean "any".
type InventoryFilter struct {
	Vendor   Vendor
	Category string
}
