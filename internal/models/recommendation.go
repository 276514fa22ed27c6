package models

import (
	"github.com/shopspring/decimal"
)

// Content is a destination or kit page as provided by the content catalog
type Content struct {
	Ref         string   `json:"ref" gorm:"primaryKey;column:ref;type:varchar(255)"`
	Title       string   `json:"title" gorm:"type:varchar(512)"`
	Description string   `json:"description" gorm:"type:text"`
	Tags        []string `json:"tags" gorm:"serializer:json;type:text"`
}

// TableName pins the gorm table name
func (Content) TableName() string {
	return "content_items"
}

// Season is a seasonal relevance tag
type Season string

const (
	Spring Season = "spring"
	Summer Season = "summer"
	Fall   Season = "fall"
	Winter Season = "winter"
)

// CandidateKind separates gear products from bookable activities
type CandidateKind string

const (
	KindGear     CandidateKind = "gear"
	KindActivity CandidateKind = "activity"
)

// Candidate is one entry of the recommendation catalog
type Candidate struct {
	Vendor         Vendor          `json:"vendor"`
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Kind           CandidateKind   `json:"kind"`
	Categories     []string        `json:"categories"`
	Seasons        []Season        `json:"seasons"`
	Price          decimal.Decimal `json:"price"`
	DomainSpecific bool            `json:"domain_specific"`
}

// RecommendationItem is a scored candidate; it is never persisted on its own
type RecommendationItem struct {
	SourceCategory string    `json:"source_category"`
	Candidate      Candidate `json:"candidate"`
	RelevanceScore float64   `json:"relevance_score"`
}

// UserPreferences are optional hints that adjust scoring
type UserPreferences struct {
	Budget decimal.NullDecimal `json:"budget"`
}

// AffiliateLink is a purchasable recommendation joined with live inventory
type AffiliateLink struct {
	Vendor         Vendor              `json:"vendor"`
	ProductID      string              `json:"product_id"`
	Name           string              `json:"name"`
	Kind           CandidateKind       `json:"kind"`
	Category       string              `json:"category"`
	Price          decimal.Decimal     `json:"price"`
	OriginalPrice  decimal.NullDecimal `json:"original_price"`
	URL            string              `json:"url"`
	RelevanceScore float64             `json:"relevance_score"`
}
