package models

import (
	"fmt"
	"time"
)

// Timeframe is a reporting window ending now
type Timeframe string

const (
	TimeframeDay     Timeframe = "day"
	TimeframeWeek    Timeframe = "week"
	TimeframeMonth   Timeframe = "month"
	TimeframeQuarter Timeframe = "quarter"
	TimeframeYear    Timeframe = "year"
)

// ParseTimeframe validates a timeframe name
func ParseTimeframe(raw string) (Timeframe, error) {
	tf := Timeframe(raw)
	if tf.Duration() == 0 {
		return "", NewValidationError("timeframe", fmt.Sprintf("unsupported timeframe %q", raw))
	}
	return tf, nil
}

// Duration returns the window length, or 0 for an unknown timeframe
func (t Timeframe) Duration() time.Duration {
	day := 24 * time.Hour
	switch t {
	case TimeframeDay:
		return day
	case TimeframeWeek:
		return 7 * day
	case TimeframeMonth:
		return 30 * day
	case TimeframeQuarter:
		return 90 * day
	case TimeframeYear:
		return 365 * day
	default:
		return 0
	}
}

// Days returns the window length in days
func (t Timeframe) Days() int {
	return int(t.Duration() / (24 * time.Hour))
}

// RevenueReport aggregates approved commissions over a timeframe.
// Monetary values are rounded to cents.
type RevenueReport struct {
	Timeframe                  Timeframe        `json:"timeframe"`
	PeriodStart                time.Time        `json:"period_start"`
	PeriodEnd                  time.Time        `json:"period_end"`
	TotalRevenue               float64          `json:"total_revenue"`
	TotalCommission            float64          `json:"total_commission"`
	ConversionCount            int              `json:"conversion_count"`
	AvgOrderValue              float64          `json:"avg_order_value"`
	ByVendor                   []VendorRevenue  `json:"by_vendor"`
	ByContent                  []ContentRevenue `json:"by_content"`
	ProjectedMonthlyCommission float64          `json:"projected_monthly_commission"`
	ProjectedAnnualCommission  float64          `json:"projected_annual_commission"`
	GeneratedAt                time.Time        `json:"generated_at"`
}

// VendorRevenue is one vendor's share of a RevenueReport
type VendorRevenue struct {
	Vendor      Vendor  `json:"vendor"`
	Revenue     float64 `json:"revenue"`
	Commission  float64 `json:"commission"`
	Conversions int     `json:"conversions"`
}

// ContentRevenue is one content page's share of a RevenueReport
type ContentRevenue struct {
	ContentRef  string  `json:"content_ref"`
	Revenue     float64 `json:"revenue"`
	Commission  float64 `json:"commission"`
	Conversions int     `json:"conversions"`
}

// PerformanceReport summarizes click-through and conversion activity
type PerformanceReport struct {
	Timeframe      Timeframe      `json:"timeframe"`
	Clicks         int            `json:"clicks"`
	Conversions    int            `json:"conversions"`
	ConversionRate float64        `json:"conversion_rate"`
	Revenue        float64        `json:"revenue"`
	Commission     float64        `json:"commission"`
	ClicksByVendor map[Vendor]int `json:"clicks_by_vendor"`
	GeneratedAt    time.Time      `json:"generated_at"`
}
