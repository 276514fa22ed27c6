package reporting

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// Store is the persistence the reporter reads
type Store interface {
	ListClicksSince(ctx context.Context, since time.Time) ([]models.Click, error)
	ListCommissions(ctx context.Context, filter models.CommissionFilter) ([]models.CommissionRecord, error)
}

var _ Store = (storage.Repository)(nil)

// Service aggregates commission records into revenue and performance reports
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new revenue reporter
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type totals struct {
	revenue     decimal.Decimal
	commission  decimal.Decimal
	conversions int
}

func (t *totals) add(r models.CommissionRecord) {
	t.revenue = t.revenue.Add(r.OrderValue)
	t.commission = t.commission.Add(r.CommissionEarned)
	t.conversions++
}

// round2 converts an accumulated amount to its reported value
func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Report aggregates approved commissions converted within the timeframe.
// An empty window yields a zero report.
func (s *Service) Report(ctx context.Context, timeframe models.Timeframe) (*models.RevenueReport, error) {
	if timeframe.Duration() == 0 {
		return nil, models.NewValidationError("timeframe", "unsupported timeframe "+string(timeframe))
	}

	now := s.now()
	since := now.Add(-timeframe.Duration())

	records, err := s.store.ListCommissions(ctx, models.CommissionFilter{
		Status: models.CommissionApproved,
		Since:  since,
	})
	if err != nil {
		logrus.Errorf("Failed to load commissions for %s report: %v", timeframe, err)
		return nil, err
	}

	var overall totals
	byVendor := make(map[models.Vendor]*totals)
	byContent := make(map[string]*totals)

	for _, record := range records {
		overall.add(record)

		v, ok := byVendor[record.Vendor]
		if !ok {
			v = &totals{}
			byVendor[record.Vendor] = v
		}
		v.add(record)

		if ref := record.Attribution.ContentRef; ref != "" {
			c, ok := byContent[ref]
			if !ok {
				c = &totals{}
				byContent[ref] = c
			}
			c.add(record)
		}
	}

	report := &models.RevenueReport{
		Timeframe:       timeframe,
		PeriodStart:     since,
		PeriodEnd:       now,
		TotalRevenue:    round2(overall.revenue),
		TotalCommission: round2(overall.commission),
		ConversionCount: overall.conversions,
		ByVendor:        make([]models.VendorRevenue, 0, len(byVendor)),
		ByContent:       make([]models.ContentRevenue, 0, len(byContent)),
		GeneratedAt:     now,
	}

	if overall.conversions > 0 {
		report.AvgOrderValue = round2(overall.revenue.Div(decimal.NewFromInt(int64(overall.conversions))))
	}

	monthly, annual := Project(overall.commission, timeframe)
	report.ProjectedMonthlyCommission = round2(monthly)
	report.ProjectedAnnualCommission = round2(annual)

	for vendor, t := range byVendor {
		report.ByVendor = append(report.ByVendor, models.VendorRevenue{
			Vendor:      vendor,
			Revenue:     round2(t.revenue),
			Commission:  round2(t.commission),
			Conversions: t.conversions,
		})
	}
	sort.Slice(report.ByVendor, func(i, j int) bool {
		a, b := report.ByVendor[i], report.ByVendor[j]
		if a.Commission != b.Commission {
			return a.Commission > b.Commission
		}
		return a.Vendor < b.Vendor
	})

	for ref, t := range byContent {
		report.ByContent = append(report.ByContent, models.ContentRevenue{
			ContentRef:  ref,
			Revenue:     round2(t.revenue),
			Commission:  round2(t.commission),
			Conversions: t.conversions,
		})
	}
	sort.Slice(report.ByContent, func(i, j int) bool {
		a, b := report.ByContent[i], report.ByContent[j]
		if a.Commission != b.Commission {
			return a.Commission > b.Commission
		}
		return a.ContentRef < b.ContentRef
	})

	return report, nil
}

// Project extrapolates the window's daily commission run-rate to a 30-day
// month and a 365-day year
func Project(commission decimal.Decimal, timeframe models.Timeframe) (monthly, annual decimal.Decimal) {
	days := timeframe.Days()
	if days == 0 {
		return decimal.Zero, decimal.Zero
	}
	daily := commission.Div(decimal.NewFromInt(int64(days)))
	return daily.Mul(decimal.NewFromInt(30)), daily.Mul(decimal.NewFromInt(365))
}

// Performance summarizes click-through and conversion activity over the
// timeframe. Revenue counts every commission that was not rejected.
func (s *Service) Performance(ctx context.Context, timeframe models.Timeframe) (*models.PerformanceReport, error) {
	if timeframe.Duration() == 0 {
		return nil, models.NewValidationError("timeframe", "unsupported timeframe "+string(timeframe))
	}

	now := s.now()
	since := now.Add(-timeframe.Duration())

	clicks, err := s.store.ListClicksSince(ctx, since)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListCommissions(ctx, models.CommissionFilter{Since: since})
	if err != nil {
		return nil, err
	}

	report := &models.PerformanceReport{
		Timeframe:      timeframe,
		Clicks:         len(clicks),
		ClicksByVendor: make(map[models.Vendor]int),
		GeneratedAt:    now,
	}

	for _, click := range clicks {
		report.ClicksByVendor[click.Vendor]++
		if click.Converted {
			report.Conversions++
		}
	}
	if report.Clicks > 0 {
		rate := decimal.NewFromInt(int64(report.Conversions)).
			Div(decimal.NewFromInt(int64(report.Clicks))).
			Mul(decimal.NewFromInt(100))
		report.ConversionRate = round2(rate)
	}

	var earned totals
	for _, record := range records {
		if record.Status == models.CommissionRejected {
			continue
		}
		earned.add(record)
	}
	report.Revenue = round2(earned.revenue)
	report.Commission = round2(earned.commission)

	return report, nil
}
