package rates

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// Rate is a vendor's commission policy. Amount is a fraction of the order
// value for percentage rates and a currency amount for flat rates.
type Rate struct {
	Kind        models.RateKind
	Amount      decimal.Decimal
	OnePerClick bool
}

// Percentage creates a percentage rate, e.g. Percentage("0.08") for 8%
func Percentage(fraction string) Rate {
	return Rate{Kind: models.RatePercentage, Amount: decimal.RequireFromString(fraction)}
}

// Flat creates a fixed-amount rate
func Flat(amount string) Rate {
	return Rate{Kind: models.RateFlat, Amount: decimal.RequireFromString(amount)}
}

// Commission computes the commission earned on orderValue
func (r Rate) Commission(orderValue decimal.Decimal) decimal.Decimal {
	switch r.Kind {
	case models.RateFlat:
		return r.Amount
	default:
		return orderValue.Mul(r.Amount)
	}
}

func (r Rate) validate() error {
	switch r.Kind {
	case models.RatePercentage, models.RateFlat:
	default:
		return fmt.Errorf("unknown rate kind %q", r.Kind)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("rate amount must not be negative, got %s", r.Amount)
	}
	return nil
}

// Table maps vendors to their commission rate, with a fallback for vendors
// that have no entry. A Table is never mutated after construction.
type Table struct {
	rates    map[models.Vendor]Rate
	fallback Rate
}

// NewTable validates and builds a rate table
func NewTable(rates map[models.Vendor]Rate, fallback Rate) (*Table, error) {
	if err := fallback.validate(); err != nil {
		return nil, fmt.Errorf("default rate: %w", err)
	}
	copied := make(map[models.Vendor]Rate, len(rates))
	for vendor, rate := range rates {
		if err := rate.validate(); err != nil {
			return nil, fmt.Errorf("vendor %s: %w", vendor, err)
		}
		copied[vendor] = rate
	}
	return &Table{rates: copied, fallback: fallback}, nil
}

// DefaultTable returns the built-in program rates
func DefaultTable(fallback Rate) *Table {
	t, err := NewTable(map[models.Vendor]Rate{
		models.VendorAmazon:       Percentage("0.04"),
		models.VendorREI:          Percentage("0.05"),
		models.VendorBackcountry:  Percentage("0.08"),
		models.VendorGetYourGuide: Percentage("0.08"),
		models.VendorViator:       Percentage("0.08"),
		models.VendorAllTrails:    {Kind: models.RateFlat, Amount: decimal.NewFromInt(25), OnePerClick: true},
	}, fallback)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the vendor's rate. When the vendor has no entry the
// fallback rate is returned and known is false.
func (t *Table) Resolve(vendor models.Vendor) (rate Rate, known bool) {
	if r, ok := t.rates[vendor]; ok {
		return r, true
	}
	return t.fallback, false
}

// Fallback returns the rate applied to unknown vendors
func (t *Table) Fallback() Rate {
	return t.fallback
}

// Len returns the number of vendor entries
func (t *Table) Len() int {
	return len(t.rates)
}

// Holder shares the active Table between concurrent readers. Reloads swap
// the whole table so a reader never sees a partially updated rate set.
type Holder struct {
	current atomic.Pointer[Table]
}

// NewHolder creates a Holder serving t
func NewHolder(t *Table) *Holder {
	h := &Holder{}
	h.current.Store(t)
	return h
}

// Table returns the active table
func (h *Holder) Table() *Table {
	return h.current.Load()
}

// Swap installs t and returns the previous table
func (h *Holder) Swap(t *Table) *Table {
	return h.current.Swap(t)
}

// Resolve resolves vendor against the active table
func (h *Holder) Resolve(vendor models.Vendor) (Rate, bool) {
	return h.Table().Resolve(vendor)
}
