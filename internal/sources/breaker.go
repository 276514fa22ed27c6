package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/trailpost/affiliate-engine/internal/metrics"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// BreakerSource wraps a Source with a per-vendor circuit breaker so a
// failing vendor API is not hammered on every sync cycle
type BreakerSource struct {
	source Source
	cb     *gobreaker.CircuitBreaker[any]
}

var _ Source = (*BreakerSource)(nil)

// BreakerSettings tunes when a vendor circuit opens
type BreakerSettings struct {
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// DefaultBreakerSettings opens after 60% failures over at least 10 requests
// and retries after two minutes
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		OpenTimeout:  2 * time.Minute,
	}
}

// WithBreaker wraps source in a circuit breaker
func WithBreaker(source Source, settings BreakerSettings) *BreakerSource {
	vendor := string(source.GetName())
	metrics.CircuitBreakerState.WithLabelValues(vendor).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        vendor,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		// A missing product is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, models.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"vendor": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Vendor circuit breaker changed state")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerSource{source: source, cb: cb}
}

// WrapAll wraps every source with its own breaker
func WrapAll(srcs []Source, settings BreakerSettings) []Source {
	wrapped := make([]Source, 0, len(srcs))
	for _, s := range srcs {
		wrapped = append(wrapped, WithBreaker(s, settings))
	}
	return wrapped
}

func (b *BreakerSource) GetName() models.Vendor {
	return b.source.GetName()
}

func (b *BreakerSource) IsEnabled() bool {
	return b.source.IsEnabled()
}

// State reports the current breaker state
func (b *BreakerSource) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerSource) FetchProduct(ctx context.Context, productID string) (*models.ProductQuote, error) {
	result, err := b.execute(func() (any, error) {
		return b.source.FetchProduct(ctx, productID)
	})
	if err != nil {
		return nil, err
	}
	quote, ok := result.(*models.ProductQuote)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return quote, nil
}

func (b *BreakerSource) FetchCatalog(ctx context.Context) ([]models.ProductQuote, error) {
	result, err := b.execute(func() (any, error) {
		return b.source.FetchCatalog(ctx)
	})
	// pages fetched before a failure come back with the error
	quotes, ok := result.([]models.ProductQuote)
	if err != nil {
		return quotes, err
	}
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return quotes, nil
}

func (b *BreakerSource) execute(fn func() (any, error)) (any, error) {
	vendor := string(b.source.GetName())
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.VendorRequests.WithLabelValues(vendor, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.VendorRequests.WithLabelValues(vendor, "rejected").Inc()
		return nil, fmt.Errorf("%s: %w", vendor, err)
	default:
		metrics.VendorRequests.WithLabelValues(vendor, "failure").Inc()
	}
	return result, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
