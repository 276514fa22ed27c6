package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/config"
	"github.com/trailpost/affiliate-engine/internal/metrics"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/notifications"
	"github.com/trailpost/affiliate-engine/internal/sources"
	"github.com/trailpost/affiliate-engine/internal/storage"
	"golang.org/x/sync/semaphore"
)

// SyncMode distinguishes the two poll cycles
type SyncMode string

const (
	// ModeFullSync walks every vendor catalog
	ModeFullSync SyncMode = "full"
	// ModePriceCheck re-fetches every tracked product individually
	ModePriceCheck SyncMode = "price_check"
)

// ErrSyncInProgress is returned when a manual sync is requested while one is running
var ErrSyncInProgress = errors.New("inventory sync already in progress")

// Store is the persistence the monitor needs
type Store interface {
	storage.InventoryRepository
	storage.AlertRepository
}

// SyncResult is the outcome of one poll cycle. Each cycle owns its result.
type SyncResult struct {
	Mode      SyncMode        `json:"mode"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Processed int             `json:"processed"`
	Updated   int             `json:"updated"`
	Alerts    int             `json:"alerts"`
	Failed    int             `json:"failed"`
	Skipped   []models.Vendor `json:"skipped,omitempty"`
	Errors    []error         `json:"-"`
}

func (r *SyncResult) merge(other *SyncResult) {
	r.Processed += other.Processed
	r.Updated += other.Updated
	r.Alerts += other.Alerts
	r.Failed += other.Failed
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Settings tunes poll cycles
type Settings struct {
	Concurrency         int
	FetchTimeout        time.Duration
	CatalogTimeout      time.Duration
	PriceAlertThreshold decimal.Decimal
}

// SettingsFromConfig derives monitor settings from the process configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Concurrency:         cfg.SyncConcurrency,
		FetchTimeout:        cfg.VendorFetchTimeout,
		CatalogTimeout:      10 * cfg.VendorFetchTimeout,
		PriceAlertThreshold: cfg.PriceAlertThreshold,
	}
}

// Service polls vendor catalogs, keeps inventory snapshots current and
// raises price and stock alerts
type Service struct {
	settings            Settings
	store               Store
	notificationService notifications.NotificationInterface
	sources             []sources.Source
	sem                 *semaphore.Weighted
	guards              map[models.Vendor]*sync.Mutex
	manual              atomic.Bool
	inflight            sync.WaitGroup
	now                 func() time.Time

	mu         sync.RWMutex
	lastResult map[SyncMode]*SyncResult
}

// NewService creates a new inventory monitor
func NewService(settings Settings, store Store, notificationService notifications.NotificationInterface, srcs []sources.Source) *Service {
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	if settings.CatalogTimeout <= 0 {
		settings.CatalogTimeout = 10 * settings.FetchTimeout
	}

	guards := make(map[models.Vendor]*sync.Mutex, len(srcs))
	for _, src := range srcs {
		guards[src.GetName()] = &sync.Mutex{}
	}

	return &Service{
		settings:            settings,
		store:               store,
		notificationService: notificationService,
		sources:             srcs,
		sem:                 semaphore.NewWeighted(int64(settings.Concurrency)),
		guards:              guards,
		now:                 func() time.Time { return time.Now().UTC() },
		lastResult:          make(map[SyncMode]*SyncResult),
	}
}

// RunFullSync fetches every enabled vendor's catalog and applies it
func (s *Service) RunFullSync(ctx context.Context) *SyncResult {
	return s.runCycle(ctx, ModeFullSync)
}

// RunPriceCheck re-fetches every tracked product to detect price and stock changes
func (s *Service) RunPriceCheck(ctx context.Context) *SyncResult {
	return s.runCycle(ctx, ModePriceCheck)
}

// TriggerFullSync starts a full sync in the background. It refuses to stack
// a second manual sync on top of a running one.
func (s *Service) TriggerFullSync() error {
	if !s.manual.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.manual.Store(false)
		s.RunFullSync(context.Background())
	}()
	return nil
}

// Wait blocks until manually triggered syncs have finished or ctx is done
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastResult returns the most recent completed cycle of mode, if any
func (s *Service) LastResult(mode SyncMode) (SyncResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.lastResult[mode]
	if !ok {
		return SyncResult{}, false
	}
	return *result, true
}

func (s *Service) runCycle(ctx context.Context, mode SyncMode) *SyncResult {
	start := s.now()
	logrus.WithField("mode", mode).Info("Starting inventory sync cycle")

	var wg sync.WaitGroup
	resultsChan := make(chan *SyncResult, len(s.sources))

	// Vendors run concurrently; products share the global worker cap
	for _, source := range s.sources {
		if !source.IsEnabled() {
			logrus.Debugf("Skipping disabled vendor source %s", source.GetName())
			continue
		}

		wg.Add(1)
		go func(src sources.Source) {
			defer wg.Done()
			resultsChan <- s.syncVendor(ctx, mode, src)
		}(source)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	result := &SyncResult{Mode: mode, StartedAt: start}
	for vendorResult := range resultsChan {
		result.merge(vendorResult)
	}
	result.Duration = s.now().Sub(start)

	s.mu.Lock()
	s.lastResult[mode] = result
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"mode":      mode,
		"processed": result.Processed,
		"updated":   result.Updated,
		"alerts":    result.Alerts,
		"failed":    result.Failed,
		"skipped":   len(result.Skipped),
		"duration":  result.Duration.String(),
	}).Info("Inventory sync cycle completed")

	return result
}

// syncVendor runs one vendor's share of a cycle. A vendor whose previous
// cycle is still running is skipped so alerts are never diffed against a
// snapshot another cycle is about to overwrite.
func (s *Service) syncVendor(ctx context.Context, mode SyncMode, src sources.Source) *SyncResult {
	vendor := src.GetName()
	result := &SyncResult{Mode: mode}

	guard, ok := s.guards[vendor]
	if !ok {
		guard = &sync.Mutex{}
	}
	if !guard.TryLock() {
		logrus.WithField("vendor", vendor).Warn("Previous sync cycle still running, skipping vendor")
		metrics.SyncCyclesSkipped.WithLabelValues(string(vendor)).Inc()
		result.Skipped = append(result.Skipped, vendor)
		return result
	}
	defer guard.Unlock()

	start := time.Now()
	defer func() {
		metrics.SyncCycleDuration.WithLabelValues(string(vendor), string(mode)).Observe(time.Since(start).Seconds())
	}()

	var fetchers []productFetch
	switch mode {
	case ModeFullSync:
		catalogCtx, cancel := context.WithTimeout(ctx, s.settings.CatalogTimeout)
		quotes, err := src.FetchCatalog(catalogCtx)
		cancel()
		if err != nil {
			fetchErr := &models.VendorFetchError{Vendor: vendor, Err: err}
			logrus.WithField("vendor", vendor).Warnf("Catalog fetch failed: %v", err)
			result.Failed++
			result.Errors = append(result.Errors, fetchErr)
			metrics.SyncProducts.WithLabelValues(string(vendor), "failed").Inc()
			// keep whatever pages arrived before the failure
		}
		for i := range quotes {
			quote := quotes[i]
			fetchers = append(fetchers, productFetch{
				productID: quote.ProductID,
				fetch: func(context.Context) (*models.ProductQuote, error) {
					return &quote, nil
				},
			})
		}

	case ModePriceCheck:
		tracked, err := s.store.ListSnapshots(ctx, models.InventoryFilter{Vendor: vendor})
		if err != nil {
			logrus.WithField("vendor", vendor).Errorf("Failed to list tracked products: %v", err)
			result.Errors = append(result.Errors, err)
			return result
		}
		for _, snapshot := range tracked {
			productID := snapshot.ExternalProductID
			fetchers = append(fetchers, productFetch{
				productID: productID,
				fetch: func(ctx context.Context) (*models.ProductQuote, error) {
					return src.FetchProduct(ctx, productID)
				},
			})
		}
	}

	var mu sync.Mutex
	var pwg sync.WaitGroup
	for _, pf := range fetchers {
		// Stop handing out work once the cycle is cancelled; in-flight
		// products finish their writes
		if err := s.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors = append(result.Errors, fmt.Errorf("%s sync interrupted: %w", vendor, err))
			mu.Unlock()
			break
		}

		pwg.Add(1)
		go func(pf productFetch) {
			defer pwg.Done()
			defer s.sem.Release(1)

			outcome := s.syncProduct(ctx, vendor, pf)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			switch {
			case outcome.err != nil:
				result.Failed++
				result.Errors = append(result.Errors, outcome.err)
			default:
				result.Updated++
				result.Alerts += outcome.alerts
			}
		}(pf)
	}
	pwg.Wait()

	return result
}

type productFetch struct {
	productID string
	fetch     func(ctx context.Context) (*models.ProductQuote, error)
}

type productOutcome struct {
	alerts int
	err    error
}

// syncProduct is the poll step for one product: fetch, read the previous
// snapshot, overwrite it, then diff
func (s *Service) syncProduct(ctx context.Context, vendor models.Vendor, pf productFetch) productOutcome {
	logger := logrus.WithFields(logrus.Fields{
		"vendor":     vendor,
		"product_id": pf.productID,
	})

	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.FetchTimeout)
	quote, err := pf.fetch(fetchCtx)
	cancel()
	if err != nil {
		metrics.SyncProducts.WithLabelValues(string(vendor), "failed").Inc()
		logger.Warnf("Product fetch failed: %v", err)
		return productOutcome{err: &models.VendorFetchError{Vendor: vendor, ProductID: pf.productID, Err: err}}
	}
	if quote.Vendor == "" {
		quote.Vendor = vendor
	}
	if quote.ProductID == "" {
		quote.ProductID = pf.productID
	}

	prev, err := s.store.GetSnapshot(ctx, vendor, quote.ProductID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		metrics.SyncProducts.WithLabelValues(string(vendor), "failed").Inc()
		logger.Errorf("Failed to read previous snapshot: %v", err)
		return productOutcome{err: err}
	}

	now := s.now()
	curr := models.SnapshotFromQuote(quote, now)
	if err := s.store.SaveSnapshot(ctx, curr); err != nil {
		metrics.SyncProducts.WithLabelValues(string(vendor), "failed").Inc()
		logger.Errorf("Failed to save snapshot: %v", err)
		return productOutcome{err: err}
	}
	metrics.SyncProducts.WithLabelValues(string(vendor), "updated").Inc()

	alerts := Diff(prev, curr, s.settings.PriceAlertThreshold, now)
	for i := range alerts {
		s.emit(ctx, logger, &alerts[i])
	}

	return productOutcome{alerts: len(alerts)}
}

func (s *Service) emit(ctx context.Context, logger *logrus.Entry, alert *models.PriceAlert) {
	metrics.PriceAlertsEmitted.WithLabelValues(string(alert.Vendor), string(alert.AlertType)).Inc()
	logger.WithFields(logrus.Fields{
		"alert_type": alert.AlertType,
		"old_price":  alert.OldPrice.StringFixed(2),
		"new_price":  alert.NewPrice.StringFixed(2),
		"discount":   alert.DiscountPercentage.String(),
	}).Info("Inventory alert")

	if err := s.store.AppendPriceAlert(ctx, alert); err != nil {
		logger.Errorf("Failed to persist price alert: %v", err)
	}

	if s.notificationService == nil || !notifiable(alert.AlertType) {
		return
	}
	notice := &models.Alert{
		ID:         uuid.NewString(),
		Type:       models.AlertInventory,
		Title:      fmt.Sprintf("%s: %s", alert.AlertType, alert.ProductName),
		Message:    fmt.Sprintf("%s %s moved from %s to %s (%s%%)", alert.Vendor, alert.ProductID, alert.OldPrice.StringFixed(2), alert.NewPrice.StringFixed(2), alert.DiscountPercentage.String()),
		Vendor:     alert.Vendor,
		Amount:     alert.NewPrice,
		PriceAlert: alert,
		CreatedAt:  alert.CreatedAt,
	}
	if err := s.notificationService.SendAlert(notice); err != nil {
		logger.Errorf("Failed to send inventory alert: %v", err)
	}
}
