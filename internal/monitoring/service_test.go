package monitoring

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/sources"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// MockNotificationService is a mock implementation of the notification service
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendReport(report *models.RevenueReport) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockNotificationService) SendAlert(alert *models.Alert) error {
	args := m.Called(alert)
	return args.Error(0)
}

// stubSource serves quotes from memory and records fetch concurrency
type stubSource struct {
	vendor models.Vendor

	mu     sync.Mutex
	quotes map[string]models.ProductQuote
	errs   map[string]error
	hang   map[string]bool

	catalogErr error

	block   chan struct{}
	started chan struct{}
	delay   time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

var _ sources.Source = (*stubSource)(nil)

func newStubSource(vendor models.Vendor) *stubSource {
	return &stubSource{
		vendor: vendor,
		quotes: make(map[string]models.ProductQuote),
		errs:   make(map[string]error),
		hang:   make(map[string]bool),
	}
}

func (s *stubSource) set(productID, price string, availability models.Availability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[productID] = models.ProductQuote{
		Vendor:       s.vendor,
		ProductID:    productID,
		Name:         "Product " + productID,
		Price:        decimal.RequireFromString(price),
		Availability: availability,
		Category:     "hiking",
	}
}

func (s *stubSource) GetName() models.Vendor { return s.vendor }
func (s *stubSource) IsEnabled() bool        { return true }

func (s *stubSource) FetchProduct(ctx context.Context, productID string) (*models.ProductQuote, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.maxInflight.Load()
		if n <= peak || s.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	if s.block != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	hang := s.hang[productID]
	err := s.errs[productID]
	quote, ok := s.quotes[productID]
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrNotFound
	}
	return &quote, nil
}

func (s *stubSource) FetchCatalog(ctx context.Context) ([]models.ProductQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quotes := make([]models.ProductQuote, 0, len(s.quotes))
	for _, q := range s.quotes {
		quotes = append(quotes, q)
	}
	return quotes, s.catalogErr
}

func testSettings() Settings {
	return Settings{
		Concurrency:         5,
		FetchTimeout:        200 * time.Millisecond,
		CatalogTimeout:      time.Second,
		PriceAlertThreshold: decimal.NewFromInt(10),
	}
}

func seedSnapshot(t *testing.T, store *storage.MemoryStore, vendor models.Vendor, productID, price string, availability models.Availability) {
	t.Helper()
	require.NoError(t, store.SaveSnapshot(context.Background(), &models.InventorySnapshot{
		ID:                models.SnapshotID(vendor, productID),
		Vendor:            vendor,
		ExternalProductID: productID,
		Name:              "Product " + productID,
		Price:             decimal.RequireFromString(price),
		Availability:      availability,
		LastUpdated:       time.Now().UTC().Add(-time.Hour),
	}))
}

func alertTypes(t *testing.T, store *storage.MemoryStore) []models.PriceAlertType {
	t.Helper()
	alerts, err := store.ListPriceAlerts(context.Background(), 100)
	require.NoError(t, err)
	types := make([]models.PriceAlertType, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, a.AlertType)
	}
	return types
}

func TestRunPriceCheck_PriceDropAlert(t *testing.T) {
	tests := []struct {
		name     string
		newPrice string
		expected []models.PriceAlertType
	}{
		{name: "Fifteen percent drop", newPrice: "85", expected: []models.PriceAlertType{models.AlertPriceDrop}},
		{name: "Three percent drop", newPrice: "97", expected: []models.PriceAlertType{}},
		{name: "Exactly ten percent", newPrice: "90", expected: []models.PriceAlertType{models.AlertPriceDrop}},
		{name: "Twenty percent increase", newPrice: "120", expected: []models.PriceAlertType{models.AlertPriceIncrease}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seedSnapshot(t, store, models.VendorREI, "p1", "100", models.InStock)
			src := newStubSource(models.VendorREI)
			src.set("p1", tt.newPrice, models.InStock)

			notifier := &MockNotificationService{}
			notifier.On("SendAlert", mock.Anything).Return(nil)

			service := NewService(testSettings(), store, notifier, []sources.Source{src})
			result := service.RunPriceCheck(context.Background())

			assert.Equal(t, 1, result.Processed)
			assert.Equal(t, 1, result.Updated)
			assert.Equal(t, len(tt.expected), result.Alerts)
			assert.ElementsMatch(t, tt.expected, alertTypes(t, store))

			snapshot, err := store.GetSnapshot(context.Background(), models.VendorREI, "p1")
			require.NoError(t, err)
			assert.True(t, snapshot.Price.Equal(decimal.RequireFromString(tt.newPrice)))
		})
	}
}

func TestRunPriceCheck_DiscountPercentageRecorded(t *testing.T) {
	store := storage.NewMemoryStore()
	seedSnapshot(t, store, models.VendorREI, "p1", "100", models.InStock)
	src := newStubSource(models.VendorREI)
	src.set("p1", "85", models.InStock)

	service := NewService(testSettings(), store, nil, []sources.Source{src})
	service.RunPriceCheck(context.Background())

	alerts, err := store.ListPriceAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].DiscountPercentage.Equal(decimal.NewFromInt(15)))
	assert.True(t, alerts[0].OldPrice.Equal(decimal.NewFromInt(100)))
}

func TestRunPriceCheck_ErrorIsolation(t *testing.T) {
	store := storage.NewMemoryStore()
	src := newStubSource(models.VendorBackcountry)
	for _, id := range []string{"a", "b", "c"} {
		seedSnapshot(t, store, models.VendorBackcountry, id, "50", models.InStock)
		src.set(id, "50", models.InStock)
	}
	src.errs["b"] = errors.New("502 bad gateway")

	service := NewService(testSettings(), store, nil, []sources.Source{src})
	result := service.RunPriceCheck(context.Background())

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], models.ErrVendorFetch)

	var fetchErr *models.VendorFetchError
	require.ErrorAs(t, result.Errors[0], &fetchErr)
	assert.Equal(t, "b", fetchErr.ProductID)
	assert.Empty(t, alertTypes(t, store))
}

func TestRunPriceCheck_FetchTimeoutFailsOnlyThatProduct(t *testing.T) {
	store := storage.NewMemoryStore()
	src := newStubSource(models.VendorViator)
	for _, id := range []string{"fast", "slow"} {
		seedSnapshot(t, store, models.VendorViator, id, "80", models.InStock)
		src.set(id, "60", models.InStock)
	}
	src.hang["slow"] = true

	settings := testSettings()
	settings.FetchTimeout = 50 * time.Millisecond
	service := NewService(settings, store, nil, []sources.Source{src})
	result := service.RunPriceCheck(context.Background())

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], context.DeadlineExceeded)
	assert.Equal(t, []models.PriceAlertType{models.AlertPriceDrop}, alertTypes(t, store))
}

func TestRunPriceCheck_StockTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     models.Availability
		to       models.Availability
		expected []models.PriceAlertType
	}{
		{name: "Into low stock", from: models.InStock, to: models.LowStock, expected: []models.PriceAlertType{models.AlertLowStock}},
		{name: "Into out of stock", from: models.LowStock, to: models.OutOfStock, expected: []models.PriceAlertType{models.AlertOutOfStock}},
		{name: "Back in stock", from: models.OutOfStock, to: models.InStock, expected: []models.PriceAlertType{models.AlertBackInStock}},
		{name: "Rediscovered", from: models.Discontinued, to: models.InStock, expected: []models.PriceAlertType{models.AlertBackInStock}},
		{name: "Low stock recovers", from: models.LowStock, to: models.InStock, expected: []models.PriceAlertType{}},
		{name: "Unchanged", from: models.OutOfStock, to: models.OutOfStock, expected: []models.PriceAlertType{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seedSnapshot(t, store, models.VendorREI, "p1", "100", tt.from)
			src := newStubSource(models.VendorREI)
			src.set("p1", "100", tt.to)

			service := NewService(testSettings(), store, nil, []sources.Source{src})
			service.RunPriceCheck(context.Background())

			assert.ElementsMatch(t, tt.expected, alertTypes(t, store))
		})
	}
}

func TestRunFullSync_FirstObservationHasNoAlerts(t *testing.T) {
	store := storage.NewMemoryStore()
	src := newStubSource(models.VendorREI)
	src.set("p1", "100", models.InStock)
	src.set("p2", "20", models.OutOfStock)

	service := NewService(testSettings(), store, nil, []sources.Source{src})
	result := service.RunFullSync(context.Background())

	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 0, result.Alerts)

	snapshots, err := store.ListSnapshots(context.Background(), models.InventoryFilter{Vendor: models.VendorREI})
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)

	last, ok := service.LastResult(ModeFullSync)
	require.True(t, ok)
	assert.Equal(t, 2, last.Processed)
}

func TestRunFullSync_PartialCatalogStillSyncs(t *testing.T) {
	for _, tc := range []struct {
		name   string
		breaks bool
	}{
		{name: "plain source"},
		{name: "behind circuit breaker", breaks: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			stub := newStubSource(models.VendorREI)
			stub.set("p1", "100", models.InStock)
			stub.set("p2", "20", models.InStock)
			stub.catalogErr = errors.New("failed to fetch REI catalog page 2: rei API returned status 500")

			var src sources.Source = stub
			if tc.breaks {
				src = sources.WithBreaker(stub, sources.DefaultBreakerSettings())
			}

			service := NewService(testSettings(), store, nil, []sources.Source{src})
			result := service.RunFullSync(context.Background())

			assert.Equal(t, 2, result.Processed)
			assert.Equal(t, 2, result.Updated)
			assert.Equal(t, 1, result.Failed)
			require.Len(t, result.Errors, 1)
			assert.ErrorIs(t, result.Errors[0], models.ErrVendorFetch)

			snapshots, err := store.ListSnapshots(context.Background(), models.InventoryFilter{Vendor: models.VendorREI})
			require.NoError(t, err)
			assert.Len(t, snapshots, 2)
		})
	}
}

func TestRunPriceCheck_ConcurrencyCap(t *testing.T) {
	store := storage.NewMemoryStore()
	src := newStubSource(models.VendorREI)
	src.delay = 20 * time.Millisecond
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		seedSnapshot(t, store, models.VendorREI, id, "10", models.InStock)
		src.set(id, "10", models.InStock)
	}

	settings := testSettings()
	settings.Concurrency = 2
	service := NewService(settings, store, nil, []sources.Source{src})
	result := service.RunPriceCheck(context.Background())

	assert.Equal(t, 12, result.Updated)
	assert.LessOrEqual(t, src.maxInflight.Load(), int32(2))
}

func TestRunPriceCheck_SkipsOverlappingVendorCycle(t *testing.T) {
	store := storage.NewMemoryStore()
	seedSnapshot(t, store, models.VendorREI, "p1", "100", models.InStock)
	src := newStubSource(models.VendorREI)
	src.set("p1", "100", models.InStock)
	src.block = make(chan struct{})
	src.started = make(chan struct{}, 1)

	settings := testSettings()
	settings.FetchTimeout = 5 * time.Second
	service := NewService(settings, store, nil, []sources.Source{src})

	firstDone := make(chan *SyncResult, 1)
	go func() {
		firstDone <- service.RunPriceCheck(context.Background())
	}()

	select {
	case <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never started fetching")
	}

	second := service.RunFullSync(context.Background())
	assert.Equal(t, []models.Vendor{models.VendorREI}, second.Skipped)
	assert.Equal(t, 0, second.Processed)

	close(src.block)
	first := <-firstDone
	assert.Equal(t, 1, first.Updated)
	assert.Empty(t, first.Skipped)
}

func TestRunPriceCheck_NotifiesStockAndDropsOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	seedSnapshot(t, store, models.VendorREI, "drop", "100", models.InStock)
	seedSnapshot(t, store, models.VendorREI, "rise", "100", models.InStock)
	src := newStubSource(models.VendorREI)
	src.set("drop", "50", models.InStock)
	src.set("rise", "150", models.InStock)

	notifier := &MockNotificationService{}
	notifier.On("SendAlert", mock.MatchedBy(func(a *models.Alert) bool {
		return a.Type == models.AlertInventory && a.PriceAlert != nil && a.PriceAlert.AlertType == models.AlertPriceDrop
	})).Return(nil).Once()

	service := NewService(testSettings(), store, notifier, []sources.Source{src})
	result := service.RunPriceCheck(context.Background())

	assert.Equal(t, 2, result.Alerts)
	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "SendAlert", 1)
}

func TestTriggerFullSync_RefusesWhileRunning(t *testing.T) {
	store := storage.NewMemoryStore()
	src := newStubSource(models.VendorREI)
	service := NewService(testSettings(), store, nil, []sources.Source{src})

	service.manual.Store(true)
	assert.ErrorIs(t, service.TriggerFullSync(), ErrSyncInProgress)

	service.manual.Store(false)
	require.NoError(t, service.TriggerFullSync())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, service.Wait(ctx))
	_, ok := service.LastResult(ModeFullSync)
	assert.True(t, ok)
}
