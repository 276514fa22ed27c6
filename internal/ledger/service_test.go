package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/rates"
	"github.com/trailpost/affiliate-engine/internal/storage"
)

// MockNotifier is a mock implementation of AlertSender
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendAlert(alert *models.Alert) error {
	args := m.Called(alert)
	return args.Error(0)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(t *testing.T, store Store, notifier AlertSender) *Service {
	t.Helper()
	holder := rates.NewHolder(rates.DefaultTable(rates.Percentage("0.03")))
	return NewService(store, holder, notifier, Settings{
		HighValueThreshold:  dec("100"),
		ClickUpdateAttempts: 3,
		ClickUpdateBackoff:  time.Millisecond,
	})
}

func seedClick(t *testing.T, store *storage.MemoryStore, id string, vendor models.Vendor) {
	t.Helper()
	require.NoError(t, store.CreateClick(context.Background(), &models.Click{
		ID:        id,
		Vendor:    vendor,
		TargetURL: "https://example.com/p",
		CreatedAt: time.Now().UTC(),
	}))
}

func conversion(clickID, vendor, orderID, value string) Conversion {
	return Conversion{
		ClickID:    clickID,
		Vendor:     vendor,
		ProductID:  "prod-1",
		OrderID:    orderID,
		OrderValue: dec(value),
	}
}

func TestRecordConversion_PercentageRate(t *testing.T) {
	tests := []struct {
		vendor   string
		expected string
	}{
		{vendor: "amazon", expected: "4"},
		{vendor: "rei", expected: "5"},
		{vendor: "backcountry", expected: "8"},
		{vendor: "getyourguide", expected: "8"},
		{vendor: "viator", expected: "8"},
	}

	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seedClick(t, store, "click-1", models.Vendor(tt.vendor))
			ledger := newTestLedger(t, store, nil)

			record, err := ledger.RecordConversion(context.Background(), conversion("click-1", tt.vendor, "order-1", "100"))
			require.NoError(t, err)
			assert.True(t, record.CommissionEarned.Equal(dec(tt.expected)), "got %s", record.CommissionEarned)
			assert.Equal(t, models.CommissionPending, record.Status)
			assert.Equal(t, models.RatePercentage, record.RateKind)
		})
	}
}

func TestRecordConversion_FlatRateIgnoresOrderValue(t *testing.T) {
	for _, value := range []string{"1", "100", "9999.99"} {
		store := storage.NewMemoryStore()
		ledger := newTestLedger(t, store, nil)

		record, err := ledger.RecordConversion(context.Background(), conversion("click-"+value, "alltrails", "order-"+value, value))
		require.NoError(t, err)
		assert.True(t, record.CommissionEarned.Equal(dec("25")), "order value %s", value)
		assert.Equal(t, models.RateFlat, record.RateKind)
	}
}

func TestRecordConversion_UnknownVendorUsesDefaultRate(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)

	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "Patagonia", "order-1", "200"))
	require.NoError(t, err)
	assert.Equal(t, models.Vendor("patagonia"), record.Vendor)
	assert.True(t, record.CommissionEarned.Equal(dec("6")))
}

func TestRecordConversion_MarksClickConverted(t *testing.T) {
	store := storage.NewMemoryStore()
	seedClick(t, store, "click-1", models.VendorBackcountry)
	ledger := newTestLedger(t, store, nil)

	_, err := ledger.RecordConversion(context.Background(), conversion("click-1", "backcountry", "order-1", "150"))
	require.NoError(t, err)

	click, err := store.GetClick(context.Background(), "click-1")
	require.NoError(t, err)
	assert.True(t, click.Converted)
	assert.True(t, click.ConversionValue.Decimal.Equal(dec("150")))
	assert.True(t, click.CommissionEarned.Decimal.Equal(dec("12")))
}

func TestRecordConversion_InheritsClickAttribution(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.CreateClick(context.Background(), &models.Click{
		ID:         "click-1",
		ContentRef: "zion-narrows",
		Vendor:     models.VendorREI,
		TargetURL:  "https://www.rei.com/product/1",
		Campaign:   models.CampaignContext{Source: "newsletter", Medium: "email"},
		CreatedAt:  time.Now().UTC(),
	}))
	ledger := newTestLedger(t, store, nil)

	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "100"))
	require.NoError(t, err)
	assert.Equal(t, "zion-narrows", record.Attribution.ContentRef)
	assert.Equal(t, "newsletter", record.Attribution.Campaign.Source)

	conv := conversion("click-1", "rei", "order-2", "100")
	conv.Attribution = models.Attribution{ContentRef: "angels-landing", UserID: "u-7"}
	record, err = ledger.RecordConversion(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, "angels-landing", record.Attribution.ContentRef, "reported context wins")
	assert.Equal(t, "email", record.Attribution.Campaign.Medium)
	assert.Equal(t, "u-7", record.Attribution.UserID)
}

func TestRecordConversion_OrphanedClick(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)

	record, err := ledger.RecordConversion(context.Background(), conversion("purged-click", "rei", "order-1", "80"))
	require.NoError(t, err)
	assert.Equal(t, "purged-click", record.ClickID)

	stored, err := store.GetCommission(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "purged-click", stored.ClickID)
}

func TestRecordConversion_DuplicateOrderIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)

	first, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "80"))
	require.NoError(t, err)
	second, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "80"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	all, err := store.ListCommissions(context.Background(), models.CommissionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordConversion_RepeatPurchasesAllowedPerClick(t *testing.T) {
	store := storage.NewMemoryStore()
	seedClick(t, store, "click-1", models.VendorREI)
	ledger := newTestLedger(t, store, nil)

	_, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "80"))
	require.NoError(t, err)
	second, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-2", "40"))
	require.NoError(t, err)

	assert.Equal(t, models.CommissionPending, second.Status)
	click, err := store.GetClick(context.Background(), "click-1")
	require.NoError(t, err)
	assert.True(t, click.ConversionValue.Decimal.Equal(dec("80")), "first conversion values are kept")
}

func TestRecordConversion_OnePerClickVendorRejectsSecond(t *testing.T) {
	store := storage.NewMemoryStore()
	seedClick(t, store, "click-1", models.VendorAllTrails)
	ledger := newTestLedger(t, store, nil)

	first, err := ledger.RecordConversion(context.Background(), conversion("click-1", "alltrails", "signup-1", "36"))
	require.NoError(t, err)
	second, err := ledger.RecordConversion(context.Background(), conversion("click-1", "alltrails", "signup-2", "36"))
	require.NoError(t, err)

	assert.Equal(t, models.CommissionPending, first.Status)
	assert.Equal(t, models.CommissionRejected, second.Status)
	assert.Equal(t, ReasonDuplicateClickConversion, second.RejectionReason)
	require.NotNil(t, second.RejectedDate)
}

func TestRecordConversion_HighValueAlert(t *testing.T) {
	store := storage.NewMemoryStore()
	notifier := new(MockNotifier)
	notifier.On("SendAlert", mock.MatchedBy(func(a *models.Alert) bool {
		return a.Type == models.AlertHighValueCommission && a.Amount.Equal(dec("160"))
	})).Return(nil)
	ledger := newTestLedger(t, store, notifier)

	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "viator", "order-1", "2000"))
	require.NoError(t, err)

	notifier.AssertExpectations(t)
	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, record.ID, alerts[0].CommissionID)
}

func TestRecordConversion_NoAlertBelowThreshold(t *testing.T) {
	store := storage.NewMemoryStore()
	notifier := new(MockNotifier)
	ledger := newTestLedger(t, store, notifier)

	_, err := ledger.RecordConversion(context.Background(), conversion("click-1", "viator", "order-1", "1000"))
	require.NoError(t, err)

	notifier.AssertNotCalled(t, "SendAlert", mock.Anything)
	assert.Empty(t, store.Alerts())
}

func TestRecordConversion_NotifierFailureDoesNotFailConversion(t *testing.T) {
	store := storage.NewMemoryStore()
	notifier := new(MockNotifier)
	notifier.On("SendAlert", mock.Anything).Return(errors.New("webhook down"))
	ledger := newTestLedger(t, store, notifier)

	_, err := ledger.RecordConversion(context.Background(), conversion("click-1", "viator", "order-1", "5000"))
	assert.NoError(t, err)
	assert.Len(t, store.Alerts(), 1)
}

func TestRecordConversion_Validation(t *testing.T) {
	tests := []struct {
		name  string
		conv  Conversion
		field string
	}{
		{name: "Missing click", conv: conversion("", "rei", "o", "10"), field: "clickId"},
		{name: "Missing vendor", conv: conversion("c", "", "o", "10"), field: "vendor"},
		{name: "Missing order", conv: conversion("c", "rei", "", "10"), field: "orderId"},
		{name: "Zero value", conv: conversion("c", "rei", "o", "0"), field: "orderValue"},
		{name: "Negative value", conv: conversion("c", "rei", "o", "-5"), field: "orderValue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			_, err := newTestLedger(t, store, nil).RecordConversion(context.Background(), tt.conv)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			all, _ := store.ListCommissions(context.Background(), models.CommissionFilter{})
			assert.Empty(t, all)
		})
	}
}

// flakyClickStore fails MarkConverted a fixed number of times
type flakyClickStore struct {
	*storage.MemoryStore
	failures int32
	calls    atomic.Int32
}

func (f *flakyClickStore) MarkConverted(ctx context.Context, id string, value, commission decimal.Decimal) error {
	if f.calls.Add(1) <= f.failures {
		return models.StorageError("mark click converted", errors.New("deadlock detected"))
	}
	return f.MemoryStore.MarkConverted(ctx, id, value, commission)
}

func TestRecordConversion_RetriesClickUpdate(t *testing.T) {
	store := &flakyClickStore{MemoryStore: storage.NewMemoryStore(), failures: 2}
	seedClick(t, store.MemoryStore, "click-1", models.VendorREI)
	ledger := newTestLedger(t, store, nil)

	_, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "100"))
	require.NoError(t, err)

	assert.Equal(t, int32(3), store.calls.Load())
	click, err := store.GetClick(context.Background(), "click-1")
	require.NoError(t, err)
	assert.True(t, click.Converted)
}

func TestRecordConversion_CommissionSurvivesClickUpdateFailure(t *testing.T) {
	store := &flakyClickStore{MemoryStore: storage.NewMemoryStore(), failures: 10}
	seedClick(t, store.MemoryStore, "click-1", models.VendorREI)
	ledger := newTestLedger(t, store, nil)

	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "100"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.calls.Load())

	_, err = store.GetCommission(context.Background(), record.ID)
	assert.NoError(t, err)
}

func TestLifecycle_ApproveThenPay(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)
	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "100"))
	require.NoError(t, err)

	approved, err := ledger.Approve(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionApproved, approved.Status)
	require.NotNil(t, approved.ApprovedDate)

	paidAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	paid, err := ledger.MarkPaid(context.Background(), record.ID, &paidAt)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionPaid, paid.Status)
	assert.Equal(t, paidAt, *paid.PaymentDate)
	assert.True(t, paid.CommissionEarned.Equal(record.CommissionEarned))
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)
	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "100"))
	require.NoError(t, err)

	_, err = ledger.MarkPaid(context.Background(), record.ID, nil)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition, "pending -> paid")

	_, err = ledger.Approve(context.Background(), record.ID)
	require.NoError(t, err)
	_, err = ledger.Approve(context.Background(), record.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition, "approved -> approved")

	_, err = ledger.Reject(context.Background(), record.ID, "fraud")
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition, "approved -> rejected")

	stored, err := store.GetCommission(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionApproved, stored.Status)
}

func TestLifecycle_MarkPaidTwiceKeepsPaymentDate(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)
	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "100"))
	require.NoError(t, err)
	_, err = ledger.Approve(context.Background(), record.ID)
	require.NoError(t, err)

	first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = ledger.MarkPaid(context.Background(), record.ID, &first)
	require.NoError(t, err)

	second := first.Add(48 * time.Hour)
	_, err = ledger.MarkPaid(context.Background(), record.ID, &second)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)

	stored, err := store.GetCommission(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *stored.PaymentDate)
}

func TestLifecycle_RejectIsTerminal(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)
	record, err := ledger.RecordConversion(context.Background(), conversion("click-1", "rei", "order-1", "100"))
	require.NoError(t, err)

	_, err = ledger.Reject(context.Background(), record.ID, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	rejected, err := ledger.Reject(context.Background(), record.ID, "returned")
	require.NoError(t, err)
	assert.Equal(t, "returned", rejected.RejectionReason)

	_, err = ledger.Approve(context.Background(), record.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestLifecycle_UnknownCommission(t *testing.T) {
	ledger := newTestLedger(t, storage.NewMemoryStore(), nil)
	_, err := ledger.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListPending_FiltersByVendor(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newTestLedger(t, store, nil)
	for i, vendor := range []string{"rei", "viator", "rei"} {
		_, err := ledger.RecordConversion(context.Background(), conversion("c", vendor, "order-"+string(rune('a'+i)), "10"))
		require.NoError(t, err)
	}

	all, err := ledger.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rei, err := ledger.ListPending(context.Background(), models.VendorREI)
	require.NoError(t, err)
	assert.Len(t, rei, 2)
}
