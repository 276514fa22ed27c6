package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trailpost/affiliate-engine/internal/models"
)

// MemoryStore is an in-process Repository used for local runs and tests
type MemoryStore struct {
	mu          sync.RWMutex
	clicks      map[string]models.Click
	commissions map[string]models.CommissionRecord
	order       []string
	snapshots   map[string]models.InventorySnapshot
	priceAlerts []models.PriceAlert
	alerts      []models.Alert
	content     map[string]models.Content
}

// Ensure MemoryStore implements Repository
var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clicks:      make(map[string]models.Click),
		commissions: make(map[string]models.CommissionRecord),
		snapshots:   make(map[string]models.InventorySnapshot),
		content:     make(map[string]models.Content),
	}
}

// PutContent seeds the content catalog
func (m *MemoryStore) PutContent(content models.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[content.Ref] = content
}

// Alerts returns a copy of the alert stream
func (m *MemoryStore) Alerts() []models.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Alert(nil), m.alerts...)
}

func (m *MemoryStore) CreateClick(_ context.Context, click *models.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clicks[click.ID]; exists {
		return fmt.Errorf("click %s already exists", click.ID)
	}
	m.clicks[click.ID] = *click
	return nil
}

func (m *MemoryStore) GetClick(_ context.Context, id string) (*models.Click, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	click, ok := m.clicks[id]
	if !ok {
		return nil, fmt.Errorf("click %s: %w", id, models.ErrNotFound)
	}
	return &click, nil
}

func (m *MemoryStore) MarkConverted(_ context.Context, id string, value, commission decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	click, ok := m.clicks[id]
	if !ok {
		return fmt.Errorf("click %s: %w", id, models.ErrNotFound)
	}
	if click.Converted {
		return ErrAlreadyConverted
	}
	click.Converted = true
	click.ConversionValue = decimal.NewNullDecimal(value)
	click.CommissionEarned = decimal.NewNullDecimal(commission)
	m.clicks[id] = click
	return nil
}

func (m *MemoryStore) ListClicksSince(_ context.Context, since time.Time) ([]models.Click, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var clicks []models.Click
	for _, click := range m.clicks {
		if !click.CreatedAt.Before(since) {
			clicks = append(clicks, click)
		}
	}
	sort.Slice(clicks, func(i, j int) bool { return clicks[i].CreatedAt.Before(clicks[j].CreatedAt) })
	return clicks, nil
}

func (m *MemoryStore) CreateCommission(_ context.Context, record *models.CommissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.commissions {
		if existing.Vendor == record.Vendor && existing.ExternalOrderID == record.ExternalOrderID {
			return fmt.Errorf("create commission: %w", ErrDuplicateOrder)
		}
	}
	m.commissions[record.ID] = *record
	m.order = append(m.order, record.ID)
	return nil
}

func (m *MemoryStore) GetCommission(_ context.Context, id string) (*models.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.commissions[id]
	if !ok {
		return nil, fmt.Errorf("commission %s: %w", id, models.ErrNotFound)
	}
	return &record, nil
}

func (m *MemoryStore) FindByOrder(_ context.Context, vendor models.Vendor, orderID string) (*models.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.commissions {
		if record.Vendor == vendor && record.ExternalOrderID == orderID {
			return &record, nil
		}
	}
	return nil, fmt.Errorf("order %s/%s: %w", vendor, orderID, models.ErrNotFound)
}

func (m *MemoryStore) CountByClick(_ context.Context, clickID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, record := range m.commissions {
		if record.ClickID == clickID && record.Status != models.CommissionRejected {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) TransitionCommission(_ context.Context, id string, from models.CommissionStatus, fn func(*models.CommissionRecord)) (*models.CommissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.commissions[id]
	if !ok {
		return nil, fmt.Errorf("commission %s: %w", id, models.ErrNotFound)
	}
	if record.Status != from {
		return nil, fmt.Errorf("commission %s: %w", id, models.ErrInvalidStateTransition)
	}
	fn(&record)
	m.commissions[id] = record
	return &record, nil
}

func (m *MemoryStore) ListCommissions(_ context.Context, filter models.CommissionFilter) ([]models.CommissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []models.CommissionRecord
	for _, id := range m.order {
		record := m.commissions[id]
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Vendor != "" && record.Vendor != filter.Vendor {
			continue
		}
		if !filter.Since.IsZero() && record.ConversionDate.Before(filter.Since) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (m *MemoryStore) GetSnapshot(_ context.Context, vendor models.Vendor, productID string) (*models.InventorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.snapshots[models.SnapshotID(vendor, productID)]
	if !ok {
		return nil, fmt.Errorf("snapshot %s/%s: %w", vendor, productID, models.ErrNotFound)
	}
	return &snapshot, nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, snapshot *models.InventorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ID] = *snapshot
	return nil
}

func (m *MemoryStore) ListSnapshots(_ context.Context, filter models.InventoryFilter) ([]models.InventorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var snapshots []models.InventorySnapshot
	for _, snapshot := range m.snapshots {
		if filter.Vendor != "" && snapshot.Vendor != filter.Vendor {
			continue
		}
		if filter.Category != "" && snapshot.Category != filter.Category {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots, nil
}

func (m *MemoryStore) AppendPriceAlert(_ context.Context, alert *models.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceAlerts = append(m.priceAlerts, *alert)
	return nil
}

func (m *MemoryStore) ListPriceAlerts(_ context.Context, limit int) ([]models.PriceAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var alerts []models.PriceAlert
	for i := len(m.priceAlerts) - 1; i >= 0 && len(alerts) < limit; i-- {
		alerts = append(alerts, m.priceAlerts[i])
	}
	return alerts, nil
}

func (m *MemoryStore) AppendAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *MemoryStore) GetContent(_ context.Context, ref string) (*models.Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.content[ref]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", ref, models.ErrNotFound)
	}
	return &content, nil
}
