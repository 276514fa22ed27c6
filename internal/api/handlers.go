package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/clicks"
	"github.com/trailpost/affiliate-engine/internal/ledger"
	"github.com/trailpost/affiliate-engine/internal/models"
	"github.com/trailpost/affiliate-engine/internal/monitoring"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// Ledger is the commission ledger as used by the HTTP layer
type Ledger interface {
	RecordConversion(ctx context.Context, conv ledger.Conversion) (*models.CommissionRecord, error)
	Approve(ctx context.Context, id string) (*models.CommissionRecord, error)
	Reject(ctx context.Context, id, reason string) (*models.CommissionRecord, error)
	MarkPaid(ctx context.Context, id string, paymentDate *time.Time) (*models.CommissionRecord, error)
	ListPending(ctx context.Context, vendor models.Vendor) ([]models.CommissionRecord, error)
}

// Reporter builds revenue and performance reports
type Reporter interface {
	Report(ctx context.Context, timeframe models.Timeframe) (*models.RevenueReport, error)
	Performance(ctx context.Context, timeframe models.Timeframe) (*models.PerformanceReport, error)
}

// Recommender produces purchasable recommendations for a content item
type Recommender interface {
	RecommendationsFor(ctx context.Context, contentRef string, prefs *models.UserPreferences) ([]models.AffiliateLink, error)
}

// InventoryReader reads the inventory monitor's output
type InventoryReader interface {
	ListSnapshots(ctx context.Context, filter models.InventoryFilter) ([]models.InventorySnapshot, error)
	ListPriceAlerts(ctx context.Context, limit int) ([]models.PriceAlert, error)
}

// SyncTrigger starts an out-of-schedule inventory sync
type SyncTrigger interface {
	TriggerFullSync() error
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the affiliate HTTP surface
type Handler struct {
	clicks          clicks.Recorder
	ledger          Ledger
	reports         Reporter
	recommendations Recommender
	inventory       InventoryReader
	sync            SyncTrigger
	pinger          Pinger
}

// Dependencies bundles the services behind the HTTP surface. Sync and
// Pinger are optional.
type Dependencies struct {
	Clicks          clicks.Recorder
	Ledger          Ledger
	Reports         Reporter
	Recommendations Recommender
	Inventory       InventoryReader
	Sync            SyncTrigger
	Pinger          Pinger
}

// NewHandler creates a new HTTP handler set
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		clicks:          deps.Clicks,
		ledger:          deps.Ledger,
		reports:         deps.Reports,
		recommendations: deps.Recommendations,
		inventory:       deps.Inventory,
		sync:            deps.Sync,
		pinger:          deps.Pinger,
	}
}

type trackClickRequest struct {
	ContentRef  string `json:"contentRef" validate:"max=255"`
	Vendor      string `json:"vendor" validate:"required,max=32"`
	LinkURL     string `json:"linkUrl" validate:"required,url"`
	UserAgent   string `json:"userAgent" validate:"max=1024"`
	IP          string `json:"ip" validate:"omitempty,ip"`
	Referrer    string `json:"referrer" validate:"max=1024"`
	SessionID   string `json:"sessionId" validate:"max=128"`
	UTMSource   string `json:"utm_source" validate:"max=255"`
	UTMMedium   string `json:"utm_medium" validate:"max=255"`
	UTMCampaign string `json:"utm_campaign" validate:"max=255"`
}

// TrackClick records an outbound affiliate click. A storage failure is
// reported as an accepted request with a warning, since the outbound
// navigation happens regardless.
func (h *Handler) TrackClick(w http.ResponseWriter, r *http.Request) {
	var req trackClickRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	client := models.ClientContext{
		UserAgent: req.UserAgent,
		IP:        req.IP,
		Referrer:  req.Referrer,
	}
	if client.UserAgent == "" {
		client.UserAgent = r.UserAgent()
	}
	if client.Referrer == "" {
		client.Referrer = r.Referer()
	}

	clickID, err := h.clicks.RecordClick(r.Context(), clicks.Request{
		Vendor:    req.Vendor,
		TargetURL: req.LinkURL,
		Client:    client,
		Campaign: models.CampaignContext{
			Source:   req.UTMSource,
			Medium:   req.UTMMedium,
			Campaign: req.UTMCampaign,
		},
		ContentRef: req.ContentRef,
		SessionID:  req.SessionID,
	})
	if errors.Is(err, models.ErrStorageUnavailable) {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"clickId": "",
			"warning": "click could not be recorded",
		})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"clickId": clickID})
}

type trackConversionRequest struct {
	ClickID     string          `json:"clickId" validate:"required,max=64"`
	Vendor      string          `json:"vendor" validate:"required,max=32"`
	ProductID   string          `json:"productId" validate:"max=255"`
	OrderID     string          `json:"orderId" validate:"required,max=255"`
	OrderValue  decimal.Decimal `json:"orderValue"`
	ContentRef  string          `json:"contentRef" validate:"max=255"`
	UserID      string          `json:"userId" validate:"max=128"`
	UTMSource   string          `json:"utm_source" validate:"max=255"`
	UTMMedium   string          `json:"utm_medium" validate:"max=255"`
	UTMCampaign string          `json:"utm_campaign" validate:"max=255"`
}

// TrackConversion records a vendor-reported purchase as a commission
func (h *Handler) TrackConversion(w http.ResponseWriter, r *http.Request) {
	var req trackConversionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	record, err := h.ledger.RecordConversion(r.Context(), ledger.Conversion{
		ClickID:    req.ClickID,
		Vendor:     req.Vendor,
		ProductID:  req.ProductID,
		OrderID:    req.OrderID,
		OrderValue: req.OrderValue,
		Attribution: models.Attribution{
			Campaign: models.CampaignContext{
				Source:   req.UTMSource,
				Medium:   req.UTMMedium,
				Campaign: req.UTMCampaign,
			},
			ContentRef: req.ContentRef,
			UserID:     req.UserID,
		},
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"commissionId":     record.ID,
		"status":           record.Status,
		"commissionEarned": record.CommissionEarned.StringFixed(2),
	})
}

func timeframeParam(r *http.Request) (models.Timeframe, error) {
	return models.ParseTimeframe(mux.Vars(r)["timeframe"])
}

// Performance returns click and conversion metrics for a timeframe
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	timeframe, err := timeframeParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	report, err := h.reports.Performance(r.Context(), timeframe)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Revenue returns the revenue report for a timeframe
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	timeframe, err := timeframeParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	report, err := h.reports.Report(r.Context(), timeframe)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Recommendations returns purchasable recommendations for a content item.
// The optional preferences query parameter carries JSON, e.g. {"budget":150}.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	contentID := mux.Vars(r)["contentId"]

	var prefs *models.UserPreferences
	if raw := r.URL.Query().Get("preferences"); raw != "" {
		prefs = &models.UserPreferences{}
		if err := json.Unmarshal([]byte(raw), prefs); err != nil {
			respondError(w, r, models.NewValidationError("preferences", "invalid JSON"))
			return
		}
	}

	links, err := h.recommendations.RecommendationsFor(r.Context(), contentID, prefs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contentId":       contentID,
		"recommendations": links,
	})
}

// Inventory lists current snapshots. Read failures degrade to an empty list.
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.InventoryFilter{
		Category: strings.ToLower(strings.TrimSpace(query.Get("category"))),
	}
	if raw := query.Get("vendor"); raw != "" {
		vendor, ok := models.ParseVendor(raw)
		if !ok {
			respondError(w, r, models.NewValidationError("vendor", "unknown vendor "+raw))
			return
		}
		filter.Vendor = vendor
	}

	snapshots, err := h.inventory.ListSnapshots(r.Context(), filter)
	if err != nil {
		logrus.Errorf("Failed to list inventory snapshots: %v", err)
		snapshots = nil
	}
	if snapshots == nil {
		snapshots = []models.InventorySnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": snapshots,
		"count": len(snapshots),
	})
}

// PriceAlerts lists the most recent price alerts. Read failures degrade to
// an empty list.
func (h *Handler) PriceAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, models.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = min(n, maxAlertLimit)
	}

	alerts, err := h.inventory.ListPriceAlerts(r.Context(), limit)
	if err != nil {
		logrus.Errorf("Failed to list price alerts: %v", err)
		alerts = nil
	}
	if alerts == nil {
		alerts = []models.PriceAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// TriggerSync starts a full inventory sync in the background
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "inventory sync is not configured", "")
		return
	}
	status := "started"
	if err := h.sync.TriggerFullSync(); err != nil {
		if !errors.Is(err, monitoring.ErrSyncInProgress) {
			respondError(w, r, err)
			return
		}
		status = "already_running"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

// Approve moves a pending commission to approved
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	record, err := h.ledger.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// Reject moves a pending commission to rejected
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	record, err := h.ledger.Reject(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type markPaidRequest struct {
	PaymentDate *time.Time `json:"paymentDate"`
}

// MarkPaid moves an approved commission to paid. The body is optional.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	var req markPaidRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}
	record, err := h.ledger.MarkPaid(r.Context(), mux.Vars(r)["id"], req.PaymentDate)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// PendingCommissions lists pending commissions, optionally for one vendor.
// Vendors outside the configured set are valid filters: the ledger records
// their conversions at the default rate.
func (h *Handler) PendingCommissions(w http.ResponseWriter, r *http.Request) {
	var vendor models.Vendor
	if raw := r.URL.Query().Get("vendor"); raw != "" {
		vendor, _ = models.ParseVendor(raw)
		if vendor == "" {
			respondError(w, r, models.NewValidationError("vendor", "must not be blank"))
			return
		}
	}

	records, err := h.ledger.ListPending(r.Context(), vendor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if records == nil {
		records = []models.CommissionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commissions": records,
		"count":       len(records),
	})
}

// Health reports service liveness and store reachability
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			logrus.Warnf("Health check failed: %v", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
