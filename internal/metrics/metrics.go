package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Attribution
	ClicksRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_clicks_recorded_total",
			Help: "Total number of outbound affiliate clicks recorded",
		},
		[]string{"vendor"},
	)

	ClickRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliate_click_record_failures_total",
			Help: "Clicks that could not be persisted",
		},
	)

	ConversionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_conversions_recorded_total",
			Help: "Conversions recorded by outcome (attributed, orphaned, click_update_failed, duplicate_order, duplicate_click)",
		},
		[]string{"vendor", "outcome"},
	)

	CommissionEarned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_commission_earned_total",
			Help: "Commission earned at conversion time, in account currency",
		},
		[]string{"vendor"},
	)

	CommissionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_commission_transitions_total",
			Help: "Commission lifecycle transitions by target status and result",
		},
		[]string{"status", "result"},
	)

	// Inventory sync
	SyncCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inventory_sync_cycle_duration_seconds",
			Help:    "Duration of inventory sync cycles",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vendor", "mode"},
	)

	SyncProducts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_sync_products_total",
			Help: "Products processed by inventory sync, by result",
		},
		[]string{"vendor", "result"},
	)

	SyncCyclesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_sync_cycles_skipped_total",
			Help: "Cycles skipped because the previous cycle for the vendor was still running",
		},
		[]string{"vendor"},
	)

	PriceAlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_price_alerts_total",
			Help: "Price and stock alerts emitted",
		},
		[]string{"vendor", "type"},
	)

	// Vendor API resilience
	VendorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_api_requests_total",
			Help: "Vendor API requests by result (success, failure, rejected)",
		},
		[]string{"vendor", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vendor_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"vendor"},
	)

	// Recommendations
	RecommendationCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cache_requests_total",
			Help: "Recommendation cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	RecommendationsServed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendations_served",
			Help:    "Number of purchasable recommendations returned per request",
			Buckets: []float64{0, 1, 2, 4, 6, 8, 10},
		},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "affiliate_http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)
