package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/trailpost/affiliate-engine/internal/metrics"
)

// NewRouter wires the handler set onto a mux router
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(instrument)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	affiliate := router.PathPrefix("/affiliate").Subrouter()
	affiliate.HandleFunc("/track-click", h.TrackClick).Methods(http.MethodPost)
	affiliate.HandleFunc("/track-conversion", h.TrackConversion).Methods(http.MethodPost)
	affiliate.HandleFunc("/performance/{timeframe}", h.Performance).Methods(http.MethodGet)
	affiliate.HandleFunc("/revenue/{timeframe}", h.Revenue).Methods(http.MethodGet)
	affiliate.HandleFunc("/recommendations/content/{contentId}", h.Recommendations).Methods(http.MethodGet)
	affiliate.HandleFunc("/inventory", h.Inventory).Methods(http.MethodGet)
	affiliate.HandleFunc("/inventory/sync", h.TriggerSync).Methods(http.MethodPost)
	affiliate.HandleFunc("/price-alerts", h.PriceAlerts).Methods(http.MethodGet)
	affiliate.HandleFunc("/commissions/pending", h.PendingCommissions).Methods(http.MethodGet)
	affiliate.HandleFunc("/commissions/{id}/approve", h.Approve).Methods(http.MethodPost)
	affiliate.HandleFunc("/commissions/{id}/reject", h.Reject).Methods(http.MethodPost)
	affiliate.HandleFunc("/commissions/{id}/mark-paid", h.MarkPaid).Methods(http.MethodPost)

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request latency by route template and logs each request
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": elapsed.String(),
		}).Debug("HTTP request")
	})
}
