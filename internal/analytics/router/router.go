// Package router wires the dashboard API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/handler"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/middleware"
)

type Config struct {
	AllowOrigins   []string
	RequestTimeout time.Duration
}

// New builds the API handler.
//
// Route table:
//
//	GET /analytics/events            → 7-day event counts
//	GET /analytics/events/realtime   → realtime event counts (?minutes=1..29)
//	GET /analytics/cache/stats       → report cache hit/miss counters
//	GET /health                      → liveness
//	GET /health/ready                → readiness (component report)
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → handler
//
// A nil m serves without request metrics.
func New(cfg Config, h *handler.Handler, checker *health.Checker, m *metrics.Metrics) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", checker.LiveHandler()).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health/ready", checker.ReadyHandler()).Methods(http.MethodGet, http.MethodOptions)

	api := r.PathPrefix("/analytics").Subrouter()
	api.HandleFunc("/events", h.Events).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/events/realtime", h.RealtimeEvents).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/cache/stats", h.CacheStats).Methods(http.MethodGet, http.MethodOptions)

	if m != nil {
		r.Use(middleware.Metrics(m))
	}
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	var chain http.Handler = r
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowOrigins))(chain)
	chain = middleware.RequestID(chain)
	return chain
}
