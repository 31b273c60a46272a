// Package handler implements the dashboard's HTTP endpoints on top of the
// aggregation service.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/aggregator"
	apperrors "github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/tracing"
)

const (
	errEventsMessage = "failed to fetch analytics events"
	minutesParam     = "minutes"
)

var errRealtimeMessage = fmt.Sprintf(
	"failed to fetch realtime analytics events (realtime reports cover at most the last %d minutes)",
	aggregator.MaxRealtimeMinutes,
)

// EventReporter is the part of the aggregation service the handlers use.
type EventReporter interface {
	GetEventCounts(ctx context.Context) ([]analytics.EventCount, error)
	GetRealtimeEventCounts(ctx context.Context, requestedMinutes float64) (analytics.RealtimeCounts, error)
}

// CacheStats reports report-cache lookup counters.
type CacheStats interface {
	Stats() (hits, misses int64)
}

type Handler struct {
	reporter EventReporter
	stats    CacheStats
	tracing  bool
	logger   *slog.Logger
}

type Option func(*Handler)

// WithTracing logs a span tree for every report request at debug level.
func WithTracing(enabled bool) Option {
	return func(h *Handler) { h.tracing = enabled }
}

// WithCacheStats enables the cache stats endpoint.
func WithCacheStats(s CacheStats) Option {
	return func(h *Handler) { h.stats = s }
}

func New(reporter EventReporter, opts ...Option) *Handler {
	h := &Handler{
		reporter: reporter,
		logger:   slog.Default().With("component", "analytics-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Events handles GET /analytics/events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ctx, finish := h.startSpan(r, "GET /analytics/events")
	defer finish()

	events, err := h.reporter.GetEventCounts(ctx)
	if err != nil {
		h.logFailure(ctx, analytics.ReportAggregate, err)
		h.writeError(w, http.StatusInternalServerError, errEventsMessage)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// RealtimeEvents handles GET /analytics/events/realtime?minutes=N. A missing
// or unparsable N is treated like any other out-of-range window.
func (h *Handler) RealtimeEvents(w http.ResponseWriter, r *http.Request) {
	ctx, finish := h.startSpan(r, "GET /analytics/events/realtime")
	defer finish()

	counts, err := h.reporter.GetRealtimeEventCounts(ctx, parseMinutes(r.URL.Query().Get(minutesParam)))
	if err != nil {
		h.logFailure(ctx, analytics.ReportRealtime, err)
		h.writeError(w, http.StatusInternalServerError, errRealtimeMessage)
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}

// CacheStats handles GET /analytics/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, http.StatusNotFound, "cache stats are not available")
		return
	}
	hits, misses := h.stats.Stats()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"hit_rate": hitRate,
	})
}

func parseMinutes(raw string) float64 {
	if raw == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func (h *Handler) startSpan(r *http.Request, name string) (context.Context, func()) {
	ctx := r.Context()
	if !h.tracing {
		return ctx, func() {}
	}
	ctx, span := tracing.StartSpan(ctx, name, logger.RequestID(ctx))
	return ctx, func() {
		span.End()
		span.Log(h.logger)
	}
}

func (h *Handler) logFailure(ctx context.Context, kind analytics.ReportKind, err error) {
	h.logger.Error("report request failed",
		"request_id", logger.RequestID(ctx),
		"report", kind,
		"kind", apperrors.Kind(err),
		"error", err,
	)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
