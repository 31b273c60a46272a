// Package report runs the two GA4 Data API queries the dashboard needs and
// normalizes their rows into analytics.EventCount values.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/googleapi"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/tracing"
)

const (
	dimensionEventName = "eventName"
	metricEventCount   = "eventCount"

	aggregateStartDate = "7daysAgo"
	aggregateEndDate   = "today"

	// DefaultCallTimeout bounds a single report query.
	DefaultCallTimeout = 20 * time.Second
)

// Client issues report queries. It does not retry; a failed call is returned
// to the caller as is, wrapped in apperrors.ErrUpstreamFetch.
type Client struct {
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	callTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*Client)

// WithCircuitBreaker short-circuits calls while the upstream keeps failing.
// Only failures attributed to the upstream count, see IsUpstreamFailure.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithCallTimeout replaces DefaultCallTimeout. Non-positive values are
// ignored.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default().With("component", "report-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAggregate returns event counts for the trailing seven days, today
// included, ordered by count descending.
func (c *Client) FetchAggregate(ctx context.Context, svc *analyticsdata.Service, propertyID string) ([]analytics.EventCount, error) {
	if err := validate(svc, propertyID); err != nil {
		return nil, err
	}

	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{
			{StartDate: aggregateStartDate, EndDate: aggregateEndDate},
		},
		Dimensions: []*analyticsdata.Dimension{{Name: dimensionEventName}},
		Metrics:    []*analyticsdata.Metric{{Name: metricEventCount}},
		OrderBys:   []*analyticsdata.OrderBy{orderByCountDesc()},
	}

	var rows []*analyticsdata.Row
	err := c.call(ctx, analytics.ReportAggregate, func(ctx context.Context) error {
		resp, err := svc.Properties.RunReport(propertyPath(propertyID), req).Context(ctx).Do()
		if err != nil {
			return err
		}
		rows = resp.Rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.normalize(ctx, analytics.ReportAggregate, rows), nil
}

// FetchRealtime returns event counts for the last windowMinutes minutes,
// ordered by count descending. windowMinutes is sent as is; keeping it within
// the property's realtime limit is the caller's job.
func (c *Client) FetchRealtime(ctx context.Context, svc *analyticsdata.Service, propertyID string, windowMinutes int) ([]analytics.EventCount, error) {
	if err := validate(svc, propertyID); err != nil {
		return nil, err
	}
	if windowMinutes <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "window minutes must be positive, got %d", windowMinutes)
	}

	req := &analyticsdata.RunRealtimeReportRequest{
		MinuteRanges: []*analyticsdata.MinuteRange{
			{StartMinutesAgo: int64(windowMinutes), EndMinutesAgo: 0},
		},
		Dimensions: []*analyticsdata.Dimension{{Name: dimensionEventName}},
		Metrics:    []*analyticsdata.Metric{{Name: metricEventCount}},
		OrderBys:   []*analyticsdata.OrderBy{orderByCountDesc()},
	}

	var rows []*analyticsdata.Row
	err := c.call(ctx, analytics.ReportRealtime, func(ctx context.Context) error {
		resp, err := svc.Properties.RunRealtimeReport(propertyPath(propertyID), req).Context(ctx).Do()
		if err != nil {
			return err
		}
		rows = resp.Rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.normalize(ctx, analytics.ReportRealtime, rows), nil
}

func (c *Client) call(ctx context.Context, kind analytics.ReportKind, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartChildSpan(ctx, "upstream."+string(kind))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	run := func() error { return fn(callCtx) }
	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteClassified(run, func(err error) bool {
			return IsUpstreamFailure(ctx, err)
		})
	} else {
		err = run()
	}
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	span.SetAttr("outcome", outcome)
	if c.metrics != nil {
		c.metrics.UpstreamRequests.WithLabelValues(string(kind), outcome).Inc()
		c.metrics.UpstreamLatency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}

	if err != nil {
		c.logger.Error("report query failed",
			"request_id", logger.RequestID(ctx),
			"report", kind,
			"latency_ms", elapsed.Milliseconds(),
			"upstream_failure", IsUpstreamFailure(ctx, err),
			"error", err,
		)
		return fmt.Errorf("%w: %s report: %w", apperrors.ErrUpstreamFetch, kind, err)
	}
	return nil
}

// IsUpstreamFailure reports whether err, returned by a call made under ctx,
// says the reporting API is unhealthy. Errors after ctx itself ended belong to
// the caller. API errors count only for 429 and 5xx; other statuses are
// request errors. Transport errors and the per-call timeout count.
func IsUpstreamFailure(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
	}
	return true
}

func (c *Client) normalize(ctx context.Context, kind analytics.ReportKind, rows []*analyticsdata.Row) []analytics.EventCount {
	if c.metrics != nil {
		c.metrics.UpstreamRows.WithLabelValues(string(kind)).Observe(float64(len(rows)))
	}
	if span := tracing.SpanFromContext(ctx); span != nil {
		span.SetAttr(string(kind)+"_rows", len(rows))
	}
	return normalizeRows(rows)
}

// normalizeRows maps upstream rows to event counts in upstream order. The
// result is never nil so it encodes as [] rather than null.
func normalizeRows(rows []*analyticsdata.Row) []analytics.EventCount {
	out := make([]analytics.EventCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalizeRow(row))
	}
	return out
}

func normalizeRow(row *analyticsdata.Row) analytics.EventCount {
	ec := analytics.EventCount{EventName: analytics.UnknownEventName}
	if row == nil {
		return ec
	}
	if len(row.DimensionValues) > 0 && row.DimensionValues[0] != nil && row.DimensionValues[0].Value != "" {
		ec.EventName = row.DimensionValues[0].Value
	}
	if len(row.MetricValues) > 0 && row.MetricValues[0] != nil {
		ec.Count = parseCount(row.MetricValues[0].Value)
	}
	return ec
}

// parseCount reads a metric value. Missing, malformed or negative values
// count as zero.
func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		n = int64(f)
	}
	if n < 0 {
		return 0
	}
	return n
}

func validate(svc *analyticsdata.Service, propertyID string) error {
	if strings.TrimSpace(propertyID) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "property id is required")
	}
	if svc == nil {
		return apperrors.New(apperrors.ErrInvalidInput, "analytics client is required")
	}
	return nil
}

func propertyPath(propertyID string) string {
	if strings.HasPrefix(propertyID, "properties/") {
		return propertyID
	}
	return "properties/" + propertyID
}

func orderByCountDesc() *analyticsdata.OrderBy {
	return &analyticsdata.OrderBy{
		Desc:   true,
		Metric: &analyticsdata.MetricOrderBy{MetricName: metricEventCount},
	}
}
