// Package aggregator answers the dashboard's two questions, event counts over
// the last seven days and over a recent realtime window, by fetching reports
// through the credential provider and report client behind the report cache.
package aggregator

import (
	"context"
	"log/slog"
	"math"
	"time"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/logger"
)

// MaxRealtimeMinutes is the widest realtime window the reporting API serves
// for a standard property. It is also the default window.
const MaxRealtimeMinutes = 29

// CredentialSource hands out the authenticated Data API client.
type CredentialSource interface {
	Client(ctx context.Context) (*analyticsdata.Service, error)
}

// ReportFetcher runs the two report queries.
type ReportFetcher interface {
	FetchAggregate(ctx context.Context, svc *analyticsdata.Service, propertyID string) ([]analytics.EventCount, error)
	FetchRealtime(ctx context.Context, svc *analyticsdata.Service, propertyID string, windowMinutes int) ([]analytics.EventCount, error)
}

// Tracker receives one access event per served report.
type Tracker interface {
	Track(event analytics.AccessEvent)
}

type Service struct {
	propertyID string
	creds      CredentialSource
	reports    ReportFetcher
	cache      *cache.ReportCache
	tracker    Tracker
	logger     *slog.Logger
}

type Option func(*Service)

// WithTracker publishes an access event for every report served.
func WithTracker(t Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

func New(propertyID string, creds CredentialSource, reports ReportFetcher, c *cache.ReportCache, opts ...Option) *Service {
	s := &Service{
		propertyID: propertyID,
		creds:      creds,
		reports:    reports,
		cache:      c,
		logger:     slog.Default().With("component", "aggregator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetEventCounts returns event counts for the last seven days, ordered by
// count descending. A cached report younger than cache.AggregateTTL is
// served without calling the reporting API.
func (s *Service) GetEventCounts(ctx context.Context) ([]analytics.EventCount, error) {
	start := time.Now()
	if err := s.checkProperty(); err != nil {
		s.track(ctx, analytics.ReportAggregate, 0, nil, false, start, err)
		return nil, err
	}

	data, hit, err := s.cache.ReadAggregateOrRefresh(ctx, func(ctx context.Context) ([]analytics.EventCount, error) {
		svc, err := s.creds.Client(ctx)
		if err != nil {
			return nil, err
		}
		return s.reports.FetchAggregate(ctx, svc, s.propertyID)
	})
	s.track(ctx, analytics.ReportAggregate, 0, data, hit, start, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GetRealtimeEventCounts returns event counts for the last requestedMinutes
// minutes. The request is clamped with ClampWindowMinutes first, and the
// clamped window is both the cache key and the WindowMinutes of the result.
// Pass math.NaN() when the caller gave no window.
func (s *Service) GetRealtimeEventCounts(ctx context.Context, requestedMinutes float64) (analytics.RealtimeCounts, error) {
	start := time.Now()
	window := ClampWindowMinutes(requestedMinutes)
	if float64(window) != requestedMinutes {
		s.logger.DebugContext(ctx, "realtime window clamped",
			"request_id", logger.RequestID(ctx),
			"requested", requestedMinutes,
			"window_minutes", window,
		)
	}
	if err := s.checkProperty(); err != nil {
		s.track(ctx, analytics.ReportRealtime, window, nil, false, start, err)
		return analytics.RealtimeCounts{}, err
	}

	data, hit, err := s.cache.ReadRealtimeOrRefresh(ctx, window, func(ctx context.Context) ([]analytics.EventCount, error) {
		svc, err := s.creds.Client(ctx)
		if err != nil {
			return nil, err
		}
		return s.reports.FetchRealtime(ctx, svc, s.propertyID, window)
	})
	s.track(ctx, analytics.ReportRealtime, window, data, hit, start, err)
	if err != nil {
		return analytics.RealtimeCounts{}, err
	}
	return analytics.RealtimeCounts{WindowMinutes: window, Events: data}, nil
}

// ClampWindowMinutes maps any requested window onto 1..MaxRealtimeMinutes.
// Fractions are truncated toward zero. Non-finite, zero and negative values,
// and values above the maximum, all become MaxRealtimeMinutes.
func ClampWindowMinutes(requested float64) int {
	if math.IsNaN(requested) || math.IsInf(requested, 0) {
		return MaxRealtimeMinutes
	}
	t := math.Trunc(requested)
	if t <= 0 || t > MaxRealtimeMinutes {
		return MaxRealtimeMinutes
	}
	return int(t)
}

func (s *Service) checkProperty() error {
	if s.propertyID == "" {
		return apperrors.New(apperrors.ErrConfiguration, "analytics property id is not configured")
	}
	return nil
}

func (s *Service) track(ctx context.Context, kind analytics.ReportKind, window int, data []analytics.EventCount, hit bool, start time.Time, err error) {
	if s.tracker == nil {
		return
	}
	s.tracker.Track(analytics.AccessEvent{
		Report:        kind,
		WindowMinutes: window,
		Rows:          len(data),
		CacheHit:      hit,
		LatencyMs:     time.Since(start).Milliseconds(),
		Outcome:       apperrors.Kind(err),
		RequestID:     logger.RequestID(ctx),
		Timestamp:     time.Now().UTC(),
	})
}
