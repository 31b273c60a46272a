package aggregator

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/cache"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/credentials"
	apperrors "github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/logger"
)

type fakeCreds struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCreds) Client(ctx context.Context) (*analyticsdata.Service, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &analyticsdata.Service{}, nil
}

type fakeReports struct {
	mu             sync.Mutex
	aggregate      []analytics.EventCount
	realtime       []analytics.EventCount
	err            error
	aggregateCalls int
	realtimeCalls  []int
}

func (f *fakeReports) FetchAggregate(ctx context.Context, svc *analyticsdata.Service, propertyID string) ([]analytics.EventCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregateCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.aggregate, nil
}

func (f *fakeReports) FetchRealtime(ctx context.Context, svc *analyticsdata.Service, propertyID string, windowMinutes int) ([]analytics.EventCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.realtimeCalls = append(f.realtimeCalls, windowMinutes)
	if f.err != nil {
		return nil, f.err
	}
	return f.realtime, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.AccessEvent
}

func (r *recordingTracker) Track(e analytics.AccessEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestClampWindowMinutes(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-5, 29},
		{0, 29},
		{0.5, 29},
		{1, 1},
		{1.9, 1},
		{15, 15},
		{29, 29},
		{29.9, 29},
		{30, 29},
		{45, 29},
		{1000, 29},
		{math.NaN(), 29},
		{math.Inf(1), 29},
		{math.Inf(-1), 29},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampWindowMinutes(tt.in), "ClampWindowMinutes(%v)", tt.in)
	}
}

func TestGetEventCounts_ServesSecondCallFromCache(t *testing.T) {
	reports := &fakeReports{aggregate: []analytics.EventCount{
		{EventName: "page_view", Count: 42},
		{EventName: "click", Count: 7},
	}}
	creds := &fakeCreds{}
	s := New("123", creds, reports, cache.New())

	first, err := s.GetEventCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reports.aggregate, first)

	second, err := s.GetEventCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, reports.aggregateCalls)
	assert.Equal(t, int32(1), creds.calls.Load())
}

func TestGetRealtimeEventCounts_ClampsBeforeFetch(t *testing.T) {
	reports := &fakeReports{realtime: []analytics.EventCount{{EventName: "click", Count: 3}}}
	s := New("123", &fakeCreds{}, reports, cache.New())

	got, err := s.GetRealtimeEventCounts(context.Background(), 45)
	require.NoError(t, err)
	assert.Equal(t, 29, got.WindowMinutes)
	assert.Equal(t, reports.realtime, got.Events)

	// 29 requested explicitly hits the same slot.
	again, err := s.GetRealtimeEventCounts(context.Background(), 29)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, []int{29}, reports.realtimeCalls)
}

func TestGetRealtimeEventCounts_AbsentWindowDefaultsToMax(t *testing.T) {
	reports := &fakeReports{realtime: []analytics.EventCount{}}
	s := New("123", &fakeCreds{}, reports, cache.New())

	got, err := s.GetRealtimeEventCounts(context.Background(), math.NaN())
	require.NoError(t, err)
	assert.Equal(t, 29, got.WindowMinutes)
	assert.NotNil(t, got.Events)
	assert.Equal(t, []int{29}, reports.realtimeCalls)
}

func TestGetRealtimeEventCounts_DistinctWindowsFetchSeparately(t *testing.T) {
	reports := &fakeReports{realtime: []analytics.EventCount{{EventName: "click", Count: 1}}}
	s := New("123", &fakeCreds{}, reports, cache.New())

	for _, m := range []float64{10, 20, 10.7} {
		_, err := s.GetRealtimeEventCounts(context.Background(), m)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{10, 20}, reports.realtimeCalls)
}

func TestMissingCredentialsFailsBeforeFetch(t *testing.T) {
	reports := &fakeReports{}
	s := New("123", credentials.NewProvider(""), reports, cache.New())

	_, err := s.GetEventCounts(context.Background())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = s.GetRealtimeEventCounts(context.Background(), 5)
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	assert.Zero(t, reports.aggregateCalls)
	assert.Empty(t, reports.realtimeCalls)
}

func TestEmptyPropertyIsConfigurationError(t *testing.T) {
	creds := &fakeCreds{}
	s := New("", creds, &fakeReports{}, cache.New())

	_, err := s.GetEventCounts(context.Background())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Zero(t, creds.calls.Load())
}

func TestUpstreamErrorSurfacesAndIsNotCached(t *testing.T) {
	upstream := errors.New("503 backend error")
	reports := &fakeReports{err: upstream}
	s := New("123", &fakeCreds{}, reports, cache.New())

	got, err := s.GetEventCounts(context.Background())
	require.ErrorIs(t, err, upstream)
	assert.Nil(t, got)

	reports.mu.Lock()
	reports.err = nil
	reports.aggregate = []analytics.EventCount{{EventName: "page_view", Count: 1}}
	reports.mu.Unlock()

	got, err = s.GetEventCounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, reports.aggregateCalls)
}

func TestTrackerReceivesAccessEvents(t *testing.T) {
	tracker := &recordingTracker{}
	reports := &fakeReports{realtime: []analytics.EventCount{{EventName: "click", Count: 2}, {EventName: "scroll", Count: 1}}}
	s := New("123", &fakeCreds{}, reports, cache.New(), WithTracker(tracker))
	ctx := logger.WithRequestID(context.Background(), "req-1")

	_, err := s.GetRealtimeEventCounts(ctx, 12)
	require.NoError(t, err)
	_, err = s.GetRealtimeEventCounts(ctx, 12)
	require.NoError(t, err)

	require.Len(t, tracker.events, 2)
	first, second := tracker.events[0], tracker.events[1]
	assert.Equal(t, analytics.ReportRealtime, first.Report)
	assert.Equal(t, 12, first.WindowMinutes)
	assert.Equal(t, 2, first.Rows)
	assert.False(t, first.CacheHit)
	assert.Equal(t, "ok", first.Outcome)
	assert.Equal(t, "req-1", first.RequestID)
	assert.True(t, second.CacheHit)
}

// gatedReports blocks FetchAggregate until release is closed.
type gatedReports struct {
	fakeReports
	started chan struct{}
	release chan struct{}
}

func (g *gatedReports) FetchAggregate(ctx context.Context, svc *analyticsdata.Service, propertyID string) ([]analytics.EventCount, error) {
	close(g.started)
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fakeReports.FetchAggregate(ctx, svc, propertyID)
}

func TestGetEventCounts_CancelledRequestDoesNotFailConcurrentOne(t *testing.T) {
	reports := &gatedReports{
		fakeReports: fakeReports{aggregate: []analytics.EventCount{{EventName: "page_view", Count: 42}}},
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	s := New("123", &fakeCreds{}, reports, cache.New())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.GetEventCounts(ctx)
		first <- err
	}()
	<-reports.started

	second := make(chan error, 1)
	var got []analytics.EventCount
	go func() {
		var err error
		got, err = s.GetEventCounts(context.Background())
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(reports.release)
	require.NoError(t, <-second)
	assert.Equal(t, reports.aggregate, got)
	assert.Equal(t, 1, reports.aggregateCalls)
}
