// Package cache keeps the most recent aggregate report and one realtime report
// per window size in memory, each valid for a fixed time-to-live.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/metrics"
)

const (
	// AggregateTTL is how long a fetched 7-day report is served.
	AggregateTTL = 60 * time.Second
	// RealtimeTTL is how long a fetched realtime report is served, per window.
	RealtimeTTL = 15 * time.Second

	// DefaultFetchTimeout bounds one producer call.
	DefaultFetchTimeout = 45 * time.Second

	// realtimeSlots covers every valid window size (1..29).
	realtimeSlots = 29

	aggregateKey = "aggregate"
)

// Entry is one cached report. Entries are replaced, never modified.
type Entry struct {
	FetchedAt time.Time
	Data      []analytics.EventCount
}

// fresh reports whether e is still within ttl at now. An entry exactly ttl
// old is stale.
func (e *Entry) fresh(now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.FetchedAt) < ttl
}

// Producer fetches a report on a cache miss. Its context carries the values of
// the request that started the fetch but not its cancellation.
type Producer func(ctx context.Context) ([]analytics.EventCount, error)

// ReportCache is safe for concurrent use. Concurrent misses on the same key
// share one producer call; a caller that gives up does not cancel it for the
// others.
type ReportCache struct {
	mu        sync.RWMutex
	aggregate *Entry
	realtime  *lru.Cache[int, *Entry]

	group        singleflight.Group
	now          func() time.Time
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

type Option func(*ReportCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *ReportCache) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ReportCache) { c.metrics = m }
}

// WithFetchTimeout replaces DefaultFetchTimeout. Non-positive values are
// ignored.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *ReportCache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func New(opts ...Option) *ReportCache {
	realtime, err := lru.New[int, *Entry](realtimeSlots)
	if err != nil {
		// Only returned for a non-positive size.
		panic(fmt.Sprintf("cache: creating realtime slots: %v", err))
	}
	c := &ReportCache{
		realtime:     realtime,
		now:          time.Now,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default().With("component", "report-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadAggregateOrRefresh returns the cached aggregate report while it is
// younger than AggregateTTL, and otherwise calls produce and stores its
// result. A producer error is returned and leaves the cache untouched.
func (c *ReportCache) ReadAggregateOrRefresh(ctx context.Context, produce Producer) ([]analytics.EventCount, bool, error) {
	return c.readOrRefresh(ctx, analytics.ReportAggregate, aggregateKey, AggregateTTL,
		c.loadAggregate,
		func(e *Entry) {
			c.mu.Lock()
			c.aggregate = e
			c.mu.Unlock()
		},
		produce,
	)
}

// ReadRealtimeOrRefresh is ReadAggregateOrRefresh for the realtime report of
// one window size. Each window size in 1..29 has its own entry; other sizes
// are rejected with apperrors.ErrInvalidInput.
func (c *ReportCache) ReadRealtimeOrRefresh(ctx context.Context, windowMinutes int, produce Producer) ([]analytics.EventCount, bool, error) {
	if windowMinutes < 1 || windowMinutes > realtimeSlots {
		return nil, false, apperrors.Newf(apperrors.ErrInvalidInput, "realtime window must be within 1..%d minutes, got %d", realtimeSlots, windowMinutes)
	}
	return c.readOrRefresh(ctx, analytics.ReportRealtime, fmt.Sprintf("realtime:%d", windowMinutes), RealtimeTTL,
		func() *Entry {
			e, _ := c.realtime.Get(windowMinutes)
			return e
		},
		func(e *Entry) { c.realtime.Add(windowMinutes, e) },
		produce,
	)
}

func (c *ReportCache) readOrRefresh(
	ctx context.Context,
	kind analytics.ReportKind,
	key string,
	ttl time.Duration,
	load func() *Entry,
	store func(*Entry),
	produce Producer,
) ([]analytics.EventCount, bool, error) {
	if e := load(); e.fresh(c.now(), ttl) {
		c.record(kind, true)
		c.logger.DebugContext(ctx, "cache hit", "key", key, "age", c.now().Sub(e.FetchedAt))
		return e.Data, true, nil
	}
	c.record(kind, false)

	// The fetch outlives any single caller: it runs detached from the
	// starting request and is bounded by fetchTimeout instead.
	ch := c.group.DoChan(key, func() (any, error) {
		if e := load(); e.fresh(c.now(), ttl) {
			return e.Data, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		data, err := produce(fetchCtx)
		if err != nil {
			return nil, err
		}
		store(&Entry{FetchedAt: c.now(), Data: data})
		c.logger.DebugContext(ctx, "cache refreshed", "key", key, "rows", len(data))
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		if res.Shared {
			c.logger.DebugContext(ctx, "cache refresh shared", "key", key)
		}
		return res.Val.([]analytics.EventCount), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *ReportCache) loadAggregate() *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aggregate
}

func (c *ReportCache) record(kind analytics.ReportKind, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.metrics != nil {
		c.metrics.CacheLookupsTotal.WithLabelValues(string(kind), result).Inc()
	}
}

// Stats returns lookup counts since the cache was created.
func (c *ReportCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
