package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.HTTPRequestsTotal.WithLabelValues("GET", "/analytics/events", "200").Inc()
	m.CacheLookupsTotal.WithLabelValues("aggregate", "hit").Add(2)
	m.UpstreamRequests.WithLabelValues("realtime", "error").Inc()
	m.UpstreamLatency.WithLabelValues("realtime").Observe(0.2)
	m.CredentialHandshakes.WithLabelValues("ok").Inc()
	m.CircuitBreakerState.WithLabelValues("analytics-data-api").Set(1)
	m.HTTPRequestsInFlight.Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("aggregate", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("analytics-data-api")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"http_requests_total",
		"http_requests_in_flight",
		"report_cache_lookups_total",
		"upstream_report_requests_total",
		"upstream_report_latency_seconds",
		"credential_handshakes_total",
		"circuit_breaker_state",
	} {
		assert.True(t, names[want], "%s not registered", want)
	}

	n, err := testutil.GatherAndCount(reg, "upstream_report_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestStartServer_Shutdown(t *testing.T) {
	shutdown := StartServer(0)
	require.NoError(t, shutdown(context.Background()))
}
