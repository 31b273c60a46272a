package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/credentials"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/resilience"
)

func TestCredentialsCheck(t *testing.T) {
	ctx := context.Background()

	unset := credentials.NewProvider("")
	assert.Equal(t, health.StatusDown, credentialsCheck(unset)(ctx).Status)

	unused := credentials.NewProvider("/etc/ga/sa.json")
	assert.Equal(t, health.StatusDegraded, credentialsCheck(unused)(ctx).Status)

	ok := credentials.NewProvider("/etc/ga/sa.json", credentials.WithDialer(
		func(ctx context.Context, path string) (*analyticsdata.Service, error) {
			return &analyticsdata.Service{}, nil
		}))
	_, _ = ok.Client(ctx)
	assert.Equal(t, health.StatusUp, credentialsCheck(ok)(ctx).Status)
}

func TestBreakerCheck(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	assert.Equal(t, health.StatusUp, breakerCheck(cb)(context.Background()).Status)

	_ = cb.Execute(func() error { return errors.New("boom") })
	got := breakerCheck(cb)(context.Background())
	assert.Equal(t, health.StatusDegraded, got.Status)
	assert.Equal(t, "circuit open", got.Message)
}
