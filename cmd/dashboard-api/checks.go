package main

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/credentials"
	apperrors "github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/resilience"
)

// credentialsCheck never triggers client construction. A provider that has
// not been used yet is reported as degraded, not down.
func credentialsCheck(p *credentials.Provider) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		err := p.Ready()
		switch {
		case err == nil:
			return health.ComponentHealth{Status: health.StatusUp}
		case errors.Is(err, apperrors.ErrNotInitialized):
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		default:
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
	}
}

func breakerCheck(cb *resilience.CircuitBreaker) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		switch state := cb.GetState(); state {
		case resilience.StateClosed:
			return health.ComponentHealth{Status: health.StatusUp}
		default:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		}
	}
}
