// Package credentials builds the authenticated GA4 Data API client from a
// service-account key file. The client is constructed once per process, on
// first use, and shared by every caller afterwards.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	apperrors "github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/metrics"
)

// Scope is the only OAuth scope requested.
const Scope = analyticsdata.AnalyticsReadonlyScope

// DefaultHandshakeTimeout bounds each request to the token endpoint.
const DefaultHandshakeTimeout = 15 * time.Second

// Dialer builds an authenticated client from the credentials file path.
type Dialer func(ctx context.Context, credentialsFile string) (*analyticsdata.Service, error)

// Provider lazily constructs the Data API client. Both the client and a
// construction failure are kept for the lifetime of the process; recovering
// from bad credentials requires a restart.
type Provider struct {
	credentialsFile  string
	endpoint         string
	handshakeTimeout time.Duration
	dial             Dialer
	metrics          *metrics.Metrics
	logger           *slog.Logger

	once   sync.Once
	ready  chan struct{}
	done   atomic.Bool
	client *analyticsdata.Service
	err    error
}

type Option func(*Provider)

// WithDialer replaces the default construction (read key file, exchange a
// token, build the service).
func WithDialer(d Dialer) Option {
	return func(p *Provider) { p.dial = d }
}

// WithEndpoint points the Data API client at a different base URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithHandshakeTimeout replaces DefaultHandshakeTimeout. Non-positive values
// are ignored.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.handshakeTimeout = d
		}
	}
}

func NewProvider(credentialsFile string, opts ...Option) *Provider {
	p := &Provider{
		credentialsFile:  credentialsFile,
		handshakeTimeout: DefaultHandshakeTimeout,
		ready:            make(chan struct{}),
		logger:           slog.Default().With("component", "credential-provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dial == nil {
		p.dial = p.dialServiceAccount
	}
	return p
}

// Client returns the shared Data API client, building it on the first call.
// Concurrent first callers wait on the same construction. A caller whose ctx
// ends first gets ctx.Err(); construction carries on for the others.
func (p *Provider) Client(ctx context.Context) (*analyticsdata.Service, error) {
	p.once.Do(func() {
		buildCtx := context.WithoutCancel(ctx)
		go func() {
			p.client, p.err = p.build(buildCtx)
			p.done.Store(true)
			close(p.ready)
		}()
	})

	select {
	case <-p.ready:
		return p.client, p.err
	default:
	}
	select {
	case <-p.ready:
		return p.client, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether Client has succeeded. It never triggers construction.
func (p *Provider) Ready() error {
	if p.credentialsFile == "" {
		return p.missingFileError()
	}
	if !p.done.Load() {
		return apperrors.New(apperrors.ErrNotInitialized, "analytics client is built on first request")
	}
	return p.err
}

func (p *Provider) build(ctx context.Context) (*analyticsdata.Service, error) {
	if p.credentialsFile == "" {
		err := p.missingFileError()
		p.logger.Error("analytics credentials not configured", "error", err)
		p.recordHandshake(apperrors.Kind(err))
		return nil, err
	}

	client, err := p.dial(ctx, p.credentialsFile)
	if err != nil {
		p.logger.Error("analytics client construction failed",
			"credentials_file", p.credentialsFile,
			"error", err,
		)
		p.recordHandshake(apperrors.Kind(err))
		return nil, err
	}

	p.logger.Info("analytics client ready", "credentials_file", p.credentialsFile)
	p.recordHandshake("ok")
	return client, nil
}

func (p *Provider) dialServiceAccount(ctx context.Context, credentialsFile string) (*analyticsdata.Service, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "reading credentials file %s: %v", credentialsFile, err)
	}
	// The token source keeps this context for later refreshes, so the bound
	// goes on the HTTP client rather than on ctx.
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: p.handshakeTimeout})
	creds, err := google.CredentialsFromJSONWithType(tokenCtx, data, google.ServiceAccount, Scope)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "parsing credentials file %s: %v", credentialsFile, err)
	}

	// One token exchange up front so bad keys fail here instead of on the
	// first report call.
	token, err := creds.TokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: authenticating service account: %w", apperrors.ErrUpstreamFetch, err)
	}

	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.ReuseTokenSource(token, creds.TokenSource)),
	}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating analytics data service: %w", err)
	}
	return svc, nil
}

func (p *Provider) missingFileError() error {
	return apperrors.New(apperrors.ErrConfiguration, "GOOGLE_APPLICATION_CREDENTIALS is not set")
}

func (p *Provider) recordHandshake(outcome string) {
	if p.metrics != nil {
		p.metrics.CredentialHandshakes.WithLabelValues(outcome).Inc()
	}
}
