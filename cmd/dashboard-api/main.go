// Command dashboard-api serves the analytics dashboard's read API.
//
// It answers GET /analytics/events (event counts over the last seven days)
// and GET /analytics/events/realtime?minutes=N (event counts over the last
// N minutes, at most 29) from the GA4 Data API, keeping each report in memory
// for a short time so dashboard polling does not exhaust the property quota.
//
// Usage:
//
//	go run ./cmd/dashboard-api [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/cache"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/credentials"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/handler"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/report"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/internal/analytics/router"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/analytics-dashboard-api/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults plus environment when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting dashboard api",
		"port", cfg.Server.Port,
		"property_id", cfg.Analytics.PropertyID,
		"credentials_configured", cfg.Analytics.CredentialsFile != "",
	)
	if cfg.Analytics.PropertyID == config.DefaultPropertyID {
		slog.Warn("using placeholder GA4 property id; set GA4_PROPERTY_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			if err := shutdownMetrics(context.Background()); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	// Credentials are built on the first report request, not here.
	provider := credentials.NewProvider(cfg.Analytics.CredentialsFile,
		credentials.WithEndpoint(cfg.Analytics.Endpoint),
		credentials.WithMetrics(m),
	)

	var breaker *resilience.CircuitBreaker
	reportOpts := []report.Option{report.WithMetrics(m)}
	if cbCfg := cfg.Upstream.CircuitBreaker; cbCfg.Enabled {
		breaker = resilience.NewCircuitBreaker("analytics-data-api", resilience.CircuitBreakerConfig{
			FailureThreshold: cbCfg.FailureThreshold,
			ResetTimeout:     cbCfg.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
		if m != nil {
			m.CircuitBreakerState.WithLabelValues(breaker.Name()).Set(float64(resilience.StateClosed))
		}
		reportOpts = append(reportOpts, report.WithCircuitBreaker(breaker))
	}
	reports := report.New(reportOpts...)

	reportCache := cache.New(cache.WithMetrics(m))

	var serviceOpts []aggregator.Option
	var accessCollector *collector.BatchCollector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer func() {
			if err := producer.Close(); err != nil {
				slog.Error("kafka producer close error", "error", err)
			}
		}()
		accessCollector = collector.NewBatchCollector(producer, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
		accessCollector.Start(ctx)
		serviceOpts = append(serviceOpts, aggregator.WithTracker(accessCollector))
	}

	service := aggregator.New(cfg.Analytics.PropertyID, provider, reports, reportCache, serviceOpts...)

	checker := health.NewChecker()
	checker.Register("credentials", credentialsCheck(provider))
	if breaker != nil {
		checker.Register("upstream", breakerCheck(breaker))
	}

	h := handler.New(service,
		handler.WithCacheStats(reportCache),
		handler.WithTracing(cfg.Tracing.Enabled),
	)
	api := router.New(router.Config{
		AllowOrigins:   cfg.CORS.AllowOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, h, checker, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("dashboard api listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if accessCollector != nil {
		accessCollector.Close()
	}
	slog.Info("dashboard api stopped")
}
