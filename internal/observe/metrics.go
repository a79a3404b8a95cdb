// Package observe records authentication and moderation counters through
// OpenTelemetry and exposes them for Prometheus scraping.
package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/and161185/gatekeeper/internal/errs"
	"github.com/and161185/gatekeeper/internal/model"
)

// MeterName is the instrumentation scope of every instrument.
const MeterName = "github.com/and161185/gatekeeper"

// Metrics records auth and moderation outcomes.
//
// Implementations must be safe for concurrent use and must not panic.
type Metrics interface {
	RecordLogin(ctx context.Context, err error)
	RecordRefresh(ctx context.Context, err error)
	RecordLockout(ctx context.Context)
	RecordModeration(ctx context.Context, action model.Action, err error)
}

type metricsImpl struct {
	logins     metric.Int64Counter
	refreshes  metric.Int64Counter
	lockouts   metric.Int64Counter
	moderation metric.Int64Counter
}

// New creates Metrics backed by meter.
func New(meter metric.Meter) (Metrics, error) {
	logins, err := meter.Int64Counter("auth.login.total",
		metric.WithDescription("Login attempts by outcome"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("auth.refresh.total",
		metric.WithDescription("Refresh attempts by outcome"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	lockouts, err := meter.Int64Counter("auth.lockout.total",
		metric.WithDescription("Accounts locked after repeated failures"),
		metric.WithUnit("{lock}"))
	if err != nil {
		return nil, err
	}
	moderation, err := meter.Int64Counter("moderation.action.total",
		metric.WithDescription("Moderation actions by action and outcome"),
		metric.WithUnit("{action}"))
	if err != nil {
		return nil, err
	}
	return &metricsImpl{logins: logins, refreshes: refreshes, lockouts: lockouts, moderation: moderation}, nil
}

func (m *metricsImpl) RecordLogin(ctx context.Context, err error) {
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", Outcome(err))))
}

func (m *metricsImpl) RecordRefresh(ctx context.Context, err error) {
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", Outcome(err))))
}

func (m *metricsImpl) RecordLockout(ctx context.Context) {
	m.lockouts.Add(ctx, 1)
}

func (m *metricsImpl) RecordModeration(ctx context.Context, action model.Action, err error) {
	m.moderation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
		attribute.String("outcome", Outcome(err)),
	))
}

type noopMetrics struct{}

// Noop returns Metrics that discards everything.
func Noop() Metrics { return noopMetrics{} }

func (noopMetrics) RecordLogin(context.Context, error)                    {}
func (noopMetrics) RecordRefresh(context.Context, error)                  {}
func (noopMetrics) RecordLockout(context.Context)                         {}
func (noopMetrics) RecordModeration(context.Context, model.Action, error) {}

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, errs.ErrAccountLocked):
		return "locked"
	case errors.Is(err, errs.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, errs.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// Provider owns the meter provider and its scrape handler.
type Provider struct {
	mp *sdkmetric.MeterProvider
}

// NewPrometheusProvider wires an OpenTelemetry meter provider to the default
// Prometheus registry.
func NewPrometheusProvider() (*Provider, error) {
	exp, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	return &Provider{mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))}, nil
}

// Meter returns the application meter.
func (p *Provider) Meter() metric.Meter { return p.mp.Meter(MeterName) }

// Handler serves the Prometheus exposition format.
func (p *Provider) Handler() http.Handler { return promhttp.Handler() }

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error { return p.mp.Shutdown(ctx) }
