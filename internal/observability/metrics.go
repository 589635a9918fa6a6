package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/mindgrove/tenant-auth-service/internal/config"
)

type AppMetrics struct {
	loginCounter     metric.Int64Counter
	refreshCounter   metric.Int64Counter
	logoutCounter    metric.Int64Counter
	duplicateCounter metric.Int64Counter
	sweepCounter     metric.Int64Counter
	repoCounter      metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		registerInstruments(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	registerInstruments(mp)

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func registerInstruments(mp *sdkmetric.MeterProvider) {
	meter := mp.Meter("tenant-auth-service")
	login, err := meter.Int64Counter("auth.login.attempts")
	if err != nil {
		return
	}
	refresh, err := meter.Int64Counter("auth.refresh.attempts")
	if err != nil {
		return
	}
	logout, err := meter.Int64Counter("auth.logout.attempts")
	if err != nil {
		return
	}
	duplicate, err := meter.Int64Counter("session.duplicate.detections")
	if err != nil {
		return
	}
	sweep, err := meter.Int64Counter("auth.sweep.removed")
	if err != nil {
		return
	}
	repo, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		loginCounter:     login,
		refreshCounter:   refresh,
		logoutCounter:    logout,
		duplicateCounter: duplicate,
		sweepCounter:     sweep,
		repoCounter:      repo,
	}
	metricsMu.Unlock()
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordAuthLogin counts login attempts by flow ("stateless"/"session") and
// outcome ("success"/"invalid_credentials"/...).
func RecordAuthLogin(flow, status string) {
	m := current()
	if m == nil {
		return
	}
	m.loginCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("flow", flow),
			attribute.String("status", status),
		),
	)
}

func RecordAuthRefresh(status string) {
	m := current()
	if m == nil {
		return
	}
	m.refreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(kind string) {
	m := current()
	if m == nil {
		return
	}
	m.logoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDuplicateLogin counts duplicate-login detections by resolution
// ("confirmation_required"/"terminated_existing"/"coexisted").
func RecordDuplicateLogin(resolution string) {
	m := current()
	if m == nil {
		return
	}
	m.duplicateCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("resolution", resolution)))
}

func RecordSweep(store string, removed int64) {
	m := current()
	if m == nil {
		return
	}
	m.sweepCounter.Add(context.Background(), removed, metric.WithAttributes(attribute.String("store", store)))
}

// RecordRepositoryOperation tags every repository call with entity, op and
// outcome ("success"/"not_found"/"error").
func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repoCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
