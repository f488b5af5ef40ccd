package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelCollector implements Collector using the OpenTelemetry metric
// API. It records against whatever global MeterProvider the host has
// configured; without one the API defaults to no-op, so this collector
// is safe to create unconditionally.
type OTelCollector struct {
	meter        metric.Meter
	breadcrumbs  metric.Int64Counter
	errors       metric.Int64Counter
	binds        metric.Int64Counter
	unwinds      metric.Int64Counter
	polls        metric.Int64Counter
	wrapDuration metric.Float64Histogram
}

// NewOTelCollector creates a collector emitting under the given service
// name.
func NewOTelCollector(serviceName string) (*OTelCollector, error) {
	meter := otel.Meter(serviceName)

	breadcrumbs, err := meter.Int64Counter("statetap.breadcrumbs",
		metric.WithDescription("Breadcrumbs emitted around instrumented calls"))
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter("statetap.errors_forwarded",
		metric.WithDescription("Error payloads forwarded to the error sink"))
	if err != nil {
		return nil, err
	}

	binds, err := meter.Int64Counter("statetap.binds",
		metric.WithDescription("Target bind attempts by outcome"))
	if err != nil {
		return nil, err
	}

	unwinds, err := meter.Int64Counter("statetap.unwinds",
		metric.WithDescription("Completed bind teardowns"))
	if err != nil {
		return nil, err
	}

	polls, err := meter.Int64Counter("statetap.discovery.polls",
		metric.WithDescription("Store discovery polls by outcome"))
	if err != nil {
		return nil, err
	}

	wrapDuration, err := meter.Float64Histogram("statetap.wrap.duration_ms",
		metric.WithDescription("Instrumented call duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &OTelCollector{
		meter:        meter,
		breadcrumbs:  breadcrumbs,
		errors:       errCounter,
		binds:        binds,
		unwinds:      unwinds,
		polls:        polls,
		wrapDuration: wrapDuration,
	}, nil
}

func (o *OTelCollector) RecordBreadcrumb(variant, category string) {
	o.breadcrumbs.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("variant", variant),
			attribute.String("category", category),
		))
}

func (o *OTelCollector) RecordErrorForwarded(variant, kind string) {
	o.errors.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("variant", variant),
			attribute.String("kind", kind),
		))
}

func (o *OTelCollector) RecordBind(variant, outcome string) {
	o.binds.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("variant", variant),
			attribute.String("outcome", outcome),
		))
}

func (o *OTelCollector) RecordUnwind(variant string) {
	o.unwinds.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("variant", variant)))
}

func (o *OTelCollector) RecordDiscoveryPoll(variant, outcome string) {
	o.polls.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("variant", variant),
			attribute.String("outcome", outcome),
		))
}

func (o *OTelCollector) RecordWrapDuration(variant string, ms float64) {
	o.wrapDuration.Record(context.Background(), ms,
		metric.WithAttributes(attribute.String("variant", variant)))
}
