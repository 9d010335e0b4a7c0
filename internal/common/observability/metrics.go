package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"notification-dispatch/internal/common/config"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	dispatchCount  otelmetric.Int64Counter
	dispatchTiming otelmetric.Float64Histogram
}

// New builds the meter provider and, when enabled, a Jaeger-backed tracer.
// Failures degrade to no-op instruments rather than stopping the process.
func New(cfg config.ObservabilityConfig) *Observability {
	o := &Observability{
		tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName),
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)
		o.meter = o.meterProvider.Meter(cfg.ServiceName)
		o.registerInstruments()
	}

	if cfg.TracingEnabled && cfg.JaegerEndpoint != "" {
		tp, err := newTracerProvider(cfg)
		if err != nil {
			log.Printf("Failed to create Jaeger tracer: %v", err)
		} else {
			o.tracerProvider = tp
			otel.SetTracerProvider(tp)
			o.tracer = tp.Tracer(cfg.ServiceName)
		}
	}

	return o
}

func (o *Observability) registerInstruments() {
	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	o.dispatchCount, _ = o.meter.Int64Counter(
		"notifications.dispatched",
		otelmetric.WithDescription("Terminal notification dispatch outcomes"),
	)

	o.dispatchTiming, _ = o.meter.Float64Histogram(
		"notifications.dispatch.duration",
		otelmetric.WithDescription("Notification dispatch duration"),
		otelmetric.WithUnit("ms"),
	)
}

// Tracer never returns nil; without tracing it is a no-op tracer.
func (o *Observability) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return o.tracer
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

// RecordDispatch records one terminal outcome. tier is 0 when no tier delivered.
func (o *Observability) RecordDispatch(ctx context.Context, status string, tier int, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("status", status),
		attribute.Int("tier", tier),
	)
	if o.dispatchCount != nil {
		o.dispatchCount.Add(ctx, 1, attrs)
	}
	if o.dispatchTiming != nil {
		o.dispatchTiming.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Failed to flush traces: %v", err)
		}
	}
	if o.meterProvider != nil {
		o.meterProvider.Shutdown(ctx)
	}
}
