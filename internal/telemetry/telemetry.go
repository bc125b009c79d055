// Package telemetry configures the global OpenTelemetry trace and meter
// providers used by the scheduler, store and cache spans and by the handler
// metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"

	"github.com/chris-regnier/wikifix/internal/config"
)

// Environment overrides of the configured values.
const (
	EnvEnabled  = "WIKIFIX_TELEMETRY_ENABLED"
	EnvEndpoint = "WIKIFIX_TELEMETRY_ENDPOINT"
)

// ProjectKey tags every span and metric with the wiki project worked on.
const ProjectKey = attribute.Key("wikifix.project")

// Shutdown flushes and stops the providers.
type Shutdown func(context.Context) error

type options struct {
	project  string
	version  string
	interval time.Duration
}

type Option func(*options)

// WithProject records the wiki project, e.g. "enwiki", on the resource.
func WithProject(p string) Option {
	return func(o *options) { o.project = p }
}

// WithVersion is the service version used when the config sets none.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithMetricInterval sets how often metrics are pushed. A one-shot fix
// relies on the flush at shutdown; the server wants a shorter period.
func WithMetricInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// resolve applies the environment overrides and the defaults.
func resolve(cfg config.TelemetryConfig) config.TelemetryConfig {
	if v := os.Getenv(EnvEnabled); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	return withDefaults(cfg)
}

func withDefaults(cfg config.TelemetryConfig) config.TelemetryConfig {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "wikifix"
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "grpc"
	}
	if cfg.Endpoint == "" {
		if cfg.Protocol == "http" {
			cfg.Endpoint = "localhost:4318"
		} else {
			cfg.Endpoint = "localhost:4317"
		}
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}
	return cfg
}

// Init installs the global providers and returns their shutdown. When
// telemetry is disabled nothing is installed and the shutdown is a no-op.
func Init(ctx context.Context, cfg config.TelemetryConfig, opts ...Option) (Shutdown, error) {
	noop := func(context.Context) error { return nil }
	o := options{interval: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = resolve(cfg)
	if !cfg.Enabled {
		return noop, nil
	}

	res, err := newResource(cfg, o)
	if err != nil {
		return noop, fmt.Errorf("building telemetry resource: %w", err)
	}
	spans, points, err := newExporters(ctx, cfg)
	if err != nil {
		return noop, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(spans),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(points, metric.WithInterval(o.interval))),
		metric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newResource(cfg config.TelemetryConfig, o options) (*resource.Resource, error) {
	version := cfg.ServiceVersion
	if version == "" {
		version = o.version
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	}
	if o.project != "" {
		attrs = append(attrs, ProjectKey.String(o.project))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// newExporters creates the span and metric exporters for cfg.Protocol. The
// exporters connect lazily, so a missing collector is not an error here.
func newExporters(ctx context.Context, cfg config.TelemetryConfig) (trace.SpanExporter, metric.Exporter, error) {
	var (
		spans  trace.SpanExporter
		points metric.Exporter
		err    error
	)
	switch cfg.Protocol {
	case "http":
		topts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithHeaders(cfg.Headers)}
		mopts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithHeaders(cfg.Headers)}
		if cfg.Insecure {
			topts = append(topts, otlptracehttp.WithInsecure())
			mopts = append(mopts, otlpmetrichttp.WithInsecure())
		}
		if spans, err = otlptracehttp.New(ctx, topts...); err == nil {
			points, err = otlpmetrichttp.New(ctx, mopts...)
		}
	case "grpc":
		topts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithHeaders(cfg.Headers)}
		mopts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithHeaders(cfg.Headers)}
		if cfg.Insecure {
			topts = append(topts, otlptracegrpc.WithInsecure())
			mopts = append(mopts, otlpmetricgrpc.WithInsecure())
		}
		if spans, err = otlptracegrpc.New(ctx, topts...); err == nil {
			points, err = otlpmetricgrpc.New(ctx, mopts...)
		}
	default:
		return nil, nil, fmt.Errorf("unknown telemetry protocol %q", cfg.Protocol)
	}
	if err != nil {
		if spans != nil {
			_ = spans.Shutdown(ctx)
		}
		return nil, nil, fmt.Errorf("creating %s exporters for %s: %w", cfg.Protocol, cfg.Endpoint, err)
	}
	return spans, points, nil
}
