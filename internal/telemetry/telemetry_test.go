package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/chris-regnier/wikifix/internal/config"
)

// shutdownCtx returns a context with a short timeout for test shutdown calls,
// avoiding 10s gRPC connection timeouts when no collector is running.
func shutdownCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 1*time.Second)
}

func TestInit_DisabledReturnsNoop(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled: false,
	}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Shutdown should succeed (noop)
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown should not error, got: %v", err)
	}
}

func TestInit_EnvVarOverrideDisables(t *testing.T) {
	// Start with enabled config, but env var disables it
	cfg := config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		ServiceName: "wikifix-test",
		SampleRate:  1.0,
	}

	t.Setenv(EnvEnabled, "false")

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Should be noop since env var disabled it
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown should not error, got: %v", err)
	}
}

func TestInit_EnvVarOverrideEnables(t *testing.T) {
	// Start with disabled config, env var enables it.
	// This will fail to connect (no collector), but Init should still succeed
	// because exporters connect lazily.
	cfg := config.TelemetryConfig{
		Enabled:     false,
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		Insecure:    true,
		ServiceName: "wikifix-test",
		SampleRate:  1.0,
	}

	t.Setenv(EnvEnabled, "true")

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Verify global tracer provider is set (not the noop default)
	tp := otel.GetTracerProvider()
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}

	ctx, cancel := shutdownCtx()
	defer cancel()
	_ = shutdown(ctx)
}

func TestInit_EnvVarCaseInsensitive(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled:  false,
		Endpoint: "localhost:4317",
		Protocol: "grpc",
		Insecure: true,
	}

	for _, val := range []string{"TRUE", "True", "1"} {
		t.Run(val, func(t *testing.T) {
			t.Setenv(EnvEnabled, val)

			shutdown, err := Init(context.Background(), cfg)
			if err != nil {
				t.Fatalf("expected no error for value %q, got: %v", val, err)
			}
			ctx, cancel := shutdownCtx()
			defer cancel()
			_ = shutdown(ctx)
		})
	}
}

func TestInit_HTTPProtocol(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		Protocol:    "http",
		Insecure:    true,
		ServiceName: "wikifix-test-http",
		SampleRate:  1.0,
	}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	ctx, cancel := shutdownCtx()
	defer cancel()
	_ = shutdown(ctx)
}

func TestInit_WithHeaders(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		Insecure:    true,
		ServiceName: "wikifix-test",
		SampleRate:  1.0,
		Headers: map[string]string{
			"Authorization": "Bearer test-token",
		},
	}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	ctx, cancel := shutdownCtx()
	defer cancel()
	_ = shutdown(ctx)
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(config.TelemetryConfig{Protocol: "http", SampleRate: 3})
	if cfg.ServiceName != "wikifix" {
		t.Errorf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected http default endpoint, got %q", cfg.Endpoint)
	}
	if cfg.SampleRate != 1 {
		t.Errorf("expected sample rate clamped to 1, got %f", cfg.SampleRate)
	}

	cfg = withDefaults(config.TelemetryConfig{Endpoint: "collector:4317", SampleRate: 0.25})
	if cfg.Endpoint != "collector:4317" || cfg.SampleRate != 0.25 {
		t.Errorf("expected explicit values kept, got %+v", cfg)
	}
}

func TestInit_EnvEndpointOverride(t *testing.T) {
	t.Setenv(EnvEnabled, "true")
	t.Setenv(EnvEndpoint, "localhost:14317")

	shutdown, err := Init(context.Background(), config.TelemetryConfig{Insecure: true})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	ctx, cancel := shutdownCtx()
	defer cancel()
	_ = shutdown(ctx)
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvEnabled, "1")
	t.Setenv(EnvEndpoint, "collector:4317")

	cfg := resolve(config.TelemetryConfig{Endpoint: "localhost:4317"})
	if !cfg.Enabled {
		t.Error("expected env var to enable telemetry")
	}
	if cfg.Endpoint != "collector:4317" {
		t.Errorf("expected env endpoint to win, got %q", cfg.Endpoint)
	}
	if cfg.Protocol != "grpc" {
		t.Errorf("expected grpc by default, got %q", cfg.Protocol)
	}
}

func TestInit_UnknownProtocol(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, Protocol: "udp"}
	if _, err := Init(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for an unknown protocol")
	}
}

func TestNewResource(t *testing.T) {
	cfg := withDefaults(config.TelemetryConfig{})
	res, err := newResource(cfg, options{project: "cswiki", version: "1.2.3"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got[string(ProjectKey)] != "cswiki" {
		t.Errorf("expected project attribute, got %v", got)
	}
	if got["service.version"] != "1.2.3" || got["service.name"] != "wikifix" {
		t.Errorf("expected service name and version, got %v", got)
	}

	cfg.ServiceVersion = "9.9.9"
	res, err = newResource(cfg, options{version: "1.2.3"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	for _, kv := range res.Attributes() {
		if kv.Key == ProjectKey {
			t.Error("expected no project attribute when none is given")
		}
		if kv.Key == "service.version" && kv.Value.Emit() != "9.9.9" {
			t.Errorf("expected configured version to win, got %s", kv.Value.Emit())
		}
	}
}

func TestInit_MetricInterval(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, Insecure: true}
	shutdown, err := Init(context.Background(), cfg, WithProject("enwiki"), WithMetricInterval(time.Second))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	ctx, cancel := shutdownCtx()
	defer cancel()
	_ = shutdown(ctx)
}
