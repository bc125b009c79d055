package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder feeds handler outcomes into a Collector and into the global
// OpenTelemetry meter. It satisfies the scheduler's Recorder interface.
type Recorder struct {
	collector *Collector
	page      string

	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRecorder creates a new metrics recorder
func NewRecorder(collector *Collector) *Recorder {
	meter := otel.Meter("github.com/chris-regnier/wikifix/internal/metrics")
	r := &Recorder{collector: collector}

	// instrument errors leave the otel side unset; the collector still works
	r.outcomes, _ = meter.Int64Counter("wikifix.handler.outcomes",
		metric.WithDescription("Handler outcomes by handler id and status"))
	r.duration, _ = meter.Float64Histogram("wikifix.handler.duration",
		metric.WithDescription("Handler run time"),
		metric.WithUnit("ms"))
	return r
}

// ForPage returns a recorder that tags events with the page title.
func (r *Recorder) ForPage(title string) *Recorder {
	cp := *r
	cp.page = title
	return &cp
}

// Collector returns the underlying collector
func (r *Recorder) Collector() *Collector { return r.collector }

// RecordHandler records one handler outcome.
func (r *Recorder) RecordHandler(id int, status string, d time.Duration) {
	r.collector.Record(HandlerEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Handler:   id,
		Page:      r.page,
		Status:    status,
		Duration:  d,
	})

	attrs := metric.WithAttributes(
		attribute.Int("wikifix.handler.id", id),
		attribute.String("wikifix.handler.status", status),
	)
	ctx := context.Background()
	if r.outcomes != nil {
		r.outcomes.Add(ctx, 1, attrs)
	}
	if r.duration != nil {
		r.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
	}
}

// NoOpRecorder returns a recorder that keeps counts but no events
func NoOpRecorder() *Recorder {
	return NewRecorder(NewCollector(WithMaxEvents(0)))
}
