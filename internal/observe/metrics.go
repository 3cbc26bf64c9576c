// Package observe provides application-wide observability primitives for
// Auralis: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Auralis metrics.
const meterName = "github.com/auralis-ai/auralis"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// FinalizeDuration tracks how long the listener's end-of-stream exchange
	// takes, from finalize frame to terminal response (or deadline).
	FinalizeDuration metric.Float64Histogram

	// BatchDuration tracks offline transcription request latency.
	BatchDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksProcessed counts audio chunks through the pipeline. Use with
	// attribute: attribute.String("channel", "mic"|"speaker")
	ChunksProcessed metric.Int64Counter

	// StreamResponses counts normalised provider responses. Use with
	// attributes: attribute.String("provider", ...), attribute.Bool("final", ...)
	StreamResponses metric.Int64Counter

	// ChildRestarts counts supervised child restarts. Use with attribute:
	//   attribute.String("child", "source"|"recorder")
	ChildRestarts metric.Int64Counter

	// DegradedTransitions counts entries into degraded mode. Use with
	// attribute: attribute.String("kind", ...)
	DegradedTransitions metric.Int64Counter

	// Meltdowns counts supervisor meltdowns.
	Meltdowns metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live listening sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for streaming-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FinalizeDuration, err = m.Float64Histogram("auralis.listener.finalize.duration",
		metric.WithDescription("Latency of the listener end-of-stream exchange."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("auralis.batch.duration",
		metric.WithDescription("Latency of offline transcription requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksProcessed, err = m.Int64Counter("auralis.pipeline.chunks",
		metric.WithDescription("Total audio chunks processed by the pipeline, by channel."),
	); err != nil {
		return nil, err
	}
	if met.StreamResponses, err = m.Int64Counter("auralis.listener.responses",
		metric.WithDescription("Total normalised provider responses, by provider and finality."),
	); err != nil {
		return nil, err
	}
	if met.ChildRestarts, err = m.Int64Counter("auralis.supervisor.restarts",
		metric.WithDescription("Total supervised child restarts, by child."),
	); err != nil {
		return nil, err
	}
	if met.DegradedTransitions, err = m.Int64Counter("auralis.supervisor.degraded",
		metric.WithDescription("Total transitions into degraded mode, by degraded kind."),
	); err != nil {
		return nil, err
	}
	if met.Meltdowns, err = m.Int64Counter("auralis.supervisor.meltdowns",
		metric.WithDescription("Total supervisor meltdowns from exhausted restart budgets."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("auralis.active_sessions",
		metric.WithDescription("Number of live listening sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("auralis.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChildRestart records one supervised child restart.
func (m *Metrics) RecordChildRestart(ctx context.Context, child string) {
	m.ChildRestarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("child", child)),
	)
}

// RecordDegraded records one transition into degraded mode.
func (m *Metrics) RecordDegraded(ctx context.Context, kind string) {
	m.DegradedTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordStreamResponse records one normalised provider response.
func (m *Metrics) RecordStreamResponse(ctx context.Context, provider string, final bool) {
	m.StreamResponses.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.Bool("final", final),
		),
	)
}
