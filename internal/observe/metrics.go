// Package observe provides application-wide observability primitives for
// Dramaturg: OpenTelemetry metrics, tracing, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Dramaturg metrics.
const meterName = "github.com/MrWong99/dramaturg"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use. The underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the full duration of one character turn,
	// including context assembly, generation, and persistence.
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks LLM call latency. Use with attribute:
	//   attribute.String("kind", "thought"|"ltm_update")
	LLMDuration metric.Float64Histogram

	// PersistDuration tracks scene log and character file write latency.
	PersistDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed character turns. Use with attributes:
	//   attribute.String("character_id", ...), attribute.String("status", "ok"|"fallback")
	Turns metric.Int64Counter

	// Interventions counts operator interventions by type.
	Interventions metric.Int64Counter

	// LTMUpdates counts long-term memory updates. Use with attributes:
	//   attribute.String("character_id", ...), attribute.String("status", "ok"|"error")
	LTMUpdates metric.Int64Counter

	// --- Gauges ---

	// ActiveParticipants tracks the number of characters currently in the
	// scene.
	ActiveParticipants metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Turn and
// LLM latencies are dominated by model inference, so the buckets reach
// further than typical HTTP-service boundaries.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("dramaturg.turn.duration",
		metric.WithDescription("Full duration of one character turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("dramaturg.llm.duration",
		metric.WithDescription("Latency of LLM calls by kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("dramaturg.persist.duration",
		metric.WithDescription("Latency of scene log and character file writes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("dramaturg.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("dramaturg.turns",
		metric.WithDescription("Total completed character turns by character and status."),
	); err != nil {
		return nil, err
	}
	if met.Interventions, err = m.Int64Counter("dramaturg.interventions",
		metric.WithDescription("Total operator interventions by type."),
	); err != nil {
		return nil, err
	}
	if met.LTMUpdates, err = m.Int64Counter("dramaturg.ltm.updates",
		metric.WithDescription("Total long-term memory updates by character and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveParticipants, err = m.Int64UpDownCounter("dramaturg.active_participants",
		metric.WithDescription("Number of characters currently in the scene."),
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

// RecordTurn records one completed turn with its duration in seconds.
func (m *Metrics) RecordTurn(ctx context.Context, characterID, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("character_id", characterID),
		attribute.String("status", status),
	)
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, seconds, attrs)
}

// RecordLLMCall records the latency of one LLM call.
func (m *Metrics) RecordLLMCall(ctx context.Context, kind string, seconds float64) {
	m.LLMDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordIntervention records one applied intervention.
func (m *Metrics) RecordIntervention(ctx context.Context, interventionType string) {
	m.Interventions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", interventionType)),
	)
}

// RecordLTMUpdate records one long-term memory update attempt.
func (m *Metrics) RecordLTMUpdate(ctx context.Context, characterID, status string) {
	m.LTMUpdates.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("character_id", characterID),
			attribute.String("status", status),
		),
	)
}
