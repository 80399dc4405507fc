// Package observe provides the observability primitives for chippy:
// OpenTelemetry metrics, tracing, trace-aware logging and the HTTP middleware
// that wraps the diagnostics server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus by [InitProvider]. A package-level [DefaultMetrics] instance is
// provided for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all chippy metrics.
const meterName = "github.com/chippy-tutor/chippy"

// Metrics holds all OpenTelemetry instruments for the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// --- Front end ---

	// WakeTriggers counts wake-word detections. Attribute "outcome" is
	// "accepted" or "ignored" (trigger arrived while a session was live).
	WakeTriggers metric.Int64Counter

	// Utterances counts segmenter outcomes. Attribute "outcome" is
	// "sealed", "discarded" or "timeout"; "reason" qualifies it.
	Utterances metric.Int64Counter

	// UtteranceDuration tracks sealed utterance length.
	UtteranceDuration metric.Float64Histogram

	// DroppedFrames counts frames lost at the capture source, or discarded
	// by the orchestrator while a recognition call was outstanding. Attribute
	// "where" is "source" or "dispatching".
	DroppedFrames metric.Int64Counter

	// --- Recognition ---

	// RecognitionDuration tracks the latency of each recognition attempt.
	RecognitionDuration metric.Float64Histogram

	// RecognitionAttempts counts attempts by "provider" and "status".
	RecognitionAttempts metric.Int64Counter

	// DispatchOutcomes counts dispatcher results by "status"
	// (success, no_speech, rejected, exhausted, cancelled).
	DispatchOutcomes metric.Int64Counter

	// ProviderErrors counts provider errors by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// --- Session ---

	// HandoffDuration tracks each downstream stage by "stage".
	HandoffDuration metric.Float64Histogram

	// StateTransitions counts orchestrator transitions by "from" and "to".
	StateTransitions metric.Int64Counter

	// ActiveSessions is 1 while a session is live and 0 otherwise.
	ActiveSessions metric.Int64UpDownCounter

	// SessionFailures counts sessions that ended in a recoverable failure,
	// by "outcome".
	SessionFailures metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks diagnostics server latency by "method" and
	// "route".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network-bound voice pipeline stages.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] using mp. Returns an error
// if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.WakeTriggers, err = m.Int64Counter("chippy.wake.triggers",
		metric.WithDescription("Wake-word detections by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("chippy.utterances",
		metric.WithDescription("Segmenter outcomes by outcome and reason."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("chippy.frames.dropped",
		metric.WithDescription("Capture frames dropped or discarded, by location."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionAttempts, err = m.Int64Counter("chippy.recognition.attempts",
		metric.WithDescription("Recognition attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.DispatchOutcomes, err = m.Int64Counter("chippy.dispatch.outcomes",
		metric.WithDescription("Recognition dispatcher results by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("chippy.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("chippy.orchestrator.transitions",
		metric.WithDescription("Session orchestrator state transitions."),
	); err != nil {
		return nil, err
	}
	if met.SessionFailures, err = m.Int64Counter("chippy.session.failures",
		metric.WithDescription("Sessions ended by exhausted retries, a rejected request or a failed handoff."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.UtteranceDuration, err = m.Float64Histogram("chippy.utterance.duration",
		metric.WithDescription("Length of sealed utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("chippy.recognition.duration",
		metric.WithDescription("Latency of a single recognition attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HandoffDuration, err = m.Float64Histogram("chippy.handoff.duration",
		metric.WithDescription("Latency of downstream handoff stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("chippy.active_sessions",
		metric.WithDescription("Number of live voice sessions (0 or 1)."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chippy.http.request.duration",
		metric.WithDescription("Diagnostics request latency by method and route."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordWakeTrigger counts a wake-word detection.
func (m *Metrics) RecordWakeTrigger(ctx context.Context, outcome string) {
	m.WakeTriggers.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordUtterance counts a segmenter outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome, reason string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(
		Attr("outcome", outcome),
		Attr("reason", reason),
	))
}

// RecordDroppedFrames adds n dropped frames at where.
func (m *Metrics) RecordDroppedFrames(ctx context.Context, where string, n int64) {
	if n <= 0 {
		return
	}
	m.DroppedFrames.Add(ctx, n, metric.WithAttributes(Attr("where", where)))
}

// RecordRecognitionAttempt records one recognition attempt and its latency.
func (m *Metrics) RecordRecognitionAttempt(ctx context.Context, provider, status string, d time.Duration) {
	attrs := metric.WithAttributes(Attr("provider", provider), Attr("status", status))
	m.RecognitionAttempts.Add(ctx, 1, attrs)
	m.RecognitionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDispatchOutcome counts a dispatcher result.
func (m *Metrics) RecordDispatchOutcome(ctx context.Context, status string) {
	m.DispatchOutcomes.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordProviderError counts a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}

// RecordHandoffStage records the latency of one downstream stage.
func (m *Metrics) RecordHandoffStage(ctx context.Context, stage string, d time.Duration) {
	m.HandoffDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordTransition counts an orchestrator state transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("from", from),
		Attr("to", to),
	))
}

// RecordSessionFailure counts a session that ended in a recoverable failure.
func (m *Metrics) RecordSessionFailure(ctx context.Context, outcome string) {
	m.SessionFailures.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}
