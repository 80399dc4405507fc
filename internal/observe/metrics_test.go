package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point whose attribute key
// equals value, and whether it was found.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value, true
			}
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestWakeTriggers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordWakeTrigger(ctx, "accepted")
	m.RecordWakeTrigger(ctx, "ignored")
	m.RecordWakeTrigger(ctx, "ignored")

	rm := collect(t, reader)
	got, ok := sumWhere(t, rm, "chippy.wake.triggers", "outcome", "ignored")
	if !ok {
		t.Fatal("data point with outcome=ignored not found")
	}
	if got != 2 {
		t.Errorf("ignored = %d, want 2", got)
	}
}

func TestRecognitionAttempt(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecognitionAttempt(ctx, "azure", "transient", 300*time.Millisecond)
	m.RecordRecognitionAttempt(ctx, "azure", "ok", 200*time.Millisecond)

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "chippy.recognition.attempts", "status", "ok"); !ok || got != 1 {
		t.Errorf("ok attempts = %d (found %v), want 1", got, ok)
	}

	met := findMetric(rm, "chippy.recognition.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("sample count = %d, want 2", count)
	}
}

func TestDroppedFrames_IgnoresNonPositive(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDroppedFrames(ctx, "source", 0)
	m.RecordDroppedFrames(ctx, "source", 3)
	m.RecordDroppedFrames(ctx, "source", -1)

	rm := collect(t, reader)
	got, ok := sumWhere(t, rm, "chippy.frames.dropped", "where", "source")
	if !ok || got != 3 {
		t.Errorf("dropped = %d (found %v), want 3", got, ok)
	}
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordHandoffStage(ctx, "respond", 1200*time.Millisecond)
	m.UtteranceDuration.Record(ctx, 1.6)
	m.HTTPRequestDuration.Record(ctx, 0.01)

	rm := collect(t, reader)
	for _, name := range []string{
		"chippy.handoff.duration",
		"chippy.utterance.duration",
		"chippy.http.request.duration",
	} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", name)
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
				t.Errorf("metric %q: want exactly one sample", name)
			}
		})
	}
}

func TestTransitionsAndSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "idle", "armed")
	m.RecordTransition(ctx, "armed", "idle")
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 1)

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "chippy.orchestrator.transitions", "to", "armed"); !ok || got != 1 {
		t.Errorf("to=armed = %d (found %v), want 1", got, ok)
	}
	met := findMetric(rm, "chippy.active_sessions")
	if met == nil {
		t.Fatal("active sessions metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %v, want 1", sum.DataPoints)
	}
}

func TestSessionFailures(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSessionFailure(ctx, "exhausted")
	m.RecordSessionFailure(ctx, "exhausted")
	m.RecordSessionFailure(ctx, "handoff_failed")

	rm := collect(t, reader)
	if got, ok := sumWhere(t, rm, "chippy.session.failures", "outcome", "exhausted"); !ok || got != 2 {
		t.Errorf("outcome=exhausted = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumWhere(t, rm, "chippy.session.failures", "outcome", "handoff_failed"); !ok || got != 1 {
		t.Errorf("outcome=handoff_failed = %d (found %v), want 1", got, ok)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
