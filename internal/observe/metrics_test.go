package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
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

// counterValueWith returns the value of the data point whose attribute set
// contains key=value, or -1 when no such point exists.
func counterValueWith(sum metricdata.Sum[int64], key, value string) int64 {
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"dramaturg.turn.duration", m.TurnDuration},
		{"dramaturg.llm.duration", m.LLMDuration},
		{"dramaturg.persist.duration", m.PersistDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 4.56)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "alice", "ok", 1.2)
	m.RecordTurn(ctx, "alice", "ok", 0.8)
	m.RecordTurn(ctx, "bob", "fallback", 0.1)

	rm := collect(t, reader)
	met := findMetric(rm, "dramaturg.turns")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValueWith(sum, "character_id", "alice"); got != 2 {
		t.Errorf("alice turn count = %d, want 2", got)
	}
	if got := counterValueWith(sum, "status", "fallback"); got != 1 {
		t.Errorf("fallback turn count = %d, want 1", got)
	}

	// The histogram receives one sample per recorded turn.
	hmet := findMetric(rm, "dramaturg.turn.duration")
	if hmet == nil {
		t.Fatal("duration metric not found")
	}
	hist := hmet.Data.(metricdata.Histogram[float64])
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("total duration samples = %d, want 3", total)
	}
}

func TestRecordInterventionAndLTMUpdate(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordIntervention(ctx, "REVELATION")
	m.RecordIntervention(ctx, "REVELATION")
	m.RecordIntervention(ctx, "END_SCENE")
	m.RecordLTMUpdate(ctx, "alice", "ok")
	m.RecordLTMUpdate(ctx, "bob", "error")

	rm := collect(t, reader)

	ivm := findMetric(rm, "dramaturg.interventions")
	if ivm == nil {
		t.Fatal("interventions metric not found")
	}
	if got := counterValueWith(ivm.Data.(metricdata.Sum[int64]), "type", "REVELATION"); got != 2 {
		t.Errorf("REVELATION count = %d, want 2", got)
	}

	ltm := findMetric(rm, "dramaturg.ltm.updates")
	if ltm == nil {
		t.Fatal("ltm updates metric not found")
	}
	if got := counterValueWith(ltm.Data.(metricdata.Sum[int64]), "status", "error"); got != 1 {
		t.Errorf("error update count = %d, want 1", got)
	}
}

func TestActiveParticipantsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveParticipants.Add(ctx, 3)
	m.ActiveParticipants.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "dramaturg.active_participants")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 2 {
		t.Errorf("gauge value = %d, want 2", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			Attr("method", "GET"),
			Attr("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "dramaturg.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
