package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// sumWhere returns the value of the int64 sum data point whose attributes
// contain key=value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func histCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is %T, want Histogram[float64]", name, met.Data)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, false)
	m.RecordFrame(ctx, false)
	m.RecordFrame(ctx, true)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "lingualive.audio.frames_captured", "", ""); got != 3 {
		t.Errorf("frames_captured = %d, want 3", got)
	}
	if got := sumWhere(t, rm, "lingualive.audio.frames_dropped", "", ""); got != 1 {
		t.Errorf("frames_dropped = %d, want 1", got)
	}
}

func TestRecordQueueDepth(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordQueueDepth(context.Background(), 7)
	m.RecordQueueDepth(context.Background(), 3)

	rm := collect(t, reader)
	met := findMetric(rm, "lingualive.audio.queue_depth")
	if met == nil {
		t.Fatal("queue_depth not found")
	}
	g, ok := met.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) == 0 {
		t.Fatalf("queue_depth data = %T", met.Data)
	}
	if got := g.DataPoints[0].Value; got != 3 {
		t.Errorf("queue_depth = %d, want last sample 3", got)
	}
}

func TestRecordRecognition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordRecognition(ctx, "partial", 20*time.Millisecond)
	m.RecordRecognition(ctx, "partial", 30*time.Millisecond)
	m.RecordRecognition(ctx, "final", 200*time.Millisecond)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "lingualive.recognition.events", "kind", "partial"); got != 2 {
		t.Errorf("partial events = %d, want 2", got)
	}
	if got := histCount(t, rm, "lingualive.recognition.duration"); got != 3 {
		t.Errorf("recognition samples = %d, want 3", got)
	}
}

func TestRecordTranslation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordTranslation(ctx, "it", "ok", 100*time.Millisecond)
	m.RecordTranslation(ctx, "it", "quota", 10*time.Millisecond)
	m.RecordTranslation(ctx, "fr", "ok", 100*time.Millisecond)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "lingualive.translation.requests", "status", "quota"); got != 1 {
		t.Errorf("quota requests = %d, want 1", got)
	}
	if got := histCount(t, rm, "lingualive.translation.duration"); got != 3 {
		t.Errorf("translation samples = %d, want 3", got)
	}
}

func TestRecordCountersAndGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "azure", "auth")
	m.RecordClients(ctx, 1)
	m.RecordClients(ctx, 1)
	m.RecordClients(ctx, -1)
	m.RecordSessionTransition(ctx, "listening")
	m.RecordSessionTransition(ctx, "stopped")
	m.RecordSessionTransition(ctx, "listening")
	m.RecordBreakerTransition(ctx, "azure", "open")

	rm := collect(t, reader)
	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"lingualive.provider.errors", "kind", "auth", 1},
		{"lingualive.clients.active", "", "", 1},
		{"lingualive.session.transitions", "state", "listening", 2},
		{"lingualive.circuit_breaker.transitions", "name", "azure", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sumWhere(t, rm, tt.name, tt.key, tt.value); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	m := Discard()
	// Must not panic.
	m.RecordFrame(context.Background(), true)
	m.RecordTranslation(context.Background(), "de", "ok", time.Second)
}
