// Package observe provides the observability primitives of LinguaLive:
// OpenTelemetry metrics, tracing, correlation-aware logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported in
// Prometheus format by [InitProvider]. Tests should build their own
// [Metrics] with [NewMetrics] over a ManualReader; components that receive no
// metrics use [Discard].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/lingualive"

// Metrics holds every instrument of the application. The OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesCaptured counts frames pushed by the audio source.
	FramesCaptured metric.Int64Counter

	// FramesDropped counts frames discarded by the frame queue on overflow.
	FramesDropped metric.Int64Counter

	// QueueDepth is the frame queue length sampled on every pop.
	QueueDepth metric.Int64Gauge

	// RecognitionDuration tracks decoder latency per frame that produced an
	// event. Attribute: kind.
	RecognitionDuration metric.Float64Histogram

	// RecognitionEvents counts forwarded events. Attribute: kind.
	RecognitionEvents metric.Int64Counter

	// TranslationDuration tracks translation latency. Attributes: lang, status.
	TranslationDuration metric.Float64Histogram

	// TranslationRequests counts translation attempts. Attributes: lang, status.
	TranslationRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ActiveClients tracks connected WebSocket clients.
	ActiveClients metric.Int64UpDownCounter

	// SessionTransitions counts state changes. Attribute: state.
	SessionTransitions metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, state.
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("lingualive.audio.frames_captured",
		metric.WithDescription("Audio frames delivered by the capture device."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("lingualive.audio.frames_dropped",
		metric.WithDescription("Audio frames dropped because the frame queue was full."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64Gauge("lingualive.audio.queue_depth",
		metric.WithDescription("Frames waiting in the frame queue."),
	); err != nil {
		return nil, err
	}

	if met.RecognitionDuration, err = m.Float64Histogram("lingualive.recognition.duration",
		metric.WithDescription("Decoder latency for frames that produced a transcript event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionEvents, err = m.Int64Counter("lingualive.recognition.events",
		metric.WithDescription("Transcript events forwarded by kind."),
	); err != nil {
		return nil, err
	}

	if met.TranslationDuration, err = m.Float64Histogram("lingualive.translation.duration",
		metric.WithDescription("Latency of translation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationRequests, err = m.Int64Counter("lingualive.translation.requests",
		metric.WithDescription("Translation requests by target language and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("lingualive.provider.errors",
		metric.WithDescription("Provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveClients, err = m.Int64UpDownCounter("lingualive.clients.active",
		metric.WithDescription("Connected WebSocket clients."),
	); err != nil {
		return nil, err
	}
	if met.SessionTransitions, err = m.Int64Counter("lingualive.session.transitions",
		metric.WithDescription("Listening session state changes by new state."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("lingualive.circuit_breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lingualive.http.request.duration",
		metric.WithDescription("HTTP request latency by method and mux route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Discard returns a Metrics whose instruments record nothing.
func Discard() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// Attr is a shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame counts one captured frame, and one dropped frame if dropped.
func (m *Metrics) RecordFrame(ctx context.Context, dropped bool) {
	m.FramesCaptured.Add(ctx, 1)
	if dropped {
		m.FramesDropped.Add(ctx, 1)
	}
}

// RecordQueueDepth samples the frame queue length.
func (m *Metrics) RecordQueueDepth(ctx context.Context, depth int) {
	m.QueueDepth.Record(ctx, int64(depth))
}

// RecordRecognition records one forwarded transcript event.
func (m *Metrics) RecordRecognition(ctx context.Context, kind string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.RecognitionEvents.Add(ctx, 1, attrs)
	m.RecognitionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordTranslation records one finished translation attempt. status is "ok"
// or the failure kind.
func (m *Metrics) RecordTranslation(ctx context.Context, lang, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("lang", lang),
		attribute.String("status", status),
	)
	m.TranslationRequests.Add(ctx, 1, attrs)
	m.TranslationDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordProviderError counts a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordClients adjusts the active client gauge by delta.
func (m *Metrics) RecordClients(ctx context.Context, delta int) {
	m.ActiveClients.Add(ctx, int64(delta))
}

// RecordSessionTransition counts a session entering state.
func (m *Metrics) RecordSessionTransition(ctx context.Context, state string) {
	m.SessionTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordBreakerTransition counts a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("state", state),
		),
	)
}
