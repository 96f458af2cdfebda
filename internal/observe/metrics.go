// Package observe provides application-wide observability primitives for
// earshot: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all earshot metrics.
const meterName = "github.com/MrWong99/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks response generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis and playback time.
	TTSDuration metric.Float64Histogram

	// UtteranceDuration tracks the audio length of finalized utterances.
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// Frames counts classified frames. Use with attribute:
	//   attribute.String("label", "speech"|"silence")
	Frames metric.Int64Counter

	// FrameOverflows counts capture overflows that caused a skipped read.
	FrameOverflows metric.Int64Counter

	// SuppressedPolls counts loop iterations skipped while speaking.
	SuppressedPolls metric.Int64Counter

	// Utterances counts finalized utterances. Use with attribute:
	//   attribute.String("outcome", ...)
	Utterances metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// Speaking is 1 while speech output is in progress.
	Speaking metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// utteranceBuckets covers spoken phrases from a single word to a monologue.
var utteranceBuckets = []float64{
	0.5, 1, 1.5, 2, 3, 5, 8, 13, 21, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("earshot.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("earshot.llm.duration",
		metric.WithDescription("Latency of LLM response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("earshot.tts.duration",
		metric.WithDescription("Time spent synthesising and playing a reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("earshot.utterance.duration",
		metric.WithDescription("Audio length of finalized utterances, trailing silence included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Frames, err = m.Int64Counter("earshot.frames",
		metric.WithDescription("Classified audio frames by label."),
	); err != nil {
		return nil, err
	}
	if met.FrameOverflows, err = m.Int64Counter("earshot.frames.overflow",
		metric.WithDescription("Capture overflows that caused a frame to be skipped."),
	); err != nil {
		return nil, err
	}
	if met.SuppressedPolls, err = m.Int64Counter("earshot.frames.suppressed",
		metric.WithDescription("Capture loop iterations skipped while speaking."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("earshot.utterances",
		metric.WithDescription("Finalized utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("earshot.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("earshot.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Speaking, err = m.Int64UpDownCounter("earshot.speaking",
		metric.WithDescription("1 while speech output is in progress."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFrame counts one classified frame.
func (m *Metrics) RecordFrame(ctx context.Context, speech bool) {
	label := "silence"
	if speech {
		label = "speech"
	}
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("label", label)))
}

// RecordUtterance counts a finalized utterance and its length.
func (m *Metrics) RecordUtterance(ctx context.Context, d time.Duration, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.UtteranceDuration.Record(ctx, d.Seconds())
}

// RecordStage records the latency of one pipeline stage call and the matching
// provider request counter. kind is one of "stt", "llm" or "tts".
func (m *Metrics) RecordStage(ctx context.Context, kind, provider string, d time.Duration, err error) {
	var h metric.Float64Histogram
	switch kind {
	case "stt":
		h = m.STTDuration
	case "llm":
		h = m.LLMDuration
	case "tts":
		h = m.TTSDuration
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	if h != nil {
		h.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
}
