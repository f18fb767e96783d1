// Package observe provides application-wide observability primitives for
// sheng: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP instrumentation for both the outgoing voice service client
// ([Transport]) and the local health/metrics server ([Middleware]).
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
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sheng metrics.
const meterName = "github.com/MrWong99/sheng"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Voice service ---

	// ServiceDuration tracks voice service round-trip latency. Attributes:
	//   attribute.String("endpoint", ...), attribute.Int("status", ...)
	ServiceDuration metric.Float64Histogram

	// ServiceRequests counts voice service calls. Attributes:
	//   attribute.String("endpoint", ...), attribute.String("outcome", ...)
	ServiceRequests metric.Int64Counter

	// ServiceErrors counts failed operations by error kind. Attributes:
	//   attribute.String("operation", ...), attribute.String("kind", ...)
	ServiceErrors metric.Int64Counter

	// --- Recording ---

	// RecordingDuration tracks the elapsed time of finalized takes.
	RecordingDuration metric.Float64Histogram

	// Recordings counts finalized takes. Attribute:
	//   attribute.String("status", "ok"|"failed")
	Recordings metric.Int64Counter

	// ActiveRecordings is 1 while a take is in progress.
	ActiveRecordings metric.Int64UpDownCounter

	// RetentionRemoved counts recordings deleted by the retention janitor.
	// Attribute: attribute.String("reason", "age"|"count")
	RetentionRemoved metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Attributes:
	//   attribute.String("server", ...), attribute.String("state", ...)
	CircuitTransitions metric.Int64Counter

	// ConfigReloads counts config file edits seen by the watcher. Attribute:
	//   attribute.String("result", "applied"|"rejected")
	ConfigReloads metric.Int64Counter

	// --- Playback ---

	// ActivePlayback is 1 while a track is playing.
	ActivePlayback metric.Int64UpDownCounter

	// PlaybackCompletions counts tracks that played to the end. Attribute:
	//   attribute.Bool("success", ...)
	PlaybackCompletions metric.Int64Counter

	// --- HTTP server ---

	// HTTPRequestDuration tracks request processing time of the local
	// health/metrics server. Attributes: attribute.String("method", ...),
	//   attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for voice
// service calls; synthesis of a long paragraph can take tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// recordingBuckets covers sample takes from a second to several minutes.
var recordingBuckets = []float64{
	1, 5, 10, 20, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ServiceDuration, err = m.Float64Histogram("sheng.service.duration",
		metric.WithDescription("Latency of voice service requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("sheng.recording.duration",
		metric.WithDescription("Elapsed time of finalized recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sheng.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ServiceRequests, err = m.Int64Counter("sheng.service.requests",
		metric.WithDescription("Total voice service requests by endpoint and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ServiceErrors, err = m.Int64Counter("sheng.service.errors",
		metric.WithDescription("Total failed voice service operations by operation and error kind."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("sheng.circuit.transitions",
		metric.WithDescription("Circuit breaker state changes by server and new state."),
	); err != nil {
		return nil, err
	}
	if met.ConfigReloads, err = m.Int64Counter("sheng.config.reloads",
		metric.WithDescription("Config file edits by result."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("sheng.recordings",
		metric.WithDescription("Total finalized recordings by status."),
	); err != nil {
		return nil, err
	}
	if met.RetentionRemoved, err = m.Int64Counter("sheng.retention.removed",
		metric.WithDescription("Recordings deleted by the retention janitor."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackCompletions, err = m.Int64Counter("sheng.playback.completions",
		metric.WithDescription("Tracks that reached their end, by success."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("sheng.active_recordings",
		metric.WithDescription("Number of recordings in progress."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlayback, err = m.Int64UpDownCounter("sheng.active_playback",
		metric.WithDescription("Number of tracks currently playing."),
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
// pointer.
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

// RecordServiceCall records one voice service round trip. status is the HTTP
// status code, or 0 when no response was received.
func (m *Metrics) RecordServiceCall(ctx context.Context, endpoint string, status int, d time.Duration) {
	outcome := "ok"
	switch {
	case status == 0:
		outcome = "transport_error"
	case status >= 400:
		outcome = "http_" + strconv.Itoa(status)
	}
	m.ServiceDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("status", status),
	))
	m.ServiceRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

// RecordServiceError records a failed operation classified by kind.
func (m *Metrics) RecordServiceError(ctx context.Context, operation, kind string) {
	m.ServiceErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("kind", kind),
	))
}

// RecordCircuitTransition records a breaker guarding server entering state.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, server, state string) {
	m.CircuitTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("state", state),
	))
}

// RecordConfigReload records one config edit; applied is false when the
// edit was rejected.
func (m *Metrics) RecordConfigReload(ctx context.Context, applied bool) {
	result := "applied"
	if !applied {
		result = "rejected"
	}
	m.ConfigReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRecording records a finalized take.
func (m *Metrics) RecordRecording(ctx context.Context, ok bool, elapsed time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.Recordings.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if ok {
		m.RecordingDuration.Record(ctx, elapsed.Seconds())
	}
}

// RecordPlaybackCompletion records a track reaching its end.
func (m *Metrics) RecordPlaybackCompletion(ctx context.Context, success bool) {
	m.PlaybackCompletions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordRetentionRemoved records n recordings deleted for reason.
func (m *Metrics) RecordRetentionRemoved(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.RetentionRemoved.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}
