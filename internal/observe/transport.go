package observe

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Transport returns an [http.RoundTripper] that instruments outgoing voice
// service calls. Each request gets a client span, W3C trace context headers,
// and a [Metrics.RecordServiceCall] sample labelled by URL path. A nil base
// uses [http.DefaultTransport].
func Transport(m *Metrics, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{base: base, metrics: m, prop: propagation.TraceContext{}}
}

type transport struct {
	base    http.RoundTripper
	metrics *Metrics
	prop    propagation.TextMapPropagator
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := req.URL.Path

	ctx, span := StartSpan(req.Context(), "voice "+req.Method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(endpoint),
			semconv.ServerAddress(req.URL.Hostname()),
		),
	)
	defer span.End()

	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(ctx)
	t.prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.metrics.RecordServiceCall(ctx, endpoint, status, time.Since(start))

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusBadRequest:
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		span.SetStatus(codes.Error, http.StatusText(status))
	default:
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	}

	Logger(ctx).Debug("voice service call",
		"method", req.Method,
		"endpoint", endpoint,
		"status", status,
		"duration", time.Since(start),
	)
	return resp, err
}
