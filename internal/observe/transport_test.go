package observe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func TestTransport_InjectsTraceContext(t *testing.T) {
	m, _, exp := testSetup(t)

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: Transport(m, nil)}
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/voices", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if req.Header.Get("traceparent") != "" {
		t.Error("caller's request was mutated")
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "voice GET /voices" {
		t.Errorf("span name = %q", span.Name)
	}
	if span.SpanKind != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", span.SpanKind)
	}
	want := "00-" + span.SpanContext.TraceID().String() + "-" + span.SpanContext.SpanID().String() + "-01"
	if traceparent != want {
		t.Errorf("traceparent = %q, want %q", traceparent, want)
	}
}

func TestTransport_RecordsOutcome(t *testing.T) {
	m, reader, exp := testSetup(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tts" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: Transport(m, nil)}
	for _, path := range []string{"/tts", "/voices", "/voices"} {
		resp, err := client.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("Get %s: %v", path, err)
		}
		resp.Body.Close()
	}

	rm := collect(t, reader)
	if got := sumFor(t, rm, "sheng.service.requests", Attr("outcome", "http_401")); got != 1 {
		t.Errorf("requests{outcome=http_401} = %d, want 1", got)
	}
	if got := sumFor(t, rm, "sheng.service.requests", Attr("outcome", "ok")); got != 2 {
		t.Errorf("requests{outcome=ok} = %d, want 2", got)
	}

	var errored int
	for _, s := range exp.GetSpans() {
		if s.Status.Code == codes.Error {
			errored++
		}
	}
	if errored != 1 {
		t.Errorf("error spans = %d, want 1", errored)
	}
}

type failingRoundTripper struct{ err error }

func (f failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) { return nil, f.err }

func TestTransport_TransportError(t *testing.T) {
	m, reader, exp := testSetup(t)
	boom := errors.New("connection refused")

	client := &http.Client{Transport: Transport(m, failingRoundTripper{err: boom})}
	_, err := client.Get("http://voice.invalid/tts")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}

	rm := collect(t, reader)
	if got := sumFor(t, rm, "sheng.service.requests", Attr("outcome", "transport_error")); got != 1 {
		t.Errorf("requests{outcome=transport_error} = %d, want 1", got)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("want one error span, got %+v", spans)
	}
}
