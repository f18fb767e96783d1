package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/sheng/pkg/voice"
	"github.com/MrWong99/sheng/pkg/voice/mock"
)

func TestIsServerFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", &voice.ServerError{Description: "refused", Err: errors.New("dial")}, true},
		{"cancelled", &voice.ServerError{Description: "cancelled", Err: context.Canceled}, false},
		{"bad body", fmt.Errorf("read: %w", voice.ErrInvalidResponse), true},
		{"5xx", &voice.HTTPError{StatusCode: 503, Endpoint: "/tts"}, true},
		{"4xx", &voice.HTTPError{StatusCode: 422, Endpoint: "/tts"}, false},
		{"decoding", voice.ErrDecoding, false},
		{"other", errTest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServerFailure(tt.err); got != tt.want {
				t.Errorf("IsServerFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func newRequest(t *testing.T) voice.Request {
	t.Helper()
	req, err := voice.NewRequest("你好")
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestVoiceFallback_PrimarySuccess(t *testing.T) {
	primary := &mock.Service{SynthesizeResult: []byte("primary")}
	secondary := &mock.Service{SynthesizeResult: []byte("secondary")}
	fb := NewVoiceFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	data, err := fb.Synthesize(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "primary" {
		t.Errorf("data = %q, want primary", data)
	}
	if secondary.SynthesizeCallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.SynthesizeCallCount())
	}
}

func TestVoiceFallback_ServerFailureFailsOver(t *testing.T) {
	primary := &mock.Service{SynthesizeErr: &voice.HTTPError{StatusCode: 502, Endpoint: "/tts"}}
	secondary := &mock.Service{SynthesizeResult: []byte("secondary")}
	fb := NewVoiceFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	data, err := fb.Synthesize(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "secondary" {
		t.Errorf("data = %q, want secondary", data)
	}
}

func TestVoiceFallback_ClientErrorDoesNotFailOver(t *testing.T) {
	primary := &mock.Service{CloneVoiceErr: &voice.HTTPError{StatusCode: 400, Endpoint: "/upload_audio/"}}
	secondary := &mock.Service{CloneVoiceResult: &voice.CloneResult{VoiceID: "x"}}
	fb := NewVoiceFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	_, err := fb.CloneVoice(context.Background(), voice.CloneRequest{Name: "n", Audio: []byte("a")})
	if voice.StatusCode(err) != 400 {
		t.Fatalf("err = %v, want the 400 passed through", err)
	}
	if len(secondary.CloneVoiceCalls) != 0 {
		t.Error("secondary must not be tried for a client error")
	}
	if fb.Breaker(0).State() != StateClosed {
		t.Errorf("breaker = %v, want closed", fb.Breaker(0).State())
	}
}

func TestVoiceFallback_OpenBreakerSkipsServer(t *testing.T) {
	down := &voice.ServerError{Description: "refused", Err: errors.New("dial tcp")}
	primary := &mock.Service{ListVoicesErr: down, ValidateKeyErr: down}
	secondary := &mock.Service{ListVoicesResult: []voice.Voice{{ID: "a.pt"}}, ValidateKeyResult: true}
	fb := NewVoiceFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fb.AddFallback("secondary", secondary)

	for range 2 {
		if _, err := fb.ListVoices(context.Background()); err != nil {
			t.Fatalf("ListVoices: %v", err)
		}
	}
	if fb.Breaker(0).State() != StateOpen {
		t.Fatalf("primary breaker = %v, want open", fb.Breaker(0).State())
	}

	ok, err := fb.ValidateKey(context.Background())
	if err != nil || !ok {
		t.Fatalf("ValidateKey = %v, %v", ok, err)
	}
	if primary.ValidateKeyCalls != 0 {
		t.Errorf("primary ValidateKey called %d times with an open breaker", primary.ValidateKeyCalls)
	}
}

func TestVoiceFallback_AllDownKeepsTaxonomy(t *testing.T) {
	down := &voice.ServerError{Description: "refused", Err: errors.New("dial tcp")}
	fb := NewVoiceFallback(&mock.Service{SynthesizeErr: down}, "only", FallbackConfig{})

	_, err := fb.Synthesize(context.Background(), newRequest(t))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if voice.Classify(err) != voice.KindServer {
		t.Errorf("Classify = %v, want server_error", voice.Classify(err))
	}
}
