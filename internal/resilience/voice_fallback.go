package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/sheng/pkg/voice"
)

// IsServerFailure reports whether err says the voice server is unhealthy:
// no response, an unusable response or a 5xx status. Cancellation by the
// caller and 4xx answers are not server failures.
func IsServerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch voice.Classify(err) {
	case voice.KindServer, voice.KindInvalidResponse:
		return true
	case voice.KindHTTP:
		return voice.StatusCode(err) >= 500
	}
	return false
}

// VoiceFallback implements [voice.Service] across several servers, each
// behind its own circuit breaker. Server failures move on to the next server;
// any other error is returned straight away.
type VoiceFallback struct {
	group *FallbackGroup[voice.Service]
}

var _ voice.Service = (*VoiceFallback)(nil)

// NewVoiceFallback creates a [VoiceFallback] preferring primary. A nil
// cfg.CircuitBreaker.IsFailure defaults to [IsServerFailure].
func NewVoiceFallback(primary voice.Service, primaryName string, cfg FallbackConfig) *VoiceFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = IsServerFailure
	}
	return &VoiceFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another server, tried after the ones added before.
func (f *VoiceFallback) AddFallback(name string, svc voice.Service) {
	f.group.AddFallback(name, svc)
}

// Breaker returns the breaker of server i, in registration order.
func (f *VoiceFallback) Breaker(i int) *CircuitBreaker { return f.group.Breaker(i) }

// ValidateKey asks the first healthy server.
func (f *VoiceFallback) ValidateKey(ctx context.Context) (bool, error) {
	return ExecuteWithResult(f.group, func(s voice.Service) (bool, error) {
		return s.ValidateKey(ctx)
	})
}

// Synthesize renders req on the first healthy server.
func (f *VoiceFallback) Synthesize(ctx context.Context, req voice.Request) ([]byte, error) {
	return ExecuteWithResult(f.group, func(s voice.Service) ([]byte, error) {
		return s.Synthesize(ctx, req)
	})
}

// ListVoices lists the voices of the first healthy server.
func (f *VoiceFallback) ListVoices(ctx context.Context) ([]voice.Voice, error) {
	return ExecuteWithResult(f.group, func(s voice.Service) ([]voice.Voice, error) {
		return s.ListVoices(ctx)
	})
}

// CloneVoice registers the sample on the first healthy server. Voices are not
// replicated between servers.
func (f *VoiceFallback) CloneVoice(ctx context.Context, req voice.CloneRequest) (*voice.CloneResult, error) {
	return ExecuteWithResult(f.group, func(s voice.Service) (*voice.CloneResult, error) {
		return s.CloneVoice(ctx, req)
	})
}
