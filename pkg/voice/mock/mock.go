// Package mock provides a test double for the voice.Service interface.
//
// Set the exported result fields to control what each method returns and
// inspect the call records afterwards. Setting a Block channel makes the
// matching method wait until the channel is closed or the context ends, which
// lets tests hold a call in flight.
//
// Example:
//
//	svc := &mock.Service{
//	    ValidateKeyResult: true,
//	    SynthesizeResult:  []byte("RIFF..."),
//	}
//	ok, _ := svc.ValidateKey(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sheng/pkg/voice"
)

// CloneVoiceCall records a single invocation of CloneVoice.
type CloneVoiceCall struct {
	// Request is a copy of the clone request, with its own Audio slice.
	Request voice.CloneRequest
}

// Service is a mock implementation of voice.Service.
type Service struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ValidateKeyResult and ValidateKeyErr are returned by ValidateKey.
	ValidateKeyResult bool
	ValidateKeyErr    error

	// SynthesizeResult and SynthesizeErr are returned by Synthesize.
	SynthesizeResult []byte
	SynthesizeErr    error

	// SynthesizeFunc, if set, computes the Synthesize result instead of the
	// fields above.
	SynthesizeFunc func(ctx context.Context, req voice.Request) ([]byte, error)

	// ListVoicesResult and ListVoicesErr are returned by ListVoices.
	ListVoicesResult []voice.Voice
	ListVoicesErr    error

	// CloneVoiceResult and CloneVoiceErr are returned by CloneVoice.
	CloneVoiceResult *voice.CloneResult
	CloneVoiceErr    error

	// ValidateBlock and SynthesizeBlock, if non-nil, hold the call until the
	// channel is closed. A context that ends first yields a
	// *voice.ServerError wrapping ctx.Err().
	ValidateBlock   chan struct{}
	SynthesizeBlock chan struct{}

	// --- Call records ---

	ValidateKeyCalls int
	SynthesizeCalls  []voice.Request
	ListVoicesCalls  int
	CloneVoiceCalls  []CloneVoiceCall
}

// ValidateKey records the call and returns ValidateKeyResult, ValidateKeyErr.
func (s *Service) ValidateKey(ctx context.Context) (bool, error) {
	s.mu.Lock()
	s.ValidateKeyCalls++
	block := s.ValidateBlock
	s.mu.Unlock()

	if err := wait(ctx, block); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ValidateKeyResult, s.ValidateKeyErr
}

// Synthesize records the call and returns SynthesizeResult, SynthesizeErr, or
// the result of SynthesizeFunc when set.
func (s *Service) Synthesize(ctx context.Context, req voice.Request) ([]byte, error) {
	s.mu.Lock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, req)
	block := s.SynthesizeBlock
	fn := s.SynthesizeFunc
	s.mu.Unlock()

	if err := wait(ctx, block); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SynthesizeResult, s.SynthesizeErr
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (s *Service) ListVoices(_ context.Context) ([]voice.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListVoicesCalls++
	return s.ListVoicesResult, s.ListVoicesErr
}

// CloneVoice records the call and returns CloneVoiceResult, CloneVoiceErr.
func (s *Service) CloneVoice(_ context.Context, req voice.CloneRequest) (*voice.CloneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.Audio = append([]byte(nil), req.Audio...)
	s.CloneVoiceCalls = append(s.CloneVoiceCalls, CloneVoiceCall{Request: req})
	return s.CloneVoiceResult, s.CloneVoiceErr
}

// SynthesizeCallCount returns the number of Synthesize calls. Thread-safe.
func (s *Service) SynthesizeCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ValidateKeyCalls = 0
	s.SynthesizeCalls = nil
	s.ListVoicesCalls = 0
	s.CloneVoiceCalls = nil
}

func wait(ctx context.Context, block <-chan struct{}) error {
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return &voice.ServerError{Description: ctx.Err().Error(), Err: ctx.Err()}
	}
}

// Ensure Service implements voice.Service at compile time.
var _ voice.Service = (*Service)(nil)
