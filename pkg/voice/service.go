// Package voice defines the Service interface for the remote voice-cloning and
// text-to-speech backend, together with the request/response types and the
// error taxonomy shared by every implementation.
//
// A Service wraps an HTTP backend that can validate an API credential,
// synthesize speech from text with a named voice, list the voices it knows and
// create new voices from a recorded sample. Results are returned synchronously;
// callers that must not block run the call in a goroutine and cancel it through
// the context.
//
// Implementations must be safe for concurrent use.
package voice

import "context"

// Service is the abstraction over the remote voice backend.
//
// Every method returns exactly once with either a value or an error that
// [Classify] maps onto one of the [ErrorKind] values. Implementations perform no
// retries and no de-duplication of concurrent calls.
type Service interface {
	// ValidateKey asks the backend whether the configured credential is valid.
	// A backend answer of "invalid key" is a successful call that returns
	// (false, nil); only transport or protocol failures produce an error.
	ValidateKey(ctx context.Context) (bool, error)

	// Synthesize renders req to audio and returns the raw encoded bytes (WAV).
	Synthesize(ctx context.Context, req Request) ([]byte, error)

	// ListVoices returns the voices the backend can synthesize with.
	ListVoices(ctx context.Context) ([]Voice, error)

	// CloneVoice uploads a recorded sample and registers it as a new voice.
	// An empty sample returns an error rather than sending an empty upload.
	CloneVoice(ctx context.Context, req CloneRequest) (*CloneResult, error)
}
