package voice

import (
	"errors"
	"fmt"
)

// Sentinel errors of the voice service taxonomy. Implementations wrap them with
// context; match with [errors.Is].
var (
	// ErrInvalidURL means the configured base URL could not be turned into a
	// request URL. It is reported before any network attempt.
	ErrInvalidURL = errors.New("voice: invalid URL")

	// ErrInvalidResponse means the transport returned no usable response object
	// or the response body could not be read.
	ErrInvalidResponse = errors.New("voice: invalid response")

	// ErrEncoding means the request body could not be serialised.
	ErrEncoding = errors.New("voice: request encoding failed")

	// ErrDecoding means a JSON response body could not be decoded.
	ErrDecoding = errors.New("voice: response decoding failed")
)

// HTTPError is returned when the backend answers with a status code the
// operation does not accept.
type HTTPError struct {
	// StatusCode is the HTTP status returned by the backend.
	StatusCode int

	// Endpoint is the request path, e.g. "/tts".
	Endpoint string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("voice: %s returned status %d", e.Endpoint, e.StatusCode)
}

// ServerError is returned when the request never produced an HTTP response:
// connection refused, DNS failure, timeout or cancellation.
type ServerError struct {
	// Description is a human-readable summary of the failure.
	Description string

	// Err is the underlying transport error.
	Err error
}

func (e *ServerError) Error() string {
	return "voice: server error: " + e.Description
}

func (e *ServerError) Unwrap() error { return e.Err }

// ErrorKind is the coarse classification of a voice service error.
type ErrorKind int

const (
	// KindNone is reported for a nil error.
	KindNone ErrorKind = iota
	KindInvalidURL
	KindInvalidResponse
	KindHTTP
	KindServer
	KindEncoding
	KindDecoding
	// KindUnknown is reported for errors outside the taxonomy.
	KindUnknown
)

// String returns the taxonomy name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidURL:
		return "invalid_url"
	case KindInvalidResponse:
		return "invalid_response"
	case KindHTTP:
		return "http_error"
	case KindServer:
		return "server_error"
	case KindEncoding:
		return "encoding_error"
	case KindDecoding:
		return "decoding_error"
	default:
		return "unknown"
	}
}

// Classify maps err onto the taxonomy so that callers can branch on the kind
// without a chain of errors.Is/As checks.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var httpErr *HTTPError
	var srvErr *ServerError
	switch {
	case errors.Is(err, ErrInvalidURL):
		return KindInvalidURL
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	case errors.Is(err, ErrEncoding):
		return KindEncoding
	case errors.Is(err, ErrDecoding):
		return KindDecoding
	case errors.As(err, &httpErr):
		return KindHTTP
	case errors.As(err, &srvErr):
		return KindServer
	}
	return KindUnknown
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an
// [HTTPError].
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
