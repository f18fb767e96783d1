// Package audio defines the engine contracts and shared helpers for recording
// and playing voice audio in sheng.
//
// The two engine abstractions are:
//
//   - [CaptureEngine] owns the OS audio session and microphone permission and
//     builds a [Pipeline] that encodes microphone input into a file.
//   - [PlaybackEngine] decodes an in-memory buffer into a [Track] that can be
//     played, paused and stopped.
//
// The stateful sessions built on top of these contracts live in audio/capture
// and audio/playback. Concrete engines are provided by adapter packages
// (audio/command drives external tools such as ffmpeg and ffplay). The
// contracts stay narrow so that sessions can be tested against audio/mock.
//
// This package lives under pkg/ because third-party code is expected to
// implement [CaptureEngine] and [PlaybackEngine] for other platforms.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by engines that refuse to build a pipeline
// without microphone permission.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// Codec identifies the encoding written by a capture pipeline.
type Codec string

const (
	// CodecAAC is MPEG-4 AAC in an .m4a container.
	CodecAAC Codec = "aac"

	// CodecPCM is 16-bit little-endian PCM in a RIFF/WAVE container.
	CodecPCM Codec = "pcm"
)

// Quality is the encoder quality hint for lossy codecs.
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

// Bitrate returns the target encoder bitrate in bits per second for a lossy
// mono voice stream.
func (q Quality) Bitrate() int {
	switch q {
	case QualityLow:
		return 64_000
	case QualityMedium:
		return 128_000
	default:
		return 192_000
	}
}

// CaptureFormat describes the file a capture pipeline writes.
type CaptureFormat struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono.
	Channels int

	// Codec selects the encoder.
	Codec Codec

	// Quality is ignored for [CodecPCM].
	Quality Quality
}

// Bitrate returns the encoder bitrate in bits per second. For [CodecPCM] it
// is the fixed rate implied by 16-bit samples.
func (f CaptureFormat) Bitrate() int {
	if f.Codec == CodecPCM {
		return f.SampleRate * f.Channels * 16
	}
	return f.Quality.Bitrate()
}

// Extension returns the file extension, including the dot, for the format's
// container.
func (f CaptureFormat) Extension() string {
	if f.Codec == CodecPCM {
		return ".wav"
	}
	return ".m4a"
}

// Predefined capture formats.
var (
	// DefaultCaptureFormat is 44.1 kHz mono AAC at high quality.
	DefaultCaptureFormat = CaptureFormat{SampleRate: 44100, Channels: 1, Codec: CodecAAC, Quality: QualityHigh}

	// WAVCaptureFormat is 44.1 kHz mono 16-bit PCM.
	WAVCaptureFormat = CaptureFormat{SampleRate: 44100, Channels: 1, Codec: CodecPCM}
)

// CaptureEvents are the callbacks a [Pipeline] invokes asynchronously. Either
// field may be nil. Callbacks may arrive on any goroutine, including after
// [Pipeline.Stop] returned.
type CaptureEvents struct {
	// Finished is called once when the pipeline stops writing. success is false
	// when the encoder did not produce a complete file.
	Finished func(success bool)

	// EncodeError is called when the encoder fails mid-recording.
	EncodeError func(err error)
}

// Pipeline records microphone input into the file it was created for.
type Pipeline interface {
	// Record starts writing. It returns an error if recording could not begin.
	Record() error

	// Stop halts recording and flushes the file. Stop is idempotent.
	Stop() error
}

// CaptureEngine is the platform side of audio capture.
//
// Implementations must be safe for concurrent use.
type CaptureEngine interface {
	// RequestPermission asks the platform for microphone access once and
	// reports whether it was granted.
	RequestPermission(ctx context.Context) (bool, error)

	// Activate configures and activates the platform audio session for
	// simultaneous play and record.
	Activate() error

	// Deactivate releases the platform audio session.
	Deactivate() error

	// NewPipeline prepares a pipeline that will write to path in format.
	NewPipeline(path string, format CaptureFormat, events CaptureEvents) (Pipeline, error)
}

// Track is a decoded audio buffer bound to the output device.
type Track interface {
	// Play starts or resumes playback.
	Play() error

	// Pause suspends playback, keeping the position.
	Pause() error

	// Stop halts playback. The engine does not report a completion for a
	// track that was stopped.
	Stop() error

	// Position is the current playback offset.
	Position() time.Duration

	// Duration is the total length of the track.
	Duration() time.Duration

	// Close releases the track. Close is idempotent.
	Close() error
}

// PlaybackEngine is the platform side of audio playback.
//
// Implementations must be safe for concurrent use.
type PlaybackEngine interface {
	// Activate configures and activates the platform audio session for
	// playback.
	Activate() error

	// Open decodes data into a new [Track]. onFinish is called once when the
	// track reaches its end or the decoder fails.
	Open(data []byte, onFinish func(success bool)) (Track, error)
}
