// Package mock provides in-memory mock implementations of the
// [audio.CaptureEngine] and [audio.PlaybackEngine] interfaces for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values. Asynchronous engine events
// are simulated with [Pipeline.Finish], [Pipeline.FailEncode] and
// [Track.Finish].
//
// Typical usage:
//
//	eng := &mock.CaptureEngine{PermissionResult: true, Content: []byte("m4a")}
//	rec := capture.New(eng, capture.WithDirectory(t.TempDir()))
//	take := rec.Start()
//	eng.LastPipeline().Finish(false)
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/sheng/pkg/audio"
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// CaptureEngine is a mock implementation of [audio.CaptureEngine].
// Set the exported fields before use; inspect the call counts after.
type CaptureEngine struct {
	mu sync.Mutex

	// PermissionResult and PermissionError are returned by RequestPermission.
	PermissionResult bool
	PermissionError  error

	// ActivateError and DeactivateError are returned by Activate and Deactivate.
	ActivateError   error
	DeactivateError error

	// NewPipelineError is returned by NewPipeline. When set, no pipeline is
	// created.
	NewPipelineError error

	// RecordError is returned by Record on every pipeline created afterwards.
	RecordError error

	// Content is written to the pipeline's file on its first Stop.
	Content []byte

	// CallCountPermission records how many times RequestPermission was called.
	CallCountPermission int

	// CallCountActivate records how many times Activate was called.
	CallCountActivate int

	// CallCountDeactivate records how many times Deactivate was called.
	CallCountDeactivate int

	// Pipelines holds every pipeline created, in order.
	Pipelines []*Pipeline
}

// RequestPermission implements [audio.CaptureEngine].
func (e *CaptureEngine) RequestPermission(_ context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountPermission++
	return e.PermissionResult, e.PermissionError
}

// Activate implements [audio.CaptureEngine].
func (e *CaptureEngine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountActivate++
	return e.ActivateError
}

// Deactivate implements [audio.CaptureEngine].
func (e *CaptureEngine) Deactivate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountDeactivate++
	return e.DeactivateError
}

// NewPipeline implements [audio.CaptureEngine]. The returned pipeline is
// appended to Pipelines.
func (e *CaptureEngine) NewPipeline(path string, format audio.CaptureFormat, events audio.CaptureEvents) (audio.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewPipelineError != nil {
		return nil, e.NewPipelineError
	}
	p := &Pipeline{
		Path:      path,
		Format:    format,
		events:    events,
		content:   append([]byte(nil), e.Content...),
		recordErr: e.RecordError,
	}
	e.Pipelines = append(e.Pipelines, p)
	return p, nil
}

// LastPipeline returns the most recently created pipeline, or nil.
func (e *CaptureEngine) LastPipeline() *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Pipelines) == 0 {
		return nil
	}
	return e.Pipelines[len(e.Pipelines)-1]
}

// PipelineCount returns the number of pipelines created so far.
func (e *CaptureEngine) PipelineCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Pipelines)
}

// Pipeline is a mock implementation of [audio.Pipeline] created by
// [CaptureEngine.NewPipeline].
type Pipeline struct {
	// Path and Format are the NewPipeline arguments.
	Path   string
	Format audio.CaptureFormat

	mu        sync.Mutex
	events    audio.CaptureEvents
	content   []byte
	recordErr error
	written   bool
	recording bool

	callCountRecord int
	callCountStop   int
}

// Record implements [audio.Pipeline].
func (p *Pipeline) Record() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callCountRecord++
	if p.recordErr != nil {
		return p.recordErr
	}
	p.recording = true
	return nil
}

// Stop implements [audio.Pipeline]. The first call writes the engine's
// Content to Path.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callCountStop++
	p.recording = false
	if p.written {
		return nil
	}
	p.written = true
	return os.WriteFile(p.Path, p.content, 0o600)
}

// Recording reports whether Record succeeded and Stop has not been called.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// StopCount returns how many times Stop was called.
func (p *Pipeline) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCountStop
}

// RecordCount returns how many times Record was called.
func (p *Pipeline) RecordCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCountRecord
}

// Finish simulates the encoder finishing on its own. A successful finish
// writes Content to Path first, like a real encoder closing its file.
func (p *Pipeline) Finish(success bool) {
	p.mu.Lock()
	p.recording = false
	if success && !p.written {
		p.written = true
		_ = os.WriteFile(p.Path, p.content, 0o600)
	}
	cb := p.events.Finished
	p.mu.Unlock()
	if cb != nil {
		cb(success)
	}
}

// FailEncode simulates an encoder error.
func (p *Pipeline) FailEncode(err error) {
	p.mu.Lock()
	cb := p.events.EncodeError
	p.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// PlaybackEngine is a mock implementation of [audio.PlaybackEngine].
type PlaybackEngine struct {
	mu sync.Mutex

	// ActivateError is returned by Activate.
	ActivateError error

	// OpenError is returned by Open. When set, no track is created.
	OpenError error

	// TrackDuration is the Duration of every track opened afterwards.
	TrackDuration time.Duration

	// CallCountActivate records how many times Activate was called.
	CallCountActivate int

	// OpenCalls records the data passed to each Open call.
	OpenCalls [][]byte

	// Tracks holds every track created, in order.
	Tracks []*Track
}

// Activate implements [audio.PlaybackEngine].
func (e *PlaybackEngine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CallCountActivate++
	return e.ActivateError
}

// Open implements [audio.PlaybackEngine].
func (e *PlaybackEngine) Open(data []byte, onFinish func(success bool)) (audio.Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OpenCalls = append(e.OpenCalls, append([]byte(nil), data...))
	if e.OpenError != nil {
		return nil, e.OpenError
	}
	t := &Track{duration: e.TrackDuration, onFinish: onFinish}
	e.Tracks = append(e.Tracks, t)
	return t, nil
}

// LastTrack returns the most recently opened track, or nil.
func (e *PlaybackEngine) LastTrack() *Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Tracks) == 0 {
		return nil
	}
	return e.Tracks[len(e.Tracks)-1]
}

// Track is a mock implementation of [audio.Track]. Its position only moves
// through [Track.SetPosition].
type Track struct {
	mu       sync.Mutex
	duration time.Duration
	position time.Duration
	playing  bool
	closed   bool
	onFinish func(bool)

	// PlayError and PauseError are returned by Play and Pause.
	PlayError  error
	PauseError error

	callCountPlay  int
	callCountPause int
	callCountStop  int
	callCountClose int
}

// Play implements [audio.Track].
func (t *Track) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callCountPlay++
	if t.PlayError != nil {
		return t.PlayError
	}
	t.playing = true
	return nil
}

// Pause implements [audio.Track].
func (t *Track) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callCountPause++
	if t.PauseError != nil {
		return t.PauseError
	}
	t.playing = false
	return nil
}

// Stop implements [audio.Track].
func (t *Track) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callCountStop++
	t.playing = false
	return nil
}

// Position implements [audio.Track].
func (t *Track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// Duration implements [audio.Track].
func (t *Track) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Close implements [audio.Track].
func (t *Track) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callCountClose++
	t.closed = true
	t.playing = false
	return nil
}

// SetPosition moves the playback head.
func (t *Track) SetPosition(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = d
}

// Finish simulates the track reaching its end (or failing to decode) and
// invokes the onFinish callback passed to Open.
func (t *Track) Finish(success bool) {
	t.mu.Lock()
	t.playing = false
	t.position = t.duration
	cb := t.onFinish
	t.mu.Unlock()
	if cb != nil {
		cb(success)
	}
}

// Playing reports whether Play succeeded more recently than Pause, Stop or
// Close.
func (t *Track) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Closed reports whether Close was called.
func (t *Track) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Counts returns how many times Play, Pause, Stop and Close were called.
func (t *Track) Counts() (play, pause, stop, closeCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callCountPlay, t.callCountPause, t.callCountStop, t.callCountClose
}

// Compile-time interface assertions.
var (
	_ audio.CaptureEngine  = (*CaptureEngine)(nil)
	_ audio.Pipeline       = (*Pipeline)(nil)
	_ audio.PlaybackEngine = (*PlaybackEngine)(nil)
	_ audio.Track          = (*Track)(nil)
)
