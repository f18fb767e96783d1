// Package capture implements a single-session microphone recorder on top of an
// [audio.CaptureEngine].
//
// A [Recorder] owns at most one active recording. Starting a new one first
// stops and flushes the previous take. While recording, a ticker advances the
// elapsed time in fixed steps. Stopping reads the encoded file back into
// memory. Engine failures never surface as errors from Start or Stop; they are
// logged and leave the recorder idle, and callers observe the outcome through
// [Recorder.IsRecording] and the [Take] returned by Start.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/sheng/pkg/audio"
)

// DefaultTickInterval is the step by which Elapsed advances while recording.
const DefaultTickInterval = 100 * time.Millisecond

// Recording is a snapshot of the recorder's session state.
type Recording struct {
	// Active reports whether the pipeline is currently recording.
	Active bool

	// Elapsed is the number of ticks observed multiplied by the tick interval.
	Elapsed time.Duration

	// OutputPath is the file the current or last take was written to.
	OutputPath string

	// Output holds the file contents after a clean stop. It is empty while
	// recording and when the file could not be read.
	Output []byte
}

// Ticker abstracts [time.Ticker] so tests can drive the elapsed timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

// Option configures a [Recorder].
type Option func(*Recorder)

// WithDirectory sets the directory recordings are written to. It is created
// on first use.
func WithDirectory(dir string) Option {
	return func(r *Recorder) { r.dir = dir }
}

// WithFormat sets the capture format. Defaults to [audio.DefaultCaptureFormat].
func WithFormat(f audio.CaptureFormat) Option {
	return func(r *Recorder) { r.format = f }
}

// WithTickInterval sets the elapsed-time step. Non-positive values are
// ignored.
func WithTickInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithTicker replaces the ticker factory.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(r *Recorder) { r.newTicker = fn }
}

// WithTickHook registers fn to be called with the new elapsed time after each
// tick. fn runs on the ticker goroutine and must not call back into the
// Recorder's Start or Stop.
func WithTickHook(fn func(elapsed time.Duration)) Option {
	return func(r *Recorder) { r.onTick = fn }
}

// WithStartHook registers fn to be called after a recording has started.
func WithStartHook(fn func(path string)) Option {
	return func(r *Recorder) { r.onStart = fn }
}

// WithFinalizeHook registers fn to be called once per take that actually
// started recording, after it has been finalized. ok mirrors [Take.Result].
func WithFinalizeHook(fn func(rec Recording, ok bool)) Option {
	return func(r *Recorder) { r.onFinalize = fn }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// Recorder is the audio capture session. All methods are safe for concurrent
// use; Start and Stop are serialised against each other.
type Recorder struct {
	engine    audio.CaptureEngine
	dir       string
	format    audio.CaptureFormat
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	log       *slog.Logger

	onTick     func(time.Duration)
	onStart    func(string)
	onFinalize func(Recording, bool)

	// opMu serialises Start and Stop. Engine callbacks never take it.
	opMu sync.Mutex

	mu         sync.Mutex
	permission bool
	recording  bool
	elapsed    time.Duration
	path       string
	file       string // written by the active pipeline; Reset leaves it alone
	output     []byte
	gen        uint64
	pipeline   audio.Pipeline
	stopTick   chan struct{}
	take       *Take
}

// New returns an idle Recorder driving engine.
func New(engine audio.CaptureEngine, opts ...Option) *Recorder {
	r := &Recorder{
		engine:    engine,
		dir:       filepath.Join(os.TempDir(), "sheng"),
		format:    audio.DefaultCaptureFormat,
		interval:  DefaultTickInterval,
		newTicker: newTimeTicker,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Directory returns the directory recordings are written to.
func (r *Recorder) Directory() string { return r.dir }

// RequestPermission asks the engine for microphone access once. Errors are
// logged and reported as a denial.
func (r *Recorder) RequestPermission(ctx context.Context) bool {
	granted, err := r.engine.RequestPermission(ctx)
	if err != nil {
		r.log.Warn("capture: permission request failed", "err", err)
		granted = false
	}
	r.mu.Lock()
	r.permission = granted
	r.mu.Unlock()
	return granted
}

// HasPermission reports the result of the last [Recorder.RequestPermission].
func (r *Recorder) HasPermission() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permission
}

// IsRecording reports whether a take is in progress.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Snapshot returns the current session state. Output is shared with the
// recorder and must not be modified.
func (r *Recorder) Snapshot() Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Recording{
		Active:     r.recording,
		Elapsed:    r.elapsed,
		OutputPath: r.path,
		Output:     r.output,
	}
}

// Start begins a new take. An active take is stopped and flushed first, and
// its [Take] completes with its own output. On failure the error is logged,
// IsRecording stays false and the returned Take is already complete with
// ok == false.
func (r *Recorder) Start() *Take {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.stopLocked()

	take := newTake()
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.elapsed, r.path, r.output = 0, "", nil
	r.take = take
	r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		r.log.Error("capture: failed to create recording directory", "dir", r.dir, "err", err)
		take.finish(Recording{}, false)
		return take
	}
	if err := r.engine.Activate(); err != nil {
		r.log.Error("capture: failed to activate audio session", "err", err)
		take.finish(Recording{}, false)
		return take
	}

	path := filepath.Join(r.dir, r.fileName())
	p, err := r.engine.NewPipeline(path, r.format, audio.CaptureEvents{
		Finished:    func(success bool) { r.handleFinished(gen, success) },
		EncodeError: func(err error) { r.handleEncodeError(gen, err) },
	})
	if err == nil {
		err = p.Record()
	}
	if err != nil {
		r.log.Error("capture: failed to start recording", "path", path, "err", err)
		if derr := r.engine.Deactivate(); derr != nil {
			r.log.Warn("capture: failed to deactivate audio session", "err", derr)
		}
		take.finish(Recording{}, false)
		return take
	}

	stop := make(chan struct{})
	ticker := r.newTicker(r.interval)

	r.mu.Lock()
	if r.gen != gen {
		// An engine event for this generation already tore it down.
		r.mu.Unlock()
		ticker.Stop()
		_ = p.Stop()
		if err := r.engine.Deactivate(); err != nil {
			r.log.Warn("capture: failed to deactivate audio session", "err", err)
		}
		take.finish(Recording{}, false)
		return take
	}
	r.recording = true
	r.path, r.file = path, path
	r.pipeline = p
	r.stopTick = stop
	r.mu.Unlock()

	go r.tickLoop(gen, ticker, stop)

	r.log.Debug("capture: recording started", "path", path)
	if r.onStart != nil {
		r.onStart(path)
	}
	return take
}

// Stop ends the active take, reads the file back into memory and releases
// the audio session. Stop is a no-op when idle.
func (r *Recorder) Stop() {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	r.stopLocked()
}

func (r *Recorder) stopLocked() {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	r.finalize(gen, true)
}

// Reset clears elapsed time, output path and buffer. It does not stop an
// active take; a later Stop still reads back the file being written.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elapsed, r.path, r.output = 0, "", nil
}

// finalize performs a clean stop of generation gen. Only the first caller
// for a given take does any work.
func (r *Recorder) finalize(gen uint64, stopPipeline bool) {
	r.mu.Lock()
	if gen != r.gen || !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	close(r.stopTick)
	p, path, take, elapsed := r.pipeline, r.file, r.take, r.elapsed
	r.pipeline, r.file = nil, ""
	r.mu.Unlock()

	if stopPipeline {
		if err := p.Stop(); err != nil {
			r.log.Warn("capture: pipeline stop failed", "path", path, "err", err)
		}
	}

	data, err := os.ReadFile(path)
	ok := err == nil
	if err != nil {
		r.log.Error("capture: failed to read recording", "path", path, "err", err)
		data = nil
	}

	if err := r.engine.Deactivate(); err != nil {
		r.log.Warn("capture: failed to deactivate audio session", "err", err)
	}

	r.mu.Lock()
	if gen == r.gen {
		r.path, r.output = path, data
	}
	r.mu.Unlock()

	rec := Recording{Elapsed: elapsed, OutputPath: path, Output: data}
	take.finish(rec, ok)
	r.log.Debug("capture: recording finalized", "path", path, "elapsed", elapsed, "bytes", len(data))
	if r.onFinalize != nil {
		r.onFinalize(rec, ok)
	}
}

// abort tears generation gen down without reading its file and clears the
// session state. Later events for gen are ignored.
func (r *Recorder) abort(gen uint64, stopPipeline bool) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.gen++
	wasRecording := r.recording
	if wasRecording {
		r.recording = false
		close(r.stopTick)
	}
	p, path, take, elapsed := r.pipeline, r.file, r.take, r.elapsed
	r.pipeline, r.file = nil, ""
	r.elapsed, r.path, r.output = 0, "", nil
	r.mu.Unlock()

	if stopPipeline && p != nil {
		if err := p.Stop(); err != nil {
			r.log.Warn("capture: pipeline stop failed", "err", err)
		}
	}
	if !wasRecording {
		return
	}
	if err := r.engine.Deactivate(); err != nil {
		r.log.Warn("capture: failed to deactivate audio session", "err", err)
	}
	rec := Recording{Elapsed: elapsed, OutputPath: path}
	take.finish(rec, false)
	if r.onFinalize != nil {
		r.onFinalize(rec, false)
	}
}

func (r *Recorder) handleFinished(gen uint64, success bool) {
	if success {
		// Only does anything if the engine ended the take on its own.
		r.finalize(gen, false)
		return
	}
	r.log.Warn("capture: recording finished unsuccessfully")
	r.abort(gen, false)
}

func (r *Recorder) handleEncodeError(gen uint64, err error) {
	r.log.Error("capture: encode error", "err", err)
	r.abort(gen, true)
}

func (r *Recorder) tickLoop(gen uint64, t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			r.tick(gen)
		}
	}
}

func (r *Recorder) tick(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || !r.recording {
		r.mu.Unlock()
		return
	}
	r.elapsed += r.interval
	elapsed := r.elapsed
	r.mu.Unlock()
	if r.onTick != nil {
		r.onTick(elapsed)
	}
}

// fileName returns a per-take unique name such as
// "recording_1760870400000000000_5f0c….m4a".
func (r *Recorder) fileName() string {
	return fmt.Sprintf("recording_%d_%s%s", r.now().UnixNano(), uuid.NewString(), r.format.Extension())
}
