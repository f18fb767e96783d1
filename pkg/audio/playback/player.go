// Package playback implements a single-track audio player on top of an
// [audio.PlaybackEngine].
//
// A [Player] binds at most one track at a time. Loading new audio releases
// the previous track. Engine failures are logged and leave the player without
// a track; callers observe the outcome through [Player.State].
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/sheng/pkg/audio"
)

// State is a snapshot of the player.
type State struct {
	// Playing reports whether the bound track is currently playing.
	Playing bool

	// Position is the playback offset. It is zero after a stop or a
	// completion.
	Position time.Duration

	// Duration is the length of the bound track.
	Duration time.Duration

	// Available reports whether a track is bound.
	Available bool
}

// Option configures a [Player].
type Option func(*Player)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.log = l }
}

// WithCompletionHook registers fn to be called each time a track plays to its
// end or the engine reports a decode failure.
func WithCompletionHook(fn func(success bool)) Option {
	return func(p *Player) { p.onComplete = fn }
}

// WithPlayingHook registers fn to be called whenever the Playing flag changes.
func WithPlayingHook(fn func(playing bool)) Option {
	return func(p *Player) { p.onPlaying = fn }
}

// Player is the audio playback session. All methods are safe for concurrent
// use.
type Player struct {
	engine audio.PlaybackEngine
	log    *slog.Logger

	onComplete func(bool)
	onPlaying  func(bool)

	// opMu serialises the public operations. Engine callbacks never take it.
	opMu sync.Mutex

	mu       sync.Mutex
	track    audio.Track
	gen      uint64
	playing  bool
	position time.Duration
	duration time.Duration
	done     chan struct{}
}

// New returns a Player with no track bound.
func New(engine audio.PlaybackEngine, opts ...Option) *Player {
	p := &Player{engine: engine, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Load binds data as the current track, replacing and releasing any previous
// one. It reports whether a track is now bound; failures are logged.
func (p *Player) Load(data []byte) bool {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.loadLocked(data)
}

func (p *Player) loadLocked(data []byte) bool {
	p.releaseLocked()

	if err := p.engine.Activate(); err != nil {
		p.log.Warn("playback: failed to activate audio session", "err", err)
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	track, err := p.engine.Open(data, func(success bool) { p.handleFinish(gen, success) })
	if err != nil {
		p.log.Error("playback: failed to open audio", "bytes", len(data), "err", err)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		_ = track.Close()
		return false
	}
	p.track = track
	p.duration = track.Duration()
	p.position = 0
	return true
}

// PlayFrom loads data and starts playing it. The returned channel behaves as
// for [Player.Play].
func (p *Player) PlayFrom(data []byte) <-chan struct{} {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	if !p.loadLocked(data) {
		return closedChan()
	}
	return p.playLocked()
}

// Play starts or resumes the bound track. The returned channel is closed
// once, when the track finishes, is stopped, or is replaced. It is already
// closed when no track is bound or the engine refused to play.
func (p *Player) Play() <-chan struct{} {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.playLocked()
}

func (p *Player) playLocked() <-chan struct{} {
	p.mu.Lock()
	track := p.track
	p.mu.Unlock()
	if track == nil {
		return closedChan()
	}

	if err := track.Play(); err != nil {
		p.log.Error("playback: failed to play", "err", err)
		return closedChan()
	}

	p.mu.Lock()
	if p.track != track {
		p.mu.Unlock()
		return closedChan()
	}
	if p.done == nil {
		p.done = make(chan struct{})
	}
	done := p.done
	changed := p.setPlaying(true)
	p.mu.Unlock()

	p.notifyPlaying(changed, true)
	return done
}

// Pause suspends playback and keeps the position.
func (p *Player) Pause() {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	track := p.track
	p.mu.Unlock()
	if track == nil {
		return
	}
	if err := track.Pause(); err != nil {
		p.log.Warn("playback: failed to pause", "err", err)
		return
	}

	p.mu.Lock()
	if p.track != track {
		p.mu.Unlock()
		return
	}
	p.position = track.Position()
	changed := p.setPlaying(false)
	p.mu.Unlock()
	p.notifyPlaying(changed, false)
}

// Stop halts playback and rewinds to the start.
func (p *Player) Stop() {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.mu.Lock()
	track := p.track
	p.mu.Unlock()
	if track == nil {
		return
	}
	if err := track.Stop(); err != nil {
		p.log.Warn("playback: failed to stop", "err", err)
	}

	p.mu.Lock()
	p.position = 0
	changed := p.setPlaying(false)
	p.endLifecycle()
	p.mu.Unlock()
	p.notifyPlaying(changed, false)
}

// Toggle pauses when playing and plays otherwise.
func (p *Player) Toggle() {
	if p.State().Playing {
		p.Pause()
		return
	}
	p.Play()
}

// Close stops and releases the bound track.
func (p *Player) Close() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.releaseLocked()
}

// IsAudioAvailable reports whether a track is bound.
func (p *Player) IsAudioAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track != nil
}

// State returns a snapshot of the player. While playing, Position is read
// from the track.
func (p *Player) State() State {
	p.mu.Lock()
	track, playing := p.track, p.playing
	s := State{
		Playing:   playing,
		Position:  p.position,
		Duration:  p.duration,
		Available: track != nil,
	}
	p.mu.Unlock()
	if playing && track != nil {
		s.Position = track.Position()
	}
	return s
}

func (p *Player) releaseLocked() {
	p.mu.Lock()
	track := p.track
	p.track = nil
	p.gen++
	p.position, p.duration = 0, 0
	changed := p.setPlaying(false)
	p.endLifecycle()
	p.mu.Unlock()

	p.notifyPlaying(changed, false)
	if track == nil {
		return
	}
	if err := track.Stop(); err != nil {
		p.log.Warn("playback: failed to stop previous track", "err", err)
	}
	if err := track.Close(); err != nil {
		p.log.Warn("playback: failed to release previous track", "err", err)
	}
}

func (p *Player) handleFinish(gen uint64, success bool) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.position = 0
	changed := p.setPlaying(false)
	p.endLifecycle()
	p.mu.Unlock()

	if !success {
		p.log.Warn("playback: track finished unsuccessfully")
	}
	p.notifyPlaying(changed, false)
	if p.onComplete != nil {
		p.onComplete(success)
	}
}

// setPlaying updates the flag and reports whether it changed. Callers hold mu.
func (p *Player) setPlaying(v bool) bool {
	changed := p.playing != v
	p.playing = v
	return changed
}

// endLifecycle closes the current completion channel. Callers hold mu.
func (p *Player) endLifecycle() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}

func (p *Player) notifyPlaying(changed, playing bool) {
	if changed && p.onPlaying != nil {
		p.onPlaying(playing)
	}
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
