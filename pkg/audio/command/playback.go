package command

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/MrWong99/sheng/pkg/audio"
)

// PlaybackOption configures a [PlaybackEngine].
type PlaybackOption func(*PlaybackEngine)

// WithPlaybackCommand overrides [DefaultPlaybackCommand].
func WithPlaybackCommand(argv []string) PlaybackOption {
	return func(e *PlaybackEngine) { e.argv = append([]string(nil), argv...) }
}

// WithTempDir sets where decoded buffers are spooled for the player. Defaults
// to [os.TempDir].
func WithTempDir(dir string) PlaybackOption {
	return func(e *PlaybackEngine) { e.tempDir = dir }
}

// PlaybackEngine plays buffers by spooling them to a temporary file and
// running an external player on it.
type PlaybackEngine struct {
	argv    []string
	tempDir string
}

// NewPlaybackEngine returns a PlaybackEngine using [DefaultPlaybackCommand]
// unless overridden.
func NewPlaybackEngine(opts ...PlaybackOption) *PlaybackEngine {
	e := &PlaybackEngine{argv: append([]string(nil), DefaultPlaybackCommand...)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Activate checks that the player program is installed.
func (e *PlaybackEngine) Activate() error {
	return lookPath(e.argv)
}

// Open implements [audio.PlaybackEngine]. WAV buffers are validated and their
// duration is taken from the header; other containers report a zero duration.
func (e *PlaybackEngine) Open(data []byte, onFinish func(success bool)) (audio.Track, error) {
	if len(e.argv) == 0 {
		return nil, ErrEmptyCommand
	}
	if len(data) == 0 {
		return nil, errors.New("command: empty audio buffer")
	}

	ext := ".m4a"
	var duration time.Duration
	if audio.IsWAV(data) {
		info, err := audio.ParseWAV(data)
		if err != nil {
			return nil, err
		}
		duration = info.Duration()
		ext = ".wav"
	}

	f, err := os.CreateTemp(e.tempDir, "sheng-play-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("command: spool audio: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("command: spool audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("command: spool audio: %w", err)
	}

	return &track{
		argv:     expand(e.argv, map[string]string{"input": f.Name()}),
		path:     f.Name(),
		duration: duration,
		onFinish: onFinish,
		now:      time.Now,
	}, nil
}

type track struct {
	argv     []string
	path     string
	duration time.Duration
	onFinish func(bool)
	now      func() time.Time

	mu       sync.Mutex
	cmd      *exec.Cmd
	exited   chan struct{}
	paused   bool
	closed   bool
	played   time.Duration // accumulated before the current resume
	resumed  time.Time
	stopping bool
}

func (t *track) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("command: track closed")
	}
	if t.cmd != nil {
		if !t.paused {
			return nil
		}
		if err := resumeGroup(t.cmd); err != nil {
			return fmt.Errorf("command: resume %s: %w", t.argv[0], err)
		}
		t.paused = false
		t.resumed = t.now()
		return nil
	}

	cmd := exec.Command(t.argv[0], t.argv[1:]...)
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("command: start %s: %w", t.argv[0], err)
	}
	t.cmd = cmd
	t.exited = make(chan struct{})
	t.paused = false
	t.stopping = false
	t.played = 0
	t.resumed = t.now()
	go t.wait(cmd, t.exited)
	return nil
}

func (t *track) wait(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)

	t.mu.Lock()
	requested := t.stopping
	if t.cmd == cmd {
		t.cmd = nil
		t.paused = false
		t.played = 0
	}
	t.mu.Unlock()

	if requested {
		return
	}
	if err != nil {
		slog.Warn("command: player exited with error", "program", t.argv[0], "err", err)
	}
	if t.onFinish != nil {
		t.onFinish(err == nil)
	}
}

func (t *track) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.paused {
		return nil
	}
	if err := suspendGroup(t.cmd); err != nil {
		return fmt.Errorf("command: pause %s: %w", t.argv[0], err)
	}
	t.played += t.now().Sub(t.resumed)
	t.paused = true
	return nil
}

func (t *track) Stop() error {
	t.mu.Lock()
	cmd, exited := t.cmd, t.exited
	if cmd == nil {
		t.mu.Unlock()
		return nil
	}
	t.stopping = true
	t.mu.Unlock()

	// SIGKILL also ends a suspended group. A kill error is expected when the
	// player exited on its own in the meantime.
	if err := killGroup(cmd); err != nil {
		select {
		case <-exited:
		case <-time.After(time.Second):
			return fmt.Errorf("command: stop %s: %w", t.argv[0], err)
		}
	} else {
		<-exited
	}

	t.mu.Lock()
	if t.cmd == cmd {
		t.cmd = nil
	}
	t.paused = false
	t.played = 0
	t.mu.Unlock()
	return nil
}

func (t *track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil {
		return 0
	}
	pos := t.played
	if !t.paused {
		pos += t.now().Sub(t.resumed)
	}
	if t.duration > 0 && pos > t.duration {
		pos = t.duration
	}
	return pos
}

func (t *track) Duration() time.Duration { return t.duration }

func (t *track) Close() error {
	if err := t.Stop(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("command: remove spool file: %w", err)
	}
	return nil
}
