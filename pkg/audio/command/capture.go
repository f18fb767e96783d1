package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/MrWong99/sheng/pkg/audio"
)

// CaptureOption configures a [CaptureEngine].
type CaptureOption func(*CaptureEngine)

// WithCaptureCommand overrides [DefaultCaptureCommand].
func WithCaptureCommand(argv []string) CaptureOption {
	return func(e *CaptureEngine) { e.argv = append([]string(nil), argv...) }
}

// WithStopTimeout overrides [DefaultStopTimeout].
func WithStopTimeout(d time.Duration) CaptureOption {
	return func(e *CaptureEngine) {
		if d > 0 {
			e.stopTimeout = d
		}
	}
}

// CaptureEngine records by running an external encoder per take.
type CaptureEngine struct {
	argv        []string
	stopTimeout time.Duration
}

// NewCaptureEngine returns a CaptureEngine using [DefaultCaptureCommand]
// unless overridden.
func NewCaptureEngine(opts ...CaptureOption) *CaptureEngine {
	e := &CaptureEngine{
		argv:        append([]string(nil), DefaultCaptureCommand...),
		stopTimeout: DefaultStopTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RequestPermission reports whether the encoder program is installed. Access
// to the input device itself is decided by the operating system when the
// encoder opens it.
func (e *CaptureEngine) RequestPermission(_ context.Context) (bool, error) {
	if err := lookPath(e.argv); err != nil {
		return false, err
	}
	return true, nil
}

// Activate is a no-op; the encoder opens the device itself.
func (e *CaptureEngine) Activate() error { return nil }

// Deactivate is a no-op.
func (e *CaptureEngine) Deactivate() error { return nil }

// NewPipeline implements [audio.CaptureEngine].
func (e *CaptureEngine) NewPipeline(path string, format audio.CaptureFormat, events audio.CaptureEvents) (audio.Pipeline, error) {
	if len(e.argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return &capturePipeline{
		argv:        expand(e.argv, captureVars(path, format)),
		events:      events,
		stopTimeout: e.stopTimeout,
	}, nil
}

type capturePipeline struct {
	argv        []string
	events      audio.CaptureEvents
	stopTimeout time.Duration

	mu       sync.Mutex
	cmd      *exec.Cmd
	exited   chan struct{}
	stopping bool
	stopped  bool
}

func (p *capturePipeline) Record() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return errors.New("command: pipeline already recording")
	}
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("command: start %s: %w", p.argv[0], err)
	}
	p.cmd = cmd
	p.exited = make(chan struct{})
	go p.wait(cmd, p.exited)
	return nil
}

func (p *capturePipeline) wait(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)

	p.mu.Lock()
	requested := p.stopping
	p.mu.Unlock()

	switch {
	case requested:
		// Encoders exit non-zero on an interrupt even after a clean flush.
		p.fire(true, nil)
	case err != nil:
		slog.Warn("command: encoder exited unexpectedly", "program", p.argv[0], "err", err)
		p.fire(false, err)
	default:
		p.fire(true, nil)
	}
}

func (p *capturePipeline) fire(success bool, encodeErr error) {
	if encodeErr != nil && p.events.EncodeError != nil {
		p.events.EncodeError(fmt.Errorf("command: %s: %w", p.argv[0], encodeErr))
		return
	}
	if p.events.Finished != nil {
		p.events.Finished(success)
	}
}

func (p *capturePipeline) Stop() error {
	p.mu.Lock()
	if p.stopped || p.cmd == nil {
		p.stopped = true
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.stopping = true
	cmd, exited := p.cmd, p.exited
	p.mu.Unlock()

	// A failed interrupt usually means the process is already gone; the
	// timeout below covers the other cases.
	if err := interruptGroup(cmd); err != nil {
		slog.Debug("command: interrupt failed", "program", p.argv[0], "err", err)
	}

	select {
	case <-exited:
		return nil
	case <-time.After(p.stopTimeout):
		_ = killGroup(cmd)
		<-exited
		return fmt.Errorf("command: %s did not exit within %s", p.argv[0], p.stopTimeout)
	}
}
