package studio

import (
	"context"
	"fmt"

	"github.com/MrWong99/sheng/internal/observe"
	"github.com/MrWong99/sheng/internal/task"
	"github.com/MrWong99/sheng/pkg/voice"
)

// Synthesize turns text into WAV audio using the selected language and the
// studio's voice and speed; opts override them for this call only. It needs
// a validated key. Starting a synthesis cancels the one in flight, which then
// resolves with [ErrSuperseded].
func (s *Studio) Synthesize(ctx context.Context, text string, opts ...voice.RequestOption) *task.Task[[]byte] {
	return s.synthesize(ctx, text, false, opts)
}

// Speak is Synthesize followed by playback of the result.
func (s *Studio) Speak(ctx context.Context, text string, opts ...voice.RequestOption) *task.Task[[]byte] {
	return s.synthesize(ctx, text, true, opts)
}

// PreviewSample speaks the selected language's sample text.
func (s *Studio) PreviewSample(ctx context.Context, opts ...voice.RequestOption) *task.Task[[]byte] {
	p := s.selection.Selected()
	opts = append([]voice.RequestOption{voice.WithLanguage(p.Code)}, opts...)
	return s.synthesize(ctx, p.SampleText, true, opts)
}

func (s *Studio) synthesize(ctx context.Context, text string, play bool, opts []voice.RequestOption) *task.Task[[]byte] {
	s.mu.Lock()
	base := []voice.RequestOption{
		voice.WithVoice(s.voiceID),
		voice.WithLanguage(s.selection.Selected().Code),
		voice.WithSpeed(s.speed),
	}
	s.mu.Unlock()

	req, err := voice.NewRequest(text, append(base, opts...)...)
	if err != nil {
		return task.Done[[]byte](nil, fmt.Errorf("studio: synthesize: %w", err))
	}

	// The key check, the client and the new generation must come from the
	// same critical section so a concurrent SaveKey supersedes this call.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyStatus != KeyValid {
		return task.Done[[]byte](nil, ErrKeyNotValid)
	}
	svc := s.svc
	s.supersedeSynthLocked()
	gen := s.synthGen
	s.synthesizing = true
	s.lastErr = nil

	t := task.Go(ctx, func(ctx context.Context) (data []byte, err error) {
		ctx, span := observe.StartOperation(ctx, "synthesize",
			observe.AttrVoice.String(req.VoiceID()),
			observe.AttrLanguage.String(string(req.Language())),
		)
		defer func() { endOperation(span, err) }()

		data, err = svc.Synthesize(ctx, req)

		s.mu.Lock()
		if gen != s.synthGen {
			s.mu.Unlock()
			return nil, ErrSuperseded
		}
		s.synthesizing = false
		s.synthCancel = nil
		if err != nil {
			err = fmt.Errorf("studio: synthesize: %w", err)
			s.lastErr = err
			s.mu.Unlock()
			s.report(ctx, "synthesize", err)
			return nil, err
		}
		s.mu.Unlock()

		s.log.Debug("studio: synthesized speech",
			"bytes", len(data), "voice", req.VoiceID(), "language", req.Language())
		if play && s.player != nil {
			s.player.PlayFrom(data)
		}
		return data, nil
	})
	s.synthCancel = t.Cancel
	return t
}

// supersedeSynthLocked cancels the in-flight synthesis and invalidates its
// result. Callers hold s.mu.
func (s *Studio) supersedeSynthLocked() {
	if s.synthCancel != nil {
		s.synthCancel()
		s.synthCancel = nil
	}
	s.synthGen++
	s.synthesizing = false
}
