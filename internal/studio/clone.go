package studio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MrWong99/sheng/internal/observe"
	"github.com/MrWong99/sheng/internal/task"
	"github.com/MrWong99/sheng/pkg/audio"
	"github.com/MrWong99/sheng/pkg/voice"
)

// CloneVoice uploads the recorder's last finished take as a new voice named
// name, spoken in the selected language. WAV takes are converted to the
// configured clone format first.
func (s *Studio) CloneVoice(ctx context.Context, name string) *task.Task[*voice.CloneResult] {
	name = strings.TrimSpace(name)
	if name == "" {
		return task.Done[*voice.CloneResult](nil, ErrEmptyName)
	}
	if s.recorder == nil {
		return task.Done[*voice.CloneResult](nil, ErrNoRecording)
	}
	rec := s.recorder.Snapshot()
	if rec.Active || len(rec.Output) == 0 {
		return task.Done[*voice.CloneResult](nil, ErrNoRecording)
	}

	sample := rec.Output
	if audio.IsWAV(sample) {
		var err error
		if sample, err = audio.NormalizeWAV(sample, s.cloneFormat); err != nil {
			return task.Done[*voice.CloneResult](nil, fmt.Errorf("studio: prepare sample: %w", err))
		}
	}

	s.mu.Lock()
	if s.keyStatus != KeyValid {
		s.mu.Unlock()
		return task.Done[*voice.CloneResult](nil, ErrKeyNotValid)
	}
	s.cloneGen++
	gen := s.cloneGen
	s.cloning = true
	svc := s.svc
	s.mu.Unlock()

	req := voice.CloneRequest{
		Name:     name,
		Language: s.selection.Selected().Code,
		Audio:    sample,
		Filename: filepath.Base(rec.OutputPath),
	}
	return task.Go(ctx, func(ctx context.Context) (res *voice.CloneResult, err error) {
		ctx, span := observe.StartOperation(ctx, "clone",
			observe.AttrLanguage.String(string(req.Language)),
		)
		defer func() { endOperation(span, err) }()

		res, err = svc.CloneVoice(ctx, req)

		s.mu.Lock()
		if gen != s.cloneGen {
			s.mu.Unlock()
			return nil, ErrSuperseded
		}
		s.cloning = false
		if err != nil {
			err = fmt.Errorf("studio: clone voice: %w", err)
			s.lastErr = err
			s.mu.Unlock()
			s.report(ctx, "clone", err)
			return nil, err
		}
		s.mu.Unlock()

		if res != nil {
			s.log.Info("studio: voice cloned", "voice_id", res.VoiceID, "name", res.VoiceName)
		}
		return res, nil
	})
}

// Voices lists the voices available to the current key.
func (s *Studio) Voices(ctx context.Context) ([]voice.Voice, error) {
	s.mu.Lock()
	svc := s.svc
	s.mu.Unlock()

	ctx, span := observe.StartOperation(ctx, "voices")
	voices, err := svc.ListVoices(ctx)
	observe.EndOperation(span, err)
	if err != nil {
		err = fmt.Errorf("studio: list voices: %w", err)
		s.report(ctx, "voices", err)
		return nil, err
	}
	return voices, nil
}
