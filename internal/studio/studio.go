// Package studio is the UI-free controller behind sheng's screens. It owns
// the stored API key, the voice service client built from it, the language
// selection and the synthesis defaults, and coordinates the recorder and
// player.
//
// Every validation, synthesis and clone call carries a generation token.
// A response whose token is no longer current resolves with [ErrSuperseded]
// and leaves the studio's state alone; starting a new synthesis also cancels
// the one in flight.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sheng/internal/language"
	"github.com/MrWong99/sheng/internal/observe"
	"github.com/MrWong99/sheng/internal/settings"
	"github.com/MrWong99/sheng/internal/task"
	"github.com/MrWong99/sheng/pkg/audio"
	"github.com/MrWong99/sheng/pkg/audio/capture"
	"github.com/MrWong99/sheng/pkg/audio/playback"
	"github.com/MrWong99/sheng/pkg/voice"
)

var (
	// ErrSuperseded resolves a call whose result arrived after a newer call
	// of the same kind was started.
	ErrSuperseded = errors.New("studio: superseded by a newer request")

	// ErrKeyNotValid is returned when an operation needs a validated key.
	ErrKeyNotValid = errors.New("studio: API key has not been validated")

	// ErrNoRecording is returned by CloneVoice when no finished take exists.
	ErrNoRecording = errors.New("studio: no finished recording")

	// ErrEmptyName is returned by CloneVoice for a blank voice name.
	ErrEmptyName = errors.New("studio: voice name is empty")
)

// KeyStatus is the validation state of the stored API key.
type KeyStatus int

const (
	// KeyUnset means no key is stored.
	KeyUnset KeyStatus = iota
	// KeyUnchecked means a key is stored but has not been validated yet.
	KeyUnchecked
	KeyChecking
	KeyValid
	KeyInvalid
)

func (k KeyStatus) String() string {
	switch k {
	case KeyUnset:
		return "unset"
	case KeyUnchecked:
		return "unchecked"
	case KeyChecking:
		return "checking"
	case KeyValid:
		return "valid"
	case KeyInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("KeyStatus(%d)", int(k))
	}
}

// State is a point-in-time view of the studio.
type State struct {
	Key          KeyStatus
	Synthesizing bool
	Cloning      bool
	Language     voice.LanguageCode
	Voice        string
	Speed        float64

	// LastError is the most recent failure of a current call, cleared when a
	// new synthesis starts.
	LastError error
}

// ServiceFactory builds a voice service client for apiKey.
type ServiceFactory func(apiKey string) voice.Service

// Config holds the dependencies of a [Studio].
type Config struct {
	// Credentials persists the API key. Required.
	Credentials *settings.Credentials

	// NewService builds the client whenever the key changes. Required.
	NewService ServiceFactory

	// Catalog defaults to [language.Default].
	Catalog *language.Catalog

	// Recorder supplies samples for CloneVoice. Optional.
	Recorder *capture.Recorder

	// Player plays synthesized audio for Speak and PreviewSample. Optional.
	Player *playback.Player

	// Voice and Speed are the synthesis defaults. Zero values fall back to
	// voice.DefaultVoiceID and voice.DefaultSpeed.
	Voice string
	Speed float64

	// Language is the initially selected code. Unknown codes keep the
	// catalog's first profile.
	Language voice.LanguageCode

	// CloneFormat is the PCM layout WAV samples are converted to before
	// upload. Defaults to 44.1 kHz mono.
	CloneFormat audio.Format

	// OnError is called, outside any lock, for every failure of a current
	// call. op is one of "validate", "synthesize", "clone" or "voices".
	OnError func(ctx context.Context, op string, err error)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Studio coordinates the key, the voice service and the audio sessions. All
// methods are safe for concurrent use.
type Studio struct {
	creds       *settings.Credentials
	newService  ServiceFactory
	selection   *language.Selection
	recorder    *capture.Recorder
	player      *playback.Player
	cloneFormat audio.Format
	onError     func(context.Context, string, error)
	log         *slog.Logger

	mu           sync.Mutex
	apiKey       string
	svc          voice.Service
	keyStatus    KeyStatus
	keyGen       uint64
	synthGen     uint64
	synthCancel  func()
	synthesizing bool
	cloneGen     uint64
	cloning      bool
	voiceID      string
	speed        float64
	lastErr      error
}

// New loads the stored key and returns a Studio ready for use. The key is
// not validated; call [Studio.ValidateKey].
func New(ctx context.Context, cfg Config) (*Studio, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("studio: credentials are required")
	}
	if cfg.NewService == nil {
		return nil, errors.New("studio: service factory is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = language.Default()
	}
	if cfg.Voice == "" {
		cfg.Voice = voice.DefaultVoiceID
	}
	if cfg.Speed == 0 {
		cfg.Speed = voice.DefaultSpeed
	}
	if cfg.CloneFormat == (audio.Format{}) {
		cfg.CloneFormat = audio.Format{SampleRate: 44100, Channels: 1}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	key, err := cfg.Credentials.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("studio: load API key: %w", err)
	}

	s := &Studio{
		creds:       cfg.Credentials,
		newService:  cfg.NewService,
		selection:   language.NewSelection(cfg.Catalog),
		recorder:    cfg.Recorder,
		player:      cfg.Player,
		cloneFormat: cfg.CloneFormat,
		onError:     cfg.OnError,
		log:         cfg.Logger,
		voiceID:     cfg.Voice,
		speed:       cfg.Speed,
	}
	if cfg.Language != "" && !s.selection.Select(cfg.Language) {
		s.log.Warn("studio: unknown language, keeping default",
			"language", cfg.Language, "default", s.selection.Selected().Code)
	}
	s.setKeyLocked(key)
	return s, nil
}

// setKeyLocked installs key and a client for it. Callers hold s.mu or own s
// exclusively.
func (s *Studio) setKeyLocked(key string) {
	s.apiKey = key
	s.svc = s.newService(key)
	if key == "" {
		s.keyStatus = KeyUnset
	} else {
		s.keyStatus = KeyUnchecked
	}
}

// APIKey returns the key in use.
func (s *Studio) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

// Service returns the client built for the current key. It is replaced when
// the key changes.
func (s *Studio) Service() voice.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.svc
}

// SaveKey persists key, rebuilds the client and validates it. A synthesis in
// flight under the old key is superseded. An empty key clears the stored
// credential. The error reports a failed write; the task
// reports the validation.
func (s *Studio) SaveKey(ctx context.Context, key string) (*task.Task[bool], error) {
	key = strings.TrimSpace(key)
	var err error
	if key == "" {
		err = s.creds.Clear(ctx)
	} else {
		err = s.creds.Save(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("studio: save API key: %w", err)
	}

	s.mu.Lock()
	s.setKeyLocked(key)
	s.supersedeSynthLocked()
	s.mu.Unlock()
	s.log.Info("studio: API key updated", "set", key != "")

	return s.ValidateKey(ctx), nil
}

// ValidateKey checks the current key against the service. An empty key is
// marked invalid without a network call.
func (s *Studio) ValidateKey(ctx context.Context) *task.Task[bool] {
	s.mu.Lock()
	s.keyGen++
	gen := s.keyGen
	if s.apiKey == "" {
		s.keyStatus = KeyInvalid
		s.mu.Unlock()
		return task.Done(false, nil)
	}
	s.keyStatus = KeyChecking
	svc := s.svc
	s.mu.Unlock()

	return task.Go(ctx, func(ctx context.Context) (ok bool, err error) {
		ctx, span := observe.StartOperation(ctx, "validate")
		defer func() { endOperation(span, err) }()

		ok, err = svc.ValidateKey(ctx)

		s.mu.Lock()
		if gen != s.keyGen {
			s.mu.Unlock()
			return false, ErrSuperseded
		}
		if err != nil {
			err = fmt.Errorf("studio: validate key: %w", err)
			s.keyStatus = KeyInvalid
			s.lastErr = err
			s.mu.Unlock()
			s.report(ctx, "validate", err)
			return false, err
		}
		if ok {
			s.keyStatus = KeyValid
		} else {
			s.keyStatus = KeyInvalid
		}
		s.mu.Unlock()
		return ok, nil
	})
}

// SelectLanguage switches the selected language. Unknown codes keep the
// prior selection and report false.
func (s *Studio) SelectLanguage(code voice.LanguageCode) bool {
	return s.selection.Select(code)
}

// Language returns the selected profile.
func (s *Studio) Language() language.Profile {
	return s.selection.Selected()
}

// Catalog returns the language catalog.
func (s *Studio) Catalog() *language.Catalog {
	return s.selection.Catalog()
}

// SetVoice sets the default voice for later syntheses.
func (s *Studio) SetVoice(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceID = id
}

// SetSpeed sets the default speaking rate for later syntheses.
func (s *Studio) SetSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = speed
}

// State returns a snapshot of the studio.
func (s *Studio) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Key:          s.keyStatus,
		Synthesizing: s.synthesizing,
		Cloning:      s.cloning,
		Language:     s.selection.Selected().Code,
		Voice:        s.voiceID,
		Speed:        s.speed,
		LastError:    s.lastErr,
	}
}

// Close cancels the in-flight synthesis and supersedes every pending call.
func (s *Studio) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeSynthLocked()
	s.keyGen++
	s.cloneGen++
	s.cloning = false
}

// endOperation ends an operation span. A superseded call is not a failure.
func endOperation(span trace.Span, err error) {
	if errors.Is(err, ErrSuperseded) {
		span.SetAttributes(attribute.Bool("sheng.superseded", true))
		err = nil
	}
	observe.EndOperation(span, err)
}

func (s *Studio) report(ctx context.Context, op string, err error) {
	s.log.Warn("studio: "+op+" failed", "kind", voice.Classify(err).String(), "err", err)
	if s.onError != nil {
		s.onError(ctx, op, err)
	}
}
