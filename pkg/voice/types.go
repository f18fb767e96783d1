package voice

import (
	"errors"
	"strings"
)

// LanguageCode identifies a synthesis language understood by the backend.
type LanguageCode string

const (
	// LanguageMandarin is Mandarin Chinese (普通话).
	LanguageMandarin LanguageCode = "zh-cn"

	// LanguageCantonese is Cantonese (粤语).
	LanguageCantonese LanguageCode = "yue-cn"

	// LanguageEnglish is English.
	LanguageEnglish LanguageCode = "en"
)

// IsValid reports whether l is one of the supported language codes.
func (l LanguageCode) IsValid() bool {
	switch l {
	case LanguageMandarin, LanguageCantonese, LanguageEnglish:
		return true
	}
	return false
}

// Request defaults applied by [NewRequest] when an option is not given.
const (
	DefaultVoiceID  = "default_voice.pt"
	DefaultLanguage = LanguageMandarin
	DefaultSpeed    = 1.0
)

// ErrEmptyText is returned by [NewRequest] when the text has no content.
var ErrEmptyText = errors.New("voice: request text must not be empty")

// Request is a single text-to-speech job. It is immutable once constructed;
// use [NewRequest] to build one.
//
// Speed is expected to lie in (0, 3] but is deliberately not validated here:
// out-of-range values are sent as-is and any rejection comes from the server.
type Request struct {
	text     string
	voiceID  string
	language LanguageCode
	speed    float64
}

// RequestOption customises a [Request] built by [NewRequest].
type RequestOption func(*Request)

// WithVoice selects the voice profile. An empty id is sent as-is.
func WithVoice(id string) RequestOption {
	return func(r *Request) { r.voiceID = id }
}

// WithLanguage selects the synthesis language.
func WithLanguage(code LanguageCode) RequestOption {
	return func(r *Request) { r.language = code }
}

// WithSpeed sets the speaking rate multiplier.
func WithSpeed(speed float64) RequestOption {
	return func(r *Request) { r.speed = speed }
}

// NewRequest builds a Request for text. Text consisting only of whitespace is
// rejected with [ErrEmptyText]; every other field is accepted unchanged.
func NewRequest(text string, opts ...RequestOption) (Request, error) {
	if strings.TrimSpace(text) == "" {
		return Request{}, ErrEmptyText
	}
	r := Request{
		text:     text,
		voiceID:  DefaultVoiceID,
		language: DefaultLanguage,
		speed:    DefaultSpeed,
	}
	for _, o := range opts {
		o(&r)
	}
	return r, nil
}

// Text returns the input text.
func (r Request) Text() string { return r.text }

// VoiceID returns the voice profile identifier.
func (r Request) VoiceID() string { return r.voiceID }

// Language returns the synthesis language.
func (r Request) Language() LanguageCode { return r.language }

// Speed returns the speaking rate multiplier.
func (r Request) Speed() float64 { return r.speed }

// Voice is a synthesis voice known to the backend.
type Voice struct {
	// ID is the backend identifier passed back in [Request] (e.g. "alice.pt").
	ID string `json:"voice_id"`

	// Name is the human-readable name chosen when the voice was created.
	Name string `json:"voice_name"`

	// Type distinguishes built-in voices from cloned ones.
	Type string `json:"type"`
}

// CloneRequest carries a recorded sample to be registered as a new voice.
type CloneRequest struct {
	// Name is the display name of the new voice. Required.
	Name string

	// Language is the language spoken in the sample.
	Language LanguageCode

	// Audio is the encoded sample (e.g. AAC in an .m4a container, or WAV).
	Audio []byte

	// Filename is the upload file name; its extension tells the backend the
	// container format. Defaults to "sample.m4a".
	Filename string
}

// CloneResult is the backend's answer to a successful clone upload.
type CloneResult struct {
	Message       string `json:"message"`
	VoiceID       string `json:"voice_id"`
	VoiceName     string `json:"voice_name"`
	FullVoicePath string `json:"full_voice_path"`
}
