package studio_test

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/sheng/internal/language"
	"github.com/MrWong99/sheng/internal/settings"
	"github.com/MrWong99/sheng/internal/studio"
	"github.com/MrWong99/sheng/pkg/audio"
	"github.com/MrWong99/sheng/pkg/audio/capture"
	audiomock "github.com/MrWong99/sheng/pkg/audio/mock"
	"github.com/MrWong99/sheng/pkg/audio/playback"
	"github.com/MrWong99/sheng/pkg/voice"
	"github.com/MrWong99/sheng/pkg/voice/mock"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

type fixture struct {
	svc    *mock.Service
	store  *settings.MemoryStore
	studio *studio.Studio

	mu     sync.Mutex
	keys   []string
	errors []string
}

func (f *fixture) factoryKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fixture) reportedOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errors...)
}

func newFixture(t *testing.T, storedKey string, configure ...func(*studio.Config)) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		svc:   &mock.Service{ValidateKeyResult: true, SynthesizeResult: []byte("RIFFwav")},
		store: settings.NewMemoryStore(),
	}
	creds := settings.NewCredentials(f.store)
	if storedKey != "" {
		if err := creds.Save(ctx, storedKey); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	cfg := studio.Config{
		Credentials: creds,
		NewService: func(key string) voice.Service {
			f.mu.Lock()
			f.keys = append(f.keys, key)
			f.mu.Unlock()
			return f.svc
		},
		OnError: func(_ context.Context, op string, _ error) {
			f.mu.Lock()
			f.errors = append(f.errors, op)
			f.mu.Unlock()
		},
	}
	for _, c := range configure {
		c(&cfg)
	}
	s, err := studio.New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	f.studio = s
	return f
}

// validated returns a fixture whose key has been checked successfully.
func validated(t *testing.T, configure ...func(*studio.Config)) *fixture {
	t.Helper()
	f := newFixture(t, "sk-test", configure...)
	if ok, err := wait(t, f.studio.ValidateKey(context.Background())); err != nil || !ok {
		t.Fatalf("ValidateKey = %v, %v", ok, err)
	}
	f.svc.Reset()
	return f
}

type waiter[T any] interface {
	Wait(ctx context.Context) (T, error)
}

func wait[T any](t *testing.T, tk waiter[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := tk.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatal("task did not complete")
	}
	return v, err
}

// stereoWAV returns a 22.05 kHz stereo WAV of n frames.
func stereoWAV(n int) []byte {
	pcm := make([]byte, n*4)
	for i := range n {
		binary.LittleEndian.PutUint16(pcm[i*4:], uint16(int16(i*10)))
		binary.LittleEndian.PutUint16(pcm[i*4+2:], uint16(int16(i*10)))
	}
	return audio.EncodeWAV(pcm, audio.Format{SampleRate: 22050, Channels: 2})
}

// record runs one take through a mock engine producing content.
func record(t *testing.T, content []byte, format audio.CaptureFormat) *capture.Recorder {
	t.Helper()
	eng := &audiomock.CaptureEngine{Content: content}
	rec := capture.New(eng, capture.WithDirectory(t.TempDir()), capture.WithFormat(format))
	take := rec.Start()
	rec.Stop()
	if _, ok := take.Result(); !ok {
		t.Fatal("take did not finalize")
	}
	return rec
}

// ─── Construction ───────────────────────────────────────────────────────────

func TestNew_LoadsStoredKey(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   studio.KeyStatus
	}{
		{"stored", "sk-abc", studio.KeyUnchecked},
		{"none", "", studio.KeyUnset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.stored)
			if got := f.studio.State().Key; got != tt.want {
				t.Errorf("Key = %v, want %v", got, tt.want)
			}
			if keys := f.factoryKeys(); len(keys) != 1 || keys[0] != tt.stored {
				t.Errorf("factory keys = %q, want [%q]", keys, tt.stored)
			}
			if f.studio.APIKey() != tt.stored {
				t.Errorf("APIKey = %q", f.studio.APIKey())
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t, "")
	st := f.studio.State()
	if st.Voice != voice.DefaultVoiceID || st.Speed != voice.DefaultSpeed {
		t.Errorf("defaults = %q %v", st.Voice, st.Speed)
	}
	if st.Language != voice.LanguageMandarin {
		t.Errorf("Language = %q, want zh-cn", st.Language)
	}
}

func TestNew_UnknownLanguageKeepsDefault(t *testing.T) {
	f := newFixture(t, "", func(c *studio.Config) { c.Language = "fr" })
	if got := f.studio.Language().Code; got != voice.LanguageMandarin {
		t.Errorf("Language = %q, want zh-cn", got)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	ctx := context.Background()
	creds := settings.NewCredentials(settings.NewMemoryStore())
	if _, err := studio.New(ctx, studio.Config{NewService: func(string) voice.Service { return &mock.Service{} }}); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := studio.New(ctx, studio.Config{Credentials: creds}); err == nil {
		t.Error("expected error without service factory")
	}
}

// ─── Key handling ───────────────────────────────────────────────────────────

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name      string
		result    bool
		err       error
		want      studio.KeyStatus
		wantErr   bool
	}{
		{"valid", true, nil, studio.KeyValid, false},
		{"rejected", false, nil, studio.KeyInvalid, false},
		{"unreachable", false, &voice.ServerError{Description: "refused"}, studio.KeyInvalid, true},
		{"server status", false, &voice.HTTPError{StatusCode: 500, Endpoint: "/validate-key"}, studio.KeyInvalid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "sk-test")
			f.svc.ValidateKeyResult = tt.result
			f.svc.ValidateKeyErr = tt.err

			ok, err := wait(t, f.studio.ValidateKey(context.Background()))
			if ok != tt.result {
				t.Errorf("ok = %v, want %v", ok, tt.result)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.err != nil && voice.Classify(err) != voice.Classify(tt.err) {
				t.Errorf("Classify = %v, want %v", voice.Classify(err), voice.Classify(tt.err))
			}
			st := f.studio.State()
			if st.Key != tt.want {
				t.Errorf("Key = %v, want %v", st.Key, tt.want)
			}
			if (st.LastError != nil) != tt.wantErr {
				t.Errorf("LastError = %v", st.LastError)
			}
			wantReports := 0
			if tt.wantErr {
				wantReports = 1
			}
			if got := len(f.reportedOps()); got != wantReports {
				t.Errorf("reported errors = %d, want %d", got, wantReports)
			}
		})
	}
}

func TestValidateKey_EmptyKeySkipsService(t *testing.T) {
	f := newFixture(t, "")
	ok, err := wait(t, f.studio.ValidateKey(context.Background()))
	if ok || err != nil {
		t.Errorf("ValidateKey = %v, %v; want false, nil", ok, err)
	}
	if f.svc.ValidateKeyCalls != 0 {
		t.Errorf("service called %d times", f.svc.ValidateKeyCalls)
	}
	if st := f.studio.State(); st.Key != studio.KeyInvalid {
		t.Errorf("Key = %v, want invalid", st.Key)
	}
}

func TestValidateKey_StaleResultDropped(t *testing.T) {
	f := newFixture(t, "sk-test")
	block := make(chan struct{})
	f.svc.ValidateBlock = block

	first := f.studio.ValidateKey(context.Background())
	second := f.studio.ValidateKey(context.Background())
	if st := f.studio.State(); st.Key != studio.KeyChecking {
		t.Errorf("Key = %v while in flight, want checking", st.Key)
	}
	close(block)

	if _, err := wait(t, first); !errors.Is(err, studio.ErrSuperseded) {
		t.Errorf("first err = %v, want ErrSuperseded", err)
	}
	if ok, err := wait(t, second); !ok || err != nil {
		t.Errorf("second = %v, %v", ok, err)
	}
	if st := f.studio.State(); st.Key != studio.KeyValid {
		t.Errorf("Key = %v, want valid", st.Key)
	}
}

func TestSaveKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	tk, err := f.studio.SaveKey(ctx, "  sk-new  ")
	if err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if ok, err := wait(t, tk); !ok || err != nil {
		t.Fatalf("validation = %v, %v", ok, err)
	}
	if v, found, _ := f.store.Get(ctx, settings.APIKeyName); !found || v != "sk-new" {
		t.Errorf("stored = %q, %v", v, found)
	}
	if keys := f.factoryKeys(); keys[len(keys)-1] != "sk-new" {
		t.Errorf("client rebuilt with %q", keys[len(keys)-1])
	}
	if f.studio.State().Key != studio.KeyValid {
		t.Errorf("Key = %v", f.studio.State().Key)
	}

	tk, err = f.studio.SaveKey(ctx, "")
	if err != nil {
		t.Fatalf("SaveKey(empty): %v", err)
	}
	if ok, _ := wait(t, tk); ok {
		t.Error("empty key validated")
	}
	if _, found, _ := f.store.Get(ctx, settings.APIKeyName); found {
		t.Error("credential not cleared")
	}
}

func TestSaveKey_StoreFailure(t *testing.T) {
	f := newFixture(t, "sk-old")
	if err := f.store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.studio.SaveKey(context.Background(), "sk-new"); !errors.Is(err, settings.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if f.studio.APIKey() != "sk-old" {
		t.Errorf("APIKey = %q after failed save", f.studio.APIKey())
	}
}

// ─── Synthesis ──────────────────────────────────────────────────────────────

func TestSynthesize_RequiresValidatedKey(t *testing.T) {
	f := newFixture(t, "sk-test")
	if _, err := wait(t, f.studio.Synthesize(context.Background(), "你好")); !errors.Is(err, studio.ErrKeyNotValid) {
		t.Errorf("err = %v, want ErrKeyNotValid", err)
	}
	if f.svc.SynthesizeCallCount() != 0 {
		t.Error("service called without a validated key")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	f := validated(t)
	if _, err := wait(t, f.studio.Synthesize(context.Background(), "  ")); !errors.Is(err, voice.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_BuildsRequest(t *testing.T) {
	f := validated(t)
	f.studio.SetVoice("alice.pt")
	f.studio.SetSpeed(1.5)
	if !f.studio.SelectLanguage(voice.LanguageCantonese) {
		t.Fatal("SelectLanguage(yue-cn) = false")
	}

	data, err := wait(t, f.studio.Synthesize(context.Background(), "早晨"))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(data) != "RIFFwav" {
		t.Errorf("data = %q", data)
	}
	if _, err := wait(t, f.studio.Synthesize(context.Background(), "再见", voice.WithSpeed(0.5))); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	calls := f.svc.SynthesizeCalls
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if r := calls[0]; r.Text() != "早晨" || r.VoiceID() != "alice.pt" || r.Language() != voice.LanguageCantonese || r.Speed() != 1.5 {
		t.Errorf("request = %q %q %q %v", r.Text(), r.VoiceID(), r.Language(), r.Speed())
	}
	if calls[1].Speed() != 0.5 {
		t.Errorf("override speed = %v, want 0.5", calls[1].Speed())
	}
	if st := f.studio.State(); st.Synthesizing {
		t.Error("still synthesizing")
	}
}

func TestSynthesize_CancelsPrevious(t *testing.T) {
	f := validated(t)
	block := make(chan struct{})
	f.svc.SynthesizeBlock = block

	first := f.studio.Synthesize(context.Background(), "one")
	second := f.studio.Synthesize(context.Background(), "two")

	// The first call is cancelled without the block being released.
	if _, err := wait(t, first); !errors.Is(err, studio.ErrSuperseded) {
		t.Errorf("first err = %v, want ErrSuperseded", err)
	}
	if st := f.studio.State(); !st.Synthesizing || st.LastError != nil {
		t.Errorf("state after superseded call = %+v", st)
	}

	close(block)
	if _, err := wait(t, second); err != nil {
		t.Errorf("second err = %v", err)
	}
	if st := f.studio.State(); st.Synthesizing {
		t.Error("still synthesizing after the current call finished")
	}
	if len(f.reportedOps()) != 0 {
		t.Errorf("superseded call was reported: %v", f.reportedOps())
	}
}

func TestSaveKey_SupersedesSynthesisUnderOldKey(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	clients := map[string]*mock.Service{}
	f := validated(t, func(c *studio.Config) {
		c.NewService = func(key string) voice.Service {
			mu.Lock()
			defer mu.Unlock()
			svc := &mock.Service{ValidateKeyResult: true, SynthesizeResult: []byte("RIFF" + key)}
			if key == "sk-test" {
				svc.SynthesizeBlock = make(chan struct{})
			}
			clients[key] = svc
			return svc
		}
	})

	first := f.studio.Synthesize(ctx, "under the old key")
	tk, err := f.studio.SaveKey(ctx, "sk-rotated")
	if err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if _, err := wait(t, first); !errors.Is(err, studio.ErrSuperseded) {
		t.Errorf("first err = %v, want ErrSuperseded", err)
	}
	if st := f.studio.State(); st.Synthesizing {
		t.Error("still synthesizing after the key changed")
	}
	if ok, err := wait(t, tk); !ok || err != nil {
		t.Fatalf("validation = %v, %v", ok, err)
	}

	data, err := wait(t, f.studio.Synthesize(ctx, "under the new key"))
	if err != nil || string(data) != "RIFFsk-rotated" {
		t.Errorf("second = %q, %v; want the rotated client's audio", data, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if n := clients["sk-rotated"].SynthesizeCallCount(); n != 1 {
		t.Errorf("rotated client calls = %d, want 1", n)
	}
}

func TestSynthesize_Failure(t *testing.T) {
	f := validated(t)
	f.svc.SynthesizeErr = &voice.HTTPError{StatusCode: 422, Endpoint: "/tts"}

	_, err := wait(t, f.studio.Synthesize(context.Background(), "hello", voice.WithSpeed(-1)))
	var httpErr *voice.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 422 {
		t.Fatalf("err = %v, want HTTPError 422", err)
	}
	st := f.studio.State()
	if st.Synthesizing || st.LastError == nil {
		t.Errorf("state = %+v", st)
	}
	if ops := f.reportedOps(); len(ops) != 1 || ops[0] != "synthesize" {
		t.Errorf("reported = %v", ops)
	}

	// A new synthesis clears the previous error.
	f.svc.SynthesizeErr = nil
	if _, err := wait(t, f.studio.Synthesize(context.Background(), "hello")); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if st := f.studio.State(); st.LastError != nil {
		t.Errorf("LastError = %v after success", st.LastError)
	}
}

func TestSpeak_PlaysResult(t *testing.T) {
	eng := &audiomock.PlaybackEngine{TrackDuration: 2 * time.Second}
	player := playback.New(eng)
	f := validated(t, func(c *studio.Config) { c.Player = player })

	if _, err := wait(t, f.studio.Speak(context.Background(), "hello")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(eng.OpenCalls) != 1 || string(eng.OpenCalls[0]) != "RIFFwav" {
		t.Fatalf("OpenCalls = %q", eng.OpenCalls)
	}
	if st := player.State(); !st.Playing || st.Duration != 2*time.Second {
		t.Errorf("player state = %+v", st)
	}
}

func TestSynthesize_DoesNotPlay(t *testing.T) {
	eng := &audiomock.PlaybackEngine{}
	f := validated(t, func(c *studio.Config) { c.Player = playback.New(eng) })

	if _, err := wait(t, f.studio.Synthesize(context.Background(), "hello")); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(eng.OpenCalls) != 0 {
		t.Error("Synthesize opened a track")
	}
}

func TestPreviewSample(t *testing.T) {
	f := validated(t)
	f.studio.SelectLanguage(voice.LanguageEnglish)

	if _, err := wait(t, f.studio.PreviewSample(context.Background())); err != nil {
		t.Fatalf("PreviewSample: %v", err)
	}
	want, _ := language.Default().Lookup(voice.LanguageEnglish)
	r := f.svc.SynthesizeCalls[0]
	if r.Text() != want.SampleText || r.Language() != voice.LanguageEnglish {
		t.Errorf("request = %q (%s)", r.Text(), r.Language())
	}
}

func TestClose_SupersedesInFlight(t *testing.T) {
	f := validated(t)
	f.svc.SynthesizeBlock = make(chan struct{})

	tk := f.studio.Synthesize(context.Background(), "long text")
	f.studio.Close()

	if _, err := wait(t, tk); !errors.Is(err, studio.ErrSuperseded) {
		t.Errorf("err = %v, want ErrSuperseded", err)
	}
	if f.studio.State().Synthesizing {
		t.Error("Synthesizing after Close")
	}
}

// ─── Cloning ────────────────────────────────────────────────────────────────

func TestCloneVoice_Guards(t *testing.T) {
	idle := capture.New(&audiomock.CaptureEngine{}, capture.WithDirectory(t.TempDir()))
	withTake := record(t, []byte("m4a"), audio.DefaultCaptureFormat)

	tests := []struct {
		name     string
		recorder *capture.Recorder
		validate bool
		voice    string
		want     error
	}{
		{"blank name", withTake, true, "  ", studio.ErrEmptyName},
		{"no recorder", nil, true, "me", studio.ErrNoRecording},
		{"no take", idle, true, "me", studio.ErrNoRecording},
		{"key not validated", withTake, false, "me", studio.ErrKeyNotValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := func(c *studio.Config) { c.Recorder = tt.recorder }
			var f *fixture
			if tt.validate {
				f = validated(t, cfg)
			} else {
				f = newFixture(t, "sk-test", cfg)
			}
			if _, err := wait(t, f.studio.CloneVoice(context.Background(), tt.voice)); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(f.svc.CloneVoiceCalls) != 0 {
				t.Error("service called")
			}
		})
	}
}

func TestCloneVoice_NormalizesWAV(t *testing.T) {
	rec := record(t, stereoWAV(2205), audio.WAVCaptureFormat)
	f := validated(t, func(c *studio.Config) { c.Recorder = rec })
	f.svc.CloneVoiceResult = &voice.CloneResult{VoiceID: "me.pt", VoiceName: "me"}
	f.studio.SelectLanguage(voice.LanguageEnglish)

	res, err := wait(t, f.studio.CloneVoice(context.Background(), " me "))
	if err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	if res.VoiceID != "me.pt" {
		t.Errorf("VoiceID = %q", res.VoiceID)
	}

	call := f.svc.CloneVoiceCalls[0].Request
	if call.Name != "me" || call.Language != voice.LanguageEnglish {
		t.Errorf("request = %q %q", call.Name, call.Language)
	}
	if !strings.HasPrefix(call.Filename, "recording_") || !strings.HasSuffix(call.Filename, ".wav") {
		t.Errorf("Filename = %q", call.Filename)
	}
	info, err := audio.ParseWAV(call.Audio)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if want := (audio.Format{SampleRate: 44100, Channels: 1}); info.Format != want {
		t.Errorf("uploaded format = %s, want %s", info.Format, want)
	}
	if st := f.studio.State(); st.Cloning {
		t.Error("still cloning")
	}
}

func TestCloneVoice_UploadsCompressedAsIs(t *testing.T) {
	content := []byte("\x00\x00\x00\x20ftypM4A sample")
	rec := record(t, content, audio.DefaultCaptureFormat)
	f := validated(t, func(c *studio.Config) { c.Recorder = rec })
	f.svc.CloneVoiceResult = &voice.CloneResult{VoiceID: "x"}

	if _, err := wait(t, f.studio.CloneVoice(context.Background(), "x")); err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	call := f.svc.CloneVoiceCalls[0].Request
	if string(call.Audio) != string(content) || !strings.HasSuffix(call.Filename, ".m4a") {
		t.Errorf("uploaded %q as %q", call.Audio, call.Filename)
	}
}

func TestCloneVoice_Failure(t *testing.T) {
	rec := record(t, []byte("m4a"), audio.DefaultCaptureFormat)
	f := validated(t, func(c *studio.Config) { c.Recorder = rec })
	f.svc.CloneVoiceErr = &voice.HTTPError{StatusCode: 413, Endpoint: "/clone-voice"}

	_, err := wait(t, f.studio.CloneVoice(context.Background(), "me"))
	if voice.StatusCode(err) != 413 {
		t.Errorf("err = %v, want status 413", err)
	}
	if ops := f.reportedOps(); len(ops) != 1 || ops[0] != "clone" {
		t.Errorf("reported = %v", ops)
	}
}

// ─── Voices ─────────────────────────────────────────────────────────────────

func TestVoices(t *testing.T) {
	f := newFixture(t, "sk-test")
	f.svc.ListVoicesResult = []voice.Voice{{ID: "default_voice.pt", Name: "Default", Type: "builtin"}}

	vs, err := f.studio.Voices(context.Background())
	if err != nil || len(vs) != 1 || vs[0].ID != "default_voice.pt" {
		t.Fatalf("Voices = %v, %v", vs, err)
	}

	f.svc.ListVoicesErr = voice.ErrDecoding
	if _, err := f.studio.Voices(context.Background()); !errors.Is(err, voice.ErrDecoding) {
		t.Errorf("err = %v, want ErrDecoding", err)
	}
	if ops := f.reportedOps(); len(ops) != 1 || ops[0] != "voices" {
		t.Errorf("reported = %v", ops)
	}
}

func TestKeyStatus_String(t *testing.T) {
	for k, want := range map[studio.KeyStatus]string{
		studio.KeyUnset:    "unset",
		studio.KeyChecking: "checking",
		studio.KeyValid:    "valid",
		studio.KeyStatus(9): "KeyStatus(9)",
	} {
		if got := k.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", int(k), got, want)
		}
	}
}
