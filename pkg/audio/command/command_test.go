//go:build unix

package command_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/sheng/pkg/audio"
	"github.com/MrWong99/sheng/pkg/audio/capture"
	"github.com/MrWong99/sheng/pkg/audio/command"
	"github.com/MrWong99/sheng/pkg/audio/playback"
)

// fakeEncoder writes a marker to the output file and then records until
// interrupted, exiting cleanly like an encoder that flushes on SIGINT.
var fakeEncoder = []string{
	"sh", "-c",
	`printf "rate=%s ch=%s codec=%s br=%s" "$1" "$2" "$3" "$4" > "$0"; trap 'exit 0' INT TERM; while :; do sleep 0.01; done`,
	"{output}", "{rate}", "{channels}", "{codec}", "{bitrate}",
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCaptureEngine_RequestPermission(t *testing.T) {
	ok, err := command.NewCaptureEngine(command.WithCaptureCommand([]string{"sh"})).RequestPermission(context.Background())
	if err != nil || !ok {
		t.Errorf("RequestPermission = %v, %v; want true, nil", ok, err)
	}

	ok, err = command.NewCaptureEngine(command.WithCaptureCommand([]string{"definitely-not-installed-xyz"})).RequestPermission(context.Background())
	if err == nil || ok {
		t.Errorf("RequestPermission for missing program = %v, %v; want false, error", ok, err)
	}

	_, err = command.NewCaptureEngine(command.WithCaptureCommand(nil)).RequestPermission(context.Background())
	if !errors.Is(err, command.ErrEmptyCommand) {
		t.Errorf("err = %v, want ErrEmptyCommand", err)
	}
}

func TestCaptureEngine_RecordAndStop(t *testing.T) {
	eng := command.NewCaptureEngine(command.WithCaptureCommand(fakeEncoder))
	dir := t.TempDir()
	rec := capture.New(eng, capture.WithDirectory(dir), capture.WithFormat(audio.WAVCaptureFormat))

	take := rec.Start()
	if !rec.IsRecording() {
		t.Fatal("recorder did not start")
	}
	path := rec.Snapshot().OutputPath
	waitFor(t, "encoder output", func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() > 0
	})

	rec.Stop()

	got, ok := take.Result()
	if !ok {
		t.Fatal("take not ok")
	}
	if want := "rate=44100 ch=1 codec=pcm_s16le br=705600"; string(got.Output) != want {
		t.Errorf("output = %q, want %q", got.Output, want)
	}
}

func TestCaptureEngine_UnexpectedExitIsEncodeError(t *testing.T) {
	eng := command.NewCaptureEngine(command.WithCaptureCommand([]string{"sh", "-c", "exit 3"}))
	rec := capture.New(eng, capture.WithDirectory(t.TempDir()))

	take := rec.Start()
	select {
	case <-take.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("take did not complete after encoder crash")
	}
	if _, ok := take.Result(); ok {
		t.Error("take ok after encoder crash")
	}
	if rec.IsRecording() {
		t.Error("still recording after encoder crash")
	}
}

func TestCaptureEngine_StopTimeoutKills(t *testing.T) {
	stubborn := []string{"sh", "-c", `trap '' INT; while :; do sleep 0.01; done`}
	eng := command.NewCaptureEngine(command.WithCaptureCommand(stubborn), command.WithStopTimeout(50*time.Millisecond))

	p, err := eng.NewPipeline(filepath.Join(t.TempDir(), "x.m4a"), audio.DefaultCaptureFormat, audio.CaptureEvents{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Record(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := p.Stop(); err == nil {
		t.Error("expected timeout error from Stop")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Stop did not kill the process promptly")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}

func TestCaptureEngine_StartFailure(t *testing.T) {
	eng := command.NewCaptureEngine(command.WithCaptureCommand([]string{"definitely-not-installed-xyz"}))
	rec := capture.New(eng, capture.WithDirectory(t.TempDir()))
	take := rec.Start()
	if rec.IsRecording() {
		t.Error("recording with a missing encoder")
	}
	if _, ok := take.Result(); ok {
		t.Error("take ok with a missing encoder")
	}
}

func wavOf(d time.Duration) []byte {
	const rate = 8000
	n := int(d * rate / time.Second)
	return audio.EncodeWAV(make([]byte, n*2), audio.Format{SampleRate: rate, Channels: 1})
}

func TestPlaybackEngine_PlaysToCompletion(t *testing.T) {
	eng := command.NewPlaybackEngine(
		command.WithPlaybackCommand([]string{"sh", "-c", `test -s "$0" && sleep 0.05`, "{input}"}),
		command.WithTempDir(t.TempDir()),
	)
	p := playback.New(eng)
	if !p.Load(wavOf(2 * time.Second)) {
		t.Fatal("Load failed")
	}
	if d := p.State().Duration; d != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", d)
	}

	done := p.Play()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("playback did not complete")
	}
	st := p.State()
	if st.Playing || st.Position != 0 {
		t.Errorf("state after completion = %+v", st)
	}
}

func TestPlaybackEngine_PauseFreezesPosition(t *testing.T) {
	eng := command.NewPlaybackEngine(
		command.WithPlaybackCommand([]string{"sh", "-c", "sleep 10", "{input}"}),
		command.WithTempDir(t.TempDir()),
	)
	tr, err := eng.Open(wavOf(10*time.Second), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := tr.Pause(); err != nil {
		t.Fatal(err)
	}
	frozen := tr.Position()
	if frozen <= 0 {
		t.Errorf("Position after pause = %v, want > 0", frozen)
	}
	time.Sleep(30 * time.Millisecond)
	if got := tr.Position(); got != frozen {
		t.Errorf("Position moved while paused: %v -> %v", frozen, got)
	}

	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "position to advance after resume", func() bool { return tr.Position() > frozen })

	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	if tr.Position() != 0 {
		t.Errorf("Position after stop = %v, want 0", tr.Position())
	}
}

func TestPlaybackEngine_StopDoesNotReportCompletion(t *testing.T) {
	finished := make(chan bool, 1)
	eng := command.NewPlaybackEngine(
		command.WithPlaybackCommand([]string{"sh", "-c", "sleep 10", "{input}"}),
		command.WithTempDir(t.TempDir()),
	)
	tr, err := eng.Open(wavOf(time.Second), func(ok bool) { finished <- ok })
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case ok := <-finished:
		t.Errorf("onFinish(%v) called after Stop", ok)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPlaybackEngine_CloseRemovesSpoolFile(t *testing.T) {
	dir := t.TempDir()
	eng := command.NewPlaybackEngine(
		command.WithPlaybackCommand([]string{"sh", "-c", "true", "{input}"}),
		command.WithTempDir(dir),
	)
	data := wavOf(100 * time.Millisecond)
	tr, err := eng.Open(data, nil)
	if err != nil {
		t.Fatal(err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".wav" {
		t.Fatalf("spool dir = %v, want one .wav file", entries)
	}
	spooled, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if !bytes.Equal(spooled, data) {
		t.Error("spooled file differs from buffer")
	}

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	entries, _ = os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("spool file not removed: %v", entries)
	}
	if err := tr.Play(); err == nil {
		t.Error("Play after Close should fail")
	}
}

func TestPlaybackEngine_OpenErrors(t *testing.T) {
	eng := command.NewPlaybackEngine(command.WithTempDir(t.TempDir()))
	if _, err := eng.Open(nil, nil); err == nil {
		t.Error("expected error for empty buffer")
	}
	bad := wavOf(time.Second)[:30]
	if _, err := eng.Open(bad, nil); err == nil {
		t.Error("expected error for truncated WAV")
	}

	m4a := []byte("\x00\x00\x00\x20ftypM4A ")
	tr, err := eng.Open(m4a, nil)
	if err != nil {
		t.Fatalf("non-WAV buffer: %v", err)
	}
	defer tr.Close()
	if tr.Duration() != 0 {
		t.Errorf("Duration = %v for non-WAV, want 0", tr.Duration())
	}
}
