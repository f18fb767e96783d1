package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/sheng/pkg/audio"
)

func TestEncodeParseWAV(t *testing.T) {
	pcm := samplesToBytes([]int16{1, -1, 2, -2, 3, -3})
	f := audio.Format{SampleRate: 22050, Channels: 2}
	wav := audio.EncodeWAV(pcm, f)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if !audio.IsWAV(wav) {
		t.Fatal("IsWAV = false for encoded buffer")
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.Format != f {
		t.Errorf("Format = %v, want %v", info.Format, f)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("BitsPerSample = %d, want 16", info.BitsPerSample)
	}
	if info.DataOffset != 44 {
		t.Errorf("DataOffset = %d, want 44", info.DataOffset)
	}
	if !bytes.Equal(info.PCM(wav), pcm) {
		t.Error("PCM does not match input")
	}
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	pcm := samplesToBytes([]int16{7, 8})
	base := audio.EncodeWAV(pcm, audio.Format{SampleRate: 8000, Channels: 1})

	// Insert an odd-sized LIST chunk (padded) between fmt and data.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)

	wav := append([]byte{}, base[:36]...)
	wav = append(wav, list...)
	wav = append(wav, base[36:]...)

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if !bytes.Equal(info.PCM(wav), pcm) {
		t.Error("PCM does not match after skipping LIST chunk")
	}
}

func TestParseWAV_StreamingSize(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 8000, Channels: 1})
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataSize != len(pcm) {
		t.Errorf("DataSize = %d, want %d", info.DataSize, len(pcm))
	}
}

func TestParseWAV_Errors(t *testing.T) {
	good := audio.EncodeWAV(samplesToBytes([]int16{1}), audio.Format{SampleRate: 8000, Channels: 1})
	noData := append([]byte{}, good[:36]...)
	badTag := append([]byte{}, good...)
	binary.LittleEndian.PutUint16(badTag[20:22], 3)

	tests := []struct {
		name string
		wav  []byte
	}{
		{"too short", []byte("RIFF")},
		{"no riff", append([]byte("RIFX"), good[4:]...)},
		{"no wave", append(append([]byte{}, good[:8]...), append([]byte("AVI "), good[12:]...)...)},
		{"no data chunk", noData},
		{"float format", badTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := audio.ParseWAV(tt.wav); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWAVInfo_Duration(t *testing.T) {
	pcm := make([]byte, 44100*2*3/2) // 1.5 s of mono
	info, err := audio.ParseWAV(audio.EncodeWAV(pcm, audio.Format{SampleRate: 44100, Channels: 1}))
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", got)
	}
	if (audio.WAVInfo{}).Duration() != 0 {
		t.Error("zero WAVInfo should have zero duration")
	}
}

func TestCaptureFormat_Bitrate(t *testing.T) {
	for _, tt := range []struct {
		f    audio.CaptureFormat
		want int
	}{
		{audio.DefaultCaptureFormat, 192_000},
		{audio.CaptureFormat{Codec: audio.CodecAAC, Quality: audio.QualityMedium}, 128_000},
		{audio.CaptureFormat{Codec: audio.CodecAAC, Quality: audio.QualityLow}, 64_000},
		{audio.WAVCaptureFormat, 44100 * 16},
	} {
		if got := tt.f.Bitrate(); got != tt.want {
			t.Errorf("%+v.Bitrate() = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestCaptureFormat_Extension(t *testing.T) {
	if ext := audio.DefaultCaptureFormat.Extension(); ext != ".m4a" {
		t.Errorf("default extension = %q, want .m4a", ext)
	}
	if ext := audio.WAVCaptureFormat.Extension(); ext != ".wav" {
		t.Errorf("wav extension = %q, want .wav", ext)
	}
	f := audio.DefaultCaptureFormat
	if f.SampleRate != 44100 || f.Channels != 1 || f.Codec != audio.CodecAAC || f.Quality != audio.QualityHigh {
		t.Errorf("DefaultCaptureFormat = %+v", f)
	}
}
