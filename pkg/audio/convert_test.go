package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/sheng/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func assertSamples(t *testing.T, got []byte, want []int16) {
	t.Helper()
	gs := bytesToSamples(got)
	if len(gs) != len(want) {
		t.Fatalf("length mismatch: got %d samples, want %d", len(gs), len(want))
	}
	for i := range want {
		if gs[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, gs[i], want[i])
		}
	}
}

func TestDownmixToMono(t *testing.T) {
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	assertSamples(t, audio.DownmixToMono(stereo, 2), []int16{150, -150})
}

func TestDownmixToMono_NoOverflow(t *testing.T) {
	stereo := samplesToBytes([]int16{32767, 32767, -32768, -32768})
	assertSamples(t, audio.DownmixToMono(stereo, 2), []int16{32767, -32768})
}

func TestDownmixToMono_MonoPassThrough(t *testing.T) {
	mono := samplesToBytes([]int16{1, 2, 3})
	if got := audio.DownmixToMono(mono, 1); &got[0] != &mono[0] {
		t.Error("mono input should be returned unchanged")
	}
}

func TestResample16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.Resample16(pcm, 1, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResample16_Downsample(t *testing.T) {
	// 4 frames at 48 kHz -> 2 frames at 24 kHz, picking every other frame.
	pcm := samplesToBytes([]int16{0, 100, 200, 300})
	assertSamples(t, audio.Resample16(pcm, 1, 48000, 24000), []int16{0, 200})
}

func TestResample16_UpsampleInterpolates(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 100})
	assertSamples(t, audio.Resample16(pcm, 1, 8000, 16000), []int16{0, 50, 100, 100})
}

func TestResample16_StereoKeepsChannelsApart(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 1000, 100, 1000})
	assertSamples(t, audio.Resample16(pcm, 2, 8000, 16000), []int16{0, 1000, 50, 1000, 100, 1000, 100, 1000})
}

func TestResample16_InvalidRates(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2})
	if out := audio.Resample16(pcm, 1, 0, 16000); len(out) != len(pcm) {
		t.Errorf("zero source rate should return input unchanged")
	}
	if out := audio.Resample16(pcm, 1, 16000, -1); len(out) != len(pcm) {
		t.Errorf("negative target rate should return input unchanged")
	}
}

func TestConvert(t *testing.T) {
	stereo48 := audio.Format{SampleRate: 48000, Channels: 2}
	mono24 := audio.Format{SampleRate: 24000, Channels: 1}

	t.Run("same format", func(t *testing.T) {
		pcm := samplesToBytes([]int16{1, 2})
		out, err := audio.Convert(pcm, stereo48, stereo48)
		if err != nil {
			t.Fatal(err)
		}
		assertSamples(t, out, []int16{1, 2})
	})

	t.Run("stereo 48k to mono 24k", func(t *testing.T) {
		pcm := samplesToBytes([]int16{100, 300, 0, 0, 500, 700, 0, 0})
		out, err := audio.Convert(pcm, stereo48, mono24)
		if err != nil {
			t.Fatal(err)
		}
		assertSamples(t, out, []int16{200, 600})
	})

	t.Run("mono 24k to stereo 48k", func(t *testing.T) {
		pcm := samplesToBytes([]int16{0, 100})
		out, err := audio.Convert(pcm, mono24, stereo48)
		if err != nil {
			t.Fatal(err)
		}
		assertSamples(t, out, []int16{0, 0, 50, 50, 100, 100, 100, 100})
	})

	t.Run("partial frame", func(t *testing.T) {
		if _, err := audio.Convert([]byte{1, 2, 3}, mono24, stereo48); err == nil {
			t.Error("expected error for odd byte count")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		if _, err := audio.Convert(nil, audio.Format{}, mono24); err == nil {
			t.Error("expected error for zero format")
		}
	})
}

func TestNormalizeWAV(t *testing.T) {
	src := audio.EncodeWAV(samplesToBytes([]int16{100, 300, 500, 700}), audio.Format{SampleRate: 16000, Channels: 2})
	target := audio.Format{SampleRate: 16000, Channels: 1}

	out, err := audio.NormalizeWAV(src, target)
	if err != nil {
		t.Fatalf("NormalizeWAV: %v", err)
	}
	info, err := audio.ParseWAV(out)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.Format != target {
		t.Errorf("format = %v, want %v", info.Format, target)
	}
	assertSamples(t, info.PCM(out), []int16{200, 600})

	same, err := audio.NormalizeWAV(out, target)
	if err != nil {
		t.Fatal(err)
	}
	if len(same) != len(out) || &same[0] != &out[0] {
		t.Error("matching WAV should be returned unchanged")
	}
}

func TestNormalizeWAV_NotWAV(t *testing.T) {
	if _, err := audio.NormalizeWAV([]byte("not a wav file"), audio.Format{SampleRate: 8000, Channels: 1}); err == nil {
		t.Error("expected error for non-WAV input")
	}
}
