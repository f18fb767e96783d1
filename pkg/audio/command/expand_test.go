package command

import (
	"slices"
	"testing"

	"github.com/MrWong99/sheng/pkg/audio"
)

func TestExpand_DefaultCaptureCommand(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.CaptureFormat
		codec   string
		bitrate string
	}{
		{"default is high quality aac", audio.DefaultCaptureFormat, "aac", "192000"},
		{"medium", audio.CaptureFormat{SampleRate: 44100, Channels: 1, Codec: audio.CodecAAC, Quality: audio.QualityMedium}, "aac", "128000"},
		{"low", audio.CaptureFormat{SampleRate: 44100, Channels: 1, Codec: audio.CodecAAC, Quality: audio.QualityLow}, "aac", "64000"},
		{"wav", audio.WAVCaptureFormat, "pcm_s16le", "705600"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv := expand(DefaultCaptureCommand, captureVars("/tmp/take.m4a", tt.format))
			want := []string{
				"ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
				"-f", "pulse", "-i", "default",
				"-ac", "1", "-ar", "44100", "-c:a", tt.codec, "-b:a", tt.bitrate,
				"/tmp/take.m4a",
			}
			if !slices.Equal(argv, want) {
				t.Errorf("argv = %q\nwant   %q", argv, want)
			}
		})
	}
}
