// Package command provides [audio.CaptureEngine] and [audio.PlaybackEngine]
// implementations that drive external programs, by default ffmpeg for
// recording and ffplay for playback.
//
// Commands are argument vectors with placeholders that are substituted per
// invocation:
//
//	{output}    capture file path
//	{rate}      capture sample rate in Hz
//	{channels}  capture channel count
//	{codec}     ffmpeg encoder name for the capture codec
//	{bitrate}   encoder bitrate in bits per second, from the capture quality
//	{input}     playback file path
//
// A capture pipeline is stopped with an interrupt so that the encoder can
// finalise its container. Playback is paused by suspending the player's
// process group, which is only supported on Unix.
package command

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/sheng/pkg/audio"
)

// Default command lines.
var (
	DefaultCaptureCommand = []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "pulse", "-i", "default",
		"-ac", "{channels}", "-ar", "{rate}", "-c:a", "{codec}", "-b:a", "{bitrate}",
		"{output}",
	}

	DefaultPlaybackCommand = []string{
		"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", "{input}",
	}
)

// DefaultStopTimeout bounds how long Stop waits for a process to exit after
// the interrupt before killing it.
const DefaultStopTimeout = 5 * time.Second

// ErrEmptyCommand is returned when an engine is configured with no program.
var ErrEmptyCommand = errors.New("command: empty command line")

func expand(argv []string, vars map[string]string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		for k, v := range vars {
			a = strings.ReplaceAll(a, "{"+k+"}", v)
		}
		out[i] = a
	}
	return out
}

func captureVars(path string, f audio.CaptureFormat) map[string]string {
	codec := "aac"
	if f.Codec == audio.CodecPCM {
		codec = "pcm_s16le"
	}
	return map[string]string{
		"output":   path,
		"rate":     strconv.Itoa(f.SampleRate),
		"channels": strconv.Itoa(f.Channels),
		"codec":    codec,
		"bitrate":  strconv.Itoa(f.Bitrate()),
	}
}

// lookPath reports whether the program of argv can be found.
func lookPath(argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return ErrEmptyCommand
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("command: %s: %w", argv[0], err)
	}
	return nil
}
