package audio

import (
	"fmt"
	"log/slog"
)

// Format describes the sample rate and channel count of 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Convert converts interleaved 16-bit little-endian PCM from one format to
// another. When the formats match, pcm is returned unchanged. The sample rate
// is converted before the channel count when downmixing, and after when
// upmixing, so that the resampler always sees the smaller frame.
func Convert(pcm []byte, from, to Format) ([]byte, error) {
	if from.SampleRate <= 0 || to.SampleRate <= 0 || from.Channels <= 0 || to.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid conversion %s -> %s", from, to)
	}
	if len(pcm)%(2*from.Channels) != 0 {
		return nil, fmt.Errorf("audio: %d bytes is not a whole number of %s frames", len(pcm), from)
	}
	if from == to {
		return pcm, nil
	}

	if to.Channels < from.Channels {
		pcm = Resample16(pcm, from.Channels, from.SampleRate, to.SampleRate)
		return remix16(pcm, from.Channels, to.Channels), nil
	}
	pcm = remix16(pcm, from.Channels, to.Channels)
	return Resample16(pcm, to.Channels, from.SampleRate, to.SampleRate), nil
}

// NormalizeWAV re-encodes a WAV buffer into target. Buffers that already match
// are returned unchanged.
func NormalizeWAV(wav []byte, target Format) ([]byte, error) {
	info, err := ParseWAV(wav)
	if err != nil {
		return nil, err
	}
	if info.BitsPerSample != 16 {
		return nil, fmt.Errorf("audio: unsupported WAV bit depth %d", info.BitsPerSample)
	}
	if info.Format == target {
		return wav, nil
	}
	slog.Debug("audio: normalizing WAV", "from", info.Format.String(), "to", target.String())
	pcm, err := Convert(info.PCM(wav), info.Format, target)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(pcm, target), nil
}

// DownmixToMono averages all channels of each frame. Uses int32 arithmetic so
// that the sum cannot overflow.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameSize := channels * 2
	frames := len(pcm) / frameSize
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(sample(pcm, i*channels+c))
		}
		putSample(out, i, clamp16(sum/int32(channels)))
	}
	return out
}

// Resample16 resamples interleaved 16-bit PCM with the given channel count
// from srcRate to dstRate using linear interpolation per channel. If the rates
// match or are invalid, the input is returned unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*2*channels)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range channels {
			s0 := float64(sample(pcm, idx*channels+c))
			s1 := float64(sample(pcm, next*channels+c))
			putSample(out, i*channels+c, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

// remix16 changes the channel count. Mono is duplicated into every output
// channel; anything else is first averaged to mono.
func remix16(pcm []byte, from, to int) []byte {
	if from == to {
		return pcm
	}
	mono := DownmixToMono(pcm, from)
	if to == 1 {
		return mono
	}
	n := len(mono) / 2
	out := make([]byte, n*2*to)
	for i := range n {
		s := sample(mono, i)
		for c := range to {
			putSample(out, i*to+c, s)
		}
	}
	return out
}

func sample(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
