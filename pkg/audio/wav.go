package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// WAVInfo describes a RIFF/WAVE buffer.
type WAVInfo struct {
	// Format is the sample rate and channel count from the fmt chunk.
	Format Format

	// BitsPerSample is 16 for the PCM this package produces.
	BitsPerSample int

	// DataOffset is the byte offset of the first sample.
	DataOffset int

	// DataSize is the length of the data chunk in bytes, clamped to the buffer.
	DataSize int
}

// Duration returns the playing time of the data chunk.
func (w WAVInfo) Duration() time.Duration {
	frameSize := w.Format.Channels * w.BitsPerSample / 8
	if frameSize <= 0 || w.Format.SampleRate <= 0 {
		return 0
	}
	frames := int64(w.DataSize / frameSize)
	return time.Duration(frames) * time.Second / time.Duration(w.Format.SampleRate)
}

// PCM returns the sample bytes of wav described by w.
func (w WAVInfo) PCM(wav []byte) []byte {
	return wav[w.DataOffset : w.DataOffset+w.DataSize]
}

// ParseWAV walks the RIFF chunks of wav and returns its format and data
// location. Unknown chunks (LIST, fact, ...) are skipped.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, errors.New("audio: WAV too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, errors.New("audio: WAV missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("audio: WAV missing WAVE identifier")
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return WAVInfo{}, fmt.Errorf("audio: WAV fmt chunk truncated (%d bytes)", chunkSize)
			}
			body := wav[offset+8:]
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 && tag != 0xFFFE {
				return WAVInfo{}, fmt.Errorf("audio: unsupported WAV format tag %#x", tag)
			}
			info.Format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.Format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAVInfo{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			info.DataOffset = offset + 8
			// Streaming writers leave the size at 0 or 0xFFFFFFFF.
			info.DataSize = min(chunkSize, len(wav)-info.DataOffset)
			if chunkSize == 0 {
				info.DataSize = len(wav) - info.DataOffset
			}
			return info, nil
		}

		// Chunks are word-aligned.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: WAV missing data chunk")
}

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte RIFF/WAVE
// header.
func EncodeWAV(pcm []byte, f Format) []byte {
	const bits = 16
	blockAlign := f.Channels * bits / 8
	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bits)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
