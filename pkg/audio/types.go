// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM sample formats and stream formats
package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// SampleFormat identifies a PCM sample encoding.
type SampleFormat int

const (
	FormatInvalid SampleFormat = iota
	FormatS8
	FormatU8
	FormatS16LE
	FormatS16BE
	FormatS24LE   // 24 bits in a 32-bit little-endian container
	FormatS24_3LE // packed 3-byte little-endian
	FormatS32LE
	FormatFloat32LE
	FormatFloat64LE
)

var formatNames = map[SampleFormat]string{
	FormatS8:        "S8",
	FormatU8:        "U8",
	FormatS16LE:     "S16_LE",
	FormatS16BE:     "S16_BE",
	FormatS24LE:     "S24_LE",
	FormatS24_3LE:   "S24_3LE",
	FormatS32LE:     "S32_LE",
	FormatFloat32LE: "FLOAT_LE",
	FormatFloat64LE: "FLOAT64_LE",
}

// String returns the ALSA-style name of the format
func (f SampleFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(f))
}

// Width returns the number of significant bits per sample
func (f SampleFormat) Width() int {
	switch f {
	case FormatS8, FormatU8:
		return 8
	case FormatS16LE, FormatS16BE:
		return 16
	case FormatS24LE, FormatS24_3LE:
		return 24
	case FormatS32LE, FormatFloat32LE:
		return 32
	case FormatFloat64LE:
		return 64
	default:
		return 0
	}
}

// PhysicalWidth returns the number of bits a sample occupies in memory.
// S24_LE is carried in a 32-bit container, so it reports 32.
func (f SampleFormat) PhysicalWidth() int {
	if f == FormatS24LE {
		return 32
	}
	return f.Width()
}

// Valid reports whether f names a known format
func (f SampleFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// ParseSampleFormat parses names such as "S16_LE", "s16le" or "float".
func ParseSampleFormat(s string) (SampleFormat, error) {
	key := strings.ToUpper(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s)))
	switch key {
	case "FLOAT", "FLOATLE", "F32", "F32LE":
		return FormatFloat32LE, nil
	case "FLOAT64", "FLOAT64LE", "F64", "F64LE":
		return FormatFloat64LE, nil
	}
	for f, name := range formatNames {
		if strings.ReplaceAll(name, "_", "") == key {
			return f, nil
		}
	}
	return FormatInvalid, fmt.Errorf("unknown sample format %q", s)
}

// Format describes a PCM stream
type Format struct {
	Encoding   SampleFormat
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the size of one frame (one sample per channel)
func (f Format) BytesPerFrame() int {
	return f.Encoding.PhysicalWidth() / 8 * f.Channels
}

// Frames converts a byte count into whole frames
func (f Format) Frames(bytes int) int {
	bpf := f.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return bytes / bpf
}

// Duration returns the playback time of the given number of frames
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// FramesIn returns how many frames fit in d at the format's rate
func (f Format) FramesIn(d time.Duration) int {
	return int(int64(d) * int64(f.SampleRate) / int64(time.Second))
}

// String renders the format as e.g. "S16_LE 16000Hz 1ch"
func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch", f.Encoding, f.SampleRate, f.Channels)
}

// Int16ToBytes packs samples as little-endian 16-bit PCM
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 unpacks little-endian 16-bit PCM. A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SilenceByte returns the byte value that encodes silence for f
func SilenceByte(f SampleFormat) byte {
	if f == FormatU8 {
		return 0x80
	}
	return 0
}
