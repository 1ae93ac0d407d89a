// ABOUTME: Tests for audio types
// ABOUTME: Tests format widths, parsing and PCM packing
package audio

import (
	"testing"
	"time"
)

func TestPhysicalWidth(t *testing.T) {
	tests := []struct {
		format   SampleFormat
		width    int
		physical int
	}{
		{FormatS8, 8, 8},
		{FormatU8, 8, 8},
		{FormatS16LE, 16, 16},
		{FormatS16BE, 16, 16},
		{FormatS24LE, 24, 32},
		{FormatS24_3LE, 24, 24},
		{FormatS32LE, 32, 32},
		{FormatFloat32LE, 32, 32},
		{FormatFloat64LE, 64, 64},
		{FormatInvalid, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.Width(); got != tt.width {
				t.Errorf("Width: expected %d, got %d", tt.width, got)
			}
			if got := tt.format.PhysicalWidth(); got != tt.physical {
				t.Errorf("PhysicalWidth: expected %d, got %d", tt.physical, got)
			}
		})
	}
}

func TestParseSampleFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected SampleFormat
	}{
		{"S16_LE", FormatS16LE},
		{"s16le", FormatS16LE},
		{"s16-le", FormatS16LE},
		{"S24_3LE", FormatS24_3LE},
		{"float", FormatFloat32LE},
		{"FLOAT_LE", FormatFloat32LE},
		{"U8", FormatU8},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSampleFormat(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}

	if _, err := ParseSampleFormat("mp3"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFormatBytesPerFrame(t *testing.T) {
	f := Format{Encoding: FormatS16LE, SampleRate: 16000, Channels: 1}
	if got := f.BytesPerFrame(); got != 2 {
		t.Errorf("expected 2 bytes per frame, got %d", got)
	}

	f = Format{Encoding: FormatS24LE, SampleRate: 48000, Channels: 2}
	if got := f.BytesPerFrame(); got != 8 {
		t.Errorf("expected 8 bytes per frame, got %d", got)
	}
	if got := f.Frames(81); got != 10 {
		t.Errorf("expected 10 whole frames, got %d", got)
	}
}

func TestFormatDuration(t *testing.T) {
	f := Format{Encoding: FormatS16LE, SampleRate: 16000, Channels: 1}
	if got := f.Duration(8000); got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}
	if got := f.FramesIn(62500 * time.Microsecond); got != 1000 {
		t.Errorf("expected 1000 frames, got %d", got)
	}
}

func TestInt16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	data := Int16ToBytes(samples)
	if len(data) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(data))
	}
	if data[2] != 0x01 || data[3] != 0x00 {
		t.Errorf("expected little-endian encoding, got %x", data[2:4])
	}

	back := BytesToInt16(append(data, 0xff))
	if len(back) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(back))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}
