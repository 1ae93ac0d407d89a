// ABOUTME: Test tone utterance source
// ABOUTME: Generates sine-wave utterances that stand in for the synthesizer
package utterance

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/speechkit/ttsplay/pkg/audio"
)

// ToneOptions configures the tone source.
type ToneOptions struct {
	// Frequency in Hz. Zero means 440 Hz (A4).
	Frequency float64
	// Duration of each utterance. Zero means one second.
	Duration time.Duration
	// Count is the number of utterances. Zero means one.
	Count int
	// Amplitude from 0 to 1. Zero means 0.5.
	Amplitude float64
}

// ToneSource generates sine-wave utterances. Phase continues across
// utterances.
type ToneSource struct {
	opts        ToneOptions
	format      audio.Format
	sampleIndex uint64
	emitted     int
}

// NewToneSource creates a tone generator in format.
func NewToneSource(opts ToneOptions, format audio.Format) *ToneSource {
	if opts.Frequency <= 0 {
		opts.Frequency = 440.0
	}
	if opts.Duration <= 0 {
		opts.Duration = time.Second
	}
	if opts.Count <= 0 {
		opts.Count = 1
	}
	if opts.Amplitude <= 0 || opts.Amplitude > 1 {
		opts.Amplitude = 0.5
	}
	return &ToneSource{opts: opts, format: format}
}

func (s *ToneSource) Next() (*Utterance, error) {
	if s.emitted >= s.opts.Count {
		return nil, io.EOF
	}
	if s.format.Encoding != audio.FormatS16LE {
		return nil, fmt.Errorf("tone: output format %s not supported", s.format.Encoding)
	}
	s.emitted++

	frames := s.format.FramesIn(s.opts.Duration)
	channels := s.format.Channels
	samples := make([]int16, frames*channels)

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		sample := math.Sin(2 * math.Pi * s.opts.Frequency * t)
		pcmValue := int16(sample * 32767.0 * s.opts.Amplitude)

		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = pcmValue
		}
	}
	s.sampleIndex += uint64(frames)

	return &Utterance{
		Name:   fmt.Sprintf("tone-%d", s.emitted),
		Format: s.format,
		PCM:    audio.Int16ToBytes(samples),
	}, nil
}

func (s *ToneSource) Close() error {
	return nil
}
