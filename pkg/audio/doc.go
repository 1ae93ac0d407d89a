// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines SampleFormat, Format and PCM packing helpers
// Package audio provides the PCM types shared by the playback controller
// and its output backends.
//
// This package defines:
//   - SampleFormat: a PCM sample encoding with logical and physical widths
//   - Format: encoding, sample rate and channel count of a stream
//
// The physical width drives frame sizing: a frame is one sample per
// channel, so an S16_LE mono stream has 2 bytes per frame and an S24_LE
// stereo stream (32-bit containers) has 8.
//
// Example:
//
//	format := audio.Format{
//	    Encoding:   audio.FormatS16LE,
//	    SampleRate: 16000,
//	    Channels:   1,
//	}
//	frames := format.Frames(len(pcm))
package audio
