// ABOUTME: Playback request configuration and negotiated parameters
// ABOUTME: Defaults match the speech player: S16_LE mono 16 kHz, 500ms in 8 periods
package playback

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/speechkit/ttsplay/pkg/audio"
)

// ResumePolicy bounds the suspend-resume retry loop.
type ResumePolicy struct {
	// Interval is the sleep between resume attempts.
	Interval time.Duration
	// MaxAttempts caps the attempts while the platform answers "not yet".
	// Zero means a single attempt.
	MaxAttempts int
}

// Config is the request handed to Open.
type Config struct {
	// Device is the platform device identifier, e.g. "default" or "hw:0,0".
	Device string

	Format   audio.SampleFormat
	Channels int
	Rate     int

	// BufferTime is the target total buffering latency. It is clamped to
	// the device maximum.
	BufferTime time.Duration

	// MinPeriods is how many periods the buffer is divided into.
	MinPeriods int

	// WaitTimeout bounds each wait for the device to drain.
	WaitTimeout time.Duration

	Resume ResumePolicy

	// StrictSoftwareParams makes a failure to install the flow-control
	// thresholds abort Open instead of being logged.
	StrictSoftwareParams bool

	Logger *slog.Logger
	Meter  metric.Meter
}

// DefaultConfig returns the settings the speech player uses: the default
// device, S16_LE mono at 16 kHz, 500ms buffered in 8 periods.
func DefaultConfig() Config {
	return Config{
		Device:      "default",
		Format:      audio.FormatS16LE,
		Channels:    1,
		Rate:        16000,
		BufferTime:  500 * time.Millisecond,
		MinPeriods:  8,
		WaitTimeout: 1000 * time.Millisecond,
		Resume: ResumePolicy{
			Interval:    time.Second,
			MaxAttempts: 30,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("%w: device name is empty", ErrInvalidConfig)
	}
	if !c.Format.Valid() {
		return fmt.Errorf("%w: unknown sample format %v", ErrInvalidConfig, c.Format)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidConfig, c.Channels)
	}
	if c.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive, got %d", ErrInvalidConfig, c.Rate)
	}
	if c.BufferTime <= 0 {
		return fmt.Errorf("%w: buffer time must be positive, got %v", ErrInvalidConfig, c.BufferTime)
	}
	if c.MinPeriods <= 0 {
		return fmt.Errorf("%w: min periods must be positive, got %d", ErrInvalidConfig, c.MinPeriods)
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("%w: wait timeout must be positive, got %v", ErrInvalidConfig, c.WaitTimeout)
	}
	if c.Resume.MaxAttempts < 0 {
		return fmt.Errorf("%w: resume attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Params is the outcome of negotiation. It is a plain value.
type Params struct {
	Format   audio.SampleFormat
	Channels int
	// Rate is what the device granted, which may differ from the request.
	Rate int

	ChunkBytes int
	// ChunkCount is how many chunks fit in the device buffer.
	ChunkCount int

	ChunkFrames   int
	BufferFrames  int
	BytesPerFrame int
	PeriodTime    time.Duration
	BufferTime    time.Duration
}

// AudioFormat returns the negotiated stream format.
func (p Params) AudioFormat() audio.Format {
	return audio.Format{Encoding: p.Format, SampleRate: p.Rate, Channels: p.Channels}
}
