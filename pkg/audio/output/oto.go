// ABOUTME: oto playback backend
// ABOUTME: oto allows one context per process, so the first stream fixes rate and channels
package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// OtoDriver opens the system default output through oto.
type OtoDriver struct {
	logger *slog.Logger

	mu        sync.Mutex
	ctx       *oto.Context
	rate      int
	channels  int
	format    audio.SampleFormat
	suspended bool
}

// NewOtoDriver creates the oto driver. The oto context is created when the
// first stream is configured and lives for the rest of the process.
func NewOtoDriver(logger *slog.Logger) *OtoDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &OtoDriver{logger: logger.With("backend", string(BackendOto))}
}

func (o *OtoDriver) Name() string {
	return string(BackendOto)
}

// Open opens the default device. oto cannot address other devices.
func (o *OtoDriver) Open(name string) (playback.Device, error) {
	if name != "" && name != "default" {
		return nil, fmt.Errorf("%w: %s (oto only drives the default device)", ErrNoSuchDevice, name)
	}
	stream := &otoStream{driver: o}
	return newStreamDevice(name, o.capabilities(), stream, o.logger), nil
}

func (o *OtoDriver) capabilities() Capabilities {
	o.mu.Lock()
	defer o.mu.Unlock()

	caps := DefaultCapabilities()
	caps.Formats = []audio.SampleFormat{audio.FormatU8, audio.FormatS16LE, audio.FormatFloat32LE}
	caps.MaxRate = 96000
	if o.ctx != nil {
		caps.Formats = []audio.SampleFormat{o.format}
		caps.MinChannels, caps.MaxChannels = o.channels, o.channels
		caps.Rates = []int{o.rate}
	}
	return caps
}

// ReleaseGlobal suspends the oto context. oto cannot destroy a context, so
// the next stream resumes it.
func (o *OtoDriver) ReleaseGlobal() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx == nil || o.suspended {
		return nil
	}
	if err := o.ctx.Suspend(); err != nil {
		return fmt.Errorf("oto suspend: %w", err)
	}
	o.suspended = true
	return nil
}

func (o *OtoDriver) acquire(cfg streamConfig) (*oto.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx != nil {
		if o.rate != cfg.Rate || o.channels != cfg.Channels || o.format != cfg.Format {
			return nil, fmt.Errorf("%w: oto context is fixed at %dHz %dch %s",
				ErrInvalidArgument, o.rate, o.channels, o.format)
		}
		if o.suspended {
			if err := o.ctx.Resume(); err != nil {
				return nil, fmt.Errorf("oto resume: %w", err)
			}
			o.suspended = false
		}
		return o.ctx, nil
	}

	format, err := otoFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	op := &oto.NewContextOptions{
		SampleRate:   cfg.Rate,
		ChannelCount: cfg.Channels,
		Format:       format,
		BufferSize:   framesToDuration(cfg.PeriodFrames, cfg.Rate),
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.ctx = ctx
	o.rate = cfg.Rate
	o.channels = cfg.Channels
	o.format = cfg.Format

	o.logger.Info("audio output initialized",
		"rate", cfg.Rate,
		"channels", cfg.Channels,
		"format", cfg.Format.String(),
	)
	return ctx, nil
}

func otoFormat(f audio.SampleFormat) (oto.Format, error) {
	switch f {
	case audio.FormatU8:
		return oto.FormatUnsignedInt8, nil
	case audio.FormatS16LE:
		return oto.FormatSignedInt16LE, nil
	case audio.FormatFloat32LE:
		return oto.FormatFloat32LE, nil
	}
	return 0, fmt.Errorf("%w: format %s", ErrInvalidArgument, f)
}

type otoStream struct {
	driver *OtoDriver
	player *oto.Player
}

// pullReader adapts the stream device callback to the io.Reader oto pulls
// from. It never runs dry; missing data is played as silence.
type pullReader func([]byte)

func (r pullReader) Read(p []byte) (int, error) {
	r(p)
	return len(p), nil
}

func (s *otoStream) open(cfg streamConfig, pull func([]byte)) error {
	ctx, err := s.driver.acquire(cfg)
	if err != nil {
		return err
	}
	s.player = ctx.NewPlayer(pullReader(pull))
	s.player.SetBufferSize(cfg.PeriodFrames * cfg.bytesPerFrame())
	return nil
}

func (s *otoStream) start() error {
	if s.player == nil {
		return ErrBadState
	}
	s.player.Play()
	return nil
}

func (s *otoStream) stop() error {
	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

func (s *otoStream) close() error {
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}
