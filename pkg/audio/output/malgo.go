// ABOUTME: miniaudio playback backend via malgo
// ABOUTME: One shared miniaudio context per process, released with the last controller
package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// MalgoDriver opens miniaudio playback devices.
type MalgoDriver struct {
	logger *slog.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoDriver creates the miniaudio driver. The context is created on
// first Open.
func NewMalgoDriver(logger *slog.Logger) *MalgoDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoDriver{logger: logger.With("backend", string(BackendMalgo))}
}

func (m *MalgoDriver) Name() string {
	return string(BackendMalgo)
}

func (m *MalgoDriver) context() (*malgo.AllocatedContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return m.ctx, nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		m.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	m.ctx = ctx
	return ctx, nil
}

// Open opens a playback device by its miniaudio name. "default" and the
// empty name select the system default.
func (m *MalgoDriver) Open(name string) (playback.Device, error) {
	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	stream := &malgoStream{ctx: ctx, logger: m.logger}
	if name != "" && name != "default" {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, fmt.Errorf("failed to list playback devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == name {
				id := info.ID
				stream.id = &id
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchDevice, name)
		}
	}

	dev := newStreamDevice(name, malgoCapabilities(), stream, m.logger)
	stream.onStop = dev.platformStopped
	return dev, nil
}

// ReleaseGlobal tears down the miniaudio context.
func (m *MalgoDriver) ReleaseGlobal() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	if err != nil {
		return fmt.Errorf("malgo context uninit: %w", err)
	}
	return nil
}

func malgoCapabilities() Capabilities {
	caps := DefaultCapabilities()
	caps.Formats = []audio.SampleFormat{
		audio.FormatU8,
		audio.FormatS16LE,
		audio.FormatS24_3LE,
		audio.FormatS32LE,
		audio.FormatFloat32LE,
	}
	caps.MaxChannels = 8
	caps.MaxRate = 384000
	caps.MaxPeriods = 16
	return caps
}

func malgoFormat(f audio.SampleFormat) (malgo.FormatType, error) {
	switch f {
	case audio.FormatU8:
		return malgo.FormatU8, nil
	case audio.FormatS16LE:
		return malgo.FormatS16, nil
	case audio.FormatS24_3LE:
		return malgo.FormatS24, nil
	case audio.FormatS32LE:
		return malgo.FormatS32, nil
	case audio.FormatFloat32LE:
		return malgo.FormatF32, nil
	}
	return malgo.FormatUnknown, fmt.Errorf("%w: format %s", ErrInvalidArgument, f)
}

type malgoStream struct {
	ctx    *malgo.AllocatedContext
	id     *malgo.DeviceID
	logger *slog.Logger
	onStop func()

	device *malgo.Device
}

func (s *malgoStream) open(cfg streamConfig, pull func([]byte)) error {
	format, err := malgoFormat(cfg.Format)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.Rate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	deviceConfig.Periods = uint32(cfg.Periods)
	deviceConfig.Alsa.NoMMap = 1
	if s.id != nil {
		deviceConfig.Playback.DeviceID = s.id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, _ []byte, _ uint32) {
			pull(pOutputSample)
		},
		Stop: func() {
			if s.onStop != nil {
				s.onStop()
			}
		},
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	s.device = device

	s.logger.Info("audio output initialized",
		"rate", cfg.Rate,
		"channels", cfg.Channels,
		"format", cfg.Format.String(),
		"period_frames", cfg.PeriodFrames,
		"periods", cfg.Periods,
	)
	return nil
}

func (s *malgoStream) start() error {
	if s.device == nil {
		return ErrBadState
	}
	return s.device.Start()
}

func (s *malgoStream) stop() error {
	if s.device == nil {
		return nil
	}
	return s.device.Stop()
}

func (s *malgoStream) close() error {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return nil
}
