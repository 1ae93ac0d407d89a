//go:build portaudio

// ABOUTME: PortAudio playback backend
// ABOUTME: Initialize on first open, Terminate when the last controller closes
package output

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

const portAudioAvailable = true

// PortAudioDriver opens PortAudio output devices.
type PortAudioDriver struct {
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// NewPortAudioDriver creates the PortAudio driver.
func NewPortAudioDriver(logger *slog.Logger) playback.Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioDriver{logger: logger.With("backend", string(BackendPortAudio))}
}

func (p *PortAudioDriver) Name() string {
	return string(BackendPortAudio)
}

func (p *PortAudioDriver) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

// Open opens a device by its PortAudio name. "default" and the empty name
// select the default output.
func (p *PortAudioDriver) Open(name string) (playback.Device, error) {
	if err := p.init(); err != nil {
		return nil, err
	}

	info, err := findPortAudioDevice(name)
	if err != nil {
		return nil, err
	}

	caps := DefaultCapabilities()
	caps.Formats = []audio.SampleFormat{audio.FormatS16LE, audio.FormatS32LE, audio.FormatFloat32LE}
	if info.MaxOutputChannels > 0 {
		caps.MaxChannels = info.MaxOutputChannels
	}

	stream := &portAudioStream{info: info}
	return newStreamDevice(name, caps, stream, p.logger), nil
}

func findPortAudioDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		info, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default output: %v", ErrNoSuchDevice, err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list portaudio devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchDevice, name)
}

// ReleaseGlobal terminates PortAudio.
func (p *PortAudioDriver) ReleaseGlobal() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

type portAudioStream struct {
	info   *portaudio.DeviceInfo
	stream *portaudio.Stream
	buf    []byte
}

func (s *portAudioStream) scratch(n int) []byte {
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	return s.buf[:n]
}

func (s *portAudioStream) open(cfg streamConfig, pull func([]byte)) error {
	params := portaudio.HighLatencyParameters(nil, s.info)
	params.Input.Channels = 0
	params.Output.Channels = cfg.Channels
	params.SampleRate = float64(cfg.Rate)
	params.FramesPerBuffer = cfg.PeriodFrames

	s.buf = make([]byte, cfg.PeriodFrames*cfg.bytesPerFrame())

	var callback interface{}
	switch cfg.Format {
	case audio.FormatS16LE:
		callback = func(out []int16) {
			raw := s.scratch(len(out) * 2)
			pull(raw)
			for i := range out {
				out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
		}
	case audio.FormatS32LE:
		callback = func(out []int32) {
			raw := s.scratch(len(out) * 4)
			pull(raw)
			for i := range out {
				out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
			}
		}
	case audio.FormatFloat32LE:
		callback = func(out []float32) {
			raw := s.scratch(len(out) * 4)
			pull(raw)
			for i := range out {
				out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			}
		}
	default:
		return fmt.Errorf("%w: format %s", ErrInvalidArgument, cfg.Format)
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *portAudioStream) start() error {
	if s.stream == nil {
		return ErrBadState
	}
	return s.stream.Start()
}

func (s *portAudioStream) stop() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Stop()
}

func (s *portAudioStream) close() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}
