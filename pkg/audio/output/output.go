// ABOUTME: Playback backend selection
// ABOUTME: Maps backend names to process-wide playback.Driver instances
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// Backend names a platform audio API.
type Backend string

const (
	BackendAuto      Backend = "auto"
	BackendALSA      Backend = "alsa"
	BackendMalgo     Backend = "malgo"
	BackendOto       Backend = "oto"
	BackendPortAudio Backend = "portaudio"
	BackendSim       Backend = "sim"
)

// Device errors shared by the backends.
var (
	ErrInvalidArgument = errors.New("output: invalid argument")
	ErrBadState        = errors.New("output: stream in bad state")
	ErrNoSuchDevice    = errors.New("output: no such device")
	ErrDisconnected    = errors.New("output: device disconnected")
	ErrDrainTimeout    = errors.New("output: drain timed out")
	ErrBackendDisabled = errors.New("output: backend not compiled in")
	ErrUnknownBackend  = errors.New("output: unknown backend")
)

// ParseBackend parses a backend name. The empty string selects auto.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendALSA, BackendMalgo, BackendOto, BackendPortAudio, BackendSim:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

var (
	driversMu sync.Mutex
	drivers   = make(map[Backend]playback.Driver)
)

// NewDriver returns the driver for backend. Drivers own process-global
// platform state, so every call for the same backend returns the same
// instance.
func NewDriver(backend Backend, logger *slog.Logger) (playback.Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == BackendAuto || backend == "" {
		backend = autoBackend()
	}

	driversMu.Lock()
	defer driversMu.Unlock()

	if d, ok := drivers[backend]; ok {
		return d, nil
	}

	var d playback.Driver
	switch backend {
	case BackendALSA:
		if !alsaAvailable {
			return nil, fmt.Errorf("%w: %s (build with -tags alsa)", ErrBackendDisabled, backend)
		}
		d = NewALSADriver(logger)
	case BackendMalgo:
		d = NewMalgoDriver(logger)
	case BackendOto:
		d = NewOtoDriver(logger)
	case BackendPortAudio:
		if !portAudioAvailable {
			return nil, fmt.Errorf("%w: %s (build with -tags portaudio)", ErrBackendDisabled, backend)
		}
		d = NewPortAudioDriver(logger)
	case BackendSim:
		d = NewSimDriver(SimOptions{}, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	drivers[backend] = d
	logger.Debug("audio backend selected", "backend", string(backend))
	return d, nil
}

func autoBackend() Backend {
	if alsaAvailable {
		return BackendALSA
	}
	return BackendMalgo
}
