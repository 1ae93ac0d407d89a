//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"
	"log/slog"

	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

const portAudioAvailable = false

// PortAudioDriver is a placeholder that refuses to open devices.
type PortAudioDriver struct{}

// NewPortAudioDriver creates the placeholder driver.
func NewPortAudioDriver(*slog.Logger) playback.Driver {
	return &PortAudioDriver{}
}

func (p *PortAudioDriver) Name() string {
	return string(BackendPortAudio)
}

func (p *PortAudioDriver) Open(string) (playback.Device, error) {
	return nil, fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrBackendDisabled)
}

func (p *PortAudioDriver) ReleaseGlobal() error {
	return nil
}
