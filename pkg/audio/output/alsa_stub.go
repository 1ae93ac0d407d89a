//go:build !(alsa && linux && cgo)

// ABOUTME: libasound stub when the alsa build tag is not set
// ABOUTME: Keeps NewALSADriver available so backend selection compiles everywhere
package output

import (
	"fmt"
	"log/slog"

	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

const alsaAvailable = false

// ALSADriver is a placeholder that refuses to open devices.
type ALSADriver struct{}

// NewALSADriver creates the placeholder driver.
func NewALSADriver(*slog.Logger) playback.Driver {
	return &ALSADriver{}
}

func (a *ALSADriver) Name() string {
	return string(BackendALSA)
}

func (a *ALSADriver) Open(string) (playback.Device, error) {
	return nil, fmt.Errorf("%w: ALSA support not enabled (build with -tags alsa)", ErrBackendDisabled)
}

func (a *ALSADriver) ReleaseGlobal() error {
	return nil
}
