// ABOUTME: Playback error taxonomy
// ABOUTME: Sentinels for negotiation failures plus typed device, fatal and rejection errors
package playback

import (
	"errors"
	"fmt"
)

// Negotiation and write errors.
var (
	ErrDeviceOpen               = errors.New("playback: audio open error")
	ErrNoConfigurationAvailable = errors.New("playback: broken configuration for this PCM: no configurations available")
	ErrUnsupportedAccess        = errors.New("playback: access type not available")
	ErrUnsupportedFormat        = errors.New("playback: sample format not available")
	ErrUnsupportedChannelCount  = errors.New("playback: channel count not available")
	ErrConfigurationRejected    = errors.New("playback: unable to install params")
	ErrDegenerateBuffering      = errors.New("playback: can't use period equal to buffer size")
	ErrDeviceTimeout            = errors.New("playback: device wait timed out")
	ErrPartialFrame             = errors.New("playback: buffer is not a whole number of frames")
	ErrClosed                   = errors.New("playback: controller closed")
	ErrInvalidConfig            = errors.New("playback: invalid config")
)

// Fatal conditions carried by FatalError.
var (
	// ErrUnrecoverable means the device could not be re-armed after an
	// underrun or suspend.
	ErrUnrecoverable = errors.New("playback: stream cannot be re-armed")

	// ErrProtocolViolation means the device reported a state that no
	// recovery path accepts.
	ErrProtocolViolation = errors.New("playback: unexpected device state")
)

// DeviceError is a device call that failed for a reason other than the
// conditions the writer recovers from.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("playback: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// FatalError reports that the stream could not be recovered. The controller
// has already been closed when it is returned; the caller decides whether to
// exit or rebuild the stream.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("playback: fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// RejectedError carries the dump of a parameter set the device refused.
type RejectedError struct {
	Stage string
	Dump  string
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("playback: unable to install %s params: %v", e.Stage, e.Err)
}

// Unwrap matches both ErrConfigurationRejected and the device cause.
func (e *RejectedError) Unwrap() []error {
	return []error{ErrConfigurationRejected, e.Err}
}

// negotiationError tags a device failure with the taxonomy sentinel while
// keeping the device diagnostic in the message.
func negotiationError(kind error, detail string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, detail)
	}
	return fmt.Errorf("%w: %s: %w", kind, detail, cause)
}
