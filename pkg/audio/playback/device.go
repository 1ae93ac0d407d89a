// ABOUTME: Device and driver contracts the playback controller drives
// ABOUTME: Mirrors the PCM handle model: refinable hw params, writei, wait, status
package playback

import (
	"errors"
	"time"

	"github.com/speechkit/ttsplay/pkg/audio"
)

// Conditions a Device reports from WriteFrames, Wait and Resume. Backends
// wrap their native errors so that errors.Is matches these.
var (
	// ErrAgain means the device cannot take data right now (EAGAIN). From
	// Resume it means the platform has not released the suspend yet.
	ErrAgain = errors.New("playback: resource temporarily unavailable")

	// ErrUnderrun means the device buffer ran dry (EPIPE).
	ErrUnderrun = errors.New("playback: buffer underrun")

	// ErrSuspended means the stream was suspended by the platform (ESTRPIPE).
	ErrSuspended = errors.New("playback: stream suspended")
)

// Access is the transfer layout requested from the device.
type Access int

const (
	AccessRWInterleaved Access = iota
	AccessRWNonInterleaved
	AccessMMapInterleaved
)

func (a Access) String() string {
	switch a {
	case AccessRWInterleaved:
		return "RW_INTERLEAVED"
	case AccessRWNonInterleaved:
		return "RW_NONINTERLEAVED"
	case AccessMMapInterleaved:
		return "MMAP_INTERLEAVED"
	default:
		return "UNKNOWN"
	}
}

// State is the PCM stream state as reported by Device.Status.
type State int

const (
	StateOpen State = iota
	StateSetup
	StatePrepared
	StateRunning
	StateXRun
	StateDraining
	StatePaused
	StateSuspended
	StateDisconnected
)

var stateNames = [...]string{
	StateOpen:         "OPEN",
	StateSetup:        "SETUP",
	StatePrepared:     "PREPARED",
	StateRunning:      "RUNNING",
	StateXRun:         "XRUN",
	StateDraining:     "DRAINING",
	StatePaused:       "PAUSED",
	StateSuspended:    "SUSPENDED",
	StateDisconnected: "DISCONNECTED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Status is a snapshot of the stream.
type Status struct {
	State State
	// TriggerTime is when the stream last changed run state (started,
	// stopped or hit an xrun).
	TriggerTime time.Time
	// Avail is the number of frames the device can accept.
	Avail int
	// Delay is the number of frames queued ahead of the hardware pointer.
	Delay int
}

// HardwareParams is a configuration space that narrows with every Set call,
// in the manner of snd_pcm_hw_params. The Near setters return the value the
// device actually chose.
type HardwareParams interface {
	SetAccess(Access) error
	SetFormat(audio.SampleFormat) error
	SetChannels(channels int) error
	SetRateNear(rate int) (int, error)
	BufferTimeMax() (time.Duration, error)
	SetPeriodTimeNear(d time.Duration) (time.Duration, error)
	SetBufferTimeNear(d time.Duration) (time.Duration, error)

	// PeriodSize and BufferSize are in frames and are only meaningful
	// after the params were installed.
	PeriodSize() (int, error)
	BufferSize() (int, error)

	// String dumps the configuration space for diagnostics.
	String() string
}

// SoftwareParams are the device-side flow-control thresholds, in frames.
type SoftwareParams struct {
	AvailMin       int
	StartThreshold int
	StopThreshold  int
}

// Device is an open playback PCM. It is owned by exactly one controller and
// is not safe for concurrent use.
type Device interface {
	// Name returns the identifier the device was opened with.
	Name() string

	// HardwareParams returns the full configuration space of the device.
	// An empty space is reported as ErrNoConfigurationAvailable.
	HardwareParams() (HardwareParams, error)
	InstallHardwareParams(HardwareParams) error
	InstallSoftwareParams(SoftwareParams) error

	// WriteFrames writes up to frames interleaved frames from p. It returns
	// the number of frames accepted, which may be fewer than requested.
	WriteFrames(p []byte, frames int) (int, error)

	// Wait blocks until the device can accept at least avail-min frames or
	// the timeout passes. It returns false on timeout.
	Wait(timeout time.Duration) (bool, error)

	Status() (Status, error)
	Prepare() error
	Reset() error
	Resume() error
	Drain() error
	Close() error
}

// Driver opens devices of one platform backend and owns the backend's
// process-global state.
type Driver interface {
	Name() string
	Open(name string) (Device, error)

	// ReleaseGlobal frees the platform's shared configuration. The
	// controller calls it when the last controller of this driver closes.
	// It must be safe to call more than once.
	ReleaseGlobal() error
}
