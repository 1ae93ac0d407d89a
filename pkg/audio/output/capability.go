// ABOUTME: Software hardware-parameter space for callback backends
// ABOUTME: Refines format, channels, rate, period and buffer by nearest match
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// Capabilities is the configuration space a device accepts.
type Capabilities struct {
	Formats     []audio.SampleFormat
	MinChannels int
	MaxChannels int

	// Rates lists discrete rates. When empty, any rate in
	// [MinRate, MaxRate] is accepted.
	Rates   []int
	MinRate int
	MaxRate int

	MinPeriodTime time.Duration
	MaxPeriodTime time.Duration
	MinPeriods    int
	MaxPeriods    int
	MaxBufferTime time.Duration
}

// DefaultCapabilities describes a generic stereo device.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Formats:       []audio.SampleFormat{audio.FormatS16LE, audio.FormatS32LE, audio.FormatFloat32LE},
		MinChannels:   1,
		MaxChannels:   2,
		MinRate:       8000,
		MaxRate:       192000,
		MinPeriodTime: time.Millisecond,
		MaxPeriodTime: time.Second,
		MinPeriods:    2,
		MaxPeriods:    64,
		MaxBufferTime: 2 * time.Second,
	}
}

func (c Capabilities) empty() bool {
	if len(c.Formats) == 0 || c.MaxChannels < 1 || c.MaxChannels < c.MinChannels {
		return true
	}
	if len(c.Rates) == 0 && (c.MaxRate < 1 || c.MaxRate < c.MinRate) {
		return true
	}
	return c.MaxBufferTime <= 0 || c.MaxPeriodTime <= 0
}

// hwParams narrows Capabilities one parameter at a time.
type hwParams struct {
	caps Capabilities

	accessSet    bool
	access       playback.Access
	format       audio.SampleFormat
	channels     int
	rate         int
	periodFrames int
	periods      int
}

func newHWParams(caps Capabilities) *hwParams {
	if caps.MinPeriods < 1 {
		caps.MinPeriods = 1
	}
	if caps.MaxPeriods < caps.MinPeriods {
		caps.MaxPeriods = caps.MinPeriods
	}
	return &hwParams{caps: caps}
}

func (h *hwParams) SetAccess(a playback.Access) error {
	if a != playback.AccessRWInterleaved {
		return fmt.Errorf("%w: access %s", ErrInvalidArgument, a)
	}
	h.access = a
	h.accessSet = true
	return nil
}

func (h *hwParams) SetFormat(f audio.SampleFormat) error {
	for _, ok := range h.caps.Formats {
		if ok == f {
			h.format = f
			return nil
		}
	}
	return fmt.Errorf("%w: format %s", ErrInvalidArgument, f)
}

func (h *hwParams) SetChannels(n int) error {
	if n < h.caps.MinChannels || n > h.caps.MaxChannels {
		return fmt.Errorf("%w: %d channels not in [%d, %d]", ErrInvalidArgument, n, h.caps.MinChannels, h.caps.MaxChannels)
	}
	h.channels = n
	return nil
}

func (h *hwParams) SetRateNear(rate int) (int, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("%w: rate %d", ErrInvalidArgument, rate)
	}
	if len(h.caps.Rates) > 0 {
		best := h.caps.Rates[0]
		for _, r := range h.caps.Rates[1:] {
			if absInt(r-rate) < absInt(best-rate) {
				best = r
			}
		}
		h.rate = best
		return best, nil
	}
	h.rate = clampInt(rate, h.caps.MinRate, h.caps.MaxRate)
	return h.rate, nil
}

func (h *hwParams) BufferTimeMax() (time.Duration, error) {
	limit := h.caps.MaxBufferTime
	if byPeriods := h.caps.MaxPeriodTime * time.Duration(h.caps.MaxPeriods); byPeriods < limit {
		limit = byPeriods
	}
	return limit, nil
}

func (h *hwParams) SetPeriodTimeNear(d time.Duration) (time.Duration, error) {
	if h.rate == 0 {
		return 0, fmt.Errorf("%w: period time before rate", ErrInvalidArgument)
	}
	if d < h.caps.MinPeriodTime {
		d = h.caps.MinPeriodTime
	}
	if d > h.caps.MaxPeriodTime {
		d = h.caps.MaxPeriodTime
	}
	frames := durationToFrames(d, h.rate)
	if frames < 1 {
		frames = 1
	}
	h.periodFrames = frames
	return framesToDuration(frames, h.rate), nil
}

func (h *hwParams) SetBufferTimeNear(d time.Duration) (time.Duration, error) {
	if h.periodFrames == 0 {
		return 0, fmt.Errorf("%w: buffer time before period time", ErrInvalidArgument)
	}
	period := framesToDuration(h.periodFrames, h.rate)
	periods := int((d + period/2) / period)
	periods = clampInt(periods, h.caps.MinPeriods, h.caps.MaxPeriods)

	maxBuffer, _ := h.BufferTimeMax()
	for periods > h.caps.MinPeriods && framesToDuration(periods*h.periodFrames, h.rate) > maxBuffer {
		periods--
	}
	h.periods = periods
	return framesToDuration(periods*h.periodFrames, h.rate), nil
}

func (h *hwParams) PeriodSize() (int, error) {
	if h.periodFrames == 0 {
		return 0, fmt.Errorf("%w: period size not configured", ErrBadState)
	}
	return h.periodFrames, nil
}

func (h *hwParams) BufferSize() (int, error) {
	if h.periods == 0 {
		return 0, fmt.Errorf("%w: buffer size not configured", ErrBadState)
	}
	return h.periods * h.periodFrames, nil
}

func (h *hwParams) complete() bool {
	return h.accessSet && h.format.Valid() && h.channels > 0 && h.rate > 0 && h.periodFrames > 0 && h.periods > 0
}

func (h *hwParams) bytesPerFrame() int {
	return h.format.PhysicalWidth() / 8 * h.channels
}

func (h *hwParams) String() string {
	var b strings.Builder

	field := func(name, value string) {
		fmt.Fprintf(&b, "%-12s %s\n", name+":", value)
	}

	if h.accessSet {
		field("ACCESS", h.access.String())
	} else {
		field("ACCESS", playback.AccessRWInterleaved.String())
	}
	if h.format.Valid() {
		field("FORMAT", h.format.String())
	} else {
		names := make([]string, len(h.caps.Formats))
		for i, f := range h.caps.Formats {
			names[i] = f.String()
		}
		field("FORMAT", strings.Join(names, " "))
	}
	if h.channels > 0 {
		field("CHANNELS", fmt.Sprint(h.channels))
	} else {
		field("CHANNELS", fmt.Sprintf("[%d %d]", h.caps.MinChannels, h.caps.MaxChannels))
	}
	switch {
	case h.rate > 0:
		field("RATE", fmt.Sprint(h.rate))
	case len(h.caps.Rates) > 0:
		field("RATE", fmt.Sprint(h.caps.Rates))
	default:
		field("RATE", fmt.Sprintf("[%d %d]", h.caps.MinRate, h.caps.MaxRate))
	}
	if h.periodFrames > 0 && h.rate > 0 {
		field("PERIOD_TIME", fmt.Sprint(framesToDuration(h.periodFrames, h.rate).Microseconds()))
		field("PERIOD_SIZE", fmt.Sprint(h.periodFrames))
	} else {
		field("PERIOD_TIME", fmt.Sprintf("[%d %d]", h.caps.MinPeriodTime.Microseconds(), h.caps.MaxPeriodTime.Microseconds()))
	}
	if h.periods > 0 {
		field("PERIODS", fmt.Sprint(h.periods))
		field("BUFFER_TIME", fmt.Sprint(framesToDuration(h.periods*h.periodFrames, h.rate).Microseconds()))
		field("BUFFER_SIZE", fmt.Sprint(h.periods*h.periodFrames))
	} else {
		field("PERIODS", fmt.Sprintf("[%d %d]", h.caps.MinPeriods, h.caps.MaxPeriods))
	}
	return b.String()
}

func durationToFrames(d time.Duration, rate int) int {
	return int((int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second))
}

func framesToDuration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
