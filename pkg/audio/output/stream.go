// ABOUTME: Software PCM stream device for callback-driven backends
// ABOUTME: Ring buffer, state machine, thresholds and underrun detection
package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// platform is the backend half of a stream device. Once started it calls
// the pull function handed to open from its own audio thread.
type platform interface {
	open(cfg streamConfig, pull func(out []byte)) error
	start() error
	stop() error
	close() error
}

type streamConfig struct {
	Name         string
	Format       audio.SampleFormat
	Channels     int
	Rate         int
	PeriodFrames int
	Periods      int
}

func (c streamConfig) bytesPerFrame() int {
	return c.Format.PhysicalWidth() / 8 * c.Channels
}

// streamDevice gives a pull-model platform stream the push-model PCM
// contract the controller drives: writes land in a ring buffer that the
// platform drains, and the device tracks the stream state the way a kernel
// PCM does.
type streamDevice struct {
	name   string
	caps   Capabilities
	plat   platform
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	changed chan struct{}
	state   playback.State
	prev    playback.State
	trigger time.Time
	hw      *hwParams
	sw      playback.SoftwareParams
	ring    *ringBuffer
	bpf     int
	opened  bool
	running bool
	closed  bool
}

func newStreamDevice(name string, caps Capabilities, plat platform, logger *slog.Logger) *streamDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamDevice{
		name:    name,
		caps:    caps,
		plat:    plat,
		logger:  logger.With("device", name),
		now:     time.Now,
		changed: make(chan struct{}),
		state:   playback.StateOpen,
	}
}

// notifyLocked wakes every goroutine blocked in Wait or Drain.
func (d *streamDevice) notifyLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}

func (d *streamDevice) setStateLocked(s playback.State) {
	d.state = s
	d.trigger = d.now()
	d.notifyLocked()
}

func (d *streamDevice) Name() string {
	return d.name
}

func (d *streamDevice) HardwareParams() (playback.HardwareParams, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return nil, ErrBadState
	}
	if d.caps.empty() {
		return nil, playback.ErrNoConfigurationAvailable
	}
	return newHWParams(d.caps), nil
}

func (d *streamDevice) InstallHardwareParams(hp playback.HardwareParams) error {
	h, ok := hp.(*hwParams)
	if !ok {
		return fmt.Errorf("%w: parameters from another backend", ErrInvalidArgument)
	}
	if !h.complete() {
		return fmt.Errorf("%w: incomplete configuration", ErrInvalidArgument)
	}

	d.mu.Lock()
	if d.closed || d.running {
		d.mu.Unlock()
		return ErrBadState
	}
	reopen := d.opened
	d.opened = false
	d.mu.Unlock()

	if reopen {
		if err := d.plat.close(); err != nil {
			d.logger.Warn("failed to close platform stream before reconfiguring", "error", err)
		}
	}

	cfg := streamConfig{
		Name:         d.name,
		Format:       h.format,
		Channels:     h.channels,
		Rate:         h.rate,
		PeriodFrames: h.periodFrames,
		Periods:      h.periods,
	}
	if err := d.plat.open(cfg, d.pull); err != nil {
		return err
	}

	installed := *h
	bufferFrames := h.periods * h.periodFrames

	d.mu.Lock()
	defer d.mu.Unlock()
	d.hw = &installed
	d.bpf = h.bytesPerFrame()
	d.ring = newRingBuffer(bufferFrames*d.bpf, audio.SilenceByte(h.format))
	d.sw = playback.SoftwareParams{
		AvailMin:       h.periodFrames,
		StartThreshold: 1,
		StopThreshold:  bufferFrames,
	}
	d.opened = true
	d.setStateLocked(playback.StatePrepared)

	d.logger.Debug("stream configured",
		"format", h.format.String(),
		"channels", h.channels,
		"rate", h.rate,
		"period_frames", h.periodFrames,
		"periods", h.periods,
	)
	return nil
}

func (d *streamDevice) InstallSoftwareParams(sw playback.SoftwareParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hw == nil || d.closed {
		return ErrBadState
	}
	if sw.AvailMin < 1 || sw.AvailMin > d.bufferFramesLocked() {
		return fmt.Errorf("%w: avail min %d", ErrInvalidArgument, sw.AvailMin)
	}
	if sw.StartThreshold < 1 || sw.StopThreshold < 1 {
		return fmt.Errorf("%w: thresholds %d/%d", ErrInvalidArgument, sw.StartThreshold, sw.StopThreshold)
	}
	d.sw = sw
	return nil
}

func (d *streamDevice) bufferFramesLocked() int {
	if d.ring == nil || d.bpf == 0 {
		return 0
	}
	return d.ring.Cap() / d.bpf
}

func (d *streamDevice) WriteFrames(p []byte, frames int) (int, error) {
	d.mu.Lock()
	if err := d.ioStateLocked(); err != nil {
		d.mu.Unlock()
		return 0, err
	}

	want := frames * d.bpf
	if want > len(p) {
		want = len(p) - len(p)%d.bpf
	}
	free := d.ring.Free() / d.bpf * d.bpf
	if want > free {
		want = free
	}
	n := d.ring.Write(p[:want])

	start := d.state == playback.StatePrepared && n > 0 && d.ring.Len()/d.bpf >= d.sw.StartThreshold
	if start {
		d.running = true
		d.setStateLocked(playback.StateRunning)
	}
	d.mu.Unlock()

	if start {
		if err := d.startPlatform(); err != nil {
			return n / d.bpf, err
		}
	}
	if n == 0 && frames > 0 {
		return 0, playback.ErrAgain
	}
	return n / d.bpf, nil
}

// ioStateLocked maps the stream state to the error a transfer reports.
func (d *streamDevice) ioStateLocked() error {
	switch d.state {
	case playback.StatePrepared, playback.StateRunning:
		return nil
	case playback.StateXRun, playback.StateDraining:
		return playback.ErrUnderrun
	case playback.StateSuspended:
		return playback.ErrSuspended
	case playback.StateDisconnected:
		return ErrDisconnected
	}
	if d.closed {
		return ErrBadState
	}
	return fmt.Errorf("%w: %s", ErrBadState, d.state)
}

func (d *streamDevice) startPlatform() error {
	if err := d.plat.start(); err != nil {
		d.mu.Lock()
		d.running = false
		d.setStateLocked(playback.StatePrepared)
		d.mu.Unlock()
		return fmt.Errorf("start stream: %w", err)
	}
	return nil
}

func (d *streamDevice) stopPlatform() error {
	if err := d.plat.stop(); err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	return nil
}

// pull is the platform callback. It always fills out completely.
func (d *streamDevice) pull(out []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ring == nil || (d.state != playback.StateRunning && d.state != playback.StateDraining) {
		silence := byte(0)
		if d.ring != nil {
			silence = d.ring.silence
		}
		for i := range out {
			out[i] = silence
		}
		return
	}

	n := d.ring.Read(out)

	switch {
	case d.state == playback.StateDraining:
		if d.ring.Len() == 0 {
			d.setStateLocked(playback.StateSetup)
		}
	case n < len(out) && d.sw.StopThreshold <= d.bufferFramesLocked():
		d.setStateLocked(playback.StateXRun)
	case d.ring.Free()/d.bpf >= d.sw.AvailMin:
		d.notifyLocked()
	}
}

func (d *streamDevice) Wait(timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		d.mu.Lock()
		if err := d.ioStateLocked(); err != nil {
			d.mu.Unlock()
			return false, err
		}
		if d.ring.Free()/d.bpf >= d.sw.AvailMin {
			d.mu.Unlock()
			return true, nil
		}
		changed := d.changed
		d.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return false, nil
		}
	}
}

func (d *streamDevice) Status() (playback.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return playback.Status{}, ErrBadState
	}
	st := playback.Status{State: d.state, TriggerTime: d.trigger}
	if d.ring != nil && d.bpf > 0 {
		st.Avail = d.ring.Free() / d.bpf
		st.Delay = d.ring.Len() / d.bpf
	}
	return st, nil
}

func (d *streamDevice) Prepare() error {
	d.mu.Lock()
	switch {
	case d.closed || d.state == playback.StateOpen:
		d.mu.Unlock()
		return ErrBadState
	case d.state == playback.StateDisconnected:
		d.mu.Unlock()
		return ErrDisconnected
	}
	wasRunning := d.running
	d.running = false
	d.ring.Reset()
	d.setStateLocked(playback.StatePrepared)
	d.mu.Unlock()

	if wasRunning {
		return d.stopPlatform()
	}
	return nil
}

func (d *streamDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case playback.StatePrepared, playback.StateRunning, playback.StateSuspended, playback.StateSetup:
		d.ring.Reset()
		d.notifyLocked()
		return nil
	}
	return fmt.Errorf("%w: reset in state %s", ErrBadState, d.state)
}

func (d *streamDevice) Resume() error {
	d.mu.Lock()
	if d.state != playback.StateSuspended {
		state := d.state
		d.mu.Unlock()
		return fmt.Errorf("%w: resume in state %s", ErrBadState, state)
	}
	restart := (d.prev == playback.StateRunning || d.prev == playback.StateDraining) && !d.running
	if restart {
		d.running = true
	}
	d.setStateLocked(d.prev)
	d.mu.Unlock()

	if restart {
		return d.startPlatform()
	}
	return nil
}

// suspend moves a live stream to SUSPENDED. halted reports that the
// platform stream already stopped on its own.
func (d *streamDevice) suspend(halted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case playback.StatePrepared, playback.StateRunning, playback.StateDraining:
	default:
		return
	}
	if halted {
		d.running = false
	}
	d.prev = d.state
	d.setStateLocked(playback.StateSuspended)
	d.logger.Warn("stream suspended", "previous_state", d.prev.String())
}

// platformStopped is called by backends whose platform reports that the
// stream stopped. A stop nobody asked for is treated as a suspend.
func (d *streamDevice) platformStopped() {
	d.mu.Lock()
	unexpected := d.running
	d.mu.Unlock()

	if unexpected {
		d.suspend(true)
	}
}

func (d *streamDevice) forceXRun() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == playback.StateRunning {
		d.setStateLocked(playback.StateXRun)
	}
}

func (d *streamDevice) disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setStateLocked(playback.StateDisconnected)
}

func (d *streamDevice) Drain() error {
	d.mu.Lock()
	switch d.state {
	case playback.StateSetup:
		d.mu.Unlock()
		return nil
	case playback.StateXRun:
		d.ring.Reset()
		d.setStateLocked(playback.StateSetup)
		d.mu.Unlock()
		return d.halt()
	case playback.StatePrepared:
		if d.ring.Len() == 0 {
			d.setStateLocked(playback.StateSetup)
			d.mu.Unlock()
			return nil
		}
		d.running = true
		d.setStateLocked(playback.StateDraining)
		d.mu.Unlock()
		if err := d.startPlatform(); err != nil {
			return err
		}
		d.mu.Lock()
	case playback.StateRunning:
		d.setStateLocked(playback.StateDraining)
	case playback.StateSuspended:
		d.mu.Unlock()
		return playback.ErrSuspended
	default:
		state := d.state
		d.mu.Unlock()
		return fmt.Errorf("%w: drain in state %s", ErrBadState, state)
	}

	queued := d.ring.Len() / d.bpf
	limit := 2*framesToDuration(queued, d.hw.rate) + time.Second
	d.mu.Unlock()

	deadline := time.NewTimer(limit)
	defer deadline.Stop()

	for {
		d.mu.Lock()
		state := d.state
		changed := d.changed
		d.mu.Unlock()

		switch state {
		case playback.StateDraining:
		case playback.StateSetup:
			return d.halt()
		case playback.StateSuspended:
			return playback.ErrSuspended
		default:
			return fmt.Errorf("%w: drain ended in state %s", ErrBadState, state)
		}

		select {
		case <-changed:
		case <-deadline.C:
			return fmt.Errorf("%w after %v", ErrDrainTimeout, limit)
		}
	}
}

// halt stops a platform stream that ran out of data.
func (d *streamDevice) halt() error {
	d.mu.Lock()
	wasRunning := d.running
	d.running = false
	d.mu.Unlock()

	if wasRunning {
		return d.stopPlatform()
	}
	return nil
}

func (d *streamDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	wasRunning := d.running
	opened := d.opened
	d.running = false
	d.opened = false
	d.setStateLocked(playback.StateOpen)
	d.mu.Unlock()

	var err error
	if wasRunning {
		err = d.stopPlatform()
	}
	if opened {
		if cerr := d.plat.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
