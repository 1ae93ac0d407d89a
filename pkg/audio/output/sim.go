// ABOUTME: Simulated playback backend driven by a software clock
// ABOUTME: Supports underrun, suspend and disconnect injection for tests and dry runs
package output

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

// SimOptions configures the simulated backend.
type SimOptions struct {
	// Capabilities defaults to DefaultCapabilities.
	Capabilities *Capabilities

	// Speed scales the simulated hardware clock. 2 consumes audio twice
	// as fast as real time. Zero means real time.
	Speed float64

	// Sink receives every byte the simulated hardware plays, silence
	// included. Optional.
	Sink io.Writer
}

// SimDriver opens simulated devices. Any device name is accepted.
type SimDriver struct {
	opts   SimOptions
	logger *slog.Logger

	mu       sync.Mutex
	devices  map[string]*SimDevice
	releases int
}

// NewSimDriver creates a simulated driver.
func NewSimDriver(opts SimOptions, logger *slog.Logger) *SimDriver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	return &SimDriver{
		opts:    opts,
		logger:  logger.With("backend", string(BackendSim)),
		devices: make(map[string]*SimDevice),
	}
}

func (s *SimDriver) Name() string {
	return string(BackendSim)
}

func (s *SimDriver) Open(name string) (playback.Device, error) {
	caps := DefaultCapabilities()
	if s.opts.Capabilities != nil {
		caps = *s.opts.Capabilities
	}

	clock := &simClock{speed: s.opts.Speed, sink: s.opts.Sink}
	dev := &SimDevice{
		streamDevice: newStreamDevice(name, caps, clock, s.logger),
		clock:        clock,
	}

	s.mu.Lock()
	s.devices[name] = dev
	s.mu.Unlock()

	s.logger.Debug("simulated device opened", "device", name)
	return dev, nil
}

// Device returns the most recently opened device with the given name.
func (s *SimDriver) Device(name string) *SimDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[name]
}

func (s *SimDriver) ReleaseGlobal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

// GlobalReleases reports how many times ReleaseGlobal was called.
func (s *SimDriver) GlobalReleases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// SimDevice is a simulated playback device.
type SimDevice struct {
	*streamDevice
	clock *simClock

	faultMu      sync.Mutex
	resumeNotYet int
	resumeErr    error
}

// InjectUnderrun forces a running stream into XRUN.
func (d *SimDevice) InjectUnderrun() {
	d.forceXRun()
}

// InjectSuspend suspends the stream. The next notYet calls to Resume
// answer "try again".
func (d *SimDevice) InjectSuspend(notYet int) {
	d.faultMu.Lock()
	d.resumeNotYet = notYet
	d.faultMu.Unlock()
	d.suspend(false)
}

// FailResume makes every Resume fail with err until cleared with nil.
func (d *SimDevice) FailResume(err error) {
	d.faultMu.Lock()
	defer d.faultMu.Unlock()
	d.resumeErr = err
}

// Disconnect simulates the device going away.
func (d *SimDevice) Disconnect() {
	d.disconnect()
}

func (d *SimDevice) Resume() error {
	d.faultMu.Lock()
	if d.resumeNotYet > 0 {
		d.resumeNotYet--
		d.faultMu.Unlock()
		return playback.ErrAgain
	}
	err := d.resumeErr
	d.faultMu.Unlock()

	if err != nil {
		return err
	}
	return d.streamDevice.Resume()
}

// PlayedBytes returns how many bytes the simulated hardware consumed,
// silence included.
func (d *SimDevice) PlayedBytes() int64 {
	return d.clock.played.Load()
}

// simClock consumes one period per tick.
type simClock struct {
	speed float64
	sink  io.Writer

	mu      sync.Mutex
	cfg     streamConfig
	pull    func([]byte)
	stopCh  chan struct{}
	done    chan struct{}
	played  atomic.Int64
	opened  bool
	started bool
}

func (c *simClock) open(cfg streamConfig, pull func([]byte)) error {
	if cfg.PeriodFrames <= 0 || cfg.Rate <= 0 {
		return fmt.Errorf("%w: period %d frames at %d Hz", ErrInvalidArgument, cfg.PeriodFrames, cfg.Rate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.pull = pull
	c.opened = true
	return nil
}

func (c *simClock) interval() time.Duration {
	d := time.Duration(float64(framesToDuration(c.cfg.PeriodFrames, c.cfg.Rate)) / c.speed)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (c *simClock) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return ErrBadState
	}
	if c.started {
		return nil
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	go c.run(c.interval(), make([]byte, c.cfg.PeriodFrames*c.cfg.bytesPerFrame()), c.pull, c.stopCh, c.done)
	return nil
}

func (c *simClock) run(interval time.Duration, buf []byte, pull func([]byte), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			pull(buf)
			c.played.Add(int64(len(buf)))
			if c.sink != nil {
				_, _ = c.sink.Write(buf)
			}
		}
	}
}

func (c *simClock) stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	stop, done := c.stopCh, c.done
	c.mu.Unlock()

	close(stop)
	<-done
	return nil
}

func (c *simClock) close() error {
	if err := c.stop(); err != nil {
		return err
	}
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return nil
}
