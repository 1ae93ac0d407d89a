// ABOUTME: Playback controller construction and device negotiation
// ABOUTME: Opens a device and fixes format, rate, period and buffer sizing
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Controller streams PCM to one exclusively owned device. It is not safe
// for concurrent use; callers with several producers serialize writes.
type Controller struct {
	driver  Driver
	dev     Device
	cfg     Config
	params  Params
	logger  *slog.Logger
	metrics *instruments
	stats   Stats
	closed  bool

	now   func() time.Time
	sleep func(time.Duration)
}

// Stats counts what happened on the controller since Open.
type Stats struct {
	BytesWritten int64
	Writes       int64
	Waits        int64
	Timeouts     int64
	Underruns    int64
	Suspends     int64
}

// Open opens cfg.Device through drv and negotiates the hardware and
// software parameters. On any failure the device is closed again and no
// controller exists.
func Open(drv Driver, cfg Config) (*Controller, error) {
	if drv == nil {
		return nil, fmt.Errorf("%w: nil driver", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", drv.Name(), "device", cfg.Device)

	dev, err := drv.Open(cfg.Device)
	if err != nil {
		logger.Error("audio open error", "error", err)
		return nil, negotiationError(ErrDeviceOpen, cfg.Device, err)
	}

	c := &Controller{
		driver: drv,
		dev:    dev,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}

	if err := c.negotiate(); err != nil {
		if cerr := dev.Close(); cerr != nil {
			logger.Warn("failed to close device after negotiation error", "error", cerr)
		}
		return nil, err
	}

	c.metrics = newInstruments(cfg.Meter, drv.Name(), cfg.Device)
	live := sharedUsage.acquire(drv)
	c.metrics.opened()

	logger.Info("playback device configured",
		"format", c.params.Format.String(),
		"channels", c.params.Channels,
		"rate", c.params.Rate,
		"chunk_frames", c.params.ChunkFrames,
		"chunk_bytes", c.params.ChunkBytes,
		"buffer_frames", c.params.BufferFrames,
		"chunk_count", c.params.ChunkCount,
		"active_controllers", live,
	)

	return c, nil
}

func (c *Controller) negotiate() error {
	name := c.dev.Name()

	hw, err := c.dev.HardwareParams()
	if err != nil {
		c.logger.Error("broken configuration for this PCM: no configurations available", "error", err)
		if errors.Is(err, ErrNoConfigurationAvailable) {
			return fmt.Errorf("%s: %w", name, err)
		}
		return negotiationError(ErrNoConfigurationAvailable, name, err)
	}

	if err := hw.SetAccess(AccessRWInterleaved); err != nil {
		c.logger.Error("access type not available", "error", err)
		return negotiationError(ErrUnsupportedAccess, AccessRWInterleaved.String(), err)
	}
	if err := hw.SetFormat(c.cfg.Format); err != nil {
		c.logger.Error("sample format not available", "format", c.cfg.Format.String(), "error", err)
		return negotiationError(ErrUnsupportedFormat, c.cfg.Format.String(), err)
	}
	if err := hw.SetChannels(c.cfg.Channels); err != nil {
		c.logger.Error("channels count not available", "channels", c.cfg.Channels, "error", err)
		return negotiationError(ErrUnsupportedChannelCount, fmt.Sprintf("%d channels", c.cfg.Channels), err)
	}

	rate, err := hw.SetRateNear(c.cfg.Rate)
	if err != nil {
		c.logger.Error("set rate near failed", "rate", c.cfg.Rate, "error", err)
		return &DeviceError{Op: "set rate near", Err: err}
	}
	if rate != c.cfg.Rate {
		c.logger.Warn("rate is not accurate", "requested", c.cfg.Rate, "granted", rate)
	}

	bufferTime, err := hw.BufferTimeMax()
	if err != nil {
		c.logger.Error("get buffer time max failed", "error", err)
		return &DeviceError{Op: "get buffer time max", Err: err}
	}
	if bufferTime > c.cfg.BufferTime {
		bufferTime = c.cfg.BufferTime
	}

	periodTime := bufferTime / time.Duration(c.cfg.MinPeriods)
	if periodTime, err = hw.SetPeriodTimeNear(periodTime); err != nil {
		c.logger.Error("set period time near failed", "error", err)
		return &DeviceError{Op: "set period time near", Err: err}
	}
	if bufferTime, err = hw.SetBufferTimeNear(bufferTime); err != nil {
		c.logger.Error("set buffer time near failed", "error", err)
		return &DeviceError{Op: "set buffer time near", Err: err}
	}

	if err := c.dev.InstallHardwareParams(hw); err != nil {
		dump := hw.String()
		c.logger.Error("unable to install hw params", "error", err, "params", dump)
		return &RejectedError{Stage: "hw", Dump: dump, Err: err}
	}

	chunk, err := hw.PeriodSize()
	if err != nil {
		return &DeviceError{Op: "get period size", Err: err}
	}
	bufferSize, err := hw.BufferSize()
	if err != nil {
		return &DeviceError{Op: "get buffer size", Err: err}
	}
	if chunk <= 0 || chunk >= bufferSize {
		c.logger.Error("can't use period equal to buffer size",
			"chunk_frames", chunk,
			"buffer_frames", bufferSize,
		)
		return fmt.Errorf("%w (%d == %d)", ErrDegenerateBuffering, chunk, bufferSize)
	}

	sw := SoftwareParams{
		AvailMin:       chunk,
		StartThreshold: bufferSize,
		StopThreshold:  bufferSize,
	}
	if err := c.dev.InstallSoftwareParams(sw); err != nil {
		if c.cfg.StrictSoftwareParams {
			c.logger.Error("unable to install sw params", "error", err)
			return &RejectedError{Stage: "sw", Dump: fmt.Sprintf("%+v", sw), Err: err}
		}
		c.logger.Warn("unable to install sw params, continuing with device defaults",
			"avail_min", sw.AvailMin,
			"start_threshold", sw.StartThreshold,
			"stop_threshold", sw.StopThreshold,
			"error", err,
		)
	}

	bytesPerFrame := c.cfg.Format.PhysicalWidth() / 8 * c.cfg.Channels
	c.params = Params{
		Format:        c.cfg.Format,
		Channels:      c.cfg.Channels,
		Rate:          rate,
		ChunkBytes:    chunk * bytesPerFrame,
		ChunkCount:    bufferSize / chunk,
		ChunkFrames:   chunk,
		BufferFrames:  bufferSize,
		BytesPerFrame: bytesPerFrame,
		PeriodTime:    periodTime,
		BufferTime:    bufferTime,
	}
	return nil
}

// Params returns the negotiated parameters.
func (c *Controller) Params() Params {
	return c.params
}

// Stats returns the controller counters.
func (c *Controller) Stats() Stats {
	return c.stats
}

// DeviceName returns the identifier of the open device.
func (c *Controller) DeviceName() string {
	return c.cfg.Device
}

// Closed reports whether the controller was closed, either explicitly or
// after a fatal fault.
func (c *Controller) Closed() bool {
	return c.closed
}
