// ABOUTME: Controller start, drain and close
// ABOUTME: Close releases the shared platform configuration with the last controller
package playback

// Start resets the device position and prepares it to run. Call it before
// the first write of a session.
func (c *Controller) Start() error {
	if c.closed {
		return ErrClosed
	}
	if err := c.dev.Reset(); err != nil {
		c.logger.Error("reset error", "error", err)
		return &DeviceError{Op: "reset", Err: err}
	}
	if err := c.dev.Prepare(); err != nil {
		c.logger.Error("prepare error", "error", err)
		return &DeviceError{Op: "prepare", Err: err}
	}
	return nil
}

// Drain blocks until every frame already handed to the device has played.
// Device errors are logged, not returned.
func (c *Controller) Drain() {
	if c.closed {
		return
	}
	if err := c.dev.Drain(); err != nil {
		c.logger.Warn("drain error", "error", err)
	}
}

// Close closes the device and gives up the controller's share of the
// platform configuration. Calling Close again is a no-op.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.dev.Close()
	c.metrics.closed()
	live := sharedUsage.release(c.driver, c.logger)

	c.logger.Info("playback device closed",
		"bytes_written", c.stats.BytesWritten,
		"underruns", c.stats.Underruns,
		"suspends", c.stats.Suspends,
		"active_controllers", live,
	)

	if err != nil {
		return &DeviceError{Op: "close", Err: err}
	}
	return nil
}

// forceClose tears the controller down after a fatal fault.
func (c *Controller) forceClose() {
	c.logger.Error("closing controller after unrecoverable fault")
	if err := c.Close(); err != nil {
		c.logger.Warn("close after fatal fault failed", "error", err)
	}
}
