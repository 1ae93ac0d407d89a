// ABOUTME: Inline recovery from underrun and suspend
// ABOUTME: Re-primes or resumes the device; unrecoverable faults become FatalError
package playback

import (
	"errors"
	"fmt"
)

// recoverUnderrun inspects the device state after an EPIPE-style failure and
// re-primes the stream so data is accepted again.
func (c *Controller) recoverUnderrun() error {
	st, err := c.dev.Status()
	if err != nil {
		c.logger.Error("status error", "error", err)
		return &FatalError{Op: "status", Err: err}
	}

	switch st.State {
	case StateXRun:
		c.stats.Underruns++
		c.metrics.underrun()
		if !st.TriggerTime.IsZero() {
			gap := c.now().Sub(st.TriggerTime)
			c.logger.Warn("underrun", "at_least_ms", float64(gap.Microseconds())/1000.0)
		} else {
			c.logger.Warn("underrun")
		}
		if err := c.dev.Prepare(); err != nil {
			c.logger.Error("xrun: prepare error", "error", err)
			return &FatalError{Op: "xrun: prepare", Err: fmt.Errorf("%w: %w", ErrUnrecoverable, err)}
		}
		return nil

	case StateDraining:
		c.logger.Warn("stream format change? attempting recover")
		if err := c.dev.Prepare(); err != nil {
			c.logger.Error("xrun(DRAINING): prepare error", "error", err)
			return &FatalError{Op: "xrun(DRAINING): prepare", Err: fmt.Errorf("%w: %w", ErrUnrecoverable, err)}
		}
		return nil
	}

	c.logger.Error("read/write error", "state", st.State.String())
	return &FatalError{Op: "write", Err: fmt.Errorf("%w: state = %s", ErrProtocolViolation, st.State)}
}

// recoverSuspend resumes a suspended stream, polling while the platform is
// not ready, and restarts the stream from scratch if resume fails.
func (c *Controller) recoverSuspend() error {
	c.stats.Suspends++
	c.metrics.suspend()
	c.logger.Warn("suspended, trying resume")

	attempts := c.cfg.Resume.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = c.dev.Resume(); !errors.Is(err, ErrAgain) {
			break
		}
		if i < attempts-1 {
			c.sleep(c.cfg.Resume.Interval)
		}
	}
	if err == nil {
		c.logger.Info("resumed")
		return nil
	}

	c.logger.Warn("resume failed, restarting stream", "error", err)
	if perr := c.dev.Prepare(); perr != nil {
		c.logger.Error("suspend: prepare error", "error", perr)
		return &FatalError{Op: "suspend: prepare", Err: fmt.Errorf("%w: %w", ErrUnrecoverable, perr)}
	}
	c.logger.Info("stream restarted")
	return nil
}
