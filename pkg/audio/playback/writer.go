// ABOUTME: Blocking stream writer
// ABOUTME: Pushes whole frames to the device, waiting out backpressure
package playback

import (
	"errors"
	"fmt"
)

// Write sends p to the device and blocks until every frame was accepted.
// len(p) must be a multiple of the frame size. Underruns and suspends are
// repaired inline; on success n == len(p).
//
// A *FatalError means the device could not be re-armed; the controller is
// closed by the time it is returned.
func (c *Controller) Write(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}

	bpf := c.params.BytesPerFrame
	if len(p)%bpf != 0 {
		return 0, fmt.Errorf("%w: %d bytes at %d bytes per frame", ErrPartialFrame, len(p), bpf)
	}
	frames := len(p) / bpf

	c.logger.Debug("play buffer", "bytes", len(p), "frames", frames)
	c.stats.Writes++

	written, err := c.writeFrames(p, frames)
	n := written * bpf
	if n > 0 {
		c.stats.BytesWritten += int64(n)
		c.metrics.addBytes(n)
	}
	if err != nil {
		c.logger.Error("write error", "error", err, "written_bytes", n, "requested_bytes", len(p))
		if IsFatal(err) {
			c.forceClose()
		}
		return n, err
	}
	return n, nil
}

func (c *Controller) writeFrames(data []byte, count int) (int, error) {
	bpf := c.params.BytesPerFrame
	result := 0

	for count > 0 {
		r, err := c.dev.WriteFrames(data, count)
		if r > count {
			r = count
		}
		if r > 0 {
			result += r
			count -= r
			data = data[r*bpf:]
		}

		switch {
		case err == nil:
			if count > 0 {
				err = c.waitWritable()
			}
		case errors.Is(err, ErrAgain):
			err = c.waitWritable()
		case errors.Is(err, ErrUnderrun):
			err = c.recoverUnderrun()
		case errors.Is(err, ErrSuspended):
			err = c.recoverSuspend()
		default:
			err = &DeviceError{Op: "write", Err: err}
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// waitWritable blocks until the device signals room for avail-min frames.
func (c *Controller) waitWritable() error {
	c.stats.Waits++

	ready, err := c.dev.Wait(c.cfg.WaitTimeout)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnderrun):
		return c.recoverUnderrun()
	case errors.Is(err, ErrSuspended):
		return c.recoverSuspend()
	default:
		return &DeviceError{Op: "wait", Err: err}
	}

	if !ready {
		c.stats.Timeouts++
		c.metrics.waitTimeout()
		return fmt.Errorf("%w after %v", ErrDeviceTimeout, c.cfg.WaitTimeout)
	}
	return nil
}
