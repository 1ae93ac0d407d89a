// ABOUTME: Playback controller package documentation
// ABOUTME: Negotiation, blocking writes, fault recovery and shared-resource accounting
// Package playback streams PCM to a sound device in real time.
//
// A Controller is created by Open, which negotiates the sample format,
// channel count, rate and period/buffer sizing against what the device
// supports. Write then pushes whole frames to the device, blocking while the
// device buffer is full and repairing underruns and suspends inline.
//
// Devices are reached through the Device and Driver interfaces; concrete
// backends live in the output package. Every open controller holds a share
// of its driver's global platform configuration, which is released when the
// last controller of that driver closes.
//
// Example:
//
//	drv, _ := output.NewDriver(output.BackendAuto, logger)
//	ctrl, err := playback.Open(drv, playback.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer ctrl.Close()
//	if err := ctrl.Start(); err != nil {
//	    return err
//	}
//	if _, err := ctrl.Write(pcm); err != nil {
//	    return err
//	}
//	ctrl.Drain()
package playback
