// ABOUTME: Audio output backends for the playback controller
// ABOUTME: libasound, miniaudio, oto, PortAudio and a simulated device
// Package output provides the playback.Driver implementations.
//
// The libasound backend (build tag "alsa") drives a kernel PCM directly.
// The miniaudio, oto and PortAudio backends (PortAudio behind build tag
// "portaudio") are callback driven; they share a software stream device
// that buffers written frames and tracks the PCM state machine, including
// underruns and suspends. The simulated backend runs the same stream
// device against a software clock and can inject faults.
//
// Example:
//
//	drv, err := output.NewDriver(output.BackendSim, logger)
//	if err != nil {
//	    return err
//	}
//	ctrl, err := playback.Open(drv, playback.DefaultConfig())
package output
