// ABOUTME: Scripted fake device and driver for controller tests
// ABOUTME: Each device call can be scripted to fail or return partial results
package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/speechkit/ttsplay/pkg/audio"
)

type fakeCaps struct {
	formats   []audio.SampleFormat
	channels  []int
	rates     []int
	maxBuffer time.Duration
	noConfigs bool
	noAccess  bool

	// periodFrames overrides the period size computed from the period time.
	periodFrames int
}

func defaultCaps() fakeCaps {
	return fakeCaps{
		formats:   []audio.SampleFormat{audio.FormatS16LE, audio.FormatS32LE},
		channels:  []int{1, 2},
		rates:     []int{8000, 16000, 44100, 48000},
		maxBuffer: 2 * time.Second,
	}
}

type fakeHW struct {
	caps       fakeCaps
	rate       int
	periodTime time.Duration
	bufferTime time.Duration
}

func (h *fakeHW) SetAccess(a Access) error {
	if h.caps.noAccess || a != AccessRWInterleaved {
		return errors.New("invalid argument")
	}
	return nil
}

func (h *fakeHW) SetFormat(f audio.SampleFormat) error {
	for _, ok := range h.caps.formats {
		if ok == f {
			return nil
		}
	}
	return errors.New("invalid argument")
}

func (h *fakeHW) SetChannels(n int) error {
	for _, ok := range h.caps.channels {
		if ok == n {
			return nil
		}
	}
	return errors.New("invalid argument")
}

func (h *fakeHW) SetRateNear(rate int) (int, error) {
	best := h.caps.rates[0]
	for _, r := range h.caps.rates {
		if abs(r-rate) < abs(best-rate) {
			best = r
		}
	}
	h.rate = best
	return best, nil
}

func (h *fakeHW) BufferTimeMax() (time.Duration, error) {
	return h.caps.maxBuffer, nil
}

func (h *fakeHW) SetPeriodTimeNear(d time.Duration) (time.Duration, error) {
	h.periodTime = d
	return d, nil
}

func (h *fakeHW) SetBufferTimeNear(d time.Duration) (time.Duration, error) {
	h.bufferTime = d
	return d, nil
}

func (h *fakeHW) PeriodSize() (int, error) {
	if h.caps.periodFrames != 0 {
		return h.caps.periodFrames, nil
	}
	return int(int64(h.periodTime) * int64(h.rate) / int64(time.Second)), nil
}

func (h *fakeHW) BufferSize() (int, error) {
	return int(int64(h.bufferTime) * int64(h.rate) / int64(time.Second)), nil
}

func (h *fakeHW) String() string {
	return fmt.Sprintf("RATE: %d\nPERIOD_TIME: %v\nBUFFER_TIME: %v", h.rate, h.periodTime, h.bufferTime)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type writeStep struct {
	frames int
	err    error
}

type waitStep struct {
	ready bool
	err   error
}

type fakeDevice struct {
	name string
	caps fakeCaps
	bpf  int

	installHWErr error
	installSWErr error
	swInstalled  *SoftwareParams

	writes      []writeStep
	waits       []waitStep
	resumes     []error
	resumeErr   error
	status      Status
	statusErr   error
	prepareErrs []error
	resetErr    error
	drainErr    error
	closeErr    error

	written bytes.Buffer

	writeCalls   int
	waitCalls    int
	prepareCalls int
	resetCalls   int
	resumeCalls  int
	drainCalls   int
	closeCalls   int
}

func newFakeDevice(name string) *fakeDevice {
	return &fakeDevice{name: name, caps: defaultCaps(), bpf: 2}
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) HardwareParams() (HardwareParams, error) {
	if d.caps.noConfigs {
		return nil, ErrNoConfigurationAvailable
	}
	return &fakeHW{caps: d.caps}, nil
}

func (d *fakeDevice) InstallHardwareParams(HardwareParams) error { return d.installHWErr }

func (d *fakeDevice) InstallSoftwareParams(sw SoftwareParams) error {
	if d.installSWErr != nil {
		return d.installSWErr
	}
	d.swInstalled = &sw
	return nil
}

func (d *fakeDevice) WriteFrames(p []byte, frames int) (int, error) {
	d.writeCalls++
	n, err := frames, error(nil)
	if len(d.writes) > 0 {
		step := d.writes[0]
		d.writes = d.writes[1:]
		n, err = step.frames, step.err
		if n > frames {
			n = frames
		}
	}
	d.written.Write(p[:n*d.bpf])
	return n, err
}

func (d *fakeDevice) Wait(time.Duration) (bool, error) {
	d.waitCalls++
	if len(d.waits) > 0 {
		step := d.waits[0]
		d.waits = d.waits[1:]
		return step.ready, step.err
	}
	return true, nil
}

func (d *fakeDevice) Status() (Status, error) { return d.status, d.statusErr }

func (d *fakeDevice) Prepare() error {
	d.prepareCalls++
	if len(d.prepareErrs) > 0 {
		err := d.prepareErrs[0]
		d.prepareErrs = d.prepareErrs[1:]
		return err
	}
	return nil
}

func (d *fakeDevice) Reset() error {
	d.resetCalls++
	return d.resetErr
}

func (d *fakeDevice) Resume() error {
	d.resumeCalls++
	if len(d.resumes) > 0 {
		err := d.resumes[0]
		d.resumes = d.resumes[1:]
		return err
	}
	return d.resumeErr
}

func (d *fakeDevice) Drain() error {
	d.drainCalls++
	return d.drainErr
}

func (d *fakeDevice) Close() error {
	d.closeCalls++
	return d.closeErr
}

type fakeDriver struct {
	mu         sync.Mutex
	devices    map[string]*fakeDevice
	openErr    error
	releaseErr error
	releases   int
}

func newFakeDriver(devs ...*fakeDevice) *fakeDriver {
	drv := &fakeDriver{devices: make(map[string]*fakeDevice)}
	for _, d := range devs {
		drv.devices[d.name] = d
	}
	return drv
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) Open(name string) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	d, ok := f.devices[name]
	if !ok {
		return nil, fmt.Errorf("no such device %q", name)
	}
	return d, nil
}

func (f *fakeDriver) ReleaseGlobal() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return f.releaseErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(device string) Config {
	cfg := DefaultConfig()
	cfg.Device = device
	cfg.Logger = quietLogger()
	return cfg
}

// openTest opens a controller over dev and stubs its sleep hook.
func openTest(dev *fakeDevice, cfg Config) (*Controller, *fakeDriver, *[]time.Duration, error) {
	drv := newFakeDriver(dev)
	var sleeps []time.Duration
	ctrl, err := Open(drv, cfg)
	if ctrl != nil {
		ctrl.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	}
	return ctrl, drv, &sleeps, err
}

func pcmRamp(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}
