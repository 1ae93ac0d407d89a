//go:build alsa && linux && cgo

// ABOUTME: libasound playback backend via cgo
// ABOUTME: Drives snd_pcm directly; the global config cache is freed with the last controller
package output

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <stdlib.h>

static int ttsplay_open(snd_pcm_t **handle, const char *name) {
    return snd_pcm_open(handle, name, SND_PCM_STREAM_PLAYBACK, 0);
}

static int ttsplay_hw_new(snd_pcm_t *handle, snd_pcm_hw_params_t **params) {
    int err = snd_pcm_hw_params_malloc(params);
    if (err < 0) return err;
    err = snd_pcm_hw_params_any(handle, *params);
    if (err < 0) {
        snd_pcm_hw_params_free(*params);
        *params = NULL;
    }
    return err;
}

static int ttsplay_set_rate_near(snd_pcm_t *handle, snd_pcm_hw_params_t *params, unsigned int *rate) {
    return snd_pcm_hw_params_set_rate_near(handle, params, rate, 0);
}

static int ttsplay_buffer_time_max(snd_pcm_hw_params_t *params, unsigned int *us) {
    return snd_pcm_hw_params_get_buffer_time_max(params, us, 0);
}

static int ttsplay_set_period_time_near(snd_pcm_t *handle, snd_pcm_hw_params_t *params, unsigned int *us) {
    return snd_pcm_hw_params_set_period_time_near(handle, params, us, 0);
}

static int ttsplay_set_buffer_time_near(snd_pcm_t *handle, snd_pcm_hw_params_t *params, unsigned int *us) {
    return snd_pcm_hw_params_set_buffer_time_near(handle, params, us, 0);
}

static int ttsplay_period_size(snd_pcm_hw_params_t *params, snd_pcm_uframes_t *frames) {
    return snd_pcm_hw_params_get_period_size(params, frames, 0);
}

static char *ttsplay_hw_dump(snd_pcm_hw_params_t *params) {
    snd_output_t *out;
    char *buf = NULL;
    char *copy = NULL;
    size_t n;
    if (snd_output_buffer_open(&out) < 0) return NULL;
    snd_pcm_hw_params_dump(params, out);
    n = snd_output_buffer_string(out, &buf);
    copy = malloc(n + 1);
    if (copy != NULL) {
        memcpy(copy, buf, n);
        copy[n] = 0;
    }
    snd_output_close(out);
    return copy;
}

static int ttsplay_sw_install(snd_pcm_t *handle, snd_pcm_uframes_t avail_min,
                              snd_pcm_uframes_t start, snd_pcm_uframes_t stop) {
    snd_pcm_sw_params_t *sw;
    int err = snd_pcm_sw_params_malloc(&sw);
    if (err < 0) return err;
    err = snd_pcm_sw_params_current(handle, sw);
    if (err >= 0) err = snd_pcm_sw_params_set_avail_min(handle, sw, avail_min);
    if (err >= 0) err = snd_pcm_sw_params_set_start_threshold(handle, sw, start);
    if (err >= 0) err = snd_pcm_sw_params_set_stop_threshold(handle, sw, stop);
    if (err >= 0) err = snd_pcm_sw_params(handle, sw);
    snd_pcm_sw_params_free(sw);
    return err;
}

typedef struct {
    int state;
    long trigger_sec;
    long trigger_usec;
    long avail;
    long delay;
} ttsplay_status_t;

static int ttsplay_status(snd_pcm_t *handle, ttsplay_status_t *st) {
    snd_pcm_status_t *status;
    snd_timestamp_t ts;
    int err = snd_pcm_status_malloc(&status);
    if (err < 0) return err;
    err = snd_pcm_status(handle, status);
    if (err >= 0) {
        st->state = snd_pcm_status_get_state(status);
        snd_pcm_status_get_trigger_tstamp(status, &ts);
        st->trigger_sec = ts.tv_sec;
        st->trigger_usec = ts.tv_usec;
        st->avail = snd_pcm_status_get_avail(status);
        st->delay = snd_pcm_status_get_delay(status);
    }
    snd_pcm_status_free(status);
    return err;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/speechkit/ttsplay/pkg/audio"
	"github.com/speechkit/ttsplay/pkg/audio/playback"
)

const alsaAvailable = true

// ALSADriver opens libasound PCM devices such as "default" or "hw:0,0".
type ALSADriver struct {
	logger *slog.Logger
}

// NewALSADriver creates the libasound driver.
func NewALSADriver(logger *slog.Logger) playback.Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ALSADriver{logger: logger.With("backend", string(BackendALSA))}
}

func (a *ALSADriver) Name() string {
	return string(BackendALSA)
}

func (a *ALSADriver) Open(name string) (playback.Device, error) {
	if name == "" {
		name = "default"
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var handle *C.snd_pcm_t
	if rc := C.ttsplay_open(&handle, cname); rc < 0 {
		return nil, alsaError(C.long(rc))
	}
	return &alsaDevice{name: name, handle: handle, logger: a.logger}, nil
}

// ReleaseGlobal frees libasound's global configuration cache.
func (a *ALSADriver) ReleaseGlobal() error {
	if rc := C.snd_config_update_free_global(); rc < 0 {
		return alsaError(C.long(rc))
	}
	return nil
}

// alsaError maps a negative libasound return code to the playback
// sentinels, keeping snd_strerror's text for everything else.
func alsaError(rc C.long) error {
	errno := unix.Errno(-rc)
	switch errno {
	case unix.EAGAIN:
		return playback.ErrAgain
	case unix.EPIPE:
		return playback.ErrUnderrun
	case unix.ESTRPIPE:
		return playback.ErrSuspended
	}
	return fmt.Errorf("%s: %w", C.GoString(C.snd_strerror(C.int(rc))), errno)
}

type alsaDevice struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	handle *C.snd_pcm_t
	params []*alsaHW
}

func (d *alsaDevice) Name() string {
	return d.name
}

func (d *alsaDevice) HardwareParams() (playback.HardwareParams, error) {
	var p *C.snd_pcm_hw_params_t
	if rc := C.ttsplay_hw_new(d.handle, &p); rc < 0 {
		return nil, fmt.Errorf("%w: %v", playback.ErrNoConfigurationAvailable, alsaError(C.long(rc)))
	}
	hw := &alsaHW{handle: d.handle, params: p}

	d.mu.Lock()
	d.params = append(d.params, hw)
	d.mu.Unlock()
	return hw, nil
}

func (d *alsaDevice) InstallHardwareParams(hp playback.HardwareParams) error {
	hw, ok := hp.(*alsaHW)
	if !ok {
		return fmt.Errorf("%w: parameters from another backend", ErrInvalidArgument)
	}
	if rc := C.snd_pcm_hw_params(d.handle, hw.params); rc < 0 {
		return alsaError(C.long(rc))
	}
	return nil
}

func (d *alsaDevice) InstallSoftwareParams(sw playback.SoftwareParams) error {
	rc := C.ttsplay_sw_install(d.handle,
		C.snd_pcm_uframes_t(sw.AvailMin),
		C.snd_pcm_uframes_t(sw.StartThreshold),
		C.snd_pcm_uframes_t(sw.StopThreshold))
	if rc < 0 {
		return alsaError(C.long(rc))
	}
	return nil
}

func (d *alsaDevice) WriteFrames(p []byte, frames int) (int, error) {
	if frames == 0 || len(p) == 0 {
		return 0, nil
	}
	r := C.snd_pcm_writei(d.handle, unsafe.Pointer(&p[0]), C.snd_pcm_uframes_t(frames))
	if r < 0 {
		return 0, alsaError(C.long(r))
	}
	return int(r), nil
}

func (d *alsaDevice) Wait(timeout time.Duration) (bool, error) {
	rc := C.snd_pcm_wait(d.handle, C.int(timeout.Milliseconds()))
	switch {
	case rc < 0:
		return false, alsaError(C.long(rc))
	case rc == 0:
		return false, nil
	}
	return true, nil
}

func (d *alsaDevice) Status() (playback.Status, error) {
	var st C.ttsplay_status_t
	if rc := C.ttsplay_status(d.handle, &st); rc < 0 {
		return playback.Status{}, alsaError(C.long(rc))
	}

	status := playback.Status{
		// SND_PCM_STATE_* share the kernel ordering of playback.State.
		State: playback.State(st.state),
		Avail: int(st.avail),
		Delay: int(st.delay),
	}
	if st.trigger_sec != 0 || st.trigger_usec != 0 {
		status.TriggerTime = time.Unix(int64(st.trigger_sec), int64(st.trigger_usec)*int64(time.Microsecond))
	}
	return status, nil
}

func (d *alsaDevice) Prepare() error {
	return alsaCall(C.snd_pcm_prepare(d.handle))
}

func (d *alsaDevice) Reset() error {
	return alsaCall(C.snd_pcm_reset(d.handle))
}

func (d *alsaDevice) Resume() error {
	return alsaCall(C.snd_pcm_resume(d.handle))
}

func (d *alsaDevice) Drain() error {
	return alsaCall(C.snd_pcm_drain(d.handle))
}

func (d *alsaDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == nil {
		return nil
	}
	for _, hw := range d.params {
		hw.free()
	}
	d.params = nil

	err := alsaCall(C.snd_pcm_close(d.handle))
	d.handle = nil
	return err
}

func alsaCall(rc C.int) error {
	if rc < 0 {
		return alsaError(C.long(rc))
	}
	return nil
}

// alsaHW wraps a libasound hw_params space bound to one PCM.
type alsaHW struct {
	handle *C.snd_pcm_t
	params *C.snd_pcm_hw_params_t
}

func (h *alsaHW) free() {
	if h.params != nil {
		C.snd_pcm_hw_params_free(h.params)
		h.params = nil
	}
}

func (h *alsaHW) SetAccess(a playback.Access) error {
	var access C.snd_pcm_access_t
	switch a {
	case playback.AccessRWInterleaved:
		access = C.SND_PCM_ACCESS_RW_INTERLEAVED
	case playback.AccessRWNonInterleaved:
		access = C.SND_PCM_ACCESS_RW_NONINTERLEAVED
	case playback.AccessMMapInterleaved:
		access = C.SND_PCM_ACCESS_MMAP_INTERLEAVED
	default:
		return fmt.Errorf("%w: access %s", ErrInvalidArgument, a)
	}
	return alsaCall(C.snd_pcm_hw_params_set_access(h.handle, h.params, access))
}

func (h *alsaHW) SetFormat(f audio.SampleFormat) error {
	format, err := alsaFormat(f)
	if err != nil {
		return err
	}
	return alsaCall(C.snd_pcm_hw_params_set_format(h.handle, h.params, format))
}

func (h *alsaHW) SetChannels(n int) error {
	return alsaCall(C.snd_pcm_hw_params_set_channels(h.handle, h.params, C.uint(n)))
}

func (h *alsaHW) SetRateNear(rate int) (int, error) {
	r := C.uint(rate)
	if err := alsaCall(C.ttsplay_set_rate_near(h.handle, h.params, &r)); err != nil {
		return 0, err
	}
	return int(r), nil
}

func (h *alsaHW) BufferTimeMax() (time.Duration, error) {
	var us C.uint
	if err := alsaCall(C.ttsplay_buffer_time_max(h.params, &us)); err != nil {
		return 0, err
	}
	return time.Duration(us) * time.Microsecond, nil
}

func (h *alsaHW) SetPeriodTimeNear(d time.Duration) (time.Duration, error) {
	us := C.uint(d.Microseconds())
	if err := alsaCall(C.ttsplay_set_period_time_near(h.handle, h.params, &us)); err != nil {
		return 0, err
	}
	return time.Duration(us) * time.Microsecond, nil
}

func (h *alsaHW) SetBufferTimeNear(d time.Duration) (time.Duration, error) {
	us := C.uint(d.Microseconds())
	if err := alsaCall(C.ttsplay_set_buffer_time_near(h.handle, h.params, &us)); err != nil {
		return 0, err
	}
	return time.Duration(us) * time.Microsecond, nil
}

func (h *alsaHW) PeriodSize() (int, error) {
	var frames C.snd_pcm_uframes_t
	if err := alsaCall(C.ttsplay_period_size(h.params, &frames)); err != nil {
		return 0, err
	}
	return int(frames), nil
}

func (h *alsaHW) BufferSize() (int, error) {
	var frames C.snd_pcm_uframes_t
	if err := alsaCall(C.snd_pcm_hw_params_get_buffer_size(h.params, &frames)); err != nil {
		return 0, err
	}
	return int(frames), nil
}

func (h *alsaHW) String() string {
	dump := C.ttsplay_hw_dump(h.params)
	if dump == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(dump))
	return C.GoString(dump)
}

func alsaFormat(f audio.SampleFormat) (C.snd_pcm_format_t, error) {
	switch f {
	case audio.FormatS8:
		return C.SND_PCM_FORMAT_S8, nil
	case audio.FormatU8:
		return C.SND_PCM_FORMAT_U8, nil
	case audio.FormatS16LE:
		return C.SND_PCM_FORMAT_S16_LE, nil
	case audio.FormatS16BE:
		return C.SND_PCM_FORMAT_S16_BE, nil
	case audio.FormatS24LE:
		return C.SND_PCM_FORMAT_S24_LE, nil
	case audio.FormatS24_3LE:
		return C.SND_PCM_FORMAT_S24_3LE, nil
	case audio.FormatS32LE:
		return C.SND_PCM_FORMAT_S32_LE, nil
	case audio.FormatFloat32LE:
		return C.SND_PCM_FORMAT_FLOAT_LE, nil
	case audio.FormatFloat64LE:
		return C.SND_PCM_FORMAT_FLOAT64_LE, nil
	}
	return C.SND_PCM_FORMAT_UNKNOWN, errors.New("unknown sample format " + f.String())
}
