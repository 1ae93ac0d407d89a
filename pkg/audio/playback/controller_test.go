// ABOUTME: Tests for controller negotiation
// ABOUTME: Covers parameter derivation, clamping and every negotiation failure
package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechkit/ttsplay/pkg/audio"
)

func TestOpenNegotiatesDefaults(t *testing.T) {
	dev := newFakeDevice("default")
	ctrl, drv, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)
	defer ctrl.Close()

	p := ctrl.Params()
	assert.Equal(t, audio.FormatS16LE, p.Format)
	assert.Equal(t, 1, p.Channels)
	assert.Equal(t, 16000, p.Rate)
	assert.Equal(t, 1000, p.ChunkFrames)
	assert.Equal(t, 8000, p.BufferFrames)
	assert.Equal(t, 2, p.BytesPerFrame)
	assert.Equal(t, 2000, p.ChunkBytes)
	assert.Equal(t, 8, p.ChunkCount)
	assert.Equal(t, 500*time.Millisecond, p.BufferTime)
	assert.Equal(t, 62500*time.Microsecond, p.PeriodTime)

	require.NotNil(t, dev.swInstalled)
	assert.Equal(t, SoftwareParams{AvailMin: 1000, StartThreshold: 8000, StopThreshold: 8000}, *dev.swInstalled)

	assert.Equal(t, 1, DriverUsage(drv))
	assert.Equal(t, "default", ctrl.DeviceName())
	assert.False(t, ctrl.Closed())
}

func TestOpenClampsBufferTimeToDeviceMax(t *testing.T) {
	dev := newFakeDevice("default")
	dev.caps.maxBuffer = 200 * time.Millisecond

	ctrl, _, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)
	defer ctrl.Close()

	p := ctrl.Params()
	assert.Equal(t, 200*time.Millisecond, p.BufferTime)
	assert.Equal(t, 400, p.ChunkFrames)
	assert.Equal(t, 3200, p.BufferFrames)
	assert.Equal(t, 8, p.ChunkCount)
}

func TestOpenAcceptsNearestRate(t *testing.T) {
	dev := newFakeDevice("default")
	dev.caps.rates = []int{22050, 48000}

	ctrl, _, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)
	defer ctrl.Close()

	assert.Equal(t, 22050, ctrl.Params().Rate)
	assert.Equal(t, 22050, ctrl.Params().AudioFormat().SampleRate)
}

func TestOpenStereoS32(t *testing.T) {
	dev := newFakeDevice("default")
	cfg := testConfig("default")
	cfg.Format = audio.FormatS32LE
	cfg.Channels = 2

	ctrl, _, _, err := openTest(dev, cfg)
	require.NoError(t, err)
	defer ctrl.Close()

	assert.Equal(t, 8, ctrl.Params().BytesPerFrame)
	assert.Equal(t, 8000, ctrl.Params().ChunkBytes)
}

func TestOpenFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeDevice, *Config)
		want   error
	}{
		{
			name:   "no configurations",
			mutate: func(d *fakeDevice, _ *Config) { d.caps.noConfigs = true },
			want:   ErrNoConfigurationAvailable,
		},
		{
			name:   "access",
			mutate: func(d *fakeDevice, _ *Config) { d.caps.noAccess = true },
			want:   ErrUnsupportedAccess,
		},
		{
			name:   "format",
			mutate: func(_ *fakeDevice, c *Config) { c.Format = audio.FormatFloat32LE },
			want:   ErrUnsupportedFormat,
		},
		{
			name:   "channels",
			mutate: func(_ *fakeDevice, c *Config) { c.Channels = 6 },
			want:   ErrUnsupportedChannelCount,
		},
		{
			name:   "hw install rejected",
			mutate: func(d *fakeDevice, _ *Config) { d.installHWErr = errors.New("invalid argument") },
			want:   ErrConfigurationRejected,
		},
		{
			name:   "period equals buffer",
			mutate: func(d *fakeDevice, _ *Config) { d.caps.periodFrames = 8000 },
			want:   ErrDegenerateBuffering,
		},
		{
			name:   "zero period",
			mutate: func(d *fakeDevice, _ *Config) { d.caps.periodFrames = -1 },
			want:   ErrDegenerateBuffering,
		},
		{
			name: "strict sw params",
			mutate: func(d *fakeDevice, c *Config) {
				d.installSWErr = errors.New("invalid argument")
				c.StrictSoftwareParams = true
			},
			want: ErrConfigurationRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice("default")
			cfg := testConfig("default")
			tt.mutate(dev, &cfg)

			before := ActiveControllers()
			ctrl, drv, _, err := openTest(dev, cfg)

			require.Error(t, err)
			assert.Nil(t, ctrl)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, dev.closeCalls, "device must be closed on failure")
			assert.Equal(t, 0, DriverUsage(drv))
			assert.Equal(t, before, ActiveControllers())
		})
	}
}

func TestOpenRejectedCarriesDump(t *testing.T) {
	dev := newFakeDevice("default")
	cause := errors.New("invalid argument")
	dev.installHWErr = cause

	_, _, _, err := openTest(dev, testConfig("default"))

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "hw", rej.Stage)
	assert.Contains(t, rej.Dump, "RATE: 16000")
	assert.ErrorIs(t, err, cause)
}

func TestOpenSoftwareParamsFailureIsSoftByDefault(t *testing.T) {
	dev := newFakeDevice("default")
	dev.installSWErr = errors.New("invalid argument")

	ctrl, _, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)
	defer ctrl.Close()

	assert.Nil(t, dev.swInstalled)
	assert.Equal(t, 2000, ctrl.Params().ChunkBytes)
}

func TestOpenDeviceOpenError(t *testing.T) {
	dev := newFakeDevice("default")
	drv := newFakeDriver(dev)
	drv.openErr = errors.New("no such file or directory")

	ctrl, err := Open(drv, testConfig("default"))
	assert.Nil(t, ctrl)
	assert.ErrorIs(t, err, ErrDeviceOpen)
	assert.ErrorIs(t, err, drv.openErr)
	assert.Equal(t, 0, DriverUsage(drv))
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	drv := newFakeDriver(newFakeDevice("default"))

	_, err := Open(nil, testConfig("default"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := testConfig("default")
	cfg.Rate = 0
	_, err = Open(drv, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty device", func(c *Config) { c.Device = "" }, false},
		{"invalid format", func(c *Config) { c.Format = audio.FormatInvalid }, false},
		{"zero channels", func(c *Config) { c.Channels = 0 }, false},
		{"negative rate", func(c *Config) { c.Rate = -1 }, false},
		{"zero buffer", func(c *Config) { c.BufferTime = 0 }, false},
		{"zero periods", func(c *Config) { c.MinPeriods = 0 }, false},
		{"zero wait", func(c *Config) { c.WaitTimeout = 0 }, false},
		{"negative resume attempts", func(c *Config) { c.Resume.MaxAttempts = -1 }, false},
		{"zero resume attempts", func(c *Config) { c.Resume.MaxAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("io error")

	fatal := &FatalError{Op: "xrun: prepare", Err: cause}
	assert.True(t, IsFatal(fatal))
	assert.ErrorIs(t, fatal, cause)
	assert.False(t, IsFatal(&DeviceError{Op: "write", Err: cause}))
	assert.False(t, IsFatal(nil))

	rej := &RejectedError{Stage: "sw", Err: cause}
	assert.ErrorIs(t, rej, ErrConfigurationRejected)
	assert.ErrorIs(t, rej, cause)
}
