// ABOUTME: Tests for start, drain, close and the shared usage counter
// ABOUTME: Verifies global configuration is released only with the last controller
package playback

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartResetsThenPrepares(t *testing.T) {
	dev := newFakeDevice("default")
	ctrl, _, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.Start())
	assert.Equal(t, 1, dev.resetCalls)
	assert.Equal(t, 1, dev.prepareCalls)
}

func TestStartErrors(t *testing.T) {
	dev := newFakeDevice("default")
	dev.resetErr = errors.New("bad state")
	ctrl, _, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)

	var de *DeviceError
	require.ErrorAs(t, ctrl.Start(), &de)
	assert.Equal(t, "reset", de.Op)
	assert.Equal(t, 0, dev.prepareCalls)

	require.NoError(t, ctrl.Close())
	assert.ErrorIs(t, ctrl.Start(), ErrClosed)
}

func TestDrainIsBestEffort(t *testing.T) {
	dev := newFakeDevice("default")
	dev.drainErr = errors.New("not running")
	ctrl, _, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)

	ctrl.Drain()
	assert.Equal(t, 1, dev.drainCalls)

	require.NoError(t, ctrl.Close())
	ctrl.Drain()
	assert.Equal(t, 1, dev.drainCalls, "drain after close does not touch the device")
}

func TestCloseReleasesGlobalWithLastController(t *testing.T) {
	a := newFakeDevice("hw:0,0")
	b := newFakeDevice("hw:0,1")
	drv := newFakeDriver(a, b)
	before := ActiveControllers()

	cfgA := testConfig("hw:0,0")
	cfgB := testConfig("hw:0,1")

	ca, err := Open(drv, cfgA)
	require.NoError(t, err)
	cb, err := Open(drv, cfgB)
	require.NoError(t, err)

	assert.Equal(t, 2, DriverUsage(drv))
	assert.Equal(t, before+2, ActiveControllers())

	require.NoError(t, ca.Close())
	assert.Equal(t, 1, DriverUsage(drv))
	assert.Equal(t, 0, drv.releases)

	require.NoError(t, cb.Close())
	assert.Equal(t, 0, DriverUsage(drv))
	assert.Equal(t, 1, drv.releases)
	assert.Equal(t, before, ActiveControllers())

	// a second close is a no-op
	require.NoError(t, cb.Close())
	assert.Equal(t, 1, b.closeCalls)
	assert.Equal(t, 1, drv.releases)
	assert.Equal(t, before, ActiveControllers())
}

func TestUsageIsPerDriver(t *testing.T) {
	drvA := newFakeDriver(newFakeDevice("default"))
	drvB := newFakeDriver(newFakeDevice("default"))

	ca, err := Open(drvA, testConfig("default"))
	require.NoError(t, err)
	cb, err := Open(drvB, testConfig("default"))
	require.NoError(t, err)

	require.NoError(t, ca.Close())
	assert.Equal(t, 1, drvA.releases)
	assert.Equal(t, 0, drvB.releases)

	require.NoError(t, cb.Close())
	assert.Equal(t, 1, drvB.releases)
}

func TestCloseReportsDeviceError(t *testing.T) {
	dev := newFakeDevice("default")
	dev.closeErr = errors.New("device gone")
	ctrl, drv, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)

	var de *DeviceError
	require.ErrorAs(t, ctrl.Close(), &de)
	assert.Equal(t, "close", de.Op)
	assert.True(t, ctrl.Closed())
	assert.Equal(t, 1, drv.releases, "usage is released even when close fails")
}

func TestReleaseGlobalErrorIsLogged(t *testing.T) {
	dev := newFakeDevice("default")
	ctrl, drv, _, err := openTest(dev, testConfig("default"))
	require.NoError(t, err)
	drv.releaseErr = errors.New("still referenced")

	assert.NoError(t, ctrl.Close())
	assert.Equal(t, 1, drv.releases)
}

func TestUsageConcurrentAcquireRelease(t *testing.T) {
	u := &usage{counts: make(map[Driver]int)}
	drv := newFakeDriver()
	logger := quietLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.acquire(drv)
			u.release(drv, logger)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, u.live())
	assert.Equal(t, 0, u.count(drv))
	assert.GreaterOrEqual(t, drv.releases, 1)
}

func TestUsageIgnoresUnknownRelease(t *testing.T) {
	u := &usage{counts: make(map[Driver]int)}
	drv := newFakeDriver()

	assert.Equal(t, 0, u.release(drv, quietLogger()))
	assert.Equal(t, 0, drv.releases)
}
