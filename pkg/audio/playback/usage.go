// ABOUTME: Process-wide usage counter for open controllers
// ABOUTME: Releases a driver's global configuration when its last controller closes
package playback

import (
	"log/slog"
	"sync"
)

// usage counts live controllers per driver. When a driver's count drops to
// zero its global platform configuration is released.
type usage struct {
	mu     sync.Mutex
	counts map[Driver]int
	total  int
}

var sharedUsage = &usage{counts: make(map[Driver]int)}

func (u *usage) acquire(d Driver) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.counts[d]++
	u.total++
	return u.total
}

// release returns the new process-wide count. The driver's global state is
// released under the lock so a concurrent acquire cannot observe it half
// torn down.
func (u *usage) release(d Driver, logger *slog.Logger) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	n, ok := u.counts[d]
	if !ok || n == 0 {
		return u.total
	}
	u.total--
	if n > 1 {
		u.counts[d] = n - 1
		return u.total
	}

	delete(u.counts, d)
	if err := d.ReleaseGlobal(); err != nil {
		logger.Warn("failed to release global audio configuration",
			"driver", d.Name(),
			"error", err,
		)
	} else {
		logger.Debug("released global audio configuration", "driver", d.Name())
	}
	return u.total
}

func (u *usage) count(d Driver) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[d]
}

func (u *usage) live() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}

// ActiveControllers returns how many controllers are open in the process.
func ActiveControllers() int {
	return sharedUsage.live()
}

// DriverUsage returns how many open controllers use d.
func DriverUsage(d Driver) int {
	return sharedUsage.count(d)
}
