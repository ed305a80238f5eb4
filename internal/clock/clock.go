// Package clock provides the calibrated cycle clock used for all profiler
// timestamps. Timestamps are "cycles": ticks of a free-running monotonic
// counter whose frequency is measured once at startup, so every later
// conversion to wall time is a single multiply.
package clock

import (
	"time"
)

const (
	// calibrationWindow is the wall-clock interval the calibration sleeps
	// for while counting elapsed ticks.
	calibrationWindow = 100 * time.Millisecond

	// fallbackFrequency is used when calibration produces an implausible
	// result. The monotonic tick source is nanosecond-based, so 1 GHz is
	// the conservative default.
	fallbackFrequency = 1_000_000_000

	minPlausibleFrequency = 1_000_000          // 1 MHz
	maxPlausibleFrequency = 10_000_000_000_000 // 10 THz
)

// Clock converts between raw cycle counts and wall time. All conversions use
// the frequency measured at calibration for the lifetime of the session.
type Clock struct {
	origin    time.Time
	frequency uint64
}

// Calibrate measures the cycle-counter frequency against the wall clock and
// returns a session clock. It busy-waits briefly to warm the CPU, then counts
// elapsed ticks across a ~100ms sleep. Called once at profiler start.
func Calibrate() *Clock {
	return calibrate(calibrationWindow)
}

func calibrate(window time.Duration) *Clock {
	c := &Clock{origin: time.Now()}

	// Warm up so the first reads are not taken on a sleeping core.
	for i := 0; i < 1_000_000; i++ {
		_ = i
	}

	start := c.Cycles()
	wallStart := time.Now()
	time.Sleep(window)
	elapsed := c.Cycles() - start
	wallElapsed := time.Since(wallStart)

	if wallElapsed <= 0 {
		c.frequency = fallbackFrequency
		return c
	}

	freq := uint64(float64(elapsed) / wallElapsed.Seconds())
	if freq < minPlausibleFrequency || freq > maxPlausibleFrequency {
		freq = fallbackFrequency
	}
	c.frequency = freq
	return c
}

// Cycles returns the current cycle count, relative to the session origin.
func (c *Clock) Cycles() uint64 {
	return uint64(time.Since(c.origin))
}

// Frequency returns the calibrated cycle frequency in cycles per second.
func (c *Clock) Frequency() uint64 {
	return c.frequency
}

// ToMS converts a cycle count to milliseconds.
func (c *Clock) ToMS(cycles uint64) float64 {
	return float64(cycles) / float64(c.frequency) * 1000.0
}

// ToUS converts a cycle count to microseconds.
func (c *Clock) ToUS(cycles uint64) float64 {
	return float64(cycles) / float64(c.frequency) * 1000000.0
}

// FromNS converts a nanosecond duration from an external timer into the
// session's cycle units.
func (c *Clock) FromNS(ns uint64) uint64 {
	return uint64(float64(ns) / 1e9 * float64(c.frequency))
}
