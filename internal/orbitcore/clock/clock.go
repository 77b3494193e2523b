// Package clock provides the monotonic millisecond time source used
// throughout the Orbit runtime for activity timestamps and tick deadlines.
package clock

import "time"

// Clock is the minimal time source consumed by the core. Real code uses
// SystemClock; tests substitute ManualClock to drive deactivation and
// timeout logic deterministically without sleeping.
type Clock interface {
	// Now returns the current time in milliseconds, on a monotonically
	// non-decreasing scale. The absolute value carries no meaning beyond
	// comparison with other Now() calls from the same Clock.
	Now() int64
}

// SystemClock is the default Clock, backed by the monotonic reading built
// into time.Now().
type SystemClock struct{}

// clockBase anchors SystemClock: Now reports the wall-clock time at
// clockBase plus the monotonic time elapsed since it.
var clockBase = time.Now()

// NewSystemClock returns the default SystemClock.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now implements Clock.
func (SystemClock) Now() int64 {
	return clockBase.UnixMilli() + time.Since(clockBase).Milliseconds()
}

// Ensure SystemClock implements Clock.
var _ Clock = SystemClock{}
