package clock

import "sync/atomic"

// ManualClock is a Clock whose value is advanced explicitly by test code.
// It lets tests exercise idle-deactivation and timeout logic without real
// sleeps.
type ManualClock struct {
	nowMillis atomic.Int64
}

// NewManualClock creates a ManualClock starting at the given time.
func NewManualClock(startMillis int64) *ManualClock {
	c := &ManualClock{}
	c.nowMillis.Store(startMillis)
	return c
}

// Now implements Clock.
func (c *ManualClock) Now() int64 {
	return c.nowMillis.Load()
}

// Advance moves the clock forward by delta milliseconds.
func (c *ManualClock) Advance(deltaMillis int64) {
	c.nowMillis.Add(deltaMillis)
}

// Set pins the clock to an absolute value.
func (c *ManualClock) Set(millis int64) {
	c.nowMillis.Store(millis)
}

// Ensure ManualClock implements Clock.
var _ Clock = (*ManualClock)(nil)
