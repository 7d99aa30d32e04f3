package logic

import (
	"runtime"
	"sync"
	"time"
)

// Clock is the scheduler's view of time. Now must be monotonic.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock uses the runtime clock. time.Now carries a monotonic reading,
// so differences between two Now values are immune to wall-clock steps.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep pauses the calling goroutine.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock is a manually driven clock for tests. Sleep advances the clock
// instead of blocking. Safe for concurrent use; goroutines sharing one
// FakeClock all see each other's sleeps as elapsed time.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d and yields the processor.
func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
	runtime.Gosched()
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
