// Package clock provides the time sources used by rewind.
//
// Nothing in rewind reads the host clock directly. Runtimes and debugger
// sessions each receive their own Clock, so two sessions in one process
// never observe each other's notion of "now".
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock is the ambient time source consulted by a runtime.
type Clock interface {
	Now() time.Time
}

// Epoch is the default origin for recordings: Unix millisecond 0, UTC.
var Epoch = time.UnixMilli(0).UTC()

// Millis returns the virtual instant ms milliseconds after the Unix epoch.
func Millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ToMillis is the inverse of Millis.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// Virtual is a settable clock owned by a single session.
//
// Set accepts any value, including one in the past: resetting to an origin
// before a recording pass is legitimate. Monotonicity during replay is
// enforced by the debugger, which is the only writer once a session starts.
//
// Thread-safety: Virtual is safe for concurrent use.
type Virtual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewVirtual creates a virtual clock reading origin.
func NewVirtual(origin time.Time) *Virtual {
	return &Virtual{now: origin}
}

// Now returns the current virtual time.
func (c *Virtual) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t.
func (c *Virtual) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and returns the new time.
// Negative durations are rejected.
func (c *Virtual) Advance(d time.Duration) (time.Time, error) {
	if d < 0 {
		return time.Time{}, fmt.Errorf("advance clock: negative duration %s", d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now, nil
}

// System reads the host clock. Only the CLI uses it, to stamp saved
// recordings.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}
