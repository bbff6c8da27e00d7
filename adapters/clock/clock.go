// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/apigen/ports"
)

// Real returns the wall clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a settable clock for expiry tests.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the frozen time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)

// Stamp returns c.Now() in UTC at millisecond precision, the resolution
// every adapter can store without loss.
func Stamp(c ports.Clock) time.Time {
	if c == nil {
		c = Real{}
	}
	return c.Now().UTC().Truncate(time.Millisecond)
}
