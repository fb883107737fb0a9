// Package clock provides Clock implementations. Rate-limit windows are
// derived from the clock, so tests drive it explicitly with Fake.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/wsgate/ports"
)

// Real returns the actual current time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a controllable clock for testing window boundaries.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake time forward by d. Advancing past a window
// boundary makes the limiter open a fresh counter.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}
