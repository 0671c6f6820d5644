// Package clock implements ports.Clock. Real is what the gateway runs on;
// Fake lets tests pin admission windows and month boundaries to a fixed
// instant and move them deliberately.
package clock

import (
	"sync"
	"time"

	"github.com/llmgate/llmgate/ports"
)

// Real reads the system clock.
type Real struct{}

// Now returns the current wall-clock time.
func (Real) Now() time.Time { return time.Now() }

// Fake is a manually driven clock. Time only moves when a test calls Set
// or Advance, so minute-window and grace-period assertions stay exact.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake pins a fake clock to the given instant.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the pinned instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set jumps the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)
