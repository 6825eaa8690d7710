// Package clock provides the manually advanced logical clock that stands in
// for wall-clock "now" inside the coordinator and the dataflow engine.
package clock

import (
	"sync/atomic"

	"github.com/roach88/coordtest/internal/repr"
)

// NowFunc reads the current logical time. Components receive a NowFunc at
// construction instead of reading a global, so multiple harness instances in
// one process never observe each other's time.
type NowFunc func() repr.Timestamp

// Logical is a monotonic logical clock.
//
// The clock only moves when Advance is called. Reads are safe from any
// goroutine (the coordinator reads it on every timestamp decision); writes are
// expected from a single driver.
type Logical struct {
	ts atomic.Uint64
}

// New creates a clock starting at 0.
func New() *Logical {
	return &Logical{}
}

// Now returns the current timestamp without changing it.
func (c *Logical) Now() repr.Timestamp {
	return repr.Timestamp(c.ts.Load())
}

// Advance moves the clock forward by delta and returns the new value.
func (c *Logical) Advance(delta uint64) repr.Timestamp {
	return repr.Timestamp(c.ts.Add(delta))
}

// NowFunc returns a read-only capability bound to this clock.
func (c *Logical) NowFunc() NowFunc {
	return c.Now
}
