package coord

import (
	"github.com/roach88/coordtest/internal/repr"
)

// frontier accumulates progress deltas for one object.
//
// The accumulated counts form a multiset of timestamps; the upper is the
// least timestamp whose count is positive. Negative counts are kept so that
// a later matching addition cancels them out.
type frontier struct {
	counts map[repr.Timestamp]int64
}

func newFrontier() *frontier {
	return &frontier{counts: map[repr.Timestamp]int64{0: 1}}
}

func (f *frontier) apply(changes repr.ChangeBatch) {
	for _, u := range changes {
		f.counts[u.Time] += u.Diff
		if f.counts[u.Time] == 0 {
			delete(f.counts, u.Time)
		}
	}
}

// upper returns the least timestamp with a positive count. ok is false when
// no such timestamp exists (the object will never change again).
func (f *frontier) upper() (repr.Timestamp, bool) {
	var (
		least repr.Timestamp
		found bool
	)
	for t, n := range f.counts {
		if n > 0 && (!found || t < least) {
			least, found = t, true
		}
	}
	return least, found
}
