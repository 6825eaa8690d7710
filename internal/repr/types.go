// Package repr defines the values shared by the coordinator, the dataflow
// engine and the test harness: logical timestamps, object ids, progress
// deltas and row data.
package repr

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Timestamp is a logical time. It only moves when the logical clock is
// advanced or when progress is reported.
type Timestamp uint64

// ObjectID is the stable identity of a catalog object, e.g. "u1".
type ObjectID string

// UserObjectID formats the id of the n-th user-created object.
func UserObjectID(n uint64) ObjectID {
	return ObjectID(fmt.Sprintf("u%d", n))
}

// Update is a single (time, diff) pair of a ChangeBatch.
type Update struct {
	Time Timestamp
	Diff int64
}

// ChangeBatch is an ordered list of changes to a frontier's multiset of
// timestamps. A frontier moving from a to b is expressed as (a, -1), (b, +1).
type ChangeBatch []Update

// NewChangeBatchFrom creates a batch holding a single update.
func NewChangeBatchFrom(t Timestamp, diff int64) ChangeBatch {
	return ChangeBatch{{Time: t, Diff: diff}}
}

// Update appends a change and returns the extended batch.
func (b ChangeBatch) Update(t Timestamp, diff int64) ChangeBatch {
	return append(b, Update{Time: t, Diff: diff})
}

// Clone returns a copy that shares no memory with b.
func (b ChangeBatch) Clone() ChangeBatch {
	if b == nil {
		return nil
	}
	return slices.Clone(b)
}

// Compact merges updates at equal times, drops zero diffs, and orders the
// result by time.
func (b ChangeBatch) Compact() ChangeBatch {
	acc := make(map[Timestamp]int64, len(b))
	for _, u := range b {
		acc[u.Time] += u.Diff
	}
	out := make(ChangeBatch, 0, len(acc))
	for t, d := range acc {
		if d != 0 {
			out = append(out, Update{Time: t, Diff: d})
		}
	}
	slices.SortFunc(out, func(a, b Update) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return out
}

func (b ChangeBatch) String() string {
	parts := make([]string, len(b))
	for i, u := range b {
		parts[i] = fmt.Sprintf("(%d, %+d)", u.Time, u.Diff)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// NormalizeIdent returns the canonical (NFC) form of a catalog identifier so
// that visually identical names compare equal regardless of how the script
// or statement encoded them.
func NormalizeIdent(s string) string {
	return norm.NFC.String(s)
}
