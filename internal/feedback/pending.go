package feedback

import (
	"github.com/roach88/coordtest/internal/repr"
)

// ObjectSet is a set of object ids.
type ObjectSet map[repr.ObjectID]struct{}

// NewObjectSet builds a set from ids.
func NewObjectSet(ids ...repr.ObjectID) ObjectSet {
	s := make(ObjectSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set.
func (s ObjectSet) Contains(id repr.ObjectID) bool {
	_, ok := s[id]
	return ok
}

// PendingQueue is an order-preserving buffer of intercepted messages.
//
// Every partition keeps the relative order of both the released subset and
// the retained subset, and never creates, drops or duplicates an entry.
// It is not safe for concurrent use; the driver owns it exclusively.
type PendingQueue struct {
	msgs []Message
}

// Push appends messages in order.
func (q *PendingQueue) Push(msgs ...Message) {
	q.msgs = append(q.msgs, msgs...)
}

// Len returns the number of buffered messages.
func (q *PendingQueue) Len() int {
	return len(q.msgs)
}

// Messages returns a deep copy of the buffered messages.
func (q *PendingQueue) Messages() []Message {
	out := make([]Message, len(q.msgs))
	for i, m := range q.msgs {
		out[i] = m.Clone()
	}
	return out
}

// PartitionExcluding removes every buffered message and returns those to
// release now.
//
// FrontierUppers entries whose object is in excluded are stripped out and
// re-buffered as a new FrontierUppers message (same worker) holding exactly
// those entries. A message that loses all of its entries this way is not
// released. All other messages are released unchanged.
func (q *PendingQueue) PartitionExcluding(excluded ObjectSet) []Message {
	drained := q.msgs
	q.msgs = nil

	release := make([]Message, 0, len(drained))
	for _, m := range drained {
		if m.Kind != KindFrontierUppers || len(m.Uppers) == 0 || len(excluded) == 0 {
			release = append(release, m)
			continue
		}

		var kept, held []FrontierUpdate
		for _, u := range m.Uppers {
			if excluded.Contains(u.ID) {
				held = append(held, u)
			} else {
				kept = append(kept, u)
			}
		}
		if len(held) > 0 {
			q.msgs = append(q.msgs, FrontierUppers(m.WorkerID, held...))
		}
		if len(kept) > 0 {
			release = append(release, FrontierUppers(m.WorkerID, kept...))
		}
	}
	return release
}

// PartitionPeekResponses removes and returns buffered PeekResponse messages.
// Everything else stays buffered in its original order.
func (q *PendingQueue) PartitionPeekResponses() []Message {
	var release, keep []Message
	for _, m := range q.msgs {
		if m.Kind == KindPeekResponse {
			release = append(release, m)
		} else {
			keep = append(keep, m)
		}
	}
	q.msgs = keep
	return release
}
