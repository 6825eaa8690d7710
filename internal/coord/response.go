package coord

import (
	"fmt"

	"github.com/roach88/coordtest/internal/feedback"
)

// ResponseKind discriminates ExecuteResponse.
type ResponseKind int

const (
	CreatedTable ResponseKind = iota + 1
	CreatedView
	DroppedTable
	DroppedView
	Inserted
	Updated
	Deleted
	Committed
	RolledBack
	SetVariable
	SendingRows
	StartedTransaction
)

// ExecuteResponse is the outcome of executing one statement.
type ExecuteResponse struct {
	Kind ResponseKind
	// Count is the number of affected rows for Inserted, Updated and Deleted.
	Count int64
	// Existed is set when CREATE ... IF NOT EXISTS found the object already.
	Existed bool
	// Name is the variable name for SetVariable.
	Name string
	// Rows is set for SendingRows.
	Rows *RowsHandle
}

// String renders the response. SendingRows renders as a placeholder; callers
// resolve the handle and render the PeekResponse instead.
func (r ExecuteResponse) String() string {
	switch r.Kind {
	case CreatedTable:
		if r.Existed {
			return "CreatedTable (existed)"
		}
		return "CreatedTable"
	case CreatedView:
		if r.Existed {
			return "CreatedView (existed)"
		}
		return "CreatedView"
	case DroppedTable:
		return "DroppedTable"
	case DroppedView:
		return "DroppedView"
	case Inserted:
		return fmt.Sprintf("Inserted(%d)", r.Count)
	case Updated:
		return fmt.Sprintf("Updated(%d)", r.Count)
	case Deleted:
		return fmt.Sprintf("Deleted(%d)", r.Count)
	case Committed:
		return "Committed"
	case RolledBack:
		return "RolledBack"
	case SetVariable:
		return fmt.Sprintf("SetVariable(%s)", r.Name)
	case SendingRows:
		return "SendingRows"
	case StartedTransaction:
		return "StartedTransaction"
	default:
		return fmt.Sprintf("ResponseKind(%d)", int(r.Kind))
	}
}

// RowsHandle is a poll-once handle to an eventual PeekResponse. It is
// fulfilled by the coordinator once the dataflow answer has been delivered
// to it, or when the peek is canceled.
type RowsHandle struct {
	ready chan struct{}
	resp  feedback.PeekResponse
}

func newRowsHandle() *RowsHandle {
	return &RowsHandle{ready: make(chan struct{})}
}

// Poll returns the response if it is available. It never blocks.
func (h *RowsHandle) Poll() (feedback.PeekResponse, bool) {
	select {
	case <-h.ready:
		return h.resp, true
	default:
		return feedback.PeekResponse{}, false
	}
}

// Ready is closed once the response is available.
func (h *RowsHandle) Ready() <-chan struct{} {
	return h.ready
}

// resolve fulfills the handle. Only the coordinator goroutine calls it, at
// most once per handle.
func (h *RowsHandle) resolve(resp feedback.PeekResponse) {
	h.resp = resp
	close(h.ready)
}
