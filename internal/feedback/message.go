// Package feedback carries progress and result messages from the dataflow
// engine back to the coordinator, and lets a test driver hold those messages
// back and release them selectively.
package feedback

import (
	"fmt"
	"strings"

	"github.com/roach88/coordtest/internal/repr"
)

// WorkerID is the id of the single dataflow worker.
const WorkerID = 0

// Kind discriminates the Message variants.
type Kind int

const (
	KindFrontierUppers Kind = iota + 1
	KindPeekResponse
)

func (k Kind) String() string {
	switch k {
	case KindFrontierUppers:
		return "FrontierUppers"
	case KindPeekResponse:
		return "PeekResponse"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// FrontierUpdate is one object's progress delta inside a FrontierUppers
// message.
type FrontierUpdate struct {
	ID      repr.ObjectID
	Changes repr.ChangeBatch
}

// PeekKind discriminates the outcome of a peek.
type PeekKind int

const (
	PeekRows PeekKind = iota + 1
	PeekError
	PeekCanceled
)

// PeekResponse answers a single peek. ID correlates it with the request.
type PeekResponse struct {
	ID    string
	Kind  PeekKind
	Rows  []repr.Row
	Error string
}

// String renders the response the way it appears in script output.
func (p PeekResponse) String() string {
	switch p.Kind {
	case PeekRows:
		var sb strings.Builder
		fmt.Fprintf(&sb, "Rows(%d)", len(p.Rows))
		for _, r := range p.Rows {
			sb.WriteString("\n  ")
			sb.WriteString(r.String())
		}
		return sb.String()
	case PeekError:
		return "Error: " + p.Error
	case PeekCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("PeekKind(%d)", int(p.Kind))
	}
}

// Message is a tagged variant: either a FrontierUppers batch or a
// PeekResponse. WorkerID names the originating worker.
type Message struct {
	WorkerID int
	Kind     Kind
	Uppers   []FrontierUpdate
	Peek     *PeekResponse
}

// FrontierUppers builds a FrontierUppers message.
func FrontierUppers(workerID int, updates ...FrontierUpdate) Message {
	return Message{WorkerID: workerID, Kind: KindFrontierUppers, Uppers: updates}
}

// PeekResponseMessage builds a PeekResponse message.
func PeekResponseMessage(workerID int, resp PeekResponse) Message {
	return Message{WorkerID: workerID, Kind: KindPeekResponse, Peek: &resp}
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := Message{WorkerID: m.WorkerID, Kind: m.Kind}
	if m.Uppers != nil {
		out.Uppers = make([]FrontierUpdate, len(m.Uppers))
		for i, u := range m.Uppers {
			out.Uppers[i] = FrontierUpdate{ID: u.ID, Changes: u.Changes.Clone()}
		}
	}
	if m.Peek != nil {
		p := *m.Peek
		if m.Peek.Rows != nil {
			p.Rows = make([]repr.Row, len(m.Peek.Rows))
			for i, r := range m.Peek.Rows {
				p.Rows[i] = append(repr.Row(nil), r...)
			}
		}
		out.Peek = &p
	}
	return out
}

func (m Message) String() string {
	switch m.Kind {
	case KindFrontierUppers:
		parts := make([]string, len(m.Uppers))
		for i, u := range m.Uppers {
			parts[i] = fmt.Sprintf("%s%s", u.ID, u.Changes)
		}
		return fmt.Sprintf("FrontierUppers(worker=%d, %s)", m.WorkerID, strings.Join(parts, " "))
	case KindPeekResponse:
		if m.Peek == nil {
			return fmt.Sprintf("PeekResponse(worker=%d)", m.WorkerID)
		}
		return fmt.Sprintf("PeekResponse(worker=%d, %s, %s)", m.WorkerID, m.Peek.ID, m.Peek)
	default:
		return m.Kind.String()
	}
}
