package dataflow

import (
	"github.com/roach88/coordtest/internal/repr"
)

// CommandType identifies what a Command asks the worker to do.
type CommandType int

const (
	// CommandCreateTable installs a table; the worker reports its upper
	// moving from 0 to 1.
	CommandCreateTable CommandType = iota + 1

	// CommandAdvanceTables reports that tables were written at Time; each
	// table's upper advances to Time+1.
	CommandAdvanceTables

	// CommandDropObject forgets an object.
	CommandDropObject

	// CommandPeek answers a one-shot query.
	CommandPeek
)

func (t CommandType) String() string {
	switch t {
	case CommandCreateTable:
		return "CreateTable"
	case CommandAdvanceTables:
		return "AdvanceTables"
	case CommandDropObject:
		return "DropObject"
	case CommandPeek:
		return "Peek"
	default:
		return "Unknown"
	}
}

// Command is a request from the coordinator to the worker.
type Command struct {
	Type CommandType

	// IDs is the target of CreateTable and DropObject (one id) and of
	// AdvanceTables (every written table).
	IDs []repr.ObjectID

	// Time is the write timestamp for AdvanceTables.
	Time repr.Timestamp

	// Peek is set for CommandPeek.
	Peek *PeekRequest
}

// PeekRequest describes a single query.
type PeekRequest struct {
	// ID correlates the PeekResponse with this request.
	ID  string
	SQL string
	// Time is the timestamp the query is evaluated at.
	Time repr.Timestamp
	// Uppers maps "database.schema.item" to the upper the coordinator knew
	// when it issued the peek.
	Uppers map[string]repr.Timestamp
	// BoolColumns marks result columns to read as booleans in addition to
	// those whose declared type is boolean.
	BoolColumns []bool
}

// CreateTable builds a CommandCreateTable.
func CreateTable(id repr.ObjectID) Command {
	return Command{Type: CommandCreateTable, IDs: []repr.ObjectID{id}}
}

// AdvanceTables builds a CommandAdvanceTables.
func AdvanceTables(ts repr.Timestamp, ids ...repr.ObjectID) Command {
	return Command{Type: CommandAdvanceTables, IDs: ids, Time: ts}
}

// DropObject builds a CommandDropObject.
func DropObject(id repr.ObjectID) Command {
	return Command{Type: CommandDropObject, IDs: []repr.ObjectID{id}}
}

// Peek builds a CommandPeek.
func Peek(req PeekRequest) Command {
	return Command{Type: CommandPeek, Peek: &req}
}
