// Package dataflow is a single-worker stand-in for the dataflow layer. It
// receives commands from the coordinator, evaluates peeks against the
// storage database, and reports progress and results only through its
// feedback channel.
package dataflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/coordtest/internal/feedback"
	"github.com/roach88/coordtest/internal/queue"
	"github.com/roach88/coordtest/internal/repr"
	"github.com/roach88/coordtest/internal/store"
)

// Worker is the single dataflow worker event loop.
//
// Thread-safety model:
//   - Send(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// All table state lives in the Run goroutine.
type Worker struct {
	id       int
	store    *store.Store
	feedback feedback.Sender
	commands *queue.Unbounded[Command]
	logger   *slog.Logger

	// uppers holds the current upper of every installed table.
	uppers map[repr.ObjectID]repr.Timestamp
}

// New creates a worker that evaluates peeks against st and reports to fb.
func New(st *store.Store, fb feedback.Sender, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		id:       feedback.WorkerID,
		store:    st,
		feedback: fb,
		commands: queue.New[Command](),
		logger:   logger.With("worker", feedback.WorkerID),
		uppers:   make(map[repr.ObjectID]repr.Timestamp),
	}
}

// Send submits a command. Commands are processed in FIFO order.
func (w *Worker) Send(cmd Command) error {
	if err := w.commands.Push(cmd); err != nil {
		return fmt.Errorf("dataflow worker: %w", err)
	}
	return nil
}

// Run processes commands until ctx is cancelled or the feedback transport
// closes.
//
// A failing command is logged and processing continues; a failed peek is
// reported to the coordinator as an error response instead.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("dataflow worker starting")

	for {
		cmd, ok := w.commands.TryPop()
		if ok {
			if err := w.process(ctx, cmd); err != nil {
				if errors.Is(err, queue.ErrClosed) {
					w.logger.Debug("dataflow worker stopping: feedback closed")
					return nil
				}
				w.logger.Error("command failed", "command", cmd.Type.String(), "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Debug("dataflow worker stopping: context cancelled")
			w.commands.Close()
			return nil

		case <-w.commands.Wait():
		}
	}
}

func (w *Worker) process(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandCreateTable:
		return w.createTable(cmd.IDs[0])
	case CommandAdvanceTables:
		return w.advanceTables(cmd.IDs, cmd.Time)
	case CommandDropObject:
		delete(w.uppers, cmd.IDs[0])
		return nil
	case CommandPeek:
		if cmd.Peek == nil {
			return fmt.Errorf("peek command missing request")
		}
		return w.peek(ctx, cmd.Peek)
	default:
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (w *Worker) createTable(id repr.ObjectID) error {
	if _, ok := w.uppers[id]; ok {
		return fmt.Errorf("table %s already installed", id)
	}
	w.uppers[id] = 1
	w.logger.Debug("table installed", "object_id", id)
	return w.feedback.Send(feedback.FrontierUppers(w.id, feedback.FrontierUpdate{
		ID:      id,
		Changes: repr.NewChangeBatchFrom(0, -1).Update(1, 1),
	}))
}

func (w *Worker) advanceTables(ids []repr.ObjectID, ts repr.Timestamp) error {
	var updates []feedback.FrontierUpdate
	for _, id := range ids {
		old, ok := w.uppers[id]
		if !ok {
			continue
		}
		next := ts + 1
		if next <= old {
			continue
		}
		w.uppers[id] = next
		updates = append(updates, feedback.FrontierUpdate{
			ID:      id,
			Changes: repr.NewChangeBatchFrom(old, -1).Update(next, 1),
		})
	}
	if len(updates) == 0 {
		return nil
	}
	w.logger.Debug("tables advanced", "count", len(updates), "ts", uint64(ts))
	return w.feedback.Send(feedback.FrontierUppers(w.id, updates...))
}

func (w *Worker) peek(ctx context.Context, req *PeekRequest) error {
	resp := feedback.PeekResponse{ID: req.ID}

	rows, err := w.evaluate(ctx, req)
	if err != nil {
		resp.Kind = feedback.PeekError
		resp.Error = err.Error()
	} else {
		resp.Kind = feedback.PeekRows
		resp.Rows = rows
	}

	w.logger.Debug("peek answered", "peek_id", req.ID, "ts", uint64(req.Time), "rows", len(rows), "error", resp.Error)
	return w.feedback.Send(feedback.PeekResponseMessage(w.id, resp))
}

// isBoolType reports whether a column's declared type is boolean. SQLite
// keeps the declared type of table columns, including through views that
// select them unchanged.
func isBoolType(decl string) bool {
	return strings.EqualFold(decl, "bool") || strings.EqualFold(decl, "boolean")
}

func (w *Worker) evaluate(ctx context.Context, req *PeekRequest) ([]repr.Row, error) {
	ec := store.EvalContext{Time: req.Time, Uppers: req.Uppers}

	var out []repr.Row
	err := w.store.Peek(ctx, ec, req.SQL, func(rows *sql.Rows) error {
		types, err := rows.ColumnTypes()
		if err != nil {
			return err
		}
		cols := make([]string, len(types))
		boolean := make([]bool, len(types))
		for i, ct := range types {
			cols[i] = ct.Name()
			boolean[i] = (i < len(req.BoolColumns) && req.BoolColumns[i]) || isBoolType(ct.DatabaseTypeName())
		}
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			row := make(repr.Row, len(cols))
			for i, v := range vals {
				d, err := repr.FromSQL(v, boolean[i])
				if err != nil {
					return fmt.Errorf("column %s: %w", cols[i], err)
				}
				row[i] = d
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
