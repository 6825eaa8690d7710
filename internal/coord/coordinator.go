// Package coord is a minimal query coordinator. It owns sessions,
// transactions, the catalog and per-object frontiers, dispatches work to the
// dataflow layer, and learns about progress and peek results only through
// its feedback channel.
package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/coordtest/internal/clock"
	"github.com/roach88/coordtest/internal/dataflow"
	"github.com/roach88/coordtest/internal/feedback"
	"github.com/roach88/coordtest/internal/repr"
	"github.com/roach88/coordtest/internal/store"
)

// ErrStopped is returned by client calls once the coordinator has stopped.
var ErrStopped = errors.New("coordinator stopped")

// Dataflow accepts commands for the dataflow layer.
type Dataflow interface {
	Send(dataflow.Command) error
}

// Config wires a Coordinator to its collaborators.
type Config struct {
	Store    *store.Store
	Dataflow Dataflow
	// Feedback is the coordinator's input for dataflow progress and results.
	Feedback feedback.Receiver
	// Now reads the current logical time.
	Now    clock.NowFunc
	IDs    IDGenerator
	Logger *slog.Logger
}

// Coordinator is a single-goroutine state machine.
//
// Client calls are turned into requests executed on the Run goroutine, so
// all state below is only touched there. Feedback that has been delivered
// before a request is applied before the request runs; this keeps the
// outcome of a request independent of goroutine scheduling.
type Coordinator struct {
	store    *store.Store
	dataflow Dataflow
	feedback feedback.Receiver
	now      clock.NowFunc
	ids      IDGenerator
	logger   *slog.Logger

	requests chan request
	stopped  chan struct{}

	catalog   *catalog
	frontiers map[repr.ObjectID]*frontier
	sessions  map[uint32]*session
	nextConn  uint32
	// peeks holds dispatched, unanswered peeks by correlation id.
	peeks map[string]*pendingPeek
}

type request struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// New creates a coordinator. Call Run to start serving.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ids := cfg.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Coordinator{
		store:     cfg.Store,
		dataflow:  cfg.Dataflow,
		feedback:  cfg.Feedback,
		now:       cfg.Now,
		ids:       ids,
		logger:    logger,
		requests:  make(chan request),
		stopped:   make(chan struct{}),
		catalog:   newCatalog(),
		frontiers: make(map[repr.ObjectID]*frontier),
		sessions:  make(map[uint32]*session),
		peeks:     make(map[string]*pendingPeek),
	}
}

// Client returns a handle for opening connections.
func (c *Coordinator) Client() *Client {
	return &Client{coord: c}
}

// Run serves requests and feedback until ctx is cancelled.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.shutdown()

	c.logger.Debug("coordinator starting")
	feedbackReady := c.feedback.Wait()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("coordinator stopping: context cancelled")
			return nil

		case req := <-c.requests:
			c.handleFeedback(c.feedback.TryReceiveAll())
			req.fn(ctx)
			close(req.done)

		case <-feedbackReady:
			c.handleFeedback(c.feedback.TryReceiveAll())
			if c.feedback.Closed() {
				// A closed channel stays ready; stop selecting on it.
				feedbackReady = nil
			}
		}
	}
}

// do runs fn on the coordinator goroutine and waits for it to finish.
func (c *Coordinator) do(ctx context.Context, fn func(ctx context.Context)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
	select {
	case <-req.done:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

func (c *Coordinator) handleFeedback(msgs []feedback.Message) {
	for _, msg := range msgs {
		switch msg.Kind {
		case feedback.KindFrontierUppers:
			for _, u := range msg.Uppers {
				f, ok := c.frontiers[u.ID]
				if !ok {
					c.logger.Debug("frontier update for unknown object", "object_id", u.ID)
					continue
				}
				f.apply(u.Changes)
			}
		case feedback.KindPeekResponse:
			if msg.Peek == nil {
				continue
			}
			p, ok := c.peeks[msg.Peek.ID]
			if !ok {
				// Canceled, or the session is gone.
				c.logger.Debug("response for unknown peek", "peek_id", msg.Peek.ID)
				continue
			}
			delete(c.peeks, msg.Peek.ID)
			p.handle.resolve(*msg.Peek)
		}
	}
}

// upper returns the current upper of id.
func (c *Coordinator) upper(id repr.ObjectID) (repr.Timestamp, bool) {
	f, ok := c.frontiers[id]
	if !ok {
		return 0, false
	}
	return f.upper()
}

// uppers snapshots the upper of every tracked object by qualified name.
func (c *Coordinator) uppers() map[string]repr.Timestamp {
	out := make(map[string]repr.Timestamp, len(c.catalog.items))
	for name, it := range c.catalog.items {
		if u, ok := c.upper(it.id); ok {
			out[QualifiedName(name)] = u
		}
	}
	return out
}

// commit makes a transaction's effects visible: catalog changes are applied
// and announced to the dataflow layer, written tables are advanced to the
// write timestamp, and staged peeks are dispatched.
func (c *Coordinator) commit(ctx context.Context, s *session, txn *transaction) error {
	if txn.tx != nil {
		if err := txn.tx.Commit(); err != nil {
			c.cancelStaged(txn, fmt.Sprintf("commit failed: %v", err))
			return fmt.Errorf("commit: %w", err)
		}
	}

	for _, op := range txn.ops {
		if op.create {
			id := c.catalog.allocate()
			c.catalog.items[op.name] = catalogItem{id: id, kind: op.kind, columns: op.columns}
			c.frontiers[id] = newFrontier()
			c.logger.Debug("catalog item created", "name", op.name, "object_id", id, "kind", op.kind.String())
			if op.kind == ItemTable {
				if err := c.dataflow.Send(dataflow.CreateTable(id)); err != nil {
					return err
				}
			}
			continue
		}
		it, ok := c.catalog.lookup(op.name)
		if !ok {
			continue
		}
		delete(c.catalog.items, op.name)
		delete(c.frontiers, it.id)
		c.logger.Debug("catalog item dropped", "name", op.name, "object_id", it.id)
		if err := c.dataflow.Send(dataflow.DropObject(it.id)); err != nil {
			return err
		}
	}

	if txn.wrote {
		if tables := c.catalog.tables(); len(tables) > 0 {
			if err := c.dataflow.Send(dataflow.AdvanceTables(c.now(), tables...)); err != nil {
				return err
			}
		}
	}

	for _, p := range txn.peeks {
		if err := c.dispatch(s, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) dispatch(s *session, p *pendingPeek) error {
	req := dataflow.PeekRequest{
		ID:          p.id,
		SQL:         p.sql,
		Time:        c.now(),
		Uppers:      c.uppers(),
		BoolColumns: p.boolColumns,
	}
	c.peeks[p.id] = p

	// Forget answered peeks while recording the new one.
	live := s.outstanding[:0]
	for _, o := range s.outstanding {
		if _, ok := c.peeks[o.id]; ok {
			live = append(live, o)
		}
	}
	s.outstanding = append(live, p)
	c.logger.Debug("peek dispatched", "peek_id", p.id, "conn_id", s.connID, "ts", uint64(req.Time))
	return c.dataflow.Send(dataflow.Peek(req))
}

// cancelStaged resolves peeks that never reached the dataflow layer.
func (c *Coordinator) cancelStaged(txn *transaction, reason string) {
	for _, p := range txn.peeks {
		if reason == "" {
			p.handle.resolve(feedback.PeekResponse{ID: p.id, Kind: feedback.PeekCanceled})
		} else {
			p.handle.resolve(feedback.PeekResponse{ID: p.id, Kind: feedback.PeekError, Error: reason})
		}
	}
	txn.peeks = nil
}

// cancelSession resolves every outstanding peek of s as canceled.
func (c *Coordinator) cancelSession(s *session) int {
	n := 0
	if s.txn != nil {
		n += len(s.txn.peeks)
		c.cancelStaged(s.txn, "")
	}
	for _, p := range s.outstanding {
		if _, ok := c.peeks[p.id]; !ok {
			continue
		}
		delete(c.peeks, p.id)
		p.handle.resolve(feedback.PeekResponse{ID: p.id, Kind: feedback.PeekCanceled})
		n++
	}
	s.outstanding = nil
	return n
}

func (c *Coordinator) shutdown() {
	for _, s := range c.sessions {
		_, _ = c.endTransaction(context.Background(), s, false)
	}
	for id, p := range c.peeks {
		delete(c.peeks, id)
		p.handle.resolve(feedback.PeekResponse{ID: p.id, Kind: feedback.PeekCanceled})
	}
}
