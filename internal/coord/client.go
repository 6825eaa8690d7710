package coord

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/coordtest/internal/repr"
	"github.com/roach88/coordtest/internal/sqlparse"
)

// ErrSessionTerminated is returned by calls on a terminated session.
var ErrSessionTerminated = errors.New("session terminated")

// Client opens connections to a Coordinator. Safe for concurrent use.
type Client struct {
	coord *Coordinator
}

// StartupResponse is returned when a connection is established.
type StartupResponse struct {
	ConnID uint32
	// SecretKey authorizes out-of-band cancellation of this connection.
	SecretKey uint32
}

// EndTransactionAction chooses how a transaction ends.
type EndTransactionAction int

const (
	Commit EndTransactionAction = iota + 1
	Rollback
)

// Startup opens a new session.
func (cl *Client) Startup(ctx context.Context) (*SessionClient, StartupResponse, error) {
	c := cl.coord
	var sr StartupResponse
	err := c.do(ctx, func(context.Context) {
		c.nextConn++
		s := &session{
			connID:    c.nextConn,
			secretKey: c.ids.SecretKey(),
			portals:   make(map[string]portal),
			vars:      make(map[string]string),
		}
		c.sessions[s.connID] = s
		sr = StartupResponse{ConnID: s.connID, SecretKey: s.secretKey}
		c.logger.Debug("session started", "conn_id", s.connID)
	})
	if err != nil {
		return nil, StartupResponse{}, err
	}
	return &SessionClient{coord: c, connID: sr.ConnID}, sr, nil
}

// SessionClient issues requests on behalf of one session. It must be used
// from one goroutine at a time.
type SessionClient struct {
	coord  *Coordinator
	connID uint32
}

// ConnID returns the connection id of the session.
func (sc *SessionClient) ConnID() uint32 {
	return sc.connID
}

// withSession runs fn against the live session state.
func (sc *SessionClient) withSession(ctx context.Context, fn func(ctx context.Context, s *session) error) error {
	var ferr error
	err := sc.coord.do(ctx, func(ctx context.Context) {
		s, ok := sc.coord.sessions[sc.connID]
		if !ok {
			ferr = ErrSessionTerminated
			return
		}
		ferr = fn(ctx, s)
	})
	if err != nil {
		return err
	}
	return ferr
}

// StartTransaction opens an implicit transaction sized for n statements.
// It is a no-op when a transaction is already open.
func (sc *SessionClient) StartTransaction(ctx context.Context, n int) error {
	return sc.withSession(ctx, func(_ context.Context, s *session) error {
		sc.coord.startTransaction(s, n)
		return nil
	})
}

// Declare binds stmt and params to the named portal.
func (sc *SessionClient) Declare(ctx context.Context, name string, stmt sqlparse.Statement, params []repr.Datum) error {
	return sc.withSession(ctx, func(_ context.Context, s *session) error {
		s.portals[name] = portal{stmt: stmt, params: params}
		return nil
	})
}

// Execute runs the statement bound to the named portal.
func (sc *SessionClient) Execute(ctx context.Context, name string) (ExecuteResponse, error) {
	var resp ExecuteResponse
	err := sc.withSession(ctx, func(ctx context.Context, s *session) error {
		var err error
		resp, err = sc.coord.execute(ctx, s, name)
		return err
	})
	return resp, err
}

// EndTransaction commits or rolls back the open transaction.
func (sc *SessionClient) EndTransaction(ctx context.Context, action EndTransactionAction) (ExecuteResponse, error) {
	var resp ExecuteResponse
	err := sc.withSession(ctx, func(ctx context.Context, s *session) error {
		var err error
		resp, err = sc.coord.endTransaction(ctx, s, action == Commit)
		return err
	})
	return resp, err
}

// CancelRequest cancels the outstanding peeks of connection connID. The
// request is ignored unless secretKey matches that connection's key.
func (sc *SessionClient) CancelRequest(ctx context.Context, connID, secretKey uint32) error {
	c := sc.coord
	return c.do(ctx, func(context.Context) {
		target, ok := c.sessions[connID]
		if !ok || target.secretKey != secretKey {
			c.logger.Debug("ignoring cancel request", "conn_id", connID)
			return
		}
		n := c.cancelSession(target)
		c.logger.Debug("session canceled", "conn_id", connID, "peeks", n)
	})
}

// DumpCatalog returns the catalog namespace as JSON.
func (sc *SessionClient) DumpCatalog(ctx context.Context) (string, error) {
	var out string
	err := sc.withSession(ctx, func(context.Context, *session) error {
		var err error
		out, err = sc.coord.catalog.dump()
		return err
	})
	return out, err
}

// Upper returns the upper the coordinator has accumulated for id from the
// feedback delivered to it so far. ok is false when the frontier is empty.
func (sc *SessionClient) Upper(ctx context.Context, id repr.ObjectID) (repr.Timestamp, bool, error) {
	var (
		upper repr.Timestamp
		ok    bool
	)
	err := sc.withSession(ctx, func(context.Context, *session) error {
		if _, found := sc.coord.frontiers[id]; !found {
			return fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
		upper, ok = sc.coord.upper(id)
		return nil
	})
	return upper, ok, err
}

// Terminate ends the session. An open transaction is rolled back and peeks
// that were never dispatched are canceled; dispatched peeks still resolve.
func (sc *SessionClient) Terminate(ctx context.Context) error {
	c := sc.coord
	return c.do(ctx, func(ctx context.Context) {
		s, ok := c.sessions[sc.connID]
		if !ok {
			return
		}
		_, _ = c.endTransaction(ctx, s, false)
		delete(c.sessions, sc.connID)
		c.logger.Debug("session terminated", "conn_id", sc.connID)
	})
}
