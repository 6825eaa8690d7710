package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/coordtest/internal/coord"
	"github.com/roach88/coordtest/internal/feedback"
	"github.com/roach88/coordtest/internal/sqlparse"
)

// Session is a connection to the coordinator together with the metadata
// returned at startup.
type Session struct {
	client  *coord.SessionClient
	startup coord.StartupResponse
}

// ConnID returns the connection id.
func (s *Session) ConnID() uint32 {
	return s.startup.ConnID
}

// Connect opens a new session.
func (ct *CoordTest) Connect(ctx context.Context) (*Session, error) {
	sc, sr, err := ct.client.Startup(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Session{client: sc, startup: sr}, nil
}

// Terminate closes s. Its open transaction is rolled back.
func (ct *CoordTest) Terminate(ctx context.Context, s *Session) error {
	if err := s.client.Terminate(ctx); err != nil {
		return fmt.Errorf("terminate session %d: %w", s.ConnID(), err)
	}
	return nil
}

// WithSession runs fn in a fresh session and terminates the session on
// every path.
func (ct *CoordTest) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := ct.Connect(ctx)
	if err != nil {
		return err
	}
	ferr := fn(ctx, s)
	return errors.Join(ferr, ct.Terminate(ctx, s))
}

// WithPersistedSession runs fn in a fresh session and keeps the session
// under name until it is awaited. A name that is already in use is fatal.
func (ct *CoordTest) WithPersistedSession(ctx context.Context, name string, fn func(ctx context.Context, s *Session) error) error {
	if _, ok := ct.persisted[name]; ok {
		return notFoundf("duplicate named session %q", name)
	}
	s, err := ct.Connect(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, s); err != nil {
		return errors.Join(err, ct.Terminate(ctx, s))
	}
	return ct.Persist(name, s)
}

// Persist stores s under name.
func (ct *CoordTest) Persist(name string, s *Session) error {
	if _, ok := ct.persisted[name]; ok {
		return notFoundf("duplicate named session %q", name)
	}
	ct.persisted[name] = s
	ct.logger.Debug("session persisted", "session", name, "conn_id", s.ConnID())
	return nil
}

// RunStatements parses text and executes every statement in one implicit
// transaction, committing after the last one. A parse failure executes
// nothing; an execution failure stops the batch and commits nothing.
func (ct *CoordTest) RunStatements(ctx context.Context, s *Session, text string) ([]coord.ExecuteResponse, error) {
	stmts, err := sqlparse.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	results := make([]coord.ExecuteResponse, 0, len(stmts))
	for _, stmt := range stmts {
		if err := s.client.StartTransaction(ctx, len(stmts)); err != nil {
			return nil, err
		}
		// Bind to the unnamed portal with no parameters.
		if err := s.client.Declare(ctx, "", stmt, nil); err != nil {
			return nil, err
		}
		resp, err := s.client.Execute(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("executing %q: %w", stmt.SQL, err)
		}
		results = append(results, resp)
	}
	if _, err := s.client.EndTransaction(ctx, coord.Commit); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return results, nil
}

// Cancel cancels the outstanding work of the named session. The request is
// sent from a separate session; nothing orders it against the target's own
// work.
func (ct *CoordTest) Cancel(ctx context.Context, name string) error {
	target, ok := ct.persisted[name]
	if !ok {
		return notFoundf("no session named %q", name)
	}
	return ct.WithSession(ctx, func(ctx context.Context, s *Session) error {
		return s.client.CancelRequest(ctx, target.startup.ConnID, target.startup.SecretKey)
	})
}

// Defer records the outcomes of an async-sql directive for name.
func (ct *CoordTest) Defer(name string, results []coord.ExecuteResponse) {
	ct.deferred[name] = results
}

// Await removes the named session and its deferred outcomes, renders the
// outcomes and terminates the session.
func (ct *CoordTest) Await(ctx context.Context, name string) (string, error) {
	s, ok := ct.persisted[name]
	if !ok {
		return "", notFoundf("no session named %q", name)
	}
	delete(ct.persisted, name)
	results, ok := ct.deferred[name]
	if !ok {
		return "", errors.Join(notFoundf("no deferred results for session %q", name), ct.Terminate(ctx, s))
	}
	delete(ct.deferred, name)

	out, err := ct.render(ctx, results)
	if err != nil {
		return "", errors.Join(err, ct.Terminate(ctx, s))
	}
	if err := ct.Terminate(ctx, s); err != nil {
		return "", err
	}
	return out, nil
}

// waitForPeek resolves a row stream without ever blocking on the
// coordinator: it alternates between polling the handle and releasing
// buffered peek responses, and sleeps only until one of the two sources
// changes.
func (ct *CoordTest) waitForPeek(ctx context.Context, h *coord.RowsHandle) (feedback.PeekResponse, error) {
	for {
		if resp, ok := h.Poll(); ok {
			return resp, nil
		}
		if err := ct.interceptor.ReleaseOnlyPeekResponses(); err != nil {
			return feedback.PeekResponse{}, err
		}
		if resp, ok := h.Poll(); ok {
			return resp, nil
		}
		select {
		case <-h.Ready():
		case <-ct.interceptor.Arrivals():
		case <-ctx.Done():
			return feedback.PeekResponse{}, ctx.Err()
		}
	}
}
