package coord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/coordtest/internal/repr"
	"github.com/roach88/coordtest/internal/sqlparse"
	"github.com/roach88/coordtest/internal/store"
)

// Statement execution errors.
var (
	ErrUnknownPortal      = errors.New("unknown portal")
	ErrTransactionAborted = errors.New("current transaction is aborted, commands ignored until end of transaction block")
	ErrUnsupported        = errors.New("unsupported statement")
	ErrItemExists         = errors.New("catalog item already exists")
	ErrUnknownItem        = errors.New("unknown catalog item")
	ErrWrongItemKind      = errors.New("catalog item has the wrong kind")
)

type session struct {
	connID    uint32
	secretKey uint32
	portals   map[string]portal
	vars      map[string]string
	txn       *transaction
	// outstanding holds this session's dispatched peeks.
	outstanding []*pendingPeek
}

type portal struct {
	stmt   sqlparse.Statement
	params []repr.Datum
}

type transaction struct {
	// size is the statement count the transaction was started for.
	size int
	// tx is opened on the first statement that touches storage.
	tx     *store.Tx
	failed error
	ops    []catalogOp
	wrote  bool
	peeks  []*pendingPeek
}

type pendingPeek struct {
	id          string
	sql         string
	boolColumns []bool
	handle      *RowsHandle
}

// lookup resolves name against the catalog as this transaction would see
// it after commit.
func (t *transaction) lookup(c *catalog, name string) (ItemKind, bool) {
	for i := len(t.ops) - 1; i >= 0; i-- {
		if t.ops[i].name == name {
			return t.ops[i].kind, t.ops[i].create
		}
	}
	it, ok := c.lookup(name)
	return it.kind, ok
}

// columns returns the columns of name as this transaction sees them.
func (t *transaction) columns(c *catalog, name string) []column {
	for i := len(t.ops) - 1; i >= 0; i-- {
		if t.ops[i].name == name {
			return t.ops[i].columns
		}
	}
	it, _ := c.lookup(name)
	return it.columns
}

// typeColumns types the result columns of a query. A bare column reference
// is boolean when a source has a boolean column of that name; * expands to
// the columns of every source.
func (c *Coordinator) typeColumns(txn *transaction, stmt sqlparse.Statement) []column {
	var out []column
	for _, col := range stmt.Columns {
		if col.Star {
			for _, src := range stmt.Sources {
				out = append(out, txn.columns(c.catalog, src)...)
			}
			continue
		}
		typed := column{name: col.Name, boolean: col.Bool}
		if !typed.boolean && col.Ref != "" {
			typed.boolean = slices.ContainsFunc(stmt.Sources, func(src string) bool {
				return slices.Contains(txn.columns(c.catalog, src), column{name: col.Ref, boolean: true})
			})
		}
		out = append(out, typed)
	}
	return out
}

func booleans(cols []column) []bool {
	out := make([]bool, len(cols))
	for i, col := range cols {
		out[i] = col.boolean
	}
	return out
}

func (c *Coordinator) startTransaction(s *session, size int) {
	if s.txn != nil {
		return
	}
	c.logger.Debug("transaction started", "conn_id", s.connID, "statements", size)
	s.txn = &transaction{size: size}
}

func (c *Coordinator) execute(ctx context.Context, s *session, portalName string) (ExecuteResponse, error) {
	p, ok := s.portals[portalName]
	if !ok {
		return ExecuteResponse{}, fmt.Errorf("%w %q", ErrUnknownPortal, portalName)
	}
	if s.txn == nil {
		c.startTransaction(s, 1)
	}
	// COMMIT and ROLLBACK end the transaction the batch runs in. A COMMIT
	// of an aborted transaction rolls it back.
	switch p.stmt.Kind {
	case sqlparse.KindCommit:
		return c.endTransaction(ctx, s, true)
	case sqlparse.KindRollback:
		return c.endTransaction(ctx, s, false)
	}
	txn := s.txn
	if txn.failed != nil {
		return ExecuteResponse{}, ErrTransactionAborted
	}

	resp, err := c.executeStatement(ctx, s, txn, p)
	if err != nil {
		txn.failed = err
		// Release storage right away; nothing of this transaction can commit.
		if txn.tx != nil {
			if rbErr := txn.tx.Rollback(); rbErr != nil {
				c.logger.Warn("rollback failed", "conn_id", s.connID, "error", rbErr)
			}
			txn.tx = nil
		}
		c.cancelStaged(txn, "")
		return ExecuteResponse{}, err
	}
	return resp, nil
}

func (c *Coordinator) executeStatement(ctx context.Context, s *session, txn *transaction, p portal) (ExecuteResponse, error) {
	stmt := p.stmt
	switch stmt.Kind {
	case sqlparse.KindSelect:
		peek := &pendingPeek{
			id:          c.ids.PeekID(),
			sql:         stmt.SQL,
			boolColumns: booleans(c.typeColumns(txn, stmt)),
			handle:      newRowsHandle(),
		}
		txn.peeks = append(txn.peeks, peek)
		return ExecuteResponse{Kind: SendingRows, Rows: peek.handle}, nil

	case sqlparse.KindInsert, sqlparse.KindUpdate, sqlparse.KindDelete:
		n, err := c.write(ctx, txn, stmt.SQL, p.params)
		if err != nil {
			return ExecuteResponse{}, err
		}
		kind := map[sqlparse.Kind]ResponseKind{
			sqlparse.KindInsert: Inserted,
			sqlparse.KindUpdate: Updated,
			sqlparse.KindDelete: Deleted,
		}[stmt.Kind]
		return ExecuteResponse{Kind: kind, Count: n}, nil

	case sqlparse.KindCreateTable, sqlparse.KindCreateView:
		kind, respKind := ItemTable, CreatedTable
		if stmt.Kind == sqlparse.KindCreateView {
			kind, respKind = ItemView, CreatedView
		}
		name := stmt.Names[0]
		if _, exists := txn.lookup(c.catalog, name); exists {
			if stmt.IfNotExists {
				return ExecuteResponse{Kind: respKind, Existed: true}, nil
			}
			return ExecuteResponse{}, fmt.Errorf("%w: %q", ErrItemExists, name)
		}
		if _, err := c.exec(ctx, txn, stmt.SQL, nil); err != nil {
			return ExecuteResponse{}, err
		}
		var cols []column
		if kind == ItemView {
			cols = c.typeColumns(txn, stmt)
		} else {
			for _, col := range stmt.Columns {
				cols = append(cols, column{name: col.Name, boolean: col.Bool})
			}
		}
		txn.ops = append(txn.ops, catalogOp{create: true, name: name, kind: kind, columns: cols})
		return ExecuteResponse{Kind: respKind}, nil

	case sqlparse.KindDropTable, sqlparse.KindDropView:
		want, respKind := ItemTable, DroppedTable
		if stmt.Kind == sqlparse.KindDropView {
			want, respKind = ItemView, DroppedView
		}
		for _, name := range stmt.Names {
			kind, exists := txn.lookup(c.catalog, name)
			if !exists {
				if stmt.IfExists {
					continue
				}
				return ExecuteResponse{}, fmt.Errorf("%w: %q", ErrUnknownItem, name)
			}
			if kind != want {
				return ExecuteResponse{}, fmt.Errorf("%w: %q is a %s", ErrWrongItemKind, name, kind)
			}
			if _, err := c.exec(ctx, txn, fmt.Sprintf("DROP %s %q", map[ItemKind]string{ItemTable: "TABLE", ItemView: "VIEW"}[kind], name), nil); err != nil {
				return ExecuteResponse{}, err
			}
			txn.ops = append(txn.ops, catalogOp{name: name, kind: kind})
		}
		return ExecuteResponse{Kind: respKind}, nil

	case sqlparse.KindBegin:
		// Statements already run in a transaction; BEGIN only names it.
		return ExecuteResponse{Kind: StartedTransaction}, nil

	case sqlparse.KindSet:
		for _, name := range stmt.Names {
			s.vars[name] = stmt.SQL
		}
		return ExecuteResponse{Kind: SetVariable, Name: strings.Join(stmt.Names, ", ")}, nil

	default:
		return ExecuteResponse{}, fmt.Errorf("%w: %s", ErrUnsupported, stmt.Kind)
	}
}

// exec runs a statement in the transaction's storage transaction, opening it
// on first use.
func (c *Coordinator) exec(ctx context.Context, txn *transaction, query string, params []repr.Datum) (int64, error) {
	if txn.tx == nil {
		tx, err := c.store.Begin(ctx)
		if err != nil {
			return 0, err
		}
		txn.tx = tx
	}
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = repr.ToSQL(p)
	}
	res, err := txn.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *Coordinator) write(ctx context.Context, txn *transaction, query string, params []repr.Datum) (int64, error) {
	n, err := c.exec(ctx, txn, query, params)
	if err != nil {
		return 0, err
	}
	txn.wrote = true
	return n, nil
}

// endTransaction commits or rolls back the open transaction. A failed
// transaction is always rolled back.
func (c *Coordinator) endTransaction(ctx context.Context, s *session, commit bool) (ExecuteResponse, error) {
	txn := s.txn
	s.txn = nil
	if txn == nil {
		if commit {
			return ExecuteResponse{Kind: Committed}, nil
		}
		return ExecuteResponse{Kind: RolledBack}, nil
	}

	if commit && txn.failed == nil {
		if err := c.commit(ctx, s, txn); err != nil {
			return ExecuteResponse{}, err
		}
		return ExecuteResponse{Kind: Committed}, nil
	}

	if txn.tx != nil {
		if err := txn.tx.Rollback(); err != nil {
			c.logger.Warn("rollback failed", "conn_id", s.connID, "error", err)
		}
	}
	c.cancelStaged(txn, "")
	return ExecuteResponse{Kind: RolledBack}, nil
}
