// Package sqlparse splits a SQL batch into statements and classifies each
// one for the coordinator.
package sqlparse

import (
	"fmt"
	"strings"
	"sync"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/roach88/coordtest/internal/repr"
)

// Kind classifies a statement by how the coordinator executes it.
type Kind int

const (
	KindSelect Kind = iota + 1
	KindInsert
	KindUpdate
	KindDelete
	KindCreateTable
	KindCreateView
	KindDropTable
	KindDropView
	KindSet
	KindBegin
	KindCommit
	KindRollback
)

var kindNames = map[Kind]string{
	KindSelect:      "SELECT",
	KindInsert:      "INSERT",
	KindUpdate:      "UPDATE",
	KindDelete:      "DELETE",
	KindCreateTable: "CREATE TABLE",
	KindCreateView:  "CREATE VIEW",
	KindDropTable:   "DROP TABLE",
	KindDropView:    "DROP VIEW",
	KindSet:         "SET",
	KindBegin:       "BEGIN",
	KindCommit:      "COMMIT",
	KindRollback:    "ROLLBACK",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Statement is one parsed statement of a batch.
type Statement struct {
	// SQL is the statement text as written, without the trailing semicolon.
	SQL  string
	Kind Kind
	// Names lists the normalized object names created or dropped.
	Names       []string
	IfExists    bool
	IfNotExists bool
	// Columns are the result columns of a SELECT or view, or the declared
	// columns of a table.
	Columns []Column
	// Sources names the objects a SELECT or view reads from.
	Sources []string
}

// Column describes one result or declared column.
type Column struct {
	// Name is the lower-cased output name, empty for unnamed expressions.
	Name string
	// Bool is set for boolean expressions and columns declared bool.
	Bool bool
	// Ref is the column a bare column reference reads. Its type is that of
	// the referenced column in one of the sources.
	Ref string
	// Star stands for every column of every source.
	Star bool
}

// Error is a parse failure of one statement in a batch.
type Error struct {
	Statement string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parsing %q: %v", e.Statement, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var newParser = sync.OnceValues(func() (*sqlparser.Parser, error) {
	return sqlparser.New(sqlparser.Options{})
})

// Parse splits text into statements and parses every one of them. Any
// failure fails the whole batch; nothing is returned for the statements that
// did parse.
func Parse(text string) ([]Statement, error) {
	parser, err := newParser()
	if err != nil {
		return nil, fmt.Errorf("creating parser: %w", err)
	}

	pieces, err := parser.SplitStatementToPieces(text)
	if err != nil {
		return nil, &Error{Statement: strings.TrimSpace(text), Err: err}
	}

	var stmts []Statement
	for _, piece := range pieces {
		piece = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(piece), ";"))
		if piece == "" {
			continue
		}
		ast, err := parser.Parse(piece)
		if err != nil {
			return nil, &Error{Statement: piece, Err: err}
		}
		stmt, err := classify(piece, ast)
		if err != nil {
			return nil, &Error{Statement: piece, Err: err}
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func classify(text string, ast sqlparser.Statement) (Statement, error) {
	stmt := Statement{SQL: text}
	switch ast := ast.(type) {
	case *sqlparser.Select:
		stmt.Kind = KindSelect
		stmt.Columns, stmt.Sources = selectColumns(ast)
	case *sqlparser.Union:
		stmt.Kind = KindSelect
		stmt.Columns, stmt.Sources = selectColumns(sqlparser.GetFirstSelect(ast))
	case *sqlparser.Insert:
		stmt.Kind = KindInsert
	case *sqlparser.Update:
		stmt.Kind = KindUpdate
	case *sqlparser.Delete:
		stmt.Kind = KindDelete
	case *sqlparser.CreateTable:
		stmt.Kind = KindCreateTable
		stmt.Names = []string{objectName(ast.Table)}
		stmt.IfNotExists = ast.IfNotExists
		stmt.Columns = tableColumns(ast.TableSpec)
	case *sqlparser.CreateView:
		stmt.Kind = KindCreateView
		stmt.Names = []string{objectName(ast.ViewName)}
		stmt.Columns, stmt.Sources = selectColumns(sqlparser.GetFirstSelect(ast.Select))
		// CREATE VIEW v (a, b) renames the result columns.
		for i, c := range ast.Columns {
			if i < len(stmt.Columns) && !stmt.Columns[i].Star {
				stmt.Columns[i].Name = c.Lowered()
			}
		}
	case *sqlparser.DropTable:
		stmt.Kind = KindDropTable
		stmt.Names = objectNames(ast.FromTables)
		stmt.IfExists = ast.IfExists
	case *sqlparser.DropView:
		stmt.Kind = KindDropView
		stmt.Names = objectNames(ast.FromTables)
		stmt.IfExists = ast.IfExists
	case *sqlparser.Set:
		stmt.Kind = KindSet
		for _, e := range ast.Exprs {
			stmt.Names = append(stmt.Names, e.Var.Name.Lowered())
		}
	case *sqlparser.Begin:
		stmt.Kind = KindBegin
	case *sqlparser.Commit:
		stmt.Kind = KindCommit
	case *sqlparser.Rollback:
		stmt.Kind = KindRollback
	default:
		return Statement{}, fmt.Errorf("unsupported statement type %T", ast)
	}
	return stmt, nil
}

// objectName returns the lower-cased, NFC-normalized item name. Qualifiers
// are dropped; every object lives in materialize.public.
func objectName(name sqlparser.TableName) string {
	return repr.NormalizeIdent(strings.ToLower(name.Name.String()))
}

func objectNames(names sqlparser.TableNames) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = objectName(n)
	}
	return out
}

func tableColumns(table *sqlparser.TableSpec) []Column {
	if table == nil {
		return nil
	}
	cols := make([]Column, len(table.Columns))
	for i, def := range table.Columns {
		typ := def.Type.Type
		cols[i] = Column{
			Name: def.Name.Lowered(),
			Bool: strings.EqualFold(typ, "bool") || strings.EqualFold(typ, "boolean"),
		}
	}
	return cols
}

func selectColumns(sel *sqlparser.Select) ([]Column, []string) {
	if sel == nil {
		return nil, nil
	}
	cols := make([]Column, len(sel.SelectExprs))
	for i, expr := range sel.SelectExprs {
		switch expr := expr.(type) {
		case *sqlparser.StarExpr:
			cols[i] = Column{Star: true}
		case *sqlparser.AliasedExpr:
			col := Column{Bool: isBoolExpr(expr.Expr)}
			if ref, ok := expr.Expr.(*sqlparser.ColName); ok {
				col.Ref = ref.Name.Lowered()
				col.Name = col.Ref
			}
			if !expr.As.IsEmpty() {
				col.Name = expr.As.Lowered()
			}
			cols[i] = col
		}
	}
	return cols, sources(sel.From)
}

// sources lists the named objects of a FROM clause, left to right.
func sources(from []sqlparser.TableExpr) []string {
	var out []string
	for _, te := range from {
		switch te := te.(type) {
		case *sqlparser.AliasedTableExpr:
			if name, ok := te.Expr.(sqlparser.TableName); ok {
				out = append(out, objectName(name))
			}
		case *sqlparser.JoinTableExpr:
			out = append(out, sources([]sqlparser.TableExpr{te.LeftExpr, te.RightExpr})...)
		}
	}
	return out
}

func isBoolExpr(expr sqlparser.Expr) bool {
	switch expr := expr.(type) {
	case *sqlparser.CaseExpr:
		// Boolean when every branch is.
		if expr.Else != nil && !isBoolExpr(expr.Else) {
			return false
		}
		for _, w := range expr.Whens {
			if !isBoolExpr(w.Val) {
				return false
			}
		}
		return len(expr.Whens) > 0
	case *sqlparser.FuncExpr:
		switch expr.Name.Lowered() {
		case "coalesce", "ifnull":
		default:
			return false
		}
		// Arguments share one type, so a single boolean argument decides it.
		for _, e := range expr.Exprs {
			switch e := any(e).(type) {
			case *sqlparser.AliasedExpr:
				if isBoolExpr(e.Expr) {
					return true
				}
			case sqlparser.Expr:
				if isBoolExpr(e) {
					return true
				}
			}
		}
		return false
	case sqlparser.BoolVal,
		*sqlparser.ComparisonExpr,
		*sqlparser.AndExpr,
		*sqlparser.OrExpr,
		*sqlparser.XorExpr,
		*sqlparser.NotExpr,
		*sqlparser.IsExpr,
		*sqlparser.ExistsExpr,
		*sqlparser.BetweenExpr:
		return true
	default:
		return false
	}
}
