package session

import (
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
)

// BoundStatement is a parsed statement together with a snapshot of the session state it
// refers to: the current schema, the tables it names and the variables it reads. It
// implements planner.Resolver, so a statement plans against exactly the state it was
// bound to. The parse tree is shared, never modified.
type BoundStatement struct {
	Stmt sqlparser.Statement
	// Category is the coarse statement type (SELECT, DDL, SHOW, ...).
	Category string

	schema string
	tables map[string]*catalog.Table
	vars   map[string]common.Value
}

func tableKey(schema, name string) string {
	return strings.ToLower(schema) + "." + strings.ToLower(name)
}

// snapshotFuncs are the functions whose value comes from session state.
var snapshotFuncs = map[string]bool{
	"version":        true,
	"last_insert_id": true,
	"connection_id":  true,
}

// Bind resolves the tables and variables stmt refers to against the session. Tables
// that do not exist are not an error here; planning reports them.
func (s *Session) Bind(stmt sqlparser.Statement) (*BoundStatement, error) {
	b := &BoundStatement{
		Stmt:     stmt,
		Category: Category(stmt),
		schema:   s.schema,
		tables:   make(map[string]*catalog.Table),
		vars:     make(map[string]common.Value),
	}
	addTable := func(name sqlparser.TableName) {
		if name.IsEmpty() || strings.EqualFold(name.Name.String(), "dual") && name.Qualifier.IsEmpty() {
			return
		}
		schema := name.Qualifier.String()
		if schema == "" {
			schema = s.schema
		}
		if t, err := s.mgr.catalog.GetTable(schema, name.Name.String()); err == nil {
			b.tables[tableKey(schema, name.Name.String())] = t
		}
	}
	addVar := func(name string) {
		if v, ok := s.Variable(name); ok {
			b.vars[strings.ToLower(name)] = v
		}
	}

	err := sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.AliasedTableExpr:
			if name, ok := n.Expr.(sqlparser.TableName); ok {
				addTable(name)
			}
		case *sqlparser.Insert:
			addTable(n.Table)
		case *sqlparser.ColName:
			if n.Qualifier.IsEmpty() {
				if name, ok := planner.VariableName(n.Name.String()); ok {
					addVar(name)
				}
			}
		case *sqlparser.FuncExpr:
			if name := n.Name.Lowered(); snapshotFuncs[name] && n.Qualifier.IsEmpty() {
				addVar(name)
			}
		}
		return true, nil
	}, stmt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Category returns the coarse statement type (SELECT, DDL, SHOW, ...) of stmt.
func Category(stmt sqlparser.Statement) string {
	kind := sqlparser.StmtUnknown
	switch s := stmt.(type) {
	case sqlparser.SelectStatement:
		kind = sqlparser.StmtSelect
	case *sqlparser.Insert:
		kind = sqlparser.StmtInsert
		if s.Action == sqlparser.ReplaceStr {
			kind = sqlparser.StmtReplace
		}
	case *sqlparser.Update:
		kind = sqlparser.StmtUpdate
	case *sqlparser.Delete:
		kind = sqlparser.StmtDelete
	case *sqlparser.DDL, *sqlparser.DBDDL:
		kind = sqlparser.StmtDDL
	case *sqlparser.Begin:
		kind = sqlparser.StmtBegin
	case *sqlparser.Commit:
		kind = sqlparser.StmtCommit
	case *sqlparser.Rollback:
		kind = sqlparser.StmtRollback
	case *sqlparser.Set:
		kind = sqlparser.StmtSet
	case *sqlparser.Show:
		kind = sqlparser.StmtShow
	case *sqlparser.Use:
		kind = sqlparser.StmtUse
	case *sqlparser.OtherRead, *sqlparser.OtherAdmin:
		kind = sqlparser.StmtOther
	}
	return sqlparser.StmtType(kind)
}

// Schema implements planner.Resolver.
func (b *BoundStatement) Schema() string {
	return b.schema
}

// ResolveTable implements planner.Resolver.
func (b *BoundStatement) ResolveTable(name sqlparser.TableName) (*catalog.Table, error) {
	schema := name.Qualifier.String()
	if schema == "" {
		schema = b.schema
	}
	if schema == "" {
		return nil, common.NewError(common.NoSuchObjectError, "no database selected")
	}
	t, ok := b.tables[tableKey(schema, name.Name.String())]
	if !ok {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s.%s' doesn't exist", schema, name.Name.String())
	}
	return t, nil
}

// Variable implements planner.Resolver.
func (b *BoundStatement) Variable(name string) (common.Value, bool) {
	v, ok := b.vars[strings.ToLower(name)]
	return v, ok
}

// Tables returns the bound tables ordered by qualified name.
func (b *BoundStatement) Tables() []*catalog.Table {
	out := make([]*catalog.Table, 0, len(b.tables))
	for _, t := range b.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

// ResolveTable implements planner.Resolver against the live catalog.
func (s *Session) ResolveTable(name sqlparser.TableName) (*catalog.Table, error) {
	return s.mgr.catalog.GetTable(s.qualify(name.Qualifier.String()), name.Name.String())
}
