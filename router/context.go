package router

import (
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/execution"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/session"
)

// DataContext is the session-side capability set the router and handlers work against.
// Binding a statement is the only way handlers see schema-dependent state; everything
// else is an explicit operation.
type DataContext interface {
	planner.Resolver

	Bind(stmt sqlparser.Statement) (*session.BoundStatement, error)
	UseSchema(name string) error
	Catalog() *catalog.Catalog
	PlanOptions() planner.Options
	// Query runs a plan inside the session's current transaction.
	Query(plan *planner.PlanNode) (*execution.ResultSet, error)
	LastInsertID() int64
	ConnectionID() uint32
	// StartRequest fails once the session was killed.
	StartRequest() error
	Kill(id uint32, query bool) error
	Processes() []session.Process

	SetVariable(name string, v common.Value, global bool) error
	Variables(global bool) []session.NamedValue

	Begin() error
	Commit() error
	Rollback() error

	CreateTable(schema, name string, columns []catalog.Column, primaryKey []string, ifNotExists bool) (*catalog.Table, error)
	DropTable(schema, name string, ifExists bool) error
	TruncateTable(schema, name string) error
	RenameTable(schema, name, newSchema, newName string) error
	CreateDatabase(name string, ifNotExists bool) error
	DropDatabase(name string, ifExists bool) error
	AlterDatabase(name, charset, collation string) error
	TableStatus(schema string) ([]session.TableStatus, error)
	AddIndex(schema, table, indexName, indexType string, unique bool, columns []string) error

	Warn(code common.ErrorCode, format string, args ...any)
	RecordError(err error)
	Warnings() []session.Diagnostic
	Errors() []session.Diagnostic
	ResetDiagnostics()
}

var _ DataContext = (*session.Session)(nil)
