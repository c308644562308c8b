package router

import (
	"sync"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/execution"
	"mit.edu/dsg/sqlroute/planner"
)

// ExecuteCode reports whether a handler took responsibility for a statement.
type ExecuteCode int

const (
	// NotPerformed: the handler does not handle this statement; try the next one.
	NotPerformed ExecuteCode = iota
	// Performed: the handler claimed the statement and sent the response.
	Performed
	// Failed: the handler claimed the statement but could not complete it.
	Failed
)

func (c ExecuteCode) String() string {
	switch c {
	case NotPerformed:
		return "not performed"
	case Performed:
		return "performed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Handler executes or explains one family of statements. Execute and Explain return
// NotPerformed without touching resp when the statement is not theirs. Explain must not
// modify any data.
type Handler interface {
	Name() string
	Execute(req *SQLRequest, dc DataContext, resp Response) (ExecuteCode, error)
	Explain(req *SQLRequest, dc DataContext, resp Response) (ExecuteCode, error)
}

type matchFunc func(req *SQLRequest) bool

type execFunc func(req *SQLRequest, dc DataContext, resp Response) error

// handlerFunc adapts a match predicate and execute/explain functions into a Handler.
// A nil explain describes the statement without running it.
type handlerFunc struct {
	name    string
	match   matchFunc
	execute execFunc
	explain execFunc
}

func (h *handlerFunc) Name() string {
	return h.name
}

func (h *handlerFunc) Execute(req *SQLRequest, dc DataContext, resp Response) (ExecuteCode, error) {
	if !h.match(req) {
		return NotPerformed, nil
	}
	if err := h.execute(req, dc, resp); err != nil {
		return Failed, err
	}
	return Performed, nil
}

func (h *handlerFunc) Explain(req *SQLRequest, dc DataContext, resp Response) (ExecuteCode, error) {
	if !h.match(req) {
		return NotPerformed, nil
	}
	explain := h.explain
	if explain == nil {
		explain = h.describe
	}
	if err := explain(req, dc, resp); err != nil {
		return Failed, err
	}
	return Performed, nil
}

// describe answers explain for statements that have no plan tree.
func (h *handlerFunc) describe(req *SQLRequest, _ DataContext, resp Response) error {
	resp.SendResultSet(textResult([]string{"plan"}, [][]common.Value{
		{common.NewStringValue(h.name + ": " + req.Text)},
	}))
	return nil
}

// explainPlan sends the indented operator tree of plan, one row per node.
func explainPlan(plan *planner.PlanNode, resp Response) {
	lines := planner.Explain(plan)
	rows := make([][]common.Value, len(lines))
	for i, line := range lines {
		rows[i] = []common.Value{common.NewStringValue(line)}
	}
	resp.SendResultSet(textResult([]string{"plan"}, rows))
}

// queryHandler plans the statement with the SQL plan builder and runs it. DML replies
// with an OK carrying the affected row count.
func queryHandler(name string, match matchFunc, dml bool) Handler {
	return &handlerFunc{
		name:  name,
		match: match,
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			plan, err := planner.Build(req.Stmt, req.Bound, dc.PlanOptions())
			if err != nil {
				return err
			}
			rs, err := dc.Query(plan)
			if err != nil {
				return err
			}
			if !dml {
				resp.SendResultSet(rs)
				return nil
			}
			resp.SendOk(affectedRows(rs), dc.LastInsertID())
			return nil
		},
		explain: func(req *SQLRequest, dc DataContext, resp Response) error {
			plan, err := planner.Build(req.Stmt, req.Bound, dc.PlanOptions())
			if err != nil {
				return err
			}
			explainPlan(plan, resp)
			return nil
		},
	}
}

// affectedRows reads the row count a DML plan produces.
func affectedRows(rs *execution.ResultSet) int64 {
	if len(rs.Rows) == 0 || rs.Rows[0].NumColumns() == 0 {
		return 0
	}
	v := rs.Rows[0].GetValue(0)
	if v.IsNull() || v.Type() != common.IntType {
		return 0
	}
	return v.IntValue()
}

// Registry is the ordered, immutable list of handlers a Router consults.
type Registry struct {
	handlers []Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: append([]Handler(nil), handlers...)}
}

// Handlers returns a copy of the handler list in consultation order.
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// Lookup finds a handler by name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the built-in handlers in their fixed consultation order. The
// registry is built once per process and shared; handlers keep no state.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(
			queryHandler("select", isSelect, false),
			queryHandler("insert", isInsert(sqlparser.InsertStr), true),
			queryHandler("delete", isDelete, true),
			queryHandler("update", isUpdate, true),
			truncateHandler(),
			queryHandler("replace", isInsert(sqlparser.ReplaceStr), true),
			setHandler(),
			commitHandler(),
			killHandler(),
			rollbackHandler(),
			setTransactionHandler(),
			startTransactionHandler(),
			showDatabasesHandler(),
			useHandler(),
			alterDatabaseHandler(),
			alterTableHandler(),
			createDatabaseHandler(),
			createIndexHandler(),
			createTableHandler(),
			dropDatabaseHandler(),
			dropTableHandler(),
			renameTableHandler(),
			explainHandler(),
			showCharacterSetHandler(),
			showCollationHandler(),
			showColumnsHandler(),
			showCreateTableHandler(),
			showEnginesHandler(),
			showErrorsHandler(),
			showIndexesHandler(),
			showProcedureStatusHandler(),
			showProcessListHandler(),
			showStatusHandler(),
			showTablesHandler(),
			showTableStatusHandler(),
			showVariablesHandler(),
			showWarningsHandler(),
			showCreateFunctionHandler(),
			analyzeHandler(),
		)
	})
	return defaultRegistry
}
