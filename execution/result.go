package execution

import (
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// ResultSet is the materialized output of an executor. Complete is false when the
// sequence stopped on an error; Rows then holds the rows read before the failure.
type ResultSet struct {
	Columns  []planner.Column
	Rows     []storage.Tuple
	Complete bool
}

// ColumnNames returns the output column names, in order.
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// Strings renders every row as strings, with NULL for SQL NULL.
func (rs *ResultSet) Strings() [][]string {
	out := make([][]string, len(rs.Rows))
	for i, row := range rs.Rows {
		cells := make([]string, row.NumColumns())
		for j := range cells {
			cells[j] = row.GetValue(j).String()
		}
		out[i] = cells
	}
	return out
}

// Collect drives exec to completion and materializes its rows. The executor is always
// closed, on success and on failure. On failure the partial result is returned together
// with the error.
func Collect(exec Executor, ctx *ExecutorContext) (rs *ResultSet, err error) {
	rs = &ResultSet{Columns: exec.PlanNode().Columns()}
	defer func() {
		if closeErr := exec.Close(); err == nil {
			err = closeErr
		}
		rs.Complete = err == nil
	}()

	if err = exec.Init(ctx); err != nil {
		return rs, err
	}
	for exec.Next() {
		rs.Rows = append(rs.Rows, exec.Current())
	}
	err = exec.Error()
	return rs, err
}

// Run implements the plan rooted at n and collects its output.
func Run(n *planner.PlanNode, ctx *ExecutorContext) (*ResultSet, error) {
	exec, err := Implement(n)
	if err != nil {
		return nil, err
	}
	return Collect(exec, ctx)
}
