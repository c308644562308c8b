package execution

import (
	"sort"

	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// sortedRow is a tuple together with its evaluated order keys.
type sortedRow struct {
	tuple storage.Tuple
	keys  []common.Value
}

func evalSortKeys(t storage.Tuple, orderBy []planner.OrderByClause, env planner.Env) ([]common.Value, error) {
	keys := make([]common.Value, len(orderBy))
	for i, order := range orderBy {
		v, err := order.Expr.Eval(t, env)
		if err != nil {
			return nil, err
		}
		keys[i] = v
	}
	return keys, nil
}

// compareSortKeys orders two rows by their keys. NULLs sort first in ascending order.
func compareSortKeys(a, b []common.Value, orderBy []planner.OrderByClause) int {
	for i, order := range orderBy {
		cmp := a[i].Compare(b[i])
		if cmp == 0 {
			continue
		}
		if order.Direction == planner.Ascending {
			return cmp
		}
		return -cmp
	}
	return 0
}

// SortExecutor sorts the input tuples based on the provided ordering expressions.
// It is a blocking operator but uses lazy evaluation (sorts on first Next). The sort is
// stable, so rows with equal keys keep their input order.
type SortExecutor struct {
	plan    *planner.PlanNode
	orderBy []planner.OrderByClause
	child   Executor

	// Runtime state
	sortedRows   []sortedRow
	sorted       bool
	currentIndex int
	ctx          *ExecutorContext
	err          error
}

func NewSortExecutor(plan *planner.PlanNode, child Executor) *SortExecutor {
	return &SortExecutor{
		plan:    plan,
		orderBy: planner.PayloadOf[*planner.SortPayload](plan).OrderBy,
		child:   child,
	}
}

func (e *SortExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *SortExecutor) Init(ctx *ExecutorContext) error {
	e.sortedRows = nil
	e.sorted = false
	e.currentIndex = -1
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *SortExecutor) sortAllRows() error {
	for e.child.Next() {
		t := e.child.Current()
		keys, err := evalSortKeys(t, e.orderBy, e.ctx)
		if err != nil {
			return err
		}
		e.sortedRows = append(e.sortedRows, sortedRow{tuple: t, keys: keys})
	}
	if err := e.child.Error(); err != nil {
		return err
	}

	sort.SliceStable(e.sortedRows, func(i, j int) bool {
		return compareSortKeys(e.sortedRows[i].keys, e.sortedRows[j].keys, e.orderBy) < 0
	})
	return nil
}

func (e *SortExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.sorted {
		e.sorted = true
		if e.err = e.sortAllRows(); e.err != nil {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.sortedRows)
}

func (e *SortExecutor) Current() storage.Tuple {
	return e.sortedRows[e.currentIndex].tuple
}

func (e *SortExecutor) Error() error {
	return e.err
}

func (e *SortExecutor) Close() error {
	e.sortedRows = nil
	return e.child.Close()
}
