package execution

import (
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// FilterExecutor passes through the child tuples for which the predicate is true. Rows
// whose predicate is false or unknown are dropped.
type FilterExecutor struct {
	plan      *planner.PlanNode
	predicate planner.Expr
	child     Executor

	ctx *ExecutorContext
	err error
}

func NewFilterExecutor(plan *planner.PlanNode, child Executor) *FilterExecutor {
	return &FilterExecutor{
		plan:      plan,
		predicate: planner.PayloadOf[*planner.FilterPayload](plan).Predicate,
		child:     child,
	}
}

func (e *FilterExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *FilterExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *FilterExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	for e.child.Next() {
		v, err := e.predicate.Eval(e.child.Current(), e.ctx)
		if err != nil {
			e.err = err
			return false
		}
		if planner.ExprIsTrue(v) {
			return true
		}
	}
	e.err = e.child.Error()
	return false
}

func (e *FilterExecutor) Current() storage.Tuple {
	return e.child.Current()
}

func (e *FilterExecutor) Error() error {
	return e.err
}

func (e *FilterExecutor) Close() error {
	return e.child.Close()
}
