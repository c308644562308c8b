package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// ProjectionExecutor computes one output column per expression of the node.
type ProjectionExecutor struct {
	plan  *planner.PlanNode
	exprs []planner.Expr
	child Executor

	current storage.Tuple
	ctx     *ExecutorContext
	err     error
}

func NewProjectionExecutor(plan *planner.PlanNode, child Executor) *ProjectionExecutor {
	return &ProjectionExecutor{
		plan:  plan,
		exprs: planner.PayloadOf[*planner.ProjectPayload](plan).Exprs,
		child: child,
	}
}

func (e *ProjectionExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *ProjectionExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *ProjectionExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.child.Next() {
		e.err = e.child.Error()
		return false
	}
	in := e.child.Current()
	values := make([]common.Value, len(e.exprs))
	for i, expr := range e.exprs {
		v, err := expr.Eval(in, e.ctx)
		if err != nil {
			e.err = err
			return false
		}
		values[i] = v
	}
	e.current = storage.FromValues(values...)
	return true
}

func (e *ProjectionExecutor) Current() storage.Tuple {
	return e.current
}

func (e *ProjectionExecutor) Error() error {
	return e.err
}

func (e *ProjectionExecutor) Close() error {
	return e.child.Close()
}
