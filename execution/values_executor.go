package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// ValuesExecutor emits the literal rows of a Values node, evaluating each row's
// expressions when the row is reached.
type ValuesExecutor struct {
	plan    *planner.PlanNode
	payload *planner.ValuesPayload

	// Runtime state
	index   int
	current storage.Tuple
	ctx     *ExecutorContext
	err     error
}

func NewValuesExecutor(plan *planner.PlanNode) *ValuesExecutor {
	return &ValuesExecutor{
		plan:    plan,
		payload: planner.PayloadOf[*planner.ValuesPayload](plan),
	}
}

func (e *ValuesExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *ValuesExecutor) Init(ctx *ExecutorContext) error {
	e.index = 0
	e.ctx = ctx
	e.err = nil
	return nil
}

func (e *ValuesExecutor) Next() bool {
	if e.err != nil || e.index >= len(e.payload.Rows) {
		return false
	}
	row := e.payload.Rows[e.index]
	e.index++

	values := make([]common.Value, len(row))
	for i, expr := range row {
		v, err := expr.Eval(storage.Tuple{}, e.ctx)
		if err != nil {
			e.err = err
			return false
		}
		values[i] = v
	}
	e.current = storage.FromValues(values...)
	return true
}

func (e *ValuesExecutor) Current() storage.Tuple {
	return e.current
}

func (e *ValuesExecutor) Error() error {
	return e.err
}

func (e *ValuesExecutor) Close() error {
	return nil
}
