package execution

import (
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// LimitExecutor skips the first Offset child tuples, then passes at most Limit tuples.
// Once the limit is reached the child is not pulled again.
type LimitExecutor struct {
	plan   *planner.PlanNode
	limits *planner.LimitPayload
	child  Executor

	// Runtime state
	skipped, emitted int64
	ctx              *ExecutorContext
	err              error
}

func NewLimitExecutor(plan *planner.PlanNode, child Executor) *LimitExecutor {
	return &LimitExecutor{
		plan:   plan,
		limits: planner.PayloadOf[*planner.LimitPayload](plan),
		child:  child,
	}
}

func (e *LimitExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *LimitExecutor) Init(ctx *ExecutorContext) error {
	e.skipped = 0
	e.emitted = 0
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *LimitExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if e.limits.Limit >= 0 && e.emitted >= e.limits.Limit {
		return false
	}
	for e.skipped < e.limits.Offset {
		if !e.child.Next() {
			e.err = e.child.Error()
			return false
		}
		e.skipped++
	}
	if !e.child.Next() {
		e.err = e.child.Error()
		return false
	}
	e.emitted++
	return true
}

func (e *LimitExecutor) Current() storage.Tuple {
	return e.child.Current()
}

func (e *LimitExecutor) Error() error {
	return e.err
}

func (e *LimitExecutor) Close() error {
	return e.child.Close()
}
