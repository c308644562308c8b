package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// nullRow returns a row of typed NULLs, used to pad the missing side of an outer join.
func nullRow(types []common.Type) []common.Value {
	values := make([]common.Value, len(types))
	for i, t := range types {
		values[i] = common.NewNull(t)
	}
	return values
}

// bindVariables binds every variable to t.
func bindVariables(ctx *ExecutorContext, vars []planner.CorrelationID, t storage.Tuple) {
	for _, v := range vars {
		ctx.Bind(v, t)
	}
}

func unbindVariables(ctx *ExecutorContext, vars []planner.CorrelationID) {
	for _, v := range vars {
		ctx.Unbind(v)
	}
}

// NestedLoopJoinExecutor evaluates the right input once per left row. The join's
// correlation variables are bound to the current left row while the inner executor runs,
// and a fresh inner executor is derived from the right node for every left row.
type NestedLoopJoinExecutor struct {
	plan       *planner.PlanNode
	join       *planner.JoinPayload
	left       Executor
	rightTypes []common.Type

	// Runtime state
	inner   Executor
	outer   storage.Tuple
	matched bool
	current storage.Tuple
	ctx     *ExecutorContext
	err     error
}

func NewNestedLoopJoinExecutor(plan *planner.PlanNode, left Executor) *NestedLoopJoinExecutor {
	return &NestedLoopJoinExecutor{
		plan:       plan,
		join:       planner.PayloadOf[*planner.JoinPayload](plan),
		left:       left,
		rightTypes: plan.Input(1).OutputSchema(),
	}
}

func (e *NestedLoopJoinExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *NestedLoopJoinExecutor) Init(ctx *ExecutorContext) error {
	e.closeInner()
	e.ctx = ctx
	e.err = nil
	return e.left.Init(ctx)
}

func (e *NestedLoopJoinExecutor) openInner() error {
	bindVariables(e.ctx, e.join.Variables, e.outer)
	inner, err := Implement(e.plan.Input(1))
	if err != nil {
		unbindVariables(e.ctx, e.join.Variables)
		return err
	}
	e.inner = inner
	return inner.Init(e.ctx)
}

// closeInner releases the in-flight inner executor and its variable bindings.
func (e *NestedLoopJoinExecutor) closeInner() error {
	if e.inner == nil {
		return nil
	}
	err := e.inner.Close()
	e.inner = nil
	unbindVariables(e.ctx, e.join.Variables)
	return err
}

func (e *NestedLoopJoinExecutor) fail(err error) bool {
	e.err = err
	_ = e.closeInner()
	return false
}

func (e *NestedLoopJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	for {
		if e.inner == nil {
			if !e.left.Next() {
				e.err = e.left.Error()
				return false
			}
			e.outer = e.left.Current()
			e.matched = false
			if err := e.openInner(); err != nil {
				return e.fail(err)
			}
		}

		for e.inner.Next() {
			joined := storage.MergeTuples(e.outer, e.inner.Current())
			v, err := e.join.Condition.Eval(joined, e.ctx)
			if err != nil {
				return e.fail(err)
			}
			if !planner.ExprIsTrue(v) {
				continue
			}
			e.matched = true
			switch e.join.Kind {
			case planner.JoinInner, planner.JoinLeft:
				e.current = joined
				return true
			case planner.JoinSemi:
				if err := e.closeInner(); err != nil {
					return e.fail(err)
				}
				e.current = e.outer
				return true
			}
			// An anti join is settled by the first match.
			break
		}
		if err := e.inner.Error(); err != nil {
			return e.fail(err)
		}
		if err := e.closeInner(); err != nil {
			return e.fail(err)
		}

		if !e.matched {
			switch e.join.Kind {
			case planner.JoinLeft:
				e.current = storage.MergeTuples(e.outer, storage.FromValues(nullRow(e.rightTypes)...))
				return true
			case planner.JoinAnti:
				e.current = e.outer
				return true
			}
		}
	}
}

func (e *NestedLoopJoinExecutor) Current() storage.Tuple {
	return e.current
}

func (e *NestedLoopJoinExecutor) Error() error {
	return e.err
}

func (e *NestedLoopJoinExecutor) Close() error {
	err1 := e.closeInner()
	err2 := e.left.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
