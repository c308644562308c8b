package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// UpdateExecutor rewrites every stored row its child produces. Assignments are
// evaluated over the stored row as it was before the update. Only rows whose values
// actually change count as affected, as in MySQL.
type UpdateExecutor struct {
	plan    *planner.PlanNode
	payload *planner.UpdatePayload
	child   Executor

	table    *storage.MemTable
	executed bool
	cnt      int64

	ctx *ExecutorContext
	err error
}

func NewUpdateExecutor(plan *planner.PlanNode, child Executor) *UpdateExecutor {
	return &UpdateExecutor{
		plan:    plan,
		payload: planner.PayloadOf[*planner.UpdatePayload](plan),
		child:   child,
	}
}

func (e *UpdateExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *UpdateExecutor) Init(ctx *ExecutorContext) error {
	e.executed = false
	e.cnt = 0
	e.ctx = ctx
	e.err = nil
	table, err := ctx.Store().GetTable(e.payload.Table.Oid)
	if err != nil {
		return err
	}
	e.table = table
	return e.child.Init(ctx)
}

func (e *UpdateExecutor) updateAll() error {
	meta := e.payload.Table
	for e.child.Next() {
		rid := e.child.Current().RID()
		common.Assert(!rid.IsNil(), "RID to update should not be nil")

		oldTuple, ok := e.table.Get(rid)
		if !ok {
			// Deleted by an earlier row of this statement; simply move on
			continue
		}

		newRow := oldTuple.Values()
		for _, a := range e.payload.Assignments {
			v, err := a.Expr.Eval(oldTuple, e.ctx)
			if err != nil {
				return err
			}
			if v, err = coerce(meta, a.Column, v); err != nil {
				return err
			}
			newRow[a.Column] = v
		}
		if err := checkNotNull(meta, newRow); err != nil {
			return err
		}
		if common.CompareValues(oldTuple.Values(), newRow) == 0 {
			continue
		}
		if err := e.table.Update(rid, newRow, e.ctx.GetTransaction()); err != nil {
			return err
		}
		e.cnt++
	}
	return e.child.Error()
}

func (e *UpdateExecutor) Next() bool {
	if e.executed || e.err != nil {
		return false
	}
	e.executed = true
	if e.err = e.updateAll(); e.err != nil {
		return false
	}
	return true
}

func (e *UpdateExecutor) Current() storage.Tuple {
	return dmlResult(e.cnt)
}

func (e *UpdateExecutor) Close() error {
	return e.child.Close()
}

func (e *UpdateExecutor) Error() error {
	return e.err
}
