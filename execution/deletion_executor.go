package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// DeleteExecutor removes every stored row its child produces.
type DeleteExecutor struct {
	plan    *planner.PlanNode
	payload *planner.DeletePayload
	child   Executor

	table    *storage.MemTable
	executed bool
	cnt      int64
	ctx      *ExecutorContext
	err      error
}

func NewDeleteExecutor(plan *planner.PlanNode, child Executor) *DeleteExecutor {
	return &DeleteExecutor{
		plan:    plan,
		payload: planner.PayloadOf[*planner.DeletePayload](plan),
		child:   child,
	}
}

func (e *DeleteExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *DeleteExecutor) Init(ctx *ExecutorContext) error {
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

func (e *DeleteExecutor) Next() bool {
	if e.executed || e.err != nil {
		return false
	}
	e.executed = true
	for e.child.Next() {
		rid := e.child.Current().RID()
		common.Assert(!rid.IsNil(), "RID to delete should not be nil")
		if e.table.Delete(rid, e.ctx.GetTransaction()) {
			e.cnt++
		}
	}
	if e.err = e.child.Error(); e.err != nil {
		return false
	}
	return true
}

func (e *DeleteExecutor) Current() storage.Tuple {
	return dmlResult(e.cnt)
}

func (e *DeleteExecutor) Close() error {
	return e.child.Close()
}

func (e *DeleteExecutor) Error() error {
	return e.err
}
