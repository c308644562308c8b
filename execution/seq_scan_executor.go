package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// SeqScanExecutor scans a snapshot of a table in primary key order.
// Columns outside the node's required set are not materialized and read as NULL; the
// row id is always kept so that DML executors can find the row again.
type SeqScanExecutor struct {
	plan     *planner.PlanNode
	payload  *planner.ScanPayload
	types    []common.Type
	required planner.ColumnSet

	// Runtime state
	iter    *storage.MemTableIterator
	current storage.Tuple
	ctx     *ExecutorContext
	err     error
}

func NewSeqScanExecutor(plan *planner.PlanNode) *SeqScanExecutor {
	return &SeqScanExecutor{
		plan:     plan,
		payload:  planner.PayloadOf[*planner.ScanPayload](plan),
		types:    plan.OutputSchema(),
		required: plan.RequiredColumns(),
	}
}

func (e *SeqScanExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *SeqScanExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	e.err = nil
	if e.iter != nil {
		_ = e.iter.Close()
		e.iter = nil
	}
	table, err := ctx.Store().GetTable(e.payload.Table.Oid)
	if err != nil {
		return err
	}
	e.iter = table.Scan()
	return nil
}

func (e *SeqScanExecutor) Next() bool {
	if e.err != nil || e.iter == nil {
		return false
	}
	if !e.iter.Next() {
		return false
	}
	row := e.iter.Current()
	if e.required.Len() == len(e.types) {
		e.current = row
		return true
	}
	values := make([]common.Value, len(e.types))
	for i, t := range e.types {
		if e.required.Contains(i) {
			values[i] = row.GetValue(i)
		} else {
			values[i] = common.NewNull(t)
		}
	}
	e.current = storage.FromRow(row.RID(), values)
	return true
}

func (e *SeqScanExecutor) Current() storage.Tuple {
	return e.current
}

func (e *SeqScanExecutor) Error() error {
	return e.err
}

func (e *SeqScanExecutor) Close() error {
	if e.iter == nil {
		return nil
	}
	err := e.iter.Close()
	e.iter = nil
	return err
}
