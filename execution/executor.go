package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// Executor is the interface that all physical execution nodes must implement.
//
// An executor is a pull-based sequence over the rows of its plan node. The first error
// stops the sequence: Next returns false and Error reports it. A sequence is not
// restartable once drained; derive a fresh executor from the node with Implement.
type Executor interface {
	PlanNode() *planner.PlanNode

	// Init initializes the executor with a specific execution context.
	// This binds the executor to a transaction and to the correlation bindings.
	Init(ctx *ExecutorContext) error

	// Next retrieves the next tuple from the executor.
	Next() bool

	// Current returns the tuple most recently read by Next().
	Current() storage.Tuple

	// Error returns the last error encountered by the executor, if any.
	Error() error

	// Close cleans up any resources held by the executor. It is safe to call Close on an
	// executor that was abandoned mid-sequence or that failed.
	Close() error
}

func unsupportedPlan(n *planner.PlanNode, format string, args ...any) error {
	return common.NewError(common.UnsupportedPlanError, "%s: "+format, append([]any{n.Kind()}, args...)...)
}

// Implement derives an executor tree for the plan rooted at n. Nodes for which no
// execution strategy exists fail with an UnsupportedPlanError; Implement never returns a
// nil executor without an error.
func Implement(n *planner.PlanNode) (Executor, error) {
	if n.Convention() != planner.ConventionEnumerable {
		return nil, unsupportedPlan(n, "cannot execute a node in the %s convention", n.Convention())
	}

	switch n.Kind() {
	case planner.OpTableScan:
		return NewSeqScanExecutor(n), nil
	case planner.OpValues:
		return NewValuesExecutor(n), nil
	case planner.OpNestedLoopJoin, planner.OpBatchNestedLoopJoin:
		if planner.PayloadOf[*planner.JoinPayload](n).Kind == planner.JoinRight {
			return nil, unsupportedPlan(n, "right joins are not supported by nested-loop algorithms")
		}
		// The inner side is re-derived per outer row or batch. Deriving it once here
		// surfaces an unsupported inner plan before anything runs.
		left, right, err := implementInputs(n)
		if err != nil {
			return nil, err
		}
		if err := right.Close(); err != nil {
			_ = left.Close()
			return nil, err
		}
		if n.Kind() == planner.OpNestedLoopJoin {
			return NewNestedLoopJoinExecutor(n, left), nil
		}
		return NewBatchNestedLoopJoinExecutor(n, left), nil
	case planner.OpHashJoin:
		payload := planner.PayloadOf[*planner.JoinPayload](n)
		if payload.Kind != planner.JoinInner && payload.Kind != planner.JoinRight {
			return nil, unsupportedPlan(n, "%s joins cannot be hashed", payload.Kind)
		}
		if len(payload.LeftKeys) == 0 {
			return nil, unsupportedPlan(n, "no equi-join keys")
		}
		left, right, err := implementInputs(n)
		if err != nil {
			return nil, err
		}
		return NewHashJoinExecutor(n, left, right), nil
	}

	// Everything else has exactly one input.
	child, err := Implement(n.Input(0))
	if err != nil {
		return nil, err
	}
	switch n.Kind() {
	case planner.OpFilter:
		return NewFilterExecutor(n, child), nil
	case planner.OpProject:
		return NewProjectionExecutor(n, child), nil
	case planner.OpSort:
		return NewSortExecutor(n, child), nil
	case planner.OpLimit:
		if child.PlanNode().Kind() == planner.OpSort && planner.PayloadOf[*planner.LimitPayload](n).Limit >= 0 {
			// Fuse into a bounded heap; the sort's own input feeds it directly.
			sortChild := child.(*SortExecutor).child
			return NewTopNExecutor(n, child.PlanNode(), sortChild), nil
		}
		return NewLimitExecutor(n, child), nil
	case planner.OpAggregate:
		return NewAggregateExecutor(n, child), nil
	case planner.OpInsert:
		return NewInsertExecutor(n, child), nil
	case planner.OpUpdate:
		return NewUpdateExecutor(n, child), nil
	case planner.OpDelete:
		return NewDeleteExecutor(n, child), nil
	}
	return nil, unsupportedPlan(n, "no executor for this operator")
}

func implementInputs(n *planner.PlanNode) (Executor, Executor, error) {
	left, err := Implement(n.Input(0))
	if err != nil {
		return nil, nil, err
	}
	right, err := Implement(n.Input(1))
	if err != nil {
		_ = left.Close()
		return nil, nil, err
	}
	return left, right, nil
}
