package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// BatchNestedLoopJoinExecutor implements the batch nested loop join algorithm.
// It loads a batch of tuples from the left child, binds correlation variable i to the
// i-th row of the batch, and evaluates a fresh inner executor derived from the right
// node once for the whole batch. The inner rows are then matched against each left row
// in turn, so the output keeps the left order.
type BatchNestedLoopJoinExecutor struct {
	plan       *planner.PlanNode
	join       *planner.JoinPayload
	left       Executor
	rightTypes []common.Type

	// Runtime State
	batchSize  int
	batch      []storage.Tuple
	innerRows  []storage.Tuple
	inner      Executor
	matches    [][]storage.Tuple
	leftIndex  int
	matchIndex int
	leftDone   bool
	current    storage.Tuple
	ctx        *ExecutorContext
	err        error
}

// NewBatchNestedLoopJoinExecutor creates a new BatchNestedLoopJoinExecutor. The right
// input is not implemented here; it is re-derived for every batch.
func NewBatchNestedLoopJoinExecutor(plan *planner.PlanNode, left Executor) *BatchNestedLoopJoinExecutor {
	return &BatchNestedLoopJoinExecutor{
		plan:       plan,
		join:       planner.PayloadOf[*planner.JoinPayload](plan),
		left:       left,
		rightTypes: plan.Input(1).OutputSchema(),
	}
}

func (e *BatchNestedLoopJoinExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *BatchNestedLoopJoinExecutor) Init(ctx *ExecutorContext) error {
	e.closeInner()
	e.batchSize = len(e.join.Variables)
	if e.batchSize == 0 {
		e.batchSize = ctx.BatchSize()
	}
	e.batch = make([]storage.Tuple, 0, e.batchSize)
	e.matches = nil
	e.leftIndex = 0
	e.matchIndex = 0
	e.leftDone = false
	e.ctx = ctx
	e.err = nil
	return e.left.Init(ctx)
}

// closeInner releases the in-flight inner executor and unbinds the batch.
func (e *BatchNestedLoopJoinExecutor) closeInner() error {
	if e.inner == nil {
		return nil
	}
	err := e.inner.Close()
	e.inner = nil
	unbindVariables(e.ctx, e.join.Variables)
	return err
}

// drainInner binds the batch, then reads the whole inner input once.
func (e *BatchNestedLoopJoinExecutor) drainInner() error {
	for i, v := range e.join.Variables {
		// Variables past the end of a partial batch stay unbound and read as NULL.
		if i < len(e.batch) {
			e.ctx.Bind(v, e.batch[i])
		}
	}
	inner, err := Implement(e.plan.Input(1))
	if err != nil {
		unbindVariables(e.ctx, e.join.Variables)
		return err
	}
	e.inner = inner
	if err := inner.Init(e.ctx); err != nil {
		return err
	}
	e.innerRows = e.innerRows[:0]
	for inner.Next() {
		e.innerRows = append(e.innerRows, inner.Current())
	}
	if err := inner.Error(); err != nil {
		return err
	}
	return e.closeInner()
}

// matchBatch computes the inner rows joining each left row of the batch.
func (e *BatchNestedLoopJoinExecutor) matchBatch() error {
	e.matches = make([][]storage.Tuple, len(e.batch))
	for i, outer := range e.batch {
		for _, r := range e.innerRows {
			joined := storage.MergeTuples(outer, r)
			v, err := e.join.Condition.Eval(joined, e.ctx)
			if err != nil {
				return err
			}
			if planner.ExprIsTrue(v) {
				e.matches[i] = append(e.matches[i], joined)
			}
		}
	}
	return nil
}

// newBatch fetches the next batch of tuples on the left and joins it.
func (e *BatchNestedLoopJoinExecutor) newBatch() (bool, error) {
	e.batch = e.batch[:0]
	for len(e.batch) < e.batchSize && !e.leftDone {
		if !e.left.Next() {
			if err := e.left.Error(); err != nil {
				return false, err
			}
			e.leftDone = true
			break
		}
		e.batch = append(e.batch, e.left.Current())
	}
	if len(e.batch) == 0 {
		return false, nil
	}
	if err := e.drainInner(); err != nil {
		_ = e.closeInner()
		return false, err
	}
	if err := e.matchBatch(); err != nil {
		return false, err
	}
	e.leftIndex = 0
	e.matchIndex = 0
	return true, nil
}

func (e *BatchNestedLoopJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}

	for {
		for e.leftIndex < len(e.matches) {
			outer := e.batch[e.leftIndex]
			rows := e.matches[e.leftIndex]
			switch e.join.Kind {
			case planner.JoinInner, planner.JoinLeft:
				if e.matchIndex < len(rows) {
					e.current = rows[e.matchIndex]
					e.matchIndex++
					return true
				}
				if e.join.Kind == planner.JoinLeft && len(rows) == 0 && e.matchIndex == 0 {
					// Emit the NULL-padded row once.
					e.matchIndex++
					e.current = storage.MergeTuples(outer, storage.FromValues(nullRow(e.rightTypes)...))
					return true
				}
			case planner.JoinSemi, planner.JoinAnti:
				emit := (len(rows) > 0) == (e.join.Kind == planner.JoinSemi)
				e.leftIndex++
				e.matchIndex = 0
				if emit {
					e.current = outer
					return true
				}
				continue
			}
			e.leftIndex++
			e.matchIndex = 0
		}

		if e.leftDone {
			return false
		}
		ok, err := e.newBatch()
		if err != nil {
			e.err = err
			return false
		}
		if !ok {
			return false
		}
	}
}

func (e *BatchNestedLoopJoinExecutor) Current() storage.Tuple {
	return e.current
}

func (e *BatchNestedLoopJoinExecutor) Error() error {
	return e.err
}

func (e *BatchNestedLoopJoinExecutor) Close() error {
	err1 := e.closeInner()
	err2 := e.left.Close()
	e.batch, e.innerRows, e.matches = nil, nil, nil
	if err1 != nil {
		return err1
	}
	return err2
}
