package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// HashJoinExecutor implements the hash join algorithm.
// It builds a hash table from the left child and looks up each row of the right child in
// it, so the output follows the right input's order. It only supports equi-joins of kind inner or
// right; the join condition is re-checked on every key match. NULL keys never match.
type HashJoinExecutor struct {
	plan        *planner.PlanNode
	join        *planner.JoinPayload
	left, right Executor
	leftTypes   []common.Type

	// Runtime State
	keyBuffer      []common.Value
	leftHashTable  *ExecutionHashTable[[]storage.Tuple]
	rightTuple     storage.Tuple
	hasRight       bool
	currentMatches []storage.Tuple // The matching tuples from the left side for the current right tuple
	matchIndex     int             // The index of the next match to emit
	matched        bool
	current        storage.Tuple
	ctx            *ExecutorContext
	err            error
}

// NewHashJoinExecutor creates a new HashJoinExecutor.
func NewHashJoinExecutor(plan *planner.PlanNode, left Executor, right Executor) *HashJoinExecutor {
	return &HashJoinExecutor{
		plan:      plan,
		join:      planner.PayloadOf[*planner.JoinPayload](plan),
		left:      left,
		right:     right,
		leftTypes: plan.Input(0).OutputSchema(),
	}
}

func (e *HashJoinExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *HashJoinExecutor) Init(ctx *ExecutorContext) error {
	e.keyBuffer = make([]common.Value, len(e.join.LeftKeys))
	e.leftHashTable = nil
	e.rightTuple = storage.Tuple{}
	e.hasRight = false
	e.currentMatches = nil
	e.matchIndex = 0
	e.matched = false
	e.ctx = ctx
	e.err = nil
	if err := e.left.Init(ctx); err != nil {
		return err
	}
	return e.right.Init(ctx)
}

// evalKey fills keyBuffer from t. It reports false if any key value is NULL.
func (e *HashJoinExecutor) evalKey(keys []planner.Expr, t storage.Tuple) (bool, error) {
	for i, expr := range keys {
		val, err := expr.Eval(t, e.ctx)
		if err != nil {
			return false, err
		}
		if val.IsNull() {
			return false, nil
		}
		e.keyBuffer[i] = val
	}
	return true, nil
}

// buildPhase consumes the entire left child and builds the hash table.
func (e *HashJoinExecutor) buildPhase() error {
	e.leftHashTable = NewExecutionHashTable[[]storage.Tuple]()
	for e.left.Next() {
		tuple := e.left.Current()
		ok, err := e.evalKey(e.join.LeftKeys, tuple)
		if err != nil {
			return err
		}
		// Skip any NULL keys
		if !ok {
			continue
		}
		// Insert into the table (handling duplicates by appending to the slice)
		existing, _ := e.leftHashTable.Get(e.keyBuffer)
		e.leftHashTable.Insert(e.keyBuffer, append(existing, tuple))
	}
	return e.left.Error()
}

func (e *HashJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if e.leftHashTable == nil {
		if err := e.buildPhase(); err != nil {
			e.err = err
			return false
		}
	}

	for {
		for e.matchIndex < len(e.currentMatches) {
			joined := storage.MergeTuples(e.currentMatches[e.matchIndex], e.rightTuple)
			e.matchIndex++
			v, err := e.join.Condition.Eval(joined, e.ctx)
			if err != nil {
				e.err = err
				return false
			}
			if planner.ExprIsTrue(v) {
				e.matched = true
				e.current = joined
				return true
			}
		}
		if e.join.Kind == planner.JoinRight && !e.matched && e.hasRight {
			e.matched = true
			e.current = storage.MergeTuples(storage.FromValues(nullRow(e.leftTypes)...), e.rightTuple)
			return true
		}

		// No more matches left for the last right tuple, fetch the next one.
		if !e.right.Next() {
			e.err = e.right.Error()
			return false
		}
		e.rightTuple = e.right.Current()
		e.hasRight = true
		e.matched = false
		e.currentMatches = nil
		e.matchIndex = 0
		ok, err := e.evalKey(e.join.RightKeys, e.rightTuple)
		if err != nil {
			e.err = err
			return false
		}
		if ok {
			e.currentMatches, _ = e.leftHashTable.Get(e.keyBuffer)
		}
	}
}

func (e *HashJoinExecutor) Current() storage.Tuple {
	return e.current
}

func (e *HashJoinExecutor) Error() error {
	return e.err
}

func (e *HashJoinExecutor) Close() error {
	err1 := e.right.Close()
	err2 := e.left.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
