package execution

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// AggregateExecutor implements hash-based aggregation.
// Groups are emitted in the order their first row was seen. Without GROUP BY exactly one
// row is produced, even for an empty input.
type AggregateExecutor struct {
	plan    *planner.PlanNode
	payload *planner.AggregatePayload
	child   Executor

	// Runtime state
	tuples       []storage.Tuple
	computed     bool
	currentIndex int
	ctx          *ExecutorContext
	err          error
}

func NewAggregateExecutor(plan *planner.PlanNode, child Executor) *AggregateExecutor {
	return &AggregateExecutor{
		plan:         plan,
		payload:      planner.PayloadOf[*planner.AggregatePayload](plan),
		child:        child,
		currentIndex: -1,
	}
}

func (e *AggregateExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *AggregateExecutor) Init(ctx *ExecutorContext) error {
	e.tuples = nil
	e.computed = false
	e.currentIndex = -1
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

// initialState returns the state of a group that has seen no rows. COUNT starts at 0;
// every other aggregate stays nil until it sees a non-NULL value.
func (e *AggregateExecutor) initialState() []common.Value {
	state := make([]common.Value, len(e.payload.Aggregates))
	for i, agg := range e.payload.Aggregates {
		if agg.Type == planner.AggCount {
			state[i] = common.NewIntValue(0)
		}
	}
	return state
}

func (e *AggregateExecutor) updateAggregateState(state []common.Value, tuple storage.Tuple) error {
	for i, agg := range e.payload.Aggregates {
		if agg.Expr == nil {
			// COUNT(*)
			state[i] = common.NewIntValue(state[i].IntValue() + 1)
			continue
		}
		val, err := agg.Expr.Eval(tuple, e.ctx)
		if err != nil {
			return err
		}

		// Standard SQL aggregate rules: ignore NULLs
		if val.IsNull() {
			continue
		}

		switch agg.Type {
		case planner.AggCount:
			state[i] = common.NewIntValue(state[i].IntValue() + 1)
		case planner.AggSum:
			if state[i].IsNil() {
				state[i] = val
			} else {
				state[i] = common.NewIntValue(state[i].IntValue() + val.IntValue())
			}
		case planner.AggMin:
			if state[i].IsNil() || val.Compare(state[i]) < 0 {
				state[i] = val
			}
		case planner.AggMax:
			if state[i].IsNil() || val.Compare(state[i]) > 0 {
				state[i] = val
			}
		}
	}
	return nil
}

func (e *AggregateExecutor) buildHashTable() error {
	hashTable := NewExecutionHashTable[[]common.Value]()

	keyBuffer := make([]common.Value, len(e.payload.GroupBy))
	for e.child.Next() {
		tuple := e.child.Current()
		for i, expr := range e.payload.GroupBy {
			v, err := expr.Eval(tuple, e.ctx)
			if err != nil {
				return err
			}
			keyBuffer[i] = v
		}
		// NULL group keys form one group, as in SQL.
		state, found := hashTable.Get(keyBuffer)
		if !found {
			state = e.initialState()
			hashTable.Insert(keyBuffer, state)
		}
		if err := e.updateAggregateState(state, tuple); err != nil {
			return err
		}
	}
	if err := e.child.Error(); err != nil {
		return err
	}

	// If group by is empty, perform a global aggregation and return exactly one row.
	if len(e.payload.GroupBy) == 0 && hashTable.Len() == 0 {
		hashTable.Insert(nil, e.initialState())
	}

	hashTable.Iterate(func(key []common.Value, values []common.Value) {
		out := make([]common.Value, 0, len(key)+len(values))
		out = append(out, key...)
		for i, v := range values {
			if v.IsNil() {
				// Convert sentinel IsNil to actual SQL NULL of the correct type
				v = common.NewNull(e.payload.Aggregates[i].OutputType())
			}
			out = append(out, v)
		}
		e.tuples = append(e.tuples, storage.FromValues(out...))
	})
	return nil
}

func (e *AggregateExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.computed {
		e.computed = true
		if e.err = e.buildHashTable(); e.err != nil {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.tuples)
}

func (e *AggregateExecutor) Current() storage.Tuple {
	return e.tuples[e.currentIndex]
}

func (e *AggregateExecutor) Error() error {
	return e.err
}

func (e *AggregateExecutor) Close() error {
	return e.child.Close()
}
