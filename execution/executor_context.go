package execution

import (
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
	"mit.edu/dsg/sqlroute/transaction"
)

// DefaultBatchSize is the number of outer rows a batch nested-loop join draws per inner
// evaluation when its node declares no correlation variables.
const DefaultBatchSize = 100

// ExecutorContext holds all the state and resources required for query execution.
// It is passed to every Executor during Init.
//
// The context also carries the correlation bindings of the running query and serves as
// the planner.Env expressions are evaluated in. A context belongs to one query at a time
// and is not safe for concurrent use.
type ExecutorContext struct {
	store     *storage.Store
	txn       *transaction.TransactionContext
	batchSize int

	bindings     map[planner.CorrelationID]storage.Tuple
	lastInsertID int64
}

// NewExecutorContext creates a context over store. txn may be nil, in which case writes
// are not registered for undo. A non-positive batchSize selects DefaultBatchSize.
func NewExecutorContext(store *storage.Store, txn *transaction.TransactionContext, batchSize int) *ExecutorContext {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ExecutorContext{
		store:     store,
		txn:       txn,
		batchSize: batchSize,
		bindings:  make(map[planner.CorrelationID]storage.Tuple),
	}
}

func (ctx *ExecutorContext) GetTransaction() *transaction.TransactionContext {
	return ctx.txn
}

func (ctx *ExecutorContext) Store() *storage.Store {
	return ctx.store
}

func (ctx *ExecutorContext) BatchSize() int {
	return ctx.batchSize
}

// Bind makes the correlation variable id refer to t until it is unbound.
func (ctx *ExecutorContext) Bind(id planner.CorrelationID, t storage.Tuple) {
	ctx.bindings[id] = t
}

func (ctx *ExecutorContext) Unbind(id planner.CorrelationID) {
	delete(ctx.bindings, id)
}

// Correlated implements planner.Env.
func (ctx *ExecutorContext) Correlated(id planner.CorrelationID) (storage.Tuple, bool) {
	t, ok := ctx.bindings[id]
	return t, ok
}

// LastInsertID returns the first auto-increment value generated by the most recent
// insert run in this context, or 0 if none was generated.
func (ctx *ExecutorContext) LastInsertID() int64 {
	return ctx.lastInsertID
}
