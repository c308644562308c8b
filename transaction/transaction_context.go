package transaction

import (
	"mit.edu/dsg/sqlroute/common"
)

// Savepoint marks a position in a transaction's undo stack.
type Savepoint int

// TransactionContext holds the runtime state of a single transaction: the stack of undo
// actions for every row change it made.
type TransactionContext struct {
	id           common.TransactionID
	explicit     bool
	cleanupStack []UndoTask
}

// ID returns the transaction id.
func (txn *TransactionContext) ID() common.TransactionID {
	return txn.id
}

// Explicit reports whether the transaction was opened by BEGIN/START TRANSACTION rather
// than implicitly for a single statement or by autocommit=0.
func (txn *TransactionContext) Explicit() bool {
	return txn.explicit
}

// AddCleanup registers an undo action to be executed if the change must be rolled back.
func (txn *TransactionContext) AddCleanup(task UndoTask) {
	txn.cleanupStack = append(txn.cleanupStack, task)
}

// NumChanges returns the number of undo actions recorded so far.
func (txn *TransactionContext) NumChanges() int {
	return len(txn.cleanupStack)
}

// Savepoint returns the current position of the undo stack.
func (txn *TransactionContext) Savepoint() Savepoint {
	return Savepoint(len(txn.cleanupStack))
}

// RollbackTo undoes every change recorded after sp, newest first.
func (txn *TransactionContext) RollbackTo(sp Savepoint) {
	common.Assert(int(sp) <= len(txn.cleanupStack), "savepoint %d past end of undo stack (%d)", sp, len(txn.cleanupStack))
	for i := len(txn.cleanupStack) - 1; i >= int(sp); i-- {
		task := txn.cleanupStack[i]
		task.Target.Invoke(task.Type, task.RID, task.Values)
	}
	clear(txn.cleanupStack[sp:])
	txn.cleanupStack = txn.cleanupStack[:sp]
}

// Reset clears the transaction context for reuse.
// This is critical when using sync.Pool to avoid leaking data between sessions.
func (txn *TransactionContext) Reset(id common.TransactionID, explicit bool) {
	txn.id = id
	txn.explicit = explicit
	clear(txn.cleanupStack)
	txn.cleanupStack = txn.cleanupStack[:0]
}
