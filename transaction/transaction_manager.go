package transaction

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/sqlroute/common"
)

// activeTxnEntry tracks a running transaction and when it started.
type activeTxnEntry struct {
	txn     *TransactionContext
	startAt time.Time
}

// TransactionManager manages the lifecycle of transactions across all sessions.
// Writes go straight to the in-memory tables; the manager only keeps enough state to
// undo them.
type TransactionManager struct {
	// activeTxns maps TransactionIDs to their runtime context and metadata
	activeTxns *xsync.MapOf[common.TransactionID, activeTxnEntry]

	nextTxnID atomic.Uint64
	// Pool to recycle transaction contexts
	txnPool sync.Pool
}

// NewTransactionManager initializes the transaction manager.
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{
		activeTxns: xsync.NewMapOf[common.TransactionID, activeTxnEntry](),
		txnPool: sync.Pool{
			New: func() any {
				return &TransactionContext{
					id:           common.InvalidTransactionID,
					cleanupStack: make([]UndoTask, 0, 16),
				}
			},
		},
	}
}

// Begin starts a new transaction and returns the initialized context.
func (tm *TransactionManager) Begin(explicit bool) *TransactionContext {
	tid := common.TransactionID(tm.nextTxnID.Add(1))

	txn := tm.txnPool.Get().(*TransactionContext)
	txn.Reset(tid, explicit)

	tm.activeTxns.Store(tid, activeTxnEntry{
		txn:     txn,
		startAt: time.Now(),
	})
	return txn
}

// Commit completes a transaction and makes its effects permanent. The context must not
// be used afterwards.
func (tm *TransactionManager) Commit(txn *TransactionContext) error {
	if _, ok := tm.activeTxns.LoadAndDelete(txn.id); !ok {
		return common.NewError(common.TransactionError, "transaction %d is not active", txn.id)
	}
	txn.Reset(common.InvalidTransactionID, false)
	tm.txnPool.Put(txn)
	return nil
}

// Abort stops a transaction and rolls back all of its changes, newest first.
func (tm *TransactionManager) Abort(txn *TransactionContext) error {
	if _, ok := tm.activeTxns.LoadAndDelete(txn.id); !ok {
		return common.NewError(common.TransactionError, "transaction %d is not active", txn.id)
	}
	txn.RollbackTo(0)
	txn.Reset(common.InvalidTransactionID, false)
	tm.txnPool.Put(txn)
	return nil
}

// ActiveEntry represents a snapshot of an active transaction.
type ActiveEntry struct {
	ID      common.TransactionID
	StartAt time.Time
}

// ActiveTransactions returns a snapshot of the transactions that have begun and not yet
// finished, in no particular order.
func (tm *TransactionManager) ActiveTransactions() []ActiveEntry {
	var active []ActiveEntry
	tm.activeTxns.Range(func(tid common.TransactionID, val activeTxnEntry) bool {
		active = append(active, ActiveEntry{
			ID:      tid,
			StartAt: val.startAt,
		})
		return true
	})
	return active
}
