package storage

import (
	"sync"

	"github.com/tidwall/btree"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/transaction"
)

type tableItem struct {
	key    []common.Value
	rid    common.RowID
	values []common.Value
}

// MemTable holds the rows of one table in memory.
// It is a wrapper around github.com/tidwall/btree: rows are ordered by primary key, then
// by RowID. A table without a primary key is therefore ordered by insertion.
type MemTable struct {
	oid     common.ObjectID
	keyCols []int

	mu      sync.RWMutex
	tree    *btree.BTreeG[tableItem]
	byRID   map[common.RowID][]common.Value
	nextRID common.RowID
	autoInc int64
}

// NewMemTable creates an empty table whose rows are keyed on keyCols.
func NewMemTable(oid common.ObjectID, keyCols []int) *MemTable {
	// Primary order by key, secondary order by RowID (the key is empty without a
	// primary key).
	less := func(a, b tableItem) bool {
		if cmp := common.CompareValues(a.key, b.key); cmp != 0 {
			return cmp < 0
		}
		return a.rid < b.rid
	}
	return &MemTable{
		oid:     oid,
		keyCols: keyCols,
		tree:    btree.NewBTreeG(less),
		byRID:   make(map[common.RowID][]common.Value),
	}
}

func (m *MemTable) Oid() common.ObjectID {
	return m.oid
}

// KeyColumns returns the primary key columns the table is ordered on.
func (m *MemTable) KeyColumns() []int {
	return m.keyCols
}

func (m *MemTable) keyOf(values []common.Value) []common.Value {
	if len(m.keyCols) == 0 {
		return nil
	}
	key := make([]common.Value, len(m.keyCols))
	for i, col := range m.keyCols {
		key[i] = values[col]
	}
	return key
}

// findKeyLocked returns the row stored under key, if any. m.mu must be held.
func (m *MemTable) findKeyLocked(key []common.Value) (common.RowID, bool) {
	if key == nil {
		return common.InvalidRowID, false
	}
	var found common.RowID
	m.tree.Ascend(tableItem{key: key}, func(item tableItem) bool {
		if common.CompareValues(item.key, key) == 0 {
			found = item.rid
		}
		return false
	})
	return found, !found.IsNil()
}

func (m *MemTable) checkKey(key []common.Value) error {
	for i, v := range key {
		if v.IsNull() {
			return common.NewError(common.EvaluationError, "primary key column %d of table %d cannot be NULL", m.keyCols[i], m.oid)
		}
	}
	return nil
}

// Insert adds a new row and returns its RowID. A row with an equal primary key yields a
// DuplicateObjectError. If txn is non-nil the insert is registered for undo.
func (m *MemTable) Insert(values []common.Value, txn *transaction.TransactionContext) (common.RowID, error) {
	key := m.keyOf(values)
	if err := m.checkKey(key); err != nil {
		return common.InvalidRowID, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.findKeyLocked(key); ok {
		return common.InvalidRowID, common.NewError(common.DuplicateObjectError,
			"duplicate entry %s for primary key (row %d)", FromValues(key...).String(), existing)
	}
	m.nextRID++
	rid := m.nextRID
	m.setLocked(rid, values)

	if txn != nil {
		txn.AddCleanup(transaction.UndoTask{Target: m, Type: transaction.UndoInsert, RID: rid})
	}
	return rid, nil
}

func (m *MemTable) setLocked(rid common.RowID, values []common.Value) {
	stored := make([]common.Value, len(values))
	copy(stored, values)
	m.tree.Set(tableItem{key: m.keyOf(stored), rid: rid, values: stored})
	m.byRID[rid] = stored
}

func (m *MemTable) deleteLocked(rid common.RowID) ([]common.Value, bool) {
	values, ok := m.byRID[rid]
	if !ok {
		return nil, false
	}
	m.tree.Delete(tableItem{key: m.keyOf(values), rid: rid})
	delete(m.byRID, rid)
	return values, true
}

// Delete removes a row. It returns false if the row does not exist.
func (m *MemTable) Delete(rid common.RowID, txn *transaction.TransactionContext) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.deleteLocked(rid)
	if ok && txn != nil {
		txn.AddCleanup(transaction.UndoTask{Target: m, Type: transaction.UndoDelete, RID: rid, Values: old})
	}
	return ok
}

// Update replaces the values of a row in place, keeping its RowID. Changing the primary
// key to one already present yields a DuplicateObjectError and leaves the row untouched.
func (m *MemTable) Update(rid common.RowID, values []common.Value, txn *transaction.TransactionContext) error {
	key := m.keyOf(values)
	if err := m.checkKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byRID[rid]
	if !ok {
		return common.NewError(common.NoSuchObjectError, "row %d does not exist in table %d", rid, m.oid)
	}
	if existing, found := m.findKeyLocked(key); found && existing != rid {
		return common.NewError(common.DuplicateObjectError,
			"duplicate entry %s for primary key (row %d)", FromValues(key...).String(), existing)
	}
	m.deleteLocked(rid)
	m.setLocked(rid, values)
	if txn != nil {
		txn.AddCleanup(transaction.UndoTask{Target: m, Type: transaction.UndoUpdate, RID: rid, Values: old})
	}
	return nil
}

// Get returns a copy of the stored row.
func (m *MemTable) Get(rid common.RowID) (Tuple, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values, ok := m.byRID[rid]
	if !ok {
		return Tuple{}, false
	}
	return FromRow(rid, values).DeepCopy(), true
}

// FindKey returns the RowID of the row whose primary key columns match those of values.
func (m *MemTable) FindKey(values []common.Value) (common.RowID, bool) {
	key := m.keyOf(values)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findKeyLocked(key)
}

// NextAutoIncrement allocates the next auto-increment value.
func (m *MemTable) NextAutoIncrement() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoInc++
	return m.autoInc
}

// PeekAutoIncrement returns the value the next allocation would return.
func (m *MemTable) PeekAutoIncrement() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.autoInc + 1
}

// ObserveAutoIncrement makes sure later allocations are greater than an explicitly
// inserted value.
func (m *MemTable) ObserveAutoIncrement(v int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v > m.autoInc {
		m.autoInc = v
	}
}

// Truncate removes every row and resets the auto-increment counter. It is not
// transactional.
func (m *MemTable) Truncate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Clear()
	clear(m.byRID)
	m.autoInc = 0
}

// Len returns the number of rows.
func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// Invoke handles rollback callbacks.
func (m *MemTable) Invoke(opType transaction.UndoType, rid common.RowID, values []common.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch opType {
	case transaction.UndoInsert:
		m.deleteLocked(rid)
	case transaction.UndoDelete:
		m.setLocked(rid, values)
	case transaction.UndoUpdate:
		m.deleteLocked(rid)
		m.setLocked(rid, values)
	default:
		common.Assert(false, "unknown undo type: %d", opType)
	}
}

// Scan returns an iterator over a consistent snapshot of the table, in key order.
func (m *MemTable) Scan() *MemTableIterator {
	m.mu.RLock()
	// Use Copy-On-Write for a consistent snapshot iterator
	snapshot := m.tree.Copy()
	m.mu.RUnlock()

	iter := snapshot.Iter()
	return &MemTableIterator{
		iter:      iter,
		hasMore:   iter.First(),
		firstCall: true,
	}
}

// MemTableIterator walks a snapshot of a MemTable.
type MemTableIterator struct {
	iter      btree.IterG[tableItem]
	firstCall bool
	hasMore   bool
	closed    bool
}

func (it *MemTableIterator) Next() bool {
	if it.closed {
		return false
	}
	if it.firstCall {
		it.firstCall = false
		return it.hasMore
	}
	if !it.hasMore {
		return false
	}
	it.hasMore = it.iter.Next()
	return it.hasMore
}

// Current returns the row under the iterator. The returned tuple shares storage with
// the snapshot and must not be modified.
func (it *MemTableIterator) Current() Tuple {
	item := it.iter.Item()
	return FromRow(item.rid, item.values)
}

func (it *MemTableIterator) Close() error {
	if !it.closed {
		it.closed = true
		it.iter.Release()
	}
	return nil
}
