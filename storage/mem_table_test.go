package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/transaction"
)

func row(id int64, name string) []common.Value {
	return []common.Value{common.NewIntValue(id), common.NewStringValue(name)}
}

func scanAll(t *testing.T, table *MemTable) []Tuple {
	it := table.Scan()
	defer it.Close()
	var out []Tuple
	for it.Next() {
		out = append(out, it.Current())
	}
	return out
}

func firstColumn(tuples []Tuple) []int64 {
	out := make([]int64, len(tuples))
	for i, tup := range tuples {
		out[i] = tup.GetValue(0).IntValue()
	}
	return out
}

func TestMemTableOrdersByPrimaryKey(t *testing.T) {
	table := NewMemTable(1, []int{0})
	for _, id := range []int64{5, 1, 3} {
		_, err := table.Insert(row(id, "x"), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 3, 5}, firstColumn(scanAll(t, table)))
	assert.Equal(t, 3, table.Len())
}

func TestMemTableWithoutKeyKeepsInsertionOrder(t *testing.T) {
	table := NewMemTable(1, nil)
	for _, id := range []int64{5, 1, 3, 1} {
		_, err := table.Insert(row(id, "x"), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{5, 1, 3, 1}, firstColumn(scanAll(t, table)))
}

func TestMemTableDuplicateKey(t *testing.T) {
	table := NewMemTable(1, []int{0})
	_, err := table.Insert(row(1, "a"), nil)
	require.NoError(t, err)
	_, err = table.Insert(row(1, "b"), nil)
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.DuplicateObjectError))

	_, err = table.Insert([]common.Value{common.NewNullInt(), common.NewStringValue("c")}, nil)
	assert.Error(t, err, "NULL primary keys are rejected")
}

func TestMemTableUpdateAndDelete(t *testing.T) {
	table := NewMemTable(1, []int{0})
	rid1, _ := table.Insert(row(1, "a"), nil)
	rid2, _ := table.Insert(row(2, "b"), nil)

	require.NoError(t, table.Update(rid1, row(10, "a2"), nil))
	got, ok := table.Get(rid1)
	require.True(t, ok)
	assert.Equal(t, "a2", got.GetValue(1).StringValue())
	assert.Equal(t, []int64{2, 10}, firstColumn(scanAll(t, table)))

	err := table.Update(rid1, row(2, "clash"), nil)
	assert.True(t, common.HasCode(err, common.DuplicateObjectError))

	assert.True(t, table.Delete(rid2, nil))
	assert.False(t, table.Delete(rid2, nil))
	assert.Equal(t, []int64{10}, firstColumn(scanAll(t, table)))
}

func TestMemTableSnapshotIsolation(t *testing.T) {
	table := NewMemTable(1, []int{0})
	_, _ = table.Insert(row(1, "a"), nil)

	it := table.Scan()
	defer it.Close()
	_, _ = table.Insert(row(2, "b"), nil)

	var seen []int64
	for it.Next() {
		seen = append(seen, it.Current().GetValue(0).IntValue())
	}
	assert.Equal(t, []int64{1}, seen, "iterator must not observe later inserts")
}

func TestMemTableUndo(t *testing.T) {
	table := NewMemTable(1, []int{0})
	kept, _ := table.Insert(row(1, "a"), nil)
	gone, _ := table.Insert(row(2, "b"), nil)

	tm := transaction.NewTransactionManager()
	txn := tm.Begin(true)
	_, err := table.Insert(row(3, "c"), txn)
	require.NoError(t, err)
	require.NoError(t, table.Update(kept, row(1, "changed"), txn))
	require.True(t, table.Delete(gone, txn))
	assert.Equal(t, 3, txn.NumChanges())

	require.NoError(t, tm.Abort(txn))

	tuples := scanAll(t, table)
	assert.Equal(t, []int64{1, 2}, firstColumn(tuples))
	assert.Equal(t, "a", tuples[0].GetValue(1).StringValue())
	assert.Equal(t, gone, tuples[1].RID(), "undo restores the original RowID")
}

func TestStore(t *testing.T) {
	store := NewStore()
	table, err := store.CreateTable(7, nil)
	require.NoError(t, err)
	_, err = store.CreateTable(7, nil)
	assert.True(t, common.HasCode(err, common.DuplicateObjectError))

	got, err := store.GetTable(7)
	require.NoError(t, err)
	assert.Same(t, table, got)

	store.DropTable(7)
	_, err = store.GetTable(7)
	assert.True(t, common.HasCode(err, common.NoSuchObjectError))
}

func TestMemTableAutoIncrement(t *testing.T) {
	table := NewMemTable(1, []int{0})
	assert.Equal(t, int64(1), table.NextAutoIncrement())
	table.ObserveAutoIncrement(10)
	assert.Equal(t, int64(11), table.NextAutoIncrement())
	table.ObserveAutoIncrement(3)
	assert.Equal(t, int64(12), table.NextAutoIncrement())
	assert.Equal(t, int64(13), table.PeekAutoIncrement())
	assert.Equal(t, int64(13), table.PeekAutoIncrement())
	table.Truncate()
	assert.Equal(t, int64(1), table.PeekAutoIncrement())
	assert.Equal(t, int64(1), table.NextAutoIncrement())
}
