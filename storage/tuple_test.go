package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"mit.edu/dsg/sqlroute/common"
)

func TestTupleFromValues(t *testing.T) {
	val1 := common.NewIntValue(1)
	val2 := common.NewStringValue("hello")
	tup := FromValues(val1, val2)

	assert.Equal(t, 2, tup.NumColumns())
	assert.Equal(t, val1, tup.GetValue(0))
	assert.Equal(t, val2, tup.GetValue(1))
	assert.True(t, tup.RID().IsNil(), "Virtual tuple should have nil RID")
}

func TestTupleFromRow(t *testing.T) {
	tup := FromRow(7, []common.Value{common.NewIntValue(42), common.NewStringValue("world")})
	assert.Equal(t, 2, tup.NumColumns())
	assert.Equal(t, int64(42), tup.GetValue(0).IntValue())
	assert.Equal(t, "world", tup.GetValue(1).StringValue())
	assert.Equal(t, common.RowID(7), tup.RID())
}

func TestTupleExtend(t *testing.T) {
	base := FromRow(3, []common.Value{common.NewIntValue(100)})
	extended := base.Extend([]common.Value{common.NewStringValue("extended")})

	assert.Equal(t, 1, base.NumColumns(), "Extend must not modify the receiver")
	assert.Equal(t, 2, extended.NumColumns())
	assert.Equal(t, int64(100), extended.GetValue(0).IntValue())
	assert.Equal(t, "extended", extended.GetValue(1).StringValue())
	assert.Equal(t, common.RowID(3), extended.RID())
}

func TestMergeTuples(t *testing.T) {
	left := FromRow(1, []common.Value{common.NewIntValue(1)})
	right := FromValues(common.NewStringValue("r"), common.NewNullInt())
	merged := MergeTuples(left, right)

	assert.Equal(t, 3, merged.NumColumns())
	assert.Equal(t, int64(1), merged.GetValue(0).IntValue())
	assert.Equal(t, "r", merged.GetValue(1).StringValue())
	assert.True(t, merged.GetValue(2).IsNull())
	assert.True(t, merged.RID().IsNil(), "merged tuples are virtual")
}

func TestTupleDeepCopy(t *testing.T) {
	values := []common.Value{common.NewIntValue(1), common.NewIntValue(2)}
	tup := FromRow(5, values)
	cp := tup.DeepCopy()
	values[0] = common.NewIntValue(99)

	assert.Equal(t, int64(1), cp.GetValue(0).IntValue())
	assert.Equal(t, common.RowID(5), cp.RID())
	assert.Equal(t, "(1, 2)", cp.String())
}
