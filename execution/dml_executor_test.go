package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
	"mit.edu/dsg/sqlroute/transaction"
)

// setupAutoIncTable creates v(id int auto_increment primary key, name string not null).
func setupAutoIncTable(t *testing.T) (*storage.Store, *catalog.Table) {
	store := storage.NewStore()
	table := newTestTable(t, store, 9, "v",
		catalog.Column{Name: "id", Type: common.IntType, NotNull: true, AutoIncrement: true},
		catalog.Column{Name: "name", Type: common.StringType, NotNull: true})
	return store, table
}

func valuesOf(t *testing.T, table *catalog.Table, rows ...[]common.Value) *planner.PlanNode {
	t.Helper()
	cols := make([]planner.Column, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = planner.Column{Name: c.Name, Type: c.Type}
	}
	exprs := make([][]planner.Expr, len(rows))
	for i, row := range rows {
		for _, v := range row {
			exprs[i] = append(exprs[i], planner.NewConstantValueExpression(v))
		}
	}
	return mustNode(t)(planner.NewValues(cols, exprs))
}

func affected(t *testing.T, rs *ResultSet) int64 {
	t.Helper()
	require.Len(t, rs.Rows, 1)
	return rs.Rows[0].GetValue(0).IntValue()
}

func TestInsertAutoIncrement(t *testing.T) {
	store, table := setupAutoIncTable(t)
	m := mustNode(t)
	ctx := NewExecutorContext(store, nil, 0)

	ins := m(planner.NewInsert(valuesOf(t, table,
		[]common.Value{nullInt, sv("x")},
		[]common.Value{nullInt, sv("y")}), table, false))
	rs, err := Run(ins, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected(t, rs))
	assert.Equal(t, []string{"rows"}, rs.ColumnNames())
	assert.Equal(t, int64(1), ctx.LastInsertID())

	// An explicit value moves the counter forward; string literals are converted.
	_, err = Run(m(planner.NewInsert(valuesOf(t, table, []common.Value{sv("10"), sv("z")}), table, false)), ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ctx.LastInsertID())
	_, err = Run(m(planner.NewInsert(valuesOf(t, table, []common.Value{nullInt, sv("w")}), table, false)), ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), ctx.LastInsertID())

	assert.Equal(t, [][]string{{"1", "x"}, {"2", "y"}, {"10", "z"}, {"11", "w"}}, runPlan(t, scanOf(t, table), ctx))
}

func TestInsertErrors(t *testing.T) {
	store, table := setupAutoIncTable(t)
	m := mustNode(t)
	ctx := NewExecutorContext(store, nil, 0)
	_, err := Run(m(planner.NewInsert(valuesOf(t, table, []common.Value{iv(1), sv("x")}), table, false)), ctx)
	require.NoError(t, err)

	tests := []struct {
		name string
		row  []common.Value
		code common.ErrorCode
	}{
		{"duplicate key", []common.Value{iv(1), sv("again")}, common.DuplicateObjectError},
		{"not null", []common.Value{iv(2), common.NewNullString()}, common.EvaluationError},
		{"bad integer", []common.Value{sv("two"), sv("x")}, common.EvaluationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(m(planner.NewInsert(valuesOf(t, table, tt.row), table, false)), ctx)
			require.Error(t, err)
			assert.True(t, common.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestReplace(t *testing.T) {
	store, table := setupAutoIncTable(t)
	m := mustNode(t)
	ctx := NewExecutorContext(store, nil, 0)
	_, err := Run(m(planner.NewInsert(valuesOf(t, table, []common.Value{iv(1), sv("x")}), table, false)), ctx)
	require.NoError(t, err)

	rs, err := Run(m(planner.NewInsert(valuesOf(t, table,
		[]common.Value{iv(1), sv("replaced")},
		[]common.Value{iv(2), sv("new")}), table, true)), ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected(t, rs))
	assert.Equal(t, [][]string{{"1", "replaced"}, {"2", "new"}}, runPlan(t, scanOf(t, table), ctx))
}

func TestUpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)
	ctx := db.ctx()

	where := m(planner.NewFilter(scanOf(t, db.t), eq(col(1, "b"), constInt(10))))
	upd := m(planner.NewUpdate(where, db.t, []planner.Assignment{
		{Column: 1, Expr: planner.NewArithmeticExpression(col(1, "b"), constInt(1), planner.Add)},
	}))
	rs, err := Run(upd, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected(t, rs))

	// Assigning a column its own value changes nothing.
	noop := m(planner.NewUpdate(scanOf(t, db.t), db.t, []planner.Assignment{{Column: 2, Expr: strCol(2, "s")}}))
	rs, err = Run(noop, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected(t, rs))

	del := m(planner.NewDelete(m(planner.NewFilter(scanOf(t, db.t), planner.NewNullCheckExpression(col(1, "b"), planner.IsNull))), db.t))
	rs, err = Run(del, ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected(t, rs))

	assert.Equal(t, [][]string{
		{"1", "11", "a"},
		{"3", "30", "c"},
		{"4", "11", "d"},
	}, runPlan(t, scanOf(t, db.t), ctx))

	// Moving a row onto an existing primary key fails.
	clash := m(planner.NewUpdate(m(planner.NewFilter(scanOf(t, db.t), eq(col(0, "a"), constInt(1)))), db.t,
		[]planner.Assignment{{Column: 0, Expr: constInt(3)}}))
	_, err = Run(clash, ctx)
	assert.True(t, common.HasCode(err, common.DuplicateObjectError))
}

func TestWritesRollBack(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)
	tm := transaction.NewTransactionManager()
	txn := tm.Begin(true)
	ctx := NewExecutorContext(db.store, txn, 0)

	_, err := Run(m(planner.NewDelete(scanOf(t, db.t), db.t)), ctx)
	require.NoError(t, err)
	_, err = Run(m(planner.NewInsert(valuesOf(t, db.t, []common.Value{iv(9), iv(90), sv("z")}), db.t, false)), ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"9", "90", "z"}}, runPlan(t, scanOf(t, db.t), ctx))

	require.NoError(t, tm.Abort(txn))
	assert.Equal(t, [][]string{
		{"1", "10", "a"},
		{"2", "NULL", "b"},
		{"3", "30", "c"},
		{"4", "10", "d"},
	}, runPlan(t, scanOf(t, db.t), db.ctx()))
}
