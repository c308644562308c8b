package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

var nullInt = common.NewNullInt()

func iv(v int64) common.Value { return common.NewIntValue(v) }

func sv(v string) common.Value { return common.NewStringValue(v) }

type testDB struct {
	store *storage.Store
	t, u  *catalog.Table
}

// newTestTable registers a table with storage. The first column is the primary key.
func newTestTable(t *testing.T, store *storage.Store, oid common.ObjectID, name string, cols ...catalog.Column) *catalog.Table {
	t.Helper()
	table := &catalog.Table{Oid: oid, Schema: "db", Name: name, Columns: cols, PrimaryKey: []int{0}}
	_, err := store.CreateTable(oid, table.PrimaryKey)
	require.NoError(t, err)
	return table
}

func insertRows(t *testing.T, store *storage.Store, table *catalog.Table, rows ...[]common.Value) {
	t.Helper()
	mem, err := store.GetTable(table.Oid)
	require.NoError(t, err)
	for _, row := range rows {
		_, err := mem.Insert(row, nil)
		require.NoError(t, err)
	}
}

// setupTestDB creates t(a int, b int, s string) and u(c int, d int).
func setupTestDB(t *testing.T) *testDB {
	store := storage.NewStore()
	db := &testDB{store: store}
	db.t = newTestTable(t, store, 1, "t",
		catalog.Column{Name: "a", Type: common.IntType},
		catalog.Column{Name: "b", Type: common.IntType},
		catalog.Column{Name: "s", Type: common.StringType})
	db.u = newTestTable(t, store, 2, "u",
		catalog.Column{Name: "c", Type: common.IntType},
		catalog.Column{Name: "d", Type: common.IntType})
	insertRows(t, store, db.t,
		[]common.Value{iv(3), iv(30), sv("c")},
		[]common.Value{iv(1), iv(10), sv("a")},
		[]common.Value{iv(2), nullInt, sv("b")},
		[]common.Value{iv(4), iv(10), sv("d")})
	insertRows(t, store, db.u,
		[]common.Value{iv(1), iv(100)},
		[]common.Value{iv(3), iv(300)},
		[]common.Value{iv(5), iv(500)})
	return db
}

func (db *testDB) ctx() *ExecutorContext {
	return NewExecutorContext(db.store, nil, 0)
}

func scanOf(t *testing.T, table *catalog.Table) *planner.PlanNode {
	t.Helper()
	n, err := planner.NewTableScan(table, "", planner.ColumnSet{})
	require.NoError(t, err)
	return n
}

func col(i int, name string) planner.Expr {
	return planner.NewColumnRef(i, common.IntType, name)
}

func strCol(i int, name string) planner.Expr {
	return planner.NewColumnRef(i, common.StringType, name)
}

func constInt(v int64) planner.Expr {
	return planner.NewConstantValueExpression(iv(v))
}

func eq(l, r planner.Expr) planner.Expr {
	return planner.NewComparisonExpression(l, r, planner.Equal)
}

func mustNode(t *testing.T) func(*planner.PlanNode, error) *planner.PlanNode {
	return func(n *planner.PlanNode, err error) *planner.PlanNode {
		t.Helper()
		require.NoError(t, err)
		return n
	}
}

func runPlan(t *testing.T, n *planner.PlanNode, ctx *ExecutorContext) [][]string {
	t.Helper()
	rs, err := Run(n, ctx)
	require.NoError(t, err)
	require.True(t, rs.Complete)
	return rs.Strings()
}

func TestSeqScan(t *testing.T) {
	db := setupTestDB(t)
	scan := scanOf(t, db.t)
	assert.Equal(t, [][]string{
		{"1", "10", "a"},
		{"2", "NULL", "b"},
		{"3", "30", "c"},
		{"4", "10", "d"},
	}, runPlan(t, scan, db.ctx()))

	// Unrequired columns read as NULL; the row id survives.
	narrow := mustNode(t)(planner.NewTableScan(db.t, "", planner.NewColumnSet(0)))
	exec, err := Implement(narrow)
	require.NoError(t, err)
	require.NoError(t, exec.Init(db.ctx()))
	require.True(t, exec.Next())
	row := exec.Current()
	assert.Equal(t, int64(1), row.GetValue(0).IntValue())
	assert.True(t, row.GetValue(1).IsNull())
	assert.Equal(t, common.StringType, row.GetValue(2).Type())
	assert.False(t, row.RID().IsNil())
	require.NoError(t, exec.Close())
}

func TestFilterProjectValues(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)

	filter := m(planner.NewFilter(scanOf(t, db.t), planner.NewComparisonExpression(col(1, "b"), constInt(10), planner.Equal)))
	proj := m(planner.NewProject(filter, []planner.Expr{
		strCol(2, "s"),
		planner.NewArithmeticExpression(col(0, "a"), constInt(100), planner.Mult),
	}, []string{"s", "x"}))
	assert.Equal(t, [][]string{{"a", "100"}, {"d", "400"}}, runPlan(t, proj, db.ctx()))

	values := m(planner.NewValues(
		[]planner.Column{{Name: "x", Type: common.IntType}},
		[][]planner.Expr{{constInt(7)}, {planner.NewArithmeticExpression(constInt(7), constInt(2), planner.Div)}}))
	assert.Equal(t, [][]string{{"7"}, {"3"}}, runPlan(t, values, db.ctx()))
}

func TestSortAndLimit(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)

	sorted := m(planner.NewSort(scanOf(t, db.t), []planner.OrderByClause{{Expr: col(1, "b"), Direction: planner.Descending}}))
	// Equal keys keep the input order; NULLs sort last when descending.
	assert.Equal(t, [][]string{
		{"3", "30", "c"},
		{"1", "10", "a"},
		{"4", "10", "d"},
		{"2", "NULL", "b"},
	}, runPlan(t, sorted, db.ctx()))

	top := m(planner.NewLimit(sorted, 1, 2))
	exec, err := Implement(top)
	require.NoError(t, err)
	assert.IsType(t, &TopNExecutor{}, exec)
	rs, err := Collect(exec, db.ctx())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "10", "a"}, {"4", "10", "d"}}, rs.Strings())

	tests := []struct {
		name          string
		offset, limit int64
		want          []string
	}{
		{"limit", 0, 2, []string{"1", "2"}},
		{"offset", 3, -1, []string{"4"}},
		{"offset past end", 10, 5, nil},
		{"zero", 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := m(planner.NewLimit(scanOf(t, db.t), tt.offset, tt.limit))
			var got []string
			for _, row := range runPlan(t, limit, db.ctx()) {
				got = append(got, row[0])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregate(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)

	agg := m(planner.NewAggregate(scanOf(t, db.t), []planner.Expr{col(1, "b")}, nil, []planner.AggregateClause{
		{Type: planner.AggCount},
		{Type: planner.AggSum, Expr: col(0, "a")},
		{Type: planner.AggMin, Expr: strCol(2, "s")},
	}))
	// Groups come out in the order they were first seen.
	assert.Equal(t, [][]string{
		{"10", "2", "5", "a"},
		{"NULL", "1", "2", "b"},
		{"30", "1", "3", "c"},
	}, runPlan(t, agg, db.ctx()))

	empty := m(planner.NewFilter(scanOf(t, db.t), planner.NewComparisonExpression(col(0, "a"), constInt(100), planner.GreaterThan)))
	global := m(planner.NewAggregate(empty, nil, nil, []planner.AggregateClause{
		{Type: planner.AggCount},
		{Type: planner.AggCount, Expr: col(1, "b")},
		{Type: planner.AggSum, Expr: col(0, "a")},
		{Type: planner.AggMax, Expr: strCol(2, "s")},
	}))
	assert.Equal(t, [][]string{{"0", "0", "NULL", "NULL"}}, runPlan(t, global, db.ctx()))

	countB := m(planner.NewAggregate(scanOf(t, db.t), nil, nil, []planner.AggregateClause{{Type: planner.AggCount, Expr: col(1, "b")}}))
	assert.Equal(t, [][]string{{"3"}}, runPlan(t, countB, db.ctx()))
}

var (
	innerJoinRows = [][]string{
		{"1", "10", "a", "1", "100"},
		{"3", "30", "c", "3", "300"},
	}
	leftJoinRows = [][]string{
		{"1", "10", "a", "1", "100"},
		{"2", "NULL", "b", "NULL", "NULL"},
		{"3", "30", "c", "3", "300"},
		{"4", "10", "d", "NULL", "NULL"},
	}
	semiJoinRows = [][]string{{"1", "10", "a"}, {"3", "30", "c"}}
	antiJoinRows = [][]string{{"2", "NULL", "b"}, {"4", "10", "d"}}
)

var joinCases = []struct {
	kind planner.JoinKind
	want [][]string
}{
	{planner.JoinInner, innerJoinRows},
	{planner.JoinLeft, leftJoinRows},
	{planner.JoinSemi, semiJoinRows},
	{planner.JoinAnti, antiJoinRows},
}

func TestNestedLoopJoin(t *testing.T) {
	db := setupTestDB(t)
	for _, tt := range joinCases {
		t.Run(tt.kind.String(), func(t *testing.T) {
			join := mustNode(t)(planner.NewNestedLoopJoin(scanOf(t, db.t), scanOf(t, db.u), eq(col(0, "t.a"), col(3, "u.c")), tt.kind, nil))
			assert.Equal(t, tt.want, runPlan(t, join, db.ctx()))
		})
	}
}

func TestNestedLoopJoinBindsVariables(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)
	// The inner input reads the outer row through $cor7; the join condition itself is
	// trivially true.
	inner := m(planner.NewFilter(scanOf(t, db.u), eq(planner.NewCorrelVariableExpression(7, col(0, "t.a")), col(0, "u.c"))))
	join := m(planner.NewNestedLoopJoin(scanOf(t, db.t), inner, constInt(1), planner.JoinInner, []planner.CorrelationID{7}))
	ctx := db.ctx()
	assert.Equal(t, innerJoinRows, runPlan(t, join, ctx))
	_, bound := ctx.Correlated(7)
	assert.False(t, bound)

	// Abandoning the sequence mid-way still releases the inner side and its binding.
	exec, err := Implement(join)
	require.NoError(t, err)
	require.NoError(t, exec.Init(ctx))
	require.True(t, exec.Next())
	_, bound = ctx.Correlated(7)
	assert.True(t, bound)
	require.NoError(t, exec.Close())
	_, bound = ctx.Correlated(7)
	assert.False(t, bound)
}

func TestBatchNestedLoopJoin(t *testing.T) {
	db := setupTestDB(t)
	for _, batch := range []int{1, 3, 10} {
		for _, tt := range joinCases {
			t.Run(tt.kind.String(), func(t *testing.T) {
				nlj := mustNode(t)(planner.NewNestedLoopJoin(scanOf(t, db.t), scanOf(t, db.u), eq(col(0, "t.a"), col(3, "u.c")), tt.kind, nil))
				bnlj := mustNode(t)(planner.BatchJoins(nlj, batch))
				require.Equal(t, planner.OpBatchNestedLoopJoin, bnlj.Kind())
				require.Len(t, bnlj.Variables(), batch)

				exec, err := Implement(bnlj)
				require.NoError(t, err)
				assert.IsType(t, &BatchNestedLoopJoinExecutor{}, exec)
				ctx := db.ctx()
				rs, err := Collect(exec, ctx)
				require.NoError(t, err)
				// Output keeps the left order whatever the batch size.
				assert.Equal(t, tt.want, rs.Strings())
				for _, v := range bnlj.Variables() {
					_, bound := ctx.Correlated(v)
					assert.False(t, bound)
				}
			})
		}
	}
}

// countingExpr is a constant that records how many times it was evaluated.
type countingExpr struct {
	val   common.Value
	evals int
}

func (e *countingExpr) Eval(storage.Tuple, planner.Env) (common.Value, error) {
	e.evals++
	return e.val, nil
}

func (e *countingExpr) OutputType() common.Type  { return e.val.Type() }
func (e *countingExpr) String() string           { return "counting" }
func (e *countingExpr) Children() []planner.Expr { return nil }
func (e *countingExpr) WithChildren([]planner.Expr) planner.Expr {
	return e
}

// TestBatchNestedLoopJoinInnerRunsPerBatch checks that the inner side is derived once per
// batch of outer rows, not once per outer row.
func TestBatchNestedLoopJoinInnerRunsPerBatch(t *testing.T) {
	db := setupTestDB(t)
	tests := []struct {
		batch int
		runs  int
	}{
		{batch: 1, runs: 4},
		{batch: 2, runs: 2},
		{batch: 3, runs: 2},
		{batch: 4, runs: 1},
		{batch: 10, runs: 1},
	}
	for _, tt := range tests {
		counter := &countingExpr{val: iv(1)}
		inner := mustNode(t)(planner.NewValues([]planner.Column{{Name: "x", Type: common.IntType}},
			[][]planner.Expr{{counter}}))
		nlj := mustNode(t)(planner.NewNestedLoopJoin(scanOf(t, db.t), inner, eq(col(0, "t.a"), col(3, "x")), planner.JoinInner, nil))
		bnlj := mustNode(t)(planner.BatchJoins(nlj, tt.batch))

		assert.Equal(t, [][]string{{"1", "10", "a", "1"}}, runPlan(t, bnlj, db.ctx()), "batch %d", tt.batch)
		assert.Equal(t, tt.runs, counter.evals, "batch %d", tt.batch)
	}
}

func TestBatchNestedLoopJoinWithoutVariables(t *testing.T) {
	db := setupTestDB(t)
	join := mustNode(t)(planner.NewBatchNestedLoopJoin(scanOf(t, db.t), scanOf(t, db.u), eq(col(0, "t.a"), col(3, "u.c")), planner.ColumnSet{}, nil, planner.JoinLeft))
	assert.Equal(t, leftJoinRows, runPlan(t, join, NewExecutorContext(db.store, nil, 2)))
}

func TestHashJoin(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)
	cond := eq(col(0, "t.a"), col(3, "u.c"))
	leftKeys := []planner.Expr{col(0, "t.a")}
	rightKeys := []planner.Expr{col(0, "u.c")}

	inner := m(planner.NewHashJoin(scanOf(t, db.t), scanOf(t, db.u), cond, leftKeys, rightKeys, planner.JoinInner))
	assert.Equal(t, innerJoinRows, runPlan(t, inner, db.ctx()))

	right := m(planner.NewHashJoin(scanOf(t, db.t), scanOf(t, db.u), cond, leftKeys, rightKeys, planner.JoinRight))
	assert.Equal(t, append(append([][]string{}, innerJoinRows...), []string{"NULL", "NULL", "NULL", "5", "500"}),
		runPlan(t, right, db.ctx()))

	// NULL keys never match, not even each other.
	nullable := func() *planner.PlanNode {
		return m(planner.NewValues(
			[]planner.Column{{Name: "x", Type: common.IntType}},
			[][]planner.Expr{{planner.NewConstantValueExpression(nullInt)}, {constInt(1)}}))
	}
	nulls := m(planner.NewHashJoin(nullable(), nullable(), eq(col(0, "x"), col(1, "x")),
		[]planner.Expr{col(0, "x")}, []planner.Expr{col(0, "x")}, planner.JoinInner))
	assert.Equal(t, [][]string{{"1", "1"}}, runPlan(t, nulls, db.ctx()))
}

func TestImplementUnsupported(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)
	cond := eq(col(0, "t.a"), col(3, "u.c"))
	scan := scanOf(t, db.t)

	logical := m(planner.ReplaceConvention(scan, planner.ConventionLogical))
	tests := []struct {
		name string
		node *planner.PlanNode
	}{
		{"nested loop right join", m(planner.NewNestedLoopJoin(scan, scanOf(t, db.u), cond, planner.JoinRight, nil))},
		{"batch nested loop right join", m(planner.NewBatchNestedLoopJoin(scan, scanOf(t, db.u), cond, planner.ColumnSet{}, []planner.CorrelationID{0}, planner.JoinRight))},
		{"hash left join", m(planner.NewHashJoin(scan, scanOf(t, db.u), cond, []planner.Expr{col(0, "a")}, []planner.Expr{col(0, "c")}, planner.JoinLeft))},
		{"logical convention", logical},
		{"logical input", m(planner.NewLimit(logical, 0, 1))},
		{"nested loop logical inner", m(planner.NewNestedLoopJoin(scan, logical, cond, planner.JoinInner, nil))},
		{"hash logical inner", m(planner.NewHashJoin(scan, logical, cond, []planner.Expr{col(0, "a")}, []planner.Expr{col(0, "a")}, planner.JoinInner))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := Implement(tt.node)
			assert.Nil(t, exec)
			require.Error(t, err)
			assert.True(t, common.HasCode(err, common.UnsupportedPlanError), "got %v", err)
		})
	}
}

// TestNestedJoinInner runs a nested-loop join whose inner side is itself a join, so the
// inner executor checked while implementing is closed before it was ever initialized.
func TestNestedJoinInner(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)
	inner := m(planner.NewNestedLoopJoin(scanOf(t, db.u), scanOf(t, db.u), eq(col(0, "u.c"), col(2, "u2.c")), planner.JoinInner, nil))
	join := m(planner.NewNestedLoopJoin(scanOf(t, db.t), inner, eq(col(0, "t.a"), col(3, "u.c")), planner.JoinInner, nil))

	exec, err := Implement(join)
	require.NoError(t, err)
	require.NoError(t, exec.Close())

	assert.ElementsMatch(t, [][]string{
		{"1", "10", "a", "1", "100", "1", "100"},
		{"3", "30", "c", "3", "300", "3", "300"},
	}, runPlan(t, join, db.ctx()))
}

func TestFailureStopsSequence(t *testing.T) {
	db := setupTestDB(t)
	m := mustNode(t)
	// 10 / (a - 3) fails on the third row.
	proj := m(planner.NewProject(scanOf(t, db.t), []planner.Expr{
		planner.NewArithmeticExpression(constInt(10), planner.NewArithmeticExpression(col(0, "a"), constInt(3), planner.Sub), planner.Div),
	}, []string{"q"}))

	rs, err := Run(proj, db.ctx())
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.EvaluationError))
	assert.False(t, rs.Complete)
	assert.Equal(t, [][]string{{"-5"}, {"-10"}}, rs.Strings())

	exec, err := Implement(proj)
	require.NoError(t, err)
	require.NoError(t, exec.Init(db.ctx()))
	for exec.Next() {
	}
	require.Error(t, exec.Error())
	assert.False(t, exec.Next())
	require.NoError(t, exec.Close())
}
