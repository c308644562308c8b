package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
)

func makeTestTable(name string, cols ...string) *catalog.Table {
	table := &catalog.Table{Schema: "db", Name: name, PrimaryKey: []int{0}}
	for _, c := range cols {
		table.Columns = append(table.Columns, catalog.Column{Name: c, Type: common.IntType})
	}
	return table
}

func mustScan(t *testing.T, table *catalog.Table) *PlanNode {
	t.Helper()
	n, err := NewTableScan(table, "", ColumnSet{})
	require.NoError(t, err)
	return n
}

func colRef(i int, name string) *ColumnValueExpr {
	return NewColumnRef(i, common.IntType, name)
}

func TestCreateValidates(t *testing.T) {
	scan := mustScan(t, makeTestTable("t", "a", "b"))
	pred := NewComparisonExpression(colRef(0, "a"), colRef(1, "b"), Equal)

	tests := []struct {
		name    string
		kind    OpKind
		inputs  []*PlanNode
		payload Payload
	}{
		{"no inputs", OpFilter, nil, &FilterPayload{Predicate: pred}},
		{"too many inputs", OpFilter, []*PlanNode{scan, scan}, &FilterPayload{Predicate: pred}},
		{"nil input", OpNestedLoopJoin, []*PlanNode{scan, nil}, &JoinPayload{Condition: pred}},
		{"nil payload", OpFilter, []*PlanNode{scan}, nil},
		{"wrong payload", OpSort, []*PlanNode{scan}, &FilterPayload{Predicate: pred}},
		{"column out of range", OpFilter, []*PlanNode{scan}, &FilterPayload{Predicate: colRef(5, "x")}},
		{"nil predicate", OpFilter, []*PlanNode{scan}, &FilterPayload{}},
		{"hash join without keys", OpHashJoin, []*PlanNode{scan, scan}, &JoinPayload{Condition: pred}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(tt.kind, tt.inputs, tt.payload)
			require.Error(t, err)
			assert.True(t, common.HasCode(err, common.PlanConstructionError), "got %v", err)
		})
	}

	n, err := Create(OpFilter, []*PlanNode{scan}, &FilterPayload{Predicate: pred})
	require.NoError(t, err)
	assert.Equal(t, OpFilter, n.Kind())
	assert.Equal(t, ConventionEnumerable, n.Convention())
	assert.Equal(t, 2, n.Width())
}

func TestBatchNestedLoopJoinTraits(t *testing.T) {
	left, err := NewSort(mustScan(t, makeTestTable("l", "a", "b")), []OrderByClause{{Expr: colRef(1, "b"), Direction: Descending}})
	require.NoError(t, err)
	right := mustScan(t, makeTestTable("r", "c"))
	cond := NewComparisonExpression(colRef(0, "a"), colRef(2, "c"), Equal)
	vars := []CorrelationID{0, 1}

	for _, kind := range []JoinKind{JoinInner, JoinLeft, JoinRight, JoinSemi, JoinAnti} {
		t.Run(kind.String(), func(t *testing.T) {
			required := NewColumnSet(0)
			n, err := NewBatchNestedLoopJoin(left, right, cond, required, vars, kind)
			require.NoError(t, err)
			assert.True(t, n.Collation().Equal(left.Collation()))
			assert.Equal(t, "[1 DESC]", n.Collation().String())
			assert.Equal(t, ConventionEnumerable, n.Convention())
			assert.Equal(t, vars, n.Variables())
			assert.True(t, n.RequiredColumns().Equal(required))
		})
	}
}

func TestCopyWithPreservesPayload(t *testing.T) {
	left := mustScan(t, makeTestTable("l", "a"))
	right := mustScan(t, makeTestTable("r", "c"))
	cond := NewComparisonExpression(colRef(0, "a"), colRef(1, "c"), Equal)
	n, err := NewBatchNestedLoopJoin(left, right, cond, NewColumnSet(1), []CorrelationID{4, 5}, JoinLeft)
	require.NoError(t, err)

	newLeft := mustScan(t, makeTestTable("l2", "z"))
	traits := TraitSet{Convention: ConventionLogical, Collation: Collation{{Field: 0, Direction: Descending}}}
	copied, err := CopyWith(n, traits, []*PlanNode{newLeft, right})
	require.NoError(t, err)

	assert.Equal(t, OpBatchNestedLoopJoin, copied.Kind())
	assert.Equal(t, traits, copied.Traits())
	assert.Equal(t, []CorrelationID{4, 5}, copied.Variables())
	assert.True(t, copied.RequiredColumns().Equal(NewColumnSet(1)))
	assert.Same(t, newLeft, copied.Input(0))
	assert.Equal(t, JoinLeft, PayloadOf[*JoinPayload](copied).Kind)

	// The original node is untouched.
	assert.Same(t, left, n.Input(0))
	assert.Equal(t, ConventionEnumerable, n.Convention())
	assert.Equal(t, "[0 ASC]", n.Collation().String())

	_, err = CopyWith(n, traits, []*PlanNode{newLeft})
	assert.True(t, common.HasCode(err, common.PlanConstructionError))
}

func TestCollationIsCopied(t *testing.T) {
	scan := mustScan(t, makeTestTable("t", "a", "b"))
	filter, err := NewFilter(scan, NewNullCheckExpression(colRef(1, "b"), IsNotNull))
	require.NoError(t, err)

	// Changing a returned collation leaves the node and its input alone.
	filter.Collation()[0].Direction = Descending
	filter.Traits().Collation[0].Field = 1
	assert.Equal(t, "[0 ASC]", filter.Collation().String())
	assert.Equal(t, "[0 ASC]", scan.Collation().String())

	// So does changing the traits a node was copied with.
	traits := TraitSet{Convention: ConventionEnumerable, Collation: Collation{{Field: 1, Direction: Ascending}}}
	copied, err := CopyWith(filter, traits, []*PlanNode{scan})
	require.NoError(t, err)
	traits.Collation[0].Direction = Descending
	assert.Equal(t, "[1 ASC]", copied.Collation().String())
}

func TestDerivedCollation(t *testing.T) {
	left := mustScan(t, makeTestTable("l", "a", "b"))
	right := mustScan(t, makeTestTable("r", "c", "d"))
	cond := NewComparisonExpression(colRef(0, "a"), colRef(2, "c"), Equal)

	nlj, err := NewNestedLoopJoin(left, right, cond, JoinInner, nil)
	require.NoError(t, err)
	assert.Equal(t, "[0 ASC]", nlj.Collation().String())

	nljRight, err := NewNestedLoopJoin(left, right, cond, JoinRight, nil)
	require.NoError(t, err)
	assert.Empty(t, nljRight.Collation())

	hj, err := NewHashJoin(left, right, cond, []Expr{colRef(0, "a")}, []Expr{colRef(0, "c")}, JoinInner)
	require.NoError(t, err)
	assert.Equal(t, "[2 ASC]", hj.Collation().String())

	proj, err := NewProject(left, []Expr{colRef(1, "b"), colRef(0, "a")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[1 ASC]", proj.Collation().String())

	dropped, err := NewProject(left, []Expr{colRef(1, "b")}, nil)
	require.NoError(t, err)
	assert.Empty(t, dropped.Collation())

	agg, err := NewAggregate(left, []Expr{colRef(0, "a")}, nil, []AggregateClause{{Type: AggCount}})
	require.NoError(t, err)
	assert.Empty(t, agg.Collation())
	assert.Equal(t, []string{"a", "COUNT(*)"}, []string{agg.Columns()[0].Name, agg.Columns()[1].Name})
}

func TestReplaceInputsRederivesCollation(t *testing.T) {
	scan := mustScan(t, makeTestTable("t", "a", "b"))
	filter, err := NewFilter(scan, NewNullCheckExpression(colRef(1, "b"), IsNotNull))
	require.NoError(t, err)
	assert.Equal(t, "[0 ASC]", filter.Collation().String())

	sorted, err := NewSort(scan, []OrderByClause{{Expr: colRef(1, "b"), Direction: Ascending}})
	require.NoError(t, err)
	replaced, err := ReplaceInputs(filter, []*PlanNode{sorted})
	require.NoError(t, err)
	assert.Equal(t, "[1 ASC]", replaced.Collation().String())
	assert.Equal(t, "[0 ASC]", filter.Collation().String())
}

func TestExplain(t *testing.T) {
	table := makeTestTable("t", "a", "b")
	scan, err := NewTableScan(table, "x", NewColumnSet(0))
	require.NoError(t, err)
	filter, err := NewFilter(scan, NewComparisonExpression(colRef(0, "x.a"), NewConstantValueExpression(common.NewIntValue(3)), GreaterThan))
	require.NoError(t, err)
	limit, err := NewLimit(filter, 0, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Limit(fetch=[10], collation=[0 ASC])",
		"  Filter(condition=[(x.a > 3)], collation=[0 ASC])",
		"    TableScan(table=[db.t], alias=[x], required=[{0}], collation=[0 ASC])",
	}, Explain(limit))

	logical, err := ReplaceConvention(limit, ConventionLogical)
	require.NoError(t, err)
	assert.Contains(t, ExplainString(logical), "convention=[logical]")
	assert.NotContains(t, ExplainString(limit), "convention")
}

func TestBatchJoins(t *testing.T) {
	left := mustScan(t, makeTestTable("l", "a", "b"))
	right := mustScan(t, makeTestTable("r", "c", "d"))
	cond := NewComparisonExpression(colRef(1, "l.b"), colRef(2, "r.c"), Equal)
	join, err := NewNestedLoopJoin(left, right, cond, JoinLeft, nil)
	require.NoError(t, err)

	batched, err := BatchJoins(join, 2)
	require.NoError(t, err)
	require.Equal(t, OpBatchNestedLoopJoin, batched.Kind())
	assert.Equal(t, []CorrelationID{0, 1}, batched.Variables())
	assert.Equal(t, JoinLeft, PayloadOf[*JoinPayload](batched).Kind)

	inner := batched.Input(1)
	require.Equal(t, OpFilter, inner.Kind())
	assert.Equal(t, "(($cor0.(l.b) = r.c) OR ($cor1.(l.b) = r.c))", PayloadOf[*FilterPayload](inner).Predicate.String())

	// Variables of a second join continue after the first.
	outer, err := NewNestedLoopJoin(batched, mustScan(t, makeTestTable("s", "e")), NewComparisonExpression(colRef(0, "l.a"), colRef(4, "s.e"), Equal), JoinInner, nil)
	require.NoError(t, err)
	twice, err := BatchJoins(outer, 3)
	require.NoError(t, err)
	assert.Equal(t, []CorrelationID{2, 3, 4}, twice.Variables())
	assert.Equal(t, []CorrelationID{0, 1}, twice.Input(0).Variables())

	// RIGHT joins keep the nested-loop operator.
	rightJoin, err := NewNestedLoopJoin(left, right, cond, JoinRight, nil)
	require.NoError(t, err)
	unchanged, err := BatchJoins(rightJoin, 2)
	require.NoError(t, err)
	assert.Same(t, rightJoin, unchanged)
}

func TestHashJoins(t *testing.T) {
	left := mustScan(t, makeTestTable("l", "a"))
	right := mustScan(t, makeTestTable("r", "c"))
	cond := NewBinaryLogicExpression(
		NewComparisonExpression(colRef(1, "r.c"), colRef(0, "l.a"), Equal),
		NewComparisonExpression(colRef(0, "l.a"), NewConstantValueExpression(common.NewIntValue(1)), GreaterThan),
		And)
	join, err := NewNestedLoopJoin(left, right, cond, JoinInner, nil)
	require.NoError(t, err)

	hashed, err := HashJoins(join)
	require.NoError(t, err)
	require.Equal(t, OpHashJoin, hashed.Kind())
	payload := PayloadOf[*JoinPayload](hashed)
	require.Len(t, payload.LeftKeys, 1)
	assert.Equal(t, 0, payload.LeftKeys[0].(*ColumnValueExpr).FieldOffset())
	assert.Equal(t, 0, payload.RightKeys[0].(*ColumnValueExpr).FieldOffset())

	leftJoin, err := NewNestedLoopJoin(left, right, cond, JoinLeft, nil)
	require.NoError(t, err)
	kept, err := HashJoins(leftJoin)
	require.NoError(t, err)
	assert.Equal(t, OpNestedLoopJoin, kept.Kind())
}

func TestSingleJoinRewrites(t *testing.T) {
	left := mustScan(t, makeTestTable("l", "a"))
	right := mustScan(t, makeTestTable("r", "c"))
	cond := NewComparisonExpression(colRef(0, "l.a"), colRef(1, "r.c"), Equal)

	rightJoin, err := NewNestedLoopJoin(left, right, cond, JoinRight, nil)
	require.NoError(t, err)
	_, err = BatchJoin(rightJoin, 2)
	assert.True(t, common.HasCode(err, common.PlanConstructionError))
	hashed, err := HashJoin(rightJoin)
	require.NoError(t, err)
	assert.Equal(t, OpHashJoin, hashed.Kind())

	antiJoin, err := NewNestedLoopJoin(left, right, cond, JoinAnti, nil)
	require.NoError(t, err)
	_, err = HashJoin(antiJoin)
	assert.True(t, common.HasCode(err, common.PlanConstructionError))
	batched, err := BatchJoin(antiJoin, 4)
	require.NoError(t, err)
	assert.Equal(t, []CorrelationID{0, 1, 2, 3}, batched.Variables())

	_, err = BatchJoin(batched, 4)
	assert.Error(t, err)
}
