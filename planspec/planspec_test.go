package planspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/execution"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// testResolver resolves tables against a catalog with the current schema "test".
type testResolver struct {
	cat  *catalog.Catalog
	vars map[string]common.Value
}

func (r *testResolver) ResolveTable(name sqlparser.TableName) (*catalog.Table, error) {
	schema := name.Qualifier.String()
	if schema == "" {
		schema = r.Schema()
	}
	return r.cat.GetTable(schema, name.Name.String())
}

func (r *testResolver) Variable(name string) (common.Value, bool) {
	v, ok := r.vars[name]
	return v, ok
}

func (r *testResolver) Schema() string {
	return "test"
}

type testEnv struct {
	res   *testResolver
	store *storage.Store
}

// newTestEnv creates test.users(id, name) and test.orders(id, user_id, amount).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat := catalog.NewCatalog()
	require.NoError(t, cat.CreateDatabase("test", false))
	store := storage.NewStore()
	create := func(name string, cols []catalog.Column, rows ...[]common.Value) {
		table, err := cat.CreateTable("test", name, cols, []string{"id"})
		require.NoError(t, err)
		mem, err := store.CreateTable(table.Oid, table.PrimaryKey)
		require.NoError(t, err)
		for _, row := range rows {
			_, err := mem.Insert(row, nil)
			require.NoError(t, err)
		}
	}
	i, s := common.NewIntValue, common.NewStringValue
	create("users", []catalog.Column{{Name: "id", Type: common.IntType}, {Name: "name", Type: common.StringType}},
		[]common.Value{i(1), s("ann")}, []common.Value{i(2), s("bob")}, []common.Value{i(3), s("cyd")})
	create("orders", []catalog.Column{{Name: "id", Type: common.IntType}, {Name: "user_id", Type: common.IntType}, {Name: "amount", Type: common.IntType}},
		[]common.Value{i(10), i(1), i(5)}, []common.Value{i(11), i(2), i(7)}, []common.Value{i(12), i(1), i(9)})
	return &testEnv{
		res:   &testResolver{cat: cat, vars: map[string]common.Value{"@min": i(6)}},
		store: store,
	}
}

func (e *testEnv) compile(t *testing.T, payload string) (*planner.PlanNode, error) {
	t.Helper()
	spec, err := Parse(payload)
	if err != nil {
		return nil, err
	}
	return Compile(spec, e.res, planner.DefaultOptions())
}

func (e *testEnv) run(t *testing.T, payload string) [][]string {
	t.Helper()
	plan, err := e.compile(t, payload)
	require.NoError(t, err)
	rs, err := execution.Run(plan, execution.NewExecutorContext(e.store, nil, 0))
	require.NoError(t, err)
	return rs.Strings()
}

const joinPlan = `
op: join
algorithm: batch_nested_loop
kind: inner
condition: "o.user_id = u.id"
variables: 2
inputs:
  - {op: scan, table: test.users, alias: u}
  - {op: scan, table: orders, alias: o}
`

func TestCompileJoin(t *testing.T) {
	env := newTestEnv(t)
	plan, err := env.compile(t, joinPlan)
	require.NoError(t, err)
	require.Equal(t, planner.OpBatchNestedLoopJoin, plan.Kind())
	assert.Equal(t, []planner.CorrelationID{0, 1}, plan.Variables())
	assert.Equal(t, planner.OpFilter, plan.Input(1).Kind())

	assert.ElementsMatch(t, [][]string{
		{"1", "ann", "10", "1", "5"},
		{"1", "ann", "12", "1", "9"},
		{"2", "bob", "11", "2", "7"},
	}, env.run(t, joinPlan))
}

func TestCompileJoinAlgorithms(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		algorithm string
		kind      string
		want      planner.OpKind
		fails     bool
	}{
		{algorithm: "nested_loop", kind: "left", want: planner.OpNestedLoopJoin},
		{algorithm: "hash", kind: "right", want: planner.OpHashJoin},
		{algorithm: "batch_nested_loop", kind: "anti", want: planner.OpBatchNestedLoopJoin},
		{algorithm: "hash", kind: "left", fails: true},
		{algorithm: "batch_nested_loop", kind: "right", fails: true},
		{algorithm: "merge", kind: "inner", fails: true},
		{algorithm: "hash", kind: "outer", fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm+"/"+tt.kind, func(t *testing.T) {
			payload := strings.NewReplacer("ALG", tt.algorithm, "KIND", tt.kind).Replace(
				`{"op": "join", "algorithm": "ALG", "kind": "KIND", "condition": "u.id = o.user_id",
				  "inputs": [{"op": "scan", "table": "users", "alias": "u"}, {"op": "scan", "table": "orders", "alias": "o"}]}`)
			plan, err := env.compile(t, payload)
			if tt.fails {
				assert.True(t, common.HasCode(err, common.PlanConstructionError), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Kind())
		})
	}
}

func TestCompileOperators(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name    string
		payload string
		want    [][]string
	}{
		{
			name: "filter project",
			payload: `
op: project
exprs: ["amount * 2 as doubled", "user_id"]
inputs:
  - op: filter
    condition: "amount > @min"
    inputs: [{op: scan, table: orders}]`,
			want: [][]string{{"14", "2"}, {"18", "1"}},
		},
		{
			name: "sort limit",
			payload: `
op: limit
limit: 2
offset: 1
inputs:
  - op: sort
    order: ["amount desc"]
    inputs: [{op: scan, table: orders, columns: [amount]}]`,
			want: [][]string{{"NULL", "NULL", "7"}, {"NULL", "NULL", "5"}},
		},
		{
			name: "aggregate",
			payload: `
op: aggregate
group: [user_id]
aggs: ["count(*)", "sum(amount) as total", "max(amount)"]
inputs: [{op: scan, table: orders}]`,
			want: [][]string{{"1", "2", "14", "9"}, {"2", "1", "7", "7"}},
		},
		{
			name: "values",
			payload: `
op: values
columns: [a, b]
rows: [["1", "'x'"], ["2 + 3", "concat('y', 'z')"]]`,
			want: [][]string{{"1", "x"}, {"5", "yz"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.run(t, tt.payload))
		})
	}
}

func TestCompileErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name    string
		payload string
		code    common.ErrorCode
	}{
		{"empty", "   ", common.ParseError},
		{"not yaml", "op: [", common.ParseError},
		{"unknown field", "op: scan\ntabel: users", common.ParseError},
		{"unknown op", "op: teleport", common.UnsupportedPlanError},
		{"missing table", "op: scan\ntable: nope", common.NoSuchObjectError},
		{"unknown column", "op: scan\ntable: users\ncolumns: [zip]", common.NoSuchObjectError},
		{"arity", "op: filter\ncondition: '1'", common.PlanConstructionError},
		{"bad expression", "op: filter\ncondition: 'id +'\ninputs: [{op: scan, table: users}]", common.ParseError},
		{"bad aggregate", "op: aggregate\naggs: ['avg(id)']\ninputs: [{op: scan, table: users}]", common.UnsupportedPlanError},
		{"ragged values", "op: values\ncolumns: [a]\nrows: [['1', '2']]", common.PlanConstructionError},
		{"batch too large", "op: join\nalgorithm: batch_nested_loop\nvariables: 3000000\ninputs: [{op: scan, table: users}, {op: scan, table: orders}]",
			common.PlanConstructionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.compile(t, tt.payload)
			assert.True(t, common.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCompileMaxBatchSize(t *testing.T) {
	env := newTestEnv(t)
	spec, err := Parse(joinPlan)
	require.NoError(t, err)
	opts := planner.DefaultOptions()
	opts.MaxBatchSize = 1
	_, err = Compile(spec, env.res, opts)
	assert.True(t, common.HasCode(err, common.PlanConstructionError), "got %v", err)
	assert.ErrorContains(t, err, "exceeds the maximum of 1")

	opts.MaxBatchSize = 2
	plan, err := Compile(spec, env.res, opts)
	require.NoError(t, err)
	assert.Len(t, plan.Variables(), 2)

	// The configured batch size is held to the same limit.
	spec.Variables = 0
	opts.BatchSize = 3
	_, err = Compile(spec, env.res, opts)
	assert.True(t, common.HasCode(err, common.PlanConstructionError), "got %v", err)
}

func TestCache(t *testing.T) {
	env := newTestEnv(t)
	cache := NewCache(2)
	opts := planner.DefaultOptions()

	first, hit, err := cache.Get(joinPlan, env.res.cat, env.res, opts)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := cache.Get(joinPlan, env.res.cat, env.res, opts)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)

	// DDL invalidates.
	require.NoError(t, env.res.cat.CreateDatabase("other", false))
	third, hit, err := cache.Get(joinPlan, env.res.cat, env.res, opts)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotSame(t, first, third)

	// Plans reading variables are compiled every time.
	withVar := "op: filter\ncondition: 'amount > @min'\ninputs: [{op: scan, table: orders}]"
	before := cache.Len()
	_, hit, err = cache.Get(withVar, env.res.cat, env.res, opts)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, before, cache.Len())

	_, _, err = cache.Get("op: [", env.res.cat, env.res, opts)
	assert.True(t, common.HasCode(err, common.ParseError))
	assert.LessOrEqual(t, cache.Len(), 2)
}
