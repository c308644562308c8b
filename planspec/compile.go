package planspec

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
)

func specError(format string, args ...any) error {
	return common.NewError(common.PlanConstructionError, format, args...)
}

// Compile turns spec into a plan tree. Tables and variables are resolved through res.
func Compile(spec *Spec, res planner.Resolver, opts planner.Options) (*planner.PlanNode, error) {
	c := &compiler{res: res, opts: opts}
	return c.compile(spec)
}

type compiler struct {
	res  planner.Resolver
	opts planner.Options
}

func (c *compiler) compile(spec *Spec) (*planner.PlanNode, error) {
	if spec == nil {
		return nil, specError("missing operator")
	}
	inputs := make([]*planner.PlanNode, len(spec.Inputs))
	for i, in := range spec.Inputs {
		node, err := c.compile(in)
		if err != nil {
			return nil, err
		}
		inputs[i] = node
	}

	op := strings.ToLower(spec.Op)
	want, ok := arity[op]
	if !ok {
		return nil, common.NewError(common.UnsupportedPlanError, "unknown operator %q", spec.Op)
	}
	if len(inputs) != want {
		return nil, specError("%s takes %d inputs, got %d", op, want, len(inputs))
	}

	node, err := c.operator(op, spec, inputs)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", op)
	}
	return node, nil
}

func (c *compiler) operator(op string, spec *Spec, inputs []*planner.PlanNode) (*planner.PlanNode, error) {
	switch op {
	case "scan":
		return c.scan(spec)
	case "values":
		return c.values(spec)
	case "filter":
		cond, err := planner.ParseExpr(spec.Condition, inputs[0].Columns(), c.res)
		if err != nil {
			return nil, err
		}
		return planner.NewFilter(inputs[0], cond)
	case "project":
		return c.project(spec, inputs[0])
	case "sort":
		return c.sort(spec, inputs[0])
	case "limit":
		limit := int64(-1)
		if spec.Limit != nil {
			limit = *spec.Limit
		}
		return planner.NewLimit(inputs[0], spec.Offset, limit)
	case "aggregate":
		return c.aggregate(spec, inputs[0])
	case "join":
		return c.join(spec, inputs[0], inputs[1])
	}
	return nil, common.NewError(common.UnsupportedPlanError, "unknown operator %q", spec.Op)
}

// arity is the number of inputs each operator takes.
var arity = map[string]int{
	"scan":      0,
	"values":    0,
	"filter":    1,
	"project":   1,
	"sort":      1,
	"limit":     1,
	"aggregate": 1,
	"join":      2,
}

func (c *compiler) scan(spec *Spec) (*planner.PlanNode, error) {
	name := sqlparser.TableName{Name: sqlparser.NewTableIdent(spec.Table)}
	if schema, table, ok := strings.Cut(spec.Table, "."); ok {
		name = sqlparser.TableName{Qualifier: sqlparser.NewTableIdent(schema), Name: sqlparser.NewTableIdent(table)}
	}
	if name.Name.IsEmpty() {
		return nil, specError("scan needs a table")
	}
	table, err := c.res.ResolveTable(name)
	if err != nil {
		return nil, err
	}
	cols := make([]int, len(spec.Columns))
	for i, colName := range spec.Columns {
		if cols[i] = table.ColumnIndex(colName); cols[i] < 0 {
			return nil, common.NewError(common.NoSuchObjectError, "unknown column '%s' in %s", colName, table.QualifiedName())
		}
	}
	return planner.NewTableScan(table, spec.Alias, planner.NewColumnSet(cols...))
}

func (c *compiler) values(spec *Spec) (*planner.PlanNode, error) {
	if len(spec.Columns) == 0 {
		return nil, specError("values needs columns")
	}
	rows := make([][]planner.Expr, len(spec.Rows))
	for i, row := range spec.Rows {
		if len(row) != len(spec.Columns) {
			return nil, specError("row %d has %d values, want %d", i, len(row), len(spec.Columns))
		}
		rows[i] = make([]planner.Expr, len(row))
		for j, text := range row {
			e, err := planner.ParseExpr(text, nil, c.res)
			if err != nil {
				return nil, err
			}
			rows[i][j] = e
		}
	}
	cols := make([]planner.Column, len(spec.Columns))
	for j, name := range spec.Columns {
		cols[j] = planner.Column{Table: spec.Alias, Name: name, Type: common.StringType}
		if len(rows) > 0 {
			cols[j].Type = rows[0][j].OutputType()
		}
	}
	return planner.NewValues(cols, rows)
}

// selectItem parses "expr [as alias]".
func selectItem(text string) (*sqlparser.AliasedExpr, error) {
	stmt, err := sqlparser.Parse("select " + text + " from dual")
	if err != nil {
		return nil, common.NewError(common.ParseError, "bad expression %q: %v", text, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || len(sel.SelectExprs) != 1 {
		return nil, common.NewError(common.ParseError, "bad expression %q", text)
	}
	item, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return nil, common.NewError(common.ParseError, "bad expression %q", text)
	}
	return item, nil
}

func itemName(item *sqlparser.AliasedExpr) string {
	if !item.As.IsEmpty() {
		return item.As.String()
	}
	return sqlparser.String(item.Expr)
}

func (c *compiler) project(spec *Spec, input *planner.PlanNode) (*planner.PlanNode, error) {
	exprs := make([]planner.Expr, len(spec.Exprs))
	names := make([]string, len(spec.Exprs))
	for i, text := range spec.Exprs {
		item, err := selectItem(text)
		if err != nil {
			return nil, err
		}
		if exprs[i], err = planner.BuildExpr(item.Expr, input.Columns(), c.res); err != nil {
			return nil, err
		}
		names[i] = itemName(item)
	}
	return planner.NewProject(input, exprs, names)
}

func (c *compiler) sort(spec *Spec, input *planner.PlanNode) (*planner.PlanNode, error) {
	order := make([]planner.OrderByClause, len(spec.Order))
	for i, text := range spec.Order {
		stmt, err := sqlparser.Parse("select 1 from dual order by " + text)
		if err != nil {
			return nil, common.NewError(common.ParseError, "bad order %q: %v", text, err)
		}
		sel, ok := stmt.(*sqlparser.Select)
		if !ok || len(sel.OrderBy) != 1 {
			return nil, common.NewError(common.ParseError, "bad order %q", text)
		}
		e, err := planner.BuildExpr(sel.OrderBy[0].Expr, input.Columns(), c.res)
		if err != nil {
			return nil, err
		}
		order[i] = planner.OrderByClause{Expr: e, Direction: planner.Ascending}
		if sel.OrderBy[0].Direction == sqlparser.DescScr {
			order[i].Direction = planner.Descending
		}
	}
	return planner.NewSort(input, order)
}

var aggregators = map[string]planner.AggregatorType{
	"count": planner.AggCount,
	"sum":   planner.AggSum,
	"min":   planner.AggMin,
	"max":   planner.AggMax,
}

func (c *compiler) aggregate(spec *Spec, input *planner.PlanNode) (*planner.PlanNode, error) {
	groups := make([]planner.Expr, len(spec.Group))
	groupNames := make([]string, len(spec.Group))
	for i, text := range spec.Group {
		item, err := selectItem(text)
		if err != nil {
			return nil, err
		}
		if groups[i], err = planner.BuildExpr(item.Expr, input.Columns(), c.res); err != nil {
			return nil, err
		}
		groupNames[i] = itemName(item)
	}

	aggs := make([]planner.AggregateClause, len(spec.Aggs))
	for i, text := range spec.Aggs {
		item, err := selectItem(text)
		if err != nil {
			return nil, err
		}
		f, ok := item.Expr.(*sqlparser.FuncExpr)
		if !ok {
			return nil, specError("%q is not an aggregate call", text)
		}
		typ, ok := aggregators[f.Name.Lowered()]
		if !ok || f.Distinct || len(f.Exprs) != 1 {
			return nil, common.NewError(common.UnsupportedPlanError, "unsupported aggregate %q", text)
		}
		clause := planner.AggregateClause{Type: typ, Name: itemName(item)}
		switch arg := f.Exprs[0].(type) {
		case *sqlparser.StarExpr:
			if typ != planner.AggCount {
				return nil, specError("%q: only count takes *", text)
			}
		case *sqlparser.AliasedExpr:
			if clause.Expr, err = planner.BuildExpr(arg.Expr, input.Columns(), c.res); err != nil {
				return nil, err
			}
		default:
			return nil, specError("bad aggregate argument in %q", text)
		}
		aggs[i] = clause
	}
	return planner.NewAggregate(input, groups, groupNames, aggs)
}

func parseJoinKind(name string) (planner.JoinKind, error) {
	if name == "" {
		return planner.JoinInner, nil
	}
	for _, k := range []planner.JoinKind{planner.JoinInner, planner.JoinLeft, planner.JoinRight, planner.JoinSemi, planner.JoinAnti} {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	return 0, specError("unknown join kind %q", name)
}

func (c *compiler) join(spec *Spec, left, right *planner.PlanNode) (*planner.PlanNode, error) {
	kind, err := parseJoinKind(spec.Kind)
	if err != nil {
		return nil, err
	}
	scope := append(append([]planner.Column(nil), left.Columns()...), right.Columns()...)
	var cond planner.Expr
	if spec.Condition != "" {
		if cond, err = planner.ParseExpr(spec.Condition, scope, c.res); err != nil {
			return nil, err
		}
	} else {
		cond = planner.NewConstantValueExpression(common.NewBoolValue(true))
	}

	algorithm := c.opts.JoinAlgorithm
	if spec.Algorithm != "" {
		if algorithm, err = planner.ParseJoinAlgorithm(spec.Algorithm); err != nil {
			return nil, specError("%v", err)
		}
	}
	node, err := planner.NewNestedLoopJoin(left, right, cond, kind, nil)
	if err != nil {
		return nil, err
	}
	switch algorithm {
	case planner.BatchNestedLoopAlgorithm:
		batch := spec.Variables
		if batch <= 0 {
			batch = c.opts.BatchSize
		}
		if err := c.opts.CheckBatchSize(batch); err != nil {
			return nil, err
		}
		return planner.BatchJoin(node, batch)
	case planner.HashAlgorithm:
		return planner.HashJoin(node)
	}
	return node, nil
}
