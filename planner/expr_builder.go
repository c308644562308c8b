package planner

import (
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
)

// Resolver supplies the bindings a statement is planned against: tables, session
// variables and the current schema.
type Resolver interface {
	ResolveTable(name sqlparser.TableName) (*catalog.Table, error)
	// Variable looks up a system variable by its bare lowercase name, or a user variable
	// by "@name".
	Variable(name string) (common.Value, bool)
	Schema() string
}

func unsupported(format string, args ...any) error {
	return common.NewError(common.UnsupportedStatementError, format, args...)
}

// exprBuilder turns parsed expressions into Exprs over the columns of scope.
type exprBuilder struct {
	scope []Column
	res   Resolver
	// agg is set while building expressions over the output of an aggregation.
	agg *aggScope
}

// aggScope maps expressions of an aggregating SELECT onto the aggregation's output: the
// group keys first, then one column per distinct aggregate call.
type aggScope struct {
	input    *exprBuilder
	groupAST []sqlparser.Expr
	groups   []Expr
	aggs     []AggregateClause
	aggKeys  []string
}

var aggregateFuncs = map[string]AggregatorType{
	"count": AggCount,
	"sum":   AggSum,
	"min":   AggMin,
	"max":   AggMax,
}

func isAggregateCall(e sqlparser.Expr) bool {
	f, ok := e.(*sqlparser.FuncExpr)
	if !ok || !f.Qualifier.IsEmpty() {
		return false
	}
	_, ok = aggregateFuncs[f.Name.Lowered()]
	return ok
}

// containsAggregate reports whether any of nodes calls an aggregate function.
func containsAggregate(nodes ...sqlparser.SQLNode) bool {
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Subquery:
			return false, nil
		case sqlparser.Expr:
			if isAggregateCall(n) {
				found = true
				return false, nil
			}
		}
		return true, nil
	}, nodes...)
	return found
}

func resolveColumn(scope []Column, col *sqlparser.ColName) (int, error) {
	name := col.Name.String()
	qualifier := col.Qualifier.Name.String()
	found := -1
	for i, c := range scope {
		if !strings.EqualFold(c.Name, name) {
			continue
		}
		if qualifier != "" && !strings.EqualFold(c.Table, qualifier) {
			continue
		}
		if found >= 0 {
			return -1, planError("column %s is ambiguous", sqlparser.String(col))
		}
		found = i
	}
	if found < 0 {
		return -1, common.NewError(common.NoSuchObjectError, "unknown column %s", sqlparser.String(col))
	}
	return found, nil
}

// VariableName normalizes @@session.x, @@global.x and @@x to x; user variables keep
// their single @.
func VariableName(name string) (string, bool) {
	lowered := strings.ToLower(name)
	if !strings.HasPrefix(lowered, "@") {
		return "", false
	}
	if !strings.HasPrefix(lowered, "@@") {
		return lowered, true
	}
	lowered = strings.TrimPrefix(lowered, "@@")
	for _, scope := range []string{"session.", "global.", "local."} {
		lowered = strings.TrimPrefix(lowered, scope)
	}
	return lowered, true
}

func (b *exprBuilder) build(e sqlparser.Expr) (Expr, error) {
	if b.agg != nil {
		if ref, ok, err := b.agg.match(e); ok || err != nil {
			return ref, err
		}
	}
	switch e := e.(type) {
	case *sqlparser.SQLVal:
		return buildLiteral(e)
	case *sqlparser.NullVal:
		return NewConstantValueExpression(common.NewNullInt()), nil
	case sqlparser.BoolVal:
		return NewConstantValueExpression(common.NewBoolValue(bool(e))), nil
	case *sqlparser.ColName:
		return b.column(e)
	case *sqlparser.ParenExpr:
		return b.build(e.Expr)
	case *sqlparser.AndExpr:
		return b.logic(e.Left, e.Right, And)
	case *sqlparser.OrExpr:
		return b.logic(e.Left, e.Right, Or)
	case *sqlparser.NotExpr:
		child, err := b.build(e.Expr)
		if err != nil {
			return nil, err
		}
		return NewNegationExpression(child), nil
	case *sqlparser.ComparisonExpr:
		return b.comparison(e)
	case *sqlparser.RangeCond:
		return b.between(e)
	case *sqlparser.IsExpr:
		return b.is(e)
	case *sqlparser.BinaryExpr:
		return b.arithmetic(e)
	case *sqlparser.UnaryExpr:
		return b.unary(e)
	case *sqlparser.FuncExpr:
		return b.function(e)
	case *sqlparser.Subquery:
		return nil, unsupported("subqueries are not supported: %s", sqlparser.String(e))
	}
	return nil, unsupported("unsupported expression %s", sqlparser.String(e))
}

func buildLiteral(v *sqlparser.SQLVal) (Expr, error) {
	switch v.Type {
	case sqlparser.IntVal:
		i, err := strconv.ParseInt(string(v.Val), 10, 64)
		if err != nil {
			return nil, unsupported("integer literal %s out of range", v.Val)
		}
		return NewConstantValueExpression(common.NewIntValue(i)), nil
	case sqlparser.StrVal:
		return NewConstantValueExpression(common.NewStringValue(string(v.Val))), nil
	case sqlparser.HexNum:
		i, err := strconv.ParseInt(string(v.Val[2:]), 16, 64)
		if err != nil {
			return nil, unsupported("hex literal %s out of range", v.Val)
		}
		return NewConstantValueExpression(common.NewIntValue(i)), nil
	case sqlparser.HexVal:
		decoded, err := v.HexDecode()
		if err != nil {
			return nil, unsupported("bad hex literal %s", v.Val)
		}
		return NewConstantValueExpression(common.NewStringValue(string(decoded))), nil
	case sqlparser.ValArg:
		if strings.EqualFold(string(v.Val), "null") {
			return NewConstantValueExpression(common.NewNullInt()), nil
		}
		return nil, unsupported("bind variable %s", v.Val)
	case sqlparser.FloatVal:
		return nil, unsupported("floating point literal %s", v.Val)
	}
	return nil, unsupported("literal %s", sqlparser.String(v))
}

func (b *exprBuilder) column(col *sqlparser.ColName) (Expr, error) {
	if col.Qualifier.IsEmpty() {
		if name, ok := VariableName(col.Name.String()); ok {
			return b.variable(name)
		}
	}
	idx, err := resolveColumn(b.scope, col)
	if err != nil {
		return nil, err
	}
	return NewColumnRef(idx, b.scope[idx].Type, b.scope[idx].String()), nil
}

func (b *exprBuilder) variable(name string) (Expr, error) {
	if v, ok := b.res.Variable(name); ok {
		return NewConstantValueExpression(v), nil
	}
	if strings.HasPrefix(name, "@") {
		return NewConstantValueExpression(common.NewNullString()), nil
	}
	return nil, common.NewError(common.NoSuchObjectError, "unknown system variable '%s'", name)
}

func (b *exprBuilder) logic(l, r sqlparser.Expr, t BinaryLogicType) (Expr, error) {
	left, err := b.build(l)
	if err != nil {
		return nil, err
	}
	right, err := b.build(r)
	if err != nil {
		return nil, err
	}
	return NewBinaryLogicExpression(left, right, t), nil
}

var comparisonOps = map[string]ComparisonType{
	sqlparser.EqualStr:        Equal,
	sqlparser.NotEqualStr:     NotEqual,
	"<>":                      NotEqual,
	sqlparser.LessThanStr:     LessThan,
	sqlparser.LessEqualStr:    LessThanOrEqual,
	sqlparser.GreaterThanStr:  GreaterThan,
	sqlparser.GreaterEqualStr: GreaterThanOrEqual,
}

func (b *exprBuilder) comparison(e *sqlparser.ComparisonExpr) (Expr, error) {
	switch e.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		return b.in(e)
	case sqlparser.LikeStr, sqlparser.NotLikeStr:
		if e.Escape != nil {
			return nil, unsupported("LIKE ... ESCAPE is not supported")
		}
		left, err := b.build(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.build(e.Right)
		if err != nil {
			return nil, err
		}
		var like Expr = NewLikeExpression(left, right)
		if e.Operator == sqlparser.NotLikeStr {
			like = NewNegationExpression(like)
		}
		return like, nil
	}
	op, ok := comparisonOps[e.Operator]
	if !ok {
		return nil, unsupported("operator %s is not supported", e.Operator)
	}
	left, err := b.build(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.build(e.Right)
	if err != nil {
		return nil, err
	}
	return NewComparisonExpression(left, right, op), nil
}

// in expands x IN (a, b) to x = a OR x = b, which has the SQL semantics for NULLs.
func (b *exprBuilder) in(e *sqlparser.ComparisonExpr) (Expr, error) {
	tuple, ok := e.Right.(sqlparser.ValTuple)
	if !ok {
		return nil, unsupported("IN requires a value list: %s", sqlparser.String(e))
	}
	left, err := b.build(e.Left)
	if err != nil {
		return nil, err
	}
	disjuncts := make([]Expr, len(tuple))
	for i, item := range tuple {
		right, err := b.build(item)
		if err != nil {
			return nil, err
		}
		disjuncts[i] = NewComparisonExpression(left, right, Equal)
	}
	result := CombineDisjuncts(disjuncts)
	if e.Operator == sqlparser.NotInStr {
		result = NewNegationExpression(result)
	}
	return result, nil
}

func (b *exprBuilder) between(e *sqlparser.RangeCond) (Expr, error) {
	left, err := b.build(e.Left)
	if err != nil {
		return nil, err
	}
	from, err := b.build(e.From)
	if err != nil {
		return nil, err
	}
	to, err := b.build(e.To)
	if err != nil {
		return nil, err
	}
	var result Expr = NewBinaryLogicExpression(
		NewComparisonExpression(left, from, GreaterThanOrEqual),
		NewComparisonExpression(left, to, LessThanOrEqual),
		And)
	if e.Operator == sqlparser.NotBetweenStr {
		result = NewNegationExpression(result)
	}
	return result, nil
}

func (b *exprBuilder) is(e *sqlparser.IsExpr) (Expr, error) {
	child, err := b.build(e.Expr)
	if err != nil {
		return nil, err
	}
	truth := func(want int64) Expr {
		return NewBinaryLogicExpression(
			NewNullCheckExpression(child, IsNotNull),
			NewComparisonExpression(child, NewConstantValueExpression(common.NewIntValue(want)), Equal),
			And)
	}
	switch e.Operator {
	case sqlparser.IsNullStr:
		return NewNullCheckExpression(child, IsNull), nil
	case sqlparser.IsNotNullStr:
		return NewNullCheckExpression(child, IsNotNull), nil
	case sqlparser.IsTrueStr:
		return truth(1), nil
	case sqlparser.IsNotTrueStr:
		return NewNegationExpression(truth(1)), nil
	case sqlparser.IsFalseStr:
		return truth(0), nil
	case sqlparser.IsNotFalseStr:
		return NewNegationExpression(truth(0)), nil
	}
	return nil, unsupported("operator %s is not supported", e.Operator)
}

var arithmeticOps = map[string]ArithmeticType{
	sqlparser.PlusStr:   Add,
	sqlparser.MinusStr:  Sub,
	sqlparser.MultStr:   Mult,
	sqlparser.DivStr:    Div,
	sqlparser.IntDivStr: Div,
	sqlparser.ModStr:    Mod,
	"mod":               Mod,
}

func (b *exprBuilder) arithmetic(e *sqlparser.BinaryExpr) (Expr, error) {
	op, ok := arithmeticOps[strings.ToLower(e.Operator)]
	if !ok {
		return nil, unsupported("operator %s is not supported", e.Operator)
	}
	left, err := b.build(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.build(e.Right)
	if err != nil {
		return nil, err
	}
	return NewArithmeticExpression(left, right, op), nil
}

func (b *exprBuilder) unary(e *sqlparser.UnaryExpr) (Expr, error) {
	child, err := b.build(e.Expr)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case sqlparser.UPlusStr:
		return child, nil
	case sqlparser.UMinusStr:
		if c, ok := child.(*ConstantValueExpr); ok && c.val.Type() == common.IntType && !c.val.IsNull() {
			return NewConstantValueExpression(common.NewIntValue(-c.val.IntValue())), nil
		}
		return NewArithmeticExpression(NewConstantValueExpression(common.NewIntValue(0)), child, Sub), nil
	case sqlparser.BangStr:
		return NewNegationExpression(child), nil
	}
	return nil, unsupported("operator %s is not supported", e.Operator)
}

func (b *exprBuilder) args(f *sqlparser.FuncExpr) ([]Expr, error) {
	out := make([]Expr, 0, len(f.Exprs))
	for _, se := range f.Exprs {
		aliased, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, unsupported("bad argument to %s", f.Name.String())
		}
		e, err := b.build(aliased.Expr)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *exprBuilder) function(f *sqlparser.FuncExpr) (Expr, error) {
	if isAggregateCall(f) {
		return nil, planError("aggregate %s is not allowed here", sqlparser.String(f))
	}
	name := f.Name.Lowered()
	switch name {
	case "database", "schema":
		if b.res.Schema() == "" {
			return NewConstantValueExpression(common.NewNullString()), nil
		}
		return NewConstantValueExpression(common.NewStringValue(b.res.Schema())), nil
	case "version", "last_insert_id", "connection_id":
		return b.variable(name)
	case "concat":
		args, err := b.args(f)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, planError("concat requires at least one argument")
		}
		result := args[0]
		for _, arg := range args[1:] {
			result = NewStringConcatenation(result, arg)
		}
		return result, nil
	}
	return nil, unsupported("function %s is not supported", sqlparser.String(f))
}

// match resolves e against the aggregation output. ok is false when e is neither a
// group key, an aggregate call nor a column, so the caller should build it from its
// parts.
func (a *aggScope) match(e sqlparser.Expr) (Expr, bool, error) {
	switch e := e.(type) {
	case *sqlparser.ColName:
		if _, isVar := VariableName(e.Name.String()); isVar && e.Qualifier.IsEmpty() {
			return nil, false, nil
		}
		idx, err := resolveColumn(a.input.scope, e)
		if err != nil {
			return nil, true, err
		}
		for i, g := range a.groups {
			if col, ok := g.(*ColumnValueExpr); ok && col.fieldOffset == idx {
				return NewColumnRef(i, g.OutputType(), g.String()), true, nil
			}
		}
		return nil, true, planError("column %s is not in GROUP BY", sqlparser.String(e))
	case *sqlparser.FuncExpr:
		if isAggregateCall(e) {
			ref, err := a.aggregate(e)
			return ref, true, err
		}
	}
	text := sqlparser.String(e)
	for i, g := range a.groupAST {
		if strings.EqualFold(sqlparser.String(g), text) {
			return NewColumnRef(i, a.groups[i].OutputType(), a.groups[i].String()), true, nil
		}
	}
	return nil, false, nil
}

func (a *aggScope) aggregate(f *sqlparser.FuncExpr) (Expr, error) {
	if f.Distinct {
		return nil, unsupported("DISTINCT aggregates are not supported: %s", sqlparser.String(f))
	}
	key := strings.ToLower(sqlparser.String(f))
	for k, existing := range a.aggKeys {
		if existing == key {
			return a.aggRef(k), nil
		}
	}
	clause := AggregateClause{Type: aggregateFuncs[f.Name.Lowered()], Name: sqlparser.String(f)}
	switch {
	case len(f.Exprs) == 1:
		if _, star := f.Exprs[0].(*sqlparser.StarExpr); star {
			if clause.Type != AggCount {
				return nil, planError("%s(*) is not allowed", clause.Type)
			}
			break
		}
		aliased, ok := f.Exprs[0].(*sqlparser.AliasedExpr)
		if !ok {
			return nil, unsupported("bad argument to %s", f.Name.String())
		}
		if containsAggregate(aliased.Expr) {
			return nil, planError("nested aggregate in %s", sqlparser.String(f))
		}
		arg, err := a.input.build(aliased.Expr)
		if err != nil {
			return nil, err
		}
		clause.Expr = arg
	default:
		return nil, planError("%s takes exactly one argument", clause.Type)
	}
	if clause.Type == AggSum && clause.Expr.OutputType() != common.IntType {
		return nil, planError("SUM over non-numeric %s", clause.Expr)
	}
	a.aggs = append(a.aggs, clause)
	a.aggKeys = append(a.aggKeys, key)
	return a.aggRef(len(a.aggs) - 1), nil
}

func (a *aggScope) aggRef(k int) Expr {
	clause := a.aggs[k]
	return NewColumnRef(len(a.groups)+k, clause.OutputType(), clause.Name)
}

// BuildExpr builds a standalone expression over scope. Aggregates are rejected.
func BuildExpr(e sqlparser.Expr, scope []Column, res Resolver) (Expr, error) {
	b := &exprBuilder{scope: scope, res: res}
	return b.build(e)
}

// ParseExpr parses SQL expression text and builds it over scope.
func ParseExpr(text string, scope []Column, res Resolver) (Expr, error) {
	stmt, err := sqlparser.Parse("select " + text + " from dual")
	if err != nil {
		return nil, common.NewError(common.ParseError, "bad expression %q: %v", text, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || len(sel.SelectExprs) != 1 {
		return nil, common.NewError(common.ParseError, "bad expression %q", text)
	}
	aliased, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return nil, common.NewError(common.ParseError, "bad expression %q", text)
	}
	return BuildExpr(aliased.Expr, scope, res)
}
