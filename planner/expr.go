package planner

import (
	"fmt"
	"regexp"
	"strings"

	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/storage"
)

// Env supplies the outer rows bound to correlation variables while an expression is
// evaluated. A nil Env has no bindings.
type Env interface {
	Correlated(id CorrelationID) (storage.Tuple, bool)
}

// Expr represents a node in an expression tree.
// Expressions are stateless and immutable; rewrites build new nodes via WithChildren.
//
// Unknown (SQL NULL) is a typed NULL Value. Predicates produce IntType values where 1 is
// true and 0 is false, so a predicate has three possible outcomes.
type Expr interface {
	// Eval evaluates the expression against the provided tuple. It returns an
	// EvaluationError for type mismatches and division by zero.
	Eval(t storage.Tuple, env Env) (common.Value, error)

	// OutputType returns the type of value this expression produces.
	OutputType() common.Type

	// String returns a string representation of the expression.
	String() string

	// Children returns the direct sub-expressions.
	Children() []Expr

	// WithChildren returns a copy of the expression with its sub-expressions replaced.
	WithChildren(children []Expr) Expr
}

func evalError(format string, args ...any) error {
	return common.NewError(common.EvaluationError, format, args...)
}

// ColumnValueExpr reads a column of the input tuple.
type ColumnValueExpr struct {
	fieldOffset int // offset of the column in the input tuple
	outputType  common.Type
	name        string
}

func NewColumnValueExpression(fieldOffset int, tupleSchema []common.Type, name string) *ColumnValueExpr {
	return &ColumnValueExpr{
		fieldOffset: fieldOffset,
		outputType:  tupleSchema[fieldOffset],
		name:        name,
	}
}

// NewColumnRef builds a column reference when only the column's own type is known.
func NewColumnRef(fieldOffset int, t common.Type, name string) *ColumnValueExpr {
	return &ColumnValueExpr{fieldOffset: fieldOffset, outputType: t, name: name}
}

func (e *ColumnValueExpr) Eval(t storage.Tuple, _ Env) (common.Value, error) {
	return t.GetValue(e.fieldOffset), nil
}

func (e *ColumnValueExpr) OutputType() common.Type {
	return e.outputType
}

func (e *ColumnValueExpr) String() string {
	return e.name
}

// FieldOffset returns the input column this expression reads.
func (e *ColumnValueExpr) FieldOffset() int {
	return e.fieldOffset
}

func (e *ColumnValueExpr) Children() []Expr {
	return nil
}

func (e *ColumnValueExpr) WithChildren([]Expr) Expr {
	return e
}

type ConstantValueExpr struct {
	val common.Value
}

func NewConstantValueExpression(val common.Value) *ConstantValueExpr {
	return &ConstantValueExpr{val: val}
}

func (e *ConstantValueExpr) Eval(storage.Tuple, Env) (common.Value, error) {
	return e.val, nil
}

func (e *ConstantValueExpr) OutputType() common.Type {
	return e.val.Type()
}

func (e *ConstantValueExpr) String() string {
	if e.val.Type() == common.StringType && !e.val.IsNull() {
		return fmt.Sprintf("'%s'", e.val.StringValue())
	}
	return e.val.String()
}

// Value returns the constant.
func (e *ConstantValueExpr) Value() common.Value {
	return e.val
}

func (e *ConstantValueExpr) Children() []Expr {
	return nil
}

func (e *ConstantValueExpr) WithChildren([]Expr) Expr {
	return e
}

// CorrelVariableExpr evaluates inner against the outer row currently bound to a
// correlation variable, rather than against the input tuple. If the variable is unbound
// (e.g., a partially filled batch) it evaluates to a NULL of inner's type.
type CorrelVariableExpr struct {
	id    CorrelationID
	inner Expr
}

func NewCorrelVariableExpression(id CorrelationID, inner Expr) *CorrelVariableExpr {
	return &CorrelVariableExpr{id: id, inner: inner}
}

func (e *CorrelVariableExpr) Eval(_ storage.Tuple, env Env) (common.Value, error) {
	if env == nil {
		return common.NewNull(e.inner.OutputType()), nil
	}
	outer, ok := env.Correlated(e.id)
	if !ok {
		return common.NewNull(e.inner.OutputType()), nil
	}
	return e.inner.Eval(outer, env)
}

func (e *CorrelVariableExpr) OutputType() common.Type {
	return e.inner.OutputType()
}

func (e *CorrelVariableExpr) String() string {
	return fmt.Sprintf("%s.(%s)", e.id, e.inner.String())
}

// ID returns the correlation variable this expression reads.
func (e *CorrelVariableExpr) ID() CorrelationID {
	return e.id
}

// Children is empty: inner refers to the outer row, not to this expression's input.
func (e *CorrelVariableExpr) Children() []Expr {
	return nil
}

func (e *CorrelVariableExpr) WithChildren([]Expr) Expr {
	return e
}

type ComparisonType int

const (
	Equal ComparisonType = iota
	NotEqual
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual
)

func (c ComparisonType) String() string {
	switch c {
	case Equal:
		return "="
	case NotEqual:
		return "!="
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case GreaterThanOrEqual:
		return ">="
	case LessThanOrEqual:
		return "<="
	}
	return "???"
}

type ComparisonExpression struct {
	left     Expr
	right    Expr
	compType ComparisonType
}

func NewComparisonExpression(left Expr, right Expr, compType ComparisonType) *ComparisonExpression {
	return &ComparisonExpression{
		left:     left,
		right:    right,
		compType: compType,
	}
}

// evalOperands evaluates left, then right. It reports done=true with an unknown result
// as soon as either side is NULL; the right side is not evaluated when the left is NULL.
func evalOperands(left, right Expr, t storage.Tuple, env Env, nullType common.Type) (common.Value, common.Value, bool, error) {
	val1, err := left.Eval(t, env)
	if err != nil {
		return common.Value{}, common.Value{}, true, err
	}
	if val1.IsNull() {
		return common.NewNull(nullType), common.Value{}, true, nil
	}
	val2, err := right.Eval(t, env)
	if err != nil {
		return common.Value{}, common.Value{}, true, err
	}
	if val2.IsNull() {
		return common.NewNull(nullType), common.Value{}, true, nil
	}
	return val1, val2, false, nil
}

func (e *ComparisonExpression) Eval(t storage.Tuple, env Env) (common.Value, error) {
	val1, val2, done, err := evalOperands(e.left, e.right, t, env, common.IntType)
	if done {
		return val1, err
	}
	if val1.Type() != val2.Type() {
		return common.Value{}, evalError("cannot compare %s with %s in %s", val1.Type(), val2.Type(), e.String())
	}

	cmp := val1.Compare(val2)
	var result bool

	switch e.compType {
	case Equal:
		result = cmp == 0
	case NotEqual:
		result = cmp != 0
	case GreaterThan:
		result = cmp > 0
	case LessThan:
		result = cmp < 0
	case GreaterThanOrEqual:
		result = cmp >= 0
	case LessThanOrEqual:
		result = cmp <= 0
	}
	return common.NewBoolValue(result), nil
}

func (e *ComparisonExpression) OutputType() common.Type {
	return common.IntType
}

func (e *ComparisonExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.compType.String(), e.right.String())
}

// Operands returns the left and right side and the operator.
func (e *ComparisonExpression) Operands() (Expr, Expr, ComparisonType) {
	return e.left, e.right, e.compType
}

func (e *ComparisonExpression) Children() []Expr {
	return []Expr{e.left, e.right}
}

func (e *ComparisonExpression) WithChildren(children []Expr) Expr {
	return NewComparisonExpression(children[0], children[1], e.compType)
}

func ExprIsTrue(v common.Value) bool {
	// Must be an integer type, not null, and non-zero.
	return v.Type() == common.IntType && !v.IsNull() && v.IntValue() != 0
}

func ExprIsFalse(v common.Value) bool {
	return v.Type() == common.IntType && !v.IsNull() && v.IntValue() == 0
}

func checkTruth(v common.Value, e Expr) error {
	if v.Type() == common.StringType && !v.IsNull() {
		return evalError("string operand used as a truth value in %s", e.String())
	}
	return nil
}

type BinaryLogicType int

const (
	And BinaryLogicType = iota
	Or
)

func (l BinaryLogicType) String() string {
	switch l {
	case And:
		return "AND"
	case Or:
		return "OR"
	}
	return "???"
}

// BinaryLogicExpression implements three-valued AND/OR. A FALSE left side decides an
// AND and a TRUE left side decides an OR without evaluating the right side.
type BinaryLogicExpression struct {
	left      Expr
	right     Expr
	logicType BinaryLogicType
}

func NewBinaryLogicExpression(left Expr, right Expr, logicType BinaryLogicType) *BinaryLogicExpression {
	return &BinaryLogicExpression{
		left:      left,
		right:     right,
		logicType: logicType,
	}
}

func (e *BinaryLogicExpression) Eval(t storage.Tuple, env Env) (common.Value, error) {
	val1, err := e.left.Eval(t, env)
	if err != nil {
		return common.Value{}, err
	}
	if err := checkTruth(val1, e); err != nil {
		return common.Value{}, err
	}
	switch e.logicType {
	case And:
		if ExprIsFalse(val1) {
			return common.NewIntValue(0), nil
		}
	case Or:
		if ExprIsTrue(val1) {
			return common.NewIntValue(1), nil
		}
	}

	val2, err := e.right.Eval(t, env)
	if err != nil {
		return common.Value{}, err
	}
	if err := checkTruth(val2, e); err != nil {
		return common.Value{}, err
	}

	switch e.logicType {
	case And:
		if ExprIsTrue(val1) && ExprIsTrue(val2) {
			return common.NewIntValue(1), nil
		} else if ExprIsFalse(val2) {
			return common.NewIntValue(0), nil
		}
		return common.NewNullInt(), nil
	case Or:
		if ExprIsTrue(val2) {
			return common.NewIntValue(1), nil
		} else if ExprIsFalse(val1) && ExprIsFalse(val2) {
			return common.NewIntValue(0), nil
		}
		return common.NewNullInt(), nil
	default:
		panic("unknown logic type")
	}
}

func (e *BinaryLogicExpression) OutputType() common.Type {
	return common.IntType
}

func (e *BinaryLogicExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.logicType.String(), e.right.String())
}

// LogicType returns AND or OR.
func (e *BinaryLogicExpression) LogicType() BinaryLogicType {
	return e.logicType
}

func (e *BinaryLogicExpression) Children() []Expr {
	return []Expr{e.left, e.right}
}

func (e *BinaryLogicExpression) WithChildren(children []Expr) Expr {
	return NewBinaryLogicExpression(children[0], children[1], e.logicType)
}

type NegationExpression struct {
	child Expr
}

func NewNegationExpression(child Expr) *NegationExpression {
	return &NegationExpression{
		child: child,
	}
}

func (e *NegationExpression) Eval(t storage.Tuple, env Env) (common.Value, error) {
	val, err := e.child.Eval(t, env)
	if err != nil {
		return common.Value{}, err
	}
	if err := checkTruth(val, e); err != nil {
		return common.Value{}, err
	}
	if val.IsNull() {
		return common.NewNullInt(), nil
	}
	return common.NewBoolValue(!ExprIsTrue(val)), nil
}

func (e *NegationExpression) OutputType() common.Type {
	return common.IntType
}

func (e *NegationExpression) String() string {
	return fmt.Sprintf("!(%s)", e.child.String())
}

func (e *NegationExpression) Children() []Expr {
	return []Expr{e.child}
}

func (e *NegationExpression) WithChildren(children []Expr) Expr {
	return NewNegationExpression(children[0])
}

type NullCheckType int

const (
	IsNull NullCheckType = iota
	IsNotNull
)

func (n NullCheckType) String() string {
	switch n {
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	}
	return "???"
}

type NullCheckExpression struct {
	child     Expr
	checkType NullCheckType
}

func NewNullCheckExpression(child Expr, checkType NullCheckType) *NullCheckExpression {
	return &NullCheckExpression{
		child:     child,
		checkType: checkType,
	}
}

func (e *NullCheckExpression) Eval(t storage.Tuple, env Env) (common.Value, error) {
	val, err := e.child.Eval(t, env)
	if err != nil {
		return common.Value{}, err
	}
	isNull := val.IsNull()

	var result bool
	switch e.checkType {
	case IsNull:
		result = isNull
	case IsNotNull:
		result = !isNull
	}
	return common.NewBoolValue(result), nil
}

func (e *NullCheckExpression) OutputType() common.Type {
	return common.IntType
}

func (e *NullCheckExpression) String() string {
	return fmt.Sprintf("(%s %s)", e.child.String(), e.checkType.String())
}

func (e *NullCheckExpression) Children() []Expr {
	return []Expr{e.child}
}

func (e *NullCheckExpression) WithChildren(children []Expr) Expr {
	return NewNullCheckExpression(children[0], e.checkType)
}

type ArithmeticType int

const (
	Add ArithmeticType = iota
	Sub
	Mult
	Div
	Mod
)

func (a ArithmeticType) String() string {
	switch a {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mult:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	}
	return "?"
}

// ArithmeticExpression implements integer arithmetic. Division and modulo truncate
// toward zero; a known zero divisor is an EvaluationError.
type ArithmeticExpression struct {
	left  Expr
	right Expr
	op    ArithmeticType
}

func NewArithmeticExpression(left Expr, right Expr, op ArithmeticType) *ArithmeticExpression {
	return &ArithmeticExpression{
		left:  left,
		right: right,
		op:    op,
	}
}

func (e *ArithmeticExpression) Eval(t storage.Tuple, env Env) (common.Value, error) {
	val1, val2, done, err := evalOperands(e.left, e.right, t, env, common.IntType)
	if done {
		return val1, err
	}
	if val1.Type() != common.IntType || val2.Type() != common.IntType {
		return common.Value{}, evalError("non-numeric operand (%s %s %s) in %s", val1.Type(), e.op, val2.Type(), e.String())
	}

	v1 := val1.IntValue()
	v2 := val2.IntValue()
	var result int64

	switch e.op {
	case Add:
		result = v1 + v2
	case Sub:
		result = v1 - v2
	case Mult:
		result = v1 * v2
	case Div:
		if v2 == 0 {
			return common.Value{}, evalError("division by zero in %s", e.String())
		}
		result = v1 / v2
	case Mod:
		if v2 == 0 {
			return common.Value{}, evalError("division by zero in %s", e.String())
		}
		result = v1 % v2
	}
	return common.NewIntValue(result), nil
}

func (e *ArithmeticExpression) OutputType() common.Type {
	return common.IntType
}

func (e *ArithmeticExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.op.String(), e.right.String())
}

func (e *ArithmeticExpression) Children() []Expr {
	return []Expr{e.left, e.right}
}

func (e *ArithmeticExpression) WithChildren(children []Expr) Expr {
	return NewArithmeticExpression(children[0], children[1], e.op)
}

// StringConcatExpression handles string manipulation.
type StringConcatExpression struct {
	left  Expr
	right Expr
}

func NewStringConcatenation(left Expr, right Expr) *StringConcatExpression {
	return &StringConcatExpression{left: left, right: right}
}

func (e *StringConcatExpression) Eval(t storage.Tuple, env Env) (common.Value, error) {
	val1, val2, done, err := evalOperands(e.left, e.right, t, env, common.StringType)
	if done {
		return val1, err
	}
	return common.NewStringValue(val1.String() + val2.String()), nil
}

func (e *StringConcatExpression) OutputType() common.Type {
	return common.StringType
}

func (e *StringConcatExpression) String() string {
	return fmt.Sprintf("(%s || %s)", e.left.String(), e.right.String())
}

func (e *StringConcatExpression) Children() []Expr {
	return []Expr{e.left, e.right}
}

func (e *StringConcatExpression) WithChildren(children []Expr) Expr {
	return NewStringConcatenation(children[0], children[1])
}

type LikeExpression struct {
	left  Expr // The value to check
	right Expr // The pattern (usually a constant)
}

func NewLikeExpression(left Expr, right Expr) *LikeExpression {
	return &LikeExpression{left: left, right: right}
}

// likePattern converts SQL LIKE syntax to an anchored Go regular expression.
// We cannot use ReplaceAll on a QuoteMeta'd string because QuoteMeta does not escape % or _,
// so we wouldn't know if a % was literal or a wildcard.
func likePattern(pattern string) string {
	var regexPattern strings.Builder
	regexPattern.WriteString("^")
	chars := []rune(pattern)
	for i := 0; i < len(chars); i++ {
		c := chars[i]
		if c == '\\' {
			if i+1 < len(chars) {
				next := chars[i+1]
				if next == '%' || next == '_' {
					regexPattern.WriteString(regexp.QuoteMeta(string(next)))
					i++
					continue
				}
			}
			regexPattern.WriteString(regexp.QuoteMeta(string(c)))
		} else if c == '%' {
			regexPattern.WriteString("(?s:.*)")
		} else if c == '_' {
			regexPattern.WriteString("(?s:.)")
		} else {
			regexPattern.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	regexPattern.WriteString("$")
	return regexPattern.String()
}

func (e *LikeExpression) Eval(t storage.Tuple, env Env) (common.Value, error) {
	val, patternVal, done, err := evalOperands(e.left, e.right, t, env, common.IntType)
	if done {
		return val, err
	}
	if val.Type() != common.StringType || patternVal.Type() != common.StringType {
		return common.Value{}, evalError("LIKE requires string operands in %s", e.String())
	}

	re, err := CompileLike(patternVal.StringValue(), false)
	if err != nil {
		return common.Value{}, err
	}
	return common.NewBoolValue(re.MatchString(val.StringValue())), nil
}

// CompileLike compiles a SQL LIKE pattern into an anchored regular expression. The
// result matches in time linear in the input whatever the number of wildcards.
func CompileLike(pattern string, foldCase bool) (*regexp.Regexp, error) {
	expr := likePattern(pattern)
	if foldCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, evalError("invalid LIKE pattern %q: %v", pattern, err)
	}
	return re, nil
}

func (e *LikeExpression) OutputType() common.Type {
	return common.IntType
}

func (e *LikeExpression) String() string {
	return fmt.Sprintf("(%s LIKE %s)", e.left.String(), e.right.String())
}

func (e *LikeExpression) Children() []Expr {
	return []Expr{e.left, e.right}
}

func (e *LikeExpression) WithChildren(children []Expr) Expr {
	return NewLikeExpression(children[0], children[1])
}

// TransformExpr rebuilds e bottom-up, replacing every node for which fn returns a
// non-nil expression.
func TransformExpr(e Expr, fn func(Expr) Expr) Expr {
	children := e.Children()
	if len(children) > 0 {
		newChildren := make([]Expr, len(children))
		changed := false
		for i, child := range children {
			newChildren[i] = TransformExpr(child, fn)
			changed = changed || newChildren[i] != child
		}
		if changed {
			e = e.WithChildren(newChildren)
		}
	}
	if replaced := fn(e); replaced != nil {
		return replaced
	}
	return e
}

// ShiftColumns returns e with every column reference moved by delta.
func ShiftColumns(e Expr, delta int) Expr {
	if delta == 0 {
		return e
	}
	return TransformExpr(e, func(n Expr) Expr {
		if col, ok := n.(*ColumnValueExpr); ok {
			return NewColumnRef(col.fieldOffset+delta, col.outputType, col.name)
		}
		return nil
	})
}

// ReferencedColumns returns the set of input columns e reads.
func ReferencedColumns(e Expr) ColumnSet {
	var cols []int
	var walk func(Expr)
	walk = func(n Expr) {
		if col, ok := n.(*ColumnValueExpr); ok {
			cols = append(cols, col.fieldOffset)
		}
		for _, child := range n.Children() {
			walk(child)
		}
	}
	walk(e)
	return NewColumnSet(cols...)
}

// Conjuncts splits e on top-level ANDs.
func Conjuncts(e Expr) []Expr {
	if logic, ok := e.(*BinaryLogicExpression); ok && logic.logicType == And {
		return append(Conjuncts(logic.left), Conjuncts(logic.right)...)
	}
	return []Expr{e}
}

// CombineConjuncts joins predicates with AND; an empty list yields TRUE.
func CombineConjuncts(preds []Expr) Expr {
	if len(preds) == 0 {
		return NewConstantValueExpression(common.NewIntValue(1))
	}
	result := preds[0]
	for _, p := range preds[1:] {
		result = NewBinaryLogicExpression(result, p, And)
	}
	return result
}

// CombineDisjuncts joins predicates with OR; an empty list yields FALSE.
func CombineDisjuncts(preds []Expr) Expr {
	if len(preds) == 0 {
		return NewConstantValueExpression(common.NewIntValue(0))
	}
	result := preds[0]
	for _, p := range preds[1:] {
		result = NewBinaryLogicExpression(result, p, Or)
	}
	return result
}
