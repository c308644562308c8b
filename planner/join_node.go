package planner

import (
	"fmt"
	"strings"
)

type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	// JoinSemi emits each left row that has at least one match, once.
	JoinSemi
	// JoinAnti emits each left row that has no match.
	JoinAnti
)

func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	case JoinRight:
		return "right"
	case JoinSemi:
		return "semi"
	case JoinAnti:
		return "anti"
	}
	return "unknown"
}

// ProjectsRight reports whether the join's output includes the right input's columns.
func (k JoinKind) ProjectsRight() bool {
	return k != JoinSemi && k != JoinAnti
}

// JoinPayload is shared by the three join operators.
//
// Condition is evaluated over the left columns followed by the right columns. Variables
// are the correlation variables the join binds to outer rows while it evaluates its
// right input; a nested-loop join binds each of them to the current outer row, a batch
// nested-loop join binds variable i to the i-th row of the current batch. LeftKeys and
// RightKeys are the equi-join keys of a hash join, each over its own input.
type JoinPayload struct {
	Kind      JoinKind
	Condition Expr
	Variables []CorrelationID
	LeftKeys  []Expr
	RightKeys []Expr
}

func (p *JoinPayload) kindAccepted(kind OpKind) bool {
	return kind.IsJoin()
}

func (p *JoinPayload) validate(kind OpKind, inputs []*PlanNode) error {
	left, right := inputs[0].Width(), inputs[1].Width()
	if err := checkRefs(kind, "a join condition", p.Condition, left+right); err != nil {
		return err
	}
	seen := make(map[CorrelationID]bool)
	for _, v := range p.Variables {
		if seen[v] {
			return planError("%s: correlation variable %s bound twice", kind, v)
		}
		seen[v] = true
	}
	if kind == OpHashJoin {
		if len(p.LeftKeys) == 0 || len(p.LeftKeys) != len(p.RightKeys) {
			return planError("%s requires matching key lists, got %d and %d", kind, len(p.LeftKeys), len(p.RightKeys))
		}
		for i := range p.LeftKeys {
			if err := checkRefs(kind, "a left key", p.LeftKeys[i], left); err != nil {
				return err
			}
			if err := checkRefs(kind, "a right key", p.RightKeys[i], right); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *JoinPayload) columns(_ OpKind, inputs []*PlanNode) []Column {
	if !p.Kind.ProjectsRight() {
		return inputs[0].Columns()
	}
	return concatColumns(inputs[0].columns, inputs[1].columns)
}

func formatVariables(vars []CorrelationID) string {
	if len(vars) > 4 {
		return fmt.Sprintf("%s..%s (%d)", vars[0], vars[len(vars)-1], len(vars))
	}
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func (p *JoinPayload) attributes() []string {
	attrs := []string{
		fmt.Sprintf("condition=[%s]", p.Condition),
		fmt.Sprintf("joinType=[%s]", p.Kind),
	}
	if len(p.Variables) > 0 {
		attrs = append(attrs, fmt.Sprintf("variables=[%s]", formatVariables(p.Variables)))
	}
	if len(p.LeftKeys) > 0 {
		left := make([]string, len(p.LeftKeys))
		right := make([]string, len(p.RightKeys))
		for i := range p.LeftKeys {
			left[i] = p.LeftKeys[i].String()
			right[i] = p.RightKeys[i].String()
		}
		attrs = append(attrs, fmt.Sprintf("keys=[%s]=[%s]", strings.Join(left, ", "), strings.Join(right, ", ")))
	}
	return attrs
}

func newJoinPayload(kind JoinKind, condition Expr, vars []CorrelationID) *JoinPayload {
	return &JoinPayload{
		Kind:      kind,
		Condition: condition,
		Variables: append([]CorrelationID(nil), vars...),
	}
}

// NewNestedLoopJoin joins by evaluating the right input once per left row.
func NewNestedLoopJoin(left, right *PlanNode, condition Expr, kind JoinKind, vars []CorrelationID) (*PlanNode, error) {
	return Create(OpNestedLoopJoin, []*PlanNode{left, right}, newJoinPayload(kind, condition, vars))
}

// NewBatchNestedLoopJoin joins by evaluating the right input once per batch of
// len(vars) left rows. required lists the output columns consumers read.
func NewBatchNestedLoopJoin(left, right *PlanNode, condition Expr, required ColumnSet, vars []CorrelationID, kind JoinKind) (*PlanNode, error) {
	if left != nil && right != nil && required.Len() == 0 {
		width := left.Width()
		if kind.ProjectsRight() {
			width += right.Width()
		}
		required = ColumnRange(width)
	}
	return build(OpBatchNestedLoopJoin, []*PlanNode{left, right}, newJoinPayload(kind, condition, vars), &required, nil)
}

// NewHashJoin builds a hash table on the left input and looks up each right row in it.
// condition is applied to every key match.
func NewHashJoin(left, right *PlanNode, condition Expr, leftKeys, rightKeys []Expr, kind JoinKind) (*PlanNode, error) {
	payload := newJoinPayload(kind, condition, nil)
	payload.LeftKeys = append([]Expr(nil), leftKeys...)
	payload.RightKeys = append([]Expr(nil), rightKeys...)
	return Create(OpHashJoin, []*PlanNode{left, right}, payload)
}
