package planner

import (
	"fmt"
	"strings"
)

type OrderByClause struct {
	Expr      Expr
	Direction Direction
}

// SortPayload sorts the input rows. NULLs sort first in ascending order.
type SortPayload struct {
	OrderBy []OrderByClause
}

func (p *SortPayload) kindAccepted(kind OpKind) bool {
	return kind == OpSort
}

func (p *SortPayload) validate(kind OpKind, inputs []*PlanNode) error {
	if len(p.OrderBy) == 0 {
		return planError("%s requires at least one order key", kind)
	}
	for _, o := range p.OrderBy {
		if err := checkRefs(kind, "an order key", o.Expr, inputs[0].Width()); err != nil {
			return err
		}
	}
	return nil
}

func (p *SortPayload) columns(_ OpKind, inputs []*PlanNode) []Column {
	return inputs[0].Columns()
}

// collation is the prefix of the order keys that are plain column references.
func (p *SortPayload) collation() Collation {
	var c Collation
	for _, o := range p.OrderBy {
		col, ok := o.Expr.(*ColumnValueExpr)
		if !ok {
			break
		}
		c = append(c, FieldCollation{Field: col.fieldOffset, Direction: o.Direction})
	}
	return c
}

func (p *SortPayload) attributes() []string {
	parts := make([]string, len(p.OrderBy))
	for i, o := range p.OrderBy {
		parts[i] = fmt.Sprintf("%s %s", o.Expr, o.Direction)
	}
	return []string{"order=[" + strings.Join(parts, ", ") + "]"}
}

func NewSort(child *PlanNode, orderBy []OrderByClause) (*PlanNode, error) {
	return Create(OpSort, []*PlanNode{child}, &SortPayload{OrderBy: append([]OrderByClause(nil), orderBy...)})
}
