package planner

import (
	"fmt"
)

// LimitPayload skips Offset rows, then passes at most Limit rows. A negative Limit means
// no upper bound.
type LimitPayload struct {
	Offset int64
	Limit  int64
}

func (p *LimitPayload) kindAccepted(kind OpKind) bool {
	return kind == OpLimit
}

func (p *LimitPayload) validate(kind OpKind, _ []*PlanNode) error {
	if p.Offset < 0 {
		return planError("%s offset must not be negative, got %d", kind, p.Offset)
	}
	return nil
}

func (p *LimitPayload) columns(_ OpKind, inputs []*PlanNode) []Column {
	return inputs[0].Columns()
}

func (p *LimitPayload) attributes() []string {
	attrs := []string{}
	if p.Offset > 0 {
		attrs = append(attrs, fmt.Sprintf("offset=[%d]", p.Offset))
	}
	if p.Limit >= 0 {
		attrs = append(attrs, fmt.Sprintf("fetch=[%d]", p.Limit))
	}
	return attrs
}

func NewLimit(child *PlanNode, offset, limit int64) (*PlanNode, error) {
	return Create(OpLimit, []*PlanNode{child}, &LimitPayload{Offset: offset, Limit: limit})
}
