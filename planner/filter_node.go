package planner

import (
	"fmt"
)

// FilterPayload keeps the input rows for which Predicate is true.
type FilterPayload struct {
	Predicate Expr
}

func (p *FilterPayload) kindAccepted(kind OpKind) bool {
	return kind == OpFilter
}

func (p *FilterPayload) validate(kind OpKind, inputs []*PlanNode) error {
	return checkRefs(kind, "a predicate", p.Predicate, inputs[0].Width())
}

func (p *FilterPayload) columns(_ OpKind, inputs []*PlanNode) []Column {
	return inputs[0].Columns()
}

func (p *FilterPayload) attributes() []string {
	return []string{fmt.Sprintf("condition=[%s]", p.Predicate)}
}

func NewFilter(child *PlanNode, predicate Expr) (*PlanNode, error) {
	return Create(OpFilter, []*PlanNode{child}, &FilterPayload{Predicate: predicate})
}
