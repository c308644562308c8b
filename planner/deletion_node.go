package planner

import (
	"fmt"

	"mit.edu/dsg/sqlroute/catalog"
)

// DeletePayload removes every input row from Table. The input must produce stored rows
// of Table.
type DeletePayload struct {
	Table *catalog.Table
}

func (p *DeletePayload) kindAccepted(kind OpKind) bool {
	return kind == OpDelete
}

func (p *DeletePayload) validate(kind OpKind, inputs []*PlanNode) error {
	if p.Table == nil {
		return planError("%s requires a table", kind)
	}
	if inputs[0].Width() != len(p.Table.Columns) {
		return planError("%s from %s: input has %d columns, table has %d", kind, p.Table.QualifiedName(), inputs[0].Width(), len(p.Table.Columns))
	}
	return nil
}

func (p *DeletePayload) columns(OpKind, []*PlanNode) []Column {
	return dmlColumns
}

func (p *DeletePayload) attributes() []string {
	return []string{fmt.Sprintf("table=[%s]", p.Table.QualifiedName())}
}

func NewDelete(child *PlanNode, table *catalog.Table) (*PlanNode, error) {
	return Create(OpDelete, []*PlanNode{child}, &DeletePayload{Table: table})
}
