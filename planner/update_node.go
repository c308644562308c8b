package planner

import (
	"fmt"
	"strings"

	"mit.edu/dsg/sqlroute/catalog"
)

// Assignment sets table column Column to Expr, evaluated over the old row.
type Assignment struct {
	Column int
	Expr   Expr
}

// UpdatePayload rewrites every input row of Table. The input must produce stored rows of
// Table (a scan, possibly filtered).
type UpdatePayload struct {
	Table       *catalog.Table
	Assignments []Assignment
}

func (p *UpdatePayload) kindAccepted(kind OpKind) bool {
	return kind == OpUpdate
}

func (p *UpdatePayload) validate(kind OpKind, inputs []*PlanNode) error {
	if p.Table == nil {
		return planError("%s requires a table", kind)
	}
	width := len(p.Table.Columns)
	if inputs[0].Width() != width {
		return planError("%s of %s: input has %d columns, table has %d", kind, p.Table.QualifiedName(), inputs[0].Width(), width)
	}
	if len(p.Assignments) == 0 {
		return planError("%s requires at least one assignment", kind)
	}
	for _, a := range p.Assignments {
		if a.Column < 0 || a.Column >= width {
			return planError("%s: assignment to column %d of %d", kind, a.Column, width)
		}
		if err := checkRefs(kind, "an assignment", a.Expr, width); err != nil {
			return err
		}
	}
	return nil
}

func (p *UpdatePayload) columns(OpKind, []*PlanNode) []Column {
	return dmlColumns
}

func (p *UpdatePayload) attributes() []string {
	sets := make([]string, len(p.Assignments))
	for i, a := range p.Assignments {
		sets[i] = fmt.Sprintf("%s=%s", p.Table.Columns[a.Column].Name, a.Expr)
	}
	return []string{
		fmt.Sprintf("table=[%s]", p.Table.QualifiedName()),
		"set=[" + strings.Join(sets, ", ") + "]",
	}
}

func NewUpdate(child *PlanNode, table *catalog.Table, assignments []Assignment) (*PlanNode, error) {
	return Create(OpUpdate, []*PlanNode{child}, &UpdatePayload{Table: table, Assignments: append([]Assignment(nil), assignments...)})
}
