package planner

import (
	"fmt"
	"strings"
)

// ProjectPayload computes one output column per expression.
type ProjectPayload struct {
	Exprs []Expr
	Names []string
}

func (p *ProjectPayload) kindAccepted(kind OpKind) bool {
	return kind == OpProject
}

func (p *ProjectPayload) validate(kind OpKind, inputs []*PlanNode) error {
	if len(p.Names) != len(p.Exprs) {
		return planError("%s has %d expressions but %d names", kind, len(p.Exprs), len(p.Names))
	}
	for _, e := range p.Exprs {
		if err := checkRefs(kind, "an expression", e, inputs[0].Width()); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProjectPayload) columns(_ OpKind, inputs []*PlanNode) []Column {
	in := inputs[0].Columns()
	out := make([]Column, len(p.Exprs))
	for i, e := range p.Exprs {
		out[i] = Column{Name: p.Names[i], Type: e.OutputType()}
		// A column passed through keeps its qualifier.
		if col, ok := e.(*ColumnValueExpr); ok {
			out[i].Table = in[col.fieldOffset].Table
		}
	}
	return out
}

func (p *ProjectPayload) attributes() []string {
	parts := make([]string, len(p.Exprs))
	for i, e := range p.Exprs {
		if e.String() == p.Names[i] {
			parts[i] = e.String()
		} else {
			parts[i] = fmt.Sprintf("%s=[%s]", p.Names[i], e)
		}
	}
	return []string{"exprs=[" + strings.Join(parts, ", ") + "]"}
}

// NewProject projects exprs over child. A nil names slice names each column after its
// expression.
func NewProject(child *PlanNode, exprs []Expr, names []string) (*PlanNode, error) {
	if names == nil {
		names = make([]string, len(exprs))
		for i, e := range exprs {
			names[i] = e.String()
		}
	}
	return Create(OpProject, []*PlanNode{child}, &ProjectPayload{
		Exprs: append([]Expr(nil), exprs...),
		Names: append([]string(nil), names...),
	})
}
