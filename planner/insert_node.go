package planner

import (
	"fmt"

	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
)

// dmlColumns is the output of every DML node: one row holding the affected-row count.
var dmlColumns = []Column{{Name: "rows", Type: common.IntType}}

// InsertPayload writes every input row into Table. The input must produce one column per
// table column, in table order. With Replace, a row whose primary key already exists
// replaces the stored row instead of failing.
type InsertPayload struct {
	Table   *catalog.Table
	Replace bool
}

func (p *InsertPayload) kindAccepted(kind OpKind) bool {
	return kind == OpInsert
}

func (p *InsertPayload) validate(kind OpKind, inputs []*PlanNode) error {
	if p.Table == nil {
		return planError("%s requires a table", kind)
	}
	if inputs[0].Width() != len(p.Table.Columns) {
		return planError("%s into %s: input has %d columns, table has %d", kind, p.Table.QualifiedName(), inputs[0].Width(), len(p.Table.Columns))
	}
	return nil
}

func (p *InsertPayload) columns(OpKind, []*PlanNode) []Column {
	return dmlColumns
}

func (p *InsertPayload) attributes() []string {
	attrs := []string{fmt.Sprintf("table=[%s]", p.Table.QualifiedName())}
	if p.Replace {
		attrs = append(attrs, "replace=[true]")
	}
	return attrs
}

func NewInsert(child *PlanNode, table *catalog.Table, replace bool) (*PlanNode, error) {
	return Create(OpInsert, []*PlanNode{child}, &InsertPayload{Table: table, Replace: replace})
}
