package planner

import (
	"fmt"
	"strings"

	"mit.edu/dsg/sqlroute/catalog"
)

// ScanPayload describes a full scan of a table, in primary key order.
type ScanPayload struct {
	Table *catalog.Table
	// Alias qualifies the output columns; it defaults to the table name.
	Alias string
}

func (p *ScanPayload) kindAccepted(kind OpKind) bool {
	return kind == OpTableScan
}

func (p *ScanPayload) validate(kind OpKind, _ []*PlanNode) error {
	if p.Table == nil {
		return planError("%s requires a table", kind)
	}
	return nil
}

func (p *ScanPayload) qualifier() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Table.Name
}

func (p *ScanPayload) columns(OpKind, []*PlanNode) []Column {
	cols := make([]Column, len(p.Table.Columns))
	for i, c := range p.Table.Columns {
		cols[i] = Column{Table: p.qualifier(), Name: c.Name, Type: c.Type}
	}
	return cols
}

func (p *ScanPayload) attributes() []string {
	attrs := []string{fmt.Sprintf("table=[%s]", p.Table.QualifiedName())}
	if p.Alias != "" && p.Alias != p.Table.Name {
		attrs = append(attrs, fmt.Sprintf("alias=[%s]", p.Alias))
	}
	return attrs
}

// NewTableScan scans table. Only the required columns are materialized; the others read
// as NULL. An empty required set means every column.
func NewTableScan(table *catalog.Table, alias string, required ColumnSet) (*PlanNode, error) {
	if table != nil && required.Len() == 0 {
		required = ColumnRange(len(table.Columns))
	}
	return build(OpTableScan, nil, &ScanPayload{Table: table, Alias: alias}, &required, nil)
}

// ValuesPayload is a literal relation. Row expressions are evaluated at execution time
// against an empty tuple.
type ValuesPayload struct {
	Columns []Column
	Rows    [][]Expr
}

func (p *ValuesPayload) kindAccepted(kind OpKind) bool {
	return kind == OpValues
}

func (p *ValuesPayload) validate(kind OpKind, _ []*PlanNode) error {
	for i, row := range p.Rows {
		if len(row) != len(p.Columns) {
			return planError("%s row %d has %d values, expected %d", kind, i, len(row), len(p.Columns))
		}
		for _, e := range row {
			if err := checkRefs(kind, "row value", e, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *ValuesPayload) columns(OpKind, []*PlanNode) []Column {
	return append([]Column(nil), p.Columns...)
}

func (p *ValuesPayload) attributes() []string {
	rows := make([]string, len(p.Rows))
	for i, row := range p.Rows {
		vals := make([]string, len(row))
		for j, e := range row {
			vals[j] = e.String()
		}
		rows[i] = "{ " + strings.Join(vals, ", ") + " }"
	}
	return []string{fmt.Sprintf("tuples=[%s]", strings.Join(rows, ", "))}
}

// NewValues builds a literal relation.
func NewValues(columns []Column, rows [][]Expr) (*PlanNode, error) {
	copied := make([][]Expr, len(rows))
	for i, row := range rows {
		copied[i] = append([]Expr(nil), row...)
	}
	return Create(OpValues, nil, &ValuesPayload{Columns: append([]Column(nil), columns...), Rows: copied})
}
