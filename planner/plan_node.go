package planner

import (
	"fmt"
	"strings"

	"mit.edu/dsg/sqlroute/common"
)

// OpKind tags the relational operator a PlanNode performs. The set is closed; executors
// pick an algorithm by switching on it.
type OpKind int

const (
	OpTableScan OpKind = iota
	OpValues
	OpFilter
	OpProject
	OpSort
	OpLimit
	OpAggregate
	OpNestedLoopJoin
	OpBatchNestedLoopJoin
	OpHashJoin
	OpInsert
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpTableScan:
		return "TableScan"
	case OpValues:
		return "Values"
	case OpFilter:
		return "Filter"
	case OpProject:
		return "Project"
	case OpSort:
		return "Sort"
	case OpLimit:
		return "Limit"
	case OpAggregate:
		return "Aggregate"
	case OpNestedLoopJoin:
		return "NestedLoopJoin"
	case OpBatchNestedLoopJoin:
		return "BatchNestedLoopJoin"
	case OpHashJoin:
		return "HashJoin"
	case OpInsert:
		return "Insert"
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	}
	return "Unknown"
}

// Arity returns the number of inputs a node of this kind takes.
func (k OpKind) Arity() int {
	switch k {
	case OpTableScan, OpValues:
		return 0
	case OpNestedLoopJoin, OpBatchNestedLoopJoin, OpHashJoin:
		return 2
	}
	return 1
}

// IsJoin reports whether the kind is one of the join operators.
func (k OpKind) IsJoin() bool {
	return k == OpNestedLoopJoin || k == OpBatchNestedLoopJoin || k == OpHashJoin
}

// Column describes one output column of a node.
type Column struct {
	// Table is the alias or table name the column is qualified with, if any.
	Table string
	Name  string
	Type  common.Type
}

func (c Column) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Payload carries the per-kind attributes of a node. The implementations in this package
// are the only payloads; each is immutable once attached to a node.
type Payload interface {
	// kindAccepted reports whether the payload can be attached to a node of this kind.
	kindAccepted(kind OpKind) bool
	// validate checks the payload against the node's inputs.
	validate(kind OpKind, inputs []*PlanNode) error
	// columns derives the node's output columns.
	columns(kind OpKind, inputs []*PlanNode) []Column
	// attributes renders the payload for Explain.
	attributes() []string
}

// PlanNode is a node of a physical query plan.
//
// A PlanNode is immutable: it owns its inputs, and every rewrite goes through CopyWith or
// ReplaceInputs, which build a new node. Nodes may therefore be shared freely between
// plans, sessions and goroutines (e.g., through the plan cache).
type PlanNode struct {
	kind     OpKind
	inputs   []*PlanNode
	traits   TraitSet
	required ColumnSet
	columns  []Column
	payload  Payload
}

func planError(format string, args ...any) error {
	return common.NewError(common.PlanConstructionError, format, args...)
}

// Create builds a node of the given kind over inputs. It checks the arity and the
// payload, derives the output columns and the collation, and targets the enumerable
// convention. All columns of the output are required.
func Create(kind OpKind, inputs []*PlanNode, payload Payload) (*PlanNode, error) {
	return build(kind, inputs, payload, nil, nil)
}

// build is Create with an explicit required-column set and, optionally, explicit traits.
func build(kind OpKind, inputs []*PlanNode, payload Payload, required *ColumnSet, traits *TraitSet) (*PlanNode, error) {
	if len(inputs) != kind.Arity() {
		return nil, planError("%s takes %d input(s), got %d", kind, kind.Arity(), len(inputs))
	}
	for i, input := range inputs {
		if input == nil {
			return nil, planError("%s input %d is nil", kind, i)
		}
	}
	if payload == nil {
		return nil, planError("%s requires a payload", kind)
	}
	if !payload.kindAccepted(kind) {
		return nil, planError("payload %T cannot be attached to %s", payload, kind)
	}
	if err := payload.validate(kind, inputs); err != nil {
		return nil, err
	}

	n := &PlanNode{
		kind:    kind,
		inputs:  append([]*PlanNode(nil), inputs...),
		payload: payload,
	}
	n.columns = payload.columns(kind, n.inputs)
	if required != nil {
		for _, c := range required.Slice() {
			if c >= len(n.columns) {
				return nil, planError("%s: required column %d out of range (%d columns)", kind, c, len(n.columns))
			}
		}
		n.required = *required
	} else {
		n.required = ColumnRange(len(n.columns))
	}
	if traits != nil {
		n.traits = TraitSet{Convention: traits.Convention, Collation: traits.Collation.clone()}
	} else {
		n.traits = TraitSet{
			Convention: ConventionEnumerable,
			Collation:  deriveCollation(kind, n.inputs, payload).clone(),
		}
	}
	return n, nil
}

// CopyWith returns a copy of n with the given traits and inputs. The kind, payload,
// required columns and correlation variables are carried over unchanged. n itself is
// never modified.
func CopyWith(n *PlanNode, traits TraitSet, inputs []*PlanNode) (*PlanNode, error) {
	required := n.required
	return build(n.kind, inputs, n.payload, &required, &traits)
}

// ReplaceInputs returns a copy of n over new inputs. The collation is derived again from
// the new inputs; the convention, payload and required columns are carried over.
func ReplaceInputs(n *PlanNode, inputs []*PlanNode) (*PlanNode, error) {
	if len(inputs) != n.kind.Arity() {
		return nil, planError("%s takes %d input(s), got %d", n.kind, n.kind.Arity(), len(inputs))
	}
	for i, input := range inputs {
		if input == nil {
			return nil, planError("%s input %d is nil", n.kind, i)
		}
	}
	required := n.required
	traits := TraitSet{
		Convention: n.traits.Convention,
		Collation:  deriveCollation(n.kind, inputs, n.payload),
	}
	return build(n.kind, inputs, n.payload, &required, &traits)
}

// deriveCollation computes the order a node's output is guaranteed to have.
func deriveCollation(kind OpKind, inputs []*PlanNode, payload Payload) Collation {
	switch kind {
	case OpTableScan:
		scan := payload.(*ScanPayload)
		var c Collation
		for _, col := range scan.Table.PrimaryKey {
			c = append(c, FieldCollation{Field: col, Direction: Ascending})
		}
		return c
	case OpFilter, OpLimit:
		return inputs[0].traits.Collation
	case OpProject:
		return projectCollation(inputs[0].traits.Collation, payload.(*ProjectPayload).Exprs)
	case OpSort:
		return payload.(*SortPayload).collation()
	case OpBatchNestedLoopJoin:
		// The outer side drives the output for every join kind.
		return inputs[0].traits.Collation
	case OpNestedLoopJoin:
		if payload.(*JoinPayload).Kind == JoinRight {
			return nil
		}
		return inputs[0].traits.Collation
	case OpHashJoin:
		// Build on the left, look up with the right: output follows the right side.
		switch payload.(*JoinPayload).Kind {
		case JoinInner, JoinRight:
			return inputs[1].traits.Collation.Shift(len(inputs[0].columns))
		}
		return nil
	}
	return nil
}

// projectCollation maps the input collation through plain column projections. It stops
// at the first input field that is not projected as is.
func projectCollation(input Collation, exprs []Expr) Collation {
	var out Collation
	for _, fc := range input {
		mapped := -1
		for i, e := range exprs {
			if col, ok := e.(*ColumnValueExpr); ok && col.fieldOffset == fc.Field {
				mapped = i
				break
			}
		}
		if mapped < 0 {
			break
		}
		out = append(out, FieldCollation{Field: mapped, Direction: fc.Direction})
	}
	return out
}

// Kind returns the operator kind.
func (n *PlanNode) Kind() OpKind {
	return n.kind
}

// Inputs returns the node's inputs.
func (n *PlanNode) Inputs() []*PlanNode {
	return append([]*PlanNode(nil), n.inputs...)
}

// Input returns input i.
func (n *PlanNode) Input(i int) *PlanNode {
	return n.inputs[i]
}

// Traits returns a copy of the node's traits.
func (n *PlanNode) Traits() TraitSet {
	return TraitSet{Convention: n.traits.Convention, Collation: n.traits.Collation.clone()}
}

func (n *PlanNode) Convention() Convention {
	return n.traits.Convention
}

func (n *PlanNode) Collation() Collation {
	return n.traits.Collation.clone()
}

// RequiredColumns returns the output columns consumers of this node read. Other columns
// may be left NULL by the executor.
func (n *PlanNode) RequiredColumns() ColumnSet {
	return n.required
}

// Columns returns the output columns.
func (n *PlanNode) Columns() []Column {
	return append([]Column(nil), n.columns...)
}

// Width returns the number of output columns.
func (n *PlanNode) Width() int {
	return len(n.columns)
}

// OutputSchema returns the types of the output columns.
func (n *PlanNode) OutputSchema() []common.Type {
	types := make([]common.Type, len(n.columns))
	for i, c := range n.columns {
		types[i] = c.Type
	}
	return types
}

// Payload returns the per-kind attributes.
func (n *PlanNode) Payload() Payload {
	return n.payload
}

// Variables returns the correlation variables a join binds for its inner input.
func (n *PlanNode) Variables() []CorrelationID {
	if j, ok := n.payload.(*JoinPayload); ok {
		return append([]CorrelationID(nil), j.Variables...)
	}
	return nil
}

func (n *PlanNode) String() string {
	attrs := n.payload.attributes()
	return fmt.Sprintf("%s(%s)", n.kind, strings.Join(attrs, ", "))
}

// PayloadOf returns the payload of n as T. It panics if n does not carry a T.
func PayloadOf[T Payload](n *PlanNode) T {
	p, ok := n.payload.(T)
	common.Assert(ok, "%s does not carry a %T payload", n.kind, p)
	return p
}

// checkRefs verifies that every column e reads exists in an input of the given width.
func checkRefs(kind OpKind, what string, e Expr, width int) error {
	if e == nil {
		return planError("%s requires %s", kind, what)
	}
	for _, c := range ReferencedColumns(e).Slice() {
		if c >= width {
			return planError("%s: %s %s references column %d of %d", kind, what, e, c, width)
		}
	}
	return nil
}

func concatColumns(left, right []Column) []Column {
	out := make([]Column, 0, len(left)+len(right))
	out = append(out, left...)
	return append(out, right...)
}
