package planner

import (
	"fmt"
	"strings"

	"mit.edu/dsg/sqlroute/common"
)

type AggregatorType int

const (
	AggCount AggregatorType = iota
	AggSum
	AggMin
	AggMax
)

func (a AggregatorType) String() string {
	switch a {
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	}
	return "???"
}

// AggregateClause computes one aggregate. A COUNT with a nil Expr counts rows.
type AggregateClause struct {
	Type AggregatorType
	Expr Expr
	Name string
}

func (c AggregateClause) String() string {
	arg := "*"
	if c.Expr != nil {
		arg = c.Expr.String()
	}
	return fmt.Sprintf("%s(%s)", c.Type, arg)
}

// OutputType returns the type of the aggregate's result.
func (c AggregateClause) OutputType() common.Type {
	switch c.Type {
	case AggCount, AggSum:
		return common.IntType
	}
	return c.Expr.OutputType()
}

// AggregatePayload groups the input on GroupBy and computes Aggregates per group. The
// output is the group values followed by the aggregate values.
type AggregatePayload struct {
	GroupBy    []Expr
	GroupNames []string
	Aggregates []AggregateClause
}

func (p *AggregatePayload) kindAccepted(kind OpKind) bool {
	return kind == OpAggregate
}

func (p *AggregatePayload) validate(kind OpKind, inputs []*PlanNode) error {
	if len(p.GroupNames) != len(p.GroupBy) {
		return planError("%s has %d group keys but %d names", kind, len(p.GroupBy), len(p.GroupNames))
	}
	width := inputs[0].Width()
	for _, e := range p.GroupBy {
		if err := checkRefs(kind, "a group key", e, width); err != nil {
			return err
		}
	}
	for _, agg := range p.Aggregates {
		if agg.Expr == nil {
			if agg.Type != AggCount {
				return planError("%s: %s requires an argument", kind, agg.Type)
			}
			continue
		}
		if err := checkRefs(kind, "an aggregate argument", agg.Expr, width); err != nil {
			return err
		}
		if agg.Type == AggSum && agg.Expr.OutputType() != common.IntType {
			return planError("%s: SUM over non-numeric %s", kind, agg.Expr)
		}
	}
	return nil
}

func (p *AggregatePayload) columns(OpKind, []*PlanNode) []Column {
	cols := make([]Column, 0, len(p.GroupBy)+len(p.Aggregates))
	for i, e := range p.GroupBy {
		cols = append(cols, Column{Name: p.GroupNames[i], Type: e.OutputType()})
	}
	for _, agg := range p.Aggregates {
		name := agg.Name
		if name == "" {
			name = agg.String()
		}
		cols = append(cols, Column{Name: name, Type: agg.OutputType()})
	}
	return cols
}

func (p *AggregatePayload) attributes() []string {
	groups := make([]string, len(p.GroupBy))
	for i, e := range p.GroupBy {
		groups[i] = e.String()
	}
	aggs := make([]string, len(p.Aggregates))
	for i, a := range p.Aggregates {
		aggs[i] = a.String()
	}
	return []string{
		"group=[" + strings.Join(groups, ", ") + "]",
		"aggs=[" + strings.Join(aggs, ", ") + "]",
	}
}

func NewAggregate(child *PlanNode, groupBy []Expr, groupNames []string, aggregates []AggregateClause) (*PlanNode, error) {
	if groupNames == nil {
		groupNames = make([]string, len(groupBy))
		for i, e := range groupBy {
			groupNames[i] = e.String()
		}
	}
	return Create(OpAggregate, []*PlanNode{child}, &AggregatePayload{
		GroupBy:    append([]Expr(nil), groupBy...),
		GroupNames: append([]string(nil), groupNames...),
		Aggregates: append([]AggregateClause(nil), aggregates...),
	})
}
