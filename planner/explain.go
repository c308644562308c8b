package planner

import (
	"fmt"
	"strings"
)

// Explain renders the plan tree, one node per line, inputs indented under their parent.
// It only reads the tree; nothing is executed.
func Explain(n *PlanNode) []string {
	var lines []string
	explainInto(n, 0, &lines)
	return lines
}

// ExplainString is Explain joined with newlines.
func ExplainString(n *PlanNode) string {
	return strings.Join(Explain(n), "\n")
}

func explainInto(n *PlanNode, depth int, lines *[]string) {
	attrs := n.payload.attributes()
	if !n.required.Equal(ColumnRange(len(n.columns))) {
		attrs = append(attrs, fmt.Sprintf("required=[%s]", n.required))
	}
	if len(n.traits.Collation) > 0 {
		attrs = append(attrs, fmt.Sprintf("collation=%s", n.traits.Collation))
	}
	if n.traits.Convention != ConventionEnumerable {
		attrs = append(attrs, fmt.Sprintf("convention=[%s]", n.traits.Convention))
	}
	*lines = append(*lines, fmt.Sprintf("%s%s(%s)", strings.Repeat("  ", depth), n.kind, strings.Join(attrs, ", ")))
	for _, input := range n.inputs {
		explainInto(input, depth+1, lines)
	}
}
