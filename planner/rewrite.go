package planner

// Transform rebuilds the tree bottom-up. fn sees every node after its inputs have been
// transformed and returns a replacement, or nil to keep the node. Unchanged subtrees are
// shared with the original tree, which is never modified.
func Transform(n *PlanNode, fn func(*PlanNode) (*PlanNode, error)) (*PlanNode, error) {
	changed := false
	inputs := make([]*PlanNode, len(n.inputs))
	for i, input := range n.inputs {
		newInput, err := Transform(input, fn)
		if err != nil {
			return nil, err
		}
		inputs[i] = newInput
		changed = changed || newInput != input
	}
	if changed {
		var err error
		if n, err = ReplaceInputs(n, inputs); err != nil {
			return nil, err
		}
	}
	replaced, err := fn(n)
	if err != nil {
		return nil, err
	}
	if replaced != nil {
		return replaced, nil
	}
	return n, nil
}

// Walk visits every node of the tree, parents before inputs.
func Walk(n *PlanNode, fn func(*PlanNode)) {
	fn(n)
	for _, input := range n.inputs {
		Walk(input, fn)
	}
}

// ReplaceConvention stamps conv on every node of the tree.
func ReplaceConvention(n *PlanNode, conv Convention) (*PlanNode, error) {
	return Transform(n, func(node *PlanNode) (*PlanNode, error) {
		if node.traits.Convention == conv {
			return nil, nil
		}
		return CopyWith(node, TraitSet{Convention: conv, Collation: node.traits.Collation}, node.inputs)
	})
}

// maxCorrelationID returns the largest correlation variable bound in the tree, or -1.
func maxCorrelationID(n *PlanNode) CorrelationID {
	highest := CorrelationID(-1)
	Walk(n, func(node *PlanNode) {
		for _, v := range node.Variables() {
			if v > highest {
				highest = v
			}
		}
	})
	return highest
}

// EquiKeys extracts the equality conjuncts of a join condition whose sides each read only
// one input. Left keys are over the left columns, right keys over the right columns.
func EquiKeys(condition Expr, leftWidth int) (leftKeys, rightKeys []Expr) {
	for _, conj := range Conjuncts(condition) {
		cmp, ok := conj.(*ComparisonExpression)
		if !ok || cmp.compType != Equal {
			continue
		}
		a, b := cmp.left, cmp.right
		sideA, sideB := inputSide(a, leftWidth), inputSide(b, leftWidth)
		switch {
		case sideA == sideLeft && sideB == sideRight:
		case sideA == sideRight && sideB == sideLeft:
			a, b = b, a
		default:
			continue
		}
		leftKeys = append(leftKeys, a)
		rightKeys = append(rightKeys, ShiftColumns(b, -leftWidth))
	}
	return leftKeys, rightKeys
}

type side int

const (
	sideNone side = iota
	sideLeft
	sideRight
	sideBoth
)

func inputSide(e Expr, leftWidth int) side {
	s := sideNone
	for _, c := range ReferencedColumns(e).Slice() {
		cur := sideLeft
		if c >= leftWidth {
			cur = sideRight
		}
		if s == sideNone {
			s = cur
		} else if s != cur {
			return sideBoth
		}
	}
	return s
}

// BatchJoins turns every nested-loop join that can run batched (any kind but RIGHT, no
// correlation variables yet) into a batch nested-loop join over batchSize outer rows.
//
// For equi-joins the right input is wrapped in a filter that only lets through rows
// matching some row of the current batch:
//
//	($cor0.(l) = r) OR ($cor1.(l) = r) OR ...
//
// The join condition itself is kept, so the filter only reduces the inner rows.
func BatchJoins(root *PlanNode, batchSize int) (*PlanNode, error) {
	if batchSize <= 0 {
		return root, nil
	}
	next := maxCorrelationID(root) + 1
	return Transform(root, func(n *PlanNode) (*PlanNode, error) {
		if !batchable(n) {
			return nil, nil
		}
		batched, err := batchJoin(n, batchSize, next)
		next += CorrelationID(batchSize)
		return batched, err
	})
}

// BatchJoin rewrites the single nested-loop join n as BatchJoins would. Its variables
// are numbered after every variable already bound below n.
func BatchJoin(n *PlanNode, batchSize int) (*PlanNode, error) {
	if batchSize <= 0 || !batchable(n) {
		return nil, planError("%s cannot run as a batch nested-loop join", n.kind)
	}
	return batchJoin(n, batchSize, maxCorrelationID(n)+1)
}

func batchable(n *PlanNode) bool {
	if n.kind != OpNestedLoopJoin {
		return false
	}
	join := n.payload.(*JoinPayload)
	return join.Kind != JoinRight && len(join.Variables) == 0
}

func batchJoin(n *PlanNode, batchSize int, first CorrelationID) (*PlanNode, error) {
	join := n.payload.(*JoinPayload)
	left, right := n.inputs[0], n.inputs[1]

	vars := make([]CorrelationID, batchSize)
	for i := range vars {
		vars[i] = first + CorrelationID(i)
	}

	leftKeys, rightKeys := EquiKeys(join.Condition, left.Width())
	if len(leftKeys) > 0 {
		disjuncts := make([]Expr, len(vars))
		for i, v := range vars {
			conj := make([]Expr, len(leftKeys))
			for k := range leftKeys {
				conj[k] = NewComparisonExpression(NewCorrelVariableExpression(v, leftKeys[k]), rightKeys[k], Equal)
			}
			disjuncts[i] = CombineConjuncts(conj)
		}
		filtered, err := NewFilter(right, CombineDisjuncts(disjuncts))
		if err != nil {
			return nil, err
		}
		right = filtered
	}
	return NewBatchNestedLoopJoin(left, right, join.Condition, n.required, vars, join.Kind)
}

// HashJoins turns inner and right nested-loop equi-joins into hash joins.
func HashJoins(root *PlanNode) (*PlanNode, error) {
	return Transform(root, func(n *PlanNode) (*PlanNode, error) {
		if !hashable(n) {
			return nil, nil
		}
		return hashJoin(n)
	})
}

// HashJoin rewrites the single nested-loop join n as HashJoins would.
func HashJoin(n *PlanNode) (*PlanNode, error) {
	if !hashable(n) {
		return nil, planError("%s cannot run as a hash join", n.kind)
	}
	return hashJoin(n)
}

func hashable(n *PlanNode) bool {
	if n.kind != OpNestedLoopJoin {
		return false
	}
	join := n.payload.(*JoinPayload)
	if join.Kind != JoinInner && join.Kind != JoinRight {
		return false
	}
	leftKeys, _ := EquiKeys(join.Condition, n.inputs[0].Width())
	return len(leftKeys) > 0
}

func hashJoin(n *PlanNode) (*PlanNode, error) {
	join := n.payload.(*JoinPayload)
	leftKeys, rightKeys := EquiKeys(join.Condition, n.inputs[0].Width())
	return NewHashJoin(n.inputs[0], n.inputs[1], join.Condition, leftKeys, rightKeys, join.Kind)
}
