package execution

import (
	"container/heap"
	"math"
	"sort"

	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// TopNExecutor implements a Limit directly over a Sort. It uses a heap to keep only the
// first Offset+Limit rows of the ordering instead of sorting the whole input.
type TopNExecutor struct {
	plan    *planner.PlanNode
	orderBy []planner.OrderByClause
	limits  *planner.LimitPayload
	child   Executor

	sortedRows   []sortedRow
	computed     bool
	currentIndex int
	ctx          *ExecutorContext
	err          error
}

// NewTopNExecutor creates a TopNExecutor for the limit node plan over sortNode; child
// produces the input of sortNode.
func NewTopNExecutor(plan, sortNode *planner.PlanNode, child Executor) *TopNExecutor {
	return &TopNExecutor{
		plan:    plan,
		orderBy: planner.PayloadOf[*planner.SortPayload](sortNode).OrderBy,
		limits:  planner.PayloadOf[*planner.LimitPayload](plan),
		child:   child,
	}
}

func (e *TopNExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *TopNExecutor) Init(ctx *ExecutorContext) error {
	e.sortedRows = nil
	e.computed = false
	e.currentIndex = -1
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

// heapRow is a sortedRow with its input position, which breaks ties so the result
// matches a stable sort.
type heapRow struct {
	sortedRow
	seq int
}

// rowHeap implements heap.Interface.
type rowHeap struct {
	rows    []heapRow
	orderBy []planner.OrderByClause
}

func (h *rowHeap) Len() int { return len(h.rows) }

func (h *rowHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }

func (h *rowHeap) before(i, j int) bool {
	if cmp := compareSortKeys(h.rows[i].keys, h.rows[j].keys, h.orderBy); cmp != 0 {
		return cmp < 0
	}
	return h.rows[i].seq < h.rows[j].seq
}

// Heap logic is backwards from normal -- to keep the first rows, the root is the last one.
func (h *rowHeap) Less(i, j int) bool { return h.before(j, i) }

func (h *rowHeap) Push(x any) {
	h.rows = append(h.rows, x.(heapRow))
}

func (h *rowHeap) Pop() any {
	n := len(h.rows)
	x := h.rows[n-1]
	h.rows = h.rows[:n-1]
	return x
}

func (e *TopNExecutor) computeTopN() error {
	keep := e.limits.Offset + e.limits.Limit
	if keep < 0 {
		keep = math.MaxInt64
	}
	h := &rowHeap{orderBy: e.orderBy}
	for seq := 0; e.child.Next(); seq++ {
		if keep == 0 {
			continue
		}
		t := e.child.Current()
		keys, err := evalSortKeys(t, e.orderBy, e.ctx)
		if err != nil {
			return err
		}
		heap.Push(h, heapRow{sortedRow: sortedRow{tuple: t, keys: keys}, seq: seq})
		if int64(h.Len()) > keep {
			heap.Pop(h)
		}
	}
	if err := e.child.Error(); err != nil {
		return err
	}

	// The heap is in tree order; sort it into the output order.
	sort.Slice(h.rows, func(i, j int) bool { return h.before(i, j) })
	e.sortedRows = nil
	for i := e.limits.Offset; i < int64(len(h.rows)); i++ {
		e.sortedRows = append(e.sortedRows, h.rows[i].sortedRow)
	}
	return nil
}

func (e *TopNExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.computed {
		e.computed = true
		if e.err = e.computeTopN(); e.err != nil {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.sortedRows)
}

func (e *TopNExecutor) Current() storage.Tuple {
	return e.sortedRows[e.currentIndex].tuple
}

func (e *TopNExecutor) Error() error {
	return e.err
}

func (e *TopNExecutor) Close() error {
	e.sortedRows = nil
	return e.child.Close()
}
