package planner

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
)

// JoinAlgorithm selects the physical operator planned for joins.
type JoinAlgorithm int

const (
	NestedLoopAlgorithm JoinAlgorithm = iota
	BatchNestedLoopAlgorithm
	HashAlgorithm
)

func (a JoinAlgorithm) String() string {
	switch a {
	case NestedLoopAlgorithm:
		return "nested_loop"
	case BatchNestedLoopAlgorithm:
		return "batch_nested_loop"
	case HashAlgorithm:
		return "hash"
	}
	return "unknown"
}

// ParseJoinAlgorithm parses the configuration name of a join algorithm.
func ParseJoinAlgorithm(name string) (JoinAlgorithm, error) {
	for _, a := range []JoinAlgorithm{NestedLoopAlgorithm, BatchNestedLoopAlgorithm, HashAlgorithm} {
		if strings.EqualFold(name, a.String()) {
			return a, nil
		}
	}
	return 0, errors.Newf("unknown join algorithm %q", name)
}

// Options controls the physical shape of built plans.
type Options struct {
	JoinAlgorithm JoinAlgorithm
	// BatchSize is the number of outer rows a batch nested-loop join binds per batch.
	BatchSize int
	// MaxBatchSize caps BatchSize and any batch size a plan description asks for.
	// Zero means DefaultMaxBatchSize.
	MaxBatchSize int
}

const DefaultMaxBatchSize = 10000

func DefaultOptions() Options {
	return Options{JoinAlgorithm: BatchNestedLoopAlgorithm, BatchSize: 100, MaxBatchSize: DefaultMaxBatchSize}
}

// CheckBatchSize fails with a PlanConstructionError when n is above the maximum batch size.
func (o Options) CheckBatchSize(n int) error {
	limit := o.MaxBatchSize
	if limit <= 0 {
		limit = DefaultMaxBatchSize
	}
	if n > limit {
		return planError("batch size %d exceeds the maximum of %d", n, limit)
	}
	return nil
}

// Build plans a SELECT, INSERT, REPLACE, UPDATE or DELETE statement.
func Build(stmt sqlparser.Statement, res Resolver, opts Options) (*PlanNode, error) {
	b := &planBuilder{res: res, opts: opts}
	var plan *PlanNode
	var err error
	switch s := stmt.(type) {
	case sqlparser.SelectStatement:
		plan, err = b.selectStatement(s)
	case *sqlparser.Insert:
		plan, err = b.insertPlan(s)
	case *sqlparser.Update:
		plan, err = b.updatePlan(s)
	case *sqlparser.Delete:
		plan, err = b.deletePlan(s)
	default:
		return nil, unsupported("cannot plan %s", sqlparser.String(stmt))
	}
	if err != nil {
		return nil, err
	}
	return b.physical(plan)
}

type planBuilder struct {
	res  Resolver
	opts Options
}

func (b *planBuilder) physical(root *PlanNode) (*PlanNode, error) {
	if err := b.opts.CheckBatchSize(b.opts.BatchSize); err != nil {
		return nil, err
	}
	var err error
	switch b.opts.JoinAlgorithm {
	case HashAlgorithm:
		if root, err = HashJoins(root); err != nil {
			return nil, err
		}
		return BatchJoins(root, b.opts.BatchSize)
	case BatchNestedLoopAlgorithm:
		return BatchJoins(root, b.opts.BatchSize)
	}
	return root, nil
}

// relation is one item of a FROM clause: a table, the dual table, or a join of two
// relations. Its columns occupy [offset, offset+width) of the statement scope.
type relation struct {
	table *catalog.Table
	alias string
	dual  bool

	left, right *relation
	kind        JoinKind
	onAST       sqlparser.Expr
	on          []Expr

	// filters are WHERE conjuncts that only read this leaf.
	filters []Expr

	offset, width int
}

func (r *relation) isLeaf() bool {
	return r.left == nil
}

// layout assigns offsets and appends the relation's columns to scope.
func (r *relation) layout(offset int, scope []Column) []Column {
	r.offset = offset
	switch {
	case r.dual:
	case r.isLeaf():
		qualifier := r.alias
		if qualifier == "" {
			qualifier = r.table.Name
		}
		for _, c := range r.table.Columns {
			scope = append(scope, Column{Table: qualifier, Name: c.Name, Type: c.Type})
		}
	default:
		scope = r.left.layout(offset, scope)
		scope = r.right.layout(offset+r.left.width, scope)
	}
	r.width = len(scope) - offset
	return scope
}

func (r *relation) covers(cols ColumnSet) bool {
	for _, c := range cols.Slice() {
		if c < r.offset || c >= r.offset+r.width {
			return false
		}
	}
	return true
}

// buildConditions builds every ON clause over the statement scope.
func (r *relation) buildConditions(eb *exprBuilder) error {
	if r.isLeaf() {
		return nil
	}
	if err := r.left.buildConditions(eb); err != nil {
		return err
	}
	if err := r.right.buildConditions(eb); err != nil {
		return err
	}
	if r.onAST == nil {
		return nil
	}
	cond, err := eb.build(r.onAST)
	if err != nil {
		return err
	}
	if !r.covers(ReferencedColumns(cond)) {
		return common.NewError(common.NoSuchObjectError, "ON clause %s references a table outside the join", sqlparser.String(r.onAST))
	}
	r.on = Conjuncts(cond)
	return nil
}

func (r *relation) usedColumns() ColumnSet {
	var used ColumnSet
	for _, f := range r.filters {
		used = used.Union(ReferencedColumns(f))
	}
	if r.isLeaf() {
		return used
	}
	for _, c := range r.on {
		used = used.Union(ReferencedColumns(c))
	}
	return used.Union(r.left.usedColumns()).Union(r.right.usedColumns())
}

// push places a WHERE conjunct reading cols as deep into the join tree as it can go
// without changing the result. It returns false if the conjunct must stay above r.
func (r *relation) push(conj Expr, cols ColumnSet) bool {
	if !r.covers(cols) {
		return false
	}
	if r.isLeaf() {
		r.filters = append(r.filters, conj)
		return true
	}
	switch r.kind {
	case JoinInner:
		if r.left.push(conj, cols) || r.right.push(conj, cols) {
			return true
		}
		r.on = append(r.on, conj)
		return true
	case JoinLeft:
		return r.left.push(conj, cols)
	case JoinRight:
		return r.right.push(conj, cols)
	}
	return false
}

func (r *relation) plan(used ColumnSet) (*PlanNode, error) {
	var node *PlanNode
	var err error
	switch {
	case r.dual:
		node, err = NewValues(nil, [][]Expr{{}})
	case r.isLeaf():
		node, err = NewTableScan(r.table, r.alias, used.Window(r.offset, r.offset+r.width))
	default:
		var left, right *PlanNode
		if left, err = r.left.plan(used); err != nil {
			return nil, err
		}
		if right, err = r.right.plan(used); err != nil {
			return nil, err
		}
		cond := ShiftColumns(CombineConjuncts(r.on), -r.offset)
		if r.kind == JoinRight {
			node, err = rightAsLeftJoin(left, right, cond)
		} else {
			node, err = NewNestedLoopJoin(left, right, cond, r.kind, nil)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(r.filters) > 0 {
		return NewFilter(node, ShiftColumns(CombineConjuncts(r.filters), -r.offset))
	}
	return node, nil
}

// rightAsLeftJoin plans left RIGHT JOIN right as right LEFT JOIN left, then restores the
// column order. Nested-loop joins cannot preserve their inner side.
func rightAsLeftJoin(left, right *PlanNode, cond Expr) (*PlanNode, error) {
	lw, rw := left.Width(), right.Width()
	swapped := TransformExpr(cond, func(e Expr) Expr {
		col, ok := e.(*ColumnValueExpr)
		if !ok {
			return nil
		}
		if col.fieldOffset < lw {
			return NewColumnRef(col.fieldOffset+rw, col.outputType, col.name)
		}
		return NewColumnRef(col.fieldOffset-lw, col.outputType, col.name)
	})
	join, err := NewNestedLoopJoin(right, left, swapped, JoinLeft, nil)
	if err != nil {
		return nil, err
	}
	cols := join.Columns()
	exprs := make([]Expr, 0, lw+rw)
	names := make([]string, 0, lw+rw)
	for i := rw; i < rw+lw; i++ {
		exprs = append(exprs, NewColumnRef(i, cols[i].Type, cols[i].String()))
		names = append(names, cols[i].Name)
	}
	for i := 0; i < rw; i++ {
		exprs = append(exprs, NewColumnRef(i, cols[i].Type, cols[i].String()))
		names = append(names, cols[i].Name)
	}
	return NewProject(join, exprs, names)
}

func (b *planBuilder) fromClause(exprs sqlparser.TableExprs) (*relation, error) {
	var rel *relation
	for _, te := range exprs {
		r, err := b.tableExpr(te)
		if err != nil {
			return nil, err
		}
		if rel == nil {
			rel = r
		} else {
			rel = &relation{left: rel, right: r, kind: JoinInner}
		}
	}
	if rel == nil {
		rel = &relation{dual: true}
	}
	return rel, nil
}

func (b *planBuilder) tableExpr(te sqlparser.TableExpr) (*relation, error) {
	switch te := te.(type) {
	case *sqlparser.AliasedTableExpr:
		name, ok := te.Expr.(sqlparser.TableName)
		if !ok {
			return nil, unsupported("derived tables are not supported: %s", sqlparser.String(te))
		}
		if name.Qualifier.IsEmpty() && strings.EqualFold(name.Name.String(), "dual") {
			return &relation{dual: true}, nil
		}
		table, err := b.res.ResolveTable(name)
		if err != nil {
			return nil, err
		}
		return &relation{table: table, alias: te.As.String()}, nil
	case *sqlparser.ParenTableExpr:
		return b.fromClause(te.Exprs)
	case *sqlparser.JoinTableExpr:
		kind, err := joinKind(te.Join)
		if err != nil {
			return nil, err
		}
		if len(te.Condition.Using) > 0 {
			return nil, unsupported("JOIN ... USING is not supported")
		}
		left, err := b.tableExpr(te.LeftExpr)
		if err != nil {
			return nil, err
		}
		right, err := b.tableExpr(te.RightExpr)
		if err != nil {
			return nil, err
		}
		if kind != JoinInner && te.Condition.On == nil {
			return nil, planError("%s requires an ON clause", te.Join)
		}
		return &relation{left: left, right: right, kind: kind, onAST: te.Condition.On}, nil
	}
	return nil, unsupported("unsupported table expression %s", sqlparser.String(te))
}

func joinKind(join string) (JoinKind, error) {
	switch strings.ToLower(join) {
	case sqlparser.JoinStr, sqlparser.StraightJoinStr:
		return JoinInner, nil
	case sqlparser.LeftJoinStr:
		return JoinLeft, nil
	case sqlparser.RightJoinStr:
		return JoinRight, nil
	}
	return 0, unsupported("%s is not supported", join)
}

// selectItem is one output column of a SELECT before planning.
type selectItem struct {
	ast   sqlparser.Expr
	name  string
	alias bool
}

func expandSelectList(exprs sqlparser.SelectExprs, scope []Column) ([]selectItem, error) {
	var items []selectItem
	for _, se := range exprs {
		switch se := se.(type) {
		case *sqlparser.StarExpr:
			qualifier := se.TableName.Name.String()
			matched := false
			for _, c := range scope {
				if qualifier != "" && !strings.EqualFold(c.Table, qualifier) {
					continue
				}
				matched = true
				items = append(items, selectItem{
					ast:  &sqlparser.ColName{Name: sqlparser.NewColIdent(c.Name), Qualifier: sqlparser.TableName{Name: sqlparser.NewTableIdent(c.Table)}},
					name: c.Name,
				})
			}
			if qualifier != "" && !matched {
				return nil, common.NewError(common.NoSuchObjectError, "unknown table '%s'", qualifier)
			}
		case *sqlparser.AliasedExpr:
			item := selectItem{ast: se.Expr}
			switch {
			case !se.As.IsEmpty():
				item.name, item.alias = se.As.String(), true
			default:
				if col, ok := se.Expr.(*sqlparser.ColName); ok {
					item.name = col.Name.String()
				} else {
					item.name = sqlparser.String(se.Expr)
				}
			}
			items = append(items, item)
		default:
			return nil, unsupported("unsupported select expression %s", sqlparser.String(se))
		}
	}
	return items, nil
}

func (b *planBuilder) selectStatement(stmt sqlparser.SelectStatement) (*PlanNode, error) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return b.selectPlan(s)
	case *sqlparser.ParenSelect:
		return b.selectStatement(s.Select)
	}
	return nil, unsupported("%s is not supported", sqlparser.String(stmt))
}

func (b *planBuilder) selectPlan(sel *sqlparser.Select) (*PlanNode, error) {
	if sel.Distinct != "" {
		return nil, unsupported("SELECT DISTINCT is not supported")
	}
	rel, err := b.fromClause(sel.From)
	if err != nil {
		return nil, err
	}
	scope := rel.layout(0, nil)
	eb := &exprBuilder{scope: scope, res: b.res}
	if err := rel.buildConditions(eb); err != nil {
		return nil, err
	}

	var where []Expr
	if sel.Where != nil {
		pred, err := eb.build(sel.Where.Expr)
		if err != nil {
			return nil, err
		}
		where = Conjuncts(pred)
	}

	items, err := expandSelectList(sel.SelectExprs, scope)
	if err != nil {
		return nil, err
	}
	aggregating := len(sel.GroupBy) > 0 || sel.Having != nil ||
		containsAggregate(sel.SelectExprs) || containsAggregate(sel.OrderBy)

	out := eb
	var agg *aggScope
	if aggregating {
		agg = &aggScope{input: eb}
		for _, g := range sel.GroupBy {
			e, err := eb.build(g)
			if err != nil {
				return nil, err
			}
			agg.groupAST = append(agg.groupAST, g)
			agg.groups = append(agg.groups, e)
		}
		out = &exprBuilder{res: b.res, agg: agg}
	}

	exprs := make([]Expr, len(items))
	names := make([]string, len(items))
	for i, item := range items {
		if exprs[i], err = out.build(item.ast); err != nil {
			return nil, err
		}
		names[i] = item.name
	}

	var having Expr
	if sel.Having != nil {
		if having, err = out.build(sel.Having.Expr); err != nil {
			return nil, err
		}
	}

	orderBy := make([]OrderByClause, len(sel.OrderBy))
	for i, o := range sel.OrderBy {
		e, err := orderExpr(o.Expr, items, exprs, out)
		if err != nil {
			return nil, err
		}
		orderBy[i] = OrderByClause{Expr: e, Direction: Ascending}
		if o.Direction == sqlparser.DescScr {
			orderBy[i].Direction = Descending
		}
	}

	var used ColumnSet
	for _, w := range where {
		used = used.Union(ReferencedColumns(w))
	}
	if aggregating {
		for _, g := range agg.groups {
			used = used.Union(ReferencedColumns(g))
		}
		for _, a := range agg.aggs {
			if a.Expr != nil {
				used = used.Union(ReferencedColumns(a.Expr))
			}
		}
	} else {
		for _, e := range exprs {
			used = used.Union(ReferencedColumns(e))
		}
		for _, o := range orderBy {
			used = used.Union(ReferencedColumns(o.Expr))
		}
	}
	used = used.Union(rel.usedColumns())

	var remaining []Expr
	for _, w := range where {
		cols := ReferencedColumns(w)
		if cols.Len() == 0 || !rel.push(w, cols) {
			remaining = append(remaining, w)
		}
	}
	node, err := rel.plan(used)
	if err != nil {
		return nil, err
	}
	if len(remaining) > 0 {
		if node, err = NewFilter(node, CombineConjuncts(remaining)); err != nil {
			return nil, err
		}
	}
	if aggregating {
		if node, err = NewAggregate(node, agg.groups, nil, agg.aggs); err != nil {
			return nil, err
		}
		if having != nil {
			if node, err = NewFilter(node, having); err != nil {
				return nil, err
			}
		}
	}
	if len(orderBy) > 0 {
		if node, err = NewSort(node, orderBy); err != nil {
			return nil, err
		}
	}
	if node, err = NewProject(node, exprs, names); err != nil {
		return nil, err
	}
	if sel.Limit != nil {
		offset, limit, err := limitClause(sel.Limit)
		if err != nil {
			return nil, err
		}
		if node, err = NewLimit(node, offset, limit); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// orderExpr resolves an ORDER BY item: a select-list ordinal, a select-list alias, or an
// expression.
func orderExpr(e sqlparser.Expr, items []selectItem, exprs []Expr, out *exprBuilder) (Expr, error) {
	switch e := e.(type) {
	case *sqlparser.SQLVal:
		if e.Type == sqlparser.IntVal {
			pos, err := strconv.Atoi(string(e.Val))
			if err != nil || pos < 1 || pos > len(exprs) {
				return nil, planError("ORDER BY position %s is out of range", e.Val)
			}
			return exprs[pos-1], nil
		}
	case *sqlparser.ColName:
		if e.Qualifier.IsEmpty() {
			for i, item := range items {
				if item.alias && strings.EqualFold(item.name, e.Name.String()) {
					return exprs[i], nil
				}
			}
		}
	}
	return out.build(e)
}

func limitValue(e sqlparser.Expr) (int64, error) {
	v, ok := e.(*sqlparser.SQLVal)
	if !ok || v.Type != sqlparser.IntVal {
		return 0, unsupported("LIMIT requires integer literals, got %s", sqlparser.String(e))
	}
	n, err := strconv.ParseInt(string(v.Val), 10, 64)
	if err != nil || n < 0 {
		return 0, unsupported("bad LIMIT value %s", v.Val)
	}
	return n, nil
}

func limitClause(l *sqlparser.Limit) (offset, limit int64, err error) {
	limit = -1
	if l.Offset != nil {
		if offset, err = limitValue(l.Offset); err != nil {
			return 0, 0, err
		}
	}
	if l.Rowcount != nil {
		if limit, err = limitValue(l.Rowcount); err != nil {
			return 0, 0, err
		}
	}
	return offset, limit, nil
}

func tableColumns(table *catalog.Table) []Column {
	cols := make([]Column, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = Column{Table: table.Name, Name: c.Name, Type: c.Type}
	}
	return cols
}

// defaultRow returns the value a column takes when an INSERT does not name it.
func defaultRow(table *catalog.Table) []Expr {
	row := make([]Expr, len(table.Columns))
	for i, c := range table.Columns {
		v := c.Default
		if v.IsNil() {
			v = common.NewNull(c.Type)
		}
		row[i] = NewConstantValueExpression(v)
	}
	return row
}

func (b *planBuilder) insertTargets(table *catalog.Table, columns sqlparser.Columns) ([]int, error) {
	if len(columns) == 0 {
		targets := make([]int, len(table.Columns))
		for i := range targets {
			targets[i] = i
		}
		return targets, nil
	}
	seen := make(map[int]bool)
	targets := make([]int, len(columns))
	for i, c := range columns {
		idx := table.ColumnIndex(c.String())
		if idx < 0 {
			return nil, common.NewError(common.NoSuchObjectError, "unknown column '%s' in %s", c.String(), table.QualifiedName())
		}
		if seen[idx] {
			return nil, planError("column '%s' specified twice", c.String())
		}
		seen[idx] = true
		targets[i] = idx
	}
	return targets, nil
}

func (b *planBuilder) insertPlan(ins *sqlparser.Insert) (*PlanNode, error) {
	if len(ins.OnDup) > 0 {
		return nil, unsupported("ON DUPLICATE KEY UPDATE is not supported")
	}
	table, err := b.res.ResolveTable(ins.Table)
	if err != nil {
		return nil, err
	}
	targets, err := b.insertTargets(table, ins.Columns)
	if err != nil {
		return nil, err
	}

	var source *PlanNode
	switch rows := ins.Rows.(type) {
	case sqlparser.Values:
		eb := &exprBuilder{res: b.res}
		tuples := make([][]Expr, len(rows))
		for r, tuple := range rows {
			if len(tuple) != len(targets) {
				return nil, planError("column count doesn't match value count at row %d", r+1)
			}
			row := defaultRow(table)
			for k, item := range tuple {
				if _, isDefault := item.(*sqlparser.Default); isDefault {
					continue
				}
				e, err := eb.build(item)
				if err != nil {
					return nil, err
				}
				row[targets[k]] = e
			}
			tuples[r] = row
		}
		if source, err = NewValues(tableColumns(table), tuples); err != nil {
			return nil, err
		}
	case sqlparser.SelectStatement:
		sub, err := b.selectStatement(rows)
		if err != nil {
			return nil, err
		}
		if sub.Width() != len(targets) {
			return nil, planError("column count doesn't match value count: %d columns, %d values", len(targets), sub.Width())
		}
		exprs := defaultRow(table)
		cols := sub.Columns()
		for k, pos := range targets {
			exprs[pos] = NewColumnRef(k, cols[k].Type, cols[k].String())
		}
		names := make([]string, len(table.Columns))
		for i, c := range table.Columns {
			names[i] = c.Name
		}
		if source, err = NewProject(sub, exprs, names); err != nil {
			return nil, err
		}
	default:
		return nil, unsupported("unsupported INSERT source %s", sqlparser.String(ins.Rows))
	}
	return NewInsert(source, table, ins.Action == sqlparser.ReplaceStr)
}

func (b *planBuilder) singleTable(exprs sqlparser.TableExprs, verb string) (*catalog.Table, string, error) {
	if len(exprs) != 1 {
		return nil, "", unsupported("multi-table %s is not supported", verb)
	}
	aliased, ok := exprs[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, "", unsupported("multi-table %s is not supported", verb)
	}
	name, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return nil, "", unsupported("%s of a derived table is not supported", verb)
	}
	table, err := b.res.ResolveTable(name)
	if err != nil {
		return nil, "", err
	}
	return table, aliased.As.String(), nil
}

// rowSource plans the rows an UPDATE or DELETE touches: a full scan, filtered, ordered and
// limited as the statement asks.
func (b *planBuilder) rowSource(table *catalog.Table, alias string, where *sqlparser.Where, orderBy sqlparser.OrderBy, limit *sqlparser.Limit) (*PlanNode, *exprBuilder, error) {
	node, err := NewTableScan(table, alias, ColumnSet{})
	if err != nil {
		return nil, nil, err
	}
	eb := &exprBuilder{scope: node.Columns(), res: b.res}
	if where != nil {
		pred, err := eb.build(where.Expr)
		if err != nil {
			return nil, nil, err
		}
		if node, err = NewFilter(node, pred); err != nil {
			return nil, nil, err
		}
	}
	if len(orderBy) > 0 {
		clauses := make([]OrderByClause, len(orderBy))
		for i, o := range orderBy {
			e, err := eb.build(o.Expr)
			if err != nil {
				return nil, nil, err
			}
			clauses[i] = OrderByClause{Expr: e, Direction: Ascending}
			if o.Direction == sqlparser.DescScr {
				clauses[i].Direction = Descending
			}
		}
		if node, err = NewSort(node, clauses); err != nil {
			return nil, nil, err
		}
	}
	if limit != nil {
		offset, count, err := limitClause(limit)
		if err != nil {
			return nil, nil, err
		}
		if node, err = NewLimit(node, offset, count); err != nil {
			return nil, nil, err
		}
	}
	return node, eb, nil
}

func (b *planBuilder) updatePlan(upd *sqlparser.Update) (*PlanNode, error) {
	table, alias, err := b.singleTable(upd.TableExprs, "UPDATE")
	if err != nil {
		return nil, err
	}
	node, eb, err := b.rowSource(table, alias, upd.Where, upd.OrderBy, upd.Limit)
	if err != nil {
		return nil, err
	}
	assignments := make([]Assignment, len(upd.Exprs))
	for i, ue := range upd.Exprs {
		col, err := resolveColumn(eb.scope, ue.Name)
		if err != nil {
			return nil, err
		}
		e, err := eb.build(ue.Expr)
		if err != nil {
			return nil, err
		}
		assignments[i] = Assignment{Column: col, Expr: e}
	}
	return NewUpdate(node, table, assignments)
}

func (b *planBuilder) deletePlan(del *sqlparser.Delete) (*PlanNode, error) {
	if len(del.Targets) > 0 {
		return nil, unsupported("multi-table DELETE is not supported")
	}
	table, alias, err := b.singleTable(del.TableExprs, "DELETE")
	if err != nil {
		return nil, err
	}
	node, _, err := b.rowSource(table, alias, del.Where, del.OrderBy, del.Limit)
	if err != nil {
		return nil, err
	}
	return NewDelete(node, table)
}
