package execution

import (
	"strconv"
	"strings"

	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// coerce converts v to the type of column col, the way MySQL converts literals on write.
func coerce(table *catalog.Table, col int, v common.Value) (common.Value, error) {
	want := table.Columns[col].Type
	if v.Type() == want || v.IsNil() {
		return v, nil
	}
	if v.IsNull() {
		return common.NewNull(want), nil
	}
	switch want {
	case common.StringType:
		return common.NewStringValue(v.String()), nil
	case common.IntType:
		n, err := strconv.ParseInt(strings.TrimSpace(v.StringValue()), 10, 64)
		if err != nil {
			return common.Value{}, common.NewError(common.EvaluationError,
				"incorrect integer value %s for column %s of %s", v.SQLLiteral(), table.Columns[col].Name, table.QualifiedName())
		}
		return common.NewIntValue(n), nil
	}
	return v, nil
}

// checkNotNull fails if a NOT NULL column of row holds NULL.
func checkNotNull(table *catalog.Table, row []common.Value) error {
	for i, c := range table.Columns {
		if c.NotNull && row[i].IsNull() {
			return common.NewError(common.EvaluationError, "column %s of %s cannot be null", c.Name, table.QualifiedName())
		}
	}
	return nil
}

// dmlResult is the single row every DML executor produces.
func dmlResult(affected int64) storage.Tuple {
	return storage.FromValues(common.NewIntValue(affected))
}

// InsertExecutor writes every child row into the target table and produces one row
// holding the number of affected rows.
//
// A NULL in an auto-increment column is replaced by the next generated value; the first
// generated value of the statement is recorded as the context's last insert id. With
// REPLACE semantics a row whose primary key exists is deleted before the new one is
// written and counts as two affected rows.
type InsertExecutor struct {
	plan    *planner.PlanNode
	payload *planner.InsertPayload
	child   Executor

	// Runtime state
	table    *storage.MemTable
	executed bool
	cnt      int64
	ctx      *ExecutorContext
	err      error
}

func NewInsertExecutor(plan *planner.PlanNode, child Executor) *InsertExecutor {
	return &InsertExecutor{
		plan:    plan,
		payload: planner.PayloadOf[*planner.InsertPayload](plan),
		child:   child,
	}
}

func (e *InsertExecutor) PlanNode() *planner.PlanNode {
	return e.plan
}

func (e *InsertExecutor) Init(ctx *ExecutorContext) error {
	e.executed = false
	e.cnt = 0
	e.ctx = ctx
	e.err = nil
	table, err := ctx.Store().GetTable(e.payload.Table.Oid)
	if err != nil {
		return err
	}
	e.table = table
	return e.child.Init(ctx)
}

// prepareRow coerces the row to the table's types and fills auto-increment columns.
func (e *InsertExecutor) prepareRow(t storage.Tuple, generated *int64) ([]common.Value, error) {
	meta := e.payload.Table
	row := t.Values()
	for i, c := range meta.Columns {
		v, err := coerce(meta, i, row[i])
		if err != nil {
			return nil, err
		}
		if c.AutoIncrement && c.Type == common.IntType {
			if v.IsNull() {
				id := e.table.NextAutoIncrement()
				v = common.NewIntValue(id)
				if *generated == 0 {
					*generated = id
				}
			} else {
				e.table.ObserveAutoIncrement(v.IntValue())
			}
		}
		row[i] = v
	}
	return row, checkNotNull(meta, row)
}

func (e *InsertExecutor) insertAll() error {
	txn := e.ctx.GetTransaction()
	var generated int64
	for e.child.Next() {
		row, err := e.prepareRow(e.child.Current(), &generated)
		if err != nil {
			return err
		}
		if e.payload.Replace {
			if rid, found := e.table.FindKey(row); found {
				e.table.Delete(rid, txn)
				e.cnt++
			}
		}
		if _, err := e.table.Insert(row, txn); err != nil {
			return err
		}
		e.cnt++
	}
	if err := e.child.Error(); err != nil {
		return err
	}
	if generated != 0 {
		e.ctx.lastInsertID = generated
	}
	return nil
}

func (e *InsertExecutor) Next() bool {
	if e.executed || e.err != nil {
		return false
	}
	e.executed = true
	if e.err = e.insertAll(); e.err != nil {
		return false
	}
	return true
}

func (e *InsertExecutor) Current() storage.Tuple {
	return dmlResult(e.cnt)
}

func (e *InsertExecutor) Close() error {
	return e.child.Close()
}

func (e *InsertExecutor) Error() error {
	return e.err
}
