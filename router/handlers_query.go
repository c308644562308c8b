package router

import (
	"strings"
	"unicode"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
)

func isSelect(req *SQLRequest) bool {
	_, ok := req.Stmt.(sqlparser.SelectStatement)
	return ok
}

// isInsert matches INSERT or REPLACE statements, by action.
func isInsert(action string) matchFunc {
	return func(req *SQLRequest) bool {
		ins, ok := req.Stmt.(*sqlparser.Insert)
		return ok && ins.Action == action
	}
}

func isDelete(req *SQLRequest) bool {
	_, ok := req.Stmt.(*sqlparser.Delete)
	return ok
}

func isUpdate(req *SQLRequest) bool {
	_, ok := req.Stmt.(*sqlparser.Update)
	return ok
}

func isDDL(action string) matchFunc {
	return func(req *SQLRequest) bool {
		ddl, ok := req.Stmt.(*sqlparser.DDL)
		return ok && ddl.Action == action
	}
}

func truncateHandler() Handler {
	return &handlerFunc{
		name:  "truncate",
		match: isDDL(sqlparser.TruncateStr),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			table := req.Stmt.(*sqlparser.DDL).Table
			if err := dc.TruncateTable(table.Qualifier.String(), table.Name.String()); err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

// plannable lists the statement keywords EXPLAIN can describe.
var plannable = map[string]bool{
	"select":  true,
	"insert":  true,
	"replace": true,
	"update":  true,
	"delete":  true,
}

// explainTarget returns the statement text of "EXPLAIN|DESCRIBE|DESC <statement>", or
// false when the unit describes a table instead.
func explainTarget(req *SQLRequest) (string, bool) {
	if _, ok := req.Stmt.(*sqlparser.OtherRead); !ok {
		return "", false
	}
	ts := tokenize(req.Text)
	if len(ts) < 2 {
		return "", false
	}
	switch ts[0].text {
	case "explain", "describe", "desc":
	default:
		return "", false
	}
	if !plannable[ts[1].text] && ts[1].text != "(" {
		return "", false
	}
	text := strings.TrimLeftFunc(req.Text, unicode.IsSpace)
	text = strings.TrimLeftFunc(text[len(ts[0].raw):], unicode.IsSpace)
	return text, true
}

// explainHandler answers EXPLAIN <statement> with the plan tree of the statement. The
// statement is planned, never run.
func explainHandler() Handler {
	explain := func(req *SQLRequest, dc DataContext, resp Response) error {
		text, _ := explainTarget(req)
		stmt, err := sqlparser.Parse(text)
		if err != nil {
			return common.NewError(common.ParseError, "%s: %v", text, err)
		}
		bound, err := dc.Bind(stmt)
		if err != nil {
			return err
		}
		plan, err := planner.Build(stmt, bound, dc.PlanOptions())
		if err != nil {
			return err
		}
		explainPlan(plan, resp)
		return nil
	}
	return &handlerFunc{
		name: "explain",
		match: func(req *SQLRequest) bool {
			_, ok := explainTarget(req)
			return ok
		},
		execute: explain,
		explain: explain,
	}
}
