package router

import (
	"strings"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// isSetTransaction matches SET [SESSION|GLOBAL] TRANSACTION ..., which the parser turns
// into plain assignments of tx_isolation and tx_read_only.
func isSetTransaction(req *SQLRequest) bool {
	if _, ok := req.Stmt.(*sqlparser.Set); !ok {
		return false
	}
	ts := tokenize(req.Text)
	return ts.hasPrefix("set", "transaction") ||
		ts.hasPrefix("set", "session", "transaction") ||
		ts.hasPrefix("set", "global", "transaction")
}

// setTarget returns the variable an assignment names and whether it is global.
func setTarget(name string, scope string) (string, bool) {
	lowered := strings.ToLower(name)
	global := scope == sqlparser.GlobalStr || strings.HasPrefix(lowered, "@@global.")
	if v, ok := planner.VariableName(lowered); ok {
		return v, global
	}
	return lowered, global
}

// setValue evaluates the right-hand side of an assignment. Bare words (SET x = OFF) are
// taken as strings; DEFAULT restores the global value.
func setValue(name string, e sqlparser.Expr, dc DataContext, res planner.Resolver) (common.Value, error) {
	switch n := e.(type) {
	case *sqlparser.Default:
		for _, v := range dc.Variables(true) {
			if v.Name == name {
				return v.Value, nil
			}
		}
		return common.Value{}, common.NewError(common.NoSuchObjectError, "variable '%s' has no default", name)
	case *sqlparser.ColName:
		if _, isVar := planner.VariableName(n.Name.String()); !isVar && n.Qualifier.IsEmpty() {
			return common.NewStringValue(n.Name.String()), nil
		}
	}
	expr, err := planner.BuildExpr(e, nil, res)
	if err != nil {
		return common.Value{}, err
	}
	return expr.Eval(storage.Tuple{}, nil)
}

// charsetVariables are set together by SET NAMES and SET CHARACTER SET.
var charsetVariables = []string{"character_set_client", "character_set_connection", "character_set_results"}

func setHandler() Handler {
	return &handlerFunc{
		name: "set",
		match: func(req *SQLRequest) bool {
			_, ok := req.Stmt.(*sqlparser.Set)
			return ok && !isSetTransaction(req)
		},
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			set := req.Stmt.(*sqlparser.Set)
			for _, assign := range set.Exprs {
				name, global := setTarget(assign.Name.String(), set.Scope)
				if name == "names" || name == "charset" {
					v, err := setValue(charsetVariables[0], assign.Expr, dc, req.Bound)
					if err != nil {
						return err
					}
					for _, cs := range charsetVariables {
						if err := dc.SetVariable(cs, v, global); err != nil {
							return err
						}
					}
					continue
				}
				v, err := setValue(name, assign.Expr, dc, req.Bound)
				if err != nil {
					return err
				}
				if err := dc.SetVariable(name, v, global); err != nil {
					return err
				}
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

// isolationLevels maps the parser's spelling to the variable value.
var isolationLevels = map[string]string{
	"repeatable read":  "REPEATABLE-READ",
	"read committed":   "READ-COMMITTED",
	"read uncommitted": "READ-UNCOMMITTED",
	"serializable":     "SERIALIZABLE",
}

func setTransactionHandler() Handler {
	return &handlerFunc{
		name:  "set-transaction",
		match: isSetTransaction,
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			set := req.Stmt.(*sqlparser.Set)
			global := set.Scope == sqlparser.GlobalStr
			for _, assign := range set.Exprs {
				v, err := setValue(assign.Name.Lowered(), assign.Expr, dc, req.Bound)
				if err != nil {
					return err
				}
				switch assign.Name.Lowered() {
				case "tx_isolation":
					level, ok := isolationLevels[strings.ToLower(v.String())]
					if !ok {
						return common.NewError(common.EvaluationError, "unknown isolation level '%s'", v.String())
					}
					for _, name := range []string{"tx_isolation", "transaction_isolation"} {
						if err := dc.SetVariable(name, common.NewStringValue(level), global); err != nil {
							return err
						}
					}
				case "tx_read_only":
					if err := dc.SetVariable("tx_read_only", v, global); err != nil {
						return err
					}
				default:
					return common.NewError(common.UnsupportedStatementError, "unsupported transaction characteristic '%s'", assign.Name.String())
				}
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

func stmtOf[T sqlparser.Statement](req *SQLRequest) bool {
	_, ok := req.Stmt.(T)
	return ok
}

// okHandler matches statements of type T and replies OK after op succeeds.
func okHandler[T sqlparser.Statement](name string, op func(DataContext) error) Handler {
	return &handlerFunc{
		name:  name,
		match: stmtOf[T],
		execute: func(_ *SQLRequest, dc DataContext, resp Response) error {
			if err := op(dc); err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

func commitHandler() Handler {
	return okHandler[*sqlparser.Commit]("commit", DataContext.Commit)
}

func rollbackHandler() Handler {
	return okHandler[*sqlparser.Rollback]("rollback", DataContext.Rollback)
}

func startTransactionHandler() Handler {
	return okHandler[*sqlparser.Begin]("start-transaction", DataContext.Begin)
}
