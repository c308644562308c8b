package router

import (
	"strconv"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/common"
)

func isKill(req *SQLRequest) bool {
	_, ok := req.Stmt.(*sqlparser.OtherAdmin)
	return ok && tokenize(req.Text).hasPrefix("kill")
}

// killHandler supports KILL [CONNECTION | QUERY] id.
func killHandler() Handler {
	return &handlerFunc{
		name:  "kill",
		match: isKill,
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ts := tokenize(req.Text)
			i, query := 1, false
			if i < len(ts) && (ts[i].text == "connection" || ts[i].text == "query") {
				query = ts[i].text == "query"
				i++
			}
			if i != len(ts)-1 || ts[i].typ != sqlparser.INTEGRAL {
				return common.NewError(common.ParseError, "bad kill statement: %s", req.Text)
			}
			id, err := strconv.ParseUint(ts[i].text, 10, 32)
			if err != nil {
				return common.NewError(common.ParseError, "bad thread id %s", ts[i].text)
			}
			if err := dc.Kill(uint32(id), query); err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

func alterDatabaseHandler() Handler {
	return &handlerFunc{
		name:  "alter-database",
		match: isDBDDL(sqlparser.AlterStr),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ddl := req.Stmt.(*sqlparser.DBDDL)
			if err := dc.AlterDatabase(ddl.DBName, ddl.Charset, ddl.Collate); err != nil {
				return err
			}
			resp.SendOk(1, 0)
			return nil
		},
	}
}

// analyzeHandler answers ANALYZE TABLE. Statistics are not kept, so the table is only
// checked for existence; a missing table is reported in the result rows, as MySQL does.
func analyzeHandler() Handler {
	return showHandler("analyze", isTableDDL(sqlparser.AlterStr, "analyze"),
		[]string{"Table", "Op", "Msg_type", "Msg_text"},
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			name := req.Stmt.(*sqlparser.DDL).Table
			schema := name.Qualifier.String()
			if schema == "" {
				schema = dc.Schema()
			}
			qualified := schema + "." + name.Name.String()
			table, err := dc.ResolveTable(name)
			if err != nil {
				return [][]common.Value{
					strs(qualified, "analyze", "Error", "Table '"+qualified+"' doesn't exist"),
					strs(qualified, "analyze", "status", "Operation failed"),
				}, nil
			}
			return [][]common.Value{strs(table.QualifiedName(), "analyze", "status", "OK")}, nil
		})
}
