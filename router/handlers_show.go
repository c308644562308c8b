package router

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/session"
)

// isShow matches SHOW statements whose type is one of kinds. The parser keeps the type
// as written, so the comparison ignores case.
func isShow(kinds ...string) matchFunc {
	return func(req *SQLRequest) bool {
		show, ok := req.Stmt.(*sqlparser.Show)
		if !ok {
			return false
		}
		for _, k := range kinds {
			if strings.EqualFold(show.Type, k) {
				return true
			}
		}
		return false
	}
}

// showHandler answers a SHOW statement with a result set built by rows.
func showHandler(name string, match matchFunc, columns []string, rows func(req *SQLRequest, dc DataContext) ([][]common.Value, error)) Handler {
	return &handlerFunc{
		name:  name,
		match: match,
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			values, err := rows(req, dc)
			if err != nil {
				return err
			}
			resp.SendResultSet(textResult(columns, values))
			return nil
		},
	}
}

// filterLike keeps the rows whose first column matches the statement's LIKE pattern.
func filterLike(req *SQLRequest, rows [][]common.Value) ([][]common.Value, error) {
	pattern, ok := tokenize(req.Text).likeFilter()
	if !ok {
		return rows, nil
	}
	return matchLike(pattern, rows)
}

// matchLike keeps the rows whose first column matches pattern, ignoring case.
func matchLike(pattern string, rows [][]common.Value) ([][]common.Value, error) {
	re, err := planner.CompileLike(pattern, true)
	if err != nil {
		return nil, err
	}
	var out [][]common.Value
	for _, row := range rows {
		if re.MatchString(row[0].String()) {
			out = append(out, row)
		}
	}
	return out, nil
}

func showDatabasesHandler() Handler {
	return showHandler("show-databases", isShow("databases", "schemas"), []string{"Database"},
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			var rows [][]common.Value
			for _, name := range dc.Catalog().Databases() {
				rows = append(rows, strs(name))
			}
			return filterLike(req, rows)
		})
}

func showTablesHandler() Handler {
	return &handlerFunc{
		name:  "show-tables",
		match: isShow("tables"),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			show := req.Stmt.(*sqlparser.Show)
			schema, full := dc.Schema(), false
			var filter *sqlparser.ShowFilter
			if opt := show.ShowTablesOpt; opt != nil {
				if opt.DbName != "" {
					schema = opt.DbName
				}
				full = opt.Full != ""
				filter = opt.Filter
			}
			if schema == "" {
				return common.NewError(common.NoSuchObjectError, "no database selected")
			}
			if filter != nil && filter.Filter != nil {
				return common.NewError(common.UnsupportedStatementError, "SHOW TABLES WHERE is not supported")
			}
			tables, err := dc.Catalog().Tables(schema)
			if err != nil {
				return err
			}
			columns := []string{"Tables_in_" + schema}
			if full {
				columns = append(columns, "Table_type")
			}
			var rows [][]common.Value
			for _, t := range tables {
				row := strs(t.Name)
				if full {
					row = append(row, common.NewStringValue("BASE TABLE"))
				}
				rows = append(rows, row)
			}
			if filter != nil {
				if rows, err = matchLike(filter.Like, rows); err != nil {
					return err
				}
			}
			resp.SendResultSet(textResult(columns, rows))
			return nil
		},
	}
}

// showTarget finds the table named after the first of the given keywords.
func showTarget(req *SQLRequest, after ...string) (sqlparser.TableName, bool) {
	ts := tokenize(req.Text)
	for _, kw := range after {
		if i := ts.index(kw); i >= 0 {
			name, next, ok := ts.tableName(i + 1)
			if !ok {
				return name, false
			}
			// SHOW COLUMNS FROM t FROM db
			if next+1 < len(ts) && (ts[next].text == "from" || ts[next].text == "in") && ts[next+1].isName() {
				name.Qualifier = sqlparser.NewTableIdent(ts[next+1].raw)
			}
			return name, true
		}
	}
	return sqlparser.TableName{}, false
}

// isDescribeTable matches DESCRIBE t, DESC t and EXPLAIN t.
func isDescribeTable(req *SQLRequest) bool {
	if _, ok := req.Stmt.(*sqlparser.OtherRead); !ok {
		return false
	}
	if _, ok := explainTarget(req); ok {
		return false
	}
	ts := tokenize(req.Text)
	if len(ts) < 2 {
		return false
	}
	switch ts[0].text {
	case "describe", "desc", "explain":
		_, _, ok := ts.tableName(1)
		return ok
	}
	return false
}

func keyOf(t *catalog.Table, col int) string {
	for _, pk := range t.PrimaryKey {
		if pk == col {
			return "PRI"
		}
	}
	name := t.Columns[col].Name
	for _, idx := range t.Indexes {
		if len(idx.KeySchema) > 0 && strings.EqualFold(idx.KeySchema[0], name) {
			if idx.Unique && len(idx.KeySchema) == 1 {
				return "UNI"
			}
			return "MUL"
		}
	}
	return ""
}

func sqlType(c catalog.Column) string {
	if c.SQLType != "" {
		return c.SQLType
	}
	if c.Type == common.IntType {
		return "bigint"
	}
	return "varchar(255)"
}

func showColumnsHandler() Handler {
	match := func(req *SQLRequest) bool {
		return isShow("columns", "fields")(req) || isDescribeTable(req)
	}
	columns := []string{"Field", "Type", "Null", "Key", "Default", "Extra"}
	return showHandler("show-columns", match, columns, func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
		var name sqlparser.TableName
		var ok bool
		if _, isShowStmt := req.Stmt.(*sqlparser.Show); isShowStmt {
			name, ok = showTarget(req, "from", "in")
		} else {
			name, _, ok = tokenize(req.Text).tableName(1)
		}
		if !ok {
			return nil, common.NewError(common.ParseError, "missing table name: %s", req.Text)
		}
		table, err := dc.ResolveTable(name)
		if err != nil {
			return nil, err
		}
		var rows [][]common.Value
		for i, c := range table.Columns {
			null, extra := "YES", ""
			if c.NotNull || keyOf(table, i) == "PRI" {
				null = "NO"
			}
			if c.AutoIncrement {
				extra = "auto_increment"
			}
			def := common.NewNullString()
			if !c.Default.IsNil() && !c.Default.IsNull() {
				def = common.NewStringValue(c.Default.String())
			}
			rows = append(rows, []common.Value{
				common.NewStringValue(c.Name),
				common.NewStringValue(sqlType(c)),
				common.NewStringValue(null),
				common.NewStringValue(keyOf(table, i)),
				def,
				common.NewStringValue(extra),
			})
		}
		return filterLike(req, rows)
	})
}

func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// createTableText renders the CREATE TABLE statement of t.
func createTableText(t *catalog.Table) string {
	var lines []string
	for _, c := range t.Columns {
		line := "  " + quoteName(c.Name) + " " + sqlType(c)
		if c.NotNull {
			line += " NOT NULL"
		}
		if !c.Default.IsNil() {
			line += " DEFAULT " + c.Default.SQLLiteral()
		}
		if c.AutoIncrement {
			line += " AUTO_INCREMENT"
		}
		lines = append(lines, line)
	}
	quoted := func(names []string) string {
		q := make([]string, len(names))
		for i, n := range names {
			q[i] = quoteName(n)
		}
		return strings.Join(q, ",")
	}
	if len(t.PrimaryKey) > 0 {
		names := make([]string, len(t.PrimaryKey))
		for i, col := range t.PrimaryKey {
			names[i] = t.Columns[col].Name
		}
		lines = append(lines, "  PRIMARY KEY ("+quoted(names)+")")
	}
	for _, idx := range t.Indexes {
		kind := "KEY"
		if idx.Unique {
			kind = "UNIQUE KEY"
		}
		lines = append(lines, fmt.Sprintf("  %s %s (%s)", kind, quoteName(idx.Name), quoted(idx.KeySchema)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", quoteName(t.Name), strings.Join(lines, ",\n"))
}

func showCreateTableHandler() Handler {
	return showHandler("show-create-table", isShow("create table"), []string{"Table", "Create Table"},
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			name, ok := showTarget(req, "table")
			if !ok {
				return nil, common.NewError(common.ParseError, "missing table name: %s", req.Text)
			}
			table, err := dc.ResolveTable(name)
			if err != nil {
				return nil, err
			}
			return [][]common.Value{strs(table.Name, createTableText(table))}, nil
		})
}

func showEnginesHandler() Handler {
	return showHandler("show-engines", isShow("engines", "storage"),
		[]string{"Engine", "Support", "Comment", "Transactions", "XA", "Savepoints"},
		func(*SQLRequest, DataContext) ([][]common.Value, error) {
			return [][]common.Value{
				strs("InnoDB", "DEFAULT", "In-memory transactional tables", "YES", "NO", "YES"),
			}, nil
		})
}

func diagnosticRows(diags []session.Diagnostic) [][]common.Value {
	rows := make([][]common.Value, len(diags))
	for i, d := range diags {
		rows[i] = []common.Value{
			common.NewStringValue(d.Level),
			common.NewIntValue(int64(d.Code)),
			common.NewStringValue(d.Message),
		}
	}
	return rows
}

var diagnosticColumns = []string{"Level", "Code", "Message"}

func showWarningsHandler() Handler {
	return showHandler("show-warnings", isShow("warnings"), diagnosticColumns,
		func(_ *SQLRequest, dc DataContext) ([][]common.Value, error) {
			return diagnosticRows(dc.Warnings()), nil
		})
}

func showErrorsHandler() Handler {
	return showHandler("show-errors", isShow("errors"), diagnosticColumns,
		func(_ *SQLRequest, dc DataContext) ([][]common.Value, error) {
			return diagnosticRows(dc.Errors()), nil
		})
}

var nameValueColumns = []string{"Variable_name", "Value"}

func showVariablesHandler() Handler {
	return showHandler("show-variables", isShow("variables"), nameValueColumns,
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			global := req.Stmt.(*sqlparser.Show).Scope == sqlparser.GlobalStr
			var rows [][]common.Value
			for _, v := range dc.Variables(global) {
				rows = append(rows, strs(v.Name, v.Value.String()))
			}
			return filterLike(req, rows)
		})
}

func showStatusHandler() Handler {
	return showHandler("show-status", isShow("status"), nameValueColumns,
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			open := 0
			for _, db := range dc.Catalog().Databases() {
				if tables, err := dc.Catalog().Tables(db); err == nil {
					open += len(tables)
				}
			}
			rows := [][]common.Value{
				strs("Open_tables", fmt.Sprint(open)),
				strs("Ssl_cipher", ""),
			}
			return filterLike(req, rows)
		})
}

func showCharacterSetHandler() Handler {
	return showHandler("show-character-set", isShow("character set"),
		[]string{"Charset", "Description", "Default collation", "Maxlen"},
		func(req *SQLRequest, _ DataContext) ([][]common.Value, error) {
			var rows [][]common.Value
			for _, cs := range catalog.Charsets() {
				rows = append(rows, []common.Value{
					common.NewStringValue(cs.Name),
					common.NewStringValue(cs.Description),
					common.NewStringValue(cs.DefaultCollation),
					common.NewIntValue(int64(cs.MaxLen)),
				})
			}
			return filterLike(req, rows)
		})
}

func showCollationHandler() Handler {
	return showHandler("show-collation", isShow("collation"),
		[]string{"Collation", "Charset", "Id", "Default", "Compiled", "Sortlen"},
		func(req *SQLRequest, _ DataContext) ([][]common.Value, error) {
			var rows [][]common.Value
			for _, c := range catalog.Collations() {
				def := ""
				if c.Default {
					def = "Yes"
				}
				rows = append(rows, []common.Value{
					common.NewStringValue(c.Name),
					common.NewStringValue(c.Charset),
					common.NewIntValue(int64(c.ID)),
					common.NewStringValue(def),
					common.NewStringValue("Yes"),
					common.NewIntValue(1),
				})
			}
			return filterLike(req, rows)
		})
}

// showIndexesHandler lists the primary key and the secondary indexes of a table, one row
// per indexed column.
func showIndexesHandler() Handler {
	columns := []string{"Table", "Non_unique", "Key_name", "Seq_in_index", "Column_name", "Collation",
		"Cardinality", "Sub_part", "Packed", "Null", "Index_type", "Comment", "Index_comment"}
	return showHandler("show-indexes", isShow("index", "indexes", "keys"), columns,
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			name, ok := showTarget(req, "from", "in")
			if !ok {
				return nil, common.NewError(common.ParseError, "missing table name: %s", req.Text)
			}
			table, err := dc.ResolveTable(name)
			if err != nil {
				return nil, err
			}
			row := func(keyName string, unique bool, seq int, col int, typ string) []common.Value {
				nonUnique, null := int64(1), ""
				if unique {
					nonUnique = 0
				}
				if !table.Columns[col].NotNull && keyOf(table, col) != "PRI" {
					null = "YES"
				}
				return []common.Value{
					common.NewStringValue(table.Name),
					common.NewIntValue(nonUnique),
					common.NewStringValue(keyName),
					common.NewIntValue(int64(seq)),
					common.NewStringValue(table.Columns[col].Name),
					common.NewStringValue("A"),
					common.NewNullInt(),
					common.NewNullInt(),
					common.NewNullString(),
					common.NewStringValue(null),
					common.NewStringValue(strings.ToUpper(typ)),
					common.NewStringValue(""),
					common.NewStringValue(""),
				}
			}
			var rows [][]common.Value
			for i, col := range table.PrimaryKey {
				rows = append(rows, row("PRIMARY", true, i+1, col, "btree"))
			}
			for _, idx := range table.Indexes {
				for i, colName := range idx.KeySchema {
					rows = append(rows, row(idx.Name, idx.Unique, i+1, table.ColumnIndex(colName), idx.Type))
				}
			}
			return rows, nil
		})
}

// showSchemaTarget returns the schema named by FROM or IN, or the current one.
func showSchemaTarget(req *SQLRequest, dc DataContext) string {
	ts := tokenize(req.Text)
	for _, kw := range []string{"from", "in"} {
		if i := ts.index(kw); i >= 0 && i+1 < len(ts) && ts[i+1].isName() {
			return ts[i+1].raw
		}
	}
	return dc.Schema()
}

func isShowStatus(kinds ...string) matchFunc {
	return func(req *SQLRequest) bool {
		return isShow(kinds...)(req) && tokenize(req.Text).contains("status")
	}
}

func showTableStatusHandler() Handler {
	columns := []string{"Name", "Engine", "Version", "Row_format", "Rows", "Avg_row_length", "Data_length",
		"Max_data_length", "Index_length", "Data_free", "Auto_increment", "Create_time", "Update_time",
		"Check_time", "Collation", "Checksum", "Create_options", "Comment"}
	return showHandler("show-table-status", isShowStatus("table"), columns,
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			if tokenize(req.Text).contains("where") {
				return nil, common.NewError(common.UnsupportedStatementError, "SHOW TABLE STATUS WHERE is not supported")
			}
			schema := showSchemaTarget(req, dc)
			if schema == "" {
				return nil, common.NewError(common.NoSuchObjectError, "no database selected")
			}
			_, collation, err := dc.Catalog().DatabaseCharset(schema)
			if err != nil {
				return nil, err
			}
			status, err := dc.TableStatus(schema)
			if err != nil {
				return nil, err
			}
			var rows [][]common.Value
			for _, st := range status {
				autoInc := common.NewNullInt()
				if st.AutoIncrement != 0 {
					autoInc = common.NewIntValue(st.AutoIncrement)
				}
				zero := common.NewIntValue(0)
				rows = append(rows, []common.Value{
					common.NewStringValue(st.Table.Name),
					common.NewStringValue("InnoDB"),
					common.NewIntValue(10),
					common.NewStringValue("Dynamic"),
					common.NewIntValue(int64(st.Rows)),
					zero, zero, zero, zero, zero,
					autoInc,
					common.NewNullString(),
					common.NewNullString(),
					common.NewNullString(),
					common.NewStringValue(collation),
					common.NewNullInt(),
					common.NewStringValue(""),
					common.NewStringValue(""),
				})
			}
			return filterLike(req, rows)
		})
}

// showProcedureStatusHandler answers SHOW {PROCEDURE|FUNCTION} STATUS. Stored routines
// are not supported, so the list is always empty.
func showProcedureStatusHandler() Handler {
	columns := []string{"Db", "Name", "Type", "Definer", "Modified", "Created", "Security_type", "Comment",
		"character_set_client", "collation_connection", "Database Collation"}
	return showHandler("show-procedure-status", isShowStatus("procedure", "function"), columns,
		func(*SQLRequest, DataContext) ([][]common.Value, error) {
			return nil, nil
		})
}

// processInfoLimit is the length SHOW PROCESSLIST cuts Info to without FULL.
const processInfoLimit = 100

func showProcessListHandler() Handler {
	columns := []string{"Id", "User", "Host", "db", "Command", "Time", "State", "Info"}
	return showHandler("show-processlist", isShow("processlist"), columns,
		func(req *SQLRequest, dc DataContext) ([][]common.Value, error) {
			full := tokenize(req.Text).contains("full")
			var rows [][]common.Value
			for _, p := range dc.Processes() {
				db := common.NewNullString()
				if p.DB != "" {
					db = common.NewStringValue(p.DB)
				}
				command, state, info := "Sleep", "", common.NewNullString()
				switch {
				case p.ID == dc.ConnectionID():
					command, state = "Query", "starting"
					text := req.Text
					if !full && len(text) > processInfoLimit {
						text = text[:processInfoLimit]
					}
					info = common.NewStringValue(text)
				case p.Killed:
					command = "Killed"
				}
				rows = append(rows, []common.Value{
					common.NewIntValue(int64(p.ID)),
					common.NewStringValue("root"),
					common.NewStringValue("localhost"),
					db,
					common.NewStringValue(command),
					common.NewIntValue(int64(p.Idle.Seconds())),
					common.NewStringValue(state),
					info,
				})
			}
			return rows, nil
		})
}

// showCreateFunctionHandler answers SHOW CREATE {FUNCTION|PROCEDURE}. No stored routine
// ever exists.
func showCreateFunctionHandler() Handler {
	return &handlerFunc{
		name:  "show-create-function",
		match: isShow("create function", "create procedure"),
		execute: func(req *SQLRequest, _ DataContext, _ Response) error {
			ts := tokenize(req.Text)
			kind := "FUNCTION"
			if ts.contains("procedure") {
				kind = "PROCEDURE"
			}
			name, _, ok := ts.tableName(3)
			if !ok {
				return common.NewError(common.ParseError, "missing routine name: %s", req.Text)
			}
			return common.NewError(common.NoSuchObjectError, "%s %s does not exist", kind, sqlparser.String(name))
		},
	}
}
