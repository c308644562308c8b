package router

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
)

func useHandler() Handler {
	return &handlerFunc{
		name:  "use",
		match: stmtOf[*sqlparser.Use],
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			name := req.Stmt.(*sqlparser.Use).DBName.String()
			if name == "" {
				return common.NewError(common.NoSuchObjectError, "no database selected")
			}
			if err := dc.UseSchema(name); err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

func isDBDDL(action string) matchFunc {
	return func(req *SQLRequest) bool {
		ddl, ok := req.Stmt.(*sqlparser.DBDDL)
		return ok && ddl.Action == action
	}
}

func createDatabaseHandler() Handler {
	return &handlerFunc{
		name:  "create-database",
		match: isDBDDL(sqlparser.CreateStr),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ifNotExists := tokenize(req.Text).contains("if", "not", "exists")
			if err := dc.CreateDatabase(req.Stmt.(*sqlparser.DBDDL).DBName, ifNotExists); err != nil {
				return err
			}
			resp.SendOk(1, 0)
			return nil
		},
	}
}

func dropDatabaseHandler() Handler {
	return &handlerFunc{
		name:  "drop-database",
		match: isDBDDL(sqlparser.DropStr),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ifExists := tokenize(req.Text).contains("if", "exists")
			if err := dc.DropDatabase(req.Stmt.(*sqlparser.DBDDL).DBName, ifExists); err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

// isTableDDL matches table DDL of the given action whose text starts with verb. The
// parser reports CREATE INDEX, DROP INDEX and ALTER TABLE alike as alter statements.
func isTableDDL(action string, verb ...string) matchFunc {
	return func(req *SQLRequest) bool {
		ddl, ok := req.Stmt.(*sqlparser.DDL)
		if !ok || ddl.Action != action {
			return false
		}
		return len(verb) == 0 || tokenize(req.Text).hasPrefix(verb...)
	}
}

func createTableHandler() Handler {
	return &handlerFunc{
		name: "create-table",
		match: func(req *SQLRequest) bool {
			ddl, ok := req.Stmt.(*sqlparser.DDL)
			return ok && ddl.Action == sqlparser.CreateStr && ddl.TableSpec != nil
		},
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ddl := req.Stmt.(*sqlparser.DDL)
			def, err := tableDefinition(ddl.TableSpec)
			if err != nil {
				return err
			}
			schema, name := ddl.NewName.Qualifier.String(), ddl.NewName.Name.String()
			ifNotExists := tokenize(req.Text).contains("if", "not", "exists")
			_, lookupErr := dc.ResolveTable(ddl.NewName)
			table, err := dc.CreateTable(schema, name, def.columns, def.primaryKey, ifNotExists)
			if err != nil {
				return err
			}
			if lookupErr == nil {
				// IF NOT EXISTS on an existing table.
				resp.SendOk(0, 0)
				return nil
			}
			for _, idx := range def.indexes {
				if err := dc.AddIndex(table.Schema, table.Name, idx.name, idx.typ, idx.unique, idx.columns); err != nil {
					return errors.CombineErrors(err, dc.DropTable(table.Schema, table.Name, true))
				}
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

type indexDef struct {
	name    string
	typ     string
	unique  bool
	columns []string
}

type tableDef struct {
	columns    []catalog.Column
	primaryKey []string
	indexes    []indexDef
}

// tableDefinition converts a parsed column and index list into catalog terms.
func tableDefinition(spec *sqlparser.TableSpec) (*tableDef, error) {
	def := &tableDef{}
	for _, col := range spec.Columns {
		typ, err := catalog.TypeFromSQL(col.Type.Type)
		if err != nil {
			return nil, err
		}
		column := catalog.Column{
			Name:          col.Name.String(),
			Type:          typ,
			SQLType:       col.Type.DescribeType(),
			NotNull:       bool(col.Type.NotNull),
			AutoIncrement: bool(col.Type.Autoincrement),
		}
		if col.Type.Default != nil {
			if column.Default, err = defaultValue(col.Type.Default, typ); err != nil {
				return nil, err
			}
		}
		def.columns = append(def.columns, column)

		// The column key option is always rendered last.
		rendered := strings.ToLower(sqlparser.String(&col.Type))
		switch {
		case strings.HasSuffix(rendered, " primary key"):
			def.primaryKey = append(def.primaryKey, column.Name)
		case strings.HasSuffix(rendered, " unique key"), strings.HasSuffix(rendered, " unique"):
			def.indexes = append(def.indexes, indexDef{name: column.Name, typ: "btree", unique: true, columns: []string{column.Name}})
		}
	}
	for _, idx := range spec.Indexes {
		columns := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			columns[i] = c.Column.String()
		}
		if idx.Info.Primary {
			if len(def.primaryKey) > 0 {
				return nil, common.NewError(common.DuplicateObjectError, "multiple primary key defined")
			}
			def.primaryKey = columns
			continue
		}
		name := idx.Info.Name.String()
		if name == "" {
			name = columns[0]
		}
		def.indexes = append(def.indexes, indexDef{name: name, typ: "btree", unique: idx.Info.Unique, columns: columns})
	}
	return def, nil
}

func defaultValue(val *sqlparser.SQLVal, typ common.Type) (common.Value, error) {
	text := string(val.Val)
	switch val.Type {
	case sqlparser.ValArg:
		if strings.EqualFold(text, "null") {
			return common.NewNull(typ), nil
		}
	case sqlparser.StrVal, sqlparser.IntVal:
		if typ == common.StringType {
			return common.NewStringValue(text), nil
		}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return common.NewIntValue(n), nil
		}
		return common.Value{}, common.NewError(common.EvaluationError, "invalid default value '%s'", text)
	}
	return common.Value{}, common.NewError(common.UnsupportedStatementError, "unsupported default value '%s'", text)
}

func dropTableHandler() Handler {
	return &handlerFunc{
		name:  "drop-table",
		match: isTableDDL(sqlparser.DropStr, "drop", "table"),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ddl := req.Stmt.(*sqlparser.DDL)
			if err := dc.DropTable(ddl.Table.Qualifier.String(), ddl.Table.Name.String(), ddl.IfExists); err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

func renameTableHandler() Handler {
	return &handlerFunc{
		name:  "rename-table",
		match: isDDL(sqlparser.RenameStr),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ddl := req.Stmt.(*sqlparser.DDL)
			err := dc.RenameTable(ddl.Table.Qualifier.String(), ddl.Table.Name.String(),
				ddl.NewName.Qualifier.String(), ddl.NewName.Name.String())
			if err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

// indexClause reads "[UNIQUE] {INDEX|KEY} [name] [USING type] (columns)" starting at i.
// An unnamed index is named after its first column.
func indexClause(ts tokens, i int) (indexDef, bool) {
	idx := indexDef{typ: "btree"}
	if i < len(ts) && ts[i].text == "unique" {
		idx.unique = true
		i++
	}
	if i >= len(ts) || (ts[i].text != "index" && ts[i].text != "key") {
		return idx, false
	}
	i++
	if i < len(ts) && ts[i].isName() {
		idx.name = ts[i].raw
		i++
	}
	if i+1 < len(ts) && ts[i].text == "using" {
		idx.typ = ts[i+1].text
		i += 2
	}
	columns, _, ok := ts.nameList(i)
	if !ok {
		return idx, false
	}
	idx.columns = columns
	if idx.name == "" {
		idx.name = columns[0]
	}
	return idx, true
}

// alterTableHandler supports ALTER TABLE t ADD [UNIQUE] {INDEX|KEY} name (columns).
// Other alterations are rejected.
func alterTableHandler() Handler {
	return &handlerFunc{
		name:  "alter-table",
		match: isTableDDL(sqlparser.AlterStr, "alter"),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ddl := req.Stmt.(*sqlparser.DDL)
			ts := tokenize(req.Text)
			add := ts.index("add")
			if add < 0 {
				return common.NewError(common.UnsupportedStatementError, "unsupported alter table: %s", req.Text)
			}
			idx, ok := indexClause(ts, add+1)
			if !ok {
				return common.NewError(common.UnsupportedStatementError, "unsupported alter table: %s", req.Text)
			}
			err := dc.AddIndex(ddl.Table.Qualifier.String(), ddl.Table.Name.String(), idx.name, idx.typ, idx.unique, idx.columns)
			if err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}

// createIndexHandler supports CREATE [UNIQUE] INDEX name [USING type] ON t (columns).
func createIndexHandler() Handler {
	return &handlerFunc{
		name:  "create-index",
		match: isTableDDL(sqlparser.AlterStr, "create"),
		execute: func(req *SQLRequest, dc DataContext, resp Response) error {
			ts := tokenize(req.Text)
			on := ts.index("on")
			if on < 0 {
				return common.NewError(common.ParseError, "bad create index: %s", req.Text)
			}
			// Reuse the ALTER TABLE clause reader on "[unique] index name [using t]" plus
			// the column list that follows the table name.
			table, next, ok := ts.tableName(on + 1)
			if !ok {
				return common.NewError(common.ParseError, "bad create index: %s", req.Text)
			}
			clause := append(append(tokens(nil), ts[1:on]...), ts[next:]...)
			idx, ok := indexClause(clause, 0)
			if !ok {
				return common.NewError(common.UnsupportedStatementError, "unsupported create index: %s", req.Text)
			}
			if err := dc.AddIndex(table.Qualifier.String(), table.Name.String(), idx.name, idx.typ, idx.unique, idx.columns); err != nil {
				return err
			}
			resp.SendOk(0, 0)
			return nil
		},
	}
}
