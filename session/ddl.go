package session

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
)

// The DDL operations below keep the catalog and the table store consistent and commit
// any open transaction first, as MySQL does.

// qualify returns schema, or the current schema when schema is empty.
func (s *Session) qualify(schema string) string {
	if schema == "" {
		return s.schema
	}
	return schema
}

// CreateTable registers a table and allocates its storage. With ifNotExists an existing
// table is left untouched and reported as a warning.
func (s *Session) CreateTable(schema, name string, columns []catalog.Column, primaryKey []string, ifNotExists bool) (*catalog.Table, error) {
	if err := s.ImplicitCommit(); err != nil {
		return nil, err
	}
	schema = s.qualify(schema)
	if ifNotExists {
		if t, err := s.mgr.catalog.GetTable(schema, name); err == nil {
			s.Warn(common.DuplicateObjectError, "Table '%s' already exists", name)
			return t, nil
		}
	}
	table, err := s.mgr.catalog.CreateTable(schema, name, columns, primaryKey)
	if err != nil {
		return nil, err
	}
	if _, err := s.mgr.store.CreateTable(table.Oid, table.PrimaryKey); err != nil {
		_, dropErr := s.mgr.catalog.DropTable(table.Schema, table.Name, true)
		return nil, errors.CombineErrors(err, dropErr)
	}
	s.logger.Info("created table", zap.String("table", table.QualifiedName()), zap.Uint32("oid", uint32(table.Oid)))
	return table, nil
}

// DropTable removes a table and its rows.
func (s *Session) DropTable(schema, name string, ifExists bool) error {
	if err := s.ImplicitCommit(); err != nil {
		return err
	}
	table, err := s.mgr.catalog.DropTable(s.qualify(schema), name, ifExists)
	if err != nil {
		return err
	}
	if table == nil {
		s.Warn(common.NoSuchObjectError, "Unknown table '%s'", name)
		return nil
	}
	s.mgr.store.DropTable(table.Oid)
	s.logger.Info("dropped table", zap.String("table", table.QualifiedName()))
	return nil
}

// TruncateTable removes every row of a table. It is not transactional.
func (s *Session) TruncateTable(schema, name string) error {
	if err := s.ImplicitCommit(); err != nil {
		return err
	}
	table, err := s.mgr.catalog.GetTable(s.qualify(schema), name)
	if err != nil {
		return err
	}
	mem, err := s.mgr.store.GetTable(table.Oid)
	if err != nil {
		return err
	}
	mem.Truncate()
	return nil
}

// RenameTable moves a table to a new name, possibly in another schema.
func (s *Session) RenameTable(schema, name, newSchema, newName string) error {
	if err := s.ImplicitCommit(); err != nil {
		return err
	}
	_, err := s.mgr.catalog.RenameTable(s.qualify(schema), name, s.qualify(newSchema), newName)
	return err
}

// CreateDatabase creates an empty schema.
func (s *Session) CreateDatabase(name string, ifNotExists bool) error {
	if err := s.ImplicitCommit(); err != nil {
		return err
	}
	if ifNotExists && s.mgr.catalog.HasDatabase(name) {
		s.Warn(common.DuplicateObjectError, "Can't create database '%s'; database exists", name)
		return nil
	}
	return s.mgr.catalog.CreateDatabase(name, ifNotExists)
}

// DropDatabase removes a schema together with its tables. Dropping the current schema
// leaves the session without one.
func (s *Session) DropDatabase(name string, ifExists bool) error {
	if err := s.ImplicitCommit(); err != nil {
		return err
	}
	existed := s.mgr.catalog.HasDatabase(name)
	tables, err := s.mgr.catalog.DropDatabase(name, ifExists)
	if err != nil {
		return err
	}
	if !existed {
		s.Warn(common.NoSuchObjectError, "Can't drop database '%s'; database doesn't exist", name)
		return nil
	}
	for _, t := range tables {
		s.mgr.store.DropTable(t.Oid)
	}
	if strings.EqualFold(s.schema, name) {
		s.setSchema("")
	}
	s.logger.Info("dropped database", zap.String("database", name), zap.Int("tables", len(tables)))
	return nil
}

// AlterDatabase changes the default character set and collation of a database, the
// current one when name is empty.
func (s *Session) AlterDatabase(name, charset, collation string) error {
	if err := s.ImplicitCommit(); err != nil {
		return err
	}
	name = s.qualify(name)
	if name == "" {
		return common.NewError(common.NoSuchObjectError, "no database selected")
	}
	if err := s.mgr.catalog.AlterDatabase(name, charset, collation); err != nil {
		return err
	}
	s.logger.Info("altered database", zap.String("database", name),
		zap.String("charset", charset), zap.String("collation", collation))
	return nil
}

// TableStatus is one row of SHOW TABLE STATUS.
type TableStatus struct {
	Table *catalog.Table
	Rows  int
	// AutoIncrement is the next auto-increment value, 0 when the table has no
	// auto-increment column.
	AutoIncrement int64
}

// TableStatus reports the row counts of the tables of schema, the current one when empty.
func (s *Session) TableStatus(schema string) ([]TableStatus, error) {
	tables, err := s.mgr.catalog.Tables(s.qualify(schema))
	if err != nil {
		return nil, err
	}
	out := make([]TableStatus, 0, len(tables))
	for _, t := range tables {
		mem, err := s.mgr.store.GetTable(t.Oid)
		if err != nil {
			return nil, err
		}
		st := TableStatus{Table: t, Rows: mem.Len()}
		for _, c := range t.Columns {
			if c.AutoIncrement {
				st.AutoIncrement = mem.PeekAutoIncrement()
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// AddIndex records a secondary index on a table.
func (s *Session) AddIndex(schema, table, indexName, indexType string, unique bool, columns []string) error {
	if err := s.ImplicitCommit(); err != nil {
		return err
	}
	_, err := s.mgr.catalog.AddIndex(s.qualify(schema), table, indexName, indexType, unique, columns)
	return err
}
