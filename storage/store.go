package storage

import (
	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/sqlroute/common"
)

// Store maps catalog table ids to their in-memory rows.
type Store struct {
	tables *xsync.MapOf[common.ObjectID, *MemTable]
}

func NewStore() *Store {
	return &Store{tables: xsync.NewMapOf[common.ObjectID, *MemTable]()}
}

// CreateTable registers an empty table. It fails if oid is already registered.
func (s *Store) CreateTable(oid common.ObjectID, keyCols []int) (*MemTable, error) {
	table, loaded := s.tables.LoadOrStore(oid, NewMemTable(oid, keyCols))
	if loaded {
		return nil, common.NewError(common.DuplicateObjectError, "table %d already has storage", oid)
	}
	return table, nil
}

// GetTable returns the rows of a table.
func (s *Store) GetTable(oid common.ObjectID) (*MemTable, error) {
	table, ok := s.tables.Load(oid)
	if !ok {
		return nil, common.NewError(common.NoSuchObjectError, "no storage for table %d", oid)
	}
	return table, nil
}

// DropTable releases the rows of a table. Dropping an unknown table is a no-op.
func (s *Store) DropTable(oid common.ObjectID) {
	s.tables.Delete(oid)
}

// NumTables returns the number of tables with storage.
func (s *Store) NumTables() int {
	return s.tables.Size()
}
