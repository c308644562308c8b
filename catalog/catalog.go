package catalog

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/sqlroute/common"
)

// Catalog manages the databases (schemas) and tables known to the router and provides
// fast, lock-free lookups.
//
// Names are case-insensitive: they are stored as written but keyed in lower case.
//
// IMMUTABILITY & SCHEMA EVOLUTION:
// Table values are never modified once published. DDL that changes a table (rename, new
// index) builds a new *Table and swaps it in, so a statement that bound a table keeps a
// consistent view of it even while DDL runs in another session. Every DDL bumps Version,
// which callers use to invalidate anything derived from the catalog (e.g., cached plans).
type Catalog struct {
	// ddlLatch serializes DDL; lookups never take it.
	ddlLatch  sync.Mutex
	databases *xsync.MapOf[string, *Database]
	nextID    atomic.Uint32
	version   atomic.Uint64
}

// Database groups tables under a name.
type Database struct {
	Oid       common.ObjectID
	Name      string
	Charset   string
	Collation string
	tables    *xsync.MapOf[string, *Table]
}

// Column represents the basic unit of a table schema.
type Column struct {
	Name          string      `json:"name"`
	Type          common.Type `json:"type"`
	SQLType       string      `json:"sql_type"`
	NotNull       bool        `json:"not_null"`
	AutoIncrement bool        `json:"auto_increment"`
	// Default is nil (IsNil) when the column has no default.
	Default common.Value `json:"-"`
}

// Index describes a secondary access path declared on a table. Indexes are metadata only.
type Index struct {
	Oid       common.ObjectID `json:"oid"`
	TableOid  common.ObjectID `json:"table_oid"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Unique    bool            `json:"unique"`
	KeySchema []string        `json:"key_schema"` // List of column names
}

// Table is the primary metadata structure. It groups columns and their
// associated indexes under a unique ObjectID.
type Table struct {
	Oid        common.ObjectID `json:"oid"`
	Schema     string          `json:"schema"`
	Name       string          `json:"name"`
	Columns    []Column        `json:"columns"`
	PrimaryKey []int           `json:"primary_key"`
	Indexes    []Index         `json:"indexes"`
}

func (t *Table) String() string {
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// QualifiedName returns schema.name.
func (t *Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

// Types returns the column types in order.
func (t *Table) Types() []common.Type {
	types := make([]common.Type, len(t.Columns))
	for i, col := range t.Columns {
		types[i] = col.Type
	}
	return types
}

func (t *Table) clone() *Table {
	cp := *t
	cp.Columns = append([]Column(nil), t.Columns...)
	cp.PrimaryKey = append([]int(nil), t.PrimaryKey...)
	cp.Indexes = append([]Index(nil), t.Indexes...)
	return &cp
}

func key(name string) string {
	return strings.ToLower(name)
}

// NewCatalog initializes an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		databases: xsync.NewMapOf[string, *Database](),
	}
}

func (c *Catalog) allocateID() common.ObjectID {
	// oid 0 is reserved for INVALID
	return common.ObjectID(c.nextID.Add(1))
}

// Version returns a counter that changes on every successful DDL operation.
func (c *Catalog) Version() uint64 {
	return c.version.Load()
}

// CreateDatabase registers a new, empty database.
func (c *Catalog) CreateDatabase(name string, ifNotExists bool) error {
	c.ddlLatch.Lock()
	defer c.ddlLatch.Unlock()

	if _, exists := c.databases.Load(key(name)); exists {
		if ifNotExists {
			return nil
		}
		return common.NewError(common.DuplicateObjectError, "database '%s' already exists", name)
	}
	c.databases.Store(key(name), &Database{
		Oid:       c.allocateID(),
		Name:      name,
		Charset:   DefaultCharset,
		Collation: DefaultCollation,
		tables:    xsync.NewMapOf[string, *Table](),
	})
	c.version.Add(1)
	return nil
}

// AlterDatabase changes the default character set and collation of a database. Empty
// arguments are completed by ResolveCharset; both empty leaves the database unchanged.
func (c *Catalog) AlterDatabase(name, charset, collation string) error {
	c.ddlLatch.Lock()
	defer c.ddlLatch.Unlock()

	db, err := c.getDatabase(name)
	if err != nil {
		return err
	}
	if charset == "" && collation == "" {
		return nil
	}
	charset, collation, err = ResolveCharset(charset, collation)
	if err != nil {
		return err
	}
	updated := *db
	updated.Charset, updated.Collation = charset, collation
	c.databases.Store(key(name), &updated)
	c.version.Add(1)
	return nil
}

// DatabaseCharset returns the default character set and collation of a database.
func (c *Catalog) DatabaseCharset(name string) (string, string, error) {
	db, err := c.getDatabase(name)
	if err != nil {
		return "", "", err
	}
	return db.Charset, db.Collation, nil
}

// DropDatabase removes a database and returns the tables it contained, so the caller can
// release their storage.
func (c *Catalog) DropDatabase(name string, ifExists bool) ([]*Table, error) {
	c.ddlLatch.Lock()
	defer c.ddlLatch.Unlock()

	db, exists := c.databases.LoadAndDelete(key(name))
	if !exists {
		if ifExists {
			return nil, nil
		}
		return nil, common.NewError(common.NoSuchObjectError, "database '%s' does not exist", name)
	}
	c.version.Add(1)
	return db.sortedTables(), nil
}

// HasDatabase reports whether the database exists.
func (c *Catalog) HasDatabase(name string) bool {
	_, ok := c.databases.Load(key(name))
	return ok
}

// Databases returns the names of all databases, sorted.
func (c *Catalog) Databases() []string {
	var names []string
	c.databases.Range(func(_ string, db *Database) bool {
		names = append(names, db.Name)
		return true
	})
	sort.Strings(names)
	return names
}

func (c *Catalog) getDatabase(name string) (*Database, error) {
	if name == "" {
		return nil, common.NewError(common.NoSuchObjectError, "no database selected")
	}
	db, ok := c.databases.Load(key(name))
	if !ok {
		return nil, common.NewError(common.NoSuchObjectError, "database '%s' does not exist", name)
	}
	return db, nil
}

func (db *Database) sortedTables() []*Table {
	var tables []*Table
	db.tables.Range(func(_ string, t *Table) bool {
		tables = append(tables, t)
		return true
	})
	sort.Slice(tables, func(i, j int) bool { return key(tables[i].Name) < key(tables[j].Name) })
	return tables
}

// CreateTable registers a new table in the given database.
// It assigns a globally unique ObjectID to the table. If the table already exists, it
// returns DuplicateObjectError. primaryKey lists column names.
func (c *Catalog) CreateTable(schema, name string, columns []Column, primaryKey []string) (*Table, error) {
	c.ddlLatch.Lock()
	defer c.ddlLatch.Unlock()

	db, err := c.getDatabase(schema)
	if err != nil {
		return nil, err
	}
	if _, exists := db.tables.Load(key(name)); exists {
		return nil, common.NewError(common.DuplicateObjectError, "table '%s.%s' already exists", db.Name, name)
	}
	if len(columns) == 0 {
		return nil, common.NewError(common.UnsupportedStatementError, "table '%s' must have at least one column", name)
	}

	t := &Table{
		Oid:     c.allocateID(),
		Schema:  db.Name,
		Name:    name,
		Columns: columns,
		Indexes: make([]Index, 0),
	}
	seen := make(map[string]bool)
	for _, col := range columns {
		if seen[key(col.Name)] {
			return nil, common.NewError(common.DuplicateObjectError, "duplicate column '%s' in table '%s'", col.Name, name)
		}
		seen[key(col.Name)] = true
	}
	for _, colName := range primaryKey {
		idx := t.ColumnIndex(colName)
		if idx < 0 {
			return nil, common.NewError(common.NoSuchObjectError, "column '%s' does not exist in table '%s'", colName, name)
		}
		t.PrimaryKey = append(t.PrimaryKey, idx)
		t.Columns[idx].NotNull = true
	}

	db.tables.Store(key(name), t)
	c.version.Add(1)
	return t, nil
}

// DropTable removes a table. With ifExists, dropping a missing table returns (nil, nil).
func (c *Catalog) DropTable(schema, name string, ifExists bool) (*Table, error) {
	c.ddlLatch.Lock()
	defer c.ddlLatch.Unlock()

	db, err := c.getDatabase(schema)
	if err != nil {
		if ifExists {
			return nil, nil
		}
		return nil, err
	}
	t, exists := db.tables.LoadAndDelete(key(name))
	if !exists {
		if ifExists {
			return nil, nil
		}
		return nil, common.NewError(common.NoSuchObjectError, "table '%s.%s' does not exist", db.Name, name)
	}
	c.version.Add(1)
	return t, nil
}

// RenameTable moves a table to a new name, possibly in another database. The table keeps
// its ObjectID, so its rows stay where they are.
func (c *Catalog) RenameTable(schema, name, newSchema, newName string) (*Table, error) {
	c.ddlLatch.Lock()
	defer c.ddlLatch.Unlock()

	from, err := c.getDatabase(schema)
	if err != nil {
		return nil, err
	}
	to, err := c.getDatabase(newSchema)
	if err != nil {
		return nil, err
	}
	t, exists := from.tables.Load(key(name))
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s.%s' does not exist", from.Name, name)
	}
	if _, clash := to.tables.Load(key(newName)); clash {
		return nil, common.NewError(common.DuplicateObjectError, "table '%s.%s' already exists", to.Name, newName)
	}

	renamed := t.clone()
	renamed.Schema = to.Name
	renamed.Name = newName
	from.tables.Delete(key(name))
	to.tables.Store(key(newName), renamed)
	c.version.Add(1)
	return renamed, nil
}

// GetTable fetches the schema for a specific table.
func (c *Catalog) GetTable(schema, name string) (*Table, error) {
	db, err := c.getDatabase(schema)
	if err != nil {
		return nil, err
	}
	t, exists := db.tables.Load(key(name))
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s.%s' does not exist", db.Name, name)
	}
	return t, nil
}

// Tables returns all tables of a database, sorted by name.
func (c *Catalog) Tables(schema string) ([]*Table, error) {
	db, err := c.getDatabase(schema)
	if err != nil {
		return nil, err
	}
	return db.sortedTables(), nil
}

// AddIndex attaches a new index definition to a table. If an index with that name
// already exists, it returns DuplicateObjectError.
func (c *Catalog) AddIndex(schema, tableName, indexName, indexType string, unique bool, columnNames []string) (*Index, error) {
	c.ddlLatch.Lock()
	defer c.ddlLatch.Unlock()

	db, err := c.getDatabase(schema)
	if err != nil {
		return nil, err
	}
	table, exists := db.tables.Load(key(tableName))
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s.%s' does not exist", db.Name, tableName)
	}

	// Check for duplicate index name on this table
	for _, idx := range table.Indexes {
		if strings.EqualFold(idx.Name, indexName) {
			return nil, common.NewError(common.DuplicateObjectError, "index '%s' already exists on table '%s'", indexName, tableName)
		}
	}

	// Validate columns exist
	for _, colName := range columnNames {
		if table.ColumnIndex(colName) < 0 {
			return nil, common.NewError(common.NoSuchObjectError, "column '%s' does not exist in table '%s'", colName, tableName)
		}
	}

	idx := Index{
		Oid:       c.allocateID(),
		TableOid:  table.Oid,
		Name:      indexName,
		Type:      indexType,
		Unique:    unique,
		KeySchema: columnNames,
	}

	updated := table.clone()
	updated.Indexes = append(updated.Indexes, idx)
	db.tables.Store(key(tableName), updated)
	c.version.Add(1)
	return &idx, nil
}
