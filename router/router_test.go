package router

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/planspec"
	"mit.edu/dsg/sqlroute/session"
	"mit.edu/dsg/sqlroute/storage"
)

type testEnv struct {
	router *Router
	mgr    *session.Manager
	sess   *session.Session
}

// newTestEnv opens a session on database "test" holding t(a int primary key, b varchar).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat := catalog.NewCatalog()
	require.NoError(t, cat.CreateDatabase("test", false))
	mgr := session.NewManager(cat, storage.NewStore(), session.Config{
		DefaultSchema: "test",
		Plan:          planner.DefaultOptions(),
	})
	env := &testEnv{
		router: New(Config{PlanCache: planspec.NewCache(0)}),
		mgr:    mgr,
		sess:   mgr.NewSession(),
	}
	env.ok(t, "create table t (a int primary key, b varchar(20))")
	return env
}

func (e *testEnv) route(sql string) *ResponseBuffer {
	resp := &ResponseBuffer{}
	e.router.Route(TextRequest(sql), e.sess, resp)
	return resp
}

func (e *testEnv) explain(sql string) *ResponseBuffer {
	resp := &ResponseBuffer{}
	e.router.Explain(TextRequest(sql), e.sess, resp)
	return resp
}

// ok routes sql and expects a single OK.
func (e *testEnv) ok(t *testing.T, sql string) Event {
	t.Helper()
	resp := e.route(sql)
	require.Len(t, resp.Events, 1, sql)
	require.NoError(t, resp.Err(), sql)
	require.Equal(t, EventOk, resp.Last().Kind, sql)
	return resp.Last()
}

// query routes sql and returns the rows of its result set.
func (e *testEnv) query(t *testing.T, sql string) [][]string {
	t.Helper()
	resp := e.route(sql)
	require.Len(t, resp.Events, 1, sql)
	require.NoError(t, resp.Err(), sql)
	require.Equal(t, EventResultSet, resp.Last().Kind, sql)
	return resp.Last().ResultSet.Strings()
}

// fails routes sql and expects a single error with the given code.
func (e *testEnv) fails(t *testing.T, sql string, code common.ErrorCode) error {
	t.Helper()
	resp := e.route(sql)
	require.Len(t, resp.Events, 1, sql)
	require.Equal(t, EventError, resp.Last().Kind, sql)
	err := resp.Err()
	assert.True(t, common.HasCode(err, code), "%s: got %v", sql, err)
	return err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text    string
		outcome Outcome
		payload string
	}{
		{"execute plan op: scan", OutcomePlanBypass, "op: scan"},
		{"EXECUTE PLAN\n  {op: values}", OutcomePlanBypass, "{op: values}"},
		{"Execute Plan x", OutcomePlanBypass, "x"},
		{"EXECUTE PLAN", OutcomeStatements, "EXECUTE PLAN"},
		{"execute pla", OutcomeStatements, "execute pla"},
		{"select 1", OutcomeStatements, "select 1"},
		{"  execute plan x", OutcomeStatements, "  execute plan x"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			outcome, payload := Classify(tt.text)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestPlanBypass(t *testing.T) {
	env := newTestEnv(t)
	env.ok(t, "insert into t values (1, 'x'), (2, 'y'), (3, 'z')")

	rows := env.query(t, "EXECUTE PLAN {op: filter, condition: 'a >= 2', inputs: [{op: scan, table: t}]}")
	assert.Equal(t, [][]string{{"2", "y"}, {"3", "z"}}, rows)

	// Same payload again comes from the cache and sees new rows.
	env.ok(t, "insert into t values (4, 'w')")
	rows = env.query(t, "execute plan {op: filter, condition: 'a >= 2', inputs: [{op: scan, table: t}]}")
	assert.Len(t, rows, 3)

	env.fails(t, "execute plan {op: scan, table: missing}", common.NoSuchObjectError)
	env.fails(t, "execute plan op: [", common.ParseError)

	// Too short for a payload: parsed as SQL.
	env.fails(t, "EXECUTE PLAN", common.ParseError)
}

// recordingHandler claims the statements accepted by claims and records its calls.
type recordingHandler struct {
	name   string
	claims func(*SQLRequest) bool
	calls  []string
}

func (h *recordingHandler) Name() string {
	return h.name
}

func (h *recordingHandler) Execute(req *SQLRequest, _ DataContext, resp Response) (ExecuteCode, error) {
	if !h.claims(req) {
		return NotPerformed, nil
	}
	h.calls = append(h.calls, req.Text)
	resp.SendOk(0, 0)
	return Performed, nil
}

func (h *recordingHandler) Explain(req *SQLRequest, dc DataContext, resp Response) (ExecuteCode, error) {
	return h.Execute(req, dc, resp)
}

func TestFirstMatch(t *testing.T) {
	env := newTestEnv(t)
	selects := &recordingHandler{name: "selects", claims: isSelect}
	all := &recordingHandler{name: "all", claims: func(*SQLRequest) bool { return true }}
	r := New(Config{Registry: NewRegistry(selects, all)})

	for _, sql := range []string{"select 1", "select * from t", "insert into t values (9, 'q')"} {
		resp := &ResponseBuffer{}
		r.Route(TextRequest(sql), env.sess, resp)
		require.Len(t, resp.Events, 1)
	}
	assert.Equal(t, []string{"select 1", "select * from t"}, selects.calls)
	assert.Equal(t, []string{"insert into t values (9, 'q')"}, all.calls)

	h, ok := r.Registry().Lookup("all")
	require.True(t, ok)
	assert.Same(t, all, h)
}

func TestOnlyFirstStatementRuns(t *testing.T) {
	env := newTestEnv(t)
	resp := env.route("insert into t values (1, 'x'); insert into t values (2, 'y')")
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventOk, resp.Last().Kind)
	assert.Equal(t, int64(1), resp.Last().Affected)
	assert.True(t, resp.Last().HasMore)

	assert.Equal(t, [][]string{{"1", "x"}}, env.query(t, "select * from t"))
}

func TestEvaluationError(t *testing.T) {
	env := newTestEnv(t)
	err := env.fails(t, "select 1 % 0", common.EvaluationError)
	assert.Contains(t, err.Error(), "select 1 % 0")

	// The failed statement is visible to SHOW ERRORS.
	rows := env.query(t, "show errors")
	require.Len(t, rows, 1)
	assert.Equal(t, "Error", rows[0][0])
	assert.Equal(t, "1365", rows[0][1])
}

func TestUnclaimedStatements(t *testing.T) {
	env := newTestEnv(t)
	for _, sql := range []string{"show triggers", "repair table t", "optimize table t"} {
		resp := env.route(sql)
		require.Len(t, resp.Events, 1, sql)
		assert.Equal(t, EventProxyShow, resp.Last().Kind, sql)
		assert.NotNil(t, resp.Last().Stmt)
	}

	err := env.fails(t, "create view v as select 1", common.UnsupportedStatementError)
	assert.Contains(t, err.Error(), "DDL")
	assert.Contains(t, err.Error(), "create view v as select 1")
	env.fails(t, "drop index i on t", common.UnsupportedStatementError)
}

func TestParseError(t *testing.T) {
	env := newTestEnv(t)
	env.fails(t, "selec 1", common.ParseError)
	env.fails(t, "insert into t values (1, 'x'); selec", common.ParseError)
	env.fails(t, " ; ", common.ParseError)
	assert.Empty(t, env.query(t, "select * from t"))
}

func TestTransactions(t *testing.T) {
	env := newTestEnv(t)

	env.ok(t, "begin")
	assert.True(t, env.sess.InTransaction())
	env.ok(t, "insert into t values (1, 'x')")
	env.ok(t, "rollback")
	assert.False(t, env.sess.InTransaction())
	assert.Empty(t, env.query(t, "select * from t"))

	env.ok(t, "start transaction")
	env.ok(t, "insert into t values (2, 'y')")
	env.ok(t, "commit")
	env.ok(t, "rollback")
	assert.Equal(t, [][]string{{"2", "y"}}, env.query(t, "select * from t"))

	env.ok(t, "set autocommit = 0")
	env.ok(t, "insert into t values (3, 'z')")
	assert.True(t, env.sess.InTransaction())
	env.ok(t, "rollback")
	assert.Len(t, env.query(t, "select * from t"), 1)
}

func TestSet(t *testing.T) {
	env := newTestEnv(t)
	variable := func(name string) string {
		v, ok := env.sess.Variable(name)
		require.True(t, ok, name)
		return v.String()
	}

	env.ok(t, "set @x = 1 + 2, @@session.wait_timeout = 60")
	assert.Equal(t, "3", variable("@x"))
	assert.Equal(t, "60", variable("wait_timeout"))

	env.ok(t, "set autocommit = off")
	assert.Equal(t, "0", variable("autocommit"))
	env.ok(t, "set autocommit = DEFAULT")
	assert.Equal(t, "1", variable("autocommit"))

	env.ok(t, "set names utf8mb4")
	assert.Equal(t, "utf8mb4", variable("character_set_client"))
	assert.Equal(t, "utf8mb4", variable("character_set_results"))

	env.ok(t, "set session transaction isolation level read committed")
	assert.Equal(t, "READ-COMMITTED", variable("tx_isolation"))
	assert.Equal(t, "READ-COMMITTED", variable("transaction_isolation"))
	env.ok(t, "set transaction read only")
	assert.Equal(t, "1", variable("tx_read_only"))

	assert.Equal(t, [][]string{{"tx_isolation", "READ-COMMITTED"}}, env.query(t, "show variables like 'tx_isolation'"))
	assert.Equal(t, [][]string{{"3", "60"}}, env.query(t, "select @x, @@wait_timeout"))

	env.fails(t, "set no_such_variable = 1", common.NoSuchObjectError)
}

func TestDDL(t *testing.T) {
	env := newTestEnv(t)

	env.ok(t, "create database shop")
	env.fails(t, "create database shop", common.DuplicateObjectError)
	env.ok(t, "create database if not exists shop")
	assert.Equal(t, [][]string{{"Warning", "1050", "Can't create database 'shop'; database exists"}}, env.query(t, "show warnings"))

	env.ok(t, "use shop")
	assert.Equal(t, "shop", env.sess.Schema())
	env.fails(t, "use nowhere", common.NoSuchObjectError)

	env.ok(t, `create table items (
		id bigint not null auto_increment,
		sku varchar(16) unique,
		qty int default 0,
		primary key (id),
		key qty_idx (qty)
	)`)
	env.ok(t, "create table if not exists items (id int)")
	env.fails(t, "create table items (id int)", common.DuplicateObjectError)

	assert.Equal(t, [][]string{
		{"id", "bigint", "NO", "PRI", "NULL", "auto_increment"},
		{"sku", "varchar(16)", "YES", "UNI", "NULL", ""},
		{"qty", "int", "YES", "MUL", "0", ""},
	}, env.query(t, "show columns from items"))
	assert.Equal(t, env.query(t, "show columns from items"), env.query(t, "describe shop.items"))

	rows := env.query(t, "show create table items")
	require.Len(t, rows, 1)
	assert.Equal(t, "items", rows[0][0])
	assert.Contains(t, rows[0][1], "PRIMARY KEY (`id`)")
	assert.Contains(t, rows[0][1], "UNIQUE KEY `sku` (`sku`)")

	env.ok(t, "create unique index sku_qty on items (sku, qty)")
	env.ok(t, "alter table items add index by_qty (qty)")
	env.fails(t, "alter table items add column note varchar(10)", common.UnsupportedStatementError)
	table, err := env.sess.Catalog().GetTable("shop", "items")
	require.NoError(t, err)
	require.Len(t, table.Indexes, 4)
	assert.Equal(t, "sku_qty", table.Indexes[2].Name)
	assert.True(t, table.Indexes[2].Unique)
	assert.Equal(t, []string{"qty"}, table.Indexes[3].KeySchema)

	insert := env.ok(t, "insert into items (sku) values ('a'), ('b')")
	assert.Equal(t, int64(2), insert.Affected)
	assert.Equal(t, int64(1), insert.LastInsertID)

	env.ok(t, "truncate table items")
	assert.Empty(t, env.query(t, "select * from items"))

	env.ok(t, "rename table items to stock")
	env.ok(t, "alter table stock rename to goods")
	assert.Equal(t, [][]string{{"goods"}}, env.query(t, "show tables"))
	assert.Equal(t, [][]string{{"goods", "BASE TABLE"}}, env.query(t, "show full tables from shop like 'g%'"))

	env.ok(t, "drop table goods")
	env.ok(t, "drop table if exists goods")
	assert.Len(t, env.query(t, "show warnings"), 1)
	env.fails(t, "drop table goods", common.NoSuchObjectError)

	env.ok(t, "drop database shop")
	assert.Equal(t, "", env.sess.Schema())
	env.fails(t, "show tables", common.NoSuchObjectError)
	env.ok(t, "drop database if exists shop")
}

func TestShow(t *testing.T) {
	env := newTestEnv(t)
	env.ok(t, "create database tmp")

	assert.Equal(t, [][]string{{"test"}, {"tmp"}}, env.query(t, "SHOW DATABASES"))
	assert.Equal(t, [][]string{{"tmp"}}, env.query(t, "show databases like 'tm_'"))
	assert.Equal(t, [][]string{{"t"}}, env.query(t, "show tables"))
	assert.Equal(t, [][]string{{"autocommit", "1"}}, env.query(t, "show session variables like 'autocommit'"))
	assert.Equal(t, [][]string{{"Open_tables", "1"}}, env.query(t, "show status like 'open%'"))

	engines := env.query(t, "show engines")
	require.Len(t, engines, 1)
	assert.Equal(t, "DEFAULT", engines[0][1])

	resp := env.route("show tables")
	assert.Equal(t, []string{"Tables_in_test"}, resp.Last().ResultSet.ColumnNames())

	assert.Empty(t, env.query(t, "show warnings"))
}

func TestExplain(t *testing.T) {
	env := newTestEnv(t)

	resp := env.explain("select b from t where a = 1")
	require.Len(t, resp.Events, 1)
	require.Equal(t, EventResultSet, resp.Last().Kind)
	lines := strings.Join(flatten(resp.Last().ResultSet.Strings()), "\n")
	assert.Contains(t, lines, "TableScan")

	// Explained DML plans but does not run.
	resp = env.explain("insert into t values (1, 'x')")
	require.Equal(t, EventResultSet, resp.Last().Kind)
	assert.True(t, strings.HasPrefix(resp.Last().ResultSet.Strings()[0][0], "Insert"))
	assert.Empty(t, env.query(t, "select * from t"))

	resp = env.explain("set autocommit = 0")
	require.Equal(t, EventResultSet, resp.Last().Kind)
	assert.Equal(t, [][]string{{"set: set autocommit = 0"}}, resp.Last().ResultSet.Strings())
	assert.True(t, env.sess.Autocommit())

	resp = env.explain(`execute plan
op: join
algorithm: batch_nested_loop
condition: "x.a = y.a"
inputs: [{op: scan, table: t, alias: x}, {op: scan, table: t, alias: y}]`)
	require.Equal(t, EventResultSet, resp.Last().Kind)
	assert.True(t, strings.HasPrefix(resp.Last().ResultSet.Strings()[0][0], "BatchNestedLoopJoin"))

	resp = env.explain("select 1; select 2")
	assert.True(t, common.HasCode(resp.Err(), common.ParseError))

	// EXPLAIN as a statement.
	rows := env.query(t, "explain select * from t")
	assert.NotEmpty(t, rows)
	rows = env.query(t, "explain t")
	assert.Len(t, rows, 2)
}

func flatten(rows [][]string) []string {
	var out []string
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}

func TestParseUnits(t *testing.T) {
	units, err := parseUnits("BEGIN WORK")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.IsType(t, &sqlparser.Begin{}, units[0].stmt)

	units, err = parseUnits("select 1; select 'a;b';")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "select 'a;b'", units[1].text)
}

func TestKill(t *testing.T) {
	env := newTestEnv(t)
	other := env.mgr.NewSession()
	defer func() { _ = other.Close() }()

	env.fails(t, "kill 9999", common.NoSuchObjectError)
	env.fails(t, "kill connection abc", common.ParseError)
	env.fails(t, "kill 1 2", common.ParseError)

	env.ok(t, fmt.Sprintf("kill query %d", other.ConnectionID()))
	env.ok(t, fmt.Sprintf("kill connection %d", other.ConnectionID()))
	rows := env.query(t, "show processlist")
	require.Len(t, rows, 2)
	assert.Equal(t, "Killed", rows[1][4])

	resp := &ResponseBuffer{}
	env.router.Route(TextRequest("select 1"), other, resp)
	assert.True(t, common.HasCode(resp.Err(), common.ConnectionKilledError))

	env.ok(t, fmt.Sprintf("kill %d", env.sess.ConnectionID()))
	env.fails(t, "select 1", common.ConnectionKilledError)
}

func TestAlterDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.ok(t, "create database shop")

	ev := env.ok(t, "alter database shop character set latin1")
	assert.Equal(t, int64(1), ev.Affected)
	charset, collation, err := env.sess.Catalog().DatabaseCharset("shop")
	require.NoError(t, err)
	assert.Equal(t, "latin1", charset)
	assert.Equal(t, "latin1_swedish_ci", collation)

	env.ok(t, "alter schema collate utf8mb4_bin")
	_, collation, err = env.sess.Catalog().DatabaseCharset("test")
	require.NoError(t, err)
	assert.Equal(t, "utf8mb4_bin", collation)

	env.ok(t, "alter database shop default charset = utf8 collate = utf8_bin")
	charset, collation, err = env.sess.Catalog().DatabaseCharset("shop")
	require.NoError(t, err)
	assert.Equal(t, []string{"utf8", "utf8_bin"}, []string{charset, collation})

	env.fails(t, "alter database shop character set klingon", common.NoSuchObjectError)
	env.fails(t, "alter database nowhere character set latin1", common.NoSuchObjectError)
	env.fails(t, "alter database shop character set latin1 collate utf8_bin", common.EvaluationError)
	env.fails(t, "alter database shop", common.ParseError)
	env.fails(t, "alter database shop engine innodb", common.ParseError)
}

func TestShowServerMetadata(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, [][]string{
		{"utf8", "UTF-8 Unicode", "utf8_general_ci", "3"},
		{"utf8mb4", "UTF-8 Unicode", "utf8mb4_general_ci", "4"},
	}, env.query(t, "show character set like 'utf8%'"))
	assert.Equal(t, [][]string{
		{"latin1_bin", "latin1", "47", "", "Yes", "1"},
		{"latin1_swedish_ci", "latin1", "8", "Yes", "Yes", "1"},
	}, env.query(t, "show collation like 'LATIN1%'"))

	assert.Empty(t, env.query(t, "show procedure status"))
	assert.Empty(t, env.query(t, "show function status like 'f%'"))
	env.fails(t, "show create function f", common.NoSuchObjectError)
	err := env.fails(t, "show create procedure test.p", common.NoSuchObjectError)
	assert.Contains(t, err.Error(), "PROCEDURE")

	// A LIKE pattern of many wildcards is matched in linear time.
	assert.Empty(t, env.query(t, "show variables like '%%%%%%%%%%%%%%%%%%%%%%%%#'"))
}

func TestShowIndexes(t *testing.T) {
	env := newTestEnv(t)
	env.ok(t, "alter table t add index idx_b (b)")

	rows := env.query(t, "show index from t")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"t", "0", "PRIMARY", "1", "a", "A", "NULL", "NULL", "NULL", "", "BTREE", "", ""}, rows[0])
	assert.Equal(t, []string{"t", "1", "idx_b", "1", "b"}, rows[1][:5])
	assert.Equal(t, "YES", rows[1][9])

	assert.Equal(t, rows, env.query(t, "show keys in t"))
	assert.Equal(t, rows, env.query(t, "show indexes from test.t"))
	env.fails(t, "show index from missing", common.NoSuchObjectError)
}

func TestShowTableStatus(t *testing.T) {
	env := newTestEnv(t)
	env.ok(t, "create table counter (id int auto_increment primary key, n int)")
	env.ok(t, "insert into counter (n) values (1), (2)")
	env.ok(t, "insert into t values (1, 'x')")

	rows := env.query(t, "show table status")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"counter", "InnoDB", "10", "Dynamic", "2"}, rows[0][:5])
	assert.Equal(t, "3", rows[0][10])
	assert.Equal(t, "utf8mb4_general_ci", rows[0][14])
	assert.Equal(t, "NULL", rows[1][10])

	rows = env.query(t, "show table status from test like 't'")
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0][4])

	env.fails(t, "show table status where Rows > 1", common.UnsupportedStatementError)
}

func TestShowProcessList(t *testing.T) {
	env := newTestEnv(t)
	env.ok(t, "create database tmp")
	other := env.mgr.NewSession()
	defer func() { _ = other.Close() }()
	require.NoError(t, other.UseSchema("tmp"))

	rows := env.query(t, "show processlist")
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"root", "localhost", "test", "Query", "0", "starting", "show processlist"}, rows[0][1:])
	assert.Equal(t, []string{"tmp", "Sleep"}, rows[1][3:5])
	assert.Equal(t, "NULL", rows[1][7])

	long := "show full processlist /* " + strings.Repeat("x", 200) + " */"
	rows = env.query(t, long)
	assert.Equal(t, long, rows[0][7])
	rows = env.query(t, "show processlist /* "+strings.Repeat("x", 200)+" */")
	assert.Len(t, rows[0][7], 100)
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, [][]string{{"test.t", "analyze", "status", "OK"}}, env.query(t, "analyze table t"))
	assert.Equal(t, [][]string{
		{"test.missing", "analyze", "Error", "Table 'test.missing' doesn't exist"},
		{"test.missing", "analyze", "status", "Operation failed"},
	}, env.query(t, "analyze table missing"))
}

func TestDefaultRegistryShared(t *testing.T) {
	reg := DefaultRegistry()
	assert.Same(t, reg, DefaultRegistry())
	for _, name := range []string{"kill", "alter-database", "show-character-set", "show-collation",
		"show-indexes", "show-table-status", "show-procedure-status", "show-processlist",
		"show-create-function", "analyze"} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, name)
	}
}

func TestBatchSizeLimit(t *testing.T) {
	env := newTestEnv(t)
	env.fails(t, `execute plan
op: join
algorithm: batch_nested_loop
variables: 3000000
condition: "x.a = y.a"
inputs: [{op: scan, table: t, alias: x}, {op: scan, table: t, alias: y}]`, common.PlanConstructionError)
}
