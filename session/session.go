package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/execution"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
	"mit.edu/dsg/sqlroute/transaction"
)

// Session is the per-connection data context: current schema, variables, transaction
// state and the diagnostics of the last statement. A Session is used by one connection
// at a time and is not safe for concurrent use.
type Session struct {
	mgr    *Manager
	id     uint32
	logger *zap.Logger
	opened time.Time

	// Read by other sessions through Manager.Processes and Manager.Kill.
	published  atomic.Pointer[string]
	lastActive atomic.Int64
	killed     atomic.Bool

	schema   string
	vars     map[string]common.Value
	userVars map[string]common.Value

	// txn is the open transaction, explicit or implicit (autocommit=0). nil when none.
	txn          *transaction.TransactionContext
	lastInsertID int64

	warnings []Diagnostic
	errors   []Diagnostic
}

// Diagnostic is one entry of SHOW WARNINGS / SHOW ERRORS.
type Diagnostic struct {
	Level string
	// Code is the MySQL error number.
	Code    uint16
	Message string
}

func (s *Session) ConnectionID() uint32 {
	return s.id
}

// Schema returns the current schema, or "" if none is selected.
func (s *Session) Schema() string {
	return s.schema
}

// UseSchema makes name the current schema.
func (s *Session) UseSchema(name string) error {
	if !s.mgr.catalog.HasDatabase(name) {
		return common.NewError(common.NoSuchObjectError, "unknown database '%s'", name)
	}
	s.setSchema(name)
	return nil
}

func (s *Session) setSchema(name string) {
	s.schema = name
	s.published.Store(&name)
}

// StartRequest marks the start of a request. Once the session was killed it rolls back
// the open transaction and fails every request.
func (s *Session) StartRequest() error {
	if s.killed.Load() {
		return errors.CombineErrors(
			common.NewError(common.ConnectionKilledError, "Connection %d was killed", s.id),
			s.Rollback())
	}
	s.lastActive.Store(time.Now().UnixNano())
	return nil
}

// Kill ends another session, or this one. See Manager.Kill.
func (s *Session) Kill(id uint32, query bool) error {
	return s.mgr.Kill(id, query)
}

func (s *Session) Processes() []Process {
	return s.mgr.Processes()
}

func (s *Session) Catalog() *catalog.Catalog {
	return s.mgr.catalog
}

func (s *Session) Store() *storage.Store {
	return s.mgr.store
}

func (s *Session) PlanOptions() planner.Options {
	return s.mgr.cfg.Plan
}

func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// LastInsertID returns the first auto-increment value generated by the most recent
// insert that generated one.
func (s *Session) LastInsertID() int64 {
	return s.lastInsertID
}

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	return s.txn != nil
}

// statementTxn returns the transaction a statement runs in. implicit is true when the
// transaction was opened for this statement alone and must be finished by the caller.
func (s *Session) statementTxn() (txn *transaction.TransactionContext, implicit bool) {
	if s.txn != nil {
		return s.txn, false
	}
	if !s.Autocommit() {
		s.txn = s.mgr.tm.Begin(false)
		return s.txn, false
	}
	return s.mgr.tm.Begin(false), true
}

// Query runs plan in the session's transaction. A failing statement rolls back its own
// writes and leaves earlier statements of the transaction in place.
func (s *Session) Query(plan *planner.PlanNode) (*execution.ResultSet, error) {
	txn, implicit := s.statementTxn()
	sp := txn.Savepoint()

	ctx := execution.NewExecutorContext(s.mgr.store, txn, s.mgr.cfg.Plan.BatchSize)
	rs, err := execution.Run(plan, ctx)
	if err != nil {
		if implicit {
			return rs, errors.CombineErrors(err, s.mgr.tm.Abort(txn))
		}
		txn.RollbackTo(sp)
		return rs, err
	}
	if id := ctx.LastInsertID(); id != 0 {
		s.lastInsertID = id
	}
	if implicit {
		return rs, s.mgr.tm.Commit(txn)
	}
	return rs, nil
}

// Begin starts an explicit transaction, committing any open one first.
func (s *Session) Begin() error {
	if err := s.Commit(); err != nil {
		return err
	}
	s.txn = s.mgr.tm.Begin(true)
	s.logger.Debug("begin", zap.Uint64("txn", uint64(s.txn.ID())))
	return nil
}

// Commit ends the open transaction, if any, keeping its changes.
func (s *Session) Commit() error {
	if s.txn == nil {
		return nil
	}
	txn := s.txn
	s.txn = nil
	s.logger.Debug("commit", zap.Uint64("txn", uint64(txn.ID())), zap.Int("changes", txn.NumChanges()))
	return s.mgr.tm.Commit(txn)
}

// Rollback ends the open transaction, if any, undoing its changes.
func (s *Session) Rollback() error {
	if s.txn == nil {
		return nil
	}
	txn := s.txn
	s.txn = nil
	s.logger.Debug("rollback", zap.Uint64("txn", uint64(txn.ID())), zap.Int("changes", txn.NumChanges()))
	return s.mgr.tm.Abort(txn)
}

// ImplicitCommit commits the open transaction before a statement that cannot run inside
// one (DDL).
func (s *Session) ImplicitCommit() error {
	return s.Commit()
}

// Close rolls back any open transaction and removes the session from the process list.
func (s *Session) Close() error {
	s.mgr.sessions.Delete(s.id)
	return s.Rollback()
}

func (s *Session) Warn(code common.ErrorCode, format string, args ...any) {
	s.warnings = append(s.warnings, Diagnostic{Level: "Warning", Code: code.MySQLCode(), Message: fmt.Sprintf(format, args...)})
}

// RecordError remembers err for SHOW ERRORS and SHOW WARNINGS.
func (s *Session) RecordError(err error) {
	s.errors = append(s.errors, Diagnostic{Level: "Error", Code: common.MySQLCodeOf(err), Message: err.Error()})
}

// Warnings returns the warnings and errors of the last statement.
func (s *Session) Warnings() []Diagnostic {
	out := make([]Diagnostic, 0, len(s.warnings)+len(s.errors))
	out = append(out, s.warnings...)
	return append(out, s.errors...)
}

// Errors returns the errors of the last statement.
func (s *Session) Errors() []Diagnostic {
	return append([]Diagnostic(nil), s.errors...)
}

// ResetDiagnostics clears the diagnostics area before a new statement.
func (s *Session) ResetDiagnostics() {
	s.warnings = s.warnings[:0]
	s.errors = s.errors[:0]
}
