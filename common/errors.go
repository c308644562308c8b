package common

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type ErrorCode int

const (
	// DuplicateObjectError indicates an attempt to create a database, table, index or
	// primary key entry that already exists.
	DuplicateObjectError ErrorCode = iota
	// NoSuchObjectError indicates a reference to a database, table or column that does
	// not exist in the catalog.
	NoSuchObjectError
	// ParseError indicates that the SQL collaborator rejected the request text.
	ParseError
	// UnsupportedStatementError is raised when no handler claims a statement and the
	// statement is not a driver-echo form.
	UnsupportedStatementError
	// PlanConstructionError indicates a malformed plan node (wrong arity, missing
	// payload).
	PlanConstructionError
	// UnsupportedPlanError is raised when no execution strategy exists for a plan node.
	UnsupportedPlanError
	// EvaluationError is raised by the expression evaluator for type mismatches and
	// division by a known zero.
	EvaluationError
	// TransactionError indicates an invalid transaction state transition.
	TransactionError
	// ConnectionKilledError is returned to a session that was ended by KILL.
	ConnectionKilledError
)

func (ec ErrorCode) String() string {
	switch ec {
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case ParseError:
		return "ParseError"
	case UnsupportedStatementError:
		return "UnsupportedStatementError"
	case PlanConstructionError:
		return "PlanConstructionError"
	case UnsupportedPlanError:
		return "UnsupportedPlanError"
	case EvaluationError:
		return "EvaluationError"
	case TransactionError:
		return "TransactionError"
	case ConnectionKilledError:
		return "ConnectionKilledError"
	}
	return "unknown"
}

// SQLError is the error type surfaced to clients of the router. It carries an ErrorCode
// so callers can classify failures without parsing messages.
type SQLError struct {
	Code      ErrorCode
	ErrString string
}

func (e SQLError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// NewError builds a SQLError with a stack trace attached.
func NewError(code ErrorCode, format string, args ...any) error {
	return errors.WithStack(SQLError{Code: code, ErrString: fmt.Sprintf(format, args...)})
}

// CodeOf extracts the ErrorCode of the first SQLError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var sqlErr SQLError
	if errors.As(err, &sqlErr) {
		return sqlErr.Code, true
	}
	return 0, false
}

// HasCode reports whether err wraps a SQLError with the given code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// MySQLCode maps the error code to the closest MySQL server error number, for SHOW
// WARNINGS and error packets.
func (ec ErrorCode) MySQLCode() uint16 {
	switch ec {
	case DuplicateObjectError:
		return 1050
	case NoSuchObjectError:
		return 1146
	case ParseError:
		return 1064
	case UnsupportedStatementError, UnsupportedPlanError:
		return 1235
	case EvaluationError:
		return 1365
	case TransactionError:
		return 1399
	case ConnectionKilledError:
		return 1927
	}
	return 1105
}

// MySQLCodeOf returns the MySQL error number of err, or 1105 (unknown error).
func MySQLCodeOf(err error) uint16 {
	if code, ok := CodeOf(err); ok {
		return code.MySQLCode()
	}
	return 1105
}
