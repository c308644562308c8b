package session

import (
	"sort"
	"strconv"
	"strings"

	"mit.edu/dsg/sqlroute/common"
)

// ServerVersion is reported by version() and @@version.
const ServerVersion = "5.7.25-sqlroute"

func defaultVariables() map[string]common.Value {
	i := common.NewIntValue
	s := common.NewStringValue
	return map[string]common.Value{
		"autocommit":               i(1),
		"auto_increment_increment": i(1),
		"character_set_client":     s("utf8mb4"),
		"character_set_connection": s("utf8mb4"),
		"character_set_results":    s("utf8mb4"),
		"character_set_server":     s("utf8mb4"),
		"collation_connection":     s("utf8mb4_general_ci"),
		"collation_server":         s("utf8mb4_general_ci"),
		"lower_case_table_names":   i(1),
		"max_allowed_packet":       i(16777216),
		"net_write_timeout":        i(60),
		"sql_mode":                 s("STRICT_TRANS_TABLES,NO_ENGINE_SUBSTITUTION"),
		"system_time_zone":         s("UTC"),
		"time_zone":                s("SYSTEM"),
		"transaction_isolation":    s("REPEATABLE-READ"),
		"tx_isolation":             s("REPEATABLE-READ"),
		"tx_read_only":             i(0),
		"version":                  s(ServerVersion),
		"version_comment":          s("sqlroute"),
		"wait_timeout":             i(28800),
	}
}

// Variable implements planner.Resolver against the live session state. User variables
// are looked up by "@name"; unset user variables are reported as missing.
func (s *Session) Variable(name string) (common.Value, bool) {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "@") {
		v, ok := s.userVars[name]
		return v, ok
	}
	switch name {
	case "last_insert_id":
		return common.NewIntValue(s.lastInsertID), true
	case "connection_id":
		return common.NewIntValue(int64(s.id)), true
	}
	v, ok := s.vars[name]
	return v, ok
}

// SetVariable assigns a user variable ("@name") or a system variable. With global, the
// system variable is changed for sessions opened afterwards and not for this one, as in
// MySQL. Unknown system variables are rejected.
func (s *Session) SetVariable(name string, v common.Value, global bool) error {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "@") {
		s.userVars[name] = v
		return nil
	}
	current, ok := s.mgr.globals.Load(name)
	if !ok {
		return common.NewError(common.NoSuchObjectError, "unknown system variable '%s'", name)
	}
	if v.IsNull() {
		return common.NewError(common.EvaluationError, "variable '%s' can't be set to NULL", name)
	}
	if v.Type() != current.Type() {
		if v, ok = convertVariable(v, current.Type()); !ok {
			return common.NewError(common.EvaluationError, "incorrect argument type to variable '%s'", name)
		}
	}
	if global {
		s.mgr.globals.Store(name, v)
		return nil
	}
	if name == "autocommit" && v.IntValue() != 0 && s.txn != nil {
		// Switching autocommit on commits the open transaction.
		if err := s.Commit(); err != nil {
			return err
		}
	}
	s.vars[name] = v
	return nil
}

// convertVariable converts a literal to the type of a system variable, accepting the
// ON/OFF spellings for integers.
func convertVariable(v common.Value, t common.Type) (common.Value, bool) {
	switch t {
	case common.StringType:
		return common.NewStringValue(v.String()), true
	case common.IntType:
		switch strings.ToLower(v.StringValue()) {
		case "on", "true":
			return common.NewIntValue(1), true
		case "off", "false":
			return common.NewIntValue(0), true
		}
		if n, err := strconv.ParseInt(v.StringValue(), 10, 64); err == nil {
			return common.NewIntValue(n), true
		}
	}
	return v, false
}

// Variables returns the session or global system variables, sorted by name.
func (s *Session) Variables(global bool) []NamedValue {
	var out []NamedValue
	if global {
		s.mgr.globals.Range(func(name string, v common.Value) bool {
			out = append(out, NamedValue{Name: name, Value: v})
			return true
		})
	} else {
		for name, v := range s.vars {
			out = append(out, NamedValue{Name: name, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamedValue is one variable of a variables listing.
type NamedValue struct {
	Name  string
	Value common.Value
}

// Autocommit reports whether every statement runs in its own transaction.
func (s *Session) Autocommit() bool {
	v, ok := s.vars["autocommit"]
	return !ok || v.IsNull() || v.IntValue() != 0
}
