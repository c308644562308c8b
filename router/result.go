package router

import (
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/execution"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
)

// textResult builds a result set for statements answered from metadata. Column types
// come from the first row; without rows every column is a string.
func textResult(names []string, rows [][]common.Value) *execution.ResultSet {
	rs := &execution.ResultSet{
		Columns:  make([]planner.Column, len(names)),
		Rows:     make([]storage.Tuple, len(rows)),
		Complete: true,
	}
	for i, name := range names {
		rs.Columns[i] = planner.Column{Name: name, Type: common.StringType}
		if len(rows) > 0 {
			rs.Columns[i].Type = rows[0][i].Type()
		}
	}
	for i, row := range rows {
		rs.Rows[i] = storage.FromValues(row...)
	}
	return rs
}

func strs(values ...string) []common.Value {
	row := make([]common.Value, len(values))
	for i, v := range values {
		row[i] = common.NewStringValue(v)
	}
	return row
}
