package catalog

import (
	"strings"

	"mit.edu/dsg/sqlroute/common"
)

// TypeFromSQL maps a MySQL column type name onto the router's value types.
// Integer-like types become IntType; character, text and temporal types are carried as
// strings. Approximate numerics are rejected.
func TypeFromSQL(sqlType string) (common.Type, error) {
	switch strings.ToLower(sqlType) {
	case "bit", "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "bool", "boolean", "year":
		return common.IntType, nil
	case "char", "varchar", "binary", "varbinary", "tinytext", "text", "mediumtext", "longtext",
		"tinyblob", "blob", "mediumblob", "longblob", "enum", "set", "json",
		"date", "time", "datetime", "timestamp":
		return common.StringType, nil
	}
	return common.DefaultType, common.NewError(common.UnsupportedStatementError, "unsupported column type '%s'", sqlType)
}
