package catalog

import (
	"strings"

	"mit.edu/dsg/sqlroute/common"
)

// Charset is a character set the engine accepts for a database. Values are compared as
// Go strings whatever the charset, so these are labels reported to clients.
type Charset struct {
	Name             string
	Description      string
	DefaultCollation string
	MaxLen           int
}

type CollationInfo struct {
	Name    string
	Charset string
	ID      int
	Default bool
}

const (
	DefaultCharset   = "utf8mb4"
	DefaultCollation = "utf8mb4_general_ci"
)

var charsets = []Charset{
	{"ascii", "US ASCII", "ascii_general_ci", 1},
	{"binary", "Binary pseudo charset", "binary", 1},
	{"latin1", "cp1252 West European", "latin1_swedish_ci", 1},
	{"utf8", "UTF-8 Unicode", "utf8_general_ci", 3},
	{"utf8mb4", "UTF-8 Unicode", "utf8mb4_general_ci", 4},
}

var collations = []CollationInfo{
	{"ascii_bin", "ascii", 65, false},
	{"ascii_general_ci", "ascii", 11, true},
	{"binary", "binary", 63, true},
	{"latin1_bin", "latin1", 47, false},
	{"latin1_swedish_ci", "latin1", 8, true},
	{"utf8_bin", "utf8", 83, false},
	{"utf8_general_ci", "utf8", 33, true},
	{"utf8mb4_0900_ai_ci", "utf8mb4", 255, false},
	{"utf8mb4_bin", "utf8mb4", 46, false},
	{"utf8mb4_general_ci", "utf8mb4", 45, true},
}

// Charsets lists the supported character sets ordered by name.
func Charsets() []Charset {
	return append([]Charset(nil), charsets...)
}

// Collations lists the supported collations ordered by name.
func Collations() []CollationInfo {
	return append([]CollationInfo(nil), collations...)
}

// ResolveCharset completes a charset and collation pair. Either may be empty: a missing
// collation is the charset's default and a missing charset is the collation's. Both
// empty yields the server defaults.
func ResolveCharset(charset, collation string) (string, string, error) {
	charset, collation = strings.ToLower(charset), strings.ToLower(collation)
	if charset == "" && collation == "" {
		return DefaultCharset, DefaultCollation, nil
	}
	var cs *Charset
	if charset != "" {
		for i := range charsets {
			if charsets[i].Name == charset {
				cs = &charsets[i]
			}
		}
		if cs == nil {
			return "", "", common.NewError(common.NoSuchObjectError, "Unknown character set: '%s'", charset)
		}
		if collation == "" {
			return cs.Name, cs.DefaultCollation, nil
		}
	}
	for _, c := range collations {
		if c.Name != collation {
			continue
		}
		if cs != nil && cs.Name != c.Charset {
			return "", "", common.NewError(common.EvaluationError,
				"COLLATION '%s' is not valid for CHARACTER SET '%s'", collation, cs.Name)
		}
		return c.Charset, c.Name, nil
	}
	return "", "", common.NewError(common.NoSuchObjectError, "Unknown collation: '%s'", collation)
}
