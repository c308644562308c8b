package router

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Several statements (SHOW variants, CREATE INDEX, IF [NOT] EXISTS on databases) are
// accepted by the parser without keeping the details the handlers need. Those details
// are read back from the token stream of the unit text.

type token struct {
	typ int
	// text is lowercased for identifiers and keywords, verbatim for string literals.
	text string
	// raw is the token as written.
	raw string
}

type tokens []token

func tokenize(sql string) tokens {
	tkn := sqlparser.NewStringTokenizer(sql)
	var out tokens
	for {
		typ, val := tkn.Scan()
		switch typ {
		case 0, sqlparser.LEX_ERROR:
			return out
		case sqlparser.COMMENT:
			continue
		}
		raw := string(val)
		if val == nil && typ < 256 {
			raw = string(rune(typ))
		}
		text := raw
		if typ != sqlparser.STRING {
			text = strings.ToLower(raw)
		}
		out = append(out, token{typ: typ, text: text, raw: raw})
	}
}

// hasPrefix reports whether the tokens start with the given lowercase words.
func (ts tokens) hasPrefix(words ...string) bool {
	if len(ts) < len(words) {
		return false
	}
	for i, w := range words {
		if ts[i].text != w {
			return false
		}
	}
	return true
}

// index returns the position of the first occurrence of the word sequence, or -1.
func (ts tokens) index(words ...string) int {
	for i := range ts {
		if ts[i:].hasPrefix(words...) {
			return i
		}
	}
	return -1
}

func (ts tokens) contains(words ...string) bool {
	return ts.index(words...) >= 0
}

// tableName reads "name" or "schema.name" at position i and returns the position after it.
func (ts tokens) tableName(i int) (sqlparser.TableName, int, bool) {
	if i >= len(ts) || !ts[i].isName() {
		return sqlparser.TableName{}, i, false
	}
	name := sqlparser.TableName{Name: sqlparser.NewTableIdent(ts[i].raw)}
	if i+2 < len(ts) && ts[i+1].text == "." && ts[i+2].isName() {
		name = sqlparser.TableName{
			Qualifier: sqlparser.NewTableIdent(ts[i].raw),
			Name:      sqlparser.NewTableIdent(ts[i+2].raw),
		}
		return name, i + 3, true
	}
	return name, i + 1, true
}

// nameList reads "(a, b, ...)" at position i.
func (ts tokens) nameList(i int) ([]string, int, bool) {
	if i >= len(ts) || ts[i].text != "(" {
		return nil, i, false
	}
	var names []string
	for i++; i < len(ts); i++ {
		switch {
		case ts[i].text == ")":
			return names, i + 1, len(names) > 0
		case ts[i].text == ",":
		case ts[i].isName():
			names = append(names, ts[i].raw)
		default:
			return nil, i, false
		}
	}
	return nil, i, false
}

// isName reports whether the token can name a schema object. Non-reserved keywords are
// accepted as names.
func (t token) isName() bool {
	switch t.typ {
	case sqlparser.STRING, sqlparser.INTEGRAL, sqlparser.FLOAT, sqlparser.HEX, sqlparser.HEXNUM,
		sqlparser.VALUE_ARG, sqlparser.LIST_ARG, sqlparser.BIT_LITERAL:
		return false
	}
	if t.typ < 256 {
		return false
	}
	return t.text != "on" && t.text != "using" && t.text != "from" && t.text != "in" &&
		t.text != "like" && t.text != "where"
}

// likeFilter returns the pattern of a trailing "LIKE 'pattern'".
func (ts tokens) likeFilter() (string, bool) {
	i := ts.index("like")
	if i < 0 || i+1 >= len(ts) || ts[i+1].typ != sqlparser.STRING {
		return "", false
	}
	return ts[i+1].text, true
}
