package router

import (
	"strings"
	"unicode"

	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/common"
)

// planPrefix introduces a textual plan submitted for direct execution.
const planPrefix = "execute plan"

// Outcome is the result of classifying a request or an unclaimed statement.
type Outcome int

const (
	// OutcomeStatements: parse the text as SQL and dispatch each unit to the handlers.
	OutcomeStatements Outcome = iota
	// OutcomePlanBypass: the text carries a plan description; run it without SQL parsing.
	OutcomePlanBypass
	// OutcomeDriverEcho: no handler claimed the statement, but it is a form the driver
	// layer answers itself (SHOW variants, DESCRIBE, administrative statements).
	OutcomeDriverEcho
	// OutcomeUnsupported: no handler claimed the statement.
	OutcomeUnsupported
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStatements:
		return "statements"
	case OutcomePlanBypass:
		return "plan bypass"
	case OutcomeDriverEcho:
		return "driver echo"
	case OutcomeUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// Classify decides how request text is processed. Text longer than the "execute plan"
// prefix that starts with it (in any case) is a plan bypass; the payload is the rest of
// the text with leading whitespace removed.
func Classify(text string) (Outcome, string) {
	if len(text) > len(planPrefix) && strings.EqualFold(text[:len(planPrefix)], planPrefix) {
		return OutcomePlanBypass, strings.TrimLeftFunc(text[len(planPrefix):], unicode.IsSpace)
	}
	return OutcomeStatements, text
}

// classifyUnclaimed decides what happens to a statement no handler claimed.
func classifyUnclaimed(stmt sqlparser.Statement) Outcome {
	switch stmt.(type) {
	case *sqlparser.Show, *sqlparser.OtherRead, *sqlparser.OtherAdmin:
		return OutcomeDriverEcho
	}
	return OutcomeUnsupported
}

// unit is one statement of a request together with its source text.
type unit struct {
	stmt sqlparser.Statement
	text string
}

// parseUnits splits text into statements and parses each. Text starting with "begin"
// yields one transaction-begin unit without parsing. A failure anywhere fails the whole
// request before anything runs.
func parseUnits(text string) ([]unit, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "begin") || strings.HasPrefix(trimmed, "BEGIN") {
		return []unit{{stmt: &sqlparser.Begin{}, text: trimmed}}, nil
	}
	pieces, err := sqlparser.SplitStatementToPieces(text)
	if err != nil {
		return nil, common.NewError(common.ParseError, "%v", err)
	}
	var units []unit
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		stmt, err := parseStatement(piece)
		if err != nil {
			return nil, err
		}
		units = append(units, unit{stmt: stmt, text: piece})
	}
	if len(units) == 0 {
		return nil, common.NewError(common.ParseError, "empty statement")
	}
	return units, nil
}

// parseStatement parses one statement. KILL and ALTER DATABASE are outside the parser's
// grammar: KILL becomes an administrative statement read back from its tokens and ALTER
// DATABASE a database DDL.
func parseStatement(text string) (sqlparser.Statement, error) {
	switch leadingWord(text) {
	case "kill":
		return &sqlparser.OtherAdmin{}, nil
	case "alter":
		ts := tokenize(text)
		if ts.hasPrefix("alter", "database") || ts.hasPrefix("alter", "schema") {
			return alterDatabaseStatement(ts, text)
		}
	}
	stmt, err := sqlparser.Parse(text)
	if err != nil {
		return nil, common.NewError(common.ParseError, "%s: %v", text, err)
	}
	return stmt, nil
}

func leadingWord(text string) string {
	end := strings.IndexFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(text)
	}
	return strings.ToLower(text[:end])
}

// alterDatabaseStatement reads
// ALTER {DATABASE|SCHEMA} [name] [DEFAULT] {CHARACTER SET|CHARSET} [=] cs [DEFAULT] COLLATE [=] coll.
func alterDatabaseStatement(ts tokens, text string) (sqlparser.Statement, error) {
	ddl := &sqlparser.DBDDL{Action: sqlparser.AlterStr}
	i := 2
	if i < len(ts) && ts[i].isName() && !charsetOption[ts[i].text] {
		ddl.DBName = ts[i].raw
		i++
	}
	value := func() (string, bool) {
		if i < len(ts) && ts[i].text == "=" {
			i++
		}
		if i >= len(ts) || (ts[i].typ != sqlparser.STRING && !ts[i].isName()) {
			return "", false
		}
		i++
		return strings.ToLower(ts[i-1].text), true
	}
	for i < len(ts) {
		var ok bool
		switch {
		case ts[i].text == "default":
			i++
			continue
		case ts[i].text == "charset":
			i++
			ddl.Charset, ok = value()
		case ts[i:].hasPrefix("character", "set"):
			i += 2
			ddl.Charset, ok = value()
		case ts[i].text == "collate":
			i++
			ddl.Collate, ok = value()
		}
		if !ok {
			near := "end of statement"
			if i < len(ts) {
				near = ts[i].raw
			}
			return nil, common.NewError(common.ParseError, "%s: syntax error near '%s'", text, near)
		}
	}
	if ddl.Charset == "" && ddl.Collate == "" {
		return nil, common.NewError(common.ParseError, "%s: expected CHARACTER SET or COLLATE", text)
	}
	return ddl, nil
}

var charsetOption = map[string]bool{"default": true, "charset": true, "character": true, "collate": true}
