package router

import (
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/session"
)

// Request is an inbound statement. The router only reads its text.
type Request interface {
	Text() string
}

// TextRequest is a Request holding raw SQL.
type TextRequest string

func (r TextRequest) Text() string {
	return string(r)
}

// SQLRequest is one parsed statement unit handed to the handlers.
type SQLRequest struct {
	Stmt sqlparser.Statement
	// Text is the source text of this unit.
	Text string
	// Bound is the statement bound against the data context. Handlers plan against it.
	Bound *session.BoundStatement
	// Origin is the request the unit was parsed from.
	Origin Request
}
