package router

import (
	"github.com/xwb1989/sqlparser"
	"mit.edu/dsg/sqlroute/execution"
)

// Response receives the outcome of a routed request. The router makes exactly one
// terminal call (SendError, SendResultSet, SendOk or ProxyShow) per request.
type Response interface {
	SendError(err error)
	// SetHasMore signals that more result sets follow the current one.
	SetHasMore(more bool)
	SendResultSet(rs *execution.ResultSet)
	SendOk(affected int64, lastInsertID int64)
	// ProxyShow echoes a statement that is answered by the driver layer rather than here.
	ProxyShow(stmt sqlparser.Statement)
}

type EventKind int

const (
	EventError EventKind = iota
	EventResultSet
	EventOk
	EventProxyShow
)

func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventResultSet:
		return "result set"
	case EventOk:
		return "ok"
	case EventProxyShow:
		return "proxy show"
	}
	return "unknown"
}

// Event is one terminal response recorded by a ResponseBuffer.
type Event struct {
	Kind         EventKind
	Err          error
	ResultSet    *execution.ResultSet
	Affected     int64
	LastInsertID int64
	Stmt         sqlparser.Statement
	// HasMore is the has-more flag in effect when the event was sent.
	HasMore bool
}

// ResponseBuffer records every response it receives.
type ResponseBuffer struct {
	Events  []Event
	hasMore bool
}

func (b *ResponseBuffer) SendError(err error) {
	b.Events = append(b.Events, Event{Kind: EventError, Err: err, HasMore: b.hasMore})
}

func (b *ResponseBuffer) SetHasMore(more bool) {
	b.hasMore = more
}

func (b *ResponseBuffer) SendResultSet(rs *execution.ResultSet) {
	b.Events = append(b.Events, Event{Kind: EventResultSet, ResultSet: rs, HasMore: b.hasMore})
}

func (b *ResponseBuffer) SendOk(affected int64, lastInsertID int64) {
	b.Events = append(b.Events, Event{Kind: EventOk, Affected: affected, LastInsertID: lastInsertID, HasMore: b.hasMore})
}

func (b *ResponseBuffer) ProxyShow(stmt sqlparser.Statement) {
	b.Events = append(b.Events, Event{Kind: EventProxyShow, Stmt: stmt, HasMore: b.hasMore})
}

// Last returns the most recent event. It panics on an empty buffer.
func (b *ResponseBuffer) Last() Event {
	return b.Events[len(b.Events)-1]
}

// Err returns the error of the last event, or nil.
func (b *ResponseBuffer) Err() error {
	if len(b.Events) == 0 {
		return nil
	}
	return b.Last().Err
}

func (b *ResponseBuffer) Reset() {
	b.Events = b.Events[:0]
	b.hasMore = false
}
