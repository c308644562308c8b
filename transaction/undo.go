package transaction

import (
	"mit.edu/dsg/sqlroute/common"
)

// UndoTarget is implemented by in-memory tables to roll back a single change when a
// statement fails or a transaction aborts.
type UndoTarget interface {
	Invoke(opType UndoType, rid common.RowID, values []common.Value)
}

type UndoType int

const (
	// UndoInsert removes a row that was inserted.
	UndoInsert UndoType = iota
	// UndoDelete restores a row that was deleted, under its original RowID.
	UndoDelete
	// UndoUpdate restores the before-image of an updated row.
	UndoUpdate
)

func (t UndoType) String() string {
	switch t {
	case UndoInsert:
		return "undo-insert"
	case UndoDelete:
		return "undo-delete"
	case UndoUpdate:
		return "undo-update"
	}
	return "unknown"
}

// UndoTask represents a single undo action. Values holds the before-image for deletes
// and updates and is nil for inserts.
// It is a value struct (not a pointer) to avoid heap allocation per op.
type UndoTask struct {
	Target UndoTarget
	Type   UndoType
	RID    common.RowID
	Values []common.Value
}
