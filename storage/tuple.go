package storage

import (
	"strings"

	"mit.edu/dsg/sqlroute/common"
)

// Tuple represents the logical view of a row. It is the data structure exchanged between
// query operators (e.g., Filter, Join) and bridges the in-memory tables with the rest of
// the router.
//
// A Tuple read from a table carries the RowID it is stored under, so that Update and
// Delete can find the row again. Tuples produced by operators (projections, joins,
// aggregates) are purely virtual and have a nil RowID.
//
// Tuples are passed by value. The values slice is shared between copies, so operators
// must never write into a tuple they did not build; use Extend or MergeTuples instead.
type Tuple struct {
	values []common.Value
	rid    common.RowID
}

// FromValues creates a purely virtual Tuple from a list of values.
// This is used when a query operator creates a brand new row (e.g., "SELECT 1, 'hello'").
func FromValues(values ...common.Value) Tuple {
	return Tuple{values: values}
}

// FromRow creates a Tuple that refers to a stored row.
func FromRow(rid common.RowID, values []common.Value) Tuple {
	return Tuple{values: values, rid: rid}
}

// Extend returns a NEW Tuple consisting of the current tuple's fields
// followed by the provided newValues.
func (t Tuple) Extend(newValues []common.Value) Tuple {
	values := make([]common.Value, 0, len(t.values)+len(newValues))
	values = append(values, t.values...)
	values = append(values, newValues...)
	return Tuple{values: values, rid: t.rid}
}

// IsNil checks if the tuple is uninitialized.
func (t Tuple) IsNil() bool {
	return t.values == nil
}

// MergeTuples concatenates left and right into a new virtual tuple.
func MergeTuples(left Tuple, right Tuple) Tuple {
	values := make([]common.Value, 0, len(left.values)+len(right.values))
	values = append(values, left.values...)
	values = append(values, right.values...)
	return Tuple{values: values}
}

// RID returns the RowID of the tuple, or an invalid RowID if virtual.
func (t Tuple) RID() common.RowID {
	return t.rid
}

// NumColumns returns the total number of fields in the tuple.
func (t Tuple) NumColumns() int {
	return len(t.values)
}

// GetValue retrieves the value at index i.
func (t Tuple) GetValue(i int) common.Value {
	return t.values[i]
}

// Values returns a copy of the tuple's fields.
func (t Tuple) Values() []common.Value {
	out := make([]common.Value, len(t.values))
	copy(out, t.values)
	return out
}

// DeepCopy creates a fully independent copy of the Tuple. The RowID is preserved.
func (t Tuple) DeepCopy() Tuple {
	return Tuple{values: t.Values(), rid: t.rid}
}

func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range t.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.SQLLiteral())
	}
	sb.WriteByte(')')
	return sb.String()
}
