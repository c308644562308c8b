package common

import (
	"encoding/binary"
	"strconv"
)

type Type int8

const (
	// For uninitialized Values
	DefaultType Type = iota
	IntType
	StringType
)

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// ObjectID is a unique identifier for a database, table or index in the catalog.
type ObjectID uint32

const InvalidObjectID ObjectID = 0

// Value represents a typed data item flowing through expressions and executors.
// NULL is a flag on a typed value, so a NULL still knows whether it is an int or a string.
type Value struct {
	t                Type
	null             bool
	underlyingInt    int64
	underlyingString string
}

// IsNil returns true if the Value is nil and uninitialized. This is NOT to be confused with NULL values.
func (v Value) IsNil() bool {
	return v.t == DefaultType
}

// NewIntValue creates a new integer Value.
func NewIntValue(v int64) Value {
	return Value{
		t:             IntType,
		underlyingInt: v,
	}
}

// NewStringValue creates a new string Value.
func NewStringValue(v string) Value {
	return Value{
		t:                StringType,
		underlyingString: v,
	}
}

// NewBoolValue encodes a truth value the way predicates do: 1 for true, 0 for false.
func NewBoolValue(b bool) Value {
	if b {
		return NewIntValue(1)
	}
	return NewIntValue(0)
}

// NewNullInt creates a NULL integer Value.
func NewNullInt() Value {
	return Value{
		t:    IntType,
		null: true,
	}
}

// NewNullString creates a NULL string Value.
func NewNullString() Value {
	return Value{
		t:    StringType,
		null: true,
	}
}

// NewNull creates a NULL of the given type.
func NewNull(t Type) Value {
	if t == StringType {
		return NewNullString()
	}
	return NewNullInt()
}

// Type returns the type of the Value.
func (v Value) Type() Type {
	return v.t
}

// IsNull returns true if the Value is NULL.
func (v Value) IsNull() bool {
	return v.null
}

// IntValue returns the underlying (non-NULL) integer.
func (v Value) IntValue() int64 {
	Assert(v.t == IntType, "type mismatch in IntValue")
	Assert(!v.null, "accessing value of NULL int")
	return v.underlyingInt
}

// StringValue returns the underlying (non-NULL) string.
func (v Value) StringValue() string {
	Assert(v.t == StringType, "type mismatch in StringValue")
	Assert(!v.null, "accessing value of NULL string")
	return v.underlyingString
}

// String renders the value for result sets and explain output.
func (v Value) String() string {
	if v.null || v.t == DefaultType {
		return "NULL"
	}
	if v.t == IntType {
		return strconv.FormatInt(v.underlyingInt, 10)
	}
	return v.underlyingString
}

// SQLLiteral renders the value as it would appear in SQL text.
func (v Value) SQLLiteral() string {
	if v.t == StringType && !v.null {
		return strconv.Quote(v.underlyingString)
	}
	return v.String()
}

// AppendKey appends an encoding of v to buf such that two values encode identically
// iff they have the same type, the same null flag and the same content.
func (v Value) AppendKey(buf []byte) []byte {
	buf = append(buf, byte(v.t))
	if v.null {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	switch v.t {
	case IntType:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.underlyingInt))
	case StringType:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.underlyingString)))
		buf = append(buf, v.underlyingString...)
	}
	return buf
}

// Compare compares two Values.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
// NULL is considered less than non-NULL values.
func (v Value) Compare(other Value) int {
	Assert(v.t == other.t, "type mismatch in comparison")

	if v.null && other.null {
		return 0
	}
	if v.null {
		return -1
	}
	if other.null {
		return 1
	}

	switch v.t {
	case IntType:
		if v.underlyingInt < other.underlyingInt {
			return -1
		}
		if v.underlyingInt > other.underlyingInt {
			return 1
		}
		return 0
	case StringType:
		if v.underlyingString < other.underlyingString {
			return -1
		}
		if v.underlyingString > other.underlyingString {
			return 1
		}
		return 0
	}
	panic("unreachable")
}

// CompareValues compares two rows of values lexicographically.
func CompareValues(a, b []Value) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// RowID identifies a row inside an in-memory table. It is never reused within a table.
type RowID int64

const InvalidRowID RowID = 0

// IsNil checks if the RowID refers to a stored row.
func (r RowID) IsNil() bool {
	return r == InvalidRowID
}

type TransactionID uint64

const InvalidTransactionID TransactionID = 0
