package planner

import (
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// FieldCollation orders the output on one column.
type FieldCollation struct {
	Field     int
	Direction Direction
}

// Collation describes the order of a node's output, most significant field first.
// An empty Collation promises no order.
type Collation []FieldCollation

func (c Collation) String() string {
	parts := make([]string, len(c))
	for i, fc := range c {
		parts[i] = fmt.Sprintf("%d %s", fc.Field, fc.Direction)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports whether both collations order on the same fields in the same direction.
func (c Collation) Equal(other Collation) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

func (c Collation) clone() Collation {
	if len(c) == 0 {
		return nil
	}
	return append(Collation(nil), c...)
}

// Shift moves every field by delta.
func (c Collation) Shift(delta int) Collation {
	if len(c) == 0 {
		return nil
	}
	out := make(Collation, len(c))
	for i, fc := range c {
		out[i] = FieldCollation{Field: fc.Field + delta, Direction: fc.Direction}
	}
	return out
}

// Convention is the execution mode a node targets.
type Convention int

const (
	// ConventionLogical nodes describe what to compute but have no execution strategy.
	ConventionLogical Convention = iota
	// ConventionEnumerable nodes are executed by the pull-based executors.
	ConventionEnumerable
)

func (c Convention) String() string {
	switch c {
	case ConventionLogical:
		return "logical"
	case ConventionEnumerable:
		return "enumerable"
	}
	return "unknown"
}

// TraitSet is the physical metadata attached to every plan node.
type TraitSet struct {
	Convention Convention
	Collation  Collation
}

func (t TraitSet) String() string {
	return fmt.Sprintf("%s%s", t.Convention, t.Collation)
}

// ColumnSet is an immutable set of column positions.
// The zero value is the empty set.
type ColumnSet struct {
	bits *bitset.BitSet
}

// NewColumnSet returns the set of the given columns.
func NewColumnSet(cols ...int) ColumnSet {
	if len(cols) == 0 {
		return ColumnSet{}
	}
	bits := bitset.New(0)
	for _, c := range cols {
		bits.Set(uint(c))
	}
	return ColumnSet{bits: bits}
}

// ColumnRange returns {0, ..., n-1}.
func ColumnRange(n int) ColumnSet {
	cols := make([]int, n)
	for i := range cols {
		cols[i] = i
	}
	return NewColumnSet(cols...)
}

// Contains reports whether column i is in the set.
func (s ColumnSet) Contains(i int) bool {
	return s.bits != nil && i >= 0 && s.bits.Test(uint(i))
}

// Len returns the number of columns in the set.
func (s ColumnSet) Len() int {
	if s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

// Slice returns the columns in ascending order.
func (s ColumnSet) Slice() []int {
	if s.bits == nil {
		return nil
	}
	var out []int
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// Union returns a new set holding the columns of both sets.
func (s ColumnSet) Union(other ColumnSet) ColumnSet {
	switch {
	case s.bits == nil:
		return other
	case other.bits == nil:
		return s
	}
	return ColumnSet{bits: s.bits.Union(other.bits)}
}

// Window returns the columns in [lo, hi), shifted down by lo.
func (s ColumnSet) Window(lo, hi int) ColumnSet {
	var cols []int
	for _, c := range s.Slice() {
		if c >= lo && c < hi {
			cols = append(cols, c-lo)
		}
	}
	return NewColumnSet(cols...)
}

// Equal reports whether both sets hold the same columns.
func (s ColumnSet) Equal(other ColumnSet) bool {
	a, b := s.Slice(), other.Slice()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s ColumnSet) String() string {
	cols := s.Slice()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// CorrelationID names a correlation variable. Within one plan tree every variable has a
// distinct id.
type CorrelationID int

func (c CorrelationID) String() string {
	return fmt.Sprintf("$cor%d", c)
}
