package execution

import (
	"mit.edu/dsg/sqlroute/common"
)

// ExecutionHashTable is a generic wrapper around a Go map keyed by a row of values.
// It is optimized for single-threaded execution operators (Aggregates, Hash Joins).
// Iteration follows insertion order so that operator output is deterministic.
type ExecutionHashTable[T any] struct {
	// The map key is the concatenated Value.AppendKey encoding of the key values.
	table map[string]int
	keys  [][]common.Value
	vals  []T

	// scratchBuffer is a reusable byte slice for encoding keys during lookups.
	scratchBuffer []byte
}

func NewExecutionHashTable[T any]() *ExecutionHashTable[T] {
	return &ExecutionHashTable[T]{
		table: make(map[string]int),
	}
}

func (ht *ExecutionHashTable[T]) encode(key []common.Value) []byte {
	ht.scratchBuffer = ht.scratchBuffer[:0]
	for _, v := range key {
		ht.scratchBuffer = v.AppendKey(ht.scratchBuffer)
	}
	return ht.scratchBuffer
}

// Insert adds or replaces the value stored under key. The key slice is copied.
func (ht *ExecutionHashTable[T]) Insert(key []common.Value, value T) {
	encoded := ht.encode(key)
	if i, ok := ht.table[string(encoded)]; ok {
		ht.vals[i] = value
		return
	}
	// The map must own the key string; scratchBuffer will be overwritten.
	ht.table[string(encoded)] = len(ht.vals)
	ht.keys = append(ht.keys, append([]common.Value(nil), key...))
	ht.vals = append(ht.vals, value)
}

// Get returns the value stored under key.
func (ht *ExecutionHashTable[T]) Get(key []common.Value) (value T, exists bool) {
	// Go optimizes away the string allocation for map lookups.
	i, ok := ht.table[string(ht.encode(key))]
	if !ok {
		return value, false
	}
	return ht.vals[i], true
}

// Len returns the number of distinct keys.
func (ht *ExecutionHashTable[T]) Len() int {
	return len(ht.vals)
}

// Iterate calls iter for every key-value pair, in insertion order.
func (ht *ExecutionHashTable[T]) Iterate(iter func(key []common.Value, value T)) {
	for i := range ht.vals {
		iter(ht.keys[i], ht.vals[i])
	}
}
