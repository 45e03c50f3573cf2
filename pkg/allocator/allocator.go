// Package allocator hands out stable per-class slot indices for managed
// objects. The collector uses slot indices to address its used-bit tables.
package allocator

import (
	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/ds/bitarray"
	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// Allocator is the slot table of one class
type Allocator[O any] struct {
	class *reflection.Class
	slots []O
	valid bitarray.BitArray
	count int
}

// New creates an empty allocator for class
func New[O any](class *reflection.Class) *Allocator[O] {
	return &Allocator[O]{class: class}
}

// Class returns the class the allocator serves
func (a *Allocator[O]) Class() *reflection.Class { return a.class }

// Allocate stores obj in the lowest free slot
func (a *Allocator[O]) Allocate(obj O) types.AllocIdx {
	i := a.valid.FirstClear()
	if i == len(a.slots) {
		var zero O
		a.slots = append(a.slots, zero)
	}
	a.slots[i] = obj
	a.valid.Set(i)
	a.count++
	return types.AllocIdx(i)
}

// Free releases a slot
func (a *Allocator[O]) Free(idx types.AllocIdx) {
	contract.Assert(a.IsValid(idx), "free of invalid slot %d in %s", idx, a.class)
	var zero O
	a.slots[idx] = zero
	a.valid.Clear(int(idx))
	a.count--
}

// IsValid reports whether idx holds a live object
func (a *Allocator[O]) IsValid(idx types.AllocIdx) bool {
	return idx != types.InvalidAllocIdx && a.valid.Get(int(idx))
}

// At returns the object in slot idx
func (a *Allocator[O]) At(idx types.AllocIdx) O {
	contract.Assert(a.IsValid(idx), "access to invalid slot %d in %s", idx, a.class)
	return a.slots[idx]
}

// Size returns the slot capacity, live or not
func (a *Allocator[O]) Size() int { return len(a.slots) }

// Count returns the number of live slots
func (a *Allocator[O]) Count() int { return a.count }

// Next returns the first valid slot at or after from, or false
func (a *Allocator[O]) Next(from types.AllocIdx) (types.AllocIdx, bool) {
	i := a.valid.NextSet(int(from))
	if i < 0 {
		return types.InvalidAllocIdx, false
	}
	return types.AllocIdx(i), true
}

// AllObjects appends every live object to out in slot order
func (a *Allocator[O]) AllObjects(out []O) []O {
	for i := a.valid.NextSet(0); i >= 0; i = a.valid.NextSet(i + 1) {
		out = append(out, a.slots[i])
	}
	return out
}
