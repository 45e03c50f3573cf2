// Package bitarray adapts bitset.BitSet to the int slot indices used by
// allocators and the collector's used tables.
package bitarray

import "github.com/bits-and-blooms/bitset"

// BitArray is a dense set of bits indexed from zero. The zero value is an
// empty array ready to use.
type BitArray struct {
	set bitset.BitSet
}

// New returns an array holding n cleared bits.
func New(n int) *BitArray {
	b := &BitArray{}
	b.Grow(n)
	return b
}

// Len returns the number of addressable bits.
func (b *BitArray) Len() int {
	return int(b.set.Len())
}

// Grow extends the array to at least n bits. New bits are cleared.
func (b *BitArray) Grow(n int) {
	if n <= b.Len() {
		return
	}
	// Setting the last bit extends the set to n bits
	b.set.Set(uint(n - 1)).Clear(uint(n - 1))
}

// Set sets bit i, growing the array if i is past the end.
func (b *BitArray) Set(i int) {
	b.set.Set(uint(i))
}

// Clear clears bit i. Clearing past the end is a no-op.
func (b *BitArray) Clear(i int) {
	if i < 0 {
		return
	}
	b.set.Clear(uint(i))
}

// Get reports bit i. Bits past the end read as cleared.
func (b *BitArray) Get(i int) bool {
	return i >= 0 && b.set.Test(uint(i))
}

// Count returns the number of set bits.
func (b *BitArray) Count() int {
	return int(b.set.Count())
}

// Reset clears every bit without changing the length.
func (b *BitArray) Reset() {
	b.set.ClearAll()
}

// NextSet returns the index of the first set bit at or after from, or -1.
func (b *BitArray) NextSet(from int) int {
	if from < 0 {
		from = 0
	}
	i, ok := b.set.NextSet(uint(from))
	if !ok || int(i) >= b.Len() {
		return -1
	}
	return int(i)
}

// FirstClear returns the lowest cleared bit, or Len() when every bit is set.
func (b *BitArray) FirstClear() int {
	i, ok := b.set.NextClear(0)
	if !ok || int(i) >= b.Len() {
		return b.Len()
	}
	return int(i)
}
