package bitarray_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreobjects/coreobjects/pkg/ds/bitarray"
)

func TestBitArray_SetGetClear(t *testing.T) {
	b := bitarray.New(10)
	require.Equal(t, 10, b.Len())

	b.Set(3)
	b.Set(9)
	assert.True(t, b.Get(3))
	assert.True(t, b.Get(9))
	assert.False(t, b.Get(4))
	assert.Equal(t, 2, b.Count())

	b.Clear(3)
	assert.False(t, b.Get(3))
	assert.Equal(t, 1, b.Count())
}

func TestBitArray_GrowsOnSet(t *testing.T) {
	var b bitarray.BitArray
	assert.False(t, b.Get(200))

	b.Set(200)
	assert.Equal(t, 201, b.Len())
	assert.True(t, b.Get(200))
	assert.False(t, b.Get(199))

	b.Clear(500)
	assert.Equal(t, 201, b.Len())
}

func TestBitArray_Reset(t *testing.T) {
	b := bitarray.New(130)
	for i := 0; i < 130; i += 7 {
		b.Set(i)
	}
	b.Reset()
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, 130, b.Len())
}

func TestBitArray_NextSet(t *testing.T) {
	b := bitarray.New(200)
	b.Set(0)
	b.Set(64)
	b.Set(150)

	var got []int
	for i := b.NextSet(0); i >= 0; i = b.NextSet(i + 1) {
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 64, 150}, got)
	assert.Equal(t, -1, b.NextSet(151))
}

func TestBitArray_FirstClear(t *testing.T) {
	tests := []struct {
		name string
		n    int
		set  []int
		want int
	}{
		{"empty", 0, nil, 0},
		{"none set", 5, nil, 0},
		{"hole", 70, []int{0, 1, 2, 4}, 3},
		{"full word", 70, seq(64), 64},
		{"all set", 3, []int{0, 1, 2}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bitarray.New(tt.n)
			for _, i := range tt.set {
				b.Set(i)
			}
			assert.Equal(t, tt.want, b.FirstClear())
		})
	}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
