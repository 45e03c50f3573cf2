package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreobjects/coreobjects/pkg/allocator"
	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

func TestAllocator_ReusesLowestFreeSlot(t *testing.T) {
	a := allocator.New[string](&reflection.Class{Name: "Thing"})

	for _, s := range []string{"a", "b", "c", "d"} {
		a.Allocate(s)
	}
	a.Free(1)
	a.Free(3)
	assert.Equal(t, 2, a.Count())
	assert.Equal(t, 4, a.Size())

	assert.Equal(t, types.AllocIdx(1), a.Allocate("e"))
	assert.Equal(t, types.AllocIdx(3), a.Allocate("f"))
	assert.Equal(t, types.AllocIdx(4), a.Allocate("g"))
	assert.Equal(t, []string{"a", "e", "c", "f", "g"}, a.AllObjects(nil))
}

func TestAllocator_Validity(t *testing.T) {
	a := allocator.New[int](&reflection.Class{Name: "Thing"})
	idx := a.Allocate(7)

	assert.True(t, a.IsValid(idx))
	assert.Equal(t, 7, a.At(idx))
	assert.False(t, a.IsValid(types.InvalidAllocIdx))
	assert.False(t, a.IsValid(idx+1))

	a.Free(idx)
	assert.False(t, a.IsValid(idx))
	assert.Empty(t, a.AllObjects(nil))
}

func TestAllocator_Next(t *testing.T) {
	a := allocator.New[int](&reflection.Class{Name: "Thing"})
	for i := 0; i < 5; i++ {
		a.Allocate(i)
	}
	a.Free(0)
	a.Free(2)

	var got []types.AllocIdx
	for i, ok := a.Next(0); ok; i, ok = a.Next(i + 1) {
		got = append(got, i)
	}
	assert.Equal(t, []types.AllocIdx{1, 3, 4}, got)
}

func TestRegistry_Order(t *testing.T) {
	r := allocator.NewRegistry[int]()
	c1 := &reflection.Class{Name: "One"}
	c2 := &reflection.Class{Name: "Two"}

	a2 := r.Register(c2)
	a1 := r.Register(c1)
	require.Same(t, a2, r.Register(c2))

	got, ok := r.Get(c1)
	require.True(t, ok)
	assert.Same(t, a1, got)
	assert.Equal(t, []*allocator.Allocator[int]{a2, a1}, r.All())

	_, ok = r.Get(&reflection.Class{Name: "Other"})
	assert.False(t, ok)
}
