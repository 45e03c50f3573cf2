package objectsdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/objectsdb"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// scene builds:
//
//	Pkg
//	├── Pkg:A
//	│   ├── Pkg:A.X
//	│   └── Pkg:A.Y
//	└── Pkg:B
func scene(t *testing.T) (*objectsdb.DB[string], map[string]types.DbIdx) {
	t.Helper()
	db := objectsdb.New[string]()
	ids := map[string]types.DbIdx{}
	ids["Pkg"] = db.AddRootObject("Pkg", "Pkg", "pkg")
	ids["A"] = db.AddObject("Pkg:A", "A", "a", ids["Pkg"])
	ids["B"] = db.AddObject("Pkg:B", "B", "b", ids["Pkg"])
	ids["X"] = db.AddObject("Pkg:A.X", "X", "x", ids["A"])
	ids["Y"] = db.AddObject("Pkg:A.Y", "Y", "y", ids["A"])
	return db, ids
}

func requireViolation(t *testing.T, fn func()) {
	t.Helper()
	if !contract.Enabled() {
		t.Skip("checks compiled out")
	}
	defer func() {
		r := recover()
		_, ok := r.(*contract.Violation)
		require.True(t, ok, "expected contract violation, got %v", r)
	}()
	fn()
}

func TestDB_AddAndLookup(t *testing.T) {
	db, ids := scene(t)

	assert.Equal(t, 5, db.Len())
	assert.True(t, db.HasObject(ids["X"]))
	assert.True(t, db.HasPath("Pkg:A.X"))
	assert.False(t, db.HasPath("Pkg:A.Z"))

	idx, ok := db.Lookup("Pkg:B")
	require.True(t, ok)
	assert.Equal(t, ids["B"], idx)
	assert.Equal(t, "b", db.Object(idx))

	e := db.Entry(ids["Y"])
	assert.Equal(t, "Y", e.Name)
	assert.Equal(t, ids["A"], e.Parent)
	assert.Equal(t, types.InvalidDbIdx, db.Parent(ids["Pkg"]))
}

func TestDB_ChildrenAndSubobjects(t *testing.T) {
	db, ids := scene(t)

	assert.Equal(t, []types.DbIdx{ids["A"], ids["B"]}, db.GetChildren(nil, ids["Pkg"]))
	assert.Equal(t, []types.DbIdx{ids["A"], ids["B"], ids["X"], ids["Y"]}, db.GetSubobjects(nil, ids["Pkg"]))
	assert.True(t, db.HasChild(ids["A"]))
	assert.False(t, db.HasChild(ids["B"]))

	all := db.GetAllObjects(nil)
	assert.Equal(t, []types.DbIdx{ids["Pkg"], ids["A"], ids["B"], ids["X"], ids["Y"]}, all)
}

func TestDB_RemoveObject(t *testing.T) {
	db, ids := scene(t)

	subs := db.GetSubobjects(nil, ids["A"])
	for i := len(subs) - 1; i >= 0; i-- {
		db.RemoveObject(subs[i])
	}
	assert.False(t, db.HasChild(ids["A"]))

	gen := db.Generation(ids["A"])
	db.RemoveObject(ids["A"])
	assert.False(t, db.HasObject(ids["A"]))
	assert.False(t, db.HasPath("Pkg:A"))
	assert.Equal(t, []types.DbIdx{ids["B"]}, db.GetChildren(nil, ids["Pkg"]))
	assert.Equal(t, 2, db.Len())

	// Handles are recycled with a new generation
	reused := db.AddObject("Pkg:C", "C", "c", ids["Pkg"])
	assert.Equal(t, ids["A"], reused)
	assert.NotEqual(t, gen, db.Generation(reused))
}

func TestDB_RemoveWithChildrenIsViolation(t *testing.T) {
	db, ids := scene(t)
	requireViolation(t, func() { db.RemoveObject(ids["A"]) })
}

func TestDB_DuplicatePathIsViolation(t *testing.T) {
	db, ids := scene(t)
	requireViolation(t, func() { db.AddObject("Pkg:A", "A", "dup", ids["Pkg"]) })
}

func TestDB_SetObjectParent(t *testing.T) {
	db, ids := scene(t)

	db.SetObjectParent(ids["Y"], ids["B"])
	assert.Equal(t, []types.DbIdx{ids["X"]}, db.GetChildren(nil, ids["A"]))
	assert.Equal(t, []types.DbIdx{ids["Y"]}, db.GetChildren(nil, ids["B"]))
	assert.Equal(t, ids["B"], db.Parent(ids["Y"]))

	db.SetObjectParent(ids["B"], types.InvalidDbIdx)
	assert.Equal(t, []types.DbIdx{ids["A"]}, db.GetChildren(nil, ids["Pkg"]))
	all := db.GetAllObjects(nil)
	assert.Len(t, all, 5)
	assert.Equal(t, ids["B"], all[len(all)-2], "moved root lists after existing roots")
}

func TestDB_SetObjectParentCycles(t *testing.T) {
	tests := []struct {
		name   string
		child  string
		parent string
	}{
		{"self", "A", "A"},
		{"direct descendant", "A", "X"},
		{"root under descendant", "Pkg", "Y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, ids := scene(t)
			requireViolation(t, func() { db.SetObjectParent(ids[tt.child], ids[tt.parent]) })
		})
	}
}

func TestDB_SetObject(t *testing.T) {
	db, ids := scene(t)

	db.SetObject(ids["B"], "Pkg:Renamed", "Renamed")
	assert.False(t, db.HasPath("Pkg:B"))
	idx, ok := db.Lookup("Pkg:Renamed")
	require.True(t, ok)
	assert.Equal(t, ids["B"], idx)
	assert.Equal(t, "Renamed", db.Entry(idx).Name)

	requireViolation(t, func() { db.SetObject(ids["B"], "Pkg:A", "A") })
}

func TestDB_Clear(t *testing.T) {
	db, _ := scene(t)
	db.Clear()
	assert.Equal(t, 0, db.Len())
	assert.Empty(t, db.GetAllObjects(nil))
	assert.False(t, db.HasPath("Pkg"))
}

func TestDB_ClearAdvancesGenerations(t *testing.T) {
	db, ids := scene(t)
	before := map[types.DbIdx]uint32{}
	for _, idx := range ids {
		before[idx] = db.Generation(idx)
	}

	db.Clear()
	for name, idx := range ids {
		assert.False(t, db.HasObject(idx), name)
		assert.NotEqual(t, before[idx], db.Generation(idx), name)
	}

	// Reused handles keep the advanced generation
	for i := 0; i < len(ids)+2; i++ {
		idx := db.AddRootObject(string(rune('a'+i)), string(rune('a'+i)), "fresh")
		if gen, ok := before[idx]; ok {
			assert.NotEqual(t, gen, db.Generation(idx))
		}
	}
	assert.Equal(t, len(ids)+2, db.Len())
	assert.Len(t, db.GetAllObjects(nil), len(ids)+2)
}
