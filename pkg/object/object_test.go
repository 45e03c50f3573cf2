package object_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

type Actor struct {
	object.Base
	Target *Actor
	Health int

	destroyed *[]string
}

func (a *Actor) Destroy() {
	if a.destroyed != nil {
		*a.destroyed = append(*a.destroyed, a.Name())
	}
}

type Component struct {
	object.Base
	Owner *Actor
}

type fixture struct {
	u         *object.Universe
	actor     *reflection.Class
	component *reflection.Class
	pkg       *object.Package
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	u := object.NewUniverse()
	f := &fixture{u: u}
	f.actor = u.MustRegisterClass("Actor", (*Actor)(nil))
	f.component = u.MustRegisterClass("Component", (*Component)(nil))

	var err error
	f.pkg, err = u.NewPackage("Level")
	require.NoError(t, err)
	return f
}

func requireViolation(t *testing.T, fn func()) {
	t.Helper()
	if !contract.Enabled() {
		t.Skip("checks compiled out")
	}
	defer func() {
		_, ok := recover().(*contract.Violation)
		require.True(t, ok, "expected a contract violation")
	}()
	fn()
}

func TestUniverse_CreateAndPaths(t *testing.T) {
	f := newFixture(t)

	hero, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	mesh, err := object.Create[Component](f.u, "Mesh", hero)
	require.NoError(t, err)

	assert.Equal(t, "Level", f.pkg.FullPath())
	assert.Equal(t, "Level:Hero", hero.FullPath())
	assert.Equal(t, "Level:Hero.Mesh", mesh.FullPath())
	assert.Equal(t, "Mesh", mesh.Name())
	assert.Same(t, f.actor, hero.Class())

	assert.Equal(t, object.Object(hero), mesh.Outer())
	assert.Equal(t, object.Object(f.pkg), mesh.OuterMost())
	assert.Nil(t, f.pkg.OuterMost())
	assert.True(t, mesh.HasOuter(f.pkg))
	assert.False(t, hero.HasOuter(mesh))

	found, ok := object.Find[*Component](f.u, "Level:Hero.Mesh")
	require.True(t, ok)
	assert.Same(t, mesh, found)
	assert.Nil(t, f.u.FindObject("Level:Nobody"))

	owner, ok := object.OuterOfType[*Actor](mesh)
	require.True(t, ok)
	assert.Same(t, hero, owner)
	assert.Equal(t, object.Object(f.pkg), mesh.OuterOfClass(f.u.PackageClass()))
}

func TestUniverse_CreateErrors(t *testing.T) {
	f := newFixture(t)

	_, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)

	tests := []struct {
		name    string
		objName string
		wantErr error
	}{
		{"duplicate", "Hero", object.ErrObjectExists},
		{"empty", "", object.ErrInvalidName},
		{"root separator", "a:b", object.ErrInvalidName},
		{"object separator", "a.b", object.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := object.Create[Actor](f.u, tt.objName, f.pkg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	type unregistered struct{ object.Base }
	_, err = object.Create[unregistered](f.u, "x", nil)
	assert.ErrorIs(t, err, object.ErrUnknownClass)
}

func TestUniverse_DefaultObjects(t *testing.T) {
	f := newFixture(t)

	def := f.u.DefaultObject(f.actor)
	require.NotNil(t, def)
	assert.True(t, def.Flags().Has(types.FlagDefault))
	assert.Equal(t, object.DefaultObjectPrefix+"Actor", def.FullPath())
}

func TestUniverse_Destroy(t *testing.T) {
	f := newFixture(t)
	var log []string

	var created, destroyed []string
	f.u.OnObjectCreated(func(o object.Object) { created = append(created, o.Name()) })
	h := f.u.OnObjectDestroyed(func(o object.Object) { destroyed = append(destroyed, o.FullPath()) })

	hero, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	hero.destroyed = &log
	slot := hero.AllocIdx()

	f.u.Destroy(hero)

	assert.Equal(t, []string{"Hero"}, created)
	assert.Equal(t, []string{"Hero"}, log, "Destroy hook runs while the object is still named")
	assert.Equal(t, []string{"Level:Hero"}, destroyed)
	assert.True(t, hero.Flags().Has(types.FlagDeleted))
	assert.False(t, object.IsValid(hero))
	assert.Equal(t, "", hero.Name())
	assert.Nil(t, f.u.FindObject("Level:Hero"))

	again, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	assert.Equal(t, slot, again.AllocIdx(), "freed slot is reused")

	require.True(t, f.u.Unbind(h))
	assert.False(t, f.u.Unbind(h))
}

func TestUniverse_DestroyWithChildrenIsViolation(t *testing.T) {
	f := newFixture(t)
	hero, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	_, err = object.Create[Component](f.u, "Mesh", hero)
	require.NoError(t, err)

	requireViolation(t, func() { f.u.Destroy(hero) })
}

func TestUniverse_BeginDestroy(t *testing.T) {
	f := newFixture(t)

	first, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	_, err = object.Create[Component](f.u, "Mesh", first)
	require.NoError(t, err)

	f.u.BeginDestroy(first)
	assert.True(t, first.Flags().Has(types.FlagMarkedForDelete))
	assert.Equal(t, "Level:Hero_Delete", first.FullPath())
	assert.NotNil(t, f.u.FindObject("Level:Hero_Delete.Mesh"), "subtree paths follow the rename")
	assert.False(t, object.IsValid(first))

	second, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err, "the original path is free again")
	f.u.BeginDestroy(second)
	assert.Equal(t, "Level:Hero_Delete0", second.FullPath())

	third, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	f.u.BeginDestroy(third)
	assert.Equal(t, "Level:Hero_Delete1", third.FullPath())

	f.u.BeginDestroy(third)
	assert.Equal(t, "Level:Hero_Delete1", third.FullPath(), "second call is a no-op")
}

func TestUniverse_RenameAndSetOuter(t *testing.T) {
	f := newFixture(t)

	hero, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	mesh, err := object.Create[Component](f.u, "Mesh", hero)
	require.NoError(t, err)
	_, err = object.Create[Actor](f.u, "Villain", f.pkg)
	require.NoError(t, err)

	require.NoError(t, f.u.Rename(hero, "Player"))
	assert.Equal(t, "Level:Player.Mesh", mesh.FullPath())

	assert.ErrorIs(t, f.u.Rename(hero, "Villain"), object.ErrObjectExists)
	assert.ErrorIs(t, f.u.Rename(hero, "bad.name"), object.ErrInvalidName)

	other, err := f.u.NewPackage("Other")
	require.NoError(t, err)
	require.NoError(t, f.u.SetOuter(hero, other))
	assert.Equal(t, "Other:Player", hero.FullPath())
	assert.Equal(t, "Other:Player.Mesh", mesh.FullPath())

	require.NoError(t, f.u.SetOuter(mesh, nil))
	assert.Equal(t, "Mesh", mesh.FullPath())
	assert.Nil(t, mesh.Outer())

	requireViolation(t, func() { _ = f.u.SetOuter(other, hero) })
}

func TestUniverse_CollectAllFlags(t *testing.T) {
	f := newFixture(t)
	hero, err := object.Create[Actor](f.u, "Hero", f.pkg, types.FlagTransient)
	require.NoError(t, err)
	mesh, err := object.Create[Component](f.u, "Mesh", hero)
	require.NoError(t, err)

	f.pkg.SetFlags(types.FlagPackageDirty)
	all := mesh.CollectAllFlags()
	assert.True(t, all.Has(types.FlagTransient|types.FlagPackageDirty))
	assert.False(t, mesh.Flags().Has(types.FlagTransient))
}

func TestUniverse_ConcurrentEntryIsViolation(t *testing.T) {
	f := newFixture(t)
	exit := f.u.Enter("test")
	defer exit()

	requireViolation(t, func() { _, _ = f.u.NewPackage("Other") })
}

func TestWeakPtr(t *testing.T) {
	f := newFixture(t)
	hero, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)

	w := object.Weak(hero)
	got, ok := w.Get()
	require.True(t, ok)
	assert.Same(t, hero, got)

	f.u.BeginDestroy(hero)
	_, ok = w.Get()
	assert.False(t, ok, "condemned objects do not resolve")

	f.u.Destroy(hero)
	_, err = object.Create[Actor](f.u, "Reused", f.pkg)
	require.NoError(t, err)
	_, ok = w.Get()
	assert.False(t, ok, "recycled handles do not resolve")

	var empty object.WeakPtr[*Actor]
	assert.False(t, empty.IsSet())
	_, ok = empty.Get()
	assert.False(t, ok)
}

func TestChildPath(t *testing.T) {
	assert.Equal(t, "Pkg", object.ChildPath("", "Pkg"))
	assert.Equal(t, "Pkg:A", object.ChildPath("Pkg", "A"))
	assert.Equal(t, "Pkg:A.B", object.ChildPath("Pkg:A", "B"))
	assert.Equal(t, "Pkg:A.B.C", object.ChildPath("Pkg:A.B", "C"))
}

func TestUniverse_CheckConsistency(t *testing.T) {
	f := newFixture(t)
	hero, err := object.Create[Actor](f.u, "Hero", f.pkg)
	require.NoError(t, err)
	villain, err := object.Create[Actor](f.u, "Villain", f.pkg)
	require.NoError(t, err)

	assert.NotPanics(t, func() { f.u.CheckConsistency(hero) })

	// Hierarchy entry gone while the slot is still allocated
	f.u.DB().RemoveObject(hero.DbIdx())
	requireViolation(t, func() { f.u.CheckConsistency(hero) })

	// Slot released while the hierarchy entry is still live
	alloc, ok := f.u.Allocators().Get(f.actor)
	require.True(t, ok)
	alloc.Free(villain.AllocIdx())
	requireViolation(t, func() { f.u.CheckConsistency(villain) })
}
