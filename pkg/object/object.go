// Package object implements the managed object model: the Base every
// managed type embeds, the Universe that owns classes, slots and the
// hierarchy, and weak pointers into it.
package object

import (
	"reflect"

	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// Object is implemented by every managed type through an embedded Base
type Object interface {
	base() *Base

	Name() string
	FullPath() string
	Flags() types.ObjectFlags
	Class() *reflection.Class
	AllocIdx() types.AllocIdx
	DbIdx() types.DbIdx
}

// Destroyer is implemented by objects that release resources when they are
// destroyed. Destroy runs before the object leaves the hierarchy and must
// not mutate the Universe.
type Destroyer interface {
	Destroy()
}

// Base carries the identity of a managed object. Embed it by value as the
// first field of a managed struct.
type Base struct {
	flags    types.ObjectFlags
	class    *reflection.Class
	allocIdx types.AllocIdx
	dbIdx    types.DbIdx
	universe *Universe
}

func (b *Base) base() *Base { return b }

// Flags returns the current object flags
func (b *Base) Flags() types.ObjectFlags { return b.flags }

// SetFlags sets the bits of mask
func (b *Base) SetFlags(mask types.ObjectFlags) { b.flags = b.flags.With(mask) }

// ClearFlags clears the bits of mask
func (b *Base) ClearFlags(mask types.ObjectFlags) { b.flags = b.flags.Without(mask) }

// Class returns the class of the object
func (b *Base) Class() *reflection.Class { return b.class }

// AllocIdx returns the slot of the object in its class allocator
func (b *Base) AllocIdx() types.AllocIdx { return b.allocIdx }

// DbIdx returns the handle of the object in the hierarchy
func (b *Base) DbIdx() types.DbIdx { return b.dbIdx }

// Universe returns the universe that owns the object
func (b *Base) Universe() *Universe { return b.universe }

// IsA reports whether the object's class is class or derives from it
func (b *Base) IsA(class *reflection.Class) bool {
	return b.class != nil && b.class.IsChildOf(class)
}

func (b *Base) alive() bool {
	return b.universe != nil && b.universe.db.HasObject(b.dbIdx)
}

// Name returns the object name, or "" once destroyed
func (b *Base) Name() string {
	if !b.alive() {
		return ""
	}
	return b.universe.db.Entry(b.dbIdx).Name
}

// FullPath returns the unique path of the object, or "" once destroyed
func (b *Base) FullPath() string {
	if !b.alive() {
		return ""
	}
	return b.universe.db.Entry(b.dbIdx).Path
}

// Outer returns the direct owner of the object, nil for root level objects
func (b *Base) Outer() Object {
	if !b.alive() {
		return nil
	}
	parent := b.universe.db.Parent(b.dbIdx)
	if parent == types.InvalidDbIdx {
		return nil
	}
	return b.universe.db.Object(parent)
}

// OuterMost returns the root level ancestor, nil for root level objects
func (b *Base) OuterMost() Object {
	var last Object
	for o := b.Outer(); o != nil; o = o.base().Outer() {
		last = o
	}
	return last
}

// OuterOfClass returns the nearest ancestor whose class derives from class
func (b *Base) OuterOfClass(class *reflection.Class) Object {
	for o := b.Outer(); o != nil; o = o.base().Outer() {
		if o.base().IsA(class) {
			return o
		}
	}
	return nil
}

// HasOuter reports whether outer is an ancestor of the object
func (b *Base) HasOuter(outer Object) bool {
	if outer == nil {
		return false
	}
	target := outer.base()
	for o := b.Outer(); o != nil; o = o.base().Outer() {
		if o.base() == target {
			return true
		}
	}
	return false
}

// CollectAllFlags returns the union of the flags of the object and every
// ancestor
func (b *Base) CollectAllFlags() types.ObjectFlags {
	flags := b.flags
	for o := b.Outer(); o != nil; o = o.base().Outer() {
		flags |= o.Flags()
	}
	return flags
}

// OuterOfType returns the nearest ancestor of type T
func OuterOfType[T Object](obj Object) (T, bool) {
	for o := obj.base().Outer(); o != nil; o = o.base().Outer() {
		if t, ok := o.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// BaseOf returns the embedded Base of obj
func BaseOf(obj Object) *Base { return obj.base() }

// IsValid reports whether obj is non-nil, still in the hierarchy and not
// condemned
func IsValid(obj Object) bool {
	if IsNil(obj) {
		return false
	}
	b := obj.base()
	return !b.flags.HasAny(types.FlagMarkedForDelete|types.FlagDeleted) && b.alive()
}

// IsNil reports whether obj is nil or a typed nil pointer
func IsNil(obj Object) bool {
	if obj == nil {
		return true
	}
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// Package is the built-in container class. A package with at least one
// child is kept alive by the collector.
type Package struct {
	Base
}
