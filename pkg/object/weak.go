package object

import "github.com/coreobjects/coreobjects/pkg/types"

// WeakPtr refers to an object without keeping it alive. The collector does
// not trace weak pointers; once the object is condemned or destroyed Get
// reports false.
type WeakPtr[T Object] struct {
	u   *Universe
	idx types.DbIdx
	gen uint32
}

// Weak returns a weak pointer to obj
func Weak[T Object](obj T) WeakPtr[T] {
	if IsNil(obj) {
		return WeakPtr[T]{idx: types.InvalidDbIdx}
	}
	b := obj.base()
	if b.universe == nil {
		return WeakPtr[T]{idx: types.InvalidDbIdx}
	}
	return WeakPtr[T]{u: b.universe, idx: b.dbIdx, gen: b.universe.db.Generation(b.dbIdx)}
}

// Get resolves the pointer
func (w WeakPtr[T]) Get() (T, bool) {
	var zero T
	if w.u == nil || !w.u.db.HasObject(w.idx) || w.u.db.Generation(w.idx) != w.gen {
		return zero, false
	}
	obj := w.u.db.Object(w.idx)
	if obj.Flags().HasAny(types.FlagMarkedForDelete | types.FlagDeleted) {
		return zero, false
	}
	t, ok := obj.(T)
	return t, ok
}

// IsSet reports whether the pointer was ever assigned an object
func (w WeakPtr[T]) IsSet() bool { return w.u != nil }

// Reset detaches the pointer
func (w *WeakPtr[T]) Reset() { *w = WeakPtr[T]{idx: types.InvalidDbIdx} }
