package allocator

import "github.com/coreobjects/coreobjects/pkg/reflection"

// Registry owns one allocator per class. Iteration follows registration
// order.
type Registry[O any] struct {
	byClass map[*reflection.Class]*Allocator[O]
	order   []*Allocator[O]
}

// NewRegistry creates an empty registry
func NewRegistry[O any]() *Registry[O] {
	return &Registry[O]{byClass: make(map[*reflection.Class]*Allocator[O])}
}

// Register returns the allocator of class, creating it on first use
func (r *Registry[O]) Register(class *reflection.Class) *Allocator[O] {
	if a, ok := r.byClass[class]; ok {
		return a
	}
	a := New[O](class)
	r.byClass[class] = a
	r.order = append(r.order, a)
	return a
}

// Get returns the allocator of class
func (r *Registry[O]) Get(class *reflection.Class) (*Allocator[O], bool) {
	a, ok := r.byClass[class]
	return a, ok
}

// All returns every allocator in registration order
func (r *Registry[O]) All() []*Allocator[O] {
	return r.order
}
