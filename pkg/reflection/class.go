package reflection

import (
	"fmt"
	"reflect"
)

// Class describes a registered managed type
type Class struct {
	Name      string
	Type      reflect.Type
	Parent    *Class
	Fields    []Field
	Statics   []StaticField
	IsPackage bool

	// HasRefs is true when an instance or a static field can hold an
	// object reference
	HasRefs bool

	id int
}

// StaticField is a class level variable traced once per collection cycle
type StaticField struct {
	Name  string
	Value reflect.Value
	Prop  *Property
}

// ID is the registration order of the class, starting at zero
func (c *Class) ID() int { return c.id }

func (c *Class) String() string { return c.Name }

// IsChildOf reports whether c is other or derives from it
func (c *Class) IsChildOf(other *Class) bool {
	for k := c; k != nil; k = k.Parent {
		if k == other {
			return true
		}
	}
	return false
}

// ClassOption configures a class at registration
type ClassOption func(*classOptions)

type classOptions struct {
	parent    *Class
	isPackage bool
	statics   []staticBinding
}

type staticBinding struct {
	name string
	ptr  interface{}
}

// WithParent sets the parent class
func WithParent(parent *Class) ClassOption {
	return func(o *classOptions) { o.parent = parent }
}

// AsPackage marks the class as a package container
func AsPackage() ClassOption {
	return func(o *classOptions) { o.isPackage = true }
}

// WithStaticField adds a class level variable. ptr must be a non-nil
// pointer to the variable.
func WithStaticField(name string, ptr interface{}) ClassOption {
	return func(o *classOptions) {
		o.statics = append(o.statics, staticBinding{name: name, ptr: ptr})
	}
}

func (o *classOptions) staticValues() ([]string, []reflect.Value, error) {
	names := make([]string, 0, len(o.statics))
	values := make([]reflect.Value, 0, len(o.statics))
	for _, s := range o.statics {
		v := reflect.ValueOf(s.ptr)
		if v.Kind() != reflect.Ptr || v.IsNil() {
			return nil, nil, fmt.Errorf("static field %s: need a non-nil pointer, got %T", s.name, s.ptr)
		}
		names = append(names, s.name)
		values = append(values, v.Elem())
	}
	return names, values, nil
}
