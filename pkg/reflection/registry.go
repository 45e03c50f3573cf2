package reflection

import (
	"fmt"
	"reflect"
)

// Registry classifies Go types and holds registered classes. The object
// interface type is injected so this package does not depend on the object
// model.
type Registry struct {
	objectIface reflect.Type
	props       map[reflect.Type]*Property
	classes     []*Class
	byName      map[string]*Class
	byType      map[reflect.Type]*Class
}

// NewRegistry creates a registry. objectIface must be an interface type;
// pointers to types implementing it and interfaces embedding it are
// classified as object pointers.
func NewRegistry(objectIface reflect.Type) *Registry {
	if objectIface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("reflection: %s is not an interface type", objectIface))
	}
	return &Registry{
		objectIface: objectIface,
		props:       make(map[reflect.Type]*Property),
		byName:      make(map[string]*Class),
		byType:      make(map[reflect.Type]*Class),
	}
}

// RegisterClass derives a class from the struct type t (or pointer to it).
// Exported fields become properties; a `gc:"-"` tag skips a field.
func (r *Registry) RegisterClass(name string, t reflect.Type, opts ...ClassOption) (*Class, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("class %s: %s is not a struct", name, t)
	}
	if !reflect.PtrTo(t).Implements(r.objectIface) {
		return nil, fmt.Errorf("class %s: %w", name, ErrNotObjectType)
	}
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("class %s: %w", name, ErrDuplicateClass)
	}
	if _, ok := r.byType[t]; ok {
		return nil, fmt.Errorf("class %s (%s): %w", name, t, ErrDuplicateClass)
	}

	o := &classOptions{}
	for _, opt := range opts {
		opt(o)
	}

	fields, err := r.structFields(t)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", name, err)
	}

	names, values, err := o.staticValues()
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", name, err)
	}
	statics := make([]StaticField, 0, len(names))
	for i, n := range names {
		p, err := r.PropertyOf(values[i].Type())
		if err != nil {
			return nil, fmt.Errorf("class %s: static field %s: %w", name, n, err)
		}
		statics = append(statics, StaticField{Name: n, Value: values[i], Prop: p})
	}
	r.settleRefs()

	c := &Class{
		Name:      name,
		Type:      t,
		Parent:    o.parent,
		Fields:    fields,
		Statics:   statics,
		IsPackage: o.isPackage || (o.parent != nil && o.parent.IsPackage),
		id:        len(r.classes),
	}
	for _, f := range c.Fields {
		c.HasRefs = c.HasRefs || f.Prop.HasRefs
	}
	for _, s := range c.Statics {
		c.HasRefs = c.HasRefs || s.Prop.HasRefs
	}

	r.classes = append(r.classes, c)
	r.byName[name] = c
	r.byType[t] = c
	return c, nil
}

// Class returns the class registered under name
func (r *Registry) Class(name string) (*Class, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ClassOf returns the class of a struct type or pointer to it
func (r *Registry) ClassOf(t reflect.Type) (*Class, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c, ok := r.byType[t]
	return c, ok
}

// Classes returns every class in registration order
func (r *Registry) Classes() []*Class {
	return r.classes
}

// PropertyOf classifies t. Results are cached per type.
func (r *Registry) PropertyOf(t reflect.Type) (*Property, error) {
	p, err := r.classify(t)
	if err != nil {
		return nil, err
	}
	r.settleRefs()
	return p, nil
}

func (r *Registry) isObjectPtr(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr:
		return t.Elem().Kind() == reflect.Struct && t.Implements(r.objectIface)
	case reflect.Interface:
		return t.Implements(r.objectIface)
	}
	return false
}

func (r *Registry) classify(t reflect.Type) (*Property, error) {
	if p, ok := r.props[t]; ok {
		return p, nil
	}
	if r.isObjectPtr(t) {
		p := &Property{Kind: KindObjectPtr, Type: t, HasRefs: true}
		r.props[t] = p
		return p, nil
	}

	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		kind := KindFundamental
		if t.Implements(enumType) && t.Kind() != reflect.Bool && t.Kind() != reflect.String {
			kind = KindEnum
		}
		p := &Property{Kind: kind, Type: t}
		r.props[t] = p
		return p, nil
	}

	// Placeholder first so recursive types terminate
	p := &Property{Type: t}
	r.props[t] = p
	if err := r.fill(p, t); err != nil {
		delete(r.props, t)
		return nil, err
	}
	return p, nil
}

func (r *Registry) fill(p *Property, t reflect.Type) error {
	var err error
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		p.Kind = KindArray
		p.Elem, err = r.classify(t.Elem())
		return err

	case reflect.Map:
		p.Key, err = r.classify(t.Key())
		if err != nil {
			return err
		}
		if isEmptyStruct(t.Elem()) {
			p.Kind = KindSet
			return nil
		}
		p.Kind = KindMap
		p.Elem, err = r.classify(t.Elem())
		return err

	case reflect.Struct:
		if t.Implements(pairType) {
			p.Kind = KindPair
			if p.First, err = r.classify(t.Field(0).Type); err != nil {
				return err
			}
			p.Second, err = r.classify(t.Field(1).Type)
			return err
		}
		p.Kind = KindStruct
		p.Fields, err = r.structFields(t)
		return err
	}
	return fmt.Errorf("%w: %s (%s)", ErrUnsupportedField, t, t.Kind())
}

func (r *Registry) structFields(t reflect.Type) ([]Field, error) {
	var fields []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get("gc") == "-" {
			continue
		}
		p, err := r.classify(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name(), sf.Name, err)
		}
		fields = append(fields, Field{Name: sf.Name, Index: sf.Index, Prop: p})
	}
	return fields, nil
}

// settleRefs propagates HasRefs until it reaches a fixed point. Needed
// because recursive shapes are classified before their children are known.
func (r *Registry) settleRefs() {
	for changed := true; changed; {
		changed = false
		for _, p := range r.props {
			if p.HasRefs {
				continue
			}
			for _, c := range p.children() {
				if c != nil && c.HasRefs {
					p.HasRefs = true
					changed = true
					break
				}
			}
		}
	}
}

func isEmptyStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.NumField() == 0
}
