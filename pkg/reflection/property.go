// Package reflection describes managed classes and the shapes of their
// fields. Every field of a registered class is classified into a closed set
// of property kinds so the collector can walk object graphs with a single
// type switch.
package reflection

import (
	"fmt"
	"reflect"
)

// Kind is the closed set of property shapes
type Kind int

const (
	KindFundamental Kind = iota
	KindEnum
	KindStruct
	KindMap
	KindSet
	KindArray
	KindPair
	KindObjectPtr
)

var kindNames = [...]string{
	KindFundamental: "fundamental",
	KindEnum:        "enum",
	KindStruct:      "struct",
	KindMap:         "map",
	KindSet:         "set",
	KindArray:       "array",
	KindPair:        "pair",
	KindObjectPtr:   "objectptr",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Property is the classified shape of a Go type.
//
//	Array:  Elem
//	Map:    Key, Elem
//	Set:    Key
//	Pair:   First, Second
//	Struct: Fields
type Property struct {
	Kind   Kind
	Type   reflect.Type
	Key    *Property
	Elem   *Property
	First  *Property
	Second *Property
	Fields []Field

	// HasRefs is true when a value of this shape can hold an object
	// reference. Walkers skip shapes without references.
	HasRefs bool
}

func (p *Property) String() string {
	return fmt.Sprintf("%s(%s)", p.Kind, p.Type)
}

// Field is a reflected struct field
type Field struct {
	Name  string
	Index []int
	Prop  *Property
}

// children returns the nested shapes of p
func (p *Property) children() []*Property {
	switch p.Kind {
	case KindArray:
		return []*Property{p.Elem}
	case KindMap:
		return []*Property{p.Key, p.Elem}
	case KindSet:
		return []*Property{p.Key}
	case KindPair:
		return []*Property{p.First, p.Second}
	case KindStruct:
		out := make([]*Property, 0, len(p.Fields))
		for _, f := range p.Fields {
			out = append(out, f.Prop)
		}
		return out
	}
	return nil
}
