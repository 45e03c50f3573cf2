package reflection

import "reflect"

// Pair is a two element tuple property
type Pair[K, V any] struct {
	First  K
	Second V
}

// MakePair builds a Pair
func MakePair[K, V any](first K, second V) Pair[K, V] {
	return Pair[K, V]{First: first, Second: second}
}

func (Pair[K, V]) isPair() {}

type pairShape interface{ isPair() }

// Enum is implemented by integer types that should be classified as
// enumerations rather than plain numbers
type Enum interface {
	EnumName() string
}

var (
	pairType = reflect.TypeOf((*pairShape)(nil)).Elem()
	enumType = reflect.TypeOf((*Enum)(nil)).Elem()
)
