package reflection

import "errors"

var (
	// ErrUnsupportedField indicates a field whose shape is outside the
	// supported property kinds
	ErrUnsupportedField = errors.New("unsupported field type")

	// ErrNotObjectType indicates a class type that does not implement the
	// object interface
	ErrNotObjectType = errors.New("type does not implement the object interface")

	// ErrDuplicateClass indicates a class name or Go type registered twice
	ErrDuplicateClass = errors.New("class already registered")
)
