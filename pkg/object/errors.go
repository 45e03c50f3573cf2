package object

import "errors"

var (
	// ErrInvalidName indicates an empty name or one containing a path
	// separator
	ErrInvalidName = errors.New("invalid object name")

	// ErrObjectExists indicates the target path is already taken
	ErrObjectExists = errors.New("object already exists")

	// ErrUnknownClass indicates a Go type that was never registered
	ErrUnknownClass = errors.New("class not registered")
)
