package object

import (
	"fmt"
	"strings"
)

const (
	// RootSeparator joins a root level object and its direct child
	RootSeparator = ":"
	// ObjectSeparator joins every deeper level
	ObjectSeparator = "."
)

// ChildPath returns the full path of name under the object at outerPath.
// An empty outerPath yields a root level path.
//
//	ChildPath("", "Pkg")           == "Pkg"
//	ChildPath("Pkg", "Actor")      == "Pkg:Actor"
//	ChildPath("Pkg:Actor", "Mesh") == "Pkg:Actor.Mesh"
func ChildPath(outerPath, name string) string {
	switch {
	case outerPath == "":
		return name
	case strings.Contains(outerPath, RootSeparator):
		return outerPath + ObjectSeparator + name
	default:
		return outerPath + RootSeparator + name
	}
}

// ValidateName checks that name can be used as a path element
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, RootSeparator+ObjectSeparator) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
