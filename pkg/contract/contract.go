// Package contract implements programmer-error checks. A failed check is a
// bug in the caller, never a recoverable condition, so it panics with a
// *Violation. Building with the release tag compiles every check out.
package contract

import (
	"errors"
	"fmt"
)

// ErrViolation is wrapped by every Violation
var ErrViolation = errors.New("contract violation")

// Violation is the panic value raised by a failed check
type Violation struct {
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", ErrViolation, v.Message)
}

func (v *Violation) Unwrap() error { return ErrViolation }

// Hook is invoked with the violation before panicking. Used to route the
// message through a logger.
type Hook func(v *Violation)

var hook Hook

// SetHook installs h and returns the previous hook
func SetHook(h Hook) Hook {
	prev := hook
	hook = h
	return prev
}

// Enabled reports whether checks are compiled in
func Enabled() bool { return enabled }

// Assert panics with a *Violation when cond is false
func Assert(cond bool, format string, args ...interface{}) {
	if !enabled || cond {
		return
	}
	Fail(format, args...)
}

// Fail raises a violation unconditionally, in every build
func Fail(format string, args ...interface{}) {
	v := &Violation{Message: fmt.Sprintf(format, args...)}
	if hook != nil {
		hook(v)
	}
	panic(v)
}

// Recover converts a recovered panic value into an error if it is a
// violation. Other panic values are re-raised.
func Recover(r interface{}) error {
	if r == nil {
		return nil
	}
	if v, ok := r.(*Violation); ok {
		return v
	}
	panic(r)
}
