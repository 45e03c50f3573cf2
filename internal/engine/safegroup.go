package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/logger"
)

// SafeGroup wraps errgroup.Group so a panicking goroutine, such as a
// contract violation on the owning goroutine, stops the group with an
// error instead of crashing the process
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a new SafeGroup with panic recovery
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{group: g, logger: log}, ctx
}

// Go runs fn in a new goroutine. A panic is logged with its stack and
// returned as the goroutine error.
func (sg *SafeGroup) Go(fn func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if v, ok := r.(*contract.Violation); ok {
				err = fmt.Errorf("goroutine stopped: %w", v)
			} else {
				err = fmt.Errorf("goroutine panic: %v", r)
			}
			sg.logger.Error("Goroutine panic recovered",
				logger.WithField("panic", r),
				logger.WithField("stack_trace", string(debug.Stack())))
		}()
		return fn()
	})
}

// SetLimit sets the maximum number of concurrent goroutines
func (sg *SafeGroup) SetLimit(n int) {
	sg.group.SetLimit(n)
}

// Wait blocks until all goroutines have completed and returns the first
// error. Cancellation of the parent context is not reported as an error.
func (sg *SafeGroup) Wait() error {
	err := sg.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
