package object

import (
	"sync/atomic"

	"github.com/coreobjects/coreobjects/pkg/contract"
)

// guard detects concurrent use of a Universe. It is not a lock: a second
// claim while the first is held is a contract violation, not a wait.
type guard struct {
	busy atomic.Bool
	op   atomic.Value
}

func (g *guard) enter(op string) func() {
	ok := g.busy.CompareAndSwap(false, true)
	if !ok {
		holder, _ := g.op.Load().(string)
		contract.Assert(false, "%s entered while %s is running; the object universe has a single owner", op, holder)
		return func() {}
	}
	g.op.Store(op)
	return func() {
		g.op.Store("")
		g.busy.Store(false)
	}
}

func (g *guard) held() bool { return g.busy.Load() }
