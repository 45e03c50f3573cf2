// Package gc implements an incremental, time budgeted mark and sweep
// collector over an object.Universe.
//
// A cycle runs through three states. NewGC starts a cycle and marks roots.
// Collecting traces the reflected object graph one class at a time.
// Clearing destroys every object that was not marked, one class at a time.
// Collect may stop after any step once its budget is spent; the next call
// resumes where the previous one stopped.
package gc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"

	pcontext "github.com/coreobjects/coreobjects/pkg/context"
	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/ds/bitarray"
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// Collector is the incremental collector of one universe. Like the
// universe it is not safe for concurrent use.
type Collector struct {
	u       *object.Universe
	log     logger.Logger
	clock   clock.Clock
	metrics bool

	refCollectors []ReferenceCollector
	tracer        *tracer

	state types.GCState
	step  types.MarkStep

	classesLeft   []*reflection.Class
	queued        map[*reflection.Class]bool
	used          map[*reflection.Class]*bitarray.BitArray
	scanned       map[*reflection.Class]*bitarray.BitArray
	staticsTraced map[*reflection.Class]bool

	lastClearCount int
	cycle          types.CycleReport
	lastReport     types.CycleReport

	busy atomic.Bool
}

// Option configures a Collector
type Option func(*Collector)

// WithClock replaces the system clock used for budgets and timings
func WithClock(c clock.Clock) Option {
	return func(col *Collector) { col.clock = c }
}

// WithLogger sets the collector logger. Defaults to the universe logger.
func WithLogger(log logger.Logger) Option {
	return func(col *Collector) { col.log = log }
}

// WithMetrics enables prometheus metrics
func WithMetrics() Option {
	return func(col *Collector) { col.metrics = true }
}

// NewCollector creates a collector for u
func NewCollector(u *object.Universe, opts ...Option) *Collector {
	c := &Collector{
		u:             u,
		log:           u.Logger(),
		clock:         clock.SystemClock,
		state:         types.GCStateNew,
		queued:        make(map[*reflection.Class]bool),
		used:          make(map[*reflection.Class]*bitarray.BitArray),
		scanned:       make(map[*reflection.Class]*bitarray.BitArray),
		staticsTraced: make(map[*reflection.Class]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithComponent("gc")
	c.tracer = newTracer(c.log, func(obj object.Object) { c.mark(obj) })
	if c.metrics {
		registerMetrics()
	}

	// Objects created while a cycle is in flight are treated as reachable
	u.OnObjectCreated(func(obj object.Object) {
		if c.state == types.GCStateCollecting {
			c.mark(obj)
		} else if c.state == types.GCStateClearing {
			c.keepAlive(obj)
		}
	})
	return c
}

// State returns the current collector state
func (c *Collector) State() types.GCState { return c.state }

// Step returns the current mark sub-step. Only meaningful while collecting.
func (c *Collector) Step() types.MarkStep { return c.step }

// IsGCComplete reports whether no cycle is in flight
func (c *Collector) IsGCComplete() bool { return c.state == types.GCStateNew }

// LastClearCount returns the number of objects destroyed by the most
// recent clearing phase
func (c *Collector) LastClearCount() int { return c.lastClearCount }

// Stats returns the report of the last completed cycle
func (c *Collector) Stats() types.CycleReport { return c.lastReport }

// CycleID returns the ID of the cycle in flight or the last completed one
func (c *Collector) CycleID() string { return c.cycle.CycleID }

// Collect advances the collector for at most budget. A non-positive budget
// runs until the current cycle completes.
func (c *Collector) Collect(budget time.Duration) {
	c.CollectContext(context.Background(), budget)
}

// CollectContext is Collect with tracing fields taken from ctx
func (c *Collector) CollectContext(ctx context.Context, limit time.Duration) {
	contract.Assert(c.busy.CompareAndSwap(false, true), "%v: Collect re-entered", ErrCollectorBusy)
	defer c.busy.Store(false)
	defer c.u.Enter("Collect")()

	b := newBudget(c.clock, limit)
	c.cycle.CollectCalls++

	if c.state == types.GCStateNew {
		c.startNewGC()
		ctx = pcontext.WithCycleID(ctx, c.cycle.CycleID)
		logger.WithContext(ctx, c.log).Debug("Collection cycle started",
			logger.WithField("budget", limit))
		if b.exhausted() {
			return
		}
	}
	ctx = pcontext.WithCycleID(ctx, c.cycle.CycleID)

	if c.state == types.GCStateCollecting {
		if !c.collecting(b) || b.exhausted() {
			return
		}
	}
	if c.state == types.GCStateClearing {
		if c.clearing(b) {
			c.finishCycle(ctx)
		}
	}
}

// startNewGC resets the cycle state, sizes the used tables to every
// allocator and runs the root and package mark steps
func (c *Collector) startNewGC() {
	c.cycle = types.CycleReport{
		CycleID:      pcontext.GenerateCycleID(),
		StartedAt:    c.clock.Now(),
		CollectCalls: c.cycle.CollectCalls,
	}
	c.tracer.keysDropped = 0

	c.classesLeft = c.classesLeft[:0]
	for class := range c.queued {
		delete(c.queued, class)
	}
	for class := range c.staticsTraced {
		delete(c.staticsTraced, class)
	}
	for _, alloc := range c.u.Allocators().All() {
		class := alloc.Class()
		c.resetTable(c.used, class, alloc.Size())
		c.resetTable(c.scanned, class, alloc.Size())
		if class.HasRefs && alloc.Count() > 0 {
			c.enqueue(class)
		}
	}

	c.state = types.GCStateCollecting
	c.runStep(types.MarkStepRoots)
	c.runStep(types.MarkStepPackages)
	c.step = types.MarkStepExternal
}

func (c *Collector) resetTable(tables map[*reflection.Class]*bitarray.BitArray, class *reflection.Class, size int) {
	bits, ok := tables[class]
	if !ok {
		tables[class] = bitarray.New(size)
		return
	}
	bits.Reset()
	bits.Grow(size)
}

// collecting runs the remaining mark steps. It returns true once tracing
// is done and the collector moved to Clearing.
func (c *Collector) collecting(b budget) bool {
	for c.step != types.MarkStepTrace {
		c.runStep(c.step)
		c.step = nextStep(c.step)
		if b.exhausted() {
			return false
		}
	}

	sw := startStopwatch(c.clock)
	defer sw.addTo(&c.cycle.Timings.Collection)
	for len(c.classesLeft) > 0 {
		class := c.classesLeft[0]
		c.classesLeft = c.classesLeft[1:]
		c.queued[class] = false
		c.traceClass(class)
		if len(c.classesLeft) > 0 && b.exhausted() {
			return false
		}
	}

	c.state = types.GCStateClearing
	c.lastClearCount = 0
	c.cycle.KeysDropped = c.tracer.keysDropped
	for _, alloc := range c.u.Allocators().All() {
		if _, ok := c.used[alloc.Class()]; ok {
			c.classesLeft = append(c.classesLeft, alloc.Class())
		}
	}
	return true
}

func nextStep(s types.MarkStep) types.MarkStep {
	switch s {
	case types.MarkStepRoots:
		return types.MarkStepPackages
	case types.MarkStepPackages:
		return types.MarkStepExternal
	default:
		return types.MarkStepTrace
	}
}

func (c *Collector) runStep(step types.MarkStep) {
	sw := startStopwatch(c.clock)
	switch step {
	case types.MarkStepRoots:
		c.markRoots()
		sw.addTo(&c.cycle.Timings.MarkRoots)
	case types.MarkStepPackages:
		c.markPackages()
		sw.addTo(&c.cycle.Timings.MarkRoots)
	case types.MarkStepExternal:
		c.markExternal()
		sw.addTo(&c.cycle.Timings.RefCollectors)
	}
}

// markRoots marks root and default objects that are not condemned
func (c *Collector) markRoots() {
	for _, alloc := range c.u.Allocators().All() {
		for i, ok := alloc.Next(0); ok; i, ok = alloc.Next(i + 1) {
			obj := alloc.At(i)
			flags := obj.Flags()
			if flags.HasAny(types.FlagRootObject|types.FlagDefault) && !flags.Has(types.FlagMarkedForDelete) {
				c.mark(obj)
			}
		}
	}
}

// markPackages keeps every package that still has children
func (c *Collector) markPackages() {
	db := c.u.DB()
	for _, alloc := range c.u.Allocators().All() {
		if !alloc.Class().IsPackage {
			continue
		}
		for i, ok := alloc.Next(0); ok; i, ok = alloc.Next(i + 1) {
			pkg := alloc.At(i)
			if !pkg.Flags().Has(types.FlagMarkedForDelete) && db.HasChild(pkg.DbIdx()) {
				c.mark(pkg)
			}
		}
	}
}

// mark sets the used bit of obj and of every ancestor, queuing the class of
// each newly marked object for scanning. Ancestors are marked because an
// object cannot outlive its outer; a condemned ancestor stops the walk and
// takes its subtree with it when cleared.
func (c *Collector) mark(obj object.Object) {
	for o := obj; o != nil; o = object.BaseOf(o).Outer() {
		if o != obj && o.Flags().Has(types.FlagMarkedForDelete) {
			return
		}
		if !c.markSlot(o.Class(), o.AllocIdx()) {
			return
		}
		c.enqueue(o.Class())
	}
}

// keepAlive marks obj and its ancestors without queuing anything. Used
// while clearing, when an outer that was never reached may still be
// waiting for its class to be cleared.
func (c *Collector) keepAlive(obj object.Object) {
	for o := obj; o != nil; o = object.BaseOf(o).Outer() {
		if o != obj && o.Flags().Has(types.FlagMarkedForDelete) {
			return
		}
		c.markSlot(o.Class(), o.AllocIdx())
	}
}

func (c *Collector) markSlot(class *reflection.Class, idx types.AllocIdx) bool {
	bits, ok := c.used[class]
	if !ok {
		// Class registered mid cycle
		bits = bitarray.New(int(idx) + 1)
		c.used[class] = bits
	}
	if bits.Get(int(idx)) {
		return false
	}
	bits.Set(int(idx))
	return true
}

func (c *Collector) enqueue(class *reflection.Class) {
	if !class.HasRefs || c.queued[class] {
		return
	}
	c.queued[class] = true
	c.classesLeft = append(c.classesLeft, class)
}

// traceClass traces the static fields of class once per cycle, then scans
// every marked instance not yet scanned
func (c *Collector) traceClass(class *reflection.Class) {
	if !c.staticsTraced[class] {
		c.staticsTraced[class] = true
		c.tracer.traceStatics(class)
	}

	alloc, ok := c.u.Allocators().Get(class)
	if !ok {
		return
	}
	used := c.used[class]
	scanned, ok := c.scanned[class]
	if !ok {
		scanned = bitarray.New(used.Len())
		c.scanned[class] = scanned
	}

	for i := used.NextSet(0); i >= 0; i = used.NextSet(i + 1) {
		if scanned.Get(i) {
			continue
		}
		scanned.Set(i)

		idx := types.AllocIdx(i)
		if !alloc.IsValid(idx) {
			continue
		}
		obj := alloc.At(idx)
		if obj.Flags().HasAny(types.FlagMarkedForDelete | types.FlagDeleted) {
			continue
		}
		c.u.CheckConsistency(obj)
		c.tracer.traceObject(obj)
		c.cycle.ObjectsScanned++
	}
}

// clearing destroys unmarked objects one class at a time. It returns true
// when every class has been cleared.
func (c *Collector) clearing(b budget) bool {
	sw := startStopwatch(c.clock)
	defer sw.addTo(&c.cycle.Timings.Clear)

	var victims []object.Object
	for len(c.classesLeft) > 0 {
		class := c.classesLeft[0]
		c.classesLeft = c.classesLeft[1:]

		alloc, ok := c.u.Allocators().Get(class)
		if !ok {
			continue
		}
		used := c.used[class]
		victims = victims[:0]
		for i, ok := alloc.Next(0); ok; i, ok = alloc.Next(i + 1) {
			if int(i) >= used.Len() || used.Get(int(i)) {
				continue
			}
			victims = append(victims, alloc.At(i))
		}
		for _, obj := range victims {
			// Already gone with the subtree of an earlier victim
			if obj.Flags().Has(types.FlagDeleted) {
				continue
			}
			c.lastClearCount += c.deleteObject(obj)
		}

		if len(c.classesLeft) > 0 && b.exhausted() {
			return false
		}
	}
	return true
}

// DeleteObject destroys obj and its whole subtree, children first, and
// returns the number of objects destroyed. Objects that are already gone
// are skipped and count as zero.
func (c *Collector) DeleteObject(obj object.Object) int {
	defer c.u.Enter("DeleteObject")()
	return c.deleteObject(obj)
}

func (c *Collector) deleteObject(obj object.Object) int {
	db := c.u.DB()
	if object.IsNil(obj) || obj.Flags().Has(types.FlagDeleted) || !db.HasObject(obj.DbIdx()) {
		c.log.Debug("Skipping delete of an object that no longer exists")
		return 0
	}
	subs := db.GetSubobjects(nil, obj.DbIdx())
	objs := make([]object.Object, 0, len(subs)+1)
	for _, idx := range subs {
		objs = append(objs, db.Object(idx))
	}

	for i := len(objs) - 1; i >= 0; i-- {
		c.u.DestroyHeld(objs[i])
	}
	c.u.DestroyHeld(obj)
	return len(objs) + 1
}

func (c *Collector) finishCycle(ctx context.Context) {
	c.state = types.GCStateNew
	c.classesLeft = c.classesLeft[:0]

	c.cycle.CompletedAt = c.clock.Now()
	c.cycle.ObjectsCleared = c.lastClearCount
	c.lastReport = c.cycle
	c.cycle.CollectCalls = 0

	if c.metrics {
		observeCycle(c.lastReport)
	}

	logger.WithContext(ctx, c.log).Info("Collection cycle complete",
		logger.WithField("cleared", c.lastReport.ObjectsCleared),
		logger.WithField("scanned", c.lastReport.ObjectsScanned),
		logger.WithField("collect_calls", c.lastReport.CollectCalls),
		logger.WithField("keys_dropped", c.lastReport.KeysDropped),
		logger.WithField("total", c.lastReport.Timings.Total()),
	)
}
