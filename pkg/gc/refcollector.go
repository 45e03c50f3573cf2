package gc

import (
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/types"
)

//go:generate mockgen -destination=../mocks/mock_reference_collector.go -package=mocks github.com/coreobjects/coreobjects/pkg/gc ReferenceCollector

// ReferenceCollector reports objects referenced from outside the reflected
// object graph, such as handles held by subsystems.
type ReferenceCollector interface {
	// CollectReferences returns every object the subsystem holds
	CollectReferences() []object.Object
	// ClearReferences asks the subsystem to drop references to objects
	// that are about to be destroyed. Only objects returned by the
	// preceding CollectReferences call are passed.
	ClearReferences(deleted []object.Object)
}

// RegisterReferenceCollector adds rc. Registering the same collector twice
// has no effect.
func (c *Collector) RegisterReferenceCollector(rc ReferenceCollector) {
	for _, existing := range c.refCollectors {
		if existing == rc {
			return
		}
	}
	c.refCollectors = append(c.refCollectors, rc)
}

// UnregisterReferenceCollector removes rc. Order of the remaining
// collectors is not preserved.
func (c *Collector) UnregisterReferenceCollector(rc ReferenceCollector) {
	for i, existing := range c.refCollectors {
		if existing == rc {
			last := len(c.refCollectors) - 1
			c.refCollectors[i] = c.refCollectors[last]
			c.refCollectors[last] = nil
			c.refCollectors = c.refCollectors[:last]
			return
		}
	}
}

// markExternal marks every live object held by a reference collector and
// hands condemned ones back to their collector. ClearReferences follows
// every CollectReferences, with an empty list when nothing was condemned.
func (c *Collector) markExternal() {
	for _, rc := range c.refCollectors {
		var condemned []object.Object
		for _, obj := range rc.CollectReferences() {
			if object.IsNil(obj) {
				c.log.Debug("Reference collector returned nil object")
				continue
			}
			flags := obj.Flags()
			if flags.Has(types.FlagDeleted) {
				c.log.Debug("Reference collector returned destroyed object",
					logger.WithField("class", obj.Class().Name))
				continue
			}
			if flags.Has(types.FlagMarkedForDelete) {
				condemned = append(condemned, obj)
				continue
			}
			c.mark(obj)
		}
		rc.ClearReferences(condemned)
	}
}
