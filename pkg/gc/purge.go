package gc

import (
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// PurgeAll tears down the whole universe. Every object is flagged GCPurge
// and MarkedForDelete, then destroyed children first with default objects
// last, and the hierarchy is cleared. Any cycle in flight is abandoned.
// Returns the number of objects destroyed.
func (c *Collector) PurgeAll() int {
	defer c.u.Enter("PurgeAll")()

	db := c.u.DB()
	all := db.GetAllObjects(nil)
	objs := make([]object.Object, 0, len(all))
	for _, idx := range all {
		obj := db.Object(idx)
		object.BaseOf(obj).SetFlags(types.FlagGCPurge | types.FlagMarkedForDelete)
		objs = append(objs, obj)
	}

	var defaults []object.Object
	for i := len(objs) - 1; i >= 0; i-- {
		if objs[i].Flags().Has(types.FlagDefault) {
			defaults = append(defaults, objs[i])
			continue
		}
		c.u.DestroyHeld(objs[i])
	}
	for _, obj := range defaults {
		c.u.DestroyHeld(obj)
	}
	db.Clear()

	c.state = types.GCStateNew
	c.classesLeft = c.classesLeft[:0]
	for class := range c.queued {
		delete(c.queued, class)
	}

	c.log.Info("Purged all objects",
		logger.WithField("destroyed", len(objs)),
		logger.WithField("defaults", len(defaults)))
	return len(objs)
}
