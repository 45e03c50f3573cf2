package gc

import (
	"reflect"

	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/object"
	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// tracer walks reflected values and reports every object pointer it finds.
// Pointers to condemned or destroyed objects are nulled in place.
type tracer struct {
	log  logger.Logger
	mark func(object.Object)

	// self is the object being scanned, nil while tracing static fields
	self *object.Base

	// nulled counts every reference cleared so callers can detect that a
	// copied map key changed
	nulled      int
	keysDropped int
}

func newTracer(log logger.Logger, mark func(object.Object)) *tracer {
	return &tracer{log: log, mark: mark}
}

// traceObject visits every reflected field of obj
func (t *tracer) traceObject(obj object.Object) {
	class := obj.Class()
	if !class.HasRefs {
		return
	}
	t.self = object.BaseOf(obj)
	defer func() { t.self = nil }()

	rv := reflect.ValueOf(obj).Elem()
	for _, f := range class.Fields {
		t.visit(f.Prop, rv.FieldByIndex(f.Index))
	}
}

// traceStatics visits the class level variables of class
func (t *tracer) traceStatics(class *reflection.Class) {
	for _, s := range class.Statics {
		t.visit(s.Prop, s.Value)
	}
}

func (t *tracer) visit(p *reflection.Property, v reflect.Value) {
	if !p.HasRefs {
		return
	}
	switch p.Kind {
	case reflection.KindFundamental, reflection.KindEnum:
	case reflection.KindObjectPtr:
		t.visitObjectPtr(v)
	case reflection.KindArray:
		for i := 0; i < v.Len(); i++ {
			t.visit(p.Elem, v.Index(i))
		}
	case reflection.KindStruct:
		for _, f := range p.Fields {
			t.visit(f.Prop, v.FieldByIndex(f.Index))
		}
	case reflection.KindPair:
		t.visit(p.First, v.Field(0))
		t.visit(p.Second, v.Field(1))
	case reflection.KindMap:
		t.visitMap(p, v)
	case reflection.KindSet:
		t.visitSet(p, v)
	}
}

func (t *tracer) visitObjectPtr(v reflect.Value) {
	if v.IsNil() {
		return
	}
	obj, _ := v.Interface().(object.Object)
	if object.IsNil(obj) {
		return
	}
	if object.BaseOf(obj) == t.self {
		return
	}

	flags := obj.Flags()
	if flags.HasAny(types.FlagMarkedForDelete | types.FlagDeleted) {
		if flags.Has(types.FlagDeleted) {
			t.log.Debug("Clearing reference to destroyed object",
				logger.WithField("class", obj.Class().Name))
		}
		v.Set(reflect.Zero(v.Type()))
		t.nulled++
		return
	}
	t.mark(obj)
}

// addressableCopy returns a settable copy of v
func addressableCopy(v reflect.Value) reflect.Value {
	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	return cp
}

type keyRewrite struct {
	oldKey reflect.Value
	newKey reflect.Value
	value  reflect.Value
}

// visitMap traces map values through copies written back with
// SetMapIndex. Keys are never mutated in place: a key whose copy changed is
// removed and reinserted. If reinsertion collides with another key, every
// rewritten entry on that key is dropped and untouched entries are kept.
func (t *tracer) visitMap(p *reflection.Property, m reflect.Value) {
	if m.IsNil() || m.Len() == 0 {
		return
	}

	var rewrites []keyRewrite
	for _, k := range m.MapKeys() {
		val := m.MapIndex(k)
		valChanged := false
		if p.Elem.HasRefs {
			cp := addressableCopy(val)
			before := t.nulled
			t.visit(p.Elem, cp)
			valChanged = t.nulled != before
			val = cp
		}

		if p.Key.HasRefs {
			kc := addressableCopy(k)
			before := t.nulled
			t.visit(p.Key, kc)
			if t.nulled != before {
				rewrites = append(rewrites, keyRewrite{oldKey: k, newKey: kc, value: val})
				continue
			}
		}
		if valChanged {
			m.SetMapIndex(k, val)
		}
	}
	if len(rewrites) == 0 {
		return
	}

	for _, r := range rewrites {
		m.SetMapIndex(r.oldKey, reflect.Value{})
	}
	counts := make(map[interface{}]int, len(rewrites))
	for _, r := range rewrites {
		counts[r.newKey.Interface()]++
	}
	dropped := 0
	for _, r := range rewrites {
		if counts[r.newKey.Interface()] > 1 || m.MapIndex(r.newKey).IsValid() {
			dropped++
			continue
		}
		m.SetMapIndex(r.newKey, r.value)
	}
	if dropped > 0 {
		t.keysDropped += dropped
		t.log.Warn("Dropped map entries whose rewritten keys collided",
			logger.WithField("map", m.Type().String()),
			logger.WithField("dropped", dropped))
	}
}

// visitSet rewrites changed elements the same way as map keys. Elements
// that converge on the same value collapse into one.
func (t *tracer) visitSet(p *reflection.Property, s reflect.Value) {
	if s.IsNil() || s.Len() == 0 {
		return
	}

	var oldKeys, newKeys []reflect.Value
	for _, k := range s.MapKeys() {
		kc := addressableCopy(k)
		before := t.nulled
		t.visit(p.Key, kc)
		if t.nulled != before {
			oldKeys = append(oldKeys, k)
			newKeys = append(newKeys, kc)
		}
	}
	if len(oldKeys) == 0 {
		return
	}

	present := reflect.New(s.Type().Elem()).Elem()
	for _, k := range oldKeys {
		s.SetMapIndex(k, reflect.Value{})
	}
	for _, k := range newKeys {
		s.SetMapIndex(k, present)
	}
}
