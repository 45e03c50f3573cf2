package object

// DelegateHandle identifies a bound lifecycle callback
type DelegateHandle uint64

type delegate struct {
	handle DelegateHandle
	fn     func(Object)
}

type delegateList []delegate

func (d *delegateList) add(h DelegateHandle, fn func(Object)) {
	*d = append(*d, delegate{handle: h, fn: fn})
}

func (d *delegateList) remove(h DelegateHandle) bool {
	for i, e := range *d {
		if e.handle == h {
			*d = append((*d)[:i], (*d)[i+1:]...)
			return true
		}
	}
	return false
}

func (d delegateList) invoke(obj Object) {
	for _, e := range d {
		e.fn(obj)
	}
}

// OnObjectCreated binds fn to run after every object creation
func (u *Universe) OnObjectCreated(fn func(Object)) DelegateHandle {
	u.nextDelegate++
	u.created.add(u.nextDelegate, fn)
	return u.nextDelegate
}

// OnObjectDestroyed binds fn to run when an object is destroyed, before it
// leaves the hierarchy
func (u *Universe) OnObjectDestroyed(fn func(Object)) DelegateHandle {
	u.nextDelegate++
	u.destroyed.add(u.nextDelegate, fn)
	return u.nextDelegate
}

// Unbind removes a callback bound with OnObjectCreated or OnObjectDestroyed
func (u *Universe) Unbind(h DelegateHandle) bool {
	return u.created.remove(h) || u.destroyed.remove(h)
}
