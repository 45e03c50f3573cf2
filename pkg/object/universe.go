package object

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/coreobjects/coreobjects/pkg/allocator"
	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/logger"
	"github.com/coreobjects/coreobjects/pkg/objectsdb"
	"github.com/coreobjects/coreobjects/pkg/reflection"
	"github.com/coreobjects/coreobjects/pkg/types"
)

// DefaultObjectPrefix prefixes the name of every class default object
const DefaultObjectPrefix = "Default__"

var objectType = reflect.TypeOf((*Object)(nil)).Elem()

// Universe owns the classes, slot allocators and hierarchy of one object
// system. It has a single owner: mutating methods must not be called
// concurrently.
type Universe struct {
	log      logger.Logger
	classes  *reflection.Registry
	allocs   *allocator.Registry[Object]
	db       *objectsdb.DB[Object]
	defaults map[*reflection.Class]Object

	packageClass *reflection.Class

	created      delegateList
	destroyed    delegateList
	nextDelegate DelegateHandle

	guard guard
}

// Option configures a Universe
type Option func(*Universe)

// WithLogger sets the logger used for lifecycle events
func WithLogger(log logger.Logger) Option {
	return func(u *Universe) { u.log = log }
}

// NewUniverse creates an empty universe with the built-in Package class
// registered
func NewUniverse(opts ...Option) *Universe {
	u := &Universe{
		log:      logger.NewNop(),
		classes:  reflection.NewRegistry(objectType),
		allocs:   allocator.NewRegistry[Object](),
		db:       objectsdb.New[Object](),
		defaults: make(map[*reflection.Class]Object),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.log = u.log.WithComponent("objects")

	pkg, err := u.RegisterClass("Package", (*Package)(nil), reflection.AsPackage())
	if err != nil {
		panic(fmt.Sprintf("object: registering Package class: %v", err))
	}
	u.packageClass = pkg
	return u
}

// Logger returns the universe logger
func (u *Universe) Logger() logger.Logger { return u.log }

// Classes returns the class registry
func (u *Universe) Classes() *reflection.Registry { return u.classes }

// Allocators returns the per-class slot allocators
func (u *Universe) Allocators() *allocator.Registry[Object] { return u.allocs }

// DB returns the hierarchy store
func (u *Universe) DB() *objectsdb.DB[Object] { return u.db }

// PackageClass returns the built-in Package class
func (u *Universe) PackageClass() *reflection.Class { return u.packageClass }

// ObjectCount returns the number of objects in the hierarchy, default
// objects included
func (u *Universe) ObjectCount() int { return u.db.Len() }

// Enter claims the universe for the calling goroutine until the returned
// function is called. Claims do not nest.
func (u *Universe) Enter(op string) (exit func()) {
	return u.guard.enter(op)
}

// RegisterClass registers the managed type of prototype, typically a nil
// pointer such as (*Actor)(nil), and creates its default object
func (u *Universe) RegisterClass(name string, prototype Object, opts ...reflection.ClassOption) (*reflection.Class, error) {
	defer u.guard.enter("RegisterClass")()

	if prototype == nil {
		return nil, fmt.Errorf("class %s: %w: nil prototype", name, ErrUnknownClass)
	}
	class, err := u.classes.RegisterClass(name, reflect.TypeOf(prototype), opts...)
	if err != nil {
		return nil, err
	}
	u.allocs.Register(class)

	def, err := u.newObject(class, DefaultObjectPrefix+name, nil, types.FlagDefault)
	if err != nil {
		return nil, fmt.Errorf("class %s: creating default object: %w", name, err)
	}
	u.defaults[class] = def

	u.log.Debug("Registered class",
		logger.WithField("class", name),
		logger.WithField("fields", len(class.Fields)),
		logger.WithField("statics", len(class.Statics)),
	)
	return class, nil
}

// MustRegisterClass is RegisterClass that treats failure as a programming
// error
func (u *Universe) MustRegisterClass(name string, prototype Object, opts ...reflection.ClassOption) *reflection.Class {
	class, err := u.RegisterClass(name, prototype, opts...)
	if err != nil {
		contract.Fail("register class %s: %v", name, err)
	}
	return class
}

// DefaultObject returns the default object of class
func (u *Universe) DefaultObject(class *reflection.Class) Object {
	return u.defaults[class]
}

// NewObject creates an object of class named name under outer, or at the
// root level when outer is nil
func (u *Universe) NewObject(class *reflection.Class, name string, outer Object, flags types.ObjectFlags) (Object, error) {
	defer u.guard.enter("NewObject")()
	return u.newObject(class, name, outer, flags)
}

// Create is the typed form of NewObject
func Create[T any, PT interface {
	*T
	Object
}](u *Universe, name string, outer Object, flags ...types.ObjectFlags) (PT, error) {
	class, ok := u.classes.ClassOf(reflect.TypeOf((*T)(nil)))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, reflect.TypeOf((*T)(nil)).Elem())
	}
	var f types.ObjectFlags
	for _, fl := range flags {
		f |= fl
	}
	obj, err := u.NewObject(class, name, outer, f)
	if err != nil {
		return nil, err
	}
	return obj.(PT), nil
}

// NewPackage creates a root level package
func (u *Universe) NewPackage(name string) (*Package, error) {
	return Create[Package](u, name, nil)
}

func (u *Universe) newObject(class *reflection.Class, name string, outer Object, flags types.ObjectFlags) (Object, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	parent := types.InvalidDbIdx
	outerPath := ""
	if !IsNil(outer) {
		ob := outer.base()
		contract.Assert(ob.universe == u && ob.alive(), "outer of %q is not a live object of this universe", name)
		parent = ob.dbIdx
		outerPath = u.db.Entry(parent).Path
	}

	path := ChildPath(outerPath, name)
	if u.db.HasPath(path) {
		return nil, fmt.Errorf("%w: %s", ErrObjectExists, path)
	}

	alloc, ok := u.allocs.Get(class)
	contract.Assert(ok, "class %s has no allocator", class)

	obj, ok := reflect.New(class.Type).Interface().(Object)
	contract.Assert(ok, "class %s does not produce objects", class)

	b := obj.base()
	b.universe = u
	b.class = class
	b.flags = flags
	b.allocIdx = alloc.Allocate(obj)
	b.dbIdx = u.db.AddObject(path, name, obj, parent)

	u.created.invoke(obj)
	return obj, nil
}

// CheckConsistency asserts that obj holds a valid slot exactly when it has
// a live hierarchy entry, and that both refer back to obj
func (u *Universe) CheckConsistency(obj Object) {
	b := obj.base()
	alloc, ok := u.allocs.Get(b.class)
	contract.Assert(ok, "object of unregistered class %s", b.class)

	slotValid := alloc.IsValid(b.allocIdx)
	inDB := u.db.HasObject(b.dbIdx)
	contract.Assert(slotValid == inDB,
		"object %s/%d: slot valid %v but hierarchy entry %v", b.class, b.allocIdx, slotValid, inDB)
	if slotValid {
		contract.Assert(alloc.At(b.allocIdx) == obj, "slot %d of %s holds another object", b.allocIdx, b.class)
	}
}

// Destroy tears down one object: its Destroy hook, destroyed callbacks,
// removal from the hierarchy, slot release and finally the Deleted flag.
// The object must have no children unless a purge is running.
func (u *Universe) Destroy(obj Object) {
	defer u.guard.enter("Destroy")()
	u.destroy(obj)
}

// DestroyHeld is Destroy for callers that already hold the universe
// through Enter
func (u *Universe) DestroyHeld(obj Object) {
	contract.Assert(u.guard.held(), "DestroyHeld called without holding the universe")
	u.destroy(obj)
}

func (u *Universe) destroy(obj Object) {
	contract.Assert(!IsNil(obj), "destroy of nil object")
	b := obj.base()
	contract.Assert(!b.flags.Has(types.FlagDeleted), "object %s/%d destroyed twice", b.class, b.allocIdx)
	u.CheckConsistency(obj)

	if d, ok := obj.(Destroyer); ok {
		d.Destroy()
	}
	u.destroyed.invoke(obj)

	if !b.flags.Has(types.FlagGCPurge) {
		u.db.RemoveObject(b.dbIdx)
	}
	if alloc, ok := u.allocs.Get(b.class); ok {
		alloc.Free(b.allocIdx)
	}
	if u.defaults[b.class] == obj {
		delete(u.defaults, b.class)
	}

	b.allocIdx = types.InvalidAllocIdx
	b.dbIdx = types.InvalidDbIdx
	b.flags = b.flags.With(types.FlagDeleted)
}

// BeginDestroy condemns obj. It is renamed to free its path for a
// replacement and destroyed by the next collection cycle.
func (u *Universe) BeginDestroy(obj Object) {
	defer u.guard.enter("BeginDestroy")()

	b := obj.base()
	if b.flags.HasAny(types.FlagMarkedForDelete | types.FlagDeleted) {
		return
	}
	contract.Assert(b.alive(), "begin destroy of object outside the hierarchy")

	entry := u.db.Entry(b.dbIdx)
	outerPath := ""
	if entry.Parent != types.InvalidDbIdx {
		outerPath = u.db.Entry(entry.Parent).Path
	}

	newName := entry.Name + "_Delete"
	for n := 0; u.db.HasPath(ChildPath(outerPath, newName)); n++ {
		newName = entry.Name + "_Delete" + strconv.Itoa(n)
	}
	u.move(b, newName, entry.Parent)
	b.flags = b.flags.With(types.FlagMarkedForDelete)
}

// Rename changes the name of obj and the paths of its whole subtree
func (u *Universe) Rename(obj Object, newName string) error {
	defer u.guard.enter("Rename")()

	if err := ValidateName(newName); err != nil {
		return err
	}
	b := obj.base()
	contract.Assert(b.alive(), "rename of object outside the hierarchy")

	parent := u.db.Parent(b.dbIdx)
	if err := u.checkTarget(b, newName, parent); err != nil {
		return err
	}
	u.move(b, newName, parent)
	return nil
}

// SetOuter moves obj under outer, or to the root level when outer is nil.
// Paths of the whole subtree are rewritten.
func (u *Universe) SetOuter(obj Object, outer Object) error {
	defer u.guard.enter("SetOuter")()

	b := obj.base()
	contract.Assert(b.alive(), "set outer of object outside the hierarchy")

	parent := types.InvalidDbIdx
	if !IsNil(outer) {
		ob := outer.base()
		contract.Assert(ob.universe == u && ob.alive(), "new outer is not a live object of this universe")
		parent = ob.dbIdx
	}
	name := u.db.Entry(b.dbIdx).Name
	if err := u.checkTarget(b, name, parent); err != nil {
		return err
	}
	u.move(b, name, parent)
	return nil
}

func (u *Universe) checkTarget(b *Base, name string, parent types.DbIdx) error {
	outerPath := ""
	if parent != types.InvalidDbIdx {
		outerPath = u.db.Entry(parent).Path
	}
	path := ChildPath(outerPath, name)
	if idx, ok := u.db.Lookup(path); ok && idx != b.dbIdx {
		return fmt.Errorf("%w: %s", ErrObjectExists, path)
	}
	return nil
}

// move re-parents and renames b, then rewrites every descendant path
func (u *Universe) move(b *Base, name string, parent types.DbIdx) {
	u.db.SetObjectParent(b.dbIdx, parent)

	outerPath := ""
	if parent != types.InvalidDbIdx {
		outerPath = u.db.Entry(parent).Path
	}
	u.db.SetObject(b.dbIdx, ChildPath(outerPath, name), name)

	for _, idx := range u.db.GetSubobjects(nil, b.dbIdx) {
		e := u.db.Entry(idx)
		u.db.SetObject(idx, ChildPath(u.db.Entry(e.Parent).Path, e.Name), e.Name)
	}
}

// FindObject returns the object at path, or nil
func (u *Universe) FindObject(path string) Object {
	idx, ok := u.db.Lookup(path)
	if !ok {
		return nil
	}
	return u.db.Object(idx)
}

// Find returns the object of type T at path
func Find[T Object](u *Universe, path string) (T, bool) {
	t, ok := u.FindObject(path).(T)
	return t, ok
}
