// Package objectsdb stores the object hierarchy: every live object as a node
// keyed by its full path, linked to its parent and siblings. Object data is
// opaque to the database.
package objectsdb

import (
	"github.com/coreobjects/coreobjects/pkg/contract"
	"github.com/coreobjects/coreobjects/pkg/types"
)

const invalid = types.InvalidDbIdx

// Entry is the stored record of one object
type Entry[O any] struct {
	Path   string
	Name   string
	Data   O
	Parent types.DbIdx
}

type node[O any] struct {
	entry      Entry[O]
	live       bool
	generation uint32

	firstChild, lastChild types.DbIdx
	prev, next            types.DbIdx
}

// DB is the hierarchy store. Not safe for concurrent use.
type DB[O any] struct {
	nodes  []node[O]
	free   []types.DbIdx
	byPath map[string]types.DbIdx
	count  int

	firstRoot, lastRoot types.DbIdx
}

// New creates an empty database
func New[O any]() *DB[O] {
	return &DB[O]{
		byPath:    make(map[string]types.DbIdx),
		firstRoot: invalid,
		lastRoot:  invalid,
	}
}

// Len returns the number of live entries
func (db *DB[O]) Len() int { return db.count }

// HasObject reports whether idx names a live entry whose path still maps
// back to it
func (db *DB[O]) HasObject(idx types.DbIdx) bool {
	if idx >= types.DbIdx(len(db.nodes)) || !db.nodes[idx].live {
		return false
	}
	got, ok := db.byPath[db.nodes[idx].entry.Path]
	return ok && got == idx
}

// HasPath reports whether path names a live entry
func (db *DB[O]) HasPath(path string) bool {
	idx, ok := db.byPath[path]
	return ok && idx < types.DbIdx(len(db.nodes)) && db.nodes[idx].live && db.nodes[idx].entry.Path == path
}

// Lookup returns the handle stored for path
func (db *DB[O]) Lookup(path string) (types.DbIdx, bool) {
	if !db.HasPath(path) {
		return invalid, false
	}
	return db.byPath[path], true
}

// AddRootObject adds an entry without a parent
func (db *DB[O]) AddRootObject(path, name string, data O) types.DbIdx {
	return db.AddObject(path, name, data, invalid)
}

// AddObject adds an entry under parent, or as a root when parent is
// InvalidDbIdx. The path must be unused.
func (db *DB[O]) AddObject(path, name string, data O, parent types.DbIdx) types.DbIdx {
	contract.Assert(!db.HasPath(path), "object path %q already exists", path)
	contract.Assert(parent == invalid || db.HasObject(parent), "parent %d of %q is not a live object", parent, path)

	var idx types.DbIdx
	if n := len(db.free); n > 0 {
		idx = db.free[n-1]
		db.free = db.free[:n-1]
	} else {
		idx = types.DbIdx(len(db.nodes))
		db.nodes = append(db.nodes, node[O]{})
	}

	n := &db.nodes[idx]
	n.entry = Entry[O]{Path: path, Name: name, Data: data, Parent: parent}
	n.live = true
	n.firstChild, n.lastChild = invalid, invalid
	n.prev, n.next = invalid, invalid
	db.link(idx, parent)

	db.byPath[path] = idx
	db.count++
	return idx
}

// RemoveObject removes a childless entry and recycles its handle
func (db *DB[O]) RemoveObject(idx types.DbIdx) {
	contract.Assert(db.HasObject(idx), "remove of unknown object %d", idx)
	n := &db.nodes[idx]
	contract.Assert(n.firstChild == invalid, "remove of %q which still has children", n.entry.Path)

	db.unlink(idx)
	delete(db.byPath, n.entry.Path)

	var zero Entry[O]
	n.entry = zero
	n.live = false
	n.generation++
	db.free = append(db.free, idx)
	db.count--
}

// Entry returns a copy of the stored record
func (db *DB[O]) Entry(idx types.DbIdx) Entry[O] {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	return db.nodes[idx].entry
}

// Object returns the data stored for idx
func (db *DB[O]) Object(idx types.DbIdx) O {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	return db.nodes[idx].entry.Data
}

// Parent returns the parent handle or InvalidDbIdx for roots
func (db *DB[O]) Parent(idx types.DbIdx) types.DbIdx {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	return db.nodes[idx].entry.Parent
}

// Generation returns the reuse counter of a handle. It changes every time
// the handle is released.
func (db *DB[O]) Generation(idx types.DbIdx) uint32 {
	if idx >= types.DbIdx(len(db.nodes)) {
		return 0
	}
	return db.nodes[idx].generation
}

// HasChild reports whether idx has at least one child
func (db *DB[O]) HasChild(idx types.DbIdx) bool {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	return db.nodes[idx].firstChild != invalid
}

// GetChildren appends the direct children of idx to out
func (db *DB[O]) GetChildren(out []types.DbIdx, idx types.DbIdx) []types.DbIdx {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	for c := db.nodes[idx].firstChild; c != invalid; c = db.nodes[c].next {
		out = append(out, c)
	}
	return out
}

// GetSubobjects appends every descendant of idx to out in breadth first
// order. Iterating the result backwards visits children before parents.
func (db *DB[O]) GetSubobjects(out []types.DbIdx, idx types.DbIdx) []types.DbIdx {
	start := len(out)
	out = db.GetChildren(out, idx)
	for i := start; i < len(out); i++ {
		for c := db.nodes[out[i]].firstChild; c != invalid; c = db.nodes[c].next {
			out = append(out, c)
		}
	}
	return out
}

// GetAllObjects appends every entry to out, parents before children
func (db *DB[O]) GetAllObjects(out []types.DbIdx) []types.DbIdx {
	for r := db.firstRoot; r != invalid; r = db.nodes[r].next {
		out = append(out, r)
		out = db.GetSubobjects(out, r)
	}
	return out
}

// SetObjectParent moves idx under parent, or to the root level when parent
// is InvalidDbIdx. Paths are left untouched.
func (db *DB[O]) SetObjectParent(idx, parent types.DbIdx) {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	contract.Assert(idx != parent, "object %q cannot be its own parent", db.nodes[idx].entry.Path)
	if parent != invalid {
		contract.Assert(db.HasObject(parent), "unknown parent %d", parent)
		for p := parent; p != invalid; p = db.nodes[p].entry.Parent {
			contract.Assert(p != idx, "parenting %q under %q creates a cycle",
				db.nodes[idx].entry.Path, db.nodes[parent].entry.Path)
		}
	}
	if db.nodes[idx].entry.Parent == parent {
		return
	}
	db.unlink(idx)
	db.nodes[idx].entry.Parent = parent
	db.link(idx, parent)
}

// SetObject renames an entry. newPath must be unused by any other entry.
func (db *DB[O]) SetObject(idx types.DbIdx, newPath, newName string) {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	n := &db.nodes[idx]
	if n.entry.Path != newPath {
		contract.Assert(!db.HasPath(newPath), "object path %q already exists", newPath)
		delete(db.byPath, n.entry.Path)
		db.byPath[newPath] = idx
		n.entry.Path = newPath
	}
	n.entry.Name = newName
}

// SetData replaces the data stored for idx
func (db *DB[O]) SetData(idx types.DbIdx, data O) {
	contract.Assert(db.HasObject(idx), "unknown object %d", idx)
	db.nodes[idx].entry.Data = data
}

// Clear drops every entry. Handles are kept for reuse with their
// generation advanced, so handles taken before the clear stay stale.
func (db *DB[O]) Clear() {
	db.free = db.free[:0]
	var zero Entry[O]
	for i := len(db.nodes) - 1; i >= 0; i-- {
		n := &db.nodes[i]
		if n.live {
			n.entry = zero
			n.live = false
			n.generation++
		}
		n.firstChild, n.lastChild = invalid, invalid
		n.prev, n.next = invalid, invalid
		db.free = append(db.free, types.DbIdx(i))
	}
	db.byPath = make(map[string]types.DbIdx)
	db.count = 0
	db.firstRoot, db.lastRoot = invalid, invalid
}

func (db *DB[O]) link(idx, parent types.DbIdx) {
	first, last := &db.firstRoot, &db.lastRoot
	if parent != invalid {
		p := &db.nodes[parent]
		first, last = &p.firstChild, &p.lastChild
	}
	n := &db.nodes[idx]
	n.prev, n.next = *last, invalid
	if *last != invalid {
		db.nodes[*last].next = idx
	} else {
		*first = idx
	}
	*last = idx
}

func (db *DB[O]) unlink(idx types.DbIdx) {
	n := &db.nodes[idx]
	first, last := &db.firstRoot, &db.lastRoot
	if parent := n.entry.Parent; parent != invalid {
		p := &db.nodes[parent]
		first, last = &p.firstChild, &p.lastChild
	}
	if n.prev != invalid {
		db.nodes[n.prev].next = n.next
	} else {
		*first = n.next
	}
	if n.next != invalid {
		db.nodes[n.next].prev = n.prev
	} else {
		*last = n.prev
	}
	n.prev, n.next = invalid, invalid
}
