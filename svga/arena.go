package svga

import (
	"fmt"
	"sync/atomic"
)

// Handle is an id paired with the generation of the slot it was obtained
// from. A handle goes stale as soon as its object is removed, even when the
// same id is defined again later.
type Handle struct {
	ID  ID
	Gen uint32
}

type slot[T any] struct {
	gen atomic.Uint32
	val atomic.Pointer[T]
}

// Arena is an id-indexed table of owned, nullable slots.
//
// Only one goroutine may mutate an Arena (Define, Remove, Reset). Readers on
// other goroutines (Get, Lookup, Range) never block and never see a torn
// slot: a slot being freed or a table being grown makes them observe
// ErrUnknownID or a stale-but-complete object instead.
type Arena[T any] struct {
	slots atomic.Pointer[[]*slot[T]]
	live  atomic.Int32
	max   uint32
}

// NewArena returns an empty arena accepting ids below max.
func NewArena[T any](max uint32) *Arena[T] {
	a := &Arena[T]{max: max}
	empty := []*slot[T]{}
	a.slots.Store(&empty)

	return a
}

// Limit returns the exclusive upper bound for ids.
func (a *Arena[T]) Limit() uint32 {
	return a.max
}

func (a *Arena[T]) table() []*slot[T] {
	return *a.slots.Load()
}

// grow makes sure the table has a slot for id. Existing slots are shared
// with the old table, so readers holding it still see live objects.
func (a *Arena[T]) grow(id ID) {
	old := a.table()
	if int(id) < len(old) {
		return
	}

	n := (uint64(id) + 16) &^ 15
	if n > uint64(a.max) {
		n = uint64(a.max)
	}

	t := make([]*slot[T], n)
	copy(t, old)

	for i := len(old); i < len(t); i++ {
		t[i] = &slot[T]{}
	}

	a.slots.Store(&t)
}

// Define stores v under id.
func (a *Arena[T]) Define(id ID, v *T) (Handle, error) {
	if v == nil {
		return Handle{}, fmt.Errorf("define %v: nil object: %w", id, ErrMalformedInput)
	}

	if id == InvalidID || uint32(id) >= a.max {
		return Handle{}, fmt.Errorf("define %v (limit %d): %w", id, a.max, ErrOutOfRange)
	}

	a.grow(id)

	s := a.table()[id]
	if s.val.Load() != nil {
		return Handle{}, fmt.Errorf("define %v: %w", id, ErrDuplicateID)
	}

	s.val.Store(v)
	a.live.Add(1)

	return Handle{ID: id, Gen: s.gen.Load()}, nil
}

// Get returns the object stored under id.
func (a *Arena[T]) Get(id ID) (*T, error) {
	t := a.table()
	if id == InvalidID || int(id) >= len(t) {
		return nil, fmt.Errorf("lookup %v: %w", id, ErrUnknownID)
	}

	v := t[id].val.Load()
	if v == nil {
		return nil, fmt.Errorf("lookup %v: %w", id, ErrUnknownID)
	}

	return v, nil
}

// Has reports whether id refers to a live object.
func (a *Arena[T]) Has(id ID) bool {
	_, err := a.Get(id)

	return err == nil
}

// HandleOf returns the current handle of a live id.
func (a *Arena[T]) HandleOf(id ID) (Handle, error) {
	t := a.table()
	if id == InvalidID || int(id) >= len(t) || t[id].val.Load() == nil {
		return Handle{}, fmt.Errorf("handle %v: %w", id, ErrUnknownID)
	}

	return Handle{ID: id, Gen: t[id].gen.Load()}, nil
}

// Lookup resolves a handle, failing if its object has been removed since.
func (a *Arena[T]) Lookup(h Handle) (*T, error) {
	t := a.table()
	if h.ID == InvalidID || int(h.ID) >= len(t) {
		return nil, fmt.Errorf("lookup %v: %w", h.ID, ErrUnknownID)
	}

	s := t[h.ID]

	v := s.val.Load()
	if v == nil || s.gen.Load() != h.Gen {
		return nil, fmt.Errorf("lookup %v gen %d: %w", h.ID, h.Gen, ErrUnknownID)
	}

	return v, nil
}

// Remove empties the slot of id and returns what it held.
func (a *Arena[T]) Remove(id ID) (*T, error) {
	t := a.table()
	if id == InvalidID || int(id) >= len(t) {
		return nil, fmt.Errorf("remove %v: %w", id, ErrUnknownID)
	}

	s := t[id]

	v := s.val.Swap(nil)
	if v == nil {
		return nil, fmt.Errorf("remove %v: %w", id, ErrUnknownID)
	}

	s.gen.Add(1)
	a.live.Add(-1)

	return v, nil
}

// Len returns the number of live objects.
func (a *Arena[T]) Len() int {
	return int(a.live.Load())
}

// Cap returns the current table size.
func (a *Arena[T]) Cap() int {
	return len(a.table())
}

// Range calls fn for every live object in ascending id order until fn
// returns false.
func (a *Arena[T]) Range(fn func(ID, *T) bool) {
	for i, s := range a.table() {
		v := s.val.Load()
		if v == nil {
			continue
		}

		if !fn(ID(i), v) {
			return
		}
	}
}

// IDs returns the live ids in ascending order.
func (a *Arena[T]) IDs() []ID {
	ids := make([]ID, 0, a.Len())

	a.Range(func(id ID, _ *T) bool {
		ids = append(ids, id)

		return true
	})

	return ids
}

// Reset removes every object and shrinks the table to zero.
func (a *Arena[T]) Reset() {
	for _, s := range a.table() {
		if s.val.Swap(nil) != nil {
			s.gen.Add(1)
		}
	}

	empty := []*slot[T]{}
	a.slots.Store(&empty)
	a.live.Store(0)
}
