package memory

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/bobuhiro11/gosvga/svga"
	"github.com/google/btree"
)

// MOB is a guest memory object: a GBO registered under a guest id.
type MOB struct {
	ID  svga.ID
	gbo *GBO
	lru *list.Element
}

// GBO returns the object's scatter/gather backing.
func (m *MOB) GBO() *GBO {
	return m.gbo
}

// Size returns the object size in bytes.
func (m *MOB) Size() uint64 {
	return m.gbo.Size()
}

func lessMOB(a, b *MOB) bool {
	return a.ID < b.ID
}

// Registry indexes MOBs by id and keeps them in least-recently-used order.
// The LRU order is kept for memory-pressure policy outside the registry;
// nothing is evicted here.
type Registry struct {
	mu    sync.RWMutex
	guest Guest
	lim   Limits
	tree  *btree.BTreeG[*MOB]
	lru   *list.List
}

// NewRegistry returns an empty registry reading and writing through guest.
func NewRegistry(guest Guest, lim Limits) *Registry {
	return &Registry{
		guest: guest,
		lim:   lim.normalize(),
		tree:  btree.NewG(8, lessMOB),
		lru:   list.New(),
	}
}

// Limits returns the limits applied to new objects.
func (r *Registry) Limits() Limits {
	return r.lim
}

// Guest returns the memory the registry transfers through.
func (r *Registry) Guest() Guest {
	return r.guest
}

// Define registers a MOB over descs. An existing MOB with the same id is
// replaced.
func (r *Registry) Define(id svga.ID, descs []Descriptor) (*MOB, error) {
	gbo, err := NewGBO(descs, r.lim)
	if err != nil {
		return nil, fmt.Errorf("define mob %v: %w", id, err)
	}

	return r.insert(id, gbo)
}

// DefinePageTable registers a MOB whose pages are listed by a guest page
// table.
func (r *Registry) DefinePageTable(id svga.ID, format Format, base uint64, size uint32) (*MOB, error) {
	gbo, err := NewGBOFromPageTable(r.guest, format, base, size, r.lim)
	if err != nil {
		return nil, fmt.Errorf("define mob %v: %w", id, err)
	}

	return r.insert(id, gbo)
}

func (r *Registry) insert(id svga.ID, gbo *GBO) (*MOB, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("define mob: %w", svga.ErrOutOfRange)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := &MOB{ID: id, gbo: gbo}

	if old, ok := r.tree.ReplaceOrInsert(m); ok {
		svga.Logger().Warn("mob redefined without destroy", "mob", id)
		r.lru.Remove(old.lru)

		if err := old.gbo.unrealize(); err != nil {
			svga.Logger().Warn("release replaced mob", "mob", id, "err", err)
		}
	}

	m.lru = r.lru.PushFront(m)

	return m, nil
}

// Destroy removes the MOB and releases its backing store.
func (r *Registry) Destroy(id svga.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.tree.Delete(&MOB{ID: id})
	if !ok {
		return fmt.Errorf("destroy mob %v: %w", id, svga.ErrUnknownID)
	}

	r.lru.Remove(m.lru)

	return m.gbo.unrealize()
}

// Lookup returns the MOB registered under id and marks it most recently
// used.
func (r *Registry) Lookup(id svga.ID) (*MOB, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("mob %v: %w", id, svga.ErrUnknownID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.tree.Get(&MOB{ID: id})
	if !ok {
		return nil, fmt.Errorf("mob %v: %w", id, svga.ErrUnknownID)
	}

	r.lru.MoveToFront(m.lru)

	return m, nil
}

// Peek is Lookup without touching the LRU order.
func (r *Registry) Peek(id svga.ID) (*MOB, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.tree.Get(&MOB{ID: id})
}

// Len returns the number of registered MOBs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.tree.Len()
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []svga.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]svga.ID, 0, r.tree.Len())

	r.tree.Ascend(func(m *MOB) bool {
		ids = append(ids, m.ID)

		return true
	})

	return ids
}

// LRU returns the registered ids, most recently used first.
func (r *Registry) LRU() []svga.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]svga.ID, 0, r.lru.Len())
	for e := r.lru.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(*MOB).ID)
	}

	return ids
}

// Reset destroys every MOB.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tree.Ascend(func(m *MOB) bool {
		if err := m.gbo.unrealize(); err != nil {
			svga.Logger().Warn("release mob", "mob", m.ID, "err", err)
		}

		return true
	})

	r.tree.Clear(false)
	r.lru.Init()
}

// Realize gives m a host buffer holding a copy of its guest pages. Calling
// it on a realized MOB does nothing.
func (r *Registry) Realize(m *MOB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := m.gbo.realize(r.guest); err != nil {
		return fmt.Errorf("realize mob %v: %w", m.ID, err)
	}

	return nil
}

// Unrealize drops the host buffer of m without writing it back.
func (r *Registry) Unrealize(m *MOB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return m.gbo.unrealize()
}

// Read copies len(p) bytes at offset off of m into p. A realized MOB is
// read from its host buffer, any other from guest memory. Reads may run
// concurrently with Destroy; a destroyed MOB reads through to the guest.
func (r *Registry) Read(m *MOB, off uint64, p []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := m.gbo.checkRange(off, uint64(len(p))); err != nil {
		return fmt.Errorf("read mob %v: %w", m.ID, err)
	}

	if host := m.gbo.host; host != nil {
		copy(p, host[off:])

		return nil
	}

	return m.gbo.ReadGuest(r.guest, off, p)
}

// Write copies p to offset off of m. A realized MOB keeps the data in its
// host buffer until SyncToGuest.
func (r *Registry) Write(m *MOB, off uint64, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := m.gbo.checkRange(off, uint64(len(p))); err != nil {
		return fmt.Errorf("write mob %v: %w", m.ID, err)
	}

	if host := m.gbo.host; host != nil {
		copy(host[off:], p)

		return nil
	}

	return m.gbo.WriteGuest(r.guest, off, p)
}

// Copy moves n bytes from offset srcOff of src to offset dstOff of dst. A
// realized object is accessed through its host buffer, any other through
// guest memory. Nothing is written unless both ranges are valid.
func (r *Registry) Copy(dst *MOB, dstOff uint64, src *MOB, srcOff, n uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if src.gbo.host == nil && dst.gbo.host == nil {
		if err := Copy(r.guest, dst.gbo, dstOff, src.gbo, srcOff, n); err != nil {
			return fmt.Errorf("copy mob %v to %v: %w", src.ID, dst.ID, err)
		}

		return nil
	}

	if err := src.gbo.checkRange(srcOff, n); err != nil {
		return fmt.Errorf("copy from mob %v: %w", src.ID, err)
	}

	if err := dst.gbo.checkRange(dstOff, n); err != nil {
		return fmt.Errorf("copy to mob %v: %w", dst.ID, err)
	}

	buf := make([]byte, n)

	if host := src.gbo.host; host != nil {
		copy(buf, host[srcOff:])
	} else if err := src.gbo.ReadGuest(r.guest, srcOff, buf); err != nil {
		return fmt.Errorf("copy from mob %v: %w", src.ID, err)
	}

	if host := dst.gbo.host; host != nil {
		copy(host[dstOff:], buf)

		return nil
	}

	if err := dst.gbo.WriteGuest(r.guest, dstOff, buf); err != nil {
		return fmt.Errorf("copy to mob %v: %w", dst.ID, err)
	}

	return nil
}

// SyncToGuest writes the host buffer of a realized MOB back to its guest
// pages.
func (r *Registry) SyncToGuest(m *MOB) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m.gbo.host == nil {
		return nil
	}

	return m.gbo.WriteGuest(r.guest, 0, m.gbo.host)
}

// SyncFromGuest refreshes the host buffer of a realized MOB from its guest
// pages.
func (r *Registry) SyncFromGuest(m *MOB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.gbo.host == nil {
		return nil
	}

	buf := make([]byte, len(m.gbo.host))
	if err := m.gbo.ReadGuest(r.guest, 0, buf); err != nil {
		return fmt.Errorf("sync mob %v from guest: %w", m.ID, err)
	}

	copy(m.gbo.host, buf)

	return nil
}
