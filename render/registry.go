package render

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/svga"
)

// ErrQueryState is returned for query operations in the wrong state.
var ErrQueryState = fmt.Errorf("query not in the required state: %w", svga.ErrMalformedInput)

// Registry owns the contexts of the device, indexed by id.
type Registry struct {
	arena      *svga.Arena[Context]
	maxShaders uint32
}

// NewRegistry returns a registry accepting context ids below maxIDs whose
// contexts accept shader ids below maxShaders.
func NewRegistry(maxIDs, maxShaders uint32) *Registry {
	return &Registry{
		arena:      svga.NewArena[Context](maxIDs),
		maxShaders: maxShaders,
	}
}

// Limit returns the exclusive upper bound for context ids.
func (r *Registry) Limit() uint32 {
	return r.arena.Limit()
}

// MaxShaders returns the exclusive upper bound for shader ids of each
// kind in the contexts of the registry.
func (r *Registry) MaxShaders() uint32 {
	return r.maxShaders
}

// Define creates a context with every slot unset.
func (r *Registry) Define(id svga.ID) (*Context, error) {
	c := NewContext(id, r.maxShaders)

	if err := r.Insert(c); err != nil {
		return nil, err
	}

	return c, nil
}

// Insert adds a context built elsewhere, e.g. decoded from a snapshot.
func (r *Registry) Insert(c *Context) error {
	if c == nil {
		return fmt.Errorf("define context: %w", svga.ErrMalformedInput)
	}

	if c.vertexShaders == nil {
		return fmt.Errorf("define context %v: not built with NewContext: %w", c.ID, svga.ErrMalformedInput)
	}

	if _, err := r.arena.Define(c.ID, c); err != nil {
		return fmt.Errorf("define context: %w", err)
	}

	return nil
}

// Destroy removes context id together with its shaders. Surfaces bound to
// it are left alone.
func (r *Registry) Destroy(id svga.ID) error {
	c, err := r.arena.Remove(id)
	if err != nil {
		return fmt.Errorf("destroy context: %w", err)
	}

	c.releaseShaders()

	return nil
}

// Get returns context id.
func (r *Registry) Get(id svga.ID) (*Context, error) {
	c, err := r.arena.Get(id)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	return c, nil
}

// Has reports whether context id exists.
func (r *Registry) Has(id svga.ID) bool {
	return r.arena.Has(id)
}

// Len returns the number of contexts.
func (r *Registry) Len() int {
	return r.arena.Len()
}

// IDs returns the context ids in ascending order.
func (r *Registry) IDs() []svga.ID {
	return r.arena.IDs()
}

// Range calls fn for every context in ascending id order until fn returns
// false.
func (r *Registry) Range(fn func(*Context) bool) {
	r.arena.Range(func(_ svga.ID, c *Context) bool {
		return fn(c)
	})
}

// Reset destroys every context.
func (r *Registry) Reset() {
	r.arena.Range(func(_ svga.ID, c *Context) bool {
		c.releaseShaders()

		return true
	})

	r.arena.Reset()
}
