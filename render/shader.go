package render

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/svga"
)

// Program is a shader defined in a context. Code holds the normalized
// token stream.
type Program struct {
	ID        svga.ID
	Kind      shader.Kind
	Context   svga.ID
	Code      []byte
	Validated bool
}

func (c *Context) shaders(kind shader.Kind) (*svga.Arena[Program], error) {
	switch kind {
	case shader.Vertex:
		return c.vertexShaders, nil
	case shader.Pixel:
		return c.pixelShaders, nil
	default:
		return nil, fmt.Errorf("shader kind %v: %w", kind, svga.ErrMalformedInput)
	}
}

// DefineShader validates code and stores it as shader shid of kind. A
// shader already defined under shid is replaced. A rejected stream leaves
// the context unchanged.
func (c *Context) DefineShader(shid svga.ID, kind shader.Kind, code []byte) (*Program, error) {
	p, err := c.PrepareShader(shid, kind, code)
	if err != nil {
		return nil, err
	}

	if err := c.StoreShader(p); err != nil {
		return nil, err
	}

	return p, nil
}

// PrepareShader validates code as shader shid of kind without storing it.
func (c *Context) PrepareShader(shid svga.ID, kind shader.Kind, code []byte) (*Program, error) {
	arena, err := c.shaders(kind)
	if err != nil {
		return nil, err
	}

	if !shid.Valid() || uint32(shid) >= arena.Limit() {
		return nil, outOfRange("shader", uint32(shid), arena.Limit())
	}

	bc, err := shader.Parse(kind, code)
	if err != nil {
		svga.Logger().Debug("shader rejected", "cid", c.ID, "shid", shid, "kind", kind, "err", err)

		return nil, fmt.Errorf("define shader %v: %w", shid, err)
	}

	return &Program{ID: shid, Kind: kind, Context: c.ID, Code: bc.Code, Validated: true}, nil
}

// StoreShader stores a program returned by PrepareShader, replacing any
// shader with the same id.
func (c *Context) StoreShader(p *Program) error {
	arena, err := c.shaders(p.Kind)
	if err != nil {
		return err
	}

	if _, err := arena.Remove(p.ID); err == nil {
		svga.Logger().Debug("shader replaced", "cid", c.ID, "shid", p.ID, "kind", p.Kind)
	}

	if _, err := arena.Define(p.ID, p); err != nil {
		return fmt.Errorf("define shader %v: %w", p.ID, err)
	}

	return nil
}

// DestroyShader removes shader shid of kind. A binding to it is left in
// place and goes stale.
func (c *Context) DestroyShader(shid svga.ID, kind shader.Kind) error {
	arena, err := c.shaders(kind)
	if err != nil {
		return err
	}

	if _, err := arena.Remove(shid); err != nil {
		return fmt.Errorf("destroy %v shader: %w", kind, err)
	}

	return nil
}

// Shader returns shader shid of kind.
func (c *Context) Shader(shid svga.ID, kind shader.Kind) (*Program, error) {
	arena, err := c.shaders(kind)
	if err != nil {
		return nil, err
	}

	p, err := arena.Get(shid)
	if err != nil {
		return nil, fmt.Errorf("%v shader: %w", kind, err)
	}

	return p, nil
}

// Shaders returns the programs of kind in ascending id order.
func (c *Context) Shaders(kind shader.Kind) []*Program {
	arena, err := c.shaders(kind)
	if err != nil {
		return nil
	}

	var out []*Program

	arena.Range(func(_ svga.ID, p *Program) bool {
		out = append(out, p)

		return true
	})

	return out
}

// ShaderCount returns the number of programs of both kinds.
func (c *Context) ShaderCount() int {
	return c.vertexShaders.Len() + c.pixelShaders.Len()
}

// BindShader makes shid the current shader of kind. InvalidID unbinds.
func (c *Context) BindShader(kind shader.Kind, shid svga.ID) error {
	arena, err := c.shaders(kind)
	if err != nil {
		return err
	}

	if shid.Valid() && !arena.Has(shid) {
		return fmt.Errorf("bind %v shader %v: %w", kind, shid, svga.ErrUnknownID)
	}

	if kind == shader.Pixel {
		c.PixelShader = shid
		c.Flags |= UpdatePixelShader
	} else {
		c.VertexShader = shid
		c.Flags |= UpdateVertexShader
	}

	return nil
}

// releaseShaders drops every program of the context.
func (c *Context) releaseShaders() {
	c.vertexShaders.Reset()
	c.pixelShaders.Reset()
}
