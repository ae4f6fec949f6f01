package render

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/svga"
)

// ConstType is the register file of a shader constant.
type ConstType uint32

const (
	ConstFloat ConstType = iota
	ConstInt
	ConstBool
)

// Constant is one shader constant register. Entries below the highest
// register written are present but invalid until written themselves.
type Constant struct {
	Valid bool
	Type  ConstType
	Value [4]uint32
}

func (c *Context) consts(kind shader.Kind) (*[]Constant, error) {
	switch kind {
	case shader.Vertex:
		return &c.VertexConsts, nil
	case shader.Pixel:
		return &c.PixelConsts, nil
	default:
		return nil, fmt.Errorf("shader kind %v: %w", kind, svga.ErrMalformedInput)
	}
}

// SetShaderConst stores value in register reg of kind, growing the
// constant array as needed.
func (c *Context) SetShaderConst(kind shader.Kind, reg uint32, typ ConstType, value [4]uint32) error {
	arr, err := c.consts(kind)
	if err != nil {
		return err
	}

	if reg >= MaxShaderConsts {
		return outOfRange("shader constant", reg, MaxShaderConsts)
	}

	if typ > ConstBool {
		return fmt.Errorf("constant type %d: %w", typ, svga.ErrMalformedInput)
	}

	if int(reg) >= len(*arr) {
		grown := make([]Constant, reg+1)
		copy(grown, *arr)
		*arr = grown
	}

	(*arr)[reg] = Constant{Valid: true, Type: typ, Value: value}
	c.Flags |= UpdateShaderConst

	return nil
}

// ShaderConst returns register reg of kind and whether it holds a value.
func (c *Context) ShaderConst(kind shader.Kind, reg uint32) (Constant, bool) {
	arr, err := c.consts(kind)
	if err != nil || int(reg) >= len(*arr) {
		return Constant{}, false
	}

	k := (*arr)[reg]

	return k, k.Valid
}

// ShaderConsts returns the constant array of kind.
func (c *Context) ShaderConsts(kind shader.Kind) []Constant {
	arr, err := c.consts(kind)
	if err != nil {
		return nil
	}

	return *arr
}
