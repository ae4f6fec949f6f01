package render

import (
	"fmt"
	"slices"

	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/svga"
)

// Context is a bundle of pipeline state.
//
// Every setter touches only its own slot and records its aggregate in
// Flags.
type Context struct {
	ID    svga.ID
	Flags UpdateFlags

	RenderStates  [RenderStateMax]RenderState
	TextureStates [TextureStageMax][TextureStateMax]TextureState
	Transforms    [TransformMax]Transform
	Materials     [FaceMax]Material
	ClipPlanes    [MaxClipPlanes]ClipPlane
	Lights        [MaxLights]Light
	RenderTargets [RenderTargetMax]SurfaceImage

	Scissor  Rect
	Viewport Rect
	ZRange   ZRange

	VertexShader svga.ID
	PixelShader  svga.ID

	VertexConsts []Constant
	PixelConsts  []Constant

	Query Query

	vertexShaders *svga.Arena[Program]
	pixelShaders  *svga.Arena[Program]
}

// NewContext returns a context with every slot unset. maxShaders bounds
// the shader ids of each kind.
func NewContext(id svga.ID, maxShaders uint32) *Context {
	if maxShaders == 0 {
		maxShaders = DefaultMaxShader
	}

	c := &Context{
		ID:            id,
		VertexShader:  svga.InvalidID,
		PixelShader:   svga.InvalidID,
		vertexShaders: svga.NewArena[Program](maxShaders),
		pixelShaders:  svga.NewArena[Program](maxShaders),
	}

	for i := range c.RenderStates {
		c.RenderStates[i].Name = RSUnset
	}

	for s := range c.TextureStates {
		for n := range c.TextureStates[s] {
			c.TextureStates[s][n] = TextureState{Stage: uint32(s), Name: TSUnset}
		}
	}

	for i := range c.RenderTargets {
		c.RenderTargets[i] = NoImage
	}

	return c
}

func outOfRange(what string, i, limit uint32) error {
	return fmt.Errorf("%s %d (limit %d): %w", what, i, limit, svga.ErrOutOfRange)
}

// SetRenderState stores value in the slot of name.
func (c *Context) SetRenderState(name RenderStateName, value uint32) error {
	if name >= RenderStateMax {
		return outOfRange("render state", uint32(name), RenderStateMax)
	}

	c.RenderStates[name] = RenderState{Name: name, Value: value}
	c.Flags |= UpdateRenderState

	return nil
}

// RenderState returns the value of name and whether it has been set.
func (c *Context) RenderState(name RenderStateName) (uint32, bool) {
	if name >= RenderStateMax || !c.RenderStates[name].IsSet() {
		return 0, false
	}

	return c.RenderStates[name].Value, true
}

// SetRenderStates applies states in order. Nothing is applied unless every
// entry is valid.
func (c *Context) SetRenderStates(states []RenderState) error {
	for i, rs := range states {
		if rs.Name >= RenderStateMax {
			return fmt.Errorf("entry %d: %w", i, outOfRange("render state", uint32(rs.Name), RenderStateMax))
		}
	}

	for _, rs := range states {
		c.RenderStates[rs.Name] = rs
	}

	if len(states) > 0 {
		c.Flags |= UpdateRenderState
	}

	return nil
}

// SetTextureState stores value in slot name of stage.
func (c *Context) SetTextureState(stage uint32, name TextureStateName, value uint32) error {
	if stage >= TextureStageMax {
		return outOfRange("texture stage", stage, TextureStageMax)
	}

	if name >= TextureStateMax {
		return outOfRange("texture state", uint32(name), TextureStateMax)
	}

	c.TextureStates[stage][name] = TextureState{Stage: stage, Name: name, Value: value}
	c.Flags |= UpdateTextureState

	return nil
}

// SetTextureStates applies states in order. Nothing is applied unless
// every entry is valid.
func (c *Context) SetTextureStates(states []TextureState) error {
	for i, ts := range states {
		if ts.Stage >= TextureStageMax {
			return fmt.Errorf("entry %d: %w", i, outOfRange("texture stage", ts.Stage, TextureStageMax))
		}

		if ts.Name >= TextureStateMax {
			return fmt.Errorf("entry %d: %w", i, outOfRange("texture state", uint32(ts.Name), TextureStateMax))
		}
	}

	for _, ts := range states {
		c.TextureStates[ts.Stage][ts.Name] = ts
	}

	if len(states) > 0 {
		c.Flags |= UpdateTextureState
	}

	return nil
}

// TextureState returns the value of slot name of stage and whether it has
// been set.
func (c *Context) TextureState(stage uint32, name TextureStateName) (uint32, bool) {
	if stage >= TextureStageMax || name >= TextureStateMax {
		return 0, false
	}

	ts := c.TextureStates[stage][name]

	return ts.Value, ts.IsSet()
}

// SetTransform stores a matrix in transform slot typ.
func (c *Context) SetTransform(typ uint32, m [16]float32) error {
	if typ >= TransformMax {
		return outOfRange("transform", typ, TransformMax)
	}

	c.Transforms[typ] = Transform{Valid: true, Matrix: m}
	c.Flags |= UpdateTransform

	return nil
}

// SetMaterial stores the material of face.
func (c *Context) SetMaterial(face uint32, m MaterialData) error {
	if face >= FaceMax {
		return outOfRange("material face", face, FaceMax)
	}

	c.Materials[face] = Material{Valid: true, Data: m}
	c.Flags |= UpdateMaterial

	return nil
}

// SetClipPlane stores user clip plane index.
func (c *Context) SetClipPlane(index uint32, plane [4]float32) error {
	if index >= MaxClipPlanes {
		return outOfRange("clip plane", index, MaxClipPlanes)
	}

	c.ClipPlanes[index] = ClipPlane{Valid: true, Plane: plane}
	c.Flags |= UpdateClipPlane

	return nil
}

// SetLightData stores the description of light index.
func (c *Context) SetLightData(index uint32, data LightData) error {
	if index >= MaxLights {
		return outOfRange("light", index, MaxLights)
	}

	c.Lights[index].Valid = true
	c.Lights[index].Data = data
	c.Flags |= UpdateLight

	return nil
}

// SetLightEnabled switches light index on or off.
func (c *Context) SetLightEnabled(index uint32, enabled bool) error {
	if index >= MaxLights {
		return outOfRange("light", index, MaxLights)
	}

	c.Lights[index].Enabled = enabled
	c.Flags |= UpdateLight

	return nil
}

// SetRenderTarget binds img to slot typ. An img with an invalid SID
// empties the slot. The surface is not checked here.
func (c *Context) SetRenderTarget(typ RenderTargetType, img SurfaceImage) error {
	if typ >= RenderTargetMax {
		return outOfRange("render target", uint32(typ), RenderTargetMax)
	}

	if !img.SID.Valid() {
		img = NoImage
	}

	c.RenderTargets[typ] = img
	c.Flags |= UpdateRenderTarget

	return nil
}

// SetScissor stores the scissor rectangle.
func (c *Context) SetScissor(r Rect) {
	c.Scissor = r
	c.Flags |= UpdateScissor
}

// SetViewport stores the viewport rectangle.
func (c *Context) SetViewport(r Rect) {
	c.Viewport = r
	c.Flags |= UpdateViewport
}

// SetZRange stores the depth range.
func (c *Context) SetZRange(z ZRange) {
	c.ZRange = z
	c.Flags |= UpdateZRange
}

// BoundShader returns the shader id bound for kind.
func (c *Context) BoundShader(kind shader.Kind) svga.ID {
	if kind == shader.Pixel {
		return c.PixelShader
	}

	return c.VertexShader
}

// Checkpoint is a copy of the slot state of a context, shader programs
// excluded.
type Checkpoint struct {
	c Context
}

// Checkpoint records the current slot state.
func (c *Context) Checkpoint() Checkpoint {
	cp := Checkpoint{c: *c}
	cp.c.VertexConsts = slices.Clone(c.VertexConsts)
	cp.c.PixelConsts = slices.Clone(c.PixelConsts)

	return cp
}

// Rollback puts the slot state recorded by cp back.
func (c *Context) Rollback(cp Checkpoint) {
	*c = cp.c
}
