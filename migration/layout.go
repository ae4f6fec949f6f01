package migration

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

// legacyRenderStateMax is the render-state count below
// VersionContextLayout.
const legacyRenderStateMax = 91

type header struct {
	Magic    uint32
	Version  uint32
	Contexts uint32
	Surfaces uint32
}

type renderStateWire struct {
	Name  uint32
	Value uint32
}

type transformWire struct {
	Valid  uint32
	Matrix [16]float32
}

type materialWire struct {
	Valid uint32
	Data  render.MaterialData
}

type clipPlaneWire struct {
	Valid uint32
	Plane [4]float32
}

type lightWire struct {
	Enabled uint32
	Valid   uint32
	Data    render.LightData
}

// contextTail is the part of a context record shared by every layout.
type contextTail struct {
	Transforms    [render.TransformMax]transformWire
	Materials     [render.FaceMax]materialWire
	ClipPlanes    [render.MaxClipPlanes]clipPlaneWire
	Lights        [render.MaxLights]lightWire
	RenderTargets [render.RenderTargetMax]render.SurfaceImage
	Scissor       render.Rect
	Viewport      render.Rect
	ZRange        render.ZRange
	VertexShader  uint32
	PixelShader   uint32
	VertexShaders uint32
	PixelShaders  uint32
	VertexConsts  uint32
	PixelConsts   uint32
}

// contextWire is the context record from VersionContextLayout on.
type contextWire struct {
	ID           uint32
	Flags        uint32
	RenderStates [render.RenderStateMax]renderStateWire
	Tail         contextTail
}

// contextV1 is the context record below VersionContextLayout.
type contextV1 struct {
	ID           uint32
	Flags        uint32
	RenderStates [legacyRenderStateMax]renderStateWire
	Tail         contextTail
}

type shaderWire struct {
	ID   uint32
	Kind uint32
	Size uint32
}

type constWire struct {
	Valid uint32
	Type  uint32
	Value [4]uint32
}

type textureStatesHeader struct {
	Stages uint32
	States uint32
}

type textureStateWire struct {
	Name  uint32
	Value uint32
}

type queryWire struct {
	State  uint32
	Result uint32
}

// surfaceWire is the surface record from VersionMipLevels on. It is
// followed by Faces*Levels level records.
type surfaceWire struct {
	ID               uint32
	Format           uint32
	Flags            uint32
	Faces            uint32
	Levels           uint32
	MultisampleCount uint32
	AutogenFilter    uint32
	Context          uint32
}

type levelWire struct {
	Width    uint32
	Height   uint32
	Depth    uint32
	ByteSize uint32
	Pitch    uint32
}

// surfaceV1 is the surface record below VersionMipLevels: one geometry
// for every level.
type surfaceV1 struct {
	ID               uint32
	Format           uint32
	Flags            uint32
	Faces            uint32
	Levels           uint32
	MultisampleCount uint32
	AutogenFilter    uint32
	Context          uint32
	Size             surface.Size
}

func b32(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}

func contextToWire(c *render.Context) contextWire {
	w := contextWire{ID: uint32(c.ID), Flags: uint32(c.Flags)}

	for i, rs := range c.RenderStates {
		w.RenderStates[i] = renderStateWire{Name: uint32(rs.Name), Value: rs.Value}
	}

	t := &w.Tail

	for i, m := range c.Transforms {
		t.Transforms[i] = transformWire{Valid: b32(m.Valid), Matrix: m.Matrix}
	}

	for i, m := range c.Materials {
		t.Materials[i] = materialWire{Valid: b32(m.Valid), Data: m.Data}
	}

	for i, p := range c.ClipPlanes {
		t.ClipPlanes[i] = clipPlaneWire{Valid: b32(p.Valid), Plane: p.Plane}
	}

	for i, l := range c.Lights {
		t.Lights[i] = lightWire{Enabled: b32(l.Enabled), Valid: b32(l.Valid), Data: l.Data}
	}

	t.RenderTargets = c.RenderTargets
	t.Scissor = c.Scissor
	t.Viewport = c.Viewport
	t.ZRange = c.ZRange
	t.VertexShader = uint32(c.VertexShader)
	t.PixelShader = uint32(c.PixelShader)
	t.VertexShaders = uint32(len(c.Shaders(shader.Vertex)))
	t.PixelShaders = uint32(len(c.Shaders(shader.Pixel)))
	t.VertexConsts = uint32(len(c.VertexConsts))
	t.PixelConsts = uint32(len(c.PixelConsts))

	return w
}

// contextFromWire builds a context from its record. Shaders, constants,
// texture states and the query are read separately.
func contextFromWire(w *contextWire, maxShaders uint32) *render.Context {
	c := render.NewContext(svga.ID(w.ID), maxShaders)
	c.Flags = render.UpdateFlags(w.Flags)

	for i, rs := range w.RenderStates {
		c.RenderStates[i] = render.RenderState{Name: render.RenderStateName(rs.Name), Value: rs.Value}
	}

	t := &w.Tail

	for i, m := range t.Transforms {
		c.Transforms[i] = render.Transform{Valid: m.Valid != 0, Matrix: m.Matrix}
	}

	for i, m := range t.Materials {
		c.Materials[i] = render.Material{Valid: m.Valid != 0, Data: m.Data}
	}

	for i, p := range t.ClipPlanes {
		c.ClipPlanes[i] = render.ClipPlane{Valid: p.Valid != 0, Plane: p.Plane}
	}

	for i, l := range t.Lights {
		c.Lights[i] = render.Light{Enabled: l.Enabled != 0, Valid: l.Valid != 0, Data: l.Data}
	}

	c.RenderTargets = t.RenderTargets
	c.Scissor = t.Scissor
	c.Viewport = t.Viewport
	c.ZRange = t.ZRange
	c.VertexShader = svga.ID(t.VertexShader)
	c.PixelShader = svga.ID(t.PixelShader)

	return c
}

// upgradeContextV1 maps a legacy context record onto the current one. The
// render states the legacy layout has no room for are unset.
func upgradeContextV1(v *contextV1) contextWire {
	w := contextWire{ID: v.ID, Flags: v.Flags, Tail: v.Tail}

	for i := range w.RenderStates {
		w.RenderStates[i] = renderStateWire{Name: uint32(render.RSUnset)}
	}

	copy(w.RenderStates[:], v.RenderStates[:])

	return w
}

// downgradeContextV1 maps a context record onto the legacy layout,
// dropping the render states beyond it.
func downgradeContextV1(w *contextWire) contextV1 {
	v := contextV1{ID: w.ID, Flags: w.Flags, Tail: w.Tail}
	copy(v.RenderStates[:], w.RenderStates[:])

	return v
}

func surfaceToWire(s *surface.Surface) (surfaceWire, []levelWire) {
	w := surfaceWire{
		ID:               uint32(s.ID),
		Format:           uint32(s.Format),
		Flags:            uint32(s.Flags),
		Faces:            s.Faces,
		Levels:           s.Levels,
		MultisampleCount: s.MultisampleCount,
		AutogenFilter:    s.AutogenFilter,
		Context:          uint32(s.Context),
	}

	levels := make([]levelWire, len(s.Mips))
	for i, m := range s.Mips {
		levels[i] = levelWire{
			Width:    m.Size.Width,
			Height:   m.Size.Height,
			Depth:    m.Size.Depth,
			ByteSize: m.ByteSize,
			Pitch:    m.Pitch,
		}
	}

	return w, levels
}

// checkSurfaceShape rejects level arrays a surface record cannot describe.
func checkSurfaceShape(id, faces, levels uint32) error {
	if faces != 1 && faces != surface.CubeFaces {
		return fmt.Errorf("surface %d: %d faces: %w", id, faces, svga.ErrMalformedInput)
	}

	if levels == 0 || levels > surface.MaxLevels {
		return fmt.Errorf("surface %d: %d levels: %w", id, levels, svga.ErrMalformedInput)
	}

	return nil
}

// surfaceFromWire builds a surface without level data. Level geometry is
// recomputed from the format and must agree with the record.
func surfaceFromWire(w *surfaceWire, levels []levelWire) (*surface.Surface, error) {
	format := surface.Format(w.Format)
	if !format.Valid() {
		return nil, fmt.Errorf("surface %d: format %d: %w", w.ID, w.Format, svga.ErrMalformedInput)
	}

	if err := checkSurfaceShape(w.ID, w.Faces, w.Levels); err != nil {
		return nil, err
	}

	if uint32(len(levels)) != w.Faces*w.Levels {
		return nil, fmt.Errorf("surface %d: %d level records: %w", w.ID, len(levels), svga.ErrMalformedInput)
	}

	s := &surface.Surface{
		ID:               svga.ID(w.ID),
		Format:           format,
		Flags:            surface.Flags(w.Flags),
		Faces:            w.Faces,
		Levels:           w.Levels,
		Mips:             make([]surface.MipmapLevel, len(levels)),
		MultisampleCount: w.MultisampleCount,
		AutogenFilter:    w.AutogenFilter,
		Context:          svga.ID(w.Context),
	}

	for i, l := range levels {
		size := surface.Size{Width: l.Width, Height: l.Height, Depth: l.Depth}

		pitch, bytes, err := surface.LevelLayout(format, size)
		if err != nil {
			return nil, fmt.Errorf("surface %d level %d: %w", w.ID, i, err)
		}

		if pitch != l.Pitch || bytes != l.ByteSize {
			return nil, fmt.Errorf("surface %d level %d: pitch %d size %d, want %d %d: %w",
				w.ID, i, l.Pitch, l.ByteSize, pitch, bytes, svga.ErrMalformedInput)
		}

		s.Mips[i] = surface.MipmapLevel{Size: size, ByteSize: bytes, Pitch: pitch}
	}

	return s, nil
}

// upgradeSurfaceV1 maps a legacy surface record onto the current one by
// giving every level the single recorded geometry.
func upgradeSurfaceV1(v *surfaceV1) (surfaceWire, []levelWire, error) {
	w := surfaceWire{
		ID:               v.ID,
		Format:           v.Format,
		Flags:            v.Flags,
		Faces:            v.Faces,
		Levels:           v.Levels,
		MultisampleCount: v.MultisampleCount,
		AutogenFilter:    v.AutogenFilter,
		Context:          v.Context,
	}

	if err := checkSurfaceShape(v.ID, v.Faces, v.Levels); err != nil {
		return w, nil, err
	}

	pitch, bytes, err := surface.LevelLayout(surface.Format(v.Format), v.Size)
	if err != nil {
		return w, nil, fmt.Errorf("surface %d: %w", v.ID, err)
	}

	levels := make([]levelWire, v.Faces*v.Levels)
	for i := range levels {
		levels[i] = levelWire{
			Width:    v.Size.Width,
			Height:   v.Size.Height,
			Depth:    v.Size.Depth,
			ByteSize: bytes,
			Pitch:    pitch,
		}
	}

	return w, levels, nil
}

// downgradeSurfaceV1 maps a surface record onto the legacy layout. Only
// surfaces whose levels all share one geometry fit.
func downgradeSurfaceV1(w *surfaceWire, levels []levelWire) (surfaceV1, error) {
	v := surfaceV1{
		ID:               w.ID,
		Format:           w.Format,
		Flags:            w.Flags,
		Faces:            w.Faces,
		Levels:           w.Levels,
		MultisampleCount: w.MultisampleCount,
		AutogenFilter:    w.AutogenFilter,
		Context:          w.Context,
	}

	if len(levels) == 0 {
		return v, fmt.Errorf("surface %d: no levels: %w", w.ID, svga.ErrMalformedInput)
	}

	first := levels[0]
	for i, l := range levels[1:] {
		if l != first {
			return v, fmt.Errorf("surface %d: level %d geometry differs from level 0 in version %d: %w",
				w.ID, i+1, VersionLegacy, svga.ErrUnsupportedVersion)
		}
	}

	v.Size = surface.Size{Width: first.Width, Height: first.Height, Depth: first.Depth}

	return v, nil
}
