package migration

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

// Replay recreates the objects of st in be and pushes every context's
// state into it. Call it after Load, once be is empty.
//
// Surfaces go first so render targets can refer to them. Each context is
// then defined with its shaders and constants, and its state is applied
// in this order: render targets, render states, texture states, clip
// planes, lights (data before enable), then transforms, materials,
// scissor, depth range, viewport and shaders if their update flag is set.
func Replay(be backend.Backend, st State) error {
	var err error

	st.Surfaces.Range(func(s *surface.Surface) bool {
		if err = be.DefineSurface(s); err != nil {
			err = fmt.Errorf("replay surface %v: %w", s.ID, err)
		}

		return err == nil
	})

	if err != nil {
		return err
	}

	st.Contexts.Range(func(c *render.Context) bool {
		if err = defineContext(be, c); err == nil {
			err = replayContext(be, st.Surfaces, c)
		}

		if err != nil {
			err = fmt.Errorf("replay context %v: %w", c.ID, err)
		}

		return err == nil
	})

	return err
}

func defineContext(be backend.Backend, c *render.Context) error {
	if err := be.DefineContext(c.ID); err != nil {
		return err
	}

	for _, kind := range []shader.Kind{shader.Vertex, shader.Pixel} {
		for _, p := range c.Shaders(kind) {
			if err := be.DefineShader(c.ID, p.ID, kind, p.Code); err != nil {
				return fmt.Errorf("shader %v: %w", p.ID, err)
			}
		}

		for reg, k := range c.ShaderConsts(kind) {
			if !k.Valid {
				continue
			}

			if err := be.SetShaderConst(c.ID, kind, uint32(reg), k); err != nil {
				return fmt.Errorf("%v constant %d: %w", kind, reg, err)
			}
		}
	}

	return nil
}

func replayContext(be backend.Backend, surfaces *surface.Registry, c *render.Context) error {
	cid := c.ID

	for i, img := range c.RenderTargets {
		if !img.SID.Valid() {
			continue
		}

		typ := render.RenderTargetType(i)

		if !surfaces.Has(img.SID) {
			svga.Logger().Warn("render target refers to a missing surface",
				"cid", cid, "target", typ, "sid", img.SID)

			continue
		}

		if err := be.SetRenderTarget(cid, typ, img); err != nil {
			return fmt.Errorf("render target %v: %w", typ, err)
		}
	}

	var states []render.RenderState

	for _, rs := range c.RenderStates {
		if rs.IsSet() {
			states = append(states, rs)
		}
	}

	if len(states) > 0 {
		if err := be.SetRenderStates(cid, states); err != nil {
			return fmt.Errorf("render states: %w", err)
		}
	}

	var textures []render.TextureState

	for s := range c.TextureStates {
		for _, ts := range c.TextureStates[s] {
			if ts.IsSet() {
				textures = append(textures, ts)
			}
		}
	}

	if len(textures) > 0 {
		if err := be.SetTextureStates(cid, textures); err != nil {
			return fmt.Errorf("texture states: %w", err)
		}
	}

	for i, p := range c.ClipPlanes {
		if !p.Valid {
			continue
		}

		if err := be.SetClipPlane(cid, uint32(i), p.Plane); err != nil {
			return fmt.Errorf("clip plane %d: %w", i, err)
		}
	}

	for i, l := range c.Lights {
		if l.Valid {
			if err := be.SetLightData(cid, uint32(i), l.Data); err != nil {
				return fmt.Errorf("light %d: %w", i, err)
			}
		}

		if l.Enabled {
			if err := be.SetLightEnabled(cid, uint32(i), true); err != nil {
				return fmt.Errorf("light %d: %w", i, err)
			}
		}
	}

	return replayFlagged(be, c)
}

// replayFlagged applies the aggregates that are only pushed once set.
func replayFlagged(be backend.Backend, c *render.Context) error {
	cid := c.ID

	if c.Flags&render.UpdateTransform != 0 {
		for i, m := range c.Transforms {
			if !m.Valid {
				continue
			}

			if err := be.SetTransform(cid, uint32(i), m.Matrix); err != nil {
				return fmt.Errorf("transform %d: %w", i, err)
			}
		}
	}

	if c.Flags&render.UpdateMaterial != 0 {
		for i, m := range c.Materials {
			if !m.Valid {
				continue
			}

			if err := be.SetMaterial(cid, uint32(i), m.Data); err != nil {
				return fmt.Errorf("material %d: %w", i, err)
			}
		}
	}

	if c.Flags&render.UpdateScissor != 0 {
		if err := be.SetScissorRect(cid, c.Scissor); err != nil {
			return fmt.Errorf("scissor: %w", err)
		}
	}

	if c.Flags&render.UpdateZRange != 0 {
		if err := be.SetZRange(cid, c.ZRange); err != nil {
			return fmt.Errorf("zrange: %w", err)
		}
	}

	if c.Flags&render.UpdateViewport != 0 {
		if err := be.SetViewport(cid, c.Viewport); err != nil {
			return fmt.Errorf("viewport: %w", err)
		}
	}

	for _, b := range []struct {
		flag render.UpdateFlags
		kind shader.Kind
	}{
		{render.UpdateVertexShader, shader.Vertex},
		{render.UpdatePixelShader, shader.Pixel},
	} {
		if c.Flags&b.flag == 0 {
			continue
		}

		shid := c.BoundShader(b.kind)

		if shid.Valid() {
			if _, err := c.Shader(shid, b.kind); err != nil {
				svga.Logger().Warn("bound shader is gone", "cid", cid, "kind", b.kind, "shid", shid)

				continue
			}
		}

		if err := be.SetShader(cid, b.kind, shid); err != nil {
			return fmt.Errorf("%v shader: %w", b.kind, err)
		}
	}

	return nil
}
