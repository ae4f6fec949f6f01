package migration_test

import (
	"testing"

	"github.com/bobuhiro11/gosvga/migration"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

// newState returns empty registries large enough for every test.
func newState() migration.State {
	return migration.State{
		Contexts: render.NewRegistry(64, 64),
		Surfaces: surface.NewRegistry(64, 0),
	}
}

func program(kind shader.Kind) []byte {
	return shader.Encode(
		shader.VersionToken(kind, 2, 0),
		shader.InstructionToken(shader.OpMov, 2),
		shader.ParamToken(shader.RegTemp, 0),
		shader.ParamToken(shader.RegInput, 0),
		shader.EndToken,
	)
}

// populate fills st with one context and one surface that exercise every
// section of a snapshot.
func populate(t *testing.T, st migration.State) {
	t.Helper()

	s, err := st.Surfaces.Define(5, surface.Params{
		Format: surface.FormatA8R8G8B8,
		Flags:  surface.FlagHintRenderTarget,
		Sizes: []surface.Size{
			{Width: 4, Height: 4, Depth: 1},
			{Width: 2, Height: 2, Depth: 1},
			{Width: 1, Height: 1, Depth: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := st.Surfaces.WriteLevel(s.ID, 0, 1, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}

	c, err := st.Contexts.Define(1)
	if err != nil {
		t.Fatal(err)
	}

	mustOK(t, c.SetRenderState(render.RSZEnable, 1))
	mustOK(t, c.SetRenderState(render.RSBlendEnable, 2))
	mustOK(t, c.SetTextureState(1, render.TSMinFilter, 3))
	mustOK(t, c.SetTransform(2, [16]float32{0: 1, 5: 1, 10: 1, 15: 1}))
	mustOK(t, c.SetMaterial(0, render.MaterialData{Shininess: 8}))
	mustOK(t, c.SetClipPlane(3, [4]float32{0, 1, 0, -2}))
	mustOK(t, c.SetLightData(4, render.LightData{Type: render.LightPoint, Range: 10}))
	mustOK(t, c.SetLightEnabled(4, true))
	mustOK(t, c.SetRenderTarget(render.RTColor0, render.SurfaceImage{SID: 5}))
	c.SetScissor(render.Rect{W: 4, H: 4})
	c.SetViewport(render.Rect{W: 4, H: 4})
	c.SetZRange(render.ZRange{Max: 1})

	if _, err := c.DefineShader(7, shader.Vertex, program(shader.Vertex)); err != nil {
		t.Fatal(err)
	}

	if _, err := c.DefineShader(8, shader.Pixel, program(shader.Pixel)); err != nil {
		t.Fatal(err)
	}

	mustOK(t, c.BindShader(shader.Vertex, 7))
	mustOK(t, c.BindShader(shader.Pixel, 8))
	mustOK(t, c.SetShaderConst(shader.Pixel, 3, render.ConstFloat, [4]uint32{9, 9, 9, 9}))
}

func mustOK(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatal(err)
	}
}

func mustContext(t *testing.T, st migration.State, id svga.ID) *render.Context {
	t.Helper()

	c, err := st.Contexts.Get(id)
	if err != nil {
		t.Fatal(err)
	}

	return c
}
