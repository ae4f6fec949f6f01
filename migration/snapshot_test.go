package migration_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/migration"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

func saveLoad(t *testing.T, src migration.State, version uint32) migration.State {
	t.Helper()

	var buf bytes.Buffer
	if err := migration.SaveVersion(&buf, src, nil, version); err != nil {
		t.Fatalf("SaveVersion(%d): %v", version, err)
	}

	dst := newState()

	got, err := migration.Load(&buf, dst)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got != version {
		t.Fatalf("Load version = %d, want %d", got, version)
	}

	return dst
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	src := newState()
	populate(t, src)

	dst := saveLoad(t, src, migration.CurrentVersion)
	c := mustContext(t, dst, 1)
	orig := mustContext(t, src, 1)

	if c.RenderStates != orig.RenderStates || c.TextureStates != orig.TextureStates {
		t.Fatal("render or texture states differ")
	}

	if c.Transforms != orig.Transforms || c.Materials != orig.Materials ||
		c.ClipPlanes != orig.ClipPlanes || c.Lights != orig.Lights {
		t.Fatal("fixed-function state differs")
	}

	if c.RenderTargets != orig.RenderTargets || c.Scissor != orig.Scissor ||
		c.Viewport != orig.Viewport || c.ZRange != orig.ZRange || c.Flags != orig.Flags {
		t.Fatal("targets, rectangles or flags differ")
	}

	if c.VertexShader != 7 || c.PixelShader != 8 {
		t.Fatalf("bound shaders = %v, %v", c.VertexShader, c.PixelShader)
	}

	p, err := c.Shader(8, shader.Pixel)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(p.Code, program(shader.Pixel)) || p.Context != 1 {
		t.Fatalf("pixel shader = %+v", p)
	}

	consts := c.ShaderConsts(shader.Pixel)
	if len(consts) != 4 || consts[2].Valid || !consts[3].Valid || consts[3].Value != [4]uint32{9, 9, 9, 9} {
		t.Fatalf("pixel constants = %+v", consts)
	}

	s, err := dst.Surfaces.Get(5)
	if err != nil {
		t.Fatal(err)
	}

	if s.Levels != 3 || s.Mips[1].Pitch != 8 || s.Mips[2].Pitch != 4 {
		t.Fatalf("surface levels = %+v", s.Mips)
	}

	got := make([]byte, 8)
	mustOK(t, dst.Surfaces.ReadLevel(5, 0, 1, 0, got))

	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("level data = %v", got)
	}

	if dst.Surfaces.Used() != src.Surfaces.Used() {
		t.Fatalf("used = %d, want %d", dst.Surfaces.Used(), src.Surfaces.Used())
	}
}

func TestRenderStatesSurviveReplay(t *testing.T) {
	t.Parallel()

	src := newState()

	c, err := src.Contexts.Define(3)
	if err != nil {
		t.Fatal(err)
	}

	mustOK(t, c.SetRenderState(render.RSZEnable, 1))
	mustOK(t, c.SetRenderState(render.RSBlendEnable, 2))

	dst := saveLoad(t, src, migration.CurrentVersion)

	rec := backend.NewRecorder()
	mustOK(t, migration.Replay(rec, dst))

	var states []render.RenderState

	for _, call := range rec.Calls() {
		if call.Op == backend.OpRenderStates {
			states = call.Arg.([]render.RenderState)
		}
	}

	want := []render.RenderState{{Name: render.RSZEnable, Value: 1}, {Name: render.RSBlendEnable, Value: 2}}
	if len(states) != len(want) || states[0] != want[0] || states[1] != want[1] {
		t.Fatalf("replayed states = %+v, want %+v", states, want)
	}

	for name := render.RenderStateName(0); name < render.RenderStateMax; name++ {
		if name == render.RSZEnable || name == render.RSBlendEnable {
			continue
		}

		if _, ok := mustContext(t, dst, 3).RenderState(name); ok {
			t.Fatalf("render state %d set after load", name)
		}
	}
}

func TestLoadLegacyVersions(t *testing.T) {
	t.Parallel()

	src := newState()
	populate(t, src)

	c := mustContext(t, src, 1)
	mustOK(t, c.SetRenderState(95, 11))

	for _, tc := range []struct {
		version       uint32
		textureStates bool
		wideStates    bool
	}{
		{migration.VersionMipLevels, false, false},
		{migration.VersionTextureStates, true, false},
		{migration.VersionContextLayout, true, true},
	} {
		dst := saveLoad(t, src, tc.version)
		got := mustContext(t, dst, 1)

		if _, ok := got.TextureState(1, render.TSMinFilter); ok != tc.textureStates {
			t.Errorf("version %d: texture state set = %v", tc.version, ok)
		}

		if _, ok := got.RenderState(95); ok != tc.wideStates {
			t.Errorf("version %d: render state 95 set = %v", tc.version, ok)
		}

		if v, ok := got.RenderState(render.RSBlendEnable); !ok || v != 2 {
			t.Errorf("version %d: blend enable = %d, %v", tc.version, v, ok)
		}

		if got.Query != (render.Query{}) {
			t.Errorf("version %d: query = %+v", tc.version, got.Query)
		}
	}
}

func TestSaveLegacyNeedsUniformLevels(t *testing.T) {
	t.Parallel()

	src := newState()
	populate(t, src)

	err := migration.SaveVersion(&bytes.Buffer{}, src, nil, migration.VersionLegacy)
	if !errors.Is(err, svga.ErrUnsupportedVersion) {
		t.Fatalf("SaveVersion(legacy) = %v", err)
	}

	uniform := newState()

	_, err = uniform.Surfaces.Define(2, surface.Params{
		Format: surface.FormatA8R8G8B8,
		Sizes:  []surface.Size{{Width: 2, Height: 2, Depth: 1}, {Width: 2, Height: 2, Depth: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	dst := saveLoad(t, uniform, migration.VersionLegacy)

	if s, err := dst.Surfaces.Get(2); err != nil || s.Levels != 2 {
		t.Fatalf("legacy surface = %+v, %v", s, err)
	}
}

// TestLoadLegacySurface decodes a hand-built first-version stream: one
// surface record whose single geometry applies to both levels.
func TestLoadLegacySurface(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	put := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}

	put([]uint32{migration.Magic, migration.VersionLegacy, 0, 1})
	put([]uint32{
		9,                              // id
		uint32(surface.FormatA8R8G8B8), // format
		0,                              // flags
		1,                              // faces
		2,                              // levels
		0,                              // multisample count
		0,                              // autogen filter
		uint32(svga.InvalidID),         // context
		4, 2, 1,                        // width, height, depth
	})
	put(uint8(1))
	put(uint32(32))
	put(bytes.Repeat([]byte{0xAB}, 32))
	put(uint8(0))

	st := newState()

	v, err := migration.Load(&buf, st)
	if err != nil || v != migration.VersionLegacy {
		t.Fatalf("Load = %d, %v", v, err)
	}

	s, err := st.Surfaces.Get(9)
	if err != nil {
		t.Fatal(err)
	}

	for i, m := range s.Mips {
		if m.Size != (surface.Size{Width: 4, Height: 2, Depth: 1}) || m.Pitch != 16 || m.ByteSize != 32 {
			t.Fatalf("level %d = %+v", i, m)
		}
	}

	if s.Mips[0].Data == nil || s.Mips[1].Data != nil || !s.Dirty {
		t.Fatal("level presence not restored")
	}
}

func withVersion(snap []byte, version uint32) []byte {
	out := append([]byte(nil), snap...)
	binary.LittleEndian.PutUint32(out[4:8], version)

	return out
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()

	src := newState()
	populate(t, src)

	var buf bytes.Buffer
	mustOK(t, migration.Save(&buf, src, nil))

	full := buf.Bytes()

	for _, tc := range []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, svga.ErrMalformedInput},
		{"truncated", full[:len(full)-3], svga.ErrMalformedInput},
		{"magic", append([]byte{0, 0, 0, 0}, full[4:]...), svga.ErrMalformedInput},
		{"future", withVersion(full, 99), svga.ErrUnsupportedVersion},
		{"zero", withVersion(full, 0), svga.ErrUnsupportedVersion},
	} {
		dst := newState()

		if _, err := dst.Contexts.Define(40); err != nil {
			t.Fatal(err)
		}

		_, err := migration.Load(bytes.NewReader(tc.data), dst)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: Load = %v, want %v", tc.name, err, tc.want)
		}

		if !dst.Contexts.Has(40) {
			t.Errorf("%s: failed load changed the registries", tc.name)
		}
	}
}

func TestSaveUnsupportedVersion(t *testing.T) {
	t.Parallel()

	err := migration.SaveVersion(&bytes.Buffer{}, newState(), nil, migration.CurrentVersion+1)
	if !errors.Is(err, svga.ErrUnsupportedVersion) {
		t.Fatalf("SaveVersion = %v", err)
	}
}

func TestLoadOverBudgetLeavesStateAlone(t *testing.T) {
	t.Parallel()

	src := newState()
	populate(t, src)

	var buf bytes.Buffer
	mustOK(t, migration.Save(&buf, src, nil))

	dst := migration.State{
		Contexts: render.NewRegistry(64, 64),
		Surfaces: surface.NewRegistry(64, 8),
	}

	if _, err := dst.Contexts.Define(40); err != nil {
		t.Fatal(err)
	}

	if _, err := migration.Load(&buf, dst); !errors.Is(err, svga.ErrOutOfMemory) {
		t.Fatalf("Load = %v", err)
	}

	if !dst.Contexts.Has(40) || dst.Contexts.Len() != 1 || dst.Surfaces.Len() != 0 {
		t.Fatal("over-budget load changed the registries")
	}
}

// TestLoadChecksBudgetBeforeLevelData feeds a surface larger than the
// budget whose level data is missing: the budget is hit before any read.
func TestLoadChecksBudgetBeforeLevelData(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	put := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}

	put([]uint32{migration.Magic, migration.VersionLegacy, 0, 1})
	put([]uint32{
		9, uint32(surface.FormatA8R8G8B8), 0, 1, 1, 0, 0, uint32(svga.InvalidID),
		1024, 1024, 1,
	})
	put(uint8(1))
	put(uint32(4 << 20))

	st := migration.State{
		Contexts: render.NewRegistry(64, 64),
		Surfaces: surface.NewRegistry(64, 1<<20),
	}

	if _, err := migration.Load(&buf, st); !errors.Is(err, svga.ErrOutOfMemory) {
		t.Fatalf("Load = %v", err)
	}

	if st.Surfaces.Len() != 0 || st.Surfaces.Used() != 0 {
		t.Fatal("rejected surface was installed")
	}
}
