package device_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/device"
	"github.com/bobuhiro11/gosvga/memory"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

func newDevice(t *testing.T) (*device.Device, *memory.Memory, *backend.Recorder) {
	t.Helper()

	mem, err := memory.New(16*memory.PageSize, 1)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}

	t.Cleanup(func() { _ = mem.Close() })

	rec := backend.NewRecorder()

	d, err := device.New(device.Config{MaxContexts: 8, MaxSurfaces: 8, MaxShaders: 8}, mem, rec)
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}

	return d, mem, rec
}

var square = surface.Params{
	Format: surface.FormatA8R8G8B8,
	Sizes:  []surface.Size{{Width: 4, Height: 4, Depth: 1}, {Width: 2, Height: 2, Depth: 1}},
}

func pixelShader() []byte {
	return shader.Encode(
		shader.VersionToken(shader.Pixel, 2, 0),
		shader.InstructionToken(shader.OpMov, 2),
		shader.ParamToken(shader.RegTemp, 0),
		shader.ParamToken(shader.RegInput, 0),
		shader.EndToken,
	)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	d, err := device.New(device.Config{}, nil, backend.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}

	if d.Config != device.DefaultConfig() {
		t.Fatalf("config = %+v", d.Config)
	}

	if _, err := device.New(device.Config{PageSize: 3000}, nil, backend.NewRecorder()); err == nil {
		t.Fatal("odd page size accepted")
	}
}

func TestDefineSurfaceAndContext(t *testing.T) {
	t.Parallel()

	d, _, rec := newDevice(t)

	if err := d.DefineSurface(1, square); err != nil {
		t.Fatal(err)
	}

	if err := d.DefineSurface(1, square); !errors.Is(err, svga.ErrDuplicateID) {
		t.Fatalf("duplicate surface = %v", err)
	}

	if err := d.DefineContext(2); err != nil {
		t.Fatal(err)
	}

	if err := d.SetRenderTarget(2, render.RTColor0, render.SurfaceImage{SID: 1, Mipmap: 1}); err != nil {
		t.Fatal(err)
	}

	s, err := d.Surfaces().Get(1)
	if err != nil {
		t.Fatal(err)
	}

	if s.Context != 2 {
		t.Fatalf("surface context = %v", s.Context)
	}

	if err := d.SetRenderTarget(2, render.RTColor1, render.SurfaceImage{SID: 1, Mipmap: 2}); !errors.Is(err, svga.ErrOutOfRange) {
		t.Fatalf("missing mip level = %v", err)
	}

	if err := d.SetRenderTarget(2, render.RTColor1, render.SurfaceImage{SID: 6}); !errors.Is(err, svga.ErrUnknownID) {
		t.Fatalf("missing surface = %v", err)
	}

	// Destroying the surface leaves the context's reference in place.
	if err := d.DestroySurface(1); err != nil {
		t.Fatal(err)
	}

	c, err := d.Contexts().Get(2)
	if err != nil {
		t.Fatal(err)
	}

	if c.RenderTargets[render.RTColor0].SID != 1 {
		t.Fatal("destroy cleared the render target")
	}

	if err := d.SetZRange(9, render.ZRange{}); !errors.Is(err, svga.ErrUnknownID) {
		t.Fatalf("unknown context = %v", err)
	}

	want := []backend.Op{backend.OpDefineSurface, backend.OpDefineContext, backend.OpRenderTarget, backend.OpDestroySurface}

	got := rec.Ops()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
}

// failing rejects every surface.
type failing struct {
	*backend.Recorder
}

var errHost = errors.New("host out of textures")

func (failing) DefineSurface(*surface.Surface) error { return errHost }

func TestDefineSurfaceBackendFailure(t *testing.T) {
	t.Parallel()

	d, err := device.New(device.Config{}, nil, failing{backend.NewRecorder()})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.DefineSurface(1, square); !errors.Is(err, errHost) {
		t.Fatalf("DefineSurface = %v", err)
	}

	if d.Surfaces().Has(1) || d.Surfaces().Used() != 0 {
		t.Fatal("failed define left the surface behind")
	}
}

func TestShaderCommands(t *testing.T) {
	t.Parallel()

	d, _, rec := newDevice(t)

	if err := d.DefineContext(1); err != nil {
		t.Fatal(err)
	}

	if err := d.DefineShader(1, 3, shader.Pixel, []byte{1, 2, 3}); !errors.Is(err, svga.ErrMalformedInput) {
		t.Fatalf("bad shader = %v", err)
	}

	if err := d.DefineShader(1, 3, shader.Pixel, pixelShader()); err != nil {
		t.Fatal(err)
	}

	if err := d.SetShader(1, shader.Pixel, 3); err != nil {
		t.Fatal(err)
	}

	if err := d.SetShaderConst(1, shader.Pixel, 2, render.ConstFloat, [4]uint32{1}); err != nil {
		t.Fatal(err)
	}

	if err := d.DestroyContext(1); err != nil {
		t.Fatal(err)
	}

	want := []backend.Op{
		backend.OpDefineContext, backend.OpDefineShader, backend.OpShader,
		backend.OpShaderConst, backend.OpDestroyContext,
	}

	got := rec.Ops()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops = %v, want %v", got, want)
		}
	}
}

func TestUploadFromMOB(t *testing.T) {
	t.Parallel()

	d, mem, _ := newDevice(t)

	pattern := make([]byte, 64)
	for i := range pattern {
		pattern[i] = byte(i + 1)
	}

	if err := mem.WritePhys(3*memory.PageSize, pattern); err != nil {
		t.Fatal(err)
	}

	if err := d.DefineMOB(4, []memory.Descriptor{{Addr: 3 * memory.PageSize, Pages: 1}}); err != nil {
		t.Fatal(err)
	}

	if err := d.DefineSurface(1, square); err != nil {
		t.Fatal(err)
	}

	if err := d.UploadSurface(1, 0, 0, 4, 0, 0); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 64)
	if err := d.Surfaces().ReadLevel(1, 0, 0, 0, got); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, pattern) {
		t.Fatalf("level = %v", got)
	}

	if err := d.UploadSurface(1, 0, 0, 5, 0, 0); !errors.Is(err, svga.ErrUnknownID) {
		t.Fatalf("unknown mob = %v", err)
	}

	if err := d.DestroyMOB(4); err != nil {
		t.Fatal(err)
	}
}

func TestWaitQuery(t *testing.T) {
	t.Parallel()

	d, _, rec := newDevice(t)
	rec.Samples = 99

	if err := d.DefineContext(1); err != nil {
		t.Fatal(err)
	}

	if _, err := d.WaitQuery(1); !errors.Is(err, render.ErrQueryState) {
		t.Fatalf("wait without query = %v", err)
	}

	if err := d.BeginQuery(1); err != nil {
		t.Fatal(err)
	}

	if err := d.EndQuery(1); err != nil {
		t.Fatal(err)
	}

	q, err := d.WaitQuery(1)
	if err != nil {
		t.Fatal(err)
	}

	if q != (render.Query{State: render.QuerySignaled, Result: 99}) {
		t.Fatalf("query = %+v", q)
	}
}

func TestSaveLoadReplay(t *testing.T) {
	t.Parallel()

	src, _, _ := newDevice(t)

	if err := src.DefineSurface(1, square); err != nil {
		t.Fatal(err)
	}

	if err := src.DefineContext(2); err != nil {
		t.Fatal(err)
	}

	states := []render.RenderState{{Name: render.RSZEnable, Value: 1}, {Name: render.RSBlendEnable, Value: 2}}
	if err := src.SetRenderStates(2, states); err != nil {
		t.Fatal(err)
	}

	if err := src.SetRenderTarget(2, render.RTDepth, render.SurfaceImage{SID: 1}); err != nil {
		t.Fatal(err)
	}

	if err := src.BeginQuery(2); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatal(err)
	}

	dst, _, rec := newDevice(t)

	// The loaded state replaces whatever the destination held.
	if err := dst.DefineContext(5); err != nil {
		t.Fatal(err)
	}

	if _, err := dst.Load(&buf); err != nil {
		t.Fatal(err)
	}

	if dst.Contexts().Has(5) || !dst.Contexts().Has(2) || !dst.Surfaces().Has(1) {
		t.Fatalf("contexts %v surfaces %v", dst.Contexts().IDs(), dst.Surfaces().IDs())
	}

	c, err := dst.Contexts().Get(2)
	if err != nil {
		t.Fatal(err)
	}

	if c.Query.State != render.QuerySignaled {
		t.Fatalf("loaded query = %v", c.Query.State)
	}

	if _, ok := rec.Texture(1); !ok {
		t.Fatal("surface not replayed")
	}

	if err := dst.SetZRange(2, render.ZRange{Max: 1}); err != nil {
		t.Fatalf("replayed context unusable: %v", err)
	}

	if _, err := dst.Load(bytes.NewReader([]byte("junk"))); !errors.Is(err, svga.ErrMalformedInput) {
		t.Fatalf("Load(junk) = %v", err)
	}

	if !dst.Contexts().Has(2) {
		t.Fatal("failed load dropped the state")
	}

	if err := dst.Reset(); err != nil {
		t.Fatal(err)
	}

	if dst.Contexts().Len() != 0 || dst.Surfaces().Len() != 0 {
		t.Fatal("Reset left objects behind")
	}
}

func TestSetRenderStatesAllOrNothing(t *testing.T) {
	t.Parallel()

	d, _, rec := newDevice(t)

	if err := d.DefineContext(1); err != nil {
		t.Fatal(err)
	}

	batch := []render.RenderState{{Name: render.RSZEnable, Value: 7}, {Name: 500, Value: 1}}
	if err := d.SetRenderStates(1, batch); !errors.Is(err, svga.ErrOutOfRange) {
		t.Fatalf("SetRenderStates = %v", err)
	}

	tex := []render.TextureState{{Stage: 0, Name: render.TSColorOp, Value: 2}, {Stage: 9, Name: render.TSColorOp}}
	if err := d.SetTextureStates(1, tex); !errors.Is(err, svga.ErrOutOfRange) {
		t.Fatalf("SetTextureStates = %v", err)
	}

	c, err := d.Contexts().Get(1)
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := c.RenderState(render.RSZEnable); ok {
		t.Fatalf("rejected batch applied ZEnable = %d", v)
	}

	if _, ok := c.TextureState(0, render.TSColorOp); ok {
		t.Fatal("rejected batch applied a texture state")
	}

	if c.Flags != 0 {
		t.Fatalf("flags = %#x", c.Flags)
	}

	if got := rec.Ops(); len(got) != 1 || got[0] != backend.OpDefineContext {
		t.Fatalf("ops = %v", got)
	}
}

// refusing accepts contexts but rejects state and shaders.
type refusing struct {
	*backend.Recorder
}

func (refusing) SetRenderStates(svga.ID, []render.RenderState) error { return errHost }

func (refusing) SetShaderConst(svga.ID, shader.Kind, uint32, render.Constant) error { return errHost }

func (refusing) DefineShader(svga.ID, svga.ID, shader.Kind, []byte) error { return errHost }

func TestBackendFailureLeavesContextUnchanged(t *testing.T) {
	t.Parallel()

	d, err := device.New(device.Config{}, nil, refusing{backend.NewRecorder()})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.DefineContext(1); err != nil {
		t.Fatal(err)
	}

	batch := []render.RenderState{{Name: render.RSZEnable, Value: 1}}
	if err := d.SetRenderStates(1, batch); !errors.Is(err, errHost) {
		t.Fatalf("SetRenderStates = %v", err)
	}

	if err := d.SetShaderConst(1, shader.Vertex, 4, render.ConstFloat, [4]uint32{1}); !errors.Is(err, errHost) {
		t.Fatalf("SetShaderConst = %v", err)
	}

	if err := d.DefineShader(1, 3, shader.Pixel, pixelShader()); !errors.Is(err, errHost) {
		t.Fatalf("DefineShader = %v", err)
	}

	c, err := d.Contexts().Get(1)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := c.RenderState(render.RSZEnable); ok {
		t.Fatal("render state kept after backend failure")
	}

	if n := len(c.ShaderConsts(shader.Vertex)); n != 0 {
		t.Fatalf("constant array grew to %d", n)
	}

	if c.ShaderCount() != 0 {
		t.Fatal("shader kept after backend failure")
	}

	if c.Flags != 0 {
		t.Fatalf("flags = %#x", c.Flags)
	}
}

func TestCopyMOB(t *testing.T) {
	t.Parallel()

	d, mem, _ := newDevice(t)

	if err := d.DefineMOB(1, []memory.Descriptor{{Addr: 2 * memory.PageSize, Pages: 1}}); err != nil {
		t.Fatal(err)
	}

	if err := d.DefineMOB(2, []memory.Descriptor{{Addr: 5 * memory.PageSize, Pages: 2}}); err != nil {
		t.Fatal(err)
	}

	src := bytes.Repeat([]byte("svga"), 25)
	if err := mem.WritePhys(2*memory.PageSize, src); err != nil {
		t.Fatal(err)
	}

	if err := d.CopyMOB(2, 4090, 1, 0, 100); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 100)
	if err := mem.ReadPhys(5*memory.PageSize+4090, got); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, src) {
		t.Fatalf("guest copy = %q", got)
	}

	dst, err := d.MOBs().Lookup(2)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.MOBs().Realize(dst); err != nil {
		t.Fatal(err)
	}

	if err := d.CopyMOB(2, 0, 1, 4, 8); err != nil {
		t.Fatal(err)
	}

	if err := d.MOBs().Read(dst, 0, got[:8]); err != nil || string(got[:8]) != "svgasvga" {
		t.Fatalf("host copy = %q, %v", got[:8], err)
	}

	if err := d.CopyMOB(2, 0, 1, 4000, 200); !errors.Is(err, svga.ErrOutOfRange) {
		t.Fatalf("copy past source end = %v", err)
	}

	if err := d.CopyMOB(2, 0, 9, 0, 1); !errors.Is(err, svga.ErrUnknownID) {
		t.Fatalf("copy from unknown mob = %v", err)
	}
}
