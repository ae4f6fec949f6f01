package render_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/svga"
)

func program(kind shader.Kind) []byte {
	return shader.Encode(
		shader.VersionToken(kind, 2, 0),
		shader.InstructionToken(shader.OpMov, 2),
		shader.ParamToken(shader.RegTemp, 0),
		shader.ParamToken(shader.RegInput, 0),
		shader.EndToken,
	)
}

func TestDefineShader(t *testing.T) {
	t.Parallel()

	c := newContext(t)

	p, err := c.DefineShader(3, shader.Pixel, program(shader.Pixel))
	if err != nil {
		t.Fatal(err)
	}

	if !p.Validated || p.Context != c.ID || p.Kind != shader.Pixel {
		t.Fatalf("program = %+v", p)
	}

	// Vertex and pixel shader ids are separate.
	if _, err := c.Shader(3, shader.Vertex); !errors.Is(err, svga.ErrUnknownID) {
		t.Fatalf("vertex shader 3 = %v", err)
	}

	if _, err := c.DefineShader(3, shader.Vertex, program(shader.Vertex)); err != nil {
		t.Fatal(err)
	}

	if c.ShaderCount() != 2 {
		t.Fatalf("ShaderCount = %d", c.ShaderCount())
	}
}

func TestDefineShaderRejected(t *testing.T) {
	t.Parallel()

	c := newContext(t)

	if _, err := c.DefineShader(1, shader.Pixel, program(shader.Pixel)); err != nil {
		t.Fatal(err)
	}

	// A vertex stream is not a pixel shader; the old program survives.
	_, err := c.DefineShader(1, shader.Pixel, program(shader.Vertex))
	if !errors.Is(err, svga.ErrMalformedInput) {
		t.Fatalf("DefineShader(mismatched) = %v", err)
	}

	p, err := c.Shader(1, shader.Pixel)
	if err != nil {
		t.Fatal(err)
	}

	if string(p.Code) != string(program(shader.Pixel)) {
		t.Fatal("rejected define replaced the program")
	}

	if _, err := c.DefineShader(64, shader.Pixel, program(shader.Pixel)); !errors.Is(err, svga.ErrOutOfRange) {
		t.Fatalf("shader id at limit = %v", err)
	}

	if _, err := c.DefineShader(2, shader.Kind(7), program(shader.Pixel)); !errors.Is(err, svga.ErrMalformedInput) {
		t.Fatalf("bad kind = %v", err)
	}
}

func TestDefineShaderReplaces(t *testing.T) {
	t.Parallel()

	c := newContext(t)

	if _, err := c.DefineShader(1, shader.Vertex, program(shader.Vertex)); err != nil {
		t.Fatal(err)
	}

	longer := shader.Encode(
		shader.VersionToken(shader.Vertex, 3, 0),
		shader.InstructionToken(shader.OpNop, 0),
		shader.EndToken,
	)

	if _, err := c.DefineShader(1, shader.Vertex, longer); err != nil {
		t.Fatal(err)
	}

	p, err := c.Shader(1, shader.Vertex)
	if err != nil {
		t.Fatal(err)
	}

	if string(p.Code) != string(longer) || c.ShaderCount() != 1 {
		t.Fatalf("replace kept %d programs", c.ShaderCount())
	}
}

func TestBindShader(t *testing.T) {
	t.Parallel()

	c := newContext(t)

	if err := c.BindShader(shader.Vertex, 5); !errors.Is(err, svga.ErrUnknownID) {
		t.Fatalf("bind undefined = %v", err)
	}

	if _, err := c.DefineShader(5, shader.Vertex, program(shader.Vertex)); err != nil {
		t.Fatal(err)
	}

	if err := c.BindShader(shader.Vertex, 5); err != nil {
		t.Fatal(err)
	}

	if c.BoundShader(shader.Vertex) != 5 || c.Flags&render.UpdateVertexShader == 0 {
		t.Fatalf("vs=%v flags=%#x", c.VertexShader, c.Flags)
	}

	// Destroying a bound shader leaves a stale binding behind.
	if err := c.DestroyShader(5, shader.Vertex); err != nil {
		t.Fatal(err)
	}

	if c.VertexShader != 5 {
		t.Fatal("destroy cleared the binding")
	}

	if err := c.BindShader(shader.Vertex, svga.InvalidID); err != nil {
		t.Fatal(err)
	}

	if c.VertexShader.Valid() {
		t.Fatal("unbind kept the binding")
	}

	if err := c.DestroyShader(5, shader.Vertex); !errors.Is(err, svga.ErrUnknownID) {
		t.Fatalf("second destroy = %v", err)
	}
}

func TestShaderConstantsGrow(t *testing.T) {
	t.Parallel()

	c := newContext(t)

	if err := c.SetShaderConst(shader.Pixel, 5, render.ConstFloat, [4]uint32{0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	consts := c.ShaderConsts(shader.Pixel)
	if len(consts) != 6 {
		t.Fatalf("len = %d, want 6", len(consts))
	}

	for i := 0; i < 5; i++ {
		if consts[i].Valid {
			t.Fatalf("constant %d valid before being set", i)
		}
	}

	// Set to zero is distinct from never set.
	if k, ok := c.ShaderConst(shader.Pixel, 5); !ok || k.Value != [4]uint32{} {
		t.Fatalf("constant 5 = %+v, %v", k, ok)
	}

	if _, ok := c.ShaderConst(shader.Pixel, 4); ok {
		t.Fatal("constant 4 reported set")
	}

	if err := c.SetShaderConst(shader.Pixel, 2, render.ConstInt, [4]uint32{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	if len(c.ShaderConsts(shader.Pixel)) != 6 {
		t.Fatal("lower register grew the array")
	}

	if len(c.ShaderConsts(shader.Vertex)) != 0 {
		t.Fatal("pixel constants leaked into vertex array")
	}

	if err := c.SetShaderConst(shader.Pixel, render.MaxShaderConsts, render.ConstFloat, [4]uint32{}); !errors.Is(err, svga.ErrOutOfRange) {
		t.Fatalf("register at limit = %v", err)
	}

	if err := c.SetShaderConst(shader.Pixel, 0, render.ConstType(9), [4]uint32{}); !errors.Is(err, svga.ErrMalformedInput) {
		t.Fatalf("bad type = %v", err)
	}
}
