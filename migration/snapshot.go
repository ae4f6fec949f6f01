package migration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

var (
	errBadMagic     = fmt.Errorf("bad snapshot magic: %w", svga.ErrMalformedInput)
	errNeedsBackend = errors.New("pending occlusion query needs a backend")
)

// encoder writes little-endian records and keeps the first error.
type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) put(v any) {
	if e.err == nil {
		e.err = binary.Write(e.w, binary.LittleEndian, v)
	}
}

func (e *encoder) bytes(p []byte) {
	if e.err == nil && len(p) > 0 {
		_, e.err = e.w.Write(p)
	}
}

// decoder reads little-endian records. Short input is malformed input.
type decoder struct {
	r io.Reader

	// budget is the level storage the surfaces decoded so far leave.
	budget uint64
}

// reserve charges the level storage of s against the budget before any of
// its level data is read.
func (d *decoder) reserve(s *surface.Surface) error {
	n := s.Bytes()
	if n > d.budget {
		return fmt.Errorf("surface %v needs %d bytes, %d left: %w", s.ID, n, d.budget, svga.ErrOutOfMemory)
	}

	d.budget -= n

	return nil
}

func (d *decoder) get(what string, v any) error {
	if err := binary.Read(d.r, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("read %s: %w: %w", what, svga.ErrMalformedInput, err)
	}

	return nil
}

func (d *decoder) bytes(what string, n uint32) ([]byte, error) {
	p := make([]byte, n)
	if _, err := io.ReadFull(d.r, p); err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", what, svga.ErrMalformedInput, err)
	}

	return p, nil
}

// Save writes st to w in the current layout. Pending occlusion queries are
// finalized through be first.
func Save(w io.Writer, st State, be backend.Backend) error {
	return SaveVersion(w, st, be, CurrentVersion)
}

// SaveVersion writes st to w in the layout of version. Sections the
// version predates are left out, and state an older layout cannot express
// fails the save.
func SaveVersion(w io.Writer, st State, be backend.Backend, version uint32) error {
	if version < VersionLegacy || version > CurrentVersion {
		return fmt.Errorf("save version %d: %w", version, svga.ErrUnsupportedVersion)
	}

	e := &encoder{w: w}

	e.put(header{
		Magic:    Magic,
		Version:  version,
		Contexts: uint32(st.Contexts.Len()),
		Surfaces: uint32(st.Surfaces.Len()),
	})

	if e.err != nil {
		return fmt.Errorf("save header: %w", e.err)
	}

	var err error

	st.Contexts.Range(func(c *render.Context) bool {
		err = saveContext(e, c, be, version)

		return err == nil
	})

	if err != nil {
		return err
	}

	st.Surfaces.Range(func(s *surface.Surface) bool {
		err = saveSurface(e, s, version)

		return err == nil
	})

	if err != nil {
		return err
	}

	svga.Logger().Info("snapshot saved", "version", version,
		"contexts", st.Contexts.Len(), "surfaces", st.Surfaces.Len())

	return nil
}

func saveContext(e *encoder, c *render.Context, be backend.Backend, version uint32) error {
	w := contextToWire(c)

	if version < VersionContextLayout {
		e.put(downgradeContextV1(&w))
	} else {
		e.put(&w)
	}

	for _, kind := range []shader.Kind{shader.Vertex, shader.Pixel} {
		for _, p := range c.Shaders(kind) {
			e.put(shaderWire{ID: uint32(p.ID), Kind: uint32(p.Kind), Size: uint32(len(p.Code))})
			e.bytes(p.Code)
		}
	}

	for _, kind := range []shader.Kind{shader.Vertex, shader.Pixel} {
		for _, k := range c.ShaderConsts(kind) {
			e.put(constWire{Valid: b32(k.Valid), Type: uint32(k.Type), Value: k.Value})
		}
	}

	if version >= VersionTextureStates {
		e.put(textureStatesHeader{Stages: render.TextureStageMax, States: render.TextureStateMax})

		for s := range c.TextureStates {
			for _, ts := range c.TextureStates[s] {
				e.put(textureStateWire{Name: uint32(ts.Name), Value: ts.Value})
			}
		}
	}

	if version >= VersionOcclusionQuery {
		q, err := finalizeQuery(c, be)
		if err != nil {
			return err
		}

		e.put(q)
	}

	if e.err != nil {
		return fmt.Errorf("save context %v: %w", c.ID, e.err)
	}

	return nil
}

// finalizeQuery brings the query of c into a state that can be saved.
// Ending a building query is permanent; the live state is otherwise left
// as it was.
func finalizeQuery(c *render.Context, be backend.Backend) (queryWire, error) {
	plan := render.PlanQuerySave(c.Query.State)
	q := queryWire{State: uint32(plan.Saved), Result: c.Query.Result}

	if (plan.End || plan.Wait) && be == nil {
		return q, fmt.Errorf("save context %v query %v: %w", c.ID, c.Query.State, errNeedsBackend)
	}

	if plan.End {
		if err := be.QueryEnd(c.ID); err != nil {
			return q, fmt.Errorf("save context %v: end query: %w", c.ID, err)
		}
	}

	if plan.Wait {
		result, err := be.QueryWait(c.ID)
		if err != nil {
			return q, fmt.Errorf("save context %v: wait query: %w", c.ID, err)
		}

		q.Result = result
	}

	c.Query.State = plan.Restore

	return q, nil
}

func saveSurface(e *encoder, s *surface.Surface, version uint32) error {
	w, levels := surfaceToWire(s)

	if version < VersionMipLevels {
		v, err := downgradeSurfaceV1(&w, levels)
		if err != nil {
			return fmt.Errorf("save surface: %w", err)
		}

		e.put(&v)
	} else {
		e.put(&w)
		e.put(levels)
	}

	for i := range s.Mips {
		data := s.Mips[i].Data
		if data == nil {
			e.put(uint8(0))

			continue
		}

		e.put(uint8(1))
		e.put(uint32(len(data)))
		e.bytes(data)
	}

	if e.err != nil {
		return fmt.Errorf("save surface %v: %w", s.ID, e.err)
	}

	return nil
}

// Load replaces the contents of st with the snapshot read from r and
// returns its version. A stream that fails to decode, or whose surfaces
// exceed the storage budget of st, leaves st untouched. One that decodes
// but cannot be installed leaves st empty.
func Load(r io.Reader, st State) (uint32, error) {
	d := &decoder{r: r, budget: st.Surfaces.MaxBytes()}

	var h header
	if err := d.get("header", &h); err != nil {
		return 0, err
	}

	if h.Magic != Magic {
		return 0, fmt.Errorf("load: %#x: %w", h.Magic, errBadMagic)
	}

	if h.Version < VersionLegacy || h.Version > CurrentVersion {
		return 0, fmt.Errorf("load version %d: %w", h.Version, svga.ErrUnsupportedVersion)
	}

	if h.Contexts > st.Contexts.Limit() || h.Surfaces > st.Surfaces.Limit() {
		return 0, fmt.Errorf("load: %d contexts %d surfaces: %w", h.Contexts, h.Surfaces, svga.ErrOutOfRange)
	}

	contexts := make([]*render.Context, 0, h.Contexts)

	for i := uint32(0); i < h.Contexts; i++ {
		c, err := loadContext(d, h.Version, st.Contexts.MaxShaders())
		if err != nil {
			return 0, err
		}

		contexts = append(contexts, c)
	}

	surfaces := make([]*surface.Surface, 0, h.Surfaces)

	for i := uint32(0); i < h.Surfaces; i++ {
		s, err := loadSurface(d, h.Version)
		if err != nil {
			return 0, err
		}

		surfaces = append(surfaces, s)
	}

	st.Contexts.Reset()
	st.Surfaces.Reset()

	if err := install(st, contexts, surfaces); err != nil {
		st.Contexts.Reset()
		st.Surfaces.Reset()

		return 0, err
	}

	svga.Logger().Info("snapshot loaded", "version", h.Version,
		"contexts", len(contexts), "surfaces", len(surfaces))

	return h.Version, nil
}

func install(st State, contexts []*render.Context, surfaces []*surface.Surface) error {
	for _, c := range contexts {
		if err := st.Contexts.Insert(c); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}

	for _, s := range surfaces {
		if err := st.Surfaces.Insert(s); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}

	return nil
}

func loadContext(d *decoder, version uint32, maxShaders uint32) (*render.Context, error) {
	var w contextWire

	if version < VersionContextLayout {
		var v contextV1
		if err := d.get("context", &v); err != nil {
			return nil, err
		}

		w = upgradeContextV1(&v)
	} else if err := d.get("context", &w); err != nil {
		return nil, err
	}

	c := contextFromWire(&w, maxShaders)

	if err := loadShaders(d, c, shader.Vertex, w.Tail.VertexShaders); err != nil {
		return nil, err
	}

	if err := loadShaders(d, c, shader.Pixel, w.Tail.PixelShaders); err != nil {
		return nil, err
	}

	if err := loadConsts(d, c, shader.Vertex, w.Tail.VertexConsts); err != nil {
		return nil, err
	}

	if err := loadConsts(d, c, shader.Pixel, w.Tail.PixelConsts); err != nil {
		return nil, err
	}

	if version >= VersionTextureStates {
		if err := loadTextureStates(d, c); err != nil {
			return nil, err
		}
	}

	if version >= VersionOcclusionQuery {
		var q queryWire
		if err := d.get("query", &q); err != nil {
			return nil, err
		}

		switch render.QueryState(q.State) {
		case render.QuerySignaled:
			c.Query = render.Query{State: render.QuerySignaled, Result: q.Result}
		case render.QueryNull:
		default:
			return nil, fmt.Errorf("context %v: saved query state %d: %w", c.ID, q.State, svga.ErrMalformedInput)
		}
	}

	return c, nil
}

func loadShaders(d *decoder, c *render.Context, kind shader.Kind, n uint32) error {
	for i := uint32(0); i < n; i++ {
		var w shaderWire
		if err := d.get("shader", &w); err != nil {
			return err
		}

		if shader.Kind(w.Kind) != kind || w.Size > shader.MaxTokens*4 {
			return fmt.Errorf("context %v: %v shader %d kind %d size %d: %w",
				c.ID, kind, w.ID, w.Kind, w.Size, svga.ErrMalformedInput)
		}

		code, err := d.bytes("shader code", w.Size)
		if err != nil {
			return err
		}

		if _, err := c.DefineShader(svga.ID(w.ID), kind, code); err != nil {
			return fmt.Errorf("context %v: %w", c.ID, err)
		}
	}

	return nil
}

func loadConsts(d *decoder, c *render.Context, kind shader.Kind, n uint32) error {
	if n > render.MaxShaderConsts {
		return fmt.Errorf("context %v: %d %v constants: %w", c.ID, n, kind, svga.ErrMalformedInput)
	}

	consts := make([]render.Constant, n)

	for i := range consts {
		var w constWire
		if err := d.get("constant", &w); err != nil {
			return err
		}

		if render.ConstType(w.Type) > render.ConstBool {
			return fmt.Errorf("context %v: constant type %d: %w", c.ID, w.Type, svga.ErrMalformedInput)
		}

		consts[i] = render.Constant{Valid: w.Valid != 0, Type: render.ConstType(w.Type), Value: w.Value}
	}

	if kind == shader.Pixel {
		c.PixelConsts = consts
	} else {
		c.VertexConsts = consts
	}

	return nil
}

func loadTextureStates(d *decoder, c *render.Context) error {
	var h textureStatesHeader
	if err := d.get("texture states", &h); err != nil {
		return err
	}

	if h.Stages > render.TextureStageMax || h.States > render.TextureStateMax {
		return fmt.Errorf("context %v: %dx%d texture states: %w", c.ID, h.Stages, h.States, svga.ErrMalformedInput)
	}

	for s := uint32(0); s < h.Stages; s++ {
		for n := uint32(0); n < h.States; n++ {
			var w textureStateWire
			if err := d.get("texture state", &w); err != nil {
				return err
			}

			c.TextureStates[s][n] = render.TextureState{Stage: s, Name: render.TextureStateName(w.Name), Value: w.Value}
		}
	}

	return nil
}

func loadSurface(d *decoder, version uint32) (*surface.Surface, error) {
	var (
		w      surfaceWire
		levels []levelWire
	)

	if version < VersionMipLevels {
		var v surfaceV1
		if err := d.get("surface", &v); err != nil {
			return nil, err
		}

		var err error
		if w, levels, err = upgradeSurfaceV1(&v); err != nil {
			return nil, err
		}
	} else {
		if err := d.get("surface", &w); err != nil {
			return nil, err
		}

		if err := checkSurfaceShape(w.ID, w.Faces, w.Levels); err != nil {
			return nil, err
		}

		levels = make([]levelWire, w.Faces*w.Levels)
		if err := d.get("levels", levels); err != nil {
			return nil, err
		}
	}

	s, err := surfaceFromWire(&w, levels)
	if err != nil {
		return nil, err
	}

	if err := d.reserve(s); err != nil {
		return nil, err
	}

	for i := range s.Mips {
		m := &s.Mips[i]

		var present uint8
		if err := d.get("level flag", &present); err != nil {
			return nil, err
		}

		if present == 0 {
			continue
		}

		var n uint32
		if err := d.get("level size", &n); err != nil {
			return nil, err
		}

		if n != m.ByteSize {
			return nil, fmt.Errorf("surface %v level %d: %d bytes, want %d: %w",
				s.ID, i, n, m.ByteSize, svga.ErrMalformedInput)
		}

		if m.Data, err = d.bytes("level data", n); err != nil {
			return nil, err
		}

		m.Dirty = true
		s.Dirty = true
	}

	return s, nil
}
