package backend

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
	"github.com/gogpu/gputypes"
)

// Op names a backend call.
type Op string

const (
	OpDefineContext  Op = "define-context"
	OpDestroyContext Op = "destroy-context"
	OpDefineSurface  Op = "define-surface"
	OpDestroySurface Op = "destroy-surface"
	OpDefineShader   Op = "define-shader"
	OpDestroyShader  Op = "destroy-shader"
	OpRenderTarget   Op = "render-target"
	OpRenderStates   Op = "render-states"
	OpTextureStates  Op = "texture-states"
	OpClipPlane      Op = "clip-plane"
	OpLightData      Op = "light-data"
	OpLightEnabled   Op = "light-enabled"
	OpTransform      Op = "transform"
	OpMaterial       Op = "material"
	OpScissor        Op = "scissor"
	OpZRange         Op = "zrange"
	OpViewport       Op = "viewport"
	OpShader         Op = "shader"
	OpShaderConst    Op = "shader-const"
	OpQueryBegin     Op = "query-begin"
	OpQueryEnd       Op = "query-end"
	OpQueryWait      Op = "query-wait"
)

// Call is one recorded backend call. Index is the slot, register or id
// the call addresses; Arg is the value it carried.
type Call struct {
	Op      Op
	Context svga.ID
	Index   uint32
	Arg     any
}

func (c Call) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s", c.Op)

	if c.Context.Valid() {
		fmt.Fprintf(&b, " cid=%v", c.Context)
	}

	fmt.Fprintf(&b, " index=%d", c.Index)

	if c.Arg != nil {
		fmt.Fprintf(&b, " %v", c.Arg)
	}

	return b.String()
}

// Recorder is a Backend that keeps a log of the calls it receives and the
// texture descriptors of the surfaces it has been told about. It is safe
// for concurrent use.
type Recorder struct {
	// Samples is the result QueryWait reports.
	Samples uint32

	mu       sync.Mutex
	calls    []Call
	textures map[svga.ID]gputypes.TextureDescriptor
	contexts map[svga.ID]bool
	queries  map[svga.ID]render.QueryState
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		textures: make(map[svga.ID]gputypes.TextureDescriptor),
		contexts: make(map[svga.ID]bool),
		queries:  make(map[svga.ID]render.QueryState),
	}
}

func (r *Recorder) record(c Call) {
	r.calls = append(r.calls, c)
}

// needContext records c if cid has been defined.
func (r *Recorder) needContext(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.contexts[c.Context] {
		return fmt.Errorf("backend %s: context %v: %w", c.Op, c.Context, svga.ErrUnknownID)
	}

	r.record(c)

	return nil
}

// Calls returns a copy of the call log.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}

// Ops returns the operation of every recorded call, in order.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]Op, len(r.calls))
	for i, c := range r.calls {
		ops[i] = c.Op
	}

	return ops
}

// Reset clears the call log and forgets every host object.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = nil
	clear(r.textures)
	clear(r.contexts)
	clear(r.queries)
}

// Texture returns the descriptor surface sid was defined with.
func (r *Recorder) Texture(sid svga.ID) (gputypes.TextureDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.textures[sid]

	return d, ok
}

func (r *Recorder) DefineContext(cid svga.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contexts[cid] = true
	r.record(Call{Op: OpDefineContext, Context: cid})

	return nil
}

func (r *Recorder) DestroyContext(cid svga.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.contexts[cid] {
		return fmt.Errorf("backend destroy context %v: %w", cid, svga.ErrUnknownID)
	}

	delete(r.contexts, cid)
	delete(r.queries, cid)
	r.record(Call{Op: OpDestroyContext, Context: cid})

	return nil
}

func (r *Recorder) DefineSurface(s *surface.Surface) error {
	d := s.Descriptor()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.textures[s.ID] = d
	r.record(Call{Op: OpDefineSurface, Context: svga.InvalidID, Index: uint32(s.ID), Arg: d.Format})

	return nil
}

func (r *Recorder) DestroySurface(sid svga.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.textures[sid]; !ok {
		return fmt.Errorf("backend destroy surface %v: %w", sid, svga.ErrUnknownID)
	}

	delete(r.textures, sid)
	r.record(Call{Op: OpDestroySurface, Context: svga.InvalidID, Index: uint32(sid)})

	return nil
}

func (r *Recorder) DefineShader(cid, shid svga.ID, kind shader.Kind, code []byte) error {
	return r.needContext(Call{Op: OpDefineShader, Context: cid, Index: uint32(shid), Arg: kind})
}

func (r *Recorder) DestroyShader(cid, shid svga.ID, kind shader.Kind) error {
	return r.needContext(Call{Op: OpDestroyShader, Context: cid, Index: uint32(shid), Arg: kind})
}

func (r *Recorder) SetRenderTarget(cid svga.ID, typ render.RenderTargetType, img render.SurfaceImage) error {
	return r.needContext(Call{Op: OpRenderTarget, Context: cid, Index: uint32(typ), Arg: img})
}

func (r *Recorder) SetRenderStates(cid svga.ID, states []render.RenderState) error {
	return r.needContext(Call{Op: OpRenderStates, Context: cid, Index: uint32(len(states)),
		Arg: append([]render.RenderState(nil), states...)})
}

func (r *Recorder) SetTextureStates(cid svga.ID, states []render.TextureState) error {
	return r.needContext(Call{Op: OpTextureStates, Context: cid, Index: uint32(len(states)),
		Arg: append([]render.TextureState(nil), states...)})
}

func (r *Recorder) SetClipPlane(cid svga.ID, index uint32, plane [4]float32) error {
	return r.needContext(Call{Op: OpClipPlane, Context: cid, Index: index, Arg: plane})
}

func (r *Recorder) SetLightData(cid svga.ID, index uint32, data render.LightData) error {
	return r.needContext(Call{Op: OpLightData, Context: cid, Index: index, Arg: data.Type})
}

func (r *Recorder) SetLightEnabled(cid svga.ID, index uint32, enabled bool) error {
	return r.needContext(Call{Op: OpLightEnabled, Context: cid, Index: index, Arg: enabled})
}

func (r *Recorder) SetTransform(cid svga.ID, typ uint32, m [16]float32) error {
	return r.needContext(Call{Op: OpTransform, Context: cid, Index: typ, Arg: m})
}

func (r *Recorder) SetMaterial(cid svga.ID, face uint32, m render.MaterialData) error {
	return r.needContext(Call{Op: OpMaterial, Context: cid, Index: face, Arg: m})
}

func (r *Recorder) SetScissorRect(cid svga.ID, rect render.Rect) error {
	return r.needContext(Call{Op: OpScissor, Context: cid, Arg: rect})
}

func (r *Recorder) SetZRange(cid svga.ID, z render.ZRange) error {
	return r.needContext(Call{Op: OpZRange, Context: cid, Arg: z})
}

func (r *Recorder) SetViewport(cid svga.ID, rect render.Rect) error {
	return r.needContext(Call{Op: OpViewport, Context: cid, Arg: rect})
}

func (r *Recorder) SetShader(cid svga.ID, kind shader.Kind, shid svga.ID) error {
	return r.needContext(Call{Op: OpShader, Context: cid, Index: uint32(shid), Arg: kind})
}

func (r *Recorder) SetShaderConst(cid svga.ID, kind shader.Kind, reg uint32, k render.Constant) error {
	return r.needContext(Call{Op: OpShaderConst, Context: cid, Index: reg, Arg: k.Value})
}

func (r *Recorder) QueryBegin(cid svga.ID) error {
	if err := r.needContext(Call{Op: OpQueryBegin, Context: cid}); err != nil {
		return err
	}

	r.mu.Lock()
	r.queries[cid] = render.QueryBuilding
	r.mu.Unlock()

	return nil
}

func (r *Recorder) QueryEnd(cid svga.ID) error {
	if err := r.needContext(Call{Op: OpQueryEnd, Context: cid}); err != nil {
		return err
	}

	r.mu.Lock()
	r.queries[cid] = render.QueryIssued
	r.mu.Unlock()

	return nil
}

func (r *Recorder) QueryWait(cid svga.ID) (uint32, error) {
	r.mu.Lock()
	st := r.queries[cid]
	r.mu.Unlock()

	if st != render.QueryIssued && st != render.QuerySignaled {
		return 0, fmt.Errorf("backend wait on query in state %v: %w", st, render.ErrQueryState)
	}

	if err := r.needContext(Call{Op: OpQueryWait, Context: cid, Arg: r.Samples}); err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.queries[cid] = render.QuerySignaled
	r.mu.Unlock()

	return r.Samples, nil
}

var _ Backend = (*Recorder)(nil)
